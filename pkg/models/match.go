package models

// Similarity dimensions
const (
	DimensionTitle    = "title"
	DimensionVenue    = "venue"
	DimensionDate     = "date"
	DimensionLocation = "location"
	DimensionSemantic = "semantic"
)

// Dimensions lists the similarity dimensions in reporting order.
var Dimensions = []string{
	DimensionTitle,
	DimensionVenue,
	DimensionLocation,
	DimensionDate,
	DimensionSemantic,
}

// SimilarityScore holds per-dimension similarity between two fingerprints.
// Overall is always computed by the scorer as the weighted sum of the dimensions.
type SimilarityScore struct {
	Title    float64 `json:"title"`
	Venue    float64 `json:"venue"`
	Date     float64 `json:"date"`
	Location float64 `json:"location"`
	Semantic float64 `json:"semantic"`
	Overall  float64 `json:"overall"`
}

// Dimension returns the score for a named dimension.
func (s SimilarityScore) Dimension(name string) float64 {
	switch name {
	case DimensionTitle:
		return s.Title
	case DimensionVenue:
		return s.Venue
	case DimensionDate:
		return s.Date
	case DimensionLocation:
		return s.Location
	case DimensionSemantic:
		return s.Semantic
	default:
		return 0
	}
}

// MatchResult is one candidate duplicate for a target record.
type MatchResult struct {
	TargetID    string          `json:"target_id"`
	Candidate   *EventRecord    `json:"candidate"`
	Score       SimilarityScore `json:"score"`
	Confidence  float64         `json:"confidence"`
	Reasons     []string        `json:"reasons"`
	RiskFactors []string        `json:"risk_factors"`
}

// DuplicateCheckResult is the outcome of checking one record against a candidate pool.
type DuplicateCheckResult struct {
	TargetID       string        `json:"target_id"`
	IsDuplicate    bool          `json:"is_duplicate"`
	PrimaryEventID string        `json:"primary_event_id,omitempty"`
	DuplicateIDs   []string      `json:"duplicate_ids,omitempty"`
	Matches        []MatchResult `json:"matches"`
	Recommendation string        `json:"recommendation"`
}
