package matching

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/fingerprint"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// PriceGapThreshold is the price difference in currency units above which two matches are flagged
const PriceGapThreshold = 20.0

// overallBonusFactor scales how much an overall score above its threshold adds to confidence
const overallBonusFactor = 2.0

// Detector finds duplicate candidates for a target event
type Detector struct {
	logger ectologger.Logger
	scorer *SimilarityScorer
}

// NewDetector creates a new duplicate detector
func NewDetector(logger ectologger.Logger, scorer *SimilarityScorer) *Detector {
	return &Detector{
		logger: logger,
		scorer: scorer,
	}
}

// Scorer returns the similarity scorer used by the detector
func (d *Detector) Scorer() *SimilarityScorer {
	return d.scorer
}

// FindMatches scores every candidate against the target and returns those whose overall
// score clears the overall threshold, ordered by descending confidence.
func (d *Detector) FindMatches(ctx context.Context, target *models.EventRecord, candidates []*models.EventRecord) []models.MatchResult {
	ctx, span := tracing.StartSpan(ctx, "matching.Detector.FindMatches")
	defer span.End()

	log := d.logger.WithContext(ctx).WithFields(map[string]any{
		"target_id":  target.ID,
		"candidates": len(candidates),
	})

	config := d.scorer.Config()
	targetFP := fingerprint.Build(target)

	matches := make([]models.MatchResult, 0)
	for _, candidate := range candidates {
		if candidate == nil || candidate == target {
			continue
		}
		if target.ID != "" && candidate.ID == target.ID {
			continue
		}

		candidateFP := fingerprint.Build(candidate)
		match, ok := d.Evaluate(config, target.ID, targetFP, candidate, candidateFP)
		if !ok {
			continue
		}
		matches = append(matches, match)
	}

	SortMatches(matches)

	if limit := config.Performance.MaxCandidates; limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	log.WithField("matches", len(matches)).Debug("Scored candidates")

	return matches
}

// Evaluate scores one fingerprint pair and builds its match result.
// It returns false when the overall score is below the overall threshold.
func (d *Detector) Evaluate(
	config models.DedupConfig,
	targetID string,
	targetFP *fingerprint.Fingerprint,
	candidate *models.EventRecord,
	candidateFP *fingerprint.Fingerprint,
) (models.MatchResult, bool) {
	score := d.scorer.Score(targetFP, candidateFP)
	if score.Overall < config.Thresholds.Overall {
		return models.MatchResult{}, false
	}

	return models.MatchResult{
		TargetID:    targetID,
		Candidate:   candidate,
		Score:       score,
		Confidence:  Confidence(score, config.Thresholds),
		Reasons:     Reasons(score, config.Thresholds),
		RiskFactors: RiskFactors(targetFP, candidateFP),
	}, true
}

// CheckForDuplicates classifies the target as a duplicate when at least one match reaches
// the auto-merge confidence threshold.
func (d *Detector) CheckForDuplicates(ctx context.Context, target *models.EventRecord, candidates []*models.EventRecord) *models.DuplicateCheckResult {
	ctx, span := tracing.StartSpan(ctx, "matching.Detector.CheckForDuplicates")
	defer span.End()

	config := d.scorer.Config()
	matches := d.FindMatches(ctx, target, candidates)

	highConfidence := ectolinq.Filter(matches, func(m models.MatchResult) bool {
		return m.Confidence >= config.Quality.AutoMergeThreshold
	})

	result := &models.DuplicateCheckResult{
		TargetID: target.ID,
		Matches:  matches,
	}

	switch {
	case len(highConfidence) == 0 && len(matches) == 0:
		result.Recommendation = "No duplicates found"
	case len(highConfidence) == 0:
		result.Recommendation = fmt.Sprintf("%d possible duplicate(s) below the auto-merge threshold; review manually", len(matches))
	case len(highConfidence) == 1:
		result.Recommendation = fmt.Sprintf("High-confidence duplicate of %s; safe to merge", highConfidence[0].Candidate.ID)
	default:
		result.Recommendation = fmt.Sprintf("%d high-confidence duplicates; merge into %s and review the cluster", len(highConfidence), highConfidence[0].Candidate.ID)
	}

	if len(highConfidence) > 0 {
		result.IsDuplicate = true
		result.PrimaryEventID = highConfidence[0].Candidate.ID
		result.DuplicateIDs = ectolinq.Map(highConfidence, func(m models.MatchResult) string {
			return m.Candidate.ID
		})
		metrics.RecordDuplicates(len(highConfidence))
	}

	d.logger.WithContext(ctx).WithFields(map[string]any{
		"target_id":       target.ID,
		"is_duplicate":    result.IsDuplicate,
		"matches":         len(matches),
		"high_confidence": len(highConfidence),
	}).Debug("Checked for duplicates")

	return result
}

// Confidence derives match certainty from the share of dimension thresholds met plus a bonus
// for how far the overall score exceeds its own threshold.
func Confidence(score models.SimilarityScore, thresholds models.Thresholds) float64 {
	met := 0
	for _, dim := range models.Dimensions {
		if score.Dimension(dim) >= thresholds.Dimension(dim) {
			met++
		}
	}

	confidence := float64(met) / float64(len(models.Dimensions))
	if excess := score.Overall - thresholds.Overall; excess > 0 {
		confidence += overallBonusFactor * excess
	}
	return math.Min(1, confidence)
}

// Reasons describes every dimension whose threshold was met
func Reasons(score models.SimilarityScore, thresholds models.Thresholds) []string {
	reasons := make([]string, 0, len(models.Dimensions))
	for _, dim := range models.Dimensions {
		value := score.Dimension(dim)
		if value < thresholds.Dimension(dim) {
			continue
		}
		reasons = append(reasons, fmt.Sprintf("%s similarity %d%%", dimensionLabel(dim), int(math.Round(value*100))))
	}
	return reasons
}

// RiskFactors lists signals that argue against merging despite a high score
func RiskFactors(a, b *fingerprint.Fingerprint) []string {
	risks := make([]string, 0)

	if a.HasDate() && a.DateKey == b.DateKey &&
		a.TimeBucket != fingerprint.BucketUnknown && b.TimeBucket != fingerprint.BucketUnknown &&
		a.TimeBucket != b.TimeBucket {
		risks = append(risks, fmt.Sprintf("Same date but different time of day (%s vs %s)", a.TimeBucket, b.TimeBucket))
	}

	if a.HasPrice && b.HasPrice {
		gap := math.Max(math.Abs(a.PriceMin-b.PriceMin), math.Abs(a.PriceMax-b.PriceMax))
		if gap > PriceGapThreshold {
			risks = append(risks, fmt.Sprintf("Price difference of %.2f", gap))
		}
	}

	if a.Category != "" && b.Category != "" && a.Category != b.Category {
		risks = append(risks, fmt.Sprintf("Different categories (%s vs %s)", a.Category, b.Category))
	}

	return risks
}

// SortMatches orders matches by descending confidence, then descending overall score
func SortMatches(matches []models.MatchResult) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Confidence != matches[j].Confidence {
			return matches[i].Confidence > matches[j].Confidence
		}
		return matches[i].Score.Overall > matches[j].Score.Overall
	})
}

func dimensionLabel(dim string) string {
	switch dim {
	case models.DimensionTitle:
		return "Title"
	case models.DimensionVenue:
		return "Venue"
	case models.DimensionLocation:
		return "Location"
	case models.DimensionDate:
		return "Date"
	case models.DimensionSemantic:
		return "Semantic"
	default:
		return dim
	}
}
