package resolution

import (
	"math"
	"strings"

	"github.com/Ramsey-B/clover/pkg/models"
)

// mergedConfidenceCap bounds the confidence of aggregated values
const mergedConfidenceCap = 0.9

// outcome is what a strategy picked for a field
type outcome struct {
	value      any
	source     string
	recordID   string
	confidence float64
	review     bool
	reasons    []string
}

// strategyFunc resolves a field from scored candidates. Candidates are never empty.
type strategyFunc func(field string, candidates []models.CandidateValue, rule models.ConflictRule) outcome

// strategies dispatches each conflict strategy to its resolver
var strategies = map[models.ConflictStrategy]strategyFunc{
	models.ConflictStrategyPrimaryWins:    primaryWins,
	models.ConflictStrategyLatestWins:     latestWins,
	models.ConflictStrategyMostComplete:   mostComplete,
	models.ConflictStrategyHighestQuality: highestQuality,
	models.ConflictStrategyMergeValues:    mergeValues,
	models.ConflictStrategyManualReview:   manualReview,
}

func pick(c models.CandidateValue) outcome {
	return outcome{
		value:      c.Value,
		source:     c.SourceName,
		recordID:   c.RecordID,
		confidence: c.Confidence,
	}
}

// best returns the candidate preferred by better; earlier candidates win ties
func best(candidates []models.CandidateValue, better func(a, b models.CandidateValue) bool) models.CandidateValue {
	winner := candidates[0]
	for _, c := range candidates[1:] {
		if better(c, winner) {
			winner = c
		}
	}
	return winner
}

func byConfidence(a, b models.CandidateValue) bool {
	return a.Confidence > b.Confidence
}

func byQuality(a, b models.CandidateValue) bool {
	if a.Quality != b.Quality {
		return a.Quality > b.Quality
	}
	return a.Confidence > b.Confidence
}

func primaryWins(_ string, candidates []models.CandidateValue, _ models.ConflictRule) outcome {
	preferred := make([]models.CandidateValue, 0, len(candidates))
	for _, c := range candidates {
		if c.SourceName == models.SourcePrimary || c.SourceName == models.SourceManual {
			preferred = append(preferred, c)
		}
	}
	if len(preferred) > 0 {
		return pick(best(preferred, byConfidence))
	}
	return pick(best(candidates, byConfidence))
}

func latestWins(_ string, candidates []models.CandidateValue, _ models.ConflictRule) outcome {
	return pick(best(candidates, func(a, b models.CandidateValue) bool {
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		return a.Confidence > b.Confidence
	}))
}

func mostComplete(_ string, candidates []models.CandidateValue, _ models.ConflictRule) outcome {
	maxLen := 0
	for _, c := range candidates {
		maxLen = max(maxLen, valueLength(c.Value))
	}

	completeness := make([]float64, len(candidates))
	for i, c := range candidates {
		completeness[i] = Completeness(c.Value, maxLen)
	}

	winner := 0
	for i := 1; i < len(candidates); i++ {
		ci, cw := completeness[i], completeness[winner]
		if ci > cw || (ci == cw && candidates[i].Confidence > candidates[winner].Confidence) {
			winner = i
		}
	}
	return pick(candidates[winner])
}

func highestQuality(_ string, candidates []models.CandidateValue, rule models.ConflictRule) outcome {
	for _, source := range rule.Conditions.PreferredSources {
		fromSource := make([]models.CandidateValue, 0, len(candidates))
		for _, c := range candidates {
			if c.SourceName == source && c.Quality >= rule.Conditions.QualityThreshold {
				fromSource = append(fromSource, c)
			}
		}
		if len(fromSource) > 0 {
			return pick(best(fromSource, byQuality))
		}
	}
	return pick(best(candidates, byQuality))
}

func mergeValues(field string, candidates []models.CandidateValue, rule models.ConflictRule) outcome {
	meanConfidence := 0.0
	for _, c := range candidates {
		meanConfidence += c.Confidence
	}
	meanConfidence = math.Min(mergedConfidenceCap, meanConfidence/float64(len(candidates)))

	switch field {
	case models.FieldTags, models.FieldImageURLs:
		return outcome{
			value:      unionStrings(candidates),
			source:     models.SourceMerged,
			confidence: meanConfidence,
		}
	case models.FieldInterestCount:
		total := 0
		for _, c := range candidates {
			if n, ok := models.ToFloat(c.Value); ok {
				total += int(n)
			}
		}
		return outcome{
			value:      total,
			source:     models.SourceMerged,
			confidence: meanConfidence,
		}
	case models.FieldDescription:
		longest := best(candidates, func(a, b models.CandidateValue) bool {
			return valueLength(a.Value) > valueLength(b.Value)
		})
		out := pick(longest)
		out.confidence = meanConfidence
		return out
	default:
		out := highestQuality(field, candidates, rule)
		out.confidence = meanConfidence
		return out
	}
}

func manualReview(_ string, candidates []models.CandidateValue, _ models.ConflictRule) outcome {
	out := pick(best(candidates, byConfidence))
	out.review = true
	out.reasons = []string{"rule requires manual review"}
	return out
}

// unionStrings unions string arrays case-insensitively, keeping the first spelling seen
func unionStrings(candidates []models.CandidateValue) []string {
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, c := range candidates {
		items, _ := c.Value.([]string)
		for _, item := range items {
			key := strings.ToLower(strings.TrimSpace(item))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, item)
		}
	}
	return out
}
