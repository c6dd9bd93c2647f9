package resolution

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Manual review triggers
const (
	// ReviewConfidenceThreshold is the confidence below which a resolution needs review
	ReviewConfidenceThreshold = 0.6
	// qualitySpreadThreshold is the quality std-dev above which high-priority fields need review
	qualitySpreadThreshold = 0.3
	// highQualityThreshold marks values that compete as equally trustworthy
	highQualityThreshold = 0.8
)

// Resolver resolves disagreeing field values using per-field rules and source reliability
type Resolver struct {
	logger  ectologger.Logger
	sources *SourceRegistry
	rules   *RuleSet
	history *History

	forceReview atomic.Bool
}

// NewResolver creates a new conflict resolver
func NewResolver(logger ectologger.Logger, sources *SourceRegistry, rules *RuleSet, history *History) *Resolver {
	if sources == nil {
		sources = NewSourceRegistry()
	}
	if rules == nil {
		rules = NewRuleSet(nil)
	}
	if history == nil {
		history = NewHistory(HistoryCapacity)
	}
	return &Resolver{
		logger:  logger,
		sources: sources,
		rules:   rules,
		history: history,
	}
}

// Sources returns the source registry
func (r *Resolver) Sources() *SourceRegistry {
	return r.sources
}

// Rules returns the rule set
func (r *Resolver) Rules() *RuleSet {
	return r.rules
}

// History returns the resolution history
func (r *Resolver) History() *History {
	return r.history
}

// SetForceManualReview flags every multi-value resolution for review when enabled
func (r *Resolver) SetForceManualReview(force bool) {
	r.forceReview.Store(force)
}

// ResolveField resolves a field with its configured rule
func (r *Resolver) ResolveField(ctx context.Context, field string, values []FieldValue) models.ConflictResolution {
	return r.resolve(ctx, field, values, r.rules.Rule(field))
}

// ResolveFieldWithStrategy resolves a field with the given strategy in place of the rule's own,
// keeping the rule's priority and conditions.
func (r *Resolver) ResolveFieldWithStrategy(ctx context.Context, field string, values []FieldValue, strategy models.ConflictStrategy) models.ConflictResolution {
	rule := r.rules.Rule(field)
	if strategy.Valid() {
		rule.Strategy = strategy
	}
	return r.resolve(ctx, field, values, rule)
}

func (r *Resolver) resolve(ctx context.Context, field string, values []FieldValue, rule models.ConflictRule) models.ConflictResolution {
	ctx, span := tracing.StartSpan(ctx, "resolution.Resolver.ResolveField")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"field":    field,
		"strategy": rule.Strategy,
		"values":   len(values),
	})

	candidates := r.score(field, values)

	resolution := models.ConflictResolution{
		Field:    field,
		Values:   candidates,
		Strategy: rule.Strategy,
	}

	switch len(candidates) {
	case 0:
		// nothing to resolve; a null result is not a review item
	case 1:
		only := candidates[0]
		resolution.ResolvedValue = only.Value
		resolution.ResolvedSource = only.SourceName
		resolution.ResolvedRecordID = only.RecordID
		resolution.Confidence = only.Confidence
		if only.Confidence < ReviewConfidenceThreshold {
			resolution.RequiresManualReview = true
			resolution.ReviewReasons = append(resolution.ReviewReasons,
				fmt.Sprintf("single value confidence %.2f below %.2f", only.Confidence, ReviewConfidenceThreshold))
		}
	default:
		resolve, ok := strategies[rule.Strategy]
		if !ok {
			resolve = strategies[DefaultRule.Strategy]
			resolution.Strategy = DefaultRule.Strategy
		}
		out := resolve(field, candidates, rule)

		resolution.ResolvedValue = out.value
		resolution.ResolvedSource = out.source
		resolution.ResolvedRecordID = out.recordID
		resolution.Confidence = out.confidence
		resolution.RequiresManualReview = out.review
		resolution.ReviewReasons = append(resolution.ReviewReasons, out.reasons...)

		for _, reason := range r.reviewReasons(candidates, rule, out.confidence) {
			resolution.RequiresManualReview = true
			resolution.ReviewReasons = append(resolution.ReviewReasons, reason)
		}
	}

	r.history.Add(resolution)
	metrics.RecordResolution(field, string(resolution.Strategy), resolution.RequiresManualReview)

	if resolution.RequiresManualReview {
		log.WithField("reasons", resolution.ReviewReasons).Debug("Field flagged for manual review")
	}

	return resolution
}

// score discards empty or malformed values and attaches quality, confidence and timestamps
func (r *Resolver) score(field string, values []FieldValue) []models.CandidateValue {
	candidates := make([]models.CandidateValue, 0, len(values))
	for _, v := range values {
		value, ok := normalizeValue(field, v.Value)
		if !ok {
			continue
		}

		quality := ValueQuality(field, value)
		timestamp := v.UpdatedAt
		if timestamp.IsZero() {
			timestamp = r.sources.LastUpdated(v.SourceName)
		}

		candidates = append(candidates, models.CandidateValue{
			Value:      value,
			SourceName: v.SourceName,
			RecordID:   v.RecordID,
			Quality:    quality,
			Confidence: ValueConfidence(field, value, r.sources.Reliability(v.SourceName), quality),
			Timestamp:  timestamp,
		})
	}
	return candidates
}

// reviewReasons lists the conditions that force a multi-value resolution into manual review
func (r *Resolver) reviewReasons(candidates []models.CandidateValue, rule models.ConflictRule, confidence float64) []string {
	reasons := make([]string, 0)

	if confidence < ReviewConfidenceThreshold {
		reasons = append(reasons, fmt.Sprintf("confidence %.2f below %.2f", confidence, ReviewConfidenceThreshold))
	}

	if rule.Priority >= HighPriority && len(candidates) > 2 {
		qualities := make([]float64, len(candidates))
		for i, c := range candidates {
			qualities[i] = c.Quality
		}
		if spread := stdDev(qualities); spread > qualitySpreadThreshold {
			reasons = append(reasons, fmt.Sprintf("high-priority field with quality spread %.2f", spread))
		}
	}

	highQuality := make([]models.CandidateValue, 0, len(candidates))
	for _, c := range candidates {
		if c.Quality > highQualityThreshold {
			highQuality = append(highQuality, c)
		}
	}
	if len(highQuality) > 1 {
		for _, c := range highQuality[1:] {
			if !sameValue(c.Value, highQuality[0].Value) {
				reasons = append(reasons, "multiple high-quality values disagree")
				break
			}
		}
	}

	if r.forceReview.Load() {
		reasons = append(reasons, "manual review forced by configuration")
	}

	return reasons
}
