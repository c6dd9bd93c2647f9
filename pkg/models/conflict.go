package models

import (
	"fmt"
	"time"
)

// ConflictStrategy defines how disagreeing values for a field are resolved
type ConflictStrategy string

const (
	// ConflictStrategyPrimaryWins prefers the value offered by the primary or a manual source
	ConflictStrategyPrimaryWins ConflictStrategy = "primary_wins"
	// ConflictStrategyLatestWins prefers the most recently updated value
	ConflictStrategyLatestWins ConflictStrategy = "latest_wins"
	// ConflictStrategyMostComplete prefers the most complete value
	ConflictStrategyMostComplete ConflictStrategy = "most_complete"
	// ConflictStrategyHighestQuality prefers the value with the best quality score
	ConflictStrategyHighestQuality ConflictStrategy = "highest_quality"
	// ConflictStrategyMergeValues aggregates values (union, sum, longest)
	ConflictStrategyMergeValues ConflictStrategy = "merge_values"
	// ConflictStrategyManualReview takes the most confident value and always flags it for review
	ConflictStrategyManualReview ConflictStrategy = "manual_review"
)

// ConflictStrategies lists every supported strategy.
var ConflictStrategies = []ConflictStrategy{
	ConflictStrategyPrimaryWins,
	ConflictStrategyLatestWins,
	ConflictStrategyMostComplete,
	ConflictStrategyHighestQuality,
	ConflictStrategyMergeValues,
	ConflictStrategyManualReview,
}

// Valid reports whether s is a known strategy.
func (s ConflictStrategy) Valid() bool {
	for _, known := range ConflictStrategies {
		if s == known {
			return true
		}
	}
	return false
}

// ParseConflictStrategy converts a string to a ConflictStrategy.
func ParseConflictStrategy(s string) (ConflictStrategy, error) {
	strategy := ConflictStrategy(s)
	if !strategy.Valid() {
		return "", fmt.Errorf("unknown conflict strategy %q", s)
	}
	return strategy, nil
}

// Well-known source names
const (
	SourcePrimary = "primary"
	SourceManual  = "manual"
	// SourceMerged marks a value aggregated from several candidates
	SourceMerged = "merged"
)

// DataSource is a registry entry describing how far a data origin can be trusted.
type DataSource struct {
	Name        string    `json:"name" validate:"required"`
	Reliability float64   `json:"reliability" validate:"gte=0,lte=1"`
	LastUpdated time.Time `json:"last_updated"`
	DataQuality float64   `json:"data_quality" validate:"gte=0,lte=1"`
}

// RuleConditions refine how a conflict rule picks its value.
type RuleConditions struct {
	PreferredSources   []string `json:"preferred_sources,omitempty" yaml:"preferred_sources,omitempty"`
	QualityThreshold   float64  `json:"quality_threshold,omitempty" yaml:"quality_threshold,omitempty"`
	RecencyWeight      float64  `json:"recency_weight,omitempty" yaml:"recency_weight,omitempty"`
	CompletenessWeight float64  `json:"completeness_weight,omitempty" yaml:"completeness_weight,omitempty"`
}

// ConflictRule is the per-field resolution policy.
type ConflictRule struct {
	Strategy   ConflictStrategy `json:"strategy" yaml:"strategy" validate:"required"`
	Priority   int              `json:"priority" yaml:"priority" validate:"gte=0,lte=10"`
	Conditions RuleConditions   `json:"conditions" yaml:"conditions"`
}

// CandidateValue is one competing value for a field with its scoring inputs.
type CandidateValue struct {
	Value      any       `json:"value"`
	SourceName string    `json:"source_name"`
	RecordID   string    `json:"record_id,omitempty"`
	Confidence float64   `json:"confidence"`
	Quality    float64   `json:"quality"`
	Timestamp  time.Time `json:"timestamp"`
}

// ConflictResolution is the outcome of resolving a single field.
type ConflictResolution struct {
	Field                string           `json:"field"`
	Values               []CandidateValue `json:"values"`
	ResolvedValue        any              `json:"resolved_value"`
	ResolvedSource       string           `json:"resolved_source,omitempty"`
	ResolvedRecordID     string           `json:"resolved_record_id,omitempty"`
	Strategy             ConflictStrategy `json:"strategy"`
	Confidence           float64          `json:"confidence"`
	RequiresManualReview bool             `json:"requires_manual_review"`
	ReviewReasons        []string         `json:"review_reasons,omitempty"`
}
