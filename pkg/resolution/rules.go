package resolution

import (
	"fmt"
	"sync"

	"github.com/Ramsey-B/clover/pkg/models"
)

// HighPriority is the rule priority from which quality spread forces manual review
const HighPriority = 8

// DefaultRule applies to fields without a configured rule
var DefaultRule = models.ConflictRule{
	Strategy: models.ConflictStrategyPrimaryWins,
	Priority: 5,
}

// DefaultRules returns the built-in per-field conflict rules
func DefaultRules() map[string]models.ConflictRule {
	return map[string]models.ConflictRule{
		models.FieldTitle: {
			Strategy: models.ConflictStrategyHighestQuality,
			Priority: 9,
			Conditions: models.RuleConditions{
				QualityThreshold: 0.7,
			},
		},
		models.FieldDescription: {
			Strategy: models.ConflictStrategyMergeValues,
			Priority: 6,
		},
		models.FieldVenueName: {
			Strategy: models.ConflictStrategyHighestQuality,
			Priority: 8,
			Conditions: models.RuleConditions{
				QualityThreshold: 0.7,
			},
		},
		models.FieldAddress: {
			Strategy: models.ConflictStrategyMostComplete,
			Priority: 7,
		},
		models.FieldLatitude: {
			Strategy: models.ConflictStrategyHighestQuality,
			Priority: 7,
		},
		models.FieldLongitude: {
			Strategy: models.ConflictStrategyHighestQuality,
			Priority: 7,
		},
		models.FieldStartTime: {
			Strategy: models.ConflictStrategyPrimaryWins,
			Priority: 10,
		},
		models.FieldEndTime: {
			Strategy: models.ConflictStrategyPrimaryWins,
			Priority: 8,
		},
		models.FieldPriceMin: {
			Strategy: models.ConflictStrategyLatestWins,
			Priority: 6,
		},
		models.FieldPriceMax: {
			Strategy: models.ConflictStrategyLatestWins,
			Priority: 6,
		},
		models.FieldTags: {
			Strategy: models.ConflictStrategyMergeValues,
			Priority: 4,
		},
		models.FieldImageURLs: {
			Strategy: models.ConflictStrategyMergeValues,
			Priority: 3,
		},
		models.FieldTicketURL: {
			Strategy: models.ConflictStrategyHighestQuality,
			Priority: 6,
		},
		models.FieldInterestCount: {
			Strategy: models.ConflictStrategyMergeValues,
			Priority: 2,
		},
		models.FieldMetadata: {
			Strategy: models.ConflictStrategyMostComplete,
			Priority: 2,
		},
	}
}

// RuleSet maps field names to conflict rules with a fallback for unconfigured fields
type RuleSet struct {
	mu       sync.RWMutex
	rules    map[string]models.ConflictRule
	fallback models.ConflictRule
}

// NewRuleSet creates a rule set from the given rules. A nil map uses DefaultRules.
func NewRuleSet(rules map[string]models.ConflictRule) *RuleSet {
	if rules == nil {
		rules = DefaultRules()
	}
	copied := make(map[string]models.ConflictRule, len(rules))
	for field, rule := range rules {
		copied[field] = rule
	}
	return &RuleSet{
		rules:    copied,
		fallback: DefaultRule,
	}
}

// Set installs the rule for a field
func (s *RuleSet) Set(field string, rule models.ConflictRule) error {
	if field == "" {
		return fmt.Errorf("field name is required")
	}
	if !rule.Strategy.Valid() {
		return fmt.Errorf("unknown conflict strategy %q", rule.Strategy)
	}
	if err := validate.Struct(rule); err != nil {
		return fmt.Errorf("invalid conflict rule for %s: %w", field, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[field] = rule
	return nil
}

// SetFallback replaces the rule used for fields without a configured rule
func (s *RuleSet) SetFallback(rule models.ConflictRule) error {
	if !rule.Strategy.Valid() {
		return fmt.Errorf("unknown conflict strategy %q", rule.Strategy)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback = rule
	return nil
}

// Rule returns the rule for a field, or the fallback
func (s *RuleSet) Rule(field string) models.ConflictRule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rule, ok := s.rules[field]; ok {
		return rule
	}
	return s.fallback
}

// All returns a copy of every configured rule
func (s *RuleSet) All() map[string]models.ConflictRule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]models.ConflictRule, len(s.rules))
	for field, rule := range s.rules {
		out[field] = rule
	}
	return out
}
