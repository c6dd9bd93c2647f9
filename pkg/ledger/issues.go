package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Quality issue detection settings
const (
	// IssueWindow is the trailing window inspected for quality issues
	IssueWindow = 7 * 24 * time.Hour
	// LowConfidenceShare is the share of low-confidence merges that raises an issue
	LowConfidenceShare = 0.2
	// MinStrategySuccessRate is the success rate below which a strategy is flagged
	MinStrategySuccessRate = 0.7
	// MinStrategyUses is how often a strategy must be used before it can be flagged
	MinStrategyUses = 5
)

// IssueType identifies a kind of merge quality problem
type IssueType string

const (
	IssueLowConfidence         IssueType = "low_confidence_merges"
	IssueNegativeQuality       IssueType = "negative_quality_improvement"
	IssueStrategyUnderperforms IssueType = "strategy_underperforming"
)

// Severity levels
const (
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// QualityIssue is one detected problem in recent merges
type QualityIssue struct {
	Type       IssueType `json:"type"`
	Severity   string    `json:"severity"`
	Message    string    `json:"message"`
	Strategy   string    `json:"strategy,omitempty"`
	HistoryIDs []string  `json:"history_ids,omitempty"`
	Rate       float64   `json:"rate,omitempty"`
}

// QualityIssues inspects merges from the trailing IssueWindow
func (l *Ledger) QualityIssues(ctx context.Context) []QualityIssue {
	_, span := tracing.StartSpan(ctx, "ledger.Ledger.QualityIssues")
	defer span.End()

	now := l.now()
	entries := window(l.Snapshot(), now.Add(-IssueWindow), time.Time{})
	return detectIssues(entries)
}

func detectIssues(entries []models.MergeHistory) []QualityIssue {
	issues := make([]QualityIssue, 0)
	if len(entries) == 0 {
		return issues
	}

	lowIDs := make([]string, 0)
	negativeIDs := make([]string, 0)
	for _, entry := range entries {
		if entry.Confidence < ConflictConfidence {
			lowIDs = append(lowIDs, entry.ID)
		}
		if entry.QualityImprovement < 0 {
			negativeIDs = append(negativeIDs, entry.ID)
		}
	}

	if share := float64(len(lowIDs)) / float64(len(entries)); share > LowConfidenceShare {
		issues = append(issues, QualityIssue{
			Type:       IssueLowConfidence,
			Severity:   SeverityWarning,
			Message:    fmt.Sprintf("%.0f%% of recent merges had confidence below %.1f", share*100, ConflictConfidence),
			HistoryIDs: lowIDs,
			Rate:       share,
		})
	}

	if len(negativeIDs) > 0 {
		issues = append(issues, QualityIssue{
			Type:       IssueNegativeQuality,
			Severity:   SeverityError,
			Message:    fmt.Sprintf("%d recent merge(s) reduced record completeness", len(negativeIDs)),
			HistoryIDs: negativeIDs,
		})
	}

	stats := strategyEffectiveness(entries)
	strategies := make([]string, 0, len(stats))
	for strategy := range stats {
		strategies = append(strategies, strategy)
	}
	sort.Strings(strategies)

	for _, strategy := range strategies {
		s := stats[strategy]
		if s.Count < MinStrategyUses || s.SuccessRate >= MinStrategySuccessRate {
			continue
		}
		issues = append(issues, QualityIssue{
			Type:     IssueStrategyUnderperforms,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("strategy %s succeeded in %.0f%% of %d merges", strategy, s.SuccessRate*100, s.Count),
			Strategy: strategy,
			Rate:     s.SuccessRate,
		})
	}

	return issues
}
