package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Analytics thresholds
const (
	// SuccessConfidence is the confidence above which a merge counts as successful
	SuccessConfidence = 0.8
	// ConflictConfidence is the change confidence below which a field change counts as a conflict
	ConflictConfidence = 0.6
)

const dayLayout = "2006-01-02"

// DailyCount is the number of merges on one day
type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// StrategyStats summarizes the merges made with one strategy
type StrategyStats struct {
	Count                  int     `json:"count"`
	MeanConfidence         float64 `json:"mean_confidence"`
	MeanQualityImprovement float64 `json:"mean_quality_improvement"`
	SuccessRate            float64 `json:"success_rate"`
}

// FieldImpact summarizes how merges changed one field
type FieldImpact struct {
	ChangeFrequency        int     `json:"change_frequency"`
	QualityImprovementRate float64 `json:"quality_improvement_rate"`
	ConflictRate           float64 `json:"conflict_rate"`
}

// TrendPoint is one day of the merge trend series
type TrendPoint struct {
	Date                   string  `json:"date"`
	Merges                 int     `json:"merges"`
	MeanConfidence         float64 `json:"mean_confidence"`
	MeanQualityImprovement float64 `json:"mean_quality_improvement"`
	LowConfidenceChanges   int     `json:"low_confidence_changes"`
}

// Report is the analytics over a window of the ledger
type Report struct {
	From                  time.Time                `json:"from,omitempty"`
	To                    time.Time                `json:"to,omitempty"`
	TotalMerges           int                      `json:"total_merges"`
	MergeFrequency        []DailyCount             `json:"merge_frequency"`
	StrategyEffectiveness map[string]StrategyStats `json:"strategy_effectiveness"`
	FieldImpact           map[string]FieldImpact   `json:"field_impact"`
	Trends                []TrendPoint             `json:"trends"`
}

// Analytics computes a report over entries recorded in [from, to). Zero bounds are open.
func (l *Ledger) Analytics(ctx context.Context, from, to time.Time) Report {
	_, span := tracing.StartSpan(ctx, "ledger.Ledger.Analytics")
	defer span.End()

	entries := window(l.Snapshot(), from, to)

	return Report{
		From:                  from,
		To:                    to,
		TotalMerges:           len(entries),
		MergeFrequency:        mergeFrequency(entries),
		StrategyEffectiveness: strategyEffectiveness(entries),
		FieldImpact:           fieldImpact(entries),
		Trends:                trends(entries),
	}
}

func window(entries []models.MergeHistory, from, to time.Time) []models.MergeHistory {
	out := make([]models.MergeHistory, 0, len(entries))
	for _, entry := range entries {
		if !from.IsZero() && entry.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && !entry.Timestamp.Before(to) {
			continue
		}
		out = append(out, entry)
	}
	return out
}

func mergeFrequency(entries []models.MergeHistory) []DailyCount {
	counts := make(map[string]int)
	for _, entry := range entries {
		counts[entry.Timestamp.UTC().Format(dayLayout)]++
	}

	out := make([]DailyCount, 0, len(counts))
	for day, count := range counts {
		out = append(out, DailyCount{Date: day, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func strategyEffectiveness(entries []models.MergeHistory) map[string]StrategyStats {
	type acc struct {
		count      int
		confidence float64
		quality    float64
		successes  int
	}
	accs := make(map[string]*acc)
	for _, entry := range entries {
		a, ok := accs[entry.Strategy]
		if !ok {
			a = &acc{}
			accs[entry.Strategy] = a
		}
		a.count++
		a.confidence += entry.Confidence
		a.quality += entry.QualityImprovement
		if entry.Confidence > SuccessConfidence {
			a.successes++
		}
	}

	out := make(map[string]StrategyStats, len(accs))
	for strategy, a := range accs {
		n := float64(a.count)
		out[strategy] = StrategyStats{
			Count:                  a.count,
			MeanConfidence:         a.confidence / n,
			MeanQualityImprovement: a.quality / n,
			SuccessRate:            float64(a.successes) / n,
		}
	}
	return out
}

func fieldImpact(entries []models.MergeHistory) map[string]FieldImpact {
	type acc struct {
		changes   int
		improved  int
		conflicts int
	}
	accs := make(map[string]*acc)
	for _, entry := range entries {
		for _, change := range entry.Changes {
			if !changed(change) {
				continue
			}
			a, ok := accs[change.Field]
			if !ok {
				a = &acc{}
				accs[change.Field] = a
			}
			a.changes++
			if entry.QualityImprovement > 0 {
				a.improved++
			}
			if change.Confidence < ConflictConfidence {
				a.conflicts++
			}
		}
	}

	out := make(map[string]FieldImpact, len(accs))
	for field, a := range accs {
		n := float64(a.changes)
		out[field] = FieldImpact{
			ChangeFrequency:        a.changes,
			QualityImprovementRate: float64(a.improved) / n,
			ConflictRate:           float64(a.conflicts) / n,
		}
	}
	return out
}

func trends(entries []models.MergeHistory) []TrendPoint {
	byDay := make(map[string]*TrendPoint)
	for _, entry := range entries {
		day := entry.Timestamp.UTC().Format(dayLayout)
		p, ok := byDay[day]
		if !ok {
			p = &TrendPoint{Date: day}
			byDay[day] = p
		}
		p.Merges++
		p.MeanConfidence += entry.Confidence
		p.MeanQualityImprovement += entry.QualityImprovement
		for _, change := range entry.Changes {
			if change.Confidence < ConflictConfidence {
				p.LowConfidenceChanges++
			}
		}
	}

	out := make([]TrendPoint, 0, len(byDay))
	for _, p := range byDay {
		p.MeanConfidence /= float64(p.Merges)
		p.MeanQualityImprovement /= float64(p.Merges)
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}
