package ledger

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

type recordingArchiver struct {
	entries []models.MergeHistory
}

func (a *recordingArchiver) Archive(_ context.Context, entry models.MergeHistory) error {
	a.entries = append(a.entries, entry)
	return nil
}

func newTestLedger(now time.Time) *Ledger {
	l := New(ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}), nil)
	l.now = func() time.Time { return now }
	seq := 0
	l.newID = func() string {
		seq++
		return fmt.Sprintf("hist-%03d", seq)
	}
	return l
}

func ptr[T any](v T) *T {
	return &v
}

func testMerge(primaryID, dupID, strategy string, confidence float64) (*models.MergeDecision, *models.EventRecord, *models.EventRecord) {
	before := &models.EventRecord{ID: primaryID, Title: "Jazz Night", VenueName: "Blue Note"}
	after := &models.EventRecord{ID: primaryID, Title: "Jazz Night at Blue Note", VenueName: "Blue Note", PriceMin: ptr(25.0)}
	decision := &models.MergeDecision{
		PrimaryID:    primaryID,
		DuplicateIDs: []string{dupID},
		Strategy:     strategy,
		Confidence:   confidence,
		Resolutions: []models.ConflictResolution{
			{Field: models.FieldTitle, ResolvedValue: "Jazz Night at Blue Note", ResolvedRecordID: dupID, ResolvedSource: "tickets", Confidence: confidence},
			{Field: models.FieldVenueName, ResolvedValue: "Blue Note", ResolvedRecordID: primaryID, ResolvedSource: models.SourcePrimary, Confidence: 0.9},
			{Field: models.FieldPriceMin, ResolvedValue: 25.0, ResolvedRecordID: dupID, ResolvedSource: "tickets", Confidence: 0.62},
			{Field: models.FieldDescription},
		},
	}
	return decision, before, after
}

func TestRecordMerge(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	l := newTestLedger(now)
	archiver := &recordingArchiver{}
	l.SetArchiver(archiver)

	decision, before, after := testMerge("evt-a", "evt-b", models.MergeStrategyAutomatic, 0.9)
	id, err := l.RecordMerge(context.Background(), decision, before, after, "", 12, 0.1)
	require.NoError(t, err)

	entry, ok := l.Get(id)
	require.True(t, ok)
	assert.Equal(t, DefaultOperator, entry.Operator)
	assert.Equal(t, now, entry.Timestamp)
	require.Len(t, entry.Changes, 3)

	sources := map[string]models.ChangeSource{}
	for _, c := range entry.Changes {
		sources[c.Field] = c.Source
	}
	assert.Equal(t, models.ChangeSourceDuplicate, sources[models.FieldTitle])
	assert.Equal(t, models.ChangeSourcePrimary, sources[models.FieldVenueName])
	assert.Equal(t, models.ChangeSourceEnhanced, sources[models.FieldPriceMin])

	assert.Len(t, archiver.entries, 1)

	t.Run("indexes", func(t *testing.T) {
		primary, ok := l.MergedInto("evt-b")
		require.True(t, ok)
		assert.Equal(t, "evt-a", primary)
		assert.Equal(t, []string{"evt-b"}, l.MergedFrom("evt-a"))

		_, ok = l.MergedInto("evt-zzz")
		assert.False(t, ok)
	})

	t.Run("follows chained merges", func(t *testing.T) {
		decision, before, after := testMerge("evt-c", "evt-a", models.MergeStrategyAutomatic, 0.9)
		_, err := l.RecordMerge(context.Background(), decision, before, after, "alice", 5, 0)
		require.NoError(t, err)

		primary, ok := l.MergedInto("evt-b")
		require.True(t, ok)
		assert.Equal(t, "evt-c", primary)
	})

	t.Run("rejects merges without duplicates", func(t *testing.T) {
		_, err := l.RecordMerge(context.Background(), &models.MergeDecision{PrimaryID: "x"}, nil, &models.EventRecord{ID: "x"}, "", 0, 0)
		assert.ErrorIs(t, err, ErrInvalidMerge)
	})
}

func TestLedger_AppendOnly(t *testing.T) {
	l := newTestLedger(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))

	decision, before, after := testMerge("evt-a", "evt-b", models.MergeStrategyAutomatic, 0.9)
	firstID, err := l.RecordMerge(context.Background(), decision, before, after, "", 1, 0.1)
	require.NoError(t, err)
	first, _ := l.Get(firstID)

	snapshot := l.Snapshot()
	snapshot[0].Strategy = "tampered"
	snapshot[0].DuplicateIDs[0] = "tampered"

	for i := 0; i < 4; i++ {
		decision, before, after := testMerge(fmt.Sprintf("evt-%d", i), fmt.Sprintf("dup-%d", i), models.MergeStrategyAutomatic, 0.7)
		_, err := l.RecordMerge(context.Background(), decision, before, after, "", 1, 0)
		require.NoError(t, err)
	}

	assert.Equal(t, 5, l.Len())
	again, _ := l.Get(firstID)
	assert.Equal(t, first, again)
}

func TestLedger_EntriesAreIsolated(t *testing.T) {
	l := newTestLedger(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))

	before := &models.EventRecord{ID: "evt-a", Title: "Jazz Night"}
	after := &models.EventRecord{
		ID:       "evt-a",
		Title:    "Jazz Night",
		Tags:     []string{"jazz"},
		Metadata: map[string]any{"source": map[string]any{"site": "tickets"}},
	}
	decision := &models.MergeDecision{
		PrimaryID:    "evt-a",
		DuplicateIDs: []string{"evt-b"},
		Strategy:     models.MergeStrategyAutomatic,
		Confidence:   0.9,
		Resolutions: []models.ConflictResolution{
			{Field: models.FieldTags, ResolvedValue: []string{"jazz"}, ResolvedRecordID: "evt-b", ResolvedSource: "tickets", Confidence: 0.9},
			{Field: models.FieldMetadata, ResolvedValue: after.Metadata, ResolvedRecordID: "evt-b", ResolvedSource: "tickets", Confidence: 0.9},
		},
	}
	id, err := l.RecordMerge(context.Background(), decision, before, after, "", 1, 0.1)
	require.NoError(t, err)

	snapshot := l.Snapshot()
	require.Len(t, snapshot[0].Changes, 2)
	snapshot[0].Changes[0].After.([]string)[0] = "tampered"
	snapshot[0].Changes[1].After.(map[string]any)["source"].(map[string]any)["site"] = "tampered"

	got, ok := l.Get(id)
	require.True(t, ok)
	got.Changes[0].After.([]string)[0] = "tampered again"

	again, _ := l.Get(id)
	assert.Equal(t, []string{"jazz"}, again.Changes[0].After)
	assert.Equal(t, map[string]any{"source": map[string]any{"site": "tickets"}}, again.Changes[1].After)
}

func TestAnalytics(t *testing.T) {
	day1 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)
	l := newTestLedger(day1)
	ctx := context.Background()

	record := func(at time.Time, strategy string, confidence, quality float64) {
		l.now = func() time.Time { return at }
		decision, before, after := testMerge("p-"+at.String(), "d-"+at.String(), strategy, confidence)
		_, err := l.RecordMerge(ctx, decision, before, after, "", 3, quality)
		require.NoError(t, err)
	}

	record(day1, models.MergeStrategyAutomatic, 0.9, 0.2)
	record(day1.Add(time.Hour), models.MergeStrategyAutomatic, 0.7, 0.1)
	record(day2, string(models.ConflictStrategyMostComplete), 0.5, -0.1)

	report := l.Analytics(ctx, time.Time{}, time.Time{})

	assert.Equal(t, 3, report.TotalMerges)
	assert.Equal(t, []DailyCount{{Date: "2025-03-01", Count: 2}, {Date: "2025-03-02", Count: 1}}, report.MergeFrequency)

	auto := report.StrategyEffectiveness[models.MergeStrategyAutomatic]
	assert.Equal(t, 2, auto.Count)
	assert.InDelta(t, 0.8, auto.MeanConfidence, 1e-9)
	assert.InDelta(t, 0.15, auto.MeanQualityImprovement, 1e-9)
	assert.InDelta(t, 0.5, auto.SuccessRate, 1e-9)

	title := report.FieldImpact[models.FieldTitle]
	assert.Equal(t, 3, title.ChangeFrequency)
	assert.InDelta(t, 2.0/3.0, title.QualityImprovementRate, 1e-9)
	assert.InDelta(t, 1.0/3.0, title.ConflictRate, 1e-9)
	_, venueChanged := report.FieldImpact[models.FieldVenueName]
	assert.False(t, venueChanged, "unchanged fields have no impact")

	require.Len(t, report.Trends, 2)
	assert.Equal(t, 2, report.Trends[0].Merges)

	windowed := l.Analytics(ctx, day2, time.Time{})
	assert.Equal(t, 1, windowed.TotalMerges)
}

func TestQualityIssues(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	l := newTestLedger(now)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		decision, before, after := testMerge(fmt.Sprintf("p%d", i), fmt.Sprintf("d%d", i), string(models.ConflictStrategyLatestWins), 0.55)
		_, err := l.RecordMerge(ctx, decision, before, after, "", 1, 0.05)
		require.NoError(t, err)
	}
	decision, before, after := testMerge("p-neg", "d-neg", models.MergeStrategyAutomatic, 0.95)
	negID, err := l.RecordMerge(ctx, decision, before, after, "", 1, -0.2)
	require.NoError(t, err)

	issues := l.QualityIssues(ctx)

	types := map[IssueType]QualityIssue{}
	for _, issue := range issues {
		types[issue.Type] = issue
	}
	require.Contains(t, types, IssueLowConfidence)
	require.Contains(t, types, IssueNegativeQuality)
	require.Contains(t, types, IssueStrategyUnderperforms)
	assert.Equal(t, []string{negID}, types[IssueNegativeQuality].HistoryIDs)
	assert.Equal(t, string(models.ConflictStrategyLatestWins), types[IssueStrategyUnderperforms].Strategy)

	t.Run("old merges fall outside the window", func(t *testing.T) {
		l.now = func() time.Time { return now.Add(8 * 24 * time.Hour) }
		assert.Empty(t, l.QualityIssues(ctx))
	})
}

func TestExportImportRoundTrip(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	source := newTestLedger(now)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		decision, before, after := testMerge(fmt.Sprintf("p%d", i), fmt.Sprintf("d%d", i), models.MergeStrategyAutomatic, 0.8+float64(i)/100)
		_, err := source.RecordMerge(ctx, decision, before, after, "bob", int64(i), 0.1)
		require.NoError(t, err)
	}

	for _, format := range []string{FormatJSON, FormatCSV} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, source.Export(ctx, &buf, format))

			target := newTestLedger(now)
			result, err := target.Import(ctx, &buf, format)
			require.NoError(t, err)
			assert.Equal(t, 3, result.Imported)
			assert.Empty(t, result.Errors)

			want := source.Snapshot()
			got := target.Snapshot()
			require.Len(t, got, len(want))
			for i := range want {
				assert.Equal(t, want[i].ID, got[i].ID)
				assert.Equal(t, want[i].Strategy, got[i].Strategy)
				assert.Equal(t, want[i].Confidence, got[i].Confidence)
				assert.Equal(t, want[i].DuplicateIDs, got[i].DuplicateIDs)
				assert.True(t, want[i].Timestamp.Equal(got[i].Timestamp))
				assert.Len(t, got[i].Changes, len(want[i].Changes))
			}

			primary, ok := target.MergedInto("d1")
			require.True(t, ok)
			assert.Equal(t, "p1", primary)
		})
	}
}

func TestImport_PerEntryErrors(t *testing.T) {
	l := newTestLedger(time.Now())
	doc := `{"version": 1, "entries": [
		{"id": "h1", "primary_id": "a", "duplicate_ids": ["b"], "timestamp": "2025-03-01T10:00:00Z", "operator": "system", "strategy": "automatic", "confidence": 0.9},
		{"id": "h2", "primary_id": "a", "duplicate_ids": [], "timestamp": "2025-03-01T10:00:00Z", "operator": "system", "strategy": "automatic", "confidence": 0.9},
		{"id": "h3", "primary_id": "c", "duplicate_ids": ["d"], "timestamp": "2025-03-01T10:00:00Z", "operator": "system", "strategy": "automatic", "confidence": 1.5},
		{"id": "h1", "primary_id": "e", "duplicate_ids": ["f"], "timestamp": "2025-03-01T10:00:00Z", "operator": "system", "strategy": "automatic", "confidence": 0.9},
		"not an entry",
		{"id": "h5", "primary_id": "g", "duplicate_ids": ["h"], "timestamp": "2025-03-01T10:00:00Z", "operator": "system", "strategy": "automatic", "confidence": 0.7,
		 "changes": [{"field": "title", "before": "a", "after": "b", "source": "duplicate", "confidence": 0.7}]}
	]}`

	result, err := l.Import(context.Background(), strings.NewReader(doc), FormatJSON)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 4, result.Rejected)
	indexes := make([]int, 0, len(result.Errors))
	for _, e := range result.Errors {
		indexes = append(indexes, e.Index)
	}
	assert.Equal(t, []int{1, 2, 3, 4}, indexes)
	assert.Equal(t, 2, l.Len())

	t.Run("unreadable document", func(t *testing.T) {
		_, err := l.Import(context.Background(), strings.NewReader("{"), FormatJSON)
		assert.Error(t, err)
	})

	t.Run("unsupported format", func(t *testing.T) {
		_, err := l.Import(context.Background(), strings.NewReader(""), "xml")
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})
}

func TestPrune(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newTestLedger(start)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		at := start.Add(time.Duration(i) * 24 * time.Hour)
		l.now = func() time.Time { return at }
		decision, before, after := testMerge(fmt.Sprintf("p%d", i), fmt.Sprintf("d%d", i), models.MergeStrategyAutomatic, 0.9)
		_, err := l.RecordMerge(ctx, decision, before, after, "", 1, 0)
		require.NoError(t, err)
	}

	removed := l.Prune(ctx, start.Add(48*time.Hour))
	assert.Equal(t, 2, removed)
	assert.Equal(t, 2, l.Len())

	_, ok := l.MergedInto("d0")
	assert.False(t, ok)
	_, ok = l.MergedInto("d3")
	assert.True(t, ok)
}
