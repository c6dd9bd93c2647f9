package resolution

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

func newTestResolver() *Resolver {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewResolver(logger, NewSourceRegistry(), NewRuleSet(nil), NewHistory(HistoryCapacity))
}

func TestResolveField_NoValues(t *testing.T) {
	r := newTestResolver()

	res := r.ResolveField(context.Background(), models.FieldPriceMin, []FieldValue{
		{Value: nil, RecordID: "a", SourceName: "site_a"},
		{Value: "", RecordID: "b", SourceName: "site_b"},
	})

	assert.Nil(t, res.ResolvedValue)
	assert.Equal(t, 0.0, res.Confidence)
	assert.False(t, res.RequiresManualReview)
	assert.Empty(t, res.Values)
}

func TestResolveField_SingleValue(t *testing.T) {
	r := newTestResolver()

	t.Run("price from an unknown source is accepted with its own confidence", func(t *testing.T) {
		res := r.ResolveFieldWithStrategy(context.Background(), models.FieldPriceMin, []FieldValue{
			{Value: nil, RecordID: "a", SourceName: "listings"},
			{Value: 25.0, RecordID: "b", SourceName: "tickets"},
		}, models.ConflictStrategyMostComplete)

		assert.Equal(t, 25.0, res.ResolvedValue)
		assert.Equal(t, "b", res.ResolvedRecordID)
		assert.InDelta(t, 0.7*DefaultReliability+0.3*0.9, res.Confidence, 1e-9)
		assert.False(t, res.RequiresManualReview)
	})

	t.Run("low confidence single value is flagged", func(t *testing.T) {
		res := r.ResolveField(context.Background(), models.FieldTitle, []FieldValue{
			{Value: "TBD", RecordID: "a", SourceName: "listings"},
		})

		assert.Equal(t, "TBD", res.ResolvedValue)
		assert.Less(t, res.Confidence, ReviewConfidenceThreshold)
		assert.True(t, res.RequiresManualReview)
	})
}

func TestResolveField_Strategies(t *testing.T) {
	early := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2025, 2, 20, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		field    string
		strategy models.ConflictStrategy
		values   []FieldValue
		expected any
	}{
		{
			name:     "primary wins over a more detailed duplicate",
			field:    models.FieldVenueName,
			strategy: models.ConflictStrategyPrimaryWins,
			values: []FieldValue{
				{Value: "Blue Note Jazz Club NYC", RecordID: "b", SourceName: "listings"},
				{Value: "Blue Note", RecordID: "a", SourceName: models.SourcePrimary},
			},
			expected: "Blue Note",
		},
		{
			name:     "latest wins uses record update time",
			field:    models.FieldPriceMax,
			strategy: models.ConflictStrategyLatestWins,
			values: []FieldValue{
				{Value: 40.0, RecordID: "a", SourceName: "listings", UpdatedAt: early},
				{Value: 45.0, RecordID: "b", SourceName: "tickets", UpdatedAt: late},
			},
			expected: 45.0,
		},
		{
			name:     "most complete picks the longer address",
			field:    models.FieldAddress,
			strategy: models.ConflictStrategyMostComplete,
			values: []FieldValue{
				{Value: "131 W 3rd St", RecordID: "a", SourceName: "listings"},
				{Value: "131 W 3rd St, New York, NY 10012", RecordID: "b", SourceName: "tickets"},
			},
			expected: "131 W 3rd St, New York, NY 10012",
		},
		{
			name:     "merge values unions tags case-insensitively",
			field:    models.FieldTags,
			strategy: models.ConflictStrategyMergeValues,
			values: []FieldValue{
				{Value: []string{"Jazz", "Live"}, RecordID: "a", SourceName: "listings"},
				{Value: []string{"jazz", "NYC"}, RecordID: "b", SourceName: "tickets"},
			},
			expected: []string{"Jazz", "Live", "NYC"},
		},
		{
			name:     "merge values sums counters",
			field:    models.FieldInterestCount,
			strategy: models.ConflictStrategyMergeValues,
			values: []FieldValue{
				{Value: 10, RecordID: "a", SourceName: "listings"},
				{Value: 5, RecordID: "b", SourceName: "tickets"},
			},
			expected: 15,
		},
		{
			name:     "merge values keeps the longest description",
			field:    models.FieldDescription,
			strategy: models.ConflictStrategyMergeValues,
			values: []FieldValue{
				{Value: "Live jazz.", RecordID: "a", SourceName: "listings"},
				{Value: "Live jazz with the house trio, two sets nightly.", RecordID: "b", SourceName: "tickets"},
			},
			expected: "Live jazz with the house trio, two sets nightly.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestResolver()
			res := r.ResolveFieldWithStrategy(context.Background(), tt.field, tt.values, tt.strategy)

			assert.Equal(t, tt.strategy, res.Strategy)
			assert.Equal(t, tt.expected, res.ResolvedValue)
			assert.GreaterOrEqual(t, res.Confidence, 0.0)
			assert.LessOrEqual(t, res.Confidence, 1.0)
		})
	}
}

func TestResolveField_MergeValuesConfidenceCap(t *testing.T) {
	r := newTestResolver()
	require.NoError(t, r.Sources().Register(models.DataSource{Name: "venue_site", Reliability: 1, DataQuality: 1}))

	res := r.ResolveFieldWithStrategy(context.Background(), models.FieldTags, []FieldValue{
		{Value: []string{"a1", "b1", "c1", "d1", "e1"}, RecordID: "a", SourceName: "venue_site"},
		{Value: []string{"f1", "g1", "h1", "i1", "j1"}, RecordID: "b", SourceName: models.SourceManual},
	}, models.ConflictStrategyMergeValues)

	assert.Equal(t, models.SourceMerged, res.ResolvedSource)
	assert.InDelta(t, 0.9, res.Confidence, 1e-9)
	assert.Len(t, res.ResolvedValue, 10)
}

func TestResolveField_HighestQualityPreferredSources(t *testing.T) {
	r := newTestResolver()
	require.NoError(t, r.Rules().Set(models.FieldTitle, models.ConflictRule{
		Strategy: models.ConflictStrategyHighestQuality,
		Priority: 9,
		Conditions: models.RuleConditions{
			PreferredSources: []string{"venue_site", "tickets"},
			QualityThreshold: 0.5,
		},
	}))

	values := []FieldValue{
		{Value: "Jazz Night at the Blue Note with Special Guests", RecordID: "a", SourceName: "listings"},
		{Value: "Jazz Night", RecordID: "b", SourceName: "tickets"},
		{Value: "Jazz Night Live", RecordID: "c", SourceName: "venue_site"},
	}

	res := r.ResolveField(context.Background(), models.FieldTitle, values)
	assert.Equal(t, "Jazz Night Live", res.ResolvedValue)
	assert.Equal(t, "venue_site", res.ResolvedSource)

	t.Run("falls back to the best quality without a qualifying preferred source", func(t *testing.T) {
		res := r.ResolveField(context.Background(), models.FieldTitle, values[:1])
		assert.Equal(t, values[0].Value, res.ResolvedValue)
	})
}

func TestResolveField_ManualReview(t *testing.T) {
	t.Run("manual review strategy always flags", func(t *testing.T) {
		r := newTestResolver()
		res := r.ResolveFieldWithStrategy(context.Background(), models.FieldCategory, []FieldValue{
			{Value: "music", RecordID: "a", SourceName: models.SourceManual},
			{Value: "concert", RecordID: "b", SourceName: models.SourcePrimary},
		}, models.ConflictStrategyManualReview)

		assert.Equal(t, "music", res.ResolvedValue)
		assert.True(t, res.RequiresManualReview)
	})

	t.Run("disagreeing high quality values are flagged", func(t *testing.T) {
		r := newTestResolver()
		res := r.ResolveField(context.Background(), models.FieldTicketURL, []FieldValue{
			{Value: "https://tickets.example.com/e/1", RecordID: "a", SourceName: models.SourceManual},
			{Value: "https://other.example.com/e/9", RecordID: "b", SourceName: models.SourcePrimary},
		})

		assert.True(t, res.RequiresManualReview)
		assert.Contains(t, res.ReviewReasons, "multiple high-quality values disagree")
	})

	t.Run("forced review flags multi-value conflicts", func(t *testing.T) {
		r := newTestResolver()
		r.SetForceManualReview(true)
		res := r.ResolveField(context.Background(), models.FieldCurrency, []FieldValue{
			{Value: "USD", RecordID: "a", SourceName: models.SourcePrimary},
			{Value: "USD", RecordID: "b", SourceName: models.SourceManual},
		})

		assert.True(t, res.RequiresManualReview)
	})
}

func TestResolveField_SkipsMalformedValues(t *testing.T) {
	r := newTestResolver()

	res := r.ResolveField(context.Background(), models.FieldLatitude, []FieldValue{
		{Value: "forty", RecordID: "a", SourceName: "listings"},
		{Value: 40.7128, RecordID: "b", SourceName: "tickets"},
	})

	require.Len(t, res.Values, 1)
	assert.Equal(t, 40.7128, res.ResolvedValue)
}

func TestResolveField_Deterministic(t *testing.T) {
	r := newTestResolver()
	values := []FieldValue{
		{Value: "Jazz Night at Blue Note", RecordID: "a", SourceName: models.SourcePrimary},
		{Value: "Jazz Nite @ Blue Note NYC", RecordID: "b", SourceName: "listings"},
		{Value: "JAZZ NIGHT", RecordID: "c", SourceName: "tickets"},
	}

	first := r.ResolveField(context.Background(), models.FieldTitle, values)
	second := r.ResolveField(context.Background(), models.FieldTitle, values)

	assert.Equal(t, first.ResolvedValue, second.ResolvedValue)
	assert.Equal(t, first.Confidence, second.Confidence)
	assert.Equal(t, first.RequiresManualReview, second.RequiresManualReview)
}

func TestResolveField_HistoryIsBounded(t *testing.T) {
	r := newTestResolver()
	for i := 0; i < HistoryCapacity+50; i++ {
		r.ResolveField(context.Background(), models.FieldCity, []FieldValue{
			{Value: "New York", RecordID: "a", SourceName: models.SourcePrimary},
		})
	}

	assert.Len(t, r.History().Field(models.FieldCity), HistoryCapacity)
	assert.Equal(t, HistoryCapacity, r.History().Stats().Resolutions)
}

func TestSourceRegistry(t *testing.T) {
	registry := NewSourceRegistry()

	assert.Equal(t, 1.0, registry.Reliability(models.SourceManual))
	assert.Equal(t, 0.9, registry.Reliability(models.SourcePrimary))
	assert.Equal(t, DefaultReliability, registry.Reliability("unknown"))

	require.NoError(t, registry.Update("tickets", 0.8, 0.7, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 0.8, registry.Reliability("tickets"))

	err := registry.Register(models.DataSource{Name: "bad", Reliability: 1.5})
	assert.Error(t, err)
	assert.Len(t, registry.List(), 3)
}

func TestRuleSet(t *testing.T) {
	rules := NewRuleSet(nil)

	assert.Equal(t, DefaultRule, rules.Rule("unknown_field"))
	assert.Equal(t, models.ConflictStrategyPrimaryWins, rules.Rule(models.FieldStartTime).Strategy)

	err := rules.Set(models.FieldCity, models.ConflictRule{Strategy: "coin_flip"})
	assert.Error(t, err)

	require.NoError(t, rules.Set(models.FieldCity, models.ConflictRule{Strategy: models.ConflictStrategyMostComplete, Priority: 3}))
	assert.Equal(t, models.ConflictStrategyMostComplete, rules.Rule(models.FieldCity).Strategy)
}
