package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedupConfig_ApplyPatch(t *testing.T) {
	base := DefaultDedupConfig()

	t.Run("partial patch keeps other values", func(t *testing.T) {
		patched, err := base.ApplyPatch(json.RawMessage(`{"thresholds": {"overall": 0.7}, "quality": {"force_manual_review": true}}`))
		require.NoError(t, err)

		assert.Equal(t, 0.7, patched.Thresholds.Overall)
		assert.Equal(t, base.Thresholds.Title, patched.Thresholds.Title)
		assert.True(t, patched.Quality.ForceManualReview)
		assert.Equal(t, base.Quality.AutoMergeThreshold, patched.Quality.AutoMergeThreshold)
		assert.Equal(t, base.Weights, patched.Weights)
	})

	t.Run("invalid values leave config unchanged", func(t *testing.T) {
		patched, err := base.ApplyPatch(json.RawMessage(`{"weights": {"title": 3}}`))
		assert.ErrorIs(t, err, ErrInvalidConfig)
		assert.Equal(t, base, patched)
	})

	t.Run("unknown algorithm", func(t *testing.T) {
		_, err := base.ApplyPatch(json.RawMessage(`{"algorithms": {"string_matching": "soundex"}}`))
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("unreadable patch", func(t *testing.T) {
		_, err := base.ApplyPatch(json.RawMessage(`{"thresholds":`))
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestDedupConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*DedupConfig)
		valid  bool
	}{
		{"defaults", func(*DedupConfig) {}, true},
		{"zero weights", func(c *DedupConfig) { c.Weights = Weights{} }, false},
		{"negative threshold", func(c *DedupConfig) { c.Thresholds.Venue = -0.1 }, false},
		{"zero batch size", func(c *DedupConfig) { c.Performance.BatchSize = 0 }, false},
		{"cache disabled with no size", func(c *DedupConfig) {
			c.Performance.EnableCaching = false
			c.Performance.CacheSize = 0
		}, true},
		{"cache enabled with no size", func(c *DedupConfig) { c.Performance.CacheSize = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultDedupConfig()
			tt.mutate(&config)
			err := config.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}

func TestEventRecord_WithField(t *testing.T) {
	start := time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)
	record := &EventRecord{ID: "evt-1", Title: "Jazz Night", Tags: []string{"jazz"}, StartTime: &start}

	tests := []struct {
		name    string
		field   string
		value   any
		check   func(t *testing.T, r *EventRecord)
		wantErr bool
	}{
		{
			name:  "string",
			field: FieldVenueName,
			value: "Blue Note",
			check: func(t *testing.T, r *EventRecord) { assert.Equal(t, "Blue Note", r.VenueName) },
		},
		{
			name:  "float from int",
			field: FieldPriceMin,
			value: 25,
			check: func(t *testing.T, r *EventRecord) { assert.Equal(t, 25.0, *r.PriceMin) },
		},
		{
			name:  "time from string",
			field: FieldEndTime,
			value: "2025-03-01T23:00:00Z",
			check: func(t *testing.T, r *EventRecord) { assert.Equal(t, 23, r.EndTime.Hour()) },
		},
		{
			name:  "strings from any slice",
			field: FieldTags,
			value: []any{"jazz", "live"},
			check: func(t *testing.T, r *EventRecord) { assert.Equal(t, []string{"jazz", "live"}, r.Tags) },
		},
		{
			name:  "counter",
			field: FieldInterestCount,
			value: 12.0,
			check: func(t *testing.T, r *EventRecord) { assert.Equal(t, 12, *r.InterestCount) },
		},
		{
			name:  "nil clears",
			field: FieldStartTime,
			value: nil,
			check: func(t *testing.T, r *EventRecord) { assert.Nil(t, r.StartTime) },
		},
		{name: "wrong type", field: FieldTitle, value: 42, wantErr: true},
		{name: "bad time", field: FieldStartTime, value: "tomorrow", wantErr: true},
		{name: "unknown field", field: "rating", value: 5, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			updated, err := record.WithField(tt.field, tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, updated)
		})
	}

	assert.Equal(t, "", record.VenueName, "the original record is never modified")
	assert.Nil(t, record.PriceMin)
	assert.Equal(t, []string{"jazz"}, record.Tags)
	assert.Equal(t, start, *record.StartTime)
}

func TestEventRecord_Clone(t *testing.T) {
	count := 3
	record := &EventRecord{
		ID:            "evt-1",
		Tags:          []string{"jazz"},
		InterestCount: &count,
		Metadata:      map[string]any{"k": "v"},
	}

	c := record.Clone()
	c.Tags[0] = "rock"
	*c.InterestCount = 9
	c.Metadata["k"] = "changed"

	assert.Equal(t, "jazz", record.Tags[0])
	assert.Equal(t, 3, *record.InterestCount)
	assert.Equal(t, "v", record.Metadata["k"])
}

func TestEventRecord_Field(t *testing.T) {
	record := &EventRecord{Title: "Jazz", Latitude: new(float64)}

	fields := record.Fields()
	assert.Len(t, fields, len(MergeableFields))
	assert.Equal(t, "Jazz", fields[FieldTitle])
	assert.Equal(t, 0.0, fields[FieldLatitude])
	assert.Nil(t, fields[FieldDescription])
	assert.Nil(t, fields[FieldTags])
}

func TestParseConflictStrategy(t *testing.T) {
	s, err := ParseConflictStrategy("latest_wins")
	require.NoError(t, err)
	assert.Equal(t, ConflictStrategyLatestWins, s)

	_, err = ParseConflictStrategy("coin_flip")
	assert.Error(t, err)
}
