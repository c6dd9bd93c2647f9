package merging

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/resolution"
)

func ptr[T any](v T) *T {
	return &v
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func newTestPlanner() *Planner {
	logger := testLogger()
	return NewPlanner(logger, resolution.NewResolver(logger, nil, nil, nil))
}

func blueNotePair() (*models.EventRecord, *models.EventRecord) {
	start := time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)
	a := &models.EventRecord{
		ID:         "evt-a",
		Title:      "Jazz Night at Blue Note",
		VenueName:  "Blue Note",
		Latitude:   ptr(40.7),
		Longitude:  ptr(-74.0),
		StartTime:  ptr(start),
		SourceName: "listings",
	}
	b := &models.EventRecord{
		ID:         "evt-b",
		Title:      "Jazz Nite @ Blue Note NYC",
		VenueName:  "The Blue Note",
		Latitude:   ptr(40.7001),
		Longitude:  ptr(-74.0001),
		StartTime:  ptr(start),
		PriceMin:   ptr(25.0),
		Tags:       []string{"jazz"},
		SourceName: "tickets",
	}
	return a, b
}

func TestCreateMergeDecision(t *testing.T) {
	p := newTestPlanner()
	a, b := blueNotePair()

	t.Run("most complete price comes from the only source that has one", func(t *testing.T) {
		decision, err := p.CreateMergeDecision(context.Background(), a, []*models.EventRecord{b}, string(models.ConflictStrategyMostComplete))
		require.NoError(t, err)

		assert.Equal(t, "evt-a", decision.PrimaryID)
		assert.Equal(t, []string{"evt-b"}, decision.DuplicateIDs)

		price := decision.Resolution(models.FieldPriceMin)
		require.NotNil(t, price)
		assert.Equal(t, 25.0, price.ResolvedValue)
		assert.Equal(t, "evt-b", price.ResolvedRecordID)
		assert.Len(t, price.Values, 1)

		require.NotNil(t, decision.Preview)
		require.NotNil(t, decision.Preview.PriceMin)
		assert.Equal(t, 25.0, *decision.Preview.PriceMin)
		assert.Nil(t, a.PriceMin, "primary must not be modified")
		assert.Greater(t, decision.Confidence, 0.0)
	})

	t.Run("automatic strategy keeps the primary start time", func(t *testing.T) {
		decision, err := p.CreateMergeDecision(context.Background(), a, []*models.EventRecord{b}, models.MergeStrategyAutomatic)
		require.NoError(t, err)

		start := decision.Resolution(models.FieldStartTime)
		require.NotNil(t, start)
		assert.Equal(t, models.ConflictStrategyPrimaryWins, start.Strategy)
		assert.Equal(t, models.SourcePrimary, start.ResolvedSource)
	})

	t.Run("no duplicates", func(t *testing.T) {
		_, err := p.CreateMergeDecision(context.Background(), a, nil, models.MergeStrategyAutomatic)
		assert.ErrorIs(t, err, ErrNoDuplicates)

		_, err = p.CreateMergeDecision(context.Background(), a, []*models.EventRecord{a}, models.MergeStrategyAutomatic)
		assert.ErrorIs(t, err, ErrNoDuplicates)
	})

	t.Run("unknown strategy", func(t *testing.T) {
		_, err := p.CreateMergeDecision(context.Background(), a, []*models.EventRecord{b}, "coin_flip")
		assert.ErrorIs(t, err, ErrUnknownStrategy)
	})
}

func TestCreateMergeDecision_LatestWinsUsesPrimarySourceTime(t *testing.T) {
	early := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2025, 2, 20, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		listings   time.Time
		tickets    time.Time
		wantRecord string
		wantTitle  string
	}{
		{name: "primary source updated last", listings: late, tickets: early, wantRecord: "evt-a", wantTitle: "Jazz Night at Blue Note"},
		{name: "duplicate source updated last", listings: early, tickets: late, wantRecord: "evt-b", wantTitle: "Jazz Nite @ Blue Note NYC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPlanner()
			sources := p.resolver.Sources()
			require.NoError(t, sources.Update("listings", 0.8, 0.8, tt.listings))
			require.NoError(t, sources.Update("tickets", 0.8, 0.8, tt.tickets))
			a, b := blueNotePair()

			decision, err := p.CreateMergeDecision(context.Background(), a, []*models.EventRecord{b}, string(models.ConflictStrategyLatestWins))
			require.NoError(t, err)

			title := decision.Resolution(models.FieldTitle)
			require.NotNil(t, title)
			assert.Equal(t, tt.wantRecord, title.ResolvedRecordID)
			assert.Equal(t, tt.wantTitle, title.ResolvedValue)
		})
	}
}

func TestValidateMergeDecision(t *testing.T) {
	tests := []struct {
		name     string
		decision *models.MergeDecision
		errors   int
	}{
		{
			name:     "nil decision",
			decision: nil,
			errors:   1,
		},
		{
			name:     "no duplicates and empty preview",
			decision: &models.MergeDecision{PrimaryID: "a"},
			errors:   2,
		},
		{
			name: "primary listed as duplicate",
			decision: &models.MergeDecision{
				PrimaryID:    "a",
				DuplicateIDs: []string{"a"},
				Preview:      &models.EventRecord{ID: "a", Title: "Jazz Night"},
			},
			errors: 1,
		},
		{
			name: "valid",
			decision: &models.MergeDecision{
				PrimaryID:    "a",
				DuplicateIDs: []string{"b"},
				Preview:      &models.EventRecord{ID: "a", Title: "Jazz Night"},
			},
			errors: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMergeDecision(tt.decision)
			if tt.errors == 0 {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Len(t, verr.Errors, tt.errors)
		})
	}
}

func TestExecuteMerge(t *testing.T) {
	p := newTestPlanner()
	e := NewExecutor(testLogger())
	a, b := blueNotePair()

	decision, err := p.CreateMergeDecision(context.Background(), a, []*models.EventRecord{b}, models.MergeStrategyAutomatic)
	require.NoError(t, err)

	t.Run("success produces a new record", func(t *testing.T) {
		result := e.ExecuteMerge(context.Background(), decision, a)

		require.True(t, result.Success, result.Errors)
		require.NotNil(t, result.Merged)
		assert.Equal(t, "evt-a", result.Merged.ID)
		assert.Equal(t, []string{"jazz"}, result.Merged.Tags)
		assert.Greater(t, result.QualityImprovement, 0.0)
		assert.Nil(t, a.Tags, "primary must not be modified")
	})

	t.Run("failure leaves the primary untouched", func(t *testing.T) {
		before := a.Clone()
		bad := &models.MergeDecision{
			PrimaryID:    a.ID,
			DuplicateIDs: []string{b.ID},
			Preview:      a.Clone(),
			Resolutions: []models.ConflictResolution{
				{Field: models.FieldTitle, ResolvedValue: "Jazz Night"},
				{Field: models.FieldLatitude, ResolvedValue: "not a number"},
			},
		}

		result := e.ExecuteMerge(context.Background(), bad, a)

		assert.False(t, result.Success)
		assert.Nil(t, result.Merged)
		assert.NotEmpty(t, result.Errors)
		assert.Equal(t, before, a)
	})

	t.Run("invalid decision is rejected before execution", func(t *testing.T) {
		result := e.ExecuteMerge(context.Background(), &models.MergeDecision{PrimaryID: a.ID}, a)
		assert.False(t, result.Success)
		assert.Len(t, result.Errors, 2)
	})

	t.Run("mismatched primary record", func(t *testing.T) {
		result := e.ExecuteMerge(context.Background(), decision, b)
		assert.False(t, result.Success)
		assert.Len(t, result.Errors, 1)
	})

	t.Run("concurrent merges on one primary all complete", func(t *testing.T) {
		var wg sync.WaitGroup
		results := make([]*models.MergeResult, 16)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = e.ExecuteMerge(context.Background(), decision, a)
			}(i)
		}
		wg.Wait()

		for _, r := range results {
			assert.True(t, r.Success)
		}
		assert.Empty(t, e.locks.locks)
	})
}

func TestQualityImprovement(t *testing.T) {
	full := &models.EventRecord{ID: "a", Title: "Jazz Night", VenueName: "Blue Note", Description: "Live jazz"}
	sparse := &models.EventRecord{ID: "a", Title: "Jazz Night"}

	assert.Greater(t, QualityImprovement(sparse, full), 0.0)
	assert.Less(t, QualityImprovement(full, sparse), 0.0)
	assert.Equal(t, 0.0, QualityImprovement(full, full))
	assert.Equal(t, 0.0, Completeness(nil))
}
