package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/fingerprint"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/models"
)

type fakeMerger struct {
	mu     sync.Mutex
	calls  map[string][]string
	failOn string
}

func (m *fakeMerger) MergeCluster(_ context.Context, primary *models.EventRecord, duplicates []*models.EventRecord) (*models.MergeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string][]string)
	}
	ids := make([]string, 0, len(duplicates))
	for _, d := range duplicates {
		ids = append(ids, d.ID)
	}
	m.calls[primary.ID] = ids

	if primary.ID == m.failOn {
		return nil, errors.New("primary is locked")
	}
	return &models.MergeResult{Success: true, Merged: primary.Clone()}, nil
}

func ptr[T any](v T) *T {
	return &v
}

func at(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func newTestCoordinator(t *testing.T, merger Merger, mutate func(*models.DedupConfig)) *Coordinator {
	t.Helper()
	config := models.DefaultDedupConfig()
	if mutate != nil {
		mutate(&config)
	}
	scorer, err := matching.NewSimilarityScorer(config)
	require.NoError(t, err)

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewCoordinator(logger, matching.NewDetector(logger, scorer), merger)
}

// testEvents returns a jazz cluster of three listings, a pair of market listings and a loner
func testEvents() []*models.EventRecord {
	jazz := &models.EventRecord{
		ID:        "jazz-1",
		Title:     "Jazz Night at Blue Note",
		VenueName: "Blue Note",
		StartTime: at("2025-03-01T20:00:00Z"),
		Latitude:  ptr(40.7),
		Longitude: ptr(-74.0),
	}
	jazzTickets := &models.EventRecord{
		ID:        "jazz-2",
		Title:     "Jazz Nite @ Blue Note NYC",
		VenueName: "The Blue Note",
		StartTime: at("2025-03-01T20:00:00Z"),
		Latitude:  ptr(40.7001),
		Longitude: ptr(-74.0001),
		PriceMin:  ptr(25.0),
	}
	jazzCopy := jazz.Clone()
	jazzCopy.ID = "jazz-3"

	market := &models.EventRecord{
		ID:        "market-1",
		Title:     "Union Square Greenmarket",
		VenueName: "Union Square",
		Address:   "E 17th St & Broadway",
		Category:  "Market",
	}
	marketCopy := market.Clone()
	marketCopy.ID = "market-2"
	marketCopy.TicketURL = "https://example.com/greenmarket"

	loner := &models.EventRecord{
		ID:        "comedy-1",
		Title:     "Stand-up Showcase",
		VenueName: "Comedy Cellar",
		StartTime: at("2025-03-02T21:00:00Z"),
	}

	return []*models.EventRecord{jazz, market, jazzTickets, loner, jazzCopy, marketCopy}
}

func TestProcessEvents_Detect(t *testing.T) {
	c := newTestCoordinator(t, nil, nil)

	result, err := c.ProcessEvents(context.Background(), testEvents(), ModeDetect)
	require.NoError(t, err)

	assert.Equal(t, ModeDetect, result.Mode)
	assert.Equal(t, 6, result.Processed)
	assert.Equal(t, 0, result.Skipped)
	require.Len(t, result.Clusters, 2)

	jazz := result.Clusters[0]
	assert.Equal(t, "jazz-2", jazz.PrimaryID, "the listing with a price is the most complete")
	assert.Equal(t, []string{"jazz-1", "jazz-3"}, jazz.DuplicateIDs)
	assert.GreaterOrEqual(t, jazz.Confidence, 0.8)

	market := result.Clusters[1]
	assert.Equal(t, "market-2", market.PrimaryID)
	assert.Equal(t, []string{"market-1"}, market.DuplicateIDs)

	assert.Equal(t, 3, result.DuplicatesFound)
	assert.Zero(t, result.MergesCompleted)

	// two date buckets with a next-day link plus one location bucket
	assert.Equal(t, 3, result.Buckets)
	// 3 pairs on 2025-03-01, 3 pairs across to 2025-03-02 and 1 market pair
	assert.Equal(t, int64(7), result.Comparisons)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Batches)
	assert.Equal(t, int64(7), stats.Comparisons)
	assert.Equal(t, int64(2), stats.ClustersFound)
	assert.Equal(t, int64(3), stats.LastBuckets)
}

func TestProcessEvents_Merge(t *testing.T) {
	merger := &fakeMerger{failOn: "market-2"}
	c := newTestCoordinator(t, merger, func(cfg *models.DedupConfig) {
		cfg.Performance.BatchSize = 1
		cfg.Performance.MaxConcurrency = 2
	})

	result, err := c.ProcessEvents(context.Background(), testEvents(), ModeMerge)
	require.NoError(t, err)

	assert.Equal(t, 1, result.MergesCompleted)
	assert.Equal(t, 1, result.MergesFailed)
	assert.Equal(t, []string{"jazz-1", "jazz-3"}, merger.calls["jazz-2"])
	assert.Equal(t, []string{"market-1"}, merger.calls["market-2"])

	require.Len(t, result.Clusters, 2)
	assert.True(t, result.Clusters[0].Merge.Success)
	assert.Equal(t, "primary is locked", result.Clusters[1].Error)
}

func TestProcessEvents_InputHandling(t *testing.T) {
	c := newTestCoordinator(t, nil, nil)
	events := testEvents()
	events = append(events, nil, &models.EventRecord{Title: "no id"}, events[0])

	result, err := c.ProcessEvents(context.Background(), events, ModeDetect)
	require.NoError(t, err)
	assert.Equal(t, 6, result.Processed)
	assert.Equal(t, 3, result.Skipped)

	_, err = c.ProcessEvents(context.Background(), events, Mode("dry_run"))
	assert.ErrorIs(t, err, ErrUnknownMode)

	_, err = c.ProcessEvents(context.Background(), events, ModeMerge)
	assert.Error(t, err, "merge mode needs a merger")

	empty, err := c.ProcessEvents(context.Background(), nil, ModeDetect)
	require.NoError(t, err)
	assert.Empty(t, empty.Clusters)
}

func TestProcessEvents_FuzzyDateDisabled(t *testing.T) {
	c := newTestCoordinator(t, nil, func(cfg *models.DedupConfig) {
		cfg.Algorithms.FuzzyDate = false
	})

	result, err := c.ProcessEvents(context.Background(), testEvents(), ModeDetect)
	require.NoError(t, err)
	assert.Equal(t, int64(4), result.Comparisons)
	assert.Len(t, result.Clusters, 2)
}

func TestProcessEvents_Cancelled(t *testing.T) {
	c := newTestCoordinator(t, nil, func(cfg *models.DedupConfig) {
		cfg.Performance.BatchSize = 1
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := c.ProcessEvents(ctx, testEvents(), ModeDetect)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.True(t, result.Cancelled)
}

func TestProcessEvents_Bucketing(t *testing.T) {
	events := make([]*models.EventRecord, 0, 60)
	for day := 0; day < 30; day++ {
		start := time.Date(2025, 1, 1+day*3, 19, 0, 0, 0, time.UTC)
		for n := 0; n < 2; n++ {
			events = append(events, &models.EventRecord{
				ID:        fmt.Sprintf("evt-%d-%d", day, n),
				Title:     fmt.Sprintf("Weekly Quiz Round %d", day),
				VenueName: "The Crown",
				Address:   "1 High Street",
				StartTime: &start,
			})
		}
	}

	c := newTestCoordinator(t, nil, nil)
	result, err := c.ProcessEvents(context.Background(), events, ModeDetect)
	require.NoError(t, err)

	// days three apart never share or neighbour a bucket, so only same-day pairs are scored
	assert.Equal(t, int64(30), result.Comparisons)
	assert.Equal(t, 30, result.Buckets)
	assert.Len(t, result.Clusters, 30)
}

func TestBuckets_Pairs(t *testing.T) {
	fps := []*fingerprint.Fingerprint{
		{DateKey: "2025-03-01"},
		{DateKey: "2025-03-02"},
		{DateKey: "2025-03-01"},
		{LocationKey: "131 w 3rd st"},
		{},
		{},
	}

	b := bucketize(fps, true)
	assert.Equal(t, []string{"date:2025-03-01", "date:2025-03-02", "location:131 w 3rd st", "unkeyed"}, b.keys)
	assert.ElementsMatch(t, [][2]int{{0, 2}, {0, 1}, {1, 2}, {4, 5}}, b.pairs())

	strict := bucketize(fps, false)
	assert.ElementsMatch(t, [][2]int{{0, 2}, {4, 5}}, strict.pairs())
}

func TestDisjointSet(t *testing.T) {
	d := newDisjointSet(5)
	d.union(0, 1)
	d.union(3, 4)
	d.union(1, 4)

	assert.Equal(t, d.find(0), d.find(3))
	assert.NotEqual(t, d.find(0), d.find(2))
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeDetect, mode)

	mode, err = ParseMode("merge")
	require.NoError(t, err)
	assert.Equal(t, ModeMerge, mode)

	_, err = ParseMode("purge")
	assert.ErrorIs(t, err, ErrUnknownMode)
}
