// Package batch runs duplicate detection and merging over large collections of event records.
// Records are bucketed by date and location before pairwise scoring, linked into clusters
// with a disjoint-set forest, and each cluster is merged into its most complete record.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/clover/pkg/fingerprint"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Mode selects how far a batch is processed
type Mode string

const (
	// ModeDetect only finds duplicate clusters
	ModeDetect Mode = "detect"
	// ModeMerge finds clusters and merges each one
	ModeMerge Mode = "merge"
)

// ErrUnknownMode is returned for a mode other than detect or merge
var ErrUnknownMode = errors.New("unknown batch mode")

// ParseMode converts a string to a Mode. An empty string means ModeDetect.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeDetect:
		return ModeDetect, nil
	case ModeMerge:
		return ModeMerge, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Merger merges one cluster. The dedupe service implements it so batch merges are
// recorded in the ledger exactly like single merges.
type Merger interface {
	MergeCluster(ctx context.Context, primary *models.EventRecord, duplicates []*models.EventRecord) (*models.MergeResult, error)
}

// Cluster is a group of records judged to describe the same event
type Cluster struct {
	PrimaryID    string              `json:"primary_id"`
	DuplicateIDs []string            `json:"duplicate_ids"`
	Confidence   float64             `json:"confidence"`
	Merge        *models.MergeResult `json:"merge,omitempty"`
	Error        string              `json:"error,omitempty"`
}

// Result aggregates the outcome of one batch
type Result struct {
	Mode            Mode          `json:"mode"`
	Processed       int           `json:"processed"`
	Skipped         int           `json:"skipped"`
	Buckets         int           `json:"buckets"`
	Comparisons     int64         `json:"comparisons"`
	DuplicatesFound int           `json:"duplicates_found"`
	MergesCompleted int           `json:"merges_completed"`
	MergesFailed    int           `json:"merges_failed"`
	Clusters        []Cluster     `json:"clusters"`
	Duration        time.Duration `json:"duration"`
	Cancelled       bool          `json:"cancelled"`
}

// Stats reports cumulative coordinator activity
type Stats struct {
	Batches          int64               `json:"batches"`
	RecordsProcessed int64               `json:"records_processed"`
	Comparisons      int64               `json:"comparisons"`
	ClustersFound    int64               `json:"clusters_found"`
	LastBuckets      int64               `json:"last_buckets"`
	LastDuration     time.Duration       `json:"last_duration"`
	Cache            matching.CacheStats `json:"cache"`
}

// Coordinator runs detection and merging across a batch with bounded concurrency
type Coordinator struct {
	logger   ectologger.Logger
	detector *matching.Detector
	merger   Merger

	batches      atomic.Int64
	records      atomic.Int64
	comparisons  atomic.Int64
	clusters     atomic.Int64
	lastBuckets  atomic.Int64
	lastDuration atomic.Int64
}

// NewCoordinator creates a batch coordinator. merger may be nil when only detection is used.
func NewCoordinator(logger ectologger.Logger, detector *matching.Detector, merger Merger) *Coordinator {
	return &Coordinator{
		logger:   logger,
		detector: detector,
		merger:   merger,
	}
}

// SetMerger replaces the cluster merger
func (c *Coordinator) SetMerger(merger Merger) {
	c.merger = merger
}

// ClearCache drops every cached pairwise similarity score
func (c *Coordinator) ClearCache() {
	c.detector.Scorer().ClearCache()
}

// Stats returns cumulative counters and the similarity cache usage
func (c *Coordinator) Stats() Stats {
	return Stats{
		Batches:          c.batches.Load(),
		RecordsProcessed: c.records.Load(),
		Comparisons:      c.comparisons.Load(),
		ClustersFound:    c.clusters.Load(),
		LastBuckets:      c.lastBuckets.Load(),
		LastDuration:     time.Duration(c.lastDuration.Load()),
		Cache:            c.detector.Scorer().CacheStats(),
	}
}

type edge struct {
	a, b       int
	confidence float64
}

// ProcessEvents clusters duplicates within events and, in merge mode, merges every cluster.
// On cancellation the partial result is returned together with the context error;
// clusters and merges completed before cancellation remain valid.
func (c *Coordinator) ProcessEvents(ctx context.Context, events []*models.EventRecord, mode Mode) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "batch.Coordinator.ProcessEvents")
	defer span.End()

	if mode != ModeDetect && mode != ModeMerge {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	if mode == ModeMerge && c.merger == nil {
		return nil, errors.New("batch merge requires a merger")
	}

	start := time.Now()
	config := c.detector.Scorer().Config()

	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"mode":   mode,
		"events": len(events),
	})

	records, skipped := uniqueRecords(events)
	result := &Result{
		Mode:      mode,
		Processed: len(records),
		Skipped:   skipped,
		Clusters:  make([]Cluster, 0),
	}

	fps := make([]*fingerprint.Fingerprint, len(records))
	for i, r := range records {
		fps[i] = fingerprint.Build(r)
	}

	buckets := bucketize(fps, config.Algorithms.FuzzyDate)
	result.Buckets = len(buckets.keys)
	pairs := buckets.pairs()

	edges, comparisons, err := c.scorePairs(ctx, config, records, fps, pairs)
	result.Comparisons = comparisons
	if err != nil {
		result.Cancelled = true
		result.Duration = time.Since(start)
		log.WithError(err).Warn("Batch cancelled while scoring pairs")
		return result, err
	}

	result.Clusters = buildClusters(records, edges)
	for _, cl := range result.Clusters {
		result.DuplicatesFound += len(cl.DuplicateIDs)
	}

	if mode == ModeMerge {
		err = c.mergeClusters(ctx, config, records, result)
		if err != nil {
			result.Cancelled = true
		}
	}

	result.Duration = time.Since(start)
	c.record(result)
	metrics.RecordBatch(string(mode), result.Duration.Seconds())

	log.WithFields(map[string]any{
		"processed":        result.Processed,
		"skipped":          result.Skipped,
		"buckets":          result.Buckets,
		"comparisons":      result.Comparisons,
		"clusters":         len(result.Clusters),
		"duplicates_found": result.DuplicatesFound,
		"merges_completed": result.MergesCompleted,
		"merges_failed":    result.MergesFailed,
		"duration_ms":      result.Duration.Milliseconds(),
	}).Info("Processed batch")

	return result, err
}

// scorePairs scores every candidate pair and keeps the links whose confidence reaches the
// auto-merge threshold. Pairs are split into units of batch_size and at most
// max_concurrency units run at once.
func (c *Coordinator) scorePairs(
	ctx context.Context,
	config models.DedupConfig,
	records []*models.EventRecord,
	fps []*fingerprint.Fingerprint,
	pairs [][2]int,
) ([]edge, int64, error) {
	var (
		mu          sync.Mutex
		edges       = make([]edge, 0)
		comparisons atomic.Int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.Performance.MaxConcurrency)

	size := config.Performance.BatchSize
	for lo := 0; lo < len(pairs); lo += size {
		unit := pairs[lo:min(lo+size, len(pairs))]

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			found := make([]edge, 0)
			for _, p := range unit {
				i, j := p[0], p[1]
				match, ok := c.detector.Evaluate(config, records[i].ID, fps[i], records[j], fps[j])
				comparisons.Add(1)
				if ok && match.Confidence >= config.Quality.AutoMergeThreshold {
					found = append(found, edge{a: i, b: j, confidence: match.Confidence})
				}
			}

			mu.Lock()
			edges = append(edges, found...)
			mu.Unlock()
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	return edges, comparisons.Load(), err
}

// mergeClusters merges every cluster through the merger with bounded concurrency.
// A failed merge is recorded on its cluster and never aborts the batch.
func (c *Coordinator) mergeClusters(ctx context.Context, config models.DedupConfig, records []*models.EventRecord, result *Result) error {
	byID := make(map[string]*models.EventRecord, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.Performance.MaxConcurrency)

	for i := range result.Clusters {
		cl := &result.Clusters[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			duplicates := ectolinq.Map(cl.DuplicateIDs, func(id string) *models.EventRecord {
				return byID[id]
			})
			merge, err := c.merger.MergeCluster(gctx, byID[cl.PrimaryID], duplicates)
			switch {
			case err != nil:
				cl.Error = err.Error()
			case merge != nil && !merge.Success:
				cl.Merge = merge
				cl.Error = fmt.Sprintf("merge failed: %v", merge.Errors)
			default:
				cl.Merge = merge
			}
			return nil
		})
	}

	err := g.Wait()
	for _, cl := range result.Clusters {
		switch {
		case cl.Merge != nil && cl.Merge.Success:
			result.MergesCompleted++
		case cl.Error != "":
			result.MergesFailed++
		}
	}
	if err == nil {
		err = ctx.Err()
	}
	return err
}

func (c *Coordinator) record(result *Result) {
	c.batches.Add(1)
	c.records.Add(int64(result.Processed))
	c.comparisons.Add(result.Comparisons)
	c.clusters.Add(int64(len(result.Clusters)))
	c.lastBuckets.Store(int64(result.Buckets))
	c.lastDuration.Store(int64(result.Duration))
}

// uniqueRecords drops nil records, records without an id and repeats of an id already seen
func uniqueRecords(events []*models.EventRecord) ([]*models.EventRecord, int) {
	seen := make(map[string]bool, len(events))
	records := make([]*models.EventRecord, 0, len(events))
	skipped := 0
	for _, e := range events {
		if e == nil || e.ID == "" || seen[e.ID] {
			skipped++
			continue
		}
		seen[e.ID] = true
		records = append(records, e)
	}
	return records, skipped
}

// buildClusters links records along the edges and picks the most complete record of each
// cluster as its primary. Input order breaks completeness ties and orders the duplicates.
func buildClusters(records []*models.EventRecord, edges []edge) []Cluster {
	sets := newDisjointSet(len(records))
	for _, e := range edges {
		sets.union(e.a, e.b)
	}

	members := make(map[int][]int)
	for i := range records {
		root := sets.find(i)
		members[root] = append(members[root], i)
	}

	confidence := make(map[int][]float64)
	for _, e := range edges {
		root := sets.find(e.a)
		confidence[root] = append(confidence[root], e.confidence)
	}

	roots := make([]int, 0, len(members))
	for root, m := range members {
		if len(m) > 1 {
			roots = append(roots, root)
		}
	}
	// clusters come out ordered by their first member in input order
	sort.Slice(roots, func(i, j int) bool {
		return members[roots[i]][0] < members[roots[j]][0]
	})

	clusters := make([]Cluster, 0, len(roots))
	for _, root := range roots {
		m := members[root]

		primary := m[0]
		best := merging.Completeness(records[primary])
		for _, idx := range m[1:] {
			if score := merging.Completeness(records[idx]); score > best {
				primary, best = idx, score
			}
		}

		duplicateIDs := make([]string, 0, len(m)-1)
		for _, idx := range m {
			if idx != primary {
				duplicateIDs = append(duplicateIDs, records[idx].ID)
			}
		}

		clusters = append(clusters, Cluster{
			PrimaryID:    records[primary].ID,
			DuplicateIDs: duplicateIDs,
			Confidence:   mean(confidence[root]),
		})
	}
	return clusters
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
