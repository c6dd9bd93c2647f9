// Package dedupe is the single entry point of the deduplication engine. It composes duplicate
// detection, conflict resolution, merging, the merge ledger and batch processing.
package dedupe

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/batch"
	"github.com/Ramsey-B/clover/pkg/ledger"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/resolution"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// BatchOperator is the ledger operator recorded for merges made by batch processing
const BatchOperator = "batch"

// ErrNoTarget is returned when a duplicate check has no target record
var ErrNoTarget = errors.New("duplicate check requires a target record")

// Publisher announces executed merges to downstream consumers
type Publisher interface {
	PublishMerge(ctx context.Context, entry models.MergeHistory, merged *models.EventRecord) error
}

// Options configures a Service. Zero values select the defaults.
type Options struct {
	Config   *models.DedupConfig
	Sources  []models.DataSource
	Rules    map[string]models.ConflictRule
	Archiver ledger.Archiver
	// Publisher may be nil, in which case merges are not announced
	Publisher Publisher
}

// Service owns every engine component and the state they share
type Service struct {
	logger      ectologger.Logger
	scorer      *matching.SimilarityScorer
	detector    *matching.Detector
	resolver    *resolution.Resolver
	planner     *merging.Planner
	executor    *merging.Executor
	ledger      *ledger.Ledger
	coordinator *batch.Coordinator
	publisher   Publisher

	configMu sync.Mutex
	started  time.Time
}

// NewService builds the engine
func NewService(logger ectologger.Logger, opts Options) (*Service, error) {
	config := models.DefaultDedupConfig()
	if opts.Config != nil {
		config = *opts.Config
	}

	scorer, err := matching.NewSimilarityScorer(config)
	if err != nil {
		return nil, err
	}

	sources := resolution.NewSourceRegistry()
	for _, source := range opts.Sources {
		if err := sources.Register(source); err != nil {
			return nil, err
		}
	}

	rules := resolution.NewRuleSet(nil)
	for field, rule := range opts.Rules {
		if err := rules.Set(field, rule); err != nil {
			return nil, err
		}
	}

	resolver := resolution.NewResolver(logger, sources, rules, nil)
	resolver.SetForceManualReview(config.Quality.ForceManualReview)

	detector := matching.NewDetector(logger, scorer)

	s := &Service{
		logger:    logger,
		scorer:    scorer,
		detector:  detector,
		resolver:  resolver,
		planner:   merging.NewPlanner(logger, resolver),
		executor:  merging.NewExecutor(logger),
		ledger:    ledger.New(logger, opts.Archiver),
		publisher: opts.Publisher,
		started:   time.Now(),
	}
	s.coordinator = batch.NewCoordinator(logger, detector, s)

	return s, nil
}

// Ledger returns the merge ledger
func (s *Service) Ledger() *ledger.Ledger {
	return s.ledger
}

// CheckForDuplicates compares a target against candidate records
func (s *Service) CheckForDuplicates(ctx context.Context, target *models.EventRecord, candidates []*models.EventRecord) (*models.DuplicateCheckResult, error) {
	ctx, span := tracing.StartSpan(ctx, "dedupe.Service.CheckForDuplicates")
	defer span.End()

	if target == nil {
		return nil, ErrNoTarget
	}
	return s.detector.CheckForDuplicates(ctx, target, candidates), nil
}

// ProcessBatch clusters duplicates across events and, in merge mode, merges each cluster
func (s *Service) ProcessBatch(ctx context.Context, events []*models.EventRecord, mode batch.Mode) (*batch.Result, error) {
	ctx, span := tracing.StartSpan(ctx, "dedupe.Service.ProcessBatch")
	defer span.End()

	return s.coordinator.ProcessEvents(ctx, events, mode)
}

// BatchStats returns cumulative batch processing statistics
func (s *Service) BatchStats() batch.Stats {
	return s.coordinator.Stats()
}

// ClearCache drops every cached similarity score
func (s *Service) ClearCache() {
	s.coordinator.ClearCache()
}

// Sources lists the registered data sources
func (s *Service) Sources() []models.DataSource {
	return s.resolver.Sources().List()
}

// RegisterSource adds or replaces a data source
func (s *Service) RegisterSource(source models.DataSource) error {
	if source.LastUpdated.IsZero() {
		source.LastUpdated = time.Now().UTC()
	}
	return s.resolver.Sources().Register(source)
}

// UpdateSource changes the reliability and quality of a data source
func (s *Service) UpdateSource(name string, reliability, quality float64) error {
	return s.resolver.Sources().Update(name, reliability, quality, time.Now().UTC())
}

// ConflictRules returns every configured per-field rule
func (s *Service) ConflictRules() map[string]models.ConflictRule {
	return s.resolver.Rules().All()
}

// SetConflictRule installs the conflict rule for a field
func (s *Service) SetConflictRule(field string, rule models.ConflictRule) error {
	return s.resolver.Rules().Set(field, rule)
}

// Analytics reports on merges recorded in [from, to)
func (s *Service) Analytics(ctx context.Context, from, to time.Time) ledger.Report {
	return s.ledger.Analytics(ctx, from, to)
}

// QualityIssues reports problems in recent merges
func (s *Service) QualityIssues(ctx context.Context) []ledger.QualityIssue {
	return s.ledger.QualityIssues(ctx)
}

// ExportLedger writes the merge history as JSON or CSV
func (s *Service) ExportLedger(ctx context.Context, w io.Writer, format string) error {
	return s.ledger.Export(ctx, w, format)
}

// ImportLedger reads merge history, validating each entry
func (s *Service) ImportLedger(ctx context.Context, r io.Reader, format string) (*ledger.ImportResult, error) {
	return s.ledger.Import(ctx, r, format)
}

// MergedInto returns the primary a record was finally merged into
func (s *Service) MergedInto(id string) (string, bool) {
	return s.ledger.MergedInto(id)
}

// MergedFrom lists the records merged directly into a primary
func (s *Service) MergedFrom(id string) []string {
	return s.ledger.MergedFrom(id)
}

// PruneLedger removes merge history older than the retention period
func (s *Service) PruneLedger(ctx context.Context, retention time.Duration) int {
	return s.ledger.Prune(ctx, time.Now().Add(-retention))
}
