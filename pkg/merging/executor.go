package merging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Executor materializes merge decisions into merged records.
// Only one merge per primary id runs at a time.
type Executor struct {
	logger ectologger.Logger
	locks  *keyedMutex
	now    func() time.Time
}

// NewExecutor creates a new merge executor
func NewExecutor(logger ectologger.Logger) *Executor {
	return &Executor{
		logger: logger,
		locks:  newKeyedMutex(),
		now:    time.Now,
	}
}

// ExecuteMerge applies a decision's resolved values to a copy of the primary record.
// Failures are reported in the result; neither the decision nor the primary is modified.
func (e *Executor) ExecuteMerge(ctx context.Context, decision *models.MergeDecision, primary *models.EventRecord) *models.MergeResult {
	ctx, span := tracing.StartSpan(ctx, "merging.Executor.ExecuteMerge")
	defer span.End()

	start := time.Now()
	result := e.execute(ctx, decision, primary)
	result.ProcessingTime = time.Since(start)

	metrics.RecordMerge(result.Success, result.ProcessingTime.Seconds())

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"success":            result.Success,
		"processing_time_ms": result.ProcessingTime.Milliseconds(),
	})
	if decision != nil {
		log = log.WithField("primary_id", decision.PrimaryID)
	}
	if !result.Success {
		log.WithField("errors", result.Errors).Warn("Merge failed")
	} else {
		log.WithField("quality_improvement", result.QualityImprovement).Info("Merge executed")
	}

	return result
}

func (e *Executor) execute(ctx context.Context, decision *models.MergeDecision, primary *models.EventRecord) *models.MergeResult {
	if err := ValidateMergeDecision(decision); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return &models.MergeResult{Errors: verr.Errors}
		}
		return &models.MergeResult{Errors: []string{err.Error()}}
	}
	if primary == nil {
		return &models.MergeResult{Errors: []string{ErrNoPrimary.Error()}}
	}
	if primary.ID != decision.PrimaryID {
		return &models.MergeResult{Errors: []string{
			fmt.Sprintf("decision is for primary %s but record %s was supplied", decision.PrimaryID, primary.ID),
		}}
	}

	unlock := e.locks.lock(decision.PrimaryID)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return &models.MergeResult{Errors: []string{err.Error()}}
	}

	merged := primary.Clone()
	errs := make([]string, 0)
	for _, res := range decision.Resolutions {
		if res.ResolvedValue == nil {
			continue
		}
		next, err := merged.WithField(res.Field, res.ResolvedValue)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		merged = next
	}

	if len(errs) > 0 {
		return &models.MergeResult{Errors: errs}
	}

	merged.ID = primary.ID
	merged.UpdatedAt = e.now().UTC()

	return &models.MergeResult{
		Success:            true,
		Merged:             merged,
		QualityImprovement: QualityImprovement(primary, merged),
	}
}

// keyedMutex serializes work per key and drops idle keys
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu      sync.Mutex
	waiters int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.waiters++
	k.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		k.mu.Lock()
		l.waiters--
		if l.waiters == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
