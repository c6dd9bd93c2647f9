// Package events announces executed merges to downstream consumers
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// EventTypeMerged is the event type of a merge announcement
const EventTypeMerged = "event.merged"

// ErrCircuitOpen is returned while the breaker rejects publishes
var ErrCircuitOpen = errors.New("merge event publishing is paused")

// MergePublisher writes merge events to the stream
type MergePublisher interface {
	PublishMergeEvent(ctx context.Context, event *kafka.MergeEvent) error
}

// BreakerConfig controls when publishing is paused after failures
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the breaker
	MaxFailures uint32
	// Timeout is how long the breaker stays open before a trial publish
	Timeout time.Duration
	// HalfOpenRequests is the number of trial publishes allowed while half-open
	HalfOpenRequests uint32
}

// DefaultBreakerConfig returns the breaker settings used by the service
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures:      5,
		Timeout:          30 * time.Second,
		HalfOpenRequests: 1,
	}
}

// Emitter publishes merges through a circuit breaker
type Emitter struct {
	producer MergePublisher
	breaker  *gobreaker.CircuitBreaker
	logger   ectologger.Logger
}

// NewEmitter creates a new merge event emitter
func NewEmitter(producer MergePublisher, cfg BreakerConfig, logger ectologger.Logger) *Emitter {
	e := &Emitter{
		producer: producer,
		logger:   logger,
	}
	e.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "merge-events",
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Merge event breaker changed state")
		},
	})
	return e
}

// State returns the breaker state
func (e *Emitter) State() gobreaker.State {
	return e.breaker.State()
}

// PublishMerge announces a recorded merge with the merged record
func (e *Emitter) PublishMerge(ctx context.Context, entry models.MergeHistory, merged *models.EventRecord) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.PublishMerge", attribute.String("history_id", entry.ID))
	defer span.End()

	var data json.RawMessage
	if merged != nil {
		encoded, err := json.Marshal(merged)
		if err != nil {
			return err
		}
		data = encoded
	}

	event := &kafka.MergeEvent{
		EventType:          EventTypeMerged,
		HistoryID:          entry.ID,
		PrimaryID:          entry.PrimaryID,
		DuplicateIDs:       entry.DuplicateIDs,
		Strategy:           entry.Strategy,
		Operator:           entry.Operator,
		Confidence:         entry.Confidence,
		QualityImprovement: entry.QualityImprovement,
		Merged:             data,
		Timestamp:          entry.Timestamp,
	}

	_, err := e.breaker.Execute(func() (any, error) {
		return nil, e.producer.PublishMergeEvent(ctx, event)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		e.logger.WithContext(ctx).WithField("history_id", entry.ID).Warn("Skipped merge event while publishing is paused")
		return ErrCircuitOpen
	}
	if err != nil {
		tracing.RecordError(span, err)
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit event.merged event")
		return err
	}
	return nil
}
