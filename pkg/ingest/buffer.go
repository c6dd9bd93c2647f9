// Package ingest collects events arriving from the stream and hands them to batch processing
package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/batch"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Defaults used when BufferConfig leaves a value unset
const (
	DefaultMaxEvents     = 500
	DefaultFlushInterval = 5 * time.Second
)

// BatchProcessor runs batch deduplication
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, events []*models.EventRecord, mode batch.Mode) (*batch.Result, error)
}

// BufferConfig controls when buffered events are flushed
type BufferConfig struct {
	MaxEvents     int
	FlushInterval time.Duration
	Mode          batch.Mode
}

// Buffer accumulates events from consumed messages and flushes them to the batch processor
// when MaxEvents is reached or FlushInterval elapses. An event id seen twice before a flush
// keeps its latest version.
type Buffer struct {
	logger    ectologger.Logger
	processor BatchProcessor
	config    BufferConfig

	mu      sync.Mutex
	pending []*models.EventRecord
	index   map[string]int

	flushMu sync.Mutex
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// NewBuffer creates a buffer
func NewBuffer(logger ectologger.Logger, processor BatchProcessor, config BufferConfig) *Buffer {
	if config.MaxEvents <= 0 {
		config.MaxEvents = DefaultMaxEvents
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = DefaultFlushInterval
	}
	if config.Mode == "" {
		config.Mode = batch.ModeDetect
	}
	return &Buffer{
		logger:    logger,
		processor: processor,
		config:    config,
		index:     make(map[string]int),
	}
}

// Handle is a kafka.MessageHandler. It returns an error only when a flush it triggered fails,
// so the message is redelivered.
func (b *Buffer) Handle(ctx context.Context, msg *kafka.IncomingMessage) error {
	if b.Add(msg.Events...) < b.config.MaxEvents {
		return nil
	}
	_, err := b.Flush(ctx)
	return err
}

// Add buffers events and returns the number pending
func (b *Buffer) Add(events ...*models.EventRecord) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, event := range events {
		if event == nil || event.ID == "" {
			continue
		}
		if i, ok := b.index[event.ID]; ok {
			b.pending[i] = event
			continue
		}
		b.index[event.ID] = len(b.pending)
		b.pending = append(b.pending, event)
	}
	return len(b.pending)
}

// Pending returns the number of buffered events
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Flush processes every buffered event. It returns nil, nil when nothing is pending.
// Events are put back when processing fails without a result.
func (b *Buffer) Flush(ctx context.Context) (*batch.Result, error) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	ctx, span := tracing.StartSpan(ctx, "ingest.Buffer.Flush")
	defer span.End()

	events := b.drain()
	if len(events) == 0 {
		return nil, nil
	}

	result, err := b.processor.ProcessBatch(ctx, events, b.config.Mode)
	if err != nil {
		if result == nil {
			b.requeue(events)
		}
		b.logger.WithContext(ctx).WithError(err).WithField("events", len(events)).Error("Failed to process buffered events")
		return result, err
	}

	b.logger.WithContext(ctx).WithFields(map[string]any{
		"events":     len(events),
		"clusters":   len(result.Clusters),
		"merges":     result.MergesCompleted,
		"duplicates": result.DuplicatesFound,
	}).Info("Flushed buffered events")

	return result, nil
}

func (b *Buffer) drain() []*models.EventRecord {
	b.mu.Lock()
	defer b.mu.Unlock()

	events := b.pending
	b.pending = nil
	b.index = make(map[string]int)
	return events
}

// requeue puts events back ahead of anything added since the drain
func (b *Buffer) requeue(events []*models.EventRecord) {
	b.mu.Lock()
	newer := b.pending
	b.pending = nil
	b.index = make(map[string]int)
	b.mu.Unlock()

	b.Add(events...)
	b.Add(newer...)
}

// Start flushes on FlushInterval until Stop is called
func (b *Buffer) Start(ctx context.Context) {
	ctx, b.cancel = context.WithCancel(ctx)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		ticker := time.NewTicker(b.config.FlushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = b.Flush(ctx)
			}
		}
	}()
}

// Stop ends the flush loop and flushes whatever is left
func (b *Buffer) Stop(ctx context.Context) error {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()

	_, err := b.Flush(ctx)
	return err
}
