package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/batch"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
)

type fakeProcessor struct {
	mu    sync.Mutex
	calls [][]string
	modes []batch.Mode
	err   error
}

func (f *fakeProcessor) ProcessBatch(_ context.Context, events []*models.EventRecord, mode batch.Mode) (*batch.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := make([]string, 0, len(events))
	for _, event := range events {
		ids = append(ids, event.ID)
	}
	f.calls = append(f.calls, ids)
	f.modes = append(f.modes, mode)
	if f.err != nil {
		return nil, f.err
	}
	return &batch.Result{Mode: mode, Processed: len(events)}, nil
}

func (f *fakeProcessor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newBuffer(processor BatchProcessor, config BufferConfig) *Buffer {
	return NewBuffer(ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}), processor, config)
}

func event(id, title string) *models.EventRecord {
	return &models.EventRecord{ID: id, Title: title}
}

func TestNewBuffer_Defaults(t *testing.T) {
	b := newBuffer(&fakeProcessor{}, BufferConfig{})
	assert.Equal(t, DefaultMaxEvents, b.config.MaxEvents)
	assert.Equal(t, DefaultFlushInterval, b.config.FlushInterval)
	assert.Equal(t, batch.ModeDetect, b.config.Mode)
}

func TestBuffer_Add(t *testing.T) {
	b := newBuffer(&fakeProcessor{}, BufferConfig{})

	assert.Equal(t, 2, b.Add(event("a", "first"), event("b", "b"), nil, event("", "no id")))
	assert.Equal(t, 2, b.Add(event("a", "second")))
	assert.Equal(t, 2, b.Pending())

	events := b.drain()
	require.Len(t, events, 2)
	assert.Equal(t, "a", events[0].ID)
	assert.Equal(t, "second", events[0].Title)
	assert.Equal(t, 0, b.Pending())
}

func TestBuffer_Handle(t *testing.T) {
	ctx := context.Background()
	processor := &fakeProcessor{}
	b := newBuffer(processor, BufferConfig{MaxEvents: 3, Mode: batch.ModeMerge})

	require.NoError(t, b.Handle(ctx, &kafka.IncomingMessage{Events: []*models.EventRecord{event("a", ""), event("b", "")}}))
	assert.Equal(t, 0, processor.callCount())

	require.NoError(t, b.Handle(ctx, &kafka.IncomingMessage{Events: []*models.EventRecord{event("c", "")}}))
	require.Equal(t, 1, processor.callCount())
	assert.Equal(t, []string{"a", "b", "c"}, processor.calls[0])
	assert.Equal(t, batch.ModeMerge, processor.modes[0])
	assert.Equal(t, 0, b.Pending())
}

func TestBuffer_Flush(t *testing.T) {
	ctx := context.Background()

	t.Run("nothing pending", func(t *testing.T) {
		processor := &fakeProcessor{}
		result, err := newBuffer(processor, BufferConfig{}).Flush(ctx)
		require.NoError(t, err)
		assert.Nil(t, result)
		assert.Equal(t, 0, processor.callCount())
	})

	t.Run("processes pending events", func(t *testing.T) {
		b := newBuffer(&fakeProcessor{}, BufferConfig{})
		b.Add(event("a", ""), event("b", ""))

		result, err := b.Flush(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, result.Processed)
	})

	t.Run("failure requeues events", func(t *testing.T) {
		processor := &fakeProcessor{err: errors.New("boom")}
		b := newBuffer(processor, BufferConfig{MaxEvents: 2})

		err := b.Handle(ctx, &kafka.IncomingMessage{Events: []*models.EventRecord{event("a", ""), event("b", "")}})
		require.Error(t, err)
		assert.Equal(t, 2, b.Pending())

		b.Add(event("c", ""))
		processor.err = nil
		_, err = b.Flush(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, processor.calls[1])
	})
}

func TestBuffer_StartStop(t *testing.T) {
	processor := &fakeProcessor{}
	b := newBuffer(processor, BufferConfig{FlushInterval: 10 * time.Millisecond})

	b.Start(context.Background())
	b.Add(event("a", ""))

	require.Eventually(t, func() bool { return processor.callCount() == 1 }, time.Second, 5*time.Millisecond)

	b.Add(event("b", ""))
	require.NoError(t, b.Stop(context.Background()))
	assert.Equal(t, 0, b.Pending())

	processor.mu.Lock()
	defer processor.mu.Unlock()
	assert.Equal(t, []string{"b"}, processor.calls[len(processor.calls)-1])
}
