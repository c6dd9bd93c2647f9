package kafka

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Ramsey-B/clover/pkg/models"
)

// ErrEmptyMessage is returned when a message carries no event records
var ErrEmptyMessage = errors.New("message contains no events")

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	// Events is populated by ParseEvents
	Events []*models.EventRecord
}

// eventEnvelope is the multi-record message form
type eventEnvelope struct {
	Source string                `json:"source,omitempty"`
	Events []*models.EventRecord `json:"events"`
}

// ParseEvents decodes the value as a single event record, an array of records or an
// {"events": [...]} envelope. The envelope source and the source_name header fill in
// records that do not name their own source.
func (m *IncomingMessage) ParseEvents() error {
	trimmed := bytes.TrimSpace(m.Value)
	if len(trimmed) == 0 {
		return ErrEmptyMessage
	}

	var (
		events []*models.EventRecord
		source = m.Headers["source_name"]
	)
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &events); err != nil {
			return fmt.Errorf("failed to parse event array: %w", err)
		}
	case '{':
		var envelope eventEnvelope
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return fmt.Errorf("failed to parse event message: %w", err)
		}
		if envelope.Events != nil {
			events = envelope.Events
			if envelope.Source != "" {
				source = envelope.Source
			}
		} else {
			var record models.EventRecord
			if err := json.Unmarshal(trimmed, &record); err != nil {
				return fmt.Errorf("failed to parse event record: %w", err)
			}
			if record.ID == "" {
				record.ID = m.Key
			}
			events = []*models.EventRecord{&record}
		}
	default:
		return fmt.Errorf("unexpected message body starting with %q", trimmed[0])
	}

	out := make([]*models.EventRecord, 0, len(events))
	for _, event := range events {
		if event == nil || event.ID == "" {
			continue
		}
		if event.SourceName == "" {
			event.SourceName = source
		}
		out = append(out, event)
	}
	if len(out) == 0 {
		return ErrEmptyMessage
	}

	m.Events = out
	return nil
}
