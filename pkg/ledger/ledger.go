// Package ledger keeps the append-only audit log of executed merges
package ledger

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// DefaultOperator is recorded when a merge has no named operator
const DefaultOperator = "system"

var (
	// ErrInvalidMerge is returned when a merge cannot be recorded
	ErrInvalidMerge = errors.New("invalid merge for ledger")
	// ErrDuplicateEntry is returned when an entry id is already present
	ErrDuplicateEntry = errors.New("ledger entry already exists")
)

// Archiver receives a copy of every recorded entry
type Archiver interface {
	Archive(ctx context.Context, entry models.MergeHistory) error
}

// Ledger is the in-memory merge history with lookup indexes.
// Entries are never modified after they are appended.
type Ledger struct {
	logger   ectologger.Logger
	archiver Archiver

	mu         sync.RWMutex
	entries    []models.MergeHistory
	byID       map[string]int
	mergedInto map[string]string
	mergedFrom map[string][]string

	now   func() time.Time
	newID func() string
}

// New creates an empty ledger. archiver may be nil.
func New(logger ectologger.Logger, archiver Archiver) *Ledger {
	return &Ledger{
		logger:     logger,
		archiver:   archiver,
		byID:       make(map[string]int),
		mergedInto: make(map[string]string),
		mergedFrom: make(map[string][]string),
		now:        time.Now,
		newID:      func() string { return uuid.New().String() },
	}
}

// RecordMerge appends an entry for an executed merge and returns its id
func (l *Ledger) RecordMerge(
	ctx context.Context,
	decision *models.MergeDecision,
	before, after *models.EventRecord,
	operator string,
	processingTimeMs int64,
	qualityImprovement float64,
) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.Ledger.RecordMerge")
	defer span.End()

	if decision == nil || decision.PrimaryID == "" {
		return "", fmt.Errorf("%w: decision with a primary id is required", ErrInvalidMerge)
	}
	if len(decision.DuplicateIDs) == 0 {
		return "", fmt.Errorf("%w: at least one duplicate is required", ErrInvalidMerge)
	}
	if after == nil {
		return "", fmt.Errorf("%w: merged record is required", ErrInvalidMerge)
	}
	if operator == "" {
		operator = DefaultOperator
	}
	if processingTimeMs < 0 {
		processingTimeMs = 0
	}

	entry := models.MergeHistory{
		ID:                 l.newID(),
		PrimaryID:          decision.PrimaryID,
		DuplicateIDs:       append([]string(nil), decision.DuplicateIDs...),
		Timestamp:          l.now().UTC(),
		Operator:           operator,
		Strategy:           decision.Strategy,
		Confidence:         decision.Confidence,
		Changes:            buildChanges(decision, before, after),
		QualityImprovement: qualityImprovement,
		ProcessingTimeMs:   processingTimeMs,
	}

	if err := l.append(entry); err != nil {
		return "", err
	}

	l.logger.WithContext(ctx).WithFields(map[string]any{
		"history_id": entry.ID,
		"primary_id": entry.PrimaryID,
		"duplicates": len(entry.DuplicateIDs),
		"changes":    len(entry.Changes),
	}).Info("Recorded merge")

	l.archive(ctx, entry)

	return entry.ID, nil
}

func (l *Ledger) append(entry models.MergeHistory) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.byID[entry.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateEntry, entry.ID)
	}

	entry = cloneEntry(entry)
	l.byID[entry.ID] = len(l.entries)
	l.entries = append(l.entries, entry)
	l.index(entry)

	metrics.SetLedgerEntries(len(l.entries))
	return nil
}

// index must be called with the write lock held
func (l *Ledger) index(entry models.MergeHistory) {
	for _, dup := range entry.DuplicateIDs {
		l.mergedInto[dup] = entry.PrimaryID
		l.mergedFrom[entry.PrimaryID] = appendUnique(l.mergedFrom[entry.PrimaryID], dup)
	}
}

// SetArchiver replaces the archiver. nil stops archiving.
func (l *Ledger) SetArchiver(archiver Archiver) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.archiver = archiver
}

func (l *Ledger) archive(ctx context.Context, entry models.MergeHistory) {
	l.mu.RLock()
	archiver := l.archiver
	l.mu.RUnlock()

	if archiver == nil {
		return
	}
	if err := archiver.Archive(ctx, cloneEntry(entry)); err != nil {
		l.logger.WithContext(ctx).WithError(err).WithField("history_id", entry.ID).Warn("Failed to archive merge history")
	}
}

// Get returns the entry with the given id
func (l *Ledger) Get(id string) (models.MergeHistory, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	i, ok := l.byID[id]
	if !ok {
		return models.MergeHistory{}, false
	}
	return cloneEntry(l.entries[i]), true
}

// Len returns the number of entries
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Snapshot returns a copy of every entry in append order
func (l *Ledger) Snapshot() []models.MergeHistory {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.MergeHistory, len(l.entries))
	for i, entry := range l.entries {
		out[i] = cloneEntry(entry)
	}
	return out
}

// MergedInto follows merges forward from a record to the primary it finally ended up in
func (l *Ledger) MergedInto(id string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	primary, ok := l.mergedInto[id]
	if !ok {
		return "", false
	}

	seen := map[string]bool{id: true}
	for {
		next, ok := l.mergedInto[primary]
		if !ok || seen[next] {
			return primary, true
		}
		seen[primary] = true
		primary = next
	}
}

// MergedFrom lists the records directly merged into a primary
func (l *Ledger) MergedFrom(primaryID string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.mergedFrom[primaryID]...)
}

// Prune drops entries recorded before the cutoff and returns how many were removed
func (l *Ledger) Prune(ctx context.Context, cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := make([]models.MergeHistory, 0, len(l.entries))
	for _, entry := range l.entries {
		if entry.Timestamp.Before(cutoff) {
			continue
		}
		kept = append(kept, entry)
	}
	removed := len(l.entries) - len(kept)
	if removed == 0 {
		return 0
	}

	l.entries = kept
	l.byID = make(map[string]int, len(kept))
	l.mergedInto = make(map[string]string)
	l.mergedFrom = make(map[string][]string)
	for i, entry := range kept {
		l.byID[entry.ID] = i
		l.index(entry)
	}
	metrics.SetLedgerEntries(len(l.entries))

	l.logger.WithContext(ctx).WithFields(map[string]any{
		"removed": removed,
		"cutoff":  cutoff,
	}).Info("Pruned merge history")

	return removed
}

// buildChanges records the before/after value of every field the merge touched
func buildChanges(decision *models.MergeDecision, before, after *models.EventRecord) []models.FieldChange {
	changes := make([]models.FieldChange, 0, len(decision.Resolutions))
	for _, res := range decision.Resolutions {
		var beforeValue any
		if before != nil {
			beforeValue = before.Field(res.Field)
		}
		afterValue := after.Field(res.Field)
		if beforeValue == nil && afterValue == nil {
			continue
		}

		changes = append(changes, models.FieldChange{
			Field:      res.Field,
			Before:     beforeValue,
			After:      afterValue,
			Source:     changeSource(decision.PrimaryID, res, beforeValue),
			Confidence: res.Confidence,
		})
	}
	return changes
}

func changeSource(primaryID string, res models.ConflictResolution, before any) models.ChangeSource {
	switch {
	case res.ResolvedSource == models.SourceMerged:
		return models.ChangeSourceMerged
	case before == nil:
		return models.ChangeSourceEnhanced
	case res.ResolvedRecordID == primaryID:
		return models.ChangeSourcePrimary
	default:
		return models.ChangeSourceDuplicate
	}
}

// changed reports whether a change actually altered the field
func changed(c models.FieldChange) bool {
	return !reflect.DeepEqual(c.Before, c.After)
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

// cloneEntry copies an entry deeply enough that no slice or map is shared with the ledger
func cloneEntry(entry models.MergeHistory) models.MergeHistory {
	c := entry
	c.DuplicateIDs = append([]string(nil), entry.DuplicateIDs...)
	c.Changes = nil
	if len(entry.Changes) > 0 {
		c.Changes = make([]models.FieldChange, len(entry.Changes))
		for i, change := range entry.Changes {
			change.Before = models.CloneValue(change.Before)
			change.After = models.CloneValue(change.After)
			c.Changes[i] = change
		}
	}
	return c
}
