package resolution

import (
	"sort"
	"sync"

	"github.com/Ramsey-B/clover/pkg/models"
)

// HistoryCapacity is the number of resolutions retained per field
const HistoryCapacity = 100

// ring is a fixed-capacity buffer that overwrites its oldest entry when full
type ring[T any] struct {
	items []T
	next  int
	full  bool
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{items: make([]T, capacity)}
}

func (r *ring[T]) add(item T) {
	r.items[r.next] = item
	r.next = (r.next + 1) % len(r.items)
	if r.next == 0 {
		r.full = true
	}
}

func (r *ring[T]) len() int {
	if r.full {
		return len(r.items)
	}
	return r.next
}

// snapshot returns the entries oldest first
func (r *ring[T]) snapshot() []T {
	if !r.full {
		return append([]T(nil), r.items[:r.next]...)
	}
	out := make([]T, 0, len(r.items))
	out = append(out, r.items[r.next:]...)
	return append(out, r.items[:r.next]...)
}

// History keeps the most recent resolutions of every field
type History struct {
	mu       sync.Mutex
	capacity int
	fields   map[string]*ring[models.ConflictResolution]
}

// HistoryStats summarizes retained resolutions
type HistoryStats struct {
	Resolutions      int            `json:"resolutions"`
	ManualReviews    int            `json:"manual_reviews"`
	ManualReviewRate float64        `json:"manual_review_rate"`
	ByField          map[string]int `json:"by_field"`
}

// NewHistory creates a history retaining capacity entries per field
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = HistoryCapacity
	}
	return &History{
		capacity: capacity,
		fields:   make(map[string]*ring[models.ConflictResolution]),
	}
}

// Add appends a resolution, evicting the field's oldest entry when full
func (h *History) Add(resolution models.ConflictResolution) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.fields[resolution.Field]
	if !ok {
		r = newRing[models.ConflictResolution](h.capacity)
		h.fields[resolution.Field] = r
	}
	r.add(resolution)
}

// Field returns the retained resolutions of a field, oldest first
func (h *History) Field(field string) []models.ConflictResolution {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.fields[field]
	if !ok {
		return nil
	}
	return r.snapshot()
}

// Fields lists the fields with retained resolutions
func (h *History) Fields() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	fields := make([]string, 0, len(h.fields))
	for field := range h.fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// Stats counts retained resolutions and manual reviews
func (h *History) Stats() HistoryStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	stats := HistoryStats{ByField: make(map[string]int, len(h.fields))}
	for field, r := range h.fields {
		stats.ByField[field] = r.len()
		for _, resolution := range r.snapshot() {
			stats.Resolutions++
			if resolution.RequiresManualReview {
				stats.ManualReviews++
			}
		}
	}
	if stats.Resolutions > 0 {
		stats.ManualReviewRate = float64(stats.ManualReviews) / float64(stats.Resolutions)
	}
	return stats
}

// Reset drops every retained resolution
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fields = make(map[string]*ring[models.ConflictResolution])
}
