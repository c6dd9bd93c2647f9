// Package resolution resolves field-level conflicts between duplicate event records.
package resolution

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Ramsey-B/clover/pkg/models"
)

// DefaultReliability is used for sources that were never registered
const DefaultReliability = 0.5

var validate = validator.New(validator.WithRequiredStructEnabled())

// SourceRegistry holds the reliability of known data sources
type SourceRegistry struct {
	mu      sync.RWMutex
	sources map[string]models.DataSource
}

// NewSourceRegistry creates a registry seeded with the built-in manual and primary sources
func NewSourceRegistry() *SourceRegistry {
	return &SourceRegistry{
		sources: map[string]models.DataSource{
			models.SourceManual: {
				Name:        models.SourceManual,
				Reliability: 1.0,
				DataQuality: 1.0,
			},
			models.SourcePrimary: {
				Name:        models.SourcePrimary,
				Reliability: 0.9,
				DataQuality: 0.9,
			},
		},
	}
}

// Register adds or replaces a source
func (r *SourceRegistry) Register(source models.DataSource) error {
	if err := validate.Struct(source); err != nil {
		return fmt.Errorf("invalid data source: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[source.Name] = source
	return nil
}

// Update changes the reliability and quality of a registered source and stamps its update time.
// Unknown sources are registered.
func (r *SourceRegistry) Update(name string, reliability, quality float64, updatedAt time.Time) error {
	return r.Register(models.DataSource{
		Name:        name,
		Reliability: reliability,
		DataQuality: quality,
		LastUpdated: updatedAt,
	})
}

// Get returns a registered source
func (r *SourceRegistry) Get(name string) (models.DataSource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	source, ok := r.sources[name]
	return source, ok
}

// Reliability returns the reliability of a source, or DefaultReliability when unknown
func (r *SourceRegistry) Reliability(name string) float64 {
	if source, ok := r.Get(name); ok {
		return source.Reliability
	}
	return DefaultReliability
}

// LastUpdated returns the last update time of a source, or the zero time when unknown
func (r *SourceRegistry) LastUpdated(name string) time.Time {
	if source, ok := r.Get(name); ok {
		return source.LastUpdated
	}
	return time.Time{}
}

// List returns every registered source ordered by name
func (r *SourceRegistry) List() []models.DataSource {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]models.DataSource, 0, len(r.sources))
	for _, source := range r.sources {
		sources = append(sources, source)
	}
	sort.Slice(sources, func(i, j int) bool {
		return sources[i].Name < sources[j].Name
	})
	return sources
}
