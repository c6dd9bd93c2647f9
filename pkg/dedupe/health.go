package dedupe

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/Ramsey-B/clover/pkg/ledger"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// HealthStatus is the state of one component or of the whole engine
type HealthStatus string

const (
	StatusHealthy HealthStatus = "healthy"
	StatusWarning HealthStatus = "warning"
	StatusError   HealthStatus = "error"
)

// Health thresholds
const (
	// cacheFullShare is the cache fill level above which more capacity is recommended
	cacheFullShare = 0.9
	// reviewWarningRate and reviewErrorRate bound the share of resolutions needing review
	reviewWarningRate = 0.2
	reviewErrorRate   = 0.5
	// heapWarningBytes is the heap size above which memory is reported as a warning
	heapWarningBytes = 1 << 30
)

// ComponentHealth describes one engine component
type ComponentHealth struct {
	Status          HealthStatus   `json:"status"`
	Metrics         map[string]any `json:"metrics"`
	Recommendations []string       `json:"recommendations,omitempty"`
}

// HealthReport is the overall engine health
type HealthReport struct {
	Status          HealthStatus               `json:"status"`
	Components      map[string]ComponentHealth `json:"components"`
	Recommendations []string                   `json:"recommendations,omitempty"`
	CheckedAt       time.Time                  `json:"checked_at"`
	Uptime          string                     `json:"uptime"`
}

// Health inspects every component. The overall status is the worst component status.
func (s *Service) Health(ctx context.Context) HealthReport {
	ctx, span := tracing.StartSpan(ctx, "dedupe.Service.Health")
	defer span.End()

	report := HealthReport{
		Status: StatusHealthy,
		Components: map[string]ComponentHealth{
			"matching":   s.matchingHealth(),
			"resolution": s.resolutionHealth(),
			"ledger":     s.ledgerHealth(ctx),
			"batch":      s.batchHealth(),
			"memory":     memoryHealth(),
		},
		CheckedAt: time.Now().UTC(),
		Uptime:    time.Since(s.started).Round(time.Second).String(),
	}

	for _, name := range []string{"matching", "resolution", "ledger", "batch", "memory"} {
		component := report.Components[name]
		report.Status = worse(report.Status, component.Status)
		report.Recommendations = append(report.Recommendations, component.Recommendations...)
	}

	if report.Status != StatusHealthy {
		s.logger.WithContext(ctx).WithField("status", report.Status).Warn("Dedupe engine is degraded")
	}

	return report
}

func (s *Service) matchingHealth() ComponentHealth {
	config := s.scorer.Config()
	stats := s.scorer.CacheStats()

	health := ComponentHealth{
		Status: StatusHealthy,
		Metrics: map[string]any{
			"cache_enabled":  stats.Enabled,
			"cache_size":     stats.Size,
			"cache_capacity": config.Performance.CacheSize,
			"cache_hits":     stats.Hits,
			"cache_misses":   stats.Misses,
			"hit_rate":       hitRate(stats.Hits, stats.Misses),
		},
	}

	if !stats.Enabled {
		health.Status = StatusWarning
		health.Recommendations = append(health.Recommendations, "Enable similarity caching to avoid recomputing pair scores")
		return health
	}
	if float64(stats.Size) > float64(config.Performance.CacheSize)*cacheFullShare {
		health.Status = StatusWarning
		health.Recommendations = append(health.Recommendations,
			fmt.Sprintf("Similarity cache is %d of %d entries; consider raising performance.cache_size", stats.Size, config.Performance.CacheSize))
	}
	return health
}

func (s *Service) resolutionHealth() ComponentHealth {
	stats := s.resolver.History().Stats()

	health := ComponentHealth{
		Status: StatusHealthy,
		Metrics: map[string]any{
			"resolutions":        stats.Resolutions,
			"manual_reviews":     stats.ManualReviews,
			"manual_review_rate": stats.ManualReviewRate,
			"sources":            len(s.resolver.Sources().List()),
		},
	}

	switch {
	case stats.ManualReviewRate > reviewErrorRate:
		health.Status = StatusError
		health.Recommendations = append(health.Recommendations,
			fmt.Sprintf("%.0f%% of resolutions need manual review; review conflict rules and source reliability", stats.ManualReviewRate*100))
	case stats.ManualReviewRate > reviewWarningRate:
		health.Status = StatusWarning
		health.Recommendations = append(health.Recommendations,
			fmt.Sprintf("%.0f%% of resolutions need manual review", stats.ManualReviewRate*100))
	}
	return health
}

func (s *Service) ledgerHealth(ctx context.Context) ComponentHealth {
	issues := s.ledger.QualityIssues(ctx)

	health := ComponentHealth{
		Status: StatusHealthy,
		Metrics: map[string]any{
			"total_merges":   s.ledger.Len(),
			"quality_issues": len(issues),
		},
	}

	for _, issue := range issues {
		switch issue.Severity {
		case ledger.SeverityError:
			health.Status = worse(health.Status, StatusError)
		default:
			health.Status = worse(health.Status, StatusWarning)
		}
		health.Recommendations = append(health.Recommendations, issue.Message)
	}
	return health
}

func (s *Service) batchHealth() ComponentHealth {
	stats := s.coordinator.Stats()
	return ComponentHealth{
		Status: StatusHealthy,
		Metrics: map[string]any{
			"batches":           stats.Batches,
			"records_processed": stats.RecordsProcessed,
			"comparisons":       stats.Comparisons,
			"clusters_found":    stats.ClustersFound,
			"last_duration_ms":  stats.LastDuration.Milliseconds(),
		},
	}
}

func memoryHealth() ComponentHealth {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	health := ComponentHealth{
		Status: StatusHealthy,
		Metrics: map[string]any{
			"heap_alloc_bytes": mem.HeapAlloc,
			"sys_bytes":        mem.Sys,
			"goroutines":       runtime.NumGoroutine(),
		},
	}
	if mem.HeapAlloc > heapWarningBytes {
		health.Status = StatusWarning
		health.Recommendations = append(health.Recommendations, "Heap usage is above 1GiB; clear the similarity cache or prune the ledger")
	}
	return health
}

func hitRate(hits, misses int64) float64 {
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}

func worse(a, b HealthStatus) HealthStatus {
	rank := map[HealthStatus]int{StatusHealthy: 0, StatusWarning: 1, StatusError: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
