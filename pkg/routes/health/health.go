package health

import (
	"context"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/dedupe"
)

// pingTimeout bounds each dependency check
const pingTimeout = 2 * time.Second

// Pinger is a dependency that can report whether it is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker handles health check endpoints
type Checker struct {
	service      *dedupe.Service
	dependencies map[string]Pinger
	version      string
	startTime    time.Time
	ready        atomic.Bool
}

// NewChecker creates a new health checker
func NewChecker(service *dedupe.Service, version string) *Checker {
	return &Checker{
		service:      service,
		dependencies: make(map[string]Pinger),
		version:      version,
		startTime:    time.Now(),
	}
}

// AddDependency adds an external dependency to the health report
func (c *Checker) AddDependency(name string, dependency Pinger) {
	c.dependencies[name] = dependency
}

// SetReady sets the readiness state
func (c *Checker) SetReady(ready bool) {
	c.ready.Store(ready)
}

// RegisterRoutes registers health check endpoints
func (c *Checker) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/v1/health", c.Health)
	e.GET("/api/v1/health/live", c.Live)
	e.GET("/api/v1/health/ready", c.Ready)
}

// HealthStatus represents the health check response
type HealthStatus struct {
	Status       dedupe.HealthStatus     `json:"status"`
	Version      string                  `json:"version"`
	Uptime       string                  `json:"uptime"`
	Engine       dedupe.HealthReport     `json:"engine"`
	Dependencies map[string]*CheckResult `json:"dependencies,omitempty"`
	ReportedAt   time.Time               `json:"reported_at"`
}

// CheckResult represents an individual dependency check
type CheckResult struct {
	Status  dedupe.HealthStatus `json:"status"`
	Message string              `json:"message,omitempty"`
	Latency string              `json:"latency,omitempty"`
}

// Health returns the engine and dependency health. Engine warnings still answer 200;
// any error answers 503.
func (c *Checker) Health(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	engine := c.service.Health(reqCtx)

	status := &HealthStatus{
		Status:       engine.Status,
		Version:      c.version,
		Uptime:       time.Since(c.startTime).Round(time.Second).String(),
		Engine:       engine,
		Dependencies: make(map[string]*CheckResult, len(c.dependencies)),
		ReportedAt:   time.Now().UTC(),
	}

	names := make([]string, 0, len(c.dependencies))
	for name := range c.dependencies {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pingCtx, cancel := context.WithTimeout(reqCtx, pingTimeout)
		start := time.Now()
		err := c.dependencies[name].Ping(pingCtx)
		latency := time.Since(start)
		cancel()

		if err != nil {
			status.Status = dedupe.StatusError
			status.Dependencies[name] = &CheckResult{
				Status:  dedupe.StatusError,
				Message: err.Error(),
			}
			continue
		}
		status.Dependencies[name] = &CheckResult{
			Status:  dedupe.StatusHealthy,
			Latency: latency.String(),
		}
	}

	httpStatus := http.StatusOK
	if status.Status == dedupe.StatusError {
		httpStatus = http.StatusServiceUnavailable
	}

	return ctx.JSON(httpStatus, status)
}

// Live returns the liveness status (is the service running)
func (c *Checker) Live(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{"status": "alive"})
}

// Ready returns the readiness status (is the service ready to accept traffic)
func (c *Checker) Ready(ctx echo.Context) error {
	if c.ready.Load() {
		return ctx.JSON(http.StatusOK, map[string]string{"status": "ready"})
	}
	return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
}
