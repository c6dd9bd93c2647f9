// Package routes assembles the HTTP API of the dedupe service
package routes

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/clover/pkg/dedupe"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/routes/batches"
	"github.com/Ramsey-B/clover/pkg/routes/duplicates"
	"github.com/Ramsey-B/clover/pkg/routes/health"
	"github.com/Ramsey-B/clover/pkg/routes/merges"
	"github.com/Ramsey-B/clover/pkg/routes/reports"
	"github.com/Ramsey-B/clover/pkg/routes/rules"
	"github.com/Ramsey-B/clover/pkg/routes/settings"
	"github.com/Ramsey-B/clover/pkg/routes/sources"
)

// maxBodySize bounds request bodies; batches of events are the largest
const maxBodySize = "32M"

// NewRouter builds the echo instance serving the API, health checks and metrics
func NewRouter(logger ectologger.Logger, serviceName string, service *dedupe.Service, checker *health.Checker) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(echomw.Recover())
	e.Use(echomw.BodyLimit(maxBodySize))
	e.Use(otelecho.Middleware(serviceName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Service(service))

	checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	duplicates.Register(api.Group("/duplicates"))
	batches.Register(api.Group("/batches"))
	merges.Register(api.Group("/merges"))
	reports.Register(api.Group("/reports"))
	settings.Register(api.Group("/config"))
	sources.Register(api.Group("/sources"))
	rules.Register(api.Group("/rules"))

	return e
}
