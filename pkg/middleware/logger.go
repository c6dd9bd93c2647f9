package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/metrics"
)

// quietPrefixes are polled by orchestrators and logged at debug level
var quietPrefixes = []string{"/api/v1/health", "/metrics"}

// Logger logs every request once it has been handled and records its latency.
// Server errors log at error level, client errors at warn.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}
			elapsed := time.Since(start)

			req := c.Request()
			res := c.Response()
			ctx := req.Context()

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			metrics.RecordHTTPRequest(req.Method, route, fmt.Sprintf("%dxx", res.Status/100), elapsed.Seconds())

			log := logger.WithContext(ctx).WithFields(map[string]any{
				"request_id":    context.GetRequestID(ctx),
				"operator":      context.GetOperator(ctx),
				"method":        req.Method,
				"uri":           req.RequestURI,
				"route":         route,
				"status":        res.Status,
				"remote_ip":     context.GetRemoteIP(ctx),
				"user_agent":    req.UserAgent(),
				"response_time": elapsed,
				"request_size":  req.ContentLength,
				"response_size": res.Size,
			})

			switch {
			case res.Status >= http.StatusInternalServerError:
				log.Error("Request failed")
			case res.Status >= http.StatusBadRequest:
				log.Warn("Request rejected")
			case quiet(req.URL.Path):
				log.Debug("Request")
			default:
				log.Info("Request")
			}
			return nil
		}
	}
}

func quiet(path string) bool {
	for _, prefix := range quietPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
