package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/dedupe"
)

const (
	// HeaderOperator names the person or system acting on a request
	HeaderOperator = "X-Operator"
	// HeaderUserID is accepted as the operator when HeaderOperator is absent
	HeaderUserID = "X-User-ID"
)

func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			operator := req.Header.Get(HeaderOperator)
			if operator == "" {
				operator = req.Header.Get(HeaderUserID)
			}

			ctx := req.Context()
			ctx = context.SetRequestID(ctx, requestID)
			ctx = context.SetMethod(ctx, req.Method)
			ctx = context.SetRoute(ctx, req.URL.Path)
			ctx = context.SetRemoteIP(ctx, c.RealIP())
			ctx = context.SetOperator(ctx, operator)

			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}

// Service attaches the dedupe engine to every request
func Service(service *dedupe.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			c.SetRequest(req.WithContext(context.SetService(req.Context(), service)))
			return next(c)
		}
	}
}
