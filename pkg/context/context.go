// Package context carries request-scoped values through the API handlers
package context

import (
	"context"

	"github.com/Ramsey-B/clover/pkg/dedupe"
)

type ContextKey string

var (
	RequestIDKey = ContextKey("X-Request-Id")
	MethodKey    = ContextKey("X-Method")
	RouteKey     = ContextKey("X-Route")
	RemoteIPKey  = ContextKey("X-Remote-Ip")
	OperatorKey  = ContextKey("X-Operator")
	ServiceKey   = ContextKey("dedupe-service")
)

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	value, ok := ctx.Value(RequestIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

func SetMethod(ctx context.Context, method string) context.Context {
	return context.WithValue(ctx, MethodKey, method)
}

func GetMethod(ctx context.Context) string {
	value, ok := ctx.Value(MethodKey).(string)
	if !ok {
		return ""
	}
	return value
}

func SetRoute(ctx context.Context, route string) context.Context {
	return context.WithValue(ctx, RouteKey, route)
}

func GetRoute(ctx context.Context) string {
	value, ok := ctx.Value(RouteKey).(string)
	if !ok {
		return ""
	}
	return value
}

func SetRemoteIP(ctx context.Context, remoteIP string) context.Context {
	return context.WithValue(ctx, RemoteIPKey, remoteIP)
}

func GetRemoteIP(ctx context.Context) string {
	value, ok := ctx.Value(RemoteIPKey).(string)
	if !ok {
		return ""
	}
	return value
}

// SetOperator stores who is acting on the request; merges record it in the ledger
func SetOperator(ctx context.Context, operator string) context.Context {
	return context.WithValue(ctx, OperatorKey, operator)
}

func GetOperator(ctx context.Context) string {
	value, ok := ctx.Value(OperatorKey).(string)
	if !ok {
		return ""
	}
	return value
}

func SetService(ctx context.Context, service *dedupe.Service) context.Context {
	return context.WithValue(ctx, ServiceKey, service)
}

// GetService returns the engine attached by the service middleware, or nil
func GetService(ctx context.Context) *dedupe.Service {
	value, ok := ctx.Value(ServiceKey).(*dedupe.Service)
	if !ok {
		return nil
	}
	return value
}
