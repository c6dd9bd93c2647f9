// Package tracing wraps OpenTelemetry span creation for clover components.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var tracer trace.Tracer = noop.NewTracerProvider().Tracer("")

// SetTracer sets the tracer used by StartSpan. nil restores the no-op tracer.
func SetTracer(t trace.Tracer) {
	if t == nil {
		t = noop.NewTracerProvider().Tracer("")
	}
	tracer = t
}

// StartSpan starts a span named after the component method, e.g. "ledger.Ledger.Export"
func StartSpan(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if len(attrs) == 0 {
		return tracer.Start(ctx, spanName)
	}
	return tracer.Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// RecordError marks the span failed. A nil error is ignored.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// GetTraceID returns the id of the trace carried by ctx, or "" when it is not sampled
func GetTraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
