package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "pytest-lsp"

// SetupTracing installs a tracer provider and returns its shutdown
// function. No exporter is wired by default; embedders can register span
// processors on the returned provider before serving.
func SetupTracing() (*sdktrace.TracerProvider, func(context.Context) error) {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	return tp, tp.Shutdown
}

// Tracer returns the tracer used for analyze/resolve/scan spans.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span on the shared tracer.
func StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name)
}
