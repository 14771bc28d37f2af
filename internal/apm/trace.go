package apm

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Tracer starts spans for one instrumentation scope. Spans come back as Span so
// callers mark failures with NoticeError instead of pairing RecordError and SetStatus.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, Span)
	SpanFromContext(ctx context.Context) Span
}

type scopedTracer struct {
	scope string
}

// NewTracer returns a tracer for scope. The global provider is resolved on every
// Start, so a tracer built before main installs the exporter still reports to it.
func NewTracer(scope string) Tracer {
	return scopedTracer{scope: scope}
}

func (t scopedTracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, Span) {
	ctx, span := otel.Tracer(t.scope).Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, NewSpan(span)
}

func (t scopedTracer) SpanFromContext(ctx context.Context) Span {
	return NewSpan(trace.SpanFromContext(ctx))
}
