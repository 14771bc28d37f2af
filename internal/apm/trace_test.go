package apm

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/fd1az/arbitrage-engine/internal/logger"
)

func TestNewTraceProvider_FallsBackToEmpty(t *testing.T) {
	log := logger.Discard()

	if _, ok := NewTraceProvider(log, EmptyProvider, ExporterConfig{}).(emptyTraceProvider); !ok {
		t.Error("expected empty provider for none")
	}
	if _, ok := NewTraceProvider(log, Provider("jaeger"), ExporterConfig{}).(emptyTraceProvider); !ok {
		t.Error("expected empty provider for an unknown exporter")
	}
	if _, ok := NewTraceProvider(log, HoneycombProvider, ExporterConfig{Headers: "missing-separator"}).(emptyTraceProvider); !ok {
		t.Error("expected empty provider for malformed headers")
	}
}

func TestTracer_RecordsAttributesAndErrors(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	tracer := NewTracer("test")
	ctx, span := tracer.Start(context.Background(), "ledger.record", attribute.String("execution_id", "exec-1"))
	span.NoticeError(nil)
	if !tracer.SpanFromContext(ctx).SpanContext().Equal(span.SpanContext()) {
		t.Error("SpanFromContext returns the started span")
	}
	span.NoticeError(errors.New("disk full"))
	span.End()

	ended := recorder.Ended()
	if len(ended) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(ended))
	}
	got := ended[0]
	if got.Name() != "ledger.record" {
		t.Errorf("name = %s", got.Name())
	}
	if got.Status().Code != codes.Error || got.Status().Description != "disk full" {
		t.Errorf("status = %+v", got.Status())
	}
	found := false
	for _, kv := range got.Attributes() {
		if kv.Key == "execution_id" && kv.Value.AsString() == "exec-1" {
			found = true
		}
	}
	if !found {
		t.Errorf("attributes = %v", got.Attributes())
	}
}
