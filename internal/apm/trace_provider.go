package apm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"

	"github.com/fd1az/arbitrage-engine/internal/logger"
)

type Provider string

const (
	ZipkinProvider    Provider = "zipkin"
	NewRelicProvider  Provider = "newrelic"  // OTLP gRPC with api-key header
	HoneycombProvider Provider = "honeycomb" // OTLP HTTP with key=value header
	ConsoleProvider   Provider = "console"
	EmptyProvider     Provider = "none"
)

type TraceProvider interface {
	Stop() error
}

// ExporterConfig holds the exporter endpoint settings.
type ExporterConfig struct {
	ServiceName string
	Endpoint    string
	Headers     string // "key=value"
}

type traceProvider struct {
	tp *sdktrace.TracerProvider
}

type emptyTraceProvider struct{}

func (emptyTraceProvider) Stop() error { return nil }

// NewEmptyTraceProvider returns a provider that exports nothing.
func NewEmptyTraceProvider() TraceProvider {
	return emptyTraceProvider{}
}

func newExporter(provider Provider, cfg ExporterConfig) (sdktrace.SpanExporter, error) {
	ctx := context.Background()

	switch provider {
	case ZipkinProvider:
		return zipkin.New(cfg.Endpoint)

	case ConsoleProvider:
		return stdouttrace.New(stdouttrace.WithPrettyPrint())

	case NewRelicProvider:
		return otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithHeaders(map[string]string{"api-key": cfg.Headers}),
		)

	case HoneycombProvider:
		key, value, ok := strings.Cut(cfg.Headers, "=")
		if !ok {
			return nil, fmt.Errorf("invalid otlp headers %q, expected key=value", cfg.Headers)
		}
		return otlptracehttp.New(ctx,
			otlptracehttp.WithEndpointURL(cfg.Endpoint),
			otlptracehttp.WithHeaders(map[string]string{key: value}),
		)
	}

	return nil, fmt.Errorf("unknown trace provider %q", provider)
}

// NewTraceProvider installs a global tracer provider for the named exporter. Unknown
// or failing exporters fall back to the empty provider so tracing never blocks startup.
func NewTraceProvider(log logger.LoggerInterface, provider Provider, cfg ExporterConfig) TraceProvider {
	if provider == EmptyProvider || provider == "" {
		return NewEmptyTraceProvider()
	}

	exp, err := newExporter(provider, cfg)
	if err != nil {
		log.Warn(context.Background(), "trace exporter unavailable, tracing disabled",
			"provider", provider, "error", err)
		return NewEmptyTraceProvider()
	}

	rsrc, _ := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(cfg.ServiceName),
			attribute.String("otel.provider", string(provider)),
		))

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(rsrc),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))

	log.Info(context.Background(), "tracing enabled", "provider", provider, "endpoint", cfg.Endpoint)
	return &traceProvider{tp}
}

func (o *traceProvider) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return o.tp.Shutdown(ctx)
}
