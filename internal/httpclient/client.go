package httpclient

import (
	"context"
	"net"
	"net/http"
	"net/http/httptrace"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/httptrace/otelhttptrace"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultTimeout         = 10 * time.Second
	defaultKeepAlive       = 10 * time.Second
	defaultMaxConnsPerHost = 5
	defaultIdleConnTimeout = 2 * time.Minute

	instrumentationName = "github.com/fd1az/arbitrage-engine/internal/httpclient"
)

// Client creates requests against one upstream.
type Client interface {
	NewRequest(opts ...RequestOption) Request
}

type client struct {
	http    *http.Client
	name    string
	baseURL string
	headers http.Header

	tracer   trace.Tracer
	requests metric.Int64Counter
	latency  metric.Float64Histogram
}

// New builds a client whose transport is traced by otelhttp and whose requests are
// counted per upstream name, route and outcome.
func New(opts ...Option) (Client, error) {
	o := options{name: "default", timeout: defaultTimeout, headers: http.Header{}}
	for _, opt := range opts {
		opt(&o)
	}

	transport := o.transport
	if transport == nil {
		transport = &http.Transport{
			DialContext:     (&net.Dialer{KeepAlive: defaultKeepAlive}).DialContext,
			MaxConnsPerHost: defaultMaxConnsPerHost,
			IdleConnTimeout: defaultIdleConnTimeout,
		}
	}

	c := &client{
		http: &http.Client{
			Timeout: o.timeout,
			Transport: otelhttp.NewTransport(transport,
				otelhttp.WithClientTrace(func(ctx context.Context) *httptrace.ClientTrace {
					return otelhttptrace.NewClientTrace(ctx)
				}),
			),
		},
		name:    o.name,
		baseURL: o.baseURL,
		headers: o.headers,
		tracer:  otel.Tracer(instrumentationName),
	}

	if err := c.initMetrics(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *client) initMetrics() error {
	meter := otel.Meter(instrumentationName,
		metric.WithInstrumentationAttributes(attribute.String("upstream", c.name)))
	var err error

	c.requests, err = meter.Int64Counter(
		"http_client_requests_total",
		metric.WithDescription("Outbound HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	c.latency, err = meter.Float64Histogram(
		"http_client_request_duration_seconds",
		metric.WithDescription("Outbound HTTP request latency"),
		metric.WithUnit("s"),
	)
	return err
}

func (c *client) NewRequest(opts ...RequestOption) Request {
	o := requestOptions{headers: c.headers.Clone()}
	for _, opt := range opts {
		opt(&o)
	}
	return &request{client: c, route: o.route, onError: o.onError, headers: o.headers}
}
