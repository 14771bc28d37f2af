package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/arbitrage-engine/internal/apperror"
)

// Request builds and executes one HTTP call.
type Request interface {
	Get(ctx context.Context, path string) (*Response, error)
	Post(ctx context.Context, path string) (*Response, error)

	SetBody(body any) Request
	SetHeader(key, value string) Request
	SetQueryParam(key, value string) Request
	SetResult(result any) Request
}

// Response is an http.Response whose body has already been read.
type Response struct {
	*http.Response
	body []byte
}

// Body returns the raw response body.
func (r *Response) Body() []byte {
	return r.body
}

// IsError reports a 4xx or 5xx status.
func (r *Response) IsError() bool {
	return r.StatusCode >= 400
}

// StatusErrorHandler maps non-2xx responses to AppErrors with the given code; 429
// becomes CodeRateLimitExceeded. The upstream status is kept in the error context.
func StatusErrorHandler(code apperror.Code) ErrorHandler {
	return func(status int, body []byte) error {
		if status < 300 {
			return nil
		}
		c := code
		if status == http.StatusTooManyRequests {
			c = apperror.CodeRateLimitExceeded
		}
		return apperror.New(c,
			apperror.WithStatusCode(http.StatusBadGateway),
			apperror.WithContext(fmt.Sprintf("upstream status %d: %s", status, truncate(body, 256))))
	}
}

type request struct {
	client  *client
	route   string
	onError ErrorHandler
	headers http.Header
	query   url.Values
	body    any
	result  any
}

func (r *request) Get(ctx context.Context, path string) (*Response, error) {
	return r.do(ctx, http.MethodGet, path)
}

func (r *request) Post(ctx context.Context, path string) (*Response, error) {
	return r.do(ctx, http.MethodPost, path)
}

func (r *request) SetBody(body any) Request {
	r.body = body
	return r
}

func (r *request) SetHeader(key, value string) Request {
	r.headers.Set(key, value)
	return r
}

func (r *request) SetQueryParam(key, value string) Request {
	if r.query == nil {
		r.query = url.Values{}
	}
	r.query.Set(key, value)
	return r
}

func (r *request) SetResult(result any) Request {
	r.result = result
	return r
}

func (r *request) url(path string) string {
	full := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		full = strings.TrimSuffix(r.client.baseURL, "/") + "/" + strings.TrimPrefix(path, "/")
	}
	if len(r.query) == 0 {
		return full
	}
	if strings.Contains(full, "?") {
		return full + "&" + r.query.Encode()
	}
	return full + "?" + r.query.Encode()
}

func (r *request) encode() (io.Reader, error) {
	switch b := r.body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return bytes.NewReader(b), nil
	case io.Reader:
		return b, nil
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			return nil, err
		}
		if r.headers.Get("Content-Type") == "" {
			r.headers.Set("Content-Type", "application/json")
		}
		return bytes.NewReader(raw), nil
	}
}

func (r *request) do(ctx context.Context, method, path string) (*Response, error) {
	target := r.url(path)
	ctx, span := r.client.tracer.Start(ctx, "http.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.url", target),
			attribute.String("upstream", r.client.name),
		),
	)
	defer span.End()

	start := time.Now()
	outcome := "error"
	defer func() { r.record(ctx, outcome, start) }()

	body, err := r.encode()
	if err != nil {
		return nil, r.fail(span, fmt.Errorf("encode body: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, r.fail(span, fmt.Errorf("build request: %w", err))
	}
	req.Header = r.headers

	resp, err := r.client.http.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			outcome = "timeout"
		}
		return nil, r.fail(span, err)
	}
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, r.fail(span, fmt.Errorf("read body: %w", err))
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	out := &Response{Response: resp, body: raw}

	if r.onError != nil {
		if err := r.onError(resp.StatusCode, raw); err != nil {
			outcome = "rejected"
			return out, r.fail(span, err)
		}
	}

	if r.result != nil && len(raw) > 0 && !out.IsError() {
		if err := json.Unmarshal(raw, r.result); err != nil {
			return out, r.fail(span, fmt.Errorf("decode response: %w", err))
		}
	}

	outcome = "ok"
	if out.IsError() {
		outcome = "rejected"
	}
	return out, nil
}

func (r *request) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func (r *request) record(ctx context.Context, outcome string, start time.Time) {
	attrs := metric.WithAttributes(
		attribute.String("route", r.route),
		attribute.String("outcome", outcome),
	)
	r.client.requests.Add(ctx, 1, attrs)
	r.client.latency.Record(ctx, time.Since(start).Seconds(), attrs)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
