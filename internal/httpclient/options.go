// Package httpclient is the traced, metered HTTP client used for the submission service
// and the bridge quote API.
package httpclient

import (
	"net/http"
	"time"
)

type options struct {
	name      string
	baseURL   string
	timeout   time.Duration
	transport http.RoundTripper
	headers   http.Header
}

// Option configures a Client.
type Option func(*options)

// WithName labels metrics and spans with the upstream's name.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithBaseURL resolves relative request paths against url.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// WithTimeout bounds every request, including reading the body.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithTransport replaces the pooled default transport. It is still wrapped by otelhttp.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// WithHeader adds a header sent on every request.
func WithHeader(key, value string) Option {
	return func(o *options) { o.headers.Set(key, value) }
}

// WithBearerToken authenticates every request. An empty token is ignored.
func WithBearerToken(token string) Option {
	return func(o *options) {
		if token != "" {
			o.headers.Set("Authorization", "Bearer "+token)
		}
	}
}

type requestOptions struct {
	route   string
	onError ErrorHandler
	headers http.Header
}

// RequestOption configures one request.
type RequestOption func(*requestOptions)

// ErrorHandler turns a status and body into an error, or nil to accept the response.
type ErrorHandler func(status int, body []byte) error

// WithErrorHandler classifies responses before the body is decoded.
func WithErrorHandler(h ErrorHandler) RequestOption {
	return func(o *requestOptions) { o.onError = h }
}

// WithRoute sets the low-cardinality route label recorded on metrics, e.g. "quote".
func WithRoute(route string) RequestOption {
	return func(o *requestOptions) { o.route = route }
}

// WithIdempotencyKey lets the upstream drop replays of the same logical request.
func WithIdempotencyKey(key string) RequestOption {
	return func(o *requestOptions) {
		if key != "" {
			o.headers.Set("Idempotency-Key", key)
		}
	}
}
