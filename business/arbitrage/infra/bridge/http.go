package bridge

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/arbitrage-engine/business/arbitrage/domain"
	"github.com/fd1az/arbitrage-engine/internal/apperror"
	"github.com/fd1az/arbitrage-engine/internal/cache"
	"github.com/fd1az/arbitrage-engine/internal/circuitbreaker"
	"github.com/fd1az/arbitrage-engine/internal/httpclient"
	"github.com/fd1az/arbitrage-engine/internal/logger"
)

const (
	tracerName = "github.com/fd1az/arbitrage-engine/business/arbitrage/infra/bridge"

	// quoteTTL bounds how long a remote quote is reused.
	quoteTTL = 30 * time.Second
)

// quoteResponse is the body of GET /quote?from=&to=&asset=.
type quoteResponse struct {
	FeeBps              int64   `json:"fee_bps"`
	FixedFee            string  `json:"fixed_fee"`
	LatencySeconds      float64 `json:"latency_seconds"`
	PenaltyBpsPerMinute float64 `json:"penalty_bps_per_minute"`
}

// Fallback answers when the remote service cannot.
type Fallback interface {
	Quote(ctx context.Context, from, to uint64, asset string) (domain.BridgeQuote, error)
}

// HTTP quotes bridges from a remote fee service. Quotes are cached for a short while,
// and while the service is failing the fallback answers.
type HTTP struct {
	client   httpclient.Client
	fallback Fallback
	logger   logger.LoggerInterface

	cache  *cache.Cache[string, domain.BridgeQuote]
	cb     *circuitbreaker.CircuitBreaker[domain.BridgeQuote]
	ttl    time.Duration
	tracer trace.Tracer
}

// NewHTTP creates a remote provider on baseURL. fallback may be nil.
func NewHTTP(baseURL string, fallback Fallback, log logger.LoggerInterface) (*HTTP, error) {
	client, err := httpclient.New(
		httpclient.WithBaseURL(baseURL),
		httpclient.WithName("bridge-quotes"),
		httpclient.WithTimeout(3*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("bridge http client: %w", err)
	}
	return newHTTP(client, fallback, log), nil
}

func newHTTP(client httpclient.Client, fallback Fallback, log logger.LoggerInterface) *HTTP {
	return &HTTP{
		client:   client,
		fallback: fallback,
		logger:   log,
		cache:    cache.New[string, domain.BridgeQuote](time.Minute),
		cb:       circuitbreaker.New[domain.BridgeQuote](circuitbreaker.DefaultConfig("bridge-quotes")),
		ttl:      quoteTTL,
		tracer:   otel.Tracer(tracerName),
	}
}

// Quote returns the remote quote for moving asset, or the fallback's when the remote
// call fails.
func (h *HTTP) Quote(ctx context.Context, from, to uint64, asset string) (domain.BridgeQuote, error) {
	ctx, span := h.tracer.Start(ctx, "bridge.quote", trace.WithAttributes(
		attribute.Int64("from_chain", int64(from)),
		attribute.Int64("to_chain", int64(to)),
		attribute.String("asset", asset),
	))
	defer span.End()

	key := fmt.Sprintf("%d>%d:%s", from, to, asset)
	if q, ok := h.cache.Get(ctx, key); ok {
		span.AddEvent("cache_hit")
		return q, nil
	}

	q, err := h.cb.Execute(func() (domain.BridgeQuote, error) {
		return h.fetch(ctx, from, to, asset)
	})
	if err != nil {
		span.RecordError(err)
		if h.fallback != nil {
			h.logger.Debug(ctx, "remote bridge quote failed, using fallback",
				"from", from, "to", to, "asset", asset, "error", err)
			return h.fallback.Quote(ctx, from, to, asset)
		}
		return domain.BridgeQuote{}, apperror.New(apperror.CodeBridgeQuoteFailed, apperror.WithCause(err),
			apperror.WithContext(key))
	}

	h.cache.Set(ctx, key, q, h.ttl)
	return q, nil
}

func (h *HTTP) fetch(ctx context.Context, from, to uint64, asset string) (domain.BridgeQuote, error) {
	var body quoteResponse
	_, err := h.client.NewRequest(
		httpclient.WithErrorHandler(httpclient.StatusErrorHandler(apperror.CodeBridgeQuoteFailed)),
		httpclient.WithRoute("quote"),
	).
		SetQueryParam("from", strconv.FormatUint(from, 10)).
		SetQueryParam("to", strconv.FormatUint(to, 10)).
		SetQueryParam("asset", asset).
		SetResult(&body).
		Get(ctx, "/quote")
	if err != nil {
		return domain.BridgeQuote{}, err
	}

	fixed := decimal.Zero
	if body.FixedFee != "" {
		if fixed, err = decimal.NewFromString(body.FixedFee); err != nil {
			return domain.BridgeQuote{}, apperror.New(apperror.CodeBridgeQuoteFailed, apperror.WithCause(err))
		}
	}
	if body.FeeBps < 0 || body.FeeBps >= 10_000 {
		return domain.BridgeQuote{}, apperror.New(apperror.CodeBridgeQuoteFailed,
			apperror.WithContext(fmt.Sprintf("fee_bps %d out of range", body.FeeBps)))
	}

	return domain.BridgeQuote{
		FromChain:           from,
		ToChain:             to,
		Asset:               asset,
		FeeBps:              body.FeeBps,
		FixedFee:            fixed,
		Latency:             time.Duration(body.LatencySeconds * float64(time.Second)),
		PenaltyBpsPerMinute: decimal.NewFromFloat(body.PenaltyBpsPerMinute),
	}, nil
}

// Close stops the quote cache janitor.
func (h *HTTP) Close() {
	h.cache.Close()
}
