// Package submitter hands executions to the submission service.
package submitter

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/arbitrage-engine/business/execution/domain"
	"github.com/fd1az/arbitrage-engine/internal/apperror"
	"github.com/fd1az/arbitrage-engine/internal/circuitbreaker"
	"github.com/fd1az/arbitrage-engine/internal/httpclient"
	"github.com/fd1az/arbitrage-engine/internal/logger"
	"github.com/fd1az/arbitrage-engine/internal/ratelimit"
)

const tracerName = "github.com/fd1az/arbitrage-engine/business/execution/infra/submitter"

type submitResponse struct {
	CorrelationID string `json:"correlation_id"`
}

// HTTPConfig configures the submission service client.
type HTTPConfig struct {
	BaseURL       string
	Timeout       time.Duration
	RatePerMinute int // per chain
	BearerToken   string
}

// HTTP posts submissions to the service and returns its correlation id. Outcomes come
// back through the /executions/:id/outcome callback.
type HTTP struct {
	client  httpclient.Client
	limiter *ratelimit.Keyed[uint64]
	cb      *circuitbreaker.CircuitBreaker[string]
	logger  logger.LoggerInterface
	tracer  trace.Tracer
}

// NewHTTP creates the client.
func NewHTTP(cfg HTTPConfig, log logger.LoggerInterface) (*HTTP, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	client, err := httpclient.New(
		httpclient.WithBaseURL(cfg.BaseURL),
		httpclient.WithName("submission-service"),
		httpclient.WithTimeout(cfg.Timeout),
		httpclient.WithBearerToken(cfg.BearerToken),
	)
	if err != nil {
		return nil, fmt.Errorf("submission http client: %w", err)
	}
	return newHTTP(client, cfg.RatePerMinute, log), nil
}

func newHTTP(client httpclient.Client, ratePerMinute int, log logger.LoggerInterface) *HTTP {
	if ratePerMinute <= 0 {
		ratePerMinute = 60
	}
	return &HTTP{
		client:  client,
		limiter: ratelimit.NewKeyed[uint64](ratePerMinute),
		cb:      circuitbreaker.New[string](circuitbreaker.DefaultConfig("submission-service")),
		logger:  log,
		tracer:  otel.Tracer(tracerName),
	}
}

// Submit posts s. Every error means nothing was accepted.
func (h *HTTP) Submit(ctx context.Context, s domain.Submission) (string, error) {
	chain := s.Path.First().ChainID
	ctx, span := h.tracer.Start(ctx, "submitter.submit", trace.WithAttributes(
		attribute.String("execution_id", s.ExecutionID),
		attribute.Int64("chain_id", int64(chain)),
	))
	defer span.End()

	if err := h.limiter.Wait(ctx, chain); err != nil {
		span.RecordError(err)
		return "", apperror.New(apperror.CodeRateLimitExceeded, apperror.WithCause(err))
	}

	id, err := h.cb.Execute(func() (string, error) {
		var body submitResponse
		_, err := h.client.NewRequest(
			httpclient.WithErrorHandler(httpclient.StatusErrorHandler(apperror.CodeSubmissionFailed)),
			httpclient.WithRoute("submissions"),
			httpclient.WithIdempotencyKey(fmt.Sprintf("%s-%d", s.ExecutionID, s.Attempt)),
		).
			SetBody(s).
			SetResult(&body).
			Post(ctx, "/submissions")
		if err != nil {
			return "", err
		}
		if body.CorrelationID == "" {
			return "", apperror.New(apperror.CodeSubmissionFailed, apperror.WithContext("empty correlation_id"))
		}
		return body.CorrelationID, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit failed")
		return "", err
	}

	span.SetAttributes(attribute.String("correlation_id", id))
	return id, nil
}
