// Package app implements the execution ledger service.
package app

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	exdomain "github.com/fd1az/arbitrage-engine/business/execution/domain"
	"github.com/fd1az/arbitrage-engine/business/ledger/domain"
	"github.com/fd1az/arbitrage-engine/internal/apm"
	"github.com/fd1az/arbitrage-engine/internal/apperror"
	"github.com/fd1az/arbitrage-engine/internal/logger"
)

const (
	tracerName = "github.com/fd1az/arbitrage-engine/business/ledger/app"
	meterName  = "github.com/fd1az/arbitrage-engine/business/ledger/app"
)

// Store persists executions by id.
//
// Put inserts e or replaces the stored entry. A stored terminal entry is never
// replaced: Put returns changed=false when e is identical to it and domain.ErrTerminal
// otherwise. Get returns domain.ErrNotFound for unknown ids. Query returns matches
// newest first.
type Store interface {
	Put(ctx context.Context, e exdomain.Execution) (changed bool, err error)
	Get(ctx context.Context, id string) (exdomain.Execution, error)
	Query(ctx context.Context, f domain.Filter) ([]exdomain.Execution, error)
	Ping(ctx context.Context) error
	Close() error
}

type ledgerMetrics struct {
	writes metric.Int64Counter
}

// Ledger is the durable record of every execution attempt.
type Ledger struct {
	store  Store
	logger logger.LoggerInterface

	tracer  apm.Tracer
	metrics *ledgerMetrics
}

// New creates a ledger over store.
func New(store Store, log logger.LoggerInterface) (*Ledger, error) {
	l := &Ledger{
		store:  store,
		logger: log,
		tracer: apm.NewTracer(tracerName),
	}
	if err := l.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return l, nil
}

func (l *Ledger) initMetrics() error {
	meter := otel.Meter(meterName)
	l.metrics = &ledgerMetrics{}

	var err error
	l.metrics.writes, err = meter.Int64Counter(
		"ledger_writes_total",
		metric.WithDescription("Ledger writes by execution state and result"),
		metric.WithUnit("{write}"),
	)
	return err
}

// Record inserts or updates an execution. Re-recording an identical terminal entry is
// a no-op; any other change to a terminal entry fails with domain.ErrTerminal.
func (l *Ledger) Record(ctx context.Context, e exdomain.Execution) error {
	if e.ID == "" {
		return apperror.Validation(apperror.CodeRequiredField, "execution id")
	}
	ctx, span := l.tracer.Start(ctx, "ledger.record",
		attribute.String("execution_id", e.ID),
		attribute.String("state", string(e.State)),
	)
	defer span.End()

	changed, err := l.store.Put(ctx, domain.Canonical(e))

	result := "written"
	switch {
	case err != nil && apperror.GetCode(err) == apperror.CodeLedgerTerminalEntry:
		result = "rejected"
		l.logger.Warn(ctx, "terminal ledger entry not overwritten", "execution_id", e.ID, "state", e.State)
	case err != nil:
		result = "error"
		span.NoticeError(err)
	case !changed:
		result = "unchanged"
	}
	l.metrics.writes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("state", string(e.State)),
		attribute.String("result", result),
	))
	return err
}

// Get returns one execution.
func (l *Ledger) Get(ctx context.Context, id string) (exdomain.Execution, error) {
	ctx, span := l.tracer.Start(ctx, "ledger.get", attribute.String("execution_id", id))
	defer span.End()
	return l.store.Get(ctx, id)
}

// Query returns the entries matching f, newest first.
func (l *Ledger) Query(ctx context.Context, f domain.Filter) ([]exdomain.Execution, error) {
	ctx, span := l.tracer.Start(ctx, "ledger.query")
	defer span.End()

	execs, err := l.store.Query(ctx, f)
	if err != nil {
		span.NoticeError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("results", len(execs)))
	return execs, nil
}

// Stats summarizes every entry matching f. The filter's limit is ignored.
func (l *Ledger) Stats(ctx context.Context, f domain.Filter) (domain.Stats, error) {
	execs, err := l.Query(ctx, f.Unlimited())
	if err != nil {
		return domain.Stats{}, err
	}
	return domain.Summarize(execs), nil
}

// Ping checks the store is reachable.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.store.Ping(ctx)
}

// Close releases the store.
func (l *Ledger) Close() error {
	return l.store.Close()
}
