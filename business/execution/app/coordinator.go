package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	arbdomain "github.com/fd1az/arbitrage-engine/business/arbitrage/domain"
	"github.com/fd1az/arbitrage-engine/business/execution/domain"
	"github.com/fd1az/arbitrage-engine/internal/apperror"
	"github.com/fd1az/arbitrage-engine/internal/logger"
)

const (
	tracerName = "github.com/fd1az/arbitrage-engine/business/execution/app"
	meterName  = "github.com/fd1az/arbitrage-engine/business/execution/app"
)

// Coordinator errors. Compare with errors.Is.
var (
	ErrBusy           = apperror.Sentinel(apperror.CodeExecutorBusy)
	ErrExpired        = apperror.Sentinel(apperror.CodeOpportunityExpired)
	ErrLaneBusy       = apperror.Sentinel(apperror.CodeLaneBusy)
	ErrNotFound       = apperror.Sentinel(apperror.CodeExecutionNotFound)
	ErrNotCancellable = apperror.Sentinel(apperror.CodeExecutionNotCancellable)
)

var (
	errCancelled = errors.New("execution cancelled")
	errStopped   = errors.New("coordinator stopped")
)

// OverflowPolicy decides what happens to a claim once every execution slot is taken.
type OverflowPolicy string

const (
	OverflowQueue  OverflowPolicy = "queue"
	OverflowReject OverflowPolicy = "reject"
)

// Config holds coordinator settings.
type Config struct {
	MaxConcurrent     int
	Overflow          OverflowPolicy
	QueueSize         int             // waiters allowed under OverflowQueue
	SlippageTolerance decimal.Decimal // fraction of the claimed net profit simulation must keep
	OutcomeTimeout    time.Duration
	MaxAttempts       int
	BackoffInitial    time.Duration
	BackoffMax        time.Duration
	NativeSymbols     map[uint64]string // gas token per chain, for USD gas cost
}

func (c *Config) applyDefaults() {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 4
	}
	if c.Overflow == "" {
		c.Overflow = OverflowQueue
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 16
	}
	if !c.SlippageTolerance.IsPositive() {
		c.SlippageTolerance = decimal.RequireFromString("0.5")
	}
	if c.OutcomeTimeout <= 0 {
		c.OutcomeTimeout = 2 * time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.BackoffInitial <= 0 {
		c.BackoffInitial = 500 * time.Millisecond
	}
	if c.BackoffMax < c.BackoffInitial {
		c.BackoffMax = 20 * c.BackoffInitial
	}
}

type coordinatorMetrics struct {
	executions metric.Int64Counter
	rejections metric.Int64Counter
	inflight   metric.Int64UpDownCounter
	duration   metric.Float64Histogram
}

// Coordinator drives claimed opportunities through simulation, submission and outcome.
// Each attempt holds one execution slot and the lanes of its path until it ends.
type Coordinator struct {
	cfg       Config
	claimer   Claimer
	simulator Simulator
	submitter Submitter
	prices    PriceOracle
	ledger    Ledger
	lanes     LaneLocker
	logger    logger.LoggerInterface

	now   func() time.Time
	newID func() string
	sleep func(ctx context.Context, d time.Duration) error

	sem     *semaphore.Weighted
	waiting atomic.Int64

	mu   sync.Mutex
	runs map[string]*run // in-flight executions by id

	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	tracer  trace.Tracer
	metrics *coordinatorMetrics
}

// Deps groups the collaborators of a Coordinator. Prices may be nil, in which case
// realized USD profit is left empty.
type Deps struct {
	Claimer   Claimer
	Simulator Simulator
	Submitter Submitter
	Prices    PriceOracle
	Ledger    Ledger
	Lanes     LaneLocker
}

// NewCoordinator creates a coordinator. Call Close to stop in-flight executions.
func NewCoordinator(cfg Config, deps Deps, log logger.LoggerInterface) (*Coordinator, error) {
	if deps.Claimer == nil || deps.Simulator == nil || deps.Submitter == nil || deps.Ledger == nil || deps.Lanes == nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("coordinator needs a claimer, simulator, submitter, ledger and lane locker"))
	}
	cfg.applyDefaults()

	base, stop := context.WithCancel(context.Background())
	c := &Coordinator{
		cfg:       cfg,
		claimer:   deps.Claimer,
		simulator: deps.Simulator,
		submitter: deps.Submitter,
		prices:    deps.Prices,
		ledger:    deps.Ledger,
		lanes:     deps.Lanes,
		logger:    log,
		now:       time.Now,
		newID:     uuid.NewString,
		sleep:     sleepCtx,
		sem:       semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		runs:      make(map[string]*run),
		base:      base,
		stop:      stop,
		tracer:    otel.Tracer(tracerName),
	}
	if err := c.initMetrics(); err != nil {
		stop()
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return c, nil
}

func (c *Coordinator) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	c.metrics = &coordinatorMetrics{}

	c.metrics.executions, err = meter.Int64Counter(
		"executions_total",
		metric.WithDescription("Finished executions by final state and failure reason"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		return err
	}

	c.metrics.rejections, err = meter.Int64Counter(
		"execution_rejections_total",
		metric.WithDescription("Execution requests that never started"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	c.metrics.inflight, err = meter.Int64UpDownCounter(
		"executions_in_flight",
		metric.WithDescription("Executions holding a slot"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		return err
	}

	c.metrics.duration, err = meter.Float64Histogram(
		"execution_duration_seconds",
		metric.WithDescription("Time from claim to final state"),
		metric.WithUnit("s"),
	)
	return err
}

// run is one attempt in flight.
type run struct {
	opp     arbdomain.Opportunity
	ctx     context.Context
	cancel  context.CancelCauseFunc
	span    trace.Span
	release func()
	handOff func() // registry call run once the slot and lanes are free

	outcome chan domain.Outcome
	done    chan struct{}

	mu         sync.Mutex
	exec       domain.Execution
	submitting bool
	cancelled  bool
	reported   bool
}

func (r *run) snapshot() domain.Execution {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exec
}

func (r *run) set(e domain.Execution) {
	r.mu.Lock()
	r.exec = e
	r.mu.Unlock()
}

// beginSubmit marks the point after which the attempt can no longer be cancelled.
func (r *run) beginSubmit() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelled || r.ctx.Err() != nil {
		return false
	}
	r.submitting = true
	return true
}

func (r *run) markCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.submitting {
		return false
	}
	r.cancelled = true
	return true
}

func (r *run) isCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

// deliver hands the first outcome report to the driver; later reports are dropped.
func (r *run) deliver(o domain.Outcome) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reported {
		return false
	}
	r.reported = true
	r.outcome <- o
	return true
}

// Execute claims the opportunity and drives it to a final state, retrying retryable
// failures with a fresh claim. Failed executions are returned with a nil error; the
// error is reserved for attempts that never started (claim conflicts, Busy). Once
// submitted, Execute returns only on an outcome or the outcome timeout.
func (c *Coordinator) Execute(ctx context.Context, fingerprint string) (domain.Execution, error) {
	r, err := c.start(ctx, fingerprint, 1)
	if err != nil {
		return domain.Execution{}, err
	}
	return c.loop(ctx, r, fingerprint, true), nil
}

// ExecuteAsync returns once the opportunity is claimed and the attempt holds its slot
// and lanes. The rest runs in the background, detached from ctx.
func (c *Coordinator) ExecuteAsync(ctx context.Context, fingerprint string) (domain.Execution, error) {
	r, err := c.start(context.WithoutCancel(ctx), fingerprint, 1)
	if err != nil {
		return domain.Execution{}, err
	}
	first := r.snapshot()

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stopBase := context.AfterFunc(c.base, cancel)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer stopBase()
		defer cancel()
		c.loop(loopCtx, r, fingerprint, false)
	}()
	return first, nil
}

func (c *Coordinator) loop(ctx context.Context, r *run, fingerprint string, bindCaller bool) domain.Execution {
	for attempt := 1; ; attempt++ {
		var stopCaller func() bool
		if bindCaller {
			stopCaller = context.AfterFunc(ctx, func() { r.cancel(context.Cause(ctx)) })
		}
		exec, retry := c.drive(r)
		if stopCaller != nil {
			stopCaller()
		}

		if !retry || attempt >= c.cfg.MaxAttempts || c.base.Err() != nil {
			return exec
		}

		wait := c.backoff(attempt)
		c.logger.Info(ctx, "retrying execution",
			"fingerprint", fingerprint, "attempt", attempt+1, "backoff", wait, "previous", exec.FailureReason)
		if err := c.sleep(ctx, wait); err != nil {
			return exec
		}

		next, err := c.start(context.WithoutCancel(ctx), fingerprint, attempt+1)
		if err != nil {
			c.logger.Info(ctx, "retry not started",
				"fingerprint", fingerprint, "attempt", attempt+1, "error", err)
			return exec
		}
		r = next
	}
}

// backoff returns the wait before attempt+1.
func (c *Coordinator) backoff(attempt int) time.Duration {
	d := c.cfg.BackoffInitial
	for i := 1; i < attempt && d < c.cfg.BackoffMax; i++ {
		d *= 2
	}
	return min(d, c.cfg.BackoffMax)
}

// start claims the opportunity, takes a slot and the path's lanes, and records the
// claimed execution.
func (c *Coordinator) start(ctx context.Context, fingerprint string, attempt int) (*run, error) {
	opp, err := c.claimer.Claim(ctx, fingerprint)
	if err != nil {
		c.reject(ctx, "claim", fingerprint, err)
		return nil, err
	}

	releaseSlot, err := c.acquireSlot(ctx, opp.ExpiresAt)
	if err != nil {
		c.releaseOpportunity(ctx, fingerprint)
		if errors.Is(err, ErrExpired) {
			c.reject(ctx, "expired", fingerprint, err)
		} else {
			c.reject(ctx, "busy", fingerprint, err)
		}
		return nil, err
	}
	// A queued claim may have outlived its opportunity.
	if opp.IsExpired(c.now()) {
		releaseSlot()
		c.releaseOpportunity(ctx, fingerprint)
		c.reject(ctx, "expired", fingerprint, ErrExpired)
		return nil, ErrExpired
	}

	releaseLanes, err := c.lanes.Acquire(ctx, opp.Path.Lanes())
	if err != nil {
		releaseSlot()
		c.releaseOpportunity(ctx, fingerprint)
		c.reject(ctx, "lane_busy", fingerprint, err)
		return nil, err
	}

	exec := domain.NewExecution(c.newID(), opp, attempt, c.now())

	runCtx, span := c.tracer.Start(context.WithoutCancel(ctx), "execution.attempt",
		trace.WithAttributes(
			attribute.String("execution_id", exec.ID),
			attribute.String("fingerprint", fingerprint),
			attribute.String("strategy", string(opp.Kind)),
			attribute.Int("attempt", attempt),
		))
	runCtx, cancel := context.WithCancelCause(runCtx)
	stopBase := context.AfterFunc(c.base, func() { cancel(errStopped) })

	r := &run{
		opp:    opp,
		ctx:    runCtx,
		cancel: cancel,
		span:   span,
		release: func() {
			stopBase()
			releaseLanes()
			releaseSlot()
		},
		outcome: make(chan domain.Outcome, 1),
		done:    make(chan struct{}),
		exec:    exec,
	}

	c.mu.Lock()
	c.runs[exec.ID] = r
	c.mu.Unlock()

	c.metrics.inflight.Add(ctx, 1)
	c.record(runCtx, exec)
	c.logger.Info(runCtx, "opportunity claimed",
		"execution_id", exec.ID, "fingerprint", fingerprint, "attempt", attempt, "expected_net_profit", exec.ExpectedNetProfit)
	return r, nil
}

// acquireSlot takes an execution slot. Under OverflowQueue it waits at most until
// expiresAt, by the coordinator's clock.
func (c *Coordinator) acquireSlot(ctx context.Context, expiresAt time.Time) (func(), error) {
	release := func() { c.sem.Release(1) }
	if c.sem.TryAcquire(1) {
		return release, nil
	}
	if c.cfg.Overflow == OverflowReject {
		return nil, ErrBusy
	}
	if c.waiting.Add(1) > int64(c.cfg.QueueSize) {
		c.waiting.Add(-1)
		return nil, ErrBusy
	}
	defer c.waiting.Add(-1)

	ctx, cancelWait := context.WithTimeoutCause(ctx, expiresAt.Sub(c.now()), ErrExpired)
	defer cancelWait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer context.AfterFunc(c.base, cancel)()

	if err := c.sem.Acquire(ctx, 1); err != nil {
		if errors.Is(context.Cause(ctx), ErrExpired) {
			return nil, ErrExpired
		}
		return nil, apperror.Wrap(err, apperror.CodeExecutorBusy, "waiting for an execution slot")
	}
	return release, nil
}

// drive runs one claimed attempt to its final state and reports whether a new attempt
// may follow.
func (c *Coordinator) drive(r *run) (domain.Execution, bool) {
	exec, retry := c.advance(r)
	c.finish(r, exec)
	return exec, retry
}

func (c *Coordinator) advance(r *run) (domain.Execution, bool) {
	ctx := r.ctx
	exec := r.snapshot()
	fp := exec.OpportunityFingerprint

	ev, err := c.simulator.Simulate(ctx, r.opp)
	if c.cancelledBeforeSubmit(r) {
		return c.fail(r, exec, domain.FailureCancelled, causeText(ctx)), false
	}
	if err != nil {
		reason := simulationFailure(err)
		c.logger.Warn(ctx, "simulation failed", "execution_id", exec.ID, "fingerprint", fp, "reason", reason, "error", err)
		return c.fail(r, exec, reason, err.Error()), false
	}

	simulated, err := exec.Simulated(ev.Profit.NetProfit, ev.Profit.AmountOut, c.now())
	if err != nil {
		return c.fail(r, exec, domain.FailureSimulation, err.Error()), false
	}

	floor := c.cfg.SlippageTolerance.Mul(exec.ExpectedNetProfit)
	if ev.Profit.NetProfit.LessThan(floor) {
		detail := fmt.Sprintf("simulated net profit %s below %s of claimed %s",
			ev.Profit.NetProfit.StringFixed(6), c.cfg.SlippageTolerance.String(), exec.ExpectedNetProfit.StringFixed(6))
		c.logger.Warn(ctx, "slippage exceeded", "execution_id", exec.ID, "fingerprint", fp, "detail", detail)
		return c.fail(r, simulated, domain.FailureSlippageExceeded, detail), false
	}

	exec = simulated
	r.set(exec)
	c.record(ctx, exec)

	if r.opp.IsExpired(c.now()) {
		c.logger.Warn(ctx, "opportunity expired before submission", "execution_id", exec.ID, "fingerprint", fp)
		return c.fail(r, exec, domain.FailureExpired, fmt.Sprintf("expired at %s", r.opp.ExpiresAt.Format(time.RFC3339Nano))), false
	}
	if !r.beginSubmit() {
		return c.fail(r, exec, domain.FailureCancelled, causeText(ctx)), false
	}

	submission := domain.Submission{
		ExecutionID:        exec.ID,
		Attempt:            exec.Attempt,
		Fingerprint:        fp,
		Kind:               r.opp.Kind,
		Path:               ev.Path,
		AmountIn:           exec.AttemptAmountIn,
		MinAmountOut:       exec.AttemptAmountIn.Add(floor),
		SimulatedAmountOut: ev.Profit.AmountOut,
	}
	correlationID, err := c.submitter.Submit(context.WithoutCancel(ctx), submission)
	if err != nil {
		c.logger.Error(ctx, "submission failed", "execution_id", exec.ID, "fingerprint", fp, "error", err)
		return c.fail(r, exec, domain.FailureSubmission, err.Error()), true
	}

	submitted, err := exec.Submitted(correlationID, c.now())
	if err != nil {
		return c.fail(r, exec, domain.FailureSubmission, err.Error()), false
	}
	exec = submitted
	r.set(exec)
	c.record(ctx, exec)
	r.span.AddEvent("submitted", trace.WithAttributes(attribute.String("correlation_id", correlationID)))

	return c.await(r, exec)
}

// await waits for the outcome report of a submitted execution.
func (c *Coordinator) await(r *run, exec domain.Execution) (domain.Execution, bool) {
	ctx := context.WithoutCancel(r.ctx)
	fp := exec.OpportunityFingerprint

	timer := time.NewTimer(c.cfg.OutcomeTimeout)
	defer timer.Stop()

	select {
	case o := <-r.outcome:
		if o.Success {
			confirmed, err := exec.Confirmed(o, c.profitUSD(ctx, exec, o), c.now())
			if err != nil {
				return c.settleFailed(r, exec, domain.FailureTimeout, err.Error()), false
			}
			r.handOff = func() { c.settle(ctx, fp) }
			return confirmed, false
		}
		reverted, err := exec.Reverted(o, c.now())
		if err != nil {
			return c.settleFailed(r, exec, domain.FailureTimeout, err.Error()), false
		}
		c.logger.Error(ctx, "execution reverted", "execution_id", exec.ID, "fingerprint", fp, "reason", o.Reason)
		r.handOff = func() { c.releaseOpportunity(ctx, fp) }
		return reverted, true

	case <-timer.C:
		c.logger.Error(ctx, "no outcome reported, marking ambiguous",
			"execution_id", exec.ID, "fingerprint", fp, "timeout", c.cfg.OutcomeTimeout)
		return c.settleFailed(r, exec, domain.FailureTimeout,
			fmt.Sprintf("no outcome within %s", c.cfg.OutcomeTimeout)), false

	case <-c.base.Done():
		c.logger.Error(ctx, "coordinator stopped before outcome, marking ambiguous",
			"execution_id", exec.ID, "fingerprint", fp)
		return c.settleFailed(r, exec, domain.FailureTimeout, errStopped.Error()), false
	}
}

func (c *Coordinator) cancelledBeforeSubmit(r *run) bool {
	return r.isCancelled() || r.ctx.Err() != nil
}

// fail ends an attempt that never reached the chain. The opportunity is handed back
// once finish has freed the attempt's lanes, so a reclaim does not find them held.
func (c *Coordinator) fail(r *run, exec domain.Execution, reason domain.FailureReason, detail string) domain.Execution {
	failed, err := exec.Failed(reason, detail, c.now())
	if err != nil {
		c.logger.Error(r.ctx, "invalid failure transition", "execution_id", exec.ID, "error", err)
	}
	ctx, fp := context.WithoutCancel(r.ctx), exec.OpportunityFingerprint
	r.handOff = func() { c.releaseOpportunity(ctx, fp) }
	return failed
}

// settleFailed ends a submitted attempt whose on-chain effect is unknown. The
// opportunity is retired rather than released.
func (c *Coordinator) settleFailed(r *run, exec domain.Execution, reason domain.FailureReason, detail string) domain.Execution {
	failed, err := exec.Failed(reason, detail, c.now())
	if err != nil {
		c.logger.Error(r.ctx, "invalid failure transition", "execution_id", exec.ID, "error", err)
	}
	ctx, fp := context.WithoutCancel(r.ctx), exec.OpportunityFingerprint
	r.handOff = func() { c.settle(ctx, fp) }
	return failed
}

// finish records the final state and frees the attempt's slot and lanes.
func (c *Coordinator) finish(r *run, exec domain.Execution) {
	ctx := r.ctx
	r.set(exec)
	c.record(ctx, exec)

	c.mu.Lock()
	delete(c.runs, exec.ID)
	c.mu.Unlock()

	r.release()
	if r.handOff != nil {
		r.handOff()
	}
	r.cancel(nil)
	close(r.done)

	c.metrics.inflight.Add(ctx, -1)
	c.metrics.executions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("state", string(exec.State)),
		attribute.String("reason", string(exec.FailureReason)),
		attribute.String("strategy", string(exec.StrategyKind)),
	))
	c.metrics.duration.Record(ctx, c.now().Sub(exec.ClaimedAt).Seconds())

	if exec.State == domain.StateFailed {
		r.span.SetStatus(codes.Error, string(exec.FailureReason))
	} else {
		r.span.SetStatus(codes.Ok, string(exec.State))
	}
	r.span.End()

	c.logger.Info(ctx, "execution finished",
		"execution_id", exec.ID, "fingerprint", exec.OpportunityFingerprint,
		"state", exec.State, "reason", exec.FailureReason, "ambiguous", exec.AmbiguousOutcome)
}

// ReportOutcome applies a submission-service report. Reports are delivered at least
// once: a duplicate for a pending or finished execution returns its current value.
func (c *Coordinator) ReportOutcome(ctx context.Context, id string, o domain.Outcome) (domain.Execution, error) {
	if err := o.Validate(); err != nil {
		return domain.Execution{}, err
	}

	r := c.lookup(id)
	if r == nil {
		exec, err := c.stored(ctx, id)
		if err != nil {
			return domain.Execution{}, err
		}
		if exec.AmbiguousOutcome {
			c.logger.Warn(ctx, "outcome reported after timeout, reconcile manually",
				"execution_id", id, "success", o.Success, "tx_hash", o.TxHash)
		}
		return exec, nil
	}

	if !r.deliver(o) {
		c.logger.Debug(ctx, "duplicate outcome report", "execution_id", id)
	}

	select {
	case <-r.done:
		return r.snapshot(), nil
	case <-ctx.Done():
		return r.snapshot(), ctx.Err()
	}
}

// Cancel stops an execution that has not been submitted yet. Submitted and finished
// executions return ErrNotCancellable.
func (c *Coordinator) Cancel(ctx context.Context, id string) (domain.Execution, error) {
	r := c.lookup(id)
	if r == nil {
		exec, err := c.stored(ctx, id)
		if err != nil {
			return domain.Execution{}, err
		}
		return exec, ErrNotCancellable
	}

	if !r.markCancelled() {
		return r.snapshot(), ErrNotCancellable
	}
	r.cancel(errCancelled)

	select {
	case <-r.done:
		return r.snapshot(), nil
	case <-ctx.Done():
		return r.snapshot(), ctx.Err()
	}
}

// Get returns the live value of an in-flight execution, or the stored one.
func (c *Coordinator) Get(ctx context.Context, id string) (domain.Execution, error) {
	if r := c.lookup(id); r != nil {
		return r.snapshot(), nil
	}
	return c.stored(ctx, id)
}

// InFlight returns the number of running executions.
func (c *Coordinator) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.runs)
}

// Close stops accepting outcomes. Executions still waiting end as ambiguous timeouts.
func (c *Coordinator) Close() error {
	c.stop()
	c.wg.Wait()
	return nil
}

func (c *Coordinator) lookup(id string) *run {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runs[id]
}

func (c *Coordinator) stored(ctx context.Context, id string) (domain.Execution, error) {
	exec, err := c.ledger.Get(ctx, id)
	if err != nil {
		if apperror.GetCode(err) == apperror.CodeExecutionNotFound {
			return domain.Execution{}, apperror.NotFound(apperror.CodeExecutionNotFound, id)
		}
		return domain.Execution{}, err
	}
	return exec, nil
}

// profitUSD values the realized profit net of gas. It returns nil when a price is
// missing.
func (c *Coordinator) profitUSD(ctx context.Context, exec domain.Execution, o domain.Outcome) *decimal.Decimal {
	if c.prices == nil {
		return nil
	}
	chain := exec.PrimaryChain()

	px, err := c.prices.USDPrice(ctx, chain, exec.ProfitToken)
	if err != nil {
		c.logger.Warn(ctx, "profit token price unavailable", "execution_id", exec.ID, "token", exec.ProfitToken, "error", err)
		return nil
	}
	profit := o.AmountOut.Sub(exec.AttemptAmountIn).Mul(px)

	if o.GasUsed > 0 && o.GasPriceWei.IsPositive() {
		native, ok := c.cfg.NativeSymbols[chain]
		if !ok {
			c.logger.Warn(ctx, "no native token configured", "execution_id", exec.ID, "chain_id", chain)
			return nil
		}
		npx, err := c.prices.USDPrice(ctx, chain, native)
		if err != nil {
			c.logger.Warn(ctx, "native token price unavailable", "execution_id", exec.ID, "token", native, "error", err)
			return nil
		}
		gas := o.GasPriceWei.Mul(decimal.NewFromInt(int64(o.GasUsed))).Shift(-18).Mul(npx)
		profit = profit.Sub(gas)
	}
	return &profit
}

func (c *Coordinator) record(ctx context.Context, exec domain.Execution) {
	if err := c.ledger.Record(context.WithoutCancel(ctx), exec); err != nil {
		c.logger.Error(ctx, "ledger record failed", "execution_id", exec.ID, "state", exec.State, "error", err)
	}
}

func (c *Coordinator) releaseOpportunity(ctx context.Context, fingerprint string) {
	st, err := c.claimer.Release(context.WithoutCancel(ctx), fingerprint)
	if err != nil {
		c.logger.Warn(ctx, "release failed", "fingerprint", fingerprint, "error", err)
		return
	}
	c.logger.Debug(ctx, "opportunity released", "fingerprint", fingerprint, "status", st)
}

func (c *Coordinator) settle(ctx context.Context, fingerprint string) {
	if err := c.claimer.Settle(context.WithoutCancel(ctx), fingerprint); err != nil {
		c.logger.Warn(ctx, "settle failed", "fingerprint", fingerprint, "error", err)
	}
}

func (c *Coordinator) reject(ctx context.Context, reason, fingerprint string, err error) {
	c.metrics.rejections.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	c.logger.Info(ctx, "execution not started", "fingerprint", fingerprint, "reason", reason, "error", err)
}

func simulationFailure(err error) domain.FailureReason {
	switch apperror.GetCode(err) {
	case apperror.CodeStaleData:
		return domain.FailureStaleData
	case apperror.CodeGasPriceUnavailable:
		return domain.FailureGasUnavailable
	default:
		return domain.FailureSimulation
	}
}

func causeText(ctx context.Context) string {
	if err := context.Cause(ctx); err != nil {
		return err.Error()
	}
	return errCancelled.Error()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
