package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	arbapp "github.com/fd1az/arbitrage-engine/business/arbitrage/app"
	arbdomain "github.com/fd1az/arbitrage-engine/business/arbitrage/domain"
	"github.com/fd1az/arbitrage-engine/business/execution/domain"
	regapp "github.com/fd1az/arbitrage-engine/business/registry/app"
	regdomain "github.com/fd1az/arbitrage-engine/business/registry/domain"
	"github.com/fd1az/arbitrage-engine/internal/apperror"
	"github.com/fd1az/arbitrage-engine/internal/logger"
)

var tradeSize = decimal.NewFromInt(10_000)

// simulator returns net profit (and amount out = size + net) for every call, or err.
// When gate is non-nil every call blocks on it first.
type simulator struct {
	mu    sync.Mutex
	net   decimal.Decimal
	err   error
	gate  chan struct{}
	calls atomic.Int32
}

func (s *simulator) Simulate(ctx context.Context, opp arbdomain.Opportunity) (arbapp.Evaluation, error) {
	s.calls.Add(1)
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return arbapp.Evaluation{}, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return arbapp.Evaluation{}, s.err
	}
	profit := arbdomain.NewProfitResult(opp.AmountIn, opp.AmountIn.Add(s.net), decimal.Zero, decimal.Zero, decimal.Zero)
	return arbapp.Evaluation{Path: opp.Path, Profit: profit, Confidence: 0.9}, nil
}

// submitter accepts every submission unless err is set, and runs onSubmit afterwards.
type submitter struct {
	mu          sync.Mutex
	err         error
	submissions []domain.Submission
	onSubmit    func(s domain.Submission)
}

func (s *submitter) Submit(_ context.Context, sub domain.Submission) (string, error) {
	s.mu.Lock()
	s.submissions = append(s.submissions, sub)
	err, hook := s.err, s.onSubmit
	s.mu.Unlock()
	if err != nil {
		return "", err
	}
	if hook != nil {
		hook(sub)
	}
	return "corr-" + sub.ExecutionID, nil
}

func (s *submitter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.submissions)
}

type ledger struct {
	mu      sync.Mutex
	entries map[string]domain.Execution
	writes  []domain.Execution
}

func newLedger() *ledger {
	return &ledger{entries: make(map[string]domain.Execution)}
}

func (l *ledger) Record(_ context.Context, e domain.Execution) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[e.ID] = e
	l.writes = append(l.writes, e)
	return nil
}

func (l *ledger) Get(_ context.Context, id string) (domain.Execution, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[id]
	if !ok {
		return domain.Execution{}, apperror.NotFound(apperror.CodeExecutionNotFound, id)
	}
	return e, nil
}

func (l *ledger) writeCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.writes)
}

func (l *ledger) states(id string) []domain.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.State
	for _, e := range l.writes {
		if e.ID == id && (len(out) == 0 || out[len(out)-1] != e.State) {
			out = append(out, e.State)
		}
	}
	return out
}

func (l *ledger) terminal() []domain.Execution {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.Execution
	for _, e := range l.entries {
		if e.State.IsTerminal() {
			out = append(out, e)
		}
	}
	return out
}

type prices map[string]decimal.Decimal

func (p prices) USDPrice(_ context.Context, _ uint64, symbol string) (decimal.Decimal, error) {
	px, ok := p[symbol]
	if !ok {
		return decimal.Zero, apperror.New(apperror.CodePriceUnavailable)
	}
	return px, nil
}

type memLanes struct {
	mu   sync.Mutex
	held map[string]bool
}

func (m *memLanes) Acquire(_ context.Context, lanes []string) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range lanes {
		if m.held[l] {
			return nil, ErrLaneBusy
		}
	}
	for _, l := range lanes {
		m.held[l] = true
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			for _, l := range lanes {
				delete(m.held, l)
			}
			m.mu.Unlock()
		})
	}, nil
}

// claimer is the registry with a hook run on every release, before it is applied.
type claimer struct {
	*regapp.Registry
	onRelease func(fingerprint string)
}

func (c *claimer) Release(ctx context.Context, fingerprint string) (regdomain.Status, error) {
	if c.onRelease != nil {
		c.onRelease(fingerprint)
	}
	return c.Registry.Release(ctx, fingerprint)
}

type fixture struct {
	c         *Coordinator
	registry  *regapp.Registry
	claimer   *claimer
	sim       *simulator
	submitter *submitter
	ledger    *ledger
	lanes     *memLanes
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	reg, err := regapp.New(regapp.Config{}, nil, logger.Discard())
	require.NoError(t, err)

	f := &fixture{
		registry:  reg,
		claimer:   &claimer{Registry: reg},
		sim:       &simulator{net: decimal.NewFromInt(100)},
		submitter: &submitter{},
		ledger:    newLedger(),
		lanes:     &memLanes{held: make(map[string]bool)},
	}
	if cfg.NativeSymbols == nil {
		cfg.NativeSymbols = map[uint64]string{1: "ETH"}
	}
	c, err := NewCoordinator(cfg, Deps{
		Claimer:   f.claimer,
		Simulator: f.sim,
		Submitter: f.submitter,
		Prices:    prices{"USDC": decimal.NewFromInt(1), "ETH": decimal.NewFromInt(2000)},
		Ledger:    f.ledger,
		Lanes:     f.lanes,
	}, logger.Discard())
	require.NoError(t, err)
	c.sleep = func(context.Context, time.Duration) error { return nil }
	t.Cleanup(func() { c.Close() })
	f.c = c
	return f
}

// add registers a cross-DEX opportunity buying on uniswap and selling on sellDex with
// the given net profit.
func (f *fixture) add(t *testing.T, sellDex string, net int64) arbdomain.Opportunity {
	t.Helper()
	return f.addExpiring(t, sellDex, net, time.Hour)
}

// addExpiring is add with an opportunity that lives for ttl.
func (f *fixture) addExpiring(t *testing.T, sellDex string, net int64, ttl time.Duration) arbdomain.Opportunity {
	t.Helper()
	path, err := arbdomain.NewPath([]arbdomain.Hop{
		{ChainID: 1, DexID: "uniswap", TokenIn: "USDC", TokenOut: "WETH", AmountIn: tradeSize},
		{ChainID: 1, DexID: sellDex, TokenIn: "WETH", TokenOut: "USDC"},
	})
	require.NoError(t, err)
	profit := arbdomain.NewProfitResult(tradeSize, tradeSize.Add(decimal.NewFromInt(net)), decimal.Zero, decimal.Zero, decimal.Zero)
	opp := arbdomain.NewOpportunity(arbdomain.CrossDex, path, profit, 0.9, time.Now(), ttl)
	f.registry.Ingest(context.Background(), []arbdomain.Opportunity{opp})
	return opp
}

func (f *fixture) status(t *testing.T, fp string) regdomain.Status {
	t.Helper()
	rec, ok := f.registry.Get(context.Background(), fp)
	require.True(t, ok)
	return rec.Status
}

// reportOn makes the submitter report o for every submission.
func (f *fixture) reportOn(t *testing.T, outcomes ...domain.Outcome) {
	var n atomic.Int32
	f.submitter.onSubmit = func(s domain.Submission) {
		i := int(n.Add(1)) - 1
		o := outcomes[min(i, len(outcomes)-1)]
		go func() {
			_, err := f.c.ReportOutcome(context.Background(), s.ExecutionID, o)
			assert.NoError(t, err)
		}()
	}
}

func success(out string) domain.Outcome {
	return domain.Outcome{
		Success:     true,
		AmountOut:   decimal.RequireFromString(out),
		GasUsed:     200_000,
		GasPriceWei: decimal.NewFromInt(10_000_000_000),
		TxHash:      "0xabc",
	}
}

func TestExecute_Confirmed(t *testing.T) {
	f := newFixture(t, Config{})
	opp := f.add(t, "sushiswap", 100)
	f.reportOn(t, success("10030"))

	exec, err := f.c.Execute(context.Background(), opp.Fingerprint)
	require.NoError(t, err)

	assert.Equal(t, domain.StateConfirmed, exec.State)
	assert.Equal(t, 1, exec.Attempt)
	assert.Equal(t, "0xabc", exec.TxHash)
	assert.Equal(t, "corr-"+exec.ID, exec.CorrelationID)
	require.True(t, exec.ActualProfitUSD.Valid)
	// 30 USDC out minus 200k gas at 10 gwei (0.002 ETH at 2000).
	assert.Equal(t, "26", exec.ActualProfitUSD.Decimal.String())
	assert.NotNil(t, exec.CompletedAt)

	assert.Equal(t, []domain.State{
		domain.StateClaimed, domain.StateSimulated, domain.StateSubmitted, domain.StateConfirmed,
	}, f.ledger.states(exec.ID))
	assert.Equal(t, regdomain.StatusExpired, f.status(t, opp.Fingerprint))
	assert.Equal(t, 0, f.c.InFlight())

	sub := f.submitter.submissions[0]
	assert.True(t, sub.MinAmountOut.Equal(decimal.NewFromInt(10_050)))
	assert.True(t, sub.SimulatedAmountOut.Equal(decimal.NewFromInt(10_100)))
}

func TestExecute_ProfitUnpriced(t *testing.T) {
	f := newFixture(t, Config{NativeSymbols: map[uint64]string{}})
	opp := f.add(t, "sushiswap", 100)
	f.reportOn(t, success("10030"))

	exec, err := f.c.Execute(context.Background(), opp.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, domain.StateConfirmed, exec.State)
	assert.False(t, exec.ActualProfitUSD.Valid)
}

func TestExecute_SlippageExceeded(t *testing.T) {
	f := newFixture(t, Config{SlippageTolerance: decimal.RequireFromString("0.5")})
	opp := f.add(t, "sushiswap", 100)
	f.sim.net = decimal.NewFromInt(30)

	exec, err := f.c.Execute(context.Background(), opp.Fingerprint)
	require.NoError(t, err)

	assert.Equal(t, domain.StateFailed, exec.State)
	assert.Equal(t, domain.FailureSlippageExceeded, exec.FailureReason)
	assert.False(t, exec.AmbiguousOutcome)
	assert.True(t, exec.SimulatedNetProfit.Decimal.Equal(decimal.NewFromInt(30)))
	assert.Zero(t, f.submitter.count())

	assert.Equal(t, regdomain.StatusActive, f.status(t, opp.Fingerprint))
	_, err = f.registry.Claim(context.Background(), opp.Fingerprint)
	assert.NoError(t, err, "released opportunity must be claimable again")
}

func TestExecute_SimulationFailures(t *testing.T) {
	tests := []struct {
		err    error
		reason domain.FailureReason
	}{
		{apperror.New(apperror.CodeStaleData), domain.FailureStaleData},
		{apperror.New(apperror.CodeGasPriceUnavailable), domain.FailureGasUnavailable},
		{apperror.New(apperror.CodeBridgeQuoteFailed), domain.FailureSimulation},
	}
	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			f := newFixture(t, Config{})
			opp := f.add(t, "sushiswap", 100)
			f.sim.err = tt.err

			exec, err := f.c.Execute(context.Background(), opp.Fingerprint)
			require.NoError(t, err)
			assert.Equal(t, tt.reason, exec.FailureReason)
			assert.Equal(t, tt.err.Error(), exec.FailureDetail)
			assert.Equal(t, regdomain.StatusActive, f.status(t, opp.Fingerprint))
		})
	}
}

func TestExecute_Timeout(t *testing.T) {
	f := newFixture(t, Config{OutcomeTimeout: 50 * time.Millisecond})
	opp := f.add(t, "sushiswap", 100)

	exec, err := f.c.Execute(context.Background(), opp.Fingerprint)
	require.NoError(t, err)

	assert.Equal(t, domain.FailureTimeout, exec.FailureReason)
	assert.True(t, exec.AmbiguousOutcome)
	assert.Equal(t, regdomain.StatusExpired, f.status(t, opp.Fingerprint),
		"an ambiguous outcome must not put the opportunity back")

	late, err := f.c.ReportOutcome(context.Background(), exec.ID, success("10030"))
	require.NoError(t, err)
	assert.Equal(t, domain.StateFailed, late.State)
}

func TestReportOutcome_Idempotent(t *testing.T) {
	f := newFixture(t, Config{})
	opp := f.add(t, "sushiswap", 100)
	f.reportOn(t, success("10030"))

	exec, err := f.c.Execute(context.Background(), opp.Fingerprint)
	require.NoError(t, err)
	writes := f.ledger.writeCount()

	again, err := f.c.ReportOutcome(context.Background(), exec.ID, success("99999"))
	require.NoError(t, err)
	assert.True(t, again.Equal(exec))
	assert.Equal(t, writes, f.ledger.writeCount())

	_, err = f.c.ReportOutcome(context.Background(), "unknown", success("1"))
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = f.c.ReportOutcome(context.Background(), exec.ID, domain.Outcome{Success: true})
	assert.Equal(t, apperror.CodeInvalidInput, apperror.GetCode(err))
}

func TestExecute_RetriesRevert(t *testing.T) {
	f := newFixture(t, Config{MaxAttempts: 3})
	opp := f.add(t, "sushiswap", 100)
	f.reportOn(t, domain.Outcome{Success: false, Reason: "execution reverted: STF", GasUsed: 50_000}, success("10030"))

	exec, err := f.c.Execute(context.Background(), opp.Fingerprint)
	require.NoError(t, err)

	assert.Equal(t, domain.StateConfirmed, exec.State)
	assert.Equal(t, 2, exec.Attempt)

	terminal := f.ledger.terminal()
	require.Len(t, terminal, 2)
	var reverted domain.Execution
	for _, e := range terminal {
		if e.State == domain.StateFailed {
			reverted = e
		}
	}
	assert.Equal(t, domain.FailureReverted, reverted.FailureReason)
	assert.Equal(t, "execution reverted: STF", reverted.FailureDetail)
	assert.Equal(t, uint64(50_000), reverted.GasUsed)
	assert.NotEqual(t, exec.ID, reverted.ID)
}

func TestExecute_SubmissionFailureExhaustsAttempts(t *testing.T) {
	f := newFixture(t, Config{MaxAttempts: 3})
	opp := f.add(t, "sushiswap", 100)
	f.submitter.err = errors.New("connection refused")

	exec, err := f.c.Execute(context.Background(), opp.Fingerprint)
	require.NoError(t, err)

	assert.Equal(t, domain.FailureSubmission, exec.FailureReason)
	assert.Equal(t, "connection refused", exec.FailureDetail)
	assert.Equal(t, 3, exec.Attempt)
	assert.Len(t, f.ledger.terminal(), 3)
	assert.Equal(t, regdomain.StatusActive, f.status(t, opp.Fingerprint))
}

func TestExecute_ClaimConflict(t *testing.T) {
	f := newFixture(t, Config{})
	opp := f.add(t, "sushiswap", 100)
	_, err := f.registry.Claim(context.Background(), opp.Fingerprint)
	require.NoError(t, err)

	_, err = f.c.Execute(context.Background(), opp.Fingerprint)
	assert.True(t, errors.Is(err, regapp.ErrAlreadyClaimed))

	_, err = f.c.Execute(context.Background(), "missing")
	assert.True(t, errors.Is(err, regapp.ErrNotFound))
}

// startBlocked starts an async execution that parks in simulation until gate closes.
func startBlocked(t *testing.T, f *fixture, opp arbdomain.Opportunity) domain.Execution {
	t.Helper()
	exec, err := f.c.ExecuteAsync(context.Background(), opp.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, domain.StateClaimed, exec.State)
	return exec
}

func TestBusy_Reject(t *testing.T) {
	f := newFixture(t, Config{MaxConcurrent: 1, Overflow: OverflowReject})
	f.sim.gate = make(chan struct{})
	first := f.add(t, "sushiswap", 100)
	second := f.add(t, "curve", 90)

	startBlocked(t, f, first)

	_, err := f.c.Execute(context.Background(), second.Fingerprint)
	assert.True(t, errors.Is(err, ErrBusy))
	assert.Equal(t, regdomain.StatusActive, f.status(t, second.Fingerprint))

	close(f.sim.gate)
}

func TestBusy_QueueBounded(t *testing.T) {
	f := newFixture(t, Config{MaxConcurrent: 1, Overflow: OverflowQueue, QueueSize: 1, OutcomeTimeout: time.Second})
	f.sim.gate = make(chan struct{})
	f.reportOn(t, success("10030"))
	first := f.add(t, "sushiswap", 100)
	second := f.add(t, "curve", 90)
	third := f.add(t, "balancer", 80)

	startBlocked(t, f, first)

	queued := make(chan domain.Execution, 1)
	go func() {
		exec, err := f.c.Execute(context.Background(), second.Fingerprint)
		assert.NoError(t, err)
		queued <- exec
	}()
	require.Eventually(t, func() bool { return f.c.waiting.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	_, err := f.c.Execute(context.Background(), third.Fingerprint)
	assert.True(t, errors.Is(err, ErrBusy))
	assert.Equal(t, regdomain.StatusActive, f.status(t, third.Fingerprint))

	close(f.sim.gate)
	select {
	case exec := <-queued:
		assert.Equal(t, domain.StateConfirmed, exec.State)
	case <-time.After(5 * time.Second):
		t.Fatal("queued execution never ran")
	}
}

func TestLaneBusy(t *testing.T) {
	f := newFixture(t, Config{MaxConcurrent: 4})
	f.sim.gate = make(chan struct{})
	first := f.add(t, "sushiswap", 100)
	same := f.add(t, "curve", 90) // shares the uniswap USDC/WETH lane

	startBlocked(t, f, first)

	_, err := f.c.Execute(context.Background(), same.Fingerprint)
	assert.True(t, errors.Is(err, ErrLaneBusy))
	assert.Equal(t, regdomain.StatusActive, f.status(t, same.Fingerprint))

	close(f.sim.gate)
}

func TestExpired_WhileQueued(t *testing.T) {
	f := newFixture(t, Config{MaxConcurrent: 1, Overflow: OverflowQueue, QueueSize: 4})
	f.sim.gate = make(chan struct{})
	defer close(f.sim.gate)
	first := f.add(t, "sushiswap", 100)
	second := f.addExpiring(t, "curve", 90, 100*time.Millisecond)

	startBlocked(t, f, first)

	started := time.Now()
	_, err := f.c.Execute(context.Background(), second.Fingerprint)
	assert.True(t, errors.Is(err, ErrExpired), "got %v", err)
	assert.Less(t, time.Since(started), 2*time.Second, "the wait ends at expiry")
	assert.Zero(t, f.submitter.count())
	assert.Equal(t, regdomain.StatusExpired, f.status(t, second.Fingerprint))
	assert.Zero(t, f.c.waiting.Load())
}

// skewClock moves the coordinator's clock ahead of the registry's by the returned
// offset, in nanoseconds.
func skewClock(f *fixture) *atomic.Int64 {
	var skew atomic.Int64
	f.c.now = func() time.Time { return time.Now().Add(time.Duration(skew.Load())) }
	return &skew
}

func TestExpired_AfterSlot(t *testing.T) {
	f := newFixture(t, Config{})
	opp := f.addExpiring(t, "sushiswap", 100, time.Minute)
	skewClock(f).Store(int64(2 * time.Minute))

	_, err := f.c.Execute(context.Background(), opp.Fingerprint)
	assert.True(t, errors.Is(err, ErrExpired))
	assert.Zero(t, f.sim.calls.Load())
	assert.Zero(t, f.c.InFlight())
	assert.Empty(t, f.lanes.held, "slot and lanes are free")
}

func TestExpired_BeforeSubmit(t *testing.T) {
	f := newFixture(t, Config{})
	f.sim.gate = make(chan struct{})
	opp := f.addExpiring(t, "sushiswap", 100, time.Minute)
	skew := skewClock(f)

	go func() {
		assert.Eventually(t, func() bool { return f.sim.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
		skew.Store(int64(2 * time.Minute))
		close(f.sim.gate)
	}()

	exec, err := f.c.Execute(context.Background(), opp.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, domain.StateFailed, exec.State)
	assert.Equal(t, domain.FailureExpired, exec.FailureReason)
	assert.False(t, exec.AmbiguousOutcome)
	assert.Zero(t, f.submitter.count())
}

func TestFailure_ReleasesAfterLanes(t *testing.T) {
	f := newFixture(t, Config{})
	opp := f.add(t, "sushiswap", 100)
	f.sim.net = decimal.NewFromInt(10) // below the slippage floor

	var reclaimErr error
	f.claimer.onRelease = func(string) {
		release, err := f.lanes.Acquire(context.Background(), opp.Path.Lanes())
		reclaimErr = err
		if err == nil {
			release()
		}
	}

	exec, err := f.c.Execute(context.Background(), opp.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, domain.FailureSlippageExceeded, exec.FailureReason)
	assert.NoError(t, reclaimErr, "lanes are free by the time the opportunity is claimable")

	f.claimer.onRelease = nil
	f.sim.net = decimal.NewFromInt(100)
	f.reportOn(t, success("10100"))
	exec, err = f.c.Execute(context.Background(), opp.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, domain.StateConfirmed, exec.State)
}

func TestCancel(t *testing.T) {
	f := newFixture(t, Config{})
	f.sim.gate = make(chan struct{})
	opp := f.add(t, "sushiswap", 100)

	started := startBlocked(t, f, opp)

	exec, err := f.c.Cancel(context.Background(), started.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FailureCancelled, exec.FailureReason)
	assert.Zero(t, f.submitter.count())
	assert.Equal(t, regdomain.StatusActive, f.status(t, opp.Fingerprint))

	_, err = f.c.Cancel(context.Background(), started.ID)
	assert.True(t, errors.Is(err, ErrNotCancellable))

	_, err = f.c.Cancel(context.Background(), "unknown")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestCancel_AfterSubmit(t *testing.T) {
	f := newFixture(t, Config{OutcomeTimeout: 5 * time.Second})
	opp := f.add(t, "sushiswap", 100)
	submitted := make(chan string, 1)
	f.submitter.onSubmit = func(s domain.Submission) { submitted <- s.ExecutionID }

	_, err := f.c.ExecuteAsync(context.Background(), opp.Fingerprint)
	require.NoError(t, err)

	var id string
	select {
	case id = <-submitted:
	case <-time.After(2 * time.Second):
		t.Fatal("not submitted")
	}
	require.Eventually(t, func() bool {
		e, err := f.c.Get(context.Background(), id)
		return err == nil && e.State == domain.StateSubmitted
	}, 2*time.Second, 5*time.Millisecond)

	_, err = f.c.Cancel(context.Background(), id)
	assert.True(t, errors.Is(err, ErrNotCancellable))

	exec, err := f.c.ReportOutcome(context.Background(), id, success("10030"))
	require.NoError(t, err)
	assert.Equal(t, domain.StateConfirmed, exec.State)
}

func TestExecute_CallerCancelBeforeSubmit(t *testing.T) {
	f := newFixture(t, Config{})
	f.sim.gate = make(chan struct{})
	opp := f.add(t, "sushiswap", 100)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		assert.Eventually(t, func() bool { return f.sim.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
		cancel()
	}()

	exec, err := f.c.Execute(ctx, opp.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, domain.FailureCancelled, exec.FailureReason)
	assert.Equal(t, regdomain.StatusActive, f.status(t, opp.Fingerprint))
}

func TestClose_MarksSubmittedAmbiguous(t *testing.T) {
	f := newFixture(t, Config{OutcomeTimeout: time.Hour})
	opp := f.add(t, "sushiswap", 100)

	exec, err := f.c.ExecuteAsync(context.Background(), opp.Fingerprint)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		e, err := f.c.Get(context.Background(), exec.ID)
		return err == nil && e.State == domain.StateSubmitted
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, f.c.Close())

	final, err := f.ledger.Get(context.Background(), exec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FailureTimeout, final.FailureReason)
	assert.True(t, final.AmbiguousOutcome)
}

func TestBackoff(t *testing.T) {
	c := &Coordinator{cfg: Config{BackoffInitial: 100 * time.Millisecond, BackoffMax: time.Second}}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{5, time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.backoff(tt.attempt), "attempt %d", tt.attempt)
	}
}
