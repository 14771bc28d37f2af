// Package storetest holds the behaviour every ledger store must share.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	arbdomain "github.com/fd1az/arbitrage-engine/business/arbitrage/domain"
	exdomain "github.com/fd1az/arbitrage-engine/business/execution/domain"
	"github.com/fd1az/arbitrage-engine/business/ledger/app"
	"github.com/fd1az/arbitrage-engine/business/ledger/domain"
)

var base = time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

// Run exercises a store created fresh by newStore for each subtest.
func Run(t *testing.T, newStore func(t *testing.T) app.Store) {
	t.Run("round trip", func(t *testing.T) { roundTrip(t, newStore(t)) })
	t.Run("terminal guard", func(t *testing.T) { terminalGuard(t, newStore(t)) })
	t.Run("query", func(t *testing.T) { query(t, newStore(t)) })
	t.Run("concurrent terminal writes", func(t *testing.T) { concurrentTerminal(t, newStore(t)) })
}

// Execution builds a claimed execution on chains 1 and 42161.
func Execution(id, fingerprint string, claimedAt time.Time) exdomain.Execution {
	path, err := arbdomain.NewPath([]arbdomain.Hop{
		{ChainID: 1, DexID: "uniswap", TokenIn: "USDC", TokenOut: "WETH", AmountIn: decimal.NewFromInt(10_000)},
		{ChainID: 42161, DexID: "camelot", TokenIn: "WETH", TokenOut: "USDC"},
	})
	if err != nil {
		panic(err)
	}
	profit := arbdomain.NewProfitResult(decimal.NewFromInt(10_000), decimal.RequireFromString("10042.5"),
		decimal.RequireFromString("1.25"), decimal.Zero, decimal.Zero)
	opp := arbdomain.NewOpportunity(arbdomain.CrossChain, path, profit, 0.7, claimedAt, time.Minute)
	opp.Fingerprint = fingerprint
	return domain.Canonical(exdomain.NewExecution(id, opp, 1, claimedAt))
}

// Confirmed drives e through to a priced confirmation.
func Confirmed(t *testing.T, e exdomain.Execution) exdomain.Execution {
	t.Helper()
	at := e.ClaimedAt
	e, err := e.Simulated(decimal.RequireFromString("40.1"), decimal.RequireFromString("10041.35"), at.Add(time.Second))
	require.NoError(t, err)
	e, err = e.Submitted("corr-"+e.ID, at.Add(2*time.Second))
	require.NoError(t, err)
	profit := decimal.RequireFromString("38.000000001")
	e, err = e.Confirmed(exdomain.Outcome{
		Success:     true,
		AmountOut:   decimal.RequireFromString("10040.2"),
		GasUsed:     350_000,
		GasPriceWei: decimal.RequireFromString("12000000000"),
		TxHash:      "0xbeef",
	}, &profit, at.Add(30*time.Second))
	require.NoError(t, err)
	return domain.Canonical(e)
}

func put(t *testing.T, s app.Store, e exdomain.Execution) bool {
	t.Helper()
	changed, err := s.Put(context.Background(), e)
	require.NoError(t, err)
	return changed
}

func roundTrip(t *testing.T, s app.Store) {
	ctx := context.Background()
	e := Execution("exec-1", "fp-1", base)
	assert.True(t, put(t, s, e))

	got, err := s.Get(ctx, "exec-1")
	require.NoError(t, err)
	assert.True(t, got.Equal(e), "claimed entry changed in storage:\n%+v\n%+v", got, e)

	done := Confirmed(t, e)
	assert.True(t, put(t, s, done))

	got, err = s.Get(ctx, "exec-1")
	require.NoError(t, err)
	assert.True(t, got.Equal(done), "confirmed entry changed in storage:\n%+v\n%+v", got, done)
	assert.Equal(t, []uint64{1, 42161}, got.ChainIDs)
	assert.Equal(t, "38.000000001", got.ActualProfitUSD.Decimal.String())
	assert.False(t, got.SimulatedNetProfit.Decimal.IsZero())
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(base.Add(30*time.Second)))

	_, err = s.Get(ctx, "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func terminalGuard(t *testing.T, s app.Store) {
	ctx := context.Background()
	e := Execution("exec-1", "fp-1", base)
	put(t, s, e)
	failed, err := e.Failed(exdomain.FailureSlippageExceeded, "net 10 below 20", base.Add(time.Second))
	require.NoError(t, err)
	failed = domain.Canonical(failed)
	require.True(t, put(t, s, failed))

	assert.False(t, put(t, s, failed), "identical terminal entry must be a no-op")

	failed.UpdatedAt = failed.UpdatedAt.Add(time.Minute)
	assert.False(t, put(t, s, failed), "update time alone is not a change")

	changed := failed
	changed.FailureDetail = "rewritten"
	_, err = s.Put(ctx, changed)
	assert.True(t, errors.Is(err, domain.ErrTerminal))

	_, err = s.Put(ctx, e)
	assert.True(t, errors.Is(err, domain.ErrTerminal), "a terminal entry must not go back to claimed")

	got, err := s.Get(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, "net 10 below 20", got.FailureDetail)
}

func query(t *testing.T, s app.Store) {
	ctx := context.Background()

	a := Execution("a", "fp-1", base)
	b := Confirmed(t, Execution("b", "fp-1", base.Add(time.Minute)))
	c := Execution("c", "fp-2", base.Add(2*time.Minute))
	c.ChainIDs = []uint64{10}
	d := Execution("d", "fp-2", base.Add(2*time.Minute))
	for _, e := range []exdomain.Execution{a, b, c, d} {
		put(t, s, e)
	}

	ids := func(f domain.Filter) []string {
		t.Helper()
		execs, err := s.Query(ctx, f)
		require.NoError(t, err)
		out := make([]string, 0, len(execs))
		for _, e := range execs {
			out = append(out, e.ID)
		}
		return out
	}

	assert.Equal(t, []string{"d", "c", "b", "a"}, ids(domain.Filter{}))
	assert.Equal(t, []string{"d", "c"}, ids(domain.Filter{Limit: 2}))
	assert.Equal(t, []string{"b"}, ids(domain.Filter{States: []exdomain.State{exdomain.StateConfirmed}}))
	assert.Equal(t, []string{"d", "c", "a"}, ids(domain.Filter{States: []exdomain.State{exdomain.StateClaimed}}))
	assert.Equal(t, []string{"b", "a"}, ids(domain.Filter{Fingerprint: "fp-1"}))
	assert.Equal(t, []string{"b"}, ids(domain.Filter{From: base.Add(time.Minute), To: base.Add(2 * time.Minute)}))
	assert.Equal(t, []string{"c"}, ids(domain.Filter{ChainID: 10}))
	assert.Equal(t, []string{"d", "b", "a"}, ids(domain.Filter{ChainID: 42161}))
	assert.Empty(t, ids(domain.Filter{Fingerprint: "none"}))
}

func concurrentTerminal(t *testing.T, s app.Store) {
	e := Execution("exec-1", "fp-1", base)
	put(t, s, e)

	const writers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted []string
	)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f, err := e.Failed(exdomain.FailureSimulation, fmt.Sprintf("writer %d", i), base.Add(time.Second))
			if err != nil {
				return
			}
			if changed, err := s.Put(context.Background(), domain.Canonical(f)); err == nil && changed {
				mu.Lock()
				accepted = append(accepted, f.FailureDetail)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, accepted, 1, "exactly one terminal write may win")
	got, err := s.Get(context.Background(), "exec-1")
	require.NoError(t, err)
	assert.Equal(t, accepted[0], got.FailureDetail)
}
