package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	exdomain "github.com/fd1az/arbitrage-engine/business/execution/domain"
	"github.com/fd1az/arbitrage-engine/business/ledger/app"
	"github.com/fd1az/arbitrage-engine/business/ledger/domain"
	"github.com/fd1az/arbitrage-engine/business/ledger/infra/memory"
	"github.com/fd1az/arbitrage-engine/business/ledger/infra/storetest"
	"github.com/fd1az/arbitrage-engine/internal/apperror"
	"github.com/fd1az/arbitrage-engine/internal/logger"
)

func newLedger(t *testing.T) *app.Ledger {
	t.Helper()
	l, err := app.New(memory.New(), logger.Discard())
	require.NoError(t, err)
	return l
}

func TestRecord_Idempotent(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	at := time.Date(2026, 4, 2, 10, 0, 0, 123_456_789, time.Local)

	e := storetest.Execution("exec-1", "fp-1", at)
	require.NoError(t, l.Record(ctx, e))
	done := storetest.Confirmed(t, e)
	require.NoError(t, l.Record(ctx, done))

	require.NoError(t, l.Record(ctx, done))

	done.TxHash = "0xother"
	err := l.Record(ctx, done)
	assert.True(t, errors.Is(err, domain.ErrTerminal))

	got, err := l.Get(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, "0xbeef", got.TxHash)

	err = l.Record(ctx, exdomain.Execution{})
	assert.Equal(t, apperror.CodeRequiredField, apperror.GetCode(err))
}

func TestStats(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	at := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

	require.NoError(t, l.Record(ctx, storetest.Confirmed(t, storetest.Execution("a", "fp-1", at))))
	require.NoError(t, l.Record(ctx, storetest.Confirmed(t, storetest.Execution("b", "fp-2", at.Add(time.Minute)))))

	failed, err := storetest.Execution("c", "fp-3", at).Failed(exdomain.FailureStaleData, "snapshot too old", at)
	require.NoError(t, err)
	require.NoError(t, l.Record(ctx, failed))
	require.NoError(t, l.Record(ctx, storetest.Execution("d", "fp-4", at)))

	s, err := l.Stats(ctx, domain.Filter{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 4, s.Total, "stats ignore the limit")
	assert.Equal(t, 2, s.Confirmed)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.InFlight)
	assert.InDelta(t, 2.0/3.0, s.SuccessRate, 1e-9)
	assert.True(t, s.RealizedProfitUSD.Equal(decimal.RequireFromString("76.000000002")))
	assert.Equal(t, uint64(700_000), s.GasUsed)

	s, err = l.Stats(ctx, domain.Filter{Fingerprint: "fp-3"})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Total)
	assert.Equal(t, 1, s.FailuresByReason["stale_data"])
}
