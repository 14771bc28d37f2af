package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/arbitrage-engine/business/ledger/app"
	"github.com/fd1az/arbitrage-engine/business/ledger/infra/storetest"
)

func open(t *testing.T, path string) *Store {
	t.Helper()
	s, err := New(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) app.Store {
		return open(t, filepath.Join(t.TempDir(), "ledger.db"))
	})
}

func TestStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	e := storetest.Execution("exec-1", "fp-1", time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC))
	s, err := New(path)
	require.NoError(t, err)
	_, err = s.Put(ctx, storetest.Confirmed(t, e))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s = open(t, path)
	got, err := s.Get(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, "confirmed", string(got.State))
	assert.Equal(t, "0xbeef", got.TxHash)
}
