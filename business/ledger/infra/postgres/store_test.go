package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/fd1az/arbitrage-engine/business/ledger/app"
	"github.com/fd1az/arbitrage-engine/business/ledger/infra/storetest"
)

// setupDSN starts a PostgreSQL container and returns its connection string.
func setupDSN(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("container test")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("ledger"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestStore(t *testing.T) {
	dsn := setupDSN(t)
	ctx := context.Background()

	storetest.Run(t, func(t *testing.T) app.Store {
		s, err := New(ctx, Config{DSN: dsn, MaxConns: 4})
		require.NoError(t, err)
		_, err = s.pool.Exec(ctx, "TRUNCATE executions")
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestMigrateTwice(t *testing.T) {
	dsn := setupDSN(t)
	ctx := context.Background()

	s, err := New(ctx, Config{DSN: dsn})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.migrate(ctx))

	var applied int
	require.NoError(t, s.pool.QueryRow(ctx, "SELECT count(*) FROM schema_migrations").Scan(&applied))
	require.Equal(t, 1, applied)
}
