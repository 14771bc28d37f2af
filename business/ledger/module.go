// Package ledger implements the execution ledger bounded context.
package ledger

import (
	"context"
	"time"

	"github.com/fd1az/arbitrage-engine/business/ledger/app"
	ledgerDI "github.com/fd1az/arbitrage-engine/business/ledger/di"
	"github.com/fd1az/arbitrage-engine/business/ledger/infra/memory"
	"github.com/fd1az/arbitrage-engine/business/ledger/infra/postgres"
	"github.com/fd1az/arbitrage-engine/business/ledger/infra/rest"
	"github.com/fd1az/arbitrage-engine/business/ledger/infra/sqlite"
	"github.com/fd1az/arbitrage-engine/internal/config"
	"github.com/fd1az/arbitrage-engine/internal/di"
	"github.com/fd1az/arbitrage-engine/internal/health"
	"github.com/fd1az/arbitrage-engine/internal/logger"
	"github.com/fd1az/arbitrage-engine/internal/monolith"
)

// Module implements the ledger bounded context.
type Module struct{}

// RegisterServices registers the configured store and the ledger service.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, ledgerDI.Store, func(sr di.ServiceRegistry) app.Store {
		cfg := sr.Get(monolith.ConfigService).(*config.Config)

		switch cfg.Ledger.Driver {
		case config.LedgerPostgres:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			s, err := postgres.New(ctx, postgres.Config{DSN: cfg.Ledger.PostgresDSN, MaxConns: cfg.Ledger.MaxConns})
			if err != nil {
				panic("failed to open postgres ledger: " + err.Error())
			}
			return s
		case config.LedgerSQLite:
			s, err := sqlite.New(cfg.Ledger.SQLitePath)
			if err != nil {
				panic("failed to open sqlite ledger: " + err.Error())
			}
			return s
		default:
			return memory.New()
		}
	})

	di.RegisterToken(c, ledgerDI.Ledger, func(sr di.ServiceRegistry) *app.Ledger {
		log := sr.Get(monolith.LoggerService).(logger.LoggerInterface)
		l, err := app.New(ledgerDI.GetStore(sr), log)
		if err != nil {
			panic("failed to create ledger: " + err.Error())
		}
		return l
	})

	return nil
}

// Startup mounts the read API and the store health check.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	l := ledgerDI.GetLedger(mono.Services())

	rest.New(l).Register(mono.HTTP().API())
	mono.Health().RegisterCheck("ledger", health.FromError(l.Ping))

	mono.Logger().Info(ctx, "ledger module started", "driver", mono.Config().Ledger.Driver)
	return nil
}
