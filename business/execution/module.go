// Package execution implements the execution bounded context: claiming opportunities,
// re-simulating, submitting and tracking outcomes.
package execution

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	arbitrageDI "github.com/fd1az/arbitrage-engine/business/arbitrage/di"
	"github.com/fd1az/arbitrage-engine/business/execution/app"
	executionDI "github.com/fd1az/arbitrage-engine/business/execution/di"
	"github.com/fd1az/arbitrage-engine/business/execution/infra/lanelock"
	"github.com/fd1az/arbitrage-engine/business/execution/infra/priceoracle"
	"github.com/fd1az/arbitrage-engine/business/execution/infra/rest"
	"github.com/fd1az/arbitrage-engine/business/execution/infra/submitter"
	ledgerDI "github.com/fd1az/arbitrage-engine/business/ledger/di"
	marketdataDI "github.com/fd1az/arbitrage-engine/business/marketdata/di"
	registryDI "github.com/fd1az/arbitrage-engine/business/registry/di"
	"github.com/fd1az/arbitrage-engine/internal/asset"
	"github.com/fd1az/arbitrage-engine/internal/config"
	"github.com/fd1az/arbitrage-engine/internal/di"
	"github.com/fd1az/arbitrage-engine/internal/logger"
	"github.com/fd1az/arbitrage-engine/internal/monolith"
)

// Module implements the execution bounded context.
type Module struct{}

// RegisterServices registers the submitter, lane locker, price oracle and coordinator.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, executionDI.Submitter, func(sr di.ServiceRegistry) app.Submitter {
		cfg := sr.Get(monolith.ConfigService).(*config.Config)
		log := sr.Get(monolith.LoggerService).(logger.LoggerInterface)

		if cfg.Execution.DryRun || cfg.Execution.SubmissionURL == "" {
			return submitter.NewDryRun(cfg.Execution.DryRunDelay, log)
		}
		s, err := submitter.NewHTTP(submitter.HTTPConfig{
			BaseURL:       cfg.Execution.SubmissionURL,
			Timeout:       cfg.Execution.SubmissionTimeout,
			RatePerMinute: cfg.Execution.SubmissionRatePerMinute,
			BearerToken:   cfg.Execution.SubmissionToken,
		}, log)
		if err != nil {
			panic("failed to create submission client: " + err.Error())
		}
		return s
	})

	di.RegisterToken(c, executionDI.Lanes, func(sr di.ServiceRegistry) app.LaneLocker {
		cfg := sr.Get(monolith.ConfigService).(*config.Config)
		rdb, _ := sr.Get(monolith.RedisService).(*redis.Client)

		if cfg.Execution.LaneLocker == "redis" && rdb != nil {
			return lanelock.NewRedis(rdb, cfg.Execution.LaneLockTTL)
		}
		return lanelock.NewMemory()
	})

	di.RegisterToken(c, executionDI.Prices, func(sr di.ServiceRegistry) app.PriceOracle {
		assets := sr.Get(monolith.AssetRegistryService).(*asset.Registry)
		return priceoracle.New(marketdataDI.GetCache(sr), assets)
	})

	di.RegisterToken(c, executionDI.Coordinator, func(sr di.ServiceRegistry) *app.Coordinator {
		cfg := sr.Get(monolith.ConfigService).(*config.Config)
		log := sr.Get(monolith.LoggerService).(logger.LoggerInterface)
		sub := executionDI.GetSubmitter(sr)

		coord, err := app.NewCoordinator(coordinatorConfig(cfg), app.Deps{
			Claimer:   registryDI.GetRegistry(sr),
			Simulator: arbitrageDI.GetDetector(sr),
			Submitter: sub,
			Prices:    executionDI.GetPrices(sr),
			Ledger:    ledgerDI.GetLedger(sr),
			Lanes:     executionDI.GetLanes(sr),
		}, log)
		if err != nil {
			panic("failed to create execution coordinator: " + err.Error())
		}
		if dr, ok := sub.(*submitter.DryRun); ok {
			dr.SetReporter(coord)
		}
		return coord
	})

	return nil
}

// Startup mounts the command API and the capacity health check.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	coord := executionDI.GetCoordinator(mono.Services())
	cfg := mono.Config().Execution

	rest.New(coord).Register(mono.HTTP().API())

	mono.Health().RegisterCheck("execution", func(context.Context) (bool, string) {
		return true, fmt.Sprintf("%d/%d in flight", coord.InFlight(), cfg.MaxConcurrent)
	})

	mono.Logger().Info(ctx, "execution module started",
		"dry_run", cfg.DryRun || cfg.SubmissionURL == "",
		"max_concurrent", cfg.MaxConcurrent,
		"overflow", cfg.OverflowPolicy,
		"lane_locker", cfg.LaneLocker)
	return nil
}

func coordinatorConfig(cfg *config.Config) app.Config {
	natives := make(map[uint64]string, len(cfg.Chains))
	for _, ch := range cfg.Chains {
		natives[ch.ID] = ch.NativeSymbol
	}

	e := cfg.Execution
	return app.Config{
		MaxConcurrent:     e.MaxConcurrent,
		Overflow:          app.OverflowPolicy(e.OverflowPolicy),
		QueueSize:         e.QueueSize,
		SlippageTolerance: e.SlippageToleranceDecimal(),
		OutcomeTimeout:    e.OutcomeTimeout,
		MaxAttempts:       e.MaxAttempts,
		BackoffInitial:    e.BackoffInitial,
		BackoffMax:        e.BackoffMax,
		NativeSymbols:     natives,
	}
}
