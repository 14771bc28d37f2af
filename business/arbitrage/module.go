// Package arbitrage implements the arbitrage bounded context: opportunity detection and
// its scan schedule.
package arbitrage

import (
	"context"

	"github.com/fd1az/arbitrage-engine/business/arbitrage/app"
	arbitrageDI "github.com/fd1az/arbitrage-engine/business/arbitrage/di"
	"github.com/fd1az/arbitrage-engine/business/arbitrage/domain"
	"github.com/fd1az/arbitrage-engine/business/arbitrage/infra/bridge"
	blockchainDI "github.com/fd1az/arbitrage-engine/business/blockchain/di"
	marketdataDI "github.com/fd1az/arbitrage-engine/business/marketdata/di"
	registryDI "github.com/fd1az/arbitrage-engine/business/registry/di"
	"github.com/fd1az/arbitrage-engine/internal/asset"
	"github.com/fd1az/arbitrage-engine/internal/config"
	"github.com/fd1az/arbitrage-engine/internal/di"
	"github.com/fd1az/arbitrage-engine/internal/logger"
	"github.com/fd1az/arbitrage-engine/internal/monolith"
)

// Module implements the arbitrage bounded context.
type Module struct{}

// RegisterServices registers the bridge provider, the detector and the scheduler.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, arbitrageDI.Bridges, func(sr di.ServiceRegistry) app.BridgeFeeProvider {
		cfg := sr.Get(monolith.ConfigService).(*config.Config)
		log := sr.Get(monolith.LoggerService).(logger.LoggerInterface)

		static, err := bridge.NewStatic(cfg.Detection.Bridges)
		if err != nil {
			panic("failed to configure bridges: " + err.Error())
		}
		if cfg.Detection.BridgeQuoteURL == "" {
			return static
		}
		remote, err := bridge.NewHTTP(cfg.Detection.BridgeQuoteURL, static, log)
		if err != nil {
			panic("failed to create bridge quote client: " + err.Error())
		}
		return remote
	})

	di.RegisterToken(c, arbitrageDI.Detector, func(sr di.ServiceRegistry) *app.Detector {
		cfg := sr.Get(monolith.ConfigService).(*config.Config)
		log := sr.Get(monolith.LoggerService).(logger.LoggerInterface)
		assets := sr.Get(monolith.AssetRegistryService).(*asset.Registry)

		d, err := app.NewDetector(
			detectorConfig(cfg),
			app.NewEvaluator(evaluatorConfig(cfg)),
			marketdataDI.GetCache(sr),
			blockchainDI.GetBlockchainService(sr),
			arbitrageDI.GetBridges(sr),
			assets,
			log,
		)
		if err != nil {
			panic("failed to create detector: " + err.Error())
		}
		return d
	})

	di.RegisterToken(c, arbitrageDI.Scheduler, func(sr di.ServiceRegistry) *app.Scheduler {
		cfg := sr.Get(monolith.ConfigService).(*config.Config)
		log := sr.Get(monolith.LoggerService).(logger.LoggerInterface)
		registry := registryDI.GetRegistry(sr)

		schedules := make([]app.ChainSchedule, 0, len(cfg.Chains))
		for _, ch := range cfg.Chains {
			schedules = append(schedules, app.ChainSchedule{ChainID: ch.ID, Interval: ch.ScanInterval})
		}

		sink := app.SinkFunc(func(ctx context.Context, batch []domain.Opportunity) {
			registry.Ingest(ctx, batch)
		})
		return app.NewScheduler(arbitrageDI.GetDetector(sr), blockchainDI.GetBlockchainService(sr), sink, schedules, log)
	})

	return nil
}

// Startup runs the scan loops in the background until ctx is cancelled.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	scheduler := arbitrageDI.GetScheduler(mono.Services())
	log := mono.Logger()

	go func() {
		if err := scheduler.Run(ctx); err != nil {
			log.Error(ctx, "scan scheduler stopped", "error", err)
		}
	}()

	log.Info(ctx, "arbitrage module started", "chains", len(mono.Config().Chains))
	return nil
}

func detectorConfig(cfg *config.Config) app.DetectorConfig {
	s := cfg.Detection.Strategies
	settings := func(sc config.StrategyConfig) app.StrategySettings {
		return app.StrategySettings{
			Enabled:          sc.Enabled,
			MinProfitPercent: sc.MinProfitPercentDecimal(),
			TTL:              sc.TTL,
		}
	}

	return app.DetectorConfig{
		Chains:        cfg.ChainIDs(),
		MaxHops:       cfg.Detection.MaxHops,
		MinConfidence: cfg.Detection.MinConfidence,
		TradeSizes:    cfg.Detection.TradeSizesDecimal(),
		Strategies: map[domain.StrategyKind]app.StrategySettings{
			domain.SimpleIntraDex: settings(s.SimpleIntraDex),
			domain.Triangular:     settings(s.Triangular),
			domain.CrossDex:       settings(s.CrossDex),
			domain.CrossChain:     settings(s.CrossChain),
		},
	}
}

func evaluatorConfig(cfg *config.Config) app.EvaluatorConfig {
	gasPerHop := make(map[uint64]uint64, len(cfg.Chains))
	natives := make(map[uint64]string, len(cfg.Chains))
	for _, ch := range cfg.Chains {
		gasPerHop[ch.ID] = ch.GasPerHop
		natives[ch.ID] = ch.NativeSymbol
	}

	return app.EvaluatorConfig{
		DefaultFeeBps: cfg.Detection.DefaultFeeBps,
		DexFees:       cfg.Detection.DexFeesBps(),
		GasPerHop:     gasPerHop,
		NativeSymbols: natives,
		MaxDepthRatio: cfg.Detection.MaxDepthRatio,
		Epsilon:       cfg.Detection.EpsilonDecimal(),
	}
}
