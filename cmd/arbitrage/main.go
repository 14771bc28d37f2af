// Package main is the entry point for the cross-chain arbitrage engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/fd1az/arbitrage-engine/business/arbitrage"
	"github.com/fd1az/arbitrage-engine/business/blockchain"
	blockchainDI "github.com/fd1az/arbitrage-engine/business/blockchain/di"
	"github.com/fd1az/arbitrage-engine/business/execution"
	executionDI "github.com/fd1az/arbitrage-engine/business/execution/di"
	"github.com/fd1az/arbitrage-engine/business/ledger"
	ledgerDI "github.com/fd1az/arbitrage-engine/business/ledger/di"
	"github.com/fd1az/arbitrage-engine/business/marketdata"
	marketdataDI "github.com/fd1az/arbitrage-engine/business/marketdata/di"
	"github.com/fd1az/arbitrage-engine/business/registry"
	"github.com/fd1az/arbitrage-engine/internal/apm"
	"github.com/fd1az/arbitrage-engine/internal/config"
	"github.com/fd1az/arbitrage-engine/internal/health"
	"github.com/fd1az/arbitrage-engine/internal/httpserver"
	"github.com/fd1az/arbitrage-engine/internal/logger"
	"github.com/fd1az/arbitrage-engine/internal/metrics"
	"github.com/fd1az/arbitrage-engine/internal/monolith"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("arbitrage-engine %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(os.Stderr, logger.ParseLevel(cfg.App.LogLevel), cfg.App.Name, nil)
	log.Info(ctx, "starting arbitrage engine",
		"version", version,
		"environment", cfg.App.Environment,
		"chains", len(cfg.Chains),
	)

	traceProvider := apm.NewEmptyTraceProvider()
	if cfg.Telemetry.Enabled {
		traceProvider = apm.NewTraceProvider(log, apm.Provider(cfg.Telemetry.TraceProvider), apm.ExporterConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Endpoint:    cfg.Telemetry.OTLPEndpoint,
			Headers:     cfg.Telemetry.OTLPHeaders,
		})

		if _, err := metrics.NewMetricProvider(
			metrics.WithServiceName(cfg.Telemetry.ServiceName),
			metrics.WithProviderConfig(metrics.NewPrometheusConfig()),
		); err != nil {
			return fmt.Errorf("failed to init metrics: %w", err)
		}

		metricsSrv := metrics.ServePrometheusMetrics(log, metrics.WithPort(cfg.Telemetry.PrometheusPort))
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = metricsSrv.Shutdown(sctx)
		}()
	}
	defer func() {
		if err := traceProvider.Stop(); err != nil {
			log.Warn(context.Background(), "trace provider stop failed", "error", err)
		}
	}()

	healthSrv := health.NewServer(cfg.Health.Port, version, log)
	if err := healthSrv.Start(); err != nil {
		log.Warn(ctx, "failed to start health server", "error", err)
	} else {
		log.Info(ctx, "health server started", "port", cfg.Health.Port)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = healthSrv.Stop(sctx)
	}()

	httpSrv := httpserver.New(cfg.Server.Port, cfg.Server.Mode, log)

	mono, err := monolith.New(cfg, log, healthSrv, httpSrv)
	if err != nil {
		return fmt.Errorf("failed to create monolith: %w", err)
	}
	defer mono.Close()

	// Start order matters: feeds need block watchers, the scheduler needs the cache and
	// the coordinator resolves the registry and ledger lazily.
	modules := []monolith.Module{
		&blockchain.Module{},
		&marketdata.Module{},
		&arbitrage.Module{},
		&registry.Module{},
		&execution.Module{},
		&ledger.Module{},
	}

	if err := mono.RegisterModules(modules...); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}

	// Background loops stop on runCtx; ctx itself only carries the signal.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := mono.StartModules(runCtx, modules...); err != nil {
		return fmt.Errorf("failed to start modules: %w", err)
	}
	httpSrv.Start()

	log.Info(ctx, "all modules started")
	<-ctx.Done()
	log.Info(context.Background(), "shutting down")

	return shutdown(mono, httpSrv, cancel, log)
}

// shutdown stops intake first, then lets in-flight executions settle before the
// ledger is closed underneath them.
func shutdown(mono monolith.Monolith, httpSrv *httpserver.Server, cancel context.CancelFunc, log logger.LoggerInterface) error {
	ctx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()

	if err := httpSrv.Stop(ctx); err != nil {
		log.Warn(ctx, "api server shutdown", "error", err)
	}

	sr := mono.Services()
	if err := executionDI.GetCoordinator(sr).Close(); err != nil {
		log.Warn(ctx, "coordinator close", "error", err)
	}

	cancel()
	marketdataDI.GetFeedRunner(sr).Wait()

	if err := ledgerDI.GetLedger(sr).Close(); err != nil {
		log.Warn(ctx, "ledger close", "error", err)
	}
	if err := blockchainDI.GetBlockchainService(sr).Close(); err != nil {
		log.Warn(ctx, "blockchain close", "error", err)
	}

	log.Info(ctx, "shutdown complete")
	return nil
}
