package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/arbitrage-engine/business/blockchain/domain"
	"github.com/fd1az/arbitrage-engine/internal/apperror"
	"github.com/fd1az/arbitrage-engine/internal/cache"
	"github.com/fd1az/arbitrage-engine/internal/circuitbreaker"
	"github.com/fd1az/arbitrage-engine/internal/logger"
)

// GasPriceSource is the slice of ethclient.Client the oracle needs.
type GasPriceSource interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// GasOracleConfig holds configuration for one chain's gas oracle.
type GasOracleConfig struct {
	ChainID     uint64
	CacheTTL    time.Duration // How long to cache gas prices
	MaxGasPrice *big.Int      // Prices above are clamped (safety)
}

// DefaultGasOracleConfig returns sensible defaults.
func DefaultGasOracleConfig(chainID uint64) GasOracleConfig {
	maxGas := new(big.Int)
	maxGas.SetString("500000000000", 10) // 500 gwei max

	return GasOracleConfig{
		ChainID:     chainID,
		CacheTTL:    12 * time.Second, // ~1 block
		MaxGasPrice: maxGas,
	}
}

type gasOracleMetrics struct {
	gasPriceFetches metric.Int64Counter
	gasPriceGwei    metric.Float64Gauge
	cacheHits       metric.Int64Counter
	cacheMisses     metric.Int64Counter
	fetchErrors     metric.Int64Counter
}

// GasOracle serves cached gas prices for one chain.
type GasOracle struct {
	config GasOracleConfig
	logger logger.LoggerInterface
	source GasPriceSource
	now    func() time.Time

	priceCache *cache.Cache[string, *domain.GasPrice]
	cb         *circuitbreaker.CircuitBreaker[*big.Int]

	tracer  trace.Tracer
	metrics *gasOracleMetrics
	attrs   metric.MeasurementOption
}

// NewGasOracle creates a gas oracle reading from source.
func NewGasOracle(cfg GasOracleConfig, source GasPriceSource, log logger.LoggerInterface) (*GasOracle, error) {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 12 * time.Second
	}

	g := &GasOracle{
		config:     cfg,
		logger:     log,
		source:     source,
		now:        time.Now,
		priceCache: cache.New[string, *domain.GasPrice](5 * time.Minute),
		tracer:     otel.Tracer(tracerName),
		attrs:      metric.WithAttributes(attribute.String("chain_id", strconv.FormatUint(cfg.ChainID, 10))),
	}

	if err := g.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	g.cb = circuitbreaker.New[*big.Int](circuitbreaker.DefaultConfig(fmt.Sprintf("gas-oracle-%d", cfg.ChainID)))
	return g, nil
}

func (g *GasOracle) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	g.metrics = &gasOracleMetrics{}

	g.metrics.gasPriceFetches, err = meter.Int64Counter(
		"gas_price_fetches_total",
		metric.WithDescription("Total gas price fetch attempts"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return err
	}

	g.metrics.gasPriceGwei, err = meter.Float64Gauge(
		"gas_price_gwei",
		metric.WithDescription("Current gas price in gwei"),
		metric.WithUnit("gwei"),
	)
	if err != nil {
		return err
	}

	g.metrics.cacheHits, err = meter.Int64Counter(
		"gas_cache_hits_total",
		metric.WithDescription("Gas price cache hits"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return err
	}

	g.metrics.cacheMisses, err = meter.Int64Counter(
		"gas_cache_misses_total",
		metric.WithDescription("Gas price cache misses"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		return err
	}

	g.metrics.fetchErrors, err = meter.Int64Counter(
		"gas_price_errors_total",
		metric.WithDescription("Gas price fetch failures"),
		metric.WithUnit("{error}"),
	)
	return err
}

// ChainID returns the chain this oracle serves.
func (g *GasOracle) ChainID() uint64 {
	return g.config.ChainID
}

// GetGasPrice retrieves the current gas price with caching. Any failure is returned
// as CodeGasPriceUnavailable; callers treat it as unknown.
func (g *GasOracle) GetGasPrice(ctx context.Context) (*domain.GasPrice, error) {
	ctx, span := g.tracer.Start(ctx, "gas.get_price",
		trace.WithAttributes(attribute.Int64("chain_id", int64(g.config.ChainID))),
	)
	defer span.End()

	if price, found := g.priceCache.Get(ctx, "current"); found {
		g.metrics.cacheHits.Add(ctx, 1, g.attrs)
		span.AddEvent("cache_hit")
		return price, nil
	}

	g.metrics.cacheMisses.Add(ctx, 1, g.attrs)
	g.metrics.gasPriceFetches.Add(ctx, 1, g.attrs)

	wei, err := g.cb.Execute(func() (*big.Int, error) {
		return g.source.SuggestGasPrice(ctx)
	})
	if err != nil {
		g.metrics.fetchErrors.Add(ctx, 1, g.attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, apperror.New(apperror.CodeGasPriceUnavailable,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("chain %d", g.config.ChainID)))
	}
	if wei == nil || wei.Sign() <= 0 {
		return nil, apperror.New(apperror.CodeGasPriceUnavailable,
			apperror.WithContext(fmt.Sprintf("chain %d returned non-positive gas price", g.config.ChainID)))
	}

	if g.config.MaxGasPrice != nil && g.config.MaxGasPrice.Sign() > 0 && wei.Cmp(g.config.MaxGasPrice) > 0 {
		span.AddEvent("gas_price_exceeded_max",
			trace.WithAttributes(attribute.String("wei", wei.String())))
		g.logger.Warn(ctx, "gas price exceeds max, clamping",
			"chain_id", g.config.ChainID, "wei", wei.String(), "max", g.config.MaxGasPrice.String())
		wei = g.config.MaxGasPrice
	}

	price := domain.NewGasPrice(g.config.ChainID, wei, g.now())
	g.priceCache.Set(ctx, "current", price, g.config.CacheTTL)

	g.metrics.gasPriceGwei.Record(ctx, price.Gwei(), g.attrs)
	span.SetAttributes(attribute.Float64("gwei", price.Gwei()))
	span.SetStatus(codes.Ok, "fetched")

	return price, nil
}

// Close stops the cache janitor.
func (g *GasOracle) Close() error {
	g.priceCache.Close()
	return nil
}
