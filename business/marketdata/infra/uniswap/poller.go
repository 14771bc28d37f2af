// Package uniswap polls Uniswap V3 QuoterV2 and turns quotes into market snapshots.
package uniswap

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	bcdomain "github.com/fd1az/arbitrage-engine/business/blockchain/domain"
	"github.com/fd1az/arbitrage-engine/business/marketdata/app"
	"github.com/fd1az/arbitrage-engine/business/marketdata/domain"
	"github.com/fd1az/arbitrage-engine/internal/apperror"
	"github.com/fd1az/arbitrage-engine/internal/asset"
	"github.com/fd1az/arbitrage-engine/internal/circuitbreaker"
	"github.com/fd1az/arbitrage-engine/internal/logger"
)

const (
	tracerName = "github.com/fd1az/arbitrage-engine/business/marketdata/infra/uniswap"
	meterName  = "github.com/fd1az/arbitrage-engine/business/marketdata/infra/uniswap"

	// the depth probe is this many times the price probe
	depthProbeMultiplier = 10
	// depth reported when both probes execute at the same rate
	maxDepthMultiplier = 1000
)

var _ app.Feed = (*Poller)(nil)

// ContractCaller is the slice of ethclient.Client the poller needs.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Pool is one quoted direction of a Uniswap V3 pool.
type Pool struct {
	Dex      string
	TokenIn  asset.Asset
	TokenOut asset.Asset
	FeeTier  uint32
	Probe    decimal.Decimal // in TokenIn units
}

// Key returns the snapshot key the pool writes.
func (p Pool) Key() domain.SnapshotKey {
	return domain.SnapshotKey{
		ChainID:  p.TokenIn.ChainID,
		DexID:    p.Dex,
		TokenIn:  p.TokenIn.Symbol,
		TokenOut: p.TokenOut.Symbol,
	}
}

// PollerConfig configures the quoter poller of one chain.
type PollerConfig struct {
	ChainID  uint64
	Quoter   common.Address
	Pools    []Pool
	Interval time.Duration // fallback when no block arrives
}

type pollerMetrics struct {
	quotesTotal  metric.Int64Counter
	quoteLatency metric.Float64Histogram
	quoteErrors  metric.Int64Counter
}

// Poller quotes every configured pool on each new block (and on a fallback ticker).
type Poller struct {
	config    PollerConfig
	caller    ContractCaller
	quoterABI abi.ABI
	sink      app.Sink
	blocks    <-chan *bcdomain.Block
	now       func() time.Time

	logger logger.LoggerInterface
	cb     *circuitbreaker.CircuitBreaker[[]byte]

	tracer  trace.Tracer
	metrics *pollerMetrics
	attrs   metric.MeasurementOption
}

// NewPoller creates a poller. blocks may be nil, in which case only the ticker drives it.
func NewPoller(cfg PollerConfig, caller ContractCaller, sink app.Sink, blocks <-chan *bcdomain.Block, log logger.LoggerInterface) (*Poller, error) {
	parsedABI, err := abi.JSON(strings.NewReader(QuoterV2ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse quoter ABI: %w", err)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 12 * time.Second
	}

	p := &Poller{
		config:    cfg,
		caller:    caller,
		quoterABI: parsedABI,
		sink:      sink,
		blocks:    blocks,
		now:       time.Now,
		logger:    log,
		tracer:    otel.Tracer(tracerName),
		attrs:     metric.WithAttributes(attribute.Int64("chain_id", int64(cfg.ChainID))),
	}

	p.cb = circuitbreaker.New[[]byte](circuitbreaker.DefaultConfig(fmt.Sprintf("uniswap-quoter-%d", cfg.ChainID)))

	if err := p.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	return p, nil
}

func (p *Poller) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	p.metrics = &pollerMetrics{}

	p.metrics.quotesTotal, err = meter.Int64Counter(
		"uniswap_quotes_total",
		metric.WithDescription("Total quote requests"),
	)
	if err != nil {
		return err
	}

	p.metrics.quoteLatency, err = meter.Float64Histogram(
		"uniswap_quote_latency_ms",
		metric.WithDescription("Quote request latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	p.metrics.quoteErrors, err = meter.Int64Counter(
		"uniswap_quote_errors_total",
		metric.WithDescription("Total quote errors"),
	)
	return err
}

// Name implements app.Feed.
func (p *Poller) Name() string {
	return fmt.Sprintf("uniswap-%d", p.config.ChainID)
}

// Run polls until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	p.PollAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-p.blocks:
			if !ok {
				p.blocks = nil
				continue
			}
			ticker.Reset(p.config.Interval)
			p.PollAll(ctx)
		case <-ticker.C:
			p.PollAll(ctx)
		}
	}
}

// PollAll quotes every pool once and offers the snapshots to the sink.
func (p *Poller) PollAll(ctx context.Context) {
	ctx, span := p.tracer.Start(ctx, "uniswap.poll",
		trace.WithAttributes(
			attribute.Int64("chain_id", int64(p.config.ChainID)),
			attribute.Int("pools", len(p.config.Pools)),
		),
	)
	defer span.End()

	for _, pool := range p.config.Pools {
		s, err := p.Snapshot(ctx, pool)
		if err != nil {
			p.logger.Warn(ctx, "uniswap quote failed", "pool", pool.Key().String(), "error", err)
			continue
		}
		if _, err := p.sink.Offer(ctx, s); err != nil {
			p.logger.Warn(ctx, "snapshot rejected", "pool", pool.Key().String(), "error", err)
		}
	}
}

// Snapshot quotes the pool at two sizes. Price is the small probe's fee-free rate;
// depth is the notional at which price impact would reach 100% if it grew linearly
// from the large probe's impact.
func (p *Poller) Snapshot(ctx context.Context, pool Pool) (domain.MarketSnapshot, error) {
	ctx, span := p.tracer.Start(ctx, "uniswap.snapshot",
		trace.WithAttributes(
			attribute.String("pool", pool.Key().String()),
			attribute.Int("fee_tier", int(pool.FeeTier)),
		),
	)
	defer span.End()

	start := p.now()

	small := pool.Probe
	large := pool.Probe.Mul(decimal.NewFromInt(depthProbeMultiplier))

	outSmall, err := p.quote(ctx, pool, pool.TokenIn.ToRaw(small))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "price probe failed")
		return domain.MarketSnapshot{}, err
	}
	outLarge, err := p.quote(ctx, pool, pool.TokenIn.ToRaw(large))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "depth probe failed")
		return domain.MarketSnapshot{}, err
	}

	keep := decimal.NewFromInt(feeTierDenominator - int64(pool.FeeTier)).Div(decimal.NewFromInt(feeTierDenominator))

	rateSmall := pool.TokenOut.ToDecimal(outSmall).Div(small)
	if !rateSmall.IsPositive() {
		return domain.MarketSnapshot{}, apperror.New(apperror.CodeQuoteFailed,
			apperror.WithContext("zero output for "+pool.Key().String()))
	}
	rateLarge := pool.TokenOut.ToDecimal(outLarge).Div(large)

	price := rateSmall.Div(keep)
	notional := large.Mul(rateSmall)
	impact := decimal.NewFromInt(1).Sub(rateLarge.Div(rateSmall))

	depth := notional.Mul(decimal.NewFromInt(maxDepthMultiplier))
	if impact.IsPositive() {
		depth = decimal.Min(depth, notional.Div(impact))
	}

	observed := p.now()
	s := domain.MarketSnapshot{
		Key:            pool.Key(),
		Price:          price,
		LiquidityDepth: depth,
		ObservedAt:     observed,
		SourceLatency:  observed.Sub(start),
	}

	span.SetAttributes(
		attribute.String("price", price.String()),
		attribute.String("depth", depth.String()),
	)
	span.SetStatus(codes.Ok, "quoted")
	return s, nil
}

// quote calls QuoterV2.quoteExactInputSingle and returns amountOut.
func (p *Poller) quote(ctx context.Context, pool Pool, amountIn *big.Int) (*big.Int, error) {
	p.metrics.quotesTotal.Add(ctx, 1, p.attrs)
	start := time.Now()
	defer func() {
		p.metrics.quoteLatency.Record(ctx, float64(time.Since(start).Milliseconds()), p.attrs)
	}()

	callData, err := p.quoterABI.Pack("quoteExactInputSingle", QuoteExactInputSingleParams{
		TokenIn:           pool.TokenIn.Address,
		TokenOut:          pool.TokenOut.Address,
		AmountIn:          amountIn,
		Fee:               big.NewInt(int64(pool.FeeTier)),
		SqrtPriceLimitX96: big.NewInt(0),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode call: %w", err)
	}

	result, err := p.cb.Execute(func() ([]byte, error) {
		return p.caller.CallContract(ctx, ethereum.CallMsg{
			To:   &p.config.Quoter,
			Data: callData,
		}, nil)
	})
	if err != nil {
		p.metrics.quoteErrors.Add(ctx, 1, p.attrs)
		return nil, apperror.New(apperror.CodeQuoteFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("quoter call failed for %s", pool.Key())))
	}

	outputs, err := p.quoterABI.Unpack("quoteExactInputSingle", result)
	if err != nil {
		p.metrics.quoteErrors.Add(ctx, 1, p.attrs)
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	if len(outputs) < 4 {
		return nil, fmt.Errorf("unexpected output length: %d", len(outputs))
	}
	out, ok := outputs[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected amountOut type %T", outputs[0])
	}
	return out, nil
}
