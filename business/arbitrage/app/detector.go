package app

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/arbitrage-engine/business/arbitrage/domain"
	"github.com/fd1az/arbitrage-engine/internal/apperror"
	"github.com/fd1az/arbitrage-engine/internal/asset"
	"github.com/fd1az/arbitrage-engine/internal/logger"
)

const (
	tracerName = "github.com/fd1az/arbitrage-engine/business/arbitrage/app"
	meterName  = "github.com/fd1az/arbitrage-engine/business/arbitrage/app"
)

// StrategySettings enables a strategy and sets its emission threshold and lifetime.
type StrategySettings struct {
	Enabled          bool
	MinProfitPercent decimal.Decimal
	TTL              time.Duration
}

// DetectorConfig holds configuration for the opportunity detector.
type DetectorConfig struct {
	Chains        []uint64 // every chain with market data
	MaxHops       int
	MinConfidence float64
	TradeSizes    map[string]decimal.Decimal // by start token symbol
	Strategies    map[domain.StrategyKind]StrategySettings
}

type detectorMetrics struct {
	scanDuration metric.Float64Histogram
	candidates   metric.Int64Counter
	emitted      metric.Int64Counter
	rejected     metric.Int64Counter
}

// Detector finds arbitrage opportunities in the market data cache.
type Detector struct {
	cfg       DetectorConfig
	evaluator *Evaluator
	source    SnapshotSource
	gas       GasOracle
	bridges   BridgeFeeProvider
	assets    *asset.Registry
	logger    logger.LoggerInterface
	now       func() time.Time

	tracer  trace.Tracer
	metrics *detectorMetrics
}

// NewDetector creates a detector. bridges may be nil, which disables cross-chain
// detection.
func NewDetector(
	cfg DetectorConfig,
	evaluator *Evaluator,
	source SnapshotSource,
	gas GasOracle,
	bridges BridgeFeeProvider,
	assets *asset.Registry,
	log logger.LoggerInterface,
) (*Detector, error) {
	if cfg.MaxHops < 2 {
		cfg.MaxHops = 3
	}

	d := &Detector{
		cfg:       cfg,
		evaluator: evaluator,
		source:    source,
		gas:       gas,
		bridges:   bridges,
		assets:    assets,
		logger:    log,
		now:       time.Now,
		tracer:    otel.Tracer(tracerName),
	}
	if err := d.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return d, nil
}

func (d *Detector) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	d.metrics = &detectorMetrics{}

	d.metrics.scanDuration, err = meter.Float64Histogram(
		"detector_scan_duration_seconds",
		metric.WithDescription("Duration of one detection pass"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	d.metrics.candidates, err = meter.Int64Counter(
		"detector_candidates_total",
		metric.WithDescription("Candidate paths evaluated"),
		metric.WithUnit("{path}"),
	)
	if err != nil {
		return err
	}

	d.metrics.emitted, err = meter.Int64Counter(
		"detector_opportunities_total",
		metric.WithDescription("Opportunities emitted by strategy"),
		metric.WithUnit("{opportunity}"),
	)
	if err != nil {
		return err
	}

	d.metrics.rejected, err = meter.Int64Counter(
		"detector_rejections_total",
		metric.WithDescription("Candidates rejected by reason"),
		metric.WithUnit("{path}"),
	)
	return err
}

// Evaluator returns the evaluator the detector prices with.
func (d *Detector) Evaluator() *Evaluator {
	return d.evaluator
}

// candidate is an unpriced path found by a strategy.
type candidate struct {
	path     domain.Path
	cycleKey string // rotation-independent identity; empty for non-cycles
}

// Scan runs every enabled strategy that starts on chainIDs (all configured chains when
// empty) and returns the opportunities that clear their filters, ordered by USD value
// descending then Fingerprint. Scan does not mutate shared state.
func (d *Detector) Scan(ctx context.Context, chainIDs ...uint64) []domain.Opportunity {
	if len(chainIDs) == 0 {
		chainIDs = d.cfg.Chains
	}

	ctx, span := d.tracer.Start(ctx, "detector.scan",
		trace.WithAttributes(attribute.String("chains", fmt.Sprint(chainIDs))))
	defer span.End()

	start := d.now()
	staleness := d.source.Staleness()
	market := NewMarket(d.source.ForChains(staleness, d.cfg.Chains...), d.assets, staleness, start)

	gas := d.gasQuotes(ctx, market.Chains())
	bridges := newBridgeMemo(d.bridges)

	var candidates []candidate
	for _, chainID := range chainIDs {
		candidates = append(candidates, d.cycleCandidates(market, chainID)...)
		if d.enabled(domain.CrossDex) {
			candidates = append(candidates, d.crossDexCandidates(market, chainID)...)
		}
		if d.enabled(domain.CrossChain) && d.bridges != nil {
			for _, other := range d.cfg.Chains {
				if other == chainID {
					continue
				}
				candidates = append(candidates, d.crossChainCandidates(market, chainID, other)...)
				if !slices.Contains(chainIDs, other) {
					candidates = append(candidates, d.crossChainCandidates(market, other, chainID)...)
				}
			}
		}
	}

	byFingerprint := make(map[string]domain.Opportunity)
	byCycle := make(map[string]domain.Opportunity)
	for _, c := range candidates {
		opp, ok := d.evaluate(ctx, c.path, market, gas, bridges, start)
		if !ok {
			continue
		}
		if c.cycleKey != "" {
			if best, seen := byCycle[c.cycleKey]; seen && domain.CompareValue(opp, best) >= 0 {
				continue
			}
			byCycle[c.cycleKey] = opp
			continue
		}
		if _, seen := byFingerprint[opp.Fingerprint]; !seen {
			byFingerprint[opp.Fingerprint] = opp
		}
	}

	out := make([]domain.Opportunity, 0, len(byFingerprint)+len(byCycle))
	for _, opp := range byCycle {
		out = append(out, opp)
	}
	for _, opp := range byFingerprint {
		out = append(out, opp)
	}
	SortOpportunities(out)

	for _, opp := range out {
		d.metrics.emitted.Add(ctx, 1, metric.WithAttributes(attribute.String("strategy", string(opp.Kind))))
	}
	d.metrics.candidates.Add(ctx, int64(len(candidates)))
	d.metrics.scanDuration.Record(ctx, d.now().Sub(start).Seconds())
	span.SetAttributes(
		attribute.Int("candidates", len(candidates)),
		attribute.Int("opportunities", len(out)),
	)

	if len(out) > 0 {
		d.logger.Debug(ctx, "scan complete",
			"chains", chainIDs, "candidates", len(candidates), "opportunities", len(out))
	}
	return out
}

// SortOpportunities orders by USD value descending (see domain.CompareValue), ties by
// Fingerprint.
func SortOpportunities(opps []domain.Opportunity) {
	slices.SortFunc(opps, func(a, b domain.Opportunity) int {
		if c := domain.CompareValue(a, b); c != 0 {
			return c
		}
		return cmpString(a.Fingerprint, b.Fingerprint)
	})
}

func (d *Detector) evaluate(ctx context.Context, path domain.Path, market *Market, gas GasQuotes, bridges *bridgeMemo, now time.Time) (domain.Opportunity, bool) {
	kind := Classify(path)
	settings := d.cfg.Strategies[kind]

	in := Inputs{Market: market, Gas: gas}
	if kind == domain.CrossChain {
		q, err := bridges.quote(ctx, path, market)
		if err != nil {
			d.reject(ctx, kind, "bridge")
			return domain.Opportunity{}, false
		}
		in.Bridge = &q
	}

	ev, err := d.evaluator.Evaluate(path, in)
	if err != nil {
		d.reject(ctx, kind, rejectReason(err))
		return domain.Opportunity{}, false
	}

	switch {
	case !ev.Profit.IsProfitable:
		d.reject(ctx, kind, "unprofitable")
		return domain.Opportunity{}, false
	case ev.Profit.NetProfitPct.LessThan(settings.MinProfitPercent):
		d.reject(ctx, kind, "threshold")
		return domain.Opportunity{}, false
	case ev.Confidence < d.cfg.MinConfidence:
		d.reject(ctx, kind, "confidence")
		return domain.Opportunity{}, false
	}

	opp := domain.NewOpportunity(kind, ev.Path, ev.Profit, ev.Confidence, now, settings.TTL)
	if usd, ok := market.ValueUSD(path.First().ChainID, opp.ProfitToken, opp.NetProfit); ok {
		opp = opp.WithUSDValue(usd)
	}
	return opp, true
}

func rejectReason(err error) string {
	switch apperror.GetCode(err) {
	case apperror.CodeStaleData:
		return "stale"
	case apperror.CodeGasPriceUnavailable:
		return "gas"
	case apperror.CodeBridgeQuoteFailed:
		return "bridge"
	default:
		return "invalid"
	}
}

func (d *Detector) reject(ctx context.Context, kind domain.StrategyKind, reason string) {
	d.metrics.rejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("strategy", string(kind)),
		attribute.String("reason", reason),
	))
}

func (d *Detector) enabled(kind domain.StrategyKind) bool {
	return d.cfg.Strategies[kind].Enabled
}

func (d *Detector) tradeSize(symbol string) (decimal.Decimal, bool) {
	size, ok := d.cfg.TradeSizes[symbol]
	return size, ok && size.IsPositive()
}

// gasQuotes fetches gas for chains. Chains whose price is unknown are left out, which
// disqualifies every path touching them.
func (d *Detector) gasQuotes(ctx context.Context, chainIDs []uint64) GasQuotes {
	out := make(GasQuotes, len(chainIDs))
	for _, id := range chainIDs {
		price, err := d.gas.CurrentGasPrice(ctx, id)
		if err != nil {
			d.logger.Debug(ctx, "gas price unknown", "chain_id", id, "error", err)
			continue
		}
		out[id] = price
	}
	return out
}

// Simulate re-prices opp against the current cache, gas and bridge quotes with the
// same arithmetic detection used.
func (d *Detector) Simulate(ctx context.Context, opp domain.Opportunity) (Evaluation, error) {
	ctx, span := d.tracer.Start(ctx, "detector.simulate",
		trace.WithAttributes(attribute.String("fingerprint", opp.Fingerprint)))
	defer span.End()

	chains := opp.Path.ChainIDs()
	staleness := d.source.Staleness()
	market := NewMarket(d.source.ForChains(staleness, chains...), d.assets, staleness, d.now())

	hops := opp.Path.Hops()
	hops[0].AmountIn = opp.AmountIn
	path, err := domain.NewPath(hops)
	if err != nil {
		return Evaluation{}, err
	}

	in := Inputs{Market: market, Gas: d.gasQuotes(ctx, chains)}
	if len(chains) > 1 {
		q, err := newBridgeMemo(d.bridges).quote(ctx, path, market)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "bridge quote failed")
			return Evaluation{}, err
		}
		in.Bridge = &q
	}

	ev, err := d.evaluator.Evaluate(path, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "evaluate failed")
		return Evaluation{}, err
	}
	span.SetAttributes(attribute.String("net_profit", ev.Profit.NetProfit.String()))
	return ev, nil
}

// bridgeMemo caches bridge quotes for one pass.
type bridgeMemo struct {
	provider BridgeFeeProvider
	quotes   map[string]domain.BridgeQuote
	errs     map[string]error
}

func newBridgeMemo(provider BridgeFeeProvider) *bridgeMemo {
	return &bridgeMemo{
		provider: provider,
		quotes:   make(map[string]domain.BridgeQuote),
		errs:     make(map[string]error),
	}
}

// quote returns the bridge quote for the first chain change of path.
func (b *bridgeMemo) quote(ctx context.Context, path domain.Path, market *Market) (domain.BridgeQuote, error) {
	for i := 1; i < path.Len(); i++ {
		prev, h := path.Hop(i-1), path.Hop(i)
		if prev.ChainID == h.ChainID {
			continue
		}
		if b.provider == nil {
			return domain.BridgeQuote{}, apperror.New(apperror.CodeBridgeQuoteFailed,
				apperror.WithContext("no bridge provider"))
		}
		logical := market.Logical(prev.ChainID, prev.TokenOut)
		key := strconv.FormatUint(prev.ChainID, 10) + ">" + strconv.FormatUint(h.ChainID, 10) + ":" + logical
		if q, ok := b.quotes[key]; ok {
			return q, nil
		}
		if err, ok := b.errs[key]; ok {
			return domain.BridgeQuote{}, err
		}
		q, err := b.provider.Quote(ctx, prev.ChainID, h.ChainID, logical)
		if err != nil {
			b.errs[key] = err
			return domain.BridgeQuote{}, err
		}
		b.quotes[key] = q
		return q, nil
	}
	return domain.BridgeQuote{}, apperror.Validation(apperror.CodeInvalidPath, "path does not change chain")
}
