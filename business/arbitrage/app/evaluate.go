package app

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/fd1az/arbitrage-engine/business/arbitrage/domain"
	bcdomain "github.com/fd1az/arbitrage-engine/business/blockchain/domain"
	"github.com/fd1az/arbitrage-engine/internal/apperror"
)

// GasQuotes holds the gas price of each chain known for one pass. A missing chain
// means its gas price is unknown.
type GasQuotes map[uint64]*bcdomain.GasPrice

// Inputs are the market facts a path is priced against.
type Inputs struct {
	Market *Market
	Gas    GasQuotes
	Bridge *domain.BridgeQuote // required when the path changes chain
}

// Evaluation is a priced path.
type Evaluation struct {
	Path       domain.Path // hop amounts filled in
	Profit     domain.ProfitResult
	Confidence float64
}

// EvaluatorConfig holds the cost model.
type EvaluatorConfig struct {
	DefaultFeeBps int64
	DexFees       map[string]int64  // fee override per DEX id
	GasPerHop     map[uint64]uint64 // per chain
	NativeSymbols map[uint64]string // per chain
	MaxDepthRatio float64           // trade/depth ratio at which the depth score reaches 0
	Epsilon       decimal.Decimal
}

// Evaluator prices paths. Detection and pre-submission simulation share it so both see
// the same arithmetic.
type Evaluator struct {
	cfg EvaluatorConfig
}

// NewEvaluator creates an evaluator.
func NewEvaluator(cfg EvaluatorConfig) *Evaluator {
	if cfg.MaxDepthRatio <= 0 {
		cfg.MaxDepthRatio = 0.2
	}
	return &Evaluator{cfg: cfg}
}

// FeeBps returns the swap fee of a DEX.
func (e *Evaluator) FeeBps(dex string) int64 {
	if fee, ok := e.cfg.DexFees[dex]; ok {
		return fee
	}
	return e.cfg.DefaultFeeBps
}

// Epsilon is the smallest net profit treated as positive.
func (e *Evaluator) Epsilon() decimal.Decimal {
	return e.cfg.Epsilon
}

// Classify returns the strategy kind a path belongs to.
func Classify(path domain.Path) domain.StrategyKind {
	switch {
	case len(path.ChainIDs()) > 1:
		return domain.CrossChain
	case path.Len() >= 3:
		return domain.Triangular
	case len(path.DexIDs()) == 1:
		return domain.SimpleIntraDex
	default:
		return domain.CrossDex
	}
}

// Evaluate prices path starting from its first hop's AmountIn. It fails with
// CodeStaleData when a hop has no fresh quote, CodeGasPriceUnavailable when gas cannot
// be priced in the profit token, CodeBridgeQuoteFailed when a chain change has no
// bridge quote and CodeInvalidPath for a discontinuous path.
func (e *Evaluator) Evaluate(path domain.Path, in Inputs) (Evaluation, error) {
	if in.Market == nil {
		return Evaluation{}, apperror.New(apperror.CodeStaleData, apperror.WithContext("no market view"))
	}
	m := in.Market

	first := path.First()
	amountIn := first.AmountIn
	if !amountIn.IsPositive() {
		return Evaluation{}, apperror.Validation(apperror.CodeInvalidPath, "non-positive trade size")
	}
	profitLogical := m.Logical(first.ChainID, first.TokenIn)

	amount := amountIn
	unbridged := amountIn
	bridged := false
	amounts := make([]decimal.Decimal, 0, path.Len())
	depthScore, freshness := 1.0, 1.0

	for i := 0; i < path.Len(); i++ {
		h := path.Hop(i)
		if i > 0 {
			prev := path.Hop(i - 1)
			switch {
			case prev.ChainID == h.ChainID && prev.TokenOut != h.TokenIn:
				return Evaluation{}, apperror.Validation(apperror.CodeInvalidPath,
					fmt.Sprintf("hop %d starts at %s, previous ended at %s", i, h.TokenIn, prev.TokenOut))
			case prev.ChainID != h.ChainID:
				logical := m.Logical(prev.ChainID, prev.TokenOut)
				if logical != m.Logical(h.ChainID, h.TokenIn) {
					return Evaluation{}, apperror.Validation(apperror.CodeInvalidPath,
						fmt.Sprintf("hop %d bridges %s into %s", i, prev.TokenOut, h.TokenIn))
				}
				b := in.Bridge
				if b == nil || b.FromChain != prev.ChainID || b.ToChain != h.ChainID || b.Asset != logical {
					return Evaluation{}, apperror.New(apperror.CodeBridgeQuoteFailed,
						apperror.WithContext(fmt.Sprintf("%s %d->%d", logical, prev.ChainID, h.ChainID)))
				}
				amount = b.Apply(amount)
				bridged = true
			}
		}

		q, ok := m.Quote(h.Key())
		if !ok {
			return Evaluation{}, apperror.New(apperror.CodeStaleData, apperror.WithContext(h.String()))
		}
		amounts = append(amounts, amount)

		gross := amount.Mul(q.Rate)
		depthScore = math.Min(depthScore, e.depthScore(gross, q.Depth))
		freshness = math.Min(freshness, freshnessScore(m, q))

		fee := e.FeeBps(h.DexID)
		amount = domain.ApplyFee(gross, fee)
		unbridged = domain.ApplyFee(unbridged.Mul(q.Rate), fee)
	}

	last := path.Last()
	if m.Logical(last.ChainID, last.TokenOut) != profitLogical {
		return Evaluation{}, apperror.Validation(apperror.CodeInvalidPath,
			fmt.Sprintf("path ends in %s, not %s", last.TokenOut, first.TokenIn))
	}

	gas, err := e.gasCost(path, profitLogical, in)
	if err != nil {
		return Evaluation{}, err
	}

	bridgeCost := decimal.Zero
	if bridged {
		bridgeCost = unbridged.Sub(amount)
	}

	return Evaluation{
		Path:       path.WithAmounts(amounts),
		Profit:     domain.NewProfitResult(amountIn, amount, gas, bridgeCost, e.cfg.Epsilon),
		Confidence: depthScore * (0.5 + 0.5*freshness),
	}, nil
}

// depthScore is 1 for a negligible trade and 0 once the trade reaches MaxDepthRatio of
// the quoted depth. Unknown depth scores 0.
func (e *Evaluator) depthScore(tradeOut, depth decimal.Decimal) float64 {
	if !depth.IsPositive() {
		return 0
	}
	ratio, _ := tradeOut.Div(depth).Float64()
	return clamp01(1 - ratio/e.cfg.MaxDepthRatio)
}

func freshnessScore(m *Market, q Quote) float64 {
	if m.staleness <= 0 {
		return 1
	}
	age := m.now.Sub(q.ObservedAt)
	return clamp01(1 - float64(age)/float64(m.staleness))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// gasCost charges every hop gasPerHop on its chain, valued in the profit asset.
func (e *Evaluator) gasCost(path domain.Path, profitLogical string, in Inputs) (decimal.Decimal, error) {
	hopsPerChain := make(map[uint64]uint64)
	for _, h := range path.Hops() {
		hopsPerChain[h.ChainID]++
	}

	total := decimal.Zero
	for _, chainID := range path.ChainIDs() {
		price := in.Gas[chainID]
		if price == nil || price.Wei == nil || price.Wei.Sign() <= 0 {
			return decimal.Zero, apperror.New(apperror.CodeGasPriceUnavailable,
				apperror.WithContext(fmt.Sprintf("chain %d", chainID)))
		}
		perHop := e.cfg.GasPerHop[chainID]
		if perHop == 0 {
			return decimal.Zero, apperror.New(apperror.CodeGasPriceUnavailable,
				apperror.WithContext(fmt.Sprintf("chain %d has no gas_per_hop", chainID)))
		}

		native := price.CostNative(perHop * hopsPerChain[chainID])
		nativeLogical := in.Market.Logical(chainID, e.cfg.NativeSymbols[chainID])
		cost, ok := in.Market.Convert(chainID, nativeLogical, profitLogical, native)
		if !ok {
			return decimal.Zero, apperror.New(apperror.CodeGasPriceUnavailable,
				apperror.WithContext(fmt.Sprintf("chain %d: no %s/%s quote to value gas", chainID, nativeLogical, profitLogical)))
		}
		total = total.Add(cost)
	}
	return total, nil
}
