package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BridgeQuote is the cost of moving Asset from one chain to another.
type BridgeQuote struct {
	FromChain           uint64
	ToChain             uint64
	Asset               string // logical asset
	FeeBps              int64
	FixedFee            decimal.Decimal // in Asset units
	Latency             time.Duration
	PenaltyBpsPerMinute decimal.Decimal // price risk while in flight
}

// Apply returns the amount received after bridging amount. Never negative.
func (q BridgeQuote) Apply(amount decimal.Decimal) decimal.Decimal {
	penalty := q.PenaltyBpsPerMinute.Mul(decimal.NewFromFloat(q.Latency.Minutes()))
	bps := decimal.NewFromInt(q.FeeBps).Add(penalty)

	out := amount.Mul(decimal.NewFromInt(10_000).Sub(bps)).Div(decimal.NewFromInt(10_000))
	out = out.Sub(q.FixedFee)
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}
