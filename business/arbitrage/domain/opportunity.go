package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Opportunity is a detected arbitrage candidate. It is immutable once created; its
// lifecycle status lives in the registry.
type Opportunity struct {
	Path              Path            `json:"path"`
	Kind              StrategyKind    `json:"kind"`
	ProfitToken       string          `json:"profit_token"` // symbol of the start token; every amount below is in it
	AmountIn          decimal.Decimal `json:"amount_in"`
	ExpectedAmountOut decimal.Decimal `json:"expected_amount_out"`
	GrossProfit       decimal.Decimal `json:"gross_profit"`
	EstimatedGasCost  decimal.Decimal `json:"estimated_gas_cost"`
	BridgeCost        decimal.Decimal `json:"bridge_cost"`
	NetProfit         decimal.Decimal `json:"net_profit"`
	NetProfitPercent  decimal.Decimal `json:"net_profit_percent"`
	ConfidenceScore   float64         `json:"confidence_score"`
	CreatedAt         time.Time       `json:"created_at"`
	ExpiresAt         time.Time       `json:"expires_at"`
	Fingerprint       string          `json:"fingerprint"`

	// NetProfitUSD is NetProfit valued in USD at detection time. It is null when the
	// market held no quote from the profit token to a stablecoin.
	NetProfitUSD decimal.NullDecimal `json:"net_profit_usd"`
}

// NewOpportunity builds an opportunity from a priced path.
func NewOpportunity(kind StrategyKind, path Path, profit ProfitResult, confidence float64, createdAt time.Time, ttl time.Duration) Opportunity {
	if ttl <= 0 {
		ttl = kind.DefaultTTL()
	}
	return Opportunity{
		Path:              path,
		Kind:              kind,
		ProfitToken:       path.First().TokenIn,
		AmountIn:          profit.AmountIn,
		ExpectedAmountOut: profit.AmountOut,
		GrossProfit:       profit.GrossProfit,
		EstimatedGasCost:  profit.GasCost,
		BridgeCost:        profit.BridgeCost,
		NetProfit:         profit.NetProfit,
		NetProfitPercent:  profit.NetProfitPct,
		ConfidenceScore:   confidence,
		CreatedAt:         createdAt,
		ExpiresAt:         createdAt.Add(ttl),
		Fingerprint:       Fingerprint(kind, path, profit.AmountIn),
	}
}

// WithUSDValue returns a copy of o with NetProfitUSD set to usd.
func (o Opportunity) WithUSDValue(usd decimal.Decimal) Opportunity {
	o.NetProfitUSD = decimal.NewNullDecimal(usd)
	return o
}

// IsExpired reports whether the opportunity is past its expiry at now. An opportunity
// is still live at exactly ExpiresAt.
func (o Opportunity) IsExpired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

// CompareValue orders a before b when a is worth more. Opportunities are compared on
// NetProfitUSD; one with a USD value ranks ahead of one without, and two without fall
// back to NetProfitPercent. Amounts in different profit tokens are never compared.
func CompareValue(a, b Opportunity) int {
	switch {
	case a.NetProfitUSD.Valid && b.NetProfitUSD.Valid:
		return b.NetProfitUSD.Decimal.Cmp(a.NetProfitUSD.Decimal)
	case a.NetProfitUSD.Valid:
		return -1
	case b.NetProfitUSD.Valid:
		return 1
	}
	return b.NetProfitPercent.Cmp(a.NetProfitPercent)
}

// Fingerprint identifies a route and trade size independently of prices, so repeated
// scans of the same route collide.
func Fingerprint(kind StrategyKind, path Path, amountIn decimal.Decimal) string {
	var b strings.Builder
	b.WriteString(string(kind))
	for _, h := range path.hops {
		b.WriteByte('|')
		b.WriteString(h.String())
	}
	b.WriteByte('|')
	b.WriteString(amountIn.StringFixed(6))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
