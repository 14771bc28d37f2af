package domain

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ProfitResult contains the calculated profit for a candidate, all in the profit token.
type ProfitResult struct {
	AmountIn     decimal.Decimal
	AmountOut    decimal.Decimal
	GrossProfit  decimal.Decimal // AmountOut - AmountIn
	GasCost      decimal.Decimal
	BridgeCost   decimal.Decimal
	NetProfit    decimal.Decimal // GrossProfit - GasCost; bridge cost is already out of AmountOut
	NetProfitPct decimal.Decimal // as percentage of AmountIn (e.g., 0.86 for 0.86%)
	IsProfitable bool            // NetProfit > epsilon
}

// NewProfitResult derives the profit figures of a round trip.
func NewProfitResult(amountIn, amountOut, gasCost, bridgeCost, epsilon decimal.Decimal) ProfitResult {
	gross := amountOut.Sub(amountIn)
	net := gross.Sub(gasCost)

	pct := decimal.Zero
	if amountIn.IsPositive() {
		pct = net.Div(amountIn).Mul(hundred)
	}

	return ProfitResult{
		AmountIn:     amountIn,
		AmountOut:    amountOut,
		GrossProfit:  gross,
		GasCost:      gasCost,
		BridgeCost:   bridgeCost,
		NetProfit:    net,
		NetProfitPct: pct,
		IsProfitable: net.GreaterThan(epsilon),
	}
}

// ApplyFee returns amount after a fee of feeBps basis points.
func ApplyFee(amount decimal.Decimal, feeBps int64) decimal.Decimal {
	if feeBps <= 0 {
		return amount
	}
	return amount.Mul(decimal.NewFromInt(10_000 - feeBps)).Div(decimal.NewFromInt(10_000))
}
