package domain

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// GasPrice is the gas price of one chain at a point in time.
type GasPrice struct {
	ChainID   uint64
	Wei       *big.Int
	Timestamp time.Time
}

// NewGasPrice creates a GasPrice from wei.
func NewGasPrice(chainID uint64, wei *big.Int, at time.Time) *GasPrice {
	return &GasPrice{
		ChainID:   chainID,
		Wei:       new(big.Int).Set(wei),
		Timestamp: at,
	}
}

// WeiDecimal returns the price in wei as decimal.Decimal.
func (g *GasPrice) WeiDecimal() decimal.Decimal {
	return decimal.NewFromBigInt(g.Wei, 0)
}

// Gwei returns the price in gwei.
func (g *GasPrice) Gwei() float64 {
	f, _ := g.WeiDecimal().Shift(-9).Float64()
	return f
}

// CostNative returns gasUnits × price in whole native units (1e18 wei).
func (g *GasPrice) CostNative(gasUnits uint64) decimal.Decimal {
	return g.WeiDecimal().Mul(decimal.NewFromInt(int64(gasUnits))).Shift(-18)
}
