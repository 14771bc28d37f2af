// Package asset tracks the tokens the engine trades and their cross-chain identity.
package asset

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Asset is one token deployment on one chain.
// Symbol is the chain-local ticker used as a graph node ("USDC.e").
// Logical is the cross-chain identity used to pair deployments ("USDC").
type Asset struct {
	ChainID  uint64
	Symbol   string
	Logical  string
	Address  common.Address
	Decimals uint8
	Stable   bool
}

// IsNative returns true when the asset has no contract address.
func (a Asset) IsNative() bool {
	return a.Address == (common.Address{})
}

// String returns chain:symbol.
func (a Asset) String() string {
	return fmt.Sprintf("%d:%s", a.ChainID, a.Symbol)
}

// ToDecimal converts a raw on-chain integer amount to token units.
func (a Asset) ToDecimal(raw *big.Int) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(a.Decimals))
}

// ToRaw converts token units to the raw on-chain integer, truncating dust.
func (a Asset) ToRaw(d decimal.Decimal) *big.Int {
	return d.Shift(int32(a.Decimals)).Truncate(0).BigInt()
}
