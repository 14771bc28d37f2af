// Package domain contains the market snapshot types.
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/arbitrage-engine/internal/apperror"
)

// SnapshotKey identifies one directed quote: TokenIn sold for TokenOut on a DEX.
type SnapshotKey struct {
	ChainID  uint64
	DexID    string
	TokenIn  string
	TokenOut string
}

// String returns chain:dex:in>out.
func (k SnapshotKey) String() string {
	return fmt.Sprintf("%d:%s:%s>%s", k.ChainID, k.DexID, k.TokenIn, k.TokenOut)
}

// Reverse returns the key of the opposite direction on the same pool.
func (k SnapshotKey) Reverse() SnapshotKey {
	return SnapshotKey{ChainID: k.ChainID, DexID: k.DexID, TokenIn: k.TokenOut, TokenOut: k.TokenIn}
}

// MarketSnapshot is the latest observed quote for a key.
// Price is TokenOut per TokenIn; LiquidityDepth is in TokenOut units.
type MarketSnapshot struct {
	Key            SnapshotKey
	Price          decimal.Decimal
	LiquidityDepth decimal.Decimal
	ObservedAt     time.Time
	SourceLatency  time.Duration
}

// Validate rejects snapshots that cannot be priced.
func (s MarketSnapshot) Validate() error {
	switch {
	case s.Key.ChainID == 0, s.Key.DexID == "", s.Key.TokenIn == "", s.Key.TokenOut == "":
		return apperror.Validation(apperror.CodeInvalidSnapshot, "incomplete key "+s.Key.String())
	case s.Key.TokenIn == s.Key.TokenOut:
		return apperror.Validation(apperror.CodeInvalidSnapshot, "self quote "+s.Key.String())
	case !s.Price.IsPositive():
		return apperror.Validation(apperror.CodeInvalidSnapshot,
			fmt.Sprintf("non-positive price %s for %s", s.Price, s.Key))
	case s.LiquidityDepth.IsNegative():
		return apperror.Validation(apperror.CodeInvalidSnapshot,
			fmt.Sprintf("negative depth %s for %s", s.LiquidityDepth, s.Key))
	case s.ObservedAt.IsZero():
		return apperror.Validation(apperror.CodeInvalidSnapshot, "missing observed_at for "+s.Key.String())
	}
	return nil
}

// Age returns how old the snapshot is at now.
func (s MarketSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.ObservedAt)
}

// IsFresh reports whether the snapshot is at most maxAge old.
func (s MarketSnapshot) IsFresh(now time.Time, maxAge time.Duration) bool {
	return s.Age(now) <= maxAge
}
