// Package priceoracle values tokens in USD from the market data cache.
package priceoracle

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/shopspring/decimal"

	mddomain "github.com/fd1az/arbitrage-engine/business/marketdata/domain"
	"github.com/fd1az/arbitrage-engine/internal/apperror"
	"github.com/fd1az/arbitrage-engine/internal/asset"
)

// Source is the read side of the market data cache.
type Source interface {
	ForChains(maxAge time.Duration, chainIDs ...uint64) iter.Seq[mddomain.MarketSnapshot]
	Staleness() time.Duration
}

// Cache prices a token as its freshest quote against any stablecoin on the same chain.
// Stablecoins are worth one dollar.
type Cache struct {
	source Source
	assets *asset.Registry
}

// New creates the oracle.
func New(source Source, assets *asset.Registry) *Cache {
	return &Cache{source: source, assets: assets}
}

// USDPrice returns the USD value of one unit of symbol on chainID.
func (c *Cache) USDPrice(_ context.Context, chainID uint64, symbol string) (decimal.Decimal, error) {
	if c.assets.IsStable(chainID, symbol) {
		return decimal.NewFromInt(1), nil
	}
	logical := c.assets.Logical(chainID, symbol)

	var (
		best  decimal.Decimal
		found bool
		at    time.Time
	)
	for s := range c.source.ForChains(c.source.Staleness(), chainID) {
		var px decimal.Decimal
		switch {
		case c.assets.Logical(chainID, s.Key.TokenIn) == logical && c.assets.IsStable(chainID, s.Key.TokenOut):
			px = s.Price
		case c.assets.Logical(chainID, s.Key.TokenOut) == logical && c.assets.IsStable(chainID, s.Key.TokenIn):
			px = decimal.NewFromInt(1).DivRound(s.Price, 18)
		default:
			continue
		}
		if !found || s.ObservedAt.After(at) {
			best, at, found = px, s.ObservedAt, true
		}
	}
	if !found {
		return decimal.Zero, apperror.New(apperror.CodePriceUnavailable,
			apperror.WithContext(fmt.Sprintf("no fresh stablecoin quote for %s on chain %d", symbol, chainID)))
	}
	return best, nil
}
