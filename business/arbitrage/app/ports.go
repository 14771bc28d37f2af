// Package app contains the opportunity detector, its scan scheduler and their ports.
package app

import (
	"context"
	"iter"
	"time"

	"github.com/fd1az/arbitrage-engine/business/arbitrage/domain"
	bcdomain "github.com/fd1az/arbitrage-engine/business/blockchain/domain"
	mddomain "github.com/fd1az/arbitrage-engine/business/marketdata/domain"
)

// SnapshotSource is the read side of the market data cache.
type SnapshotSource interface {
	ForChains(maxAge time.Duration, chainIDs ...uint64) iter.Seq[mddomain.MarketSnapshot]
	Staleness() time.Duration
}

// GasOracle returns the current gas price of a chain. Any error means unknown.
type GasOracle interface {
	CurrentGasPrice(ctx context.Context, chainID uint64) (*bcdomain.GasPrice, error)
}

// BridgeFeeProvider quotes moving a logical asset between chains.
type BridgeFeeProvider interface {
	Quote(ctx context.Context, fromChain, toChain uint64, asset string) (domain.BridgeQuote, error)
}

// OpportunitySink receives each scan's output.
type OpportunitySink interface {
	Accept(ctx context.Context, batch []domain.Opportunity)
}

// SinkFunc adapts a function to OpportunitySink.
type SinkFunc func(ctx context.Context, batch []domain.Opportunity)

// Accept calls f.
func (f SinkFunc) Accept(ctx context.Context, batch []domain.Opportunity) {
	f(ctx, batch)
}

// BlockSource yields a tick channel per chain.
type BlockSource interface {
	Watch(chainID uint64) <-chan *bcdomain.Block
}
