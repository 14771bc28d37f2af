// Package app contains application services and port definitions for the blockchain context.
package app

import (
	"context"

	"github.com/fd1az/arbitrage-engine/business/blockchain/domain"
)

// BlockSubscriber streams blocks of a single chain.
type BlockSubscriber interface {
	// Subscribe starts listening for new blocks and returns a channel of blocks.
	Subscribe(ctx context.Context) (<-chan *domain.Block, error)

	// LatestBlock retrieves the most recent block.
	LatestBlock(ctx context.Context) (*domain.Block, error)

	Status() domain.ConnectionStatus
	Close() error
}

// GasOracle serves gas prices for a single chain.
type GasOracle interface {
	GetGasPrice(ctx context.Context) (*domain.GasPrice, error)
	Close() error
}

// Chain bundles the adapters of one chain.
type Chain struct {
	ID         uint64
	Name       string
	Subscriber BlockSubscriber
	GasOracle  GasOracle
}
