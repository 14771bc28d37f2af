package app

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/fd1az/arbitrage-engine/business/blockchain/domain"
	"github.com/fd1az/arbitrage-engine/internal/apperror"
	"github.com/fd1az/arbitrage-engine/internal/logger"
)

// BlockchainService coordinates the per-chain subscribers and gas oracles. Each chain's
// block stream is fanned out to any number of watchers; a watcher that falls behind only
// ever sees the latest block.
type BlockchainService struct {
	log    logger.LoggerInterface
	chains map[uint64]Chain

	mu       sync.Mutex
	watchers map[uint64][]chan *domain.Block
	ended    map[uint64]bool
	started  bool
}

// NewBlockchainService creates a service over the given chains.
func NewBlockchainService(log logger.LoggerInterface, chains ...Chain) *BlockchainService {
	s := &BlockchainService{
		log:      log,
		chains:   make(map[uint64]Chain, len(chains)),
		watchers: make(map[uint64][]chan *domain.Block),
		ended:    make(map[uint64]bool),
	}
	for _, c := range chains {
		s.chains[c.ID] = c
	}
	return s
}

// Chains returns the configured chain IDs in ascending order.
func (s *BlockchainService) Chains() []uint64 {
	ids := make([]uint64, 0, len(s.chains))
	for id := range s.chains {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Watch returns a channel receiving blocks of chainID. The channel is closed when the
// chain's stream ends; unknown chains get a closed channel.
func (s *BlockchainService) Watch(chainID uint64) <-chan *domain.Block {
	ch := make(chan *domain.Block, 1)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chains[chainID]; !ok || s.ended[chainID] {
		close(ch)
		return ch
	}
	s.watchers[chainID] = append(s.watchers[chainID], ch)
	return ch
}

// Start subscribes every chain and begins fanning out blocks.
func (s *BlockchainService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	for _, id := range s.Chains() {
		c := s.chains[id]
		blocks, err := c.Subscriber.Subscribe(ctx)
		if err != nil {
			return fmt.Errorf("subscribe chain %d: %w", id, err)
		}
		go s.fanOut(id, blocks)
		s.log.Info(ctx, "chain subscribed", "chain_id", id, "name", c.Name)
	}
	return nil
}

func (s *BlockchainService) fanOut(chainID uint64, blocks <-chan *domain.Block) {
	for block := range blocks {
		s.mu.Lock()
		for _, w := range s.watchers[chainID] {
			deliverLatest(w, block)
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended[chainID] = true
	for _, w := range s.watchers[chainID] {
		close(w)
	}
	s.watchers[chainID] = nil
}

// deliverLatest replaces a pending block instead of blocking the stream.
func deliverLatest(ch chan *domain.Block, block *domain.Block) {
	for {
		select {
		case ch <- block:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// CurrentGasPrice returns the gas price of chainID.
func (s *BlockchainService) CurrentGasPrice(ctx context.Context, chainID uint64) (*domain.GasPrice, error) {
	c, ok := s.chains[chainID]
	if !ok || c.GasOracle == nil {
		return nil, apperror.New(apperror.CodeGasPriceUnavailable,
			apperror.WithContext(fmt.Sprintf("chain %d is not configured", chainID)))
	}
	return c.GasOracle.GetGasPrice(ctx)
}

// LatestBlock returns the head of chainID.
func (s *BlockchainService) LatestBlock(ctx context.Context, chainID uint64) (*domain.Block, error) {
	c, ok := s.chains[chainID]
	if !ok {
		return nil, apperror.NotFound(apperror.CodeUnknownChain, fmt.Sprintf("chain %d", chainID))
	}
	return c.Subscriber.LatestBlock(ctx)
}

// ConnectionStatus returns the status of chainID's subscriber.
func (s *BlockchainService) ConnectionStatus(chainID uint64) (domain.ConnectionStatus, bool) {
	c, ok := s.chains[chainID]
	if !ok {
		return domain.ConnectionStatus{}, false
	}
	return c.Subscriber.Status(), true
}

// Close stops all subscribers and oracles.
func (s *BlockchainService) Close() error {
	for _, c := range s.chains {
		_ = c.Subscriber.Close()
		if c.GasOracle != nil {
			_ = c.GasOracle.Close()
		}
	}
	return nil
}
