package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fd1az/arbitrage-engine/business/marketdata/domain"
	"github.com/fd1az/arbitrage-engine/internal/logger"
)

// Feed produces snapshots until ctx is done.
type Feed interface {
	Name() string
	Run(ctx context.Context) error
}

// Sink accepts snapshots from feeds. *Cache implements it.
type Sink interface {
	Offer(ctx context.Context, s domain.MarketSnapshot) (bool, error)
}

var _ Sink = (*Cache)(nil)

// FeedRunner keeps feeds running, restarting a feed that returns early.
type FeedRunner struct {
	log     logger.LoggerInterface
	restart time.Duration
	wg      sync.WaitGroup
}

// NewFeedRunner creates a runner waiting restart between feed restarts.
func NewFeedRunner(log logger.LoggerInterface, restart time.Duration) *FeedRunner {
	if restart <= 0 {
		restart = 2 * time.Second
	}
	return &FeedRunner{log: log, restart: restart}
}

// Start launches every feed in its own goroutine.
func (r *FeedRunner) Start(ctx context.Context, feeds ...Feed) {
	for _, f := range feeds {
		r.wg.Add(1)
		go r.run(ctx, f)
	}
}

func (r *FeedRunner) run(ctx context.Context, f Feed) {
	defer r.wg.Done()
	for {
		r.log.Info(ctx, "market data feed starting", "feed", f.Name())
		err := f.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			r.log.Error(ctx, "market data feed stopped", "feed", f.Name(), "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.restart):
		}
	}
}

// Wait blocks until every feed has returned.
func (r *FeedRunner) Wait() {
	r.wg.Wait()
}
