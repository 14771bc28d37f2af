package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fd1az/arbitrage-engine/business/arbitrage/domain"
	bcdomain "github.com/fd1az/arbitrage-engine/business/blockchain/domain"
	"github.com/fd1az/arbitrage-engine/internal/logger"
)

// ChainSchedule is when a chain is scanned: on every new block and every Interval.
type ChainSchedule struct {
	ChainID  uint64
	Interval time.Duration
}

// Scheduler triggers detector scans per chain and hands the results to a sink. A
// chain never has two scans in flight; triggers that land during a scan are dropped.
type Scheduler struct {
	detector  *Detector
	blocks    BlockSource
	sink      OpportunitySink
	schedules []ChainSchedule
	logger    logger.LoggerInterface

	mu      sync.Mutex
	running map[uint64]*atomic.Bool
	skipped atomic.Int64
}

// NewScheduler creates a scheduler. blocks may be nil to scan on the interval only.
func NewScheduler(detector *Detector, blocks BlockSource, sink OpportunitySink, schedules []ChainSchedule, log logger.LoggerInterface) *Scheduler {
	s := &Scheduler{
		detector:  detector,
		blocks:    blocks,
		sink:      sink,
		schedules: schedules,
		logger:    log,
		running:   make(map[uint64]*atomic.Bool, len(schedules)),
	}
	for _, sch := range schedules {
		s.running[sch.ChainID] = &atomic.Bool{}
	}
	return s
}

// Run scans until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, sch := range s.schedules {
		g.Go(func() error {
			s.loop(ctx, sch)
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) loop(ctx context.Context, sch ChainSchedule) {
	interval := sch.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var blocks <-chan *bcdomain.Block
	if s.blocks != nil {
		blocks = s.blocks.Watch(sch.ChainID)
	}

	s.logger.Info(ctx, "scan loop started", "chain_id", sch.ChainID, "interval", interval)
	for {
		select {
		case <-ctx.Done():
			return
		case b, ok := <-blocks:
			if !ok {
				s.logger.Warn(ctx, "block stream ended, scanning on interval only", "chain_id", sch.ChainID)
				blocks = nil
				continue
			}
			s.logger.Debug(ctx, "block tick", "chain_id", sch.ChainID, "block", b.Number)
			s.ScanNow(ctx, sch.ChainID)
		case <-ticker.C:
			s.ScanNow(ctx, sch.ChainID)
		}
	}
}

// ScanNow scans chainID and delivers the batch. It returns false without scanning when
// a scan of that chain is already running.
func (s *Scheduler) ScanNow(ctx context.Context, chainID uint64) bool {
	flag := s.flag(chainID)
	if !flag.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		return false
	}
	defer flag.Store(false)

	batch := s.detector.Scan(ctx, chainID)
	if s.sink != nil {
		s.sink.Accept(ctx, batch)
	}
	return true
}

// Skipped returns how many triggers were dropped because a scan was running.
func (s *Scheduler) Skipped() int64 {
	return s.skipped.Load()
}

func (s *Scheduler) flag(chainID uint64) *atomic.Bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.running[chainID]
	if !ok {
		f = &atomic.Bool{}
		s.running[chainID] = f
	}
	return f
}

// Collect is a sink that keeps the latest batch, for one-shot scans.
type Collect struct {
	mu    sync.Mutex
	batch []domain.Opportunity
}

// Accept stores batch.
func (c *Collect) Accept(_ context.Context, batch []domain.Opportunity) {
	c.mu.Lock()
	c.batch = batch
	c.mu.Unlock()
}

// Batch returns the latest batch.
func (c *Collect) Batch() []domain.Opportunity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.batch
}
