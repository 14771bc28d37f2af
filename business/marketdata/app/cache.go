// Package app contains the market data cache and feed runner.
package app

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"iter"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fd1az/arbitrage-engine/business/marketdata/domain"
)

const meterName = "github.com/fd1az/arbitrage-engine/business/marketdata/app"

// DefaultShards is used when the configured shard count is not positive.
const DefaultShards = 32

type cacheMetrics struct {
	applied  metric.Int64Counter
	outdated metric.Int64Counter
	rejected metric.Int64Counter
}

type shard struct {
	entries sync.Map // domain.SnapshotKey -> *atomic.Pointer[domain.MarketSnapshot]
}

// Cache holds the latest snapshot per key. Readers never block; writers on different
// keys do not contend, and writers on the same key resolve through CAS.
type Cache struct {
	shards    []shard
	staleness time.Duration
	now       func() time.Time
	size      atomic.Int64

	metrics *cacheMetrics
}

// NewCache creates a cache with the given shard count and staleness threshold.
func NewCache(shards int, staleness time.Duration) (*Cache, error) {
	if shards <= 0 {
		shards = DefaultShards
	}
	if staleness <= 0 {
		return nil, fmt.Errorf("staleness must be positive, got %s", staleness)
	}

	c := &Cache{
		shards:    make([]shard, shards),
		staleness: staleness,
		now:       time.Now,
	}
	if err := c.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return c, nil
}

func (c *Cache) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	c.metrics = &cacheMetrics{}

	c.metrics.applied, err = meter.Int64Counter(
		"marketdata_upserts_total",
		metric.WithDescription("Snapshots written to the cache"),
		metric.WithUnit("{snapshot}"),
	)
	if err != nil {
		return err
	}

	c.metrics.outdated, err = meter.Int64Counter(
		"marketdata_outdated_total",
		metric.WithDescription("Snapshots ignored because a newer one was stored"),
		metric.WithUnit("{snapshot}"),
	)
	if err != nil {
		return err
	}

	c.metrics.rejected, err = meter.Int64Counter(
		"marketdata_rejected_total",
		metric.WithDescription("Snapshots that failed validation"),
		metric.WithUnit("{snapshot}"),
	)
	return err
}

// Staleness returns the configured staleness threshold.
func (c *Cache) Staleness() time.Duration {
	return c.staleness
}

func (c *Cache) shardFor(k domain.SnapshotKey) *shard {
	h := fnv.New64a()
	var id [8]byte
	binary.BigEndian.PutUint64(id[:], k.ChainID)
	h.Write(id[:])
	h.Write([]byte(k.DexID))
	h.Write([]byte{0})
	h.Write([]byte(k.TokenIn))
	h.Write([]byte{0})
	h.Write([]byte(k.TokenOut))
	return &c.shards[h.Sum64()%uint64(len(c.shards))]
}

// Upsert stores s if it is newer than the stored snapshot for its key. An older or
// equally old snapshot is a silent no-op.
func (c *Cache) Upsert(s domain.MarketSnapshot) bool {
	next := &s
	sh := c.shardFor(s.Key)

	v, ok := sh.entries.Load(s.Key)
	if !ok {
		p := new(atomic.Pointer[domain.MarketSnapshot])
		p.Store(next)
		actual, loaded := sh.entries.LoadOrStore(s.Key, p)
		if !loaded {
			c.size.Add(1)
			return true
		}
		v = actual
	}

	ptr := v.(*atomic.Pointer[domain.MarketSnapshot])
	for {
		cur := ptr.Load()
		if cur != nil && !s.ObservedAt.After(cur.ObservedAt) {
			return false
		}
		if ptr.CompareAndSwap(cur, next) {
			return true
		}
	}
}

// Offer validates s and upserts it. It reports whether the cache changed; invalid
// snapshots return their validation error.
func (c *Cache) Offer(ctx context.Context, s domain.MarketSnapshot) (bool, error) {
	attrs := metric.WithAttributes(
		attribute.Int64("chain_id", int64(s.Key.ChainID)),
		attribute.String("dex", s.Key.DexID),
	)
	if err := s.Validate(); err != nil {
		c.metrics.rejected.Add(ctx, 1, attrs)
		return false, err
	}
	if !c.Upsert(s) {
		c.metrics.outdated.Add(ctx, 1, attrs)
		return false, nil
	}
	c.metrics.applied.Add(ctx, 1, attrs)
	return true, nil
}

// Get returns the stored snapshot, or false when missing or stale.
func (c *Cache) Get(k domain.SnapshotKey) (domain.MarketSnapshot, bool) {
	v, ok := c.shardFor(k).entries.Load(k)
	if !ok {
		return domain.MarketSnapshot{}, false
	}
	s := v.(*atomic.Pointer[domain.MarketSnapshot]).Load()
	if s == nil || !s.IsFresh(c.now(), c.staleness) {
		return domain.MarketSnapshot{}, false
	}
	return *s, true
}

// AllFresh yields every snapshot at most maxAge old. Each range walks the table again,
// so the sequence reflects writes made since the previous walk.
func (c *Cache) AllFresh(maxAge time.Duration) iter.Seq[domain.MarketSnapshot] {
	return func(yield func(domain.MarketSnapshot) bool) {
		now := c.now()
		for i := range c.shards {
			stop := false
			c.shards[i].entries.Range(func(_, v any) bool {
				s := v.(*atomic.Pointer[domain.MarketSnapshot]).Load()
				if s == nil || !s.IsFresh(now, maxAge) {
					return true
				}
				if !yield(*s) {
					stop = true
					return false
				}
				return true
			})
			if stop {
				return
			}
		}
	}
}

// ForChains is AllFresh restricted to chainIDs.
func (c *Cache) ForChains(maxAge time.Duration, chainIDs ...uint64) iter.Seq[domain.MarketSnapshot] {
	return func(yield func(domain.MarketSnapshot) bool) {
		for s := range c.AllFresh(maxAge) {
			if !slices.Contains(chainIDs, s.Key.ChainID) {
				continue
			}
			if !yield(s) {
				return
			}
		}
	}
}

// Len returns the number of keys ever stored, fresh or not.
func (c *Cache) Len() int {
	return int(c.size.Load())
}

// FreshCount returns how many snapshots are currently fresh.
func (c *Cache) FreshCount() int {
	n := 0
	for range c.AllFresh(c.staleness) {
		n++
	}
	return n
}
