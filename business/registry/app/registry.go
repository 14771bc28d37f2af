// Package app contains the opportunity registry: the single source of truth for which
// opportunities are currently actionable.
package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	arbdomain "github.com/fd1az/arbitrage-engine/business/arbitrage/domain"
	"github.com/fd1az/arbitrage-engine/business/registry/domain"
	"github.com/fd1az/arbitrage-engine/internal/apperror"
	"github.com/fd1az/arbitrage-engine/internal/logger"
)

const meterName = "github.com/fd1az/arbitrage-engine/business/registry/app"

// Claim errors. Compare with errors.Is.
var (
	ErrNotFound       = apperror.Sentinel(apperror.CodeOpportunityNotFound)
	ErrAlreadyClaimed = apperror.Sentinel(apperror.CodeOpportunityAlreadyClaimed)
	ErrExpired        = apperror.Sentinel(apperror.CodeOpportunityExpired)
	ErrNotClaimed     = apperror.Sentinel(apperror.CodeOpportunityNotClaimed)
)

// Config holds registry settings.
type Config struct {
	Retention     time.Duration // how long expired and superseded records stay visible
	SweepInterval time.Duration
}

// entry holds the current record of one fingerprint. A nil record marks an evicted
// entry that is about to leave the map.
type entry struct {
	rec atomic.Pointer[domain.Record]
}

// IngestResult summarizes one batch.
type IngestResult struct {
	Added      int // new fingerprints, or replacing an expired record
	Replaced   int // a more profitable duplicate replaced the active record
	Superseded int // the incoming duplicate lost and was kept for audit only
	Dropped    int // already expired on arrival
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Expired int
	Evicted int
}

// Stats counts records by status.
type Stats struct {
	Active     int `json:"active"`
	Claimed    int `json:"claimed"`
	Expired    int `json:"expired"`
	Superseded int `json:"superseded"`
}

type registryMetrics struct {
	ingested    metric.Int64Counter
	claims      metric.Int64Counter
	expirations metric.Int64Counter
	evictions   metric.Int64Counter
}

// Registry deduplicates, ranks and expires opportunities. Every status transition is a
// compare-and-swap on the fingerprint's record, so Claim is the one serialization point
// per opportunity and no operation takes a registry-wide lock.
type Registry struct {
	cfg       Config
	publisher Publisher
	logger    logger.LoggerInterface
	now       func() time.Time

	entries sync.Map // fingerprint -> *entry

	auditMu sync.Mutex
	audit   []domain.Record // superseded opportunities

	metrics *registryMetrics
}

// New creates a registry. publisher may be nil.
func New(cfg Config, publisher Publisher, log logger.LoggerInterface) (*Registry, error) {
	if cfg.Retention <= 0 {
		cfg.Retention = 10 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Second
	}
	if publisher == nil {
		publisher = NopPublisher{}
	}

	r := &Registry{
		cfg:       cfg,
		publisher: publisher,
		logger:    log,
		now:       time.Now,
	}
	if err := r.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return r, nil
}

func (r *Registry) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	r.metrics = &registryMetrics{}

	r.metrics.ingested, err = meter.Int64Counter(
		"registry_ingested_total",
		metric.WithDescription("Ingested opportunities by outcome"),
		metric.WithUnit("{opportunity}"),
	)
	if err != nil {
		return err
	}

	r.metrics.claims, err = meter.Int64Counter(
		"registry_claims_total",
		metric.WithDescription("Claim attempts by result"),
		metric.WithUnit("{claim}"),
	)
	if err != nil {
		return err
	}

	r.metrics.expirations, err = meter.Int64Counter(
		"registry_expirations_total",
		metric.WithDescription("Active to expired transitions"),
		metric.WithUnit("{opportunity}"),
	)
	if err != nil {
		return err
	}

	r.metrics.evictions, err = meter.Int64Counter(
		"registry_evictions_total",
		metric.WithDescription("Records evicted after retention"),
		metric.WithUnit("{record}"),
	)
	return err
}

// Ingest registers a detector batch. An active duplicate keeps whichever opportunity
// has the higher NetProfit; the loser is marked Superseded.
func (r *Registry) Ingest(ctx context.Context, batch []arbdomain.Opportunity) IngestResult {
	now := r.now()

	var res IngestResult
	for _, opp := range batch {
		if opp.IsExpired(now) {
			res.Dropped++
			continue
		}
		r.ingest(ctx, opp, now, &res)
	}

	r.count(ctx, r.metrics.ingested, "added", res.Added)
	r.count(ctx, r.metrics.ingested, "replaced", res.Replaced)
	r.count(ctx, r.metrics.ingested, "superseded", res.Superseded)
	r.count(ctx, r.metrics.ingested, "dropped", res.Dropped)
	return res
}

func (r *Registry) ingest(ctx context.Context, opp arbdomain.Opportunity, now time.Time, res *IngestResult) {
	fresh := &domain.Record{Opportunity: opp, Status: domain.StatusActive, ChangedAt: now}

	for {
		e := &entry{}
		e.rec.Store(fresh)
		v, loaded := r.entries.LoadOrStore(opp.Fingerprint, e)
		if !loaded {
			res.Added++
			r.publish(ctx, domain.EventNew, opp, now)
			return
		}

		e = v.(*entry)
		cur := e.rec.Load()
		if cur == nil {
			r.entries.CompareAndDelete(opp.Fingerprint, e)
			continue
		}

		switch {
		case cur.Status == domain.StatusActive && !cur.Opportunity.IsExpired(now):
			if !opp.NetProfit.GreaterThan(cur.Opportunity.NetProfit) {
				r.supersede(ctx, opp, now)
				res.Superseded++
				return
			}
			if !e.rec.CompareAndSwap(cur, fresh) {
				continue
			}
			r.supersede(ctx, cur.Opportunity, now)
			res.Replaced++
			r.publish(ctx, domain.EventReplaced, opp, now)
			return

		case cur.Status == domain.StatusClaimed:
			// The route is being executed; the duplicate cannot take its place.
			r.supersede(ctx, opp, now)
			res.Superseded++
			return

		default:
			if !e.rec.CompareAndSwap(cur, fresh) {
				continue
			}
			if cur.Status == domain.StatusActive {
				r.expired(ctx, cur.Opportunity, now)
			}
			res.Added++
			r.publish(ctx, domain.EventNew, opp, now)
			return
		}
	}
}

func (r *Registry) supersede(ctx context.Context, opp arbdomain.Opportunity, now time.Time) {
	r.auditMu.Lock()
	r.audit = append(r.audit, domain.Record{Opportunity: opp, Status: domain.StatusSuperseded, ChangedAt: now})
	r.auditMu.Unlock()
	r.publish(ctx, domain.EventSuperseded, opp, now)
}

// current returns the live record of e, first expiring it if it is due. Nil means the
// entry was evicted.
func (r *Registry) current(ctx context.Context, e *entry, now time.Time) *domain.Record {
	for {
		cur := e.rec.Load()
		if cur == nil || cur.Status != domain.StatusActive || !cur.Opportunity.IsExpired(now) {
			return cur
		}
		next := cur.With(domain.StatusExpired, now)
		if e.rec.CompareAndSwap(cur, next) {
			r.expired(ctx, cur.Opportunity, now)
			return next
		}
	}
}

func (r *Registry) expired(ctx context.Context, opp arbdomain.Opportunity, now time.Time) {
	r.metrics.expirations.Add(ctx, 1, metric.WithAttributes(attribute.String("strategy", string(opp.Kind))))
	r.publish(ctx, domain.EventExpired, opp, now)
}

func (r *Registry) load(fingerprint string) (*entry, bool) {
	v, ok := r.entries.Load(fingerprint)
	if !ok {
		return nil, false
	}
	return v.(*entry), true
}

// Claim atomically moves an active opportunity to Claimed. Exactly one of any number of
// concurrent claims on a fingerprint succeeds.
func (r *Registry) Claim(ctx context.Context, fingerprint string) (arbdomain.Opportunity, error) {
	opp, err := r.claim(ctx, fingerprint)
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadyClaimed):
		result = "already_claimed"
	case errors.Is(err, ErrExpired):
		result = "expired"
	default:
		result = "not_found"
	}
	r.metrics.claims.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	return opp, err
}

func (r *Registry) claim(ctx context.Context, fingerprint string) (arbdomain.Opportunity, error) {
	e, ok := r.load(fingerprint)
	if !ok {
		return arbdomain.Opportunity{}, ErrNotFound
	}

	for {
		now := r.now()
		cur := r.current(ctx, e, now)
		if cur == nil {
			return arbdomain.Opportunity{}, ErrNotFound
		}

		switch cur.Status {
		case domain.StatusActive:
			if e.rec.CompareAndSwap(cur, cur.With(domain.StatusClaimed, now)) {
				r.publish(ctx, domain.EventClaimed, cur.Opportunity, now)
				return cur.Opportunity, nil
			}
		case domain.StatusClaimed:
			return arbdomain.Opportunity{}, ErrAlreadyClaimed
		case domain.StatusExpired:
			return arbdomain.Opportunity{}, ErrExpired
		default:
			return arbdomain.Opportunity{}, ErrNotFound
		}
	}
}

// Release returns a claimed opportunity to Active, or to Expired when it is past its
// expiry. It returns the resulting status.
func (r *Registry) Release(ctx context.Context, fingerprint string) (domain.Status, error) {
	return r.unclaim(ctx, fingerprint, false)
}

// Settle retires a claimed opportunity whose execution consumed it.
func (r *Registry) Settle(ctx context.Context, fingerprint string) error {
	_, err := r.unclaim(ctx, fingerprint, true)
	return err
}

func (r *Registry) unclaim(ctx context.Context, fingerprint string, settle bool) (domain.Status, error) {
	e, ok := r.load(fingerprint)
	if !ok {
		return "", ErrNotFound
	}

	for {
		now := r.now()
		cur := e.rec.Load()
		if cur == nil {
			return "", ErrNotFound
		}
		if cur.Status != domain.StatusClaimed {
			return cur.Status, ErrNotClaimed
		}

		next := domain.StatusActive
		event := domain.EventReleased
		switch {
		case settle:
			next, event = domain.StatusExpired, domain.EventSettled
		case cur.Opportunity.IsExpired(now):
			next, event = domain.StatusExpired, domain.EventExpired
		}

		if e.rec.CompareAndSwap(cur, cur.With(next, now)) {
			if event == domain.EventExpired {
				r.expired(ctx, cur.Opportunity, now)
			} else {
				r.publish(ctx, event, cur.Opportunity, now)
			}
			return next, nil
		}
	}
}

// Get returns the current record of fingerprint.
func (r *Registry) Get(ctx context.Context, fingerprint string) (domain.Record, bool) {
	e, ok := r.load(fingerprint)
	if !ok {
		return domain.Record{}, false
	}
	cur := r.current(ctx, e, r.now())
	if cur == nil {
		return domain.Record{}, false
	}
	return *cur, true
}

// Superseded returns the audit trail of opportunities that lost to a duplicate of
// fingerprint, oldest first.
func (r *Registry) Superseded(fingerprint string) []domain.Record {
	r.auditMu.Lock()
	defer r.auditMu.Unlock()

	var out []domain.Record
	for _, rec := range r.audit {
		if rec.Opportunity.Fingerprint == fingerprint {
			out = append(out, rec)
		}
	}
	return out
}

// ListActive returns the active opportunities matching f, ranked by USD value
// descending (arbdomain.CompareValue), then earlier ExpiresAt, then earlier CreatedAt,
// then Fingerprint. Opportunities found past their expiry are expired on the way.
func (r *Registry) ListActive(ctx context.Context, f domain.Filter) []arbdomain.Opportunity {
	now := r.now()

	var out []arbdomain.Opportunity
	r.entries.Range(func(_, v any) bool {
		cur := r.current(ctx, v.(*entry), now)
		if cur != nil && cur.Status == domain.StatusActive && f.Matches(cur.Opportunity) {
			out = append(out, cur.Opportunity)
		}
		return true
	})

	slices.SortFunc(out, compareRank)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func compareRank(a, b arbdomain.Opportunity) int {
	if c := arbdomain.CompareValue(a, b); c != 0 {
		return c
	}
	if c := a.ExpiresAt.Compare(b.ExpiresAt); c != 0 {
		return c
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	switch {
	case a.Fingerprint < b.Fingerprint:
		return -1
	case a.Fingerprint > b.Fingerprint:
		return 1
	}
	return 0
}

// Sweep expires due opportunities and evicts expired and superseded records older than
// the retention window.
func (r *Registry) Sweep(ctx context.Context) SweepResult {
	now := r.now()
	var res SweepResult

	r.entries.Range(func(k, v any) bool {
		e := v.(*entry)
		before := e.rec.Load()
		cur := r.current(ctx, e, now)
		if cur == nil {
			return true
		}
		if before != nil && before.Status == domain.StatusActive && cur.Status == domain.StatusExpired {
			res.Expired++
		}
		if cur.Status.IsTerminal() && now.Sub(cur.ChangedAt) >= r.cfg.Retention {
			if e.rec.CompareAndSwap(cur, nil) {
				r.entries.CompareAndDelete(k, e)
				res.Evicted++
			}
		}
		return true
	})

	r.auditMu.Lock()
	kept := r.audit[:0]
	for _, rec := range r.audit {
		if now.Sub(rec.ChangedAt) < r.cfg.Retention {
			kept = append(kept, rec)
		} else {
			res.Evicted++
		}
	}
	clear(r.audit[len(kept):])
	r.audit = kept
	r.auditMu.Unlock()

	r.count(ctx, r.metrics.evictions, "", res.Evicted)
	return res
}

// Run sweeps every SweepInterval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if res := r.Sweep(ctx); res.Expired > 0 || res.Evicted > 0 {
				r.logger.Debug(ctx, "registry sweep", "expired", res.Expired, "evicted", res.Evicted)
			}
		}
	}
}

// Stats counts the records by status.
func (r *Registry) Stats(ctx context.Context) Stats {
	now := r.now()
	var s Stats
	r.entries.Range(func(_, v any) bool {
		cur := r.current(ctx, v.(*entry), now)
		if cur == nil {
			return true
		}
		switch cur.Status {
		case domain.StatusActive:
			s.Active++
		case domain.StatusClaimed:
			s.Claimed++
		case domain.StatusExpired:
			s.Expired++
		}
		return true
	})

	r.auditMu.Lock()
	s.Superseded = len(r.audit)
	r.auditMu.Unlock()
	return s
}

func (r *Registry) publish(ctx context.Context, t domain.EventType, opp arbdomain.Opportunity, at time.Time) {
	r.publisher.Publish(ctx, domain.NewEvent(t, opp, at))
}

func (r *Registry) count(ctx context.Context, c metric.Int64Counter, result string, n int) {
	if n == 0 {
		return
	}
	if result == "" {
		c.Add(ctx, int64(n))
		return
	}
	c.Add(ctx, int64(n), metric.WithAttributes(attribute.String("result", result)))
}
