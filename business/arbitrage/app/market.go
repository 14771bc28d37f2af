package app

import (
	"iter"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	mddomain "github.com/fd1az/arbitrage-engine/business/marketdata/domain"
	"github.com/fd1az/arbitrage-engine/internal/asset"
)

var one = decimal.NewFromInt(1)

// Quote is a directed rate between two tokens on one DEX.
type Quote struct {
	Key        mddomain.SnapshotKey
	Rate       decimal.Decimal // TokenOut per TokenIn, before fees
	Depth      decimal.Decimal // TokenOut units
	ObservedAt time.Time
	Implied    bool // derived from the reverse snapshot
}

// Market is a point-in-time view of fresh snapshots used for one evaluation pass.
type Market struct {
	now       time.Time
	staleness time.Duration
	assets    *asset.Registry

	snaps   map[mddomain.SnapshotKey]mddomain.MarketSnapshot
	byChain map[uint64][]mddomain.MarketSnapshot
}

// NewMarket materializes snaps. Snapshots older than staleness at now are skipped.
func NewMarket(snaps iter.Seq[mddomain.MarketSnapshot], assets *asset.Registry, staleness time.Duration, now time.Time) *Market {
	m := &Market{
		now:       now,
		staleness: staleness,
		assets:    assets,
		snaps:     make(map[mddomain.SnapshotKey]mddomain.MarketSnapshot),
		byChain:   make(map[uint64][]mddomain.MarketSnapshot),
	}
	for s := range snaps {
		if !s.IsFresh(now, staleness) {
			continue
		}
		m.snaps[s.Key] = s
		m.byChain[s.Key.ChainID] = append(m.byChain[s.Key.ChainID], s)
	}
	for id := range m.byChain {
		slices.SortFunc(m.byChain[id], func(a, b mddomain.MarketSnapshot) int {
			return compareKeys(a.Key, b.Key)
		})
	}
	return m
}

func compareKeys(a, b mddomain.SnapshotKey) int {
	switch {
	case a.ChainID != b.ChainID:
		if a.ChainID < b.ChainID {
			return -1
		}
		return 1
	case a.DexID != b.DexID:
		return cmpString(a.DexID, b.DexID)
	case a.TokenIn != b.TokenIn:
		return cmpString(a.TokenIn, b.TokenIn)
	default:
		return cmpString(a.TokenOut, b.TokenOut)
	}
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Now returns the instant the view was taken.
func (m *Market) Now() time.Time {
	return m.now
}

// Staleness returns the freshness window of the view.
func (m *Market) Staleness() time.Duration {
	return m.staleness
}

// Assets returns the asset registry.
func (m *Market) Assets() *asset.Registry {
	return m.assets
}

// Quote returns the rate for key, falling back to the inverse of the reverse snapshot.
func (m *Market) Quote(key mddomain.SnapshotKey) (Quote, bool) {
	if s, ok := m.snaps[key]; ok {
		return Quote{Key: key, Rate: s.Price, Depth: s.LiquidityDepth, ObservedAt: s.ObservedAt}, true
	}
	if s, ok := m.snaps[key.Reverse()]; ok && s.Price.IsPositive() {
		return Quote{
			Key:        key,
			Rate:       one.Div(s.Price),
			Depth:      s.LiquidityDepth.Div(s.Price),
			ObservedAt: s.ObservedAt,
			Implied:    true,
		}, true
	}
	return Quote{}, false
}

// Quotes returns every explicit and implied quote of a chain in a stable order.
func (m *Market) Quotes(chainID uint64) []Quote {
	snaps := m.byChain[chainID]
	out := make([]Quote, 0, 2*len(snaps))
	for _, s := range snaps {
		out = append(out, Quote{Key: s.Key, Rate: s.Price, Depth: s.LiquidityDepth, ObservedAt: s.ObservedAt})
	}
	for _, s := range snaps {
		rev := s.Key.Reverse()
		if _, explicit := m.snaps[rev]; explicit {
			continue
		}
		q, _ := m.Quote(rev)
		out = append(out, q)
	}
	slices.SortStableFunc(out, func(a, b Quote) int { return compareKeys(a.Key, b.Key) })
	return out
}

// Chains returns the chains with at least one fresh snapshot, ascending.
func (m *Market) Chains() []uint64 {
	ids := make([]uint64, 0, len(m.byChain))
	for id := range m.byChain {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Logical resolves a chain-local symbol to its cross-chain identity.
func (m *Market) Logical(chainID uint64, symbol string) string {
	if m.assets == nil {
		return symbol
	}
	return m.assets.Logical(chainID, symbol)
}

// Convert values amount of fromLogical in toLogical on chainID using the first quote in
// key order between any deployments of the two. Stablecoins convert to each other 1:1.
func (m *Market) Convert(chainID uint64, fromLogical, toLogical string, amount decimal.Decimal) (decimal.Decimal, bool) {
	if fromLogical == toLogical {
		return amount, true
	}
	if m.isStableLogical(chainID, fromLogical) && m.isStableLogical(chainID, toLogical) {
		return amount, true
	}
	for _, q := range m.Quotes(chainID) {
		if m.Logical(chainID, q.Key.TokenIn) == fromLogical && m.Logical(chainID, q.Key.TokenOut) == toLogical {
			return amount.Mul(q.Rate), true
		}
	}
	return decimal.Zero, false
}

// ValueUSD values amount of the chain-local symbol in USD through the first registered
// stablecoin it has a quote to.
func (m *Market) ValueUSD(chainID uint64, symbol string, amount decimal.Decimal) (decimal.Decimal, bool) {
	from := m.Logical(chainID, symbol)
	if m.isStableLogical(chainID, from) {
		return amount, true
	}
	if m.assets == nil {
		return decimal.Zero, false
	}
	for _, stable := range m.assets.Stables(chainID) {
		if v, ok := m.Convert(chainID, from, m.Logical(chainID, stable), amount); ok {
			return v, true
		}
	}
	return decimal.Zero, false
}

func (m *Market) isStableLogical(chainID uint64, logical string) bool {
	if m.assets == nil {
		return false
	}
	return m.assets.IsStable(chainID, logical)
}
