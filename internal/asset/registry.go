package asset

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

type key struct {
	chainID uint64
	symbol  string
}

// Registry is a thread-safe registry of known assets keyed by chain and symbol.
type Registry struct {
	mu      sync.RWMutex
	assets  map[key]Asset
	aliases map[string]string // symbol -> logical, applied when an asset has no explicit Logical
}

// NewRegistry creates a registry seeded with the well-known aliases.
func NewRegistry() *Registry {
	r := &Registry{
		assets:  make(map[key]Asset),
		aliases: make(map[string]string, len(wellKnownAliases)),
	}
	for sym, logical := range wellKnownAliases {
		r.aliases[normalize(sym)] = logical
	}
	return r
}

// Register adds or replaces an asset. An empty Logical is resolved through the alias
// table, falling back to Symbol.
func (r *Registry) Register(a Asset) error {
	if a.Symbol == "" {
		return fmt.Errorf("asset: empty symbol")
	}
	if a.Decimals > 36 {
		return fmt.Errorf("asset: suspicious decimals %d for %s", a.Decimals, a.Symbol)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if a.Logical == "" {
		a.Logical = r.logicalLocked(a.Symbol)
	}
	r.assets[key{a.ChainID, a.Symbol}] = a
	return nil
}

// Alias declares that symbol is a deployment of logical on every chain.
func (r *Registry) Alias(symbol, logical string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[normalize(symbol)] = logical
}

// Lookup retrieves an asset by chain and symbol.
func (r *Registry) Lookup(chainID uint64, symbol string) (Asset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.assets[key{chainID, symbol}]
	return a, ok
}

// Logical returns the cross-chain identity of symbol on chainID. Unregistered symbols
// resolve through the alias table.
func (r *Registry) Logical(chainID uint64, symbol string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.assets[key{chainID, symbol}]; ok {
		return a.Logical
	}
	return r.logicalLocked(symbol)
}

// IsStable reports whether the asset is a USD stablecoin.
func (r *Registry) IsStable(chainID uint64, symbol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.assets[key{chainID, symbol}]; ok && a.Stable {
		return true
	}
	_, ok := stableLogicals[r.logicalLocked(symbol)]
	return ok
}

// Stables returns the stablecoin symbols registered on a chain, sorted.
func (r *Registry) Stables(chainID uint64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for k, a := range r.assets {
		if k.chainID != chainID {
			continue
		}
		if _, ok := stableLogicals[a.Logical]; a.Stable || ok {
			out = append(out, a.Symbol)
		}
	}
	sort.Strings(out)
	return out
}

// OnChain returns all assets registered for a chain, sorted by symbol.
func (r *Registry) OnChain(chainID uint64) []Asset {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Asset
	for k, a := range r.assets {
		if k.chainID == chainID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (r *Registry) logicalLocked(symbol string) string {
	if l, ok := r.aliases[normalize(symbol)]; ok {
		return l
	}
	return symbol
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
