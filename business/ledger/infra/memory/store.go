// Package memory keeps the ledger in process memory.
package memory

import (
	"context"
	"slices"
	"sync"

	exdomain "github.com/fd1az/arbitrage-engine/business/execution/domain"
	"github.com/fd1az/arbitrage-engine/business/ledger/domain"
)

// Store is a map-backed ledger store. Entries are lost on restart.
type Store struct {
	mu      sync.RWMutex
	entries map[string]exdomain.Execution
}

// New creates an empty store.
func New() *Store {
	return &Store{entries: make(map[string]exdomain.Execution)}
}

func (s *Store) Put(_ context.Context, e exdomain.Execution) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.entries[e.ID]; ok && cur.State.IsTerminal() {
		if cur.Equal(e) {
			return false, nil
		}
		return false, domain.Terminal(e.ID)
	}
	e.ChainIDs = slices.Clone(e.ChainIDs)
	s.entries[e.ID] = e
	return true, nil
}

func (s *Store) Get(_ context.Context, id string) (exdomain.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return exdomain.Execution{}, domain.NotFound(id)
	}
	return e, nil
}

func (s *Store) Query(_ context.Context, f domain.Filter) ([]exdomain.Execution, error) {
	s.mu.RLock()
	out := make([]exdomain.Execution, 0)
	for _, e := range s.entries {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, domain.CompareNewest)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
