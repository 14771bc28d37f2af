// Package lanelock provides LaneLocker implementations: an in-process one and a Redis
// one for several engine instances sharing lanes.
package lanelock

import (
	"context"
	"sync"

	"github.com/fd1az/arbitrage-engine/internal/apperror"
)

// Memory locks lanes within one process.
type Memory struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemory creates an in-process locker.
func NewMemory() *Memory {
	return &Memory{held: make(map[string]struct{})}
}

// Acquire takes every lane or none.
func (m *Memory) Acquire(_ context.Context, lanes []string) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, l := range lanes {
		if _, ok := m.held[l]; ok {
			return nil, apperror.New(apperror.CodeLaneBusy, apperror.WithContext(l))
		}
	}
	for _, l := range lanes {
		m.held[l] = struct{}{}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			for _, l := range lanes {
				delete(m.held, l)
			}
			m.mu.Unlock()
		})
	}, nil
}
