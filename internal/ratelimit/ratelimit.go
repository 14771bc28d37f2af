// Package ratelimit provides per-key token buckets on top of golang.org/x/time/rate.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter wraps rate.Limiter with a per-minute constructor.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a limiter allowing requestsPerMinute with a burst of 10% of the rate.
// A non-positive rate means unlimited.
func New(requestsPerMinute int) *Limiter {
	if requestsPerMinute <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}

	rps := float64(requestsPerMinute) / 60.0
	burst := requestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// NewWithBurst creates a new rate limiter with explicit burst.
func NewWithBurst(requestsPerSecond float64, burst int) *Limiter {
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst)}
}

// Wait blocks until a token is available or the context is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Allow reports whether an event may happen now.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// Keyed holds one Limiter per key, created lazily with the same rate.
// The submission client keys it by chain id so a busy chain cannot starve the others.
type Keyed[K comparable] struct {
	requestsPerMinute int
	mu                sync.Mutex
	limiters          map[K]*Limiter
}

// NewKeyed creates an empty keyed limiter.
func NewKeyed[K comparable](requestsPerMinute int) *Keyed[K] {
	return &Keyed[K]{
		requestsPerMinute: requestsPerMinute,
		limiters:          make(map[K]*Limiter),
	}
}

// For returns the limiter for key.
func (k *Keyed[K]) For(key K) *Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()

	l, ok := k.limiters[key]
	if !ok {
		l = New(k.requestsPerMinute)
		k.limiters[key] = l
	}
	return l
}

// Wait blocks until the limiter for key has a token.
func (k *Keyed[K]) Wait(ctx context.Context, key K) error {
	return k.For(key).Wait(ctx)
}
