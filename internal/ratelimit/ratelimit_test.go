package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_Burst(t *testing.T) {
	l := New(60) // 1 rps, burst 6
	allowed := 0
	for i := 0; i < 10; i++ {
		if l.Allow() {
			allowed++
		}
	}
	if allowed != 6 {
		t.Errorf("expected burst of 6, got %d", allowed)
	}
}

func TestLimiter_Unlimited(t *testing.T) {
	l := New(0)
	for i := 0; i < 1000; i++ {
		if !l.Allow() {
			t.Fatal("unlimited limiter rejected a request")
		}
	}
}

func TestKeyed_IndependentKeys(t *testing.T) {
	k := NewKeyed[uint64](6) // burst 1
	if !k.For(1).Allow() {
		t.Fatal("first request on chain 1 should pass")
	}
	if k.For(1).Allow() {
		t.Fatal("second request on chain 1 should be limited")
	}
	if !k.For(42161).Allow() {
		t.Fatal("chain 42161 should have its own bucket")
	}
	if k.For(1) != k.For(1) {
		t.Fatal("limiter should be reused per key")
	}
}

func TestKeyed_WaitHonoursContext(t *testing.T) {
	k := NewKeyed[string](1)
	k.For("a").Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := k.Wait(ctx, "a"); err == nil {
		t.Fatal("expected Wait to fail once the context expires")
	}
}
