package di_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/fd1az/arbitrage-engine/internal/di"
)

type service struct{ id int }

func TestRegisterToken_LazySingleton(t *testing.T) {
	c := di.NewContainer()
	tok := di.NewToken[*service]("test:service")

	var calls atomic.Int32
	di.RegisterToken(c, tok, func(sr di.ServiceRegistry) *service {
		calls.Add(1)
		return &service{id: 7}
	})

	if calls.Load() != 0 {
		t.Fatal("factory must not run before first lookup")
	}

	var wg sync.WaitGroup
	results := make([]*service, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = di.GetToken(c, tok)
		}(i)
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("factory ran %d times, want 1", calls.Load())
	}
	for _, s := range results {
		if s != results[0] {
			t.Fatal("expected the same instance for every lookup")
		}
	}
}

func TestFactoryCanResolveDependencies(t *testing.T) {
	c := di.NewContainer()
	c.Register("config", 42)

	tok := di.NewToken[*service]("test:dependent")
	di.RegisterToken(c, tok, func(sr di.ServiceRegistry) *service {
		return &service{id: sr.Get("config").(int)}
	})

	if got := di.GetToken(c, tok).id; got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
}

func TestGet_UnknownPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for unknown service")
		}
	}()
	di.NewContainer().Get("missing")
}
