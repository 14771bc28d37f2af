package wsfeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/arbitrage-engine/business/marketdata/domain"
	"github.com/fd1az/arbitrage-engine/internal/logger"
)

type recordingSink struct {
	mu    sync.Mutex
	snaps []domain.MarketSnapshot
}

func (s *recordingSink) Offer(_ context.Context, snap domain.MarketSnapshot) (bool, error) {
	if err := snap.Validate(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
	return true, nil
}

func (s *recordingSink) all() []domain.MarketSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.MarketSnapshot(nil), s.snaps...)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		msg     string
		want    int
		wantErr bool
	}{
		{"single", `{"chain_id":1,"dex":"sushiswap","token_in":"WETH","token_out":"USDC","price":"2000.5","depth":"10","observed_at":"2026-01-01T00:00:00Z"}`, 1, false},
		{"array", `[{"chain_id":1,"price":"1"},{"chain_id":10,"price":"2"}]`, 2, false},
		{"empty", `  `, 0, true},
		{"garbage", `not json`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frames, err := Decode([]byte(tt.msg))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, frames, tt.want)
		})
	}

	frames, err := Decode([]byte(`{"chain_id":1,"dex":"sushiswap","token_in":"WETH","token_out":"USDC","price":"2000.5","depth":"10","observed_at":"2026-01-01T00:00:00Z","latency_ms":40}`))
	require.NoError(t, err)
	s := frames[0].Snapshot()
	assert.Equal(t, "1:sushiswap:WETH>USDC", s.Key.String())
	assert.Equal(t, "2000.5", s.Price.String())
	assert.Equal(t, 40*time.Millisecond, s.SourceLatency)
}

func TestFeed_SubscribesAndOffers(t *testing.T) {
	subscribed := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		ctx := r.Context()
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		subscribed <- string(data)

		now := time.Now().UTC().Format(time.RFC3339Nano)
		frames := `[{"chain_id":1,"dex":"sushiswap","token_in":"WETH","token_out":"USDC","price":"2010","depth":"500000","observed_at":"` + now + `"},` +
			`{"chain_id":1,"dex":"sushiswap","token_in":"WETH","token_out":"USDC","price":"0","depth":"1","observed_at":"` + now + `"}]`
		_ = conn.Write(ctx, websocket.MessageText, []byte(frames))
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	sink := &recordingSink{}
	feed := New("ws"+strings.TrimPrefix(srv.URL, "http"), 10*time.Millisecond, []uint64{1}, sink, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- feed.Run(ctx) }()

	select {
	case msg := <-subscribed:
		assert.JSONEq(t, `{"type":"subscribe","chains":[1]}`, msg)
	case <-time.After(2 * time.Second):
		t.Fatal("no subscribe message")
	}

	require.Eventually(t, func() bool { return len(sink.all()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "2010", sink.all()[0].Price.String())

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("feed did not stop")
	}
}
