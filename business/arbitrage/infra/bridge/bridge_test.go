package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/arbitrage-engine/internal/apperror"
	"github.com/fd1az/arbitrage-engine/internal/config"
	"github.com/fd1az/arbitrage-engine/internal/logger"
)

func TestStatic(t *testing.T) {
	s, err := NewStatic([]config.BridgeConfig{
		{From: 1, To: 42161, FeeBps: 5, FixedFee: "0.5", Latency: 10 * time.Minute, PenaltyBpsPerMinute: 0.1},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Routes())

	q, err := s.Quote(context.Background(), 1, 42161, "USDC")
	require.NoError(t, err)
	assert.Equal(t, "USDC", q.Asset)
	assert.Equal(t, int64(5), q.FeeBps)
	// 5 bps + 10 min x 0.1 bps = 6 bps, then 0.5 fixed.
	assert.True(t, q.Apply(decimal.NewFromInt(10_000)).Equal(decimal.RequireFromString("9993.5")))

	_, err = s.Quote(context.Background(), 42161, 1, "USDC")
	assert.Equal(t, apperror.CodeBridgeQuoteFailed, apperror.GetCode(err))
}

func TestStatic_RejectsBadConfig(t *testing.T) {
	tests := []config.BridgeConfig{
		{From: 1, To: 1},
		{From: 0, To: 10},
		{From: 1, To: 10, FixedFee: "abc"},
	}
	for _, b := range tests {
		_, err := NewStatic([]config.BridgeConfig{b})
		assert.Equal(t, apperror.CodeConfigurationError, apperror.GetCode(err), "%+v", b)
	}
}

func TestHTTP_QuoteAndCache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/quote", r.URL.Path)
		assert.Equal(t, "10", r.URL.Query().Get("to"))
		json.NewEncoder(w).Encode(quoteResponse{FeeBps: 8, FixedFee: "1.25", LatencySeconds: 90})
	}))
	defer srv.Close()

	h, err := NewHTTP(srv.URL, nil, logger.Discard())
	require.NoError(t, err)
	defer h.Close()

	for range 3 {
		q, err := h.Quote(context.Background(), 1, 10, "ETH")
		require.NoError(t, err)
		assert.Equal(t, int64(8), q.FeeBps)
		assert.True(t, q.FixedFee.Equal(decimal.RequireFromString("1.25")))
		assert.Equal(t, 90*time.Second, q.Latency)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTP_FallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	static, err := NewStatic([]config.BridgeConfig{{From: 1, To: 10, FeeBps: 3}})
	require.NoError(t, err)

	h, err := NewHTTP(srv.URL, static, logger.Discard())
	require.NoError(t, err)
	defer h.Close()

	q, err := h.Quote(context.Background(), 1, 10, "USDC")
	require.NoError(t, err)
	assert.Equal(t, int64(3), q.FeeBps)

	noFallback, err := NewHTTP(srv.URL, nil, logger.Discard())
	require.NoError(t, err)
	defer noFallback.Close()

	_, err = noFallback.Quote(context.Background(), 1, 10, "USDC")
	assert.Equal(t, apperror.CodeBridgeQuoteFailed, apperror.GetCode(err))
}
