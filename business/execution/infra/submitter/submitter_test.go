package submitter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	arbdomain "github.com/fd1az/arbitrage-engine/business/arbitrage/domain"
	"github.com/fd1az/arbitrage-engine/business/execution/domain"
	"github.com/fd1az/arbitrage-engine/internal/apperror"
	"github.com/fd1az/arbitrage-engine/internal/logger"
)

func submission(t *testing.T) domain.Submission {
	t.Helper()
	path, err := arbdomain.NewPath([]arbdomain.Hop{
		{ChainID: 42161, DexID: "uniswap", TokenIn: "USDC", TokenOut: "WETH", AmountIn: decimal.NewFromInt(10_000)},
		{ChainID: 42161, DexID: "camelot", TokenIn: "WETH", TokenOut: "USDC"},
	})
	require.NoError(t, err)
	return domain.Submission{
		ExecutionID:        "exec-1",
		Attempt:            1,
		Fingerprint:        "fp",
		Kind:               arbdomain.CrossDex,
		Path:               path,
		AmountIn:           decimal.NewFromInt(10_000),
		MinAmountOut:       decimal.NewFromInt(10_010),
		SimulatedAmountOut: decimal.NewFromInt(10_030),
	}
}

func TestHTTP_Submit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/submissions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "exec-1-1", r.Header.Get("Idempotency-Key"))

		var got domain.Submission
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, "exec-1", got.ExecutionID)
		assert.Equal(t, uint64(42161), got.Path.First().ChainID)
		assert.True(t, got.MinAmountOut.Equal(decimal.NewFromInt(10_010)))

		json.NewEncoder(w).Encode(submitResponse{CorrelationID: "corr-9"})
	}))
	defer srv.Close()

	h, err := NewHTTP(HTTPConfig{BaseURL: srv.URL, BearerToken: "secret"}, logger.Discard())
	require.NoError(t, err)

	id, err := h.Submit(context.Background(), submission(t))
	require.NoError(t, err)
	assert.Equal(t, "corr-9", id)
}

func TestHTTP_SubmitErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		code    apperror.Code
	}{
		{"server error", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}, apperror.CodeSubmissionFailed},
		{"rate limited", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}, apperror.CodeRateLimitExceeded},
		{"no correlation id", func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{}`))
		}, apperror.CodeSubmissionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			h, err := NewHTTP(HTTPConfig{BaseURL: srv.URL}, logger.Discard())
			require.NoError(t, err)

			_, err = h.Submit(context.Background(), submission(t))
			assert.Equal(t, tt.code, apperror.GetCode(err))
		})
	}
}

type reporter struct {
	mu   sync.Mutex
	got  map[string]domain.Outcome
	done chan struct{}
}

func (r *reporter) ReportOutcome(_ context.Context, id string, o domain.Outcome) (domain.Execution, error) {
	r.mu.Lock()
	r.got[id] = o
	r.mu.Unlock()
	close(r.done)
	return domain.Execution{ID: id}, nil
}

func TestDryRun(t *testing.T) {
	rep := &reporter{got: make(map[string]domain.Outcome), done: make(chan struct{})}
	d := NewDryRun(time.Millisecond, logger.Discard())
	d.SetReporter(rep)

	id, err := d.Submit(context.Background(), submission(t))
	require.NoError(t, err)
	assert.Equal(t, "dryrun-exec-1", id)

	select {
	case <-rep.done:
	case <-time.After(2 * time.Second):
		t.Fatal("no outcome reported")
	}
	rep.mu.Lock()
	defer rep.mu.Unlock()
	o := rep.got["exec-1"]
	assert.True(t, o.Success)
	assert.True(t, o.AmountOut.Equal(decimal.NewFromInt(10_030)))
}
