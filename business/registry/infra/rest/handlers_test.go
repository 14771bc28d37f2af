package rest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	arbdomain "github.com/fd1az/arbitrage-engine/business/arbitrage/domain"
	"github.com/fd1az/arbitrage-engine/business/registry/app"
	"github.com/fd1az/arbitrage-engine/internal/httpserver"
	"github.com/fd1az/arbitrage-engine/internal/logger"
)

func opportunity(t *testing.T, chain uint64, dex, net string) arbdomain.Opportunity {
	t.Helper()
	size := decimal.NewFromInt(10_000)
	path, err := arbdomain.NewPath([]arbdomain.Hop{
		{ChainID: chain, DexID: "uniswap", TokenIn: "USDC", TokenOut: "WETH", AmountIn: size},
		{ChainID: chain, DexID: dex, TokenIn: "WETH", TokenOut: "USDC"},
	})
	require.NoError(t, err)

	n := decimal.RequireFromString(net)
	profit := arbdomain.NewProfitResult(size, size.Add(n), decimal.Zero, decimal.Zero, decimal.Zero)
	return arbdomain.NewOpportunity(arbdomain.CrossDex, path, profit, 0.9, time.Now(), time.Hour).WithUSDValue(n)
}

func newServer(t *testing.T) (*httpserver.Server, *app.Registry) {
	t.Helper()
	reg, err := app.New(app.Config{}, nil, logger.Discard())
	require.NoError(t, err)

	s := httpserver.New(0, gin.TestMode, logger.Discard())
	New(reg).Register(s.API())
	return s, reg
}

func get(t *testing.T, s *httpserver.Server, url string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	return rec
}

func TestList(t *testing.T) {
	s, reg := newServer(t)
	ctx := t.Context()
	reg.Ingest(ctx, []arbdomain.Opportunity{
		opportunity(t, 1, "sushiswap", "20"),
		opportunity(t, 1, "curve", "5"),
		opportunity(t, 42161, "camelot", "12"),
	})

	rec := get(t, s, "/api/v1/opportunities")
	require.Equal(t, http.StatusOK, rec.Code)
	var body listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 3, body.Count)
	assert.Equal(t, "20", body.Opportunities[0].NetProfit.String())
	assert.Equal(t, "12", body.Opportunities[1].NetProfit.String())

	rec = get(t, s, "/api/v1/opportunities?chain=42161")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)

	rec = get(t, s, "/api/v1/opportunities?min_profit=10&limit=1")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "20", body.Opportunities[0].NetProfit.String())
}

func TestListBadParams(t *testing.T) {
	s, _ := newServer(t)
	for _, q := range []string{"chain=x", "kind=nope", "min_profit=abc"} {
		rec := get(t, s, "/api/v1/opportunities?"+q)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestGet(t *testing.T) {
	s, reg := newServer(t)
	opp := opportunity(t, 1, "sushiswap", "20")
	reg.Ingest(t.Context(), []arbdomain.Opportunity{opp})
	_, err := reg.Claim(t.Context(), opp.Fingerprint)
	require.NoError(t, err)

	rec := get(t, s, "/api/v1/opportunities/"+opp.Fingerprint)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status      string                `json:"status"`
		Claims      int                   `json:"claims"`
		Opportunity arbdomain.Opportunity `json:"opportunity"`
		Superseded  []json.RawMessage     `json:"superseded"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "claimed", body.Status)
	assert.Equal(t, 1, body.Claims)
	assert.Equal(t, opp.Fingerprint, body.Opportunity.Fingerprint)
	assert.Equal(t, 2, body.Opportunity.Path.Len())
	assert.Empty(t, body.Superseded)

	rec = get(t, s, "/api/v1/opportunities/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStats(t *testing.T) {
	s, reg := newServer(t)
	reg.Ingest(t.Context(), []arbdomain.Opportunity{opportunity(t, 1, "sushiswap", "20")})

	rec := get(t, s, "/api/v1/opportunities/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	var st app.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, 1, st.Active)
}
