package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/arbitrage-engine/internal/apperror"
	"github.com/fd1az/arbitrage-engine/internal/logger"
)

func TestWriteError(t *testing.T) {
	s := New(0, gin.TestMode, logger.Discard())
	s.API().GET("/claimed", func(c *gin.Context) {
		WriteError(c, apperror.Sentinel(apperror.CodeOpportunityAlreadyClaimed))
	})
	s.API().GET("/plain", func(c *gin.Context) {
		WriteError(c, errors.New("boom"))
	})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/claimed", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	var body map[string]map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "OPPORTUNITY_ALREADY_CLAIMED", body["error"]["code"])

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/plain", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestQueryHelpers(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		query string
		limit int
	}{
		{"", 50},
		{"limit=10", 10},
		{"limit=-3", 50},
		{"limit=9999", 500},
		{"limit=abc", 50},
	}
	for _, tt := range tests {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
		assert.Equal(t, tt.limit, QueryLimit(c, 50, 500), tt.query)
	}

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/?chain=42161&from=2026-01-02T03:04:05Z", nil)
	chain, err := QueryUint(c, "chain")
	require.NoError(t, err)
	assert.Equal(t, uint64(42161), chain)

	from, err := QueryTime(c, "from")
	require.NoError(t, err)
	assert.Equal(t, 2026, from.Year())

	to, err := QueryTime(c, "to")
	require.NoError(t, err)
	assert.True(t, to.IsZero())
}
