package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/arbitrage-engine/business/execution/domain"
	"github.com/fd1az/arbitrage-engine/internal/apperror"
	"github.com/fd1az/arbitrage-engine/internal/httpserver"
	"github.com/fd1az/arbitrage-engine/internal/logger"
)

type executor struct {
	err     error
	reports []domain.Outcome
}

func (e *executor) ExecuteAsync(_ context.Context, fp string) (domain.Execution, error) {
	if e.err != nil {
		return domain.Execution{}, e.err
	}
	return domain.Execution{ID: "exec-1", OpportunityFingerprint: fp, Attempt: 1, State: domain.StateClaimed}, nil
}

func (e *executor) Cancel(_ context.Context, id string) (domain.Execution, error) {
	if e.err != nil {
		return domain.Execution{}, e.err
	}
	return domain.Execution{ID: id, State: domain.StateFailed, FailureReason: domain.FailureCancelled}, nil
}

func (e *executor) ReportOutcome(_ context.Context, id string, o domain.Outcome) (domain.Execution, error) {
	e.reports = append(e.reports, o)
	if err := o.Validate(); err != nil {
		return domain.Execution{}, err
	}
	return domain.Execution{ID: id, State: domain.StateConfirmed, TxHash: o.TxHash}, nil
}

func newServer(e Executor) *httpserver.Server {
	s := httpserver.New(0, gin.TestMode, logger.Discard())
	New(e).Register(s.API())
	return s
}

func post(s *httpserver.Server, url, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, url, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestExecute(t *testing.T) {
	s := newServer(&executor{})

	rec := post(s, "/api/v1/opportunities/abc123/execute", "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	var exec domain.Execution
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exec))
	assert.Equal(t, "abc123", exec.OpportunityFingerprint)
	assert.Equal(t, domain.StateClaimed, exec.State)
}

func TestExecuteErrors(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{apperror.Sentinel(apperror.CodeOpportunityAlreadyClaimed), http.StatusConflict},
		{apperror.Sentinel(apperror.CodeOpportunityExpired), http.StatusGone},
		{apperror.Sentinel(apperror.CodeExecutorBusy), http.StatusTooManyRequests},
		{apperror.Sentinel(apperror.CodeLaneBusy), http.StatusConflict},
		{apperror.NotFound(apperror.CodeOpportunityNotFound, "abc"), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(string(apperror.GetCode(tt.err)), func(t *testing.T) {
			s := newServer(&executor{err: tt.err})
			rec := post(s, "/api/v1/opportunities/abc/execute", "")
			assert.Equal(t, tt.code, rec.Code)

			var body map[string]map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, string(apperror.GetCode(tt.err)), body["error"]["code"])
		})
	}
}

func TestCancel(t *testing.T) {
	s := newServer(&executor{})
	rec := post(s, "/api/v1/executions/exec-1/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)

	s = newServer(&executor{err: apperror.Sentinel(apperror.CodeExecutionNotCancellable)})
	rec = post(s, "/api/v1/executions/exec-1/cancel", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestOutcome(t *testing.T) {
	e := &executor{}
	s := newServer(e)

	rec := post(s, "/api/v1/executions/exec-1/outcome",
		`{"success":true,"amount_out":"10030.5","gas_used":210000,"gas_price_wei":"10000000000","tx_hash":"0xfeed"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, e.reports, 1)
	assert.Equal(t, "10030.5", e.reports[0].AmountOut.String())
	assert.Equal(t, uint64(210_000), e.reports[0].GasUsed)

	var exec domain.Execution
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exec))
	assert.Equal(t, "0xfeed", exec.TxHash)

	rec = post(s, "/api/v1/executions/exec-1/outcome", `{"success":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(s, "/api/v1/executions/exec-1/outcome", `{"success":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
