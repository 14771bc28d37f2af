// Package rest exposes execution control over HTTP.
package rest

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fd1az/arbitrage-engine/business/execution/domain"
	"github.com/fd1az/arbitrage-engine/internal/httpserver"
)

// Executor is the part of the coordinator the handlers drive.
type Executor interface {
	ExecuteAsync(ctx context.Context, fingerprint string) (domain.Execution, error)
	Cancel(ctx context.Context, id string) (domain.Execution, error)
	ReportOutcome(ctx context.Context, id string, o domain.Outcome) (domain.Execution, error)
}

// Handlers serves execution commands. Reads go through the ledger API.
type Handlers struct {
	executor Executor
}

// New creates the handlers.
func New(executor Executor) *Handlers {
	return &Handlers{executor: executor}
}

// Register mounts the routes on g.
func (h *Handlers) Register(g *gin.RouterGroup) {
	g.POST("/opportunities/:fingerprint/execute", h.execute)
	g.POST("/executions/:id/cancel", h.cancel)
	g.POST("/executions/:id/outcome", h.outcome)
}

// execute claims the opportunity and answers once the attempt is running.
func (h *Handlers) execute(c *gin.Context) {
	exec, err := h.executor.ExecuteAsync(c.Request.Context(), c.Param("fingerprint"))
	if err != nil {
		httpserver.WriteError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, exec)
}

func (h *Handlers) cancel(c *gin.Context) {
	exec, err := h.executor.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpserver.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, exec)
}

// outcome is the callback of the submission service. Duplicate reports return the
// execution as it stands.
func (h *Handlers) outcome(c *gin.Context) {
	var o domain.Outcome
	if err := c.ShouldBindJSON(&o); err != nil {
		httpserver.BadRequest(c, "body", err.Error())
		return
	}
	exec, err := h.executor.ReportOutcome(c.Request.Context(), c.Param("id"), o)
	if err != nil {
		httpserver.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, exec)
}
