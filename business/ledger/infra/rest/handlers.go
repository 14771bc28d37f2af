// Package rest exposes the execution ledger over HTTP.
package rest

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	exdomain "github.com/fd1az/arbitrage-engine/business/execution/domain"
	"github.com/fd1az/arbitrage-engine/business/ledger/app"
	"github.com/fd1az/arbitrage-engine/business/ledger/domain"
	"github.com/fd1az/arbitrage-engine/internal/httpserver"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Handlers serves ledger reads.
type Handlers struct {
	ledger *app.Ledger
}

// New creates the handlers.
func New(ledger *app.Ledger) *Handlers {
	return &Handlers{ledger: ledger}
}

// Register mounts the routes on g.
func (h *Handlers) Register(g *gin.RouterGroup) {
	g.GET("/executions", h.list)
	g.GET("/executions/stats", h.stats)
	g.GET("/executions/:id", h.get)
}

type listResponse struct {
	Executions []exdomain.Execution `json:"executions"`
	Count      int                  `json:"count"`
}

// filter parses the shared query parameters. It writes the error response itself and
// reports false on a malformed parameter.
func filter(c *gin.Context) (domain.Filter, bool) {
	var f domain.Filter

	if v := c.Query("state"); v != "" {
		for _, name := range strings.Split(v, ",") {
			st, err := exdomain.ParseState(strings.TrimSpace(name))
			if err != nil {
				httpserver.BadRequest(c, "state", err.Error())
				return f, false
			}
			f.States = append(f.States, st)
		}
	}

	var err error
	if f.From, err = httpserver.QueryTime(c, "from"); err != nil {
		httpserver.BadRequest(c, "from", "must be RFC3339")
		return f, false
	}
	if f.To, err = httpserver.QueryTime(c, "to"); err != nil {
		httpserver.BadRequest(c, "to", "must be RFC3339")
		return f, false
	}
	if f.ChainID, err = httpserver.QueryUint(c, "chain"); err != nil {
		httpserver.BadRequest(c, "chain", "must be an unsigned integer")
		return f, false
	}
	f.Fingerprint = c.Query("fingerprint")
	return f, true
}

// list returns matching executions, newest first.
func (h *Handlers) list(c *gin.Context) {
	f, ok := filter(c)
	if !ok {
		return
	}
	f.Limit = httpserver.QueryLimit(c, defaultLimit, maxLimit)

	execs, err := h.ledger.Query(c.Request.Context(), f)
	if err != nil {
		httpserver.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponse{Executions: execs, Count: len(execs)})
}

func (h *Handlers) get(c *gin.Context) {
	exec, err := h.ledger.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpserver.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, exec)
}

func (h *Handlers) stats(c *gin.Context) {
	f, ok := filter(c)
	if !ok {
		return
	}
	s, err := h.ledger.Stats(c.Request.Context(), f)
	if err != nil {
		httpserver.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}
