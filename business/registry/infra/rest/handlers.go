// Package rest exposes the opportunity registry over HTTP.
package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	arbdomain "github.com/fd1az/arbitrage-engine/business/arbitrage/domain"
	"github.com/fd1az/arbitrage-engine/business/registry/app"
	"github.com/fd1az/arbitrage-engine/business/registry/domain"
	"github.com/fd1az/arbitrage-engine/internal/apperror"
	"github.com/fd1az/arbitrage-engine/internal/httpserver"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Handlers serves read-only views of the registry.
type Handlers struct {
	registry *app.Registry
}

// New creates the handlers.
func New(registry *app.Registry) *Handlers {
	return &Handlers{registry: registry}
}

// Register mounts the routes on g.
func (h *Handlers) Register(g *gin.RouterGroup) {
	g.GET("/opportunities", h.list)
	g.GET("/opportunities/stats", h.stats)
	g.GET("/opportunities/:fingerprint", h.get)
}

type listResponse struct {
	Opportunities []arbdomain.Opportunity `json:"opportunities"`
	Count         int                     `json:"count"`
}

type recordResponse struct {
	domain.Record
	Superseded []domain.Record `json:"superseded"`
}

// list returns the active opportunities, best first.
func (h *Handlers) list(c *gin.Context) {
	var f domain.Filter

	chain, err := httpserver.QueryUint(c, "chain")
	if err != nil {
		httpserver.BadRequest(c, "chain", "must be an unsigned integer")
		return
	}
	f.ChainID = chain

	if v := c.Query("kind"); v != "" {
		kind, err := arbdomain.ParseStrategyKind(v)
		if err != nil {
			httpserver.BadRequest(c, "kind", err.Error())
			return
		}
		f.Kind = kind
	}

	if v := c.Query("min_profit"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			httpserver.BadRequest(c, "min_profit", "must be a decimal")
			return
		}
		f.MinNetProfit = d
	}
	f.Limit = httpserver.QueryLimit(c, defaultLimit, maxLimit)

	opps := h.registry.ListActive(c.Request.Context(), f)
	if opps == nil {
		opps = []arbdomain.Opportunity{}
	}
	c.JSON(http.StatusOK, listResponse{Opportunities: opps, Count: len(opps)})
}

// get returns one record with any superseded duplicates.
func (h *Handlers) get(c *gin.Context) {
	fp := c.Param("fingerprint")
	rec, ok := h.registry.Get(c.Request.Context(), fp)
	if !ok {
		httpserver.WriteError(c, apperror.NotFound(apperror.CodeOpportunityNotFound, fp))
		return
	}
	superseded := h.registry.Superseded(fp)
	if superseded == nil {
		superseded = []domain.Record{}
	}
	c.JSON(http.StatusOK, recordResponse{Record: rec, Superseded: superseded})
}

func (h *Handlers) stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.Stats(c.Request.Context()))
}
