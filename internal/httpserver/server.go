// Package httpserver hosts the REST API on gin.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fd1az/arbitrage-engine/internal/apperror"
	"github.com/fd1az/arbitrage-engine/internal/logger"
)

// Server wraps a gin engine. Modules mount their routes on API() during Startup.
type Server struct {
	engine *gin.Engine
	api    *gin.RouterGroup
	log    logger.LoggerInterface
	srv    *http.Server
	port   int
}

// New creates a server in the given gin mode ("debug", "release" or "test").
func New(port int, mode string, log logger.LoggerInterface) *Server {
	if mode != "" {
		gin.SetMode(mode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(log))

	return &Server{
		engine: engine,
		api:    engine.Group("/api/v1"),
		log:    log,
		port:   port,
	}
}

// API returns the /api/v1 route group.
func (s *Server) API() *gin.RouterGroup {
	return s.api
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves in the background.
func (s *Server) Start() {
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		s.log.Info(context.Background(), "api server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error(context.Background(), "api server stopped", "error", err)
		}
	}()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func requestLogger(log logger.LoggerInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info(c.Request.Context(), "http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"query", c.Request.URL.RawQuery,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"remote_addr", c.ClientIP(),
		)
	}
}

// WriteError renders err as the AppError JSON body with its status code. Errors that
// are not AppErrors are reported as internal errors.
func WriteError(c *gin.Context, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		appErr = apperror.New(apperror.CodeInternalError, apperror.WithCause(err))
	}
	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}
	c.AbortWithStatusJSON(status, appErr.ToResponse())
}

// BadRequest renders a validation error for a malformed parameter.
func BadRequest(c *gin.Context, param, reason string) {
	WriteError(c, apperror.New(apperror.CodeInvalidInput,
		apperror.WithStatusCode(http.StatusBadRequest),
		apperror.WithContext(param+": "+reason)))
}

// QueryLimit parses ?limit= with a default and an upper bound.
func QueryLimit(c *gin.Context, def, max int) int {
	limit := def
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > max {
		limit = max
	}
	return limit
}

// QueryUint parses an optional unsigned query parameter; absent yields 0.
func QueryUint(c *gin.Context, name string) (uint64, error) {
	v := c.Query(name)
	if v == "" {
		return 0, nil
	}
	return strconv.ParseUint(v, 10, 64)
}

// QueryTime parses an optional RFC3339 query parameter; absent yields the zero time.
func QueryTime(c *gin.Context, name string) (time.Time, error) {
	v := c.Query(name)
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}
