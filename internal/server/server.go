// Package server provides the HTTP API for the learning agent.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/johannhartmann/learning-agent/internal/conversation"
	"github.com/johannhartmann/learning-agent/internal/learner"
	"github.com/johannhartmann/learning-agent/internal/lifecycle"
	"github.com/johannhartmann/learning-agent/internal/memory"
	"github.com/johannhartmann/learning-agent/internal/retrieval"
)

// Server provides HTTP endpoints for the learning agent.
type Server struct {
	echo      *echo.Echo
	learner   *learner.Learner
	retriever *retrieval.Retriever
	store     *memory.Store
	manager   *lifecycle.Manager
	logger    *zap.Logger
	config    *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server.
func NewServer(l *learner.Learner, r *retrieval.Retriever, store *memory.Store, manager *lifecycle.Manager, logger *zap.Logger, cfg *Config) (*Server, error) {
	if l == nil {
		return nil, fmt.Errorf("learner cannot be nil")
	}
	if r == nil {
		return nil, fmt.Errorf("retriever cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if manager == nil {
		return nil, fmt.Errorf("lifecycle manager cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9090,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:      e,
		learner:   l,
		retriever: r,
		store:     store,
		manager:   manager,
		logger:    logger,
		config:    cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/learnings", s.handleSubmitLearning)
	v1.POST("/context", s.handleContext)
	v1.GET("/memories/search", s.handleSearch)
	v1.GET("/memories/recent", s.handleRecent)
	v1.POST("/memories/:id/outcome", s.handleOutcome)
	v1.GET("/lifecycle/metrics", s.handleLifecycleMetrics)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// SubmitResponse is the response body for POST /api/v1/learnings.
type SubmitResponse struct {
	Status   string `json:"status"`
	ThreadID string `json:"thread_id"`
}

// handleSubmitLearning queues a finished conversation for background
// learning. It always returns immediately: the pipeline runs detached.
func (s *Server) handleSubmitLearning(c echo.Context) error {
	var trace conversation.Trace
	if err := c.Bind(&trace); err != nil {
		s.logger.Warn("invalid learning submission", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if trace.ThreadID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "thread_id field is required")
	}

	s.learner.Submit(&trace)

	return c.JSON(http.StatusAccepted, SubmitResponse{
		Status:   "queued",
		ThreadID: trace.ThreadID,
	})
}

// ContextRequest is the request body for POST /api/v1/context.
type ContextRequest struct {
	Task    string                 `json:"task"`
	History []conversation.Message `json:"history,omitempty"`
}

// ContextResponse is the response body for POST /api/v1/context.
type ContextResponse struct {
	Context string `json:"context"`
}

// handleContext returns the formatted learning block for a task. An
// empty context means nothing relevant was found; that is not an error.
func (s *Server) handleContext(c echo.Context) error {
	var req ContextRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid context request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Task == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "task field is required")
	}

	block, err := s.retriever.FetchForTask(c.Request().Context(), req.Task, req.History)
	if err != nil {
		s.logger.Error("context retrieval failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "retrieval failed")
	}

	return c.JSON(http.StatusOK, ContextResponse{Context: block})
}

// SearchResult is one entry in the search response.
type SearchResult struct {
	Memory     memory.Memory `json:"memory"`
	Similarity float64       `json:"similarity"`
}

// SearchResponse is the response body for GET /api/v1/memories/search.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
}

// handleSearch runs a similarity search over either embedding axis.
func (s *Server) handleSearch(c echo.Context) error {
	query := c.QueryParam("q")
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q parameter is required")
	}

	limit, err := parseLimit(c.QueryParam("limit"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid limit parameter")
	}

	var results []memory.SearchResult
	switch axis := c.QueryParam("axis"); axis {
	case "", "task":
		results, err = s.store.SearchByTask(c.Request().Context(), query, limit)
	case "content":
		results, err = s.store.SearchByContent(c.Request().Context(), query, limit)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown axis %q (task or content)", axis))
	}
	if err != nil {
		s.logger.Error("memory search failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "search failed")
	}

	resp := SearchResponse{Results: make([]SearchResult, 0, len(results))}
	for _, res := range results {
		resp.Results = append(resp.Results, SearchResult{
			Memory:     res.Memory,
			Similarity: res.Similarity,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

// RecentResponse is the response body for GET /api/v1/memories/recent.
type RecentResponse struct {
	Memories []memory.Memory `json:"memories"`
}

func (s *Server) handleRecent(c echo.Context) error {
	limit, err := parseLimit(c.QueryParam("limit"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid limit parameter")
	}

	memories, err := s.store.ListRecent(c.Request().Context(), limit)
	if err != nil {
		s.logger.Error("listing recent memories failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "listing failed")
	}

	return c.JSON(http.StatusOK, RecentResponse{Memories: memories})
}

// OutcomeRequest is the request body for POST /api/v1/memories/:id/outcome.
type OutcomeRequest struct {
	Success  bool   `json:"success"`
	Severity string `json:"severity,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// handleOutcome records the result of applying a retrieved memory. An
// unknown id is a logged no-op on the store side, so the response is 200
// either way: this call runs after the user-facing task completed and
// must never fail loudly.
func (s *Server) handleOutcome(c echo.Context) error {
	id := c.Param("id")

	var req OutcomeRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid outcome request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	err := s.store.UpdateOutcome(c.Request().Context(), id, req.Success, memory.Severity(req.Severity), req.Reason)
	if err != nil {
		s.logger.Error("outcome update failed", zap.String("memory_id", id), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "outcome update failed")
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "recorded"})
}

// parseLimit parses an optional positive limit query parameter. Empty
// means "use the store default".
func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	return limit, nil
}

// handleLifecycleMetrics reports population health.
func (s *Server) handleLifecycleMetrics(c echo.Context) error {
	report, err := s.manager.Report(c.Request().Context())
	if err != nil {
		s.logger.Error("lifecycle report failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "report failed")
	}
	return c.JSON(http.StatusOK, report)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
