// Package server exposes the action log review queue, statistics and memory
// maintenance over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ghiac/ledgermind/audit"
	"github.com/ghiac/ledgermind/log"
	"github.com/ghiac/ledgermind/memory"
	"github.com/ghiac/ledgermind/model"
	"github.com/ghiac/ledgermind/store"
)

// ActionLog is the audit surface the server needs. *audit.Log implements it.
type ActionLog interface {
	Get(ctx context.Context, id string) (*model.AgentAction, error)
	ListRecent(ctx context.Context, sessionID string, limit int) ([]*model.AgentAction, error)
	ListPendingReview(ctx context.Context, limit int) ([]*model.AgentAction, error)
	MarkReviewed(ctx context.Context, id, reviewer string) (*model.AgentAction, error)
	Stats(ctx context.Context, from *time.Time, topN int) (*model.ActionStats, error)
	ListCompliance(ctx context.Context, limit int) ([]*model.ComplianceEntry, error)
}

// MemoryAdmin is the memory surface the server needs. *memory.Service implements it.
type MemoryAdmin interface {
	GetStats(ctx context.Context) (*model.MemoryStats, error)
	Consolidate(ctx context.Context) (int, error)
	Forget(ctx context.Context) (int, error)
	Preferences(ctx context.Context) ([]*model.UserPreference, error)
}

// Server represents the HTTP server
type Server struct {
	actions ActionLog
	memory  MemoryAdmin
	address string

	httpServer *http.Server
}

// New creates a server listening on address once started.
func New(actions ActionLog, mem MemoryAdmin, address string) *Server {
	s := &Server{
		actions: actions,
		memory:  mem,
		address: address,
	}
	s.httpServer = &http.Server{
		Addr:              address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// RegisterRoutes registers HTTP routes on the given gin.Engine
// Routes: /ledgermind/health, /ledgermind/actions/*, /ledgermind/memory/*, /metrics
func (s *Server) RegisterRoutes(router *gin.Engine) {
	router.GET("/ledgermind/health", s.handleHealth)
	router.GET("/ledgermind/actions", s.handleListActions)
	router.GET("/ledgermind/actions/pending", s.handlePendingActions)
	router.GET("/ledgermind/actions/stats", s.handleActionStats)
	router.GET("/ledgermind/actions/:id", s.handleGetAction)
	router.POST("/ledgermind/actions/:id/review", s.handleReviewAction)
	router.GET("/ledgermind/compliance", s.handleCompliance)
	router.GET("/ledgermind/memory/stats", s.handleMemoryStats)
	router.GET("/ledgermind/memory/preferences", s.handlePreferences)
	router.POST("/ledgermind/memory/consolidate", s.handleConsolidate)
	router.POST("/ledgermind/memory/forget", s.handleForget)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Handler builds a gin engine with every route registered.
func (s *Server) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery())
	s.RegisterRoutes(router)
	return router
}

// Start serves until Shutdown is called. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	log.Log.Infof("[Server] 🚀 Starting HTTP server on %s", s.address)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Log.Infof("[Server] 🛑 Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "ledgermind",
	})
}

func (s *Server) handleListActions(c *gin.Context) {
	actions, err := s.actions.ListRecent(c.Request.Context(), c.Query("session"), getLimitParam(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": actions})
}

func (s *Server) handlePendingActions(c *gin.Context) {
	actions, err := s.actions.ListPendingReview(c.Request.Context(), getLimitParam(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": actions})
}

func (s *Server) handleGetAction(c *gin.Context) {
	action, err := s.actions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, action)
}

// ReviewRequest is the body of POST /ledgermind/actions/:id/review.
type ReviewRequest struct {
	Reviewer string `json:"reviewer" binding:"required"`
}

func (s *Server) handleReviewAction(c *gin.Context) {
	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid request: %v", err)})
		return
	}

	action, err := s.actions.MarkReviewed(c.Request.Context(), c.Param("id"), req.Reviewer)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, action)
}

func (s *Server) handleActionStats(c *gin.Context) {
	var from *time.Time
	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be an RFC3339 timestamp"})
			return
		}
		from = &t
	}
	top, _ := strconv.Atoi(c.Query("top"))

	stats, err := s.actions.Stats(c.Request.Context(), from, top)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleCompliance(c *gin.Context) {
	entries, err := s.actions.ListCompliance(c.Request.Context(), getLimitParam(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *Server) handleMemoryStats(c *gin.Context) {
	stats, err := s.memory.GetStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handlePreferences(c *gin.Context) {
	prefs, err := s.memory.Preferences(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"preferences": prefs})
}

func (s *Server) handleConsolidate(c *gin.Context) {
	removed, err := s.memory.Consolidate(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func (s *Server) handleForget(c *gin.Context) {
	removed, err := s.memory.Forget(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// getLimitParam reads ?limit=, returning 0 (backend default) when absent or invalid.
func getLimitParam(c *gin.Context) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}

func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, audit.ErrReviewerRequired):
		status = http.StatusBadRequest
	case errors.Is(err, memory.ErrMaintenanceInProgress):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		log.Log.Errorf("[Server] ❌ %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
