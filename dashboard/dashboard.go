// Package dashboard serves the read-only HTTP API over tracking data,
// sessions, pricing cache state, and provider readiness. It also mounts the
// MCP streamable-HTTP endpoint so one port can serve both surfaces.
package dashboard

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/blackjuly/ultra-mcp/common/helper"
	"github.com/blackjuly/ultra-mcp/common/logger"
	"github.com/blackjuly/ultra-mcp/memory"
	"github.com/blackjuly/ultra-mcp/model"
	"github.com/blackjuly/ultra-mcp/pricing"
	"github.com/blackjuly/ultra-mcp/relay"
	"github.com/blackjuly/ultra-mcp/relay/channeltype"
)

// Server is the dashboard HTTP server.
type Server struct {
	db       *gorm.DB
	memory   *memory.Service
	pricing  *pricing.Service
	registry *relay.Registry
	mcp      gin.HandlerFunc
}

// New assembles the server. mcpHandler is optional; when set it is mounted at
// POST /mcp.
func New(db *gorm.DB, memorySvc *memory.Service, pricingSvc *pricing.Service, registry *relay.Registry, mcpHandler gin.HandlerFunc) *Server {
	return &Server{
		db:       db,
		memory:   memorySvc,
		pricing:  pricingSvc,
		registry: registry,
		mcp:      mcpHandler,
	}
}

// Router builds the gin engine with all routes mounted.
func (s *Server) Router(debug bool) *gin.Engine {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.health)

	api := router.Group("/api")
	api.GET("/stats", s.stats)
	api.GET("/requests", s.requests)
	api.GET("/requests/:id", s.requestByID)
	api.GET("/sessions", s.sessions)
	api.GET("/pricing/info", s.pricingInfo)
	api.GET("/providers", s.providers)

	if s.mcp != nil {
		router.POST("/mcp", s.mcp)
		router.GET("/mcp", s.mcp)
	}
	return router
}

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, port int, debug bool) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.Router(debug),
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Logger.Info("dashboard listening", zap.Int("port", port))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": helper.GetTimestamp(),
	})
}

func (s *Server) stats(c *gin.Context) {
	stats, err := model.GetRequestStats(s.db)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "",
		"data":    stats,
	})
}

func (s *Server) requests(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	records, err := model.GetRecentRequests(s.db, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "",
		"data":    records,
	})
}

func (s *Server) requestByID(c *gin.Context) {
	record, err := model.GetRequestByID(s.db, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"message": "request not found",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "",
		"data":    record,
	})
}

func (s *Server) sessions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))

	page, err := s.memory.ListSessions(c.Request.Context(), c.Query("status"), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "",
		"data":    page,
	})
}

func (s *Server) pricingInfo(c *gin.Context) {
	info, err := s.pricing.Info()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "",
		"data":    info,
	})
}

func (s *Server) providers(c *gin.Context) {
	type entry struct {
		Provider     string   `json:"provider"`
		Configured   bool     `json:"configured"`
		DefaultModel string   `json:"defaultModel,omitempty"`
		Models       []string `json:"models,omitempty"`
	}

	var out []entry
	for _, kind := range channeltype.All() {
		ad, err := s.registry.Get(kind)
		if err != nil {
			continue
		}
		e := entry{Provider: string(kind), Configured: ad.IsConfigured()}
		if e.Configured {
			e.DefaultModel = ad.DefaultModel()
			e.Models = ad.ListModels()
		}
		out = append(out, e)
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "",
		"data":    out,
	})
}

func respondError(c *gin.Context, err error) {
	logger.Logger.Warn("dashboard request failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{
		"success": false,
		"message": err.Error(),
	})
}
