package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/gallerydiscover/api/handler"
	"github.com/use-agent/gallerydiscover/api/middleware"
	"github.com/use-agent/gallerydiscover/config"
	"github.com/use-agent/gallerydiscover/scan"
)

// NewRouter creates a configured Gin engine exposing scan.Scanner's action
// surface over HTTP.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health endpoint is intentionally outside auth so monitoring probes always work.
func NewRouter(s *scan.Scanner, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	// Health — no auth required.
	v1.GET("/health", handler.Health(startTime))

	// Protected group — auth + rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	protected.POST("/scan", handler.PostScan(s))
	protected.POST("/scan/:id/stop", handler.PostScanStop(s))
	protected.POST("/scan/:id/export", handler.PostExport(s))

	protected.POST("/pagination/:id/next", handler.PostPaginationNext(s))
	protected.GET("/pagination/:id", handler.GetPaginationState(s))

	protected.POST("/retry", handler.PostRetry(s))
	protected.DELETE("/retry/:id", handler.DeleteRetry(s))

	return r
}
