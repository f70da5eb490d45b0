package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/scrollgrab/api/handler"
	"github.com/use-agent/scrollgrab/api/middleware"
	"github.com/use-agent/scrollgrab/cache"
	"github.com/use-agent/scrollgrab/config"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health endpoint is intentionally outside auth so monitoring probes always work.
func NewRouter(cfg *config.Config, cc *cache.Cache, run handler.Runner, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	gate := handler.NewRunGate(cfg.Server.MaxRuns)

	v1 := r.Group("/api/v1")

	// Health — no auth required.
	v1.GET("/health", handler.Health(gate, startTime))

	// Protected group — auth + rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	// Harvest
	protected.POST("/harvest", handler.Harvest(cfg, cc, gate, run))

	return r
}
