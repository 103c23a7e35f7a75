// Package api exposes the scoring service over HTTP.
package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sitegauge/sitegauge/acquire"
	"github.com/sitegauge/sitegauge/api/handler"
	"github.com/sitegauge/sitegauge/api/middleware"
	"github.com/sitegauge/sitegauge/breaker"
	"github.com/sitegauge/sitegauge/cache"
	"github.com/sitegauge/sitegauge/config"
	"github.com/sitegauge/sitegauge/engine"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health endpoint is intentionally outside auth so monitoring probes always work.
func NewRouter(o *engine.Orchestrator, a *acquire.Acquirer, breakers *breaker.Registry, cc *cache.Cache, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	// Health — no auth required.
	v1.GET("/health", handler.Health(a, breakers, startTime))

	// Protected group — auth + rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	// Score
	protected.POST("/score", handler.Score(o, cc, cfg.Webhook.Secret))

	return r
}
