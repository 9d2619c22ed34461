package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/regscout/api/handler"
	"github.com/use-agent/regscout/api/middleware"
	"github.com/use-agent/regscout/browser"
	"github.com/use-agent/regscout/cache"
	"github.com/use-agent/regscout/config"
	"github.com/use-agent/regscout/metrics"
	"github.com/use-agent/regscout/orchestrator"
	"github.com/use-agent/regscout/webhook"
)

// Deps are the long-lived components the routes serve from.
type Deps struct {
	Orchestrator *orchestrator.Orchestrator
	Pool         *browser.Pool
	Cache        *cache.Cache
	Jobs         *handler.JobStore
	Notifier     *webhook.Notifier
	Limiter      *middleware.KeyLimiter
	StartTime    time.Time
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger → Metrics
//	API:     Auth (if enabled) → RateLimit
//
// Health and /metrics are intentionally outside auth so monitoring probes
// always work.
func NewRouter(cfg *config.Config, d Deps) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())
	r.Use(middleware.Metrics())

	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := r.Group("/api/v1")

	// Health: no auth required.
	v1.GET("/health", handler.Health(d.Pool, d.StartTime))

	// Protected group: auth and rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	limiter := d.Limiter
	if limiter == nil {
		limiter = middleware.NewKeyLimiter(cfg.RateLimit)
	}
	protected.Use(middleware.RateLimit(limiter))

	protected.GET("/sources", handler.Sources(d.Orchestrator.Registry().Infos))

	// Search
	protected.POST("/search", handler.Search(d.Orchestrator, d.Cache))

	// Asynchronous search jobs
	protected.POST("/search/jobs", handler.PostSearchJob(d.Orchestrator, d.Jobs, d.Notifier))
	protected.GET("/search/jobs/:id", handler.GetSearchJob(d.Jobs))

	return r
}
