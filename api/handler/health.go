package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/regscout/browser"
	"github.com/use-agent/regscout/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Health returns a handler for GET /api/v1/health.
//
// Reports pool state. Status degrades when no browser can run, since the
// browser-only sources then fail every search.
func Health(pool *browser.Pool, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := models.HealthResponse{
			Status:  "healthy",
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Version: Version,
		}
		if pool != nil {
			resp.BrowserAvailable = pool.Available()
			resp.BrowserDriver = pool.DriverName()
			resp.PoolStats = pool.Stats()
		}
		if !resp.BrowserAvailable {
			resp.Status = "degraded"
		}
		c.JSON(http.StatusOK, resp)
	}
}

// Sources returns a handler for GET /api/v1/sources.
func Sources(infos func() []models.SourceInfo) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, models.SourcesResponse{Sources: infos()})
	}
}
