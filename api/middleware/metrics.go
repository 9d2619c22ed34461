package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/regscout/metrics"
)

// Metrics records request counts and latencies by route template, so
// /search/jobs/:id stays one series.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
