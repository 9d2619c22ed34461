package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/regscout/cache"
	"github.com/use-agent/regscout/models"
	"github.com/use-agent/regscout/orchestrator"
)

// Search returns a handler for POST /api/v1/search.
//
// Flow:
//  1. Parse & validate request, apply defaults.
//  2. Serve from cache when max_age_ms allows.
//  3. Orchestrator.Search across the selected sources.
//  4. Cache store, return 200. Source failures stay inside the body; only
//     caller errors produce a non-200 status.
func Search(o *orchestrator.Orchestrator, cc *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		// ── 1. Parse request ────────────────────────────────────────
		var req models.SearchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		req.Defaults()

		// ── 2. Cache lookup ─────────────────────────────────────────
		var key string
		if cc != nil && req.MaxAge > 0 {
			key = cache.Key(&req)
			if cached, hit := cc.Get(key, req.MaxAge); hit {
				cached.CacheStatus = "hit"
				c.JSON(http.StatusOK, cached)
				return
			}
		}

		// ── 3. Search ───────────────────────────────────────────────
		resp, err := o.Search(c.Request.Context(), req.Query, OptionsFrom(&req))
		if err != nil {
			respondError(c, err)
			return
		}

		// ── 4. Cache store ──────────────────────────────────────────
		// Searches with failed sources are not cached; a retry may fare better.
		if key != "" && len(resp.Failed) == 0 {
			cc.Set(key, resp)
			resp.CacheStatus = "miss"
		}

		c.JSON(http.StatusOK, resp)
	}
}

// OptionsFrom maps an API request onto orchestrator options.
func OptionsFrom(req *models.SearchRequest) orchestrator.Options {
	return orchestrator.Options{
		Sources:         req.Sources,
		SearchType:      req.SearchType,
		Limit:           req.Limit,
		Sequential:      req.Parallel != nil && !*req.Parallel,
		Jurisdiction:    req.Jurisdiction,
		IncludeInactive: req.IncludeInactive,
		CurrentOnly:     req.CurrentOnly,
	}
}
