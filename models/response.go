package models

// ErrorResponse wraps an error for non-search API failures.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}

// SourcesResponse is the response for GET /api/v1/sources.
type SourcesResponse struct {
	Sources []SourceInfo `json:"sources"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status           string    `json:"status"` // "healthy" or "degraded"
	Uptime           string    `json:"uptime"`
	BrowserAvailable bool      `json:"browser_available"`
	BrowserDriver    string    `json:"browser_driver"`
	PoolStats        PoolStats `json:"pool_stats"`
	Version          string    `json:"version"`
}

// PoolStats reports the state of the browser session pool.
type PoolStats struct {
	SessionAlive bool  `json:"session_alive"`
	ActiveLeases int   `json:"active_leases"`
	Launches     int64 `json:"launches"`
	Rotations    int64 `json:"rotations"`
}
