package models

import (
	"encoding/json"
	"time"
)

// DefaultLimit is applied when a search does not set one.
const DefaultLimit = 20

// Query is what a single source pipeline receives.
type Query struct {
	Term       string
	SearchType SearchType
	Limit      int

	// Jurisdiction narrows multi-jurisdiction sources (e.g. "us_fl").
	Jurisdiction string

	// IncludeInactive keeps dissolved/inactive entities in company results.
	IncludeInactive bool

	// CurrentOnly drops officers with an end date.
	CurrentOnly bool
}

// SearchResponse aggregates one ScraperResult per requested source.
type SearchResponse struct {
	ID         string                  `json:"id"`
	Query      string                  `json:"query"`
	SearchType SearchType              `json:"search_type"`
	Results    map[Source]SourceResult `json:"results"`
	TotalFound int                     `json:"total_found"`
	Successful []Source                `json:"successful"`
	Failed     []Source                `json:"failed"`
	StartedAt  time.Time               `json:"started_at"`
	Duration   time.Duration           `json:"-"`

	// CacheStatus is "hit" or "miss" when the API cache was consulted.
	CacheStatus string `json:"cache_status,omitempty"`
}

// MarshalJSON adds the duration in milliseconds.
func (r *SearchResponse) MarshalJSON() ([]byte, error) {
	type alias SearchResponse
	return json.Marshal(struct {
		*alias
		DurationMs int64 `json:"duration_ms"`
	}{
		alias:      (*alias)(r),
		DurationMs: r.Duration.Milliseconds(),
	})
}

// SourceInfo describes a registered source for discovery endpoints.
type SourceInfo struct {
	ID           Source       `json:"id"`
	Name         string       `json:"name"`
	Jurisdiction string       `json:"jurisdiction"`
	Stages       []string     `json:"stages"`
	SearchTypes  []SearchType `json:"search_types"`
	ManualURL    string       `json:"manual_search_url"`
}
