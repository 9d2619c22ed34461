package models

// SearchRequest is the payload for POST /api/v1/search.
type SearchRequest struct {
	// Query is the company or person name to look up. Required.
	Query string `json:"query" binding:"required,min=2,max=200"`

	// Sources restricts the search to these source ids.
	// Default: every registered source.
	Sources []Source `json:"sources,omitempty"`

	// SearchType selects company or officer records.
	// Allowed: "company" (default), "officer".
	SearchType SearchType `json:"search_type,omitempty" binding:"omitempty,oneof=company officer"`

	// Limit caps the records returned per source.
	// Default: 20. Max: 200.
	Limit int `json:"limit,omitempty" binding:"omitempty,min=1,max=200"`

	// Parallel runs every source concurrently. Sequential mode respects
	// global rate limits at the cost of latency.
	// Default: true.
	Parallel *bool `json:"parallel,omitempty"`

	// Jurisdiction narrows multi-jurisdiction sources, e.g. "us_fl".
	Jurisdiction string `json:"jurisdiction,omitempty" binding:"omitempty,max=16"`

	// IncludeInactive keeps dissolved and inactive entities.
	// Default: false.
	IncludeInactive bool `json:"include_inactive,omitempty"`

	// CurrentOnly drops officers that have left their position.
	// Default: false.
	CurrentOnly bool `json:"current_only,omitempty"`

	// MaxAge allows serving a cached response younger than this many
	// milliseconds. 0 disables the cache.
	MaxAge int `json:"max_age_ms,omitempty" binding:"omitempty,min=0"`
}

// Defaults applies default values to unset fields.
func (r *SearchRequest) Defaults() {
	if r.SearchType == "" {
		r.SearchType = SearchCompany
	}
	if r.Limit == 0 {
		r.Limit = DefaultLimit
	}
	if r.Parallel == nil {
		t := true
		r.Parallel = &t
	}
}
