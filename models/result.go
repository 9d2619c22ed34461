package models

import (
	"encoding/json"
	"time"
)

// SearchType selects which record kind a search returns.
type SearchType string

const (
	SearchCompany SearchType = "company"
	SearchOfficer SearchType = "officer"
)

// Valid reports whether t is a known search type.
func (t SearchType) Valid() bool {
	return t == SearchCompany || t == SearchOfficer
}

// ScraperResult is the outcome of one source pipeline run.
//
// Success=false always carries empty Data. Success=true with empty Data is a
// legitimate zero-match outcome.
type ScraperResult[T Record] struct {
	Success    bool          `json:"success"`
	Data       []T           `json:"data"`
	TotalFound int           `json:"total_found"`
	Source     Source        `json:"source"`
	Query      string        `json:"query"`
	ScrapedAt  time.Time     `json:"scraped_at"`
	Duration   time.Duration `json:"-"`
	Error      string        `json:"error,omitempty"`
	Warnings   []string      `json:"warnings,omitempty"`
}

// SourceResult lets results of different record types share one map.
type SourceResult interface {
	Succeeded() bool
	Found() int
	SourceID() Source
	Records() int
	ErrorCode() string
}

func (r *ScraperResult[T]) Succeeded() bool   { return r.Success }
func (r *ScraperResult[T]) SourceID() Source  { return r.Source }
func (r *ScraperResult[T]) Records() int      { return len(r.Data) }
func (r *ScraperResult[T]) ErrorCode() string { return r.Error }

// Found returns the source-reported total, never less than the fetched count.
func (r *ScraperResult[T]) Found() int {
	if !r.Success {
		return 0
	}
	if r.TotalFound < len(r.Data) {
		return len(r.Data)
	}
	return r.TotalFound
}

// Warn appends an advisory message.
func (r *ScraperResult[T]) Warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Fail turns the result into a failure. A failed result never carries data,
// so any partial records are dropped.
func (r *ScraperResult[T]) Fail(code string) {
	r.Success = false
	r.Error = code
	r.Data = []T{}
	r.TotalFound = 0
}

// MarshalJSON adds the duration in milliseconds.
func (r *ScraperResult[T]) MarshalJSON() ([]byte, error) {
	type alias ScraperResult[T]
	data := r.Data
	if data == nil {
		data = []T{}
	}
	return json.Marshal(struct {
		*alias
		Data       []T   `json:"data"`
		DurationMs int64 `json:"duration_ms"`
	}{
		alias:      (*alias)(r),
		Data:       data,
		DurationMs: r.Duration.Milliseconds(),
	})
}

// NewFailedResult builds a failure result for a source.
func NewFailedResult[T Record](source Source, query, code string, warnings ...string) *ScraperResult[T] {
	return &ScraperResult[T]{
		Success:   false,
		Data:      []T{},
		Source:    source,
		Query:     query,
		ScrapedAt: time.Now().UTC(),
		Error:     code,
		Warnings:  warnings,
	}
}
