package models

// SearchJobRequest is the payload for POST /api/v1/search/jobs.
type SearchJobRequest struct {
	SearchRequest

	// WebhookURL receives a signed "search.completed" event when the job ends.
	WebhookURL    string `json:"webhook_url,omitempty" binding:"omitempty,url"`
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// SearchJobResponse is the immediate response for POST /api/v1/search/jobs.
type SearchJobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// SearchJobStatusResponse is the response for GET /api/v1/search/jobs/:id.
type SearchJobStatusResponse struct {
	ID       string          `json:"id"`
	Status   string          `json:"status"`
	Response *SearchResponse `json:"response,omitempty"`
	Error    *ErrorDetail    `json:"error,omitempty"`
}

// SearchJob tracks an asynchronous search.
type SearchJob struct {
	ID        string
	Status    string // "processing", "completed", "partial", "failed"
	Response  *SearchResponse
	Error     *ErrorDetail
	CreatedAt int64 // unix timestamp
}

// JobStatusFor derives a job status from the aggregate outcome.
func JobStatusFor(resp *SearchResponse) string {
	switch {
	case resp == nil || len(resp.Successful) == 0:
		return "failed"
	case len(resp.Failed) > 0:
		return "partial"
	default:
		return "completed"
	}
}
