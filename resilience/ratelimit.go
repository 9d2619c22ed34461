package resilience

import (
	"bytes"
	"errors"
	"net/http"
)

// ErrRateLimited reports that a source throttled the request.
var ErrRateLimited = errors.New("rate limited by source")

var rateLimitPhrases = [][]byte{
	[]byte("too many requests"),
	[]byte("rate limit"),
	[]byte("rate-limit"),
	[]byte("slow down"),
	[]byte("temporarily blocked"),
	[]byte("request limit exceeded"),
	[]byte("throttled"),
}

// DetectRateLimit applies status and content heuristics. A 429 is always a
// rate limit. A 200, 403 or 503 page only counts when its body says so, since
// some registries serve throttle notices with a success or forbidden code.
func DetectRateLimit(status int, body []byte) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	// Only scan short bodies; real result pages are large and may mention
	// "rate" in unrelated text.
	if len(body) > 64*1024 {
		return false
	}
	lower := bytes.ToLower(body)
	for _, p := range rateLimitPhrases {
		if bytes.Contains(lower, p) {
			return status == http.StatusOK || status == http.StatusServiceUnavailable || status == http.StatusForbidden
		}
	}
	return false
}
