// Package webhook delivers signed job events to caller-supplied endpoints.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// EventSearchCompleted is sent when an asynchronous search job ends,
// whatever its status.
const EventSearchCompleted = "search.completed"

// SignatureHeader carries "sha256=<hex>" of the body when a secret is set.
const SignatureHeader = "X-Regscout-Signature"

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string `json:"type"`
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Notifier posts events with retries.
type Notifier struct {
	Client *http.Client

	// Delays precede each attempt; the first is normally 0.
	Delays []time.Duration

	// Sleep is swapped in tests.
	Sleep func(time.Duration)
}

// NewNotifier retries after 1s, 5s and 30s.
func NewNotifier() *Notifier {
	return &Notifier{
		Client: &http.Client{Timeout: 10 * time.Second},
		Delays: []time.Duration{0, 1 * time.Second, 5 * time.Second, 30 * time.Second},
		Sleep:  time.Sleep,
	}
}

// Deliver sends a webhook event synchronously.
// The request body is signed with HMAC-SHA256 if secret is non-empty.
func (n *Notifier) Deliver(ctx context.Context, url, secret string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Regscout-Webhook/1.0")
	if secret != "" {
		req.Header.Set(SignatureHeader, Sign(secret, body))
	}

	resp, err := n.Client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// DeliverWithRetry walks the delay schedule until one attempt succeeds.
// It returns the number of attempts made and the last error.
func (n *Notifier) DeliverWithRetry(url, secret string, event *Event) (int, error) {
	var lastErr error
	for attempt, delay := range n.Delays {
		if delay > 0 {
			n.Sleep(delay)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		lastErr = n.Deliver(ctx, url, secret, event)
		cancel()
		if lastErr == nil {
			slog.Info("webhook delivered",
				"url", url,
				"event", event.Type,
				"job_id", event.JobID,
				"attempt", attempt+1,
			)
			return attempt + 1, nil
		}
		slog.Warn("webhook delivery failed",
			"url", url,
			"event", event.Type,
			"job_id", event.JobID,
			"attempt", attempt+1,
			"error", lastErr,
		)
	}
	slog.Error("webhook delivery exhausted all retries",
		"url", url,
		"event", event.Type,
		"job_id", event.JobID,
	)
	return len(n.Delays), lastErr
}

// DeliverAsync runs DeliverWithRetry in the background.
func (n *Notifier) DeliverAsync(url, secret string, event *Event) {
	go func() { _, _ = n.DeliverWithRetry(url, secret, event) }()
}
