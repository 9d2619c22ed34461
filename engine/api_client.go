package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"

	"github.com/use-agent/regscout/config"
	"github.com/use-agent/regscout/models"
	"github.com/use-agent/regscout/resilience"
)

// APIClient queries structured registry APIs (Socrata, OpenCorporates).
type APIClient struct {
	http      *resty.Client
	limits    *HostLimits
	attempts  int
	baseDelay time.Duration
	sleep     resilience.Sleeper
}

// APIOption configures an APIClient.
type APIOption func(*APIClient)

// WithAPISleeper replaces the backoff sleeper.
func WithAPISleeper(s resilience.Sleeper) APIOption {
	return func(c *APIClient) { c.sleep = s }
}

// NewAPIClient builds a resty client with the Cloudflare bypass round tripper.
func NewAPIClient(hc config.HTTPConfig, sc config.ScraperConfig, limits *HostLimits, opts ...APIOption) *APIClient {
	client := resty.New()
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetHeader("Accept", "application/json")
	client.SetTimeout(hc.Timeout)
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))
	if hc.Proxy != "" {
		client.SetProxy(hc.Proxy)
	}
	client.OnError(func(req *resty.Request, err error) {
		slog.Debug("api request failed", "method", req.Method, "url", req.URL, "error", err)
	})

	c := &APIClient{
		http:      client,
		limits:    limits,
		attempts:  sc.RetryAttempts,
		baseDelay: sc.RetryBaseDelay,
		sleep:     resilience.SleepContext,
	}
	for _, o := range opts {
		o(c)
	}
	if c.attempts < 1 {
		c.attempts = 1
	}
	return c
}

// APIRequest is one GET against a JSON endpoint.
type APIRequest struct {
	URL     string
	Params  map[string]string
	Headers map[string]string
}

// GetJSON fetches req and decodes the body into out. 429 and 5xx responses
// are retried with backoff; other 4xx responses fail immediately.
func (c *APIClient) GetJSON(ctx context.Context, req APIRequest, out any) error {
	_, err := resilience.WithRetry(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.once(ctx, req, out)
	}, c.attempts, c.baseDelay, resilience.WithSleeper(c.sleep), resilience.WithName("api "+req.URL))
	if err == nil {
		return nil
	}
	var se *models.ScrapeError
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewScrapeError(models.ErrCodeNavigationTimeout, "api request timed out", err)
	}
	return models.NewScrapeError(models.ErrCodeAPIFailure, "api request failed", err)
}

func (c *APIClient) once(ctx context.Context, req APIRequest, out any) error {
	r := c.http.R().
		SetContext(ctx).
		SetQueryParams(req.Params).
		SetHeaders(req.Headers).
		SetResult(out)

	if c.limits != nil {
		if host := hostOf(req.URL); host != "" {
			if err := c.limits.Wait(ctx, host); err != nil {
				return resilience.Permanent(err)
			}
		}
	}

	resp, err := r.Get(req.URL)
	if err != nil {
		if ctx.Err() != nil {
			return resilience.Permanent(err)
		}
		return err
	}

	status := resp.StatusCode()
	switch {
	// JSON bodies can legitimately contain throttle phrases, so only a 429
	// or a worded 503 counts.
	case status == http.StatusTooManyRequests,
		status == http.StatusServiceUnavailable && resilience.DetectRateLimit(status, resp.Body()):
		return models.NewScrapeError(models.ErrCodeRateLimited,
			fmt.Sprintf("status %d", status), resilience.ErrRateLimited)
	case status >= http.StatusInternalServerError:
		return models.NewScrapeError(models.ErrCodeAPIFailure, fmt.Sprintf("status %d", status), nil)
	case status >= http.StatusBadRequest:
		return resilience.Permanent(models.NewScrapeError(models.ErrCodeAPIFailure, fmt.Sprintf("status %d", status), nil))
	}
	if ct := resp.Header().Get("Content-Type"); strings.Contains(ct, "html") {
		if resilience.DetectCaptcha(string(resp.Body())) {
			return resilience.Permanent(models.NewScrapeError(models.ErrCodeCaptcha, "api answered with a challenge page", resilience.ErrCaptcha))
		}
		return resilience.Permanent(models.NewScrapeError(models.ErrCodeAPIFailure, "unexpected content-type "+ct, nil))
	}
	return nil
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
