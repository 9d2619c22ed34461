package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/use-agent/regscout/models"
)

// ErrCaptcha reports that a page is showing a bot challenge.
var ErrCaptcha = errors.New("captcha challenge detected")

// captchaMarkers are lower-case fragments that only appear on challenge pages.
var captchaMarkers = []string{
	"g-recaptcha",
	"www.google.com/recaptcha",
	"recaptcha/api.js",
	"h-captcha",
	"hcaptcha.com",
	"cf-turnstile",
	"challenges.cloudflare.com",
	"cf-challenge",
	"cf_chl_",
	"checking your browser before accessing",
	"verify you are human",
	"are you a robot",
	"_incapsula_resource",
	"incapsula incident",
	"px-captcha",
	"botdetect",
	"bdc_captchaimage",
	"lbd_captchaimage",
	"id=\"captcha\"",
	"please enter the characters",
}

// CaptchaMarker returns the first challenge marker found in html, or "".
func CaptchaMarker(html string) string {
	lower := strings.ToLower(html)
	for _, m := range captchaMarkers {
		if strings.Contains(lower, m) {
			return m
		}
	}
	return ""
}

// DetectCaptcha reports whether html contains a known challenge marker.
func DetectCaptcha(html string) bool {
	return CaptchaMarker(html) != ""
}

// CheckCaptcha returns an error wrapping ErrCaptcha when html is a challenge.
func CheckCaptcha(html string) error {
	if m := CaptchaMarker(html); m != "" {
		return fmt.Errorf("%w (marker %q)", ErrCaptcha, m)
	}
	return nil
}

// CaptchaLoop retries a challenged navigation on fresh sessions.
type CaptchaLoop struct {
	// Ceiling is the number of session rotations allowed after the first
	// attempt.
	Ceiling int

	// BaseDelay doubles before each rotation: 2s, 4s, 8s by default.
	BaseDelay time.Duration

	Sleep Sleeper
}

// DefaultCaptchaLoop allows three rotations with a 2s/4s/8s schedule.
func DefaultCaptchaLoop() CaptchaLoop {
	return CaptchaLoop{Ceiling: 3, BaseDelay: 2 * time.Second, Sleep: SleepContext}
}

// RunCaptchaLoop calls attempt until it stops returning ErrCaptcha. attempt is
// responsible for opening a fresh stealth page and discarding the session
// when it sees a challenge. Any other error ends the loop immediately.
//
// Past the ceiling the result is a CAPTCHA_DETECTED ScrapeError.
func RunCaptchaLoop[T any](ctx context.Context, loop CaptchaLoop, attempt func(ctx context.Context, n int) (T, error)) (T, int, error) {
	var zero T
	if loop.Sleep == nil {
		loop.Sleep = SleepContext
	}
	if loop.Ceiling < 0 {
		loop.Ceiling = 0
	}

	maxChecks := loop.Ceiling + 1
	for n := 1; n <= maxChecks; n++ {
		v, err := attempt(ctx, n)
		if err == nil {
			return v, n, nil
		}
		if !errors.Is(err, ErrCaptcha) {
			return zero, n, err
		}
		if n == maxChecks {
			break
		}

		delay := BackoffDelay(loop.BaseDelay, n)
		slog.Warn("captcha detected, rotating session",
			"attempt", n,
			"delay", delay,
		)
		if serr := loop.Sleep(ctx, delay); serr != nil {
			return zero, n, models.NewScrapeError(models.ErrCodeCaptcha, "captcha backoff interrupted", errors.Join(ErrCaptcha, serr))
		}
	}
	return zero, maxChecks, models.NewScrapeError(models.ErrCodeCaptcha,
		fmt.Sprintf("captcha persisted after %d attempts", maxChecks), ErrCaptcha)
}
