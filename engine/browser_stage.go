package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/use-agent/regscout/browser"
	"github.com/use-agent/regscout/metrics"
	"github.com/use-agent/regscout/models"
	"github.com/use-agent/regscout/resilience"
)

// BrowserRunner owns what every browser stage shares: the session pool, the
// stealth page factory and the CAPTCHA rotation schedule.
type BrowserRunner struct {
	Pool    *browser.Pool
	Factory *browser.Factory
	Loop    resilience.CaptchaLoop
}

// Available reports whether browser stages can run at all.
func (r *BrowserRunner) Available() bool {
	return r != nil && r.Pool != nil && r.Pool.Available()
}

// BrowserPlan is a source's browser automation script.
type BrowserPlan[T models.Record] struct {
	Source models.Source

	// Open loads the search form. The page is checked for a challenge
	// after these steps run.
	Open func(q models.Query) []browser.Step

	// Submit fills and submits the form and waits for results. The page is
	// checked again afterwards. May be nil for URL-driven searches.
	Submit func(q models.Query) []browser.Step

	// Parse extracts records from the rendered results page.
	Parse func(html, pageURL string, q models.Query) (*Outcome[T], error)
}

// BrowserAttempt adapts a plan into a pipeline stage. Each check runs on a
// fresh stealth page; a challenged session is discarded before the next
// rotation so the retry lands on a new browser process.
func BrowserAttempt[T models.Record](r *BrowserRunner, bp BrowserPlan[T]) Attempt[T] {
	return func(ctx context.Context, q models.Query) (*Outcome[T], error) {
		if !r.Available() {
			return nil, models.NewScrapeError(models.ErrCodeBrowserUnavailable, "no browser driver", browser.ErrUnavailable)
		}
		out, checks, err := resilience.RunCaptchaLoop(ctx, r.Loop, func(ctx context.Context, n int) (*Outcome[T], error) {
			return browserOnce(ctx, r, bp, q, n)
		})
		if err != nil {
			return nil, err
		}
		if checks > 1 {
			out.Warnings = append(out.Warnings, fmt.Sprintf("captcha cleared after %d sessions", checks))
		}
		return out, nil
	}
}

func browserOnce[T models.Record](ctx context.Context, r *BrowserRunner, bp BrowserPlan[T], q models.Query, n int) (out *Outcome[T], err error) {
	lease, err := r.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	page, release, err := r.Factory.Create(ctx, lease)
	discard := false
	defer func() {
		release()
		if discard {
			lease.Discard()
		} else {
			lease.Release()
		}
	}()
	if err != nil {
		discard = true
		return nil, err
	}

	// read returns the page HTML, or ErrCaptcha when it is a challenge.
	read := func(phase string) (string, error) {
		html, err := page.HTML(ctx)
		if err != nil {
			return "", models.NewScrapeError(models.CodeOf(err, models.ErrCodeUnknown), "read page", err)
		}
		if cerr := resilience.CheckCaptcha(html); cerr != nil {
			metrics.ObserveCaptcha(string(bp.Source))
			slog.Warn("captcha on browser page",
				"source", bp.Source,
				"phase", phase,
				"attempt", n,
				"session", lease.SessionID(),
			)
			discard = true
			return "", cerr
		}
		return html, nil
	}

	if err := browser.RunSteps(ctx, page, bp.Open(q)); err != nil {
		// A challenge served on load hides the form, so the wait fails
		// before any marker check; look first.
		if _, cerr := read("open"); errors.Is(cerr, resilience.ErrCaptcha) {
			return nil, cerr
		}
		return nil, err
	}
	html, err := read("open")
	if err != nil {
		return nil, err
	}
	if bp.Submit != nil {
		if err := browser.RunSteps(ctx, page, bp.Submit(q)); err != nil {
			// A challenge injected on submit often hides the results
			// selectors, so look before reporting a timeout.
			if _, cerr := read("submit"); errors.Is(cerr, resilience.ErrCaptcha) {
				return nil, cerr
			}
			return nil, err
		}
		if html, err = read("results"); err != nil {
			return nil, err
		}
	}

	out, err = bp.Parse(html, page.URL(), q)
	if err != nil {
		if errors.Is(err, resilience.ErrCaptcha) {
			discard = true
		}
		return nil, err
	}
	if out == nil {
		out = &Outcome[T]{}
	}
	return out, nil
}
