package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/regscout/metrics"
	"github.com/use-agent/regscout/models"
	"github.com/use-agent/regscout/resilience"
)

// Env describes what the running process can do.
type Env struct {
	// BrowserAvailable is false when browser scraping is disabled or no
	// binary was found. Browser stages are then skipped.
	BrowserAvailable bool
}

// Run walks plan's stages in order until one produces records.
//
//   - An API stage result is authoritative: zero rows from structured data
//     is a real zero-match outcome.
//   - Zero parsed rows from an HTTP or browser stage falls through to the next
//     stage, since an empty parse usually means changed markup or a
//     challenge page in disguise. If nothing later produces records the zero
//     outcome stands as an empty success.
//   - Any stage error falls through. When every stage is exhausted the last
//     error decides the code of the failed result.
//
// Run never returns a nil result and never panics on a stage error.
func Run[T models.Record](ctx context.Context, plan Plan[T], q models.Query, env Env) *models.ScraperResult[T] {
	start := time.Now()
	res := &models.ScraperResult[T]{
		Source:    plan.Source,
		Query:     q.Term,
		ScrapedAt: start.UTC(),
		Data:      []T{},
	}

	var (
		warnings []string
		lastErr  error
		zero     *Outcome[T]
		ran      int
	)

	for _, stage := range plan.Policy.Stages {
		attempt := plan.Attempts[stage]
		if attempt == nil {
			slog.Debug("stage not configured, skipping", "source", plan.Source, "stage", stage)
			continue
		}
		if stage == StageBrowser && !env.BrowserAvailable {
			warnings = append(warnings, "browser unavailable: browser stage skipped")
			if lastErr == nil && zero == nil {
				lastErr = models.NewScrapeError(models.ErrCodeBrowserUnavailable, "browser stage required", nil)
			}
			continue
		}
		if err := ctx.Err(); err != nil {
			lastErr = models.NewScrapeError(models.ErrCodeNavigationTimeout, "source deadline reached", err)
			break
		}

		ran++
		stageStart := time.Now()
		out, err := attempt(ctx, q)
		elapsed := time.Since(stageStart)

		if err != nil {
			code := models.CodeOf(err, models.ErrCodeUnknown)
			if errors.Is(err, resilience.ErrCaptcha) && stage != StageBrowser {
				metrics.ObserveCaptcha(string(plan.Source))
			}
			metrics.ObserveStage(string(plan.Source), string(stage), code, elapsed)
			slog.Warn("stage failed",
				"source", plan.Source,
				"stage", stage,
				"code", code,
				"elapsed", elapsed,
				"error", err,
			)
			warnings = append(warnings, fmt.Sprintf("%s stage failed: %s", stage, code))
			lastErr = err
			continue
		}

		if out == nil {
			out = &Outcome[T]{}
		}
		warnings = append(warnings, out.Warnings...)

		if len(out.Records) == 0 {
			metrics.ObserveStage(string(plan.Source), string(stage), "empty", elapsed)
			if stage == StageAPI {
				zero = out
				break
			}
			slog.Info("stage parsed zero rows, falling through",
				"source", plan.Source,
				"stage", stage,
			)
			if zero == nil {
				zero = out
			}
			continue
		}

		metrics.ObserveStage(string(plan.Source), string(stage), "ok", elapsed)
		slog.Info("stage succeeded",
			"source", plan.Source,
			"stage", stage,
			"records", len(out.Records),
			"elapsed", elapsed,
		)
		finish(res, out, q)
		res.Warnings = warnings
		res.Duration = time.Since(start)
		metrics.ObserveSourceResult(string(plan.Source), "")
		return res
	}

	res.Duration = time.Since(start)

	if zero != nil {
		res.Success = true
		res.TotalFound = 0
		res.Warnings = warnings
		metrics.ObserveSourceResult(string(plan.Source), "")
		return res
	}

	code := models.ErrCodeUnknown
	switch {
	case lastErr != nil:
		code = models.CodeOf(lastErr, models.ErrCodeUnknown)
		if errors.Is(lastErr, resilience.ErrCaptcha) {
			code = models.ErrCodeCaptcha
		}
	case ran == 0:
		code = models.ErrCodeBrowserUnavailable
	}
	if plan.ManualURL != "" {
		warnings = append(warnings, "search manually at "+plan.ManualURL)
	}
	res.Fail(code)
	res.Warnings = warnings
	metrics.ObserveSourceResult(string(plan.Source), code)
	return res
}

// finish filters, ranks, de-duplicates and truncates a successful outcome.
func finish[T models.Record](res *models.ScraperResult[T], out *Outcome[T], q models.Query) {
	kept := make([]T, 0, len(out.Records))
	seen := make(map[string]struct{}, len(out.Records))
	for _, r := range out.Records {
		if !r.Keep(q) {
			continue
		}
		k := r.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		kept = append(kept, r)
	}

	Rank(kept, q.Term)

	total := out.TotalFound
	if total < len(kept) {
		total = len(kept)
	}
	if q.Limit > 0 && len(kept) > q.Limit {
		kept = kept[:q.Limit]
	}

	res.Success = true
	res.Data = kept
	res.TotalFound = total
}
