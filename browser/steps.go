package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/use-agent/regscout/models"
)

// stepTimeout is the per-step deadline unless a step sets its own.
const stepTimeout = 15 * time.Second

// StepKind names a browser step.
type StepKind string

const (
	StepNavigate   StepKind = "navigate"
	StepInput      StepKind = "input"
	StepClick      StepKind = "click"
	StepWaitAny    StepKind = "wait_any"
	StepWaitStable StepKind = "wait_stable"
	StepSleep      StepKind = "sleep"
	StepEval       StepKind = "eval"
)

// Step is one declarative browser action. Source plans are lists of steps.
type Step struct {
	Kind      StepKind
	URL       string
	Selector  string
	Selectors []string
	Value     string
	Duration  time.Duration

	// Timeout overrides stepTimeout.
	Timeout time.Duration

	// Optional steps may fail without aborting the plan.
	Optional bool
}

// Navigate loads url.
func Navigate(url string) Step { return Step{Kind: StepNavigate, URL: url} }

// Input types value into the element matching selector.
func Input(selector, value string) Step {
	return Step{Kind: StepInput, Selector: selector, Value: value}
}

// Click clicks the element matching selector.
func Click(selector string) Step { return Step{Kind: StepClick, Selector: selector} }

// WaitAny waits for any of the selectors.
func WaitAny(selectors ...string) Step { return Step{Kind: StepWaitAny, Selectors: selectors} }

// WaitStable waits for the DOM to stop changing. It is optional: a page that
// never settles is still read.
func WaitStable() Step { return Step{Kind: StepWaitStable, Optional: true} }

// Sleep pauses, e.g. to let a human-speed form submission look natural.
func Sleep(d time.Duration) Step { return Step{Kind: StepSleep, Duration: d} }

// RunSteps executes steps in order. A failed required step stops the plan
// and reports which step failed and how many completed.
func RunSteps(ctx context.Context, page Page, steps []Step) error {
	for i, step := range steps {
		if err := runStep(ctx, page, step); err != nil {
			if step.Optional {
				continue
			}
			code := models.CodeOf(err, models.ErrCodeUnknown)
			return models.NewScrapeError(code,
				fmt.Sprintf("step %d (%s) failed after %d completed", i, step.Kind, i), err)
		}
	}
	return nil
}

func runStep(ctx context.Context, page Page, step Step) error {
	timeout := step.Timeout
	if timeout <= 0 {
		timeout = stepTimeout
	}
	if step.Kind == StepSleep && timeout <= step.Duration {
		timeout = step.Duration + time.Second
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch step.Kind {
	case StepNavigate:
		return page.Navigate(stepCtx, step.URL)
	case StepInput:
		return page.Input(stepCtx, step.Selector, step.Value)
	case StepClick:
		return page.Click(stepCtx, step.Selector)
	case StepWaitAny:
		_, err := page.WaitAny(stepCtx, step.Selectors...)
		return err
	case StepWaitStable:
		return page.WaitStable(stepCtx)
	case StepSleep:
		select {
		case <-time.After(step.Duration):
			return nil
		case <-stepCtx.Done():
			return stepCtx.Err()
		}
	case StepEval:
		_, err := page.Eval(stepCtx, step.Value)
		return err
	default:
		return fmt.Errorf("unknown step kind: %s", step.Kind)
	}
}
