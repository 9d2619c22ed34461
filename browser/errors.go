package browser

import (
	"context"
	"errors"

	"github.com/use-agent/regscout/models"
)

// categorizeError wraps raw driver errors into ScrapeErrors so pipelines can
// tell timeouts from other navigation failures.
func categorizeError(err error, msg string) *models.ScrapeError {
	var se *models.ScrapeError
	if errors.As(err, &se) {
		return se
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeNavigationTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeNavigationTimeout, "request canceled", err)
	default:
		return models.NewScrapeError(models.ErrCodeUnknown, msg, err)
	}
}
