// Package browser owns the headless browser: driver selection, the shared
// session pool and the per-call stealth pages built on top of it.
package browser

import (
	"context"
	"errors"
	"log/slog"

	"github.com/go-rod/rod/lib/launcher"

	"github.com/use-agent/regscout/config"
	"github.com/use-agent/regscout/models"
)

// ErrUnavailable is returned by every operation of the Unavailable driver.
var ErrUnavailable = errors.New("headless browser unavailable")

// Driver launches browser processes. One implementation is chosen at startup
// and injected into the Pool.
type Driver interface {
	Name() string
	Available() bool
	Launch(ctx context.Context) (Browser, error)
}

// Browser is one connected browser process.
type Browser interface {
	// Ping is the health probe run before every reuse.
	Ping(ctx context.Context) error

	// NewPage opens a tab in a fresh isolated browser context.
	NewPage(ctx context.Context) (Page, error)

	Close() error
}

// Page is one tab. Methods taking a context abort when it expires.
type Page interface {
	// AddInitScript runs js before any page script on every navigation.
	AddInitScript(js string) error
	Emulate(fp Fingerprint) error

	// BlockResources aborts requests of the given resource types. The
	// returned stop function is safe to call more than once.
	BlockResources(types []string) (stop func(), err error)

	Navigate(ctx context.Context, url string) error
	WaitStable(ctx context.Context) error

	// WaitAny waits until one of the selectors matches and returns it.
	WaitAny(ctx context.Context, selectors ...string) (string, error)

	Input(ctx context.Context, selector, text string) error
	Click(ctx context.Context, selector string) error
	Eval(ctx context.Context, js string) (string, error)
	HTML(ctx context.Context) (string, error)
	URL() string

	Close() error
}

// Unavailable is the Driver used when no browser can run. Sources that need
// a browser downgrade instead of failing the whole search.
type Unavailable struct {
	Reason string
}

func (u Unavailable) Name() string    { return "unavailable" }
func (u Unavailable) Available() bool { return false }

func (u Unavailable) Launch(context.Context) (Browser, error) {
	return nil, models.NewScrapeError(models.ErrCodeBrowserUnavailable, u.Reason, ErrUnavailable)
}

// SelectDriver picks the driver once at startup: the rod driver when the
// feature flag is on and a binary is found, Unavailable otherwise.
func SelectDriver(cfg config.BrowserConfig) Driver {
	if !cfg.Enabled {
		slog.Info("browser scraping disabled by configuration")
		return Unavailable{Reason: "browser scraping disabled (REGSCOUT_BROWSER_ENABLED=false)"}
	}

	bin := cfg.BrowserBin
	if bin == "" {
		found, ok := launcher.LookPath()
		if !ok {
			slog.Warn("no browser binary found, sources downgrade to API/HTTP")
			return Unavailable{Reason: "no Chromium binary found on this host"}
		}
		bin = found
	}

	slog.Info("browser driver selected", "driver", "rod", "bin", bin)
	return NewRodDriver(cfg, bin)
}
