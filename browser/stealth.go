package browser

import (
	"context"
	"log/slog"
	"sync"

	"github.com/go-rod/stealth"

	"github.com/use-agent/regscout/metrics"
	"github.com/use-agent/regscout/models"
)

// StealthPage is a page with a fixed randomized fingerprint and evasions
// injected before any page script runs.
type StealthPage struct {
	Page
	Fingerprint Fingerprint
}

// FactoryConfig controls stealth page setup.
type FactoryConfig struct {
	// BlockedResourceTypes are aborted through request hijacking.
	BlockedResourceTypes []string
}

// Factory creates stealth pages on leased sessions.
type Factory struct {
	gen *Generator
	cfg FactoryConfig
}

// NewFactory returns a factory drawing fingerprints from gen.
func NewFactory(gen *Generator, cfg FactoryConfig) *Factory {
	if gen == nil {
		gen = NewRandomGenerator()
	}
	return &Factory{gen: gen, cfg: cfg}
}

// Create opens a fresh stealth page on the leased session.
//
// Setup order matters: evasion scripts and emulation must be installed
// before the first navigation, or the first document sees the real values.
//
// The returned release closes the page and is idempotent; callers defer it
// immediately. On error the page is already released.
func (f *Factory) Create(ctx context.Context, lease *Lease) (*StealthPage, func(), error) {
	raw, err := lease.NewPage(ctx)
	if err != nil {
		return nil, func() {}, err
	}
	metrics.IncActivePages()

	var stopHijack func()
	var once sync.Once
	release := func() {
		once.Do(func() {
			if stopHijack != nil {
				stopHijack()
			}
			if cerr := raw.Close(); cerr != nil {
				slog.Debug("stealth page close failed", "error", cerr)
			}
			metrics.DecActivePages()
		})
	}

	fp := f.gen.Generate()

	if err := raw.AddInitScript(stealth.JS); err != nil {
		slog.Warn("stealth injection failed, proceeding without stealth bundle", "error", err)
	}

	shim, err := renderShim(fp.Signals())
	if err != nil {
		release()
		return nil, func() {}, models.NewScrapeError(models.ErrCodeUnknown, "failed to build stealth shim", err)
	}
	if err := raw.AddInitScript(shim); err != nil {
		release()
		return nil, func() {}, categorizeError(err, "failed to inject stealth shim")
	}

	if err := raw.Emulate(fp); err != nil {
		release()
		return nil, func() {}, categorizeError(err, "failed to apply fingerprint")
	}

	stop, err := raw.BlockResources(f.cfg.BlockedResourceTypes)
	if err != nil {
		slog.Warn("resource blocking unavailable, continuing", "error", err)
	} else {
		stopHijack = stop
	}

	slog.Debug("stealth page created",
		"session", lease.SessionID(),
		"ua", fp.UserAgent,
		"viewport", fp.Viewport,
		"timezone", fp.Timezone,
	)
	return &StealthPage{Page: raw, Fingerprint: fp}, release, nil
}
