package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/regscout/api"
	"github.com/use-agent/regscout/api/handler"
	"github.com/use-agent/regscout/api/middleware"
	"github.com/use-agent/regscout/browser"
	"github.com/use-agent/regscout/cache"
	"github.com/use-agent/regscout/config"
	"github.com/use-agent/regscout/engine"
	"github.com/use-agent/regscout/metrics"
	"github.com/use-agent/regscout/orchestrator"
	"github.com/use-agent/regscout/resilience"
	"github.com/use-agent/regscout/sources"
	"github.com/use-agent/regscout/sources/all"
	"github.com/use-agent/regscout/webhook"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging and metrics ────────────────
	initLogger(cfg.Log)
	metrics.Init()
	slog.Info("regscout starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"sourceTimeout", cfg.Scraper.SourceTimeout,
	)

	// ── 3. Browser session pool ─────────────────────────────────────
	// No browser is launched here; the first browser-stage search does it.
	driver := browser.SelectDriver(cfg.Browser)
	pool := browser.NewPool(driver, browser.PoolConfig{
		IdleTimeout:   cfg.Browser.IdleTimeout,
		LaunchTimeout: cfg.Browser.LaunchTimeout,
	})
	defer pool.Close()
	if !driver.Available() {
		slog.Warn("browser unavailable, browser-only sources will fail", "driver", driver.Name())
	}

	runner := &engine.BrowserRunner{
		Pool: pool,
		Factory: browser.NewFactory(browser.NewRandomGenerator(), browser.FactoryConfig{
			BlockedResourceTypes: cfg.Scraper.BlockedResourceTypes,
		}),
		Loop: resilience.CaptchaLoop{
			Ceiling:   cfg.Scraper.CaptchaRotations,
			BaseDelay: cfg.Scraper.CaptchaBaseDelay,
			Sleep:     resilience.SleepContext,
		},
	}

	// ── 4. Transports and sources ───────────────────────────────────
	limits := engine.NewHostLimits(cfg.HTTP.HostRPS, cfg.HTTP.HostBurst, time.Hour)
	defer limits.Stop()

	registry := all.Build(sources.Deps{
		Fetcher: engine.NewHTTPFetcher(cfg.HTTP, cfg.Scraper, limits),
		API:     engine.NewAPIClient(cfg.HTTP, cfg.Scraper, limits),
		Browser: runner,
		Config:  cfg.Sources,
	})
	slog.Info("sources registered", "sources", registry.IDs())

	orch := orchestrator.New(registry, cfg.Scraper)

	// ── 5. Cache, jobs, webhooks ────────────────────────────────────
	cc := cache.New(cfg.Cache.MaxEntries)
	defer cc.Close()

	jobs := handler.NewJobStore(cfg.Server.MaxConcurrentJobs)
	defer jobs.Close()

	// ── 6. Setup router ─────────────────────────────────────────────
	router := api.NewRouter(cfg, api.Deps{
		Orchestrator: orch,
		Pool:         pool,
		Cache:        cc,
		Jobs:         jobs,
		Notifier:     webhook.NewNotifier(),
		Limiter:      middleware.NewKeyLimiter(cfg.RateLimit),
		StartTime:    time.Now(),
	})

	// ── 7. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 8. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// A search can run for a whole source timeout; give it that long.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Scraper.SourceTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// pool.Close() runs via defer and kills any live browser.
	slog.Info("regscout stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if cfg.Format == "text" {
		h = slog.NewTextHandler(os.Stdout, opts)
	} else {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(h))
}
