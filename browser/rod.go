package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/use-agent/regscout/config"
	"github.com/use-agent/regscout/models"
)

// RodDriver launches Chromium through go-rod.
type RodDriver struct {
	cfg config.BrowserConfig
	bin string
}

// NewRodDriver returns a driver for the binary at bin.
func NewRodDriver(cfg config.BrowserConfig, bin string) *RodDriver {
	return &RodDriver{cfg: cfg, bin: bin}
}

func (d *RodDriver) Name() string    { return "rod" }
func (d *RodDriver) Available() bool { return true }

// Launch starts a browser process and connects to it. ctx bounds the launch
// only; the process outlives it.
func (d *RodDriver) Launch(ctx context.Context) (Browser, error) {
	l := launcher.New().
		Bin(d.bin).
		Headless(d.cfg.Headless).
		NoSandbox(d.cfg.NoSandbox)

	if d.cfg.DefaultProxy != "" {
		l = l.Proxy(d.cfg.DefaultProxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	type launched struct {
		url string
		err error
	}
	ch := make(chan launched, 1)
	go func() {
		u, err := l.Launch()
		ch <- launched{u, err}
	}()

	var controlURL string
	select {
	case r := <-ch:
		if r.err != nil {
			return nil, models.NewScrapeError(models.ErrCodeBrowserUnavailable, "failed to launch browser", r.err)
		}
		controlURL = r.url
	case <-ctx.Done():
		l.Kill()
		return nil, models.NewScrapeError(models.ErrCodeBrowserUnavailable, "browser launch timed out", ctx.Err())
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, models.NewScrapeError(models.ErrCodeBrowserUnavailable, "failed to connect to browser", err)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	return &rodBrowser{browser: b, launcher: l}, nil
}

type rodBrowser struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
}

func (b *rodBrowser) Ping(ctx context.Context) error {
	_, err := proto.BrowserGetVersion{}.Call(b.browser.Context(ctx))
	return err
}

// NewPage opens the tab in its own incognito context so cookies and storage
// never leak between calls sharing the session.
func (b *rodBrowser) NewPage(ctx context.Context) (Page, error) {
	incognito, err := b.browser.Context(ctx).Incognito()
	if err != nil {
		return nil, categorizeError(err, "failed to create browser context")
	}
	// Drop the creation context so cleanup still works after ctx expires.
	incognito = incognito.Context(context.Background())

	page, err := incognito.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = incognito.Close()
		return nil, categorizeError(err, "failed to open page")
	}
	return &rodPage{page: page.Context(context.Background()), incognito: incognito}, nil
}

func (b *rodBrowser) Close() error {
	err := b.browser.Close()
	b.launcher.Kill()
	b.launcher.Cleanup()
	return err
}

type rodPage struct {
	page      *rod.Page
	incognito *rod.Browser
}

func (p *rodPage) AddInitScript(js string) error {
	_, err := p.page.EvalOnNewDocument(js)
	return err
}

func (p *rodPage) Emulate(fp Fingerprint) error {
	if err := p.page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             fp.Viewport.Width,
		Height:            fp.Viewport.Height,
		DeviceScaleFactor: fp.DeviceScaleFactor,
		Mobile:            false,
	}); err != nil {
		return fmt.Errorf("set viewport: %w", err)
	}
	if err := p.page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      fp.UserAgent,
		AcceptLanguage: fp.AcceptLanguage,
		Platform:       fp.Platform,
	}); err != nil {
		return fmt.Errorf("set user agent: %w", err)
	}
	if err := (proto.EmulationSetTimezoneOverride{TimezoneID: fp.Timezone}).Call(p.page); err != nil {
		return fmt.Errorf("set timezone: %w", err)
	}
	return proto.NetworkSetExtraHTTPHeaders{
		Headers: toHeadersMap(map[string]string{"Accept-Language": fp.AcceptLanguage}),
	}.Call(p.page)
}

func (p *rodPage) BlockResources(types []string) (func(), error) {
	router := setupHijack(p.page, types)
	if router == nil {
		return func() {}, nil
	}
	return stopOnce(func() { _ = router.Stop() }), nil
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	if err := p.page.Context(ctx).Navigate(url); err != nil {
		return categorizeError(err, "navigation failed")
	}
	return nil
}

func (p *rodPage) WaitStable(ctx context.Context) error {
	if err := p.page.Context(ctx).WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM", "error", err)
		return categorizeError(err, "page did not settle")
	}
	return nil
}

func (p *rodPage) WaitAny(ctx context.Context, selectors ...string) (string, error) {
	if len(selectors) == 0 {
		return "", errors.New("WaitAny requires at least one selector")
	}
	var matched string
	race := p.page.Context(ctx).Race()
	for _, sel := range selectors {
		sel := sel
		race = race.Element(sel).Handle(func(*rod.Element) error {
			matched = sel
			return nil
		})
	}
	if _, err := race.Do(); err != nil {
		return "", categorizeError(err, "no expected element appeared")
	}
	return matched, nil
}

func (p *rodPage) Input(ctx context.Context, selector, text string) error {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return categorizeError(err, fmt.Sprintf("element %q not found", selector))
	}
	_ = el.SelectAllText()
	return el.Input(text)
}

func (p *rodPage) Click(ctx context.Context, selector string) error {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return categorizeError(err, fmt.Sprintf("element %q not found", selector))
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (p *rodPage) Eval(ctx context.Context, js string) (string, error) {
	res, err := p.page.Context(ctx).Eval(js)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (p *rodPage) HTML(ctx context.Context) (string, error) {
	html, err := p.page.Context(ctx).HTML()
	if err != nil {
		return "", categorizeError(err, "failed to extract page HTML")
	}
	return html, nil
}

func (p *rodPage) URL() string {
	info, err := p.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// Close shuts the tab and disposes its incognito context.
func (p *rodPage) Close() error {
	err := p.page.Close()
	if cerr := p.incognito.Close(); err == nil {
		err = cerr
	}
	return err
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
