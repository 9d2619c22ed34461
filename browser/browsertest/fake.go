// Package browsertest provides in-memory fakes of the browser interfaces for
// tests that must not launch Chromium.
package browsertest

import (
	"context"
	"errors"
	"sync"

	"github.com/use-agent/regscout/browser"
)

// Driver is a fake browser.Driver. Each Launch creates a new *Browser.
type Driver struct {
	mu sync.Mutex

	// Gate, when non-nil, blocks every Launch until it is closed.
	Gate chan struct{}

	// LaunchErrs are returned by successive launches; nil entries succeed.
	LaunchErrs []error

	// Pages builds the pages of launched browsers. Defaults to a blank Page.
	Pages func(session int) *Page

	launches int
	browsers []*Browser
}

func (d *Driver) Name() string    { return "fake" }
func (d *Driver) Available() bool { return true }

func (d *Driver) Launch(ctx context.Context) (browser.Browser, error) {
	if d.Gate != nil {
		select {
		case <-d.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	idx := d.launches
	d.launches++
	if idx < len(d.LaunchErrs) && d.LaunchErrs[idx] != nil {
		return nil, d.LaunchErrs[idx]
	}
	b := &Browser{session: len(d.browsers) + 1, pages: d.Pages}
	d.browsers = append(d.browsers, b)
	return b, nil
}

// Launches counts Launch calls, failed ones included.
func (d *Driver) Launches() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.launches
}

// Browsers returns every browser launched so far.
func (d *Driver) Browsers() []*Browser {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Browser(nil), d.browsers...)
}

// Browser is a fake browser.Browser.
type Browser struct {
	mu      sync.Mutex
	session int
	pages   func(session int) *Page
	pingErr error
	pings   int
	closes  int
	opened  []*Page
}

// SetPingErr makes subsequent health probes fail with err.
func (b *Browser) SetPingErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pingErr = err
}

func (b *Browser) Ping(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pings++
	if b.closes > 0 {
		return errors.New("browser closed")
	}
	return b.pingErr
}

func (b *Browser) NewPage(context.Context) (browser.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var p *Page
	if b.pages != nil {
		p = b.pages(b.session)
	}
	if p == nil {
		p = &Page{}
	}
	b.opened = append(b.opened, p)
	return p, nil
}

func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closes++
	return nil
}

// Closes counts Close calls.
func (b *Browser) Closes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closes
}

// Pings counts health probes.
func (b *Browser) Pings() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pings
}

// Opened returns the pages opened on this browser.
func (b *Browser) Opened() []*Page {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Page(nil), b.opened...)
}

// Page is an instrumented fake browser.Page.
type Page struct {
	mu sync.Mutex

	// Content is returned by HTML. When HTMLFunc is set it wins.
	Content  string
	HTMLFunc func(navigations int) (string, error)

	// Errs fails the named method ("Navigate", "Input", "Click", "WaitAny",
	// "Emulate", "AddInitScript", "HTML").
	Errs map[string]error

	// AnyMatch is what WaitAny reports; defaults to the first selector.
	AnyMatch string

	calls       []string
	initScripts []string
	fingerprint *browser.Fingerprint
	inputs      map[string]string
	navigations int
	url         string
	closes      int
	hijackStops int
}

func (p *Page) record(call string) error {
	p.calls = append(p.calls, call)
	if p.Errs != nil {
		return p.Errs[call]
	}
	return nil
}

func (p *Page) AddInitScript(js string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.initScripts = append(p.initScripts, js)
	return p.record("AddInitScript")
}

func (p *Page) Emulate(fp browser.Fingerprint) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fingerprint = &fp
	return p.record("Emulate")
}

func (p *Page) BlockResources([]string) (func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record("BlockResources"); err != nil {
		return nil, err
	}
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.hijackStops++
	}, nil
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigations++
	p.url = url
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.record("Navigate")
}

func (p *Page) WaitStable(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.record("WaitStable")
}

func (p *Page) WaitAny(_ context.Context, selectors ...string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record("WaitAny"); err != nil {
		return "", err
	}
	if p.AnyMatch != "" {
		return p.AnyMatch, nil
	}
	if len(selectors) == 0 {
		return "", errors.New("no selectors")
	}
	return selectors[0], nil
}

func (p *Page) Input(_ context.Context, selector, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inputs == nil {
		p.inputs = map[string]string{}
	}
	p.inputs[selector] = text
	return p.record("Input")
}

func (p *Page) Click(context.Context, string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.record("Click")
}

func (p *Page) Eval(context.Context, string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return "", p.record("Eval")
}

func (p *Page) HTML(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record("HTML"); err != nil {
		return "", err
	}
	if p.HTMLFunc != nil {
		return p.HTMLFunc(p.navigations)
	}
	return p.Content, nil
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes++
	return nil
}

// Closes counts Close calls; a correctly released page reports exactly 1.
func (p *Page) Closes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closes
}

// HijackStops counts calls of the BlockResources stop function.
func (p *Page) HijackStops() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hijackStops
}

// Calls lists method calls in order.
func (p *Page) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// InitScripts lists injected init scripts in order.
func (p *Page) InitScripts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.initScripts...)
}

// Fingerprint returns the emulated fingerprint, or nil.
func (p *Page) Fingerprint() *browser.Fingerprint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fingerprint
}

// Inputs returns the text typed per selector.
func (p *Page) Inputs() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]string, len(p.inputs))
	for k, v := range p.inputs {
		out[k] = v
	}
	return out
}
