package browser

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/use-agent/regscout/metrics"
	"github.com/use-agent/regscout/models"
)

// ErrPoolClosed is returned by Acquire after Close.
var ErrPoolClosed = errors.New("browser pool closed")

// maxAcquireTries bounds how many failed health probes one Acquire tolerates
// before giving up.
const maxAcquireTries = 3

// PoolConfig controls session lifetime.
type PoolConfig struct {
	// IdleTimeout retires a session nobody has leased for this long.
	IdleTimeout time.Duration // default: 5m

	// LaunchTimeout bounds one launch. Launches run detached from the
	// caller's context so one impatient caller cannot fail every waiter.
	LaunchTimeout time.Duration // default: 30s

	// ReapInterval is how often the idle reaper runs.
	ReapInterval time.Duration // default: 30s

	// Now overrides the clock in tests.
	Now func() time.Time
}

func (c *PoolConfig) defaults() {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	if c.LaunchTimeout <= 0 {
		c.LaunchTimeout = 30 * time.Second
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = 30 * time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// session is one browser process plus its bookkeeping. All fields except
// browser are guarded by Pool.mu.
type session struct {
	id       int64
	browser  Browser
	leases   int
	lastUsed time.Time
	retired  bool
	closed   bool
}

// flight is an in-progress launch shared by every concurrent Acquire.
type flight struct {
	done chan struct{}
	err  error
}

// Pool owns at most one live browser session and hands out leases on it.
// It is created by the composition root and injected where needed.
type Pool struct {
	driver Driver
	cfg    PoolConfig
	now    func() time.Time

	mu        sync.Mutex
	current   *session
	inflight  *flight
	closed    bool
	nextID    int64
	launches  int64
	rotations int64

	stop     chan struct{}
	stopOnce sync.Once
	reaperWG sync.WaitGroup
}

// NewPool creates a pool and starts its idle reaper. No browser is launched
// until the first Acquire.
func NewPool(driver Driver, cfg PoolConfig) *Pool {
	cfg.defaults()
	p := &Pool{
		driver: driver,
		cfg:    cfg,
		now:    cfg.Now,
		stop:   make(chan struct{}),
	}
	p.reaperWG.Add(1)
	go p.reapLoop()
	return p
}

// Available reports whether the driver can launch browsers at all.
func (p *Pool) Available() bool { return p.driver.Available() }

// DriverName names the selected driver.
func (p *Pool) DriverName() string { return p.driver.Name() }

// Lease is a claim on the current session. The session is never closed while
// a lease on it is outstanding.
type Lease struct {
	pool *Pool
	sess *session
	once sync.Once
}

// NewPage opens a raw page on the leased session.
func (l *Lease) NewPage(ctx context.Context) (Page, error) {
	return l.sess.browser.NewPage(ctx)
}

// Release returns the lease. It is idempotent.
func (l *Lease) Release() {
	l.once.Do(func() { l.pool.release(l.sess, "") })
}

// Discard returns the lease and retires the session, e.g. after a CAPTCHA.
// Later Acquires get a fresh process; pages still open on the old one keep
// working until their leases are released. Discard after Release is a no-op.
func (l *Lease) Discard() {
	l.once.Do(func() { l.pool.release(l.sess, "discarded") })
}

// SessionID identifies the leased session, for logs and tests.
func (l *Lease) SessionID() int64 { return l.sess.id }

// Acquire returns a lease on a healthy session, launching one if needed.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	if !p.driver.Available() {
		_, err := p.driver.Launch(ctx)
		if err == nil {
			err = models.NewScrapeError(models.ErrCodeBrowserUnavailable, "browser driver unavailable", ErrUnavailable)
		}
		return nil, err
	}

	for tries := 0; tries < maxAcquireTries; {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}

		if s := p.current; s != nil {
			if s.leases == 0 && p.now().Sub(s.lastUsed) >= p.cfg.IdleTimeout {
				closeNow := p.retireLocked(s, "idle")
				p.mu.Unlock()
				if closeNow {
					p.closeSession(s)
				}
				continue
			}
			s.leases++
			p.mu.Unlock()

			if err := s.browser.Ping(ctx); err != nil {
				if ctx.Err() != nil {
					p.release(s, "")
					return nil, categorizeError(ctx.Err(), "waiting for browser session")
				}
				slog.Warn("browser session failed health probe, replacing", "session", s.id, "error", err)
				p.release(s, "unhealthy")
				tries++
				continue
			}

			p.mu.Lock()
			s.lastUsed = p.now()
			p.mu.Unlock()
			return &Lease{pool: p, sess: s}, nil
		}

		f := p.inflight
		if f == nil {
			f = &flight{done: make(chan struct{})}
			p.inflight = f
			go p.launch(f)
		}
		p.mu.Unlock()

		select {
		case <-f.done:
			if f.err != nil {
				return nil, f.err
			}
		case <-ctx.Done():
			return nil, categorizeError(ctx.Err(), "waiting for browser launch")
		}
	}
	return nil, models.NewScrapeError(models.ErrCodeBrowserUnavailable, "no healthy browser session after relaunch", nil)
}

// launch runs one creation flight. The result is delivered to every waiter
// of this flight; a failure is never cached, the next Acquire starts anew.
func (p *Pool) launch(f *flight) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.LaunchTimeout)
	defer cancel()

	start := time.Now()
	b, err := p.driver.Launch(ctx)

	p.mu.Lock()
	p.inflight = nil
	switch {
	case err != nil:
		f.err = err
	case p.closed:
		f.err = ErrPoolClosed
	default:
		p.nextID++
		p.launches++
		p.current = &session{id: p.nextID, browser: b, lastUsed: p.now()}
	}
	closed := p.closed
	p.mu.Unlock()

	if err != nil {
		metrics.ObserveBrowserLaunch("error")
		slog.Error("browser launch failed", "error", err, "duration", time.Since(start))
	} else {
		metrics.ObserveBrowserLaunch("ok")
		slog.Info("browser session ready", "duration", time.Since(start))
		if closed {
			_ = b.Close()
		}
	}
	close(f.done)
}

// release drops one lease. A non-empty reason retires the session.
func (p *Pool) release(s *session, reason string) {
	p.mu.Lock()
	s.leases--
	s.lastUsed = p.now()
	closeNow := false
	if reason != "" {
		closeNow = p.retireLocked(s, reason)
	} else if s.retired && s.leases == 0 && !s.closed {
		s.closed = true
		closeNow = true
	}
	p.mu.Unlock()

	if closeNow {
		p.closeSession(s)
	}
}

// retireLocked detaches s from the pool and reports whether the caller must
// close it now (no leases left). p.mu must be held.
func (p *Pool) retireLocked(s *session, reason string) bool {
	if !s.retired {
		s.retired = true
		if p.current == s {
			p.current = nil
		}
		p.rotations++
		metrics.ObserveBrowserRotation(reason)
		slog.Info("browser session retired", "session", s.id, "reason", reason, "leases", s.leases)
	}
	if s.leases == 0 && !s.closed {
		s.closed = true
		return true
	}
	return false
}

func (p *Pool) closeSession(s *session) {
	if err := s.browser.Close(); err != nil {
		slog.Warn("browser session close failed", "session", s.id, "error", err)
	}
}

func (p *Pool) reapLoop() {
	defer p.reaperWG.Done()
	t := time.NewTicker(p.cfg.ReapInterval)
	defer t.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-t.C:
			p.reapIdle()
		}
	}
}

// reapIdle retires the current session if it sat unleased past IdleTimeout.
func (p *Pool) reapIdle() {
	p.mu.Lock()
	s := p.current
	if s == nil || s.leases > 0 || p.now().Sub(s.lastUsed) < p.cfg.IdleTimeout {
		p.mu.Unlock()
		return
	}
	closeNow := p.retireLocked(s, "idle")
	p.mu.Unlock()
	if closeNow {
		p.closeSession(s)
	}
}

// Stats reports the pool state for health endpoints.
func (p *Pool) Stats() models.PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := models.PoolStats{Launches: p.launches, Rotations: p.rotations}
	if p.current != nil {
		st.SessionAlive = true
		st.ActiveLeases = p.current.leases
	}
	return st
}

// ReapIdle runs one idle check immediately.
func (p *Pool) ReapIdle() { p.reapIdle() }

// Close stops the reaper and retires the current session. Outstanding leases
// keep their session until released.
func (p *Pool) Close() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.reaperWG.Wait()

	p.mu.Lock()
	p.closed = true
	s := p.current
	closeNow := false
	if s != nil {
		closeNow = p.retireLocked(s, "shutdown")
	}
	p.mu.Unlock()
	if closeNow {
		p.closeSession(s)
	}
	slog.Info("browser pool closed")
}
