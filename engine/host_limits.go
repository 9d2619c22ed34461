package engine

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/use-agent/regscout/metrics"
)

// hostEntry holds one host's limiter and when it was last used.
type hostEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// HostLimits keeps a politeness limiter per registry host. Entries unused
// for the TTL are pruned by a background goroutine.
type HostLimits struct {
	mu      sync.Mutex
	entries map[string]*hostEntry
	rps     rate.Limit
	burst   int
	ttl     time.Duration
	done    chan struct{}
	once    sync.Once
}

// NewHostLimits creates a registry allowing rps requests per second per host
// with the given burst and starts the hourly cleanup loop.
func NewHostLimits(rps float64, burst int, ttl time.Duration) *HostLimits {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	hl := &HostLimits{
		entries: make(map[string]*hostEntry),
		rps:     limit,
		burst:   burst,
		ttl:     ttl,
		done:    make(chan struct{}),
	}
	go hl.cleanupLoop()
	return hl
}

// Wait blocks until host may be contacted again or ctx is done.
func (hl *HostLimits) Wait(ctx context.Context, host string) error {
	l := hl.get(host)
	start := time.Now()
	err := l.Wait(ctx)
	metrics.ObserveHostWait(host, time.Since(start))
	return err
}

func (hl *HostLimits) get(host string) *rate.Limiter {
	hl.mu.Lock()
	defer hl.mu.Unlock()
	e, ok := hl.entries[host]
	if !ok {
		e = &hostEntry{limiter: rate.NewLimiter(hl.rps, hl.burst)}
		hl.entries[host] = e
	}
	e.lastUsed = time.Now()
	return e.limiter
}

// Len reports how many hosts are tracked.
func (hl *HostLimits) Len() int {
	hl.mu.Lock()
	defer hl.mu.Unlock()
	return len(hl.entries)
}

// Stop terminates the background cleanup goroutine.
func (hl *HostLimits) Stop() {
	hl.once.Do(func() { close(hl.done) })
}

func (hl *HostLimits) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-hl.done:
			return
		case <-ticker.C:
			hl.prune(time.Now())
		}
	}
}

func (hl *HostLimits) prune(now time.Time) {
	hl.mu.Lock()
	defer hl.mu.Unlock()
	for host, e := range hl.entries {
		if now.Sub(e.lastUsed) > hl.ttl {
			delete(hl.entries, host)
		}
	}
}
