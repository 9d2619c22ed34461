package browser_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/regscout/browser"
	"github.com/use-agent/regscout/browser/browsertest"
	"github.com/use-agent/regscout/models"
)

func newPool(t *testing.T, d browser.Driver, cfg browser.PoolConfig) *browser.Pool {
	t.Helper()
	p := browser.NewPool(d, cfg)
	t.Cleanup(p.Close)
	return p
}

func TestPoolReusesHealthySession(t *testing.T) {
	d := &browsertest.Driver{}
	p := newPool(t, d, browser.PoolConfig{})

	l1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	l1.Release()

	l2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer l2.Release()

	assert.Equal(t, 1, d.Launches())
	assert.Equal(t, l1.SessionID(), l2.SessionID())
	// Probed before both uses.
	assert.Equal(t, 2, d.Browsers()[0].Pings())
}

func TestPoolConcurrentCreatorsShareOneLaunch(t *testing.T) {
	gate := make(chan struct{})
	d := &browsertest.Driver{Gate: gate}
	p := newPool(t, d, browser.PoolConfig{})

	const n = 10
	var wg sync.WaitGroup
	leases := make([]*browser.Lease, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			leases[i], errs[i] = p.Acquire(context.Background())
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, 1, d.Launches())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, leases[0].SessionID(), leases[i].SessionID())
	}
	assert.Equal(t, n, p.Stats().ActiveLeases)
	for _, l := range leases {
		l.Release()
	}
	assert.Equal(t, 0, p.Stats().ActiveLeases)
}

func TestPoolLaunchFailureIsNotCached(t *testing.T) {
	boom := models.NewScrapeError(models.ErrCodeBrowserUnavailable, "launch failed", errors.New("exec: chrome"))
	d := &browsertest.Driver{LaunchErrs: []error{boom}}
	p := newPool(t, d, browser.PoolConfig{})

	_, err := p.Acquire(context.Background())
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeBrowserUnavailable, models.CodeOf(err, ""))

	l, err := p.Acquire(context.Background())
	require.NoError(t, err)
	l.Release()
	assert.Equal(t, 2, d.Launches())
}

func TestPoolReplacesUnhealthySession(t *testing.T) {
	d := &browsertest.Driver{}
	p := newPool(t, d, browser.PoolConfig{})

	l, err := p.Acquire(context.Background())
	require.NoError(t, err)
	first := l.SessionID()
	l.Release()

	d.Browsers()[0].SetPingErr(errors.New("websocket closed"))

	l, err = p.Acquire(context.Background())
	require.NoError(t, err)
	defer l.Release()

	assert.NotEqual(t, first, l.SessionID())
	assert.Equal(t, 2, d.Launches())
	assert.Equal(t, 1, d.Browsers()[0].Closes())
	assert.Equal(t, int64(1), p.Stats().Rotations)
}

func TestPoolDiscardWaitsForOutstandingLeases(t *testing.T) {
	d := &browsertest.Driver{}
	p := newPool(t, d, browser.PoolConfig{})

	a, err := p.Acquire(context.Background())
	require.NoError(t, err)
	b, err := p.Acquire(context.Background())
	require.NoError(t, err)

	a.Discard()
	old := d.Browsers()[0]
	assert.Equal(t, 0, old.Closes(), "session closed while a lease is outstanding")

	c, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, a.SessionID(), c.SessionID())

	b.Release()
	assert.Equal(t, 1, old.Closes())

	// Idempotent.
	a.Release()
	a.Discard()
	b.Release()
	assert.Equal(t, 1, old.Closes())
	c.Release()
}

func TestPoolIdleSessionIsReaped(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}

	d := &browsertest.Driver{}
	p := newPool(t, d, browser.PoolConfig{IdleTimeout: 5 * time.Minute, ReapInterval: time.Hour, Now: clock})

	l, err := p.Acquire(context.Background())
	require.NoError(t, err)
	l.Release()

	advance(4 * time.Minute)
	p.ReapIdle()
	assert.True(t, p.Stats().SessionAlive)

	advance(2 * time.Minute)
	p.ReapIdle()
	assert.False(t, p.Stats().SessionAlive)
	assert.Equal(t, 1, d.Browsers()[0].Closes())

	l, err = p.Acquire(context.Background())
	require.NoError(t, err)
	l.Release()
	assert.Equal(t, 2, d.Launches())
}

func TestPoolUnavailableDriver(t *testing.T) {
	p := newPool(t, browser.Unavailable{Reason: "no binary"}, browser.PoolConfig{})
	assert.False(t, p.Available())
	_, err := p.Acquire(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, browser.ErrUnavailable)
	assert.Equal(t, models.ErrCodeBrowserUnavailable, models.CodeOf(err, ""))
}

func TestPoolClosedRejectsAcquire(t *testing.T) {
	d := &browsertest.Driver{}
	p := browser.NewPool(d, browser.PoolConfig{})
	l, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Close()

	_, err = p.Acquire(context.Background())
	assert.ErrorIs(t, err, browser.ErrPoolClosed)

	assert.Equal(t, 0, d.Browsers()[0].Closes())
	l.Release()
	assert.Equal(t, 1, d.Browsers()[0].Closes())
}

func TestPoolAcquireHonoursContext(t *testing.T) {
	d := &browsertest.Driver{Gate: make(chan struct{})}
	p := newPool(t, d, browser.PoolConfig{LaunchTimeout: time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Acquire(ctx)
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeNavigationTimeout, models.CodeOf(err, ""))
}
