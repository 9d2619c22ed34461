package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/use-agent/regscout/config"
	"github.com/use-agent/regscout/models"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyLimiter hands out one token bucket per identity. Entries unused for an
// hour are evicted every 5 minutes.
type KeyLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rps      rate.Limit
	burst    int
	now      func() time.Time
}

// NewKeyLimiter starts the eviction goroutine; it runs for the process
// lifetime.
func NewKeyLimiter(cfg config.RateLimitConfig) *KeyLimiter {
	rps := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		rps = rate.Inf
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	l := &KeyLimiter{
		limiters: make(map[string]*limiterEntry),
		rps:      rps,
		burst:    burst,
		now:      time.Now,
	}
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			l.evictBefore(l.now().Add(-1 * time.Hour))
		}
	}()
	return l
}

// Reserve takes a token for identity. When none is available it returns
// false and how long the caller should wait.
func (l *KeyLimiter) Reserve(identity string) (bool, time.Duration) {
	l.mu.Lock()
	entry, ok := l.limiters[identity]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[identity] = entry
	}
	now := l.now()
	entry.lastSeen = now
	l.mu.Unlock()

	r := entry.limiter.ReserveN(now, 1)
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d
	}
	return true, 0
}

func (l *KeyLimiter) evictBefore(cutoff time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, entry := range l.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(l.limiters, id)
		}
	}
}

// RateLimit returns per-identity (API key or IP) token-bucket rate limiting
// middleware powered by golang.org/x/time/rate. Rejections carry a
// Retry-After header in whole seconds.
func RateLimit(l *KeyLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Prefer API key as identity (set by auth middleware); fall back to IP.
		identity := c.GetString(APIKeyContext)
		if identity == "" {
			identity = c.ClientIP()
		}

		if ok, wait := l.Reserve(identity); !ok {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			abort(c, http.StatusTooManyRequests, models.ErrCodeRateLimited, "rate limit exceeded, please slow down")
			return
		}

		c.Next()
	}
}
