// Package cache keeps recent search responses in memory so repeated
// lookups within a caller-chosen age skip the registries.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/regscout/models"
)

// entry holds a cached response with its creation timestamp.
type entry struct {
	response  *models.SearchResponse
	createdAt time.Time
}

// Cache is a simple in-memory cache for search responses.
// It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	now        func() time.Time
	stop       chan struct{}
	stopOnce   sync.Once
}

// New creates a new Cache with the given maximum number of entries.
// A background goroutine runs every 5 minutes to evict entries older than
// 1 hour.
func New(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = 500
	}
	c := &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		now:        time.Now,
		stop:       make(chan struct{}),
	}

	go c.cleanupLoop()
	return c
}

// Key derives a cache key from everything that changes a search outcome.
// Source order does not matter.
func Key(req *models.SearchRequest) string {
	srcs := make([]string, len(req.Sources))
	for i, s := range req.Sources {
		srcs[i] = string(s)
	}
	sort.Strings(srcs)

	h := sha256.New()
	for _, part := range []string{
		strings.ToUpper(strings.Join(strings.Fields(req.Query), " ")),
		string(req.SearchType),
		strconv.Itoa(req.Limit),
		strings.Join(srcs, ","),
		strings.ToLower(req.Jurisdiction),
		strconv.FormatBool(req.IncludeInactive),
		strconv.FormatBool(req.CurrentOnly),
	} {
		h.Write([]byte(part))
		h.Write([]byte("|"))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get retrieves a cached response if it exists and is younger than maxAge.
// maxAge is in milliseconds. If maxAge <= 0, no cache lookup is performed.
// The returned response is a copy the caller may annotate.
func (c *Cache) Get(key string, maxAgeMs int) (*models.SearchResponse, bool) {
	if maxAgeMs <= 0 {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	maxAge := time.Duration(maxAgeMs) * time.Millisecond
	if c.now().Sub(e.createdAt) > maxAge {
		return nil, false
	}

	cp := *e.response
	return &cp, true
}

// Set stores a response in the cache. If the cache is at capacity,
// a random entry is evicted to make room.
func (c *Cache) Set(key string, resp *models.SearchResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Evict one random entry if at capacity (map iteration is random in Go).
	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}

	cp := *resp
	cp.CacheStatus = ""
	c.store[key] = &entry{
		response:  &cp,
		createdAt: c.now(),
	}
}

// Len reports the number of cached responses.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Close stops the cleanup goroutine.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// cleanupLoop evicts entries older than 1 hour every 5 minutes.
func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.evictBefore(c.now().Add(-1 * time.Hour))
		case <-c.stop:
			return
		}
	}
}

func (c *Cache) evictBefore(cutoff time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.store {
		if e.createdAt.Before(cutoff) {
			delete(c.store, k)
		}
	}
}
