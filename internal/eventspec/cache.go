// internal/eventspec/cache.go
package eventspec

/*
 * In-memory cache of tracking-plan responses.
 *
 * Entries are keyed by apiKey:streamId:eventName and expire on whichever
 * comes first:
 *   - age greater than TTL since the entry was stored
 *   - MaxEventCount hits on the entry
 *
 * A global hit counter runs across all entries. When it reaches
 * MaxEventCount the least recently accessed entry is evicted and the counter
 * resets, which bounds the cache without a fixed capacity.
 *
 * A nil spec is a valid entry: it records that the backend has no spec for
 * the event, so callers do not refetch until the entry expires.
 */

import (
	"log/slog"
	"sync"
	"time"

	"github.com/solatis/schemainspector/internal/metrics"
	"github.com/solatis/schemainspector/internal/types"
)

const (
	// TTL is the maximum age of a cache entry.
	TTL = 60 * time.Second

	// MaxEventCount bounds both per-entry hits and the global sweep counter.
	MaxEventCount = 50
)

type cacheEntry struct {
	spec         *types.EventSpecResponse
	storedAt     time.Time
	lastAccessed time.Time
	eventCount   int
}

// Cache stores fetched specs. Safe for concurrent use.
type Cache struct {
	mu          sync.Mutex
	entries     map[string]*cacheEntry
	globalCount int
	now         func() time.Time
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithCacheClock injects the time source, for tests.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// WithCacheLogger logs hits and clears at debug level.
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCacheMetrics records lookups and evictions.
func WithCacheMetrics(m *metrics.Metrics) CacheOption {
	return func(c *Cache) { c.metrics = m }
}

// NewCache returns an empty cache.
func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		entries: make(map[string]*cacheEntry),
		now:     time.Now,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key builds the cache and coalescing key for an event.
func Key(apiKey, streamID, eventName string) string {
	return apiKey + ":" + streamID + ":" + eventName
}

// Get returns the cached spec and whether a live entry exists.
// A live entry may hold a nil spec. Expired entries are removed and reported
// as absent.
func (c *Cache) Get(apiKey, streamID, eventName string) (*types.EventSpecResponse, bool) {
	key := Key(apiKey, streamID, eventName)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.metrics.CacheLookup(metrics.CacheMiss)
		return nil, false
	}

	now := c.now()
	if reason, expired := c.expired(entry, now); expired {
		delete(c.entries, key)
		c.metrics.CacheLookup(metrics.CacheExpired)
		c.metrics.CacheEvicted(reason, 1)
		return nil, false
	}

	c.logger.Debug("spec cache hit", "key", key)
	c.metrics.CacheLookup(metrics.CacheHit)

	entry.lastAccessed = now
	entry.eventCount++
	c.globalCount++

	spec := entry.spec
	if c.globalCount >= MaxEventCount {
		c.evictOldest()
		c.globalCount = 0
	}
	return spec, true
}

// Set stores spec for the event, replacing any existing entry.
func (c *Cache) Set(apiKey, streamID, eventName string, spec *types.EventSpecResponse) {
	key := Key(apiKey, streamID, eventName)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.entries[key] = &cacheEntry{
		spec:         spec,
		storedAt:     now,
		lastAccessed: now,
	}
}

// Contains reports whether a live entry exists without counting a hit.
func (c *Cache) Contains(apiKey, streamID, eventName string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[Key(apiKey, streamID, eventName)]
	if !ok {
		return false
	}
	_, expired := c.expired(entry, c.now())
	return !expired
}

// Clear removes every entry and resets the global counter.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.metrics.CacheEvicted(metrics.EvictBranch, len(c.entries))
	c.entries = make(map[string]*cacheEntry)
	c.globalCount = 0
	c.logger.Debug("spec cache cleared")
}

// Size returns the number of stored entries, expired ones included.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// expired reports whether entry should be dropped and why. Caller holds mu.
func (c *Cache) expired(entry *cacheEntry, now time.Time) (string, bool) {
	if now.Sub(entry.storedAt) > TTL {
		return metrics.EvictTTL, true
	}
	if entry.eventCount >= MaxEventCount {
		return metrics.EvictHitCap, true
	}
	return "", false
}

// evictOldest drops the entry with the oldest lastAccessed. Caller holds mu.
func (c *Cache) evictOldest() {
	var (
		oldestKey string
		oldest    time.Time
		found     bool
	)
	for key, entry := range c.entries {
		if !found || entry.lastAccessed.Before(oldest) {
			oldestKey, oldest, found = key, entry.lastAccessed, true
		}
	}
	if found {
		delete(c.entries, oldestKey)
		c.metrics.CacheEvicted(metrics.EvictLRU, 1)
	}
}
