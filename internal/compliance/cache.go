package compliance

import (
	"context"
	"sync"
	"time"
)

// DefaultCacheTTL bounds how stale a threshold table may be within a batch
const DefaultCacheTTL = 60 * time.Second

// Cache stores parish threshold tables between lookups
type Cache interface {
	Get(ctx context.Context, parishID int64) (*ParishThresholds, bool)
	Set(ctx context.Context, parishID int64, thresholds *ParishThresholds)
	Invalidate(ctx context.Context, parishID int64)
	InvalidateAll(ctx context.Context)
}

// NoopCache never stores anything
type NoopCache struct{}

func (NoopCache) Get(context.Context, int64) (*ParishThresholds, bool) { return nil, false }
func (NoopCache) Set(context.Context, int64, *ParishThresholds)        {}
func (NoopCache) Invalidate(context.Context, int64)                    {}
func (NoopCache) InvalidateAll(context.Context)                        {}

type cacheEntry struct {
	thresholds *ParishThresholds
	expiresAt  time.Time
}

// MemoryCache is an in-process TTL cache
type MemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[int64]cacheEntry
}

// NewMemoryCache creates an in-process cache. A non-positive ttl uses DefaultCacheTTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[int64]cacheEntry),
	}
}

// Ensure MemoryCache implements Cache
var _ Cache = (*MemoryCache)(nil)

func (c *MemoryCache) Get(_ context.Context, parishID int64) (*ParishThresholds, bool) {
	c.mu.RLock()
	entry, ok := c.entries[parishID]
	c.mu.RUnlock()
	if !ok || !c.now().Before(entry.expiresAt) {
		return nil, false
	}
	return entry.thresholds, true
}

func (c *MemoryCache) Set(_ context.Context, parishID int64, thresholds *ParishThresholds) {
	c.mu.Lock()
	c.entries[parishID] = cacheEntry{thresholds: thresholds, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *MemoryCache) Invalidate(_ context.Context, parishID int64) {
	c.mu.Lock()
	delete(c.entries, parishID)
	c.mu.Unlock()
}

func (c *MemoryCache) InvalidateAll(_ context.Context) {
	c.mu.Lock()
	c.entries = make(map[int64]cacheEntry)
	c.mu.Unlock()
}
