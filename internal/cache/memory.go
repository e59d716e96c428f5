// Package cache provides the in-process tier of the advice cache.
package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/diabetes-risk-fusion/internal/domain"
)

const (
	DefaultMaxItems = 512
	DefaultTTL      = time.Hour
)

// Stats represents cache performance statistics
type Stats struct {
	Hits    uint64        `json:"hits"`
	Misses  uint64        `json:"misses"`
	Entries int           `json:"entries"`
	HitRate float64       `json:"hit_rate"`
	TTL     time.Duration `json:"ttl"`
}

// MemoryCache is a size-bounded LRU with a fixed entry lifetime. It is safe
// for concurrent use.
type MemoryCache struct {
	lru    *expirable.LRU[string, *domain.Advice]
	ttl    time.Duration
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewMemoryCache creates a cache holding at most maxItems entries for ttl each.
func NewMemoryCache(maxItems int, ttl time.Duration) *MemoryCache {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{
		lru: expirable.NewLRU[string, *domain.Advice](maxItems, nil, ttl),
		ttl: ttl,
	}
}

// GetAdvice never returns an error.
func (c *MemoryCache) GetAdvice(_ context.Context, key string) (*domain.Advice, bool, error) {
	advice, ok := c.lru.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false, nil
	}
	c.hits.Add(1)
	return advice, true, nil
}

// SetAdvice stores advice. Entries share the cache-wide lifetime; the ttl
// argument is ignored.
func (c *MemoryCache) SetAdvice(_ context.Context, key string, advice *domain.Advice, _ time.Duration) error {
	c.lru.Add(key, advice)
	return nil
}

// Purge drops every entry and resets the counters.
func (c *MemoryCache) Purge() {
	c.lru.Purge()
	c.hits.Store(0)
	c.misses.Store(0)
}

// InvalidateAll drops every entry and reports how many were removed. The
// counters are kept.
func (c *MemoryCache) InvalidateAll(_ context.Context) (int, error) {
	n := c.lru.Len()
	c.lru.Purge()
	return n, nil
}

// Stats returns a snapshot of the counters.
func (c *MemoryCache) Stats() Stats {
	hits, misses := c.hits.Load(), c.misses.Load()
	s := Stats{Hits: hits, Misses: misses, Entries: c.lru.Len(), TTL: c.ttl}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s
}
