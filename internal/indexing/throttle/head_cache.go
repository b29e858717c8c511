package throttle

import (
	"context"
	"sync"
	"time"
)

// HeadSource returns the current chain head number.
type HeadSource interface {
	LatestBlock(ctx context.Context) (uint64, error)
}

// HeadCache caches the chain head for a short TTL so tight poll loops do not
// hit the node on every round.
type HeadCache struct {
	source HeadSource
	ttl    time.Duration

	mu       sync.RWMutex
	cached   uint64
	cachedAt time.Time
}

// NewHeadCache creates a head cache with the given TTL.
func NewHeadCache(source HeadSource, ttl time.Duration) *HeadCache {
	return &HeadCache{
		source: source,
		ttl:    ttl,
	}
}

// LatestBlock returns the cached head if within TTL, otherwise fetches fresh.
func (c *HeadCache) LatestBlock(ctx context.Context) (uint64, error) {
	c.mu.RLock()
	if time.Since(c.cachedAt) < c.ttl && c.cached > 0 {
		cached := c.cached
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	head, err := c.source.LatestBlock(ctx)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.cached = head
	c.cachedAt = time.Now()
	c.mu.Unlock()

	return head, nil
}

// Invalidate forces the next call to fetch fresh data.
func (c *HeadCache) Invalidate() {
	c.mu.Lock()
	c.cachedAt = time.Time{}
	c.mu.Unlock()
}
