package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryStore is a thread-safe in-memory cache with TTL and LRU eviction.
type MemoryStore struct {
	entries *expirable.LRU[string, string]
	metrics *Metrics
}

// NewMemoryStore creates a store whose entries live for ttl. At maxEntries
// the least recently used entry is evicted. A zero ttl never expires.
func NewMemoryStore(ttl time.Duration, maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &MemoryStore{
		entries: expirable.NewLRU[string, string](maxEntries, nil, ttl),
		metrics: NewMetrics(),
	}
}

func (c *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	v, ok := c.entries.Get(key)
	if !ok {
		c.metrics.size(backendMemory, c.entries.Len())
		c.metrics.miss(backendMemory)
		return "", false, nil
	}
	c.metrics.hit(backendMemory)
	return v, true, nil
}

func (c *MemoryStore) Put(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.entries.Add(key, value)
	c.metrics.size(backendMemory, c.entries.Len())
	return nil
}

// Len returns the number of entries, including expired ones not yet evicted.
func (c *MemoryStore) Len() int {
	return c.entries.Len()
}
