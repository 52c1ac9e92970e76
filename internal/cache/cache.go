// Package cache stores text service responses keyed by prompt digest.
//
// Two backends exist: an in-memory store with TTL and LRU eviction, and a
// SQL store on the llm_cache table. Only successful responses are cached;
// callers never Put an error.
//
// Example usage:
//
//	c := cache.NewMemoryStore(24*time.Hour, 1000)
//	_ = c.Put(ctx, cache.Key(prompt), response)
//	v, ok, err := c.Get(ctx, cache.Key(prompt))
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/fyrsmithlabs/stackadvisor/internal/config"
	"github.com/fyrsmithlabs/stackadvisor/internal/store"
)

// Store is a string key/value cache.
type Store interface {
	// Get returns the cached value and whether it was present and fresh.
	Get(ctx context.Context, key string) (string, bool, error)

	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key, value string) error
}

// Key returns the cache key for a prompt: the first 16 hex characters of
// its MD5 digest.
func Key(prompt string) string {
	sum := md5.Sum([]byte(prompt))
	return hex.EncodeToString(sum[:])[:16]
}

// New builds the configured backend. db is only used by the sql backend.
func New(cfg config.CacheConfig, db *store.DB) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(cfg.TTL, cfg.MaxEntries), nil
	case "sql":
		if db == nil {
			return nil, fmt.Errorf("sql cache backend requires a database")
		}
		return NewSQLStore(db, cfg.TTL), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
