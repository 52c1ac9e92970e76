package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/stackadvisor/internal/store"
)

// SQLStore persists cache entries in the llm_cache table so they survive
// restarts.
type SQLStore struct {
	db      *store.DB
	ttl     time.Duration
	metrics *Metrics
	now     func() time.Time
}

// NewSQLStore creates a store on db. A zero ttl never expires.
func NewSQLStore(db *store.DB, ttl time.Duration) *SQLStore {
	return &SQLStore{db: db, ttl: ttl, metrics: NewMetrics(), now: time.Now}
}

func (s *SQLStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	var createdAt time.Time
	err := s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT value, created_at FROM llm_cache WHERE key = ?`), key).
		Scan(&value, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		s.metrics.miss(backendSQL)
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read cache entry: %w", err)
	}
	if s.ttl > 0 && s.now().After(createdAt.Add(s.ttl)) {
		s.metrics.miss(backendSQL)
		return "", false, nil
	}
	s.metrics.hit(backendSQL)
	return value, true, nil
}

func (s *SQLStore) Put(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO llm_cache (key, value, created_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, created_at = excluded.created_at`),
		key, value, s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}
