package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/stackadvisor/internal/advisor"
)

// SessionRepo archives advisory records as JSON.
type SessionRepo struct {
	db  *DB
	now func() time.Time
}

// NewSessionRepo creates a session archive on db.
func NewSessionRepo(db *DB) *SessionRepo {
	return &SessionRepo{db: db, now: time.Now}
}

// Save inserts or replaces the record keyed by its SessionID.
func (r *SessionRepo) Save(ctx context.Context, rec *advisor.Record) error {
	if rec == nil || rec.SessionID == "" {
		return fmt.Errorf("save session: missing session id")
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", rec.SessionID, err)
	}

	var decision, top string
	var capReached bool
	if rec.Decision != nil {
		decision = string(rec.Decision.Kind)
	}
	if rec.Recommendation != nil {
		top = rec.Recommendation.Top.Name
		capReached = rec.Recommendation.CapReached
	}

	now := r.now().UTC()
	_, err = r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO sessions (id, raw_input, decision, top_candidate, iteration_count, cap_reached, record, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			raw_input = excluded.raw_input,
			decision = excluded.decision,
			top_candidate = excluded.top_candidate,
			iteration_count = excluded.iteration_count,
			cap_reached = excluded.cap_reached,
			record = excluded.record,
			updated_at = excluded.updated_at`),
		rec.SessionID, rec.RawInput, decision, top, rec.IterationCount, capReached, string(payload), now, now,
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", rec.SessionID, err)
	}
	return nil
}

// Get loads an archived record. It returns ErrNotFound for unknown ids.
func (r *SessionRepo) Get(ctx context.Context, id string) (*advisor.Record, error) {
	var payload string
	err := r.db.QueryRowContext(ctx, r.db.Rebind(`SELECT record FROM sessions WHERE id = ?`), id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}

	var rec advisor.Record
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &rec, nil
}
