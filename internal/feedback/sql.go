package feedback

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/stackadvisor/internal/store"
)

// SQLStore keeps feedback in the feedback table.
type SQLStore struct {
	db  *store.DB
	now func() time.Time
}

// NewSQLStore creates a store on db.
func NewSQLStore(db *store.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

func (s *SQLStore) Submit(ctx context.Context, fb Feedback) (Feedback, error) {
	fb, err := prepare(fb, s.now())
	if err != nil {
		return Feedback{}, err
	}
	_, err = s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO feedback (id, session_id, rating, helpful, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`),
		fb.ID, fb.SessionID, fb.Rating, fb.Helpful, fb.Comment, fb.Timestamp,
	)
	if err != nil {
		return Feedback{}, fmt.Errorf("insert feedback: %w", err)
	}
	return fb, nil
}

func (s *SQLStore) Stats(ctx context.Context) (Stats, error) {
	var total, helpful int
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), AVG(rating), COALESCE(SUM(CASE WHEN helpful THEN 1 ELSE 0 END), 0)
		FROM feedback`).Scan(&total, &avg, &helpful)
	if err != nil {
		return Stats{}, fmt.Errorf("feedback stats: %w", err)
	}
	if total == 0 {
		return Stats{}, nil
	}
	return Stats{
		Total:          total,
		AverageRating:  round(avg.Float64, 2),
		HelpfulCount:   helpful,
		UnhelpfulCount: total - helpful,
		HelpfulPercent: round(100*float64(helpful)/float64(total), 1),
	}, nil
}

func (s *SQLStore) Recent(ctx context.Context, n int) ([]Feedback, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(`
		SELECT id, session_id, rating, helpful, comment, created_at
		FROM feedback ORDER BY created_at DESC LIMIT ?`), n)
	if err != nil {
		return nil, fmt.Errorf("recent feedback: %w", err)
	}
	defer rows.Close()

	var out []Feedback
	for rows.Next() {
		var fb Feedback
		if err := rows.Scan(&fb.ID, &fb.SessionID, &fb.Rating, &fb.Helpful, &fb.Comment, &fb.Timestamp); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		out = append(out, fb)
	}
	return out, rows.Err()
}

func (s *SQLStore) ForSession(ctx context.Context, sessionID string) (Feedback, error) {
	var fb Feedback
	err := s.db.QueryRowContext(ctx, s.db.Rebind(`
		SELECT id, session_id, rating, helpful, comment, created_at
		FROM feedback WHERE session_id = ? ORDER BY created_at DESC LIMIT 1`), sessionID).
		Scan(&fb.ID, &fb.SessionID, &fb.Rating, &fb.Helpful, &fb.Comment, &fb.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return Feedback{}, ErrNotFound
	}
	if err != nil {
		return Feedback{}, fmt.Errorf("feedback for session %s: %w", sessionID, err)
	}
	return fb, nil
}
