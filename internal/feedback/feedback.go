// Package feedback records requester ratings of finished advisory sessions
// and aggregates them.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/stackadvisor/internal/config"
	"github.com/fyrsmithlabs/stackadvisor/internal/store"
)

var (
	// ErrInvalidRating is returned for ratings outside 1..5.
	ErrInvalidRating = errors.New("rating must be between 1 and 5")

	// ErrNotFound is returned when no feedback exists for a session.
	ErrNotFound = errors.New("feedback not found")
)

// Feedback is one rating of a session.
type Feedback struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Rating    int       `json:"rating"`
	Helpful   bool      `json:"helpful"`
	Comment   string    `json:"comment,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Stats aggregates all feedback.
type Stats struct {
	Total          int     `json:"total"`
	AverageRating  float64 `json:"average_rating"`
	HelpfulCount   int     `json:"helpful_count"`
	UnhelpfulCount int     `json:"unhelpful_count"`
	HelpfulPercent float64 `json:"helpful_percentage"`
}

// Store persists feedback.
type Store interface {
	// Submit validates fb, stamps its ID and timestamp and stores it.
	Submit(ctx context.Context, fb Feedback) (Feedback, error)

	// Stats aggregates every stored entry.
	Stats(ctx context.Context) (Stats, error)

	// Recent returns up to n entries, newest first.
	Recent(ctx context.Context, n int) ([]Feedback, error)

	// ForSession returns the latest entry for a session.
	ForSession(ctx context.Context, sessionID string) (Feedback, error)
}

// New builds the configured backend. db is only used by the sql backend.
func New(cfg config.FeedbackConfig, db *store.DB) (Store, error) {
	switch cfg.Backend {
	case "", "jsonl":
		return NewJSONLStore(cfg.Path), nil
	case "sql":
		if db == nil {
			return nil, fmt.Errorf("sql feedback backend requires a database")
		}
		return NewSQLStore(db), nil
	default:
		return nil, fmt.Errorf("unknown feedback backend %q", cfg.Backend)
	}
}

// prepare validates fb and fills the generated fields.
func prepare(fb Feedback, now time.Time) (Feedback, error) {
	if fb.Rating < 1 || fb.Rating > 5 {
		return Feedback{}, fmt.Errorf("%w: got %d", ErrInvalidRating, fb.Rating)
	}
	fb.Comment = strings.TrimSpace(fb.Comment)
	if fb.ID == "" {
		fb.ID = uuid.NewString()
	}
	if fb.Timestamp.IsZero() {
		fb.Timestamp = now.UTC()
	}
	return fb, nil
}

// Aggregate computes Stats over entries. The average is rounded to two
// decimals and the helpful share to one.
func Aggregate(entries []Feedback) Stats {
	if len(entries) == 0 {
		return Stats{}
	}
	var sum, helpful int
	for _, e := range entries {
		sum += e.Rating
		if e.Helpful {
			helpful++
		}
	}
	n := len(entries)
	return Stats{
		Total:          n,
		AverageRating:  round(float64(sum)/float64(n), 2),
		HelpfulCount:   helpful,
		UnhelpfulCount: n - helpful,
		HelpfulPercent: round(100*float64(helpful)/float64(n), 1),
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
