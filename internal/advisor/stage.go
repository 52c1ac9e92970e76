package advisor

import (
	"context"
	"errors"
	"fmt"
)

// ErrPrecondition marks a stage invoked without its prerequisite record
// sections. It is a programming error and aborts the session.
var ErrPrecondition = errors.New("stage precondition violated")

// Stage is one step of the recommendation pipeline.
//
// Run reads the record and returns an Update; it must not mutate rec. The
// context deadline is the stage's time budget. When Run fails, times out or
// returns nothing usable, the caller merges Fallback instead.
type Stage interface {
	// Name returns the stage identifier.
	Name() StageName

	// Requires lists the record sections that must be populated.
	Requires() []Field

	// Run executes the stage.
	Run(ctx context.Context, rec Record, adj Adjustments) (Update, error)

	// Fallback returns the deterministic substitute for a failed run.
	Fallback(rec Record, cause error) Update
}

// CheckPreconditions returns ErrPrecondition if rec lacks a section s needs.
func CheckPreconditions(s Stage, rec Record) error {
	for _, f := range s.Requires() {
		if !rec.Has(f) {
			return fmt.Errorf("%w: %s requires %s", ErrPrecondition, s.Name(), f)
		}
	}
	return nil
}
