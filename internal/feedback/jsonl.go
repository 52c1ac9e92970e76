package feedback

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// JSONLStore appends one JSON object per line to a file.
type JSONLStore struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewJSONLStore creates a store writing to path. The file and its parent
// directory are created on first Submit.
func NewJSONLStore(path string) *JSONLStore {
	return &JSONLStore{path: path, now: time.Now}
}

func (s *JSONLStore) Submit(ctx context.Context, fb Feedback) (Feedback, error) {
	if err := ctx.Err(); err != nil {
		return Feedback{}, err
	}
	fb, err := prepare(fb, s.now())
	if err != nil {
		return Feedback{}, err
	}
	line, err := json.Marshal(fb)
	if err != nil {
		return Feedback{}, fmt.Errorf("encoding feedback: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return Feedback{}, fmt.Errorf("creating feedback directory: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return Feedback{}, fmt.Errorf("opening feedback file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return Feedback{}, fmt.Errorf("writing feedback: %w", err)
	}
	return fb, nil
}

func (s *JSONLStore) Stats(ctx context.Context) (Stats, error) {
	entries, err := s.readAll(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Aggregate(entries), nil
}

func (s *JSONLStore) Recent(ctx context.Context, n int) ([]Feedback, error) {
	entries, err := s.readAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Feedback, 0, min(n, len(entries)))
	for i := len(entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, entries[i])
	}
	return out, nil
}

func (s *JSONLStore) ForSession(ctx context.Context, sessionID string) (Feedback, error) {
	entries, err := s.readAll(ctx)
	if err != nil {
		return Feedback{}, err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].SessionID == sessionID {
			return entries[i], nil
		}
	}
	return Feedback{}, ErrNotFound
}

// readAll returns every parseable entry in file order. Corrupt lines are
// skipped.
func (s *JSONLStore) readAll(ctx context.Context) ([]Feedback, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening feedback file: %w", err)
	}
	defer f.Close()

	var entries []Feedback
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var fb Feedback
		if err := json.Unmarshal(scanner.Bytes(), &fb); err != nil {
			continue
		}
		entries = append(entries, fb)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading feedback file: %w", err)
	}
	return entries, nil
}
