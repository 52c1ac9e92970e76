package knowledge

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/stackadvisor/internal/logging"
	"github.com/fyrsmithlabs/stackadvisor/internal/search"
)

const seedBatchSize = 5

// Collections names the index collections the corpus is seeded into.
type Collections struct {
	UseCases   string
	Frameworks string
}

// SeedOptions controls Seed.
type SeedOptions struct {
	// Force reseeds collections that already hold the expected count.
	Force bool

	// Progress, if set, is called with the number of documents written by
	// each batch. It may be called from several goroutines.
	Progress func(n int)

	Logger *logging.Logger
}

// SeedResult reports what Seed wrote.
type SeedResult struct {
	UseCases   int      `json:"usecases"`
	Frameworks int      `json:"frameworks"`
	Skipped    []string `json:"skipped,omitempty"`
}

// Total returns the number of documents to write for c, for sizing a
// progress display.
func (c *Corpus) Total() int {
	return len(c.UseCases) + len(c.Frameworks)
}

// Seed writes the corpus into both collections concurrently. A collection
// that already holds exactly the expected number of documents is skipped
// unless opts.Force is set; otherwise it is reset and rewritten.
func Seed(ctx context.Context, idx search.Index, corpus *Corpus, cols Collections, opts SeedOptions) (SeedResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	var (
		result    SeedResult
		skippedUC atomic.Bool
		skippedFW atomic.Bool
		wroteUC   atomic.Int64
		wroteFW   atomic.Int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, skipped, err := seedCollection(gctx, idx, cols.UseCases, corpus.UseCaseDocuments(), opts, logger)
		wroteUC.Store(int64(n))
		skippedUC.Store(skipped)
		return err
	})
	g.Go(func() error {
		n, skipped, err := seedCollection(gctx, idx, cols.Frameworks, corpus.FrameworkDocuments(), opts, logger)
		wroteFW.Store(int64(n))
		skippedFW.Store(skipped)
		return err
	})
	if err := g.Wait(); err != nil {
		return result, err
	}

	result.UseCases = int(wroteUC.Load())
	result.Frameworks = int(wroteFW.Load())
	if skippedUC.Load() {
		result.Skipped = append(result.Skipped, cols.UseCases)
	}
	if skippedFW.Load() {
		result.Skipped = append(result.Skipped, cols.Frameworks)
	}
	return result, nil
}

func seedCollection(ctx context.Context, idx search.Index, collection string, docs []search.Document, opts SeedOptions, logger *logging.Logger) (int, bool, error) {
	count, err := idx.Count(ctx, collection)
	if err != nil {
		return 0, false, fmt.Errorf("counting %s: %w", collection, err)
	}
	if count == len(docs) && !opts.Force {
		logger.Debug(ctx, "collection already seeded", zap.String("collection", collection), zap.Int("count", count))
		if opts.Progress != nil {
			opts.Progress(len(docs))
		}
		return 0, true, nil
	}

	if count > 0 {
		if err := idx.Reset(ctx, collection); err != nil {
			return 0, false, fmt.Errorf("resetting %s: %w", collection, err)
		}
	}

	written := 0
	for start := 0; start < len(docs); start += seedBatchSize {
		end := min(start+seedBatchSize, len(docs))
		if err := idx.Upsert(ctx, collection, docs[start:end]); err != nil {
			return written, false, fmt.Errorf("seeding %s: %w", collection, err)
		}
		written += end - start
		if opts.Progress != nil {
			opts.Progress(end - start)
		}
	}

	logger.Info(ctx, "seeded collection", zap.String("collection", collection), zap.Int("documents", written))
	return written, false, nil
}
