// Package search provides the semantic search service over the reference
// corpus: an embedded chromem-go index by default, or a remote Qdrant
// collection, fed by Gemini, OpenAI-compatible or local hash embeddings.
package search

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/stackadvisor/internal/config"
	"github.com/fyrsmithlabs/stackadvisor/internal/logging"
)

var (
	// ErrInvalidConfig indicates invalid index or embedder configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates an upsert with no documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

// Metadata keys every indexed document may carry.
const (
	MetaTitle     = "title"
	MetaCategory  = "category"
	MetaTags      = "tags"
	MetaFramework = "framework"
)

var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName checks name is lowercase letters, digits or
// underscores, 1 to 64 characters.
func ValidateCollectionName(name string) error {
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// Hit is one search result. Distance is the cosine distance, so 0 is an
// exact match; similarity is 1 - Distance.
type Hit struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Distance float64           `json:"distance"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Document is one item to index.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// Searcher runs nearest-neighbour queries.
type Searcher interface {
	// Search returns up to k hits ordered by ascending distance. A missing
	// or empty collection yields no hits.
	Search(ctx context.Context, collection, query string, k int) ([]Hit, error)
}

// Index is a Searcher that can also be written to.
type Index interface {
	Searcher

	// Upsert inserts or replaces documents by ID.
	Upsert(ctx context.Context, collection string, docs []Document) error

	// Count returns the number of documents in a collection, 0 if missing.
	Count(ctx context.Context, collection string) (int, error)

	// Reset drops a collection and all its documents.
	Reset(ctx context.Context, collection string) error

	Close() error
}

// New builds the configured index.
func New(ctx context.Context, cfg config.VectorStoreConfig, embedder Embedder, logger *logging.Logger) (Index, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	switch cfg.Provider {
	case "", "chromem":
		return NewChromemIndex(cfg.Chromem, embedder, logger)
	case "qdrant":
		return NewQdrantIndex(ctx, cfg.Qdrant, embedder, logger)
	default:
		return nil, fmt.Errorf("%w: unknown vectorstore provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

func titleOf(id string, meta map[string]string) string {
	if t := meta[MetaTitle]; t != "" {
		return t
	}
	return id
}

func logSearch(ctx context.Context, logger *logging.Logger, backend, collection string, k, hits int) {
	logger.Debug(ctx, "searched collection",
		zap.String("backend", backend),
		zap.String("collection", collection),
		zap.Int("k", k),
		zap.Int("hits", hits),
	)
}
