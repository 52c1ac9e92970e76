package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/stackadvisor/internal/cache"
	"github.com/fyrsmithlabs/stackadvisor/internal/config"
	"github.com/fyrsmithlabs/stackadvisor/internal/feedback"
	"github.com/fyrsmithlabs/stackadvisor/internal/knowledge"
	"github.com/fyrsmithlabs/stackadvisor/internal/llm"
	"github.com/fyrsmithlabs/stackadvisor/internal/logging"
	"github.com/fyrsmithlabs/stackadvisor/internal/orchestrator"
	"github.com/fyrsmithlabs/stackadvisor/internal/reranker"
	"github.com/fyrsmithlabs/stackadvisor/internal/search"
	"github.com/fyrsmithlabs/stackadvisor/internal/secrets"
	"github.com/fyrsmithlabs/stackadvisor/internal/stages"
	"github.com/fyrsmithlabs/stackadvisor/internal/store"
	"github.com/fyrsmithlabs/stackadvisor/internal/telemetry"
)

// app holds every initialized dependency of a command.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	tel      *telemetry.Telemetry
	db       *store.DB
	index    search.Index
	corpus   *knowledge.Corpus
	catalog  *knowledge.Catalog
	feedback feedback.Store
	sessions *store.SessionRepo
	orch     *orchestrator.Orchestrator
}

// appParts selects which dependencies newApp builds.
type appParts struct {
	pipeline bool
	index    bool
}

// newApp initializes dependencies in order:
//  1. Loads and validates configuration
//  2. Initializes telemetry and logger
//  3. Opens the database and applies migrations
//  4. Builds the vector index and loads the corpus
//  5. Wires the pipeline stages into the orchestrator
func newApp(ctx context.Context, parts appParts) (*app, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	a := &app{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			a.close(context.Background())
		}
	}()

	a.tel, err = telemetry.New(ctx, telemetry.FromObservability(cfg.Observability, version))
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	logCfg, err := logging.FromObservability(cfg.Observability)
	if err != nil {
		return nil, fmt.Errorf("logging configuration: %w", err)
	}
	a.logger, err = logging.NewLogger(logCfg, a.tel.LoggerProvider())
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	if err := ensureSQLiteDir(cfg.Database); err != nil {
		return nil, err
	}
	a.db, err = store.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	a.sessions = store.NewSessionRepo(a.db)

	a.feedback, err = feedback.New(cfg.Feedback, a.db)
	if err != nil {
		return nil, fmt.Errorf("initializing feedback store: %w", err)
	}

	if parts.index || parts.pipeline {
		if err := a.initIndex(ctx); err != nil {
			return nil, err
		}
	}
	if parts.pipeline {
		if err := a.initPipeline(ctx); err != nil {
			return nil, err
		}
	}

	ok = true
	return a, nil
}

func (a *app) initIndex(ctx context.Context) error {
	var err error
	if a.cfg.Knowledge.Path != "" {
		a.corpus, err = knowledge.Load(a.cfg.Knowledge.Path)
	} else {
		a.corpus, err = knowledge.Default()
	}
	if err != nil {
		return fmt.Errorf("loading reference corpus: %w", err)
	}
	a.catalog = knowledge.NewCatalog(a.corpus)

	embedder, err := search.NewEmbedder(ctx, a.cfg.Embeddings)
	if err != nil {
		return fmt.Errorf("initializing embedder: %w", err)
	}
	index, err := search.New(ctx, a.cfg.VectorStore, embedder, a.logger.Named("search"))
	if err != nil {
		return fmt.Errorf("initializing vector index: %w", err)
	}
	a.index = index
	return nil
}

func (a *app) initPipeline(ctx context.Context) error {
	client, err := llm.New(ctx, a.cfg.LLM)
	if err != nil {
		return fmt.Errorf("initializing llm client: %w", err)
	}
	if a.cfg.Cache.Enabled {
		prompts, err := cache.New(a.cfg.Cache, a.db)
		if err != nil {
			return fmt.Errorf("initializing prompt cache: %w", err)
		}
		client = llm.NewCachedClient(client, prompts, a.logger.Named("llm"),
			llm.WithSharedTimeout(a.cfg.LLM.Timeout))
	}

	policy := a.cfg.Pipeline.WithDefaults()
	pipeline := stages.All(stages.Deps{
		LLM:                 client,
		Searcher:            a.index,
		Catalog:             a.catalog,
		Reranker:            reranker.NewTermOverlap(),
		Policy:              policy,
		Logger:              a.logger.Named("stages"),
		UseCaseCollection:   a.cfg.VectorStore.UseCaseCollection,
		FrameworkCollection: a.cfg.VectorStore.FrameworkCollection,
	})

	scrubber, err := secrets.New(&secrets.Config{
		Enabled:   a.cfg.Scrubbing.Enabled,
		Redaction: a.cfg.Scrubbing.Redaction,
		AllowList: a.cfg.Scrubbing.AllowList,
	})
	if err != nil {
		return fmt.Errorf("initializing secret scrubber: %w", err)
	}

	a.orch, err = orchestrator.New(pipeline, policy,
		orchestrator.WithLogger(a.logger.Named("orchestrator")),
		orchestrator.WithTracer(a.tel.Tracer("stackadvisor.orchestrator")),
		orchestrator.WithArchiver(a.sessions),
		orchestrator.WithScrubber(scrubber),
	)
	if err != nil {
		return fmt.Errorf("initializing orchestrator: %w", err)
	}

	a.logger.Info(ctx, "pipeline initialized",
		zap.String("llm_provider", a.cfg.LLM.Provider),
		zap.String("vectorstore", a.cfg.VectorStore.Provider),
		zap.Bool("prompt_cache", a.cfg.Cache.Enabled),
		zap.Bool("scrubbing", a.cfg.Scrubbing.Enabled),
		zap.Int("iteration_cap", policy.IterationCap))
	return nil
}

func (a *app) collections() knowledge.Collections {
	return knowledge.Collections{
		UseCases:   a.cfg.VectorStore.UseCaseCollection,
		Frameworks: a.cfg.VectorStore.FrameworkCollection,
	}
}

// seed writes the corpus into the index, skipping collections that are
// already complete unless force is set.
func (a *app) seed(ctx context.Context, corpus *knowledge.Corpus, force bool, progress func(int)) (knowledge.SeedResult, error) {
	return knowledge.Seed(ctx, a.index, corpus, a.collections(), knowledge.SeedOptions{
		Force:    force,
		Progress: progress,
		Logger:   a.logger.Named("knowledge"),
	})
}

func (a *app) close(ctx context.Context) {
	var errs []error
	if a.index != nil {
		errs = append(errs, a.index.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if a.tel != nil {
		errs = append(errs, a.tel.Shutdown(ctx))
	}
	if a.logger != nil {
		if err := errors.Join(errs...); err != nil {
			a.logger.Warn(ctx, "shutdown errors", zap.Error(err))
		}
		_ = a.logger.Sync()
	}
}

// ensureSQLiteDir creates the parent directory of a file-backed sqlite DSN.
func ensureSQLiteDir(cfg config.DatabaseConfig) error {
	if cfg.Driver != store.DriverSQLite {
		return nil
	}
	path := strings.TrimPrefix(cfg.DSN, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating database directory %s: %w", dir, err)
	}
	return nil
}
