package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpserver "github.com/fyrsmithlabs/stackadvisor/internal/http"
	"github.com/fyrsmithlabs/stackadvisor/internal/knowledge"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the advisor HTTP server",
		Long: `Start the advisor HTTP server.

The reference corpus is seeded on start unless knowledge.seed_on_start is
false. With knowledge.watch and knowledge.path set, edits to the corpus file
are picked up and re-seeded without a restart.

Examples:
  # Start with defaults
  advisor serve

  # Configure via environment
  STACKADVISOR_SERVER_HTTP_PORT=9090 STACKADVISOR_LLM_PROVIDER=gemini advisor serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx)
		},
	}
}

// runServe starts the server and blocks until ctx is cancelled.
func runServe(ctx context.Context) error {
	a, err := newApp(ctx, appParts{pipeline: true})
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	if a.cfg.Knowledge.SeedOnStart {
		res, err := a.seed(ctx, a.corpus, false, nil)
		if err != nil {
			return fmt.Errorf("seeding reference corpus: %w", err)
		}
		a.logger.Info(ctx, "reference corpus ready",
			zap.Int("usecases", res.UseCases),
			zap.Int("frameworks", res.Frameworks),
			zap.Strings("skipped", res.Skipped))
	}

	if a.cfg.Knowledge.Watch && a.cfg.Knowledge.Path != "" {
		go a.watchCorpus(ctx)
	}

	srv, err := httpserver.NewServer(a.orch, a.feedback, a.logger.Named("http"),
		&httpserver.Config{Host: a.cfg.Server.Host, Port: a.cfg.Server.Port},
		httpserver.WithArchive(a.sessions),
		httpserver.WithMeter(a.tel.Meter("github.com/fyrsmithlabs/stackadvisor/internal/http")),
		httpserver.WithHealthCheck("database", a.db.PingContext),
		httpserver.WithHealthCheck("telemetry", func(context.Context) error {
			if h := a.tel.Health(); !h.Healthy {
				return errors.New("telemetry unhealthy")
			}
			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	a.logger.Info(shutdownCtx, "server shutdown complete")
	return nil
}

// watchCorpus swaps the live catalog and re-seeds the index whenever the
// corpus file changes.
func (a *app) watchCorpus(ctx context.Context) {
	err := knowledge.Watch(ctx, a.cfg.Knowledge.Path, func(c *knowledge.Corpus) {
		a.catalog.Swap(c)
		res, err := a.seed(ctx, c, true, nil)
		if err != nil {
			a.logger.Error(ctx, "re-seeding reference corpus failed", zap.Error(err))
			return
		}
		a.logger.Info(ctx, "reference corpus reloaded",
			zap.Int("usecases", res.UseCases),
			zap.Int("frameworks", res.Frameworks))
	}, a.logger.Named("knowledge"))
	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error(ctx, "corpus watcher stopped", zap.Error(err))
	}
}
