// Package http serves advisory sessions and feedback over a JSON API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/stackadvisor/internal/advisor"
	"github.com/fyrsmithlabs/stackadvisor/internal/feedback"
	"github.com/fyrsmithlabs/stackadvisor/internal/logging"
)

// Advisor runs advisory sessions.
type Advisor interface {
	Start(ctx context.Context, rawInput string, answers map[string]any) (*advisor.Record, error)
	Resume(ctx context.Context, rec *advisor.Record, additional string) (*advisor.Record, error)
}

// SessionArchive looks up finished sessions.
type SessionArchive interface {
	Get(ctx context.Context, id string) (*advisor.Record, error)
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Server provides the HTTP endpoints of the advisor.
type Server struct {
	echo     *echo.Echo
	advisor  Advisor
	feedback feedback.Store
	archive  SessionArchive
	sessions *registry
	checks   map[string]HealthCheck
	metrics  *HTTPMetrics
	logger   *logging.Logger
	config   *Config

	// resuming holds session IDs with a resume in flight.
	mu       sync.Mutex
	resuming map[string]bool
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
	// RegistrySize bounds the in-memory session registry.
	RegistrySize int
}

// Option configures a Server.
type Option func(*Server)

// WithArchive sets the lookup used for sessions no longer held in memory.
func WithArchive(a SessionArchive) Option {
	return func(s *Server) { s.archive = a }
}

// WithHealthCheck adds a named dependency check to GET /health.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(s *Server) { s.checks[name] = check }
}

// WithMeter records request metrics on meter instead of the global provider.
func WithMeter(meter metric.Meter) Option {
	return func(s *Server) { s.metrics = NewHTTPMetrics(meter, s.logger) }
}

// NewServer creates a new HTTP server.
func NewServer(adv Advisor, fb feedback.Store, logger *logging.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if adv == nil {
		return nil, fmt.Errorf("advisor cannot be nil")
	}
	if fb == nil {
		return nil, fmt.Errorf("feedback store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8080,
		}
	}

	sessions, err := newRegistry(cfg.RegistrySize)
	if err != nil {
		return nil, fmt.Errorf("creating session registry: %w", err)
	}

	s := &Server{
		advisor:  adv,
		feedback: fb,
		sessions: sessions,
		checks:   make(map[string]HealthCheck),
		logger:   logger,
		config:   cfg,
		resuming: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewHTTPMetrics(nil, logger)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestLogger)
	e.Use(s.metrics.MetricsMiddleware())

	s.echo = e
	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/sessions", s.handleStartSession)
	v1.GET("/sessions/:id", s.handleGetSession)
	v1.POST("/sessions/:id/resume", s.handleResumeSession)
	v1.GET("/sessions/:id/feedback", s.handleSessionFeedback)
	v1.POST("/feedback", s.handleSubmitFeedback)
	v1.GET("/feedback", s.handleRecentFeedback)
	v1.GET("/feedback/stats", s.handleFeedbackStats)
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		req := c.Request()

		ctx := req.Context()
		if id := c.Response().Header().Get(echo.HeaderXRequestID); logging.ValidID(id) {
			ctx = logging.WithRequestID(ctx, id)
		}
		ctx = logging.WithLogger(ctx, s.logger)
		c.SetRequest(req.WithContext(ctx))

		err := next(c)

		s.logger.Info(ctx, "http request",
			zap.String("method", req.Method),
			zap.String("uri", req.RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		)
		return err
	}
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services,omitempty"`
}

// handleHealth runs the registered dependency checks.
func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok"}
	code := http.StatusOK
	if len(s.checks) > 0 {
		resp.Services = make(map[string]string, len(s.checks))
	}
	for name, check := range s.checks {
		if err := check(c.Request().Context()); err != nil {
			resp.Services[name] = err.Error()
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Services[name] = "ok"
	}
	return c.JSON(code, resp)
}

// pipelineError maps an orchestrator error to an HTTP error, logging with
// the request-scoped logger.
func pipelineError(ctx context.Context, err error) error {
	logger := logging.FromContext(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "request cancelled")
	case errors.Is(err, advisor.ErrPrecondition):
		logger.Error(ctx, "pipeline invariant violated", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "pipeline invariant violated").SetInternal(err)
	default:
		logger.Error(ctx, "session failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "session failed").SetInternal(err)
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
