package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/stackadvisor/internal/advisor"
	"github.com/fyrsmithlabs/stackadvisor/internal/config"
	"github.com/fyrsmithlabs/stackadvisor/internal/feedback"
	"github.com/fyrsmithlabs/stackadvisor/internal/logging"
	"github.com/fyrsmithlabs/stackadvisor/internal/orchestrator"
	"github.com/fyrsmithlabs/stackadvisor/internal/store"
	"github.com/fyrsmithlabs/stackadvisor/internal/telemetry"
)

// fakeAdvisor suspends on the first call when ask is set and completes on
// resume.
type fakeAdvisor struct {
	mu      sync.Mutex
	ask     bool
	err     error
	started []string
	block   chan struct{}
	seq     int
}

func (f *fakeAdvisor) Start(_ context.Context, raw string, answers map[string]any) (*advisor.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.started = append(f.started, raw)
	f.seq++

	rec := advisor.NewRecord(raw, answers)
	rec.SessionID = fmt.Sprintf("session-%d", f.seq)
	if f.ask {
		rec.Apply(advisor.DecisionUpdate{Decision: advisor.Decision{Kind: advisor.DecisionAskUser, Question: "Could you clarify: budget?"}})
		return rec, nil
	}
	rec.Apply(advisor.RecommendationUpdate{Recommendation: advisor.Recommendation{Top: advisor.Candidate{Name: "LangChain", Score: 0.9}}})
	rec.Apply(advisor.DecisionUpdate{Decision: advisor.Decision{Kind: advisor.DecisionContinueEnd, Reasoning: "ok"}})
	return rec, nil
}

func (f *fakeAdvisor) Resume(_ context.Context, rec *advisor.Record, additional string) (*advisor.Record, error) {
	if f.block != nil {
		<-f.block
	}
	if !rec.Suspended() {
		return nil, orchestrator.ErrNotSuspended
	}
	next := *rec
	next.RawInput += "\n" + additional
	next.Apply(advisor.DecisionUpdate{Decision: advisor.Decision{Kind: advisor.DecisionContinueEnd, Reasoning: "ok"}})
	return &next, nil
}

type testServer struct {
	*Server
	advisor  *fakeAdvisor
	logger   *logging.TestLogger
	feedback *feedback.JSONLStore
}

func setupTestServer(t *testing.T, opts ...Option) *testServer {
	t.Helper()
	adv := &fakeAdvisor{}
	tl := logging.NewTestLogger()
	fb := feedback.NewJSONLStore(filepath.Join(t.TempDir(), "feedback.jsonl"))

	opts = append([]Option{WithMeter(telemetry.NewTestTelemetry().Meter("test"))}, opts...)
	s, err := NewServer(adv, fb, tl.Logger, nil, opts...)
	require.NoError(t, err)
	return &testServer{Server: s, advisor: adv, logger: tl, feedback: fb}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestNewServer(t *testing.T) {
	fb := feedback.NewJSONLStore(filepath.Join(t.TempDir(), "fb.jsonl"))

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		s, err := NewServer(&fakeAdvisor{}, fb, logging.Nop(), nil)
		require.NoError(t, err)
		assert.Equal(t, "localhost", s.config.Host)
		assert.Equal(t, 8080, s.config.Port)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(&fakeAdvisor{}, fb, nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("returns error when advisor is nil", func(t *testing.T) {
		_, err := NewServer(nil, fb, logging.Nop(), nil)
		assert.Error(t, err)
	})

	t.Run("returns error when feedback store is nil", func(t *testing.T) {
		_, err := NewServer(&fakeAdvisor{}, nil, logging.Nop(), nil)
		assert.Error(t, err)
	})
}

func TestHandleHealth(t *testing.T) {
	t.Run("no checks", func(t *testing.T) {
		s := setupTestServer(t)
		rec := s.do(t, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", decode[HealthResponse](t, rec).Status)
	})

	t.Run("degraded dependency", func(t *testing.T) {
		s := setupTestServer(t,
			WithHealthCheck("database", func(context.Context) error { return nil }),
			WithHealthCheck("vectorstore", func(context.Context) error { return errors.New("unreachable") }),
		)
		rec := s.do(t, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		resp := decode[HealthResponse](t, rec)
		assert.Equal(t, "degraded", resp.Status)
		assert.Equal(t, map[string]string{"database": "ok", "vectorstore": "unreachable"}, resp.Services)
	})
}

func TestHandleMetrics(t *testing.T) {
	s := setupTestServer(t)
	rec := s.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestStartSession(t *testing.T) {
	t.Run("completed session", func(t *testing.T) {
		s := setupTestServer(t)
		rec := s.do(t, http.MethodPost, "/api/v1/sessions", StartSessionRequest{
			Input:   "support bot over our wiki",
			Answers: map[string]any{"team_size": 3},
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		resp := decode[SessionResponse](t, rec)
		assert.Equal(t, "session-1", resp.SessionID)
		assert.Equal(t, StatusCompleted, resp.Status)
		require.NotNil(t, resp.Record.Recommendation)
		assert.Equal(t, "LangChain", resp.Record.Recommendation.Top.Name)
		assert.Equal(t, 1, s.sessions.len())

		s.logger.AssertLogged(t, zapcore.InfoLevel, "http request")
		s.logger.AssertField(t, "http request", "status", int64(http.StatusCreated))
	})

	t.Run("suspended session carries the question", func(t *testing.T) {
		s := setupTestServer(t)
		s.advisor.ask = true
		rec := s.do(t, http.MethodPost, "/api/v1/sessions", StartSessionRequest{Input: "bot"})
		require.Equal(t, http.StatusCreated, rec.Code)

		resp := decode[SessionResponse](t, rec)
		assert.Equal(t, StatusAwaitingInput, resp.Status)
		assert.Equal(t, "Could you clarify: budget?", resp.Question)
	})

	t.Run("input is required", func(t *testing.T) {
		s := setupTestServer(t)
		rec := s.do(t, http.MethodPost, "/api/v1/sessions", StartSessionRequest{Input: "   "})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, s.advisor.started)
	})

	t.Run("invalid body", func(t *testing.T) {
		s := setupTestServer(t)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", bytes.NewBufferString("{"))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		s.echo.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("precondition violation maps to 500", func(t *testing.T) {
		s := setupTestServer(t)
		s.advisor.err = fmt.Errorf("stage synthesis: %w", advisor.ErrPrecondition)
		rec := s.do(t, http.MethodPost, "/api/v1/sessions", StartSessionRequest{Input: "bot"})
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "pipeline invariant violated")
		s.logger.AssertLogged(t, zapcore.ErrorLevel, "pipeline invariant violated")
	})
}

func TestResumeSession(t *testing.T) {
	s := setupTestServer(t)
	s.advisor.ask = true

	start := decode[SessionResponse](t, s.do(t, http.MethodPost, "/api/v1/sessions", StartSessionRequest{Input: "bot"}))
	require.Equal(t, StatusAwaitingInput, start.Status)

	path := "/api/v1/sessions/" + start.SessionID + "/resume"
	rec := s.do(t, http.MethodPost, path, ResumeSessionRequest{Input: "budget is 10k"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[SessionResponse](t, rec)
	assert.Equal(t, StatusCompleted, resp.Status)
	assert.Equal(t, "bot\nbudget is 10k", resp.Record.RawInput)

	// The registry now holds the completed record.
	got := decode[SessionResponse](t, s.do(t, http.MethodGet, "/api/v1/sessions/"+start.SessionID, nil))
	assert.Equal(t, StatusCompleted, got.Status)

	rec = s.do(t, http.MethodPost, path, ResumeSessionRequest{Input: "again"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/sessions/unknown/resume", ResumeSessionRequest{Input: "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, path, ResumeSessionRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResumeSession_ConcurrentResumeConflicts(t *testing.T) {
	s := setupTestServer(t)
	s.advisor.ask = true
	start := decode[SessionResponse](t, s.do(t, http.MethodPost, "/api/v1/sessions", StartSessionRequest{Input: "bot"}))

	s.advisor.block = make(chan struct{})
	path := "/api/v1/sessions/" + start.SessionID + "/resume"

	first := make(chan int)
	go func() {
		first <- s.do(t, http.MethodPost, path, ResumeSessionRequest{Input: "one"}).Code
	}()

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.resuming[start.SessionID]
	}, time.Second, 5*time.Millisecond)

	rec := s.do(t, http.MethodPost, path, ResumeSessionRequest{Input: "two"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(s.advisor.block)
	assert.Equal(t, http.StatusOK, <-first)
}

// blockingArchive serves a suspended record after release is closed.
type blockingArchive struct {
	gets    atomic.Int32
	release chan struct{}
}

func (a *blockingArchive) Get(_ context.Context, id string) (*advisor.Record, error) {
	a.gets.Add(1)
	<-a.release
	rec := advisor.NewRecord("archived bot", nil)
	rec.SessionID = id
	rec.Apply(advisor.DecisionUpdate{Decision: advisor.Decision{Kind: advisor.DecisionAskUser, Question: "Could you clarify: budget?"}})
	return rec, nil
}

func TestResumeSession_ClaimsBeforeReading(t *testing.T) {
	archive := &blockingArchive{release: make(chan struct{})}
	s := setupTestServer(t, WithArchive(archive))
	path := "/api/v1/sessions/archived-1/resume"

	first := make(chan int)
	go func() {
		first <- s.do(t, http.MethodPost, path, ResumeSessionRequest{Input: "one"}).Code
	}()
	require.Eventually(t, func() bool { return archive.gets.Load() == 1 }, time.Second, 5*time.Millisecond)

	rec := s.do(t, http.MethodPost, path, ResumeSessionRequest{Input: "two"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, int32(1), archive.gets.Load(), "a rejected resume must not read the record")

	close(archive.release)
	assert.Equal(t, http.StatusOK, <-first)

	got := decode[SessionResponse](t, s.do(t, http.MethodGet, "/api/v1/sessions/archived-1", nil))
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, "archived bot\none", got.Record.RawInput)
}

func TestGetSession_FallsBackToArchive(t *testing.T) {
	ctx := context.Background()
	db, err := store.Open(ctx, config.DatabaseConfig{
		Driver: store.DriverSQLite,
		DSN:    "file:" + filepath.Join(t.TempDir(), "sessions.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := store.NewSessionRepo(db)
	archived := advisor.NewRecord("archived request", nil)
	archived.SessionID = "old-session"
	archived.Apply(advisor.DecisionUpdate{Decision: advisor.Decision{Kind: advisor.DecisionContinueEnd, Reasoning: "ok"}})
	require.NoError(t, repo.Save(ctx, archived))

	s := setupTestServer(t, WithArchive(repo))

	rec := s.do(t, http.MethodGet, "/api/v1/sessions/old-session", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[SessionResponse](t, rec)
	assert.Equal(t, "archived request", resp.Record.RawInput)
	assert.Equal(t, StatusCompleted, resp.Status)

	rec = s.do(t, http.MethodGet, "/api/v1/sessions/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFeedbackEndpoints(t *testing.T) {
	s := setupTestServer(t)

	for _, fb := range []FeedbackRequest{
		{SessionID: "s-1", Rating: 5, Helpful: true, Comment: "spot on"},
		{SessionID: "s-2", Rating: 2, Helpful: false},
		{SessionID: "s-1", Rating: 4, Helpful: true},
	} {
		rec := s.do(t, http.MethodPost, "/api/v1/feedback", fb)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		stored := decode[feedback.Feedback](t, rec)
		assert.NotEmpty(t, stored.ID)
		assert.False(t, stored.Timestamp.IsZero())
	}

	rec := s.do(t, http.MethodPost, "/api/v1/feedback", FeedbackRequest{SessionID: "s-3", Rating: 9})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	stats := decode[feedback.Stats](t, s.do(t, http.MethodGet, "/api/v1/feedback/stats", nil))
	assert.Equal(t, 3, stats.Total)
	assert.InDelta(t, 3.67, stats.AverageRating, 1e-9)
	assert.Equal(t, 2, stats.HelpfulCount)
	assert.InDelta(t, 66.7, stats.HelpfulPercent, 1e-9)

	recent := decode[[]feedback.Feedback](t, s.do(t, http.MethodGet, "/api/v1/feedback?limit=2", nil))
	require.Len(t, recent, 2)
	assert.Equal(t, 4, recent[0].Rating)

	rec = s.do(t, http.MethodGet, "/api/v1/feedback?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	latest := decode[feedback.Feedback](t, s.do(t, http.MethodGet, "/api/v1/sessions/s-1/feedback", nil))
	assert.Equal(t, 4, latest.Rating)

	rec = s.do(t, http.MethodGet, "/api/v1/sessions/nobody/feedback", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestIDPropagatesToLogs(t *testing.T) {
	s := setupTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(echo.HeaderXRequestID, "req-123")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get(echo.HeaderXRequestID))
	s.logger.AssertField(t, "http request", "request.id", "req-123")
}

func TestRegistry_Evicts(t *testing.T) {
	r, err := newRegistry(2)
	require.NoError(t, err)
	for _, id := range []string{"a", "b", "c"} {
		rec := advisor.NewRecord(id, nil)
		rec.SessionID = id
		r.put(rec)
	}
	assert.Equal(t, 2, r.len())
	_, ok := r.get("a")
	assert.False(t, ok)
	got, ok := r.get("c")
	require.True(t, ok)
	assert.Equal(t, "c", got.RawInput)
}
