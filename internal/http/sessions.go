package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/stackadvisor/internal/advisor"
	"github.com/fyrsmithlabs/stackadvisor/internal/orchestrator"
	"github.com/fyrsmithlabs/stackadvisor/internal/store"
)

// Session statuses reported to clients.
const (
	StatusCompleted     = "completed"
	StatusAwaitingInput = "awaiting_input"
	StatusIncomplete    = "incomplete"
)

// StartSessionRequest is the request body for POST /api/v1/sessions.
type StartSessionRequest struct {
	Input   string         `json:"input"`
	Answers map[string]any `json:"answers,omitempty"`
}

// ResumeSessionRequest is the request body for POST /api/v1/sessions/:id/resume.
type ResumeSessionRequest struct {
	Input string `json:"input"`
}

// SessionResponse describes a session and its current record.
type SessionResponse struct {
	SessionID      string              `json:"session_id"`
	Status         string              `json:"status"`
	Question       string              `json:"question,omitempty"`
	CapReached     bool                `json:"cap_reached,omitempty"`
	FallbackStages []advisor.StageName `json:"fallback_stages,omitempty"`
	Record         *advisor.Record     `json:"record"`
}

func newSessionResponse(rec *advisor.Record) SessionResponse {
	resp := SessionResponse{
		SessionID:      rec.SessionID,
		Status:         StatusIncomplete,
		FallbackStages: rec.FallbackStages(),
		Record:         rec,
	}
	switch {
	case rec.Suspended():
		resp.Status = StatusAwaitingInput
		resp.Question = rec.Decision.Question
	case rec.Terminal():
		resp.Status = StatusCompleted
		resp.CapReached = rec.Decision.CapReached
	}
	return resp
}

func (s *Server) handleStartSession(c echo.Context) error {
	ctx := c.Request().Context()

	var req StartSessionRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(ctx, "invalid session request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Input) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "input field is required")
	}

	rec, err := s.advisor.Start(ctx, req.Input, req.Answers)
	if err != nil {
		return pipelineError(ctx, err)
	}
	s.sessions.put(rec)
	return c.JSON(http.StatusCreated, newSessionResponse(rec))
}

func (s *Server) handleGetSession(c echo.Context) error {
	rec, err := s.lookup(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newSessionResponse(rec))
}

func (s *Server) handleResumeSession(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	var req ResumeSessionRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(ctx, "invalid resume request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Input) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "input field is required")
	}

	// Claim first so a concurrent resume never reads the record this one
	// is about to replace.
	if !s.claim(id) {
		return echo.NewHTTPError(http.StatusConflict, "session is already being resumed")
	}
	defer s.release(id)

	rec, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}

	next, err := s.advisor.Resume(ctx, rec, req.Input)
	if errors.Is(err, orchestrator.ErrNotSuspended) {
		return echo.NewHTTPError(http.StatusConflict, "session is not awaiting clarification")
	}
	if err != nil {
		return pipelineError(ctx, err)
	}
	s.sessions.put(next)
	return c.JSON(http.StatusOK, newSessionResponse(next))
}

// lookup finds a session in memory, then in the archive.
func (s *Server) lookup(ctx context.Context, id string) (*advisor.Record, error) {
	if rec, ok := s.sessions.get(id); ok {
		return rec, nil
	}
	if s.archive == nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	rec, err := s.archive.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	if err != nil {
		s.logger.Error(ctx, "session archive lookup failed", zap.String("session_id", id), zap.Error(err))
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "session lookup failed").SetInternal(err)
	}
	return rec, nil
}

func (s *Server) claim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resuming[id] {
		return false
	}
	s.resuming[id] = true
	return true
}

func (s *Server) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.resuming, id)
}
