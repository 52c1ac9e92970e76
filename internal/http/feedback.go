package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/stackadvisor/internal/feedback"
)

const (
	defaultRecentFeedback = 20
	maxRecentFeedback     = 200
)

// FeedbackRequest is the request body for POST /api/v1/feedback.
type FeedbackRequest struct {
	SessionID string `json:"session_id"`
	Rating    int    `json:"rating"`
	Helpful   bool   `json:"helpful"`
	Comment   string `json:"comment,omitempty"`
}

func (s *Server) handleSubmitFeedback(c echo.Context) error {
	ctx := c.Request().Context()

	var req FeedbackRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(ctx, "invalid feedback request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	fb, err := s.feedback.Submit(ctx, feedback.Feedback{
		SessionID: req.SessionID,
		Rating:    req.Rating,
		Helpful:   req.Helpful,
		Comment:   req.Comment,
	})
	if errors.Is(err, feedback.ErrInvalidRating) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		s.logger.Error(ctx, "storing feedback failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "storing feedback failed").SetInternal(err)
	}
	return c.JSON(http.StatusCreated, fb)
}

func (s *Server) handleFeedbackStats(c echo.Context) error {
	stats, err := s.feedback.Stats(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "reading feedback failed").SetInternal(err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) handleRecentFeedback(c echo.Context) error {
	limit := defaultRecentFeedback
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(n, maxRecentFeedback)
	}

	entries, err := s.feedback.Recent(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "reading feedback failed").SetInternal(err)
	}
	if entries == nil {
		entries = []feedback.Feedback{}
	}
	return c.JSON(http.StatusOK, entries)
}

func (s *Server) handleSessionFeedback(c echo.Context) error {
	fb, err := s.feedback.ForSession(c.Request().Context(), c.Param("id"))
	if errors.Is(err, feedback.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "no feedback for session")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "reading feedback failed").SetInternal(err)
	}
	return c.JSON(http.StatusOK, fb)
}
