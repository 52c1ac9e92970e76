package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/stackadvisor/internal/config"
)

var tracer = otel.Tracer("stackadvisor.llm")

const retryBaseDelay = 200 * time.Millisecond

type generateFunc func(ctx context.Context, prompt string) (string, error)

// backend carries what both providers share: rate limiting, retries with
// exponential backoff, an upper call timeout and tracing.
type backend struct {
	provider   string
	model      string
	generate   generateFunc
	limiter    *rate.Limiter
	maxRetries int
	baseDelay  time.Duration
	timeout    time.Duration
}

func newBackend(provider string, cfg config.LLMConfig, gen generateFunc) *backend {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &backend{
		provider:   provider,
		model:      cfg.Model,
		generate:   gen,
		limiter:    rate.NewLimiter(limit, burst),
		maxRetries: cfg.MaxRetries,
		baseDelay:  retryBaseDelay,
		timeout:    cfg.Timeout,
	}
}

func (b *backend) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, span := tracer.Start(ctx, "llm.complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", b.provider),
		attribute.String("llm.model", b.model),
		attribute.Int("llm.prompt_chars", len(prompt)),
	)

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	for attempt := 0; ; attempt++ {
		if err := b.limiter.Wait(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "rate limit wait")
			return "", fmt.Errorf("%s rate limit: %w", b.provider, err)
		}

		out, err := b.generate(ctx, prompt)
		if err == nil && strings.TrimSpace(out) == "" {
			err = ErrEmptyResponse
		}
		if err == nil {
			span.SetAttributes(attribute.Int("llm.attempts", attempt+1))
			span.SetStatus(codes.Ok, "")
			return out, nil
		}

		if attempt >= b.maxRetries || !shouldRetry(ctx, err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "", fmt.Errorf("%s complete: %w", b.provider, err)
		}

		select {
		case <-time.After(b.baseDelay << attempt):
		case <-ctx.Done():
			span.RecordError(ctx.Err())
			return "", ctx.Err()
		}
	}
}

// shouldRetry reports whether err looks transient. Nothing is retried once
// the caller's context is done.
func shouldRetry(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	if errors.Is(err, ErrEmptyResponse) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"429", "500", "502", "503", "504",
		"resource_exhausted", "unavailable", "server_error", "rate limit",
		"connection reset", "connection refused", "broken pipe", "eof",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
