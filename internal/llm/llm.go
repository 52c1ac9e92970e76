// Package llm provides the text completion service used by the extraction
// stages: Gemini through google.golang.org/genai, OpenAI-compatible servers
// through langchaingo, and a prompt cache in front of either.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/stackadvisor/internal/config"
)

var (
	// ErrNotConfigured is returned when no text service is available.
	ErrNotConfigured = errors.New("llm not configured")

	// ErrEmptyResponse is returned when the service answers with no text.
	ErrEmptyResponse = errors.New("llm returned empty response")
)

// Client completes a prompt. The context deadline bounds the whole call,
// including rate limiting and retries.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Disabled is a Client that always fails with ErrNotConfigured, which
// drives every LLM-backed stage onto its fallback.
type Disabled struct{}

func (Disabled) Complete(context.Context, string) (string, error) {
	return "", ErrNotConfigured
}

// New builds the configured provider client.
func New(ctx context.Context, cfg config.LLMConfig) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "gemini":
		return NewGeminiClient(ctx, cfg)
	case "openai":
		return NewOpenAIClient(cfg)
	case "", "none":
		return Disabled{}, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
