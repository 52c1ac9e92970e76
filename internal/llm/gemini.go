package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/fyrsmithlabs/stackadvisor/internal/config"
)

// GeminiClient completes prompts with the Gemini API.
type GeminiClient struct {
	*backend
	client *genai.Client
}

// NewGeminiClient creates a Gemini client. An API key is required.
func NewGeminiClient(ctx context.Context, cfg config.LLMConfig) (*GeminiClient, error) {
	if !cfg.APIKey.IsSet() {
		return nil, fmt.Errorf("%w: gemini api key is required", ErrNotConfigured)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey.Value(),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	g := &GeminiClient{client: client}
	temperature := float32(cfg.Temperature)
	g.backend = newBackend("gemini", cfg, func(ctx context.Context, prompt string) (string, error) {
		resp, err := g.client.Models.GenerateContent(ctx, cfg.Model, genai.Text(prompt), &genai.GenerateContentConfig{
			Temperature: &temperature,
		})
		if err != nil {
			return "", err
		}
		return resp.Text(), nil
	})
	return g, nil
}
