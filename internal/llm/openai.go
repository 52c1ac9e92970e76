package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/fyrsmithlabs/stackadvisor/internal/config"
)

// OpenAIClient completes prompts against any OpenAI-compatible endpoint.
type OpenAIClient struct {
	*backend
	llm llms.Model
}

// NewOpenAIClient creates an OpenAI-compatible client. Local servers that
// need no key get a placeholder token.
func NewOpenAIClient(cfg config.LLMConfig) (*OpenAIClient, error) {
	token := cfg.APIKey.Value()
	if token == "" {
		token = "placeholder"
	}

	opts := []openai.Option{
		openai.WithModel(cfg.Model),
		openai.WithToken(token),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating openai client: %w", err)
	}

	c := &OpenAIClient{llm: model}
	c.backend = newBackend("openai", cfg, func(ctx context.Context, prompt string) (string, error) {
		return llms.GenerateFromSinglePrompt(ctx, c.llm, prompt, llms.WithTemperature(cfg.Temperature))
	})
	return c, nil
}
