package config

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "gemini-2.5-flash", cfg.LLM.Model)
	assert.Equal(t, "text-embedding-004", cfg.Embeddings.Model)
	assert.Equal(t, uint64(768), cfg.VectorStore.Qdrant.VectorSize)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.NotEmpty(t, cfg.Database.DSN)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	assert.True(t, cfg.Knowledge.SeedOnStart)
	assert.True(t, cfg.Scrubbing.Enabled)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, true},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, true},
		{"negative shutdown", func(c *Config) { c.Server.ShutdownTimeout = -time.Second }, true},
		{"telemetry without name", func(c *Config) {
			c.Observability.EnableTelemetry = true
			c.Observability.ServiceName = ""
		}, true},
		{"unknown llm", func(c *Config) { c.LLM.Provider = "claude" }, true},
		{"llm without model", func(c *Config) { c.LLM.Model = "" }, true},
		{"llm none", func(c *Config) { c.LLM.Provider = "none"; c.LLM.Model = "" }, false},
		{"unknown embeddings", func(c *Config) { c.Embeddings.Provider = "onnx" }, true},
		{"qdrant without vector size", func(c *Config) {
			c.VectorStore.Provider = "qdrant"
			c.VectorStore.Qdrant.VectorSize = 0
		}, true},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, true},
		{"unknown cache backend", func(c *Config) { c.Cache.Backend = "redis" }, true},
		{"unknown feedback backend", func(c *Config) { c.Feedback.Backend = "csv" }, true},
		{"bad pipeline", func(c *Config) { c.Pipeline.IterationCap = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestSecret_NeverPrints(t *testing.T) {
	s := Secret("sk-live-123")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "Secret([REDACTED])", fmt.Sprintf("%#v", s))
	assert.Equal(t, "sk-live-123", s.Value())

	out, err := json.Marshal(struct{ Key Secret }{s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Key":"[REDACTED]"}`, string(out))

	assert.False(t, Secret("").IsSet())
	assert.Equal(t, "", Secret("").String())
}
