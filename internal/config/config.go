// Package config provides configuration loading for stackadvisor.
//
// Configuration is layered: hardcoded defaults, then an optional YAML file,
// then a .env file, then STACKADVISOR_* environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/stackadvisor/internal/advisor"
)

// Config holds the complete stackadvisor configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Observability ObservabilityConfig `koanf:"observability"`
	LLM           LLMConfig           `koanf:"llm"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	VectorStore   VectorStoreConfig   `koanf:"vectorstore"`
	Database      DatabaseConfig      `koanf:"database"`
	Cache         CacheConfig         `koanf:"cache"`
	Feedback      FeedbackConfig      `koanf:"feedback"`
	Knowledge     KnowledgeConfig     `koanf:"knowledge"`
	Scrubbing     ScrubbingConfig     `koanf:"scrubbing"`
	Pipeline      advisor.Policy      `koanf:"pipeline"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// ObservabilityConfig holds logging and OpenTelemetry settings.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
	Endpoint        string `koanf:"endpoint"`
	Protocol        string `koanf:"protocol"`
	Insecure        bool   `koanf:"insecure"`
	LogLevel        string `koanf:"log_level"`
	LogFormat       string `koanf:"log_format"`
}

// LLMConfig configures the text completion service.
type LLMConfig struct {
	// Provider is "gemini", "openai" or "none". With "none" every LLM-backed
	// stage runs on its fallback.
	Provider          string        `koanf:"provider"`
	Model             string        `koanf:"model"`
	APIKey            Secret        `koanf:"api_key"`
	BaseURL           string        `koanf:"base_url"`
	Temperature       float64       `koanf:"temperature"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	Burst             int           `koanf:"burst"`
	MaxRetries        int           `koanf:"max_retries"`
	Timeout           time.Duration `koanf:"timeout"`
}

// EmbeddingsConfig configures the embedding service used by the vector index.
type EmbeddingsConfig struct {
	// Provider is "gemini", "openai" or "hash". The hash embedder is local
	// and deterministic.
	Provider   string `koanf:"provider"`
	Model      string `koanf:"model"`
	APIKey     Secret `koanf:"api_key"`
	BaseURL    string `koanf:"base_url"`
	Dimensions int    `koanf:"dimensions"`
}

// VectorStoreConfig selects and configures the vector index.
type VectorStoreConfig struct {
	Provider string        `koanf:"provider"`
	Chromem  ChromemConfig `koanf:"chromem"`
	Qdrant   QdrantConfig  `koanf:"qdrant"`

	UseCaseCollection   string `koanf:"usecase_collection"`
	FrameworkCollection string `koanf:"framework_collection"`
}

// ChromemConfig configures the embedded chromem-go index.
type ChromemConfig struct {
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// QdrantConfig configures a remote Qdrant index.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	UseTLS     bool   `koanf:"use_tls"`
	APIKey     Secret `koanf:"api_key"`
	VectorSize uint64 `koanf:"vector_size"`
}

// DatabaseConfig configures the SQL store.
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `koanf:"driver"`
	DSN    string `koanf:"dsn"`
}

// CacheConfig configures the prompt cache.
type CacheConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Backend    string        `koanf:"backend"`
	TTL        time.Duration `koanf:"ttl"`
	MaxEntries int           `koanf:"max_entries"`
}

// FeedbackConfig configures feedback storage.
type FeedbackConfig struct {
	Backend string `koanf:"backend"`
	Path    string `koanf:"path"`
}

// KnowledgeConfig configures the reference corpus.
type KnowledgeConfig struct {
	// Path overrides the embedded corpus with a TOML file.
	Path        string `koanf:"path"`
	Watch       bool   `koanf:"watch"`
	SeedOnStart bool   `koanf:"seed_on_start"`
}

// ScrubbingConfig controls secret redaction of requester input.
type ScrubbingConfig struct {
	Enabled   bool     `koanf:"enabled"`
	Redaction string   `koanf:"redaction"`
	AllowList []string `koanf:"allow_list"`
}

// Default returns a configuration populated with defaults only.
func Default() *Config {
	cfg := newBase()
	applyDefaults(cfg)
	return cfg
}

// newBase holds the boolean defaults that applyDefaults cannot tell apart
// from an explicit false. Loaders unmarshal on top of it.
func newBase() *Config {
	return &Config{
		Cache:     CacheConfig{Enabled: true},
		Knowledge: KnowledgeConfig{SeedOnStart: true},
		Scrubbing: ScrubbingConfig{Enabled: true},
		VectorStore: VectorStoreConfig{
			Chromem: ChromemConfig{Compress: true},
		},
		Observability: ObservabilityConfig{Insecure: true},
	}
}

var (
	// ErrInvalidConfig wraps every validation failure.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server port %d (must be 1-65535)", ErrInvalidConfig, c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: shutdown timeout must be positive", ErrInvalidConfig)
	}
	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return fmt.Errorf("%w: service name required when telemetry is enabled", ErrInvalidConfig)
	}

	switch c.LLM.Provider {
	case "gemini", "openai":
		if c.LLM.Model == "" {
			return fmt.Errorf("%w: llm.model is required for provider %s", ErrInvalidConfig, c.LLM.Provider)
		}
	case "none":
	default:
		return fmt.Errorf("%w: unknown llm provider %q", ErrInvalidConfig, c.LLM.Provider)
	}
	if c.LLM.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: llm.requests_per_second cannot be negative", ErrInvalidConfig)
	}

	switch c.Embeddings.Provider {
	case "gemini", "openai", "hash":
	default:
		return fmt.Errorf("%w: unknown embeddings provider %q", ErrInvalidConfig, c.Embeddings.Provider)
	}

	switch c.VectorStore.Provider {
	case "chromem":
	case "qdrant":
		if c.VectorStore.Qdrant.Host == "" || c.VectorStore.Qdrant.Port == 0 {
			return fmt.Errorf("%w: qdrant host and port are required", ErrInvalidConfig)
		}
		if c.VectorStore.Qdrant.VectorSize == 0 {
			return fmt.Errorf("%w: qdrant vector_size is required", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown vectorstore provider %q", ErrInvalidConfig, c.VectorStore.Provider)
	}

	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("%w: unknown database driver %q", ErrInvalidConfig, c.Database.Driver)
	}

	switch c.Cache.Backend {
	case "memory", "sql":
	default:
		return fmt.Errorf("%w: unknown cache backend %q", ErrInvalidConfig, c.Cache.Backend)
	}

	switch c.Feedback.Backend {
	case "jsonl", "sql":
	default:
		return fmt.Errorf("%w: unknown feedback backend %q", ErrInvalidConfig, c.Feedback.Backend)
	}

	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	// Observability defaults
	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "stackadvisor"
	}
	if cfg.Observability.Endpoint == "" {
		cfg.Observability.Endpoint = "localhost:4317"
	}
	if cfg.Observability.Protocol == "" {
		cfg.Observability.Protocol = "grpc"
	}
	if cfg.Observability.LogLevel == "" {
		cfg.Observability.LogLevel = "info"
	}
	if cfg.Observability.LogFormat == "" {
		cfg.Observability.LogFormat = "json"
	}

	// LLM defaults
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "gemini"
	}
	if cfg.LLM.Model == "" {
		switch cfg.LLM.Provider {
		case "gemini":
			cfg.LLM.Model = "gemini-2.5-flash"
		case "openai":
			cfg.LLM.Model = "gpt-4o-mini"
		}
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.1
	}
	if cfg.LLM.RequestsPerSecond == 0 {
		cfg.LLM.RequestsPerSecond = 2
	}
	if cfg.LLM.Burst == 0 {
		cfg.LLM.Burst = 4
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 2
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 30 * time.Second
	}

	// Embeddings share the LLM provider unless set.
	if cfg.Embeddings.Provider == "" {
		switch cfg.LLM.Provider {
		case "gemini", "openai":
			cfg.Embeddings.Provider = cfg.LLM.Provider
		default:
			cfg.Embeddings.Provider = "hash"
		}
	}
	if cfg.Embeddings.Model == "" {
		switch cfg.Embeddings.Provider {
		case "gemini":
			cfg.Embeddings.Model = "text-embedding-004"
		case "openai":
			cfg.Embeddings.Model = "text-embedding-3-small"
		}
	}
	if !cfg.Embeddings.APIKey.IsSet() {
		cfg.Embeddings.APIKey = cfg.LLM.APIKey
	}
	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = cfg.LLM.BaseURL
	}
	if cfg.Embeddings.Dimensions == 0 {
		cfg.Embeddings.Dimensions = 768
	}

	// VectorStore defaults (chromem is default - embedded, no external deps)
	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "chromem"
	}
	if cfg.VectorStore.Chromem.Path == "" {
		cfg.VectorStore.Chromem.Path = "data/vectorstore"
	}
	if cfg.VectorStore.Qdrant.Host == "" {
		cfg.VectorStore.Qdrant.Host = "localhost"
	}
	if cfg.VectorStore.Qdrant.Port == 0 {
		cfg.VectorStore.Qdrant.Port = 6334
	}
	if cfg.VectorStore.Qdrant.VectorSize == 0 {
		cfg.VectorStore.Qdrant.VectorSize = uint64(cfg.Embeddings.Dimensions)
	}
	if cfg.VectorStore.UseCaseCollection == "" {
		cfg.VectorStore.UseCaseCollection = "usecases"
	}
	if cfg.VectorStore.FrameworkCollection == "" {
		cfg.VectorStore.FrameworkCollection = "frameworks"
	}

	// Database defaults
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "file:data/stackadvisor.db?_pragma=busy_timeout(5000)"
	}

	// Cache defaults
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 24 * time.Hour
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = 1000
	}

	// Feedback defaults
	if cfg.Feedback.Backend == "" {
		cfg.Feedback.Backend = "jsonl"
	}
	if cfg.Feedback.Path == "" {
		cfg.Feedback.Path = "data/feedback.jsonl"
	}

	cfg.Pipeline = cfg.Pipeline.WithDefaults()
}
