package config

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestHome points HOME at a temp dir and returns the config directory.
func setupTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".config", "stackadvisor")
	require.NoError(t, os.MkdirAll(dir, 0700))
	return dir
}

func writeConfig(t *testing.T, dir, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	return path
}

func TestLoadWithFile_ValidYAML(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, `server:
  http_port: 9191
  shutdown_timeout: 3s
llm:
  provider: openai
  model: gpt-4o
  api_key: sk-test
vectorstore:
  provider: qdrant
  qdrant:
    host: qdrant.local
    port: 6334
pipeline:
  iteration_cap: 3
  retry_top_k: 10
  budgets:
    corpus_match: 7s
  tag_vocabulary:
    rag_required: [rag, docs]
`, 0600)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey.Value())
	assert.Equal(t, "openai", cfg.Embeddings.Provider)
	assert.Equal(t, "sk-test", cfg.Embeddings.APIKey.Value())
	assert.Equal(t, "qdrant.local", cfg.VectorStore.Qdrant.Host)

	assert.Equal(t, 3, cfg.Pipeline.IterationCap)
	assert.Equal(t, 10, cfg.Pipeline.RetryTopK)
	assert.Equal(t, 5, cfg.Pipeline.DefaultTopK)
	assert.Equal(t, 7*time.Second, cfg.Pipeline.Budgets.CorpusMatch)
	assert.Equal(t, 3*time.Second, cfg.Pipeline.Budgets.Intake)
	assert.Equal(t, []string{"rag", "docs"}, cfg.Pipeline.TagVocabulary["rag_required"])
}

func TestLoadWithFile_EnvironmentOverride(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "server:\n  http_port: 9191\n", 0600)

	t.Setenv("STACKADVISOR_SERVER_HTTP_PORT", "7070")
	t.Setenv("STACKADVISOR_LLM_PROVIDER", "none")
	t.Setenv("STACKADVISOR_CACHE_BACKEND", "sql")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "none", cfg.LLM.Provider)
	assert.Equal(t, "hash", cfg.Embeddings.Provider)
	assert.Equal(t, "sql", cfg.Cache.Backend)
}

func TestLoadWithFile_MissingFileUsesDefaults(t *testing.T) {
	setupTestHome(t)

	cfg, err := LoadWithFile("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "chromem", cfg.VectorStore.Provider)
	assert.True(t, cfg.VectorStore.Chromem.Compress)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "usecases", cfg.VectorStore.UseCaseCollection)
	assert.Equal(t, "frameworks", cfg.VectorStore.FrameworkCollection)
	assert.Equal(t, "data/feedback.jsonl", cfg.Feedback.Path)
	assert.Equal(t, 2, cfg.Pipeline.IterationCap)
}

func TestLoadWithFile_ExplicitFalseSurvives(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "cache:\n  enabled: false\nscrubbing:\n  enabled: false\n", 0600)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.False(t, cfg.Cache.Enabled)
	assert.False(t, cfg.Scrubbing.Enabled)
}

func TestLoadWithFile_InvalidYAML(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "server: [unclosed\n", 0600)

	_, err := LoadWithFile(path)
	require.Error(t, err)
}

func TestLoadWithFile_Validation(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "vectorstore:\n  provider: pinecone\n", 0600)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadWithFile_PathTraversal(t *testing.T) {
	setupTestHome(t)

	_, err := LoadWithFile("../../../../etc/passwd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be in ~/.config/stackadvisor/ or /etc/stackadvisor/")
}

func TestLoadWithFile_SiblingDirectoryRejected(t *testing.T) {
	dir := setupTestHome(t)
	sibling := dir + "-evil"
	require.NoError(t, os.MkdirAll(sibling, 0700))

	_, err := LoadWithFile(filepath.Join(sibling, "config.yaml"))
	require.Error(t, err)
}

func TestLoadWithFile_InsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("Skipping permission test on Windows")
	}
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "server:\n  http_port: 9090\n", 0644)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoadWithFile_FileTooLarge(t *testing.T) {
	dir := setupTestHome(t)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("# comment line\n"), 150000), 0600))

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"STACKADVISOR_SERVER_HTTP_PORT":     "server.http_port",
		"STACKADVISOR_LLM_API_KEY":          "llm.api_key",
		"STACKADVISOR_PIPELINE_RETRY_TOP_K": "pipeline.retry_top_k",
		"STACKADVISOR_DEBUG":                "debug",
	}
	for in, want := range tests {
		assert.Equal(t, want, envKey(in), in)
	}
}
