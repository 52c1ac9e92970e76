package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/stackadvisor/internal/advisor"
	"github.com/fyrsmithlabs/stackadvisor/internal/config"
	"github.com/fyrsmithlabs/stackadvisor/internal/feedback"
)

func TestParseAnswers(t *testing.T) {
	got, err := parseAnswers([]string{"team_size=4", "no_code_importance = 5", "prefers_nocode=true", "budget=1.5", "skill_level=beginner", "note=a=b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"team_size":          4,
		"no_code_importance": 5,
		"prefers_nocode":     true,
		"budget":             1.5,
		"skill_level":        "beginner",
		"note":               "a=b",
	}, got)

	got, err = parseAnswers(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = parseAnswers([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseAnswers([]string{"=x"})
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	for _, in := range []string{"text", "JSON", " yaml "} {
		_, err := parseFormat(in)
		assert.NoError(t, err, in)
	}
	_, err := parseFormat("xml")
	assert.Error(t, err)
}

type scriptedRunner struct {
	resumed []string
	// askFor is how many resumes still end suspended.
	askFor int
}

func suspended(raw string) *advisor.Record {
	rec := advisor.NewRecord(raw, nil)
	rec.SessionID = "s-1"
	rec.Apply(advisor.DecisionUpdate{Decision: advisor.Decision{Kind: advisor.DecisionAskUser, Question: "Could you clarify: budget?"}})
	return rec
}

func (r *scriptedRunner) Start(_ context.Context, raw string, _ map[string]any) (*advisor.Record, error) {
	return suspended(raw), nil
}

func (r *scriptedRunner) Resume(_ context.Context, rec *advisor.Record, additional string) (*advisor.Record, error) {
	r.resumed = append(r.resumed, additional)
	if r.askFor > 0 {
		r.askFor--
		return suspended(rec.RawInput + "\n" + additional), nil
	}
	next := *rec
	next.RawInput += "\n" + additional
	next.Apply(advisor.DecisionUpdate{Decision: advisor.Decision{Kind: advisor.DecisionContinueEnd}})
	return &next, nil
}

func TestAdviseLoop(t *testing.T) {
	t.Run("answers until terminal", func(t *testing.T) {
		runner := &scriptedRunner{askFor: 1}
		var prompt bytes.Buffer
		in := bufio.NewReader(strings.NewReader("10k\nfour people\nunused\n"))

		rec, err := adviseLoop(context.Background(), runner, "bot", nil, in, &prompt)
		require.NoError(t, err)
		assert.True(t, rec.Terminal())
		assert.Equal(t, []string{"10k", "four people"}, runner.resumed)
		assert.Equal(t, "bot\n10k\nfour people", rec.RawInput)
		assert.Equal(t, 2, strings.Count(prompt.String(), "Could you clarify: budget?"))
	})

	t.Run("empty answer stops", func(t *testing.T) {
		runner := &scriptedRunner{}
		rec, err := adviseLoop(context.Background(), runner, "bot", nil, bufio.NewReader(strings.NewReader("\n")), &bytes.Buffer{})
		require.NoError(t, err)
		assert.True(t, rec.Suspended())
		assert.Empty(t, runner.resumed)
	})

	t.Run("last line without newline", func(t *testing.T) {
		runner := &scriptedRunner{askFor: 3}
		rec, err := adviseLoop(context.Background(), runner, "bot", nil, bufio.NewReader(strings.NewReader("10k")), &bytes.Buffer{})
		require.NoError(t, err)
		assert.Equal(t, []string{"10k"}, runner.resumed)
		assert.True(t, rec.Suspended())
	})

	t.Run("non-interactive", func(t *testing.T) {
		runner := &scriptedRunner{}
		var prompt bytes.Buffer
		rec, err := adviseLoop(context.Background(), runner, "bot", nil, nil, &prompt)
		require.NoError(t, err)
		assert.True(t, rec.Suspended())
		assert.Empty(t, prompt.String())
	})
}

func finishedRecord() *advisor.Record {
	rec := advisor.NewRecord("support bot over our wiki", nil)
	rec.SessionID = "s-42"
	rec.Apply(advisor.RecommendationUpdate{Recommendation: advisor.Recommendation{
		Top: advisor.Candidate{Name: "LangChain", Score: 0.91},
		Top3: []advisor.Candidate{
			{Name: "LangChain", Score: 0.91},
			{Name: "LlamaIndex", Score: 0.84},
		},
		Architecture: advisor.Architecture{Type: advisor.ArchitectureAgenticRAG, RAG: true, Notes: []string{"Index the wiki"}},
		Reasoning:    "Framework 'LangChain' (score 0.91) recommended based on:",
		Assumptions:  []string{"Documents are in English"},
		Risks:        []string{"Stale wiki pages"},
		Sources:      []advisor.Source{{Title: "LangChain docs", URL: "https://python.langchain.com"}},
		CapReached:   true,
	}})
	rec.Apply(advisor.DecisionUpdate{Decision: advisor.Decision{Kind: advisor.DecisionContinueEnd, Reasoning: "ok", CapReached: true}})
	rec.History = append(rec.History, advisor.StageEvent{Stage: advisor.StageProfiling, Fallback: true})
	return rec
}

func TestRender(t *testing.T) {
	rec := finishedRecord()

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, render(&buf, rec, formatText))
		out := buf.String()
		for _, want := range []string{"LangChain", "(score 0.91)", "LlamaIndex (0.84)", "agentic_rag", "Index the wiki", "Stale wiki pages", "https://python.langchain.com", "iteration cap was reached", "Degraded stages: profiling"} {
			assert.Contains(t, out, want)
		}
	})

	t.Run("text while suspended", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, render(&buf, suspended("bot"), formatText))
		assert.Contains(t, buf.String(), "Could you clarify: budget?")
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, render(&buf, rec, formatJSON))
		var got report
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, "s-42", got.SessionID)
		assert.Equal(t, "completed", got.Status)
		assert.Equal(t, "LangChain", got.Recommendation.Top.Name)
		assert.Equal(t, []advisor.StageName{advisor.StageProfiling}, got.FallbackStages)
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, render(&buf, rec, formatYAML))
		out := buf.String()
		assert.True(t, strings.HasPrefix(out, "session_id: s-42\n"), out)
		assert.Contains(t, out, "status: completed")
		assert.Contains(t, out, "name: LlamaIndex")
		assert.NotContains(t, out, `"session_id"`)

		var got map[string]any
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, 1, got["iteration_count"])
	})
}

func TestRunHealth(t *testing.T) {
	old := serverURL
	t.Cleanup(func() { serverURL = old })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"degraded","services":{"vectorstore":"unreachable","database":"ok"}}`))
	}))
	defer srv.Close()
	serverURL = srv.URL

	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)

	err := runHealth(cmd, srv.Client())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "degraded")
	assert.Equal(t, "Server Status: degraded\nServer URL: "+srv.URL+"\n  database: ok\n  vectorstore: unreachable\n", out.String())
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "Version:    dev")
}

func TestPrintStats(t *testing.T) {
	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)

	stats := feedback.Stats{Total: 3, AverageRating: 3.67, HelpfulCount: 2, UnhelpfulCount: 1, HelpfulPercent: 66.7}
	require.NoError(t, printStats(cmd, stats, false))
	assert.Contains(t, out.String(), "3.67")
	assert.Contains(t, out.String(), "2 (66.7%)")

	out.Reset()
	require.NoError(t, printStats(cmd, stats, true))
	assert.Contains(t, out.String(), `"helpful_percentage": 66.7`)
}

func TestEnsureSQLiteDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	require.NoError(t, ensureSQLiteDir(config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    "file:" + filepath.Join(dir, "advisor.db") + "?_pragma=busy_timeout(5000)",
	}))
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	assert.NoError(t, ensureSQLiteDir(config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"}))
	assert.NoError(t, ensureSQLiteDir(config.DatabaseConfig{Driver: "postgres", DSN: "postgres://x"}))
}
