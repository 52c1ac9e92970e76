package reranker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(docs []ScoredDocument) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}

func TestTermOverlap_Rerank(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		docs    []Document
		topK    int
		wantIDs []string
	}{
		{
			name:    "empty documents",
			query:   "support bot",
			docs:    nil,
			topK:    10,
			wantIDs: []string{},
		},
		{
			name:  "overlap outranks raw score",
			query: "retrieval over internal knowledge documents",
			docs: []Document{
				{ID: "crewai", Content: "role based multi agent crews", Score: 0.9},
				{ID: "llamaindex", Content: "data framework for retrieval over documents and knowledge", Score: 0.7},
				{ID: "langchain", Content: "chains agents and retrieval", Score: 0.8},
			},
			topK:    10,
			wantIDs: []string{"llamaindex", "langchain", "crewai"},
		},
		{
			name:  "topK limits results",
			query: "workflow automation",
			docs: []Document{
				{ID: "n8n", Content: "workflow automation with nodes", Score: 0.6},
				{ID: "zapier", Content: "automation for apps", Score: 0.6},
				{ID: "autogen", Content: "conversational agents", Score: 0.6},
			},
			topK:    2,
			wantIDs: []string{"n8n", "zapier"},
		},
		{
			name:  "ties keep input order",
			query: "zzz",
			docs: []Document{
				{ID: "a", Content: "x", Score: 0.5},
				{ID: "b", Content: "y", Score: 0.5},
			},
			topK:    0,
			wantIDs: []string{"a", "b"},
		},
	}

	r := NewTermOverlap()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Rerank(context.Background(), tt.query, tt.docs, tt.topK)
			require.NoError(t, err)
			assert.Equal(t, tt.wantIDs, ids(got))
		})
	}
}

func TestTermOverlap_ScoresPreserved(t *testing.T) {
	got, err := NewTermOverlap().Rerank(context.Background(), "ticket routing", []Document{
		{ID: "a", Content: "ticket routing and triage", Score: 0.4},
	}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, 0.4, got[0].Score)
	assert.Equal(t, 1.0, got[0].Overlap)
	assert.InDelta(t, 0.7, got[0].Combined, 1e-9)
	assert.Equal(t, 0, got[0].OriginalRank)
}

func TestTermOverlap_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewTermOverlap().Rerank(ctx, "q", []Document{{ID: "a"}}, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOverlap(t *testing.T) {
	terms := uniqueTerms("The support bot for the support team")
	assert.Equal(t, []string{"support", "bot", "team"}, terms)
	assert.InDelta(t, 2.0/3.0, Overlap(terms, "Support BOT platform"), 1e-9)
	assert.Zero(t, Overlap(nil, "anything"))
}
