package advisor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy_Valid(t *testing.T) {
	p := DefaultPolicy()
	require.NoError(t, p.Validate())

	assert.Equal(t, 2, p.IterationCap)
	assert.Equal(t, 0.60, p.ConfidenceThreshold)
	assert.Equal(t, 8, p.RetryTopK)
	assert.Equal(t, 3*time.Second, p.Budget(StageIntake))
	assert.Equal(t, 5*time.Second, p.Budget(StageCandidateSearch))
	assert.Equal(t, time.Second, p.Budget(StageQualityGate))
}

func TestPolicy_WithDefaultsKeepsOverrides(t *testing.T) {
	p := Policy{IterationCap: 4, RetryTopK: 12}.WithDefaults()

	assert.Equal(t, 4, p.IterationCap)
	assert.Equal(t, 12, p.RetryTopK)
	assert.Equal(t, 5, p.DefaultTopK)
	assert.Len(t, p.DefaultCandidates, 3)
	assert.Equal(t, 5*time.Second, p.Budgets.CorpusMatch)
}

func TestPolicy_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Policy)
	}{
		{"zero cap", func(p *Policy) { p.IterationCap = 0 }},
		{"threshold above one", func(p *Policy) { p.ConfidenceThreshold = 1.5 }},
		{"negative top k", func(p *Policy) { p.RetryTopK = -1 }},
		{"no default candidates", func(p *Policy) { p.DefaultCandidates = nil }},
		{"bad default score", func(p *Policy) { p.DefaultCandidates = []Candidate{{Name: "x", Score: 2}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPolicy()
			tt.mutate(&p)
			err := p.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidPolicy))
		})
	}
}

func TestPolicy_AllowLists(t *testing.T) {
	p := DefaultPolicy()

	assert.True(t, p.IsRetrievalCapable("LangChain"))
	assert.True(t, p.IsRetrievalCapable("langgraph studio"))
	assert.True(t, p.IsRetrievalCapable("Google ADK"))
	assert.False(t, p.IsRetrievalCapable("CrewAI"))

	assert.True(t, p.IsNoCode("n8n"))
	assert.True(t, p.IsNoCode("Zapier Agents"))
	assert.False(t, p.IsNoCode("AutoGen"))
}

func TestPolicy_FallbackCandidatesIsCopy(t *testing.T) {
	p := DefaultPolicy()

	set := p.FallbackCandidates()
	require.Len(t, set.Candidates, 3)
	assert.True(t, set.Fallback)
	assert.Equal(t, 0.70, set.Confidence)
	assert.Equal(t, "LangChain", set.Candidates[0].Name)

	set.Candidates[0].Name = "mutated"
	assert.Equal(t, "LangChain", p.DefaultCandidates[0].Name)
}
