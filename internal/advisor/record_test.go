package advisor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecord(t *testing.T) {
	rec := NewRecord("build a support bot", map[string]any{"team_size": 4})

	assert.Equal(t, "build a support bot", rec.RawInput)
	assert.Equal(t, 4, rec.Answers["team_size"])
	assert.Zero(t, rec.IterationCount)
	assert.NotNil(t, rec.History)
	for _, f := range []Field{FieldRequirements, FieldProfile, FieldCorpusMatches, FieldCandidates, FieldRecommendation, FieldDecision} {
		assert.False(t, rec.Has(f), "field %s should be empty", f)
	}
}

func TestRecord_ApplyReplacesOneSection(t *testing.T) {
	rec := NewRecord("x", nil)

	rec.Apply(RequirementsUpdate{Requirements: Requirements{UseCaseGoal: "first"}})
	rec.Apply(ProfileUpdate{Profile: Profile{SkillLevel: SkillExpert}})
	rec.Apply(RequirementsUpdate{Requirements: Requirements{UseCaseGoal: "second"}})

	require.NotNil(t, rec.Requirements)
	assert.Equal(t, "second", rec.Requirements.UseCaseGoal)
	require.NotNil(t, rec.Profile)
	assert.Equal(t, SkillExpert, rec.Profile.SkillLevel)
	assert.False(t, rec.Has(FieldCorpusMatches))
}

func TestRecord_DecisionAdvancesCounter(t *testing.T) {
	rec := NewRecord("x", nil)

	rec.Apply(DecisionUpdate{Decision: Decision{Kind: DecisionRetryCorpus}})
	rec.Apply(DecisionUpdate{Decision: Decision{Kind: DecisionContinueEnd}})

	assert.Equal(t, 2, rec.IterationCount)
	assert.True(t, rec.Terminal())
	assert.False(t, rec.Suspended())
}

func TestRecord_HasCandidatesRequiresNonEmpty(t *testing.T) {
	rec := NewRecord("x", nil)
	rec.Apply(CandidatesUpdate{Candidates: CandidateSet{}})
	assert.False(t, rec.Has(FieldCandidates))

	rec.Apply(CandidatesUpdate{Candidates: CandidateSet{Candidates: []Candidate{{Name: "LangChain"}}}})
	assert.True(t, rec.Has(FieldCandidates))
}

func TestRecord_Invalidate(t *testing.T) {
	rec := NewRecord("x", nil)
	rec.Apply(MatchesUpdate{Matches: MatchSet{Confidence: 0.4}})
	rec.Apply(CandidatesUpdate{Candidates: CandidateSet{Candidates: []Candidate{{Name: "n8n"}}}})
	rec.Apply(RecommendationUpdate{Recommendation: Recommendation{Top: Candidate{Name: "n8n"}}})
	rec.Apply(ProfileUpdate{Profile: Profile{}})

	rec.Invalidate(FieldCorpusMatches, FieldCandidates, FieldRecommendation)

	assert.False(t, rec.Has(FieldCorpusMatches))
	assert.False(t, rec.Has(FieldCandidates))
	assert.False(t, rec.Has(FieldRecommendation))
	assert.True(t, rec.Has(FieldProfile))
}

func TestRecord_FallbackStagesUsesLatestRun(t *testing.T) {
	rec := NewRecord("x", nil)
	rec.History = []StageEvent{
		{Stage: StageIntake, Fallback: true},
		{Stage: StageCorpusMatch, Fallback: true},
		{Stage: StageCandidateSearch, Fallback: true},
		{Stage: StageCorpusMatch, Fallback: false},
	}

	assert.Equal(t, []StageName{StageIntake, StageCandidateSearch}, rec.FallbackStages())
}

func TestRequirements_Optionals(t *testing.T) {
	var req Requirements
	assert.Equal(t, 3, req.NoCode(3))
	assert.False(t, req.Enterprise())

	five, yes := 5, true
	req.NoCodeImportance = &five
	req.EnterpriseNeeded = &yes
	assert.Equal(t, 5, req.NoCode(3))
	assert.True(t, req.Enterprise())
}

func TestDecision_RetryFrom(t *testing.T) {
	tests := []struct {
		kind  DecisionKind
		stage StageName
		ok    bool
	}{
		{DecisionRetryCorpus, StageCorpusMatch, true},
		{DecisionRetryCandidates, StageCandidateSearch, true},
		{DecisionAskUser, "", false},
		{DecisionContinueEnd, "", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			stage, ok := Decision{Kind: tt.kind}.RetryFrom()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.stage, stage)
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "ab", Truncate("abc", 2))
	assert.Equal(t, "日本", Truncate("日本語", 2))
}

func TestDeriveFlags(t *testing.T) {
	vocab := DefaultPolicy().TagVocabulary

	flags := DeriveFlags([][]string{
		{"Knowledge", "support"},
		{"ticketing", "Multi-Agent"},
	}, vocab)

	assert.True(t, flags.RAGRequired)
	assert.True(t, flags.ConnectorsRequired)
	assert.True(t, flags.MultiAgentRecommended)
	assert.False(t, flags.AutomationHigh)
	assert.False(t, flags.ComplianceHigh)
	assert.Equal(t, []string{"rag_required", "connectors_required", "multi_agent_recommended"}, flags.Names())
}

func TestDeriveFlags_NoTags(t *testing.T) {
	flags := DeriveFlags(nil, DefaultPolicy().TagVocabulary)
	assert.Empty(t, flags.Names())
}

type stubStage struct {
	requires []Field
}

func (s stubStage) Name() StageName   { return StageSynthesis }
func (s stubStage) Requires() []Field { return s.requires }
func (s stubStage) Run(context.Context, Record, Adjustments) (Update, error) {
	return nil, nil
}
func (s stubStage) Fallback(Record, error) Update { return nil }

func TestCheckPreconditions(t *testing.T) {
	stage := stubStage{requires: []Field{FieldRequirements, FieldCandidates}}
	rec := NewRecord("x", nil)
	rec.Apply(RequirementsUpdate{})

	err := CheckPreconditions(stage, *rec)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPrecondition))
	assert.Contains(t, err.Error(), "candidates")

	rec.Apply(CandidatesUpdate{Candidates: CandidateSet{Candidates: []Candidate{{Name: "a"}}}})
	assert.NoError(t, CheckPreconditions(stage, *rec))
}
