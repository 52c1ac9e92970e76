package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/stackadvisor/internal/advisor"
)

// QualityGate decides whether a session ends, retries a search stage or asks
// the requester for clarification.
type QualityGate struct {
	policy advisor.Policy
}

// NewQualityGate creates the gate stage.
func NewQualityGate(policy advisor.Policy) *QualityGate {
	return &QualityGate{policy: policy}
}

func (s *QualityGate) Name() advisor.StageName { return advisor.StageQualityGate }

func (s *QualityGate) Requires() []advisor.Field { return nil }

func (s *QualityGate) Run(ctx context.Context, rec advisor.Record, _ advisor.Adjustments) (advisor.Update, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return advisor.DecisionUpdate{Decision: Evaluate(rec, s.policy)}, nil
}

// Fallback ends the session.
func (s *QualityGate) Fallback(_ advisor.Record, cause error) advisor.Update {
	reason := "quality gate unavailable; ending with the current recommendation"
	if cause != nil {
		reason += ": " + cause.Error()
	}
	return advisor.DecisionUpdate{Decision: advisor.Decision{
		Kind:      advisor.DecisionContinueEnd,
		Reasoning: reason,
	}}
}

// Evaluate applies the gate rules to rec in precedence order. The first
// matching rule wins.
func Evaluate(rec advisor.Record, p advisor.Policy) advisor.Decision {
	if rec.IterationCount >= p.IterationCap {
		return advisor.Decision{
			Kind:       advisor.DecisionContinueEnd,
			Reasoning:  fmt.Sprintf("iteration cap reached (%d); ending with the best available recommendation", p.IterationCap),
			CapReached: true,
		}
	}
	if rec.Recommendation == nil {
		return advisor.Decision{
			Kind:      advisor.DecisionContinueEnd,
			Reasoning: "no recommendation produced; ending",
		}
	}

	corpusConfidence := p.EmptyConfidence
	if rec.CorpusMatches != nil {
		corpusConfidence = rec.CorpusMatches.Confidence
	}
	if corpusConfidence < p.ConfidenceThreshold {
		return advisor.Decision{
			Kind:        advisor.DecisionRetryCorpus,
			Adjustments: advisor.Adjustments{TopK: p.RetryTopK},
			Reasoning:   fmt.Sprintf("use case confidence too low (%.2f < %.2f); widening the reference search", corpusConfidence, p.ConfidenceThreshold),
			Invalidates: []advisor.Field{advisor.FieldCorpusMatches, advisor.FieldCandidates, advisor.FieldRecommendation},
		}
	}

	candidateConfidence := p.EmptyConfidence
	if rec.Candidates != nil {
		candidateConfidence = rec.Candidates.Confidence
	}
	if candidateConfidence < p.ConfidenceThreshold {
		return advisor.Decision{
			Kind:        advisor.DecisionRetryCandidates,
			Adjustments: advisor.Adjustments{TopK: p.RetryTopK},
			Reasoning:   fmt.Sprintf("framework confidence too low (%.2f < %.2f); widening the framework search", candidateConfidence, p.ConfidenceThreshold),
			Invalidates: []advisor.Field{advisor.FieldCandidates, advisor.FieldRecommendation},
		}
	}

	if mismatch := typeMismatch(rec, p); mismatch != "" {
		return advisor.Decision{
			Kind:        advisor.DecisionRetryCandidates,
			Adjustments: advisor.Adjustments{EnforceConstraint: true},
			Reasoning:   "type mismatch detected: " + mismatch,
			Invalidates: []advisor.Field{advisor.FieldCandidates, advisor.FieldRecommendation},
		}
	}

	if unknowns := rec.Unknowns(); len(unknowns) >= p.UnknownsThreshold {
		return advisor.Decision{
			Kind:      advisor.DecisionAskUser,
			Question:  fmt.Sprintf("Could you clarify: %s?", strings.Join(unknowns[:min(2, len(unknowns))], ", ")),
			Reasoning: "critical information is missing for a better recommendation",
		}
	}

	reason := "quality gates passed; the recommendation is solid"
	if noCodeAutomation(rec, p) {
		reason += " (no-code automation platform accepted for an automation-heavy use case)"
	}
	return advisor.Decision{
		Kind:      advisor.DecisionContinueEnd,
		Reasoning: reason,
	}
}

// noCodeAutomation reports a no-code platform on top of an automation heavy
// use case. It is tolerated, never a mismatch on its own.
func noCodeAutomation(rec advisor.Record, p advisor.Policy) bool {
	if rec.CorpusMatches == nil || rec.Candidates == nil || len(rec.Candidates.Candidates) == 0 {
		return false
	}
	return rec.CorpusMatches.Flags.AutomationHigh && p.IsNoCode(rec.Candidates.Candidates[0].Name)
}

// typeMismatch describes a conflict between what the matched use cases need
// and what the top candidates offer, or returns "".
func typeMismatch(rec advisor.Record, p advisor.Policy) string {
	if rec.CorpusMatches == nil || rec.Candidates == nil || len(rec.Candidates.Candidates) == 0 {
		return ""
	}
	flags := rec.CorpusMatches.Flags
	if !flags.RAGRequired {
		return ""
	}
	cands := rec.Candidates.Candidates
	for _, c := range cands[:min(3, len(cands))] {
		if p.IsRetrievalCapable(c.Name) {
			return ""
		}
	}
	return "use case needs retrieval but the top frameworks are not retrieval-focused"
}
