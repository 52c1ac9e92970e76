package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/stackadvisor/internal/advisor"
)

const (
	maxSourcesPerCandidate = 2
	maxSources             = 5
)

// Synthesis combines requirements, profile, matches and candidates into a
// recommendation. It is deterministic and performs no I/O.
type Synthesis struct {
	policy advisor.Policy
}

// NewSynthesis creates the synthesis stage.
func NewSynthesis(policy advisor.Policy) *Synthesis {
	return &Synthesis{policy: policy}
}

func (s *Synthesis) Name() advisor.StageName { return advisor.StageSynthesis }

func (s *Synthesis) Requires() []advisor.Field {
	return []advisor.Field{
		advisor.FieldRequirements,
		advisor.FieldProfile,
		advisor.FieldCorpusMatches,
		advisor.FieldCandidates,
	}
}

func (s *Synthesis) Run(ctx context.Context, rec advisor.Record, _ advisor.Adjustments) (advisor.Update, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return advisor.RecommendationUpdate{Recommendation: s.Synthesize(rec)}, nil
}

// Fallback synthesizes the same recommendation; the stage cannot fail on
// valid input.
func (s *Synthesis) Fallback(rec advisor.Record, _ error) advisor.Update {
	return advisor.RecommendationUpdate{Recommendation: s.Synthesize(rec)}
}

// Synthesize builds the recommendation for rec. Missing sections are
// treated as empty.
func (s *Synthesis) Synthesize(rec advisor.Record) advisor.Recommendation {
	var (
		req     advisor.Requirements
		profile advisor.Profile
		matches advisor.MatchSet
	)
	if rec.Requirements != nil {
		req = *rec.Requirements
	}
	if rec.Profile != nil {
		profile = *rec.Profile
	}
	if rec.CorpusMatches != nil {
		matches = *rec.CorpusMatches
	}
	cands := s.policy.FallbackCandidates().Candidates
	if rec.Has(advisor.FieldCandidates) {
		cands = rec.Candidates.Candidates
	}

	top := cands[0]
	top3 := append([]advisor.Candidate(nil), cands[:min(3, len(cands))]...)
	return advisor.Recommendation{
		Top:          top,
		Top3:         top3,
		Architecture: architecture(matches.Flags, req),
		Reasoning:    reasoning(top, req, profile, matches),
		Assumptions:  assumptions(profile),
		Risks:        risks(matches.Flags, req, profile),
		Sources:      collectSources(top3),
	}
}

func architecture(flags advisor.Flags, req advisor.Requirements) advisor.Architecture {
	a := advisor.Architecture{
		Type:       advisor.ArchitectureSingleAgent,
		RAG:        flags.RAGRequired,
		Tools:      flags.ConnectorsRequired,
		Escalation: len(req.Unknowns) > 0,
		Notes:      []string{},
	}
	switch {
	case flags.MultiAgentRecommended:
		a.Type = advisor.ArchitectureMultiAgent
	case a.RAG && !a.Tools:
		a.Type = advisor.ArchitectureAgenticRAG
	}

	if a.RAG {
		a.Notes = append(a.Notes, "RAG with semantic search for document retrieval")
	}
	if a.Tools {
		a.Notes = append(a.Notes, "Connector integration for APIs/data sources")
	}
	if a.Escalation {
		a.Notes = append(a.Notes, "Human escalation pattern for complex cases")
	}
	if len(a.Notes) == 0 {
		a.Notes = append(a.Notes, "Standard single-agent setup")
	}
	return a
}

func reasoning(top advisor.Candidate, req advisor.Requirements, profile advisor.Profile, matches advisor.MatchSet) string {
	parts := []string{
		fmt.Sprintf("Framework '%s' (score %.2f) recommended based on:", top.Name, top.Score),
		fmt.Sprintf("- Use case: %s...", advisor.Truncate(req.UseCaseGoal, 50)),
	}
	if m, ok := matches.Top(); ok {
		parts = append(parts, fmt.Sprintf("- Reference use case: %s (score %.2f)", m.Title, m.Score))
	}
	parts = append(parts,
		fmt.Sprintf("- Profile: %s skill, %s context", profile.SkillLevel, profile.OrgContext),
		fmt.Sprintf("- Top reason: %s...", advisor.Truncate(strings.TrimSuffix(top.Reason, "..."), 80)),
	)
	return strings.Join(parts, " ")
}

func assumptions(profile advisor.Profile) []string {
	out := []string{
		"Documentation and knowledge sources are available",
		"Team has access to the required APIs/data sources",
	}
	if profile.SkillLevel == advisor.SkillBeginner {
		out = append(out, "Community support is sufficient for a no-code approach")
	}
	return out
}

func risks(flags advisor.Flags, req advisor.Requirements, profile advisor.Profile) []string {
	out := []string{}
	if flags.ConnectorsRequired {
		out = append(out,
			"API permissions and access rights must be clarified",
			"Dependency on external API latency and availability",
		)
	}
	if flags.ComplianceHigh || profile.ComplianceSensitivity == advisor.LevelHigh {
		out = append(out, "Compliance audit required before production")
	}
	if n := len(req.Unknowns); n > 0 {
		out = append(out, fmt.Sprintf("%d critical pieces of information missing", n))
	}
	if profile.RiskTolerance == advisor.LevelLow && flags.AutomationHigh {
		out = append(out, "Robust error handling required for automated actions")
	}
	return out
}

func collectSources(top3 []advisor.Candidate) []advisor.Source {
	out := []advisor.Source{}
	seen := make(map[string]bool)
	for _, c := range top3 {
		for _, src := range c.Sources[:min(maxSourcesPerCandidate, len(c.Sources))] {
			key := src.URL
			if key == "" {
				key = src.Title
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, src)
			if len(out) == maxSources {
				return out
			}
		}
	}
	return out
}
