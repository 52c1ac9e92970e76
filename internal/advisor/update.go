package advisor

import (
	"fmt"
	"strings"
)

// Update is the output of one stage run. Each variant replaces exactly one
// section of the Record; the set of variants is closed.
type Update interface {
	// Field returns the section this update replaces.
	Field() Field

	// Summary describes the update for the audit trail.
	Summary() string

	applyTo(r *Record)
}

// RequirementsUpdate is produced by Intake.
type RequirementsUpdate struct {
	Requirements Requirements
}

func (u RequirementsUpdate) Field() Field { return FieldRequirements }

func (u RequirementsUpdate) Summary() string {
	return fmt.Sprintf("goal=%q automation=%s unknowns=%d",
		Truncate(u.Requirements.UseCaseGoal, 60), u.Requirements.AutomationLevel, len(u.Requirements.Unknowns))
}

func (u RequirementsUpdate) applyTo(r *Record) {
	req := u.Requirements
	r.Requirements = &req
}

// ProfileUpdate is produced by Profiling.
type ProfileUpdate struct {
	Profile Profile
}

func (u ProfileUpdate) Field() Field { return FieldProfile }

func (u ProfileUpdate) Summary() string {
	return fmt.Sprintf("skill=%s org=%s risk=%s compliance=%s",
		u.Profile.SkillLevel, u.Profile.OrgContext, u.Profile.RiskTolerance, u.Profile.ComplianceSensitivity)
}

func (u ProfileUpdate) applyTo(r *Record) {
	p := u.Profile
	r.Profile = &p
}

// MatchesUpdate is produced by Corpus-Match.
type MatchesUpdate struct {
	Matches MatchSet
}

func (u MatchesUpdate) Field() Field { return FieldCorpusMatches }

func (u MatchesUpdate) Summary() string {
	return fmt.Sprintf("%d matches, confidence %.2f, flags [%s]",
		len(u.Matches.Matches), u.Matches.Confidence, strings.Join(u.Matches.Flags.Names(), ","))
}

func (u MatchesUpdate) applyTo(r *Record) {
	m := u.Matches
	r.CorpusMatches = &m
}

// CandidatesUpdate is produced by Candidate-Search.
type CandidatesUpdate struct {
	Candidates CandidateSet
}

func (u CandidatesUpdate) Field() Field { return FieldCandidates }

func (u CandidatesUpdate) Summary() string {
	names := make([]string, 0, 3)
	for i, c := range u.Candidates.Candidates {
		if i == 3 {
			break
		}
		names = append(names, c.Name)
	}
	return fmt.Sprintf("%d candidates, confidence %.2f, top [%s]",
		len(u.Candidates.Candidates), u.Candidates.Confidence, strings.Join(names, ","))
}

func (u CandidatesUpdate) applyTo(r *Record) {
	c := u.Candidates
	r.Candidates = &c
}

// RecommendationUpdate is produced by Synthesis.
type RecommendationUpdate struct {
	Recommendation Recommendation
}

func (u RecommendationUpdate) Field() Field { return FieldRecommendation }

func (u RecommendationUpdate) Summary() string {
	return fmt.Sprintf("top=%s architecture=%s risks=%d",
		u.Recommendation.Top.Name, u.Recommendation.Architecture.Type, len(u.Recommendation.Risks))
}

func (u RecommendationUpdate) applyTo(r *Record) {
	rec := u.Recommendation
	r.Recommendation = &rec
}

// DecisionUpdate is produced by the Quality-Gate. Applying it also advances
// the iteration counter, so the counter moves exactly once per evaluation.
type DecisionUpdate struct {
	Decision Decision
}

func (u DecisionUpdate) Field() Field { return FieldDecision }

func (u DecisionUpdate) Summary() string {
	return fmt.Sprintf("%s: %s", u.Decision.Kind, u.Decision.Reasoning)
}

func (u DecisionUpdate) applyTo(r *Record) {
	d := u.Decision
	r.Decision = &d
	r.IterationCount++
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
