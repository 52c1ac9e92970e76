// Package advisor defines the analysis record threaded through the
// recommendation pipeline, the stage contract every pipeline step implements,
// and the routing policy that drives the quality gate.
package advisor

import (
	"time"
)

// StageName identifies a pipeline stage.
type StageName string

const (
	StageIntake          StageName = "intake"
	StageProfiling       StageName = "profiling"
	StageCorpusMatch     StageName = "corpus_match"
	StageCandidateSearch StageName = "candidate_search"
	StageSynthesis       StageName = "synthesis"
	StageQualityGate     StageName = "quality_gate"
)

// AllStages returns the stages in forward execution order.
func AllStages() []StageName {
	return []StageName{
		StageIntake,
		StageProfiling,
		StageCorpusMatch,
		StageCandidateSearch,
		StageSynthesis,
		StageQualityGate,
	}
}

// Field names a replaceable section of the Record.
type Field string

const (
	FieldRequirements   Field = "requirements"
	FieldProfile        Field = "profile"
	FieldCorpusMatches  Field = "corpus_matches"
	FieldCandidates     Field = "candidates"
	FieldRecommendation Field = "recommendation"
	FieldDecision       Field = "decision"
)

// AutomationLevel is the automation tier a use case needs.
type AutomationLevel string

const (
	AutomationQAOnly      AutomationLevel = "qa_only"
	AutomationToolActions AutomationLevel = "tool_actions"
	AutomationWorkflow    AutomationLevel = "workflow_automation"
)

// Valid reports whether l is a known tier.
func (l AutomationLevel) Valid() bool {
	switch l {
	case AutomationQAOnly, AutomationToolActions, AutomationWorkflow:
		return true
	}
	return false
}

// Requirements is the structured intent extracted from the raw request.
type Requirements struct {
	UseCaseGoal         string          `json:"use_case_goal"`
	Constraints         []string        `json:"constraints"`
	DataSources         []string        `json:"data_sources"`
	AutomationLevel     AutomationLevel `json:"automation_level"`
	NoCodeImportance    *int            `json:"no_code_importance,omitempty"`
	EnterpriseNeeded    *bool           `json:"enterprise_needed,omitempty"`
	TeamSize            *int            `json:"team_size,omitempty"`
	Budget              *string         `json:"budget,omitempty"`
	MustHaveFrameworks  []string        `json:"must_have_frameworks"`
	MustAvoidFrameworks []string        `json:"must_avoid_frameworks"`
	Unknowns            []string        `json:"unknowns"`
}

// NoCode returns the no-code importance score, or def when unset.
func (r Requirements) NoCode(def int) int {
	if r.NoCodeImportance == nil {
		return def
	}
	return *r.NoCodeImportance
}

// Enterprise reports whether enterprise capabilities were requested.
func (r Requirements) Enterprise() bool {
	return r.EnterpriseNeeded != nil && *r.EnterpriseNeeded
}

// SkillLevel is the requester's technical depth.
type SkillLevel string

const (
	SkillBeginner     SkillLevel = "beginner"
	SkillIntermediate SkillLevel = "intermediate"
	SkillExpert       SkillLevel = "expert"
)

// OrgContext is the organizational setting of the project.
type OrgContext string

const (
	OrgPrototype  OrgContext = "prototype"
	OrgEnterprise OrgContext = "enterprise"
)

// Level is a low/medium/high tier used for risk tolerance and compliance.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Profile classifies the requester.
type Profile struct {
	SkillLevel            SkillLevel `json:"skill_level"`
	OrgContext            OrgContext `json:"org_context"`
	RiskTolerance         Level      `json:"risk_tolerance"`
	ComplianceSensitivity Level      `json:"compliance_sensitivity"`
	PrefersNoCode         bool       `json:"prefers_nocode"`
}

// Match is one reference use case returned by corpus matching.
type Match struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Score    float64  `json:"score"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

// MatchSet is the ranked corpus match result.
type MatchSet struct {
	Matches    []Match `json:"matches"`
	Flags      Flags   `json:"flags"`
	Confidence float64 `json:"confidence"`
	Summary    string  `json:"summary,omitempty"`
}

// Top returns the best match, if any.
func (m MatchSet) Top() (Match, bool) {
	if len(m.Matches) == 0 {
		return Match{}, false
	}
	return m.Matches[0], true
}

// Source is an evidence reference for a candidate.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Kind  string `json:"kind,omitempty"`
}

// Candidate is one ranked solution candidate.
type Candidate struct {
	Name    string   `json:"name"`
	Score   float64  `json:"score"`
	Reason  string   `json:"reason"`
	Sources []Source `json:"sources,omitempty"`
}

// CandidateSet is the ranked candidate search result.
type CandidateSet struct {
	Candidates []Candidate `json:"candidates"`
	Confidence float64     `json:"confidence"`
	Summary    string      `json:"summary,omitempty"`
	Fallback   bool        `json:"fallback,omitempty"`
}

// ArchitectureType is the suggested agent topology.
type ArchitectureType string

const (
	ArchitectureMultiAgent  ArchitectureType = "multi_agent"
	ArchitectureAgenticRAG  ArchitectureType = "agentic_rag"
	ArchitectureSingleAgent ArchitectureType = "single_agent"
)

// Architecture describes the suggested solution shape.
type Architecture struct {
	Type       ArchitectureType `json:"type"`
	RAG        bool             `json:"rag"`
	Tools      bool             `json:"tools"`
	Escalation bool             `json:"escalation"`
	Notes      []string         `json:"notes"`
}

// Recommendation is the synthesized answer.
type Recommendation struct {
	Top          Candidate    `json:"top"`
	Top3         []Candidate  `json:"top3"`
	Architecture Architecture `json:"architecture"`
	Reasoning    string       `json:"reasoning"`
	Assumptions  []string     `json:"assumptions"`
	Risks        []string     `json:"risks"`
	Sources      []Source     `json:"sources"`
	CapReached   bool         `json:"cap_reached,omitempty"`
}

// StageEvent is one entry of the audit trail.
type StageEvent struct {
	Stage     StageName     `json:"stage"`
	Iteration int           `json:"iteration"`
	Summary   string        `json:"summary,omitempty"`
	Error     string        `json:"error,omitempty"`
	Fallback  bool          `json:"fallback,omitempty"`
	Duration  time.Duration `json:"duration"`
	At        time.Time     `json:"at"`
}

// Record is the evolving state of one advisory session. Sections are only
// ever replaced wholesale through Apply or cleared through Invalidate.
type Record struct {
	SessionID      string          `json:"session_id,omitempty"`
	RawInput       string          `json:"raw_input"`
	Answers        map[string]any  `json:"answers,omitempty"`
	Requirements   *Requirements   `json:"requirements,omitempty"`
	Profile        *Profile        `json:"profile,omitempty"`
	CorpusMatches  *MatchSet       `json:"corpus_matches,omitempty"`
	Candidates     *CandidateSet   `json:"candidates,omitempty"`
	Recommendation *Recommendation `json:"recommendation,omitempty"`
	Decision       *Decision       `json:"decision,omitempty"`
	IterationCount int             `json:"iteration_count"`
	History        []StageEvent    `json:"history"`
}

// NewRecord creates a record holding only the raw input and direct answers.
func NewRecord(rawInput string, answers map[string]any) *Record {
	return &Record{
		RawInput: rawInput,
		Answers:  answers,
		History:  []StageEvent{},
	}
}

// Has reports whether the given section is populated.
func (r Record) Has(f Field) bool {
	switch f {
	case FieldRequirements:
		return r.Requirements != nil
	case FieldProfile:
		return r.Profile != nil
	case FieldCorpusMatches:
		return r.CorpusMatches != nil
	case FieldCandidates:
		return r.Candidates != nil && len(r.Candidates.Candidates) > 0
	case FieldRecommendation:
		return r.Recommendation != nil
	case FieldDecision:
		return r.Decision != nil
	}
	return false
}

// Apply replaces the section the update carries.
func (r *Record) Apply(u Update) {
	u.applyTo(r)
}

// Invalidate clears the named sections so they must be recomputed.
func (r *Record) Invalidate(fields ...Field) {
	for _, f := range fields {
		switch f {
		case FieldRequirements:
			r.Requirements = nil
		case FieldProfile:
			r.Profile = nil
		case FieldCorpusMatches:
			r.CorpusMatches = nil
		case FieldCandidates:
			r.Candidates = nil
		case FieldRecommendation:
			r.Recommendation = nil
		case FieldDecision:
			r.Decision = nil
		}
	}
}

// Suspended reports whether the session waits for requester input.
func (r Record) Suspended() bool {
	return r.Decision != nil && r.Decision.Kind == DecisionAskUser
}

// Terminal reports whether the session reached CONTINUE_END.
func (r Record) Terminal() bool {
	return r.Decision != nil && r.Decision.Kind == DecisionContinueEnd
}

// Unknowns returns the unresolved requirement unknowns.
func (r Record) Unknowns() []string {
	if r.Requirements == nil {
		return nil
	}
	return r.Requirements.Unknowns
}

// FallbackStages lists the stages whose latest run used fallback data.
func (r Record) FallbackStages() []StageName {
	latest := make(map[StageName]bool)
	order := make([]StageName, 0, len(r.History))
	for _, ev := range r.History {
		if _, seen := latest[ev.Stage]; !seen {
			order = append(order, ev.Stage)
		}
		latest[ev.Stage] = ev.Fallback
	}
	var out []StageName
	for _, s := range order {
		if latest[s] {
			out = append(out, s)
		}
	}
	return out
}
