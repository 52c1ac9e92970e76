package advisor

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidPolicy is returned by Policy.Validate.
var ErrInvalidPolicy = errors.New("invalid pipeline policy")

// Budgets are the per-stage time budgets.
type Budgets struct {
	Intake          time.Duration `koanf:"intake" json:"intake"`
	Profiling       time.Duration `koanf:"profiling" json:"profiling"`
	CorpusMatch     time.Duration `koanf:"corpus_match" json:"corpus_match"`
	CandidateSearch time.Duration `koanf:"candidate_search" json:"candidate_search"`
	Synthesis       time.Duration `koanf:"synthesis" json:"synthesis"`
	QualityGate     time.Duration `koanf:"quality_gate" json:"quality_gate"`
}

// Policy holds the tunable constants of the pipeline: gate thresholds,
// result counts, score corrections, fallback values and allow-lists.
type Policy struct {
	// IterationCap bounds gate evaluations that may still retry or ask.
	IterationCap int `koanf:"iteration_cap" json:"iteration_cap"`

	// ConfidenceThreshold is the minimum corpus and candidate confidence.
	ConfidenceThreshold float64 `koanf:"confidence_threshold" json:"confidence_threshold"`

	// UnknownsThreshold is the unknowns count that triggers a clarification.
	UnknownsThreshold int `koanf:"unknowns_threshold" json:"unknowns_threshold"`

	DefaultTopK int `koanf:"default_top_k" json:"default_top_k"`
	RetryTopK   int `koanf:"retry_top_k" json:"retry_top_k"`

	// Similarities below DegenerateSimilarity are replaced by a rank floor
	// of RankFloorStart - RankFloorStep*rank, never below RankFloorMin.
	DegenerateSimilarity float64 `koanf:"degenerate_similarity" json:"degenerate_similarity"`
	RankFloorStart       float64 `koanf:"rank_floor_start" json:"rank_floor_start"`
	RankFloorStep        float64 `koanf:"rank_floor_step" json:"rank_floor_step"`
	RankFloorMin         float64 `koanf:"rank_floor_min" json:"rank_floor_min"`

	// EmptyConfidence is reported when a search returns nothing.
	EmptyConfidence float64 `koanf:"empty_confidence" json:"empty_confidence"`

	DefaultCandidates  []Candidate `koanf:"default_candidates" json:"default_candidates"`
	FallbackConfidence float64     `koanf:"fallback_confidence" json:"fallback_confidence"`

	RetrievalCapable []string          `koanf:"retrieval_capable" json:"retrieval_capable"`
	NoCode           []string          `koanf:"no_code" json:"no_code"`
	TagVocabulary    map[Flag][]string `koanf:"tag_vocabulary" json:"tag_vocabulary"`

	Budgets Budgets `koanf:"budgets" json:"budgets"`
}

// DefaultPolicy returns the stock routing policy.
func DefaultPolicy() Policy {
	return Policy{
		IterationCap:         2,
		ConfidenceThreshold:  0.60,
		UnknownsThreshold:    2,
		DefaultTopK:          5,
		RetryTopK:            8,
		DegenerateSimilarity: 0.3,
		RankFloorStart:       0.8,
		RankFloorStep:        0.1,
		RankFloorMin:         0.3,
		EmptyConfidence:      0.3,
		DefaultCandidates: []Candidate{
			{Name: "LangChain", Score: 0.75, Reason: "Universal framework for AI agents. Suitable for most use cases."},
			{Name: "Google ADK", Score: 0.70, Reason: "Google's agent development kit. Good for cloud-native solutions."},
			{Name: "LlamaIndex", Score: 0.65, Reason: "Specialized for RAG and data indexing tasks."},
		},
		FallbackConfidence: 0.70,
		RetrievalCapable:   []string{"LangChain", "Chroma", "LangGraph", "Google ADK"},
		NoCode:             []string{"n8n", "Zapier"},
		TagVocabulary: map[Flag][]string{
			FlagRAGRequired:        {"rag_required", "rag", "knowledge", "knowledge_management"},
			FlagAutomationHigh:     {"automation_high", "automation", "workflow"},
			FlagConnectorsRequired: {"connectors_required", "connectors", "integration", "ticketing"},
			FlagComplianceHigh:     {"compliance_high", "compliance", "governance", "audit"},
			FlagMultiAgent:         {"multi_agent", "autonomous"},
		},
		Budgets: Budgets{
			Intake:          3 * time.Second,
			Profiling:       3 * time.Second,
			CorpusMatch:     5 * time.Second,
			CandidateSearch: 5 * time.Second,
			Synthesis:       time.Second,
			QualityGate:     time.Second,
		},
	}
}

// WithDefaults fills unset fields from DefaultPolicy.
func (p Policy) WithDefaults() Policy {
	d := DefaultPolicy()
	if p.IterationCap == 0 {
		p.IterationCap = d.IterationCap
	}
	if p.ConfidenceThreshold == 0 {
		p.ConfidenceThreshold = d.ConfidenceThreshold
	}
	if p.UnknownsThreshold == 0 {
		p.UnknownsThreshold = d.UnknownsThreshold
	}
	if p.DefaultTopK == 0 {
		p.DefaultTopK = d.DefaultTopK
	}
	if p.RetryTopK == 0 {
		p.RetryTopK = d.RetryTopK
	}
	if p.DegenerateSimilarity == 0 {
		p.DegenerateSimilarity = d.DegenerateSimilarity
	}
	if p.RankFloorStart == 0 {
		p.RankFloorStart = d.RankFloorStart
	}
	if p.RankFloorStep == 0 {
		p.RankFloorStep = d.RankFloorStep
	}
	if p.RankFloorMin == 0 {
		p.RankFloorMin = d.RankFloorMin
	}
	if p.EmptyConfidence == 0 {
		p.EmptyConfidence = d.EmptyConfidence
	}
	if len(p.DefaultCandidates) == 0 {
		p.DefaultCandidates = d.DefaultCandidates
	}
	if p.FallbackConfidence == 0 {
		p.FallbackConfidence = d.FallbackConfidence
	}
	if len(p.RetrievalCapable) == 0 {
		p.RetrievalCapable = d.RetrievalCapable
	}
	if len(p.NoCode) == 0 {
		p.NoCode = d.NoCode
	}
	if len(p.TagVocabulary) == 0 {
		p.TagVocabulary = d.TagVocabulary
	}
	if p.Budgets.Intake == 0 {
		p.Budgets.Intake = d.Budgets.Intake
	}
	if p.Budgets.Profiling == 0 {
		p.Budgets.Profiling = d.Budgets.Profiling
	}
	if p.Budgets.CorpusMatch == 0 {
		p.Budgets.CorpusMatch = d.Budgets.CorpusMatch
	}
	if p.Budgets.CandidateSearch == 0 {
		p.Budgets.CandidateSearch = d.Budgets.CandidateSearch
	}
	if p.Budgets.Synthesis == 0 {
		p.Budgets.Synthesis = d.Budgets.Synthesis
	}
	if p.Budgets.QualityGate == 0 {
		p.Budgets.QualityGate = d.Budgets.QualityGate
	}
	return p
}

// Validate checks the policy for values that would break routing.
func (p Policy) Validate() error {
	if p.IterationCap < 1 {
		return fmt.Errorf("%w: iteration_cap must be >= 1, got %d", ErrInvalidPolicy, p.IterationCap)
	}
	if p.ConfidenceThreshold < 0 || p.ConfidenceThreshold > 1 {
		return fmt.Errorf("%w: confidence_threshold must be in [0,1], got %f", ErrInvalidPolicy, p.ConfidenceThreshold)
	}
	if p.DefaultTopK < 1 || p.RetryTopK < 1 {
		return fmt.Errorf("%w: top_k values must be positive", ErrInvalidPolicy)
	}
	if len(p.DefaultCandidates) == 0 {
		return fmt.Errorf("%w: default_candidates cannot be empty", ErrInvalidPolicy)
	}
	for _, c := range p.DefaultCandidates {
		if c.Name == "" || c.Score < 0 || c.Score > 1 {
			return fmt.Errorf("%w: default candidate %q has invalid name or score", ErrInvalidPolicy, c.Name)
		}
	}
	return nil
}

// Budget returns the time budget for a stage.
func (p Policy) Budget(stage StageName) time.Duration {
	switch stage {
	case StageIntake:
		return p.Budgets.Intake
	case StageProfiling:
		return p.Budgets.Profiling
	case StageCorpusMatch:
		return p.Budgets.CorpusMatch
	case StageCandidateSearch:
		return p.Budgets.CandidateSearch
	case StageSynthesis:
		return p.Budgets.Synthesis
	case StageQualityGate:
		return p.Budgets.QualityGate
	}
	return 0
}

// IsRetrievalCapable reports whether a candidate name contains an entry of
// the retrieval allow-list.
func (p Policy) IsRetrievalCapable(name string) bool {
	return containsAny(name, p.RetrievalCapable)
}

// IsNoCode reports whether a candidate name contains an entry of the
// no-code list.
func (p Policy) IsNoCode(name string) bool {
	return containsAny(name, p.NoCode)
}

// FallbackCandidates returns a copy of the default candidate set.
func (p Policy) FallbackCandidates() CandidateSet {
	cands := make([]Candidate, len(p.DefaultCandidates))
	copy(cands, p.DefaultCandidates)
	return CandidateSet{
		Candidates: cands,
		Confidence: p.FallbackConfidence,
		Summary:    "No candidates found; using default frameworks.",
		Fallback:   true,
	}
}

func containsAny(name string, list []string) bool {
	lower := strings.ToLower(name)
	for _, entry := range list {
		if entry != "" && strings.Contains(lower, strings.ToLower(entry)) {
			return true
		}
	}
	return false
}
