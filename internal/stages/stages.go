// Package stages implements the six pipeline steps of an advisory session:
// requirement extraction, requester profiling, reference use case matching,
// framework candidate search, recommendation synthesis and the quality gate.
//
// Every stage is safe for concurrent use. Stages never mutate the record
// they are handed; they return an advisor.Update for the orchestrator to
// merge.
package stages

import (
	"errors"

	"github.com/fyrsmithlabs/stackadvisor/internal/advisor"
	"github.com/fyrsmithlabs/stackadvisor/internal/llm"
	"github.com/fyrsmithlabs/stackadvisor/internal/logging"
	"github.com/fyrsmithlabs/stackadvisor/internal/reranker"
	"github.com/fyrsmithlabs/stackadvisor/internal/search"
)

var (
	// ErrUnparsableResponse is returned when a model reply holds no JSON object.
	ErrUnparsableResponse = errors.New("unparsable model response")

	// ErrNoCandidates is returned when a framework search yields nothing.
	ErrNoCandidates = errors.New("no framework candidates found")
)

// Catalog resolves documentation links for a framework name.
type Catalog interface {
	Sources(name string) []advisor.Source
}

// Deps are the collaborators shared by the stages.
type Deps struct {
	LLM      llm.Client
	Searcher search.Searcher
	Catalog  Catalog
	Reranker reranker.Reranker
	Policy   advisor.Policy
	Logger   *logging.Logger

	UseCaseCollection   string
	FrameworkCollection string
}

// All builds the stages in forward execution order.
func All(d Deps) []advisor.Stage {
	if d.Logger == nil {
		d.Logger = logging.Nop()
	}
	if d.Reranker == nil {
		d.Reranker = reranker.NewTermOverlap()
	}
	if d.Catalog == nil {
		d.Catalog = noSources{}
	}
	return []advisor.Stage{
		NewIntake(d.LLM, d.Logger),
		NewProfiling(d.LLM, d.Logger),
		NewCorpusMatch(d.Searcher, d.UseCaseCollection, d.Policy),
		NewCandidateSearch(d.Searcher, d.FrameworkCollection, d.Catalog, d.Reranker, d.Policy),
		NewSynthesis(d.Policy),
		NewQualityGate(d.Policy),
	}
}

type noSources struct{}

func (noSources) Sources(string) []advisor.Source { return nil }

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
