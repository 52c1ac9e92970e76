package stages

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/stackadvisor/internal/advisor"
	"github.com/fyrsmithlabs/stackadvisor/internal/reranker"
	"github.com/fyrsmithlabs/stackadvisor/internal/search"
)

const (
	reasonPreviewRunes = 100

	// retrievalTerms are matched against candidate descriptions when the
	// matched use cases require retrieval.
	retrievalTerms = "retrieval rag knowledge documents search index vector"
)

// CandidateSearch ranks frameworks against the requirements.
type CandidateSearch struct {
	searcher   search.Searcher
	collection string
	catalog    Catalog
	reranker   reranker.Reranker
	policy     advisor.Policy
}

// NewCandidateSearch creates the candidate search stage.
func NewCandidateSearch(searcher search.Searcher, collection string, catalog Catalog, rr reranker.Reranker, policy advisor.Policy) *CandidateSearch {
	if catalog == nil {
		catalog = noSources{}
	}
	if rr == nil {
		rr = reranker.NewTermOverlap()
	}
	return &CandidateSearch{
		searcher:   searcher,
		collection: collection,
		catalog:    catalog,
		reranker:   rr,
		policy:     policy,
	}
}

func (s *CandidateSearch) Name() advisor.StageName { return advisor.StageCandidateSearch }

func (s *CandidateSearch) Requires() []advisor.Field {
	return []advisor.Field{advisor.FieldRequirements, advisor.FieldCorpusMatches}
}

func (s *CandidateSearch) Run(ctx context.Context, rec advisor.Record, adj advisor.Adjustments) (advisor.Update, error) {
	if s.searcher == nil {
		return nil, fmt.Errorf("candidate search: no search index configured")
	}
	k := s.policy.DefaultTopK
	if adj.TopK > 0 {
		k = adj.TopK
	}

	hits, err := s.searcher.Search(ctx, s.collection, candidateQuery(rec), k)
	if err != nil {
		return nil, fmt.Errorf("candidate search: %w", err)
	}

	seen := make(map[string]bool, len(hits))
	cands := make([]advisor.Candidate, 0, len(hits))
	for _, h := range hits {
		name := h.Metadata[search.MetaFramework]
		if name == "" {
			name = h.Title
		}
		key := strings.ToLower(name)
		if name == "" || seen[key] {
			continue
		}
		seen[key] = true
		cands = append(cands, advisor.Candidate{
			Name:    name,
			Score:   clamp01(1 - h.Distance),
			Reason:  advisor.Truncate(h.Content, reasonPreviewRunes) + "...",
			Sources: s.catalog.Sources(name),
		})
	}

	if adj.EnforceConstraint {
		cands, err = s.enforce(ctx, rec, cands)
		if err != nil {
			return nil, fmt.Errorf("candidate search: %w", err)
		}
	}
	if len(cands) == 0 {
		return nil, ErrNoCandidates
	}

	confidence := 0.0
	for _, c := range cands {
		confidence = max(confidence, c.Score)
	}
	return advisor.CandidatesUpdate{Candidates: advisor.CandidateSet{
		Candidates: cands,
		Confidence: confidence,
		Summary:    candidateSummary(cands[0], rec.Requirements.AutomationLevel),
	}}, nil
}

// Fallback returns the policy's default frameworks so synthesis never sees
// an empty set.
func (s *CandidateSearch) Fallback(_ advisor.Record, _ error) advisor.Update {
	return advisor.CandidatesUpdate{Candidates: s.policy.FallbackCandidates()}
}

// enforce drops excluded frameworks and reorders the rest: required
// frameworks first, then retrieval-capable ones when retrieval is required,
// then everything else. Each group keeps the reranker's order. Scores are
// left untouched.
func (s *CandidateSearch) enforce(ctx context.Context, rec advisor.Record, cands []advisor.Candidate) ([]advisor.Candidate, error) {
	req := rec.Requirements
	ragRequired := rec.CorpusMatches.Flags.RAGRequired

	kept := cands[:0:0]
	for _, c := range cands {
		if !matchesAny(c.Name, req.MustAvoidFrameworks) {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return kept, nil
	}

	terms := append([]string{}, req.MustHaveFrameworks...)
	if ragRequired {
		terms = append(terms, retrievalTerms)
	}
	terms = append(terms, req.UseCaseGoal)

	docs := make([]reranker.Document, len(kept))
	for i, c := range kept {
		docs[i] = reranker.Document{ID: strconv.Itoa(i), Content: c.Name + " " + c.Reason, Score: c.Score}
	}
	ranked, err := s.reranker.Rerank(ctx, strings.Join(terms, " "), docs, 0)
	if err != nil {
		return nil, err
	}

	out := make([]advisor.Candidate, 0, len(ranked))
	for _, d := range ranked {
		i, _ := strconv.Atoi(d.ID)
		out = append(out, kept[i])
	}
	group := func(c advisor.Candidate) int {
		switch {
		case matchesAny(c.Name, req.MustHaveFrameworks):
			return 0
		case ragRequired && s.policy.IsRetrievalCapable(c.Name):
			return 1
		}
		return 2
	}
	sort.SliceStable(out, func(i, j int) bool {
		return group(out[i]) < group(out[j])
	})
	return out, nil
}

func candidateQuery(rec advisor.Record) string {
	q := rec.Requirements.UseCaseGoal
	if top, ok := rec.CorpusMatches.Top(); ok {
		q += fmt.Sprintf(" (similar to: %s)", top.Title)
	}
	return q
}

func candidateSummary(top advisor.Candidate, level advisor.AutomationLevel) string {
	automation := string(level)
	if automation == "" {
		automation = "unspecified"
	}
	return fmt.Sprintf("Top framework: %s (score %.2f) for %s requirements.", top.Name, top.Score, automation)
}

// matchesAny reports whether name and some entry contain one another,
// ignoring case.
func matchesAny(name string, list []string) bool {
	n := strings.ToLower(name)
	for _, entry := range list {
		e := strings.ToLower(strings.TrimSpace(entry))
		if e != "" && (strings.Contains(n, e) || strings.Contains(e, n)) {
			return true
		}
	}
	return false
}
