package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/stackadvisor/internal/advisor"
	"github.com/fyrsmithlabs/stackadvisor/internal/search"
)

// CorpusMatch finds the reference use cases closest to the requirements and
// derives capability flags from their tags.
type CorpusMatch struct {
	searcher   search.Searcher
	collection string
	policy     advisor.Policy
}

// NewCorpusMatch creates the corpus matching stage.
func NewCorpusMatch(searcher search.Searcher, collection string, policy advisor.Policy) *CorpusMatch {
	return &CorpusMatch{searcher: searcher, collection: collection, policy: policy}
}

func (s *CorpusMatch) Name() advisor.StageName { return advisor.StageCorpusMatch }

func (s *CorpusMatch) Requires() []advisor.Field {
	return []advisor.Field{advisor.FieldRequirements}
}

func (s *CorpusMatch) Run(ctx context.Context, rec advisor.Record, adj advisor.Adjustments) (advisor.Update, error) {
	if s.searcher == nil {
		return nil, fmt.Errorf("corpus match: no search index configured")
	}
	k := s.policy.DefaultTopK
	if adj.TopK > 0 {
		k = adj.TopK
	}

	hits, err := s.searcher.Search(ctx, s.collection, corpusQuery(*rec.Requirements), k)
	if err != nil {
		return nil, fmt.Errorf("corpus match: %w", err)
	}

	matches := make([]advisor.Match, 0, len(hits))
	tagSets := make([][]string, 0, len(hits))
	confidence := 0.0
	for i, h := range hits {
		m := advisor.Match{
			ID:       h.ID,
			Title:    h.Title,
			Score:    s.similarity(h.Distance, i),
			Category: h.Metadata[search.MetaCategory],
			Tags:     looseStrings(h.Metadata[search.MetaTags]),
		}
		matches = append(matches, m)
		tagSets = append(tagSets, m.Tags)
		confidence = max(confidence, m.Score)
	}
	if len(matches) == 0 {
		confidence = s.policy.EmptyConfidence
	}

	return advisor.MatchesUpdate{Matches: advisor.MatchSet{
		Matches:    matches,
		Flags:      advisor.DeriveFlags(tagSets, s.policy.TagVocabulary),
		Confidence: confidence,
		Summary:    matchSummary(matches),
	}}, nil
}

// Fallback reports no matches at the empty-result confidence.
func (s *CorpusMatch) Fallback(_ advisor.Record, _ error) advisor.Update {
	return advisor.MatchesUpdate{Matches: advisor.MatchSet{
		Matches:    []advisor.Match{},
		Confidence: s.policy.EmptyConfidence,
		Summary:    "Reference use case search unavailable; the recommendation will be general.",
	}}
}

// similarity converts a cosine distance to a score. Degenerate similarities
// (for instance from placeholder embeddings) fall back to a floor that
// decreases with rank.
func (s *CorpusMatch) similarity(distance float64, rank int) float64 {
	sim := 1 - distance
	if sim < s.policy.DegenerateSimilarity {
		sim = max(s.policy.RankFloorMin, s.policy.RankFloorStart-s.policy.RankFloorStep*float64(rank))
	}
	return clamp01(sim)
}

func corpusQuery(req advisor.Requirements) string {
	enterprise := "unknown"
	if req.EnterpriseNeeded != nil {
		enterprise = fmt.Sprint(*req.EnterpriseNeeded)
	}
	var sb strings.Builder
	sb.WriteString(req.UseCaseGoal)
	fmt.Fprintf(&sb, "\nConstraints: %s", strings.Join(req.Constraints, ", "))
	fmt.Fprintf(&sb, "\nData Sources: %s", strings.Join(req.DataSources, ", "))
	fmt.Fprintf(&sb, "\nAutomation Level: %s", req.AutomationLevel)
	fmt.Fprintf(&sb, "\nEnterprise Needed: %s", enterprise)
	return sb.String()
}

func matchSummary(matches []advisor.Match) string {
	if len(matches) == 0 {
		return "No close reference use cases found; the recommendation will be general."
	}
	titles := make([]string, 0, 3)
	for _, m := range matches[:min(3, len(matches))] {
		titles = append(titles, m.Title)
	}
	return "Similar to reference use cases: " + strings.Join(titles, ", ")
}
