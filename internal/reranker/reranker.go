// Package reranker reorders candidate documents by lexical relevance to a
// query, on top of the score they arrived with.
package reranker

import (
	"context"
	"errors"
	"sort"
	"strings"
	"unicode"
)

// ErrNilContext is returned when a nil context is passed to Rerank.
var ErrNilContext = errors.New("context cannot be nil")

// Document is one item to rerank.
type Document struct {
	ID      string
	Content string
	Score   float64
}

// ScoredDocument is a reranked document.
type ScoredDocument struct {
	Document
	// Overlap is the share of distinct query terms found in Content.
	Overlap float64
	// Combined blends Score and Overlap with equal weight.
	Combined     float64
	OriginalRank int
}

// Reranker reorders documents for a query.
type Reranker interface {
	// Rerank returns at most topK documents sorted by Combined, descending.
	// Ties keep their input order. topK <= 0 keeps every document.
	Rerank(ctx context.Context, query string, docs []Document, topK int) ([]ScoredDocument, error)
}

// TermOverlap scores documents by query term overlap.
type TermOverlap struct{}

// NewTermOverlap creates a TermOverlap reranker.
func NewTermOverlap() *TermOverlap {
	return &TermOverlap{}
}

func (r *TermOverlap) Rerank(ctx context.Context, query string, docs []Document, topK int) ([]ScoredDocument, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 || topK > len(docs) {
		topK = len(docs)
	}

	queryTerms := uniqueTerms(query)
	scored := make([]ScoredDocument, len(docs))
	for i, doc := range docs {
		overlap := Overlap(queryTerms, doc.Content)
		scored[i] = ScoredDocument{
			Document:     doc,
			Overlap:      overlap,
			Combined:     0.5*doc.Score + 0.5*overlap,
			OriginalRank: i,
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Combined > scored[j].Combined
	})
	return scored[:topK], nil
}

// Overlap returns the share of query terms present in text, in [0,1].
func Overlap(queryTerms []string, text string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	present := make(map[string]bool)
	for _, t := range tokenize(text) {
		present[t] = true
	}
	matches := 0
	for _, t := range queryTerms {
		if present[t] {
			matches++
		}
	}
	return float64(matches) / float64(len(queryTerms))
}

// uniqueTerms tokenizes text and drops duplicates, keeping first occurrence.
func uniqueTerms(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range tokenize(text) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// tokenize lowercases text, splits on non-alphanumerics and drops stopwords
// and terms shorter than three runes.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) > 2 && !stopwords[f] {
			out = append(out, f)
		}
	}
	return out
}

var stopwords = map[string]bool{
	"the": true, "and": true, "but": true, "for": true, "with": true, "from": true,
	"was": true, "are": true, "been": true, "being": true, "have": true, "has": true,
	"had": true, "does": true, "did": true, "will": true, "would": true, "could": true,
	"should": true, "may": true, "might": true, "can": true, "this": true, "that": true,
	"these": true, "those": true, "you": true, "she": true, "they": true, "what": true,
	"which": true, "who": true, "when": true, "where": true, "why": true, "how": true,
	"want": true, "need": true, "our": true, "your": true,
}
