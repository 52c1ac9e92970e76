// Package knowledge holds the reference corpus: the use cases that corpus
// matching compares requests against and the framework catalog that
// candidate search ranks. It loads the corpus, seeds it into the search
// index and watches an override file for changes.
package knowledge

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/fyrsmithlabs/stackadvisor/internal/advisor"
	"github.com/fyrsmithlabs/stackadvisor/internal/search"
)

//go:embed corpus.toml
var embeddedCorpus []byte

var (
	// ErrInvalidCorpus indicates a corpus file that fails validation.
	ErrInvalidCorpus = errors.New("invalid corpus")
)

// UseCase is one reference use case.
type UseCase struct {
	ID                string   `toml:"id"`
	Title             string   `toml:"title"`
	Category          string   `toml:"category"`
	Description       string   `toml:"description"`
	Tags              []string `toml:"tags"`
	Challenges        []string `toml:"challenges"`
	TypicalFrameworks []string `toml:"typical_frameworks"`
}

// Framework is one recommendable framework.
type Framework struct {
	Name        string           `toml:"name"`
	Category    string           `toml:"category"`
	Description string           `toml:"description"`
	Docs        []advisor.Source `toml:"docs"`
}

// Corpus is the full reference corpus.
type Corpus struct {
	UseCases   []UseCase   `toml:"usecase"`
	Frameworks []Framework `toml:"framework"`
}

// Default returns the embedded corpus.
func Default() (*Corpus, error) {
	return Parse(embeddedCorpus)
}

// Load reads the corpus from path, or the embedded corpus when path is
// empty.
func Load(path string) (*Corpus, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading corpus %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a TOML corpus.
func Parse(data []byte) (*Corpus, error) {
	var c Corpus
	if _, err := toml.Decode(string(data), &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCorpus, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks identifiers are present and unique.
func (c *Corpus) Validate() error {
	if len(c.UseCases) == 0 || len(c.Frameworks) == 0 {
		return fmt.Errorf("%w: needs at least one use case and one framework", ErrInvalidCorpus)
	}
	ids := make(map[string]bool, len(c.UseCases))
	for i, uc := range c.UseCases {
		if uc.ID == "" || uc.Title == "" {
			return fmt.Errorf("%w: use case %d missing id or title", ErrInvalidCorpus, i)
		}
		if ids[uc.ID] {
			return fmt.Errorf("%w: duplicate use case id %q", ErrInvalidCorpus, uc.ID)
		}
		ids[uc.ID] = true
	}
	names := make(map[string]bool, len(c.Frameworks))
	for i, fw := range c.Frameworks {
		key := strings.ToLower(fw.Name)
		if key == "" {
			return fmt.Errorf("%w: framework %d missing name", ErrInvalidCorpus, i)
		}
		if names[key] {
			return fmt.Errorf("%w: duplicate framework %q", ErrInvalidCorpus, fw.Name)
		}
		names[key] = true
	}
	return nil
}

// Sources returns the documentation links of a framework, matched
// case-insensitively. Unknown frameworks have none.
func (c *Corpus) Sources(name string) []advisor.Source {
	for _, fw := range c.Frameworks {
		if strings.EqualFold(fw.Name, name) {
			return append([]advisor.Source(nil), fw.Docs...)
		}
	}
	return nil
}

// UseCaseDocuments renders the use cases as index documents.
func (c *Corpus) UseCaseDocuments() []search.Document {
	docs := make([]search.Document, len(c.UseCases))
	for i, uc := range c.UseCases {
		var b strings.Builder
		b.WriteString(uc.Title)
		b.WriteString(". ")
		b.WriteString(uc.Description)
		if len(uc.Challenges) > 0 {
			b.WriteString(" Challenges: ")
			b.WriteString(strings.Join(uc.Challenges, "; "))
			b.WriteString(".")
		}
		if len(uc.Tags) > 0 {
			b.WriteString(" Tags: ")
			b.WriteString(strings.Join(uc.Tags, ", "))
		}
		docs[i] = search.Document{
			ID:      uc.ID,
			Content: b.String(),
			Metadata: map[string]string{
				search.MetaTitle:    uc.Title,
				search.MetaCategory: uc.Category,
				search.MetaTags:     strings.Join(uc.Tags, ","),
			},
		}
	}
	return docs
}

// FrameworkDocuments renders the framework catalog as index documents.
func (c *Corpus) FrameworkDocuments() []search.Document {
	docs := make([]search.Document, len(c.Frameworks))
	for i, fw := range c.Frameworks {
		docs[i] = search.Document{
			ID:      FrameworkID(fw.Name),
			Content: fw.Name + ": " + fw.Description,
			Metadata: map[string]string{
				search.MetaTitle:     fw.Name,
				search.MetaCategory:  fw.Category,
				search.MetaFramework: fw.Name,
			},
		}
	}
	return docs
}

// FrameworkID derives a document ID from a framework name.
func FrameworkID(name string) string {
	return "fw_" + strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, name)
}
