package secrets

import (
	"regexp"
	"sort"
	"strings"
)

// Scrubber redacts secrets from text.
type Scrubber interface {
	Scrub(text string) Result
}

// Result is the outcome of one Scrub call. It never holds the matched values.
type Result struct {
	Text     string
	Findings int
	// ByRule counts findings per rule ID.
	ByRule map[string]int
}

// RuleIDs returns the IDs of the rules that matched, sorted.
func (r Result) RuleIDs() []string {
	ids := make([]string, 0, len(r.ByRule))
	for id := range r.ByRule {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type scrubber struct {
	rules     []compiledRule
	allow     []*regexp.Regexp
	redaction string
}

type span struct{ start, end int }

// New creates a Scrubber. A nil cfg uses DefaultConfig; a disabled cfg
// yields Nop.
func New(cfg *Config) (Scrubber, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if !cfg.Enabled {
		return Nop{}, nil
	}
	rules, allow, err := cfg.compile()
	if err != nil {
		return nil, err
	}
	redaction := cfg.Redaction
	if redaction == "" {
		redaction = defaultRedaction
	}
	return &scrubber{rules: rules, allow: allow, redaction: redaction}, nil
}

func (s *scrubber) Scrub(text string) Result {
	res := Result{Text: text}
	var spans []span

	for _, rule := range s.rules {
		if !rule.applies(text) {
			continue
		}
		for _, m := range rule.pattern.FindAllStringIndex(text, -1) {
			if s.allowed(text[m[0]:m[1]]) || covered(spans, m[0], m[1]) {
				continue
			}
			if res.ByRule == nil {
				res.ByRule = make(map[string]int)
			}
			res.ByRule[rule.id]++
			res.Findings++
			spans = append(spans, span{m[0], m[1]})
		}
	}
	if len(spans) == 0 {
		return res
	}

	var b strings.Builder
	last := 0
	for _, sp := range merge(spans) {
		b.WriteString(text[last:sp.start])
		b.WriteString(s.redaction)
		last = sp.end
	}
	b.WriteString(text[last:])
	res.Text = b.String()
	return res
}

func (r compiledRule) applies(text string) bool {
	if len(r.keywords) == 0 {
		return true
	}
	for _, kw := range r.keywords {
		if kw.MatchString(text) {
			return true
		}
	}
	return false
}

func (s *scrubber) allowed(match string) bool {
	for _, re := range s.allow {
		if re.MatchString(match) {
			return true
		}
	}
	return false
}

// covered reports whether [start,end) lies inside an already recorded span,
// so a generic rule does not count a secret a specific rule found.
func covered(spans []span, start, end int) bool {
	for _, sp := range spans {
		if start >= sp.start && end <= sp.end {
			return true
		}
	}
	return false
}

// merge sorts spans and joins overlapping or adjacent ones.
func merge(spans []span) []span {
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	out := []span{spans[0]}
	for _, sp := range spans[1:] {
		last := &out[len(out)-1]
		if sp.start <= last.end {
			last.end = max(last.end, sp.end)
			continue
		}
		out = append(out, sp)
	}
	return out
}

// Nop returns text unchanged.
type Nop struct{}

func (Nop) Scrub(text string) Result { return Result{Text: text} }
