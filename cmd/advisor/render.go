package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/stackadvisor/internal/advisor"
)

type outputFormat string

const (
	formatText outputFormat = "text"
	formatJSON outputFormat = "json"
	formatYAML outputFormat = "yaml"
)

func parseFormat(s string) (outputFormat, error) {
	switch f := outputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case formatText, formatJSON, formatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json or yaml)", s)
	}
}

// report is the machine readable result of an advise run.
type report struct {
	SessionID      string                  `json:"session_id"`
	Status         string                  `json:"status"`
	Question       string                  `json:"question,omitempty"`
	IterationCount int                     `json:"iteration_count"`
	FallbackStages []advisor.StageName     `json:"fallback_stages,omitempty"`
	Recommendation *advisor.Recommendation `json:"recommendation,omitempty"`
	Decision       *advisor.Decision       `json:"decision,omitempty"`
}

func newReport(rec *advisor.Record) report {
	r := report{
		SessionID:      rec.SessionID,
		Status:         "incomplete",
		IterationCount: rec.IterationCount,
		FallbackStages: rec.FallbackStages(),
		Recommendation: rec.Recommendation,
		Decision:       rec.Decision,
	}
	switch {
	case rec.Suspended():
		r.Status = "awaiting_input"
		r.Question = rec.Decision.Question
	case rec.Terminal():
		r.Status = "completed"
	}
	return r
}

func render(w io.Writer, rec *advisor.Record, format outputFormat) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(newReport(rec))
	case formatYAML:
		return renderYAML(w, newReport(rec))
	default:
		return renderText(w, rec)
	}
}

// renderYAML goes through JSON so keys follow the json tags and keep their
// declaration order.
func renderYAML(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return err
	}
	blockStyle(&node)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return err
	}
	return enc.Close()
}

func blockStyle(n *yaml.Node) {
	n.Style &^= yaml.FlowStyle
	if n.Kind == yaml.ScalarNode && n.Tag == "!!str" {
		n.Style &^= yaml.DoubleQuotedStyle
	}
	for _, c := range n.Content {
		blockStyle(c)
	}
}

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	topStyle     = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

func renderText(w io.Writer, rec *advisor.Record) error {
	var b strings.Builder

	if rec.Suspended() {
		fmt.Fprintf(&b, "%s\n  %s\n", headingStyle.Render("Clarification needed"), rec.Decision.Question)
		_, err := io.WriteString(w, b.String())
		return err
	}

	r := rec.Recommendation
	if r == nil {
		_, err := fmt.Fprintln(w, "No recommendation was produced.")
		return err
	}

	fmt.Fprintf(&b, "%s\n", headingStyle.Render("Recommendation"))
	fmt.Fprintf(&b, "  %s %s\n", topStyle.Render(r.Top.Name), mutedStyle.Render(fmt.Sprintf("(score %.2f)", r.Top.Score)))
	if len(r.Top3) > 1 {
		names := make([]string, 0, len(r.Top3)-1)
		for _, c := range r.Top3[1:] {
			names = append(names, fmt.Sprintf("%s (%.2f)", c.Name, c.Score))
		}
		fmt.Fprintf(&b, "  Alternatives: %s\n", strings.Join(names, ", "))
	}

	fmt.Fprintf(&b, "\n%s\n  %s\n", headingStyle.Render("Architecture"), r.Architecture.Type)
	for _, note := range r.Architecture.Notes {
		fmt.Fprintf(&b, "  - %s\n", note)
	}

	fmt.Fprintf(&b, "\n%s\n  %s\n", headingStyle.Render("Reasoning"), r.Reasoning)
	writeList(&b, "Assumptions", r.Assumptions)
	writeList(&b, "Risks", r.Risks)

	if len(r.Sources) > 0 {
		fmt.Fprintf(&b, "\n%s\n", headingStyle.Render("Sources"))
		for _, s := range r.Sources {
			fmt.Fprintf(&b, "  - %s %s\n", s.Title, mutedStyle.Render(s.URL))
		}
	}

	if r.CapReached {
		fmt.Fprintf(&b, "\n%s\n", warnStyle.Render("Note: the iteration cap was reached; this is the best available result."))
	}
	if fb := rec.FallbackStages(); len(fb) > 0 {
		names := make([]string, len(fb))
		for i, s := range fb {
			names[i] = string(s)
		}
		fmt.Fprintf(&b, "\n%s\n", warnStyle.Render("Degraded stages: "+strings.Join(names, ", ")))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s\n", headingStyle.Render(title))
	for _, it := range items {
		fmt.Fprintf(b, "  - %s\n", it)
	}
}
