package advisor

import "strings"

// Flag is a requirement derived from the tags of matched reference use cases.
type Flag string

const (
	FlagRAGRequired        Flag = "rag_required"
	FlagAutomationHigh     Flag = "automation_high"
	FlagConnectorsRequired Flag = "connectors_required"
	FlagComplianceHigh     Flag = "compliance_high"
	FlagMultiAgent         Flag = "multi_agent_recommended"
)

// AllFlags returns every derived flag in a stable order.
func AllFlags() []Flag {
	return []Flag{FlagRAGRequired, FlagAutomationHigh, FlagConnectorsRequired, FlagComplianceHigh, FlagMultiAgent}
}

// Flags is the boolean requirement map derived from corpus matches.
type Flags struct {
	RAGRequired           bool `json:"rag_required"`
	AutomationHigh        bool `json:"automation_high"`
	ConnectorsRequired    bool `json:"connectors_required"`
	ComplianceHigh        bool `json:"compliance_high"`
	MultiAgentRecommended bool `json:"multi_agent_recommended"`
}

// Set raises a flag.
func (f *Flags) Set(flag Flag) {
	switch flag {
	case FlagRAGRequired:
		f.RAGRequired = true
	case FlagAutomationHigh:
		f.AutomationHigh = true
	case FlagConnectorsRequired:
		f.ConnectorsRequired = true
	case FlagComplianceHigh:
		f.ComplianceHigh = true
	case FlagMultiAgent:
		f.MultiAgentRecommended = true
	}
}

// Has reports whether a flag is raised.
func (f Flags) Has(flag Flag) bool {
	switch flag {
	case FlagRAGRequired:
		return f.RAGRequired
	case FlagAutomationHigh:
		return f.AutomationHigh
	case FlagConnectorsRequired:
		return f.ConnectorsRequired
	case FlagComplianceHigh:
		return f.ComplianceHigh
	case FlagMultiAgent:
		return f.MultiAgentRecommended
	}
	return false
}

// Names lists the raised flags.
func (f Flags) Names() []string {
	var out []string
	for _, flag := range AllFlags() {
		if f.Has(flag) {
			out = append(out, string(flag))
		}
	}
	return out
}

// DeriveFlags unions tag sets against the tag vocabulary. Tags compare
// case-insensitively with '-' and '_' treated alike.
func DeriveFlags(tagSets [][]string, vocabulary map[Flag][]string) Flags {
	lookup := make(map[string][]Flag)
	for flag, tags := range vocabulary {
		for _, t := range tags {
			key := normalizeTag(t)
			lookup[key] = append(lookup[key], flag)
		}
	}

	var flags Flags
	for _, tags := range tagSets {
		for _, t := range tags {
			for _, flag := range lookup[normalizeTag(t)] {
				flags.Set(flag)
			}
		}
	}
	return flags
}

func normalizeTag(t string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(t)), "-", "_")
}
