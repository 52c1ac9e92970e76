package stages

import (
	"encoding/json"
	"strings"
	"text/template"

	"github.com/fyrsmithlabs/stackadvisor/internal/advisor"
)

var intakeTemplate = template.Must(template.New("intake").Parse(`You are a requirements extraction agent. Turn the natural language request below into structured requirements.

USER INPUT:
{{.Input}}

ADDITIONAL ANSWERS (if any):
{{.Answers}}

Extract the following fields and return them as JSON (no Markdown, JSON only):

{
    "use_case_goal": "short summary of the goal",
    "constraints": ["constraint 1", "constraint 2"],
    "data_sources": ["data source 1", "data source 2"],
    "automation_level": "qa_only" | "tool_actions" | "workflow_automation",
    "no_code_importance": 1-5 (or null),
    "enterprise_needed": true/false/null,
    "team_size": number (or null),
    "budget": "budget category" (or null),
    "must_have_frameworks": ["framework 1"],
    "must_avoid_frameworks": [],
    "unknowns": ["missing info 1", "missing info 2"]
}

RULES:
- Return ONLY the JSON object, no other commentary.
- Use null for unknown values.
- automation_level: "qa_only" = answering questions only,
  "tool_actions" = tool calls or connectors needed,
  "workflow_automation" = complex automation across several steps
- unknowns: list what is NOT clear from the input
`))

var profilingTemplate = template.Must(template.New("profiling").Parse(`You are a user profiling agent. Build a requester profile from the requirements and any direct answers.

REQUIREMENTS:
{{.Requirements}}

DIRECT ANSWERS (if any):
{{.Answers}}

Derive or use the answers to produce this profile (JSON only):

{
    "skill_level": "beginner" | "intermediate" | "expert",
    "org_context": "prototype" | "enterprise",
    "risk_tolerance": "low" | "medium" | "high",
    "compliance_sensitivity": "low" | "medium" | "high",
    "prefers_nocode": true/false
}

DEFINITIONS:
- skill_level: from no_code_importance and the overall input
  beginner = high no_code_importance (4-5), simple requirements
  intermediate = mixed requirements
  expert = low no_code_importance, technical complexity
- org_context: from enterprise_needed, team_size and budget
  prototype = small teams, proof of concept
  enterprise = large teams, budget, compliance requirements
- risk_tolerance: from constraints and use_case_goal
  high = "quick solution whatever it takes", low = "must be stable and secure"
- compliance_sensitivity: from constraints (e.g. "GDPR", "regulatory", "ISO")
- prefers_nocode: from no_code_importance and automation_level

Return ONLY JSON, no other text.
`))

func intakePrompt(input string, answers map[string]any) string {
	return render(intakeTemplate, map[string]string{
		"Input":   input,
		"Answers": answersJSON(answers),
	})
}

func profilingPrompt(req advisor.Requirements, answers map[string]any) string {
	reqJSON, err := json.Marshal(req)
	if err != nil {
		reqJSON = []byte("{}")
	}
	return render(profilingTemplate, map[string]string{
		"Requirements": string(reqJSON),
		"Answers":      answersJSON(answers),
	})
}

// answersJSON renders answers with sorted keys so identical inputs produce
// identical prompts.
func answersJSON(answers map[string]any) string {
	if len(answers) == 0 {
		return "none"
	}
	b, err := json.Marshal(answers)
	if err != nil {
		return "none"
	}
	return string(b)
}

func render(t *template.Template, data any) string {
	var sb strings.Builder
	// Templates are static and data is a string map.
	_ = t.Execute(&sb, data)
	return sb.String()
}
