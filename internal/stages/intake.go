package stages

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/stackadvisor/internal/advisor"
	"github.com/fyrsmithlabs/stackadvisor/internal/llm"
	"github.com/fyrsmithlabs/stackadvisor/internal/logging"
)

const goalFallbackRunes = 100

// Intake extracts structured requirements from the raw request.
type Intake struct {
	llm    llm.Client
	logger *logging.Logger
}

// NewIntake creates the intake stage.
func NewIntake(client llm.Client, logger *logging.Logger) *Intake {
	if client == nil {
		client = llm.Disabled{}
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Intake{llm: client, logger: logger}
}

func (s *Intake) Name() advisor.StageName { return advisor.StageIntake }

func (s *Intake) Requires() []advisor.Field { return nil }

func (s *Intake) Run(ctx context.Context, rec advisor.Record, _ advisor.Adjustments) (advisor.Update, error) {
	reply, err := s.llm.Complete(ctx, intakePrompt(rec.RawInput, rec.Answers))
	if err != nil {
		return nil, err
	}
	data, lenient, err := extractJSON(reply)
	if err != nil {
		return nil, err
	}
	if lenient {
		s.logger.Debug(ctx, "intake reply needed lenient JSON extraction", zap.Int("reply_bytes", len(reply)))
	}
	return advisor.RequirementsUpdate{
		Requirements: decodeRequirements(overlay(data, rec.Answers), rec.RawInput),
	}, nil
}

// Fallback derives requirements from the raw input alone, still honoring
// direct answers.
func (s *Intake) Fallback(rec advisor.Record, _ error) advisor.Update {
	base := map[string]any{
		"use_case_goal":      advisor.Truncate(strings.TrimSpace(rec.RawInput), goalFallbackRunes),
		"automation_level":   string(advisor.AutomationQAOnly),
		"no_code_importance": 3,
		"enterprise_needed":  false,
	}
	return advisor.RequirementsUpdate{
		Requirements: decodeRequirements(overlay(base, rec.Answers), rec.RawInput),
	}
}

func decodeRequirements(data map[string]any, raw string) advisor.Requirements {
	req := advisor.Requirements{
		Constraints:         looseStrings(data["constraints"]),
		DataSources:         looseStrings(data["data_sources"]),
		AutomationLevel:     normalizeAutomation(data["automation_level"]),
		MustHaveFrameworks:  looseStrings(data["must_have_frameworks"]),
		MustAvoidFrameworks: looseStrings(data["must_avoid_frameworks"]),
		Unknowns:            looseStrings(data["unknowns"]),
	}

	req.UseCaseGoal, _ = looseString(data["use_case_goal"])
	if req.UseCaseGoal == "" {
		req.UseCaseGoal = advisor.Truncate(strings.TrimSpace(raw), goalFallbackRunes)
	}
	if n, ok := looseInt(data["no_code_importance"]); ok {
		n = min(max(n, 1), 5)
		req.NoCodeImportance = &n
	}
	if b, ok := looseBool(data["enterprise_needed"]); ok {
		req.EnterpriseNeeded = &b
	}
	if n, ok := looseInt(data["team_size"]); ok && n > 0 {
		req.TeamSize = &n
	}
	if s, ok := looseString(data["budget"]); ok {
		req.Budget = &s
	}
	return req
}

func normalizeAutomation(v any) advisor.AutomationLevel {
	switch s := normalizeEnum(v); s {
	case "tool_actions", "tools", "tool", "tool_calls", "connectors":
		return advisor.AutomationToolActions
	case "workflow_automation", "workflow", "workflows", "automation":
		return advisor.AutomationWorkflow
	default:
		return advisor.AutomationQAOnly
	}
}
