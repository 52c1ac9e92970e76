package stages

import (
	"context"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/stackadvisor/internal/advisor"
	"github.com/fyrsmithlabs/stackadvisor/internal/llm"
	"github.com/fyrsmithlabs/stackadvisor/internal/logging"
)

// Profiling classifies the requester from the extracted requirements.
type Profiling struct {
	llm    llm.Client
	logger *logging.Logger
}

// NewProfiling creates the profiling stage.
func NewProfiling(client llm.Client, logger *logging.Logger) *Profiling {
	if client == nil {
		client = llm.Disabled{}
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Profiling{llm: client, logger: logger}
}

func (s *Profiling) Name() advisor.StageName { return advisor.StageProfiling }

func (s *Profiling) Requires() []advisor.Field {
	return []advisor.Field{advisor.FieldRequirements}
}

func (s *Profiling) Run(ctx context.Context, rec advisor.Record, _ advisor.Adjustments) (advisor.Update, error) {
	reply, err := s.llm.Complete(ctx, profilingPrompt(*rec.Requirements, rec.Answers))
	if err != nil {
		return nil, err
	}
	data, lenient, err := extractJSON(reply)
	if err != nil {
		return nil, err
	}
	if lenient {
		s.logger.Debug(ctx, "profiling reply needed lenient JSON extraction", zap.Int("reply_bytes", len(reply)))
	}
	return advisor.ProfileUpdate{
		Profile: decodeProfile(overlay(data, rec.Answers), neutralProfile(rec)),
	}, nil
}

// Fallback returns the neutral profile with direct answers applied.
func (s *Profiling) Fallback(rec advisor.Record, _ error) advisor.Update {
	return advisor.ProfileUpdate{
		Profile: decodeProfile(overlay(nil, rec.Answers), neutralProfile(rec)),
	}
}

func neutralProfile(rec advisor.Record) advisor.Profile {
	p := advisor.Profile{
		SkillLevel:            advisor.SkillIntermediate,
		OrgContext:            advisor.OrgPrototype,
		RiskTolerance:         advisor.LevelMedium,
		ComplianceSensitivity: advisor.LevelLow,
		PrefersNoCode:         true,
	}
	if rec.Requirements != nil {
		if rec.Requirements.Enterprise() {
			p.OrgContext = advisor.OrgEnterprise
		}
		p.PrefersNoCode = rec.Requirements.NoCode(3) >= 3
	}
	return p
}

// decodeProfile reads the profile fields from data. Missing or unknown
// values keep the value from def.
func decodeProfile(data map[string]any, def advisor.Profile) advisor.Profile {
	p := def
	switch s := advisor.SkillLevel(normalizeEnum(data["skill_level"])); s {
	case advisor.SkillBeginner, advisor.SkillIntermediate, advisor.SkillExpert:
		p.SkillLevel = s
	}
	switch s := advisor.OrgContext(normalizeEnum(data["org_context"])); s {
	case advisor.OrgPrototype, advisor.OrgEnterprise:
		p.OrgContext = s
	}
	if l, ok := parseLevel(data["risk_tolerance"]); ok {
		p.RiskTolerance = l
	}
	if l, ok := parseLevel(data["compliance_sensitivity"]); ok {
		p.ComplianceSensitivity = l
	}
	if b, ok := looseBool(data["prefers_nocode"]); ok {
		p.PrefersNoCode = b
	}
	return p
}

func parseLevel(v any) (advisor.Level, bool) {
	switch l := advisor.Level(normalizeEnum(v)); l {
	case advisor.LevelLow, advisor.LevelMedium, advisor.LevelHigh:
		return l, true
	}
	return "", false
}
