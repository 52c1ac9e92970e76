package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/stackadvisor/internal/advisor"
	"github.com/fyrsmithlabs/stackadvisor/internal/logging"
	"github.com/fyrsmithlabs/stackadvisor/internal/secrets"
)

const tracerName = "stackadvisor.orchestrator"

var (
	// ErrNotSuspended is returned by Resume for records not awaiting
	// clarification.
	ErrNotSuspended = errors.New("session is not awaiting clarification")

	// ErrMissingStage is returned by New when a pipeline stage is absent.
	ErrMissingStage = errors.New("missing pipeline stage")

	errNoUpdate      = errors.New("stage returned no update")
	errInvalidUpdate = errors.New("stage returned an update for the wrong field")
)

// Session outcomes reported to metrics.
const (
	OutcomeCompleted  = "completed"
	OutcomeCapReached = "cap_reached"
	OutcomeSuspended  = "suspended"
	OutcomeAborted    = "aborted"
)

// stageFields maps each stage to the record section it produces.
var stageFields = map[advisor.StageName]advisor.Field{
	advisor.StageIntake:          advisor.FieldRequirements,
	advisor.StageProfiling:       advisor.FieldProfile,
	advisor.StageCorpusMatch:     advisor.FieldCorpusMatches,
	advisor.StageCandidateSearch: advisor.FieldCandidates,
	advisor.StageSynthesis:       advisor.FieldRecommendation,
	advisor.StageQualityGate:     advisor.FieldDecision,
}

// SessionArchiver stores terminal records.
type SessionArchiver interface {
	Save(ctx context.Context, rec *advisor.Record) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTracer sets the tracer for stage spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithMetrics sets the Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithArchiver stores every terminal record.
func WithArchiver(a SessionArchiver) Option {
	return func(o *Orchestrator) { o.archiver = a }
}

// WithScrubber redacts secrets from requester input before any stage sees it.
func WithScrubber(s secrets.Scrubber) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.scrubber = s
		}
	}
}

// WithIDGenerator overrides session ID generation.
func WithIDGenerator(gen func() string) Option {
	return func(o *Orchestrator) {
		if gen != nil {
			o.newID = gen
		}
	}
}

// WithClock overrides the time source for history timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// Orchestrator runs advisory sessions. It holds no per-session state and is
// safe for concurrent use.
type Orchestrator struct {
	stages   map[advisor.StageName]advisor.Stage
	policy   advisor.Policy
	logger   *logging.Logger
	tracer   trace.Tracer
	metrics  *Metrics
	archiver SessionArchiver
	scrubber secrets.Scrubber
	newID    func() string
	now      func() time.Time
}

// New creates an orchestrator. stages must cover every pipeline stage.
func New(stages []advisor.Stage, policy advisor.Policy, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		stages:   make(map[advisor.StageName]advisor.Stage, len(stages)),
		policy:   policy.WithDefaults(),
		logger:   logging.Nop(),
		tracer:   otel.Tracer(tracerName),
		metrics:  NewMetrics(),
		scrubber: secrets.Nop{},
		newID:    uuid.NewString,
		now:      time.Now,
	}
	for _, s := range stages {
		if s != nil {
			o.stages[s.Name()] = s
		}
	}
	for _, name := range advisor.AllStages() {
		if _, ok := o.stages[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingStage, name)
		}
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Policy returns the routing policy in effect.
func (o *Orchestrator) Policy() advisor.Policy {
	return o.policy
}

// Start runs a new session for rawInput. answers are direct answers from a
// guided form and override extracted values.
//
// The returned record is either terminal or suspended on ASK_USER. An error
// is returned only for precondition violations and cancellation; the record
// is still returned for inspection.
func (o *Orchestrator) Start(ctx context.Context, rawInput string, answers map[string]any) (*advisor.Record, error) {
	id := o.newID()
	rec := advisor.NewRecord(o.scrub(ctx, id, rawInput), o.scrubAnswers(ctx, id, answers))
	rec.SessionID = id
	return o.run(ctx, rec, advisor.StageIntake, advisor.Adjustments{})
}

// Resume continues a suspended session with the requester's clarification.
// The clarification is appended to the raw input, every derived section is
// cleared and the pipeline restarts at Intake. The iteration count carries
// over, so the cap still bounds the session. rec itself is not modified.
func (o *Orchestrator) Resume(ctx context.Context, rec *advisor.Record, additional string) (*advisor.Record, error) {
	if rec == nil || !rec.Suspended() {
		return rec, ErrNotSuspended
	}

	next := *rec
	next.History = append([]advisor.StageEvent(nil), rec.History...)
	if next.SessionID == "" {
		next.SessionID = o.newID()
	}
	next.RawInput = rec.RawInput + "\n" + o.scrub(ctx, next.SessionID, additional)
	next.Invalidate(
		advisor.FieldRequirements,
		advisor.FieldProfile,
		advisor.FieldCorpusMatches,
		advisor.FieldCandidates,
		advisor.FieldRecommendation,
		advisor.FieldDecision,
	)
	return o.run(ctx, &next, advisor.StageIntake, advisor.Adjustments{})
}

// scrub redacts secrets from requester text and logs what was found.
func (o *Orchestrator) scrub(ctx context.Context, sessionID, text string) string {
	res := o.scrubber.Scrub(text)
	if res.Findings > 0 {
		o.logger.Warn(logging.WithSessionID(ctx, sessionID), "redacted secrets from requester input",
			zap.Int("findings", res.Findings),
			zap.Strings("rules", res.RuleIDs()))
	}
	return res.Text
}

func (o *Orchestrator) scrubAnswers(ctx context.Context, sessionID string, answers map[string]any) map[string]any {
	if answers == nil {
		return nil
	}
	out := make(map[string]any, len(answers))
	for k, v := range answers {
		if s, ok := v.(string); ok {
			v = o.scrub(ctx, sessionID, s)
		}
		out[k] = v
	}
	return out
}

func (o *Orchestrator) run(ctx context.Context, rec *advisor.Record, from advisor.StageName, adj advisor.Adjustments) (*advisor.Record, error) {
	ctx = logging.WithSessionID(ctx, rec.SessionID)
	name := from

	for {
		if err := ctx.Err(); err != nil {
			o.metrics.Sessions.WithLabelValues(OutcomeAborted).Inc()
			return rec, err
		}

		stage := o.stages[name]
		if err := advisor.CheckPreconditions(stage, *rec); err != nil {
			o.metrics.Sessions.WithLabelValues(OutcomeAborted).Inc()
			o.logger.Error(ctx, "stage precondition violated", logging.Stage(name), zap.Error(err))
			return rec, fmt.Errorf("stage %s: %w", name, err)
		}

		update, event, err := o.invoke(ctx, stage, *rec, adj)
		if err != nil {
			o.metrics.Sessions.WithLabelValues(OutcomeAborted).Inc()
			return rec, err
		}
		rec.Apply(update)
		rec.History = append(rec.History, event)
		adj = advisor.Adjustments{}

		if name != advisor.StageQualityGate {
			name = following(name)
			continue
		}

		o.enforceCap(rec)
		decision := *rec.Decision
		o.metrics.GateDecisions.WithLabelValues(string(decision.Kind)).Inc()

		switch decision.Kind {
		case advisor.DecisionAskUser:
			o.metrics.Sessions.WithLabelValues(OutcomeSuspended).Inc()
			o.logger.Info(ctx, "session awaiting clarification",
				logging.Decision(decision.Kind),
				logging.Iteration(rec.IterationCount),
				zap.String("question", decision.Question))
			return rec, nil

		case advisor.DecisionRetryCorpus, advisor.DecisionRetryCandidates:
			retryFrom, _ := decision.RetryFrom()
			rec.Invalidate(invalidated(decision)...)
			o.logger.Debug(ctx, "retrying stage",
				logging.Stage(retryFrom),
				logging.Decision(decision.Kind),
				logging.Iteration(rec.IterationCount))
			name = retryFrom
			adj = decision.Adjustments

		default:
			o.finish(ctx, rec, decision)
			return rec, nil
		}
	}
}

// invoke runs one stage under its budget. A failed, late or malformed run
// is replaced by the stage's fallback. The returned error is non-nil only
// when the session context itself is done.
func (o *Orchestrator) invoke(ctx context.Context, stage advisor.Stage, rec advisor.Record, adj advisor.Adjustments) (advisor.Update, advisor.StageEvent, error) {
	name := stage.Name()
	start := o.now()

	var (
		stageCtx context.Context
		cancel   context.CancelFunc
	)
	if budget := o.policy.Budget(name); budget > 0 {
		stageCtx, cancel = context.WithTimeout(ctx, budget)
	} else {
		stageCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	stageCtx, span := o.tracer.Start(stageCtx, "orchestrator.stage", trace.WithAttributes(
		attribute.String("stage", string(name)),
		attribute.Int("iteration", rec.IterationCount),
		attribute.Int("adjustments.top_k", adj.TopK),
		attribute.Bool("adjustments.enforce_constraint", adj.EnforceConstraint),
	))
	defer span.End()

	type result struct {
		update advisor.Update
		err    error
		panic  bool
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("stage %s panicked: %v", name, r), panic: true}
			}
		}()
		u, err := stage.Run(stageCtx, rec, adj)
		done <- result{update: u, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-stageCtx.Done():
		res.err = stageCtx.Err()
	}

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, "session cancelled")
		return nil, advisor.StageEvent{}, err
	}

	reason := ""
	switch {
	case res.panic:
		reason = "panic"
	case errors.Is(res.err, context.DeadlineExceeded):
		reason = "timeout"
	case res.err != nil:
		reason = "error"
	case res.update == nil:
		res.err, reason = errNoUpdate, "invalid_update"
	case res.update.Field() != stageFields[name]:
		res.err, reason = fmt.Errorf("%w: got %s", errInvalidUpdate, res.update.Field()), "invalid_update"
	}

	update := res.update
	if res.err != nil {
		update = stage.Fallback(rec, res.err)
		span.RecordError(res.err)
		span.SetStatus(codes.Error, reason)
		o.metrics.StageFallbacks.WithLabelValues(string(name), reason).Inc()
	} else {
		span.SetStatus(codes.Ok, "")
	}

	elapsed := o.now().Sub(start)
	o.metrics.StageDuration.WithLabelValues(string(name)).Observe(elapsed.Seconds())

	event := advisor.StageEvent{
		Stage:     name,
		Iteration: rec.IterationCount,
		Summary:   update.Summary(),
		Fallback:  res.err != nil,
		Duration:  elapsed,
		At:        start,
	}
	span.SetAttributes(attribute.Bool("fallback", event.Fallback))

	if res.err != nil {
		event.Error = res.err.Error()
		o.logger.Warn(ctx, "stage fell back",
			logging.Stage(name),
			logging.Iteration(rec.IterationCount),
			logging.Elapsed(elapsed),
			zap.String("reason", reason),
			zap.Error(res.err))
	} else {
		o.logger.Debug(ctx, "stage completed",
			logging.Stage(name),
			logging.Iteration(rec.IterationCount),
			logging.Elapsed(elapsed),
			zap.String("summary", event.Summary))
	}
	return update, event, nil
}

// enforceCap turns a non-terminal decision issued past the cap into
// CONTINUE_END. The count has already been incremented for this evaluation.
func (o *Orchestrator) enforceCap(rec *advisor.Record) {
	d := rec.Decision
	if d.Kind == advisor.DecisionContinueEnd || rec.IterationCount <= o.policy.IterationCap {
		return
	}
	*d = advisor.Decision{
		Kind:       advisor.DecisionContinueEnd,
		Reasoning:  fmt.Sprintf("iteration cap reached (%d); overriding %s", o.policy.IterationCap, d.Kind),
		CapReached: true,
	}
}

func (o *Orchestrator) finish(ctx context.Context, rec *advisor.Record, decision advisor.Decision) {
	outcome := OutcomeCompleted
	if decision.CapReached {
		outcome = OutcomeCapReached
		if rec.Recommendation != nil {
			rec.Recommendation.CapReached = true
		}
	}
	o.metrics.Sessions.WithLabelValues(outcome).Inc()

	fields := []zap.Field{
		logging.Decision(decision.Kind),
		logging.Iteration(rec.IterationCount),
		zap.String("outcome", outcome),
		zap.String("reasoning", decision.Reasoning),
	}
	if rec.Recommendation != nil {
		fields = append(fields, zap.String("top", rec.Recommendation.Top.Name))
	}
	if fb := rec.FallbackStages(); len(fb) > 0 {
		names := make([]string, len(fb))
		for i, s := range fb {
			names[i] = string(s)
		}
		fields = append(fields, zap.Strings("fallback_stages", names))
	}
	o.logger.Info(ctx, "session finished", fields...)

	if o.archiver == nil {
		return
	}
	if err := o.archiver.Save(ctx, rec); err != nil {
		o.logger.Warn(ctx, "archiving session failed", zap.Error(err))
	}
}

// invalidated returns the sections a retry clears, defaulting by decision
// kind when the gate did not name them.
func invalidated(d advisor.Decision) []advisor.Field {
	if len(d.Invalidates) > 0 {
		return d.Invalidates
	}
	switch d.Kind {
	case advisor.DecisionRetryCorpus:
		return []advisor.Field{advisor.FieldCorpusMatches, advisor.FieldCandidates, advisor.FieldRecommendation}
	case advisor.DecisionRetryCandidates:
		return []advisor.Field{advisor.FieldCandidates, advisor.FieldRecommendation}
	}
	return nil
}

// following returns the stage after name in forward order.
func following(name advisor.StageName) advisor.StageName {
	all := advisor.AllStages()
	for i, s := range all {
		if s == name && i+1 < len(all) {
			return all[i+1]
		}
	}
	return advisor.StageQualityGate
}
