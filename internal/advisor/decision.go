package advisor

// DecisionKind is the quality gate outcome.
type DecisionKind string

const (
	DecisionContinueEnd     DecisionKind = "CONTINUE_END"
	DecisionAskUser         DecisionKind = "ASK_USER"
	DecisionRetryCorpus     DecisionKind = "RETRY_CORPUS"
	DecisionRetryCandidates DecisionKind = "RETRY_CANDIDATES"
)

// Adjustments are named overrides handed to a stage on retry. The zero value
// means "no overrides".
type Adjustments struct {
	TopK              int  `json:"top_k,omitempty"`
	EnforceConstraint bool `json:"enforce_constraint,omitempty"`
}

// IsZero reports whether no override is set.
func (a Adjustments) IsZero() bool {
	return a.TopK == 0 && !a.EnforceConstraint
}

// Decision is the routing verdict of one quality gate evaluation.
type Decision struct {
	Kind        DecisionKind `json:"kind"`
	Question    string       `json:"question,omitempty"`
	Adjustments Adjustments  `json:"adjustments,omitempty"`
	Reasoning   string       `json:"reasoning"`
	Invalidates []Field      `json:"invalidates,omitempty"`
	CapReached  bool         `json:"cap_reached,omitempty"`
}

// RetryFrom returns the stage a retry decision re-enters at.
func (d Decision) RetryFrom() (StageName, bool) {
	switch d.Kind {
	case DecisionRetryCorpus:
		return StageCorpusMatch, true
	case DecisionRetryCandidates:
		return StageCandidateSearch, true
	}
	return "", false
}
