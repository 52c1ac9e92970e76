// Package orchestrator drives an advisory session through the pipeline
// stages and interprets quality gate decisions.
//
// # Overview
//
// A session runs the stages in a fixed forward order:
//
//	Intake → Profiling → Corpus-Match → Candidate-Search → Synthesis → Quality-Gate
//
// The gate decides what happens next:
//
//   - CONTINUE_END: the session is terminal and archived.
//   - ASK_USER: the record is returned suspended; Resume continues it.
//   - RETRY_CORPUS: corpus matches and everything downstream are cleared and
//     recomputed from Corpus-Match with the decision's adjustments.
//   - RETRY_CANDIDATES: candidates and the recommendation are cleared and
//     recomputed from Candidate-Search.
//
// # Budgets and fallbacks
//
// Each stage runs on its own goroutine under a context deadline taken from
// the policy. When the deadline passes, the stage errors or it returns an
// update for the wrong field, the stage's Fallback is merged instead and the
// history entry is marked. Only precondition violations and cancellation of
// the caller's context abort a session.
//
// # Iteration cap
//
// Every gate evaluation increments the record's iteration count. Once the
// count reaches the policy cap the gate must end the session; the
// orchestrator enforces this even for gates that do not, and marks the
// recommendation as cap-terminated.
//
// # Observability
//
// Each stage invocation gets an "orchestrator.stage" span and feeds the
// Prometheus metrics in metrics.go. Stage completions are logged at Debug,
// fallbacks at Warn and terminal decisions at Info.
package orchestrator
