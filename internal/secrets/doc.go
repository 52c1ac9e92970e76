// Package secrets redacts credentials that requesters paste into use case
// descriptions and clarification answers.
//
// Input is scrubbed once, when it enters a session, so neither the text
// service, the prompt cache nor the session archive ever sees the raw value.
// Rules are regular expressions with optional keywords that must appear
// somewhere in the text before the rule is evaluated.
package secrets
