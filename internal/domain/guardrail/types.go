// Package guardrail implements the two-phase checkpoint pipeline that
// inspects content before and after a model call: sequential checks with
// per-checkpoint timeouts, fail-open/fail-closed handling, modifier
// chaining, metrics, and a content-addressed result cache.
package guardrail

import (
	"context"
	"time"
)

// Action is the unified verdict enum shared by checkpoints, filters, and
// policy rules.
type Action string

const (
	ActionAllow  Action = "allow"
	ActionLog    Action = "log"
	ActionAudit  Action = "audit"
	ActionWarn   Action = "warn"
	ActionModify Action = "modify"
	ActionReview Action = "review"
	ActionBlock  Action = "block"
)

// actionSeverity orders verdicts: the highest-severity action wins when
// combining results, with block short-circuiting.
var actionSeverity = map[Action]int{
	ActionAllow:  1,
	ActionLog:    2,
	ActionAudit:  2,
	ActionWarn:   3,
	ActionModify: 4,
	ActionReview: 5,
	ActionBlock:  6,
}

// Severity returns the ranking of an action for highest-wins combination.
func (a Action) Severity() int {
	return actionSeverity[a]
}

// WorseThan reports whether a outranks other in the severity table.
func (a Action) WorseThan(other Action) bool {
	return a.Severity() > other.Severity()
}

// String returns the string representation of the Action.
func (a Action) String() string {
	return string(a)
}

// Position declares which pipeline phase a checkpoint participates in.
type Position string

const (
	PositionInput  Position = "input"
	PositionOutput Position = "output"
	PositionBoth   Position = "both"
)

// appliesTo reports whether a checkpoint at this position runs in the
// given phase.
func (p Position) appliesTo(phase Position) bool {
	return p == phase || p == PositionBoth
}

// Outcome is what a single checkpoint reports for a piece of content.
type Outcome struct {
	// Action is the checkpoint's verdict.
	Action Action
	// Modified carries the rewritten content when Action is modify.
	Modified string
	// Reasons explains the verdict.
	Reasons []string
	// Confidence is the checkpoint's confidence in its verdict, in [0,1].
	Confidence float64
	// Metadata is checkpoint-specific detail for the audit trail.
	Metadata map[string]interface{}
}

// Checkpoint is one stage of the pipeline. Implementations must be safe
// for concurrent use; the pipeline enforces the registered timeout around
// each Check call.
type Checkpoint interface {
	// Name identifies the checkpoint in results and metrics.
	Name() string
	// Check inspects content under the request context and returns a
	// verdict. Errors are translated by the pipeline per the fail-open
	// policy and never reach the caller.
	Check(ctx context.Context, content string, reqCtx map[string]interface{}) (Outcome, error)
}

// Registration binds a Checkpoint to its pipeline configuration.
type Registration struct {
	// Checkpoint is the stage itself.
	Checkpoint Checkpoint
	// Position selects the phase(s) the checkpoint runs in.
	Position Position
	// Enabled gates the checkpoint without unregistering it.
	Enabled bool
	// FailOpen overrides the pipeline's fail-open policy for this
	// checkpoint; nil inherits the pipeline setting.
	FailOpen *bool
	// Timeout is the per-invocation budget. Zero means the pipeline
	// default.
	Timeout time.Duration
}

// Result is the pipeline's verdict over one phase (or one sandwich).
type Result struct {
	// Action is the combined verdict.
	Action Action
	// Passed is false only when the content was blocked.
	Passed bool
	// Original is the content as submitted.
	Original string
	// Modified is non-nil only when Action is modify, and then differs
	// from Original.
	Modified *string
	// Name is the pipeline (guardrail) name.
	Name string
	// Confidence is the minimum confidence across contributing checkpoints
	// (1.0 when none contributed).
	Confidence float64
	// Reasons accumulates each contributing checkpoint's reasons.
	Reasons []string
	// Metadata maps checkpoint name to its reported metadata.
	Metadata map[string]interface{}
	// Elapsed is the end-to-end processing time.
	Elapsed time.Duration
	// Err records a model-call failure in the check-both path. The
	// pipeline itself never returns errors.
	Err string
}

// FinalContent returns the modified content when present, else the
// original. Blocked results return the empty string.
func (r Result) FinalContent() string {
	if !r.Passed {
		return ""
	}
	if r.Modified != nil {
		return *r.Modified
	}
	return r.Original
}
