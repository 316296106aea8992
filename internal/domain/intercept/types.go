// Package intercept implements the agent tool-call decision engine:
// per-session rate limiting, validator/modifier/scorer composition, and a
// bounded audit trail. Each call receives at most one verdict.
package intercept

import (
	"time"

	"github.com/Modelgate-Labs/modelgate/internal/domain/guardrail"
)

// ToolCall is one tool invocation requested by an agent.
type ToolCall struct {
	// ID uniquely identifies the call.
	ID string
	// SessionID groups calls from one agent session. Empty maps to the
	// "default" rate-limit bucket.
	SessionID string
	// ToolName is the invoked tool.
	ToolName string
	// Arguments are the call arguments as submitted.
	Arguments map[string]interface{}
	// Timestamp is when the call was received.
	Timestamp time.Time
}

// Result is the interceptor's verdict for one call.
type Result struct {
	// Action is allow, modify, audit, or block.
	Action guardrail.Action
	// RiskScore is the max across all scorers, in [0,1].
	RiskScore float64
	// Reasons explains the verdict.
	Reasons []string
	// Call is the (possibly rewritten) call to execute; nil on block.
	Call *ToolCall
	// Elapsed is the decision latency.
	Elapsed time.Duration
}

// Validator admits or rejects a call. The first failing validator blocks.
type Validator interface {
	Name() string
	Validate(call ToolCall) (ok bool, reason string)
}

// Modifier rewrites a call before execution. Failures are logged and the
// modifier skipped.
type Modifier interface {
	Name() string
	Modify(call ToolCall) (ToolCall, error)
}

// Scorer rates a call's risk in [0,1]. The final risk is the max across
// scorers.
type Scorer interface {
	Name() string
	Score(call ToolCall) float64
}

// Record is one audited verdict.
type Record struct {
	ID        string
	SessionID string
	ToolName  string
	Action    guardrail.Action
	RiskScore float64
	Reasons   []string
	Timestamp time.Time
}

// Stats summarizes the audit trail.
type Stats struct {
	Total     int
	ByAction  map[guardrail.Action]int
	BlockRate float64
	MeanRisk  float64
}
