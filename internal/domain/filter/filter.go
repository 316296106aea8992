// Package filter provides the built-in content checks (PII, toxicity,
// jailbreak, topic, refusal) and their adapter onto guardrail checkpoints.
// All patterns compile once at construction and are shared across requests.
package filter

import (
	"context"

	"github.com/Modelgate-Labs/modelgate/internal/domain/guardrail"
)

// Detection is what a filter reports for a piece of content.
type Detection struct {
	// Matched is true when the filter found something.
	Matched bool
	// Reasons describes each hit.
	Reasons []string
	// Metadata carries filter-specific detail (counts, spans, scores).
	Metadata map[string]interface{}
	// Confidence is the filter's confidence in the match, in (0,1].
	Confidence float64
	// Redacted is the content with matched spans replaced, populated by
	// filters that support modification.
	Redacted string
}

// Filter is a named detector over content.
type Filter interface {
	// Name identifies the filter.
	Name() string
	// Detect inspects content and reports any match. It must not mutate
	// reqCtx.
	Detect(ctx context.Context, content string, reqCtx map[string]interface{}) (Detection, error)
}

// Checkpoint adapts a Filter into a guardrail.Checkpoint: a match maps to
// the configured action-on-match, a miss maps to allow.
type Checkpoint struct {
	filter        Filter
	actionOnMatch guardrail.Action
}

// NewCheckpoint wraps a filter with its action-on-match.
func NewCheckpoint(f Filter, actionOnMatch guardrail.Action) *Checkpoint {
	return &Checkpoint{filter: f, actionOnMatch: actionOnMatch}
}

// Name implements guardrail.Checkpoint.
func (c *Checkpoint) Name() string {
	return c.filter.Name()
}

// Check implements guardrail.Checkpoint.
func (c *Checkpoint) Check(ctx context.Context, content string, reqCtx map[string]interface{}) (guardrail.Outcome, error) {
	det, err := c.filter.Detect(ctx, content, reqCtx)
	if err != nil {
		return guardrail.Outcome{}, err
	}
	if !det.Matched {
		return guardrail.Outcome{Action: guardrail.ActionAllow, Confidence: 1}, nil
	}
	out := guardrail.Outcome{
		Action:     c.actionOnMatch,
		Reasons:    det.Reasons,
		Confidence: det.Confidence,
		Metadata:   det.Metadata,
	}
	if c.actionOnMatch == guardrail.ActionModify {
		out.Modified = det.Redacted
	}
	return out, nil
}

// Compile-time interface verification.
var _ guardrail.Checkpoint = (*Checkpoint)(nil)
