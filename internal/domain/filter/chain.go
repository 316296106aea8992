package filter

import (
	"context"
	"sync"

	"github.com/Modelgate-Labs/modelgate/internal/domain/guardrail"
)

// Chain composes filters, each with its own action-on-match.
type Chain struct {
	stages []*Checkpoint
}

// NewChain creates an empty chain.
func NewChain() *Chain {
	return &Chain{}
}

// Add appends a filter with its action-on-match and returns the chain for
// call chaining.
func (c *Chain) Add(f Filter, actionOnMatch guardrail.Action) *Chain {
	c.stages = append(c.stages, NewCheckpoint(f, actionOnMatch))
	return c
}

// ChainResult is the combined verdict of a sequential run.
type ChainResult struct {
	// Action is the highest-severity action across stages.
	Action guardrail.Action
	// Content is the (possibly modified) content after the run; empty on
	// block.
	Content string
	// Reasons accumulates all stage reasons.
	Reasons []string
	// BlockedBy names the stage that blocked, when one did.
	BlockedBy string
}

// StageResult pairs a stage name with its independent verdict.
type StageResult struct {
	Name    string
	Outcome guardrail.Outcome
	Err     error
}

// RunSequential applies each stage in order. A block stops the run;
// modifications flow into later stages. Stage errors propagate to the
// caller, which owns the fail-open decision.
func (c *Chain) RunSequential(ctx context.Context, content string, reqCtx map[string]interface{}) (ChainResult, error) {
	result := ChainResult{Action: guardrail.ActionAllow, Content: content}
	current := content

	for _, stage := range c.stages {
		out, err := stage.Check(ctx, current, reqCtx)
		if err != nil {
			return ChainResult{}, err
		}
		result.Reasons = append(result.Reasons, out.Reasons...)
		if out.Action.WorseThan(result.Action) {
			result.Action = out.Action
		}
		if out.Action == guardrail.ActionBlock {
			result.Content = ""
			result.BlockedBy = stage.Name()
			return result, nil
		}
		if out.Action == guardrail.ActionModify && out.Modified != "" {
			current = out.Modified
		}
	}

	result.Content = current
	if result.Action == guardrail.ActionModify && current == content {
		result.Action = guardrail.ActionAllow
	}
	return result, nil
}

// RunParallel evaluates every stage against the original content
// concurrently and gathers the verdicts. Modifications are reported per
// stage, never composed.
func (c *Chain) RunParallel(ctx context.Context, content string, reqCtx map[string]interface{}) []StageResult {
	results := make([]StageResult, len(c.stages))
	var wg sync.WaitGroup
	for i, stage := range c.stages {
		wg.Add(1)
		go func(i int, stage *Checkpoint) {
			defer wg.Done()
			out, err := stage.Check(ctx, content, reqCtx)
			results[i] = StageResult{Name: stage.Name(), Outcome: out, Err: err}
		}(i, stage)
	}
	wg.Wait()
	return results
}
