package guardrail

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// defaultCheckpointTimeout bounds a checkpoint that registered without an
// explicit budget.
const defaultCheckpointTimeout = 500 * time.Millisecond

// ModelFunc is the deferred model call supplied to CheckBoth. It must
// self-regulate its own timeout; the pipeline adds no extra wrapping.
type ModelFunc func(ctx context.Context, input string) (string, error)

// BothResult is the outcome of the input/output sandwich.
type BothResult struct {
	// Input is the input-phase verdict.
	Input Result
	// Output is the output-phase verdict; nil when the input phase
	// blocked or the model call failed.
	Output *Result
	// ModelErr records a model invocation failure.
	ModelErr string
	// Final is the (possibly modified) output content, nil when either
	// phase blocked.
	Final *string
}

// Pipeline is the guardrails runtime: an ordered set of checkpoints
// invoked sequentially per phase, each under its own timeout, with
// verdicts combined highest-severity-wins and block short-circuiting.
// Registrations are configured at startup and read-mostly afterwards.
type Pipeline struct {
	name     string
	failOpen bool
	timeout  time.Duration
	metrics  *Metrics
	cache    *ResultCache
	logger   *slog.Logger

	mu   sync.RWMutex
	regs []Registration
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithFailOpen sets the pipeline-wide fail-open default. The safe default
// is fail-closed.
func WithFailOpen(open bool) Option {
	return func(p *Pipeline) { p.failOpen = open }
}

// WithDefaultTimeout sets the budget for checkpoints registered without one.
func WithDefaultTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.timeout = d }
}

// WithCache enables the input-phase result cache.
func WithCache(c *ResultCache) Option {
	return func(p *Pipeline) { p.cache = c }
}

// NewPipeline creates a named pipeline.
func NewPipeline(name string, logger *slog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		name:    name,
		timeout: defaultCheckpointTimeout,
		metrics: NewMetrics(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Register appends a checkpoint. Checks run in registration order.
func (p *Pipeline) Register(reg Registration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.regs = append(p.regs, reg)
}

// Metrics returns the pipeline's metrics collector.
func (p *Pipeline) Metrics() *Metrics {
	return p.metrics
}

// active returns the enabled registrations for a phase, in order.
func (p *Pipeline) active(phase Position) []Registration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Registration, 0, len(p.regs))
	for _, reg := range p.regs {
		if reg.Enabled && reg.Position.appliesTo(phase) {
			out = append(out, reg)
		}
	}
	return out
}

// CheckInput runs the input phase over the content. Cached verdicts are
// served when the cache is enabled; only the input phase is cached since
// output content is model-derived and rarely repeats.
func (p *Pipeline) CheckInput(ctx context.Context, content string, reqCtx map[string]interface{}) Result {
	regs := p.active(PositionInput)

	var key string
	if p.cache != nil {
		names := make([]string, len(regs))
		for i, reg := range regs {
			names[i] = reg.Checkpoint.Name()
		}
		key = CacheKey(content, names)
		if cached, ok := p.cache.Get(key); ok {
			return cached
		}
	}

	result := p.runPhase(ctx, regs, content, reqCtx)
	if p.cache != nil {
		p.cache.Put(key, result)
	}
	return result
}

// CheckOutput runs the output phase over the content.
func (p *Pipeline) CheckOutput(ctx context.Context, content string, reqCtx map[string]interface{}) Result {
	return p.runPhase(ctx, p.active(PositionOutput), content, reqCtx)
}

// CheckBoth runs the input phase, invokes the model with the (possibly
// modified) input, then runs the output phase over the response. The
// model is not invoked when the input phase blocks.
func (p *Pipeline) CheckBoth(ctx context.Context, input string, model ModelFunc, reqCtx map[string]interface{}) BothResult {
	both := BothResult{Input: p.CheckInput(ctx, input, reqCtx)}
	if !both.Input.Passed {
		return both
	}

	response, err := model(ctx, both.Input.FinalContent())
	if err != nil {
		both.ModelErr = err.Error()
		return both
	}

	out := p.CheckOutput(ctx, response, reqCtx)
	both.Output = &out
	if out.Passed {
		final := out.FinalContent()
		both.Final = &final
	}
	return both
}

// FanOut runs every applicable checkpoint independently and in parallel,
// returning each verdict side by side. Modifications from parallel
// checkpoints are not composable and are reported per checkpoint.
func (p *Pipeline) FanOut(ctx context.Context, phase Position, content string, reqCtx map[string]interface{}) []Result {
	regs := p.active(phase)
	results := make([]Result, len(regs))
	var wg sync.WaitGroup
	for i, reg := range regs {
		wg.Add(1)
		go func(i int, reg Registration) {
			defer wg.Done()
			results[i] = p.runPhase(ctx, []Registration{reg}, content, reqCtx)
		}(i, reg)
	}
	wg.Wait()
	return results
}

// runPhase executes the sequential check pipeline over one phase.
// It never returns an error: checkpoint failures translate into a blocked
// result (fail-closed) or an allow-with-reason pass-through (fail-open).
func (p *Pipeline) runPhase(ctx context.Context, regs []Registration, content string, reqCtx map[string]interface{}) Result {
	start := time.Now()
	current := content
	combined := ActionAllow
	confidence := 1.0
	var reasons []string
	metadata := make(map[string]interface{})
	hadError := false

	finish := func(r Result) Result {
		r.Elapsed = time.Since(start)
		p.metrics.RecordRequest(r.Action, r.Elapsed, hadError)
		return r
	}

	for _, reg := range regs {
		name := reg.Checkpoint.Name()
		budget := reg.Timeout
		if budget <= 0 {
			budget = p.timeout
		}

		cpStart := time.Now()
		outcome, err := p.invoke(ctx, reg.Checkpoint, budget, current, reqCtx)
		if err != nil {
			hadError = true
			if p.effectiveFailOpen(reg) {
				reason := fmt.Sprintf("%s failed open: %v", name, err)
				reasons = append(reasons, reason)
				p.logger.Warn("checkpoint failed open", "pipeline", p.name, "checkpoint", name, "error", err)
				p.metrics.RecordCheckpoint(name, ActionAllow, time.Since(cpStart))
				continue
			}
			p.logger.Warn("checkpoint failed closed", "pipeline", p.name, "checkpoint", name, "error", err)
			p.metrics.RecordCheckpoint(name, ActionBlock, time.Since(cpStart))
			return finish(Result{
				Action:     ActionBlock,
				Passed:     false,
				Original:   content,
				Name:       p.name,
				Confidence: confidence,
				Reasons:    append(reasons, fmt.Sprintf("%s: %v", name, err)),
				Metadata:   metadata,
			})
		}

		p.metrics.RecordCheckpoint(name, outcome.Action, time.Since(cpStart))
		if len(outcome.Metadata) > 0 {
			metadata[name] = outcome.Metadata
		}
		reasons = append(reasons, outcome.Reasons...)
		if outcome.Confidence > 0 && outcome.Confidence < confidence {
			confidence = outcome.Confidence
		}

		switch outcome.Action {
		case ActionBlock:
			return finish(Result{
				Action:     ActionBlock,
				Passed:     false,
				Original:   content,
				Name:       p.name,
				Confidence: confidence,
				Reasons:    reasons,
				Metadata:   metadata,
			})
		case ActionModify:
			if outcome.Modified != "" && outcome.Modified != current {
				current = outcome.Modified
			}
			if ActionModify.WorseThan(combined) {
				combined = ActionModify
			}
		case ActionAllow:
			// no-op
		default:
			if outcome.Action.WorseThan(combined) {
				combined = outcome.Action
			}
		}
	}

	result := Result{
		Action:     combined,
		Passed:     true,
		Original:   content,
		Name:       p.name,
		Confidence: confidence,
		Reasons:    reasons,
		Metadata:   metadata,
	}
	if current != content {
		if ActionModify.WorseThan(result.Action) {
			result.Action = ActionModify
		}
		result.Modified = &current
	} else if result.Action == ActionModify {
		// A modifier reported modify without changing the content.
		result.Action = ActionAllow
	}
	return finish(result)
}

// effectiveFailOpen resolves the per-checkpoint override against the
// pipeline default.
func (p *Pipeline) effectiveFailOpen(reg Registration) bool {
	if reg.FailOpen != nil {
		return *reg.FailOpen
	}
	return p.failOpen
}

// invoke runs one checkpoint under its budget. A stuck checkpoint is
// abandoned at the deadline; its goroutine drains into a buffered channel.
func (p *Pipeline) invoke(ctx context.Context, cp Checkpoint, budget time.Duration, content string, reqCtx map[string]interface{}) (Outcome, error) {
	cctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	type reply struct {
		outcome Outcome
		err     error
	}
	done := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- reply{err: fmt.Errorf("checkpoint panic: %v", r)}
			}
		}()
		outcome, err := cp.Check(cctx, content, reqCtx)
		done <- reply{outcome: outcome, err: err}
	}()

	select {
	case r := <-done:
		return r.outcome, r.err
	case <-cctx.Done():
		return Outcome{}, fmt.Errorf("timeout after %s: %w", budget, cctx.Err())
	}
}
