package intercept

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Modelgate-Labs/modelgate/internal/domain/guardrail"
)

// Risk cut-points for the verdict derived from the final risk score.
const (
	blockRiskThreshold = 0.8
	auditRiskThreshold = 0.5
)

// Interceptor decides whether an agent tool call may execute. Rate
// limiting runs first, then validators (first failure blocks), then
// modifiers (in order, failures skipped), then scorers (max wins).
type Interceptor struct {
	validators []Validator
	modifiers  []Modifier
	scorers    []Scorer
	limiter    *RateLimiter
	trail      *AuditTrail
	logger     *slog.Logger
}

// InterceptorOption configures an Interceptor.
type InterceptorOption func(*Interceptor)

// WithValidators replaces the default validator set.
func WithValidators(vs ...Validator) InterceptorOption {
	return func(i *Interceptor) { i.validators = vs }
}

// WithModifiers sets the modifier chain.
func WithModifiers(ms ...Modifier) InterceptorOption {
	return func(i *Interceptor) { i.modifiers = ms }
}

// WithScorers replaces the default scorer set.
func WithScorers(ss ...Scorer) InterceptorOption {
	return func(i *Interceptor) { i.scorers = ss }
}

// WithRateLimiter enables per-session admission control.
func WithRateLimiter(rl *RateLimiter) InterceptorOption {
	return func(i *Interceptor) { i.limiter = rl }
}

// NewInterceptor creates an interceptor with the built-in dangerous-args
// validator and heuristic scorer unless overridden.
func NewInterceptor(logger *slog.Logger, opts ...InterceptorOption) *Interceptor {
	i := &Interceptor{
		validators: []Validator{DangerousArgsValidator{}},
		scorers:    []Scorer{HeuristicScorer{}},
		trail:      NewAuditTrail(),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Trail exposes the audit trail for queries.
func (i *Interceptor) Trail() *AuditTrail {
	return i.trail
}

// Close releases the rate limiter's background resources.
func (i *Interceptor) Close() {
	if i.limiter != nil {
		i.limiter.Close()
	}
}

// Intercept produces exactly one verdict for the call. It never returns
// an error; internal failures degrade to skipped modifiers or, for
// validators, a block.
func (i *Interceptor) Intercept(call ToolCall) Result {
	start := time.Now()
	if call.ID == "" {
		call.ID = uuid.NewString()
	}
	if call.Timestamp.IsZero() {
		call.Timestamp = start
	}

	if i.limiter != nil && !i.limiter.Allow(call.SessionID) {
		return i.finish(call, Result{
			Action:  guardrail.ActionBlock,
			Reasons: []string{"rate limit exceeded"},
		}, start)
	}

	for _, v := range i.validators {
		ok, reason := v.Validate(call)
		if !ok {
			return i.finish(call, Result{
				Action:  guardrail.ActionBlock,
				Reasons: []string{v.Name() + ": " + reason},
			}, start)
		}
	}

	current := call
	modified := false
	var reasons []string
	for _, m := range i.modifiers {
		next, err := m.Modify(current)
		if err != nil {
			i.logger.Warn("modifier failed, skipping",
				"modifier", m.Name(), "tool", call.ToolName, "error", err)
			continue
		}
		if !sameCall(current, next) {
			modified = true
			reasons = append(reasons, "rewritten by "+m.Name())
		}
		current = next
	}

	var risk float64
	for _, s := range i.scorers {
		if score := s.Score(current); score > risk {
			risk = score
		}
	}

	action := guardrail.ActionAllow
	switch {
	case risk >= blockRiskThreshold:
		action = guardrail.ActionBlock
		reasons = append(reasons, "risk score over block threshold")
	case risk >= auditRiskThreshold:
		action = guardrail.ActionAudit
		reasons = append(reasons, "risk score over audit threshold")
	case modified:
		action = guardrail.ActionModify
	}

	result := Result{Action: action, RiskScore: risk, Reasons: reasons}
	if action != guardrail.ActionBlock {
		result.Call = &current
	}
	return i.finish(call, result, start)
}

// finish stamps elapsed time and appends the audited verdict.
func (i *Interceptor) finish(call ToolCall, result Result, start time.Time) Result {
	result.Elapsed = time.Since(start)
	i.trail.Append(Record{
		ID:        call.ID,
		SessionID: call.SessionID,
		ToolName:  call.ToolName,
		Action:    result.Action,
		RiskScore: result.RiskScore,
		Reasons:   result.Reasons,
		Timestamp: call.Timestamp,
	})
	return result
}

// sameCall compares the fields a modifier may rewrite.
func sameCall(a, b ToolCall) bool {
	if a.ToolName != b.ToolName || len(a.Arguments) != len(b.Arguments) {
		return false
	}
	for key, av := range a.Arguments {
		bv, ok := b.Arguments[key]
		if !ok || fmt.Sprintf("%v", av) != fmt.Sprintf("%v", bv) {
			return false
		}
	}
	return true
}
