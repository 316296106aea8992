package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Modelgate-Labs/modelgate/internal/config"
	"github.com/Modelgate-Labs/modelgate/internal/domain/agent"
	"github.com/Modelgate-Labs/modelgate/internal/domain/guardrail"
	"github.com/Modelgate-Labs/modelgate/internal/domain/intercept"
	"github.com/Modelgate-Labs/modelgate/internal/domain/sandbox"
	"github.com/Modelgate-Labs/modelgate/internal/domain/tool"
	"github.com/Modelgate-Labs/modelgate/internal/telemetry"
)

// ExecOutcome pairs the interception verdict with the sandboxed execution
// result, when the call was admitted and executable.
type ExecOutcome struct {
	Verdict   intercept.Result `json:"verdict"`
	Execution *sandbox.Outcome `json:"execution,omitempty"`
}

// InterceptService fronts the tool-call decision engine: every call is
// intercepted, admitted calls that carry a command execute inside a pooled
// sandbox, and whole traces can be evaluated for behavioral risk.
type InterceptService struct {
	interceptor *intercept.Interceptor
	checker     tool.SecurityChecker
	agents      *agent.Evaluator
	pool        *sandbox.Pool
	telemetry   *telemetry.Provider
	logger      *slog.Logger
}

// InterceptServiceOption configures InterceptService.
type InterceptServiceOption func(*InterceptService)

// WithInterceptTelemetry attaches a telemetry provider.
func WithInterceptTelemetry(p *telemetry.Provider) InterceptServiceOption {
	return func(s *InterceptService) { s.telemetry = p }
}

// WithSecurityChecker overrides the default pattern checker.
func WithSecurityChecker(c tool.SecurityChecker) InterceptServiceOption {
	return func(s *InterceptService) { s.checker = c }
}

// NewInterceptService builds the interceptor from configuration and
// pre-allocates the sandbox pool. With sandbox mode "none" the pool is
// skipped and Execute only returns verdicts.
func NewInterceptService(cfg config.InterceptConfig, sbCfg config.SandboxConfig, logger *slog.Logger, opts ...InterceptServiceOption) (*InterceptService, error) {
	var iopts []intercept.InterceptorOption
	if cfg.RateLimitPerMinute > 0 {
		iopts = append(iopts, intercept.WithRateLimiter(intercept.NewRateLimiter(cfg.RateLimitPerMinute)))
	}
	if len(cfg.AllowedTools) > 0 || len(cfg.DeniedTools) > 0 {
		iopts = append(iopts, intercept.WithValidators(
			intercept.NewListValidator(cfg.AllowedTools, cfg.DeniedTools),
			intercept.DangerousArgsValidator{},
		))
	}

	s := &InterceptService{
		interceptor: intercept.NewInterceptor(logger, iopts...),
		checker:     tool.NewPatternChecker(cfg.DeniedTools, cfg.AllowedTools),
		telemetry:   telemetry.NoopProvider(),
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.agents = agent.NewEvaluator(s.interceptor, s.checker, logger)

	if sbCfg.Mode != "" && sbCfg.Mode != "none" {
		pool, err := sandbox.NewPool(sbCfg.PoolSize, sandbox.Config{
			Mode:          sandbox.Mode(sbCfg.Mode),
			Timeout:       config.ParseDuration(sbCfg.Timeout, 30*time.Second),
			MemoryLimitMB: sbCfg.MemoryLimitMB,
			CPUShares:     sbCfg.CPUShares,
			Runtime:       sbCfg.Runtime,
			Image:         sbCfg.Image,
		}, logger)
		if err != nil {
			s.interceptor.Close()
			return nil, fmt.Errorf("failed to create sandbox pool: %w", err)
		}
		s.pool = pool
	}

	logger.Info("intercept service initialized",
		"rate_limit_per_minute", cfg.RateLimitPerMinute,
		"allowed_tools", len(cfg.AllowedTools),
		"denied_tools", len(cfg.DeniedTools),
		"sandbox_mode", sbCfg.Mode,
	)
	return s, nil
}

// Intercept produces a verdict for one tool call without executing it.
func (s *InterceptService) Intercept(ctx context.Context, call intercept.ToolCall) intercept.Result {
	result := s.interceptor.Intercept(call)
	s.telemetry.RecordInterception(ctx, call.SessionID, call.ToolName,
		result.Action.String(), result.RiskScore, result.Elapsed.Milliseconds())
	return result
}

// Execute intercepts the call and, when admitted, runs its command inside a
// pooled sandbox. The command is read from the "command" argument as a
// string slice or a single string.
func (s *InterceptService) Execute(ctx context.Context, call intercept.ToolCall) (ExecOutcome, error) {
	verdict := s.Intercept(ctx, call)
	out := ExecOutcome{Verdict: verdict}
	if verdict.Action == guardrail.ActionBlock {
		return out, nil
	}
	if s.pool == nil {
		return out, nil
	}

	command, ok := commandArgv(verdict.Call.Arguments)
	if !ok {
		return out, nil
	}

	sb, err := s.pool.Claim(ctx)
	if err != nil {
		return out, fmt.Errorf("failed to claim sandbox: %w", err)
	}
	defer s.pool.Release(sb)

	execution := sb.Execute(ctx, command)
	out.Execution = &execution
	s.logger.Debug("sandboxed execution finished",
		"tool", call.ToolName,
		"session_id", call.SessionID,
		"success", execution.Success,
		"exit_code", execution.ExitCode,
	)
	return out, nil
}

// EvaluateTrace scores a full agent session trace.
func (s *InterceptService) EvaluateTrace(ctx context.Context, agentID string, trace []agent.CallRecord) agent.Result {
	return s.agents.Evaluate(ctx, agentID, trace)
}

// Trail exposes the audit trail for queries.
func (s *InterceptService) Trail() *intercept.AuditTrail {
	return s.interceptor.Trail()
}

// Close releases the rate limiter and tears down the sandbox pool.
func (s *InterceptService) Close() {
	s.interceptor.Close()
	if s.pool != nil {
		s.pool.Shutdown()
	}
}

// commandArgv extracts an executable command from call arguments.
func commandArgv(args map[string]interface{}) ([]string, bool) {
	raw, ok := args["command"]
	if !ok {
		return nil, false
	}
	switch v := raw.(type) {
	case []string:
		if len(v) == 0 {
			return nil, false
		}
		return v, true
	case []interface{}:
		argv := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, false
			}
			argv = append(argv, str)
		}
		return argv, len(argv) > 0
	case string:
		if v == "" {
			return nil, false
		}
		return []string{"/bin/sh", "-c", v}, true
	default:
		return nil, false
	}
}
