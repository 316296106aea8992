// Package service contains application services.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/cel-go/cel"

	celeval "github.com/Modelgate-Labs/modelgate/internal/adapter/outbound/cel"
	"github.com/Modelgate-Labs/modelgate/internal/config"
	"github.com/Modelgate-Labs/modelgate/internal/domain/filter"
	"github.com/Modelgate-Labs/modelgate/internal/domain/guardrail"
	"github.com/Modelgate-Labs/modelgate/internal/telemetry"
)

// CompiledGuardRule is a pre-compiled custom rule ready for evaluation.
type CompiledGuardRule struct {
	Name     string
	Priority int
	Action   guardrail.Action
	Program  cel.Program
}

// lruEntry is a doubly-linked list node for the verdict LRU cache.
type lruEntry struct {
	key     uint64
	outcome guardrail.Outcome
	prev    *lruEntry
	next    *lruEntry
}

// VerdictCache provides bounded LRU caching for custom-rule verdicts.
// Thread-safe with Mutex (both Get and Put mutate LRU order).
type VerdictCache struct {
	mu      sync.Mutex
	entries map[uint64]*lruEntry
	head    *lruEntry
	tail    *lruEntry
	maxSize int
}

// NewVerdictCache creates an LRU cache with the given max size.
func NewVerdictCache(maxSize int) *VerdictCache {
	return &VerdictCache{
		entries: make(map[uint64]*lruEntry, maxSize),
		maxSize: maxSize,
	}
}

// Get retrieves a cached verdict, promoting the entry on hit.
func (c *VerdictCache) Get(key uint64) (guardrail.Outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.moveToHeadLocked(e)
		return e.outcome, true
	}
	return guardrail.Outcome{}, false
}

// Put stores a verdict, evicting the least recently used entry at capacity.
func (c *VerdictCache) Put(key uint64, outcome guardrail.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.outcome = outcome
		c.moveToHeadLocked(e)
		return
	}
	if len(c.entries) >= c.maxSize {
		c.evictTailLocked()
	}
	e := &lruEntry{key: key, outcome: outcome}
	c.entries[key] = e
	c.pushHeadLocked(e)
}

// Clear empties the cache. Called on reload.
func (c *VerdictCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[uint64]*lruEntry, c.maxSize)
	c.head = nil
	c.tail = nil
}

// Size returns the current entry count.
func (c *VerdictCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *VerdictCache) moveToHeadLocked(e *lruEntry) {
	if c.head == e {
		return
	}
	c.unlinkLocked(e)
	c.pushHeadLocked(e)
}

func (c *VerdictCache) pushHeadLocked(e *lruEntry) {
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *VerdictCache) unlinkLocked(e *lruEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev = nil
	e.next = nil
}

func (c *VerdictCache) evictTailLocked() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.unlinkLocked(c.tail)
}

// verdictCacheKey hashes the inputs a rule verdict depends on.
func verdictCacheKey(content, sessionID string) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(content)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(sessionID)
	return h.Sum64()
}

// ruleCheckpoint evaluates the compiled custom rules as one pipeline stage.
// Rules run in priority order (highest first); the worst triggered action
// wins and block short-circuits.
type ruleCheckpoint struct {
	evaluator *celeval.Evaluator
	rules     []CompiledGuardRule
	cache     *VerdictCache
}

func (rc *ruleCheckpoint) Name() string { return "custom_rules" }

func (rc *ruleCheckpoint) Check(_ context.Context, content string, reqCtx map[string]interface{}) (guardrail.Outcome, error) {
	sessionID, _ := reqCtx["session_id"].(string)
	key := verdictCacheKey(content, sessionID)
	if cached, ok := rc.cache.Get(key); ok {
		return cached, nil
	}

	in := celeval.Input{
		Content:   content,
		Context:   reqCtx,
		SessionID: sessionID,
	}
	if tool, ok := reqCtx["tool_name"].(string); ok {
		in.ToolName = tool
	}

	outcome := guardrail.Outcome{Action: guardrail.ActionAllow, Confidence: 1}
	for _, rule := range rc.rules {
		matched, err := rc.evaluator.Evaluate(rule.Program, in)
		if err != nil {
			return guardrail.Outcome{}, fmt.Errorf("rule %s: %w", rule.Name, err)
		}
		if !matched {
			continue
		}
		outcome.Reasons = append(outcome.Reasons, fmt.Sprintf("matched rule %s", rule.Name))
		if rule.Action.WorseThan(outcome.Action) {
			outcome.Action = rule.Action
		}
		if outcome.Action == guardrail.ActionBlock {
			break
		}
	}

	rc.cache.Put(key, outcome)
	return outcome, nil
}

// GuardService owns the checkpoint pipeline built from configuration:
// built-in filters plus compiled custom rules. Supports hot-reload via
// Reload; the pipeline snapshot is swapped atomically so in-flight checks
// finish against the configuration they started with.
type GuardService struct {
	evaluator *celeval.Evaluator
	telemetry *telemetry.Provider
	logger    *slog.Logger

	pipeline atomic.Pointer[guardrail.Pipeline]
	mu       sync.Mutex // serializes Reload
	cache    *VerdictCache
}

// GuardServiceOption configures GuardService.
type GuardServiceOption func(*GuardService)

// WithVerdictCacheSize sets the custom-rule verdict cache capacity.
func WithVerdictCacheSize(size int) GuardServiceOption {
	return func(s *GuardService) {
		s.cache = NewVerdictCache(size)
	}
}

// WithGuardTelemetry attaches a telemetry provider.
func WithGuardTelemetry(p *telemetry.Provider) GuardServiceOption {
	return func(s *GuardService) {
		s.telemetry = p
	}
}

// NewGuardService compiles the configuration into a running pipeline.
func NewGuardService(cfg config.GuardrailConfig, rules []config.PolicyRuleConfig, logger *slog.Logger, opts ...GuardServiceOption) (*GuardService, error) {
	evaluator, err := celeval.NewEvaluator()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL evaluator: %w", err)
	}

	s := &GuardService{
		evaluator: evaluator,
		telemetry: telemetry.NoopProvider(),
		logger:    logger,
		cache:     NewVerdictCache(1000),
	}
	for _, opt := range opts {
		opt(s)
	}

	pipeline, err := s.buildPipeline(cfg, rules)
	if err != nil {
		return nil, err
	}
	s.pipeline.Store(pipeline)

	logger.Info("guard service initialized",
		"checkpoints", len(cfg.Checkpoints),
		"custom_rules", len(rules),
		"fail_open", cfg.FailOpen,
	)
	return s, nil
}

// ValidateRules checks that all rule expressions compile. Called before
// persisting a configuration so invalid CEL cannot poison the store.
func (s *GuardService) ValidateRules(rules []config.PolicyRuleConfig) error {
	for _, rule := range rules {
		if err := s.evaluator.ValidateExpression(rule.Expression); err != nil {
			return fmt.Errorf("rule %q: %w", rule.Name, err)
		}
	}
	return nil
}

// buildPipeline assembles a pipeline from configuration.
func (s *GuardService) buildPipeline(cfg config.GuardrailConfig, rules []config.PolicyRuleConfig) (*guardrail.Pipeline, error) {
	opts := []guardrail.Option{
		guardrail.WithFailOpen(cfg.FailOpen),
		guardrail.WithDefaultTimeout(config.ParseDuration(cfg.CheckpointTimeout, 500*time.Millisecond)),
	}
	if cfg.CacheTTL != "" {
		ttl := config.ParseDuration(cfg.CacheTTL, time.Minute)
		opts = append(opts, guardrail.WithCache(guardrail.NewResultCache(ttl, cfg.CacheSize)))
	}

	pipeline := guardrail.NewPipeline("guardrails", s.logger, opts...)

	for _, cp := range cfg.Checkpoints {
		f, err := s.buildFilter(cp.Name, cfg)
		if err != nil {
			return nil, err
		}
		enabled := cp.Enabled == nil || *cp.Enabled
		pipeline.Register(guardrail.Registration{
			Checkpoint: filter.NewCheckpoint(f, guardrail.Action(cp.Action)),
			Position:   guardrail.Position(cp.Position),
			Enabled:    enabled,
			FailOpen:   cp.FailOpen,
			Timeout:    config.ParseDuration(cp.Timeout, 0),
		})
	}

	compiled, err := s.compileRules(rules)
	if err != nil {
		return nil, err
	}
	if len(compiled) > 0 {
		pipeline.Register(guardrail.Registration{
			Checkpoint: &ruleCheckpoint{
				evaluator: s.evaluator,
				rules:     compiled,
				cache:     s.cache,
			},
			Position: guardrail.PositionBoth,
			Enabled:  true,
		})
	}

	return pipeline, nil
}

// buildFilter constructs one built-in filter by name.
func (s *GuardService) buildFilter(name string, cfg config.GuardrailConfig) (filter.Filter, error) {
	switch name {
	case "pii":
		var opts []filter.PIIOption
		if cfg.RedactionChar != "" {
			opts = append(opts, filter.WithRedactionChar([]rune(cfg.RedactionChar)[0]))
		}
		return filter.NewPIIFilter(opts...), nil
	case "toxicity":
		return filter.NewToxicityFilter(), nil
	case "jailbreak":
		return filter.NewJailbreakFilter(), nil
	case "topic":
		return filter.NewTopicFilter(cfg.BlockedTopics, cfg.AllowedTopics)
	case "refusal":
		return filter.NewRefusalFilter(), nil
	default:
		return nil, fmt.Errorf("unknown checkpoint %q", name)
	}
}

// compileRules compiles enabled rules and sorts them by priority descending.
func (s *GuardService) compileRules(rules []config.PolicyRuleConfig) ([]CompiledGuardRule, error) {
	compiled := make([]CompiledGuardRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Enabled != nil && !*rule.Enabled {
			continue
		}
		prg, err := s.evaluator.Compile(rule.Expression)
		if err != nil {
			return nil, fmt.Errorf("failed to compile rule %s: %w", rule.Name, err)
		}
		action := guardrail.Action(rule.Action)
		if action == "" {
			action = guardrail.ActionBlock
		}
		compiled = append(compiled, CompiledGuardRule{
			Name:     rule.Name,
			Priority: rule.Priority,
			Action:   action,
			Program:  prg,
		})
	}
	sort.SliceStable(compiled, func(i, j int) bool {
		return compiled[i].Priority > compiled[j].Priority
	})
	return compiled, nil
}

// Reload rebuilds the pipeline from a new configuration and swaps it in.
// Safe to call concurrently with checks.
func (s *GuardService) Reload(cfg config.GuardrailConfig, rules []config.PolicyRuleConfig) error {
	// Compile outside the lock; the swap itself is brief.
	pipeline, err := s.buildPipeline(cfg, rules)
	if err != nil {
		return fmt.Errorf("failed to rebuild pipeline: %w", err)
	}

	s.mu.Lock()
	s.pipeline.Store(pipeline)
	s.mu.Unlock()

	// Stale verdicts must not survive a rule change.
	s.cache.Clear()

	s.logger.Info("guard service reloaded",
		"checkpoints", len(cfg.Checkpoints),
		"custom_rules", len(rules),
		"cache_cleared", true,
	)
	return nil
}

// CheckInput runs the input phase over content.
func (s *GuardService) CheckInput(ctx context.Context, sessionID, content string, reqCtx map[string]interface{}) guardrail.Result {
	reqCtx = withSession(reqCtx, sessionID)
	ctx, span := s.telemetry.StartCheckSpan(ctx, sessionID)
	result := s.pipeline.Load().CheckInput(ctx, content, reqCtx)
	s.telemetry.EndCheckSpan(span, result.Action.String(), result.Reasons, result.Elapsed.Milliseconds(), nil)
	return result
}

// CheckOutput runs the output phase over content.
func (s *GuardService) CheckOutput(ctx context.Context, sessionID, content string, reqCtx map[string]interface{}) guardrail.Result {
	reqCtx = withSession(reqCtx, sessionID)
	ctx, span := s.telemetry.StartCheckSpan(ctx, sessionID)
	result := s.pipeline.Load().CheckOutput(ctx, content, reqCtx)
	s.telemetry.EndCheckSpan(span, result.Action.String(), result.Reasons, result.Elapsed.Milliseconds(), nil)
	return result
}

// CheckBoth runs the full input/model/output sandwich.
func (s *GuardService) CheckBoth(ctx context.Context, sessionID, input string, model guardrail.ModelFunc, reqCtx map[string]interface{}) guardrail.BothResult {
	reqCtx = withSession(reqCtx, sessionID)
	return s.pipeline.Load().CheckBoth(ctx, input, model, reqCtx)
}

// Stats returns the running pipeline's metrics snapshot.
func (s *GuardService) Stats() guardrail.Stats {
	return s.pipeline.Load().Metrics().Snapshot()
}

// CacheSize returns the current verdict cache entry count.
func (s *GuardService) CacheSize() int {
	return s.cache.Size()
}

// withSession returns reqCtx with the session id present, copying when the
// caller's map must not be mutated.
func withSession(reqCtx map[string]interface{}, sessionID string) map[string]interface{} {
	if sessionID == "" {
		return reqCtx
	}
	out := make(map[string]interface{}, len(reqCtx)+1)
	for k, v := range reqCtx {
		out[k] = v
	}
	out["session_id"] = sessionID
	return out
}
