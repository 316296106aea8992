package policy

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/Modelgate-Labs/modelgate/internal/domain/guardrail"
)

// Evaluator runs policies over content and context. Construction
// validates every rule, so evaluation never compiles patterns.
type Evaluator struct {
	policy Policy
	logger *slog.Logger
}

// NewEvaluator validates the policy and returns an evaluator. Rules are
// pre-sorted by descending priority once here.
func NewEvaluator(p Policy, logger *slog.Logger) (*Evaluator, error) {
	if p.FailAction == "" {
		p.FailAction = guardrail.ActionBlock
	}
	for ri := range p.Rules {
		rule := &p.Rules[ri]
		if rule.Name == "" {
			return nil, fmt.Errorf("rule %d has no name", ri)
		}
		if rule.Combine == "" {
			rule.Combine = CombineAll
		}
		if rule.Combine != CombineAll && rule.Combine != CombineAny {
			return nil, fmt.Errorf("rule %q: unknown combine mode %q", rule.Name, rule.Combine)
		}
		if len(rule.Conditions) == 0 {
			return nil, fmt.Errorf("rule %q has no conditions", rule.Name)
		}
		for ci := range rule.Conditions {
			if err := rule.Conditions[ci].compile(); err != nil {
				return nil, fmt.Errorf("rule %q: %w", rule.Name, err)
			}
		}
	}
	sort.SliceStable(p.Rules, func(i, j int) bool {
		return p.Rules[i].Priority > p.Rules[j].Priority
	})
	return &Evaluator{policy: p, logger: logger}, nil
}

// Evaluate runs the policy. The highest-severity matched action wins and
// block returns immediately. A rule that cannot be evaluated contributes
// the policy's fail action.
func (e *Evaluator) Evaluate(content string, reqCtx map[string]interface{}) Verdict {
	verdict := Verdict{Action: guardrail.ActionAllow}
	if !e.policy.Enabled {
		return verdict
	}

	for _, rule := range e.policy.Rules {
		if !rule.Enabled {
			continue
		}
		matched, err := e.matchRule(rule, content, reqCtx)
		if err != nil {
			e.logger.Warn("rule evaluation failed",
				"policy", e.policy.Name, "rule", rule.Name, "error", err)
			verdict.Errors = append(verdict.Errors, fmt.Sprintf("%s: %v", rule.Name, err))
			if e.policy.FailAction.WorseThan(verdict.Action) {
				verdict.Action = e.policy.FailAction
			}
			if verdict.Action == guardrail.ActionBlock {
				return verdict
			}
			continue
		}
		if !matched {
			continue
		}
		verdict.Matches = append(verdict.Matches, RuleMatch{
			Rule:    rule.Name,
			Action:  rule.Action,
			Message: rule.Message,
		})
		if rule.Action.WorseThan(verdict.Action) {
			verdict.Action = rule.Action
		}
		if verdict.Action == guardrail.ActionBlock {
			return verdict
		}
	}
	return verdict
}

// matchRule applies the rule's conditions under its combine mode.
func (e *Evaluator) matchRule(rule Rule, content string, reqCtx map[string]interface{}) (bool, error) {
	for _, cond := range rule.Conditions {
		ok, err := evalCondition(cond, content, reqCtx)
		if err != nil {
			return false, err
		}
		if rule.Combine == CombineAny && ok {
			return true, nil
		}
		if rule.Combine == CombineAll && !ok {
			return false, nil
		}
	}
	return rule.Combine == CombineAll, nil
}

// evalCondition resolves the field and applies the operator.
func evalCondition(cond Condition, content string, reqCtx map[string]interface{}) (bool, error) {
	var (
		value interface{}
		found bool
	)
	if cond.Field == FieldContent {
		value, found = content, true
	} else {
		value, found = lookupPath(reqCtx, cond.Field)
	}

	switch cond.Op {
	case OpExists:
		return found, nil
	case OpNotExists:
		return !found, nil
	}
	if !found {
		return false, nil
	}

	switch cond.Op {
	case OpEquals:
		return stringify(value) == stringify(cond.Value), nil
	case OpNotEquals:
		return stringify(value) != stringify(cond.Value), nil
	case OpContains:
		return strings.Contains(stringify(value), stringify(cond.Value)), nil
	case OpNotContains:
		return !strings.Contains(stringify(value), stringify(cond.Value)), nil
	case OpMatches:
		return cond.re.MatchString(stringify(value)), nil
	case OpGreaterThan, OpLessThan:
		lhs, err := toFloat(value)
		if err != nil {
			return false, fmt.Errorf("field %s: %w", cond.Field, err)
		}
		rhs, err := toFloat(cond.Value)
		if err != nil {
			return false, fmt.Errorf("operand: %w", err)
		}
		if cond.Op == OpGreaterThan {
			return lhs > rhs, nil
		}
		return lhs < rhs, nil
	case OpIn, OpNotIn:
		set, err := toSet(cond.Value)
		if err != nil {
			return false, err
		}
		_, member := set[stringify(value)]
		if cond.Op == OpIn {
			return member, nil
		}
		return !member, nil
	}
	return false, fmt.Errorf("unknown operator %q", cond.Op)
}

// lookupPath walks a dotted path through nested maps.
func lookupPath(m map[string]interface{}, path string) (interface{}, bool) {
	if m == nil {
		return nil, false
	}
	parts := strings.Split(path, ".")
	var current interface{} = m
	for _, part := range parts {
		node, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = node[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func stringify(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}

func toSet(v interface{}) (map[string]struct{}, error) {
	set := make(map[string]struct{})
	switch items := v.(type) {
	case []string:
		for _, item := range items {
			set[item] = struct{}{}
		}
	case []interface{}:
		for _, item := range items {
			set[stringify(item)] = struct{}{}
		}
	default:
		return nil, fmt.Errorf("in/not_in operand must be a list, got %T", v)
	}
	return set, nil
}
