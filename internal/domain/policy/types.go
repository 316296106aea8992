// Package policy implements tagged-condition rule evaluation over content
// and request context. Rules run in descending priority; the highest
// severity action wins and block short-circuits.
package policy

import (
	"fmt"
	"regexp"

	"github.com/Modelgate-Labs/modelgate/internal/domain/guardrail"
)

// Operator compares a resolved field against a condition value.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpMatches     Operator = "matches"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
	OpExists      Operator = "exists"
	OpNotExists   Operator = "not_exists"
)

var validOperators = map[Operator]bool{
	OpEquals: true, OpNotEquals: true,
	OpContains: true, OpNotContains: true,
	OpMatches:     true,
	OpGreaterThan: true, OpLessThan: true,
	OpIn: true, OpNotIn: true,
	OpExists: true, OpNotExists: true,
}

// CombineMode selects how a rule's conditions combine.
type CombineMode string

const (
	CombineAll CombineMode = "all"
	CombineAny CombineMode = "any"
)

// FieldContent addresses the content string itself; any other field is a
// dotted path into the request context.
const FieldContent = "content"

// Condition is one (field, operator, value) test.
type Condition struct {
	// Field is "content" or a dotted path into the request context.
	Field string
	// Op is the comparison operator.
	Op Operator
	// Value is the right-hand operand. Unused for exists/not_exists.
	Value interface{}

	re *regexp.Regexp
}

// compile validates the condition and precompiles regex operands.
func (c *Condition) compile() error {
	if c.Field == "" {
		return fmt.Errorf("condition has no field")
	}
	if !validOperators[c.Op] {
		return fmt.Errorf("unknown operator %q", c.Op)
	}
	if c.Op == OpMatches {
		pattern, ok := c.Value.(string)
		if !ok {
			return fmt.Errorf("matches operand must be a string, got %T", c.Value)
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("compile pattern %q: %w", pattern, err)
		}
		c.re = re
	}
	return nil
}

// Rule is a named, prioritized set of conditions with a verdict.
type Rule struct {
	// Name identifies the rule in results.
	Name string
	// Conditions are evaluated under the combine mode.
	Conditions []Condition
	// Action is the verdict when the rule matches.
	Action guardrail.Action
	// Message explains the verdict to the caller.
	Message string
	// Priority orders evaluation, highest first.
	Priority int
	// Enabled gates the rule.
	Enabled bool
	// Combine selects all-must-match or any-must-match. Default all.
	Combine CombineMode
}

// Policy is an ordered rule collection with a fail action applied when a
// rule cannot be evaluated.
type Policy struct {
	// Name identifies the policy.
	Name string
	// Rules are evaluated in descending priority.
	Rules []Rule
	// FailAction is the verdict recorded when rule evaluation errors.
	FailAction guardrail.Action
	// Enabled gates the whole policy; a disabled policy always allows.
	Enabled bool
}

// RuleMatch records one matched rule in an evaluation.
type RuleMatch struct {
	Rule    string
	Action  guardrail.Action
	Message string
}

// Verdict is the outcome of evaluating a policy.
type Verdict struct {
	// Action is the highest-severity action across matched rules.
	Action guardrail.Action
	// Matches lists the rules that fired, in evaluation order.
	Matches []RuleMatch
	// Errors lists rules that could not be evaluated.
	Errors []string
}
