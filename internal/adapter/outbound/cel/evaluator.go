// Package cel provides a CEL-based evaluator for custom guard rules.
package cel

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"
)

// maxExpressionLength bounds rule expressions to keep parsing cheap.
const maxExpressionLength = 1024

// maxCostBudget is the CEL runtime cost limit against cost-exhaustion.
const maxCostBudget = 100_000

// maxNestingDepth bounds parenthesis/bracket nesting.
const maxNestingDepth = 50

// evalTimeout bounds a single CEL evaluation.
const evalTimeout = 5 * time.Second

// interruptCheckFreq is how often (in comprehension iterations) context
// cancellation is checked.
const interruptCheckFreq = 100

// NewGuardEnvironment creates the CEL environment for guard rules. Rules
// see the content under check, the request context, and the session id,
// plus a glob helper for name patterns.
func NewGuardEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		ext.Strings(),
		ext.Sets(),

		cel.Variable("content", cel.StringType),
		cel.Variable("context", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("session_id", cel.StringType),
		cel.Variable("tool_name", cel.StringType),
		cel.Variable("request_time", cel.TimestampType),

		cel.Function("glob",
			cel.Overload("glob_string_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(func(pattern, name ref.Val) ref.Val {
					p := pattern.Value().(string)
					n := name.Value().(string)
					matched, _ := filepath.Match(p, n)
					return types.Bool(matched)
				}),
			),
		),
	)
}

// Evaluator compiles and evaluates CEL expressions for guard rules.
type Evaluator struct {
	env *cel.Env
}

// NewEvaluator creates an evaluator with the guard environment.
func NewEvaluator() (*Evaluator, error) {
	env, err := NewGuardEnvironment()
	if err != nil {
		return nil, fmt.Errorf("failed to create guard environment: %w", err)
	}
	return &Evaluator{env: env}, nil
}

// Compile parses and type-checks an expression into a program.
func (e *Evaluator) Compile(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compilation failed: %w", issues.Err())
	}

	prg, err := e.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
		cel.InterruptCheckFrequency(interruptCheckFreq),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation failed: %w", err)
	}
	return prg, nil
}

// validateNesting checks parenthesis/bracket/brace nesting depth.
func validateNesting(expr string) error {
	var depth, maxDepth int
	for _, ch := range expr {
		switch ch {
		case '(', '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')', ']', '}':
			depth--
		}
	}
	if maxDepth > maxNestingDepth {
		return fmt.Errorf("expression nesting too deep: %d levels (max %d)", maxDepth, maxNestingDepth)
	}
	return nil
}

// ValidateExpression checks that an expression is syntactically valid and
// within the safety limits.
func (e *Evaluator) ValidateExpression(expr string) error {
	if len(expr) > maxExpressionLength {
		return fmt.Errorf("expression too long: %d characters (max %d)", len(expr), maxExpressionLength)
	}
	if expr == "" {
		return errors.New("expression is empty")
	}
	if err := validateNesting(expr); err != nil {
		return err
	}
	if _, err := e.Compile(expr); err != nil {
		return fmt.Errorf("invalid CEL expression: %w", err)
	}
	return nil
}

// Input is the variable set one evaluation sees.
type Input struct {
	Content     string
	Context     map[string]interface{}
	SessionID   string
	ToolName    string
	RequestTime time.Time
}

// Evaluate runs a compiled program. The expression must yield a boolean;
// evaluation is bounded by evalTimeout.
func (e *Evaluator) Evaluate(prg cel.Program, in Input) (bool, error) {
	reqCtx := in.Context
	if reqCtx == nil {
		reqCtx = map[string]interface{}{}
	}
	requestTime := in.RequestTime
	if requestTime.IsZero() {
		requestTime = time.Now()
	}
	activation := map[string]interface{}{
		"content":      in.Content,
		"context":      reqCtx,
		"session_id":   in.SessionID,
		"tool_name":    in.ToolName,
		"request_time": requestTime,
	}

	ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()

	result, _, err := prg.ContextEval(ctx, activation)
	if err != nil {
		return false, fmt.Errorf("evaluation failed: %w", err)
	}

	boolResult, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression did not return a boolean, got %T", result.Value())
	}
	return boolResult, nil
}
