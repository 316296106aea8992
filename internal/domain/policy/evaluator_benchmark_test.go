package policy

import (
	"fmt"
	"testing"

	"github.com/Modelgate-Labs/modelgate/internal/domain/guardrail"
)

// BenchmarkEvaluate measures evaluation of a realistic small policy on
// the allow path.
func BenchmarkEvaluate(b *testing.B) {
	e, err := NewEvaluator(Policy{
		Name:    "bench",
		Enabled: true,
		Rules: []Rule{
			{
				Name:     "block-secrets",
				Priority: 100,
				Enabled:  true,
				Action:   guardrail.ActionBlock,
				Conditions: []Condition{
					{Field: FieldContent, Op: OpMatches, Value: `(?i)\b(?:api[_-]?key|password)\s*[:=]`},
				},
			},
			{
				Name:     "flag-admin-tools",
				Priority: 50,
				Enabled:  true,
				Action:   guardrail.ActionWarn,
				Conditions: []Condition{
					{Field: "tool_name", Op: OpContains, Value: "admin"},
				},
			},
		},
	}, testLogger())
	if err != nil {
		b.Fatal(err)
	}

	content := "please summarize the quarterly report and send it to the team"
	reqCtx := map[string]interface{}{"tool_name": "read_file"}

	b.ResetTimer()
	for b.Loop() {
		_ = e.Evaluate(content, reqCtx)
	}
}

// BenchmarkEvaluateParallel measures evaluation under contention. The
// evaluator is immutable after construction, so this should scale.
func BenchmarkEvaluateParallel(b *testing.B) {
	e, err := NewEvaluator(Policy{
		Name:    "bench",
		Enabled: true,
		Rules: []Rule{
			{
				Name:     "block-secrets",
				Priority: 100,
				Enabled:  true,
				Action:   guardrail.ActionBlock,
				Conditions: []Condition{
					{Field: FieldContent, Op: OpMatches, Value: `(?i)\b(?:api[_-]?key|password)\s*[:=]`},
				},
			},
		},
	}, testLogger())
	if err != nil {
		b.Fatal(err)
	}

	content := "please summarize the quarterly report"
	reqCtx := map[string]interface{}{"tool_name": "read_file"}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = e.Evaluate(content, reqCtx)
		}
	})
}

// BenchmarkEvaluateManyRules measures how cost grows with rule count when
// nothing matches.
func BenchmarkEvaluateManyRules(b *testing.B) {
	rules := make([]Rule, 100)
	for i := range rules {
		rules[i] = Rule{
			Name:     fmt.Sprintf("rule-%d", i),
			Priority: i,
			Enabled:  true,
			Action:   guardrail.ActionWarn,
			Conditions: []Condition{
				{Field: "tool_name", Op: OpEquals, Value: fmt.Sprintf("tool_%d", i)},
			},
		}
	}

	e, err := NewEvaluator(Policy{Name: "bench", Enabled: true, Rules: rules}, testLogger())
	if err != nil {
		b.Fatal(err)
	}

	reqCtx := map[string]interface{}{"tool_name": "no_such_tool"}

	b.ResetTimer()
	for b.Loop() {
		_ = e.Evaluate("content", reqCtx)
	}
}
