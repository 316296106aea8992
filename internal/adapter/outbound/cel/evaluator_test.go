package cel

import (
	"strings"
	"testing"
	"time"
)

func mustEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	e, err := NewEvaluator()
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestEvaluateExpressions(t *testing.T) {
	e := mustEvaluator(t)

	in := Input{
		Content:   "please DROP TABLE users",
		SessionID: "s-1",
		ToolName:  "sql_query",
		Context: map[string]interface{}{
			"role": "viewer",
		},
		RequestTime: time.Now(),
	}

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"content contains", `content.contains("DROP TABLE")`, true},
		{"content lowercase", `content.lowerAscii().contains("drop table")`, true},
		{"no match", `content.contains("TRUNCATE")`, false},
		{"tool glob", `glob("sql_*", tool_name)`, true},
		{"tool glob miss", `glob("http_*", tool_name)`, false},
		{"context access", `context["role"] == "viewer"`, true},
		{"session", `session_id.startsWith("s-")`, true},
		{"compound", `content.contains("DROP") && context["role"] != "admin"`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prg, err := e.Compile(tt.expr)
			if err != nil {
				t.Fatal(err)
			}
			got, err := e.Evaluate(prg, in)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluateNonBoolean(t *testing.T) {
	e := mustEvaluator(t)
	prg, err := e.Compile(`content + "x"`)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Evaluate(prg, Input{Content: "a"}); err == nil {
		t.Error("non-boolean result should error")
	}
}

func TestValidateExpression(t *testing.T) {
	e := mustEvaluator(t)

	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{"valid", `content.contains("x")`, false},
		{"empty", "", true},
		{"too long", `content.contains("` + strings.Repeat("a", 1100) + `")`, true},
		{"unknown variable", `missing_var == 1`, true},
		{"deep nesting", strings.Repeat("(", 60) + "true" + strings.Repeat(")", 60), true},
		{"syntax error", `content.contains(`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.ValidateExpression(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
