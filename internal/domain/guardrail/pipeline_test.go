package guardrail

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

// stubCheckpoint is a function-backed checkpoint for pipeline tests.
type stubCheckpoint struct {
	name string
	fn   func(ctx context.Context, content string, reqCtx map[string]interface{}) (Outcome, error)
}

func (s *stubCheckpoint) Name() string { return s.name }

func (s *stubCheckpoint) Check(ctx context.Context, content string, reqCtx map[string]interface{}) (Outcome, error) {
	return s.fn(ctx, content, reqCtx)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func allowCheckpoint(name string) *stubCheckpoint {
	return &stubCheckpoint{name: name, fn: func(context.Context, string, map[string]interface{}) (Outcome, error) {
		return Outcome{Action: ActionAllow, Confidence: 1}, nil
	}}
}

func blockCheckpoint(name, reason string) *stubCheckpoint {
	return &stubCheckpoint{name: name, fn: func(context.Context, string, map[string]interface{}) (Outcome, error) {
		return Outcome{Action: ActionBlock, Reasons: []string{reason}, Confidence: 0.9}, nil
	}}
}

func modifyCheckpoint(name string, rewrite func(string) string) *stubCheckpoint {
	return &stubCheckpoint{name: name, fn: func(_ context.Context, content string, _ map[string]interface{}) (Outcome, error) {
		return Outcome{Action: ActionModify, Modified: rewrite(content), Confidence: 0.8}, nil
	}}
}

func enabled(cp Checkpoint, pos Position) Registration {
	return Registration{Checkpoint: cp, Position: pos, Enabled: true}
}

func boolPtr(b bool) *bool { return &b }

func TestPipelineEmptyIsTransparent(t *testing.T) {
	p := NewPipeline("empty", discardLogger())

	result := p.CheckInput(context.Background(), "anything at all", nil)

	if result.Action != ActionAllow {
		t.Fatalf("action = %s, want allow", result.Action)
	}
	if !result.Passed {
		t.Error("expected passed")
	}
	if result.Modified != nil {
		t.Errorf("modified = %q, want nil", *result.Modified)
	}
	if result.FinalContent() != "anything at all" {
		t.Errorf("final content = %q", result.FinalContent())
	}
}

func TestPipelineBlockShortCircuits(t *testing.T) {
	p := NewPipeline("gate", discardLogger())
	p.Register(enabled(allowCheckpoint("first"), PositionInput))
	p.Register(enabled(blockCheckpoint("second", "bad content"), PositionInput))

	reached := false
	p.Register(enabled(&stubCheckpoint{name: "third", fn: func(context.Context, string, map[string]interface{}) (Outcome, error) {
		reached = true
		return Outcome{Action: ActionAllow}, nil
	}}, PositionInput))

	result := p.CheckInput(context.Background(), "content", nil)

	if result.Action != ActionBlock || result.Passed {
		t.Fatalf("got action=%s passed=%v, want block/false", result.Action, result.Passed)
	}
	if reached {
		t.Error("checkpoint after block should not run")
	}
	if len(result.Reasons) != 1 || result.Reasons[0] != "bad content" {
		t.Errorf("reasons = %v", result.Reasons)
	}
	if result.FinalContent() != "" {
		t.Errorf("blocked final content = %q, want empty", result.FinalContent())
	}
}

func TestPipelineModificationsCompose(t *testing.T) {
	p := NewPipeline("rewrite", discardLogger())
	p.Register(enabled(modifyCheckpoint("upper", strings.ToUpper), PositionInput))
	p.Register(enabled(modifyCheckpoint("suffix", func(s string) string { return s + "!" }), PositionInput))

	result := p.CheckInput(context.Background(), "hello", nil)

	if result.Action != ActionModify {
		t.Fatalf("action = %s, want modify", result.Action)
	}
	if result.Modified == nil || *result.Modified != "HELLO!" {
		t.Fatalf("modified = %v, want HELLO!", result.Modified)
	}
	if result.Original != "hello" {
		t.Errorf("original = %q", result.Original)
	}
}

func TestPipelineModifyWithoutChangeIsAllow(t *testing.T) {
	p := NewPipeline("noop", discardLogger())
	p.Register(enabled(modifyCheckpoint("identity", func(s string) string { return s }), PositionInput))

	result := p.CheckInput(context.Background(), "unchanged", nil)

	if result.Action != ActionAllow {
		t.Errorf("action = %s, want allow when content did not change", result.Action)
	}
	if result.Modified != nil {
		t.Errorf("modified = %q, want nil", *result.Modified)
	}
}

func TestPipelineWarnAccumulates(t *testing.T) {
	p := NewPipeline("warny", discardLogger())
	p.Register(enabled(&stubCheckpoint{name: "w1", fn: func(context.Context, string, map[string]interface{}) (Outcome, error) {
		return Outcome{Action: ActionWarn, Reasons: []string{"suspicious"}, Confidence: 0.6}, nil
	}}, PositionInput))
	p.Register(enabled(allowCheckpoint("a1"), PositionInput))

	result := p.CheckInput(context.Background(), "content", nil)

	if result.Action != ActionWarn || !result.Passed {
		t.Fatalf("got action=%s passed=%v, want warn/true", result.Action, result.Passed)
	}
	if len(result.Reasons) != 1 {
		t.Errorf("reasons = %v", result.Reasons)
	}
	if result.Confidence != 0.6 {
		t.Errorf("confidence = %v, want min across checkpoints 0.6", result.Confidence)
	}
}

func TestPipelineTimeoutFailClosed(t *testing.T) {
	slow := &stubCheckpoint{name: "slow", fn: func(ctx context.Context, _ string, _ map[string]interface{}) (Outcome, error) {
		select {
		case <-time.After(2 * time.Second):
			return Outcome{Action: ActionAllow}, nil
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		}
	}}

	p := NewPipeline("strict", discardLogger())
	p.Register(Registration{Checkpoint: slow, Position: PositionInput, Enabled: true, Timeout: 20 * time.Millisecond})

	result := p.CheckInput(context.Background(), "content", nil)

	if result.Action != ActionBlock || result.Passed {
		t.Fatalf("got action=%s passed=%v, want block/false on timeout", result.Action, result.Passed)
	}
	if len(result.Reasons) == 0 || !strings.Contains(result.Reasons[0], "timeout") {
		t.Errorf("reasons = %v, want timeout reason", result.Reasons)
	}
}

func TestPipelineTimeoutFailOpen(t *testing.T) {
	slow := &stubCheckpoint{name: "slow", fn: func(ctx context.Context, _ string, _ map[string]interface{}) (Outcome, error) {
		<-ctx.Done()
		return Outcome{}, ctx.Err()
	}}

	p := NewPipeline("lenient", discardLogger(), WithFailOpen(true))
	p.Register(Registration{Checkpoint: slow, Position: PositionInput, Enabled: true, Timeout: 20 * time.Millisecond})
	p.Register(enabled(allowCheckpoint("after"), PositionInput))

	result := p.CheckInput(context.Background(), "content", nil)

	if result.Action != ActionAllow || !result.Passed {
		t.Fatalf("got action=%s passed=%v, want allow/true on fail-open timeout", result.Action, result.Passed)
	}
	if len(result.Reasons) == 0 || !strings.Contains(result.Reasons[0], "failed open") {
		t.Errorf("reasons = %v, want fail-open explanation", result.Reasons)
	}
}

func TestPipelinePerCheckpointFailOpenOverride(t *testing.T) {
	failing := &stubCheckpoint{name: "flaky", fn: func(context.Context, string, map[string]interface{}) (Outcome, error) {
		return Outcome{}, errors.New("backend unavailable")
	}}

	t.Run("override opens a closed pipeline", func(t *testing.T) {
		p := NewPipeline("closed", discardLogger())
		p.Register(Registration{Checkpoint: failing, Position: PositionInput, Enabled: true, FailOpen: boolPtr(true)})

		result := p.CheckInput(context.Background(), "content", nil)
		if !result.Passed {
			t.Error("per-checkpoint fail-open should pass through the error")
		}
	})

	t.Run("override closes an open pipeline", func(t *testing.T) {
		p := NewPipeline("open", discardLogger(), WithFailOpen(true))
		p.Register(Registration{Checkpoint: failing, Position: PositionInput, Enabled: true, FailOpen: boolPtr(false)})

		result := p.CheckInput(context.Background(), "content", nil)
		if result.Passed {
			t.Error("per-checkpoint fail-closed should block on error")
		}
	})
}

func TestPipelinePanicIsContained(t *testing.T) {
	p := NewPipeline("panicky", discardLogger())
	p.Register(enabled(&stubCheckpoint{name: "boom", fn: func(context.Context, string, map[string]interface{}) (Outcome, error) {
		panic("unexpected")
	}}, PositionInput))

	result := p.CheckInput(context.Background(), "content", nil)

	if result.Passed {
		t.Error("panic should fail closed by default")
	}
	if len(result.Reasons) == 0 || !strings.Contains(result.Reasons[0], "panic") {
		t.Errorf("reasons = %v, want panic reason", result.Reasons)
	}
}

func TestPipelineDisabledAndPhaseFiltering(t *testing.T) {
	p := NewPipeline("phased", discardLogger())
	p.Register(Registration{Checkpoint: blockCheckpoint("disabled", "off"), Position: PositionInput, Enabled: false})
	p.Register(enabled(blockCheckpoint("output-only", "wrong phase"), PositionOutput))

	result := p.CheckInput(context.Background(), "content", nil)
	if !result.Passed {
		t.Error("disabled and out-of-phase checkpoints must not run in the input phase")
	}

	out := p.CheckOutput(context.Background(), "content", nil)
	if out.Passed {
		t.Error("output-only checkpoint should run in the output phase")
	}
}

func TestCheckBoth(t *testing.T) {
	echo := func(_ context.Context, input string) (string, error) { return "model says: " + input, nil }

	t.Run("clean round trip", func(t *testing.T) {
		p := NewPipeline("sandwich", discardLogger())
		p.Register(enabled(allowCheckpoint("in"), PositionInput))
		p.Register(enabled(allowCheckpoint("out"), PositionOutput))

		both := p.CheckBoth(context.Background(), "hi", echo, nil)
		if both.Final == nil || *both.Final != "model says: hi" {
			t.Fatalf("final = %v", both.Final)
		}
		if both.Output == nil || !both.Output.Passed {
			t.Error("expected output phase verdict")
		}
	})

	t.Run("input block skips the model", func(t *testing.T) {
		p := NewPipeline("sandwich", discardLogger())
		p.Register(enabled(blockCheckpoint("in", "nope"), PositionInput))

		invoked := false
		both := p.CheckBoth(context.Background(), "hi", func(context.Context, string) (string, error) {
			invoked = true
			return "", nil
		}, nil)

		if invoked {
			t.Error("model must not run after an input block")
		}
		if both.Final != nil || both.Output != nil {
			t.Error("blocked sandwich should carry no output")
		}
	})

	t.Run("modified input reaches the model", func(t *testing.T) {
		p := NewPipeline("sandwich", discardLogger())
		p.Register(enabled(modifyCheckpoint("in", strings.ToUpper), PositionInput))

		var seen string
		p.CheckBoth(context.Background(), "hi", func(_ context.Context, input string) (string, error) {
			seen = input
			return input, nil
		}, nil)

		if seen != "HI" {
			t.Errorf("model saw %q, want modified input", seen)
		}
	})

	t.Run("model error is captured", func(t *testing.T) {
		p := NewPipeline("sandwich", discardLogger())
		both := p.CheckBoth(context.Background(), "hi", func(context.Context, string) (string, error) {
			return "", errors.New("upstream down")
		}, nil)

		if both.ModelErr != "upstream down" {
			t.Errorf("model err = %q", both.ModelErr)
		}
		if both.Final != nil {
			t.Error("final must be nil on model error")
		}
	})

	t.Run("output block yields nil final", func(t *testing.T) {
		p := NewPipeline("sandwich", discardLogger())
		p.Register(enabled(blockCheckpoint("out", "leaky"), PositionOutput))

		both := p.CheckBoth(context.Background(), "hi", echo, nil)
		if both.Final != nil {
			t.Error("final must be nil when the output phase blocks")
		}
	})
}

func TestFanOutRunsAllCheckpoints(t *testing.T) {
	p := NewPipeline("fan", discardLogger())
	p.Register(enabled(allowCheckpoint("a"), PositionInput))
	p.Register(enabled(blockCheckpoint("b", "no"), PositionInput))
	p.Register(enabled(modifyCheckpoint("c", strings.ToUpper), PositionInput))

	results := p.FanOut(context.Background(), PositionInput, "hello", nil)

	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].Action != ActionAllow {
		t.Errorf("a: %s", results[0].Action)
	}
	if results[1].Action != ActionBlock {
		t.Errorf("b: %s", results[1].Action)
	}
	if results[2].Action != ActionModify || *results[2].Modified != "HELLO" {
		t.Errorf("c: %s %v", results[2].Action, results[2].Modified)
	}
}

func TestPipelineCaching(t *testing.T) {
	calls := 0
	counting := &stubCheckpoint{name: "counter", fn: func(context.Context, string, map[string]interface{}) (Outcome, error) {
		calls++
		return Outcome{Action: ActionAllow}, nil
	}}

	p := NewPipeline("cached", discardLogger(), WithCache(NewResultCache(time.Minute, 16)))
	p.Register(enabled(counting, PositionInput))

	p.CheckInput(context.Background(), "same content", nil)
	p.CheckInput(context.Background(), "same content", nil)
	if calls != 1 {
		t.Errorf("checkpoint ran %d times, want 1 (second call cached)", calls)
	}

	p.CheckInput(context.Background(), "other content", nil)
	if calls != 2 {
		t.Errorf("checkpoint ran %d times, want 2 after distinct content", calls)
	}
}

func TestPipelineMetrics(t *testing.T) {
	p := NewPipeline("metered", discardLogger())
	p.Register(enabled(blockCheckpoint("gate", "no"), PositionInput))

	p.CheckInput(context.Background(), "a", nil)
	p.CheckInput(context.Background(), "b", nil)

	stats := p.Metrics().Snapshot()
	if stats.Total != 2 || stats.Blocked != 2 || stats.Passed != 0 {
		t.Errorf("stats = %+v", stats)
	}
	cp, ok := stats.Checkpoints["gate"]
	if !ok || cp.Total != 2 || cp.Blocked != 2 {
		t.Errorf("checkpoint stats = %+v", cp)
	}

	p.Metrics().Reset()
	if s := p.Metrics().Snapshot(); s.Total != 0 || len(s.Checkpoints) != 0 {
		t.Errorf("after reset: %+v", s)
	}
}

func TestPipelineMetricsCountFailureOncePerRequest(t *testing.T) {
	failing := &stubCheckpoint{name: "flaky", fn: func(context.Context, string, map[string]interface{}) (Outcome, error) {
		return Outcome{}, errors.New("backend unavailable")
	}}

	t.Run("fail open", func(t *testing.T) {
		p := NewPipeline("open", discardLogger(), WithFailOpen(true))
		p.Register(enabled(failing, PositionInput))

		p.CheckInput(context.Background(), "content", nil)
		if stats := p.Metrics().Snapshot(); stats.Errors != 1 {
			t.Errorf("errors = %d, want 1", stats.Errors)
		}
	})

	t.Run("fail closed", func(t *testing.T) {
		p := NewPipeline("closed", discardLogger())
		p.Register(enabled(failing, PositionInput))

		p.CheckInput(context.Background(), "content", nil)
		if stats := p.Metrics().Snapshot(); stats.Errors != 1 {
			t.Errorf("errors = %d, want 1", stats.Errors)
		}
	})

	t.Run("two failing checkpoints in one request", func(t *testing.T) {
		p := NewPipeline("open", discardLogger(), WithFailOpen(true))
		p.Register(enabled(failing, PositionInput))
		p.Register(enabled(failing, PositionInput))

		p.CheckInput(context.Background(), "content", nil)
		if stats := p.Metrics().Snapshot(); stats.Errors != 1 {
			t.Errorf("errors = %d, want 1", stats.Errors)
		}
	})
}
