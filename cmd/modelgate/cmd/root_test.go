package cmd

import (
	"log/slog"
	"testing"

	"github.com/Modelgate-Labs/modelgate/internal/config"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.in); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestHasOutputCheckpoint(t *testing.T) {
	cfg := &config.Config{}
	if hasOutputCheckpoint(cfg) {
		t.Error("empty config should have no output checkpoints")
	}
	cfg.Guardrail.Checkpoints = []config.CheckpointConfig{{Name: "jailbreak", Position: "input"}}
	if hasOutputCheckpoint(cfg) {
		t.Error("input-only config should have no output checkpoints")
	}
	cfg.Guardrail.Checkpoints = append(cfg.Guardrail.Checkpoints,
		config.CheckpointConfig{Name: "pii", Position: "both"})
	if !hasOutputCheckpoint(cfg) {
		t.Error("position both counts as an output checkpoint")
	}
}
