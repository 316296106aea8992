package threshold

import (
	"testing"

	"github.com/Modelgate-Labs/modelgate/internal/domain/score"
)

func TestNewConfig_Ordering(t *testing.T) {
	tests := []struct {
		name           string
		c, h, m, l     float64
		higherIsBetter bool
		wantErr        bool
	}{
		{"valid higher-is-better", 0.4, 0.6, 0.75, 0.9, true, false},
		{"valid lower-is-better", 0.9, 0.75, 0.6, 0.4, false, false},
		{"inverted higher-is-better", 0.9, 0.75, 0.6, 0.4, true, true},
		{"inverted lower-is-better", 0.4, 0.6, 0.75, 0.9, false, true},
		{"out of range", -0.1, 0.6, 0.75, 0.9, true, true},
		{"equal cut-points allowed", 0.5, 0.5, 0.5, 0.5, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConfig(tt.c, tt.h, tt.m, tt.l, tt.higherIsBetter)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewConfig error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Classify(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		v    float64
		want score.RiskLevel
	}{
		{0.1, score.RiskCritical},
		{0.49, score.RiskHigh},
		{0.72, score.RiskMedium},
		{0.8, score.RiskLow},
		{0.95, score.RiskMinimal},
	}
	for _, tt := range tests {
		if got := cfg.Classify(tt.v); got != tt.want {
			t.Errorf("Classify(%v) = %v, want %v", tt.v, got, tt.want)
		}
	}

	// Monotonicity: score at or above the critical cut-point is never critical.
	for v := cfg.Critical; v <= 1.0; v += 0.01 {
		if got := cfg.Classify(v); got == score.RiskCritical {
			t.Fatalf("Classify(%v) = critical above critical cut-point", v)
		}
	}
}

func TestConfig_ClassifyLowerIsBetter(t *testing.T) {
	cfg, err := NewConfig(0.9, 0.75, 0.6, 0.4, false)
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}
	tests := []struct {
		v    float64
		want score.RiskLevel
	}{
		{0.95, score.RiskCritical},
		{0.8, score.RiskHigh},
		{0.7, score.RiskMedium},
		{0.5, score.RiskLow},
		{0.2, score.RiskMinimal},
	}
	for _, tt := range tests {
		if got := cfg.Classify(tt.v); got != tt.want {
			t.Errorf("Classify(%v) = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestManager_CheckPassFail(t *testing.T) {
	m := NewManager()

	t.Run("medium overall passes standard policy", func(t *testing.T) {
		result := m.Check(map[string]float64{"robustness": 0.72})
		if result.Overall != score.RiskMedium {
			t.Errorf("overall = %v, want medium", result.Overall)
		}
		if !result.Passed {
			t.Error("expected pass")
		}
		if len(result.Violations) != 0 {
			t.Errorf("got %d violations, want 0", len(result.Violations))
		}
		rec := Recommend(result)
		if rec.Decision != DeployWithMonitoring {
			t.Errorf("decision = %v, want DEPLOY_WITH_MONITORING", rec.Decision)
		}
	})

	t.Run("high overall fails with one violation", func(t *testing.T) {
		result := m.Check(map[string]float64{"robustness": 0.49})
		if result.Overall != score.RiskHigh {
			t.Errorf("overall = %v, want high", result.Overall)
		}
		if result.Passed {
			t.Error("expected fail")
		}
		if len(result.Violations) != 1 {
			t.Fatalf("got %d violations, want 1", len(result.Violations))
		}
		v := result.Violations[0]
		if v.Pillar != "robustness" || v.Observed != score.RiskHigh || v.Expected != score.RiskMedium {
			t.Errorf("violation = %+v", v)
		}
		if v.ID == "" {
			t.Error("violation missing id")
		}
		rec := Recommend(result)
		if rec.Decision != ReviewRequired {
			t.Errorf("decision = %v, want REVIEW_REQUIRED", rec.Decision)
		}
		if len(rec.Suggestions) != 1 {
			t.Errorf("got %d suggestions, want 1", len(rec.Suggestions))
		}
	})

	t.Run("critical overall is do-not-deploy", func(t *testing.T) {
		result := m.Check(map[string]float64{"security": 0.1})
		if result.Overall != score.RiskCritical {
			t.Errorf("overall = %v, want critical", result.Overall)
		}
		rec := Recommend(result)
		if rec.Decision != DoNotDeploy {
			t.Errorf("decision = %v, want DO_NOT_DEPLOY", rec.Decision)
		}
	})

	t.Run("clean pass is deploy", func(t *testing.T) {
		result := m.Check(map[string]float64{"fairness": 0.93, "privacy": 0.91})
		if !result.Passed {
			t.Error("expected pass")
		}
		rec := Recommend(result)
		if rec.Decision != Deploy {
			t.Errorf("decision = %v, want DEPLOY", rec.Decision)
		}
	})

	t.Run("overall is worst pillar", func(t *testing.T) {
		result := m.Check(map[string]float64{"fairness": 0.95, "security": 0.2})
		if result.Overall != score.RiskCritical {
			t.Errorf("overall = %v, want critical", result.Overall)
		}
	})
}

func TestManager_FailOnAnyViolation(t *testing.T) {
	m := NewManager()
	m.Load(StrictPolicy())

	// 0.8 classifies as medium under strict cut-points; acceptable is low,
	// so one violation and a failed verdict even though overall is medium.
	result := m.Check(map[string]float64{"robustness": 0.8})
	if len(result.Violations) != 1 {
		t.Fatalf("got %d violations, want 1", len(result.Violations))
	}
	if result.Passed {
		t.Error("strict policy should fail on any violation")
	}
}

func TestManager_SuggestionCap(t *testing.T) {
	m := NewManager()
	scores := map[string]float64{
		"p1": 0.1, "p2": 0.1, "p3": 0.1, "p4": 0.1, "p5": 0.1, "p6": 0.1, "p7": 0.1,
	}
	rec := Recommend(m.Check(scores))
	if len(rec.Suggestions) != 5 {
		t.Errorf("got %d suggestions, want capped at 5", len(rec.Suggestions))
	}
}

func TestPolicyRegistry(t *testing.T) {
	r := NewPolicyRegistry()

	for _, name := range []string{"standard", "strict", "lenient"} {
		if _, err := r.Get(name); err != nil {
			t.Errorf("Get(%s) returned error: %v", name, err)
		}
	}
	if _, err := r.Get("custom"); err == nil {
		t.Error("expected error for unknown policy")
	}

	p, err := NewPolicy("custom", DefaultConfig(), nil, nil, score.RiskHigh, false)
	if err != nil {
		t.Fatalf("NewPolicy returned error: %v", err)
	}
	r.Register(p)
	if _, err := r.Get("custom"); err != nil {
		t.Errorf("Get(custom) returned error: %v", err)
	}

	// Invalid bundles are rejected at construction.
	bad := Config{Critical: 0.9, High: 0.6, Medium: 0.7, Low: 0.8, HigherIsBetter: true}
	if _, err := NewPolicy("bad", bad, nil, nil, score.RiskHigh, false); err == nil {
		t.Error("expected error for invalid default config")
	}
}
