package threshold

import (
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Modelgate-Labs/modelgate/internal/domain/score"
)

// maxSuggestions bounds the remediation suggestions on a recommendation.
const maxSuggestions = 5

// snapshot is the immutable running configuration of a Manager.
// Updates replace the snapshot pointer; in-flight checks keep reading the
// snapshot they started with.
type snapshot struct {
	perPillar       map[string]Config
	defaultConfig   Config
	acceptable      map[string]score.RiskLevel
	maxAcceptable   score.RiskLevel
	failOnViolation bool
}

// Manager classifies pillar scores into risk levels and emits violations
// when a level exceeds its configured bound. Safe for concurrent use; the
// running configuration is swapped atomically by Load.
type Manager struct {
	snap atomic.Pointer[snapshot]
}

// NewManager creates a Manager running the standard policy.
func NewManager() *Manager {
	m := &Manager{}
	m.Load(StandardPolicy())
	return m
}

// Load replaces the running configuration with the given policy.
// The policy must have been pre-validated (see NewPolicy).
func (m *Manager) Load(p Policy) {
	perPillar := make(map[string]Config, len(p.Thresholds))
	for k, v := range p.Thresholds {
		perPillar[k] = v
	}
	acceptable := make(map[string]score.RiskLevel, len(p.Acceptable))
	for k, v := range p.Acceptable {
		acceptable[k] = v
	}
	m.snap.Store(&snapshot{
		perPillar:       perPillar,
		defaultConfig:   p.Default,
		acceptable:      acceptable,
		maxAcceptable:   p.MaxAcceptableRisk,
		failOnViolation: p.FailOnAnyViolation,
	})
}

// configFor returns the threshold config for a pillar, falling back to the
// default config.
func (s *snapshot) configFor(pillar string) Config {
	if cfg, ok := s.perPillar[pillar]; ok {
		return cfg
	}
	return s.defaultConfig
}

// acceptableFor returns the acceptable risk level for a pillar, falling
// back to the policy-wide maximum.
func (s *snapshot) acceptableFor(pillar string) score.RiskLevel {
	if lvl, ok := s.acceptable[pillar]; ok {
		return lvl
	}
	return s.maxAcceptable
}

// Check classifies every pillar score, raises violations where a level is
// worse than its acceptable bound, and computes the overall verdict.
func (m *Manager) Check(scores map[string]float64) CheckResult {
	snap := m.snap.Load()
	now := time.Now().UTC()

	result := CheckResult{
		Levels:  make(map[string]score.RiskLevel, len(scores)),
		Overall: score.RiskUnknown,
	}

	levels := make([]score.RiskLevel, 0, len(scores))
	for pillar, v := range scores {
		cfg := snap.configFor(pillar)
		level := cfg.Classify(v)
		result.Levels[pillar] = level
		levels = append(levels, level)

		expected := snap.acceptableFor(pillar)
		if level.WorseThan(expected) {
			result.Violations = append(result.Violations, Violation{
				ID:        uuid.NewString(),
				Pillar:    pillar,
				Score:     v,
				Config:    cfg,
				Observed:  level,
				Expected:  expected,
				Timestamp: now,
			})
		}
	}

	result.Overall = score.Worst(levels)
	if snap.failOnViolation {
		result.Passed = len(result.Violations) == 0
	} else {
		result.Passed = !result.Overall.WorseThan(snap.maxAcceptable)
	}
	return result
}

// Classify maps a single pillar score to its risk level under the running
// configuration.
func (m *Manager) Classify(pillar string, v float64) score.RiskLevel {
	return m.snap.Load().configFor(pillar).Classify(v)
}

// Recommend derives the deployment recommendation from a check result.
func Recommend(result CheckResult) Recommendation {
	var decision Decision
	switch {
	case result.Passed && !result.Overall.WorseThan(score.RiskLow):
		decision = Deploy
	case result.Passed:
		decision = DeployWithMonitoring
	case result.Overall == score.RiskCritical:
		decision = DoNotDeploy
	default:
		decision = ReviewRequired
	}
	return Recommendation{
		Decision:    decision,
		Suggestions: suggestions(result.Violations),
	}
}

// suggestions generates up to maxSuggestions remediation hints from the
// highest-severity violations.
func suggestions(violations []Violation) []string {
	if len(violations) == 0 {
		return nil
	}
	sorted := append([]Violation(nil), violations...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Observed.WorseThan(sorted[j].Observed)
	})
	if len(sorted) > maxSuggestions {
		sorted = sorted[:maxSuggestions]
	}
	out := make([]string, 0, len(sorted))
	for _, v := range sorted {
		out = append(out, fmt.Sprintf(
			"%s scored %.2f (%s risk, %s acceptable): remediate before deployment",
			v.Pillar, v.Score, v.Observed, v.Expected))
	}
	return out
}
