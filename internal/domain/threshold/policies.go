package threshold

import (
	"fmt"
	"sync"

	"github.com/Modelgate-Labs/modelgate/internal/domain/score"
)

// Policy is a pre-validated bundle of thresholds, acceptable risk levels,
// and the pass/fail mode, loadable as a Manager's running configuration.
type Policy struct {
	Name               string
	Thresholds         map[string]Config
	Default            Config
	Acceptable         map[string]score.RiskLevel
	MaxAcceptableRisk  score.RiskLevel
	FailOnAnyViolation bool
}

// NewPolicy validates every threshold config in the bundle.
func NewPolicy(name string, defaultCfg Config, thresholds map[string]Config,
	acceptable map[string]score.RiskLevel, maxAcceptable score.RiskLevel, failOnAny bool) (Policy, error) {
	if err := defaultCfg.validate(); err != nil {
		return Policy{}, fmt.Errorf("policy %s default: %w", name, err)
	}
	for pillar, cfg := range thresholds {
		if err := cfg.validate(); err != nil {
			return Policy{}, fmt.Errorf("policy %s pillar %s: %w", name, pillar, err)
		}
	}
	return Policy{
		Name:               name,
		Thresholds:         thresholds,
		Default:            defaultCfg,
		Acceptable:         acceptable,
		MaxAcceptableRisk:  maxAcceptable,
		FailOnAnyViolation: failOnAny,
	}, nil
}

// StandardPolicy is the default running configuration: the stock cut-points
// with medium acceptable risk.
func StandardPolicy() Policy {
	return Policy{
		Name:              "standard",
		Default:           DefaultConfig(),
		MaxAcceptableRisk: score.RiskMedium,
	}
}

// StrictPolicy tightens every cut-point and fails on any violation.
func StrictPolicy() Policy {
	return Policy{
		Name:               "strict",
		Default:            Config{Critical: 0.6, High: 0.75, Medium: 0.85, Low: 0.95, HigherIsBetter: true},
		MaxAcceptableRisk:  score.RiskLow,
		FailOnAnyViolation: true,
	}
}

// LenientPolicy loosens the cut-points and tolerates high risk.
func LenientPolicy() Policy {
	return Policy{
		Name:              "lenient",
		Default:           Config{Critical: 0.25, High: 0.45, Medium: 0.6, Low: 0.8, HigherIsBetter: true},
		MaxAcceptableRisk: score.RiskHigh,
	}
}

// PolicyRegistry holds named policies: the three built-ins plus any
// user-defined bundles.
type PolicyRegistry struct {
	mu       sync.RWMutex
	policies map[string]Policy
}

// NewPolicyRegistry creates a registry seeded with the built-in policies.
func NewPolicyRegistry() *PolicyRegistry {
	return &PolicyRegistry{
		policies: map[string]Policy{
			"standard": StandardPolicy(),
			"strict":   StrictPolicy(),
			"lenient":  LenientPolicy(),
		},
	}
}

// Register adds a user-defined policy. The policy must come from NewPolicy.
func (r *PolicyRegistry) Register(p Policy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies[p.Name] = p
}

// Get returns the named policy.
func (r *PolicyRegistry) Get(name string) (Policy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.policies[name]
	if !ok {
		return Policy{}, fmt.Errorf("unknown threshold policy %q", name)
	}
	return p, nil
}

// Names returns the registered policy names.
func (r *PolicyRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.policies))
	for name := range r.policies {
		names = append(names, name)
	}
	return names
}
