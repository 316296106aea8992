package score

import (
	"fmt"
	"sync"
)

// WeightPreset is a named map from pillar name to relative weight.
type WeightPreset map[string]float64

// WeightManager provides named weight presets and blends. Presets are
// registered at startup and read-mostly afterwards.
type WeightManager struct {
	mu      sync.RWMutex
	presets map[string]WeightPreset
}

// NewWeightManager creates a WeightManager seeded with the built-in presets.
func NewWeightManager() *WeightManager {
	return &WeightManager{
		presets: map[string]WeightPreset{
			"balanced": {
				"fairness": 1, "robustness": 1, "privacy": 1,
				"security": 1, "toxicity": 1, "explainability": 1,
			},
			"safety_first": {
				"fairness": 1, "robustness": 2, "privacy": 2,
				"security": 3, "toxicity": 3, "explainability": 1,
			},
			"regulatory": {
				"fairness": 3, "robustness": 1, "privacy": 3,
				"security": 2, "toxicity": 1, "explainability": 2,
			},
		},
	}
}

// Register adds or replaces a named preset. Weights must be non-negative.
func (m *WeightManager) Register(name string, preset WeightPreset) error {
	for pillar, w := range preset {
		if w < 0 {
			return fmt.Errorf("preset %s: pillar %s has negative weight %v", name, pillar, w)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.presets[name] = clonePreset(preset)
	return nil
}

// Preset returns a copy of the named preset.
func (m *WeightManager) Preset(name string) (WeightPreset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	preset, ok := m.presets[name]
	if !ok {
		return nil, fmt.Errorf("unknown weight preset %q", name)
	}
	return clonePreset(preset), nil
}

// Blend mixes named presets with the given mix coefficients. The result is
// the coefficient-weighted sum of each pillar's weights.
func (m *WeightManager) Blend(mix map[string]float64) (WeightPreset, error) {
	if len(mix) == 0 {
		return nil, fmt.Errorf("empty blend")
	}
	blended := WeightPreset{}
	for name, coeff := range mix {
		if coeff < 0 {
			return nil, fmt.Errorf("blend coefficient for %s is negative", name)
		}
		preset, err := m.Preset(name)
		if err != nil {
			return nil, err
		}
		for pillar, w := range preset {
			blended[pillar] += coeff * w
		}
	}
	return blended, nil
}

func clonePreset(p WeightPreset) WeightPreset {
	out := make(WeightPreset, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
