package score

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// NormalizationMethod selects the mapping from a raw metric value to [0,1].
type NormalizationMethod string

const (
	MethodMinMax     NormalizationMethod = "min_max"
	MethodZScore     NormalizationMethod = "z_score"
	MethodRobust     NormalizationMethod = "robust"
	MethodLog        NormalizationMethod = "log"
	MethodSigmoid    NormalizationMethod = "sigmoid"
	MethodPercentile NormalizationMethod = "percentile"
	MethodTanh       NormalizationMethod = "tanh"
	MethodCalibrated NormalizationMethod = "calibrated"
)

// logEpsilon guards log transforms against non-positive inputs.
const logEpsilon = 1e-10

// PercentilePoint is one (percentile, value) entry of a calibration table.
// Tables are kept sorted by Value ascending.
type PercentilePoint struct {
	Percentile float64
	Value      float64
}

// NormalizationConfig describes how one metric maps to the unit interval.
type NormalizationConfig struct {
	Method NormalizationMethod

	// Min/Max bound linear and log mappings. Both zero means unset for log.
	Min float64
	Max float64
	// HasBounds marks Min/Max as explicitly configured.
	HasBounds bool

	// Mean/StdDev parameterize z-score, sigmoid, and tanh mappings.
	Mean   float64
	StdDev float64

	// Median/IQR parameterize the robust mapping.
	Median float64
	IQR    float64

	// Percentiles is the calibration table for percentile/calibrated mappings.
	Percentiles []PercentilePoint

	// Invert replaces the mapped value v with 1-v after mapping.
	Invert bool
	// Clip clamps the final result to [0,1].
	Clip bool
}

// Normalizer maps raw metric values to unit-interval scores. Default
// configurations exist for well-known metric names; explicit configs and
// fitted configs override them. Safe for concurrent use.
type Normalizer struct {
	mu      sync.RWMutex
	configs map[string]NormalizationConfig
}

// NewNormalizer creates a Normalizer seeded with the default per-metric
// configurations.
func NewNormalizer() *Normalizer {
	n := &Normalizer{configs: make(map[string]NormalizationConfig)}
	for name, cfg := range defaultMetricConfigs() {
		n.configs[name] = cfg
	}
	return n
}

// defaultMetricConfigs returns the built-in configs for well-known metrics.
func defaultMetricConfigs() map[string]NormalizationConfig {
	unit := NormalizationConfig{Method: MethodMinMax, Min: 0, Max: 1, HasBounds: true, Clip: true}
	unitInv := unit
	unitInv.Invert = true
	logInv := NormalizationConfig{Method: MethodLog, Invert: true, Clip: true}
	return map[string]NormalizationConfig{
		"accuracy":  unit,
		"precision": unit,
		"recall":    unit,
		"f1":        unit,
		"auc_roc":   {Method: MethodMinMax, Min: 0.5, Max: 1, HasBounds: true, Clip: true},

		"mse":  logInv,
		"rmse": logInv,
		"mae":  logInv,

		"demographic_parity_difference": unitInv,
		"epsilon":                       logInv,
		"toxicity":                      unitInv,
		"jailbreak_rate":                unitInv,
	}
}

// SetConfig registers or replaces the config for a metric name.
func (n *Normalizer) SetConfig(name string, cfg NormalizationConfig) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.configs[name] = cfg
}

// Config returns the stored config for a metric name.
func (n *Normalizer) Config(name string) (NormalizationConfig, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	cfg, ok := n.configs[name]
	return cfg, ok
}

// Normalize maps a raw value for the named metric using the stored config.
// Unknown metric names fall back to clipped min-max over [0,1].
func (n *Normalizer) Normalize(name string, value float64) float64 {
	cfg, ok := n.Config(name)
	if !ok {
		cfg = NormalizationConfig{Method: MethodMinMax, Min: 0, Max: 1, HasBounds: true, Clip: true}
	}
	return NormalizeWith(value, cfg)
}

// NormalizeWith maps a raw value with an explicit config, bypassing the
// per-metric registry.
func NormalizeWith(value float64, cfg NormalizationConfig) float64 {
	v := applyMethod(value, cfg)
	// Invert applies after mapping, not before.
	if cfg.Invert {
		v = 1 - v
	}
	if cfg.Clip {
		v = clamp01(v)
	}
	return v
}

func applyMethod(v float64, cfg NormalizationConfig) float64 {
	switch cfg.Method {
	case MethodMinMax:
		return minMax(v, cfg.Min, cfg.Max)
	case MethodZScore:
		if cfg.StdDev == 0 {
			return 0.5
		}
		return logistic((v - cfg.Mean) / cfg.StdDev)
	case MethodRobust:
		if cfg.IQR == 0 {
			return 0.5
		}
		return (v-cfg.Median)/(2*cfg.IQR) + 0.5
	case MethodLog:
		lv := math.Log(math.Max(v, logEpsilon))
		if cfg.HasBounds {
			lo := math.Log(math.Max(cfg.Min, logEpsilon))
			hi := math.Log(math.Max(cfg.Max, logEpsilon))
			return minMax(lv, lo, hi)
		}
		return logistic(lv)
	case MethodSigmoid:
		if cfg.StdDev == 0 {
			return 0.5
		}
		return logistic((v - cfg.Mean) / cfg.StdDev)
	case MethodPercentile:
		return percentileLookup(v, cfg.Percentiles)
	case MethodTanh:
		if cfg.StdDev == 0 {
			return 0.5
		}
		return (math.Tanh((v-cfg.Mean)/cfg.StdDev) + 1) / 2
	case MethodCalibrated:
		if len(cfg.Percentiles) > 0 {
			return percentileLookup(v, cfg.Percentiles)
		}
		if cfg.StdDev == 0 {
			return 0.5
		}
		return logistic((v - cfg.Mean) / cfg.StdDev)
	default:
		return minMax(v, cfg.Min, cfg.Max)
	}
}

// minMax linearly maps [min,max] to [0,1]. Equal bounds map to 0.5.
func minMax(v, min, max float64) float64 {
	if min == max {
		return 0.5
	}
	return (v - min) / (max - min)
}

// logistic is the standard logistic function 1/(1+e^-x).
func logistic(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// percentileLookup locates v in a sorted (percentile, value) table with
// linear interpolation between the bracketing pair. Values below the table
// map to the lowest percentile, values above map to 1.0.
func percentileLookup(v float64, table []PercentilePoint) float64 {
	if len(table) == 0 {
		return 0.5
	}
	if v <= table[0].Value {
		return table[0].Percentile / 100
	}
	last := table[len(table)-1]
	if v >= last.Value {
		return 1.0
	}
	for i := 1; i < len(table); i++ {
		lo, hi := table[i-1], table[i]
		if v <= hi.Value {
			span := hi.Value - lo.Value
			if span == 0 {
				return hi.Percentile / 100
			}
			frac := (v - lo.Value) / span
			return (lo.Percentile + frac*(hi.Percentile-lo.Percentile)) / 100
		}
	}
	return 1.0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// SampleStats summarizes a fitted sample set.
type SampleStats struct {
	Min         float64
	Max         float64
	Mean        float64
	StdDev      float64
	Median      float64
	IQR         float64
	Percentiles []PercentilePoint
}

// fitPercentiles are the percentile points computed by Fit.
var fitPercentiles = []float64{5, 10, 25, 50, 75, 90, 95}

// Fit computes summary statistics over the sample set and stores the
// resulting config under the metric name. The samples slice must be
// non-empty.
func (n *Normalizer) Fit(name string, samples []float64, method NormalizationMethod, invert bool) (SampleStats, error) {
	if len(samples) == 0 {
		return SampleStats{}, fmt.Errorf("fit %s: empty sample set", name)
	}

	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	stats := SampleStats{
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Mean:   mean(sorted),
		Median: quantile(sorted, 50),
	}
	stats.StdDev = stddev(sorted, stats.Mean)
	stats.IQR = quantile(sorted, 75) - quantile(sorted, 25)
	for _, p := range fitPercentiles {
		stats.Percentiles = append(stats.Percentiles, PercentilePoint{
			Percentile: p,
			Value:      quantile(sorted, p),
		})
	}

	cfg := NormalizationConfig{
		Method:      method,
		Min:         stats.Min,
		Max:         stats.Max,
		HasBounds:   true,
		Mean:        stats.Mean,
		StdDev:      stats.StdDev,
		Median:      stats.Median,
		IQR:         stats.IQR,
		Percentiles: stats.Percentiles,
		Invert:      invert,
		Clip:        true,
	}
	n.SetConfig(name, cfg)
	return stats, nil
}

func mean(vs []float64) float64 {
	sum := 0.0
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

func stddev(vs []float64, mu float64) float64 {
	if len(vs) < 2 {
		return 0
	}
	sum := 0.0
	for _, v := range vs {
		d := v - mu
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(vs)))
}

// quantile computes the p-th percentile of a sorted slice with linear
// interpolation between closest ranks.
func quantile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
