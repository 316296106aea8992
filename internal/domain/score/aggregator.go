package score

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// Strategy selects how pillar scores reduce to a composite score.
type Strategy string

const (
	StrategyWeightedAverage Strategy = "weighted_average"
	StrategyArithmeticMean  Strategy = "arithmetic_mean"
	StrategyGeometricMean   Strategy = "geometric_mean"
	StrategyHarmonicMean    Strategy = "harmonic_mean"
	StrategyMinimum         Strategy = "minimum"
	StrategyMaximum         Strategy = "maximum"
	StrategyMedian          Strategy = "median"
	StrategyWeightedProduct Strategy = "weighted_product"
	StrategyPercentile90    Strategy = "percentile_90"
	StrategyPercentile95    Strategy = "percentile_95"
)

// AllStrategies lists every supported aggregation strategy.
var AllStrategies = []Strategy{
	StrategyWeightedAverage,
	StrategyArithmeticMean,
	StrategyGeometricMean,
	StrategyHarmonicMean,
	StrategyMinimum,
	StrategyMaximum,
	StrategyMedian,
	StrategyWeightedProduct,
	StrategyPercentile90,
	StrategyPercentile95,
}

// LowConfidencePolicy controls how inputs below the confidence threshold
// are treated before aggregation.
type LowConfidencePolicy string

const (
	// LowConfidenceExclude drops low-confidence inputs.
	LowConfidenceExclude LowConfidencePolicy = "exclude"
	// LowConfidenceDefault replaces low-confidence scores with the default.
	LowConfidenceDefault LowConfidencePolicy = "default"
	// LowConfidenceFail raises a configuration error.
	LowConfidenceFail LowConfidencePolicy = "fail"
)

// Input is one (pillar, score, confidence, weight) tuple fed to Aggregate.
type Input struct {
	Pillar     string
	Value      float64
	Confidence float64
	Weight     float64
}

// AggregatorConfig tunes pre-filtering and defaults.
type AggregatorConfig struct {
	// MinConfidence is the confidence threshold below which the
	// LowConfidence policy applies.
	MinConfidence float64
	// LowConfidence is the policy for sub-threshold inputs.
	LowConfidence LowConfidencePolicy
	// DefaultScore replaces dropped scores under the default policy and is
	// the overall score when no inputs remain.
	DefaultScore float64
}

// DefaultAggregatorConfig returns the standard aggregator settings.
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		MinConfidence: 0.3,
		LowConfidence: LowConfidenceExclude,
		DefaultScore:  0.5,
	}
}

// Aggregator reduces pillar scores to an AggregatedScore. Stateless apart
// from its config; safe for concurrent use.
type Aggregator struct {
	cfg AggregatorConfig
}

// NewAggregator creates an Aggregator with the given config.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	return &Aggregator{cfg: cfg}
}

// Aggregate reduces the inputs under the given strategy.
// Invalid inputs (negative weights, unknown strategy) surface as errors at
// call time per the scoring core's invalid-input contract.
func (a *Aggregator) Aggregate(inputs []Input, strategy Strategy) (AggregatedScore, error) {
	for _, in := range inputs {
		if in.Weight < 0 {
			return AggregatedScore{}, fmt.Errorf("pillar %s: negative weight %v", in.Pillar, in.Weight)
		}
	}

	filtered, err := a.filter(inputs)
	if err != nil {
		return AggregatedScore{}, err
	}
	if len(filtered) == 0 {
		return AggregatedScore{
			Overall:       a.cfg.DefaultScore,
			Strategy:      strategy,
			PillarScores:  map[string]Score{},
			Contributions: map[string]float64{},
			Confidence:    0,
			Risk:          RiskUnknown,
		}, nil
	}

	overall, err := reduce(filtered, strategy)
	if err != nil {
		return AggregatedScore{}, err
	}

	agg := AggregatedScore{
		Overall:       overall,
		Strategy:      strategy,
		PillarScores:  make(map[string]Score, len(filtered)),
		Contributions: contributions(filtered, strategy),
		Confidence:    weightedConfidence(filtered),
		Risk:          riskOf(overall),
	}
	for _, in := range filtered {
		agg.PillarScores[in.Pillar] = Score{Value: in.Value, Confidence: in.Confidence, Weight: in.Weight}
	}
	return agg, nil
}

// filter applies the low-confidence policy to the inputs.
func (a *Aggregator) filter(inputs []Input) ([]Input, error) {
	out := make([]Input, 0, len(inputs))
	for _, in := range inputs {
		if in.Confidence >= a.cfg.MinConfidence {
			out = append(out, in)
			continue
		}
		switch a.cfg.LowConfidence {
		case LowConfidenceExclude:
			// dropped
		case LowConfidenceDefault:
			in.Value = a.cfg.DefaultScore
			out = append(out, in)
		case LowConfidenceFail:
			return nil, fmt.Errorf("pillar %s: confidence %.3f below threshold %.3f",
				in.Pillar, in.Confidence, a.cfg.MinConfidence)
		default:
			return nil, fmt.Errorf("unknown low-confidence policy %q", a.cfg.LowConfidence)
		}
	}
	return out, nil
}

func reduce(inputs []Input, strategy Strategy) (float64, error) {
	values := make([]float64, len(inputs))
	for i, in := range inputs {
		values[i] = in.Value
	}
	n := float64(len(values))

	switch strategy {
	case StrategyWeightedAverage:
		sumW, sumWV := 0.0, 0.0
		for _, in := range inputs {
			sumW += in.Weight
			sumWV += in.Weight * in.Value
		}
		if sumW == 0 {
			return mean(values), nil
		}
		return sumWV / sumW, nil
	case StrategyArithmeticMean:
		return mean(values), nil
	case StrategyGeometricMean:
		sum := 0.0
		for _, v := range values {
			sum += math.Log(math.Max(v, logEpsilon))
		}
		return math.Exp(sum / n), nil
	case StrategyHarmonicMean:
		sum := 0.0
		for _, v := range values {
			sum += 1 / math.Max(v, logEpsilon)
		}
		return n / sum, nil
	case StrategyMinimum:
		min := values[0]
		for _, v := range values[1:] {
			if v < min {
				min = v
			}
		}
		return min, nil
	case StrategyMaximum:
		max := values[0]
		for _, v := range values[1:] {
			if v > max {
				max = v
			}
		}
		return max, nil
	case StrategyMedian:
		sorted := append([]float64(nil), values...)
		sort.Float64s(sorted)
		return quantile(sorted, 50), nil
	case StrategyWeightedProduct:
		sumW := 0.0
		for _, in := range inputs {
			sumW += in.Weight
		}
		if sumW == 0 {
			// Degenerates to the geometric mean.
			return reduce(inputs, StrategyGeometricMean)
		}
		prod := 1.0
		for _, in := range inputs {
			prod *= math.Pow(math.Max(in.Value, logEpsilon), in.Weight/sumW)
		}
		return prod, nil
	case StrategyPercentile90:
		// Lower-tail percentile: worst-case posture.
		sorted := append([]float64(nil), values...)
		sort.Float64s(sorted)
		return quantile(sorted, 10), nil
	case StrategyPercentile95:
		sorted := append([]float64(nil), values...)
		sort.Float64s(sorted)
		return quantile(sorted, 5), nil
	default:
		return 0, fmt.Errorf("unknown aggregation strategy %q", strategy)
	}
}

// contributions computes how much each pillar moved the aggregate.
func contributions(inputs []Input, strategy Strategy) map[string]float64 {
	contribs := make(map[string]float64, len(inputs))
	switch strategy {
	case StrategyWeightedAverage, StrategyWeightedProduct:
		sumW := 0.0
		for _, in := range inputs {
			sumW += in.Weight
		}
		for _, in := range inputs {
			if sumW == 0 {
				contribs[in.Pillar] = in.Value / float64(len(inputs))
			} else {
				contribs[in.Pillar] = in.Weight / sumW * in.Value
			}
		}
	case StrategyMinimum, StrategyMaximum:
		idx := 0
		for i, in := range inputs {
			if strategy == StrategyMinimum && in.Value < inputs[idx].Value {
				idx = i
			}
			if strategy == StrategyMaximum && in.Value > inputs[idx].Value {
				idx = i
			}
		}
		for i, in := range inputs {
			if i == idx {
				contribs[in.Pillar] = 1.0
			} else {
				contribs[in.Pillar] = 0
			}
		}
	default:
		for _, in := range inputs {
			contribs[in.Pillar] = in.Value / float64(len(inputs))
		}
	}
	return contribs
}

// weightedConfidence is the weight-averaged confidence, or the plain mean
// when all weights are zero.
func weightedConfidence(inputs []Input) float64 {
	sumW, sumCW, sumC := 0.0, 0.0, 0.0
	for _, in := range inputs {
		sumW += in.Weight
		sumCW += in.Confidence * in.Weight
		sumC += in.Confidence
	}
	if sumW == 0 {
		return sumC / float64(len(inputs))
	}
	return sumCW / sumW
}

// riskOf maps an overall score to the default risk classification.
// The Threshold Manager may override this mapping.
func riskOf(overall float64) RiskLevel {
	switch {
	case overall >= 0.9:
		return RiskLow
	case overall >= 0.7:
		return RiskMedium
	case overall >= 0.5:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// CompareAggregations runs every strategy in parallel over the same inputs
// and returns the per-strategy results. Strategies that error are omitted.
func (a *Aggregator) CompareAggregations(inputs []Input) map[Strategy]AggregatedScore {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[Strategy]AggregatedScore, len(AllStrategies))
	)
	for _, strategy := range AllStrategies {
		wg.Add(1)
		go func(s Strategy) {
			defer wg.Done()
			agg, err := a.Aggregate(inputs, s)
			if err != nil {
				return
			}
			mu.Lock()
			results[s] = agg
			mu.Unlock()
		}(strategy)
	}
	wg.Wait()
	return results
}
