package score

import (
	"math"
	"testing"
)

func TestAggregate_WeightedAverage(t *testing.T) {
	a := NewAggregator(DefaultAggregatorConfig())
	inputs := []Input{
		{Pillar: "pA", Value: 0.8, Confidence: 1.0, Weight: 2.0},
		{Pillar: "pB", Value: 0.4, Confidence: 1.0, Weight: 1.0},
	}

	agg, err := a.Aggregate(inputs, StrategyWeightedAverage)
	if err != nil {
		t.Fatalf("Aggregate returned error: %v", err)
	}
	if !almostEqual(agg.Overall, 0.6667, 1e-3) {
		t.Errorf("overall = %v, want 0.6667", agg.Overall)
	}
	if !almostEqual(agg.Contributions["pA"], 0.5333, 1e-3) {
		t.Errorf("contribution pA = %v, want 0.5333", agg.Contributions["pA"])
	}
	if !almostEqual(agg.Contributions["pB"], 0.1333, 1e-3) {
		t.Errorf("contribution pB = %v, want 0.1333", agg.Contributions["pB"])
	}
	if agg.Risk != RiskHigh {
		t.Errorf("risk = %v, want high", agg.Risk)
	}
	// Contributions sum to the overall under weighted average.
	sum := agg.Contributions["pA"] + agg.Contributions["pB"]
	if !almostEqual(sum, agg.Overall, 1e-9) {
		t.Errorf("contribution sum = %v, want %v", sum, agg.Overall)
	}
}

func TestAggregate_SingleScoreUnit(t *testing.T) {
	a := NewAggregator(DefaultAggregatorConfig())
	agg, err := a.Aggregate([]Input{{Pillar: "p", Value: 0.73, Confidence: 1, Weight: 2.5}}, StrategyWeightedAverage)
	if err != nil {
		t.Fatalf("Aggregate returned error: %v", err)
	}
	if !almostEqual(agg.Overall, 0.73, 1e-9) {
		t.Errorf("overall = %v, want 0.73", agg.Overall)
	}
}

func TestAggregate_Strategies(t *testing.T) {
	a := NewAggregator(DefaultAggregatorConfig())
	inputs := []Input{
		{Pillar: "a", Value: 0.2, Confidence: 1, Weight: 1},
		{Pillar: "b", Value: 0.4, Confidence: 1, Weight: 1},
		{Pillar: "c", Value: 0.9, Confidence: 1, Weight: 1},
	}

	tests := []struct {
		strategy Strategy
		want     float64
	}{
		{StrategyArithmeticMean, 0.5},
		{StrategyGeometricMean, math.Exp((math.Log(0.2) + math.Log(0.4) + math.Log(0.9)) / 3)},
		{StrategyHarmonicMean, 3 / (1/0.2 + 1/0.4 + 1/0.9)},
		{StrategyMinimum, 0.2},
		{StrategyMaximum, 0.9},
		{StrategyMedian, 0.4},
		{StrategyPercentile90, 0.24},
		{StrategyPercentile95, 0.22},
	}
	for _, tt := range tests {
		t.Run(string(tt.strategy), func(t *testing.T) {
			agg, err := a.Aggregate(inputs, tt.strategy)
			if err != nil {
				t.Fatalf("Aggregate returned error: %v", err)
			}
			if !almostEqual(agg.Overall, tt.want, 1e-9) {
				t.Errorf("overall = %v, want %v", agg.Overall, tt.want)
			}
		})
	}
}

func TestAggregate_MinMaxContributions(t *testing.T) {
	a := NewAggregator(DefaultAggregatorConfig())
	inputs := []Input{
		{Pillar: "lo", Value: 0.1, Confidence: 1, Weight: 1},
		{Pillar: "hi", Value: 0.9, Confidence: 1, Weight: 1},
	}
	agg, err := a.Aggregate(inputs, StrategyMinimum)
	if err != nil {
		t.Fatalf("Aggregate returned error: %v", err)
	}
	if agg.Contributions["lo"] != 1.0 || agg.Contributions["hi"] != 0 {
		t.Errorf("contributions = %v, want lo:1 hi:0", agg.Contributions)
	}
}

func TestAggregate_Monotonicity(t *testing.T) {
	a := NewAggregator(DefaultAggregatorConfig())
	base := []Input{
		{Pillar: "a", Value: 0.3, Confidence: 1, Weight: 1},
		{Pillar: "b", Value: 0.6, Confidence: 1, Weight: 2},
		{Pillar: "c", Value: 0.8, Confidence: 1, Weight: 1},
	}
	for _, strategy := range []Strategy{
		StrategyWeightedAverage, StrategyArithmeticMean, StrategyMinimum,
		StrategyMaximum, StrategyMedian,
	} {
		t.Run(string(strategy), func(t *testing.T) {
			before, err := a.Aggregate(base, strategy)
			if err != nil {
				t.Fatalf("Aggregate returned error: %v", err)
			}
			for i := range base {
				bumped := append([]Input(nil), base...)
				bumped[i].Value = math.Min(bumped[i].Value+0.1, 1)
				after, err := a.Aggregate(bumped, strategy)
				if err != nil {
					t.Fatalf("Aggregate returned error: %v", err)
				}
				if after.Overall < before.Overall-1e-12 {
					t.Errorf("raising %s decreased %s aggregate: %v -> %v",
						base[i].Pillar, strategy, before.Overall, after.Overall)
				}
			}
		})
	}
}

func TestAggregate_LowConfidencePolicies(t *testing.T) {
	inputs := []Input{
		{Pillar: "good", Value: 0.9, Confidence: 0.9, Weight: 1},
		{Pillar: "shaky", Value: 0.1, Confidence: 0.1, Weight: 1},
	}

	t.Run("exclude drops the input", func(t *testing.T) {
		a := NewAggregator(AggregatorConfig{MinConfidence: 0.3, LowConfidence: LowConfidenceExclude, DefaultScore: 0.5})
		agg, err := a.Aggregate(inputs, StrategyWeightedAverage)
		if err != nil {
			t.Fatalf("Aggregate returned error: %v", err)
		}
		if len(agg.PillarScores) != 1 {
			t.Errorf("got %d pillar scores, want 1", len(agg.PillarScores))
		}
		if !almostEqual(agg.Overall, 0.9, 1e-9) {
			t.Errorf("overall = %v, want 0.9", agg.Overall)
		}
	})

	t.Run("default replaces the score", func(t *testing.T) {
		a := NewAggregator(AggregatorConfig{MinConfidence: 0.3, LowConfidence: LowConfidenceDefault, DefaultScore: 0.5})
		agg, err := a.Aggregate(inputs, StrategyWeightedAverage)
		if err != nil {
			t.Fatalf("Aggregate returned error: %v", err)
		}
		if !almostEqual(agg.Overall, 0.7, 1e-9) {
			t.Errorf("overall = %v, want 0.7", agg.Overall)
		}
	})

	t.Run("fail raises an error", func(t *testing.T) {
		a := NewAggregator(AggregatorConfig{MinConfidence: 0.3, LowConfidence: LowConfidenceFail, DefaultScore: 0.5})
		if _, err := a.Aggregate(inputs, StrategyWeightedAverage); err == nil {
			t.Error("expected error under fail policy")
		}
	})

	t.Run("empty after filtering yields unknown risk", func(t *testing.T) {
		a := NewAggregator(AggregatorConfig{MinConfidence: 0.5, LowConfidence: LowConfidenceExclude, DefaultScore: 0.5})
		agg, err := a.Aggregate([]Input{{Pillar: "p", Value: 0.9, Confidence: 0.1, Weight: 1}}, StrategyWeightedAverage)
		if err != nil {
			t.Fatalf("Aggregate returned error: %v", err)
		}
		if agg.Risk != RiskUnknown {
			t.Errorf("risk = %v, want unknown", agg.Risk)
		}
		if agg.Confidence != 0 {
			t.Errorf("confidence = %v, want 0", agg.Confidence)
		}
		if !almostEqual(agg.Overall, 0.5, 1e-9) {
			t.Errorf("overall = %v, want default 0.5", agg.Overall)
		}
	})
}

func TestAggregate_NegativeWeight(t *testing.T) {
	a := NewAggregator(DefaultAggregatorConfig())
	_, err := a.Aggregate([]Input{{Pillar: "p", Value: 0.5, Confidence: 1, Weight: -1}}, StrategyWeightedAverage)
	if err == nil {
		t.Error("expected error for negative weight")
	}
}

func TestAggregate_ZeroWeightsFallBackToMean(t *testing.T) {
	a := NewAggregator(DefaultAggregatorConfig())
	inputs := []Input{
		{Pillar: "a", Value: 0.2, Confidence: 0.8, Weight: 0},
		{Pillar: "b", Value: 0.6, Confidence: 0.4, Weight: 0},
	}
	agg, err := a.Aggregate(inputs, StrategyWeightedAverage)
	if err != nil {
		t.Fatalf("Aggregate returned error: %v", err)
	}
	if !almostEqual(agg.Overall, 0.4, 1e-9) {
		t.Errorf("overall = %v, want 0.4", agg.Overall)
	}
	if !almostEqual(agg.Confidence, 0.6, 1e-9) {
		t.Errorf("confidence = %v, want plain mean 0.6", agg.Confidence)
	}
}

func TestCompareAggregations(t *testing.T) {
	a := NewAggregator(DefaultAggregatorConfig())
	inputs := []Input{
		{Pillar: "a", Value: 0.5, Confidence: 1, Weight: 1},
		{Pillar: "b", Value: 0.7, Confidence: 1, Weight: 1},
	}
	results := a.CompareAggregations(inputs)
	if len(results) != len(AllStrategies) {
		t.Fatalf("got %d results, want %d", len(results), len(AllStrategies))
	}
	if !almostEqual(results[StrategyMinimum].Overall, 0.5, 1e-9) {
		t.Errorf("minimum = %v, want 0.5", results[StrategyMinimum].Overall)
	}
	if !almostEqual(results[StrategyMaximum].Overall, 0.7, 1e-9) {
		t.Errorf("maximum = %v, want 0.7", results[StrategyMaximum].Overall)
	}
}

func TestTrendAnalysis(t *testing.T) {
	a := NewAggregator(DefaultAggregatorConfig())
	mk := func(v float64) []Input {
		return []Input{{Pillar: "p", Value: v, Confidence: 1, Weight: 1}}
	}

	t.Run("improving", func(t *testing.T) {
		report, err := a.TrendAnalysis([][]Input{mk(0.4), mk(0.5), mk(0.6)}, StrategyWeightedAverage)
		if err != nil {
			t.Fatalf("TrendAnalysis returned error: %v", err)
		}
		if report.Direction != DirectionImproving {
			t.Errorf("direction = %v, want improving", report.Direction)
		}
		if report.First != 0.4 || report.Latest != 0.6 {
			t.Errorf("first/latest = %v/%v, want 0.4/0.6", report.First, report.Latest)
		}
		pt, ok := report.Pillars["p"]
		if !ok {
			t.Fatal("missing pillar trend for p")
		}
		if pt.Direction != DirectionImproving || !almostEqual(pt.Change, 0.2, 1e-9) {
			t.Errorf("pillar trend = %+v, want improving +0.2", pt)
		}
	})

	t.Run("dead band is stable", func(t *testing.T) {
		report, err := a.TrendAnalysis([][]Input{mk(0.50), mk(0.54)}, StrategyWeightedAverage)
		if err != nil {
			t.Fatalf("TrendAnalysis returned error: %v", err)
		}
		if report.Direction != DirectionStable {
			t.Errorf("direction = %v, want stable", report.Direction)
		}
	})

	t.Run("declining", func(t *testing.T) {
		report, err := a.TrendAnalysis([][]Input{mk(0.8), mk(0.6)}, StrategyWeightedAverage)
		if err != nil {
			t.Fatalf("TrendAnalysis returned error: %v", err)
		}
		if report.Direction != DirectionDeclining {
			t.Errorf("direction = %v, want declining", report.Direction)
		}
		if report.Volatility <= 0 {
			t.Errorf("volatility = %v, want > 0", report.Volatility)
		}
	})
}

func TestWeightManager(t *testing.T) {
	m := NewWeightManager()

	t.Run("built-in preset", func(t *testing.T) {
		preset, err := m.Preset("balanced")
		if err != nil {
			t.Fatalf("Preset returned error: %v", err)
		}
		if preset["security"] != 1 {
			t.Errorf("balanced security weight = %v, want 1", preset["security"])
		}
	})

	t.Run("unknown preset", func(t *testing.T) {
		if _, err := m.Preset("nope"); err == nil {
			t.Error("expected error for unknown preset")
		}
	})

	t.Run("register and blend", func(t *testing.T) {
		if err := m.Register("custom", WeightPreset{"security": 4}); err != nil {
			t.Fatalf("Register returned error: %v", err)
		}
		blended, err := m.Blend(map[string]float64{"balanced": 0.5, "custom": 0.5})
		if err != nil {
			t.Fatalf("Blend returned error: %v", err)
		}
		if !almostEqual(blended["security"], 2.5, 1e-9) {
			t.Errorf("blended security = %v, want 2.5", blended["security"])
		}
	})

	t.Run("negative weight rejected", func(t *testing.T) {
		if err := m.Register("bad", WeightPreset{"x": -1}); err == nil {
			t.Error("expected error for negative weight")
		}
	})
}
