package compliance

import (
	"math"
	"testing"
)

func TestMapScoresControls(t *testing.T) {
	m := NewMapper()
	scores := map[string]float64{
		"fairness": 0.9,
		"privacy":  0.6,
	}

	report, err := m.Map("eu_ai_act", scores, 0)
	if err != nil {
		t.Fatal(err)
	}

	var governance *ControlScore
	for i := range report.Controls {
		if report.Controls[i].Control == "art10_data_governance" {
			governance = &report.Controls[i]
		}
	}
	if governance == nil {
		t.Fatal("art10_data_governance missing from report")
	}
	// (1.0*0.9 + 0.9*0.6) / (1.0 + 0.9)
	want := (1.0*0.9 + 0.9*0.6) / 1.9
	if math.Abs(governance.Score-want) > 1e-9 {
		t.Errorf("score = %v, want %v", governance.Score, want)
	}
	if len(governance.Pillars) != 2 {
		t.Errorf("pillars = %v", governance.Pillars)
	}
}

func TestMapUnknownPillarsAreSkipped(t *testing.T) {
	m := NewMapper()

	// Only fairness is known; privacy drops out of the weighted mean.
	report, err := m.Map("eu_ai_act", map[string]float64{"fairness": 0.8}, 0)
	if err != nil {
		t.Fatal(err)
	}
	for _, cs := range report.Controls {
		if cs.Control == "art10_data_governance" {
			if math.Abs(cs.Score-0.8) > 1e-9 {
				t.Errorf("score = %v, want 0.8 from the only known pillar", cs.Score)
			}
		}
	}
}

func TestMapZeroWeightScoresZero(t *testing.T) {
	m := NewMapper()
	if err := m.RegisterFramework(Framework{
		ID: "custom",
		Controls: []Control{
			{ID: "c1", Title: "Unweighted control", Pillars: []string{"fairness"}},
		},
	}); err != nil {
		t.Fatal(err)
	}

	report, err := m.Map("custom", map[string]float64{"fairness": 0.9}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if report.Controls[0].Score != 0 {
		t.Errorf("score = %v, want 0 when no relevance weights exist", report.Controls[0].Score)
	}
}

func TestMapGapAnalysis(t *testing.T) {
	m := NewMapper()
	scores := map[string]float64{
		"fairness":     0.95,
		"privacy":      0.3,
		"robustness":   0.9,
		"safety":       0.9,
		"transparency": 0.9,
	}

	report, err := m.Map("eu_ai_act", scores, 0.7)
	if err != nil {
		t.Fatal(err)
	}

	var gap *Gap
	for i := range report.Gaps {
		if report.Gaps[i].Control == "art10_data_governance" {
			gap = &report.Gaps[i]
		}
	}
	if gap == nil {
		t.Fatalf("gaps = %+v, want art10_data_governance flagged", report.Gaps)
	}
	// Privacy has the largest weighted shortfall: 0.9*(1-0.3) vs 1.0*(1-0.95).
	if gap.WorstPillar != "privacy" {
		t.Errorf("worst pillar = %q, want privacy", gap.WorstPillar)
	}

	for _, g := range report.Gaps {
		if g.Score >= 0.7 {
			t.Errorf("control %s with score %v should not be a gap", g.Control, g.Score)
		}
	}
}

func TestMapUnknownFramework(t *testing.T) {
	m := NewMapper()
	if _, err := m.Map("does_not_exist", nil, 0); err == nil {
		t.Error("expected error for unknown framework")
	}
}

func TestSetRelevanceValidation(t *testing.T) {
	m := NewMapper()
	if err := m.SetRelevance("fairness", "eu_ai_act", "art13_transparency", 1.5); err == nil {
		t.Error("weight over 1 should be rejected")
	}
	if err := m.SetRelevance("fairness", "eu_ai_act", "art13_transparency", 0.4); err != nil {
		t.Error(err)
	}
}

func TestFrameworksListing(t *testing.T) {
	m := NewMapper()
	ids := m.Frameworks()
	want := []string{"eu_ai_act", "iso_42001", "nist_ai_rmf"}
	if len(ids) != len(want) {
		t.Fatalf("frameworks = %v", ids)
	}
	for i, id := range want {
		if ids[i] != id {
			t.Errorf("frameworks[%d] = %q, want %q", i, ids[i], id)
		}
	}
}

func TestMapMeanScore(t *testing.T) {
	m := NewMapper()
	if err := m.RegisterFramework(Framework{
		ID: "tiny",
		Controls: []Control{
			{ID: "c1", Pillars: []string{"fairness"}},
			{ID: "c2", Pillars: []string{"privacy"}},
		},
	}); err != nil {
		t.Fatal(err)
	}
	if err := m.SetRelevance("fairness", "tiny", "c1", 1); err != nil {
		t.Fatal(err)
	}
	if err := m.SetRelevance("privacy", "tiny", "c2", 1); err != nil {
		t.Fatal(err)
	}

	report, err := m.Map("tiny", map[string]float64{"fairness": 1.0, "privacy": 0.5}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(report.MeanScore-0.75) > 1e-9 {
		t.Errorf("mean = %v, want 0.75", report.MeanScore)
	}
}
