// Package compliance maps aggregated pillar scores onto regulatory
// framework controls. Mappings are advisory, not certification.
package compliance

import (
	"fmt"
	"sort"
)

// defaultGapThreshold flags controls scoring under it as gaps.
const defaultGapThreshold = 0.7

// Control is one requirement within a framework.
type Control struct {
	// ID is the control identifier within its framework.
	ID string
	// Title describes the control.
	Title string
	// Pillars names the evaluation pillars the control draws on.
	Pillars []string
}

// Framework is a named set of controls.
type Framework struct {
	ID       string
	Name     string
	Controls []Control
}

// relevanceKey addresses one entry of the flat relevance table.
// Cross-references are values: pillars and controls only know their own
// identifiers.
type relevanceKey struct {
	pillar    string
	framework string
	control   string
}

// ControlScore is one control's weighted score.
type ControlScore struct {
	Control string
	Title   string
	Score   float64
	// Pillars lists the contributing pillars with known scores.
	Pillars []string
}

// Gap is a control scoring under the gap threshold.
type Gap struct {
	Control string
	Title   string
	Score   float64
	// WorstPillar is the contributing pillar with the largest weighted
	// shortfall.
	WorstPillar string
}

// Report bundles the mapping output for one framework.
type Report struct {
	Framework string
	Controls  []ControlScore
	Gaps      []Gap
	// MeanScore averages the control scores.
	MeanScore float64
}

// Mapper scores frameworks from pillar scores via the relevance table.
type Mapper struct {
	frameworks map[string]Framework
	relevance  map[relevanceKey]float64
}

// NewMapper creates a mapper preloaded with the built-in frameworks and
// relevance table.
func NewMapper() *Mapper {
	m := &Mapper{
		frameworks: make(map[string]Framework),
		relevance:  make(map[relevanceKey]float64),
	}
	for _, fw := range builtinFrameworks {
		m.frameworks[fw.ID] = fw
	}
	for key, weight := range builtinRelevance {
		m.relevance[key] = weight
	}
	return m
}

// RegisterFramework adds or replaces a framework.
func (m *Mapper) RegisterFramework(fw Framework) error {
	if fw.ID == "" {
		return fmt.Errorf("framework has no id")
	}
	m.frameworks[fw.ID] = fw
	return nil
}

// SetRelevance sets one (pillar, framework, control) weight in [0,1].
func (m *Mapper) SetRelevance(pillar, framework, control string, weight float64) error {
	if weight < 0 || weight > 1 {
		return fmt.Errorf("relevance weight %v out of [0,1]", weight)
	}
	m.relevance[relevanceKey{pillar, framework, control}] = weight
	return nil
}

// Frameworks lists the registered framework ids, sorted.
func (m *Mapper) Frameworks() []string {
	ids := make([]string, 0, len(m.frameworks))
	for id := range m.frameworks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Map scores every control of the framework from the pillar scores and
// reports gaps under the threshold. A non-positive threshold uses the
// default 0.7.
func (m *Mapper) Map(frameworkID string, pillarScores map[string]float64, gapThreshold float64) (Report, error) {
	fw, ok := m.frameworks[frameworkID]
	if !ok {
		return Report{}, fmt.Errorf("unknown framework %q", frameworkID)
	}
	if gapThreshold <= 0 {
		gapThreshold = defaultGapThreshold
	}

	report := Report{Framework: frameworkID}
	var sum float64
	for _, control := range fw.Controls {
		cs := m.scoreControl(fw.ID, control, pillarScores)
		report.Controls = append(report.Controls, cs)
		sum += cs.Score
		if cs.Score < gapThreshold {
			report.Gaps = append(report.Gaps, Gap{
				Control:     control.ID,
				Title:       control.Title,
				Score:       cs.Score,
				WorstPillar: m.worstPillar(fw.ID, control, pillarScores),
			})
		}
	}
	if len(report.Controls) > 0 {
		report.MeanScore = sum / float64(len(report.Controls))
	}
	return report, nil
}

// scoreControl computes the relevance-weighted mean over pillars with
// known scores. Zero total weight scores zero.
func (m *Mapper) scoreControl(frameworkID string, control Control, pillarScores map[string]float64) ControlScore {
	cs := ControlScore{Control: control.ID, Title: control.Title}
	var weighted, total float64
	for _, pillar := range control.Pillars {
		s, known := pillarScores[pillar]
		if !known {
			continue
		}
		w := m.relevance[relevanceKey{pillar, frameworkID, control.ID}]
		if w == 0 {
			continue
		}
		weighted += w * s
		total += w
		cs.Pillars = append(cs.Pillars, pillar)
	}
	if total == 0 {
		return cs
	}
	cs.Score = weighted / total
	return cs
}

// worstPillar finds the contributing pillar with the largest weighted
// shortfall from a perfect score.
func (m *Mapper) worstPillar(frameworkID string, control Control, pillarScores map[string]float64) string {
	worst := ""
	worstImpact := -1.0
	for _, pillar := range control.Pillars {
		s, known := pillarScores[pillar]
		if !known {
			continue
		}
		w := m.relevance[relevanceKey{pillar, frameworkID, control.ID}]
		impact := w * (1 - s)
		if impact > worstImpact {
			worst, worstImpact = pillar, impact
		}
	}
	return worst
}
