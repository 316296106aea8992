// Package score contains the scoring core: pillar scores, metric
// normalization, and weighted aggregation across configurable strategies.
package score

import "time"

// RiskLevel classifies a score or a finding on the shared severity scale.
type RiskLevel string

const (
	// RiskCritical indicates an unacceptable level of risk.
	RiskCritical RiskLevel = "critical"
	// RiskHigh indicates significant risk requiring review.
	RiskHigh RiskLevel = "high"
	// RiskMedium indicates moderate risk.
	RiskMedium RiskLevel = "medium"
	// RiskLow indicates acceptable risk.
	RiskLow RiskLevel = "low"
	// RiskMinimal indicates negligible risk.
	RiskMinimal RiskLevel = "minimal"
	// RiskUnknown is returned when no usable scores remain after filtering.
	RiskUnknown RiskLevel = "unknown"
)

// riskRank orders levels from worst (highest rank) to best.
var riskRank = map[RiskLevel]int{
	RiskCritical: 5,
	RiskHigh:     4,
	RiskMedium:   3,
	RiskLow:      2,
	RiskMinimal:  1,
	RiskUnknown:  0,
}

// WorseThan reports whether r is more severe than other.
func (r RiskLevel) WorseThan(other RiskLevel) bool {
	return riskRank[r] > riskRank[other]
}

// Worst returns the most severe of the given levels, or RiskUnknown when
// the slice is empty.
func Worst(levels []RiskLevel) RiskLevel {
	worst := RiskUnknown
	for _, l := range levels {
		if l.WorseThan(worst) {
			worst = l
		}
	}
	return worst
}

// String returns the string representation of the RiskLevel.
func (r RiskLevel) String() string {
	return string(r)
}

// Severity grades an individual finding.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Score is a point in [0,1] with an associated confidence and weight.
// Immutable after creation.
type Score struct {
	// Value is the normalized score in [0,1].
	Value float64
	// Confidence is how reliable the value is, in [0,1].
	Confidence float64
	// Weight is the positive relative weight used during aggregation.
	Weight float64
}

// Finding is a single observation produced by a pillar evaluator.
type Finding struct {
	// Kind identifies the class of finding (e.g. "potential_data_exfiltration").
	Kind string
	// Severity grades the finding.
	Severity Severity
	// Message is a free-text description.
	Message string
	// Attributes carries structured detail about the finding.
	Attributes map[string]interface{}
}

// PillarResult is the output of evaluating one pillar for one evaluation.
type PillarResult struct {
	// Pillar is the pillar name (fairness, robustness, privacy, ...).
	Pillar string
	// Score is the pillar's normalized score.
	Score Score
	// Metrics holds the raw metric values the score was derived from.
	Metrics map[string]float64
	// Findings are the observations raised by the pillar, in order.
	Findings []Finding
	// Elapsed is how long the pillar evaluation took.
	Elapsed time.Duration
}

// AggregatedScore is the composite verdict over a set of pillar scores.
type AggregatedScore struct {
	// Overall is the aggregate score in [0,1].
	Overall float64
	// Strategy names the aggregation strategy used.
	Strategy Strategy
	// PillarScores holds the per-pillar inputs after confidence filtering.
	PillarScores map[string]Score
	// Contributions maps each pillar to how much it moved the aggregate.
	Contributions map[string]float64
	// Confidence is the weighted mean confidence of the inputs.
	Confidence float64
	// Risk is the risk classification of Overall.
	Risk RiskLevel
}
