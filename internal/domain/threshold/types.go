// Package threshold classifies normalized scores into risk levels, raises
// violations against configured bounds, and derives deployment verdicts.
package threshold

import (
	"errors"
	"fmt"
	"time"

	"github.com/Modelgate-Labs/modelgate/internal/domain/score"
)

// ErrInvalidOrdering is returned when threshold cut-points are not monotone
// for the configured orientation.
var ErrInvalidOrdering = errors.New("threshold cut-points out of order")

// Config holds four cut-points on [0,1] plus the orientation flag.
// With HigherIsBetter, critical <= high <= medium <= low must hold; with a
// lower-is-better metric the inequalities reverse. Construction fails
// otherwise.
type Config struct {
	Critical       float64
	High           float64
	Medium         float64
	Low            float64
	HigherIsBetter bool
}

// NewConfig validates the ordering invariant and returns the config.
func NewConfig(critical, high, medium, low float64, higherIsBetter bool) (Config, error) {
	cfg := Config{
		Critical:       critical,
		High:           high,
		Medium:         medium,
		Low:            low,
		HigherIsBetter: higherIsBetter,
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	for _, v := range []float64{c.Critical, c.High, c.Medium, c.Low} {
		if v < 0 || v > 1 {
			return fmt.Errorf("cut-point %v outside [0,1]", v)
		}
	}
	ordered := c.Critical <= c.High && c.High <= c.Medium && c.Medium <= c.Low
	if !c.HigherIsBetter {
		ordered = c.Critical >= c.High && c.High >= c.Medium && c.Medium >= c.Low
	}
	if !ordered {
		return fmt.Errorf("%w: critical=%v high=%v medium=%v low=%v higher_is_better=%v",
			ErrInvalidOrdering, c.Critical, c.High, c.Medium, c.Low, c.HigherIsBetter)
	}
	return nil
}

// Classify maps a score to a risk level under this config.
func (c Config) Classify(v float64) score.RiskLevel {
	if c.HigherIsBetter {
		switch {
		case v < c.Critical:
			return score.RiskCritical
		case v < c.High:
			return score.RiskHigh
		case v < c.Medium:
			return score.RiskMedium
		case v < c.Low:
			return score.RiskLow
		default:
			return score.RiskMinimal
		}
	}
	switch {
	case v > c.Critical:
		return score.RiskCritical
	case v > c.High:
		return score.RiskHigh
	case v > c.Medium:
		return score.RiskMedium
	case v > c.Low:
		return score.RiskLow
	default:
		return score.RiskMinimal
	}
}

// DefaultConfig is the standard higher-is-better overall configuration.
func DefaultConfig() Config {
	return Config{Critical: 0.4, High: 0.6, Medium: 0.75, Low: 0.9, HigherIsBetter: true}
}

// Violation records a pillar whose observed risk level exceeded the
// acceptable one.
type Violation struct {
	// ID uniquely identifies the violation.
	ID string
	// Pillar is the offending pillar name.
	Pillar string
	// Score is the offending normalized score.
	Score float64
	// Config is the threshold config that classified the score.
	Config Config
	// Observed is the classified risk level.
	Observed score.RiskLevel
	// Expected is the acceptable level that was exceeded.
	Expected score.RiskLevel
	// Timestamp is when the violation was raised (UTC).
	Timestamp time.Time
}

// CheckResult is the verdict over a set of pillar scores.
type CheckResult struct {
	// Levels maps each pillar to its classified risk level.
	Levels map[string]score.RiskLevel
	// Violations lists every pillar whose level exceeded its bound.
	Violations []Violation
	// Overall is the worst per-pillar level.
	Overall score.RiskLevel
	// Passed is the pass/fail verdict under the running configuration.
	Passed bool
}

// Decision is the deployment recommendation derived from a CheckResult.
type Decision string

const (
	Deploy               Decision = "DEPLOY"
	DeployWithMonitoring Decision = "DEPLOY_WITH_MONITORING"
	ReviewRequired       Decision = "REVIEW_REQUIRED"
	DoNotDeploy          Decision = "DO_NOT_DEPLOY"
)

// Recommendation pairs a deployment decision with targeted remediation
// suggestions drawn from the highest-severity violations.
type Recommendation struct {
	Decision    Decision
	Suggestions []string
}
