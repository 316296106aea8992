package score

import "math"

// trendDeadBand is the minimum overall change treated as a real move.
const trendDeadBand = 0.05

// Direction describes how a score series is moving.
type Direction string

const (
	DirectionImproving Direction = "improving"
	DirectionDeclining Direction = "declining"
	DirectionStable    Direction = "stable"
)

// PillarTrend is the per-pillar movement between the first and latest
// snapshots.
type PillarTrend struct {
	Change    float64
	Direction Direction
}

// TrendReport summarizes a time-ordered sequence of aggregations.
type TrendReport struct {
	// Direction compares the latest overall against the first, with a
	// dead-band of 0.05.
	Direction Direction
	// Volatility is the standard deviation of the overall scores.
	Volatility float64
	// First and Latest are the endpoint overall scores.
	First  float64
	Latest float64
	// Overalls holds every snapshot's overall score in order.
	Overalls []float64
	// Pillars maps each pillar to its change across the window.
	Pillars map[string]PillarTrend
}

// TrendAnalysis aggregates each snapshot under the given strategy and
// reports direction, volatility, and per-pillar movement. At least two
// snapshots are required for a direction other than stable.
func (a *Aggregator) TrendAnalysis(snapshots [][]Input, strategy Strategy) (TrendReport, error) {
	report := TrendReport{
		Direction: DirectionStable,
		Pillars:   make(map[string]PillarTrend),
	}
	if len(snapshots) == 0 {
		return report, nil
	}

	aggs := make([]AggregatedScore, 0, len(snapshots))
	for _, snap := range snapshots {
		agg, err := a.Aggregate(snap, strategy)
		if err != nil {
			return TrendReport{}, err
		}
		aggs = append(aggs, agg)
		report.Overalls = append(report.Overalls, agg.Overall)
	}

	report.First = report.Overalls[0]
	report.Latest = report.Overalls[len(report.Overalls)-1]
	report.Direction = directionOf(report.Latest - report.First)
	report.Volatility = stddev(report.Overalls, mean(report.Overalls))

	first, latest := aggs[0].PillarScores, aggs[len(aggs)-1].PillarScores
	for pillar, latestScore := range latest {
		firstScore, ok := first[pillar]
		if !ok {
			continue
		}
		change := latestScore.Value - firstScore.Value
		report.Pillars[pillar] = PillarTrend{
			Change:    change,
			Direction: directionOf(change),
		}
	}
	return report, nil
}

func directionOf(change float64) Direction {
	if math.Abs(change) <= trendDeadBand {
		return DirectionStable
	}
	if change > 0 {
		return DirectionImproving
	}
	return DirectionDeclining
}
