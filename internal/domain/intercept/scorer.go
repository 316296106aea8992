package intercept

import "strings"

const maxArgLength = 1000

var (
	highRiskNames = []string{
		"execute", "eval", "shell", "command", "run",
		"delete", "remove", "drop", "truncate",
		"write", "modify", "update",
	}
	mediumRiskNames = []string{
		"read", "get", "fetch", "query", "search",
		"list", "browse", "access",
	}
	shellMetachars = ";&|`$(){}[]<>"
)

// HeuristicScorer rates calls by tool-name risk class, argument size, and
// shell metacharacters. Additive, clamped to 1.0.
type HeuristicScorer struct{}

// Name implements Scorer.
func (HeuristicScorer) Name() string { return "heuristic" }

// Score implements Scorer.
func (HeuristicScorer) Score(call ToolCall) float64 {
	var risk float64
	name := strings.ToLower(call.ToolName)

	if containsAny(name, highRiskNames) {
		risk += 0.4
	}
	if containsAny(name, mediumRiskNames) {
		risk += 0.2
	}

	args := argString(call.Arguments)
	if len(args) > maxArgLength {
		risk += 0.2
	}
	if strings.ContainsAny(args, shellMetachars) {
		risk += 0.2
	}

	if risk > 1.0 {
		risk = 1.0
	}
	return risk
}

func containsAny(s string, substrings []string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

var _ Scorer = HeuristicScorer{}
