// Package tool classifies agent tools by risk and answers security-check
// queries during agent evaluation.
package tool

import (
	"context"
	"strings"

	"github.com/Modelgate-Labs/modelgate/internal/domain/score"
)

// criticalPatterns marks destructive operations or system commands.
var criticalPatterns = []string{
	"delete", "remove", "drop", "destroy", "execute", "exec",
	"shell", "command", "admin", "sudo", "root", "truncate",
}

// highPatterns marks write operations or network access.
var highPatterns = []string{
	"write", "create", "update", "modify", "send", "post",
	"upload", "deploy", "install", "connect", "put",
}

// mediumPatterns marks read operations with potential sensitivity.
var mediumPatterns = []string{
	"fetch", "download", "export", "query", "search", "get",
}

// Classify determines a tool's risk level from its name, case-insensitive,
// by substring matching with critical taking precedence over high over
// medium. Names matching nothing are low risk.
//
// Substring matching is deliberately coarse ("undelete" matches "delete");
// deny-list overrides handle the edge cases.
func Classify(name string) score.RiskLevel {
	lower := strings.ToLower(name)
	for _, pattern := range criticalPatterns {
		if strings.Contains(lower, pattern) {
			return score.RiskCritical
		}
	}
	for _, pattern := range highPatterns {
		if strings.Contains(lower, pattern) {
			return score.RiskHigh
		}
	}
	for _, pattern := range mediumPatterns {
		if strings.Contains(lower, pattern) {
			return score.RiskMedium
		}
	}
	return score.RiskLow
}

// CheckVerdict is a security checker's answer for one tool invocation.
type CheckVerdict struct {
	// Safe is false when the tool should not run at all.
	Safe bool
	// Reason explains an unsafe verdict.
	Reason string
	// Risk is the tool's classified risk level.
	Risk score.RiskLevel
}

// SecurityChecker answers per-invocation security queries. The agent
// evaluator consults it for every call in a trace.
type SecurityChecker interface {
	CheckTool(ctx context.Context, name string, args map[string]interface{}) (CheckVerdict, error)
}

// PatternChecker is the built-in SecurityChecker: name classification plus
// a deny list. Critical tools are flagged unsafe unless explicitly allowed.
type PatternChecker struct {
	denied  map[string]bool
	allowed map[string]bool
}

// NewPatternChecker creates a checker. Denied names are always unsafe;
// allowed names are safe even when classified critical.
func NewPatternChecker(denied, allowed []string) *PatternChecker {
	c := &PatternChecker{
		denied:  make(map[string]bool, len(denied)),
		allowed: make(map[string]bool, len(allowed)),
	}
	for _, name := range denied {
		c.denied[name] = true
	}
	for _, name := range allowed {
		c.allowed[name] = true
	}
	return c
}

// CheckTool implements SecurityChecker.
func (c *PatternChecker) CheckTool(_ context.Context, name string, _ map[string]interface{}) (CheckVerdict, error) {
	if c.denied[name] {
		return CheckVerdict{Safe: false, Reason: "tool is deny-listed", Risk: score.RiskCritical}, nil
	}
	risk := Classify(name)
	if risk == score.RiskCritical && !c.allowed[name] {
		return CheckVerdict{Safe: false, Reason: "critical-risk tool not on allow list", Risk: risk}, nil
	}
	return CheckVerdict{Safe: true, Risk: risk}, nil
}

var _ SecurityChecker = (*PatternChecker)(nil)
