package filter

import (
	"context"
	"regexp"
)

// jailbreakPattern pairs a compiled detector with the technique it flags.
type jailbreakPattern struct {
	technique string
	re        *regexp.Regexp
}

// jailbreakPatterns is the fixed detection set for prompt-injection and
// persona-override attempts.
var jailbreakPatterns = []jailbreakPattern{
	{"instruction_override", regexp.MustCompile(`(?i)\bignore\s+(?:all\s+|any\s+)?(?:previous|prior|above|earlier)\s+(?:instructions?|prompts?|rules?|directives?)\b`)},
	{"instruction_override", regexp.MustCompile(`(?i)\bdisregard\s+(?:all\s+|any\s+)?(?:previous|prior|your)\s+(?:instructions?|rules?|training)\b`)},
	{"persona_override", regexp.MustCompile(`(?i)\byou\s+are\s+(?:now\s+)?DAN\b|\bDAN\s+mode\b|\bdo\s+anything\s+now\b`)},
	{"persona_override", regexp.MustCompile(`(?i)\b(?:pretend|act)\s+(?:as\s+if|that|to\s+be|you\s+are)\b.{0,60}\b(?:no\s+(?:restrictions?|rules?|limits?|filters?)|unrestricted|uncensored)\b`)},
	{"prompt_extraction", regexp.MustCompile(`(?i)\b(?:show|reveal|print|repeat|output|display)\b.{0,40}\b(?:system\s+prompt|initial\s+(?:prompt|instructions?)|hidden\s+(?:prompt|instructions?))\b`)},
	{"safety_bypass", regexp.MustCompile(`(?i)\b(?:bypass|disable|turn\s+off|remove|circumvent)\b.{0,30}\b(?:safety|content\s+(?:filter|policy)|guardrails?|restrictions?|moderation)\b`)},
	{"encoding_evasion", regexp.MustCompile(`(?i)\b(?:decode|respond\s+in|answer\s+in|encoded?\s+(?:as|in))\s+(?:base64|rot13|hex|binary)\b`)},
	{"delimiter_injection", regexp.MustCompile(`\[/?INST\]|<\|im_(?:start|end)\|>|(?m)^###\s*(?:System|Instruction)`)},
}

// JailbreakFilter detects attempts to subvert the model's instructions.
type JailbreakFilter struct {
	patterns []jailbreakPattern
}

// NewJailbreakFilter creates a jailbreak filter with the built-in set.
func NewJailbreakFilter() *JailbreakFilter {
	return &JailbreakFilter{patterns: jailbreakPatterns}
}

// Name implements Filter.
func (f *JailbreakFilter) Name() string { return "jailbreak" }

// Detect implements Filter.
func (f *JailbreakFilter) Detect(_ context.Context, content string, _ map[string]interface{}) (Detection, error) {
	seen := make(map[string]bool)
	var techniques []string
	for _, p := range f.patterns {
		if seen[p.technique] || !p.re.MatchString(content) {
			continue
		}
		seen[p.technique] = true
		techniques = append(techniques, p.technique)
	}
	if len(techniques) == 0 {
		return Detection{}, nil
	}

	reasons := make([]string, 0, len(techniques))
	for _, tech := range techniques {
		reasons = append(reasons, "jailbreak attempt: "+tech)
	}
	return Detection{
		Matched:    true,
		Reasons:    reasons,
		Metadata:   map[string]interface{}{"techniques": techniques},
		Confidence: 0.9,
	}, nil
}

var _ Filter = (*JailbreakFilter)(nil)
