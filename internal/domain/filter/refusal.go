package filter

import (
	"context"
	"fmt"
	"regexp"
)

// refusalConfidenceCap keeps refusal phrasing a weak signal. The phrases
// also appear in legitimate answers ("I cannot verify that claim"), so a
// refusal hit alone should never outrank a real detector.
const refusalConfidenceCap = 0.5

// refusalScanWindow limits matching to the head of the response, where
// models place their refusal.
const refusalScanWindow = 300

var defaultRefusalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bI\s+(?:cannot|can't|can\s+not)\s+(?:help|assist|comply|provide|do\s+that)\b`),
	regexp.MustCompile(`(?i)\bI(?:'m|\s+am)\s+(?:unable|not\s+able)\s+to\s+(?:help|assist|comply|provide)\b`),
	regexp.MustCompile(`(?i)\bI\s+(?:must|have\s+to)\s+(?:decline|refuse)\b`),
	regexp.MustCompile(`(?i)\bas\s+an\s+AI\b.{0,40}\b(?:cannot|can't|unable)\b`),
	regexp.MustCompile(`(?i)\b(?:against|violates)\s+my\s+(?:guidelines|policies|principles)\b`),
}

// RefusalFilter flags responses that open with refusal language. It is a
// last-resort signal for the output phase: a refusal means the model
// already declined, which usually indicates the request should have been
// caught on input.
type RefusalFilter struct {
	patterns []*regexp.Regexp
	window   int
}

// RefusalOption configures a RefusalFilter.
type RefusalOption func(*RefusalFilter)

// WithRefusalPatterns replaces the built-in pattern list.
func WithRefusalPatterns(patterns []*regexp.Regexp) RefusalOption {
	return func(f *RefusalFilter) { f.patterns = patterns }
}

// WithRefusalScanWindow overrides how many leading bytes are scanned.
func WithRefusalScanWindow(n int) RefusalOption {
	return func(f *RefusalFilter) { f.window = n }
}

// NewRefusalFilter creates a refusal filter.
func NewRefusalFilter(opts ...RefusalOption) *RefusalFilter {
	f := &RefusalFilter{
		patterns: defaultRefusalPatterns,
		window:   refusalScanWindow,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Name implements Filter.
func (f *RefusalFilter) Name() string { return "refusal" }

// Detect implements Filter.
func (f *RefusalFilter) Detect(_ context.Context, content string, _ map[string]interface{}) (Detection, error) {
	head := content
	if len(head) > f.window {
		head = head[:f.window]
	}

	hits := 0
	for _, re := range f.patterns {
		if re.MatchString(head) {
			hits++
		}
	}
	if hits == 0 {
		return Detection{}, nil
	}
	return Detection{
		Matched:    true,
		Reasons:    []string{fmt.Sprintf("response opens with refusal language (%d patterns)", hits)},
		Metadata:   map[string]interface{}{"pattern_hits": hits},
		Confidence: refusalConfidenceCap,
	}, nil
}

var _ Filter = (*RefusalFilter)(nil)
