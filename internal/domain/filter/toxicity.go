package filter

import (
	"context"
	"fmt"
	"regexp"
)

// defaultToxicityThreshold is the score above which the ML mode matches.
const defaultToxicityThreshold = 0.7

// defaultToxicPatterns covers overt abuse categories. Deployments with a
// scoring endpoint should prefer the ML mode; the pattern mode is the
// offline fallback.
var defaultToxicPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:kill|murder|hurt|harm|attack)\s+(?:you|your|yourself|them|him|her)\b`),
	regexp.MustCompile(`(?i)\byou\s+(?:are|'re)\s+(?:an?\s+)?(?:idiot|moron|stupid|worthless|pathetic)\b`),
	regexp.MustCompile(`(?i)\b(?:hate|despise)\s+(?:you|people\s+like\s+you)\b`),
	regexp.MustCompile(`(?i)\bgo\s+(?:kill|hurt)\s+yourself\b`),
	regexp.MustCompile(`(?i)\b(?:die|drop\s+dead)\b.{0,20}\b(?:loser|trash|scum)\b`),
	regexp.MustCompile(`(?i)\b(?:racist|sexist|bigoted)\s+(?:slur|remark|joke)s?\b`),
}

// ScoreFunc asks an external classifier for a toxicity score in [0,1].
type ScoreFunc func(ctx context.Context, content string) (float64, error)

// ToxicityFilter detects abusive content. With a ScoreFunc configured it
// scores via the endpoint and compares against the threshold; otherwise
// it counts pattern hits.
type ToxicityFilter struct {
	patterns  []*regexp.Regexp
	scoreFn   ScoreFunc
	threshold float64
}

// ToxicityOption configures a ToxicityFilter.
type ToxicityOption func(*ToxicityFilter)

// WithScoreFunc enables the ML-endpoint mode.
func WithScoreFunc(fn ScoreFunc) ToxicityOption {
	return func(f *ToxicityFilter) { f.scoreFn = fn }
}

// WithToxicityThreshold overrides the match threshold for the ML mode.
func WithToxicityThreshold(t float64) ToxicityOption {
	return func(f *ToxicityFilter) { f.threshold = t }
}

// WithToxicPatterns replaces the built-in pattern list.
func WithToxicPatterns(patterns []*regexp.Regexp) ToxicityOption {
	return func(f *ToxicityFilter) { f.patterns = patterns }
}

// NewToxicityFilter creates a toxicity filter in pattern mode unless a
// ScoreFunc is supplied.
func NewToxicityFilter(opts ...ToxicityOption) *ToxicityFilter {
	f := &ToxicityFilter{
		patterns:  defaultToxicPatterns,
		threshold: defaultToxicityThreshold,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Name implements Filter.
func (f *ToxicityFilter) Name() string { return "toxicity" }

// Detect implements Filter.
func (f *ToxicityFilter) Detect(ctx context.Context, content string, _ map[string]interface{}) (Detection, error) {
	if f.scoreFn != nil {
		score, err := f.scoreFn(ctx, content)
		if err != nil {
			return Detection{}, fmt.Errorf("toxicity score: %w", err)
		}
		if score < f.threshold {
			return Detection{Metadata: map[string]interface{}{"score": score}}, nil
		}
		return Detection{
			Matched:    true,
			Reasons:    []string{fmt.Sprintf("toxicity score %.2f over threshold %.2f", score, f.threshold)},
			Metadata:   map[string]interface{}{"score": score, "threshold": f.threshold},
			Confidence: score,
		}, nil
	}

	hits := 0
	for _, re := range f.patterns {
		hits += len(re.FindAllStringIndex(content, -1))
	}
	if hits == 0 {
		return Detection{}, nil
	}
	return Detection{
		Matched:    true,
		Reasons:    []string{fmt.Sprintf("toxic language detected (%d patterns)", hits)},
		Metadata:   map[string]interface{}{"pattern_hits": hits},
		Confidence: 0.8,
	}, nil
}

var _ Filter = (*ToxicityFilter)(nil)
