package filter

import (
	"context"
	"regexp"
	"sort"
	"strings"
)

// ssnDiscount halves confidence for SSN-shaped matches whose area number
// is never issued (000, 666, 9xx).
const ssnDiscount = 0.5

// piiPattern is one compiled detector in the PII family.
type piiPattern struct {
	kind string
	re   *regexp.Regexp
}

// piiPatterns is the built-in regex family. Order matters only for reason
// reporting; redaction merges overlapping spans.
var piiPatterns = []piiPattern{
	{"ssn", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"credit_card", regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{4}\b`)},
	{"email", regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)},
	{"phone", regexp.MustCompile(`\b(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`)},
	{"ipv4", regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)},
	{"date_of_birth", regexp.MustCompile(`\b(?:0?[1-9]|1[0-2])[/-](?:0?[1-9]|[12]\d|3[01])[/-](?:19|20)\d{2}\b`)},
	{"passport", regexp.MustCompile(`\b[A-Z]{1,2}\d{6,9}\b`)},
}

// invalidSSNArea matches SSN area numbers that are never issued.
var invalidSSNArea = regexp.MustCompile(`^(000|666|9\d{2})-`)

// PIIFilter detects personally identifiable information with a fixed
// regex family and redacts matched spans in place, preserving length.
type PIIFilter struct {
	redaction rune
	kinds     map[string]bool
}

// PIIOption configures a PIIFilter.
type PIIOption func(*PIIFilter)

// WithRedactionChar sets the character substituted for matched spans.
func WithRedactionChar(r rune) PIIOption {
	return func(f *PIIFilter) { f.redaction = r }
}

// WithPIIKinds restricts detection to the named kinds (ssn, credit_card,
// email, phone, ipv4, date_of_birth, passport). Empty means all.
func WithPIIKinds(kinds ...string) PIIOption {
	return func(f *PIIFilter) {
		f.kinds = make(map[string]bool, len(kinds))
		for _, k := range kinds {
			f.kinds[k] = true
		}
	}
}

// NewPIIFilter creates a PII filter with '*' as the default redaction
// character.
func NewPIIFilter(opts ...PIIOption) *PIIFilter {
	f := &PIIFilter{redaction: '*'}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Name implements Filter.
func (f *PIIFilter) Name() string { return "pii" }

type span struct{ start, end int }

// Detect implements Filter. Redacted always has the same length as the
// input content.
func (f *PIIFilter) Detect(_ context.Context, content string, _ map[string]interface{}) (Detection, error) {
	var (
		spans      []span
		reasons    []string
		counts     = make(map[string]int)
		confidence = 1.0
	)

	for _, p := range piiPatterns {
		if f.kinds != nil && !f.kinds[p.kind] {
			continue
		}
		for _, loc := range p.re.FindAllStringIndex(content, -1) {
			spans = append(spans, span{loc[0], loc[1]})
			counts[p.kind]++
			if p.kind == "ssn" && invalidSSNArea.MatchString(content[loc[0]:loc[1]]) {
				confidence *= ssnDiscount
			}
		}
		if counts[p.kind] > 0 {
			reasons = append(reasons, "pii detected: "+p.kind)
		}
	}

	if len(spans) == 0 {
		return Detection{}, nil
	}

	meta := make(map[string]interface{}, len(counts))
	for kind, n := range counts {
		meta[kind] = n
	}
	return Detection{
		Matched:    true,
		Reasons:    reasons,
		Metadata:   meta,
		Confidence: confidence,
		Redacted:   redactSpans(content, spans, f.redaction),
	}, nil
}

// redactSpans replaces each span with the redaction rune, one per byte,
// merging overlaps so double-matched regions are replaced once.
func redactSpans(content string, spans []span, redaction rune) string {
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	var b strings.Builder
	b.Grow(len(content))
	pos := 0
	for _, s := range spans {
		if s.start < pos {
			if s.end <= pos {
				continue
			}
			s.start = pos
		}
		b.WriteString(content[pos:s.start])
		b.WriteString(strings.Repeat(string(redaction), s.end-s.start))
		pos = s.end
	}
	b.WriteString(content[pos:])
	return b.String()
}

var _ Filter = (*PIIFilter)(nil)
