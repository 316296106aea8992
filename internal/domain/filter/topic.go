package filter

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// TopicFilter flags content mentioning blocked topics. Each topic is a
// keyword group compiled into one disjunctive word-boundary regex. An
// optional allowed list exempts topics from the block set.
type TopicFilter struct {
	blocked map[string]*regexp.Regexp
	allowed map[string]bool
}

// NewTopicFilter compiles the keyword groups. Keys name the topics;
// values are the keywords that evidence them.
func NewTopicFilter(blocked map[string][]string, allowedTopics []string) (*TopicFilter, error) {
	f := &TopicFilter{
		blocked: make(map[string]*regexp.Regexp, len(blocked)),
		allowed: make(map[string]bool, len(allowedTopics)),
	}
	for _, topic := range allowedTopics {
		f.allowed[topic] = true
	}
	for topic, keywords := range blocked {
		if len(keywords) == 0 {
			return nil, fmt.Errorf("topic %q has no keywords", topic)
		}
		quoted := make([]string, len(keywords))
		for i, kw := range keywords {
			quoted[i] = regexp.QuoteMeta(kw)
		}
		re, err := regexp.Compile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
		if err != nil {
			return nil, fmt.Errorf("compile topic %q: %w", topic, err)
		}
		f.blocked[topic] = re
	}
	return f, nil
}

// Name implements Filter.
func (f *TopicFilter) Name() string { return "topic" }

// Detect implements Filter.
func (f *TopicFilter) Detect(_ context.Context, content string, _ map[string]interface{}) (Detection, error) {
	var hits []string
	for topic, re := range f.blocked {
		if f.allowed[topic] {
			continue
		}
		if re.MatchString(content) {
			hits = append(hits, topic)
		}
	}
	if len(hits) == 0 {
		return Detection{}, nil
	}

	reasons := make([]string, 0, len(hits))
	for _, topic := range hits {
		reasons = append(reasons, "blocked topic: "+topic)
	}
	return Detection{
		Matched:    true,
		Reasons:    reasons,
		Metadata:   map[string]interface{}{"topics": hits},
		Confidence: 0.85,
	}, nil
}

var _ Filter = (*TopicFilter)(nil)
