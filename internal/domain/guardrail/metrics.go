package guardrail

import (
	"sync"
	"time"
)

// CheckpointStats is the per-checkpoint slice of the pipeline metrics.
type CheckpointStats struct {
	Total       int64
	Passed      int64
	Blocked     int64
	MeanLatency time.Duration
}

// Stats is a point-in-time snapshot of pipeline metrics.
type Stats struct {
	Total       int64
	Passed      int64
	Blocked     int64
	Modified    int64
	Errors      int64
	MeanLatency time.Duration
	Checkpoints map[string]CheckpointStats
}

// Metrics tracks pipeline counters and running-mean latencies. The running
// mean is updated as mu_new = (mu_old*(n-1)+x)/n under the lock so the
// (n, mu) pair stays consistent.
type Metrics struct {
	mu          sync.Mutex
	total       int64
	passed      int64
	blocked     int64
	modified    int64
	errors      int64
	meanLatency time.Duration
	checkpoints map[string]*CheckpointStats
}

// NewMetrics creates an empty metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{checkpoints: make(map[string]*CheckpointStats)}
}

// RecordRequest records one pipeline invocation outcome. hadError marks
// an invocation where at least one checkpoint failed; it counts once per
// invocation no matter how many checkpoints failed.
func (m *Metrics) RecordRequest(action Action, elapsed time.Duration, hadError bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total++
	switch action {
	case ActionBlock:
		m.blocked++
	case ActionModify:
		m.modified++
		m.passed++
	default:
		m.passed++
	}
	if hadError {
		m.errors++
	}
	m.meanLatency = runningMean(m.meanLatency, m.total, elapsed)
}

// RecordCheckpoint records one checkpoint invocation.
func (m *Metrics) RecordCheckpoint(name string, action Action, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs, ok := m.checkpoints[name]
	if !ok {
		cs = &CheckpointStats{}
		m.checkpoints[name] = cs
	}
	cs.Total++
	if action == ActionBlock {
		cs.Blocked++
	} else {
		cs.Passed++
	}
	cs.MeanLatency = runningMean(cs.MeanLatency, cs.Total, elapsed)
}

// Snapshot returns a copy of the current metrics.
func (m *Metrics) Snapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Stats{
		Total:       m.total,
		Passed:      m.passed,
		Blocked:     m.blocked,
		Modified:    m.modified,
		Errors:      m.errors,
		MeanLatency: m.meanLatency,
		Checkpoints: make(map[string]CheckpointStats, len(m.checkpoints)),
	}
	for name, cs := range m.checkpoints {
		s.Checkpoints[name] = *cs
	}
	return s
}

// Reset clears all counters.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total, m.passed, m.blocked, m.modified, m.errors = 0, 0, 0, 0, 0
	m.meanLatency = 0
	m.checkpoints = make(map[string]*CheckpointStats)
}

func runningMean(mean time.Duration, n int64, x time.Duration) time.Duration {
	if n <= 0 {
		return x
	}
	return time.Duration((int64(mean)*(n-1) + int64(x)) / n)
}
