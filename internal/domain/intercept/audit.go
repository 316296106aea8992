package intercept

import (
	"sync"
	"time"

	"github.com/Modelgate-Labs/modelgate/internal/domain/guardrail"
)

const (
	// defaultAuditCapacity bounds the trail before truncation.
	defaultAuditCapacity = 10000
	// auditRetained is how many newest records survive truncation.
	auditRetained = 5000
)

// AuditTrail is a bounded in-memory verdict log. On overflow the oldest
// half is dropped so appends stay cheap; readers snapshot under the lock
// and may observe a truncated prefix.
type AuditTrail struct {
	mu       sync.Mutex
	records  []Record
	capacity int
	retained int
}

// NewAuditTrail creates a trail with the default 10000/5000 bounds.
func NewAuditTrail() *AuditTrail {
	return &AuditTrail{capacity: defaultAuditCapacity, retained: auditRetained}
}

// Append records one verdict, truncating to the retained bound when the
// capacity is reached.
func (a *AuditTrail) Append(rec Record) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.records) >= a.capacity {
		a.records = append(a.records[:0], a.records[len(a.records)-a.retained:]...)
	}
	a.records = append(a.records, rec)
}

// Len returns the current record count.
func (a *AuditTrail) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

// Query returns records matching all supplied filters, oldest first.
// Zero values mean "any".
func (a *AuditTrail) Query(sessionID string, action guardrail.Action, since time.Time) []Record {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []Record
	for _, rec := range a.records {
		if sessionID != "" && rec.SessionID != sessionID {
			continue
		}
		if action != "" && rec.Action != action {
			continue
		}
		if !since.IsZero() && rec.Timestamp.Before(since) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Stats summarizes the retained records.
func (a *AuditTrail) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := Stats{
		Total:    len(a.records),
		ByAction: make(map[guardrail.Action]int),
	}
	if stats.Total == 0 {
		return stats
	}
	var riskSum float64
	for _, rec := range a.records {
		stats.ByAction[rec.Action]++
		riskSum += rec.RiskScore
	}
	stats.BlockRate = float64(stats.ByAction[guardrail.ActionBlock]) / float64(stats.Total)
	stats.MeanRisk = riskSum / float64(stats.Total)
	return stats
}
