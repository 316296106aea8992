package intercept

import (
	"sync"
	"time"
)

const (
	// rateWindow is the fixed admission window.
	rateWindow = time.Minute
	// sweepInterval paces the idle-session sweeper.
	sweepInterval = 5 * time.Minute
)

// RateLimiter is a fixed-window per-session admission counter. Each
// admission first expires timestamps older than the window, so cleanup
// needs no separate pass for active sessions; a background sweeper
// reclaims buckets for sessions that went idle.
type RateLimiter struct {
	mu       sync.Mutex
	perMin   int
	sessions map[string][]time.Time
	now      func() time.Time

	stopOnce sync.Once
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewRateLimiter creates a limiter admitting perMin calls per session per
// minute and starts the idle-session sweeper.
func NewRateLimiter(perMin int) *RateLimiter {
	rl := &RateLimiter{
		perMin:   perMin,
		sessions: make(map[string][]time.Time),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
	rl.wg.Add(1)
	go rl.sweep()
	return rl
}

// Allow records an admission attempt for the session and reports whether
// it fits in the window. Empty session ids share the "default" bucket.
func (rl *RateLimiter) Allow(sessionID string) bool {
	if sessionID == "" {
		sessionID = "default"
	}
	now := rl.now()
	cutoff := now.Add(-rateWindow)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	kept := rl.sessions[sessionID][:0]
	for _, ts := range rl.sessions[sessionID] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= rl.perMin {
		rl.sessions[sessionID] = kept
		return false
	}
	rl.sessions[sessionID] = append(kept, now)
	return true
}

// Close stops the sweeper. Safe to call more than once.
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stopChan) })
	rl.wg.Wait()
}

// sweep drops buckets whose every timestamp has expired.
func (rl *RateLimiter) sweep() {
	defer rl.wg.Done()
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stopChan:
			return
		case <-ticker.C:
			cutoff := rl.now().Add(-rateWindow)
			rl.mu.Lock()
			for id, stamps := range rl.sessions {
				idle := true
				for _, ts := range stamps {
					if ts.After(cutoff) {
						idle = false
						break
					}
				}
				if idle {
					delete(rl.sessions, id)
				}
			}
			rl.mu.Unlock()
		}
	}
}
