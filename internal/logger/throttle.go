package logger

import (
	"sync"
	"time"
)

// Throttle reports whether a rate-limited log line may be written. It allows
// at most one line per interval; the first call always passes.
type Throttle struct {
	interval time.Duration
	mu       sync.Mutex
	last     time.Time
}

// NewThrottle returns a Throttle allowing one line per interval.
func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{interval: interval}
}

// Allow records now as the last emission and returns true when the previous
// emission is at least one interval old.
func (t *Throttle) Allow(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.last.IsZero() && now.Sub(t.last) < t.interval {
		return false
	}
	t.last = now

	return true
}
