package rules

import (
	"sync"
	"time"
)

// Default rate limit for rule-triggered offers.
const (
	DefaultLimit  = 10
	DefaultWindow = time.Hour
)

// Limiter admits at most limit events in any rolling window. It is local
// to the process and forgets everything on restart.
type Limiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	now    func() time.Time
	stamps []time.Time // accepted events, oldest first
}

// NewLimiter creates a sliding-window limiter. A nil now uses time.Now.
func NewLimiter(limit int, window time.Duration, now func() time.Time) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if now == nil {
		now = time.Now
	}
	return &Limiter{limit: limit, window: window, now: now}
}

// Allow records an event and reports whether it is within the limit.
// Suppressed events are not recorded.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.evict(now)
	if len(l.stamps) >= l.limit {
		return false
	}
	l.stamps = append(l.stamps, now)
	return true
}

// Remaining returns how many events would be admitted right now.
func (l *Limiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evict(l.now())
	return l.limit - len(l.stamps)
}

// evict drops stamps that have aged past the window.
func (l *Limiter) evict(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.stamps) && !l.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
}
