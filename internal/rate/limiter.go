// Package rate implements a sliding window limiter used to throttle
// inbound websocket frames from a single session.
package rate

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Limiter allows at most limit events per sliding window.
//
// Multiple goroutines may invoke methods on a Limiter simultaneously.
type Limiter struct {
	window  time.Duration
	limit   int
	history []time.Time
	mu      sync.Mutex
	clock   clock.Clock
}

func NewLimiter(window time.Duration, limit int) *Limiter {
	return NewLimiterWithClock(window, limit, clock.New())
}

func NewLimiterWithClock(window time.Duration, limit int, clk clock.Clock) *Limiter {
	return &Limiter{
		window: window,
		limit:  limit,
		clock:  clk,
	}
}

// Allow records an event and reports whether it fits in the window.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.slide(now)

	if len(l.history) >= l.limit {
		return false
	}

	l.history = append(l.history, now)

	return true
}

// Remaining returns how many events currently fit in the window.
func (l *Limiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.slide(l.clock.Now())
	return l.limit - len(l.history)
}

func (l *Limiter) slide(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.history) && l.history[i].Before(cutoff) {
		i++
	}
	l.history = append(l.history[:0:0], l.history[i:]...)
}
