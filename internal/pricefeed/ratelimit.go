package pricefeed

import (
	"sync"
	"time"
)

// windowLimiter caps requests per fixed one-minute window, matching the
// upstream API's per-minute quota accounting.
type windowLimiter struct {
	mu          sync.Mutex
	maxPerMin   int
	windowStart time.Time
	count       int
	now         func() time.Time
}

func newWindowLimiter(maxPerMin int) *windowLimiter {
	return &windowLimiter{
		maxPerMin:   maxPerMin,
		windowStart: time.Now(),
		now:         time.Now,
	}
}

// allow consumes one request slot if the current window has capacity.
func (l *windowLimiter) allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.windowStart) >= time.Minute {
		l.windowStart = now
		l.count = 0
	}
	if l.count >= l.maxPerMin {
		return false
	}
	l.count++
	return true
}
