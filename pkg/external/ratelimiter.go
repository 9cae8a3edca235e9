package external

import (
	"context"
	"sync"
	"time"
)

// windowSlack is added to the computed wait so the oldest request has
// definitely aged out when the caller re-checks.
const windowSlack = 100 * time.Millisecond

// SlidingWindowLimiter admits at most limit requests per window, tracked as a
// ring of timestamps. Callers across goroutines serialize through Wait; the
// limiter is process-scoped.
type SlidingWindowLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	stamps []time.Time
}

// NewSlidingWindowLimiter creates a limiter admitting limit requests per window
func NewSlidingWindowLimiter(limit int, window time.Duration) *SlidingWindowLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &SlidingWindowLimiter{
		limit:  limit,
		window: window,
		stamps: make([]time.Time, 0, limit),
	}
}

// Wait blocks until a request slot is available or the context is done.
// When the window is saturated it sleeps until the oldest request ages out
// plus a small slack, then re-checks.
func (l *SlidingWindowLimiter) Wait(ctx context.Context) error {
	for {
		ok, wait := l.tryAcquire(time.Now())
		if ok {
			return nil
		}
		timer := time.NewTimer(wait + windowSlack)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// Allow reports whether a slot is immediately available, consuming it if so
func (l *SlidingWindowLimiter) Allow() bool {
	ok, _ := l.tryAcquire(time.Now())
	return ok
}

// Pending returns the number of requests currently inside the window
func (l *SlidingWindowLimiter) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(time.Now())
	return len(l.stamps)
}

// tryAcquire records a request timestamp if the window has room, otherwise
// returns how long until the oldest request ages out.
func (l *SlidingWindowLimiter) tryAcquire(now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(now)
	if len(l.stamps) < l.limit {
		l.stamps = append(l.stamps, now)
		return true, 0
	}
	return false, l.stamps[0].Add(l.window).Sub(now)
}

// prune drops timestamps that have aged out of the window
func (l *SlidingWindowLimiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.stamps) && !l.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
}
