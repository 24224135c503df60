package gateway

import (
	"sync"
	"time"
)

// RateLimiter paces outbound requests so the broker's limits are not hit in
// the first place; Guard handles the case where they are hit anyway.
type RateLimiter interface {
	Wait()
}

// TokenBucketLimiter paces callers to a steady per-second request quota with
// a burst allowance. Each Wait reserves the next send slot up front, so
// concurrent callers queue in reservation order instead of racing for a
// shared token count.
type TokenBucketLimiter struct {
	interval time.Duration // steady-state gap between requests
	burst    int

	mu   sync.Mutex
	next time.Time // earliest instant the next slot may be taken

	now   func() time.Time
	sleep func(time.Duration)
}

// NewTokenBucketLimiter allows perSecond sustained requests with up to burst
// of them back to back.
func NewTokenBucketLimiter(perSecond float64, burst int) *TokenBucketLimiter {
	if perSecond <= 0 {
		perSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &TokenBucketLimiter{
		interval: time.Duration(float64(time.Second) / perSecond),
		burst:    burst,
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// Wait blocks until the caller's reserved slot comes up. A caller arriving
// after an idle stretch pays nothing: idle time accrues up to burst slots.
func (l *TokenBucketLimiter) Wait() {
	l.mu.Lock()
	now := l.now()
	earliest := now.Add(-time.Duration(l.burst-1) * l.interval)
	if l.next.Before(earliest) {
		l.next = earliest
	}
	slot := l.next
	l.next = slot.Add(l.interval)
	l.mu.Unlock()

	if d := slot.Sub(now); d > 0 {
		l.sleep(d)
	}
}
