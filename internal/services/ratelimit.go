package services

import (
	"context"
	"sync"
	"time"
)

// callLimiter spaces provider calls so that at most N fit into any 60-second
// window. Excess callers wait for their slot; nothing is ever dropped. The
// check-and-reserve runs under a mutex so concurrent callers cannot burst
// past the limit, but the wait itself happens outside the lock.
type callLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	nextSlot time.Time

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

func newCallLimiter(perMinute int) *callLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	return &callLimiter{
		interval: time.Minute / time.Duration(perMinute),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Wait blocks until the caller may proceed. The slot is reserved before
// sleeping, so callers queue in arrival order.
func (l *callLimiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	now := l.now()
	slot := l.nextSlot
	if slot.Before(now) {
		slot = now
	}
	l.nextSlot = slot.Add(l.interval)
	l.mu.Unlock()

	return l.sleep(ctx, slot.Sub(now))
}
