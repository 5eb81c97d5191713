package ratelimit

import (
	"context"
	"sync"
	"time"
)

// LocalLimiter is the in-process fixed-window limiter used when Redis is
// disabled. Its budget is per replica.
type LocalLimiter struct {
	mu     sync.Mutex
	limit  int64
	window time.Duration
	start  time.Time
	count  int64
	now    func() time.Time
}

// NewLocalLimiter creates a limiter admitting limit requests per window
func NewLocalLimiter(limit int, window time.Duration) *LocalLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &LocalLimiter{limit: int64(limit), window: window, now: time.Now}
}

// Allow counts one request against the current window
func (l *LocalLimiter) Allow(ctx context.Context) (State, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := l.now().Truncate(l.window)
	if !start.Equal(l.start) {
		l.start = start
		l.count = 0
	}
	l.count++

	return State{Count: l.count, Limit: l.limit, ResetAt: start.Add(l.window)}, nil
}

// Wait blocks until a request is admitted or ctx ends
func (l *LocalLimiter) Wait(ctx context.Context) error {
	for {
		state, _ := l.Allow(ctx)
		if state.Allowed() {
			return nil
		}

		timer := time.NewTimer(time.Until(state.ResetAt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
