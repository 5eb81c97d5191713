// Package ratelimit provides a fixed-window request limiter shared through
// Redis, so every replica draws from the same budget.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// State is the limiter's view of the current window.
type State struct {
	Count   int64
	Limit   int64
	ResetAt time.Time
}

// Allowed reports whether the request that produced this state may proceed.
func (s State) Allowed() bool {
	return s.Count <= s.Limit
}

// WindowLimiter admits at most limit requests per window.
type WindowLimiter struct {
	client *redis.Client
	key    string
	limit  int64
	window time.Duration
	now    func() time.Time
}

// NewWindowLimiter creates a limiter storing counters under key.
func NewWindowLimiter(client *redis.Client, key string, limit int, window time.Duration) *WindowLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &WindowLimiter{
		client: client,
		key:    key,
		limit:  int64(limit),
		window: window,
		now:    time.Now,
	}
}

// Allow counts one request against the current window.
func (l *WindowLimiter) Allow(ctx context.Context) (State, error) {
	now := l.now()
	start := now.Truncate(l.window)
	key := fmt.Sprintf("%s:%d", l.key, start.Unix())

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 2*l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return State{}, fmt.Errorf("rate limit counter: %w", err)
	}

	return State{
		Count:   incr.Val(),
		Limit:   l.limit,
		ResetAt: start.Add(l.window),
	}, nil
}

// Wait blocks until a request is admitted or ctx ends.
func (l *WindowLimiter) Wait(ctx context.Context) error {
	for {
		state, err := l.Allow(ctx)
		if err != nil {
			return err
		}
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
