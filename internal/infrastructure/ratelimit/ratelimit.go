// Package ratelimit implements sliding-window counters keyed by client IP or
// submitter email. Counters live in process memory by default and in Redis
// when a shared store is configured.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Decision is the outcome of one Allow call
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, never below one
func (d Decision) RetryAfterSeconds() int {
	secs := int(math.Ceil(d.RetryAfter.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// CounterStore keeps the hit timestamps for each key.
//
// Hit counts the hits for key inside (now-window, now]. When fewer than limit
// are present it records a new hit at now. When the limit is reached it
// records nothing and reports the oldest hit still inside the window.
type CounterStore interface {
	Hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (count int, oldest time.Time, allowed bool, err error)
	Close() error
}

// Limiter applies one limit and window to a namespace of keys
type Limiter struct {
	store  CounterStore
	name   string
	limit  int
	window time.Duration
	now    func() time.Time
}

// Option customizes a Limiter
type Option func(*Limiter)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// NewLimiter creates a limiter storing its keys under name
func NewLimiter(store CounterStore, name string, limit int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		store:  store,
		name:   name,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Limit returns the configured maximum per window
func (l *Limiter) Limit() int {
	return l.limit
}

// Window returns the configured window length
func (l *Limiter) Window() time.Duration {
	return l.window
}

// Allow records one hit for key if it still fits in the window
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := l.now()
	count, oldest, allowed, err := l.store.Hit(ctx, l.key(key), l.limit, l.window, now)
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit %s: %w", l.name, err)
	}

	d := Decision{Allowed: allowed, Limit: l.limit}
	if allowed {
		d.Remaining = l.limit - count
		if d.Remaining < 0 {
			d.Remaining = 0
		}
		return d, nil
	}

	d.RetryAfter = oldest.Add(l.window).Sub(now)
	if d.RetryAfter < time.Second {
		d.RetryAfter = time.Second
	}
	return d, nil
}

func (l *Limiter) key(k string) string {
	return "ratelimit:" + l.name + ":" + k
}
