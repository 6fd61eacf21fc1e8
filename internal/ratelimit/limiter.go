// Package ratelimit spaces outbound requests to the feed service.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// DefaultInterval is the minimum spacing between two feed requests.
const DefaultInterval = time.Second

// Limiter enforces a minimum interval between acquisitions. A Limiter is owned
// by the client that uses it; share one explicitly by handing the same value
// to several clients.
type Limiter struct {
	interval time.Duration
	limiter  *rate.Limiter
}

// New creates a Limiter. A non-positive interval falls back to DefaultInterval.
func New(interval time.Duration) *Limiter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Limiter{
		interval: interval,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Interval returns the enforced spacing.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// Acquire blocks until at least one interval has passed since the previous
// acquisition. The first call returns immediately. It fails only when ctx is
// done before the slot opens.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}
	return nil
}
