// Package ratelimit gates every catalog API call behind a token-paced
// limiter so the configured requests-per-second budget is never exceeded
// client-side, and server-imposed cooldowns suspend all callers.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Option configures a Limiter.
type Option func(*Limiter)

// WithBurst sets the token-bucket burst size. The default of 1 paces
// requests evenly at 1/rate spacing, which keeps the admitted count in any
// sliding one-second window at or below the configured rate.
func WithBurst(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.limiter.SetBurst(n)
		}
	}
}

// Limiter is the pacing gate in front of the external catalog API.
// Safe for concurrent use.
type Limiter struct {
	limiter *rate.Limiter

	mu          sync.Mutex
	pausedUntil time.Time
}

// New creates a Limiter admitting perSecond requests per second.
func New(perSecond float64, opts ...Option) *Limiter {
	l := &Limiter{limiter: rate.NewLimiter(rate.Limit(perSecond), 1)}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Wait blocks until a request is permitted or the context is cancelled.
// Every call to the catalog API must pass through here first.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	until := l.pausedUntil
	l.mu.Unlock()

	if wait := time.Until(until); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return l.limiter.Wait(ctx)
}

// Pause suspends all callers for d, on top of the normal pacing. Called
// when the server rate-limits us despite client-side pacing; resuming
// before the server's cooldown would only earn another rejection.
func (l *Limiter) Pause(d time.Duration) {
	if d <= 0 {
		return
	}
	until := time.Now().Add(d)
	l.mu.Lock()
	if until.After(l.pausedUntil) {
		l.pausedUntil = until
	}
	l.mu.Unlock()
}
