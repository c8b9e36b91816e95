// Package retry provides the bounded backoff policy applied to every job
// run. Strategies are stateless and safe for concurrent use; attempt
// counts live with the caller and reset on every run.
package retry

import (
	"errors"
	"math"
	"math/rand/v2"
	"time"

	sagepick "github.com/saiteja-velpula/sagepick.core"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n (1-indexed).
	// Attempt 1 is the first retry after the initial failure.
	Delay(attempt int) time.Duration
}

// Exponential doubles the delay each attempt.
// Delay = min(Initial * 2^(attempt-1), Max).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential backoff strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * 2^(attempt-1), capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	d := time.Duration(float64(e.Initial) * math.Pow(2, float64(attempt-1)))
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// ExponentialEqualJitter applies equal jitter to an exponential base:
// a random value in [base/2, base] where base doubles each attempt up to
// Max. Unlike full jitter, the sequence of delays stays non-decreasing
// until the cap is reached (attempt n's maximum equals attempt n+1's
// minimum), which keeps retry pacing predictable while still spreading
// simultaneous retries apart.
type ExponentialEqualJitter struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponentialEqualJitter creates an exponential backoff with equal jitter.
func NewExponentialEqualJitter(initial, maxDelay time.Duration) *ExponentialEqualJitter {
	return &ExponentialEqualJitter{Initial: initial, Max: maxDelay}
}

// Delay returns a random duration in [base/2, base] with
// base = min(Initial * 2^(attempt-1), Max).
func (e *ExponentialEqualJitter) Delay(attempt int) time.Duration {
	base := float64(e.Initial) * math.Pow(2, float64(attempt-1))
	if e.Max > 0 && base > float64(e.Max) {
		base = float64(e.Max)
	}
	half := base / 2
	return time.Duration(half + rand.Float64()*half) //nolint:gosec // jitter intentionally uses non-crypto rand
}

// Policy bounds how a single job run retries. It is a value, passed into
// the runner explicitly rather than wrapped around bodies implicitly.
type Policy struct {
	// MaxAttempts is the total attempt budget, including the first one.
	MaxAttempts int
	// Strategy computes each retry delay.
	Strategy Strategy
}

// Next decides the fate of a failed attempt. attempt is the 1-indexed
// number of the attempt that just failed. It returns the delay before the
// next attempt and true, or zero and false to give up.
//
// Only retryable causes (transient faults, rate limiting, storage write
// failures) are retried; anything else fails fast. When the server asked
// for a specific cooldown via RateLimitError, that cooldown wins over the
// computed backoff if it is longer.
func (p Policy) Next(attempt int, cause error) (time.Duration, bool) {
	if !sagepick.Retryable(cause) {
		return 0, false
	}
	if attempt >= p.MaxAttempts {
		return 0, false
	}
	d := p.Strategy.Delay(attempt)
	var rl *sagepick.RateLimitError
	if errors.As(cause, &rl) && rl.RetryAfter > d {
		d = rl.RetryAfter
	}
	return d, true
}

// DefaultPolicy returns the policy used when none is configured:
// 5 attempts with equal-jitter exponential backoff, 1s initial, 1m cap.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		Strategy:    NewExponentialEqualJitter(time.Second, time.Minute),
	}
}
