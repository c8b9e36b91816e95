// Package runner wraps a job body with lock acquisition, retry policy and
// structured start/end reporting. Errors never escape a run as process
// faults: every outcome is folded into a Result and the scheduler keeps
// going.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sagepick "github.com/saiteja-velpula/sagepick.core"
	"github.com/saiteja-velpula/sagepick.core/job"
	"github.com/saiteja-velpula/sagepick.core/lock"
	"github.com/saiteja-velpula/sagepick.core/retry"
)

// Outcome classifies a finished run.
type Outcome int

const (
	// OutcomeSucceeded means the body completed.
	OutcomeSucceeded Outcome = iota
	// OutcomeSkipped means the fire was dropped without running the body:
	// another worker holds the lock, or the lock store was unreachable.
	// Expected steady-state behaviour under multi-worker deployment.
	OutcomeSkipped
	// OutcomeFailed means the body failed past the retry budget or with a
	// non-retryable error.
	OutcomeFailed
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

// Result reports one finished run.
type Result struct {
	Outcome  Outcome
	Attempts int
	Elapsed  time.Duration
	Err      error
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithLockTTLs sets the lock TTLs for the two duration classes. TTLs must
// exceed the expected body duration of their class; ClassLong bodies also
// renew at TTL/2.
func WithLockTTLs(short, long time.Duration) Option {
	return func(r *Runner) {
		if short > 0 {
			r.shortTTL = short
		}
		if long > 0 {
			r.longTTL = long
		}
	}
}

// Runner executes job definitions under the distributed lock and retry
// policy. Safe for concurrent use across different job keys; for a single
// key the lock serialises runs system-wide.
type Runner struct {
	mutex    *lock.Mutex
	policy   retry.Policy
	logger   *slog.Logger
	shortTTL time.Duration
	longTTL  time.Duration
}

// New creates a Runner.
func New(mutex *lock.Mutex, policy retry.Policy, opts ...Option) *Runner {
	r := &Runner{
		mutex:    mutex,
		policy:   policy,
		logger:   slog.Default(),
		shortTTL: 5 * time.Minute,
		longTTL:  15 * time.Minute,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes def once: acquire the lock, run the body under the retry
// policy, release the lock on every exit path. An in-flight attempt is
// allowed to finish during shutdown; only the waits between retries abort
// on context cancellation.
func (r *Runner) Run(ctx context.Context, def job.Definition) Result {
	start := time.Now()

	ttl := r.shortTTL
	if def.Class == job.ClassLong {
		ttl = r.longTTL
	}

	handle, err := r.mutex.Acquire(ctx, def.Key, ttl)
	if err != nil {
		if errors.Is(err, sagepick.ErrLockHeld) {
			r.logger.Info("job skipped, lock held elsewhere",
				slog.String("job", def.Key),
			)
		} else {
			r.logger.Warn("job skipped, lock store unavailable",
				slog.String("job", def.Key),
				slog.String("error", err.Error()),
			)
		}
		return Result{Outcome: OutcomeSkipped, Elapsed: time.Since(start), Err: err}
	}
	defer func() {
		// Release with a fresh context so a cancelled run still frees
		// the key instead of leaning on TTL expiry.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		r.mutex.Release(rctx, handle)
	}()

	if def.Class == job.ClassLong {
		stop := r.mutex.Keepalive(ctx, handle, ttl)
		defer stop()
	}

	r.logger.Info("job run started",
		slog.String("job", def.Key),
		slog.String("class", def.Class.String()),
	)

	attempt := 0
	for {
		attempt++
		err = r.runAttempt(ctx, def)
		if err == nil {
			elapsed := time.Since(start)
			r.logger.Info("job run succeeded",
				slog.String("job", def.Key),
				slog.Int("attempts", attempt),
				slog.Duration("elapsed", elapsed),
			)
			return Result{Outcome: OutcomeSucceeded, Attempts: attempt, Elapsed: elapsed}
		}

		delay, retryable := r.policy.Next(attempt, err)
		if !retryable {
			elapsed := time.Since(start)
			r.logger.Error("job run failed",
				slog.String("job", def.Key),
				slog.Int("attempts", attempt),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
			return Result{Outcome: OutcomeFailed, Attempts: attempt, Elapsed: elapsed, Err: err}
		}

		r.logger.Warn("job attempt failed, retrying",
			slog.String("job", def.Key),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			elapsed := time.Since(start)
			err = fmt.Errorf("run aborted during backoff: %w", ctx.Err())
			r.logger.Warn("job run aborted",
				slog.String("job", def.Key),
				slog.Int("attempts", attempt),
			)
			return Result{Outcome: OutcomeFailed, Attempts: attempt, Elapsed: elapsed, Err: err}
		case <-timer.C:
		}
	}
}

// runAttempt invokes the body, converting a panic into a non-retryable
// failure so one bad job cannot take the scheduler down.
func (r *Runner) runAttempt(ctx context.Context, def job.Definition) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: job body panic: %v", sagepick.ErrPermanent, p)
		}
	}()
	return def.Body(ctx)
}
