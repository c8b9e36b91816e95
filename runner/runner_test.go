package runner_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sagepick "github.com/saiteja-velpula/sagepick.core"
	"github.com/saiteja-velpula/sagepick.core/job"
	"github.com/saiteja-velpula/sagepick.core/lock"
	"github.com/saiteja-velpula/sagepick.core/retry"
	"github.com/saiteja-velpula/sagepick.core/runner"
	"github.com/saiteja-velpula/sagepick.core/schedule"
	"github.com/saiteja-velpula/sagepick.core/store/memory"
)

func fastPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: 3,
		Strategy:    retry.NewExponential(time.Millisecond, 10*time.Millisecond),
	}
}

func testDef(key string, body job.Body) job.Definition {
	return job.Definition{
		Key:     key,
		Trigger: schedule.Interval{Every: time.Minute},
		Class:   job.ClassShort,
		Body:    body,
	}
}

func TestRunner_SuccessReleasesLock(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	r := runner.New(lock.New(store), fastPolicy())

	calls := 0
	res := r.Run(ctx, testDef("discovery", func(context.Context) error {
		calls++
		return nil
	}))

	if res.Outcome != runner.OutcomeSucceeded {
		t.Fatalf("outcome = %v, want succeeded (err: %v)", res.Outcome, res.Err)
	}
	if res.Attempts != 1 || calls != 1 {
		t.Errorf("attempts = %d, calls = %d, want 1 and 1", res.Attempts, calls)
	}
	if _, held := store.LockOwner("discovery"); held {
		t.Error("lock still held after successful run")
	}
}

func TestRunner_SkipsWhenLockHeld(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	m := lock.New(store)
	r := runner.New(m, fastPolicy())

	if _, err := m.Acquire(ctx, "discovery", time.Minute); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	ran := false
	res := r.Run(ctx, testDef("discovery", func(context.Context) error {
		ran = true
		return nil
	}))

	if res.Outcome != runner.OutcomeSkipped {
		t.Errorf("outcome = %v, want skipped", res.Outcome)
	}
	if ran {
		t.Error("body ran despite held lock")
	}
	if !errors.Is(res.Err, sagepick.ErrLockHeld) {
		t.Errorf("err = %v, want ErrLockHeld", res.Err)
	}
}

type unreachableLockStore struct{}

func (unreachableLockStore) SetIfAbsent(context.Context, string, string, time.Duration) (bool, error) {
	return false, errors.New("no route to host")
}

func (unreachableLockStore) CompareAndDelete(context.Context, string, string) (bool, error) {
	return false, errors.New("no route to host")
}

func (unreachableLockStore) CompareAndExpire(context.Context, string, string, time.Duration) (bool, error) {
	return false, errors.New("no route to host")
}

func TestRunner_SkipsWhenLockStoreUnreachable(t *testing.T) {
	r := runner.New(lock.New(unreachableLockStore{}), fastPolicy())

	ran := false
	res := r.Run(context.Background(), testDef("discovery", func(context.Context) error {
		ran = true
		return nil
	}))

	if res.Outcome != runner.OutcomeSkipped {
		t.Errorf("outcome = %v, want skipped", res.Outcome)
	}
	if ran {
		t.Error("body ran without holding a lock")
	}
	if !errors.Is(res.Err, sagepick.ErrLockUnavailable) {
		t.Errorf("err = %v, want ErrLockUnavailable", res.Err)
	}
}

func TestRunner_RetriesTransientThenSucceeds(t *testing.T) {
	ctx := context.Background()
	r := runner.New(lock.New(memory.New()), fastPolicy())

	calls := 0
	res := r.Run(ctx, testDef("discovery", func(context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("%w: flaky upstream", sagepick.ErrTransient)
		}
		return nil
	}))

	if res.Outcome != runner.OutcomeSucceeded {
		t.Fatalf("outcome = %v, want succeeded (err: %v)", res.Outcome, res.Err)
	}
	if res.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", res.Attempts)
	}
}

func TestRunner_ExhaustsRetryBudget(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	r := runner.New(lock.New(store), fastPolicy())

	calls := 0
	res := r.Run(ctx, testDef("discovery", func(context.Context) error {
		calls++
		return fmt.Errorf("%w: still down", sagepick.ErrTransient)
	}))

	if res.Outcome != runner.OutcomeFailed {
		t.Fatalf("outcome = %v, want failed", res.Outcome)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want the full budget of 3", calls)
	}
	if _, held := store.LockOwner("discovery"); held {
		t.Error("lock still held after failed run")
	}
}

func TestRunner_FailsFastOnPermanentError(t *testing.T) {
	ctx := context.Background()
	r := runner.New(lock.New(memory.New()), fastPolicy())

	calls := 0
	res := r.Run(ctx, testDef("discovery", func(context.Context) error {
		calls++
		return fmt.Errorf("%w: bad request", sagepick.ErrPermanent)
	}))

	if res.Outcome != runner.OutcomeFailed {
		t.Fatalf("outcome = %v, want failed", res.Outcome)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want no retry of a permanent error", calls)
	}
}

func TestRunner_PanicBecomesFailedResult(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	r := runner.New(lock.New(store), fastPolicy())

	res := r.Run(ctx, testDef("discovery", func(context.Context) error {
		panic("boom")
	}))

	if res.Outcome != runner.OutcomeFailed {
		t.Fatalf("outcome = %v, want failed", res.Outcome)
	}
	if res.Attempts != 1 {
		t.Errorf("attempts = %d, want 1 (panics are not retried)", res.Attempts)
	}
	if !errors.Is(res.Err, sagepick.ErrPermanent) {
		t.Errorf("err = %v, want ErrPermanent", res.Err)
	}
	if _, held := store.LockOwner("discovery"); held {
		t.Error("lock still held after panicking run")
	}
}

func TestRunner_CancelDuringBackoffAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := retry.Policy{
		MaxAttempts: 5,
		Strategy:    retry.NewExponential(time.Hour, time.Hour),
	}
	r := runner.New(lock.New(memory.New()), policy)

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	res := r.Run(ctx, testDef("discovery", func(context.Context) error {
		return fmt.Errorf("%w: flaky", sagepick.ErrTransient)
	}))

	if res.Outcome != runner.OutcomeFailed {
		t.Fatalf("outcome = %v, want failed", res.Outcome)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("run took %v, want prompt abort of the backoff wait", elapsed)
	}
	if !errors.Is(res.Err, context.Canceled) {
		t.Errorf("err = %v, want wrapped context.Canceled", res.Err)
	}
}

func TestRunner_TwoRunnersNeverOverlapOnSameKey(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	r1 := runner.New(lock.New(store), fastPolicy())
	r2 := runner.New(lock.New(store), fastPolicy())

	var mu sync.Mutex
	inFlight, maxInFlight, runs := 0, 0, 0

	body := func(context.Context) error {
		mu.Lock()
		inFlight++
		runs++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		for _, r := range []*runner.Runner{r1, r2} {
			wg.Add(1)
			go func(r *runner.Runner) {
				defer wg.Done()
				r.Run(ctx, testDef("discovery", body))
			}(r)
		}
	}
	wg.Wait()

	if maxInFlight > 1 {
		t.Errorf("max concurrent bodies = %d, want 1", maxInFlight)
	}
	if runs == 0 {
		t.Error("no body ran at all")
	}
}
