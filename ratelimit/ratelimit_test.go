package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/saiteja-velpula/sagepick.core/ratelimit"
)

func TestLimiter_PacesRequestsEvenly(t *testing.T) {
	// 50 rps means one admission every 20ms. Five sequential waits after
	// the free first token need at least 4 * 20ms.
	l := ratelimit.New(50)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := l.Wait(ctx); err != nil {
			t.Fatalf("Wait %d: %v", i, err)
		}
	}
	elapsed := time.Since(start)

	if min := 80 * time.Millisecond; elapsed < min {
		t.Errorf("5 waits took %v, want at least %v", elapsed, min)
	}
}

func TestLimiter_WindowNeverExceedsRate(t *testing.T) {
	// With burst 1 the limiter admits at most rate+1 requests in any
	// one-second window (the +1 is the token available at window start).
	const perSecond = 20
	l := ratelimit.New(perSecond)
	ctx := context.Background()

	var stamps []time.Time
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if err := l.Wait(ctx); err != nil {
			t.Fatalf("Wait: %v", err)
		}
		stamps = append(stamps, time.Now())
	}

	for i := range stamps {
		j := i
		for j < len(stamps) && stamps[j].Sub(stamps[i]) < time.Second {
			j++
		}
		if got := j - i; got > perSecond+1 {
			t.Fatalf("%d admissions within one second, want at most %d", got, perSecond+1)
		}
	}
}

func TestLimiter_PauseSuspendsCallers(t *testing.T) {
	l := ratelimit.New(1000)
	ctx := context.Background()

	if err := l.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	l.Pause(100 * time.Millisecond)
	start := time.Now()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("Wait after Pause: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("Wait returned after %v, want the 100ms cooldown honored", elapsed)
	}
}

func TestLimiter_PauseNeverShortens(t *testing.T) {
	l := ratelimit.New(1000)
	ctx := context.Background()

	l.Pause(100 * time.Millisecond)
	l.Pause(10 * time.Millisecond)

	start := time.Now()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("Wait returned after %v, shorter Pause must not cut the cooldown", elapsed)
	}
}

func TestLimiter_WaitHonorsContextDuringPause(t *testing.T) {
	l := ratelimit.New(1000)
	l.Pause(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := l.Wait(ctx)
	if err == nil {
		t.Fatal("Wait returned nil, want context error during cooldown")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Wait blocked %v past cancellation", elapsed)
	}
}
