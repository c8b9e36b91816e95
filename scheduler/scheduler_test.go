package scheduler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/saiteja-velpula/sagepick.core/job"
	"github.com/saiteja-velpula/sagepick.core/lock"
	"github.com/saiteja-velpula/sagepick.core/retry"
	"github.com/saiteja-velpula/sagepick.core/runner"
	"github.com/saiteja-velpula/sagepick.core/schedule"
	"github.com/saiteja-velpula/sagepick.core/scheduler"
	"github.com/saiteja-velpula/sagepick.core/store/memory"
)

// directRunner invokes bodies without locking, for tests that only
// exercise the tick loop.
type directRunner struct{}

func (directRunner) Run(ctx context.Context, def job.Definition) runner.Result {
	start := time.Now()
	err := def.Body(ctx)
	res := runner.Result{Outcome: runner.OutcomeSucceeded, Attempts: 1, Elapsed: time.Since(start), Err: err}
	if err != nil {
		res.Outcome = runner.OutcomeFailed
	}
	return res
}

func lockedRunner(store *memory.Store) *runner.Runner {
	policy := retry.Policy{MaxAttempts: 1, Strategy: retry.NewExponential(time.Millisecond, time.Millisecond)}
	return runner.New(lock.New(store), policy)
}

func intervalDef(key string, every, startDelay time.Duration, body job.Body) job.Definition {
	return job.Definition{
		Key:     key,
		Trigger: schedule.Interval{Every: every, StartDelay: startDelay},
		Class:   job.ClassShort,
		Body:    body,
	}
}

func TestScheduler_RegisterRejectsDuplicatesAndIncompleteDefs(t *testing.T) {
	s := scheduler.New(directRunner{})

	def := intervalDef("discovery", time.Minute, 0, func(context.Context) error { return nil })
	if err := s.Register(def); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := s.Register(def); err == nil {
		t.Error("duplicate Register succeeded, want error")
	}
	if err := s.Register(job.Definition{Key: "broken"}); err == nil {
		t.Error("Register without trigger and body succeeded, want error")
	}
}

func TestScheduler_FiresDueJobRepeatedly(t *testing.T) {
	var mu sync.Mutex
	fires := 0

	s := scheduler.New(directRunner{}, scheduler.WithTickInterval(5*time.Millisecond))
	def := intervalDef("discovery", 30*time.Millisecond, 10*time.Millisecond, func(context.Context) error {
		mu.Lock()
		fires++
		mu.Unlock()
		return nil
	})
	if err := s.Register(def); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(200 * time.Millisecond)
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	mu.Lock()
	got := fires
	mu.Unlock()
	// 10ms start delay then every 30ms over ~200ms: expect several fires,
	// with slack for scheduling noise.
	if got < 3 {
		t.Errorf("fires = %d, want at least 3", got)
	}
	if got > 8 {
		t.Errorf("fires = %d, want cadence respected (at most 8)", got)
	}
}

func TestScheduler_SlowRunSkipsMissedOccurrences(t *testing.T) {
	var mu sync.Mutex
	var fireTimes []time.Time

	s := scheduler.New(directRunner{}, scheduler.WithTickInterval(5*time.Millisecond))
	// Body takes ~3 intervals to finish; the schedule must snap forward
	// instead of firing a backlog burst.
	def := intervalDef("discovery", 30*time.Millisecond, 10*time.Millisecond, func(context.Context) error {
		mu.Lock()
		fireTimes = append(fireTimes, time.Now())
		mu.Unlock()
		time.Sleep(100 * time.Millisecond)
		return nil
	})
	if err := s.Register(def); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(400 * time.Millisecond)
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(fireTimes) < 2 {
		t.Fatalf("fires = %d, want at least 2", len(fireTimes))
	}
	for i := 1; i < len(fireTimes); i++ {
		if gap := fireTimes[i].Sub(fireTimes[i-1]); gap < 90*time.Millisecond {
			t.Errorf("gap between fires %d and %d = %v, want at least the body duration", i-1, i, gap)
		}
	}
}

func TestScheduler_NeverOverlapsRunsOfOneJob(t *testing.T) {
	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0

	s := scheduler.New(directRunner{}, scheduler.WithTickInterval(2*time.Millisecond))
	def := intervalDef("discovery", 5*time.Millisecond, 0, func(context.Context) error {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return nil
	})
	if err := s.Register(def); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(150 * time.Millisecond)
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if maxInFlight != 1 {
		t.Errorf("max concurrent runs of one job = %d, want 1", maxInFlight)
	}
}

func TestScheduler_LongJobDoesNotBlockOtherJobs(t *testing.T) {
	var mu sync.Mutex
	fastFires := 0
	slowStarted := make(chan struct{})

	s := scheduler.New(directRunner{}, scheduler.WithTickInterval(2*time.Millisecond))
	slow := intervalDef("export", time.Hour, 0, func(context.Context) error {
		close(slowStarted)
		time.Sleep(150 * time.Millisecond)
		return nil
	})
	fast := intervalDef("discovery", 10*time.Millisecond, 0, func(context.Context) error {
		mu.Lock()
		fastFires++
		mu.Unlock()
		return nil
	})
	if err := s.Register(slow); err != nil {
		t.Fatalf("Register slow: %v", err)
	}
	if err := s.Register(fast); err != nil {
		t.Fatalf("Register fast: %v", err)
	}

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-slowStarted
	time.Sleep(100 * time.Millisecond)
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	mu.Lock()
	got := fastFires
	mu.Unlock()
	if got < 3 {
		t.Errorf("fast job fired %d times while slow job ran, want at least 3", got)
	}
}

func TestScheduler_StopIsIdempotent(t *testing.T) {
	s := scheduler.New(directRunner{}, scheduler.WithTickInterval(2*time.Millisecond))
	def := intervalDef("discovery", time.Hour, time.Hour, func(context.Context) error { return nil })
	if err := s.Register(def); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestScheduler_StopWaitsForInFlightRun(t *testing.T) {
	finished := false
	var mu sync.Mutex

	s := scheduler.New(directRunner{}, scheduler.WithTickInterval(2*time.Millisecond))
	def := intervalDef("discovery", time.Hour, 0, func(context.Context) error {
		time.Sleep(80 * time.Millisecond)
		mu.Lock()
		finished = true
		mu.Unlock()
		return nil
	})
	if err := s.Register(def); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(20 * time.Millisecond) // let the first fire start

	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if !finished {
		t.Error("Stop returned before the in-flight run finished")
	}
}

func TestScheduler_StopTimesOutOnStuckRun(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	s := scheduler.New(directRunner{}, scheduler.WithTickInterval(2*time.Millisecond))
	def := intervalDef("discovery", time.Hour, 0, func(context.Context) error {
		<-release
		return nil
	})
	if err := s.Register(def); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.Stop(stopCtx); err == nil {
		t.Error("Stop returned nil with a stuck run, want deadline error")
	}
}

func TestScheduler_TwoInstancesShareWorkWithoutOverlap(t *testing.T) {
	store := memory.New()

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

		time.Sleep(15 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return nil
	}

	ctx := context.Background()
	instances := []*scheduler.Scheduler{
		scheduler.New(lockedRunner(store), scheduler.WithTickInterval(3*time.Millisecond)),
		scheduler.New(lockedRunner(store), scheduler.WithTickInterval(3*time.Millisecond)),
	}
	for _, s := range instances {
		def := intervalDef("discovery", 20*time.Millisecond, 0, body)
		if err := s.Register(def); err != nil {
			t.Fatalf("Register: %v", err)
		}
		if err := s.Start(ctx); err != nil {
			t.Fatalf("Start: %v", err)
		}
	}
	time.Sleep(200 * time.Millisecond)
	for _, s := range instances {
		if err := s.Stop(ctx); err != nil {
			t.Fatalf("Stop: %v", err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if maxInFlight > 1 {
		t.Errorf("max concurrent bodies across instances = %d, want 1", maxInFlight)
	}
	if runs == 0 {
		t.Error("no instance ever ran the body")
	}
}

func TestScheduler_JobsReportsNextFire(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := scheduler.New(directRunner{}, scheduler.WithNow(func() time.Time { return now }))

	def := intervalDef("discovery", 5*time.Minute, 10*time.Minute, func(context.Context) error { return nil })
	if err := s.Register(def); err != nil {
		t.Fatalf("Register: %v", err)
	}

	jobs := s.Jobs()
	if len(jobs) != 1 {
		t.Fatalf("Jobs() returned %d entries, want 1", len(jobs))
	}
	if got, want := jobs[0].NextFire, now.Add(10*time.Minute); !got.Equal(want) {
		t.Errorf("NextFire = %v, want %v", got, want)
	}
	if jobs[0].Running {
		t.Error("Running = true before any fire")
	}
}
