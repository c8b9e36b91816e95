// Package scheduler holds the registry of recurring jobs and fires runner
// invocations when wall-clock time crosses each job's next fire time.
//
// One cooperative tick loop per process decides what is due; bodies run on
// their own goroutines so a long run never blocks the loop from noticing
// other jobs. A deployment normally runs one scheduler process, but the
// distributed lock inside the runner makes accidental multi-instance
// scheduling safe: the duplicate instance just skips.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/saiteja-velpula/sagepick.core/job"
	"github.com/saiteja-velpula/sagepick.core/runner"
)

// JobRunner executes one job definition. *runner.Runner satisfies this.
type JobRunner interface {
	Run(ctx context.Context, def job.Definition) runner.Result
}

// state is the per-job lifecycle: Idle -> Due -> Running -> Idle.
type state int

const (
	stateIdle state = iota
	stateRunning
)

// entry tracks one registered job.
type entry struct {
	def      job.Definition
	nextFire time.Time
	state    state
}

// Status is a read-only snapshot of one registered job.
type Status struct {
	Key      string
	NextFire time.Time
	Running  bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTickInterval sets how often the scheduler checks for due jobs.
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.tickInterval = d }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithNow injects the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// Scheduler fires registered jobs at their due times.
type Scheduler struct {
	runner       JobRunner
	logger       *slog.Logger
	tickInterval time.Duration
	now          func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
	started bool

	stopCh   chan struct{}
	stopOnce sync.Once
	loopWG   sync.WaitGroup
	runWG    sync.WaitGroup
}

// New creates a Scheduler.
func New(r JobRunner, opts ...Option) *Scheduler {
	s := &Scheduler{
		runner:       r,
		logger:       slog.Default(),
		tickInterval: time.Second,
		now:          time.Now,
		entries:      make(map[string]*entry),
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a job definition. The initial next fire time is computed
// from a zero last fire: StartDelay for interval jobs, the next matching
// calendar instant for cron jobs. Keys must be unique.
func (s *Scheduler) Register(def job.Definition) error {
	if def.Key == "" {
		return fmt.Errorf("scheduler: job key must not be empty")
	}
	if def.Body == nil || def.Trigger == nil {
		return fmt.Errorf("scheduler: job %q needs a trigger and a body", def.Key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.entries[def.Key]; dup {
		return fmt.Errorf("scheduler: duplicate job key %q", def.Key)
	}
	next := def.Trigger.Next(time.Time{}, s.now())
	s.entries[def.Key] = &entry{def: def, nextFire: next}
	s.logger.Info("job registered",
		slog.String("job", def.Key),
		slog.Time("next_fire", next),
	)
	return nil
}

// Start launches the tick loop. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("scheduler: already started")
	}
	s.started = true
	s.mu.Unlock()

	s.loopWG.Add(1)
	go s.loop(ctx)
	s.logger.Info("scheduler started",
		slog.Duration("tick_interval", s.tickInterval),
		slog.Int("jobs", len(s.entries)),
	)
	return nil
}

// Stop signals the loop to stop and waits for in-flight job runs to
// finish their current attempt. The context bounds the wait. Stop is
// safe to call more than once.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.loopWG.Wait()

	done := make(chan struct{})
	go func() {
		s.runWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out with runs in flight")
		return ctx.Err()
	}
}

// Jobs returns a snapshot of all registered jobs.
func (s *Scheduler) Jobs() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Status, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, Status{
			Key:      e.def.Key,
			NextFire: e.nextFire,
			Running:  e.state == stateRunning,
		})
	}
	return out
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.loopWG.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fireDue(ctx)
		}
	}
}

// fireDue launches a run for every idle job whose next fire time has
// passed. Due -> Running happens here; Running -> Idle in finishRun.
func (s *Scheduler) fireDue(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	var due []*entry
	for _, e := range s.entries {
		if e.state == stateIdle && !e.nextFire.After(now) {
			e.state = stateRunning
			due = append(due, e)
		}
	}
	s.mu.Unlock()

	for _, e := range due {
		e := e
		s.runWG.Add(1)
		go func() {
			defer s.runWG.Done()
			res := s.runner.Run(ctx, e.def)
			s.finishRun(e, res)
		}()
	}
}

// finishRun recomputes the next fire from the original due time, not from
// completion time, so a slow run does not drift the cadence. The trigger
// snaps past-due instants forward, so overruns skip rather than backlog.
func (s *Scheduler) finishRun(e *entry, res runner.Result) {
	s.mu.Lock()
	due := e.nextFire
	e.nextFire = e.def.Trigger.Next(due, s.now())
	e.state = stateIdle
	next := e.nextFire
	s.mu.Unlock()

	s.logger.Info("job run finished",
		slog.String("job", e.def.Key),
		slog.String("outcome", res.Outcome.String()),
		slog.Int("attempts", res.Attempts),
		slog.Duration("elapsed", res.Elapsed),
		slog.Time("next_fire", next),
	)
}
