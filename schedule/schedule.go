// Package schedule provides the trigger math for recurring jobs. A Trigger
// computes the next fire time as a pure function of the previous scheduled
// fire time and the current time, so trigger behaviour is testable without
// a running clock.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// Trigger determines when a recurring job fires.
type Trigger interface {
	// Next returns the first fire time strictly after now. last is the
	// previously scheduled fire time; a zero last means the trigger has
	// never been computed for this process (initial scheduling).
	//
	// Next never returns an instant in the past: when the cadence instant
	// derived from last has already passed, the result snaps to the next
	// future occurrence and the missed ones are simply dropped.
	Next(last, now time.Time) time.Time
}

// Interval fires every Every, anchored to the first fire. The first fire
// happens StartDelay after process start.
type Interval struct {
	Every      time.Duration
	StartDelay time.Duration
}

// Next computes the next fire from the original cadence, not from run
// completion, so slow runs do not drift the schedule.
func (iv Interval) Next(last, now time.Time) time.Time {
	if last.IsZero() {
		return now.Add(iv.StartDelay)
	}
	next := last.Add(iv.Every)
	if next.After(now) {
		return next
	}
	// Overran one or more occurrences: snap forward, no backlog catch-up.
	steps := now.Sub(last)/iv.Every + 1
	return last.Add(steps * iv.Every)
}

// Cron fires at a fixed UTC wall-clock instant: daily at Hour:Minute, or
// weekly when a day of week is set. Build one with NewCron.
type Cron struct {
	spec  string
	sched cronlib.Schedule
}

// cronParser accepts the standard 5-field cron syntax.
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// NewCron builds a Cron trigger. dayOfWeek is nil for a daily trigger.
func NewCron(dayOfWeek *time.Weekday, hour, minute int) (Cron, error) {
	if hour < 0 || hour > 23 {
		return Cron{}, fmt.Errorf("schedule: hour out of range: %d", hour)
	}
	if minute < 0 || minute > 59 {
		return Cron{}, fmt.Errorf("schedule: minute out of range: %d", minute)
	}
	dow := "*"
	if dayOfWeek != nil {
		dow = strconv.Itoa(int(*dayOfWeek))
	}
	spec := fmt.Sprintf("%d %d * * %s", minute, hour, dow)
	sched, err := cronParser.Parse(spec)
	if err != nil {
		return Cron{}, fmt.Errorf("schedule: parse cron spec %q: %w", spec, err)
	}
	return Cron{spec: spec, sched: sched}, nil
}

// MustCron is NewCron for statically known fields; it panics on invalid
// input and is intended for package-level job definitions.
func MustCron(dayOfWeek *time.Weekday, hour, minute int) Cron {
	c, err := NewCron(dayOfWeek, hour, minute)
	if err != nil {
		panic(err)
	}
	return c
}

// ParseWeekday maps a config value to a weekday. Accepts English names in
// any case ("sunday", "Mon") or 0-6 with 0 = Sunday. Empty means "daily"
// and returns nil.
func ParseWeekday(s string) (*time.Weekday, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return nil, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 || n > 6 {
			return nil, fmt.Errorf("schedule: weekday out of range: %d", n)
		}
		d := time.Weekday(n)
		return &d, nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return &d, nil
		}
	}
	return nil, fmt.Errorf("schedule: unknown weekday %q", s)
}

// Next returns the next matching UTC calendar instant after now.
// Cron triggers never replay missed occurrences, so last is ignored.
func (c Cron) Next(_, now time.Time) time.Time {
	return c.sched.Next(now.UTC())
}

// String returns the underlying cron spec, for logging.
func (c Cron) String() string { return c.spec }
