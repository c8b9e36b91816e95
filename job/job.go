// Package job defines the registered unit of recurring work: a stable key,
// a trigger, a duration class, and the body to execute.
package job

import (
	"context"

	"github.com/saiteja-velpula/sagepick.core/schedule"
)

// Body is a job body. It must be safe to invoke repeatedly: bodies are
// retried within a run and re-fired on the next occurrence after failures,
// so all storage mutation inside a body goes through idempotent upserts.
type Body func(ctx context.Context) error

// Class is the expected duration class of a job body. It selects the lock
// TTL and decides whether the lock is renewed in the background.
type Class int

const (
	// ClassShort covers bodies with a bounded, predictable duration.
	ClassShort Class = iota
	// ClassLong covers bodies with unbounded duration (the dataset
	// export); their lock is renewed at TTL/2 while they run.
	ClassLong
)

// String implements fmt.Stringer.
func (c Class) String() string {
	if c == ClassLong {
		return "long"
	}
	return "short"
}

// Definition ties a job key to its trigger and body. Immutable once
// registered. The key is globally unique and stable across restarts; it is
// also the distributed lock key, so runs of the same key are serialised
// system-wide.
type Definition struct {
	Key     string
	Trigger schedule.Trigger
	Class   Class
	Body    Body
}
