package sagepick

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Lock errors.
	ErrLockHeld        = errors.New("sagepick: lock already held")
	ErrLockUnavailable = errors.New("sagepick: lock store unavailable")
	ErrLockLost        = errors.New("sagepick: lock lost")

	// Upstream errors.
	ErrTransient = errors.New("sagepick: transient upstream error")
	ErrPermanent = errors.New("sagepick: permanent upstream error")

	// Object storage errors.
	ErrStorage = errors.New("sagepick: object storage error")
)

// RateLimitError reports server-side rate limiting from the catalog API.
// RetryAfter is the cooldown the server asked for; zero means the server
// gave no hint.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("sagepick: rate limited, retry after %s", e.RetryAfter)
	}
	return "sagepick: rate limited"
}

// Retryable reports whether a job body error is worth retrying.
// Transient upstream faults, server-side rate limiting, and object storage
// write failures are retryable; everything else fails fast.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var rl *RateLimitError
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrStorage) || errors.As(err, &rl)
}
