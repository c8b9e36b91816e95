// Package lock provides distributed per-key mutual exclusion backed by a
// shared coordination store with expiry. At most one live, non-expired
// handle exists per key across the whole deployment; abrupt process death
// is covered by the TTL, cooperative paths release explicitly.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	sagepick "github.com/saiteja-velpula/sagepick.core"
)

// Store is the coordination store capability the lock needs: an atomic
// set-if-absent-with-expiry plus owner-checked delete and expiry extension.
type Store interface {
	// SetIfAbsent atomically sets key to value with the given TTL if the
	// key does not exist. Returns false if the key is already present.
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// CompareAndDelete deletes key only if it currently holds expected.
	// Returns false if the key is absent or owned by someone else.
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)

	// CompareAndExpire extends the TTL of key only if it currently holds
	// expected. Returns false if the key is absent or owned by someone else.
	CompareAndExpire(ctx context.Context, key, expected string, ttl time.Duration) (bool, error)
}

// Handle is a live acquisition. It exists only between a successful
// Acquire and the matching Release (or TTL expiry).
type Handle struct {
	Key       string
	Owner     string
	ExpiresAt time.Time
}

// Option configures a Mutex.
type Option func(*Mutex)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Mutex) { m.logger = l }
}

// Mutex acquires, renews and releases named locks against a Store.
// Safe for concurrent use.
type Mutex struct {
	store  Store
	logger *slog.Logger
}

// New creates a Mutex on top of the given coordination store.
func New(store Store, opts ...Option) *Mutex {
	m := &Mutex{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire attempts a non-blocking acquisition of key with the given TTL.
// A failed immediate acquisition is ErrLockHeld, never a wait. If the
// store itself is unreachable the error is ErrLockUnavailable: the caller
// must treat that as "skip this fire", never as "run without a lock".
func (m *Mutex) Acquire(ctx context.Context, key string, ttl time.Duration) (*Handle, error) {
	owner := uuid.NewString()
	ok, err := m.store.SetIfAbsent(ctx, key, owner, ttl)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sagepick.ErrLockUnavailable, err)
	}
	if !ok {
		return nil, sagepick.ErrLockHeld
	}
	return &Handle{Key: key, Owner: owner, ExpiresAt: time.Now().Add(ttl)}, nil
}

// Release releases h. It is idempotent: releasing an already-released or
// already-expired handle is a no-op, never an error. Ownership is checked
// in the store, so a slow worker can never delete a lock that a later
// owner acquired after this handle expired.
func (m *Mutex) Release(ctx context.Context, h *Handle) {
	if h == nil {
		return
	}
	ok, err := m.store.CompareAndDelete(ctx, h.Key, h.Owner)
	if err != nil {
		// The TTL will reclaim the key; nothing more to do here.
		m.logger.Warn("lock release failed, relying on TTL expiry",
			slog.String("key", h.Key),
			slog.String("error", err.Error()),
		)
		return
	}
	if !ok {
		m.logger.Debug("lock already released or expired",
			slog.String("key", h.Key),
		)
	}
}

// Renew extends the expiry of h by ttl. It returns ErrLockLost when the
// key has expired or been taken by another owner in the meantime.
func (m *Mutex) Renew(ctx context.Context, h *Handle, ttl time.Duration) error {
	ok, err := m.store.CompareAndExpire(ctx, h.Key, h.Owner, ttl)
	if err != nil {
		return fmt.Errorf("%w: %v", sagepick.ErrLockUnavailable, err)
	}
	if !ok {
		return sagepick.ErrLockLost
	}
	h.ExpiresAt = time.Now().Add(ttl)
	return nil
}

// Keepalive renews h at ttl/2 intervals in the background until the
// returned stop function is called, the context is cancelled, or the lock
// is lost. Required for bodies whose duration is unbounded (the export
// job), otherwise the lock may expire mid-run and admit a duplicate.
func (m *Mutex) Keepalive(ctx context.Context, h *Handle, ttl time.Duration) (stop func()) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(ttl / 2)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.Renew(ctx, h, ttl); err != nil {
					if errors.Is(err, sagepick.ErrLockLost) {
						m.logger.Warn("lock lost during keepalive",
							slog.String("key", h.Key),
						)
						return
					}
					m.logger.Warn("lock renewal failed, will retry",
						slog.String("key", h.Key),
						slog.String("error", err.Error()),
					)
				}
			}
		}
	}()
	return func() { close(done) }
}
