// Package redis implements the coordination capabilities on Redis: the
// distributed lock store (SET NX plus owner-checked Lua scripts), the
// per-job state cursor, and the last-diff-only changelog with a retention
// TTL.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/saiteja-velpula/sagepick.core/changelog"
	"github.com/saiteja-velpula/sagepick.core/jobs"
	"github.com/saiteja-velpula/sagepick.core/lock"
)

// Compile-time interface checks.
var (
	_ lock.Store      = (*Store)(nil)
	_ jobs.StateStore = (*Store)(nil)
	_ changelog.Store = (*Store)(nil)
)

// compareAndDelete deletes the key only while it still holds the expected
// owner token, so a slow worker can never delete a later owner's lock.
var compareAndDelete = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// compareAndExpire extends the key's TTL only for the expected owner.
var compareAndExpire = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithChangelogRetention sets how long change entries are retained.
func WithChangelogRetention(d time.Duration) Option {
	return func(s *Store) { s.changelogTTL = d }
}

// Store implements lock.Store, jobs.StateStore and changelog.Store backed
// by Redis. The caller owns the Redis client lifecycle.
type Store struct {
	client       goredis.Cmdable
	logger       *slog.Logger
	changelogTTL time.Duration
}

// New creates a Redis-backed store.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{
		client:       client,
		logger:       slog.Default(),
		changelogTTL: 30 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// ──────────────────────────────────────────────────
// lock.Store
// ──────────────────────────────────────────────────

// SetIfAbsent runs SET NX PX — the single atomic acquire.
func (s *Store) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, lockKey(key), value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("sagepick/redis: setnx %s: %w", key, err)
	}
	return ok, nil
}

// CompareAndDelete releases the lock only for the expected owner.
func (s *Store) CompareAndDelete(ctx context.Context, key, expected string) (bool, error) {
	n, err := compareAndDelete.Run(ctx, s.client, []string{lockKey(key)}, expected).Int()
	if err != nil {
		return false, fmt.Errorf("sagepick/redis: compare-and-delete %s: %w", key, err)
	}
	return n == 1, nil
}

// CompareAndExpire renews the lock only for the expected owner.
func (s *Store) CompareAndExpire(ctx context.Context, key, expected string, ttl time.Duration) (bool, error) {
	n, err := compareAndExpire.Run(ctx, s.client, []string{lockKey(key)}, expected, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("sagepick/redis: compare-and-expire %s: %w", key, err)
	}
	return n == 1, nil
}

// ──────────────────────────────────────────────────
// jobs.StateStore
// ──────────────────────────────────────────────────

// JobState returns the persisted progress for key, or nil when absent.
func (s *Store) JobState(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.client.Get(ctx, jobStateKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("sagepick/redis: get job state %s: %w", key, err)
	}
	return raw, nil
}

// SetJobState persists progress for key with a TTL.
func (s *Store) SetJobState(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, jobStateKey(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("sagepick/redis: set job state %s: %w", key, err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// changelog.Store — last diff per movie, expiring after the retention TTL
// ──────────────────────────────────────────────────

// Record replaces the movie's retained entry.
func (s *Store) Record(ctx context.Context, e changelog.Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("sagepick/redis: marshal changelog entry: %w", err)
	}
	if err := s.client.Set(ctx, changelogKey(e.TMDBID), raw, s.changelogTTL).Err(); err != nil {
		return fmt.Errorf("sagepick/redis: record changelog %d: %w", e.TMDBID, err)
	}
	return nil
}

// Latest returns the retained entry for tmdbID, or nil when expired or
// never recorded.
func (s *Store) Latest(ctx context.Context, tmdbID int64) (*changelog.Entry, error) {
	raw, err := s.client.Get(ctx, changelogKey(tmdbID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("sagepick/redis: get changelog %d: %w", tmdbID, err)
	}
	var e changelog.Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("sagepick/redis: unmarshal changelog %d: %w", tmdbID, err)
	}
	return &e, nil
}
