// Package memory is a fully in-memory implementation of every store
// capability the core consumes: coordination (locks, job state), catalog,
// changelog, and blob storage. Safe for concurrent access. Intended for
// unit testing and development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/saiteja-velpula/sagepick.core/catalog"
	"github.com/saiteja-velpula/sagepick.core/changelog"
	"github.com/saiteja-velpula/sagepick.core/export"
	"github.com/saiteja-velpula/sagepick.core/jobs"
	"github.com/saiteja-velpula/sagepick.core/lock"
)

// Compile-time interface checks.
var (
	_ lock.Store       = (*Store)(nil)
	_ catalog.Store    = (*Store)(nil)
	_ changelog.Store  = (*Store)(nil)
	_ export.BlobStore = (*Store)(nil)
	_ jobs.StateStore  = (*Store)(nil)
)

type expiringValue struct {
	value     string
	expiresAt time.Time
}

type expiringBytes struct {
	value     []byte
	expiresAt time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock injects the clock used for TTL expiry, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store is the in-memory backend.
type Store struct {
	mu  sync.Mutex
	now func() time.Time

	locks      map[string]expiringValue
	jobStates  map[string]expiringBytes
	movies     map[int64]*catalog.Movie
	categories map[catalog.Category][]int64
	changes    map[int64]changelog.Entry

	blobs map[string][]byte
	// putCounts tracks writes per key, for tests asserting write-once.
	putCounts map[string]int
}

// New returns a new empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		now:        time.Now,
		locks:      make(map[string]expiringValue),
		jobStates:  make(map[string]expiringBytes),
		movies:     make(map[int64]*catalog.Movie),
		categories: make(map[catalog.Category][]int64),
		changes:    make(map[int64]changelog.Entry),
		blobs:      make(map[string][]byte),
		putCounts:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ──────────────────────────────────────────────────
// lock.Store
// ──────────────────────────────────────────────────

// SetIfAbsent implements the atomic set-if-absent-with-expiry.
func (s *Store) SetIfAbsent(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.locks[key]; ok && cur.expiresAt.After(s.now()) {
		return false, nil
	}
	s.locks[key] = expiringValue{value: value, expiresAt: s.now().Add(ttl)}
	return true, nil
}

// CompareAndDelete deletes key only while value still matches expected.
func (s *Store) CompareAndDelete(_ context.Context, key, expected string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.locks[key]
	if !ok || !cur.expiresAt.After(s.now()) || cur.value != expected {
		return false, nil
	}
	delete(s.locks, key)
	return true, nil
}

// CompareAndExpire extends the TTL only while value still matches expected.
func (s *Store) CompareAndExpire(_ context.Context, key, expected string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.locks[key]
	if !ok || !cur.expiresAt.After(s.now()) || cur.value != expected {
		return false, nil
	}
	cur.expiresAt = s.now().Add(ttl)
	s.locks[key] = cur
	return true, nil
}

// LockOwner returns the live owner of key, for tests.
func (s *Store) LockOwner(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.locks[key]
	if !ok || !cur.expiresAt.After(s.now()) {
		return "", false
	}
	return cur.value, true
}

// ──────────────────────────────────────────────────
// jobs.StateStore
// ──────────────────────────────────────────────────

// JobState returns the stored state for key, or nil when absent/expired.
func (s *Store) JobState(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.jobStates[key]
	if !ok || !cur.expiresAt.After(s.now()) {
		return nil, nil
	}
	out := make([]byte, len(cur.value))
	copy(out, cur.value)
	return out, nil
}

// SetJobState stores state for key with a TTL. Zero ttl means no expiry.
func (s *Store) SetJobState(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]byte, len(value))
	copy(cp, value)
	exp := s.now().Add(ttl)
	if ttl == 0 {
		exp = s.now().Add(100 * 365 * 24 * time.Hour)
	}
	s.jobStates[key] = expiringBytes{value: cp, expiresAt: exp}
	return nil
}

// ──────────────────────────────────────────────────
// catalog.Store
// ──────────────────────────────────────────────────

// UpsertMovie applies the freshness rule: the snapshot with the newer
// FetchedAt wins wholesale; an older snapshot is a no-op.
func (s *Store) UpsertMovie(_ context.Context, m *catalog.Movie) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.movies[m.TMDBID]; ok && cur.FetchedAt.After(m.FetchedAt) {
		return nil
	}
	cp := cloneMovie(m)
	s.movies[m.TMDBID] = cp
	return nil
}

// Movie returns the persisted record for tmdbID.
func (s *Store) Movie(_ context.Context, tmdbID int64) (*catalog.Movie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.movies[tmdbID]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return cloneMovie(cur), nil
}

// Movies returns all records ordered by ascending TMDB id.
func (s *Store) Movies(_ context.Context) ([]*catalog.Movie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*catalog.Movie, 0, len(s.movies))
	for _, m := range s.movies {
		out = append(out, cloneMovie(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TMDBID < out[j].TMDBID })
	return out, nil
}

// ReplaceCategory replaces category membership.
func (s *Store) ReplaceCategory(_ context.Context, category catalog.Category, tmdbIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]int64, len(tmdbIDs))
	copy(cp, tmdbIDs)
	s.categories[category] = cp
	return nil
}

// CategoryMovies returns category membership in stored order.
func (s *Store) CategoryMovies(_ context.Context, category catalog.Category) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.categories[category]
	out := make([]int64, len(cur))
	copy(out, cur)
	return out, nil
}

// Ping always succeeds for the memory store.
func (s *Store) Ping(_ context.Context) error { return nil }

func cloneMovie(m *catalog.Movie) *catalog.Movie {
	cp := *m
	cp.Genres = append([]catalog.Genre(nil), m.Genres...)
	cp.Keywords = append([]catalog.Keyword(nil), m.Keywords...)
	return &cp
}

// ──────────────────────────────────────────────────
// changelog.Store — last-diff-only, like the redis backend
// ──────────────────────────────────────────────────

// Record keeps the latest entry per movie.
func (s *Store) Record(_ context.Context, e changelog.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes[e.TMDBID] = e
	return nil
}

// Latest returns the retained entry for tmdbID, or nil.
func (s *Store) Latest(_ context.Context, tmdbID int64) (*changelog.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.changes[tmdbID]
	if !ok {
		return nil, nil
	}
	cp := e
	return &cp, nil
}

// ──────────────────────────────────────────────────
// export.BlobStore
// ──────────────────────────────────────────────────

// Put stores data under key, overwriting.
func (s *Store) Put(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]byte, len(data))
	copy(cp, data)
	s.blobs[key] = cp
	s.putCounts[key]++
	return nil
}

// Exists reports whether key holds an object.
func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blobs[key]
	return ok, nil
}

// Blob returns the stored object for key, for tests.
func (s *Store) Blob(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[key]
	return b, ok
}

// PutCount returns how many times key was written, for tests.
func (s *Store) PutCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putCounts[key]
}
