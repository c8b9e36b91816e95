package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	sagepick "github.com/saiteja-velpula/sagepick.core"
	"github.com/saiteja-velpula/sagepick.core/catalog"
)

// BlobStore is the object storage capability the exporter writes through.
type BlobStore interface {
	// Put writes data under key, overwriting any existing object.
	Put(ctx context.Context, key string, data []byte) error

	// Exists reports whether an object is already stored under key.
	Exists(ctx context.Context, key string) (bool, error)
}

// Keys builds the two object keys of a snapshot run.
type Keys struct {
	Prefix   string
	Filename string
}

// DatedKey returns the immutable per-date key: prefix/YYYY-MM-DD/filename.
func (k Keys) DatedKey(t time.Time) string {
	return k.join(t.UTC().Format("2006-01-02"), k.Filename)
}

// StableKey returns the mutable "latest" pointer: prefix/filename.
func (k Keys) StableKey() string {
	return k.join(k.Filename)
}

func (k Keys) join(parts ...string) string {
	all := parts
	if p := strings.Trim(k.Prefix, "/"); p != "" {
		all = append([]string{p}, parts...)
	}
	return strings.Join(all, "/")
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Exporter) { e.logger = l }
}

// WithNow injects the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(e *Exporter) { e.now = now }
}

// Exporter is the dataset export job body: query everything, project to
// the CSV schema, write the dated snapshot, then move the stable pointer.
type Exporter struct {
	store  catalog.Store
	blobs  BlobStore
	keys   Keys
	logger *slog.Logger
	now    func() time.Time
}

// New creates an Exporter.
func New(store catalog.Store, blobs BlobStore, keys Keys, opts ...Option) *Exporter {
	e := &Exporter{
		store:  store,
		blobs:  blobs,
		keys:   keys,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run produces and uploads one snapshot. The dated key is write-once per
// calendar date: a retried or re-fired run on the same day skips the dated
// upload and only refreshes the stable pointer, so at most one dated
// object exists per day. Rollback of the stable pointer is the storage
// layer's versioning, not ours.
func (e *Exporter) Run(ctx context.Context) error {
	movies, err := e.store.Movies(ctx)
	if err != nil {
		return fmt.Errorf("export: query catalog: %w", err)
	}

	rows := make([]Row, len(movies))
	for i, m := range movies {
		rows[i] = Project(m)
	}
	payload, err := EncodeCSV(rows)
	if err != nil {
		return err
	}

	datedKey := e.keys.DatedKey(e.now())
	stableKey := e.keys.StableKey()

	exists, err := e.blobs.Exists(ctx, datedKey)
	if err != nil {
		return fmt.Errorf("%w: head %s: %v", sagepick.ErrStorage, datedKey, err)
	}
	if exists {
		e.logger.Info("dated snapshot already present, refreshing stable key only",
			slog.String("key", datedKey),
		)
	} else {
		if err := e.blobs.Put(ctx, datedKey, payload); err != nil {
			return fmt.Errorf("%w: put %s: %v", sagepick.ErrStorage, datedKey, err)
		}
	}

	if err := e.blobs.Put(ctx, stableKey, payload); err != nil {
		// The dated snapshot (if written) stays; the next run will see it
		// and only retry the stable pointer.
		return fmt.Errorf("%w: put %s: %v", sagepick.ErrStorage, stableKey, err)
	}

	e.logger.Info("dataset export complete",
		slog.Int("rows", len(rows)),
		slog.Int("bytes", len(payload)),
		slog.String("dated_key", datedKey),
		slog.String("stable_key", stableKey),
	)
	return nil
}
