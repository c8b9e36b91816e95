// Package service wires the catalog sync jobs onto the scheduler.
//
// A Service owns the run loop only. Storage backends and the API client
// are injected so that deployments can mix them freely (Redis plus
// Postgres plus S3 in production, the memory store in tests).
package service

import (
	"context"
	"fmt"
	"log/slog"

	sagepick "github.com/saiteja-velpula/sagepick.core"
	"github.com/saiteja-velpula/sagepick.core/catalog"
	"github.com/saiteja-velpula/sagepick.core/changelog"
	"github.com/saiteja-velpula/sagepick.core/export"
	"github.com/saiteja-velpula/sagepick.core/job"
	"github.com/saiteja-velpula/sagepick.core/jobs"
	"github.com/saiteja-velpula/sagepick.core/lock"
	"github.com/saiteja-velpula/sagepick.core/ratelimit"
	"github.com/saiteja-velpula/sagepick.core/retry"
	"github.com/saiteja-velpula/sagepick.core/runner"
	"github.com/saiteja-velpula/sagepick.core/schedule"
	"github.com/saiteja-velpula/sagepick.core/scheduler"
	"github.com/saiteja-velpula/sagepick.core/tmdb"
)

// Option configures a Service.
type Option func(*Service)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithCatalogAPI replaces the TMDB client built from the config.
// Mainly useful in tests.
func WithCatalogAPI(api jobs.CatalogAPI) Option {
	return func(s *Service) { s.api = api }
}

// Stores bundles the storage backends a Service needs. Blobs may be nil
// when the export job is disabled in the config.
type Stores struct {
	Locks   lock.Store
	Catalog catalog.Store
	Changes changelog.Store
	States  jobs.StateStore
	Blobs   export.BlobStore
}

// Service runs the recurring catalog jobs until stopped.
type Service struct {
	cfg    sagepick.Config
	stores Stores
	logger *slog.Logger
	api    jobs.CatalogAPI

	sched *scheduler.Scheduler
}

// New builds a Service from the config and storage backends. All jobs
// are registered here; Run only starts the loop.
func New(cfg sagepick.Config, stores Stores, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if stores.Locks == nil || stores.Catalog == nil || stores.Changes == nil || stores.States == nil {
		return nil, fmt.Errorf("service: lock, catalog, changelog and state stores are required")
	}
	if cfg.ExportEnabled && stores.Blobs == nil {
		return nil, fmt.Errorf("service: export is enabled but no blob store was given")
	}

	s := &Service{
		cfg:    cfg,
		stores: stores,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.api == nil {
		limiter := ratelimit.New(cfg.TMDBRequestsPerSecond)
		s.api = tmdb.New(cfg.TMDBBaseURL, cfg.TMDBToken, limiter, tmdb.WithLogger(s.logger))
	}

	policy := retry.Policy{
		MaxAttempts: cfg.RetryMaxAttempts,
		Strategy:    retry.NewExponentialEqualJitter(cfg.RetryInitialDelay, cfg.RetryMaxDelay),
	}
	mutex := lock.New(stores.Locks, lock.WithLogger(s.logger))
	r := runner.New(mutex, policy,
		runner.WithLogger(s.logger),
		runner.WithLockTTLs(cfg.LockTTLShort, cfg.LockTTLLong),
	)
	s.sched = scheduler.New(r,
		scheduler.WithTickInterval(cfg.TickInterval),
		scheduler.WithLogger(s.logger),
	)

	if err := s.registerJobs(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) registerJobs() error {
	defs := []struct {
		enabled bool
		build   func() (job.Definition, error)
	}{
		{true, s.discoveryJob},
		{true, s.changeTrackingJob},
		{true, s.categoryRefreshJob},
		{s.cfg.ExportEnabled, s.exportJob},
	}
	for _, d := range defs {
		if !d.enabled {
			continue
		}
		def, err := d.build()
		if err != nil {
			return err
		}
		if err := s.sched.Register(def); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) discoveryJob() (job.Definition, error) {
	return jobs.Discovery(s.api, s.stores.Catalog, s.stores.States, s.logger, jobs.DiscoveryConfig{
		Interval:    s.cfg.DiscoveryInterval,
		StartDelay:  s.cfg.DiscoveryStartDelay,
		ItemsPerRun: s.cfg.DiscoveryItemsPerRun,
		StateTTL:    s.cfg.DiscoveryStateTTL,
	}), nil
}

func (s *Service) changeTrackingJob() (job.Definition, error) {
	return jobs.ChangeTracking(s.api, s.stores.Catalog, s.stores.Changes, s.logger,
		jobs.DefaultChangeTrackingTrigger()), nil
}

func (s *Service) categoryRefreshJob() (job.Definition, error) {
	return jobs.CategoryRefresh(s.api, s.stores.Catalog, s.logger,
		jobs.DefaultCategoryRefreshTrigger(), s.cfg.MoviesPerCategory), nil
}

func (s *Service) exportJob() (job.Definition, error) {
	day, err := schedule.ParseWeekday(s.cfg.ExportDayOfWeek)
	if err != nil {
		return job.Definition{}, fmt.Errorf("service: export schedule: %w", err)
	}
	trigger, err := schedule.NewCron(day, s.cfg.ExportHour, s.cfg.ExportMinute)
	if err != nil {
		return job.Definition{}, fmt.Errorf("service: export schedule: %w", err)
	}
	exporter := export.New(s.stores.Catalog, s.stores.Blobs, export.Keys{
		Prefix:   s.cfg.ExportPrefix,
		Filename: s.cfg.ExportFilename,
	}, export.WithLogger(s.logger))
	return jobs.DatasetExport(exporter, trigger), nil
}

// Run starts the scheduler and blocks until ctx is cancelled, then
// stops it, waiting up to ShutdownTimeout for in-flight runs.
func (s *Service) Run(ctx context.Context) error {
	if err := s.sched.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return s.sched.Stop(stopCtx)
}

// Jobs reports the registered jobs and their next fire times.
func (s *Service) Jobs() []scheduler.Status { return s.sched.Jobs() }
