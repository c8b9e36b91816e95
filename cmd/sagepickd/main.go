// Package main runs the sagepick catalog sync daemon.
//
// Configuration comes from SAGEPICK_* environment variables, see
// sagepick.LoadConfig. The daemon needs Redis for coordination and
// Postgres for the catalog; S3 credentials are only required when the
// export job is enabled.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	goredis "github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"golang.org/x/sync/errgroup"

	sagepick "github.com/saiteja-velpula/sagepick.core"
	"github.com/saiteja-velpula/sagepick.core/export"
	"github.com/saiteja-velpula/sagepick.core/service"
	"github.com/saiteja-velpula/sagepick.core/store/postgres"
	"github.com/saiteja-velpula/sagepick.core/store/redis"
	"github.com/saiteja-velpula/sagepick.core/store/s3"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("daemon exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := sagepick.LoadConfig()
	if err != nil {
		return err
	}

	// ──────────────────────────────────────────────────
	// Coordination store (Redis)
	// ──────────────────────────────────────────────────

	rdb := goredis.NewClient(&goredis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	defer rdb.Close()

	coord := redis.New(rdb,
		redis.WithLogger(logger),
		redis.WithChangelogRetention(cfg.ChangelogRetention),
	)
	if err := coord.Ping(ctx); err != nil {
		return err
	}
	logger.Info("redis connected", slog.String("addr", cfg.RedisAddr))

	// ──────────────────────────────────────────────────
	// Catalog store (Postgres)
	// ──────────────────────────────────────────────────

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DatabaseDSN)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	catalog := postgres.New(db, postgres.WithLogger(logger))
	if err := catalog.Migrate(ctx); err != nil {
		return err
	}
	if err := catalog.Ping(ctx); err != nil {
		return err
	}
	logger.Info("postgres connected")

	// ──────────────────────────────────────────────────
	// Export blob store (S3), only when enabled
	// ──────────────────────────────────────────────────

	var blobs export.BlobStore
	if cfg.ExportEnabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.ExportRegion))
		if err != nil {
			return err
		}
		client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
			if cfg.ExportEndpoint != "" {
				o.BaseEndpoint = &cfg.ExportEndpoint
				o.UsePathStyle = true
			}
		})
		blobs = s3.New(client, cfg.ExportBucket, s3.WithLogger(logger))
		logger.Info("export enabled", slog.String("bucket", cfg.ExportBucket))
	}

	svc, err := service.New(cfg, service.Stores{
		Locks:   coord,
		Catalog: catalog,
		Changes: coord,
		States:  coord,
		Blobs:   blobs,
	}, service.WithLogger(logger))
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(gctx) })

	logger.Info("sagepick daemon started")
	return g.Wait()
}
