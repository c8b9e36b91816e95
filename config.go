package sagepick

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full configuration surface of the service. Values come
// from the environment (SAGEPICK_ prefix) via LoadConfig, with defaults
// matching the production deployment.
type Config struct {
	// RedisAddr is the coordination store address (host:port).
	RedisAddr string
	// RedisDB selects the Redis logical database.
	RedisDB int

	// DatabaseDSN is the Postgres connection string for the catalog store.
	DatabaseDSN string

	// TMDBBaseURL is the external catalog API endpoint.
	TMDBBaseURL string
	// TMDBToken is the bearer token for the catalog API.
	TMDBToken string
	// TMDBRequestsPerSecond caps the pacing of catalog API calls.
	TMDBRequestsPerSecond float64

	// DiscoveryInterval is the cadence of the discovery job.
	DiscoveryInterval time.Duration
	// DiscoveryStartDelay offsets the first discovery fire after start.
	DiscoveryStartDelay time.Duration
	// DiscoveryItemsPerRun caps how many movies one discovery run ingests.
	DiscoveryItemsPerRun int
	// DiscoveryStateTTL bounds how long the discovery page cursor survives
	// between runs. Zero keeps it indefinitely; a lost cursor restarts the
	// walk from page one.
	DiscoveryStateTTL time.Duration

	// MoviesPerCategory caps how many movies each category keeps per refresh.
	MoviesPerCategory int

	// ChangelogRetention is how long per-movie change records are kept.
	ChangelogRetention time.Duration

	// ExportEnabled gates registration of the dataset export job.
	ExportEnabled bool
	// ExportDayOfWeek is the cron day for the export job; empty means daily.
	// Accepts English weekday names ("sunday") or 0-6 with 0 = Sunday.
	ExportDayOfWeek string
	// ExportHour and ExportMinute place the export fire time (UTC).
	ExportHour   int
	ExportMinute int
	// ExportBucket, ExportPrefix and ExportFilename build the object keys.
	ExportBucket   string
	ExportPrefix   string
	ExportFilename string
	// ExportEndpoint overrides the S3 endpoint (MinIO etc.); empty for AWS.
	ExportEndpoint string
	// ExportRegion is the S3 region.
	ExportRegion string

	// LockTTLShort and LockTTLLong are the lock TTLs for the two job
	// duration classes. LockTTLLong applies to the export job, which also
	// renews its lock at TTL/2.
	LockTTLShort time.Duration
	LockTTLLong  time.Duration

	// RetryMaxAttempts bounds retries within a single job run.
	RetryMaxAttempts int
	// RetryInitialDelay and RetryMaxDelay bound the backoff curve.
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration

	// TickInterval is how often the scheduler checks for due jobs.
	TickInterval time.Duration

	// ShutdownTimeout is the maximum time to wait for in-flight runs.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() Config {
	return Config{
		RedisAddr:             "localhost:6379",
		TMDBBaseURL:           "https://api.themoviedb.org/3",
		TMDBRequestsPerSecond: 15,
		DiscoveryInterval:     5 * time.Minute,
		DiscoveryStartDelay:   10 * time.Minute,
		DiscoveryItemsPerRun:  20,
		MoviesPerCategory:     20,
		ChangelogRetention:    30 * 24 * time.Hour,
		ExportEnabled:         false,
		ExportHour:            4,
		ExportMinute:          0,
		ExportPrefix:          "datasets/movie_items",
		ExportFilename:        "movie_items.csv",
		LockTTLShort:          5 * time.Minute,
		LockTTLLong:           15 * time.Minute,
		RetryMaxAttempts:      5,
		RetryInitialDelay:     time.Second,
		RetryMaxDelay:         time.Minute,
		TickInterval:          time.Second,
		ShutdownTimeout:       30 * time.Second,
	}
}

// LoadConfig reads configuration from the environment on top of the
// defaults. Keys are upper-snake with the SAGEPICK_ prefix, e.g.
// SAGEPICK_REDIS_ADDR, SAGEPICK_EXPORT_ENABLED.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetEnvPrefix("SAGEPICK")
	v.AutomaticEnv()

	v.SetDefault("redis_addr", cfg.RedisAddr)
	v.SetDefault("redis_db", cfg.RedisDB)
	v.SetDefault("database_dsn", cfg.DatabaseDSN)
	v.SetDefault("tmdb_base_url", cfg.TMDBBaseURL)
	v.SetDefault("tmdb_bearer_token", cfg.TMDBToken)
	v.SetDefault("tmdb_max_requests_per_second", cfg.TMDBRequestsPerSecond)
	v.SetDefault("discovery_interval", cfg.DiscoveryInterval)
	v.SetDefault("discovery_start_delay", cfg.DiscoveryStartDelay)
	v.SetDefault("discovery_items_per_run", cfg.DiscoveryItemsPerRun)
	v.SetDefault("discovery_state_ttl", cfg.DiscoveryStateTTL)
	v.SetDefault("movies_per_category", cfg.MoviesPerCategory)
	v.SetDefault("changelog_retention", cfg.ChangelogRetention)
	v.SetDefault("export_enabled", cfg.ExportEnabled)
	v.SetDefault("export_day_of_week", cfg.ExportDayOfWeek)
	v.SetDefault("export_hour", cfg.ExportHour)
	v.SetDefault("export_minute", cfg.ExportMinute)
	v.SetDefault("export_bucket", cfg.ExportBucket)
	v.SetDefault("export_prefix", cfg.ExportPrefix)
	v.SetDefault("export_filename", cfg.ExportFilename)
	v.SetDefault("export_endpoint", cfg.ExportEndpoint)
	v.SetDefault("export_region", cfg.ExportRegion)
	v.SetDefault("lock_ttl_short", cfg.LockTTLShort)
	v.SetDefault("lock_ttl_long", cfg.LockTTLLong)
	v.SetDefault("retry_max_attempts", cfg.RetryMaxAttempts)
	v.SetDefault("retry_initial_delay", cfg.RetryInitialDelay)
	v.SetDefault("retry_max_delay", cfg.RetryMaxDelay)
	v.SetDefault("tick_interval", cfg.TickInterval)
	v.SetDefault("shutdown_timeout", cfg.ShutdownTimeout)

	cfg.RedisAddr = v.GetString("redis_addr")
	cfg.RedisDB = v.GetInt("redis_db")
	cfg.DatabaseDSN = v.GetString("database_dsn")
	cfg.TMDBBaseURL = v.GetString("tmdb_base_url")
	cfg.TMDBToken = v.GetString("tmdb_bearer_token")
	cfg.TMDBRequestsPerSecond = v.GetFloat64("tmdb_max_requests_per_second")
	cfg.DiscoveryInterval = v.GetDuration("discovery_interval")
	cfg.DiscoveryStartDelay = v.GetDuration("discovery_start_delay")
	cfg.DiscoveryItemsPerRun = v.GetInt("discovery_items_per_run")
	cfg.DiscoveryStateTTL = v.GetDuration("discovery_state_ttl")
	cfg.MoviesPerCategory = v.GetInt("movies_per_category")
	cfg.ChangelogRetention = v.GetDuration("changelog_retention")
	cfg.ExportEnabled = v.GetBool("export_enabled")
	cfg.ExportDayOfWeek = v.GetString("export_day_of_week")
	cfg.ExportHour = v.GetInt("export_hour")
	cfg.ExportMinute = v.GetInt("export_minute")
	cfg.ExportBucket = v.GetString("export_bucket")
	cfg.ExportPrefix = v.GetString("export_prefix")
	cfg.ExportFilename = v.GetString("export_filename")
	cfg.ExportEndpoint = v.GetString("export_endpoint")
	cfg.ExportRegion = v.GetString("export_region")
	cfg.LockTTLShort = v.GetDuration("lock_ttl_short")
	cfg.LockTTLLong = v.GetDuration("lock_ttl_long")
	cfg.RetryMaxAttempts = v.GetInt("retry_max_attempts")
	cfg.RetryInitialDelay = v.GetDuration("retry_initial_delay")
	cfg.RetryMaxDelay = v.GetDuration("retry_max_delay")
	cfg.TickInterval = v.GetDuration("tick_interval")
	cfg.ShutdownTimeout = v.GetDuration("shutdown_timeout")

	return cfg, cfg.Validate()
}

// Validate checks invariants that would otherwise surface as confusing
// runtime behaviour.
func (c Config) Validate() error {
	if c.TMDBRequestsPerSecond <= 0 {
		return fmt.Errorf("sagepick: tmdb rate budget must be positive, got %v", c.TMDBRequestsPerSecond)
	}
	if c.DiscoveryInterval <= 0 {
		return fmt.Errorf("sagepick: discovery interval must be positive, got %v", c.DiscoveryInterval)
	}
	if c.ExportHour < 0 || c.ExportHour > 23 {
		return fmt.Errorf("sagepick: export hour out of range: %d", c.ExportHour)
	}
	if c.ExportMinute < 0 || c.ExportMinute > 59 {
		return fmt.Errorf("sagepick: export minute out of range: %d", c.ExportMinute)
	}
	if c.ExportEnabled && c.ExportBucket == "" {
		return fmt.Errorf("sagepick: export enabled but no bucket configured")
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("sagepick: retry max attempts must be at least 1, got %d", c.RetryMaxAttempts)
	}
	return nil
}
