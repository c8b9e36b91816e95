// Package jobs holds the recurring job bodies: movie discovery, change
// tracking, category refresh, and the dataset export definition. Each
// body depends only on the runner contract — it is a plain function that
// either completes or returns a classified error for the retry policy.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/saiteja-velpula/sagepick.core/catalog"
	"github.com/saiteja-velpula/sagepick.core/tmdb"
)

// Job keys. Stable across restarts; they double as the distributed lock
// keys, so renaming one changes its mutual-exclusion domain.
const (
	KeyMovieDiscovery  = "movie_discovery_job"
	KeyChangeTracking  = "change_tracking_job"
	KeyCategoryRefresh = "category_refresh_job"
	KeyDatasetExport   = "dataset_export_job"
)

// CatalogAPI is the slice of the external catalog API the sync jobs use.
// *tmdb.Client satisfies it.
type CatalogAPI interface {
	DiscoverMovies(ctx context.Context, page int) (*tmdb.ListPage, error)
	MovieChanges(ctx context.Context, page int) (*tmdb.ChangesPage, error)
	CategoryMovies(ctx context.Context, category catalog.Category, page int) (*tmdb.ListPage, error)
	Movie(ctx context.Context, tmdbID int64) (*catalog.Movie, error)
	MovieKeywords(ctx context.Context, tmdbID int64) ([]catalog.Keyword, error)
}

// StateStore persists small bits of per-job progress between runs, such as
// the discovery page cursor. Values are opaque bytes with a TTL.
type StateStore interface {
	JobState(ctx context.Context, key string) ([]byte, error)
	SetJobState(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// fetchMovie pulls the full record for one movie: details plus keywords,
// combined into a single catalog snapshot ready to upsert.
func fetchMovie(ctx context.Context, api CatalogAPI, tmdbID int64) (*catalog.Movie, error) {
	m, err := api.Movie(ctx, tmdbID)
	if err != nil {
		return nil, fmt.Errorf("fetch movie %d: %w", tmdbID, err)
	}
	keywords, err := api.MovieKeywords(ctx, tmdbID)
	if err != nil {
		return nil, fmt.Errorf("fetch keywords %d: %w", tmdbID, err)
	}
	m.Keywords = keywords
	return m, nil
}
