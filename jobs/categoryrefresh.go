package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/saiteja-velpula/sagepick.core/catalog"
	"github.com/saiteja-velpula/sagepick.core/job"
	"github.com/saiteja-velpula/sagepick.core/schedule"
)

// CategoryRefresh builds the daily category refresh job: for each derived
// category, fetch the first page of its backing list, ingest the top
// moviesPerCategory movies, and replace the category membership with the
// fresh ordering.
func CategoryRefresh(api CatalogAPI, store catalog.Store, logger *slog.Logger, trigger schedule.Cron, moviesPerCategory int) job.Definition {
	body := func(ctx context.Context) error {
		total := 0
		for _, category := range catalog.Categories() {
			n, err := refreshCategory(ctx, api, store, category, moviesPerCategory)
			if err != nil {
				return fmt.Errorf("refresh category %s: %w", category, err)
			}
			logger.Info("category refreshed",
				slog.String("category", string(category)),
				slog.Int("movies", n),
			)
			total += n
		}
		logger.Info("category refresh run complete", slog.Int("movies", total))
		return nil
	}

	return job.Definition{
		Key:     KeyCategoryRefresh,
		Trigger: trigger,
		Class:   job.ClassShort,
		Body:    body,
	}
}

func refreshCategory(ctx context.Context, api CatalogAPI, store catalog.Store, category catalog.Category, limit int) (int, error) {
	resp, err := api.CategoryMovies(ctx, category, 1)
	if err != nil {
		return 0, err
	}
	items := resp.Results
	if len(items) > limit {
		items = items[:limit]
	}

	members := make([]int64, 0, len(items))
	for _, item := range items {
		if item.ID == 0 {
			continue
		}
		m, err := fetchMovie(ctx, api, item.ID)
		if err != nil {
			return 0, err
		}
		if err := store.UpsertMovie(ctx, m); err != nil {
			return 0, fmt.Errorf("upsert movie %d: %w", item.ID, err)
		}
		members = append(members, item.ID)
	}

	if err := store.ReplaceCategory(ctx, category, members); err != nil {
		return 0, fmt.Errorf("replace membership: %w", err)
	}
	return len(members), nil
}

// DefaultCategoryRefreshTrigger fires daily at 05:00 UTC.
func DefaultCategoryRefreshTrigger() schedule.Cron {
	return schedule.MustCron(nil, 5, 0)
}
