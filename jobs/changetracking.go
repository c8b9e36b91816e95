package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/saiteja-velpula/sagepick.core/catalog"
	"github.com/saiteja-velpula/sagepick.core/changelog"
	"github.com/saiteja-velpula/sagepick.core/job"
	"github.com/saiteja-velpula/sagepick.core/schedule"
)

// ChangeTracking builds the daily change tracking job: page the changes
// feed to the end, re-fetch every changed movie, diff it against the
// persisted record, record the diff, and upsert the fresh snapshot.
//
// A page fetch failure aborts only the current run; movies already
// upserted stay, and the retried or next scheduled run converges.
func ChangeTracking(api CatalogAPI, store catalog.Store, changes changelog.Store, logger *slog.Logger, trigger schedule.Cron) job.Definition {
	body := func(ctx context.Context) error {
		processed := 0
		diffed := 0
		page := 1
		totalPages := 1

		for page <= totalPages {
			resp, err := api.MovieChanges(ctx, page)
			if err != nil {
				return fmt.Errorf("changes page %d: %w", page, err)
			}
			if len(resp.Results) == 0 {
				break
			}
			if resp.TotalPages > 0 {
				totalPages = resp.TotalPages
			}

			for _, item := range resp.Results {
				if item.ID == 0 {
					continue
				}
				changed, err := trackOne(ctx, api, store, changes, logger, item.ID)
				if err != nil {
					return err
				}
				processed++
				if changed {
					diffed++
				}
			}

			page++
			if page%10 == 0 {
				logger.Info("change tracking progress",
					slog.Int("page", page),
					slog.Int("total_pages", totalPages),
					slog.Int("processed", processed),
				)
			}
		}

		logger.Info("change tracking run complete",
			slog.Int("processed", processed),
			slog.Int("with_diffs", diffed),
		)
		return nil
	}

	return job.Definition{
		Key:     KeyChangeTracking,
		Trigger: trigger,
		Class:   job.ClassShort,
		Body:    body,
	}
}

// trackOne re-fetches one changed movie, records the field diff when the
// movie was already known, and upserts the fresh snapshot.
func trackOne(ctx context.Context, api CatalogAPI, store catalog.Store, changes changelog.Store, logger *slog.Logger, tmdbID int64) (bool, error) {
	fresh, err := fetchMovie(ctx, api, tmdbID)
	if err != nil {
		return false, err
	}

	recorded := false
	prev, err := store.Movie(ctx, tmdbID)
	switch {
	case err == nil:
		if fieldChanges := catalog.Diff(prev, fresh); len(fieldChanges) > 0 {
			entry := changelog.Entry{TMDBID: tmdbID, Changes: fieldChanges, At: fresh.FetchedAt}
			if recErr := changes.Record(ctx, entry); recErr != nil {
				// The catalog stays consistent without the diff record;
				// losing one changelog entry is not worth aborting a run.
				logger.Warn("changelog record failed",
					slog.Int64("tmdb_id", tmdbID),
					slog.String("error", recErr.Error()),
				)
			} else {
				recorded = true
			}
		}
	case errors.Is(err, catalog.ErrNotFound):
		// First sighting; nothing to diff against.
	default:
		return false, fmt.Errorf("load movie %d: %w", tmdbID, err)
	}

	if err := store.UpsertMovie(ctx, fresh); err != nil {
		return false, fmt.Errorf("upsert movie %d: %w", tmdbID, err)
	}
	return recorded, nil
}

// DefaultChangeTrackingTrigger fires daily at 02:00 UTC.
func DefaultChangeTrackingTrigger() schedule.Cron {
	return schedule.MustCron(nil, 2, 0)
}
