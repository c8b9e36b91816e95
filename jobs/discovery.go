package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/saiteja-velpula/sagepick.core/catalog"
	"github.com/saiteja-velpula/sagepick.core/job"
	"github.com/saiteja-velpula/sagepick.core/schedule"
)

// DiscoveryConfig tunes the movie discovery job.
type DiscoveryConfig struct {
	// Interval and StartDelay drive the interval trigger.
	Interval   time.Duration
	StartDelay time.Duration
	// ItemsPerRun caps how many movies one run ingests.
	ItemsPerRun int
	// StateTTL bounds how long the page cursor survives between runs.
	// Zero keeps it indefinitely.
	StateTTL time.Duration
}

// discoveryState is the persisted page cursor.
type discoveryState struct {
	CurrentPage int `json:"current_page"`
}

// Discovery builds the movie discovery job: walk the discover feed one
// page per run, ingest up to ItemsPerRun movies, and persist the page
// cursor so the next run continues where this one left off. The cursor
// wraps back to page one at the end of the feed.
func Discovery(api CatalogAPI, store catalog.Store, state StateStore, logger *slog.Logger, cfg DiscoveryConfig) job.Definition {
	body := func(ctx context.Context) error {
		page := 1
		if raw, err := state.JobState(ctx, KeyMovieDiscovery); err != nil {
			// A lost cursor only means re-walking a page of idempotent
			// upserts; not worth failing the run.
			logger.Warn("discovery cursor unavailable, starting from page 1",
				slog.String("error", err.Error()),
			)
		} else if raw != nil {
			var st discoveryState
			if jsonErr := json.Unmarshal(raw, &st); jsonErr == nil && st.CurrentPage > 0 {
				page = st.CurrentPage
			}
		}

		resp, err := api.DiscoverMovies(ctx, page)
		if err != nil {
			return fmt.Errorf("discover page %d: %w", page, err)
		}
		if len(resp.Results) == 0 {
			logger.Warn("no movies on discover page", slog.Int("page", page))
			return saveDiscoveryCursor(ctx, state, 1, cfg.StateTTL)
		}

		items := resp.Results
		if len(items) > cfg.ItemsPerRun {
			items = items[:cfg.ItemsPerRun]
		}

		processed := 0
		for _, item := range items {
			if item.ID == 0 {
				continue
			}
			m, err := fetchMovie(ctx, api, item.ID)
			if err != nil {
				// Abort the run; pages already upserted are retained and
				// the retried run converges via idempotent upserts.
				return err
			}
			if err := store.UpsertMovie(ctx, m); err != nil {
				return fmt.Errorf("upsert movie %d: %w", item.ID, err)
			}
			processed++
		}

		next := page + 1
		if resp.TotalPages > 0 && page >= resp.TotalPages {
			logger.Info("reached end of discover feed, wrapping to page 1")
			next = 1
		}
		if err := saveDiscoveryCursor(ctx, state, next, cfg.StateTTL); err != nil {
			return err
		}

		logger.Info("discovery run complete",
			slog.Int("page", page),
			slog.Int("processed", processed),
			slog.Int("next_page", next),
		)
		return nil
	}

	return job.Definition{
		Key:     KeyMovieDiscovery,
		Trigger: schedule.Interval{Every: cfg.Interval, StartDelay: cfg.StartDelay},
		Class:   job.ClassShort,
		Body:    body,
	}
}

func saveDiscoveryCursor(ctx context.Context, state StateStore, page int, ttl time.Duration) error {
	raw, err := json.Marshal(discoveryState{CurrentPage: page})
	if err != nil {
		return fmt.Errorf("marshal discovery cursor: %w", err)
	}
	if err := state.SetJobState(ctx, KeyMovieDiscovery, raw, ttl); err != nil {
		return fmt.Errorf("save discovery cursor: %w", err)
	}
	return nil
}
