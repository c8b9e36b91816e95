// Package postgres is the bun-backed catalog store. Upserts are
// freshness-guarded ON CONFLICT updates keyed by the immutable TMDB id,
// so two not-yet-converged runs writing the same movie settle on the
// newer snapshot regardless of interleaving.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/uptrace/bun"

	"github.com/saiteja-velpula/sagepick.core/catalog"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Compile-time interface check.
var _ catalog.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store is the Postgres catalog store. The caller owns the *bun.DB
// lifecycle; Store never closes it.
type Store struct {
	db     *bun.DB
	logger *slog.Logger
}

// New creates a Store on top of db.
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying *bun.DB for advanced usage.
func (s *Store) DB() *bun.DB { return s.db }

// Migrate runs all embedded SQL migration files in order.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS sagepick_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("sagepick/postgres: create migrations table: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("sagepick/postgres: read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		var applied bool
		err = s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM sagepick_migrations WHERE filename = ?)`,
			entry.Name(),
		).Scan(&applied)
		if err != nil {
			return fmt.Errorf("sagepick/postgres: check migration %s: %w", entry.Name(), err)
		}
		if applied {
			continue
		}

		data, readErr := fs.ReadFile(migrationsFS, "migrations/"+entry.Name())
		if readErr != nil {
			return fmt.Errorf("sagepick/postgres: read migration %s: %w", entry.Name(), readErr)
		}
		if _, execErr := s.db.ExecContext(ctx, string(data)); execErr != nil {
			return fmt.Errorf("sagepick/postgres: execute migration %s: %w", entry.Name(), execErr)
		}
		if _, recErr := s.db.ExecContext(ctx,
			`INSERT INTO sagepick_migrations (filename) VALUES (?)`, entry.Name(),
		); recErr != nil {
			return fmt.Errorf("sagepick/postgres: record migration %s: %w", entry.Name(), recErr)
		}

		s.logger.Info("migration applied", slog.String("filename", entry.Name()))
	}
	return nil
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// UpsertMovie inserts or updates the movie and its attachments in one
// transaction. An existing record with a strictly newer fetched_at wins;
// the incoming snapshot is then dropped wholesale, attachments included.
func (s *Store) UpsertMovie(ctx context.Context, m *catalog.Movie) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var existing movieModel
		err := tx.NewSelect().
			Model(&existing).
			Where("tmdb_id = ?", m.TMDBID).
			For("UPDATE").
			Scan(ctx)
		switch {
		case err == nil:
			if existing.FetchedAt.After(m.FetchedAt) {
				return nil
			}
		case errors.Is(err, sql.ErrNoRows):
			// First sighting.
		default:
			return fmt.Errorf("sagepick/postgres: select movie %d: %w", m.TMDBID, err)
		}

		model := movieToModel(m)
		_, err = tx.NewInsert().
			Model(model).
			On("CONFLICT (tmdb_id) DO UPDATE").
			Set("title = EXCLUDED.title").
			Set("original_title = EXCLUDED.original_title").
			Set("overview = EXCLUDED.overview").
			Set("release_date = EXCLUDED.release_date").
			Set("original_language = EXCLUDED.original_language").
			Set("runtime = EXCLUDED.runtime").
			Set("status = EXCLUDED.status").
			Set("adult = EXCLUDED.adult").
			Set("vote_average = EXCLUDED.vote_average").
			Set("vote_count = EXCLUDED.vote_count").
			Set("popularity = EXCLUDED.popularity").
			Set("budget = EXCLUDED.budget").
			Set("revenue = EXCLUDED.revenue").
			Set("fetched_at = EXCLUDED.fetched_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("sagepick/postgres: upsert movie %d: %w", m.TMDBID, err)
		}

		if err := replaceGenres(ctx, tx, m); err != nil {
			return err
		}
		return replaceKeywords(ctx, tx, m)
	})
}

func replaceGenres(ctx context.Context, tx bun.Tx, m *catalog.Movie) error {
	if len(m.Genres) > 0 {
		rows := make([]genreModel, len(m.Genres))
		for i, g := range m.Genres {
			rows[i] = genreModel{TMDBID: g.TMDBID, Name: g.Name}
		}
		_, err := tx.NewInsert().
			Model(&rows).
			On("CONFLICT (tmdb_id) DO UPDATE").
			Set("name = EXCLUDED.name").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("sagepick/postgres: upsert genres: %w", err)
		}
	}

	_, err := tx.NewDelete().
		Model((*movieGenreModel)(nil)).
		Where("movie_tmdb_id = ?", m.TMDBID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("sagepick/postgres: clear movie genres %d: %w", m.TMDBID, err)
	}
	if len(m.Genres) == 0 {
		return nil
	}

	joins := make([]movieGenreModel, len(m.Genres))
	for i, g := range m.Genres {
		joins[i] = movieGenreModel{MovieTMDBID: m.TMDBID, GenreTMDBID: g.TMDBID}
	}
	if _, err := tx.NewInsert().Model(&joins).Exec(ctx); err != nil {
		return fmt.Errorf("sagepick/postgres: attach genres %d: %w", m.TMDBID, err)
	}
	return nil
}

func replaceKeywords(ctx context.Context, tx bun.Tx, m *catalog.Movie) error {
	if len(m.Keywords) > 0 {
		rows := make([]keywordModel, len(m.Keywords))
		for i, k := range m.Keywords {
			rows[i] = keywordModel{TMDBID: k.TMDBID, Name: k.Name}
		}
		_, err := tx.NewInsert().
			Model(&rows).
			On("CONFLICT (tmdb_id) DO UPDATE").
			Set("name = EXCLUDED.name").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("sagepick/postgres: upsert keywords: %w", err)
		}
	}

	_, err := tx.NewDelete().
		Model((*movieKeywordModel)(nil)).
		Where("movie_tmdb_id = ?", m.TMDBID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("sagepick/postgres: clear movie keywords %d: %w", m.TMDBID, err)
	}
	if len(m.Keywords) == 0 {
		return nil
	}

	joins := make([]movieKeywordModel, len(m.Keywords))
	for i, k := range m.Keywords {
		joins[i] = movieKeywordModel{MovieTMDBID: m.TMDBID, KeywordTMDBID: k.TMDBID}
	}
	if _, err := tx.NewInsert().Model(&joins).Exec(ctx); err != nil {
		return fmt.Errorf("sagepick/postgres: attach keywords %d: %w", m.TMDBID, err)
	}
	return nil
}

// Movie returns one movie with attachments, or catalog.ErrNotFound.
func (s *Store) Movie(ctx context.Context, tmdbID int64) (*catalog.Movie, error) {
	var model movieModel
	err := s.db.NewSelect().
		Model(&model).
		Where("tmdb_id = ?", tmdbID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("sagepick/postgres: select movie %d: %w", tmdbID, err)
	}

	m := modelToMovie(&model)
	if err := s.loadAttachments(ctx, map[int64]*catalog.Movie{tmdbID: m}); err != nil {
		return nil, err
	}
	return m, nil
}

// Movies returns every catalog item ordered by ascending TMDB id, with
// attachments ordered by ascending TMDB id.
func (s *Store) Movies(ctx context.Context) ([]*catalog.Movie, error) {
	var models []movieModel
	err := s.db.NewSelect().
		Model(&models).
		Order("tmdb_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("sagepick/postgres: select movies: %w", err)
	}

	out := make([]*catalog.Movie, len(models))
	byID := make(map[int64]*catalog.Movie, len(models))
	for i := range models {
		m := modelToMovie(&models[i])
		out[i] = m
		byID[m.TMDBID] = m
	}
	if err := s.loadAttachments(ctx, byID); err != nil {
		return nil, err
	}
	return out, nil
}

// loadAttachments fills genres and keywords for the given movies with two
// join queries instead of per-movie round trips.
func (s *Store) loadAttachments(ctx context.Context, byID map[int64]*catalog.Movie) error {
	if len(byID) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}

	var genreRows []struct {
		MovieTMDBID int64  `bun:"movie_tmdb_id"`
		TMDBID      int64  `bun:"tmdb_id"`
		Name        string `bun:"name"`
	}
	err := s.db.NewSelect().
		TableExpr("movie_genres AS mg").
		ColumnExpr("mg.movie_tmdb_id, g.tmdb_id, g.name").
		Join("JOIN genres AS g ON g.tmdb_id = mg.genre_tmdb_id").
		Where("mg.movie_tmdb_id IN (?)", bun.In(ids)).
		OrderExpr("mg.movie_tmdb_id ASC, g.tmdb_id ASC").
		Scan(ctx, &genreRows)
	if err != nil {
		return fmt.Errorf("sagepick/postgres: select genres: %w", err)
	}
	for _, row := range genreRows {
		m := byID[row.MovieTMDBID]
		m.Genres = append(m.Genres, catalog.Genre{TMDBID: row.TMDBID, Name: row.Name})
	}

	var keywordRows []struct {
		MovieTMDBID int64  `bun:"movie_tmdb_id"`
		TMDBID      int64  `bun:"tmdb_id"`
		Name        string `bun:"name"`
	}
	err = s.db.NewSelect().
		TableExpr("movie_keywords AS mk").
		ColumnExpr("mk.movie_tmdb_id, k.tmdb_id, k.name").
		Join("JOIN keywords AS k ON k.tmdb_id = mk.keyword_tmdb_id").
		Where("mk.movie_tmdb_id IN (?)", bun.In(ids)).
		OrderExpr("mk.movie_tmdb_id ASC, k.tmdb_id ASC").
		Scan(ctx, &keywordRows)
	if err != nil {
		return fmt.Errorf("sagepick/postgres: select keywords: %w", err)
	}
	for _, row := range keywordRows {
		m := byID[row.MovieTMDBID]
		m.Keywords = append(m.Keywords, catalog.Keyword{TMDBID: row.TMDBID, Name: row.Name})
	}
	return nil
}

// ReplaceCategory replaces category membership, preserving order.
func (s *Store) ReplaceCategory(ctx context.Context, category catalog.Category, tmdbIDs []int64) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewDelete().
			Model((*categoryMovieModel)(nil)).
			Where("category = ?", string(category)).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("sagepick/postgres: clear category %s: %w", category, err)
		}
		if len(tmdbIDs) == 0 {
			return nil
		}

		rows := make([]categoryMovieModel, len(tmdbIDs))
		for i, id := range tmdbIDs {
			rows[i] = categoryMovieModel{Category: string(category), MovieTMDBID: id, Position: i}
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("sagepick/postgres: fill category %s: %w", category, err)
		}
		return nil
	})
}

// CategoryMovies returns category membership in stored order.
func (s *Store) CategoryMovies(ctx context.Context, category catalog.Category) ([]int64, error) {
	var rows []categoryMovieModel
	err := s.db.NewSelect().
		Model(&rows).
		Where("category = ?", string(category)).
		Order("position ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("sagepick/postgres: select category %s: %w", category, err)
	}
	out := make([]int64, len(rows))
	for i, row := range rows {
		out[i] = row.MovieTMDBID
	}
	return out, nil
}
