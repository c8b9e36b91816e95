// Package catalog defines the persisted movie catalog: domain types keyed
// by the immutable TMDB identifier, the transactional store capability the
// sync jobs write through, and field diffing for change tracking.
package catalog

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a movie is not in the catalog.
var ErrNotFound = errors.New("catalog: movie not found")

// Genre is a TMDB genre attached to a movie.
type Genre struct {
	TMDBID int64
	Name   string
}

// Keyword is a TMDB keyword attached to a movie.
type Keyword struct {
	TMDBID int64
	Name   string
}

// Movie is one catalog item. TMDBID is the immutable external identifier
// and the upsert key. FetchedAt stamps when this snapshot was taken from
// the API; it is the freshness rule for concurrent upserts: the record
// with the newer FetchedAt wins wholesale, never a field-level merge.
type Movie struct {
	TMDBID           int64
	Title            string
	OriginalTitle    string
	Overview         string
	ReleaseDate      time.Time // zero when unknown
	OriginalLanguage string
	Runtime          int
	Status           string
	Adult            bool
	VoteAverage      float64
	VoteCount        int64
	Popularity       float64
	Budget           int64
	Revenue          int64
	Genres           []Genre
	Keywords         []Keyword
	FetchedAt        time.Time
}

// Category is a derived movie list refreshed daily from the API.
type Category string

// The fixed category set.
const (
	CategoryTrending   Category = "trending"
	CategoryPopular    Category = "popular"
	CategoryTopRated   Category = "top_rated"
	CategoryUpcoming   Category = "upcoming"
	CategoryNowPlaying Category = "now_playing"
)

// Categories lists all refreshed categories in refresh order.
func Categories() []Category {
	return []Category{
		CategoryTrending,
		CategoryPopular,
		CategoryTopRated,
		CategoryUpcoming,
		CategoryNowPlaying,
	}
}

// Store is the relational store capability. All catalog mutation goes
// through UpsertMovie so two not-yet-converged runs upserting the same
// item settle on the fresher snapshot regardless of interleaving.
type Store interface {
	// UpsertMovie inserts or updates m by TMDBID inside one transaction,
	// including genre and keyword attachments. An existing record with a
	// newer FetchedAt than m is left untouched.
	UpsertMovie(ctx context.Context, m *Movie) error

	// Movie returns the persisted record for tmdbID, or ErrNotFound.
	Movie(ctx context.Context, tmdbID int64) (*Movie, error)

	// Movies returns every catalog item ordered by ascending TMDBID, with
	// genres and keywords ordered by ascending TMDBID as well.
	Movies(ctx context.Context) ([]*Movie, error)

	// ReplaceCategory replaces the membership of category with tmdbIDs,
	// preserving their order.
	ReplaceCategory(ctx context.Context, category Category, tmdbIDs []int64) error

	// CategoryMovies returns the member TMDB ids of category in stored order.
	CategoryMovies(ctx context.Context, category Category) ([]int64, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
}
