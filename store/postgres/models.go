package postgres

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/saiteja-velpula/sagepick.core/catalog"
)

type movieModel struct {
	bun.BaseModel `bun:"table:movies"`

	TMDBID           int64     `bun:"tmdb_id,pk"`
	Title            string    `bun:"title"`
	OriginalTitle    string    `bun:"original_title"`
	Overview         string    `bun:"overview"`
	ReleaseDate      time.Time `bun:"release_date,nullzero"`
	OriginalLanguage string    `bun:"original_language"`
	Runtime          int       `bun:"runtime"`
	Status           string    `bun:"status"`
	Adult            bool      `bun:"adult"`
	VoteAverage      float64   `bun:"vote_average"`
	VoteCount        int64     `bun:"vote_count"`
	Popularity       float64   `bun:"popularity"`
	Budget           int64     `bun:"budget"`
	Revenue          int64     `bun:"revenue"`
	FetchedAt        time.Time `bun:"fetched_at"`
}

type genreModel struct {
	bun.BaseModel `bun:"table:genres"`

	TMDBID int64  `bun:"tmdb_id,pk"`
	Name   string `bun:"name"`
}

type keywordModel struct {
	bun.BaseModel `bun:"table:keywords"`

	TMDBID int64  `bun:"tmdb_id,pk"`
	Name   string `bun:"name"`
}

type movieGenreModel struct {
	bun.BaseModel `bun:"table:movie_genres"`

	MovieTMDBID int64 `bun:"movie_tmdb_id,pk"`
	GenreTMDBID int64 `bun:"genre_tmdb_id,pk"`
}

type movieKeywordModel struct {
	bun.BaseModel `bun:"table:movie_keywords"`

	MovieTMDBID   int64 `bun:"movie_tmdb_id,pk"`
	KeywordTMDBID int64 `bun:"keyword_tmdb_id,pk"`
}

type categoryMovieModel struct {
	bun.BaseModel `bun:"table:category_movies"`

	Category    string `bun:"category,pk"`
	MovieTMDBID int64  `bun:"movie_tmdb_id,pk"`
	Position    int    `bun:"position"`
}

func movieToModel(m *catalog.Movie) *movieModel {
	return &movieModel{
		TMDBID:           m.TMDBID,
		Title:            m.Title,
		OriginalTitle:    m.OriginalTitle,
		Overview:         m.Overview,
		ReleaseDate:      m.ReleaseDate,
		OriginalLanguage: m.OriginalLanguage,
		Runtime:          m.Runtime,
		Status:           m.Status,
		Adult:            m.Adult,
		VoteAverage:      m.VoteAverage,
		VoteCount:        m.VoteCount,
		Popularity:       m.Popularity,
		Budget:           m.Budget,
		Revenue:          m.Revenue,
		FetchedAt:        m.FetchedAt,
	}
}

func modelToMovie(m *movieModel) *catalog.Movie {
	return &catalog.Movie{
		TMDBID:           m.TMDBID,
		Title:            m.Title,
		OriginalTitle:    m.OriginalTitle,
		Overview:         m.Overview,
		ReleaseDate:      m.ReleaseDate,
		OriginalLanguage: m.OriginalLanguage,
		Runtime:          m.Runtime,
		Status:           m.Status,
		Adult:            m.Adult,
		VoteAverage:      m.VoteAverage,
		VoteCount:        m.VoteCount,
		Popularity:       m.Popularity,
		Budget:           m.Budget,
		Revenue:          m.Revenue,
		FetchedAt:        m.FetchedAt,
	}
}
