// Package export produces the denormalised dataset snapshot: catalog items
// projected into a fixed CSV schema, written to object storage under a
// dated immutable key and a stable "latest" key.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/saiteja-velpula/sagepick.core/catalog"
)

// Header is the fixed CSV column order. Changing it breaks downstream
// consumers; treat it as a wire format.
var Header = []string{
	"movie_id",
	"tmdb_id",
	"title",
	"original_title",
	"overview",
	"release_date",
	"original_language",
	"runtime_minutes",
	"status",
	"adult",
	"vote_average",
	"vote_count",
	"popularity",
	"budget_usd",
	"revenue_usd",
	"genres",
	"genre_ids",
	"genre_count",
	"keywords",
	"keyword_ids",
	"keyword_count",
}

// Row is one flattened catalog item. Multi-valued fields are
// pipe-delimited, ordered by ascending TMDB id so snapshots stay
// diff-friendly across runs.
type Row struct {
	MovieID          int64
	TMDBID           int64
	Title            string
	OriginalTitle    string
	Overview         string
	ReleaseDate      string
	OriginalLanguage string
	RuntimeMinutes   int
	Status           string
	Adult            bool
	VoteAverage      float64
	VoteCount        int64
	Popularity       float64
	BudgetUSD        int64
	RevenueUSD       int64
	Genres           string
	GenreIDs         string
	GenreCount       int
	Keywords         string
	KeywordIDs       string
	KeywordCount     int
}

// Project flattens a catalog movie into a Row. The catalog has no internal
// surrogate id, so movie_id mirrors the TMDB id.
func Project(m *catalog.Movie) Row {
	r := Row{
		MovieID:          m.TMDBID,
		TMDBID:           m.TMDBID,
		Title:            m.Title,
		OriginalTitle:    m.OriginalTitle,
		Overview:         m.Overview,
		OriginalLanguage: m.OriginalLanguage,
		RuntimeMinutes:   m.Runtime,
		Status:           m.Status,
		Adult:            m.Adult,
		VoteAverage:      m.VoteAverage,
		VoteCount:        m.VoteCount,
		Popularity:       m.Popularity,
		BudgetUSD:        m.Budget,
		RevenueUSD:       m.Revenue,
	}
	if !m.ReleaseDate.IsZero() {
		r.ReleaseDate = m.ReleaseDate.Format("2006-01-02")
	}

	genres := append([]catalog.Genre(nil), m.Genres...)
	sort.Slice(genres, func(i, j int) bool { return genres[i].TMDBID < genres[j].TMDBID })
	gNames := make([]string, len(genres))
	gIDs := make([]string, len(genres))
	for i, g := range genres {
		gNames[i] = g.Name
		gIDs[i] = strconv.FormatInt(g.TMDBID, 10)
	}
	r.Genres = strings.Join(gNames, "|")
	r.GenreIDs = strings.Join(gIDs, "|")
	r.GenreCount = len(genres)

	keywords := append([]catalog.Keyword(nil), m.Keywords...)
	sort.Slice(keywords, func(i, j int) bool { return keywords[i].TMDBID < keywords[j].TMDBID })
	kNames := make([]string, len(keywords))
	kIDs := make([]string, len(keywords))
	for i, k := range keywords {
		kNames[i] = k.Name
		kIDs[i] = strconv.FormatInt(k.TMDBID, 10)
	}
	r.Keywords = strings.Join(kNames, "|")
	r.KeywordIDs = strings.Join(kIDs, "|")
	r.KeywordCount = len(keywords)

	return r
}

// record returns the row in Header column order.
func (r Row) record() []string {
	return []string{
		strconv.FormatInt(r.MovieID, 10),
		strconv.FormatInt(r.TMDBID, 10),
		r.Title,
		r.OriginalTitle,
		r.Overview,
		r.ReleaseDate,
		r.OriginalLanguage,
		strconv.Itoa(r.RuntimeMinutes),
		r.Status,
		strconv.FormatBool(r.Adult),
		strconv.FormatFloat(r.VoteAverage, 'f', -1, 64),
		strconv.FormatInt(r.VoteCount, 10),
		strconv.FormatFloat(r.Popularity, 'f', -1, 64),
		strconv.FormatInt(r.BudgetUSD, 10),
		strconv.FormatInt(r.RevenueUSD, 10),
		r.Genres,
		r.GenreIDs,
		strconv.Itoa(r.GenreCount),
		r.Keywords,
		r.KeywordIDs,
		strconv.Itoa(r.KeywordCount),
	}
}

// EncodeCSV serialises rows with the header line. Output bytes are
// deterministic for the same input, so identical catalog state yields
// byte-identical snapshots.
func EncodeCSV(rows []Row) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Header); err != nil {
		return nil, fmt.Errorf("export: write header: %w", err)
	}
	for _, r := range rows {
		if err := w.Write(r.record()); err != nil {
			return nil, fmt.Errorf("export: write row %d: %w", r.TMDBID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("export: flush: %w", err)
	}
	return buf.Bytes(), nil
}
