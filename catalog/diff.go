package catalog

import (
	"sort"
	"strconv"
	"strings"
)

// FieldChange records one changed field between two snapshots of a movie.
type FieldChange struct {
	Field string
	Old   string
	New   string
}

// Diff compares two snapshots of the same movie and returns the fields
// that changed, in a fixed field order. Genre and keyword sets are
// compared as ordered id lists, so attachment churn shows up as a single
// change each.
func Diff(old, new *Movie) []FieldChange {
	var changes []FieldChange
	add := func(field, o, n string) {
		if o != n {
			changes = append(changes, FieldChange{Field: field, Old: o, New: n})
		}
	}

	add("title", old.Title, new.Title)
	add("original_title", old.OriginalTitle, new.OriginalTitle)
	add("overview", old.Overview, new.Overview)
	add("release_date", dateString(old), dateString(new))
	add("original_language", old.OriginalLanguage, new.OriginalLanguage)
	add("runtime", strconv.Itoa(old.Runtime), strconv.Itoa(new.Runtime))
	add("status", old.Status, new.Status)
	add("adult", strconv.FormatBool(old.Adult), strconv.FormatBool(new.Adult))
	add("vote_average", formatFloat(old.VoteAverage), formatFloat(new.VoteAverage))
	add("vote_count", strconv.FormatInt(old.VoteCount, 10), strconv.FormatInt(new.VoteCount, 10))
	add("popularity", formatFloat(old.Popularity), formatFloat(new.Popularity))
	add("budget", strconv.FormatInt(old.Budget, 10), strconv.FormatInt(new.Budget, 10))
	add("revenue", strconv.FormatInt(old.Revenue, 10), strconv.FormatInt(new.Revenue, 10))
	add("genres", genreIDs(old.Genres), genreIDs(new.Genres))
	add("keywords", keywordIDs(old.Keywords), keywordIDs(new.Keywords))

	return changes
}

func dateString(m *Movie) string {
	if m.ReleaseDate.IsZero() {
		return ""
	}
	return m.ReleaseDate.Format("2006-01-02")
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func genreIDs(gs []Genre) string {
	ids := make([]int64, len(gs))
	for i, g := range gs {
		ids[i] = g.TMDBID
	}
	return joinIDs(ids)
}

func keywordIDs(ks []Keyword) string {
	ids := make([]int64, len(ks))
	for i, k := range ks {
		ids[i] = k.TMDBID
	}
	return joinIDs(ids)
}

func joinIDs(ids []int64) string {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, "|")
}
