// Package changelog is the pluggable sink for change-tracking diffs.
// Whether history is append-only or last-diff-only, and how long it is
// kept, is a property of the chosen backend and its retention
// configuration, not of the tracking job.
package changelog

import (
	"context"
	"time"

	"github.com/saiteja-velpula/sagepick.core/catalog"
)

// Entry is one recorded diff for a movie.
type Entry struct {
	TMDBID  int64                 `json:"tmdb_id"`
	Changes []catalog.FieldChange `json:"changes"`
	At      time.Time             `json:"at"`
}

// Store records and reads back change entries.
type Store interface {
	// Record persists an entry. Backends decide whether it replaces the
	// previous entry for the movie or appends to a history.
	Record(ctx context.Context, e Entry) error

	// Latest returns the most recent entry for tmdbID, or nil when none
	// is retained.
	Latest(ctx context.Context, tmdbID int64) (*Entry, error)
}
