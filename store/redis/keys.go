package redis

import "strconv"

// Redis key naming conventions for coordination data.
// All keys are prefixed with "sagepick:" to avoid collisions.

const keyPrefix = "sagepick:"

// lockKey returns the key for a job lock: sagepick:lock:{job key}
func lockKey(key string) string { return keyPrefix + "lock:" + key }

// jobStateKey returns the key for persisted job progress:
// sagepick:job_state:{job key}
func jobStateKey(key string) string { return keyPrefix + "job_state:" + key }

// changelogKey returns the key for a movie's latest diff:
// sagepick:changelog:{tmdb id}
func changelogKey(tmdbID int64) string {
	return keyPrefix + "changelog:" + strconv.FormatInt(tmdbID, 10)
}
