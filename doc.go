// Package sagepick is the job orchestration core of the SAGEPICK catalog
// service. It keeps a movie catalog in sync with an external rate-limited
// API, tracks incremental changes, refreshes derived categories, and
// periodically exports a denormalised CSV snapshot to object storage.
//
// The root package holds configuration, the shared error taxonomy, and the
// Service coordinator. The moving parts live in subsystem packages:
//
//   - schedule:  trigger math (interval and UTC cron triggers)
//   - lock:      distributed per-job-key mutual exclusion with TTL expiry
//   - retry:     bounded backoff policies
//   - ratelimit: token-paced gate in front of the catalog API
//   - runner:    lock + retry wrapper around a job body
//   - scheduler: tick loop firing registered jobs at their due times
//   - jobs:      discovery, change tracking, category refresh bodies
//   - export:    CSV snapshot projection and the dated/stable write pattern
//
// Backends implement the subsystem capability interfaces under store/
// (memory, redis, postgres, s3). Multiple processes may run the full
// Service concurrently; the distributed lock serialises every job key
// system-wide, so a duplicate scheduler instance degrades to skipped
// fires rather than duplicate runs.
package sagepick
