// Package repositories implements SQLite persistence for the match cache.
//
// [MatchCacheRepository] stores resolved source-to-target track matches
// keyed by (source catalog, source track id, target catalog), so a re-run
// of a migration can skip the matching cascade for tracks it has already
// placed.
package repositories
