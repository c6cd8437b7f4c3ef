// Package models defines the persistence entity and repository interfaces
// used by crossfade's match cache.
//
// [MatchCacheEntry] implements the Model interface providing ID generation,
// timestamps, and validation. The Repository[T] interface defines standard
// CRUD operations for database access.
package models
