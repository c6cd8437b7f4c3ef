// Package catalog defines the source/target track and playlist DTOs shared
// by every catalog client, plus the two narrow interfaces the rest of the
// pipeline programs against.
package catalog

import "context"

// SourceTrack is an immutable descriptor of a track in the source catalog.
//
// Constructed by the source-catalog fetcher; read-only within the rest of
// the pipeline.
type SourceTrack struct {
	ID          string   // Source-catalog track id
	Title       string
	Artists     []string // Ordered list of artist names
	Album       string
	DurationMS  int // Duration in milliseconds
	TrackNumber int
	ISRC        string // May be empty
}

// TargetTrack is an immutable descriptor of a track in the target catalog.
//
// Constructed by the catalog client; read-only.
type TargetTrack struct {
	ID        string // Target-catalog track id
	Title     string
	Artists   []string
	DurationS int // Duration in seconds
	ISRC      string
}

// PlaylistItem is a (target id, title, artists, duration) tuple captured in
// a TargetPlaylist snapshot.
type PlaylistItem struct {
	TargetID  string
	Title     string
	Artists   []string
	DurationS int
}

// TargetPlaylist is the mutable named collection the Mutator operates on.
//
// Invariants: TotalItems equals len(Items) at any externally visible point;
// UUID is stable; Items are ordered and a given item occupies a unique
// zero-based index.
type TargetPlaylist struct {
	UUID        string
	Title       string
	Description string
	ETag        string // Opaque version token, echoed on mutation
	TotalItems  int
	Items       []PlaylistItem
}

// SourcePlaylist is a minimal playlist reference as discovered through the
// source catalog's listing endpoint.
type SourcePlaylist struct {
	ID         string
	Name       string
	TrackCount int
}

// SourceCatalog is the read-only surface the pipeline needs from the
// catalog a user is migrating away from.
type SourceCatalog interface {
	// Name returns a short human-readable catalog name, e.g. "Spotify".
	Name() string
	// ListPlaylists pages through the current user's playlists.
	ListPlaylists(ctx context.Context) ([]SourcePlaylist, error)
	// PlaylistTracks pages through a playlist's tracks in source order,
	// skipping any item whose track field is null.
	PlaylistTracks(ctx context.Context, playlistID string) ([]SourceTrack, error)
}

// TargetCatalog is the read/write surface the Mutator and Matching Engine
// need from the catalog tracks are migrated into.
type TargetCatalog interface {
	Name() string

	// ListPlaylists pages through the current user's playlists, 50 at a
	// time, in whatever order the service returns them.
	ListPlaylists(ctx context.Context) ([]TargetPlaylist, error)

	// CreatePlaylist creates a playlist with the given title and
	// description and returns it, uuid included. If the create response
	// omits the uuid, the implementation falls back to ListPlaylists.
	CreatePlaylist(ctx context.Context, title, description string) (*TargetPlaylist, error)

	// GetPlaylist fetches the current representation of a playlist,
	// including its ETag.
	GetPlaylist(ctx context.Context, uuid string) (*TargetPlaylist, error)

	// PlaylistItems pages through a playlist's items, 100 at a time.
	PlaylistItems(ctx context.Context, uuid string) ([]PlaylistItem, error)

	// UpdatePlaylistDescription updates title/description in place.
	UpdatePlaylistDescription(ctx context.Context, uuid, title, description string) error

	// AddItems adds target track ids to a playlist under the given ETag,
	// with server-side duplicate policy SKIP. Returns the new ETag on
	// success, or an error wrapping shared.ErrEntityTagMismatch on a
	// stale-tag conflict so the Mutator can fall back to per-item adds.
	AddItems(ctx context.Context, uuid, etag string, targetIDs []string) (newETag string, err error)

	// DeleteItems removes items at the given zero-based indices under the
	// given ETag. Caller is responsible for ordering indices descending.
	DeleteItems(ctx context.Context, uuid, etag string, indices []int) (newETag string, err error)

	// SearchTracks runs a free-text query and returns up to limit results.
	SearchTracks(ctx context.Context, query string, limit int) ([]TargetTrack, error)
}
