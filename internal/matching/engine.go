// Package matching implements the cascaded track-resolution strategy: a
// source track is resolved to a target-catalog id by trying, in order, a
// metadata match against an existing playlist snapshot, a universal-link
// lookup, and a target-catalog search with multi-query fallback.
package matching

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/crossfade/internal/catalog"
	"github.com/desertthunder/crossfade/internal/shared"
)

// ResolutionSource tags how a Hit was found, for the audit trail.
type ResolutionSource string

const (
	MetadataMatch        ResolutionSource = "metadata_match"
	UniversalLink        ResolutionSource = "universal_link"
	TargetSearch         ResolutionSource = "target_search"
	TargetSearchFallback ResolutionSource = "target_search_fallback"
	Existing             ResolutionSource = "existing"
)

// Outcome is the sum-type tag for a cascade step's result, so callers never
// need to inspect an error to decide whether to keep falling through the
// cascade.
type Outcome int

const (
	Miss Outcome = iota
	Hit
	Transient
)

// Result is what every cascade step returns.
type Result struct {
	Outcome Outcome
	Track   *catalog.TargetTrack
	Source  ResolutionSource
	Err     error // populated only when Outcome == Transient
}

func hit(t *catalog.TargetTrack, src ResolutionSource) Result {
	return Result{Outcome: Hit, Track: t, Source: src}
}

func miss() Result { return Result{Outcome: Miss} }

func transient(err error) Result { return Result{Outcome: Transient, Err: err} }

// durationToleranceSeconds is the fixed tolerance used by every metadata
// comparison in the cascade (REDESIGN FLAG iv: 2s everywhere, not just
// snapshot matching).
const durationToleranceSeconds = 2

// LinkResolver is the subset of the Odesli client the engine depends on.
type LinkResolver interface {
	// ResolveTidalID looks up a source track URL/id and returns the
	// target-catalog id, or ("", nil) for a definitive 404 miss.
	ResolveTidalID(ctx context.Context, sourceTrackURL string) (string, error)
}

// Engine implements the four-step cascade described in §4.1.
type Engine struct {
	links  LinkResolver
	target catalog.TargetCatalog
	logger *log.Logger
}

// New creates an Engine over the given universal-link resolver and target
// catalog client.
func New(links LinkResolver, target catalog.TargetCatalog) *Engine {
	return &Engine{links: links, target: target, logger: shared.NewLogger(nil)}
}

// MatchSnapshot is step 1: metadata match against an existing target
// playlist snapshot. Returns the first candidate that passes all three
// predicates (duration, remix parity, title containment) and shares at
// least one artist.
func (e *Engine) MatchSnapshot(src catalog.SourceTrack, snapshot []catalog.PlaylistItem) (catalog.PlaylistItem, bool) {
	for _, candidate := range snapshot {
		if metadataMatches(src, candidate.Title, candidate.Artists, candidate.DurationS) {
			return candidate, true
		}
	}
	return catalog.PlaylistItem{}, false
}

// metadataMatches implements the three predicates shared by step 1 and
// step 3's ISRC-less branch: duration within tolerance, remix parity, and
// title containment after normalization, plus artist overlap.
func metadataMatches(src catalog.SourceTrack, targetTitle string, targetArtists []string, targetDurationS int) bool {
	sourceDurationS := float64(src.DurationMS) / 1000.0
	if math.Abs(float64(targetDurationS)-sourceDurationS) > durationToleranceSeconds {
		return false
	}

	if containsRemixWord(src.Title) != containsRemixWord(targetTitle) {
		return false
	}

	if !titlesOverlap(src.Title, targetTitle) {
		return false
	}

	return artistOverlap(src.Artists, targetArtists)
}

// ResolveLink is step 2: look up the source track against the
// universal-link service. A definitive 404 is reported as Miss, not
// Transient; any other error downgrades the step to Transient so the
// cascade proceeds to search.
func (e *Engine) ResolveLink(ctx context.Context, sourceTrackURL string) Result {
	if e.links == nil {
		return miss()
	}

	targetID, err := e.links.ResolveTidalID(ctx, sourceTrackURL)
	if err != nil {
		return transient(fmt.Errorf("universal link lookup: %w", err))
	}
	if targetID == "" {
		return miss()
	}

	return hit(&catalog.TargetTrack{ID: targetID}, UniversalLink)
}

// searchQueries builds the ordered query list for step 3: normalized
// title+artist, an ASCII-only retry, the first word of the normalized
// title plus artist (no stop words are skipped), and artist alone.
func searchQueries(src catalog.SourceTrack) []string {
	artist := ""
	if len(src.Artists) > 0 {
		artist = src.Artists[0]
	}

	queries := []string{
		strings.TrimSpace(normalizeTitle(src.Title, false) + " " + strings.ToLower(artist)),
		strings.TrimSpace(normalizeTitle(src.Title, true) + " " + strings.ToLower(artist)),
	}

	if words := strings.Fields(normalizeTitle(src.Title, false)); len(words) > 0 {
		queries = append(queries, strings.TrimSpace(words[0]+" "+strings.ToLower(artist)))
	}

	if artist != "" {
		queries = append(queries, strings.ToLower(artist))
	}

	return dedupeNonEmpty(queries)
}

func dedupeNonEmpty(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

const searchResultLimit = 10

// ResolveSearch is step 3: try each query in turn, inspecting the top 10
// results of each. ISRC equality is an immediate accept; otherwise the
// same three metadata predicates from step 1 apply.
func (e *Engine) ResolveSearch(ctx context.Context, src catalog.SourceTrack) Result {
	if e.target == nil {
		return miss()
	}

	for _, query := range searchQueries(src) {
		results, err := e.target.SearchTracks(ctx, query, searchResultLimit)
		if err != nil {
			return transient(fmt.Errorf("target search %q: %w", query, err))
		}

		for i := range results {
			candidate := results[i]
			if src.ISRC != "" && candidate.ISRC != "" && src.ISRC == candidate.ISRC {
				return hit(&candidate, TargetSearch)
			}
		}

		for i := range results {
			candidate := results[i]
			if metadataMatches(src, candidate.Title, candidate.Artists, candidate.DurationS) {
				return hit(&candidate, TargetSearch)
			}
		}
	}

	return miss()
}

// ResolveRescue is step 4: re-run the search cascade after a failed add,
// tagging any hit target_search_fallback instead of target_search.
func (e *Engine) ResolveRescue(ctx context.Context, src catalog.SourceTrack, rejectedID string) Result {
	res := e.ResolveSearch(ctx, src)
	if res.Outcome != Hit {
		return res
	}
	if res.Track.ID == rejectedID {
		return miss()
	}
	res.Source = TargetSearchFallback
	return res
}

// Resolve runs steps 2 and 3 of the cascade (step 1 is run by the caller
// against its in-memory snapshot, since the snapshot is per-playlist-worker
// state the engine itself doesn't own). Any Transient outcome from either
// step is swallowed — per §4.1's failure semantics, an external-call error
// downgrades that step to "no result" and the cascade proceeds — so Resolve
// only ever returns Hit or Miss.
func (e *Engine) Resolve(ctx context.Context, src catalog.SourceTrack, sourceTrackURL string) Result {
	if res := e.ResolveLink(ctx, sourceTrackURL); res.Outcome == Hit {
		return res
	} else if res.Outcome == Transient {
		e.logger.Debug("universal link lookup failed, falling through", "error", res.Err, "track", src.ID)
	}

	if res := e.ResolveSearch(ctx, src); res.Outcome == Hit {
		return res
	} else if res.Outcome == Transient {
		e.logger.Debug("target search failed, falling through", "error", res.Err, "track", src.ID)
	}

	return miss()
}
