// Package mutator implements the target-playlist find-or-reuse, snapshot,
// add/delete, and duplicate-removal protocol described in the migration
// spec's Target Playlist Mutator, against any [catalog.TargetCatalog].
package mutator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/crossfade/internal/catalog"
	"github.com/desertthunder/crossfade/internal/shared"
)

// addBatchSleepEvery and addBatchSleep throttle the per-item add fallback
// to stay under the target catalog's implicit rate limit.
const (
	addBatchSleepEvery = 10
	addBatchSleep      = 500 * time.Millisecond

	// deleteBatchSize is the largest slice of indices deleted in one call.
	deleteBatchSize = 50
)

// Mutator wraps a [catalog.TargetCatalog] and implements the higher-level
// playlist mutation protocol the Migration Pipeline depends on.
type Mutator struct {
	target   catalog.TargetCatalog
	toolName string
	logger   *log.Logger
}

// New builds a Mutator over the given target catalog client. toolName is
// stamped into every description this Mutator writes, e.g. "crossfade".
func New(target catalog.TargetCatalog, toolName string) *Mutator {
	return &Mutator{target: target, toolName: toolName, logger: shared.NewLogger(nil)}
}

// describe formats the standard "Migrated from <source> via <tool> | Last
// sync: <ISO-8601>" description stamped on both playlist creation and every
// subsequent sync.
func (m *Mutator) describe(sourceName string) string {
	return fmt.Sprintf("Migrated from %s via %s | Last sync: %s", sourceName, m.toolName, time.Now().UTC().Format(time.RFC3339))
}

// FindOrCreate implements the find-or-reuse rule: the first playlist whose
// title exactly (case-sensitively) matches name wins; otherwise a new one
// is created with a description recording the migration source and sync
// time.
func (m *Mutator) FindOrCreate(ctx context.Context, name, sourceName string) (*catalog.TargetPlaylist, error) {
	playlists, err := m.target.ListPlaylists(ctx)
	if err != nil {
		return nil, fmt.Errorf("list playlists: %w", err)
	}

	for _, p := range playlists {
		if p.Title == name {
			return m.target.GetPlaylist(ctx, p.UUID)
		}
	}

	created, err := m.target.CreatePlaylist(ctx, name, m.describe(sourceName))
	if err != nil {
		return nil, fmt.Errorf("create playlist %q: %w", name, err)
	}
	return created, nil
}

// UpdateDescription rewrites a target playlist's description to record
// which source playlist it was migrated from and when it was last synced.
func (m *Mutator) UpdateDescription(ctx context.Context, uuid, sourceName string) error {
	current, err := m.target.GetPlaylist(ctx, uuid)
	if err != nil {
		return fmt.Errorf("refresh playlist before description update: %w", err)
	}

	if err := m.target.UpdatePlaylistDescription(ctx, uuid, current.Title, m.describe(sourceName)); err != nil {
		return fmt.Errorf("update description for %s: %w", uuid, err)
	}
	return nil
}

// Snapshot fetches a playlist's current items, logging (not failing) on a
// reported/fetched count mismatch.
func (m *Mutator) Snapshot(ctx context.Context, uuid string) ([]catalog.PlaylistItem, error) {
	items, err := m.target.PlaylistItems(ctx, uuid)
	if err != nil {
		return nil, fmt.Errorf("snapshot playlist %s: %w", uuid, err)
	}
	return items, nil
}

// AddItems implements the add-item protocol: a batch add under the
// playlist's current ETag, falling back to one-by-one adds (refreshing the
// tag before each) on any batch failure. Returns the ids that could not be
// added even one at a time.
func (m *Mutator) AddItems(ctx context.Context, uuid string, targetIDs []string) (failed []string, err error) {
	if len(targetIDs) == 0 {
		return nil, nil
	}

	current, err := m.target.GetPlaylist(ctx, uuid)
	if err != nil {
		return nil, fmt.Errorf("refresh etag before batch add: %w", err)
	}

	if _, err := m.target.AddItems(ctx, uuid, current.ETag, targetIDs); err == nil {
		return nil, nil
	} else {
		m.logger.Debug("batch add failed, falling back to one-by-one", "uuid", uuid, "count", len(targetIDs), "error", err)
	}

	return m.addOneByOne(ctx, uuid, targetIDs)
}

// addOneByOne is the batch-add fallback: refresh the tag before every
// single add (the tag changes after each successful add), pausing briefly
// every addBatchSleepEvery adds.
func (m *Mutator) addOneByOne(ctx context.Context, uuid string, targetIDs []string) (failed []string, err error) {
	for i, id := range targetIDs {
		current, err := m.target.GetPlaylist(ctx, uuid)
		if err != nil {
			failed = append(failed, id)
			continue
		}

		if _, err := m.target.AddItems(ctx, uuid, current.ETag, []string{id}); err != nil {
			m.logger.Debug("single add failed", "uuid", uuid, "track_id", id, "error", err)
			failed = append(failed, id)
			continue
		}

		if (i+1)%addBatchSleepEvery == 0 {
			select {
			case <-ctx.Done():
				return failed, ctx.Err()
			case <-time.After(addBatchSleep):
			}
		}
	}

	if len(failed) > 0 {
		return failed, fmt.Errorf("%w: failed to add %d of %d ids", shared.ErrTrackScoped, len(failed), len(targetIDs))
	}

	return nil, nil
}

// DeleteItems implements the delete-item protocol: refresh the tag, sort
// indices descending so earlier indices stay valid as later ones are
// removed, and chunk into batches of deleteBatchSize.
func (m *Mutator) DeleteItems(ctx context.Context, uuid string, indices []int) error {
	if len(indices) == 0 {
		return nil
	}

	sorted := append([]int(nil), indices...)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))

	for start := 0; start < len(sorted); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(sorted))
		batch := sorted[start:end]

		current, err := m.target.GetPlaylist(ctx, uuid)
		if err != nil {
			return fmt.Errorf("refresh etag before delete batch: %w", err)
		}

		if _, err := m.target.DeleteItems(ctx, uuid, current.ETag, batch); err != nil {
			return fmt.Errorf("delete batch %v: %w", batch, err)
		}
	}

	return nil
}

// RemoveDuplicates pages all items in order and removes every occurrence of
// a target id after its first, keeping the earliest-added copy.
func (m *Mutator) RemoveDuplicates(ctx context.Context, uuid string) error {
	items, err := m.Snapshot(ctx, uuid)
	if err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(items))
	var duplicateIndices []int

	for i, item := range items {
		if _, ok := seen[item.TargetID]; ok {
			duplicateIndices = append(duplicateIndices, i)
			continue
		}
		seen[item.TargetID] = struct{}{}
	}

	if len(duplicateIndices) == 0 {
		return nil
	}

	return m.DeleteItems(ctx, uuid, duplicateIndices)
}

// IsEntityTagMismatch reports whether err wraps the optimistic-concurrency
// conflict sentinel.
func IsEntityTagMismatch(err error) bool {
	return errors.Is(err, shared.ErrEntityTagMismatch)
}
