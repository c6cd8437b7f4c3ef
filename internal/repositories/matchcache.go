package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/crossfade/internal/models"
)

// MatchCacheRepository implements models.Repository[*models.MatchCacheEntry]
// over the match_cache table.
type MatchCacheRepository struct {
	db *sql.DB
}

// NewMatchCacheRepository creates a new MatchCacheRepository with the given
// database connection.
func NewMatchCacheRepository(db *sql.DB) *MatchCacheRepository {
	return &MatchCacheRepository{db: db}
}

// Create inserts a resolved match, replacing any prior entry for the same
// (source catalog, source track id, target catalog) key.
func (r *MatchCacheRepository) Create(entry *models.MatchCacheEntry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT OR REPLACE INTO match_cache
			(source_catalog, source_track_id, target_catalog, target_track_id, resolution_source, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		entry.SourceCatalog(), entry.SourceTrackID(), entry.TargetCatalog(),
		entry.TargetTrackID(), entry.ResolutionSource(), entry.CreatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert match cache entry: %w", err)
	}

	return nil
}

// Get retrieves a cache entry by its composite id
// ("sourceCatalog:sourceTrackID:targetCatalog").
func (r *MatchCacheRepository) Get(id string) (*models.MatchCacheEntry, error) {
	query := `
		SELECT source_catalog, source_track_id, target_catalog, target_track_id, resolution_source, resolved_at
		FROM match_cache
		WHERE (source_catalog || ':' || source_track_id || ':' || target_catalog) = ?
	`
	return r.scanOne(r.db.QueryRow(query, id))
}

// Lookup retrieves a cached match for a specific source track against a
// specific target catalog, if one exists.
func (r *MatchCacheRepository) Lookup(sourceCatalog, sourceTrackID, targetCatalog string) (*models.MatchCacheEntry, error) {
	query := `
		SELECT source_catalog, source_track_id, target_catalog, target_track_id, resolution_source, resolved_at
		FROM match_cache
		WHERE source_catalog = ? AND source_track_id = ? AND target_catalog = ?
	`
	return r.scanOne(r.db.QueryRow(query, sourceCatalog, sourceTrackID, targetCatalog))
}

// Update is equivalent to Create: the upsert already replaces any existing
// row for the same composite key.
func (r *MatchCacheRepository) Update(entry *models.MatchCacheEntry) error {
	return r.Create(entry)
}

// Delete removes a cache entry by its composite id.
func (r *MatchCacheRepository) Delete(id string) error {
	query := `DELETE FROM match_cache WHERE (source_catalog || ':' || source_track_id || ':' || target_catalog) = ?`
	result, err := r.db.Exec(query, id)
	if err != nil {
		return fmt.Errorf("failed to delete match cache entry: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("match cache entry not found: %s", id)
	}

	return nil
}

// List retrieves cache entries, optionally filtered by "source_catalog" or
// "target_catalog" criteria.
func (r *MatchCacheRepository) List(criteria map[string]any) ([]*models.MatchCacheEntry, error) {
	query := `
		SELECT source_catalog, source_track_id, target_catalog, target_track_id, resolution_source, resolved_at
		FROM match_cache
		WHERE 1=1
	`
	args := []any{}

	if sc, ok := criteria["source_catalog"].(string); ok && sc != "" {
		query += " AND source_catalog = ?"
		args = append(args, sc)
	}
	if tc, ok := criteria["target_catalog"].(string); ok && tc != "" {
		query += " AND target_catalog = ?"
		args = append(args, tc)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query match cache: %w", err)
	}
	defer rows.Close()

	var entries []*models.MatchCacheEntry
	for rows.Next() {
		entry, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return entries, nil
}

func (r *MatchCacheRepository) scanOne(row *sql.Row) (*models.MatchCacheEntry, error) {
	var (
		sourceCatalog, sourceTrackID, targetCatalog, targetTrackID, resolutionSource string
		resolvedAt                                                                   time.Time
	)

	err := row.Scan(&sourceCatalog, &sourceTrackID, &targetCatalog, &targetTrackID, &resolutionSource, &resolvedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("match cache entry not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan match cache entry: %w", err)
	}

	entry := models.NewMatchCacheEntry(sourceCatalog, sourceTrackID, targetCatalog, targetTrackID, resolutionSource)
	entry.SetUpdatedAt(resolvedAt)
	return entry, nil
}

func (r *MatchCacheRepository) scanRow(rows *sql.Rows) (*models.MatchCacheEntry, error) {
	var (
		sourceCatalog, sourceTrackID, targetCatalog, targetTrackID, resolutionSource string
		resolvedAt                                                                   time.Time
	)

	err := rows.Scan(&sourceCatalog, &sourceTrackID, &targetCatalog, &targetTrackID, &resolutionSource, &resolvedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan match cache entry: %w", err)
	}

	entry := models.NewMatchCacheEntry(sourceCatalog, sourceTrackID, targetCatalog, targetTrackID, resolutionSource)
	entry.SetUpdatedAt(resolvedAt)
	return entry, nil
}
