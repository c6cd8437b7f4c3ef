// package models defines the persistence-layer data model for crossfade.
package models

import (
	"fmt"
	"time"
)

// Model defines the base interface for all persistent models.
type Model interface {
	ID() string           // ID returns the unique identifier for this model
	CreatedAt() time.Time // CreatedAt returns when this model was created
	UpdatedAt() time.Time // UpdatedAt returns when this model was last updated
	Validate() error      // Validate checks if the model's data is valid and returns an error if not
}

// Repository defines the interface for data access operations.
// Implementations handle database interactions for specific model types.
type Repository[T Model] interface {
	Create(model T) error                      // Create inserts a new model into the database
	Get(id string) (T, error)                  // Get retrieves a model by its ID
	Update(model T) error                      // Update modifies an existing model in the database
	Delete(id string) error                    // Delete removes a model from the database by its ID
	List(criteria map[string]any) ([]T, error) // List retrieves all models matching the given criteria
}

// MatchCacheEntry records a previously resolved source-to-target track
// match so a re-run of the same source playlist can skip the matching
// cascade for tracks it has already placed.
type MatchCacheEntry struct {
	id               string
	sourceCatalog    string
	sourceTrackID    string
	targetCatalog    string
	targetTrackID    string
	resolutionSource string
	resolvedAt       time.Time
	updatedAt        time.Time
}

func (m *MatchCacheEntry) ID() string           { return m.id }
func (m *MatchCacheEntry) CreatedAt() time.Time { return m.resolvedAt }
func (m *MatchCacheEntry) UpdatedAt() time.Time { return m.updatedAt }

// Validate checks that a cache entry identifies both sides of a match.
func (m *MatchCacheEntry) Validate() error {
	if m.sourceCatalog == "" || m.sourceTrackID == "" {
		return ErrInvalidModel
	}
	if m.targetCatalog == "" || m.targetTrackID == "" {
		return ErrInvalidModel
	}
	return nil
}

// NewMatchCacheEntry builds a MatchCacheEntry for a freshly resolved match.
// Its ID is the composite (sourceCatalog, sourceTrackID, targetCatalog) key
// a caller can use to look it up again.
func NewMatchCacheEntry(sourceCatalog, sourceTrackID, targetCatalog, targetTrackID, resolutionSource string) *MatchCacheEntry {
	now := time.Now()
	return &MatchCacheEntry{
		id:               fmt.Sprintf("%s:%s:%s", sourceCatalog, sourceTrackID, targetCatalog),
		sourceCatalog:    sourceCatalog,
		sourceTrackID:    sourceTrackID,
		targetCatalog:    targetCatalog,
		targetTrackID:    targetTrackID,
		resolutionSource: resolutionSource,
		resolvedAt:       now,
		updatedAt:        now,
	}
}

func (m *MatchCacheEntry) SourceCatalog() string    { return m.sourceCatalog }
func (m *MatchCacheEntry) SourceTrackID() string    { return m.sourceTrackID }
func (m *MatchCacheEntry) TargetCatalog() string    { return m.targetCatalog }
func (m *MatchCacheEntry) TargetTrackID() string    { return m.targetTrackID }
func (m *MatchCacheEntry) ResolutionSource() string { return m.resolutionSource }

func (m *MatchCacheEntry) SetUpdatedAt(t time.Time) { m.updatedAt = t }

// ErrInvalidModel is returned when a model fails validation.
var ErrInvalidModel = fmt.Errorf("invalid model")
