package repositories

import (
	"database/sql"
	"testing"

	"github.com/desertthunder/crossfade/internal/models"
	"github.com/desertthunder/crossfade/internal/shared"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMatchCacheRepository_CreateAndLookup(t *testing.T) {
	db := newTestDB(t)
	repo := NewMatchCacheRepository(db)

	entry := models.NewMatchCacheEntry("spotify", "src1", "tidal", "tgt1", "universal_link")
	if err := repo.Create(entry); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.Lookup("spotify", "src1", "tidal")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.TargetTrackID() != "tgt1" {
		t.Errorf("TargetTrackID = %q, want tgt1", got.TargetTrackID())
	}
}

func TestMatchCacheRepository_CreateReplacesExisting(t *testing.T) {
	db := newTestDB(t)
	repo := NewMatchCacheRepository(db)

	first := models.NewMatchCacheEntry("spotify", "src1", "tidal", "tgt1", "universal_link")
	second := models.NewMatchCacheEntry("spotify", "src1", "tidal", "tgt2", "target_search")
	if err := repo.Create(first); err != nil {
		t.Fatalf("Create first: %v", err)
	}
	if err := repo.Create(second); err != nil {
		t.Fatalf("Create second: %v", err)
	}

	got, err := repo.Lookup("spotify", "src1", "tidal")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.TargetTrackID() != "tgt2" {
		t.Errorf("TargetTrackID = %q, want tgt2 (replaced)", got.TargetTrackID())
	}
}

func TestMatchCacheRepository_LookupMiss(t *testing.T) {
	db := newTestDB(t)
	repo := NewMatchCacheRepository(db)

	if _, err := repo.Lookup("spotify", "nonexistent", "tidal"); err == nil {
		t.Error("expected an error for a missing lookup")
	}
}

func TestMatchCacheRepository_Delete(t *testing.T) {
	db := newTestDB(t)
	repo := NewMatchCacheRepository(db)

	entry := models.NewMatchCacheEntry("spotify", "src1", "tidal", "tgt1", "universal_link")
	if err := repo.Create(entry); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := repo.Delete(entry.ID()); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := repo.Lookup("spotify", "src1", "tidal"); err == nil {
		t.Error("expected lookup to fail after delete")
	}
}
