package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/crossfade/internal/repositories"
	"github.com/desertthunder/crossfade/internal/shared"
)

// openMatchCache opens the configured database and wraps it in a
// MatchCacheRepository. The caller is responsible for closing the db via
// the returned closer.
func (r *Runner) openMatchCache() (*repositories.MatchCacheRepository, func() error, error) {
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}
	return repositories.NewMatchCacheRepository(db), db.Close, nil
}

// CacheList prints every cached source-to-target track match, optionally
// filtered by target catalog.
func (r *Runner) CacheList(ctx context.Context, cmd *cli.Command) error {
	repo, closeDB, err := r.openMatchCache()
	if err != nil {
		return err
	}
	defer closeDB()

	entries, err := repo.List(map[string]any{"target_catalog": cmd.String("target")})
	if err != nil {
		return fmt.Errorf("list match cache: %w", err)
	}

	if len(entries) == 0 {
		return r.writePlain("No cached matches.\n")
	}

	for _, e := range entries {
		r.writePlain("%s:%s -> %s:%s (%s)\n", e.SourceCatalog(), e.SourceTrackID(), e.TargetCatalog(), e.TargetTrackID(), e.ResolutionSource())
	}
	return nil
}

// CacheClear deletes a single cached match by its composite id.
func (r *Runner) CacheClear(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: an entry id is required, see 'cache list'", shared.ErrMissingArgument)
	}

	repo, closeDB, err := r.openMatchCache()
	if err != nil {
		return err
	}
	defer closeDB()

	if err := repo.Delete(id); err != nil {
		return fmt.Errorf("clear cache entry %s: %w", id, err)
	}
	return r.writePlain("✓ removed cache entry %s\n", id)
}

// cacheCommand inspects and manages the resolved source-to-target match
// cache the Migration Pipeline consults before re-running the matching
// cascade for a track it has already resolved.
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect and manage the resolved-match cache",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List cached source-to-target matches",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "target",
						Usage: "Filter by target catalog name",
					},
				},
				Action: r.CacheList,
			},
			{
				Name:  "clear",
				Usage: "Remove a single cached match by id",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Action: r.CacheClear,
			},
		},
	}
}
