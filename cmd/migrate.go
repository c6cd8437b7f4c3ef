package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/crossfade/internal/catalog/spotify"
	"github.com/desertthunder/crossfade/internal/catalog/tidal"
	"github.com/desertthunder/crossfade/internal/downloader"
	"github.com/desertthunder/crossfade/internal/matching"
	"github.com/desertthunder/crossfade/internal/mutator"
	"github.com/desertthunder/crossfade/internal/odesli"
	"github.com/desertthunder/crossfade/internal/pipeline"
	"github.com/desertthunder/crossfade/internal/probe"
	"github.com/desertthunder/crossfade/internal/report"
	"github.com/desertthunder/crossfade/internal/repositories"
	"github.com/desertthunder/crossfade/internal/shared"
	"github.com/desertthunder/crossfade/internal/ui"
)

// bearerTransport attaches a static bearer token to every outgoing request,
// the auth scheme Tidal's API expects.
type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	cloned := req.Clone(req.Context())
	cloned.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(cloned)
}

// MigrateRun builds the full dependency graph (source catalog, target
// catalog, universal-link resolver, matching engine, mutator, download
// orchestrator, report collector, match cache) and runs the Migration
// Pipeline to completion.
func (r *Runner) MigrateRun(ctx context.Context, cmd *cli.Command) error {
	cfg := r.config

	if cfg.Credentials.Spotify.RefreshToken == "" {
		return fmt.Errorf("%w: run 'crossfade auth login spotify' first", shared.ErrNotAuthenticated)
	}
	if cfg.Credentials.Tidal.AccessToken == "" {
		return fmt.Errorf("%w: run 'crossfade auth login tidal' first", shared.ErrNotAuthenticated)
	}

	source := spotify.New(cfg.Credentials.Spotify.ClientID, cfg.Credentials.Spotify.ClientSecret, cfg.Credentials.Spotify.RedirectURI)
	if err := source.Authenticate(ctx, "", cfg.Credentials.Spotify.RefreshToken); err != nil {
		return fmt.Errorf("authenticate spotify: %w", err)
	}

	tidalClient := &http.Client{Transport: bearerTransport{token: cfg.Credentials.Tidal.AccessToken, base: http.DefaultTransport}}
	target := tidal.New(tidalClient, cfg.Credentials.Tidal.UserID, cfg.Credentials.Tidal.ToolName)

	links := odesli.New(cfg.Services.Odesli.Platform)
	engine := matching.New(links, target)
	mut := mutator.New(target, cfg.Credentials.Tidal.ToolName)

	db, err := shared.NewDatabase(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open match-cache database: %w", err)
	}
	defer db.Close()
	shared.ConfigureDatabase(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("run match-cache migrations: %w", err)
	}
	cache := repositories.NewMatchCacheRepository(db)

	collector := report.NewCollector(probe.New())

	live := !cmd.Bool("no-live")

	var prog *ui.Program
	if live {
		prog = ui.NewProgram(cfg.Migration.PipelineWorkers)
	}

	orch := downloader.New(downloader.Opts{
		BinaryPath: cfg.Migration.DownloaderPath,
		NumWorkers: cfg.Migration.DownloadWorkers,
		OnStart: func(uuid, name string, trackCount int) {
			if prog != nil {
				prog.Send(ui.NewDownloadStartedMsg(uuid, name, trackCount))
				return
			}
			r.logger.Info("downloading", "playlist", name, "tracks", trackCount)
		},
		OnComplete: func(uuid, name string, success bool, message string) {
			if prog != nil {
				prog.Send(ui.NewDownloadDoneMsg(downloader.Result{UUID: uuid, Name: name, Success: success, Message: message}))
			}
		},
	})

	p := pipeline.New(pipeline.Opts{
		NumWorkers:       cfg.Migration.PipelineWorkers,
		Source:           source,
		Mutator:          mut,
		Engine:           engine,
		Downloads:        orch,
		Reports:          collector,
		Cache:            cache,
		RemoveDuplicates: cfg.Migration.RemoveDuplicates,
		OnTotalKnown: func(total int) {
			if prog != nil {
				prog.Send(ui.NewTotalKnownMsg(total))
			}
		},
		OnPlaylistStarted: func(workerNum int, name string, trackCount int) {
			if prog != nil {
				prog.Send(ui.NewPlaylistStartedMsg(workerNum, name, trackCount))
			}
		},
		OnTrackResolved: func(e pipeline.TrackEvent) {
			if prog != nil {
				prog.Send(ui.NewTrackResolvedMsg(e))
			}
		},
		OnPlaylistDone: func(outcome pipeline.PlaylistOutcome) {
			if prog != nil {
				prog.Send(ui.NewPlaylistDoneMsg(outcome))
				return
			}
			if outcome.Err != nil {
				r.logger.Error("playlist migration failed", "playlist", outcome.SourcePlaylist.Name, "error", outcome.Err)
				return
			}
			r.logger.Info("playlist migrated", "playlist", outcome.SourcePlaylist.Name,
				"added", outcome.Added, "skipped", outcome.Skipped, "not_found", outcome.NotFound)
		},
	})

	var outcomes []pipeline.PlaylistOutcome
	var downloads []downloader.Result
	var runErr error

	if prog != nil {
		restore := ui.DetachLoggers(os.Stderr, r.logger)
		done := make(chan struct{})
		go func() {
			outcomes, downloads, runErr = p.Run(ctx)
			prog.Send(ui.NewQuitMsg())
			close(done)
		}()
		uiErr := prog.Run()
		<-done
		restore()
		if uiErr != nil {
			return fmt.Errorf("run live display: %w", uiErr)
		}
	} else {
		outcomes, downloads, runErr = p.Run(ctx)
	}
	if runErr != nil {
		return fmt.Errorf("run migration pipeline: %w", runErr)
	}

	reportDir := shared.ExpandPath(cfg.Migration.ReportDir)
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			continue
		}
		collector.LocatePlaylistFiles(outcome.TargetUUID, shared.ExpandPath(cfg.Migration.DownloadRoot))
		path, err := collector.WriteCSV(outcome.TargetUUID, reportDir)
		if err != nil {
			r.logger.Warn("failed to write report", "playlist", outcome.SourcePlaylist.Name, "error", err)
			continue
		}
		r.logger.Info("report written", "path", path)
	}

	return r.summarize(outcomes, downloads)
}

// summarize prints a human-readable migration summary.
func (r *Runner) summarize(outcomes []pipeline.PlaylistOutcome, downloads []downloader.Result) error {
	var totalTracks, added, skipped, notFound, failed int

	for _, o := range outcomes {
		totalTracks += o.TrackCount
		added += o.Added
		skipped += o.Skipped
		notFound += o.NotFound
		failed += o.FailedToAdd
	}

	downloadsOK := 0
	for _, d := range downloads {
		if d.Success {
			downloadsOK++
		}
	}

	r.writePlain("Migrated %s playlists (%s tracks)\n", humanize.Comma(int64(len(outcomes))), humanize.Comma(int64(totalTracks)))
	r.writePlain("  added: %d  skipped: %d  not found: %d  failed to add: %d\n", added, skipped, notFound, failed)
	r.writePlain("Downloads completed: %d/%d\n", downloadsOK, len(downloads))

	return nil
}

// migrateCommand is the top-level playlist migration command.
func migrateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Migrate playlists from Spotify to Tidal",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run the full migration pipeline end to end",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "no-live",
						Usage: "Disable the live split-screen display and log plainly instead",
					},
				},
				Action: r.MigrateRun,
			},
		},
	}
}
