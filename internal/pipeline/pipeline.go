// Package pipeline implements the Migration Pipeline: a bounded pool of
// workers each driving one playlist through fetch, match, mutate, and
// download handoff, reporting progress to a shared set of counters.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/crossfade/internal/catalog"
	"github.com/desertthunder/crossfade/internal/downloader"
	"github.com/desertthunder/crossfade/internal/matching"
	"github.com/desertthunder/crossfade/internal/models"
	"github.com/desertthunder/crossfade/internal/mutator"
	"github.com/desertthunder/crossfade/internal/report"
	"github.com/desertthunder/crossfade/internal/shared"
)

// defaultWorkers is the pipeline's bounded pool size when none is given.
const defaultWorkers = 4

// sourceTrackURL formats a Spotify web URL for a source track id.
func sourceTrackURL(id string) string {
	return fmt.Sprintf("https://open.spotify.com/track/%s", id)
}

// MatchCache is the subset of a match-cache repository the pipeline
// depends on; satisfied by [repositories.MatchCacheRepository]. A nil
// MatchCache disables the optimization and every track is re-resolved.
type MatchCache interface {
	Lookup(sourceCatalog, sourceTrackID, targetCatalog string) (*models.MatchCacheEntry, error)
	Create(entry *models.MatchCacheEntry) error
}

// PlaylistOutcome is a single playlist's end-to-end migration result.
type PlaylistOutcome struct {
	SourcePlaylist catalog.SourcePlaylist
	TargetUUID     string
	TrackCount     int
	Added          int
	Skipped        int
	NotFound       int
	FailedToAdd    int
	Err            error // non-nil only for playlist-scoped failures
}

// CounterValues is a point-in-time, unsynchronized copy of [Counters].
type CounterValues struct {
	PlaylistsTotal  int
	PlaylistsDone   int
	PlaylistsFailed int
	TracksProcessed int
}

// Counters tracks aggregate pipeline progress for the live UI.
type Counters struct {
	mu sync.Mutex
	CounterValues
}

func (c *Counters) incDone(failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.PlaylistsDone++
	if failed {
		c.PlaylistsFailed++
	}
}

func (c *Counters) addTracks(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.TracksProcessed += n
}

// Snapshot returns a point-in-time copy of the counters.
func (c *Counters) Snapshot() CounterValues {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CounterValues
}

// OnPlaylistDone fires once a playlist's migration (not download) finishes.
type OnPlaylistDone func(PlaylistOutcome)

// TrackEvent reports a single track's resolution, for the live UI's
// per-worker current-track row and rolling-mean ETA.
type TrackEvent struct {
	WorkerNum    int
	PlaylistName string
	TrackTitle   string
	Elapsed      time.Duration
}

// OnTrackResolved fires after every source track is matched (hit or miss),
// before the batch add.
type OnTrackResolved func(TrackEvent)

// OnTotalKnown fires once, right after the source playlist list is
// fetched, reporting how many playlists this run covers.
type OnTotalKnown func(total int)

// OnPlaylistStarted fires once a worker has fetched a playlist's track
// list and knows its size, before resolution begins.
type OnPlaylistStarted func(workerNum int, name string, trackCount int)

// Opts configures a Pipeline.
type Opts struct {
	NumWorkers       int
	Source           catalog.SourceCatalog
	Mutator          *mutator.Mutator
	Engine           *matching.Engine
	Downloads        *downloader.Orchestrator
	Reports          *report.Collector
	Cache            MatchCache // optional; nil disables the match cache
	RemoveDuplicates bool
	OnPlaylistDone   OnPlaylistDone
	OnTrackResolved   OnTrackResolved
	OnTotalKnown      OnTotalKnown
	OnPlaylistStarted OnPlaylistStarted
}

// Pipeline drives every playlist a source catalog exposes through the
// match → mutate → download-handoff sequence.
type Pipeline struct {
	numWorkers       int
	source           catalog.SourceCatalog
	mutator          *mutator.Mutator
	engine           *matching.Engine
	downloads        *downloader.Orchestrator
	reports          *report.Collector
	cache            MatchCache
	removeDuplicates bool
	onPlaylistDone   OnPlaylistDone
	onTrackResolved   OnTrackResolved
	onTotalKnown      OnTotalKnown
	onPlaylistStarted OnPlaylistStarted
	logger            *log.Logger

	counters Counters

	mu      sync.Mutex
	nextNum int
}

// New builds a Pipeline from the given components.
func New(opts Opts) *Pipeline {
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = defaultWorkers
	}
	return &Pipeline{
		numWorkers:       opts.NumWorkers,
		source:           opts.Source,
		mutator:          opts.Mutator,
		engine:           opts.Engine,
		downloads:        opts.Downloads,
		reports:          opts.Reports,
		cache:            opts.Cache,
		removeDuplicates: opts.RemoveDuplicates,
		onPlaylistDone:   opts.OnPlaylistDone,
		onTrackResolved:   opts.OnTrackResolved,
		onTotalKnown:      opts.OnTotalKnown,
		onPlaylistStarted: opts.OnPlaylistStarted,
		logger:            shared.NewLogger(nil),
	}
}

// Run starts the download orchestrator, fetches the source catalog's
// playlists and migrates every one of them across a bounded pool of
// workers. Each successfully-migrated playlist is handed to the
// orchestrator as soon as its migration finishes; Run then waits for the
// orchestrator to drain.
func (p *Pipeline) Run(ctx context.Context) ([]PlaylistOutcome, []downloader.Result, error) {
	playlists, err := p.source.ListPlaylists(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list source playlists: %w", err)
	}
	p.counters.mu.Lock()
	p.counters.PlaylistsTotal = len(playlists)
	p.counters.mu.Unlock()
	if p.onTotalKnown != nil {
		p.onTotalKnown(len(playlists))
	}

	p.downloads.Start(ctx)

	jobs := make(chan catalog.SourcePlaylist, len(playlists))
	for _, pl := range playlists {
		jobs <- pl
	}
	close(jobs)

	outcomes := make(chan PlaylistOutcome, len(playlists))
	var wg sync.WaitGroup
	for i := 0; i < p.numWorkers; i++ {
		wg.Add(1)
		go p.worker(ctx, i+1, jobs, outcomes, &wg)
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	var results []PlaylistOutcome
	for outcome := range outcomes {
		results = append(results, outcome)
		if p.onPlaylistDone != nil {
			p.onPlaylistDone(outcome)
		}
	}

	p.downloads.CloseQueue()
	downloadResults := p.downloads.WaitForCompletion(nil)

	for _, dr := range downloadResults {
		p.reports.ReconcileDownload(dr.UUID, dr.Success)
	}

	return results, downloadResults, nil
}

func (p *Pipeline) nextPlaylistNum() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextNum++
	return p.nextNum
}

func (p *Pipeline) worker(ctx context.Context, workerNum int, jobs <-chan catalog.SourcePlaylist, outcomes chan<- PlaylistOutcome, wg *sync.WaitGroup) {
	defer wg.Done()

	for src := range jobs {
		num := p.nextPlaylistNum()
		outcome := p.migratePlaylist(ctx, workerNum, num, src)
		p.counters.incDone(outcome.Err != nil)
		outcomes <- outcome
	}
}

// migratePlaylist implements the per-playlist procedure: fetch tracks,
// find-or-create the target playlist, stream a TrackReport per source
// track while resolving and adding it, update the target description, an
// optional duplicate cleanup pass, then hand off to the download
// orchestrator.
func (p *Pipeline) migratePlaylist(ctx context.Context, workerNum, num int, src catalog.SourcePlaylist) PlaylistOutcome {
	outcome := PlaylistOutcome{SourcePlaylist: src}

	tracks, err := p.source.PlaylistTracks(ctx, src.ID)
	if err != nil {
		outcome.Err = fmt.Errorf("%w: fetch tracks for playlist %d (%s): %v", shared.ErrPlaylistScoped, num, src.Name, err)
		return outcome
	}
	outcome.TrackCount = len(tracks)
	if p.onPlaylistStarted != nil {
		p.onPlaylistStarted(workerNum, src.Name, len(tracks))
	}

	target, err := p.mutator.FindOrCreate(ctx, src.Name, p.source.Name())
	if err != nil {
		outcome.Err = fmt.Errorf("%w: find-or-create target playlist for %d (%s): %v", shared.ErrPlaylistScoped, num, src.Name, err)
		return outcome
	}
	outcome.TargetUUID = target.UUID

	p.reports.BeginPlaylist(target.UUID, src.Name)

	snapshot, err := p.mutator.Snapshot(ctx, target.UUID)
	if err != nil {
		p.logger.Debug("snapshot failed, proceeding with an empty one", "playlist", src.Name, "error", err)
	}

	var toAdd []string
	for _, t := range tracks {
		trackStart := time.Now()
		rep := report.FromSourceTrack(t)

		if item, ok := p.engine.MatchSnapshot(t, snapshot); ok {
			rep.MigrationOutcome = report.Skipped
			rep.ResolutionSource = matching.MetadataMatch
			rep.TargetID = item.TargetID
			rep.TargetTitle = item.Title
			rep.TargetArtist = joinArtists(item.Artists)
			rep.TargetDurationMS = item.DurationS * 1000
			outcome.Skipped++
			p.reports.Record(target.UUID, rep)
			p.reportTrackResolved(workerNum, src.Name, t.Title, trackStart)
			continue
		}

		if cached := p.lookupCache(t.ID); cached != nil {
			targetID := cached.TargetTrackID()
			rep.ApplyTargetTrack(catalog.TargetTrack{ID: targetID}, matching.ResolutionSource(cached.ResolutionSource()))
			if snapshotHasTarget(snapshot, targetID) {
				rep.MigrationOutcome = report.Skipped
				rep.ResolutionSource = matching.Existing
				outcome.Skipped++
			} else {
				rep.MigrationOutcome = report.Added
				toAdd = append(toAdd, targetID)
				snapshot = append(snapshot, catalog.PlaylistItem{TargetID: targetID, Title: rep.TargetTitle, Artists: nil, DurationS: rep.TargetDurationMS / 1000})
			}
			p.reports.Record(target.UUID, rep)
			p.reportTrackResolved(workerNum, src.Name, t.Title, trackStart)
			continue
		}

		result := p.engine.Resolve(ctx, t, sourceTrackURL(t.ID))
		if result.Outcome != matching.Hit {
			rep.MigrationOutcome = report.NotFound
			outcome.NotFound++
			p.reports.Record(target.UUID, rep)
			p.reportTrackResolved(workerNum, src.Name, t.Title, trackStart)
			continue
		}

		rep.ApplyTargetTrack(*result.Track, result.Source)
		if snapshotHasTarget(snapshot, result.Track.ID) {
			rep.MigrationOutcome = report.Skipped
			rep.ResolutionSource = matching.Existing
			outcome.Skipped++
			p.reports.Record(target.UUID, rep)
			p.reportTrackResolved(workerNum, src.Name, t.Title, trackStart)
			continue
		}

		rep.MigrationOutcome = report.Added
		toAdd = append(toAdd, result.Track.ID)
		snapshot = append(snapshot, catalog.PlaylistItem{TargetID: result.Track.ID, Title: result.Track.Title, Artists: result.Track.Artists, DurationS: result.Track.DurationS})
		p.reports.Record(target.UUID, rep)
		p.rememberCache(t.ID, result.Track.ID, string(result.Source))
		p.reportTrackResolved(workerNum, src.Name, t.Title, trackStart)
	}
	outcome.Added = len(toAdd)
	p.counters.addTracks(len(tracks))

	if len(toAdd) > 0 {
		failed, err := p.mutator.AddItems(ctx, target.UUID, toAdd)
		if err != nil {
			p.logger.Debug("some tracks failed to add after fallback", "playlist", src.Name, "failed", len(failed), "error", err)
		}
		outcome.FailedToAdd = len(failed)
		outcome.Added -= len(failed)
		failedIDs := make(map[string]bool, len(failed))
		for _, id := range failed {
			failedIDs[id] = true
		}
		for _, r := range p.reports.Reports(target.UUID) {
			if r.MigrationOutcome == report.Added && failedIDs[r.TargetID] {
				r.MigrationOutcome = report.FailedToAdd
			}
		}
	}

	if err := p.mutator.UpdateDescription(ctx, target.UUID, src.Name); err != nil {
		p.logger.Debug("failed to update target playlist description", "playlist", src.Name, "error", err)
	}

	if p.removeDuplicates {
		if err := p.mutator.RemoveDuplicates(ctx, target.UUID); err != nil {
			p.logger.Debug("duplicate cleanup failed", "playlist", src.Name, "error", err)
		}
	}

	p.downloads.Add(target.UUID, src.Name, outcome.TrackCount)

	return outcome
}

func (p *Pipeline) reportTrackResolved(workerNum int, playlistName, trackTitle string, start time.Time) {
	if p.onTrackResolved == nil {
		return
	}
	p.onTrackResolved(TrackEvent{
		WorkerNum:    workerNum,
		PlaylistName: playlistName,
		TrackTitle:   trackTitle,
		Elapsed:      time.Since(start),
	})
}

func (p *Pipeline) lookupCache(sourceTrackID string) *models.MatchCacheEntry {
	if p.cache == nil {
		return nil
	}
	entry, err := p.cache.Lookup(p.source.Name(), sourceTrackID, "tidal")
	if err != nil {
		return nil
	}
	return entry
}

func (p *Pipeline) rememberCache(sourceTrackID, targetTrackID, resolutionSource string) {
	if p.cache == nil {
		return
	}
	entry := models.NewMatchCacheEntry(p.source.Name(), sourceTrackID, "tidal", targetTrackID, resolutionSource)
	if err := p.cache.Create(entry); err != nil {
		p.logger.Debug("failed to persist match cache entry", "source_track_id", sourceTrackID, "error", err)
	}
}

func joinArtists(artists []string) string {
	out := ""
	for i, a := range artists {
		if i > 0 {
			out += ", "
		}
		out += a
	}
	return out
}

// snapshotHasTarget reports whether targetID already occupies a slot in
// snapshot, so a cascade hit that resolves to a track already sitting in
// the playlist is skipped instead of re-added.
func snapshotHasTarget(snapshot []catalog.PlaylistItem, targetID string) bool {
	for _, item := range snapshot {
		if item.TargetID == targetID {
			return true
		}
	}
	return false
}
