package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/desertthunder/crossfade/internal/catalog"
	"github.com/desertthunder/crossfade/internal/downloader"
	"github.com/desertthunder/crossfade/internal/matching"
	"github.com/desertthunder/crossfade/internal/mutator"
	"github.com/desertthunder/crossfade/internal/report"
)

type fakeSource struct {
	playlists []catalog.SourcePlaylist
	tracks    map[string][]catalog.SourceTrack
}

func (f *fakeSource) Name() string { return "Spotify" }
func (f *fakeSource) ListPlaylists(ctx context.Context) ([]catalog.SourcePlaylist, error) {
	return f.playlists, nil
}
func (f *fakeSource) PlaylistTracks(ctx context.Context, playlistID string) ([]catalog.SourceTrack, error) {
	return f.tracks[playlistID], nil
}

type fakeTarget struct {
	playlists map[string]*catalog.TargetPlaylist
	items     map[string][]catalog.PlaylistItem
	searchRes map[string][]catalog.TargetTrack
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{playlists: make(map[string]*catalog.TargetPlaylist), items: make(map[string][]catalog.PlaylistItem), searchRes: make(map[string][]catalog.TargetTrack)}
}

func (f *fakeTarget) Name() string { return "Tidal" }
func (f *fakeTarget) ListPlaylists(ctx context.Context) ([]catalog.TargetPlaylist, error) {
	var out []catalog.TargetPlaylist
	for _, p := range f.playlists {
		out = append(out, *p)
	}
	return out, nil
}
func (f *fakeTarget) CreatePlaylist(ctx context.Context, title, description string) (*catalog.TargetPlaylist, error) {
	p := &catalog.TargetPlaylist{UUID: "pl-" + title, Title: title, Description: description, ETag: "v0"}
	f.playlists[p.UUID] = p
	return p, nil
}
func (f *fakeTarget) GetPlaylist(ctx context.Context, uuid string) (*catalog.TargetPlaylist, error) {
	p, ok := f.playlists[uuid]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *p
	return &cp, nil
}
func (f *fakeTarget) PlaylistItems(ctx context.Context, uuid string) ([]catalog.PlaylistItem, error) {
	return f.items[uuid], nil
}
func (f *fakeTarget) UpdatePlaylistDescription(ctx context.Context, uuid, title, description string) error {
	return nil
}
func (f *fakeTarget) AddItems(ctx context.Context, uuid, etag string, targetIDs []string) (string, error) {
	p := f.playlists[uuid]
	for _, id := range targetIDs {
		f.items[uuid] = append(f.items[uuid], catalog.PlaylistItem{TargetID: id})
	}
	p.ETag += "+"
	return p.ETag, nil
}
func (f *fakeTarget) DeleteItems(ctx context.Context, uuid, etag string, indices []int) (string, error) {
	p := f.playlists[uuid]
	p.ETag += "+"
	return p.ETag, nil
}
func (f *fakeTarget) SearchTracks(ctx context.Context, query string, limit int) ([]catalog.TargetTrack, error) {
	return f.searchRes[query], nil
}

func TestPipeline_Run_MigratesAndHandsOffToDownload(t *testing.T) {
	source := &fakeSource{
		playlists: []catalog.SourcePlaylist{{ID: "p1", Name: "Road Trip", TrackCount: 1}},
		tracks: map[string][]catalog.SourceTrack{
			"p1": {{ID: "t1", Title: "One More Time", Artists: []string{"Daft Punk"}, DurationMS: 320000, ISRC: "FR6V81800474"}},
		},
	}

	target := newFakeTarget()
	target.searchRes["one more time daft punk"] = []catalog.TargetTrack{
		{ID: "x1", Title: "One More Time", Artists: []string{"Daft Punk"}, DurationS: 320, ISRC: "FR6V81800474"},
	}

	engine := matching.New(nil, target)
	mut := mutator.New(target, "crossfade")
	collector := report.NewCollector(nil)
	orch := downloader.New(downloader.Opts{BinaryPath: "true", NumWorkers: 1})

	p := New(Opts{
		NumWorkers: 1,
		Source:     source,
		Mutator:    mut,
		Engine:     engine,
		Downloads:  orch,
		Reports:    collector,
	})

	outcomes, downloads, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(outcomes) != 1 {
		t.Fatalf("expected 1 playlist outcome, got %d", len(outcomes))
	}
	if outcomes[0].Added != 1 {
		t.Errorf("Added = %d, want 1", outcomes[0].Added)
	}
	if len(downloads) != 1 {
		t.Fatalf("expected 1 download result, got %d", len(downloads))
	}

	reports := collector.Reports(outcomes[0].TargetUUID)
	if len(reports) != 1 || reports[0].MigrationOutcome != report.Added {
		t.Errorf("expected one added report, got %+v", reports)
	}
}

func TestPipeline_Run_CascadeHitAlreadyInSnapshotIsSkipped(t *testing.T) {
	source := &fakeSource{
		playlists: []catalog.SourcePlaylist{{ID: "p1", Name: "Road Trip", TrackCount: 1}},
		tracks: map[string][]catalog.SourceTrack{
			"p1": {{ID: "t1", Title: "One More Time", Artists: []string{"Daft Punk"}, DurationMS: 320000, ISRC: "FR6V81800474"}},
		},
	}

	target := newFakeTarget()
	target.playlists["pl-Road Trip"] = &catalog.TargetPlaylist{UUID: "pl-Road Trip", Title: "Road Trip", ETag: "v0"}
	target.items["pl-Road Trip"] = []catalog.PlaylistItem{
		{TargetID: "x1", Title: "A Completely Different Track", Artists: []string{"Someone Else"}, DurationS: 99},
	}
	target.searchRes["one more time daft punk"] = []catalog.TargetTrack{
		{ID: "x1", Title: "One More Time", Artists: []string{"Daft Punk"}, DurationS: 320, ISRC: "FR6V81800474"},
	}

	engine := matching.New(nil, target)
	mut := mutator.New(target, "crossfade")
	collector := report.NewCollector(nil)
	orch := downloader.New(downloader.Opts{BinaryPath: "true", NumWorkers: 1})

	p := New(Opts{NumWorkers: 1, Source: source, Mutator: mut, Engine: engine, Downloads: orch, Reports: collector})

	outcomes, _, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(outcomes) != 1 {
		t.Fatalf("expected 1 playlist outcome, got %d", len(outcomes))
	}
	if outcomes[0].Added != 0 {
		t.Errorf("Added = %d, want 0 (resolved id already present in snapshot)", outcomes[0].Added)
	}
	if outcomes[0].Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", outcomes[0].Skipped)
	}

	reports := collector.Reports(outcomes[0].TargetUUID)
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
	if reports[0].MigrationOutcome != report.Skipped {
		t.Errorf("MigrationOutcome = %q, want skipped", reports[0].MigrationOutcome)
	}
	if reports[0].ResolutionSource != matching.Existing {
		t.Errorf("ResolutionSource = %q, want %q", reports[0].ResolutionSource, matching.Existing)
	}
}

func TestPipeline_Run_NoMatchIsNotFound(t *testing.T) {
	source := &fakeSource{
		playlists: []catalog.SourcePlaylist{{ID: "p1", Name: "Obscure", TrackCount: 1}},
		tracks: map[string][]catalog.SourceTrack{
			"p1": {{ID: "t1", Title: "Nonexistent Song", Artists: []string{"Nobody"}, DurationMS: 100000}},
		},
	}

	target := newFakeTarget()
	engine := matching.New(nil, target)
	mut := mutator.New(target, "crossfade")
	collector := report.NewCollector(nil)
	orch := downloader.New(downloader.Opts{BinaryPath: "true", NumWorkers: 1})

	p := New(Opts{NumWorkers: 1, Source: source, Mutator: mut, Engine: engine, Downloads: orch, Reports: collector})

	outcomes, _, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcomes[0].NotFound != 1 {
		t.Errorf("NotFound = %d, want 1", outcomes[0].NotFound)
	}
}
