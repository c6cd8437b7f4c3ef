package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/crossfade/internal/catalog"
	"github.com/desertthunder/crossfade/internal/matching"
	"github.com/desertthunder/crossfade/internal/probe"
	testutil "github.com/desertthunder/crossfade/internal/testing"
)

type stubProber struct {
	result *probe.Result
	err    error
}

func (s stubProber) Probe(path string) (*probe.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func TestFromSourceTrack(t *testing.T) {
	src := catalog.SourceTrack{ID: "t1", Title: "One More Time", Artists: []string{"Daft Punk"}, Album: "Discovery", DurationMS: 320000, TrackNumber: 1, ISRC: "FR6V81800474"}
	r := FromSourceTrack(src)

	if r.SourceTitle != "One More Time" || r.SourceArtist != "Daft Punk" || r.SourceDurationMS != 320000 {
		t.Errorf("unexpected report: %+v", r)
	}
}

func TestApplyTargetTrack_ConvertsSecondsToMillis(t *testing.T) {
	r := TrackReport{}
	r.ApplyTargetTrack(catalog.TargetTrack{ID: "x1", Title: "One More Time", Artists: []string{"Daft Punk"}, DurationS: 320}, matching.UniversalLink)

	if r.TargetDurationMS != 320000 {
		t.Errorf("TargetDurationMS = %d, want 320000", r.TargetDurationMS)
	}
	if r.ResolutionSource != matching.UniversalLink {
		t.Errorf("ResolutionSource = %q, want %q", r.ResolutionSource, matching.UniversalLink)
	}
}

func TestCollector_ReconcileDownload(t *testing.T) {
	c := NewCollector(nil)
	c.BeginPlaylist("pl1", "Road Trip")
	c.Record("pl1", TrackReport{SourceID: "a", MigrationOutcome: Added})
	c.Record("pl1", TrackReport{SourceID: "b", MigrationOutcome: NotFound})

	c.ReconcileDownload("pl1", true)

	reports := c.Reports("pl1")
	if reports[0].DownloadOutcome != DownloadDownloaded {
		t.Errorf("added track outcome = %q, want downloaded", reports[0].DownloadOutcome)
	}
	if reports[1].DownloadOutcome != DownloadPending {
		t.Errorf("not_found track should not be touched, got %q", reports[1].DownloadOutcome)
	}
}

func TestCollector_ReconcileDownload_Failure(t *testing.T) {
	c := NewCollector(nil)
	c.BeginPlaylist("pl1", "Road Trip")
	c.Record("pl1", TrackReport{SourceID: "a", MigrationOutcome: Skipped})

	c.ReconcileDownload("pl1", false)

	if got := c.Reports("pl1")[0].DownloadOutcome; got != DownloadFailed {
		t.Errorf("DownloadOutcome = %q, want failed", got)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Road Trip 2024!", "Road-Trip-2024"},
		{"a/b:c", "abc"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCollector_WriteCSV(t *testing.T) {
	c := NewCollector(nil)
	c.BeginPlaylist("pl1", "Road Trip")
	c.Record("pl1", TrackReport{SourceID: "a", SourceTitle: "One More Time", MigrationOutcome: Added})

	dir := t.TempDir()
	path, err := c.WriteCSV("pl1", dir)
	if err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	if filepath.Base(path) != "pl-Road-Trip.csv" {
		t.Errorf("filename = %q, want pl-Road-Trip.csv", filepath.Base(path))
	}
	testutil.AssertFileExists(t, path)

	contents := testutil.MustReadFile(t, path)
	if !strings.Contains(contents, "One More Time") {
		t.Errorf("csv missing row data: %s", contents)
	}
	if !strings.HasPrefix(contents, "source_id,") {
		t.Errorf("csv missing header: %s", contents)
	}
}

func TestLocateFile_MatchesNormalizedStem(t *testing.T) {
	root := t.TempDir()
	artistDir := filepath.Join(root, "Daft Punk")
	if err := os.Mkdir(artistDir, 0o755); err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(artistDir, "One More Time (Radio Edit).flac")
	if err := os.WriteFile(want, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, ok := locateFile(root, "One More Time", "Daft Punk")
	if !ok {
		t.Fatal("expected a match")
	}
	if got != want {
		t.Errorf("locateFile = %q, want %q", got, want)
	}
}

func TestCollector_LocatePlaylistFiles_AppliesProbeResult(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "One More Time.flac")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	prober := stubProber{result: &probe.Result{FormatName: "flac", CodecName: "flac", SampleRateHz: 44100, Channels: 2}}
	c := NewCollector(prober)
	c.BeginPlaylist("pl1", "Road Trip")
	c.Record("pl1", TrackReport{SourceID: "a", TargetID: "x1", TargetTitle: "One More Time", MigrationOutcome: Added, DownloadOutcome: DownloadDownloaded})

	c.LocatePlaylistFiles("pl1", root)

	got := c.Reports("pl1")[0]
	if got.DownloadFilePath != path {
		t.Errorf("DownloadFilePath = %q, want %q", got.DownloadFilePath, path)
	}
	if got.CodecName != "flac" || got.SampleRateHz != 44100 {
		t.Errorf("probe result not applied: %+v", got)
	}
}
