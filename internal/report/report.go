// Package report accumulates per-track migration outcomes into
// TrackReports, reconciles them against download results, locates the
// resulting audio files on disk, and emits one CSV per playlist.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/desertthunder/crossfade/internal/catalog"
	"github.com/desertthunder/crossfade/internal/matching"
	"github.com/desertthunder/crossfade/internal/probe"
)

// MigrationOutcome is the per-track result of the matching/add cascade.
type MigrationOutcome string

const (
	Added        MigrationOutcome = "added"
	Skipped      MigrationOutcome = "skipped"
	NotFound     MigrationOutcome = "not_found"
	FailedToAdd  MigrationOutcome = "failed_to_add"
)

// DownloadOutcome is the post-download status assigned during
// reconciliation.
type DownloadOutcome string

const (
	DownloadPending    DownloadOutcome = ""
	DownloadDownloaded DownloadOutcome = "downloaded"
	DownloadFailed     DownloadOutcome = "failed"
)

// TrackReport is one row of a playlist's migration CSV. Field order here
// matches the documented CSV column order exactly.
type TrackReport struct {
	SourceID            string
	SourceURL           string
	SourceTitle         string
	SourceArtist        string // comma-joined
	SourceAlbum         string
	SourceDurationMS    int
	SourceTrackNumber   int
	SourceISRC          string
	MigrationOutcome    MigrationOutcome
	ResolutionSource    matching.ResolutionSource
	TargetID            string
	TargetURL           string
	TargetTitle         string
	TargetArtist         string
	TargetAlbum          string
	TargetDurationMS     int
	DownloadOutcome      DownloadOutcome
	DownloadFilePath     string
	FileSizeBytes        int64
	FileFormat           string
	CodecName            string
	CodecLongName        string
	SampleRateHz         int
	Channels             int
	ChannelLayout        string
	BitDepth             int
	AverageBitrateBPS    int64
	MaximumBitrateBPS    int64
	ProbedDurationS      float64
}

// csvHeader and the field order in toRow must stay in lockstep.
var csvHeader = []string{
	"source_id", "source_url", "source_title", "source_artist", "source_album",
	"source_duration_ms", "source_track_number", "source_isrc",
	"migration_outcome", "resolution_source",
	"target_id", "target_url", "target_title", "target_artist", "target_album", "target_duration_ms",
	"download_outcome", "download_file_path", "file_size_bytes", "file_format",
	"codec_name", "codec_long_name", "sample_rate_hz", "channels", "channel_layout",
	"bit_depth", "average_bitrate_bps", "maximum_bitrate_bps", "duration_s",
}

func (r TrackReport) toRow() []string {
	return []string{
		r.SourceID, r.SourceURL, r.SourceTitle, r.SourceArtist, r.SourceAlbum,
		strconv.Itoa(r.SourceDurationMS), strconv.Itoa(r.SourceTrackNumber), r.SourceISRC,
		string(r.MigrationOutcome), string(r.ResolutionSource),
		r.TargetID, r.TargetURL, r.TargetTitle, r.TargetArtist, r.TargetAlbum, strconv.Itoa(r.TargetDurationMS),
		string(r.DownloadOutcome), r.DownloadFilePath, strconv.FormatInt(r.FileSizeBytes, 10), r.FileFormat,
		r.CodecName, r.CodecLongName, strconv.Itoa(r.SampleRateHz), strconv.Itoa(r.Channels), r.ChannelLayout,
		strconv.Itoa(r.BitDepth), strconv.FormatInt(r.AverageBitrateBPS, 10), strconv.FormatInt(r.MaximumBitrateBPS, 10),
		strconv.FormatFloat(r.ProbedDurationS, 'f', 2, 64),
	}
}

// playlistStream accumulates one playlist's TrackReports in arrival order.
type playlistStream struct {
	mu      sync.Mutex
	name    string
	reports []*TrackReport
}

// Collector owns every playlist's TrackReport stream for one migration run.
type Collector struct {
	mu      sync.Mutex
	streams map[string]*playlistStream // keyed by target playlist uuid
	prober  probe.Prober
}

// NewCollector builds a Collector. prober may be nil to skip audio-file
// probing (useful in tests or a dry run).
func NewCollector(prober probe.Prober) *Collector {
	return &Collector{streams: make(map[string]*playlistStream), prober: prober}
}

// BeginPlaylist opens a new report stream for a playlist.
func (c *Collector) BeginPlaylist(uuid, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streams[uuid] = &playlistStream{name: name}
}

// Record appends a TrackReport to a playlist's stream.
func (c *Collector) Record(uuid string, r TrackReport) {
	c.mu.Lock()
	stream, ok := c.streams[uuid]
	c.mu.Unlock()
	if !ok {
		return
	}

	stream.mu.Lock()
	defer stream.mu.Unlock()
	rep := r
	stream.reports = append(stream.reports, &rep)
}

// ReconcileDownload marks every added/skipped report in a playlist
// downloaded or failed, depending on whether the playlist's own download
// succeeded.
func (c *Collector) ReconcileDownload(uuid string, downloadSucceeded bool) {
	c.mu.Lock()
	stream, ok := c.streams[uuid]
	c.mu.Unlock()
	if !ok {
		return
	}

	stream.mu.Lock()
	defer stream.mu.Unlock()
	for _, r := range stream.reports {
		if r.MigrationOutcome != Added && r.MigrationOutcome != Skipped {
			continue
		}
		if downloadSucceeded {
			r.DownloadOutcome = DownloadDownloaded
		} else {
			r.DownloadOutcome = DownloadFailed
		}
	}
}

// normalizeForFS lower-cases and strips spaces, -, _, (, ) for filesystem
// matching, per the file-location heuristic.
var fsNormalizeRe = regexp.MustCompile(`[ \-_()]`)

func normalizeForFS(s string) string {
	return fsNormalizeRe.ReplaceAllString(strings.ToLower(s), "")
}

var audioExtensions = map[string]bool{
	".flac": true, ".m4a": true, ".mp3": true, ".ogg": true, ".opus": true, ".wav": true,
}

// LocatePlaylistFiles walks downloadRoot looking for each downloaded
// report's audio file, preferring an artist-named subdirectory before
// falling back to a full recursive walk, and probes any file it finds.
func (c *Collector) LocatePlaylistFiles(uuid, downloadRoot string) {
	c.mu.Lock()
	stream, ok := c.streams[uuid]
	c.mu.Unlock()
	if !ok {
		return
	}

	stream.mu.Lock()
	defer stream.mu.Unlock()

	for _, r := range stream.reports {
		if r.DownloadOutcome != DownloadDownloaded || r.TargetID == "" {
			continue
		}

		path, ok := locateFile(downloadRoot, r.TargetTitle, r.TargetArtist)
		if !ok {
			continue
		}
		r.DownloadFilePath = path

		if info, err := os.Stat(path); err == nil {
			r.FileSizeBytes = info.Size()
		}

		if c.prober == nil {
			continue
		}

		result, err := c.prober.Probe(path)
		if err != nil {
			continue
		}
		applyProbeResult(r, result)
	}
}

func applyProbeResult(r *TrackReport, result *probe.Result) {
	r.FileFormat = result.FormatName
	r.CodecName = result.CodecName
	r.CodecLongName = result.CodecLongName
	r.SampleRateHz = result.SampleRateHz
	r.Channels = result.Channels
	r.ChannelLayout = result.ChannelLayout
	r.BitDepth = result.BitDepth
	r.AverageBitrateBPS = result.AverageBitrateBPS
	r.MaximumBitrateBPS = result.MaximumBitrateBPS
	r.ProbedDurationS = result.DurationS
}

// locateFile implements the two-pass file-location heuristic: an
// artist-directory-first search, then a full recursive fallback.
func locateFile(root, title, artist string) (string, bool) {
	normTitle := normalizeForFS(title)
	normArtist := normalizeForFS(artist)
	if normTitle == "" {
		return "", false
	}

	if path, ok := walkForMatch(root, normTitle, normArtist, true); ok {
		return path, true
	}
	return walkForMatch(root, normTitle, normArtist, false)
}

// walkForMatch walks root for an audio file whose normalized stem is a
// mutual substring of normTitle. When preferArtistDir is true, only
// descends into directories whose normalized name contains normArtist at
// the top level (an "artist directory"); the recursive fallback visits
// everything.
func walkForMatch(root, normTitle, normArtist string, preferArtistDir bool) (string, bool) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", false
	}

	var found string
	for _, entry := range entries {
		full := filepath.Join(root, entry.Name())

		if entry.IsDir() {
			if preferArtistDir && normArtist != "" && !strings.Contains(normalizeForFS(entry.Name()), normArtist) {
				continue
			}
			if path, ok := walkDirRecursive(full, normTitle, normArtist); ok {
				return path, true
			}
			continue
		}

		if matchesAudioFile(entry.Name(), normTitle) {
			found = full
		}
	}

	return found, found != ""
}

func walkDirRecursive(dir, normTitle, normArtist string) (string, bool) {
	var found string
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if matchesAudioFile(d.Name(), normTitle) {
			found = path
		}
		return nil
	})
	return found, found != ""
}

func matchesAudioFile(name, normTitle string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if !audioExtensions[ext] {
		return false
	}
	stem := normalizeForFS(strings.TrimSuffix(name, filepath.Ext(name)))
	return strings.Contains(stem, normTitle) || strings.Contains(normTitle, stem)
}

// sanitizeFilename keeps alphanumerics, space, -, _; collapses runs of
// spaces to a single -; truncates to 100 characters.
var (
	keepFilenameRe = regexp.MustCompile(`[^a-zA-Z0-9 _-]`)
	spaceRunRe     = regexp.MustCompile(` +`)
)

func sanitizeFilename(name string) string {
	s := keepFilenameRe.ReplaceAllString(name, "")
	s = spaceRunRe.ReplaceAllString(s, "-")
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}

// WriteCSV emits pl-<sanitized-name>.csv under dir for the given playlist.
func (c *Collector) WriteCSV(uuid, dir string) (string, error) {
	c.mu.Lock()
	stream, ok := c.streams[uuid]
	c.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("no report stream for playlist %s", uuid)
	}

	stream.mu.Lock()
	defer stream.mu.Unlock()

	filename := fmt.Sprintf("pl-%s.csv", sanitizeFilename(stream.name))
	path := filepath.Join(dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create csv %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return "", fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range stream.reports {
		if err := w.Write(r.toRow()); err != nil {
			return "", fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush csv: %w", err)
	}

	return path, nil
}

// Reports returns a playlist's accumulated reports, for tests and for the
// live UI's aggregate counters.
func (c *Collector) Reports(uuid string) []*TrackReport {
	c.mu.Lock()
	stream, ok := c.streams[uuid]
	c.mu.Unlock()
	if !ok {
		return nil
	}

	stream.mu.Lock()
	defer stream.mu.Unlock()
	out := make([]*TrackReport, len(stream.reports))
	copy(out, stream.reports)
	return out
}

// FromSourceTrack seeds a TrackReport's source-side columns.
func FromSourceTrack(t catalog.SourceTrack) TrackReport {
	return TrackReport{
		SourceID:          t.ID,
		SourceURL:         fmt.Sprintf("https://open.spotify.com/track/%s", t.ID),
		SourceTitle:       t.Title,
		SourceArtist:      strings.Join(t.Artists, ", "),
		SourceAlbum:       t.Album,
		SourceDurationMS:  t.DurationMS,
		SourceTrackNumber: t.TrackNumber,
		SourceISRC:        t.ISRC,
	}
}

// ApplyTargetTrack fills in a TrackReport's target-side columns from a
// resolved target track, converting its seconds-granularity duration to
// milliseconds to match the source columns' unit.
func (r *TrackReport) ApplyTargetTrack(t catalog.TargetTrack, src matching.ResolutionSource) {
	r.TargetID = t.ID
	r.TargetURL = fmt.Sprintf("https://tidal.com/browse/track/%s", t.ID)
	r.TargetTitle = t.Title
	r.TargetArtist = strings.Join(t.Artists, ", ")
	r.TargetDurationMS = t.DurationS * 1000
	r.ResolutionSource = src
}
