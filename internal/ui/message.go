package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/crossfade/internal/downloader"
	"github.com/desertthunder/crossfade/internal/pipeline"
)

// tickMsg drives the 4 Hz repaint independent of whatever events have
// arrived; counters and logs are only ever mutated by the messages below.
type tickMsg struct{}

// trackResolvedMsg reports one source track's resolution, feeding the
// per-worker current-track row and the rolling ETA window.
type trackResolvedMsg pipeline.TrackEvent

// playlistStartedMsg marks a worker beginning a new playlist, so its row
// can show cur/total before the first track resolves.
type playlistStartedMsg struct {
	WorkerNum int
	Name      string
	Total     int
}

// totalKnownMsg reports the full playlist count for the run, once known.
type totalKnownMsg struct {
	Total int
}

// playlistDoneMsg reports a playlist's migration outcome.
type playlistDoneMsg pipeline.PlaylistOutcome

// downloadStartedMsg reports a playlist's download subprocess launching.
type downloadStartedMsg struct {
	UUID       string
	Name       string
	TrackCount int
}

// downloadDoneMsg reports a playlist's download subprocess exiting.
type downloadDoneMsg downloader.Result

// quitMsg is sent once the migration pipeline's Run has returned, so the
// program can render a final frame and exit on its own rather than wait
// for a keypress.
type quitMsg struct{}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg { return tickMsg{} })
}
