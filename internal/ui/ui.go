package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/desertthunder/crossfade/internal/downloader"
	"github.com/desertthunder/crossfade/internal/pipeline"
)

const (
	refreshInterval = 250 * time.Millisecond // 4 Hz
	logCapacity     = 20
	etaWindow       = 100
	barWidth        = 24
)

// workerRow is one worker's current position, rendered as a progress bar
// plus the track title it's resolving.
type workerRow struct {
	playlistName string
	current      int
	total        int
	trackTitle   string
}

// ring is a bounded FIFO of strings, used for both activity logs.
type ring struct {
	entries []string
	cap     int
}

func newRing(cap int) *ring { return &ring{cap: cap} }

func (r *ring) push(s string) {
	r.entries = append(r.entries, s)
	if len(r.entries) > r.cap {
		r.entries = r.entries[len(r.entries)-r.cap:]
	}
}

func (r *ring) lines() []string { return r.entries }

// Model is the live display's bubbletea root model.
type Model struct {
	width, height int

	numWorkers int
	workers    map[int]*workerRow
	bar        progress.Model

	playlistsTotal  int
	playlistsDone   int
	tracksAdded     int
	tracksSkipped   int
	tracksNotFound  int
	playlistsFailed int

	durations    []time.Duration
	migrationLog *ring

	dlPending     int
	dlCompleted   int
	dlFailed      int
	dlCurrentName string
	downloadLog   *ring

	help     help.Model
	keys     keyMap
	showHelp bool
	done     bool
}

// New builds a Model ready to run via a [tea.Program].
func New(numWorkers int) Model {
	p := progress.New(progress.WithDefaultGradient())
	p.Width = barWidth

	return Model{
		numWorkers:   numWorkers,
		workers:      make(map[int]*workerRow, numWorkers),
		bar:          p,
		migrationLog: newRing(logCapacity),
		downloadLog:  newRing(logCapacity),
		help:         help.New(),
		keys:         newKeyMap(),
	}
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.help):
			m.showHelp = !m.showHelp
		}
		return m, nil

	case tickMsg:
		if m.done {
			return m, nil
		}
		return m, tick()

	case totalKnownMsg:
		m.playlistsTotal = msg.Total
		return m, nil

	case playlistStartedMsg:
		m.workers[msg.WorkerNum] = &workerRow{playlistName: msg.Name, total: msg.Total}
		m.migrationLog.push(fmt.Sprintf("worker %d: starting %s (%d tracks)", msg.WorkerNum, msg.Name, msg.Total))
		return m, nil

	case trackResolvedMsg:
		w, ok := m.workers[msg.WorkerNum]
		if !ok {
			w = &workerRow{playlistName: msg.PlaylistName}
			m.workers[msg.WorkerNum] = w
		}
		w.playlistName = msg.PlaylistName
		w.trackTitle = msg.TrackTitle
		w.current++
		m.pushDuration(msg.Elapsed)
		return m, nil

	case playlistDoneMsg:
		m.playlistsDone++
		if msg.Err != nil {
			m.playlistsFailed++
			m.migrationLog.push(fmt.Sprintf("playlist failed: %s: %v", msg.SourcePlaylist.Name, msg.Err))
		} else {
			m.migrationLog.push(fmt.Sprintf("playlist done: %s (added %d, skipped %d, not found %d)", msg.SourcePlaylist.Name, msg.Added, msg.Skipped, msg.NotFound))
		}
		m.tracksAdded += msg.Added
		m.tracksSkipped += msg.Skipped
		m.tracksNotFound += msg.NotFound
		if n := workerOf(m.workers, msg.SourcePlaylist.Name); n != 0 {
			delete(m.workers, n)
		}
		return m, nil

	case downloadStartedMsg:
		m.dlCurrentName = msg.Name
		m.downloadLog.push(fmt.Sprintf("downloading: %s (%d tracks)", msg.Name, msg.TrackCount))
		return m, nil

	case downloadDoneMsg:
		if msg.Success {
			m.dlCompleted++
			m.downloadLog.push(fmt.Sprintf("download ok: %s", msg.Name))
		} else {
			m.dlFailed++
			m.downloadLog.push(fmt.Sprintf("download failed: %s: %s", msg.Name, msg.Message))
		}
		return m, nil

	case quitMsg:
		m.done = true
		return m, tea.Quit
	}

	return m, nil
}

// workerOf finds the worker number currently on the named playlist, so it
// can be cleared from the active-workers map once that playlist finishes.
// Returns 0 (no valid worker slot) if none match.
func workerOf(workers map[int]*workerRow, name string) int {
	for n, w := range workers {
		if w.playlistName == name {
			return n
		}
	}
	return 0
}

func (m *Model) pushDuration(d time.Duration) {
	m.durations = append(m.durations, d)
	if len(m.durations) > etaWindow {
		m.durations = m.durations[len(m.durations)-etaWindow:]
	}
}

// eta estimates remaining time from the rolling mean per-track duration,
// divided by the configured worker count.
func (m Model) eta() time.Duration {
	if len(m.durations) == 0 || m.numWorkers == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range m.durations {
		sum += d
	}
	mean := sum / time.Duration(len(m.durations))

	remainingTracks := 0
	for _, w := range m.workers {
		remainingTracks += w.total - w.current
	}
	if remainingTracks <= 0 {
		return 0
	}
	return mean * time.Duration(remainingTracks) / time.Duration(m.numWorkers)
}

var (
	titleStyle = lipgloss.NewStyle().Foreground(colorTitle).Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(colorMuted)
)

func (m Model) View() string {
	if m.done {
		return lipgloss.NewStyle().Foreground(colorOK).Render("migration complete") + "\n"
	}

	left := m.renderMigration()
	right := m.renderDownload()

	body := lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right)

	var helpView string
	if m.showHelp {
		helpView = "\n" + m.help.View(m.keys)
	} else {
		helpView = "\n" + m.help.ShortHelpView(m.keys.ShortHelp())
	}

	return body + helpView
}

func (m Model) renderMigration() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", titleStyle.Render(fmt.Sprintf("Migration: [%d/%d] (%d workers)", m.playlistsDone, m.playlistsTotal, m.numWorkers)))

	for i := 1; i <= m.numWorkers; i++ {
		w, ok := m.workers[i]
		if !ok {
			fmt.Fprintf(&b, "  [idle]\n")
			continue
		}
		ratio := 0.0
		if w.total > 0 {
			ratio = float64(w.current) / float64(w.total)
		}
		fmt.Fprintf(&b, "  %s %d/%d %s\n", m.bar.ViewAs(ratio), w.current, w.total, w.playlistName)
		fmt.Fprintf(&b, "    %s\n", mutedStyle.Render(w.trackTitle))
	}

	fmt.Fprintf(&b, "\n  added=%d skipped=%d not_found=%d failed=%d\n", m.tracksAdded, m.tracksSkipped, m.tracksNotFound, m.playlistsFailed)
	if eta := m.eta(); eta > 0 {
		fmt.Fprintf(&b, "  ETA %s\n", eta.Round(time.Second))
	}

	fmt.Fprintf(&b, "\n%s\n", titleStyle.Render("Activity"))
	for _, l := range m.migrationLog.lines() {
		fmt.Fprintf(&b, "  %s\n", l)
	}

	return b.String()
}

func (m Model) renderDownload() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", titleStyle.Render(fmt.Sprintf("Download: %d completed, %d failed", m.dlCompleted, m.dlFailed)))
	fmt.Fprintf(&b, "  current: %s\n", m.dlCurrentName)

	fmt.Fprintf(&b, "\n%s\n", titleStyle.Render("Activity"))
	for _, l := range m.downloadLog.lines() {
		fmt.Fprintf(&b, "  %s\n", l)
	}

	return b.String()
}

// NewPlaylistStartedMsg, NewTrackResolvedMsg, and friends wrap the
// internal message types so a caller can feed events into a running
// [tea.Program] via Send, from goroutines outside the Elm loop.

func NewTotalKnownMsg(total int) tea.Msg { return totalKnownMsg{Total: total} }

func NewPlaylistStartedMsg(workerNum int, name string, total int) tea.Msg {
	return playlistStartedMsg{WorkerNum: workerNum, Name: name, Total: total}
}

func NewTrackResolvedMsg(e pipeline.TrackEvent) tea.Msg { return trackResolvedMsg(e) }

func NewPlaylistDoneMsg(o pipeline.PlaylistOutcome) tea.Msg { return playlistDoneMsg(o) }

func NewDownloadStartedMsg(uuid, name string, trackCount int) tea.Msg {
	return downloadStartedMsg{UUID: uuid, Name: name, TrackCount: trackCount}
}

func NewDownloadDoneMsg(r downloader.Result) tea.Msg { return downloadDoneMsg(r) }

func NewQuitMsg() tea.Msg { return quitMsg{} }
