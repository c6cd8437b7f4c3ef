// Package downloader implements the bounded worker pool that shells out to
// the "download" subcommand of the binary named by Opts.BinaryPath, one
// invocation per migrated playlist, per the Download Orchestrator.
package downloader

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/crossfade/internal/shared"
)

const (
	// defaultWorkers is the bounded pool size when none is configured.
	defaultWorkers = 2

	minTimeout               = 600 * time.Second
	perTrackTimeout          = 30 * time.Second
	unknownTrackCountTimeout = 7200 * time.Second

	// reasonMaxLen truncates the extracted failure reason, per spec.
	reasonMaxLen = 200

	pollInterval = 500 * time.Millisecond
)

// OnStart fires before a subprocess is launched for a playlist.
type OnStart func(uuid, name string, trackCount int)

// OnComplete fires after a playlist's download subprocess exits.
type OnComplete func(uuid, name string, success bool, message string)

// Job is one playlist queued for download.
type Job struct {
	UUID       string
	Name       string
	TrackCount int // 0 means unknown
}

// Result is the outcome of one playlist's download invocation.
type Result struct {
	UUID    string
	Name    string
	Success bool
	Message string
}

// Counters tracks in-flight orchestrator state for the live UI.
type Counters struct {
	mu        sync.Mutex
	Completed int
	Failed    int
	Pending   int
}

func (c *Counters) snapshot() (completed, failed, pending int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Completed, c.Failed, c.Pending
}

// Orchestrator runs a bounded pool of M workers, each shelling out to the
// downloader binary once per queued playlist.
type Orchestrator struct {
	binaryPath string
	numWorkers int
	logger     *log.Logger
	onStart    OnStart
	onComplete OnComplete
	counters   Counters

	jobs    chan Job
	results chan Result
	wg      sync.WaitGroup

	mu       sync.Mutex
	pendingN int
}

// Opts configures an Orchestrator.
type Opts struct {
	BinaryPath string // defaults to "crossfade"
	NumWorkers int     // defaults to 2
	OnStart    OnStart
	OnComplete OnComplete
}

// New builds an Orchestrator. Start must be called before Add.
func New(opts Opts) *Orchestrator {
	if opts.BinaryPath == "" {
		opts.BinaryPath = "crossfade"
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = defaultWorkers
	}

	return &Orchestrator{
		binaryPath: opts.BinaryPath,
		numWorkers: opts.NumWorkers,
		logger:     shared.NewLogger(nil),
		onStart:    opts.OnStart,
		onComplete: opts.OnComplete,
		jobs:       make(chan Job, 256),
		results:    make(chan Result, 256),
	}
}

// Start launches the worker pool. Call Add to enqueue playlists and
// WaitForCompletion to drain.
func (o *Orchestrator) Start(ctx context.Context) {
	for i := 0; i < o.numWorkers; i++ {
		o.wg.Add(1)
		go o.worker(ctx)
	}
}

// Add enqueues a playlist for download. Dispatches immediately to whichever
// worker is free; does not block unless the internal queue is full.
func (o *Orchestrator) Add(uuid, name string, trackCount int) {
	o.mu.Lock()
	o.counters.mu.Lock()
	o.counters.Pending++
	o.counters.mu.Unlock()
	o.pendingN++
	o.mu.Unlock()

	o.jobs <- Job{UUID: uuid, Name: name, TrackCount: trackCount}
}

// CloseQueue signals that no more jobs will be added; workers exit once
// drained.
func (o *Orchestrator) CloseQueue() { close(o.jobs) }

func (o *Orchestrator) worker(ctx context.Context) {
	defer o.wg.Done()

	for job := range o.jobs {
		if o.onStart != nil {
			o.onStart(job.UUID, job.Name, job.TrackCount)
		}

		res := o.run(ctx, job)

		o.counters.mu.Lock()
		o.counters.Pending--
		if res.Success {
			o.counters.Completed++
		} else {
			o.counters.Failed++
		}
		o.counters.mu.Unlock()

		if o.onComplete != nil {
			o.onComplete(res.UUID, res.Name, res.Success, res.Message)
		}

		o.results <- res
	}
}

// timeoutFor implements the dynamic per-playlist timeout.
func timeoutFor(trackCount int) time.Duration {
	if trackCount <= 0 {
		return unknownTrackCountTimeout
	}
	t := time.Duration(trackCount) * perTrackTimeout
	if t < minTimeout {
		return minTimeout
	}
	return t
}

func (o *Orchestrator) run(ctx context.Context, job Job) Result {
	timeout := timeoutFor(job.TrackCount)
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, o.binaryPath, "download", "--skip-errors", "url", "playlist/"+job.UUID)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if runCtx.Err() == context.DeadlineExceeded {
		return Result{UUID: job.UUID, Name: job.Name, Success: false, Message: "TimeoutExpired: download exceeded its allotted time"}
	}
	if err == nil {
		return Result{UUID: job.UUID, Name: job.Name, Success: true, Message: "ok"}
	}

	return Result{UUID: job.UUID, Name: job.Name, Success: false, Message: classifyFailure(err, stdout.Bytes(), stderr.Bytes())}
}

// classifyFailure extracts the first stderr/stdout line containing "error"
// (case-insensitive) as the human-readable reason, falling back to stderr,
// then stdout, then a generic exit-code message.
func classifyFailure(err error, stdout, stderr []byte) string {
	if line, ok := firstErrorLine(stderr); ok {
		return truncate(line)
	}
	if line, ok := firstErrorLine(stdout); ok {
		return truncate(line)
	}
	if s := strings.TrimSpace(string(stderr)); s != "" {
		return truncate(s)
	}
	if s := strings.TrimSpace(string(stdout)); s != "" {
		return truncate(s)
	}

	if exitErr, ok := err.(*exec.ExitError); ok {
		return fmt.Sprintf("Exit code %d", exitErr.ExitCode())
	}
	return fmt.Sprintf("Exit code unknown: %v", err)
}

func firstErrorLine(b []byte) (string, bool) {
	scanner := bufio.NewScanner(bytes.NewReader(b))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(strings.ToLower(line), "error") {
			return strings.TrimSpace(line), true
		}
	}
	return "", false
}

func truncate(s string) string {
	if len(s) <= reasonMaxLen {
		return s
	}
	return s[:reasonMaxLen]
}

// WaitForCompletion drains all queued results, invoking poll every
// pollInterval so a caller (typically the live UI) can refresh. Call
// CloseQueue first so the worker pool eventually terminates.
func (o *Orchestrator) WaitForCompletion(poll func()) []Result {
	go func() {
		o.wg.Wait()
		close(o.results)
	}()

	var out []Result
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case res, ok := <-o.results:
			if !ok {
				return out
			}
			out = append(out, res)
		case <-ticker.C:
			if poll != nil {
				poll()
			}
		}
	}
}

// Snapshot returns the current completed/failed/pending counts.
func (o *Orchestrator) Snapshot() (completed, failed, pending int) {
	return o.counters.snapshot()
}
