// Package probe extracts audio-format metadata from downloaded files by
// shelling out to ffprobe via gopkg.in/vansante/go-ffprobe.v2.
package probe

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	ffprobe "gopkg.in/vansante/go-ffprobe.v2"
)

// probeTimeout bounds a single ffprobe invocation.
const probeTimeout = 15 * time.Second

// Result is the subset of ffprobe's format/stream output a TrackReport
// needs.
type Result struct {
	FormatName        string
	CodecName         string
	CodecLongName     string
	SampleRateHz      int
	Channels          int
	ChannelLayout     string
	BitDepth          int
	AverageBitrateBPS int64
	MaximumBitrateBPS int64
	DurationS         float64
}

// Prober probes a local audio file. Satisfied by [Client]; mockable in
// tests.
type Prober interface {
	Probe(path string) (*Result, error)
}

// Client invokes ffprobe via os/exec under the hood, through the
// gopkg.in/vansante/go-ffprobe.v2 wrapper.
type Client struct{}

// New builds a ffprobe-backed Client.
func New() *Client { return &Client{} }

// Probe runs `ffprobe -v quiet -print_format json -show_format
// -show_streams <path>` and extracts format/stream metadata for the first
// audio stream found.
func (c *Client) Probe(path string) (*Result, error) {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	data, err := ffprobe.ProbeURL(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", path, err)
	}

	stream := data.FirstAudioStream()
	if stream == nil {
		return nil, fmt.Errorf("probe %s: no audio stream found", path)
	}

	result := &Result{
		CodecName:     stream.CodecName,
		CodecLongName: stream.CodecLongName,
		Channels:      stream.Channels,
		ChannelLayout: stream.ChannelLayout,
	}

	if data.Format != nil {
		result.FormatName = firstToken(data.Format.FormatName)
		result.DurationS = data.Format.DurationSeconds
		result.AverageBitrateBPS = parseInt64(data.Format.BitRate)
	}

	result.SampleRateHz = parseInt(stream.SampleRate)

	result.BitDepth = parseInt(stream.BitsPerRawSample)
	if result.BitDepth == 0 {
		result.BitDepth = stream.BitsPerSample
	}

	result.MaximumBitrateBPS = parseInt64(stream.MaxBitRate)
	if result.MaximumBitrateBPS == 0 {
		result.MaximumBitrateBPS = result.AverageBitrateBPS
	}

	return result, nil
}

// firstToken takes the first comma-separated token of ffprobe's
// format_name, which is often a slash/comma list of compatible muxers.
func firstToken(s string) string {
	for _, sep := range []string{",", "/"} {
		if i := strings.Index(s, sep); i >= 0 {
			return s[:i]
		}
	}
	return s
}

func parseInt(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n
}
