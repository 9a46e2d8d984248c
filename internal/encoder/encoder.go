package encoder

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"vodpipe/internal/hls"
	"vodpipe/internal/layout"
	"vodpipe/internal/services"
)

const stderrTailBytes = 2048

// TranscodeRequest describes one HLS rendition encode.
type TranscodeRequest struct {
	Input string
	// Playlist is the rendition's stream.m3u8; segments are written beside it.
	Playlist       string
	Label          string
	Bitrate        string
	SegmentSeconds int
}

// Option configures an Encoder.
type Option func(*Encoder)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec services.Executor) Option {
	return func(e *Encoder) {
		if exec != nil {
			e.exec = exec
		}
	}
}

// WithPreset overrides the x264 preset (default "fast").
func WithPreset(preset string) Option {
	return func(e *Encoder) {
		if p := strings.TrimSpace(preset); p != "" {
			e.preset = p
		}
	}
}

// WithThreads caps ffmpeg's thread count. Zero leaves the choice to ffmpeg.
func WithThreads(n int) Option {
	return func(e *Encoder) {
		if n >= 0 {
			e.threads = n
		}
	}
}

// Encoder wraps ffmpeg CLI interactions.
type Encoder struct {
	binary  string
	preset  string
	threads int
	exec    services.Executor
}

// New constructs an Encoder for binary (defaults to "ffmpeg").
func New(binary string, opts ...Option) *Encoder {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	e := &Encoder{binary: binary, preset: "fast", exec: services.CommandExecutor{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TranscodeArgs builds the ffmpeg argument list for req. The label must be on
// the ladder; its frame size comes from there.
func (e *Encoder) TranscodeArgs(req TranscodeRequest) ([]string, error) {
	rendition, ok := hls.Lookup(req.Label)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRendition, req.Label)
	}
	bitrate := strings.TrimSpace(req.Bitrate)
	if bitrate == "" {
		bitrate = rendition.Bitrate
	}
	segment := req.SegmentSeconds
	if segment <= 0 {
		segment = hls.SegmentSeconds
	}
	gop := strconv.Itoa(hls.GOPSize(segment))

	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", req.Input,
		"-c:v", "libx264",
		"-c:a", "aac",
		"-b:v", bitrate,
		"-b:a", hls.AudioBitrate,
		"-s", rendition.Resolution(),
		"-preset", e.preset,
		"-g", gop,
		"-keyint_min", gop,
		"-sc_threshold", "0",
	}
	if e.threads > 0 {
		args = append(args, "-threads", strconv.Itoa(e.threads))
	}
	args = append(args,
		"-f", "hls",
		"-hls_time", strconv.Itoa(segment),
		"-hls_playlist_type", "vod",
		"-hls_segment_filename", filepath.Join(filepath.Dir(req.Playlist), layout.SegmentPattern),
		req.Playlist,
	)
	return args, nil
}

// Transcode encodes one rendition, blocking until ffmpeg exits. The playlist's
// directory must already exist.
func (e *Encoder) Transcode(ctx context.Context, req TranscodeRequest) error {
	args, err := e.TranscodeArgs(req)
	if err != nil {
		return err
	}
	return e.run(ctx, "transcode", req.Label, args)
}

// ThumbnailArgs builds the ffmpeg argument list that samples one frame every
// intervalSeconds into dir/thumb_%d.jpg, scaled to width with aspect kept.
func (e *Encoder) ThumbnailArgs(input, dir string, intervalSeconds, width int) []string {
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", input,
		"-vf", fmt.Sprintf("fps=1/%d,scale=%d:-1", intervalSeconds, width),
	}
	if e.threads > 0 {
		args = append(args, "-threads", strconv.Itoa(e.threads))
	}
	return append(args, filepath.Join(dir, layout.ThumbnailPattern))
}

// Thumbnails extracts preview frames into dir, which must already exist.
func (e *Encoder) Thumbnails(ctx context.Context, input, dir string, intervalSeconds, width int) error {
	if intervalSeconds <= 0 || width <= 0 {
		return fmt.Errorf("thumbnails: interval and width must be positive (got %d, %d)", intervalSeconds, width)
	}
	return e.run(ctx, "thumbnails", "", e.ThumbnailArgs(input, dir, intervalSeconds, width))
}

func (e *Encoder) run(ctx context.Context, op, label string, args []string) error {
	res, err := e.exec.Run(ctx, e.binary, args)
	if err == nil {
		return nil
	}
	return &EncodeError{
		Op:       op,
		Label:    label,
		ExitCode: res.ExitCode,
		Stderr:   tail(strings.TrimSpace(string(res.Stderr)), stderrTailBytes),
		Err:      err,
	}
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "…" + s[len(s)-n:]
}
