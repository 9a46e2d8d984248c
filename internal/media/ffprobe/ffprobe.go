package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"vodpipe/internal/services"
)

const defaultTimeout = 30 * time.Second

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index     int    `json:"index"`
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Filename   string `json:"filename"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
	FormatName string `json:"format_name"`
}

// DurationSeconds returns the container duration in seconds, 0 when absent, or
// NaN when the field is not a number.
func (r Result) DurationSeconds() float64 {
	return parseFloat(r.Format.Duration)
}

// VideoStreamCount returns the number of video streams discovered.
func (r Result) VideoStreamCount() int {
	count := 0
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "video") {
			count++
		}
	}
	return count
}

// Option configures a Prober.
type Option func(*Prober)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec services.Executor) Option {
	return func(p *Prober) {
		if exec != nil {
			p.exec = exec
		}
	}
}

// WithTimeout bounds each probe invocation.
func WithTimeout(d time.Duration) Option {
	return func(p *Prober) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// Prober runs ffprobe.
type Prober struct {
	binary  string
	timeout time.Duration
	exec    services.Executor
}

// New constructs a Prober for binary (defaults to "ffprobe").
func New(binary string, opts ...Option) *Prober {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	p := &Prober{binary: binary, timeout: defaultTimeout, exec: services.CommandExecutor{}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Inspect executes ffprobe quietly against path and decodes the format section.
func (p *Prober) Inspect(ctx context.Context, path string) (Result, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, services.Wrap(services.ErrProbe, "probe", "inspect", "empty path", nil)
	}

	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := []string{"-v", "quiet", "-print_format", "json", "-show_format", "-show_streams", "--", path}
	res, err := p.exec.Run(probeCtx, p.binary, args)
	if err != nil {
		msg := fmt.Sprintf("ffprobe exited with status %d", res.ExitCode)
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "ffprobe timed out after " + p.timeout.String()
		}
		return Result{}, services.Wrap(services.ErrProbe, "probe", "inspect", msg, err)
	}

	var result Result
	if err := json.Unmarshal(res.Stdout, &result); err != nil {
		return Result{}, services.Wrap(services.ErrProbe, "probe", "parse", "invalid ffprobe json", err)
	}
	return result, nil
}

// Duration returns the container duration in seconds. A missing, negative, or
// non-numeric duration is a probe error.
func (p *Prober) Duration(ctx context.Context, path string) (float64, error) {
	result, err := p.Inspect(ctx, path)
	if err != nil {
		return 0, err
	}
	raw := strings.TrimSpace(result.Format.Duration)
	if raw == "" {
		return 0, services.Wrap(services.ErrProbe, "probe", "duration", "format.duration missing", nil)
	}
	seconds := result.DurationSeconds()
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return 0, services.Wrap(services.ErrProbe, "probe", "duration", fmt.Sprintf("unusable duration %q", raw), nil)
	}
	return seconds, nil
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}
