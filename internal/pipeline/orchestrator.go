package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"vodpipe/internal/config"
	"vodpipe/internal/encoder"
	"vodpipe/internal/hls"
	"vodpipe/internal/logging"
	"vodpipe/internal/media/ffprobe"
	"vodpipe/internal/runlock"
	"vodpipe/internal/services"
	"vodpipe/internal/store"
	"vodpipe/internal/telemetry"
)

var (
	// ErrRunInProgress reports that another run already owns the video.
	ErrRunInProgress = errors.New("pipeline run already in progress")
	// ErrNoRenditions reports that every ladder entry failed to encode.
	ErrNoRenditions = fmt.Errorf("%w: no renditions produced", services.ErrEncode)
)

// Prober reports a media file's duration in seconds.
type Prober interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// Encoder produces renditions and thumbnails.
type Encoder interface {
	Transcode(ctx context.Context, req encoder.TranscodeRequest) error
	Thumbnails(ctx context.Context, input, dir string, intervalSeconds, width int) error
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithProber replaces the ffprobe-backed prober.
func WithProber(p Prober) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.prober = p
		}
	}
}

// WithEncoder replaces the ffmpeg-backed encoder.
func WithEncoder(e Encoder) Option {
	return func(o *Orchestrator) {
		if e != nil {
			o.encoder = e
		}
	}
}

// WithLocker replaces the in-process run guard.
func WithLocker(l runlock.Locker) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.locker = l
		}
	}
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithLadder overrides the rendition ladder.
func WithLadder(ladder []hls.Rendition) Option {
	return func(o *Orchestrator) {
		o.ladder = append([]hls.Rendition(nil), ladder...)
	}
}

// WithTracer overrides the tracer used for run spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// Orchestrator runs the processing pipeline for one video at a time per ID.
type Orchestrator struct {
	store   store.Store
	prober  Prober
	encoder Encoder
	locker  runlock.Locker
	logger  *slog.Logger
	tracer  trace.Tracer
	ladder  []hls.Rendition

	uploadsRoot       string
	segmentSeconds    int
	thumbnailInterval int
	thumbnailWidth    int
	failWhenEmpty     bool
}

// New builds an Orchestrator from cfg. Binaries, preset, and timeouts come
// from cfg.Encoder unless overridden by options.
func New(cfg *config.Config, st store.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store: st,
		prober: ffprobe.New(cfg.Encoder.FFprobeBinary,
			ffprobe.WithTimeout(time.Duration(cfg.Encoder.ProbeTimeout)*time.Second)),
		encoder: encoder.New(cfg.Encoder.FFmpegBinary,
			encoder.WithPreset(cfg.Encoder.Preset),
			encoder.WithThreads(cfg.Encoder.Threads)),
		locker:            runlock.NewMemory(),
		logger:            logging.NewNop(),
		tracer:            telemetry.Tracer(),
		ladder:            hls.Ladder(),
		uploadsRoot:       cfg.Paths.UploadsDir,
		segmentSeconds:    cfg.Encoder.SegmentSeconds,
		thumbnailInterval: cfg.Encoder.ThumbnailInterval,
		thumbnailWidth:    cfg.Encoder.ThumbnailWidth,
		failWhenEmpty:     cfg.Workflow.FailWhenNoRenditions,
	}
	if o.segmentSeconds <= 0 {
		o.segmentSeconds = hls.SegmentSeconds
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.NewComponentLogger(o.logger, "pipeline")
	return o
}

// Outcome is the result of encoding one ladder entry.
type Outcome struct {
	Rendition hls.Rendition
	Err       error
	Elapsed   time.Duration
}

// Result summarizes a finished run.
type Result struct {
	VideoID  string
	Duration float64
	Outcomes []Outcome
	// ThumbnailErr is informational; thumbnails never fail a run.
	ThumbnailErr error
	Status       store.Status
	Elapsed      time.Duration
}

// Succeeded returns the renditions that made it into the master playlist.
func (r Result) Succeeded() []hls.Rendition {
	var out []hls.Rendition
	for _, oc := range r.Outcomes {
		if oc.Err == nil {
			out = append(out, oc.Rendition)
		}
	}
	return out
}

// Failed returns the ladder entries that did not encode.
func (r Result) Failed() []Outcome {
	var out []Outcome
	for _, oc := range r.Outcomes {
		if oc.Err != nil {
			out = append(out, oc)
		}
	}
	return out
}
