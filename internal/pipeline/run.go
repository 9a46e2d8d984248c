package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"vodpipe/internal/encoder"
	"vodpipe/internal/hls"
	"vodpipe/internal/layout"
	"vodpipe/internal/logging"
	"vodpipe/internal/metrics"
	"vodpipe/internal/runlock"
	"vodpipe/internal/services"
	"vodpipe/internal/store"
)

// Run processes videoID from ingested original to terminal status.
//
// The returned error is nil only when the video ends processed. A run that
// loses the guard returns ErrRunInProgress without touching the record.
func (o *Orchestrator) Run(ctx context.Context, videoID string) (Result, error) {
	start := time.Now()
	result := Result{VideoID: videoID}

	ns, err := layout.Resolve(o.uploadsRoot, videoID)
	if err != nil {
		return result, services.Wrap(services.ErrValidation, "pipeline", "resolve namespace", videoID, err)
	}

	release, err := o.locker.Acquire(ctx, videoID)
	if err != nil {
		if errors.Is(err, runlock.ErrHeld) {
			return result, fmt.Errorf("%w: %s", ErrRunInProgress, videoID)
		}
		return result, err
	}
	defer release()

	ctx = services.WithVideoID(ctx, videoID)
	ctx, span := o.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(attribute.String("video.id", videoID)))
	defer span.End()
	logger := logging.WithContext(ctx, o.logger)

	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.Int("ladder_size", len(o.ladder)),
	)

	if err := o.store.UpdateStatus(ctx, videoID, store.StatusProcessing); err != nil {
		logging.ErrorWithContext(logger, "failed to mark video processing", "status_update_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "video may already be processed or failed"),
		)
		span.SetStatus(codes.Error, "status update failed")
		return result, err
	}

	fail := func(stage string, cause error) (Result, error) {
		result.Elapsed = time.Since(start)
		result.Status = o.settle(ctx, logger, videoID, store.StatusFailed)
		logging.ErrorWithContext(logger, "run failed", "run_failed",
			logging.String(logging.FieldStage, stage),
			logging.Error(cause),
			logging.Duration("run_duration", result.Elapsed),
		)
		span.RecordError(cause)
		span.SetStatus(codes.Error, stage)
		metrics.JobsTotal.WithLabelValues(string(store.StatusFailed)).Inc()
		metrics.JobDuration.Observe(result.Elapsed.Seconds())
		return result, cause
	}

	if err := os.MkdirAll(ns.HLSDir(), 0o755); err != nil {
		return fail("prepare", services.Wrap(services.ErrStorage, "pipeline", "create hls dir", ns.HLSDir(), err))
	}

	duration, err := o.probe(ctx, ns)
	if err != nil {
		metrics.ProbeFailuresTotal.Inc()
		return fail("probe", err)
	}
	result.Duration = duration
	if err := o.store.UpdateDuration(ctx, videoID, duration); err != nil {
		logging.WarnWithContext(logger, "failed to record duration", "duration_update_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "video duration will read as unknown"),
		)
	}

	master := hls.NewMaster()
	for _, rendition := range o.ladder {
		if ctx.Err() != nil {
			return fail("encode", ctx.Err())
		}
		outcome := o.encodeRendition(ctx, logger, ns, rendition)
		result.Outcomes = append(result.Outcomes, outcome)
		if outcome.Err != nil {
			continue
		}
		master.Add(rendition)
		o.recordQuality(ctx, logger, videoID, rendition)
	}

	if err := o.writeMaster(ctx, ns, master); err != nil {
		return fail("master", err)
	}

	result.ThumbnailErr = o.thumbnails(ctx, logger, ns)

	if master.Len() == 0 && o.failWhenEmpty {
		return fail("encode", ErrNoRenditions)
	}

	result.Elapsed = time.Since(start)
	result.Status = o.settle(ctx, logger, videoID, store.StatusProcessed)
	if result.Status != store.StatusProcessed {
		span.SetStatus(codes.Error, "final status not recorded")
		return result, services.Wrap(services.ErrPersistence, "pipeline", "settle", "could not record processed status", nil)
	}
	metrics.JobsTotal.WithLabelValues(string(store.StatusProcessed)).Inc()
	metrics.JobDuration.Observe(result.Elapsed.Seconds())
	logger.Info("run completed",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Int("renditions_ok", master.Len()),
		logging.Int("renditions_failed", len(result.Failed())),
		logging.Float64("duration_seconds", duration),
		logging.Bool("thumbnails_ok", result.ThumbnailErr == nil),
		logging.Duration("run_duration", result.Elapsed),
	)
	return result, nil
}

func (o *Orchestrator) probe(ctx context.Context, ns layout.Namespace) (float64, error) {
	ctx, span := o.tracer.Start(services.WithStage(ctx, "probe"), "pipeline.probe")
	defer span.End()
	seconds, err := o.prober.Duration(ctx, ns.Original())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "probe failed")
		if !errors.Is(err, services.ErrProbe) {
			err = services.Wrap(services.ErrProbe, "pipeline", "probe duration", ns.Original(), err)
		}
		return 0, err
	}
	span.SetAttributes(attribute.Float64("video.duration_seconds", seconds))
	return seconds, nil
}

func (o *Orchestrator) encodeRendition(ctx context.Context, logger *slog.Logger, ns layout.Namespace, r hls.Rendition) Outcome {
	ctx = services.WithQuality(services.WithStage(ctx, "encode"), r.Label)
	ctx, span := o.tracer.Start(ctx, "pipeline.encode", trace.WithAttributes(
		attribute.String("rendition.label", r.Label),
		attribute.String("rendition.bitrate", r.Bitrate),
	))
	defer span.End()

	logger = logger.With(logging.String(logging.FieldQuality, r.Label))
	started := time.Now()
	outcome := Outcome{Rendition: r}
	if err := os.MkdirAll(ns.QualityDir(r.Label), 0o755); err != nil {
		outcome.Err = services.Wrap(services.ErrStorage, "pipeline", "create quality dir", r.Label, err)
	} else {
		outcome.Err = o.encoder.Transcode(ctx, encoder.TranscodeRequest{
			Input:          ns.Original(),
			Playlist:       ns.QualityPlaylist(r.Label),
			Label:          r.Label,
			Bitrate:        r.Bitrate,
			SegmentSeconds: o.segmentSeconds,
		})
	}
	outcome.Elapsed = time.Since(started)

	if outcome.Err != nil {
		metrics.RenditionsTotal.WithLabelValues(r.Label, "failed").Inc()
		span.RecordError(outcome.Err)
		span.SetStatus(codes.Error, "encode failed")
		logging.WarnWithContext(logger, "quality failed", "quality_failed",
			logging.Error(outcome.Err),
			logging.String(logging.FieldImpact, "rendition omitted from master playlist"),
			logging.String(logging.FieldErrorHint, "inspect ffmpeg stderr in the error"),
			logging.Duration("encode_duration", outcome.Elapsed),
		)
		return outcome
	}
	metrics.RenditionsTotal.WithLabelValues(r.Label, "ok").Inc()
	metrics.EncodeDuration.WithLabelValues(r.Label).Observe(outcome.Elapsed.Seconds())
	logger.Info("quality encoded",
		logging.String(logging.FieldEventType, "quality_complete"),
		logging.String("bitrate", r.Bitrate),
		logging.String("resolution", r.Resolution()),
		logging.Duration("encode_duration", outcome.Elapsed),
	)
	return outcome
}

// recordQuality persists the rendition row. A failed insert leaves the
// playlist entry in place since the files on disk are valid.
func (o *Orchestrator) recordQuality(ctx context.Context, logger *slog.Logger, videoID string, r hls.Rendition) {
	_, err := o.store.InsertQuality(ctx, store.Quality{
		VideoID:    videoID,
		Resolution: r.Label,
		Bitrate:    r.Bitrate,
		FilePath:   layout.RelativePlaylist(r.Label),
	})
	if err != nil {
		logging.WarnWithContext(logger, "failed to record quality", "quality_record_failed",
			logging.String(logging.FieldQuality, r.Label),
			logging.Error(err),
			logging.String(logging.FieldImpact, "rendition playable but missing from video details"),
		)
	}
}

func (o *Orchestrator) writeMaster(ctx context.Context, ns layout.Namespace, master *hls.Master) error {
	_, span := o.tracer.Start(ctx, "pipeline.master", trace.WithAttributes(attribute.Int("renditions", master.Len())))
	defer span.End()
	if err := master.WriteFile(ns.Master()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "master write failed")
		return services.Wrap(services.ErrStorage, "pipeline", "write master playlist", ns.Master(), err)
	}
	return nil
}

func (o *Orchestrator) thumbnails(ctx context.Context, logger *slog.Logger, ns layout.Namespace) error {
	ctx, span := o.tracer.Start(services.WithStage(ctx, "thumbnails"), "pipeline.thumbnails")
	defer span.End()

	err := os.MkdirAll(ns.ThumbnailsDir(), 0o755)
	if err == nil {
		err = o.encoder.Thumbnails(ctx, ns.Original(), ns.ThumbnailsDir(), o.thumbnailInterval, o.thumbnailWidth)
	}
	if err != nil {
		metrics.ThumbnailFailuresTotal.Inc()
		span.RecordError(err)
		logging.WarnWithContext(logger.With(logging.String(logging.FieldStage, "thumbnails")), "thumbnail extraction failed", "thumbnail_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "video has no preview image"),
		)
	}
	return err
}

// settle writes the terminal status on a context that survives cancellation
// of the run, and returns the status actually stored.
func (o *Orchestrator) settle(ctx context.Context, logger *slog.Logger, videoID string, status store.Status) store.Status {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := o.store.UpdateStatus(ctx, videoID, status); err != nil {
		logging.ErrorWithContext(logger, "failed to record terminal status", "status_update_failed",
			logging.String("status", string(status)),
			logging.Error(err),
		)
		if v, getErr := o.store.GetVideo(ctx, videoID); getErr == nil {
			return v.Status
		}
		return ""
	}
	return status
}
