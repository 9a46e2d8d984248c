// Package videos is the application service behind the HTTP and CLI surfaces:
// it accepts uploads, hands them to the dispatcher, and assembles the
// read models for listing and detail views.
package videos

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/google/uuid"

	"vodpipe/internal/config"
	"vodpipe/internal/ingest"
	"vodpipe/internal/layout"
	"vodpipe/internal/logging"
	"vodpipe/internal/metrics"
	"vodpipe/internal/services"
	"vodpipe/internal/store"
)

const (
	// DefaultTitle is used when an upload carries no title.
	DefaultTitle = "Untitled"
	// PublicPrefix is the URL path under which the upload root is served.
	PublicPrefix = "/uploads"

	DefaultPerPage = 10
	MaxPerPage     = 100
)

// Submitter schedules background processing for a video.
type Submitter interface {
	Submit(videoID string) error
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithWriter replaces the ingest writer built from config.
func WithWriter(w *ingest.Writer) Option {
	return func(s *Service) {
		if w != nil {
			s.writer = w
		}
	}
}

// Service coordinates uploads and queries.
type Service struct {
	store       store.Store
	submitter   Submitter
	writer      *ingest.Writer
	uploadsRoot string
	logger      *slog.Logger
}

// New builds a Service. submitter may be nil, in which case uploads are
// recorded but not processed (used by offline tooling).
func New(cfg *config.Config, st store.Store, submitter Submitter, opts ...Option) *Service {
	s := &Service{
		store:       st,
		submitter:   submitter,
		uploadsRoot: cfg.Paths.UploadsDir,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "videos")
	if s.writer == nil {
		s.writer = ingest.NewWriter(
			ingest.WithMaxBytes(cfg.MaxUploadBytes()),
			ingest.WithMinFreeBytes(uint64(cfg.Paths.MinFreeMB)*1024*1024),
			ingest.WithLogger(s.logger),
		)
	}
	return s
}

// Staged is an ingested original that has no record yet.
type Staged struct {
	Namespace layout.Namespace
	Bytes     int64
}

// Stage assigns a fresh identifier and persists src as its original.
func (s *Service) Stage(ctx context.Context, src io.Reader) (*Staged, error) {
	ns := layout.For(s.uploadsRoot, uuid.NewString())
	n, err := s.writer.Write(ctx, src, ns)
	if err != nil {
		s.Discard(&Staged{Namespace: ns})
		metrics.UploadsTotal.WithLabelValues(services.Kind(err)).Inc()
		return nil, err
	}
	return &Staged{Namespace: ns, Bytes: n}, nil
}

// Discard removes a staged namespace that will not be committed.
func (s *Service) Discard(staged *Staged) {
	if staged == nil {
		return
	}
	if err := os.RemoveAll(staged.Namespace.Root); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove staged upload", "upload_cleanup_failed",
			logging.String(logging.FieldVideoID, staged.Namespace.ID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "orphaned upload directory left on disk"),
		)
	}
}

// Metadata is the descriptive part of an upload.
type Metadata struct {
	Title       string
	Description string
}

// Commit records a staged upload and schedules processing.
func (s *Service) Commit(ctx context.Context, staged *Staged, meta Metadata) (*store.Video, error) {
	if staged == nil {
		metrics.UploadsTotal.WithLabelValues(services.Kind(services.ErrMissingPayload)).Inc()
		return nil, services.Wrap(services.ErrMissingPayload, "upload", "commit", "no video file provided", nil)
	}
	title := strings.TrimSpace(meta.Title)
	if title == "" {
		title = DefaultTitle
	}
	id := staged.Namespace.ID
	logger := s.logger.With(logging.String(logging.FieldVideoID, id))

	video, err := s.store.CreateVideo(ctx, store.Video{
		ID:          id,
		Title:       title,
		Description: meta.Description,
	})
	if err != nil {
		s.Discard(staged)
		metrics.UploadsTotal.WithLabelValues(services.Kind(err)).Inc()
		return nil, err
	}
	metrics.UploadsTotal.WithLabelValues("accepted").Inc()
	metrics.UploadBytesTotal.Add(float64(staged.Bytes))
	logger.Info("upload accepted",
		logging.String(logging.FieldEventType, "upload_accepted"),
		logging.Int64("bytes", staged.Bytes),
		logging.String("title", title),
	)

	if s.submitter == nil {
		return video, nil
	}
	if err := s.submitter.Submit(id); err != nil {
		logging.ErrorWithContext(logger, "failed to schedule processing", "dispatch_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the daemon is shutting down; re-upload later"),
		)
		failCtx := context.WithoutCancel(ctx)
		if updErr := s.store.UpdateStatus(failCtx, id, store.StatusFailed); updErr != nil {
			logger.Error("failed to mark unscheduled video failed", logging.Error(updErr))
		}
		return nil, services.Wrap(services.ErrTransient, "upload", "dispatch", "processing unavailable", err)
	}
	return video, nil
}

// UploadRequest carries a complete upload for callers that already have
// every field in hand.
type UploadRequest struct {
	Title       string
	Description string
	Video       io.Reader
}

// Upload stages and commits req in one call.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*store.Video, error) {
	if req.Video == nil {
		metrics.UploadsTotal.WithLabelValues(services.Kind(services.ErrMissingPayload)).Inc()
		return nil, services.Wrap(services.ErrMissingPayload, "upload", "read payload", "no video file provided", nil)
	}
	staged, err := s.Stage(ctx, req.Video)
	if err != nil {
		return nil, err
	}
	return s.Commit(ctx, staged, Metadata{Title: req.Title, Description: req.Description})
}

// Detail is a video with its renditions and public artifact paths.
type Detail struct {
	store.Video
	Qualities    []store.Quality `json:"qualities"`
	StreamURL    string          `json:"stream_url"`
	ThumbnailURL string          `json:"thumbnail_url"`
}

func (s *Service) detail(v store.Video, qualities []store.Quality) Detail {
	if qualities == nil {
		qualities = []store.Quality{}
	}
	return Detail{
		Video:        v,
		Qualities:    qualities,
		StreamURL:    layout.StreamURL(PublicPrefix, v.ID),
		ThumbnailURL: layout.ThumbnailURL(PublicPrefix, v.ID),
	}
}

// Get returns one video regardless of status.
func (s *Service) Get(ctx context.Context, id string) (*Detail, error) {
	if err := layout.ValidateID(id); err != nil {
		return nil, services.Wrap(services.ErrNotFound, "videos", "get", id, err)
	}
	v, err := s.store.GetVideo(ctx, id)
	if err != nil {
		return nil, err
	}
	qualities, err := s.store.ListQualities(ctx, id)
	if err != nil {
		return nil, err
	}
	d := s.detail(*v, qualities)
	return &d, nil
}

// Page is one page of processed videos.
type Page struct {
	Videos     []Detail `json:"videos"`
	Total      int      `json:"total"`
	Page       int      `json:"page"`
	PerPage    int      `json:"per_page"`
	TotalPages int      `json:"total_pages"`
}

// NormalizePaging clamps page and perPage into their accepted ranges.
func NormalizePaging(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return page, perPage
}

// List returns processed videos newest first.
func (s *Service) List(ctx context.Context, page, perPage int) (*Page, error) {
	return s.ListByStatus(ctx, []store.Status{store.StatusProcessed}, page, perPage)
}

// ListByStatus is List with an explicit status filter. An empty filter
// matches every video.
func (s *Service) ListByStatus(ctx context.Context, statuses []store.Status, page, perPage int) (*Page, error) {
	page, perPage = NormalizePaging(page, perPage)
	res, err := s.store.ListVideos(ctx, store.ListFilter{
		Statuses: statuses,
		Offset:   (page - 1) * perPage,
		Limit:    perPage,
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(res.Videos))
	for i, v := range res.Videos {
		ids[i] = v.ID
	}
	byVideo, err := s.store.QualitiesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := &Page{
		Videos:     make([]Detail, 0, len(res.Videos)),
		Total:      res.Total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: int(math.Ceil(float64(res.Total) / float64(perPage))),
	}
	for _, v := range res.Videos {
		out.Videos = append(out.Videos, s.detail(v, byVideo[v.ID]))
	}
	return out, nil
}

// IsClientError reports whether err stems from the request rather than the server.
func IsClientError(err error) bool {
	return errors.Is(err, services.ErrUpload) || errors.Is(err, services.ErrMissingPayload) || errors.Is(err, services.ErrValidation)
}
