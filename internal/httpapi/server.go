package httpapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"vodpipe/internal/config"
	"vodpipe/internal/logging"
	"vodpipe/internal/store"
	"vodpipe/internal/videos"
)

// VideoService is the application surface the handlers call.
type VideoService interface {
	Stage(ctx context.Context, src io.Reader) (*videos.Staged, error)
	Commit(ctx context.Context, staged *videos.Staged, meta videos.Metadata) (*store.Video, error)
	Discard(staged *videos.Staged)
	Get(ctx context.Context, id string) (*videos.Detail, error)
	List(ctx context.Context, page, perPage int) (*videos.Page, error)
}

// HealthReporter supplies the health snapshot.
type HealthReporter interface {
	Health(ctx context.Context) Health
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and error logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithHealth installs the health reporter. Without one, health reports ok.
func WithHealth(h HealthReporter) Option {
	return func(s *Server) { s.health = h }
}

// WithGatherer sets the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		if g != nil {
			s.gatherer = g
		}
	}
}

// Server routes HTTP requests to the video service.
type Server struct {
	videos      VideoService
	health      HealthReporter
	gatherer    prometheus.Gatherer
	logger      *slog.Logger
	uploadsRoot string
	maxUpload   int64
	apiToken    string
	rps         float64
	burst       int

	handler http.Handler
}

const (
	uploadsPrefix = videos.PublicPrefix + "/"
	// multipartOverhead covers part headers and text fields around the video.
	multipartOverhead = 1 << 20
)

// New builds the router and middleware chain.
func New(cfg *config.Config, svc VideoService, opts ...Option) *Server {
	s := &Server{
		videos:      svc,
		gatherer:    prometheus.DefaultGatherer,
		logger:      logging.NewNop(),
		uploadsRoot: cfg.Paths.UploadsDir,
		maxUpload:   cfg.MaxUploadBytes(),
		apiToken:    cfg.Server.APIToken,
		rps:         cfg.Server.RateLimitRPS,
		burst:       cfg.Server.RateLimitBurst,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "http")

	mux := http.NewServeMux()
	mux.Handle("POST /api/v1/videos", s.auth(http.HandlerFunc(s.handleUpload)))
	mux.Handle("GET /api/v1/videos", s.auth(http.HandlerFunc(s.handleList)))
	mux.Handle("GET /api/v1/videos/{id}", s.auth(http.HandlerFunc(s.handleGet)))
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.Handle("GET "+uploadsPrefix, http.StripPrefix(videos.PublicPrefix, artifactHandler(s.uploadsRoot)))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	})

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "vodpipe",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/api/v1/health" && !strings.HasPrefix(p, uploadsPrefix)
		}),
	)
	var h http.Handler = metricsMiddleware(traced)
	if s.rps > 0 {
		h = rateLimitMiddleware(s.rps, s.burst, h)
	}
	s.handler = recoveryMiddleware(s.logger, requestIDMiddleware(h))
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// HTTPServer wraps the handler with timeouts from cfg. Uploads are long
// streaming requests, so no read or write deadline is applied to bodies.
func (s *Server) HTTPServer(cfg *config.Config) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Bind,
		Handler:           s,
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadHeaderTimeout) * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
