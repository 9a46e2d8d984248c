package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"

	"vodpipe/internal/config"
	"vodpipe/internal/deps"
	"vodpipe/internal/dispatch"
	"vodpipe/internal/httpapi"
	"vodpipe/internal/logging"
	"vodpipe/internal/pipeline"
	"vodpipe/internal/preflight"
	"vodpipe/internal/runlock"
	"vodpipe/internal/services"
	"vodpipe/internal/store"
	"vodpipe/internal/videos"
)

// ErrStopped is returned by Start once the daemon has been stopped. The
// dispatcher cannot be restarted, so a stopped daemon stays stopped.
var ErrStopped = errors.New("daemon has been stopped")

const (
	pingTimeout          = 2 * time.Second
	defaultDrainDuration = 30 * time.Second
)

// Options supplies the collaborators a Daemon cannot build from config alone.
type Options struct {
	Store  store.Store
	Locker runlock.Locker
	Logger *slog.Logger
	// Gatherer backs /metrics. Defaults to the prometheus default registry.
	Gatherer prometheus.Gatherer
	// Pipeline options are forwarded to pipeline.New, mainly for tests.
	Pipeline []pipeline.Option
	// Executor runs "-version" probes for the health report.
	Executor services.Executor
}

// Daemon owns the HTTP listener and the background dispatcher.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      store.Store
	locker     runlock.Locker
	pipeline   *pipeline.Orchestrator
	dispatcher *dispatch.Dispatcher
	videos     *videos.Service
	api        *httpapi.Server
	executor   services.Executor

	lockPath string
	lock     *flock.Flock

	mu        sync.Mutex
	server    *http.Server
	listener  net.Listener
	serveDone chan struct{}
	deps      []deps.Status
	startedAt time.Time

	running atomic.Bool
	stopped atomic.Bool
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool           `json:"running"`
	Addr         string         `json:"addr,omitempty"`
	StartedAt    time.Time      `json:"started_at,omitempty"`
	Backend      string         `json:"backend"`
	LockFilePath string         `json:"lock_file"`
	Jobs         dispatch.Stats `json:"jobs"`
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, opts Options) (*Daemon, error) {
	if cfg == nil || opts.Store == nil {
		return nil, errors.New("daemon requires config and store")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	locker := opts.Locker
	if locker == nil {
		locker = runlock.NewMemory()
	}
	executor := opts.Executor
	if executor == nil {
		executor = services.CommandExecutor{}
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    opts.Store,
		locker:   locker,
		executor: executor,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}

	pipelineOpts := append([]pipeline.Option{
		pipeline.WithLocker(locker),
		pipeline.WithLogger(logger),
	}, opts.Pipeline...)
	d.pipeline = pipeline.New(cfg, opts.Store, pipelineOpts...)
	d.dispatcher = dispatch.New(d.pipeline, dispatch.Options{
		MaxConcurrent: cfg.Workflow.MaxConcurrentJobs,
		JobTimeout:    cfg.JobTimeout(),
		Logger:        logger,
	})
	d.videos = videos.New(cfg, opts.Store, d.dispatcher, videos.WithLogger(logger))
	d.api = httpapi.New(cfg, d.videos,
		httpapi.WithLogger(logger),
		httpapi.WithHealth(d),
		httpapi.WithGatherer(opts.Gatherer),
	)
	return d, nil
}

// Start acquires the instance lock, recovers interrupted videos, starts the
// dispatcher, and begins serving HTTP. It returns once the listener is bound.
func (d *Daemon) Start(ctx context.Context) error {
	if d.stopped.Load() {
		return ErrStopped
	}
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another vodpipe daemon instance is already running")
	}

	if d.cfg.Workflow.RecoverInterrupted {
		if err := d.recoverInterrupted(ctx); err != nil {
			_ = d.lock.Unlock()
			return err
		}
	}

	listener, err := net.Listen("tcp", d.cfg.Server.Bind)
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("listen on %s: %w", d.cfg.Server.Bind, err)
	}

	statuses := deps.DetectVersions(ctx, d.executor, preflight.CheckSystemDeps(d.cfg))
	if missing := deps.RequiredMissing(statuses); len(missing) > 0 {
		logging.WarnWithContext(d.logger, "required binaries missing", "dependency_missing",
			logging.Any("missing", missing),
			logging.String(logging.FieldErrorHint, "install ffmpeg or set encoder.ffmpeg_binary and encoder.ffprobe_binary"),
			logging.String(logging.FieldImpact, "uploads are accepted but every job will fail"),
		)
	}

	d.dispatcher.Start(ctx)

	server := d.api.HTTPServer(d.cfg)
	server.BaseContext = func(net.Listener) context.Context { return context.WithoutCancel(ctx) }
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(d.logger, "http server stopped unexpectedly", "http_server_error",
				logging.Error(err),
			)
		}
	}()

	d.mu.Lock()
	d.server = server
	d.listener = listener
	d.serveDone = done
	d.deps = statuses
	d.startedAt = time.Now().UTC()
	d.mu.Unlock()

	d.running.Store(true)
	d.logger.Info("vodpipe daemon started",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String("addr", listener.Addr().String()),
		logging.String("lock", d.lockPath),
	)
	return nil
}

func (d *Daemon) recoverInterrupted(ctx context.Context) error {
	ids, err := d.store.FailInterrupted(ctx)
	if err != nil {
		return fmt.Errorf("recover interrupted videos: %w", err)
	}
	if len(ids) > 0 {
		logging.WarnWithContext(d.logger, "failed videos interrupted by a previous run", "startup_recovery",
			logging.Int("count", len(ids)),
			logging.Any("video_ids", ids),
			logging.String(logging.FieldImpact, "those videos need to be uploaded again"),
		)
	}
	return nil
}

// Addr returns the bound listener address, or "" when not running.
func (d *Daemon) Addr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listener == nil {
		return ""
	}
	return d.listener.Addr().String()
}

// Stop shuts the HTTP server down, drains in-flight jobs until ctx or the
// configured shutdown timeout expires, then cancels whatever is still running
// and releases the instance lock.
func (d *Daemon) Stop(ctx context.Context) {
	if !d.running.Load() {
		return
	}

	timeout := time.Duration(d.cfg.Server.ShutdownTimeout) * time.Second
	if timeout <= 0 {
		timeout = defaultDrainDuration
	}
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	d.mu.Lock()
	server, done := d.server, d.serveDone
	d.mu.Unlock()

	if server != nil {
		if err := server.Shutdown(stopCtx); err != nil {
			d.logger.Warn("http shutdown incomplete", logging.Error(err))
			_ = server.Close()
		}
		<-done
	}

	if err := d.dispatcher.Drain(stopCtx); err != nil {
		d.logger.Warn("jobs still running at shutdown; cancelling",
			logging.String(logging.FieldEventType, "drain_timeout"),
			logging.Int("active", d.dispatcher.Active()),
		)
	}
	d.dispatcher.Stop()

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}

	d.mu.Lock()
	d.server = nil
	d.listener = nil
	d.mu.Unlock()
	d.stopped.Store(true)
	d.running.Store(false)
	d.logger.Info("vodpipe daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close stops the daemon and releases the store and run lock.
func (d *Daemon) Close() error {
	d.Stop(context.Background())
	return errors.Join(d.locker.Close(), d.store.Close())
}

// Handler exposes the HTTP API handler.
func (d *Daemon) Handler() http.Handler {
	return d.api
}

// Process runs the pipeline for id synchronously, outside the dispatcher.
func (d *Daemon) Process(ctx context.Context, id string) (pipeline.Result, error) {
	return d.pipeline.Run(ctx, id)
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	started := d.startedAt
	d.mu.Unlock()
	return Status{
		Running:      d.running.Load(),
		Addr:         d.Addr(),
		StartedAt:    started,
		Backend:      d.cfg.Store.Backend,
		LockFilePath: d.lockPath,
		Jobs:         d.dispatcher.Stats(),
	}
}
