// Package dispatch runs pipeline jobs in the background, detached from the
// request that submitted them.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"vodpipe/internal/logging"
	"vodpipe/internal/metrics"
	"vodpipe/internal/pipeline"
	"vodpipe/internal/services"
)

var (
	// ErrStopped is returned by Submit after Stop.
	ErrStopped = errors.New("dispatcher stopped")
	// ErrNotStarted is returned by Submit before Start.
	ErrNotStarted = errors.New("dispatcher not started")
)

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context, videoID string) (pipeline.Result, error)
}

// Options configures a Dispatcher.
type Options struct {
	// MaxConcurrent bounds in-flight runs. Zero means unbounded.
	MaxConcurrent int
	// JobTimeout caps each run. Zero means no cap.
	JobTimeout time.Duration
	Logger     *slog.Logger
	// OnDone is invoked after every run, mainly for tests and status reporting.
	OnDone func(videoID string, res pipeline.Result, err error)
}

// Dispatcher fans submitted video IDs out to Runner goroutines.
type Dispatcher struct {
	runner Runner
	opts   Options
	sem    *semaphore.Weighted
	logger *slog.Logger

	mu      sync.Mutex
	root    context.Context
	cancel  context.CancelFunc
	running bool
	stopped bool
	wg      sync.WaitGroup

	active    atomic.Int64
	waiting   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// New constructs a Dispatcher. Call Start before Submit.
func New(runner Runner, opts Options) *Dispatcher {
	d := &Dispatcher{
		runner: runner,
		opts:   opts,
		logger: logging.NewComponentLogger(loggerOrNop(opts.Logger), "dispatcher"),
	}
	if opts.MaxConcurrent > 0 {
		d.sem = semaphore.NewWeighted(int64(opts.MaxConcurrent))
	}
	return d
}

func loggerOrNop(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return logging.NewNop()
	}
	return logger
}

// Start binds the dispatcher to ctx. Jobs inherit ctx's values but not its
// cancellation; Stop is the only way to cancel in-flight runs.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running || d.stopped {
		return
	}
	d.root, d.cancel = context.WithCancel(context.WithoutCancel(ctx))
	d.running = true
	d.logger.Info("dispatcher started",
		logging.String(logging.FieldEventType, "dispatcher_start"),
		logging.Int("max_concurrent", d.opts.MaxConcurrent),
		logging.Duration("job_timeout", d.opts.JobTimeout),
	)
}

// Submit schedules a run for videoID and returns immediately.
func (d *Dispatcher) Submit(videoID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return ErrStopped
	}
	if !d.running {
		return ErrNotStarted
	}
	d.wg.Add(1)
	d.waiting.Add(1)
	metrics.JobsWaiting.Inc()
	go d.execute(d.root, videoID)
	return nil
}

func (d *Dispatcher) execute(root context.Context, videoID string) {
	defer d.wg.Done()
	ctx := services.WithVideoID(root, videoID)
	logger := logging.WithContext(ctx, d.logger)

	acquired := d.acquire(ctx)
	d.waiting.Add(-1)
	metrics.JobsWaiting.Dec()
	if !acquired {
		logger.Info("job abandoned before start",
			logging.String(logging.FieldEventType, "job_abandoned"),
			logging.String("reason", "dispatcher stopping"),
		)
		return
	}
	defer d.release()

	d.active.Add(1)
	metrics.JobsActive.Inc()
	defer func() {
		d.active.Add(-1)
		metrics.JobsActive.Dec()
	}()

	runCtx := ctx
	if d.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d.opts.JobTimeout)
		defer cancel()
	}

	res, err := d.safeRun(runCtx, videoID)
	switch {
	case err == nil:
		d.completed.Add(1)
		logger.Debug("job finished", logging.String("status", string(res.Status)))
	case errors.Is(err, pipeline.ErrRunInProgress):
		logger.Info("job skipped; run already in progress",
			logging.String(logging.FieldEventType, "job_skipped"),
		)
	default:
		d.failed.Add(1)
		logging.ErrorWithContext(logger, "job failed", "job_failed",
			logging.Error(err),
			logging.String("status", string(res.Status)),
		)
	}
	if d.opts.OnDone != nil {
		d.opts.OnDone(videoID, res, err)
	}
}

func (d *Dispatcher) safeRun(ctx context.Context, videoID string) (res pipeline.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = services.Wrap(services.ErrTransient, "dispatch", "run", "panic in pipeline", errors.New(panicString(r)))
		}
	}()
	return d.runner.Run(ctx, videoID)
}

func panicString(r any) string {
	if e, ok := r.(error); ok {
		return e.Error()
	}
	if s, ok := r.(string); ok {
		return s
	}
	return "unknown panic"
}

func (d *Dispatcher) acquire(ctx context.Context) bool {
	if d.sem == nil {
		return ctx.Err() == nil
	}
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return false
	}
	if ctx.Err() != nil {
		d.sem.Release(1)
		return false
	}
	return true
}

func (d *Dispatcher) release() {
	if d.sem != nil {
		d.sem.Release(1)
	}
}

// Stop rejects new submissions, cancels in-flight runs, and waits for them.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	cancel := d.cancel
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
	d.logger.Info("dispatcher stopped",
		logging.String(logging.FieldEventType, "dispatcher_stop"),
		logging.Int64("completed", d.completed.Load()),
		logging.Int64("failed", d.failed.Load()),
	)
}

// Drain waits for in-flight runs without cancelling them. Callers must stop
// submitting before draining.
func (d *Dispatcher) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats is a point-in-time snapshot of dispatcher counters.
type Stats struct {
	Active    int64 `json:"active"`
	Waiting   int64 `json:"waiting"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Active reports runs currently holding a worker slot.
func (d *Dispatcher) Active() int {
	return int(d.active.Load())
}

// Stats returns the current counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Active:    d.active.Load(),
		Waiting:   d.waiting.Load(),
		Completed: d.completed.Load(),
		Failed:    d.failed.Load(),
	}
}
