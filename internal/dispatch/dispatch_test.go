package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"vodpipe/internal/pipeline"
	"vodpipe/internal/store"
)

type blockingRunner struct {
	mu       sync.Mutex
	started  chan string
	release  chan struct{}
	peak     atomic.Int64
	inFlight atomic.Int64
	err      error
	ctxErrs  []error
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{started: make(chan string, 16), release: make(chan struct{})}
}

func (r *blockingRunner) Run(ctx context.Context, videoID string) (pipeline.Result, error) {
	n := r.inFlight.Add(1)
	defer r.inFlight.Add(-1)
	for {
		peak := r.peak.Load()
		if n <= peak || r.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	r.started <- videoID
	select {
	case <-r.release:
	case <-ctx.Done():
		r.mu.Lock()
		r.ctxErrs = append(r.ctxErrs, ctx.Err())
		r.mu.Unlock()
		return pipeline.Result{VideoID: videoID, Status: store.StatusFailed}, ctx.Err()
	}
	return pipeline.Result{VideoID: videoID, Status: store.StatusProcessed}, r.err
}

func waitStarted(t *testing.T, r *blockingRunner) string {
	t.Helper()
	select {
	case id := <-r.started:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for run to start")
		return ""
	}
}

func TestSubmitBeforeStartFails(t *testing.T) {
	d := New(newBlockingRunner(), Options{})
	if err := d.Submit("a"); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
}

func TestSubmitIsDetachedFromCallerContext(t *testing.T) {
	runner := newBlockingRunner()
	done := make(chan error, 1)
	d := New(runner, Options{OnDone: func(_ string, _ pipeline.Result, err error) { done <- err }})

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	if err := d.Submit("video-1"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitStarted(t, runner)
	cancel()
	close(runner.release)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run should survive caller cancellation, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not finish")
	}
	d.Stop()
	if d.Stats().Completed != 1 {
		t.Fatalf("expected one completed run, got %+v", d.Stats())
	}
}

func TestConcurrencyIsBounded(t *testing.T) {
	runner := newBlockingRunner()
	d := New(runner, Options{MaxConcurrent: 2})
	d.Start(context.Background())

	for _, id := range []string{"a", "b", "c", "d"} {
		if err := d.Submit(id); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	waitStarted(t, runner)
	waitStarted(t, runner)

	select {
	case id := <-runner.started:
		t.Fatalf("third run %s started while two were active", id)
	case <-time.After(50 * time.Millisecond):
	}
	if d.Active() != 2 {
		t.Fatalf("expected 2 active, got %d", d.Active())
	}

	close(runner.release)
	waitStarted(t, runner)
	waitStarted(t, runner)
	if err := d.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if runner.peak.Load() > 2 {
		t.Fatalf("peak concurrency %d exceeded bound", runner.peak.Load())
	}
	d.Stop()
}

func TestJobTimeoutCancelsRun(t *testing.T) {
	runner := newBlockingRunner()
	done := make(chan error, 1)
	d := New(runner, Options{
		JobTimeout: 20 * time.Millisecond,
		OnDone:     func(_ string, _ pipeline.Result, err error) { done <- err },
	})
	d.Start(context.Background())
	if err := d.Submit("slow"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout did not cancel run")
	}
	d.Stop()
	if d.Stats().Failed != 1 {
		t.Fatalf("expected failed count 1, got %+v", d.Stats())
	}
}

func TestStopCancelsAndRejects(t *testing.T) {
	runner := newBlockingRunner()
	d := New(runner, Options{MaxConcurrent: 1})
	d.Start(context.Background())
	if err := d.Submit("running"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := d.Submit("queued"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitStarted(t, runner)

	d.Stop()
	if err := d.Submit("late"); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	if d.Active() != 0 {
		t.Fatalf("expected no active runs after Stop, got %d", d.Active())
	}
	runner.mu.Lock()
	defer runner.mu.Unlock()
	if len(runner.ctxErrs) != 1 {
		t.Fatalf("expected the running job to observe cancellation, got %v", runner.ctxErrs)
	}
}

type panickingRunner struct{}

func (panickingRunner) Run(context.Context, string) (pipeline.Result, error) {
	panic("encoder exploded")
}

func TestPanicIsContained(t *testing.T) {
	done := make(chan error, 1)
	d := New(panickingRunner{}, Options{OnDone: func(_ string, _ pipeline.Result, err error) { done <- err }})
	d.Start(context.Background())
	if err := d.Submit("boom"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected panic to surface as error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not finish")
	}
	d.Stop()
}

func TestRunInProgressIsNotAFailure(t *testing.T) {
	runner := newBlockingRunner()
	runner.err = pipeline.ErrRunInProgress
	close(runner.release)
	done := make(chan struct{}, 1)
	d := New(runner, Options{OnDone: func(string, pipeline.Result, error) { done <- struct{}{} }})
	d.Start(context.Background())
	if err := d.Submit("dup"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-runner.started
	<-done
	d.Stop()
	if s := d.Stats(); s.Failed != 0 || s.Completed != 0 {
		t.Fatalf("expected skipped run to be uncounted, got %+v", s)
	}
}
