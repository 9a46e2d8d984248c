package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"vodpipe/internal/config"
	"vodpipe/internal/daemon"
	"vodpipe/internal/httpapi"
	"vodpipe/internal/layout"
	"vodpipe/internal/store"
	"vodpipe/internal/testsupport"
)

func newDaemon(t *testing.T, cfg *config.Config, st store.Store) *daemon.Daemon {
	t.Helper()
	d, err := daemon.New(cfg, daemon.Options{Store: st, Gatherer: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { d.Stop(context.Background()) })
	return d
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	d := newDaemon(t, cfg, testsupport.MustOpenStore(t, cfg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := d.Status()
	if !status.Running || status.Addr == "" {
		t.Fatalf("expected running daemon with address, got %+v", status)
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	resp, err := http.Get("http://" + d.Addr() + "/api/v1/health")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	var health httpapi.Health
	err = json.NewDecoder(resp.Body).Decode(&health)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if resp.StatusCode != http.StatusOK || health.Status != httpapi.HealthOK {
		t.Fatalf("expected healthy daemon, got %d %+v", resp.StatusCode, health)
	}
	if health.Store != "sqlite" || health.Jobs == nil || len(health.Dependencies) != 2 {
		t.Fatalf("unexpected health detail: %+v", health)
	}

	d.Stop(ctx)
	if d.Status().Running {
		t.Fatal("expected daemon to be stopped")
	}
	if d.Addr() != "" {
		t.Fatal("expected listener to be released")
	}
}

func TestDaemonCannotRestartAfterStop(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	d := newDaemon(t, cfg, testsupport.MustOpenStore(t, cfg))

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	d.Stop(context.Background())

	if err := d.Start(context.Background()); !errors.Is(err, daemon.ErrStopped) {
		t.Fatalf("expected ErrStopped on restart, got %v", err)
	}
	if d.Status().Running || d.Addr() != "" {
		t.Fatalf("expected stopped daemon to stay down, got %+v", d.Status())
	}
}

func TestDaemonRejectsSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	first := newDaemon(t, cfg, testsupport.MustOpenStore(t, cfg))
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}

	second := newDaemon(t, cfg, testsupport.MustOpenStore(t, cfg))
	if err := second.Start(context.Background()); err == nil {
		t.Fatal("expected lock contention error")
	}
}

func TestDaemonFailsInterruptedVideosOnStart(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	cfg.Workflow.RecoverInterrupted = true
	st := testsupport.MustOpenStore(t, cfg)

	stuck := testsupport.NewVideo(t, st, "stuck")
	testsupport.AdvanceVideo(t, st, stuck.ID, store.StatusProcessing)
	done := testsupport.NewVideo(t, st, "done")
	testsupport.AdvanceVideo(t, st, done.ID, store.StatusProcessing, store.StatusProcessed)

	d := newDaemon(t, cfg, st)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	got, err := st.GetVideo(context.Background(), stuck.ID)
	if err != nil {
		t.Fatalf("GetVideo: %v", err)
	}
	if got.Status != store.StatusFailed {
		t.Fatalf("expected interrupted video to be failed, got %s", got.Status)
	}
	got, err = st.GetVideo(context.Background(), done.ID)
	if err != nil {
		t.Fatalf("GetVideo: %v", err)
	}
	if got.Status != store.StatusProcessed {
		t.Fatalf("expected processed video to be untouched, got %s", got.Status)
	}
}

func TestDaemonUploadIsProcessedInBackground(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	st := testsupport.MustOpenStore(t, cfg)
	d := newDaemon(t, cfg, st)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("video", "clip.mp4")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	fw.Write([]byte("not really a video"))
	mw.WriteField("title", "Background")
	mw.Close()

	resp, err := http.Post("http://"+d.Addr()+"/api/v1/videos", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	var created store.Video
	err = json.NewDecoder(resp.Body).Decode(&created)
	resp.Body.Close()
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload failed: %d %v", resp.StatusCode, err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		v, err := st.GetVideo(context.Background(), created.ID)
		if err != nil {
			t.Fatalf("GetVideo: %v", err)
		}
		if v.Status.IsTerminal() {
			if v.Status != store.StatusProcessed {
				t.Fatalf("expected processed, got %s", v.Status)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for processing; status %s", v.Status)
		}
		time.Sleep(20 * time.Millisecond)
	}

	qualities, err := st.ListQualities(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("ListQualities: %v", err)
	}
	if len(qualities) != 4 {
		t.Fatalf("expected 4 qualities, got %d", len(qualities))
	}
	for d.Status().Jobs.Completed != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("expected one completed job, got %+v", d.Status().Jobs)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func uploadClip(t *testing.T, addr, title string, payload []byte) store.Video {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("video", title+".mp4")
	if err != nil {
		t.Errorf("create form file: %v", err)
		return store.Video{}
	}
	fw.Write(payload)
	mw.WriteField("title", title)
	mw.Close()

	resp, err := http.Post("http://"+addr+"/api/v1/videos", mw.FormDataContentType(), &body)
	if err != nil {
		t.Errorf("upload %s: %v", title, err)
		return store.Video{}
	}
	defer resp.Body.Close()
	var created store.Video
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil || resp.StatusCode != http.StatusCreated {
		t.Errorf("upload %s failed: %d %v", title, resp.StatusCode, err)
	}
	return created
}

func TestDaemonProcessesConcurrentUploadsIndependently(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries(), testsupport.WithMaxConcurrentJobs(2))
	st := testsupport.MustOpenStore(t, cfg)
	d := newDaemon(t, cfg, st)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	const n = 2
	created := make([]store.Video, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created[i] = uploadClip(t, d.Addr(), fmt.Sprintf("clip-%d", i), bytes.Repeat([]byte{byte('a' + i)}, 1024*(i+1)))
		}()
	}
	wg.Wait()
	if t.Failed() {
		t.FailNow()
	}
	if created[0].ID == created[1].ID {
		t.Fatalf("expected distinct ids, got %s twice", created[0].ID)
	}

	deadline := time.Now().Add(10 * time.Second)
	for d.Status().Jobs.Completed != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d completed jobs, got %+v", n, d.Status().Jobs)
		}
		time.Sleep(10 * time.Millisecond)
	}

	for i, v := range created {
		got, err := st.GetVideo(context.Background(), v.ID)
		if err != nil {
			t.Fatalf("GetVideo: %v", err)
		}
		if got.Status != store.StatusProcessed {
			t.Fatalf("video %d: expected processed, got %s", i, got.Status)
		}
		ns := layout.For(cfg.Paths.UploadsDir, v.ID)
		info, err := os.Stat(ns.Original())
		if err != nil {
			t.Fatalf("stat original: %v", err)
		}
		if info.Size() != int64(1024*(i+1)) {
			t.Fatalf("video %d: expected %d bytes, got %d", i, 1024*(i+1), info.Size())
		}
		if _, err := os.Stat(ns.Master()); err != nil {
			t.Fatalf("video %d: master playlist missing: %v", i, err)
		}
		for _, q := range []string{"1080p", "720p", "480p", "360p"} {
			if _, err := os.Stat(ns.QualityPlaylist(q)); err != nil {
				t.Fatalf("video %d: %s playlist missing: %v", i, q, err)
			}
		}
	}
}

func TestProcessRunsSynchronously(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	st := testsupport.MustOpenStore(t, cfg)
	d := newDaemon(t, cfg, st)

	v := testsupport.NewVideo(t, st, "manual")
	testsupport.WriteFile(t, layout.For(cfg.Paths.UploadsDir, v.ID).Original(), 1024)

	res, err := d.Process(context.Background(), v.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Status != store.StatusProcessed || len(res.Succeeded()) != 4 {
		t.Fatalf("unexpected result: %+v", res)
	}
}
