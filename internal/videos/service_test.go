package videos_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"vodpipe/internal/layout"
	"vodpipe/internal/services"
	"vodpipe/internal/store"
	"vodpipe/internal/testsupport"
	"vodpipe/internal/videos"
)

type recordingSubmitter struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (r *recordingSubmitter) Submit(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.ids = append(r.ids, id)
	return nil
}

func TestUploadCreatesRecordAndDispatches(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	sub := &recordingSubmitter{}
	svc := videos.New(cfg, st, sub)

	v, err := svc.Upload(context.Background(), videos.UploadRequest{
		Title:       "  Holiday  ",
		Description: "beach",
		Video:       strings.NewReader("fake video bytes"),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if v.Status != store.StatusUploading || v.Title != "Holiday" || v.Description != "beach" {
		t.Fatalf("unexpected record: %+v", v)
	}
	if err := layout.ValidateID(v.ID); err != nil {
		t.Fatalf("expected uuid id, got %q: %v", v.ID, err)
	}
	if len(sub.ids) != 1 || sub.ids[0] != v.ID {
		t.Fatalf("expected dispatch of %s, got %v", v.ID, sub.ids)
	}
	data, err := os.ReadFile(layout.For(cfg.Paths.UploadsDir, v.ID).Original())
	if err != nil {
		t.Fatalf("read original: %v", err)
	}
	if string(data) != "fake video bytes" {
		t.Fatalf("unexpected original contents %q", data)
	}
}

func TestConcurrentUploadsUseDisjointNamespaces(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	sub := &recordingSubmitter{}
	svc := videos.New(cfg, st, sub)

	const n = 8
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			payload := bytes.Repeat([]byte{byte('a' + i)}, 512*(i+1))
			v, err := svc.Upload(context.Background(), videos.UploadRequest{Video: bytes.NewReader(payload)})
			errs[i] = err
			if v != nil {
				ids[i] = v.ID
			}
		}()
	}
	wg.Wait()

	seen := make(map[string]int, n)
	for i, id := range ids {
		if errs[i] != nil {
			t.Fatalf("upload %d: %v", i, errs[i])
		}
		if prev, dup := seen[id]; dup {
			t.Fatalf("uploads %d and %d share id %s", prev, i, id)
		}
		seen[id] = i

		data, err := os.ReadFile(layout.For(cfg.Paths.UploadsDir, id).Original())
		if err != nil {
			t.Fatalf("read original %d: %v", i, err)
		}
		if len(data) != 512*(i+1) || data[0] != byte('a'+i) || data[len(data)-1] != byte('a'+i) {
			t.Fatalf("upload %d: original holds %d bytes starting %q", i, len(data), data[:1])
		}
	}

	entries, err := os.ReadDir(cfg.Paths.UploadsDir)
	if err != nil {
		t.Fatalf("read uploads dir: %v", err)
	}
	if len(entries) != n {
		t.Fatalf("expected %d namespaces, found %d", n, len(entries))
	}
	for _, e := range entries {
		if _, ok := seen[e.Name()]; !ok || !e.IsDir() {
			t.Fatalf("unexpected entry %q in uploads dir", e.Name())
		}
	}
	if len(sub.ids) != n {
		t.Fatalf("expected %d dispatches, got %d", n, len(sub.ids))
	}
}

func TestUploadDefaultsTitle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	svc := videos.New(cfg, st, &recordingSubmitter{})

	v, err := svc.Upload(context.Background(), videos.UploadRequest{Video: strings.NewReader("x")})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if v.Title != videos.DefaultTitle {
		t.Fatalf("expected default title, got %q", v.Title)
	}
}

func TestUploadWithoutVideoCreatesNothing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	sub := &recordingSubmitter{}
	svc := videos.New(cfg, st, sub)

	for name, src := range map[string]*bytes.Reader{"nil": nil, "empty": bytes.NewReader(nil)} {
		req := videos.UploadRequest{Title: name}
		if src != nil {
			req.Video = src
		}
		_, err := svc.Upload(context.Background(), req)
		if !errors.Is(err, services.ErrMissingPayload) {
			t.Fatalf("%s: expected missing payload, got %v", name, err)
		}
		if !videos.IsClientError(err) {
			t.Fatalf("%s: expected client error classification", name)
		}
	}
	res, err := st.ListVideos(context.Background(), store.ListFilter{})
	if err != nil {
		t.Fatalf("ListVideos: %v", err)
	}
	if res.Total != 0 {
		t.Fatalf("expected no records, got %d", res.Total)
	}
	entries, _ := os.ReadDir(cfg.Paths.UploadsDir)
	if len(entries) != 0 {
		t.Fatalf("expected no namespaces, found %d", len(entries))
	}
	if len(sub.ids) != 0 {
		t.Fatalf("expected no dispatch, got %v", sub.ids)
	}
}

func TestCommitWithoutStagedUpload(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	svc := videos.New(cfg, st, nil)

	if _, err := svc.Commit(context.Background(), nil, videos.Metadata{Title: "t"}); !errors.Is(err, services.ErrMissingPayload) {
		t.Fatalf("expected missing payload, got %v", err)
	}
}

func TestDispatchFailureMarksVideoFailed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	svc := videos.New(cfg, st, &recordingSubmitter{err: errors.New("stopped")})

	staged, err := svc.Stage(context.Background(), strings.NewReader("bytes"))
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if _, err := svc.Commit(context.Background(), staged, videos.Metadata{}); !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	v, err := st.GetVideo(context.Background(), staged.Namespace.ID)
	if err != nil {
		t.Fatalf("GetVideo: %v", err)
	}
	if v.Status != store.StatusFailed {
		t.Fatalf("expected failed, got %s", v.Status)
	}
}

func TestDiscardRemovesNamespace(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	svc := videos.New(cfg, st, nil)

	staged, err := svc.Stage(context.Background(), strings.NewReader("bytes"))
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	svc.Discard(staged)
	if _, err := os.Stat(staged.Namespace.Root); !os.IsNotExist(err) {
		t.Fatalf("expected namespace removed, stat err %v", err)
	}
}

func TestGetReturnsDetail(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	svc := videos.New(cfg, st, nil)
	v := testsupport.NewVideo(t, st, "detail")
	if _, err := st.InsertQuality(context.Background(), store.Quality{VideoID: v.ID, Resolution: "360p", Bitrate: "800k", FilePath: "hls/360p/stream.m3u8"}); err != nil {
		t.Fatalf("InsertQuality: %v", err)
	}

	d, err := svc.Get(context.Background(), v.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if d.StreamURL != "/uploads/"+v.ID+"/hls/master.m3u8" {
		t.Fatalf("unexpected stream url %s", d.StreamURL)
	}
	if d.ThumbnailURL != "/uploads/"+v.ID+"/thumbnails/thumb_1.jpg" {
		t.Fatalf("unexpected thumbnail url %s", d.ThumbnailURL)
	}
	if len(d.Qualities) != 1 {
		t.Fatalf("expected one quality, got %d", len(d.Qualities))
	}

	if _, err := svc.Get(context.Background(), "not-a-uuid"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for malformed id, got %v", err)
	}
}

func TestListReturnsProcessedNewestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	svc := videos.New(cfg, st, nil)

	var processed []string
	for i := 0; i < 3; i++ {
		v := testsupport.NewVideo(t, st, "v")
		testsupport.AdvanceVideo(t, st, v.ID, store.StatusProcessing, store.StatusProcessed)
		processed = append(processed, v.ID)
	}
	testsupport.NewVideo(t, st, "still uploading")

	page, err := svc.List(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Total != 3 || page.TotalPages != 2 || page.PerPage != 2 || page.Page != 1 {
		t.Fatalf("unexpected meta: %+v", page)
	}
	if len(page.Videos) != 2 || page.Videos[0].ID != processed[2] {
		t.Fatalf("expected newest processed first, got %+v", page.Videos)
	}
	if page.Videos[0].Qualities == nil {
		t.Fatal("expected empty qualities slice, not nil")
	}
}

func TestNormalizePaging(t *testing.T) {
	cases := []struct {
		page, perPage         int
		wantPage, wantPerPage int
	}{
		{0, 0, 1, videos.DefaultPerPage},
		{-3, 5, 1, 5},
		{2, 1000, 2, videos.MaxPerPage},
	}
	for _, tc := range cases {
		p, pp := videos.NormalizePaging(tc.page, tc.perPage)
		if p != tc.wantPage || pp != tc.wantPerPage {
			t.Errorf("NormalizePaging(%d, %d) = %d, %d", tc.page, tc.perPage, p, pp)
		}
	}
}
