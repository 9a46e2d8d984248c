// Package storetest holds the behavioural contract every store.Store backend must satisfy.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"vodpipe/internal/services"
	"vodpipe/internal/store"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) store.Store

// Run exercises the store contract against backends produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newStore(t)) })
	t.Run("DuplicateID", func(t *testing.T) { testDuplicateID(t, newStore(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("Transitions", func(t *testing.T) { testTransitions(t, newStore(t)) })
	t.Run("Duration", func(t *testing.T) { testDuration(t, newStore(t)) })
	t.Run("Qualities", func(t *testing.T) { testQualities(t, newStore(t)) })
	t.Run("ListPaging", func(t *testing.T) { testListPaging(t, newStore(t)) })
	t.Run("FailInterrupted", func(t *testing.T) { testFailInterrupted(t, newStore(t)) })
}

func create(t *testing.T, s store.Store, title string) *store.Video {
	t.Helper()
	v, err := s.CreateVideo(context.Background(), store.Video{ID: uuid.NewString(), Title: title})
	if err != nil {
		t.Fatalf("CreateVideo: %v", err)
	}
	return v
}

func testCreateAndGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	id := uuid.NewString()
	created, err := s.CreateVideo(ctx, store.Video{ID: id, Title: "Clip", Description: "a short clip"})
	if err != nil {
		t.Fatalf("CreateVideo: %v", err)
	}
	if created.Status != store.StatusUploading {
		t.Fatalf("expected uploading, got %s", created.Status)
	}
	if created.Duration != nil {
		t.Fatalf("expected nil duration, got %v", *created.Duration)
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Fatalf("expected timestamps to be set: %+v", created)
	}

	got, err := s.GetVideo(ctx, id)
	if err != nil {
		t.Fatalf("GetVideo: %v", err)
	}
	if got.Title != "Clip" || got.Description != "a short clip" {
		t.Fatalf("unexpected video: %+v", got)
	}
}

func testDuplicateID(t *testing.T, s store.Store) {
	v := create(t, s, "first")
	_, err := s.CreateVideo(context.Background(), store.Video{ID: v.ID, Title: "second"})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func testGetMissing(t *testing.T, s store.Store) {
	_, err := s.GetVideo(context.Background(), uuid.NewString())
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if !errors.Is(err, services.ErrPersistence) {
		t.Fatalf("expected persistence marker, got %v", err)
	}
}

func testTransitions(t *testing.T, s store.Store) {
	ctx := context.Background()
	v := create(t, s, "lifecycle")

	if err := s.UpdateStatus(ctx, v.ID, store.StatusProcessed); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("uploading -> processed: expected ErrInvalidTransition, got %v", err)
	}
	if err := s.UpdateStatus(ctx, v.ID, store.StatusProcessing); err != nil {
		t.Fatalf("uploading -> processing: %v", err)
	}
	if err := s.UpdateStatus(ctx, v.ID, store.StatusProcessed); err != nil {
		t.Fatalf("processing -> processed: %v", err)
	}
	for _, next := range []store.Status{store.StatusFailed, store.StatusProcessing, store.StatusUploading} {
		if err := s.UpdateStatus(ctx, v.ID, next); !errors.Is(err, store.ErrInvalidTransition) {
			t.Fatalf("processed -> %s: expected ErrInvalidTransition, got %v", next, err)
		}
	}
	got, err := s.GetVideo(ctx, v.ID)
	if err != nil {
		t.Fatalf("GetVideo: %v", err)
	}
	if got.Status != store.StatusProcessed {
		t.Fatalf("terminal status changed to %s", got.Status)
	}

	failed := create(t, s, "early failure")
	if err := s.UpdateStatus(ctx, failed.ID, store.StatusFailed); err != nil {
		t.Fatalf("uploading -> failed: %v", err)
	}
	if err := s.UpdateStatus(ctx, uuid.NewString(), store.StatusProcessing); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing video: expected ErrNotFound, got %v", err)
	}
}

func testDuration(t *testing.T, s store.Store) {
	ctx := context.Background()
	v := create(t, s, "timed")
	if err := s.UpdateDuration(ctx, v.ID, 12.5); err != nil {
		t.Fatalf("UpdateDuration: %v", err)
	}
	got, err := s.GetVideo(ctx, v.ID)
	if err != nil {
		t.Fatalf("GetVideo: %v", err)
	}
	if got.Duration == nil || *got.Duration != 12.5 {
		t.Fatalf("expected duration 12.5, got %v", got.Duration)
	}
	if err := s.UpdateDuration(ctx, uuid.NewString(), 1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testQualities(t *testing.T, s store.Store) {
	ctx := context.Background()
	v := create(t, s, "renditions")
	other := create(t, s, "other")
	for _, label := range []string{"1080p", "720p"} {
		q, err := s.InsertQuality(ctx, store.Quality{
			VideoID:    v.ID,
			Resolution: label,
			Bitrate:    "5000k",
			FilePath:   fmt.Sprintf("hls/%s/stream.m3u8", label),
		})
		if err != nil {
			t.Fatalf("InsertQuality(%s): %v", label, err)
		}
		if q.ID == "" {
			t.Fatal("expected quality id to be assigned")
		}
	}

	qualities, err := s.ListQualities(ctx, v.ID)
	if err != nil {
		t.Fatalf("ListQualities: %v", err)
	}
	if len(qualities) != 2 || qualities[0].Resolution != "1080p" || qualities[1].Resolution != "720p" {
		t.Fatalf("unexpected qualities: %+v", qualities)
	}

	byVideo, err := s.QualitiesFor(ctx, []string{v.ID, other.ID})
	if err != nil {
		t.Fatalf("QualitiesFor: %v", err)
	}
	if len(byVideo[v.ID]) != 2 || len(byVideo[other.ID]) != 0 {
		t.Fatalf("unexpected grouping: %+v", byVideo)
	}
}

func testListPaging(t *testing.T, s store.Store) {
	ctx := context.Background()
	var ids []string
	for i := 0; i < 5; i++ {
		v := create(t, s, fmt.Sprintf("video-%d", i))
		ids = append(ids, v.ID)
		time.Sleep(2 * time.Millisecond)
	}
	for _, id := range ids[:3] {
		if err := s.UpdateStatus(ctx, id, store.StatusProcessing); err != nil {
			t.Fatalf("UpdateStatus: %v", err)
		}
		if err := s.UpdateStatus(ctx, id, store.StatusProcessed); err != nil {
			t.Fatalf("UpdateStatus: %v", err)
		}
	}

	page, err := s.ListVideos(ctx, store.ListFilter{
		Statuses: []store.Status{store.StatusProcessed},
		Offset:   0,
		Limit:    2,
	})
	if err != nil {
		t.Fatalf("ListVideos: %v", err)
	}
	if page.Total != 3 {
		t.Fatalf("expected total 3, got %d", page.Total)
	}
	if len(page.Videos) != 2 || page.Videos[0].ID != ids[2] || page.Videos[1].ID != ids[1] {
		t.Fatalf("expected newest processed first, got %+v", page.Videos)
	}

	next, err := s.ListVideos(ctx, store.ListFilter{Statuses: []store.Status{store.StatusProcessed}, Offset: 2, Limit: 2})
	if err != nil {
		t.Fatalf("ListVideos: %v", err)
	}
	if len(next.Videos) != 1 || next.Videos[0].ID != ids[0] {
		t.Fatalf("unexpected second page: %+v", next.Videos)
	}

	all, err := s.ListVideos(ctx, store.ListFilter{})
	if err != nil {
		t.Fatalf("ListVideos: %v", err)
	}
	if all.Total != 5 || len(all.Videos) != 5 {
		t.Fatalf("expected all five videos, got total=%d len=%d", all.Total, len(all.Videos))
	}
}

func testFailInterrupted(t *testing.T, s store.Store) {
	ctx := context.Background()
	uploading := create(t, s, "uploading")
	processing := create(t, s, "processing")
	done := create(t, s, "done")
	if err := s.UpdateStatus(ctx, processing.ID, store.StatusProcessing); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	for _, st := range []store.Status{store.StatusProcessing, store.StatusProcessed} {
		if err := s.UpdateStatus(ctx, done.ID, st); err != nil {
			t.Fatalf("UpdateStatus: %v", err)
		}
	}

	ids, err := s.FailInterrupted(ctx)
	if err != nil {
		t.Fatalf("FailInterrupted: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected two interrupted videos, got %v", ids)
	}
	for _, id := range []string{uploading.ID, processing.ID} {
		v, err := s.GetVideo(ctx, id)
		if err != nil {
			t.Fatalf("GetVideo: %v", err)
		}
		if v.Status != store.StatusFailed {
			t.Fatalf("expected %s failed, got %s", id, v.Status)
		}
	}
	v, err := s.GetVideo(ctx, done.ID)
	if err != nil {
		t.Fatalf("GetVideo: %v", err)
	}
	if v.Status != store.StatusProcessed {
		t.Fatalf("processed video changed to %s", v.Status)
	}

	again, err := s.FailInterrupted(ctx)
	if err != nil {
		t.Fatalf("FailInterrupted: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected no further interrupted videos, got %v", again)
	}
}
