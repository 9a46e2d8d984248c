package testsupport

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"vodpipe/internal/config"
	"vodpipe/internal/store"
)

// MustOpenStore opens a SQLite store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.SQLite {
	t.Helper()

	s, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

// NewVideo inserts an uploading video with a fresh identifier.
func NewVideo(t testing.TB, s store.Store, title string) *store.Video {
	t.Helper()

	v, err := s.CreateVideo(context.Background(), store.Video{ID: uuid.NewString(), Title: title})
	if err != nil {
		t.Fatalf("CreateVideo: %v", err)
	}
	return v
}

// AdvanceVideo walks v through the given statuses, failing the test on any rejection.
func AdvanceVideo(t testing.TB, s store.Store, id string, statuses ...store.Status) {
	t.Helper()

	for _, status := range statuses {
		if err := s.UpdateStatus(context.Background(), id, status); err != nil {
			t.Fatalf("UpdateStatus(%s): %v", status, err)
		}
	}
}
