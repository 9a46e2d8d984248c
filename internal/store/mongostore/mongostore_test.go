package mongostore

import (
	"testing"
	"time"

	"vodpipe/internal/store"
)

func TestFromVideoDocKeepsOptionalFields(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	desc := "notes"
	dur := 42.5
	v := fromVideoDoc(videoDoc{
		ID:          "id-1",
		Title:       "Clip",
		Description: &desc,
		Duration:    &dur,
		Status:      string(store.StatusProcessed),
		CreatedAt:   created.UnixNano(),
		UpdatedAt:   created.Add(time.Minute).UnixNano(),
	})
	if v.Description != "notes" || v.Duration == nil || *v.Duration != 42.5 {
		t.Fatalf("unexpected optional fields: %+v", v)
	}
	if !v.CreatedAt.Equal(created) || !v.UpdatedAt.Equal(created.Add(time.Minute)) {
		t.Fatalf("unexpected timestamps: %v %v", v.CreatedAt, v.UpdatedAt)
	}
	if v.Status != store.StatusProcessed {
		t.Fatalf("unexpected status %s", v.Status)
	}
}

func TestFromVideoDocWithoutOptionalFields(t *testing.T) {
	v := fromVideoDoc(videoDoc{ID: "id-2", Title: "Untitled", Status: string(store.StatusUploading)})
	if v.Description != "" || v.Duration != nil {
		t.Fatalf("expected empty optional fields: %+v", v)
	}
}
