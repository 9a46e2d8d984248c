package layout_test

import (
	"errors"
	"path/filepath"
	"testing"

	"vodpipe/internal/layout"
)

const testID = "5b0f1d8e-6a4c-4f7a-9a61-3b2c1d0e9f88"

func TestNamespacePaths(t *testing.T) {
	root := filepath.Join("srv", "uploads")
	ns := layout.For(root, testID)

	base := filepath.Join(root, testID)
	cases := []struct{ got, want string }{
		{ns.Root, base},
		{ns.Original(), filepath.Join(base, "original.mp4")},
		{ns.HLSDir(), filepath.Join(base, "hls")},
		{ns.Master(), filepath.Join(base, "hls", "master.m3u8")},
		{ns.QualityDir("720p"), filepath.Join(base, "hls", "720p")},
		{ns.QualityPlaylist("720p"), filepath.Join(base, "hls", "720p", "stream.m3u8")},
		{ns.SegmentPattern("720p"), filepath.Join(base, "hls", "720p", "segment_%03d.ts")},
		{ns.ThumbnailsDir(), filepath.Join(base, "thumbnails")},
		{ns.ThumbnailPattern(), filepath.Join(base, "thumbnails", "thumb_%d.jpg")},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Fatalf("got %q want %q", tc.got, tc.want)
		}
	}
}

func TestNamespacesDoNotCollide(t *testing.T) {
	a := layout.For("uploads", testID)
	b := layout.For("uploads", "0e7d3a51-2f55-4c1c-8d1f-6f0c2b7a4e11")
	if a.Root == b.Root || a.Master() == b.Master() {
		t.Fatal("distinct identifiers must yield distinct namespaces")
	}
}

func TestRelativePaths(t *testing.T) {
	if got := layout.RelativePlaylist("1080p"); got != "hls/1080p/stream.m3u8" {
		t.Fatalf("unexpected relative playlist %q", got)
	}
	if got := layout.MasterEntry("360p"); got != "360p/stream.m3u8" {
		t.Fatalf("unexpected master entry %q", got)
	}
	if got := layout.StreamURL("/uploads/", testID); got != "/uploads/"+testID+"/hls/master.m3u8" {
		t.Fatalf("unexpected stream url %q", got)
	}
	if got := layout.ThumbnailURL("uploads", testID); got != "/uploads/"+testID+"/thumbnails/thumb_1.jpg" {
		t.Fatalf("unexpected thumbnail url %q", got)
	}
}

func TestResolveRejectsTraversal(t *testing.T) {
	for _, id := range []string{"", "../etc", "abc", "5B0F1D8E-6A4C-4F7A-9A61-3B2C1D0E9F88"} {
		if _, err := layout.Resolve("uploads", id); !errors.Is(err, layout.ErrInvalidID) {
			t.Fatalf("Resolve(%q) = %v, want ErrInvalidID", id, err)
		}
	}
	ns, err := layout.Resolve("uploads", testID)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if ns.ID != testID {
		t.Fatalf("unexpected id %q", ns.ID)
	}
}
