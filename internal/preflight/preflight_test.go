package preflight

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"vodpipe/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestFreeBytes(t *testing.T) {
	free, err := FreeBytes(t.TempDir())
	if err != nil {
		t.Fatalf("FreeBytes: %v", err)
	}
	if free == 0 {
		t.Fatal("expected some free space in temp dir")
	}
	if _, err := FreeBytes(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing path")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if r := CheckFreeSpace("free", dir, 1); !r.Passed {
		t.Fatalf("expected 1 byte requirement to pass: %s", r.Detail)
	}
	if r := CheckFreeSpace("free", dir, math.MaxUint64); r.Passed {
		t.Fatal("expected impossible requirement to fail")
	}
}

func TestRunAll(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.UploadsDir = t.TempDir()
	cfg.Paths.StateDir = filepath.Join(t.TempDir(), "missing")
	cfg.Paths.MinFreeMB = 1

	results := RunAll(context.Background(), &cfg)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	failed := Failed(results)
	if len(failed) != 1 || failed[0].Name != "State directory" {
		t.Fatalf("expected only state directory to fail, got %+v", failed)
	}
}

func TestCheckSystemDeps(t *testing.T) {
	cfg := config.Default()
	cfg.Encoder.FFmpegBinary = "vodpipe-missing-ffmpeg"
	statuses := CheckSystemDeps(&cfg)
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if statuses[0].Available {
		t.Fatal("expected missing ffmpeg to be unavailable")
	}
}
