package daemonrun

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"vodpipe/internal/store"
	"vodpipe/internal/testsupport"
)

func TestOpenStoreSelectsBackend(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	st, err := OpenStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer st.Close()
	if _, ok := st.(*store.SQLite); !ok {
		t.Fatalf("expected sqlite store, got %T", st)
	}

	cfg.Store.Backend = "cassandra"
	if _, err := OpenStore(context.Background(), cfg); err == nil || !strings.Contains(err.Error(), "cassandra") {
		t.Fatalf("expected unknown backend error, got %v", err)
	}
}

func TestWritePIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vodpipe.pid")
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read pid: %v", err)
	}
	if strings.TrimSpace(string(data)) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("unexpected pid file contents %q", data)
	}
	if err := writePIDFile(""); err != nil {
		t.Fatalf("empty path should be a no-op: %v", err)
	}
}

func TestBinaryAvailable(t *testing.T) {
	if binaryAvailable("  ") {
		t.Fatal("blank name should be unavailable")
	}
	if binaryAvailable("definitely-not-a-real-binary-vodpipe") {
		t.Fatal("missing binary reported available")
	}
}
