package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vodpipe/internal/config"
	"vodpipe/internal/logging"
	"vodpipe/internal/services"
)

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello from config")

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "vodpipe.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "hello from config") {
		t.Fatalf("expected message in log file, got %q", content)
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("message without caller")
	if strings.Contains(buf.String(), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", buf.String())
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("message with caller")
	if !strings.Contains(buf.String(), ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", buf.String())
	}
}

func TestConsoleLoggerLiftsSubject(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger = logging.NewComponentLogger(logger, "pipeline")
	logger.Info("rendition complete",
		logging.String(logging.FieldVideoID, "3f2a9c1e-0000-4000-8000-000000000000"),
		logging.String(logging.FieldStage, "transcode"),
		logging.String(logging.FieldQuality, "720p"),
	)
	line := buf.String()
	if !strings.Contains(line, "pipeline: Video 3f2a9c1e (transcode) rendition complete") {
		t.Fatalf("unexpected console line %q", line)
	}
	if !strings.Contains(line, "quality=720p") {
		t.Fatalf("expected quality attribute in %q", line)
	}
}

func TestJSONLoggerUsesCanonicalKeys(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Warn("probe failed", logging.Error(services.Wrap(services.ErrProbe, "probe", "", "", errors.New("exit 1"))))

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("decode json line: %v (%q)", err, buf.String())
	}
	if payload["level"] != "warn" {
		t.Fatalf("expected lowercased level, got %v", payload["level"])
	}
	if _, ok := payload["ts"]; !ok {
		t.Fatalf("expected ts key in %v", payload)
	}
	if payload[logging.FieldErrorKind] != "probe" {
		t.Fatalf("expected error_kind=probe, got %v", payload[logging.FieldErrorKind])
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestWithContextAddsFields(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithVideoID(ctx, "vid-1")
	ctx = services.WithStage(ctx, "probe")
	ctx = services.WithRequestID(ctx, "req-xyz")

	var buf bytes.Buffer
	base, err := logging.New(logging.Options{Format: "json", Level: "info", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WithContext(ctx, base).Info("contextual log")

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("decode json line: %v", err)
	}
	for key, want := range map[string]string{
		logging.FieldVideoID:       "vid-1",
		logging.FieldStage:         "probe",
		logging.FieldCorrelationID: "req-xyz",
	} {
		if payload[key] != want {
			t.Fatalf("field %s = %v, want %q", key, payload[key], want)
		}
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WarnWithContext(logger, "thumbnail extraction failed", "thumbnail_failed")

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("decode json line: %v", err)
	}
	for _, key := range []string{logging.FieldEventType, logging.FieldErrorHint, logging.FieldImpact} {
		if _, ok := payload[key]; !ok {
			t.Fatalf("expected %s in %v", key, payload)
		}
	}
}
