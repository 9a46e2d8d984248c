package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"vodpipe/internal/config"
)

func isolateEnv(t *testing.T) string {
	t.Helper()
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	for _, key := range []string{
		"VODPIPE_UPLOADS_DIR", "VODPIPE_BIND", "VODPIPE_MONGO_URI",
		"VODPIPE_REDIS_URL", "VODPIPE_API_TOKEN", "OTEL_EXPORTER_OTLP_ENDPOINT",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	t.Chdir(tempHome)
	return tempHome
}

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := isolateEnv(t)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "vodpipe")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if !filepath.IsAbs(cfg.Paths.UploadsDir) || filepath.Base(cfg.Paths.UploadsDir) != "uploads" {
		t.Fatalf("unexpected uploads dir: %q", cfg.Paths.UploadsDir)
	}
	if cfg.Server.Bind != "127.0.0.1:8080" {
		t.Fatalf("unexpected bind: %q", cfg.Server.Bind)
	}
	if cfg.Encoder.SegmentSeconds != 6 {
		t.Fatalf("expected 6s segments, got %d", cfg.Encoder.SegmentSeconds)
	}
	if cfg.Encoder.Preset != "fast" {
		t.Fatalf("expected fast preset, got %q", cfg.Encoder.Preset)
	}
	if cfg.Store.Backend != "sqlite" || cfg.RunLock.Backend != "memory" {
		t.Fatalf("unexpected backends: store=%q run_lock=%q", cfg.Store.Backend, cfg.RunLock.Backend)
	}
	if cfg.MaxUploadBytes() != 1024<<20 {
		t.Fatalf("unexpected max upload bytes: %d", cfg.MaxUploadBytes())
	}
	if cfg.JobTimeout() != 0 {
		t.Fatalf("expected no job timeout by default, got %s", cfg.JobTimeout())
	}
	if cfg.RunLockTTL() != 6*time.Hour {
		t.Fatalf("unexpected run lock ttl: %s", cfg.RunLockTTL())
	}
	if cfg.DatabasePath() != filepath.Join(wantState, "vodpipe.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempHome := isolateEnv(t)
	configPath := filepath.Join(tempHome, "custom.toml")

	custom := config.Default()
	custom.Paths.UploadsDir = "~/media/uploads"
	custom.Encoder.Preset = "Veryfast"
	custom.Workflow.MaxConcurrentJobs = 4
	custom.Logging.Format = "JSON"

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected custom config to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Paths.UploadsDir != filepath.Join(tempHome, "media", "uploads") {
		t.Fatalf("unexpected uploads dir: %q", cfg.Paths.UploadsDir)
	}
	if cfg.Encoder.Preset != "veryfast" {
		t.Fatalf("expected preset to be lowercased, got %q", cfg.Encoder.Preset)
	}
	if cfg.Workflow.MaxConcurrentJobs != 4 {
		t.Fatalf("unexpected max concurrent jobs: %d", cfg.Workflow.MaxConcurrentJobs)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("unexpected log format: %q", cfg.Logging.Format)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	tempHome := isolateEnv(t)
	configPath := filepath.Join(tempHome, "bad.toml")
	if err := os.WriteFile(configPath, []byte("[encoder]\nbogus = 1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected unknown key to fail parsing")
	}
}

func TestEnvOverrides(t *testing.T) {
	isolateEnv(t)
	t.Setenv("VODPIPE_BIND", "0.0.0.0:9000")
	t.Setenv("VODPIPE_MONGO_URI", "mongodb://db:27017")
	t.Setenv("VODPIPE_REDIS_URL", "redis://cache:6379/1")
	t.Setenv("VODPIPE_API_TOKEN", " secret ")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Bind != "0.0.0.0:9000" {
		t.Fatalf("expected bind from env, got %q", cfg.Server.Bind)
	}
	if cfg.Store.MongoURI != "mongodb://db:27017" {
		t.Fatalf("expected mongo uri from env, got %q", cfg.Store.MongoURI)
	}
	if cfg.RunLock.RedisURL != "redis://cache:6379/1" {
		t.Fatalf("expected redis url from env, got %q", cfg.RunLock.RedisURL)
	}
	if cfg.Server.APIToken != "secret" {
		t.Fatalf("expected trimmed api token from env, got %q", cfg.Server.APIToken)
	}
	if cfg.Telemetry.Endpoint != "collector:4318" {
		t.Fatalf("expected otlp endpoint from env, got %q", cfg.Telemetry.Endpoint)
	}
}

func TestCreateSample(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}
	if cfg.Encoder.SegmentSeconds != 6 {
		t.Fatalf("expected sample segment_seconds=6, got %d", cfg.Encoder.SegmentSeconds)
	}
	if !strings.Contains(string(contents), "[run_lock]") {
		t.Fatal("expected sample to document run_lock section")
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"bind", func(c *config.Config) { c.Server.Bind = "localhost" }, "server.bind"},
		{"segment", func(c *config.Config) { c.Encoder.SegmentSeconds = 0 }, "encoder.segment_seconds"},
		{"preset", func(c *config.Config) { c.Encoder.Preset = "warp" }, "encoder.preset"},
		{"jobs", func(c *config.Config) { c.Workflow.MaxConcurrentJobs = -1 }, "workflow.max_concurrent_jobs"},
		{"store", func(c *config.Config) { c.Store.Backend = "postgres" }, "store.backend"},
		{"mongo uri", func(c *config.Config) { c.Store.Backend = "mongo" }, "store.mongo_uri"},
		{"redis url", func(c *config.Config) { c.RunLock.Backend = "redis" }, "run_lock.redis_url"},
		{"burst", func(c *config.Config) { c.Server.RateLimitBurst = 0 }, "server.rate_limit_burst"},
		{"sample rate", func(c *config.Config) { c.Telemetry.SampleRate = 2 }, "telemetry.sample_rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error to mention %q, got %v", tt.want, err)
			}
		})
	}
}
