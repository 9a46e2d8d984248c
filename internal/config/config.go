package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains on-disk locations.
type Paths struct {
	UploadsDir string `toml:"uploads_dir"`
	StateDir   string `toml:"state_dir"`
	LogDir     string `toml:"log_dir"`
	// MinFreeMB is the free-space floor checked before accepting an upload. Zero disables the check.
	MinFreeMB int `toml:"min_free_mb"`
}

// Server contains HTTP surface configuration.
type Server struct {
	Bind              string  `toml:"bind"`
	MaxUploadMB       int     `toml:"max_upload_mb"`
	RateLimitRPS      float64 `toml:"rate_limit_rps"`
	RateLimitBurst    int     `toml:"rate_limit_burst"`
	ReadHeaderTimeout int     `toml:"read_header_timeout"`
	ShutdownTimeout   int     `toml:"shutdown_timeout"`
	// APIToken, when set, is required as a bearer token on /api routes.
	APIToken string `toml:"api_token"`
}

// Encoder contains ffmpeg/ffprobe invocation settings.
type Encoder struct {
	FFmpegBinary      string `toml:"ffmpeg_binary"`
	FFprobeBinary     string `toml:"ffprobe_binary"`
	Preset            string `toml:"preset"`
	Threads           int    `toml:"threads"`
	SegmentSeconds    int    `toml:"segment_seconds"`
	ThumbnailInterval int    `toml:"thumbnail_interval"`
	ThumbnailWidth    int    `toml:"thumbnail_width"`
	ProbeTimeout      int    `toml:"probe_timeout"`
}

// Workflow contains background processing settings.
type Workflow struct {
	// MaxConcurrentJobs bounds in-flight transcode runs. Zero means unbounded.
	MaxConcurrentJobs int `toml:"max_concurrent_jobs"`
	// JobTimeout caps a single run in seconds. Zero means no cap.
	JobTimeout           int  `toml:"job_timeout"`
	FailWhenNoRenditions bool `toml:"fail_when_no_renditions"`
	RecoverInterrupted   bool `toml:"recover_interrupted"`
}

// Store selects and configures the record store backend.
type Store struct {
	Backend             string `toml:"backend"`
	MongoURI            string `toml:"mongo_uri"`
	MongoDatabase       string `toml:"mongo_database"`
	MongoConnectTimeout int    `toml:"mongo_connect_timeout"`
}

// RunLock selects the per-video run guard backend.
type RunLock struct {
	Backend    string `toml:"backend"`
	RedisURL   string `toml:"redis_url"`
	TTLSeconds int    `toml:"ttl_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Telemetry contains OpenTelemetry tracing settings. An empty endpoint disables tracing.
type Telemetry struct {
	Endpoint    string  `toml:"endpoint"`
	ServiceName string  `toml:"service_name"`
	SampleRate  float64 `toml:"sample_rate"`
}

// Config encapsulates all configuration values for vodpipe.
//
// Configuration sections by subsystem:
//   - Paths: uploads root, state and log directories
//   - Server: HTTP bind address, upload limits, rate limiting
//   - Encoder: ffmpeg/ffprobe binaries and HLS parameters
//   - Workflow: background job concurrency and timeouts
//   - Store: record store backend (sqlite or mongo)
//   - RunLock: per-video run guard (memory or redis)
//   - Logging: log format and level
//   - Telemetry: OTLP trace export
type Config struct {
	Paths     Paths     `toml:"paths"`
	Server    Server    `toml:"server"`
	Encoder   Encoder   `toml:"encoder"`
	Workflow  Workflow  `toml:"workflow"`
	Store     Store     `toml:"store"`
	RunLock   RunLock   `toml:"run_lock"`
	Logging   Logging   `toml:"logging"`
	Telemetry Telemetry `toml:"telemetry"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/vodpipe/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("vodpipe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.UploadsDir, c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "vodpipe.db")
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "vodpipe.lock")
}

// MaxUploadBytes returns the upload size cap in bytes. Zero means unlimited.
func (c *Config) MaxUploadBytes() int64 {
	if c.Server.MaxUploadMB <= 0 {
		return 0
	}
	return int64(c.Server.MaxUploadMB) << 20
}

// JobTimeout returns the per-run timeout, or zero when runs are uncapped.
func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.Workflow.JobTimeout) * time.Second
}

// RunLockTTL returns how long a run guard is held before it expires on its own.
func (c *Config) RunLockTTL() time.Duration {
	return time.Duration(c.RunLock.TTLSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
