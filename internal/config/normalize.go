package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeServer()
	c.normalizeEncoder()
	c.normalizeStore()
	c.normalizeRunLock()
	c.normalizeLogging()
	c.normalizeTelemetry()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if value, ok := os.LookupEnv("VODPIPE_UPLOADS_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.UploadsDir = value
	}
	if strings.TrimSpace(c.Paths.UploadsDir) == "" {
		c.Paths.UploadsDir = defaultUploadsDir
	}
	if c.Paths.UploadsDir, err = expandPath(c.Paths.UploadsDir); err != nil {
		return fmt.Errorf("paths.uploads_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.MinFreeMB < 0 {
		c.Paths.MinFreeMB = 0
	}
	return nil
}

func (c *Config) normalizeServer() {
	if value, ok := os.LookupEnv("VODPIPE_BIND"); ok && strings.TrimSpace(value) != "" {
		c.Server.Bind = value
	}
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultBind
	}
	if c.Server.ReadHeaderTimeout <= 0 {
		c.Server.ReadHeaderTimeout = defaultReadHeaderTimeout
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = defaultShutdownTimeout
	}
	if value, ok := os.LookupEnv("VODPIPE_API_TOKEN"); ok {
		c.Server.APIToken = value
	}
	c.Server.APIToken = strings.TrimSpace(c.Server.APIToken)
}

func (c *Config) normalizeEncoder() {
	c.Encoder.FFmpegBinary = strings.TrimSpace(c.Encoder.FFmpegBinary)
	if c.Encoder.FFmpegBinary == "" {
		c.Encoder.FFmpegBinary = defaultFFmpegBinary
	}
	c.Encoder.FFprobeBinary = strings.TrimSpace(c.Encoder.FFprobeBinary)
	if c.Encoder.FFprobeBinary == "" {
		c.Encoder.FFprobeBinary = defaultFFprobeBinary
	}
	c.Encoder.Preset = strings.ToLower(strings.TrimSpace(c.Encoder.Preset))
	if c.Encoder.Preset == "" {
		c.Encoder.Preset = defaultPreset
	}
	if c.Encoder.Threads < 0 {
		c.Encoder.Threads = 0
	}
	if c.Encoder.ProbeTimeout <= 0 {
		c.Encoder.ProbeTimeout = defaultProbeTimeout
	}
}

func (c *Config) normalizeStore() {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if c.Store.Backend == "" {
		c.Store.Backend = defaultStoreBackend
	}
	if c.Store.MongoURI == "" {
		if value, ok := os.LookupEnv("VODPIPE_MONGO_URI"); ok {
			c.Store.MongoURI = value
		}
	}
	c.Store.MongoURI = strings.TrimSpace(c.Store.MongoURI)
	c.Store.MongoDatabase = strings.TrimSpace(c.Store.MongoDatabase)
	if c.Store.MongoDatabase == "" {
		c.Store.MongoDatabase = defaultMongoDatabase
	}
	if c.Store.MongoConnectTimeout <= 0 {
		c.Store.MongoConnectTimeout = defaultMongoConnectTimeout
	}
}

func (c *Config) normalizeRunLock() {
	c.RunLock.Backend = strings.ToLower(strings.TrimSpace(c.RunLock.Backend))
	if c.RunLock.Backend == "" {
		c.RunLock.Backend = defaultRunLockBackend
	}
	if c.RunLock.RedisURL == "" {
		if value, ok := os.LookupEnv("VODPIPE_REDIS_URL"); ok {
			c.RunLock.RedisURL = value
		}
	}
	c.RunLock.RedisURL = strings.TrimSpace(c.RunLock.RedisURL)
	if c.RunLock.TTLSeconds <= 0 {
		c.RunLock.TTLSeconds = defaultRunLockTTL
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeTelemetry() {
	if c.Telemetry.Endpoint == "" {
		if value, ok := os.LookupEnv("OTEL_EXPORTER_OTLP_ENDPOINT"); ok {
			c.Telemetry.Endpoint = value
		}
	}
	c.Telemetry.Endpoint = strings.TrimSpace(c.Telemetry.Endpoint)
	c.Telemetry.ServiceName = strings.TrimSpace(c.Telemetry.ServiceName)
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = defaultServiceName
	}
}
