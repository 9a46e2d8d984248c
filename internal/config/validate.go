package config

import (
	"errors"
	"fmt"
	"strings"
)

var validPresets = map[string]struct{}{
	"ultrafast": {}, "superfast": {}, "veryfast": {}, "faster": {}, "fast": {},
	"medium": {}, "slow": {}, "slower": {}, "veryslow": {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateEncoder(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateRunLock(); err != nil {
		return err
	}
	return c.validateTelemetry()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.UploadsDir) == "" {
		return errors.New("paths.uploads_dir must be set")
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	return nil
}

func (c *Config) validateServer() error {
	if !strings.Contains(c.Server.Bind, ":") {
		return fmt.Errorf("server.bind must be host:port, got %q", c.Server.Bind)
	}
	if c.Server.MaxUploadMB < 0 {
		return errors.New("server.max_upload_mb must be >= 0")
	}
	if c.Server.RateLimitRPS < 0 {
		return errors.New("server.rate_limit_rps must be >= 0")
	}
	if c.Server.RateLimitRPS > 0 && c.Server.RateLimitBurst <= 0 {
		return errors.New("server.rate_limit_burst must be positive when server.rate_limit_rps is set")
	}
	return nil
}

func (c *Config) validateEncoder() error {
	if err := ensurePositiveMap(map[string]int{
		"encoder.segment_seconds":    c.Encoder.SegmentSeconds,
		"encoder.thumbnail_interval": c.Encoder.ThumbnailInterval,
		"encoder.thumbnail_width":    c.Encoder.ThumbnailWidth,
	}); err != nil {
		return err
	}
	if _, ok := validPresets[c.Encoder.Preset]; !ok {
		return fmt.Errorf("encoder.preset: unsupported x264 preset %q", c.Encoder.Preset)
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.MaxConcurrentJobs < 0 {
		return errors.New("workflow.max_concurrent_jobs must be >= 0")
	}
	if c.Workflow.JobTimeout < 0 {
		return errors.New("workflow.job_timeout must be >= 0 (seconds)")
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case "sqlite":
		return nil
	case "mongo":
		if c.Store.MongoURI == "" {
			return errors.New("store.mongo_uri must be set when store.backend is \"mongo\" (or set VODPIPE_MONGO_URI)")
		}
		return nil
	default:
		return fmt.Errorf("store.backend: unsupported value %q", c.Store.Backend)
	}
}

func (c *Config) validateRunLock() error {
	switch c.RunLock.Backend {
	case "memory":
		return nil
	case "redis":
		if c.RunLock.RedisURL == "" {
			return errors.New("run_lock.redis_url must be set when run_lock.backend is \"redis\" (or set VODPIPE_REDIS_URL)")
		}
		return nil
	default:
		return fmt.Errorf("run_lock.backend: unsupported value %q", c.RunLock.Backend)
	}
}

func (c *Config) validateTelemetry() error {
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return errors.New("telemetry.sample_rate must be between 0 and 1")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
