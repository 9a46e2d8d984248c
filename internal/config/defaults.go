package config

const (
	defaultUploadsDir          = "uploads"
	defaultStateDir            = "~/.local/share/vodpipe"
	defaultLogDir              = "~/.local/share/vodpipe/logs"
	defaultMinFreeMB           = 512
	defaultBind                = "127.0.0.1:8080"
	defaultMaxUploadMB         = 1024
	defaultRateLimitRPS        = 20
	defaultRateLimitBurst      = 40
	defaultReadHeaderTimeout   = 10
	defaultShutdownTimeout     = 15
	defaultFFmpegBinary        = "ffmpeg"
	defaultFFprobeBinary       = "ffprobe"
	defaultPreset              = "fast"
	defaultThreads             = 2
	defaultSegmentSeconds      = 6
	defaultThumbnailInterval   = 10
	defaultThumbnailWidth      = 320
	defaultProbeTimeout        = 30
	defaultMaxConcurrentJobs   = 2
	defaultStoreBackend        = "sqlite"
	defaultMongoDatabase       = "vodpipe"
	defaultMongoConnectTimeout = 10
	defaultRunLockBackend      = "memory"
	defaultRunLockTTL          = 6 * 60 * 60
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultServiceName         = "vodpipe"
	defaultTraceSampleRate     = 0.1
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			UploadsDir: defaultUploadsDir,
			StateDir:   defaultStateDir,
			LogDir:     defaultLogDir,
			MinFreeMB:  defaultMinFreeMB,
		},
		Server: Server{
			Bind:              defaultBind,
			MaxUploadMB:       defaultMaxUploadMB,
			RateLimitRPS:      defaultRateLimitRPS,
			RateLimitBurst:    defaultRateLimitBurst,
			ReadHeaderTimeout: defaultReadHeaderTimeout,
			ShutdownTimeout:   defaultShutdownTimeout,
		},
		Encoder: Encoder{
			FFmpegBinary:      defaultFFmpegBinary,
			FFprobeBinary:     defaultFFprobeBinary,
			Preset:            defaultPreset,
			Threads:           defaultThreads,
			SegmentSeconds:    defaultSegmentSeconds,
			ThumbnailInterval: defaultThumbnailInterval,
			ThumbnailWidth:    defaultThumbnailWidth,
			ProbeTimeout:      defaultProbeTimeout,
		},
		Workflow: Workflow{
			MaxConcurrentJobs:    defaultMaxConcurrentJobs,
			FailWhenNoRenditions: true,
			RecoverInterrupted:   true,
		},
		Store: Store{
			Backend:             defaultStoreBackend,
			MongoDatabase:       defaultMongoDatabase,
			MongoConnectTimeout: defaultMongoConnectTimeout,
		},
		RunLock: RunLock{
			Backend:    defaultRunLockBackend,
			TTLSeconds: defaultRunLockTTL,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Telemetry: Telemetry{
			ServiceName: defaultServiceName,
			SampleRate:  defaultTraceSampleRate,
		},
	}
}
