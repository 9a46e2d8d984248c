package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"vodpipe/internal/config"
	"vodpipe/internal/daemon"
	"vodpipe/internal/logging"
	"vodpipe/internal/metrics"
	"vodpipe/internal/runlock"
	"vodpipe/internal/store"
	"vodpipe/internal/store/mongostore"
	"vodpipe/internal/telemetry"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the vodpipe daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	logPath := filepath.Join(cfg.Paths.LogDir, "vodpipe.log")
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(logger, cfg)
	pidPath := filepath.Join(cfg.Paths.StateDir, "vodpipe.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	shutdownTracing, err := telemetry.Init(signalCtx, cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("tracing disabled",
			logging.Error(err),
			logging.String(logging.FieldEventType, "telemetry_init_failed"),
			logging.String(logging.FieldErrorHint, "check telemetry.endpoint"),
		)
	} else {
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				logger.Warn("trace flush failed", logging.Error(err))
			}
		}()
	}
	metrics.Register(prometheus.DefaultRegisterer)

	st, err := OpenStore(signalCtx, cfg)
	if err != nil {
		logger.Error("open store", logging.Error(err), logging.String("backend", cfg.Store.Backend))
		return err
	}

	locker, err := runlock.New(signalCtx, cfg)
	if err != nil {
		st.Close()
		logger.Error("open run lock", logging.Error(err), logging.String("backend", cfg.RunLock.Backend))
		return err
	}

	d, err := daemon.New(cfg, daemon.Options{
		Store:    st,
		Locker:   locker,
		Logger:   logger,
		Gatherer: prometheus.DefaultGatherer,
	})
	if err != nil {
		locker.Close()
		st.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check server.bind, the lock file, and store access"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("vodpipe daemon shutting down")
	d.Stop(cmdCtx)
	return nil
}

// OpenStore opens the record store selected by cfg.Store.Backend.
func OpenStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "", "sqlite":
		s, err := store.Open(cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "mongo":
		s, err := mongostore.Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	ffmpeg := cfg.Encoder.FFmpegBinary
	ffprobe := cfg.Encoder.FFprobeBinary
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("ffmpeg_available", binaryAvailable(ffmpeg)),
		logging.String("ffmpeg_binary", ffmpeg),
		logging.Bool("ffprobe_available", binaryAvailable(ffprobe)),
		logging.String("ffprobe_binary", ffprobe),
		logging.String("store_backend", cfg.Store.Backend),
		logging.String("run_lock_backend", cfg.RunLock.Backend),
		logging.Bool("tracing_enabled", strings.TrimSpace(cfg.Telemetry.Endpoint) != ""),
		logging.Bool("api_token_set", cfg.Server.APIToken != ""),
	)
}

func binaryAvailable(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	_, err := exec.LookPath(name)
	return err == nil
}
