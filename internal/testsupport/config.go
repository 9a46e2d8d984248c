package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"vodpipe/internal/config"
)

// StubFailEnv makes stubbed binaries exit 1. "all" fails every invocation;
// any other value fails invocations whose arguments contain it (e.g. "720p").
const StubFailEnv = "VODPIPE_STUB_FAIL"

// StubDurationEnv overrides the duration printed by the ffprobe stub.
const StubDurationEnv = "VODPIPE_STUB_DURATION"

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.UploadsDir = filepath.Join(base, "uploads")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.MinFreeMB = 0
	cfgVal.Server.Bind = "127.0.0.1:0"
	cfgVal.Server.RateLimitRPS = 0
	cfgVal.Telemetry.Endpoint = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithMaxConcurrentJobs overrides the dispatcher bound.
func WithMaxConcurrentJobs(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.MaxConcurrentJobs = n
	}
}

const stubScript = `#!/bin/sh
name=$(basename "$0")
fail="${VODPIPE_STUB_FAIL:-}"
if [ "$fail" = "all" ]; then
  echo "stub $name: forced failure" >&2
  exit 1
fi
if [ -n "$fail" ]; then
  case "$*" in
    *"$fail"*) echo "stub $name: forced failure" >&2; exit 1 ;;
  esac
fi
for last; do :; done
case "$name" in
  ffprobe)
    printf '{"format":{"duration":"%s"}}\n' "${VODPIPE_STUB_DURATION:-12.5}"
    ;;
  ffmpeg)
    case "$last" in
      *.m3u8)
        dir=$(dirname "$last")
        printf '#EXTM3U\n#EXT-X-ENDLIST\n' > "$last"
        : > "$dir/segment_000.ts"
        ;;
      *thumb_%d.jpg)
        dir=$(dirname "$last")
        : > "$dir/thumb_1.jpg"
        ;;
    esac
    ;;
esac
exit 0
`

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg and ffprobe are stubbed.
// The ffmpeg stub writes the requested playlist and one segment; the ffprobe
// stub prints a JSON format block with StubDurationEnv's value.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, []byte(stubScript), 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
