package preflight

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"vodpipe/internal/config"
	"vodpipe/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// FreeBytes reports the bytes available to unprivileged users on the
// filesystem holding path.
func FreeBytes(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return st.Bavail * uint64(st.Bsize), nil
}

// CheckFreeSpace verifies that at least minBytes are free under path.
func CheckFreeSpace(name, path string, minBytes uint64) Result {
	free, err := FreeBytes(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	detail := fmt.Sprintf("%s (%d MiB free, %d MiB required)", path, free>>20, minBytes>>20)
	return Result{Name: name, Passed: free >= minBytes, Detail: detail}
}

// CheckSystemDeps evaluates the external binaries for the given config. Both
// the daemon and the CLI status command use this to avoid duplicating the
// requirements list.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	return deps.CheckBinaries([]deps.Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.Encoder.FFmpegBinary,
			Description: "Required for HLS transcoding and thumbnails",
		},
		{
			Name:        "FFprobe",
			Command:     cfg.Encoder.FFprobeBinary,
			Description: "Required for duration probing",
		},
	})
}
