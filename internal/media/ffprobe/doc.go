// Package ffprobe provides a typed wrapper around ffprobe JSON output and the
// duration probe run before transcoding.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Prober: runs ffprobe with a bounded timeout through a services.Executor
//
// Failures are tagged with services.ErrProbe.
package ffprobe
