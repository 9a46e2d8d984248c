// Package ingest streams an uploaded video into its namespace and makes it
// durable before the caller acknowledges the upload.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"vodpipe/internal/fileutil"
	"vodpipe/internal/layout"
	"vodpipe/internal/logging"
	"vodpipe/internal/preflight"
	"vodpipe/internal/services"
)

const stage = "ingest"

// Option configures a Writer.
type Option func(*Writer)

// WithMaxBytes rejects uploads larger than n bytes. Zero disables the cap.
func WithMaxBytes(n int64) Option {
	return func(w *Writer) { w.maxBytes = n }
}

// WithMinFreeBytes refuses uploads when the uploads volume has less than n
// bytes free. Zero disables the check.
func WithMinFreeBytes(n uint64) Option {
	return func(w *Writer) { w.minFree = n }
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Writer) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// Writer persists upload streams as <namespace>/original.mp4.
type Writer struct {
	maxBytes int64
	minFree  uint64
	logger   *slog.Logger
	freeFn   func(string) (uint64, error)
}

// NewWriter constructs a Writer.
func NewWriter(opts ...Option) *Writer {
	w := &Writer{logger: logging.NewNop(), freeFn: preflight.FreeBytes}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = logging.NewComponentLogger(w.logger, "ingest")
	return w
}

// Write copies src into ns.Original() in arrival order and fsyncs it.
//
// The file is created exclusively, so a second write into the same namespace
// fails rather than interleaving. On any failure the partial file is removed.
// Errors are tagged services.ErrMissingPayload (zero bytes), services.ErrUpload
// (the source stream failed or exceeded the size cap), or services.ErrStorage
// (directory, open, write, or sync failed).
func (w *Writer) Write(ctx context.Context, src io.Reader, ns layout.Namespace) (int64, error) {
	if src == nil {
		return 0, services.Wrap(services.ErrMissingPayload, stage, "write", "no video payload", nil)
	}
	if err := os.MkdirAll(ns.Root, 0o755); err != nil {
		return 0, services.Wrap(services.ErrStorage, stage, "mkdir", ns.Root, err)
	}
	if err := w.checkFreeSpace(ns.Root); err != nil {
		return 0, err
	}

	path := ns.Original()
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, services.Wrap(services.ErrStorage, stage, "open", path, err)
	}

	written, readErr, writeErr := fileutil.CopyAndSync(file, &contextReader{ctx: ctx, r: src}, w.maxBytes)
	closeErr := file.Close()

	fail := func(err error) (int64, error) {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			w.logger.Warn("partial upload cleanup failed",
				logging.String("path", path),
				logging.Error(rmErr),
				logging.String(logging.FieldEventType, "ingest_cleanup_failed"),
				logging.String(logging.FieldErrorHint, "remove the file manually"),
			)
		}
		return 0, err
	}

	switch {
	case errors.Is(readErr, fileutil.ErrLimitExceeded):
		return fail(services.Wrap(services.ErrUpload, stage, "read", fmt.Sprintf("upload exceeds %d bytes", w.maxBytes), readErr))
	case readErr != nil:
		return fail(services.Wrap(services.ErrUpload, stage, "read", "upload stream interrupted", readErr))
	case writeErr != nil:
		return fail(services.Wrap(services.ErrStorage, stage, "write", path, writeErr))
	case closeErr != nil:
		return fail(services.Wrap(services.ErrStorage, stage, "close", path, closeErr))
	case written == 0:
		return fail(services.Wrap(services.ErrMissingPayload, stage, "write", "upload contained no bytes", nil))
	}

	if err := fileutil.SyncDir(ns.Root); err != nil {
		return fail(services.Wrap(services.ErrStorage, stage, "sync", ns.Root, err))
	}

	w.logger.Debug("upload persisted",
		logging.String(logging.FieldVideoID, ns.ID),
		logging.Int64("bytes", written),
	)
	return written, nil
}

func (w *Writer) checkFreeSpace(dir string) error {
	if w.minFree == 0 || w.freeFn == nil {
		return nil
	}
	free, err := w.freeFn(dir)
	if err != nil {
		return services.Wrap(services.ErrStorage, stage, "statfs", dir, err)
	}
	if free < w.minFree {
		return services.Wrap(services.ErrStorage, stage, "statfs",
			fmt.Sprintf("only %d MiB free, %d MiB required", free>>20, w.minFree>>20), nil)
	}
	return nil
}

// contextReader stops reading once ctx is done so an abandoned request does
// not keep writing.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
