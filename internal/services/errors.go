package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUpload marks failures reading the client's upload stream.
	ErrUpload = errors.New("upload error")
	// ErrMissingPayload marks an upload that carried no video bytes.
	ErrMissingPayload = errors.New("missing payload")
	// ErrStorage marks failures creating, writing, or syncing files on disk.
	ErrStorage = errors.New("storage error")
	// ErrProbe marks an ffprobe invocation that failed or produced no duration.
	ErrProbe = errors.New("probe error")
	// ErrEncode marks a non-zero exit from the encoder.
	ErrEncode = errors.New("encode error")
	// ErrPersistence marks record store failures.
	ErrPersistence = errors.New("persistence error")

	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTransient     = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind returns a short label for the first marker found in err's chain, or
// "internal" when none match.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingPayload):
		return "missing_payload"
	case errors.Is(err, ErrUpload):
		return "upload"
	case errors.Is(err, ErrStorage):
		return "storage"
	case errors.Is(err, ErrProbe):
		return "probe"
	case errors.Is(err, ErrEncode):
		return "encode"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	case errors.Is(err, ErrExternalTool):
		return "external_tool"
	default:
		return "internal"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
