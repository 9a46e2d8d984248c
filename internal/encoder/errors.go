package encoder

import (
	"errors"
	"fmt"

	"vodpipe/internal/services"
)

// ErrUnknownRendition reports a label that is not on the ladder.
var ErrUnknownRendition = errors.New("unknown rendition")

// EncodeError describes a failed ffmpeg invocation.
type EncodeError struct {
	Op       string
	Label    string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *EncodeError) Error() string {
	subject := e.Op
	if e.Label != "" {
		subject += " " + e.Label
	}
	msg := fmt.Sprintf("ffmpeg %s: exit status %d", subject, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *EncodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{services.ErrEncode}
	}
	return []error{services.ErrEncode, e.Err}
}
