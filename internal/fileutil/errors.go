package fileutil

import "errors"

// ErrLimitExceeded reports a stream longer than the caller's byte limit.
var ErrLimitExceeded = errors.New("size limit exceeded")
