// Package encoder drives ffmpeg to produce HLS renditions and preview
// thumbnails.
//
// Each call runs one blocking ffmpeg process through a services.Executor.
// A non-zero exit surfaces as *EncodeError carrying the exit status and the
// tail of stderr; EncodeError matches services.ErrEncode under errors.Is.
package encoder
