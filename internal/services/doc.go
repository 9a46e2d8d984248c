// Package services defines shared utilities consumed by the pipeline,
// dispatcher, and HTTP surface.
//
// Key responsibilities:
//   - Context helpers that stamp video IDs, stage names, rendition labels, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that classify failures
//     (upload, storage, probe, encode, persistence) so callers can map them to
//     statuses and HTTP responses without string matching.
//
// Use these helpers when wiring new pipeline logic so operational behaviour
// (error handling, observability) stays uniform across the service.
package services
