// Package pipeline turns an ingested upload into a multi-bitrate HLS package.
//
// Orchestrator.Run owns one video end to end: it claims the run guard, moves
// the record to processing, probes the duration, encodes each ladder entry in
// order, writes the master playlist from whatever succeeded, extracts
// thumbnails, and settles the record in a terminal status. Individual
// rendition failures are tolerated; the video fails only when nothing could be
// produced or a structural step (HLS directory, probe, master playlist) fails.
package pipeline
