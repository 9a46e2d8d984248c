// Package daemon coordinates the long-running vodpipe process.
//
// It wires configuration, the record store, the run lock, the pipeline
// orchestrator, the background dispatcher, and the HTTP API into a single
// lifecycle with flock-based locking to prevent multiple instances. On start
// it fails videos left mid-flight by a previous process; on stop it stops
// accepting requests, drains in-flight jobs for a bounded time, then cancels
// whatever remains.
//
// Keep orchestration logic here: the processing steps live in pipeline and
// the request handling lives in httpapi.
package daemon
