// Package main hosts the vodpipe CLI entrypoint and command graph.
//
// "vodpipe serve" runs the daemon: the HTTP API plus the background
// transcoding dispatcher. The remaining commands are offline tooling that
// open the configured store directly: listing and inspecting videos,
// re-running the pipeline for a stranded upload, checking the environment,
// and scaffolding configuration.
//
// Keep this package lean: add new functionality to the internal packages
// first, then surface it here.
package main
