// Package config loads, normalizes, and validates vodpipe configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// VODPIPE_MONGO_URI and OTEL_EXPORTER_OTLP_ENDPOINT. The Config type centralizes
// every knob the daemon and CLI need, so the uploads root, encoder settings,
// and backing services are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
