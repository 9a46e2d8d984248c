// Package httpapi exposes the upload, listing, detail, and health endpoints,
// serves generated HLS artifacts under /uploads/, and publishes Prometheus
// metrics. Handlers translate service errors into a JSON envelope of the form
// {"error":{"code":"...","message":"..."}}.
package httpapi
