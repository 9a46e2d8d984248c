package httpapi

import (
	"net/http"
	"time"

	"vodpipe/internal/deps"
	"vodpipe/internal/dispatch"
	"vodpipe/internal/preflight"
)

// Health is the payload of GET /api/v1/health.
type Health struct {
	Status       string             `json:"status"`
	Timestamp    time.Time          `json:"timestamp"`
	Store        string             `json:"store,omitempty"`
	StoreError   string             `json:"store_error,omitempty"`
	Dependencies []deps.Status      `json:"dependencies,omitempty"`
	Checks       []preflight.Result `json:"checks,omitempty"`
	Jobs         *dispatch.Stats    `json:"jobs,omitempty"`
}

// Health status values.
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := Health{Status: HealthOK, Timestamp: time.Now().UTC()}
	if s.health != nil {
		report = s.health.Health(r.Context())
	}
	status := http.StatusOK
	if report.Status != HealthOK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}
