package daemon

import (
	"context"
	"time"

	"vodpipe/internal/deps"
	"vodpipe/internal/httpapi"
	"vodpipe/internal/preflight"
)

// Health implements httpapi.HealthReporter. The report is degraded when the
// store does not answer a ping, a required binary is missing, or a preflight
// check fails.
func (d *Daemon) Health(ctx context.Context) httpapi.Health {
	stats := d.dispatcher.Stats()
	report := httpapi.Health{
		Status:    httpapi.HealthOK,
		Timestamp: time.Now().UTC(),
		Store:     d.cfg.Store.Backend,
		Jobs:      &stats,
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := d.store.Ping(pingCtx); err != nil {
		report.Status = httpapi.HealthDegraded
		report.StoreError = err.Error()
	}

	report.Dependencies = d.dependencies()
	if len(deps.RequiredMissing(report.Dependencies)) > 0 {
		report.Status = httpapi.HealthDegraded
	}

	report.Checks = preflight.RunAll(ctx, d.cfg)
	if len(preflight.Failed(report.Checks)) > 0 {
		report.Status = httpapi.HealthDegraded
	}
	return report
}

// dependencies returns the snapshot taken at start, or a fresh lookup
// (without versions) when the daemon has not started.
func (d *Daemon) dependencies() []deps.Status {
	d.mu.Lock()
	snapshot := d.deps
	d.mu.Unlock()
	if snapshot != nil {
		return snapshot
	}
	return preflight.CheckSystemDeps(d.cfg)
}
