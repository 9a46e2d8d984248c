package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"vodpipe/internal/config"
	"vodpipe/internal/daemonrun"
	"vodpipe/internal/deps"
	"vodpipe/internal/httpapi"
	"vodpipe/internal/preflight"
	"vodpipe/internal/services"
)

const statusProbeTimeout = 2 * time.Second

type statusReport struct {
	Checks       []preflight.Result `json:"checks"`
	Dependencies []deps.Status      `json:"dependencies"`
	Store        string             `json:"store"`
	StoreError   string             `json:"store_error,omitempty"`
	Daemon       *httpapi.Health    `json:"daemon,omitempty"`
	DaemonError  string             `json:"daemon_error,omitempty"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check directories, binaries, the store, and the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			report := collectStatus(cmd.Context(), cfg, http.DefaultClient)
			if jsonOut {
				return writeJSON(cmd, report)
			}
			printStatus(cmd.OutOrStdout(), cfg, report, shouldColorize(cmd.OutOrStdout()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON")
	return cmd
}

func collectStatus(ctx context.Context, cfg *config.Config, client *http.Client) statusReport {
	report := statusReport{
		Checks:       preflight.RunAll(ctx, cfg),
		Dependencies: deps.DetectVersions(ctx, services.CommandExecutor{}, preflight.CheckSystemDeps(cfg)),
		Store:        cfg.Store.Backend,
	}

	storeCtx, cancel := context.WithTimeout(ctx, statusProbeTimeout)
	defer cancel()
	if st, err := daemonrun.OpenStore(storeCtx, cfg); err != nil {
		report.StoreError = err.Error()
	} else {
		if err := st.Ping(storeCtx); err != nil {
			report.StoreError = err.Error()
		}
		st.Close()
	}

	health, err := fetchHealth(ctx, cfg, client)
	if err != nil {
		report.DaemonError = err.Error()
	} else {
		report.Daemon = health
	}
	return report
}

func fetchHealth(ctx context.Context, cfg *config.Config, client *http.Client) (*httpapi.Health, error) {
	ctx, cancel := context.WithTimeout(ctx, statusProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+dialAddr(cfg.Server.Bind)+"/api/v1/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var health httpapi.Health
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&health); err != nil {
		return nil, fmt.Errorf("decode health response (HTTP %d): %w", resp.StatusCode, err)
	}
	return &health, nil
}

// dialAddr turns a listen address into one a local client can reach.
func dialAddr(bind string) string {
	host, port, err := net.SplitHostPort(bind)
	if err != nil {
		return bind
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

func printStatus(out io.Writer, cfg *config.Config, r statusReport, colorize bool) {
	b := newStatusBlock(colorize)

	b.section("Environment")
	for _, check := range r.Checks {
		b.check(check.Name, check.Passed, false, check.Detail)
	}
	for _, dep := range r.Dependencies {
		detail := dep.Detail
		if dep.Available {
			detail = dep.Path
			if dep.Version != "" {
				detail = fmt.Sprintf("%s (%s)", dep.Path, dep.Version)
			}
		}
		b.check(dep.Name, dep.Available, dep.Optional, detail)
	}

	b.section("Store")
	backend := titleCase(storeBackend(r.Store))
	if r.StoreError != "" {
		b.line(backend, statusError, r.StoreError)
	} else {
		b.line(backend, statusOK, storeTarget(cfg))
	}

	b.section("Daemon")
	switch {
	case r.Daemon == nil:
		b.line("API", statusInfo, "Not reachable on "+cfg.Server.Bind)
	case r.Daemon.Status == httpapi.HealthOK:
		b.line("API", statusOK, "Healthy on "+cfg.Server.Bind)
	default:
		b.line("API", statusWarn, "Degraded on "+cfg.Server.Bind)
	}
	if r.Daemon != nil && r.Daemon.Jobs != nil {
		jobs := r.Daemon.Jobs
		b.line("Jobs", statusInfo,
			fmt.Sprintf("%d active, %d waiting, %d completed, %d failed", jobs.Active, jobs.Waiting, jobs.Completed, jobs.Failed))
	}

	_, _ = b.WriteTo(out)
}

func storeBackend(name string) string {
	if name == "" {
		return "sqlite"
	}
	return name
}

func storeTarget(cfg *config.Config) string {
	if cfg.Store.Backend == "mongo" {
		return cfg.Store.MongoDatabase
	}
	return cfg.DatabasePath()
}
