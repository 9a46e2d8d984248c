package preflight

import (
	"context"

	"vodpipe/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(_ context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Uploads directory", cfg.Paths.UploadsDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
	}
	if cfg.Paths.MinFreeMB > 0 {
		results = append(results, CheckFreeSpace("Uploads free space", cfg.Paths.UploadsDir, uint64(cfg.Paths.MinFreeMB)<<20))
	}
	return results
}

// Failed returns the subset of results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
