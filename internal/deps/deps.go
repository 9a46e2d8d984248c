// Package deps reports whether the external binaries vodpipe shells out to
// are installed, and which versions were found.
package deps

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"vodpipe/internal/services"
)

const versionTimeout = 3 * time.Second

// Requirement defines an external dependency vodpipe relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Path        string `json:"path,omitempty"`
	Version     string `json:"version,omitempty"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		resolved, err := exec.LookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Path = resolved
		status.Available = true
		results = append(results, status)
	}
	return results
}

// DetectVersions fills Version for each available status by running
// "<binary> -version". Failures leave Version empty.
func DetectVersions(ctx context.Context, exec services.Executor, statuses []Status) []Status {
	if exec == nil {
		exec = services.CommandExecutor{}
	}
	out := make([]Status, len(statuses))
	copy(out, statuses)
	for i := range out {
		if !out[i].Available {
			continue
		}
		vctx, cancel := context.WithTimeout(ctx, versionTimeout)
		res, err := exec.Run(vctx, out[i].Path, []string{"-version"})
		cancel()
		if err != nil {
			continue
		}
		out[i].Version = ParseVersion(string(res.Stdout))
	}
	return out
}

// ParseVersion extracts the version token from ffmpeg-style banners such as
// "ffmpeg version 6.1.1-3ubuntu5 Copyright ...".
func ParseVersion(banner string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(banner), "\n")
	fields := strings.Fields(line)
	for i, f := range fields {
		if f == "version" && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return ""
}

// RequiredMissing returns the names of non-optional dependencies that are unavailable.
func RequiredMissing(statuses []Status) []string {
	var missing []string
	for _, s := range statuses {
		if !s.Optional && !s.Available {
			missing = append(missing, s.Name)
		}
	}
	return missing
}
