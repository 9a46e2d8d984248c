package services

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// CommandResult captures the outcome of an external command.
type CommandResult struct {
	Stdout []byte
	Stderr []byte
	// ExitCode is the process exit status, or -1 when the process never ran
	// or was killed by a signal.
	ExitCode int
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) (CommandResult, error)
}

// CommandExecutor runs binaries with os/exec, buffering stdout and stderr separately.
type CommandExecutor struct{}

func (CommandExecutor) Run(ctx context.Context, binary string, args []string) (CommandResult, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := CommandResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), ExitCode: 0}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, errors.Join(err, ctxErr)
		}
		return result, err
	}
	return result, nil
}
