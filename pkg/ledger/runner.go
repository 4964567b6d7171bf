// Package ledger drives the external cardano-cli binary. It runs one
// subprocess per command, applies the per-command success contract and parses
// the fixed output formats. It keeps no state of its own.
package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

// DefaultTimeout bounds a single ledger client invocation.
const DefaultTimeout = 2 * time.Minute

// Command is one invocation of the ledger client.
type Command struct {
	Name CommandName
	Args []string
}

// Result holds what the ledger client produced.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes ledger client commands. Implementations block until the
// command finishes or ctx is done.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner runs the ledger client as a local subprocess.
type ExecRunner struct {
	binary  string
	workDir string
	timeout time.Duration
	logger  *slog.Logger
}

// NewExecRunner creates a runner for the binary at the given path.
func NewExecRunner(binary, workDir string, timeout time.Duration, logger *slog.Logger) *ExecRunner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &ExecRunner{
		binary:  binary,
		workDir: workDir,
		timeout: timeout,
		logger:  logger.With("module", "ledger_runner"),
	}
}

// Run executes the command and captures its output. A non-nil error is only
// returned when the process could not be started or was killed by the
// timeout; exit codes are reported in the result.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer

	process := exec.CommandContext(ctx, r.binary, cmd.Args...)
	process.Dir = r.workDir
	process.Stdout = &stdout
	process.Stderr = &stderr

	started := time.Now()
	err := process.Run()

	result := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	r.logger.DebugContext(ctx, "Ledger command finished",
		"command", cmd.Name,
		"duration", time.Since(started),
	)

	if ctx.Err() != nil {
		return result, fmt.Errorf("ledger command %s aborted: %w", cmd.Name, ctx.Err())
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()

		return result, nil
	}

	if err != nil {
		return result, fmt.Errorf("failed to run ledger command %s: %w", cmd.Name, err)
	}

	return result, nil
}
