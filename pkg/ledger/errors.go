package ledger

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNonZeroExit indicates the ledger client exited with a failure status.
	ErrNonZeroExit = errors.New("ledger client exited with non-zero status")

	// ErrUnexpectedOutput indicates output that breaks the command contract,
	// such as stdout on a command whose success convention is silence.
	ErrUnexpectedOutput = errors.New("ledger client produced unexpected output")

	// ErrMalformedOutput indicates output that could not be parsed.
	ErrMalformedOutput = errors.New("ledger client output could not be parsed")

	// ErrUnknownCommand indicates a command without a contract entry.
	ErrUnknownCommand = errors.New("unknown ledger command")
)

// CommandError wraps a failed ledger client invocation with its captured output.
type CommandError struct {
	Command  CommandName
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	detail := strings.TrimSpace(e.Stderr)
	if detail == "" {
		detail = strings.TrimSpace(e.Stdout)
	}

	if detail != "" {
		return fmt.Sprintf("%s (exit %d): %v: %s", e.Command, e.ExitCode, e.Err, detail)
	}

	return fmt.Sprintf("%s (exit %d): %v", e.Command, e.ExitCode, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// IsUnexpectedOutput reports whether err is a contract violation on output.
func IsUnexpectedOutput(err error) bool {
	return errors.Is(err, ErrUnexpectedOutput)
}
