package ledger_test

import (
	"context"
	"log/slog"
	"os/exec"
	"testing"
	"time"

	"github.com/dukex/mintflow/pkg/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newShellRunner(t *testing.T, timeout time.Duration) *ledger.ExecRunner {
	t.Helper()

	shell, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}

	return ledger.NewExecRunner(shell, t.TempDir(), timeout, slog.Default())
}

func TestExecRunner_CapturesOutput(t *testing.T) {
	t.Parallel()

	runner := newShellRunner(t, time.Second)

	result, err := runner.Run(t.Context(), ledger.Command{
		Name: ledger.CmdQueryTip,
		Args: []string{"-c", `echo '{"slot": 10}'; echo warn >&2`},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "{\"slot\": 10}\n", result.Stdout)
	assert.Equal(t, "warn\n", result.Stderr)
}

func TestExecRunner_ReportsExitCode(t *testing.T) {
	t.Parallel()

	runner := newShellRunner(t, time.Second)

	result, err := runner.Run(t.Context(), ledger.Command{
		Name: ledger.CmdSubmit,
		Args: []string{"-c", "echo failed >&2; exit 3"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.ExitCode)

	err = ledger.Check(ledger.CmdSubmit, result)
	assert.ErrorIs(t, err, ledger.ErrNonZeroExit)
}

func TestExecRunner_Timeout(t *testing.T) {
	t.Parallel()

	runner := newShellRunner(t, 50*time.Millisecond)

	_, err := runner.Run(t.Context(), ledger.Command{
		Name: ledger.CmdQueryTip,
		Args: []string{"-c", "sleep 5"},
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExecRunner_MissingBinary(t *testing.T) {
	t.Parallel()

	runner := ledger.NewExecRunner("/nonexistent/cardano-cli", t.TempDir(), time.Second, slog.Default())

	_, err := runner.Run(t.Context(), ledger.Command{Name: ledger.CmdQueryTip})
	assert.Error(t, err)
}
