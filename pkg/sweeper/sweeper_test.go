package sweeper_test

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/mintflow/pkg/sweeper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestNew_InvalidSchedule(t *testing.T) {
	_, err := sweeper.New("every minute", func(context.Context) (int, error) { return 0, nil }, testLogger())
	require.Error(t, err)
}

func TestSweeper_SweepsOnStartAndSchedule(t *testing.T) {
	var calls atomic.Int32

	s, err := sweeper.New("@every 1s", func(context.Context) (int, error) {
		calls.Add(1)

		return 1, nil
	}, testLogger())
	require.NoError(t, err)

	require.NoError(t, s.Start(t.Context()))
	require.ErrorIs(t, s.Start(t.Context()), sweeper.ErrAlreadyStarted)

	assert.Eventually(t, func() bool { return calls.Load() >= 2 }, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, s.Stop(t.Context()))
	require.NoError(t, s.Stop(t.Context()))
}

func TestSweeper_StopCancelsPollers(t *testing.T) {
	cancelled := make(chan struct{})

	s, err := sweeper.New("@every 1h", func(ctx context.Context) (int, error) {
		go func() {
			<-ctx.Done()
			close(cancelled)
		}()

		return 1, nil
	}, testLogger())
	require.NoError(t, err)

	require.NoError(t, s.Start(t.Context()))

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, s.Stop(t.Context()))

	select {
	case <-cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("poller context was not cancelled")
	}
}

func TestSweeper_SweepLogsErrors(t *testing.T) {
	var calls atomic.Int32

	s, err := sweeper.New("@every 1h", func(context.Context) (int, error) {
		calls.Add(1)

		return 0, errors.New("store unavailable")
	}, testLogger())
	require.NoError(t, err)

	s.Sweep()
	assert.Equal(t, int32(1), calls.Load())
}
