package locker_test

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/mintflow/pkg/locker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func testExclusive(t *testing.T, l locker.Locker) {
	t.Helper()

	release, err := l.Acquire(t.Context(), "s1")
	require.NoError(t, err)

	_, err = l.Acquire(t.Context(), "s1")
	require.ErrorIs(t, err, locker.ErrLocked)

	other, err := l.Acquire(t.Context(), "s2")
	require.NoError(t, err)
	other()

	release()
	release()

	again, err := l.Acquire(t.Context(), "s1")
	require.NoError(t, err)
	again()
}

func TestMemory(t *testing.T) {
	t.Parallel()

	l := locker.NewMemory()
	testExclusive(t, l)

	release, err := l.Acquire(t.Context(), "s3")
	require.NoError(t, err)
	assert.True(t, l.Held("s3"))

	release()
	assert.False(t, l.Held("s3"))
	assert.NoError(t, l.Close())
}

func TestRedis(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping Redis integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	url := fmt.Sprintf("redis://%s:%s/0", host, port.Port())

	first, err := locker.NewRedis(ctx, url, time.Second, slog.Default())
	require.NoError(t, err)

	defer first.Close()

	second, err := locker.NewRedis(ctx, url, time.Second, slog.Default())
	require.NoError(t, err)

	defer second.Close()

	testExclusive(t, first)

	release, err := first.Acquire(ctx, "shared")
	require.NoError(t, err)

	// Outlive the TTL to check the background refresh.
	time.Sleep(1500 * time.Millisecond)

	_, err = second.Acquire(ctx, "shared")
	require.ErrorIs(t, err, locker.ErrLocked)

	release()

	release, err = second.Acquire(ctx, "shared")
	require.NoError(t, err)
	release()
}
