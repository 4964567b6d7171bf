package cmd

import (
	"context"
	"log/slog"

	"github.com/dukex/mintflow/pkg/config"
	"github.com/dukex/mintflow/pkg/locker"
)

// NewLocker creates the session locker named by url: "memory" for a single
// process, a redis:// URL when several processes share the sessions.
//
// nolint:ireturn
func NewLocker(ctx context.Context, url string, logger *slog.Logger) (locker.Locker, error) {
	if url == "" || url == config.LockerMemory {
		return locker.NewMemory(), nil
	}

	redisLocker, err := locker.NewRedis(ctx, url, locker.DefaultTTL, logger)
	if err != nil {
		return nil, err
	}

	return redisLocker, nil
}
