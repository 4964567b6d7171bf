// Package sweeper periodically resumes confirmation polling for submitted
// sessions whose poller is gone, e.g. after a worker restart.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// ErrAlreadyStarted is returned by Start on a running sweeper.
var ErrAlreadyStarted = errors.New("sweeper already started")

// ResumeFunc starts polling for every orphaned session and reports how many
// it started.
type ResumeFunc func(ctx context.Context) (int, error)

type Sweeper struct {
	schedule string
	resume   ResumeFunc
	logger   *slog.Logger

	mutex  sync.Mutex
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a sweeper running resume on a standard cron schedule
// ("@every 1m", "*/5 * * * *").
func New(schedule string, resume ResumeFunc, logger *slog.Logger) (*Sweeper, error) {
	_, err := cron.ParseStandard(schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule '%s': %w", schedule, err)
	}

	return &Sweeper{
		schedule: schedule,
		resume:   resume,
		logger:   logger.With("module", "sweeper"),
	}, nil
}

// Start runs one sweep right away and then schedules the rest. The context
// bounds every poller started by the sweeps.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.cron != nil {
		return ErrAlreadyStarted
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	cronLogger := Logger{logger: s.logger}
	s.cron = cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(
			cron.SkipIfStillRunning(cronLogger),
			cron.Recover(cronLogger),
		),
	)

	_, err := s.cron.AddFunc(s.schedule, s.Sweep)
	if err != nil {
		s.cancel()
		s.cron = nil

		return fmt.Errorf("failed to schedule sweeper: %w", err)
	}

	go s.Sweep()

	s.cron.Start()
	s.logger.InfoContext(ctx, "Sweeper started", "schedule", s.schedule)

	return nil
}

// Sweep resumes orphaned sessions once.
func (s *Sweeper) Sweep() {
	s.mutex.Lock()
	ctx := s.ctx
	s.mutex.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	started, err := s.resume(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to resume submitted sessions", "error", err)

		return
	}

	if started > 0 {
		s.logger.InfoContext(ctx, "Resumed confirmation polling", "sessions", started)
	}
}

// Stop cancels running pollers and waits for a running sweep to return.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mutex.Lock()
	c, cancel := s.cron, s.cancel
	s.cron = nil
	s.mutex.Unlock()

	if c == nil {
		return nil
	}

	cancel()

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Stopped sweeper")

	return nil
}

// Logger adapts slog to the cron logger interface.
type Logger struct {
	logger *slog.Logger
}

func (l Logger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l Logger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
