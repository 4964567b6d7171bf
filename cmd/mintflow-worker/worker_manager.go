package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/mintflow/pkg/eventbus"
	"github.com/dukex/mintflow/pkg/events"
	"github.com/dukex/mintflow/pkg/services"
	"github.com/dukex/mintflow/pkg/sweeper"
)

const shutdownTimeout = 30 * time.Second

type WorkerManager struct {
	id       string
	logger   *slog.Logger
	service  *services.Minting
	eventBus eventbus.EventBus
	sweeper  *sweeper.Sweeper
	ctx      context.Context
}

func NewWorkerManager(
	id string,
	service *services.Minting,
	eventBus eventbus.EventBus,
	sweepSchedule string,
	logger *slog.Logger,
) (*WorkerManager, error) {
	logger = logger.With("module", "mintflow-worker", "worker_id", id)

	sw, err := sweeper.New(sweepSchedule, service.ResumeSubmitted, logger)
	if err != nil {
		return nil, err
	}

	return &WorkerManager{
		id:       id,
		logger:   logger,
		service:  service,
		eventBus: eventBus,
		sweeper:  sw,
	}, nil
}

// Start subscribes to mint requests and starts the sweeper. Mints run on ctx,
// so cancelling it stops every session in flight.
func (w *WorkerManager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager")

	w.ctx = ctx

	err := w.eventBus.Handle(events.MintRequestedEvent, w.handleMintRequested)
	if err != nil {
		return err
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	err = w.sweeper.Start(ctx)
	if err != nil {
		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	return nil
}

// Stop halts the sweeper and waits for every mint in flight.
func (w *WorkerManager) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := w.sweeper.Stop(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to stop sweeper", "error", err)
	}

	w.service.Wait()

	w.logger.InfoContext(ctx, "Worker stopped")
}

func (w *WorkerManager) handleMintRequested(ctx context.Context, event any) error {
	requested, ok := event.(*events.MintRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for MintRequested")

		return nil
	}

	w.logger.InfoContext(ctx, "Processing mint request",
		"session_id", requested.SessionID,
		"event_id", requested.ID,
		"requested_by", requested.RequestedBy,
	)

	w.service.ProcessAsync(w.ctx, requested.SessionID)

	return nil
}
