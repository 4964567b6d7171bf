package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/dukex/mintflow/pkg/cmd"
	"github.com/dukex/mintflow/pkg/config"
	"github.com/dukex/mintflow/pkg/eventbus"
	"github.com/dukex/mintflow/pkg/events"
	"github.com/dukex/mintflow/pkg/log"
	"github.com/dukex/mintflow/pkg/services"
	"github.com/dukex/mintflow/pkg/sweeper"
	cli "github.com/urfave/cli/v3"
)

const (
	defaultPort     = 9091
	shutdownTimeout = 30 * time.Second
)

func main() {
	flags := append(config.Flags(), &cli.IntFlag{
		Name:    "port",
		Aliases: []string{"p"},
		Usage:   "Port to run the API server on",
		Value:   defaultPort,
		Sources: cli.EnvVars("PORT"),
	})

	command := &cli.Command{
		Name:                  "mintflow-api",
		Usage:                 "Create token sessions and request mints",
		EnableShellCompletion: true,
		Flags:                 flags,
		Action: func(ctx context.Context, command *cli.Command) error {
			cfg, err := config.FromCommand(command)
			if err != nil {
				return err
			}

			log.Setup(cfg.LogLevel)

			logger := log.WithModule("api")

			logger.InfoContext(ctx, "Initializing mintflow API")

			rt, err := cmd.NewRuntime(ctx, cfg, "mintflow-api", logger)
			if err != nil {
				return err
			}
			defer rt.Close(context.Background())

			eventBus, err := cmd.NewEventBus(cfg.EventBus, cfg.KafkaBrokers, "mintflow-api", logger)
			if err != nil {
				return err
			}

			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			minting := rt.Minting(eventBus)

			// A GoChannel bus only reaches this process, so the API mints itself
			// and resumes its own submitted sessions.
			if cfg.EventBus == config.EventBusGoChannel {
				sw, err := serveInProcess(ctx, minting, eventBus, cfg.SweepSchedule, logger)
				if err != nil {
					return err
				}

				defer func() {
					stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
					defer cancel()

					err := sw.Stop(stopCtx)
					if err != nil {
						logger.ErrorContext(ctx, "Failed to stop sweeper", "error", err)
					}

					minting.Wait()
				}()
			}

			err = NewAPI(logger, minting).Start(command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

// serveInProcess handles mint requests in this process and starts a sweeper
// that resumes polling for sessions submitted before a restart.
func serveInProcess(
	ctx context.Context,
	minting *services.Minting,
	bus eventbus.EventSubscriber,
	sweepSchedule string,
	logger *slog.Logger,
) (*sweeper.Sweeper, error) {
	sw, err := sweeper.New(sweepSchedule, minting.ResumeSubmitted, logger)
	if err != nil {
		return nil, err
	}

	err = bus.Handle(events.MintRequestedEvent, func(_ context.Context, event any) error {
		if requested, ok := event.(*events.MintRequested); ok {
			minting.ProcessAsync(ctx, requested.SessionID)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	err = bus.Subscribe(ctx)
	if err != nil {
		return nil, err
	}

	err = sw.Start(ctx)
	if err != nil {
		return nil, err
	}

	return sw, nil
}
