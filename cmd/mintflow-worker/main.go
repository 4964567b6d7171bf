package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/mintflow/pkg/cmd"
	"github.com/dukex/mintflow/pkg/config"
	"github.com/dukex/mintflow/pkg/log"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func main() {
	flags := append(config.Flags(), &cli.StringFlag{
		Name:    "worker-id",
		Aliases: []string{"id"},
		Usage:   "Custom worker ID (auto-generated if not provided)",
		Value:   "",
		Sources: cli.EnvVars("WORKER_ID"),
	})

	command := &cli.Command{
		Name:                  "mintflow-worker",
		EnableShellCompletion: true,
		Usage:                 "Start workers that mint requested sessions",
		Flags:                 flags,
		Action: func(ctx context.Context, command *cli.Command) error {
			cfg, err := config.FromCommand(command)
			if err != nil {
				return err
			}

			log.Setup(cfg.LogLevel)

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("mintflow-worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing mintflow worker")

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := cmd.NewRuntime(ctx, cfg, "mintflow-worker", logger)
			if err != nil {
				return err
			}
			defer rt.Close(context.Background())

			eventBus, err := cmd.NewEventBus(cfg.EventBus, cfg.KafkaBrokers, "mintflow-worker", logger)
			if err != nil {
				return err
			}

			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			worker, err := NewWorkerManager(workerID, rt.Minting(eventBus), eventBus, cfg.SweepSchedule, logger)
			if err != nil {
				return err
			}

			err = worker.Start(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start worker", "error", err)

				return err
			}

			<-ctx.Done()
			logger.InfoContext(ctx, "Shutting down worker...")

			worker.Stop()

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
