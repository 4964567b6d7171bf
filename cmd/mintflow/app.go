package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dukex/mintflow/pkg/cmd"
	"github.com/dukex/mintflow/pkg/config"
	"github.com/dukex/mintflow/pkg/log"
	"github.com/dukex/mintflow/pkg/services"
	cli "github.com/urfave/cli/v3"
)

// ErrMissingArgument is returned when a positional argument is absent.
var ErrMissingArgument = errors.New("missing argument")

// NewApp builds the command tree. Options are applied to the runtime of
// every sub-command.
func NewApp(opts ...cmd.RuntimeOption) *cli.Command {
	app := &app{options: opts}

	return &cli.Command{
		Name:                  "mintflow",
		Usage:                 "Mint native tokens from the command line",
		EnableShellCompletion: true,
		Flags:                 config.Flags(),
		Commands: []*cli.Command{
			app.preMintCommand(),
			app.mintCommand(),
			app.resumeCommand(),
			app.statusCommand(),
			app.sessionsCommand(),
			app.utxoCommand(),
			app.txCommand(),
		},
	}
}

type app struct {
	options []cmd.RuntimeOption
}

type env struct {
	runtime *cmd.Runtime
	minting *services.Minting
	out     io.Writer
}

// run builds the runtime from the flags, hands it to fn and closes it.
func (a *app) run(ctx context.Context, command *cli.Command, fn func(ctx context.Context, e env) error) error {
	cfg, err := config.FromCommand(command)
	if err != nil {
		return err
	}

	log.Setup(cfg.LogLevel)

	logger := log.WithModule("mintflow").With("command", command.Name)

	rt, err := cmd.NewRuntime(ctx, cfg, "mintflow", logger, a.options...)
	if err != nil {
		return err
	}
	defer rt.Close(context.WithoutCancel(ctx))

	return fn(ctx, env{
		runtime: rt,
		minting: rt.Minting(nil),
		out:     command.Root().Writer,
	})
}

func requireArg(command *cli.Command, name string) (string, error) {
	value := command.Args().First()
	if value == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingArgument, name)
	}

	return value, nil
}
