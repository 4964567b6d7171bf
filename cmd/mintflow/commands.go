package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dukex/mintflow/pkg/models"
	"github.com/dukex/mintflow/pkg/services"
	cli "github.com/urfave/cli/v3"
)

func (a *app) preMintCommand() *cli.Command {
	return &cli.Command{
		Name:      "premint",
		Usage:     "Create a session and prepare its keys and custodial address",
		ArgsUsage: "[session-id]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "creator", Usage: "Identity of the token creator"},
			&cli.StringFlag{Name: "ticker", Usage: "Token ticker (1-5 letters or digits)"},
			&cli.StringFlag{Name: "name", Usage: "Token name"},
			&cli.StringFlag{Name: "description", Usage: "Token description"},
			&cli.StringFlag{Name: "series-number", Usage: "Series number (non-numeric values mean 0)"},
			&cli.Uint64Flag{Name: "quantity", Usage: "Number of tokens to mint", Value: 1},
			&cli.StringFlag{Name: "asset-reference", Usage: "IPFS hash or URI of the artwork"},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			return a.run(ctx, command, func(ctx context.Context, e env) error {
				var (
					response *services.SessionResponse
					err      error
				)

				if id := command.Args().First(); id != "" {
					response, err = e.minting.PreMint(ctx, id)
				} else {
					response, err = e.minting.CreateSession(ctx, services.CreateSessionRequest{
						Creator: command.String("creator"),
						Token: models.TokenMetadata{
							Ticker:         command.String("ticker"),
							Name:           command.String("name"),
							Description:    command.String("description"),
							SeriesNumber:   models.ParseSeriesNumber(command.String("series-number")),
							Quantity:       command.Uint64("quantity"),
							AssetReference: command.String("asset-reference"),
						},
					})
				}

				if err != nil {
					return err
				}

				_, _ = fmt.Fprintf(e.out, "Session:  %s\n", response.Session.ID)

				if response.Funding != nil {
					_, _ = fmt.Fprintf(e.out, "Send at least %s ADA to:\n%s\n",
						formatADA(response.Funding.MinimumLovelace), response.Funding.Address)
				}

				return nil
			})
		},
	}
}

func (a *app) mintCommand() *cli.Command {
	return &cli.Command{
		Name:      "mint",
		Usage:     "Build, sign and submit the mint transaction, then wait for confirmation",
		ArgsUsage: "<session-id>",
		Action: func(ctx context.Context, command *cli.Command) error {
			id, err := requireArg(command, "session-id")
			if err != nil {
				return err
			}

			return a.run(ctx, command, func(ctx context.Context, e env) error {
				session, err := e.minting.Process(ctx, id)
				if err != nil {
					return err
				}

				_, _ = fmt.Fprintf(e.out, "Minted %d %s in transaction %s\n",
					session.Token.Quantity, session.Token.Ticker, session.FinalTxID)

				return nil
			})
		},
	}
}

func (a *app) resumeCommand() *cli.Command {
	return &cli.Command{
		Name:      "resume",
		Usage:     "Continue an interrupted mint without resubmitting",
		ArgsUsage: "<session-id>",
		Action: func(ctx context.Context, command *cli.Command) error {
			id, err := requireArg(command, "session-id")
			if err != nil {
				return err
			}

			return a.run(ctx, command, func(ctx context.Context, e env) error {
				session, err := e.runtime.Engine.Resume(ctx, id)
				if err != nil {
					return err
				}

				_, _ = fmt.Fprintf(e.out, "Session %s is %s (tx %s)\n", session.ID, session.State(), session.FinalTxID)

				return nil
			})
		},
	}
}

func (a *app) statusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show a session",
		ArgsUsage: "<session-id>",
		Action: func(ctx context.Context, command *cli.Command) error {
			id, err := requireArg(command, "session-id")
			if err != nil {
				return err
			}

			return a.run(ctx, command, func(ctx context.Context, e env) error {
				response, err := e.minting.Get(ctx, id)
				if err != nil {
					return err
				}

				return writeJSON(e.out, response)
			})
		},
	}
}

func (a *app) sessionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "List sessions",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "status", Usage: "Only list sessions in this status"},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			return a.run(ctx, command, func(ctx context.Context, e env) error {
				sessions, err := e.minting.List(ctx, models.SessionStatus(command.String("status")))
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
				_, _ = fmt.Fprintln(w, "ID\tTICKER\tSTATUS\tSTATE\tTX")

				for _, session := range sessions {
					_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
						session.ID, session.Token.Ticker, session.Status, session.State(), session.FinalTxID)
				}

				return w.Flush()
			})
		},
	}
}

func (a *app) utxoCommand() *cli.Command {
	return &cli.Command{
		Name:      "utxo",
		Usage:     "List the unspent outputs at an address",
		ArgsUsage: "<address>",
		Action: func(ctx context.Context, command *cli.Command) error {
			address, err := requireArg(command, "address")
			if err != nil {
				return err
			}

			return a.run(ctx, command, func(ctx context.Context, e env) error {
				utxos, err := e.minting.UTXOs(ctx, address)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
				_, _ = fmt.Fprintln(w, "TX\tINDEX\tLOVELACE\tASSETS")

				for _, utxo := range utxos {
					_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", utxo.TxID, utxo.Index, utxo.Lovelace, utxo.Assets)
				}

				return w.Flush()
			})
		},
	}
}

func (a *app) txCommand() *cli.Command {
	return &cli.Command{
		Name:      "tx",
		Usage:     "Show the inputs and outputs of a transaction",
		ArgsUsage: "<tx-hash>",
		Action: func(ctx context.Context, command *cli.Command) error {
			hash, err := requireArg(command, "tx-hash")
			if err != nil {
				return err
			}

			return a.run(ctx, command, func(ctx context.Context, e env) error {
				tx, err := e.minting.Transaction(ctx, hash)
				if err != nil {
					return err
				}

				return writeJSON(e.out, tx)
			})
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	return encoder.Encode(v)
}

func formatADA(lovelace uint64) string {
	return fmt.Sprintf("%d.%06d", lovelace/1_000_000, lovelace%1_000_000)
}
