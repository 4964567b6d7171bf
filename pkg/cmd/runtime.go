package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dukex/mintflow/pkg/artifacts"
	"github.com/dukex/mintflow/pkg/config"
	"github.com/dukex/mintflow/pkg/eventbus"
	"github.com/dukex/mintflow/pkg/indexer"
	"github.com/dukex/mintflow/pkg/ledger"
	"github.com/dukex/mintflow/pkg/locker"
	"github.com/dukex/mintflow/pkg/minting"
	"github.com/dukex/mintflow/pkg/otelhelper"
	"github.com/dukex/mintflow/pkg/persistence"
	"github.com/dukex/mintflow/pkg/services"
	"go.opentelemetry.io/otel/trace"
)

// Runtime holds the collaborators shared by every binary.
type Runtime struct {
	Config  config.Config
	Store   persistence.SessionStore
	Locker  locker.Locker
	Ledger  *ledger.Client
	Indexer *indexer.Client
	Engine  *minting.Engine
	Tracer  trace.Tracer

	logger   *slog.Logger
	shutdown otelhelper.Shutdown
}

// RuntimeOption customizes a Runtime.
type RuntimeOption func(*runtimeOptions)

type runtimeOptions struct {
	runner ledger.Runner
}

// WithRunner replaces the subprocess ledger runner.
func WithRunner(runner ledger.Runner) RuntimeOption {
	return func(o *runtimeOptions) {
		o.runner = runner
	}
}

// NewRuntime opens the store, the locker and the tracer and builds the
// minting engine on top of them.
func NewRuntime(ctx context.Context, cfg config.Config, serviceName string, logger *slog.Logger, opts ...RuntimeOption) (*Runtime, error) {
	options := runtimeOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	err := os.MkdirAll(cfg.WorkDir, 0o700)
	if err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}

	if options.runner == nil {
		options.runner = ledger.NewExecRunner(cfg.LedgerCLI, cfg.WorkDir, cfg.LedgerTimeout, logger)
	}

	rt := &Runtime{Config: cfg, logger: logger}

	rt.Tracer, rt.shutdown, err = NewTracer(ctx, cfg.Tracing, serviceName)
	if err != nil {
		return nil, err
	}

	rt.Store, err = NewPersistence(ctx, logger, cfg.DatabaseURL)
	if err != nil {
		rt.Close(ctx)

		return nil, err
	}

	rt.Locker, err = NewLocker(ctx, cfg.Locker, logger)
	if err != nil {
		rt.Close(ctx)

		return nil, err
	}

	rt.Ledger = ledger.NewClient(options.runner, cfg.LedgerNetwork(), logger)
	rt.Indexer = indexer.NewClient(cfg.IndexerURL, cfg.IndexerProjectID, cfg.IndexerTimeout, logger)
	rt.Engine = minting.NewEngine(minting.Dependencies{
		Ledger:   rt.Ledger,
		Store:    rt.Store,
		Layout:   artifacts.NewLayout(cfg.WorkDir, logger),
		Resolver: rt.Indexer,
		Locker:   rt.Locker,
		Tracer:   rt.Tracer,
		Logger:   logger,
	}, cfg.Minting())

	return rt, nil
}

// Minting creates the minting service publishing to publisher.
func (rt *Runtime) Minting(publisher eventbus.EventPublisher) *services.Minting {
	return services.NewMinting(services.MintingDependencies{
		Engine:    rt.Engine,
		Store:     rt.Store,
		Ledger:    rt.Ledger,
		Indexer:   rt.Indexer,
		Publisher: publisher,
		Logger:    rt.logger,
	})
}

// Close releases everything NewRuntime opened.
func (rt *Runtime) Close(ctx context.Context) {
	var errs []error

	if rt.Locker != nil {
		errs = append(errs, rt.Locker.Close())
	}

	if rt.Store != nil {
		errs = append(errs, rt.Store.Close(ctx))
	}

	if rt.shutdown != nil {
		errs = append(errs, rt.shutdown(ctx))
	}

	err := errors.Join(errs...)
	if err != nil {
		rt.logger.ErrorContext(ctx, "Failed to close runtime", "error", err)
	}
}
