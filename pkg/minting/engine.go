// Package minting implements the token minting workflow: a pre-mint phase that
// prepares keys and the custodial address, and a mint phase that builds,
// signs, submits and confirms the mint transaction. Every step is gated by a
// persisted completion flag so an interrupted workflow resumes where it
// stopped.
package minting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/mintflow/pkg/artifacts"
	"github.com/dukex/mintflow/pkg/ledger"
	"github.com/dukex/mintflow/pkg/locker"
	"github.com/dukex/mintflow/pkg/models"
	"github.com/dukex/mintflow/pkg/otelhelper"
	"github.com/dukex/mintflow/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ReturnAddressResolver finds the address that funded a transaction.
type ReturnAddressResolver interface {
	FundingSource(ctx context.Context, txID string) (string, error)
}

// Dependencies are the collaborators of the engine.
type Dependencies struct {
	Ledger   *ledger.Client
	Store    persistence.SessionStore
	Layout   *artifacts.Layout
	Resolver ReturnAddressResolver
	Locker   locker.Locker
	Tracer   trace.Tracer
	Logger   *slog.Logger
}

// Engine drives minting sessions.
type Engine struct {
	ledger   *ledger.Client
	store    persistence.SessionStore
	layout   *artifacts.Layout
	resolver ReturnAddressResolver
	locker   locker.Locker
	tracer   trace.Tracer
	logger   *slog.Logger
	poller   *Poller
	config   Config
	now      func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an engine. A nil Locker defaults to an in-process one and
// a nil Tracer to a no-op tracer.
func NewEngine(deps Dependencies, config Config, opts ...Option) *Engine {
	if deps.Locker == nil {
		deps.Locker = locker.NewMemory()
	}

	if deps.Tracer == nil {
		deps.Tracer = otelhelper.NewNoopTracer()
	}

	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	logger := deps.Logger.With("module", "minting")

	engine := &Engine{
		ledger:   deps.Ledger,
		store:    deps.Store,
		layout:   deps.Layout,
		resolver: deps.Resolver,
		locker:   deps.Locker,
		tracer:   deps.Tracer,
		logger:   logger,
		config:   config,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(engine)
	}

	engine.poller = NewPoller(deps.Ledger, config.PollInterval, logger, WithPollerClock(engine.now))

	return engine
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.config
}

// FundingInstructions tells the creator where to send funds and how much.
type FundingInstructions struct {
	Address         string `json:"address"`
	MinimumLovelace uint64 `json:"minimum_lovelace"`
}

// FundingInstructions returns the funding instructions of a prepared session.
func (e *Engine) FundingInstructions(session *models.Session) (FundingInstructions, error) {
	if !session.PreMintComplete() {
		return FundingInstructions{}, ErrPreMintIncomplete
	}

	return FundingInstructions{
		Address:         session.CustodialAddress,
		MinimumLovelace: e.config.MinFunding,
	}, nil
}

func sessionLockKey(id string) string {
	return "session:" + id
}

func pollLockKey(id string) string {
	return "poll:" + id
}

func (e *Engine) lock(ctx context.Context, key string) (func(), error) {
	release, err := e.locker.Acquire(ctx, key)
	if errors.Is(err, locker.ErrLocked) {
		return nil, ErrSessionBusy
	}

	if err != nil {
		return nil, fmt.Errorf("failed to lock session: %w", err)
	}

	return release, nil
}

// lockWithRetry waits for the session lock, checking every poll interval.
func (e *Engine) lockWithRetry(ctx context.Context, key string) (func(), error) {
	for {
		release, err := e.lock(ctx, key)
		if !errors.Is(err, ErrSessionBusy) {
			return release, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.config.PollInterval):
		}
	}
}

// runStep executes one traced step. Failures are wrapped in a StepError and,
// unless expected, noted on the session.
func (e *Engine) runStep(ctx context.Context, session *models.Session, step models.Step, fn func(ctx context.Context) error) error {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "minting."+string(step),
		attribute.String(otelhelper.SessionIDKey, session.ID),
		attribute.String(otelhelper.StepKey, string(step)),
	)
	defer span.End()

	logger := e.logger.With("session_id", session.ID, "step", step)
	logger.DebugContext(ctx, "Running step")

	err := fn(ctx)
	if err == nil {
		return nil
	}

	otelhelper.SetError(span, err, attribute.String(otelhelper.StepKey, string(step)))
	logger.WarnContext(ctx, "Step failed", "error", err)

	if recordable(err) {
		session.RecordFailure(step, err)

		saveErr := e.store.Update(ctx, session)
		if saveErr != nil {
			logger.ErrorContext(ctx, "Failed to record step failure", "error", saveErr)
		}
	}

	return &StepError{SessionID: session.ID, Step: step, Err: err}
}

// save persists session after a successful step.
func (e *Engine) save(ctx context.Context, session *models.Session) error {
	if session.FailedStep != "" {
		session.ClearFailure()
	}

	err := e.store.Update(ctx, session)
	if err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}

	return nil
}

func (e *Engine) load(ctx context.Context, id string) (*models.Session, error) {
	session, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, &StepError{SessionID: id, Step: models.StepSession, Err: err}
	}

	return session, nil
}

// Resume continues a session from its last completed step: a submitted
// session goes straight to confirmation, anything else re-enters the mint
// phase.
func (e *Engine) Resume(ctx context.Context, id string) (*models.Session, error) {
	session, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}

	switch {
	case session.FinalTxID != "":
		return session, nil
	case session.Status == models.SessionStatusExpired:
		return session, &StepError{SessionID: id, Step: models.StepConfirmation, Err: ErrConfirmationExpired}
	case session.AwaitingConfirmation():
		e.logger.InfoContext(ctx, "Resuming confirmation of submitted session", "session_id", id)

		return e.AwaitConfirmation(ctx, id)
	default:
		return e.Mint(ctx, id)
	}
}
