package minting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/dukex/mintflow/pkg/ledger"
	"github.com/dukex/mintflow/pkg/models"
	"github.com/dukex/mintflow/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
)

// Poller waits for the minted output to appear at the payout address.
type Poller struct {
	ledger   *ledger.Client
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// PollerOption customizes a Poller.
type PollerOption func(*Poller)

// WithPollerClock replaces the wall clock used for deadlines.
func WithPollerClock(now func() time.Time) PollerOption {
	return func(p *Poller) {
		p.now = now
	}
}

// NewPoller creates a poller checking every interval.
func NewPoller(client *ledger.Client, interval time.Duration, logger *slog.Logger, opts ...PollerOption) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	p := &Poller{
		ledger:   client,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Watch describes what the poller looks for.
type Watch struct {
	Address  string
	Baseline []string
	PolicyID string
	Deadline time.Time
}

// matches reports whether utxo is new and carries the minted asset.
func (w Watch) matches(utxo ledger.UTXO) bool {
	if slices.Contains(w.Baseline, utxo.Ref()) {
		return false
	}

	return w.PolicyID == "" || strings.Contains(utxo.Assets, w.PolicyID)
}

// Wait queries the address until a matching output appears, ctx is done or
// the deadline passes. Query failures are logged and retried. A zero
// deadline waits until ctx is done.
func (p *Poller) Wait(ctx context.Context, watch Watch) (ledger.UTXO, int, error) {
	attempt := 0

	for {
		attempt++

		utxos, err := p.ledger.QueryUTXOs(ctx, watch.Address)
		if err != nil {
			if ctx.Err() != nil {
				return ledger.UTXO{}, attempt, ctx.Err()
			}

			p.logger.WarnContext(ctx, "Confirmation query failed", "address", watch.Address, "attempt", attempt, "error", err)
		}

		for _, utxo := range utxos {
			if watch.matches(utxo) {
				return utxo, attempt, nil
			}
		}

		if !watch.Deadline.IsZero() && !p.now().Before(watch.Deadline) {
			return ledger.UTXO{}, attempt, fmt.Errorf("deadline %s passed after %d checks: %w",
				watch.Deadline.Format(time.RFC3339), attempt, ErrConfirmationExpired)
		}

		timer := time.NewTimer(p.interval)

		select {
		case <-ctx.Done():
			timer.Stop()

			return ledger.UTXO{}, attempt, ctx.Err()
		case <-timer.C:
		}
	}
}

// AwaitConfirmation polls a submitted session until the minted output shows
// up, then records the transaction id. No session lock is held while
// polling. Passing the deadline moves the session to the expired state.
func (e *Engine) AwaitConfirmation(ctx context.Context, id string) (*models.Session, error) {
	releasePoll, err := e.lock(ctx, pollLockKey(id))
	if err != nil {
		return nil, &StepError{SessionID: id, Step: models.StepConfirmation, Err: err}
	}
	defer releasePoll()

	session, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if session.FinalTxID != "" {
		return session, nil
	}

	if !session.Steps.Submitted {
		return session, &StepError{SessionID: id, Step: models.StepConfirmation, Err: ErrNotSubmitted}
	}

	if session.Status == models.SessionStatusExpired {
		return session, &StepError{SessionID: id, Step: models.StepConfirmation, Err: ErrConfirmationExpired}
	}

	watch := Watch{
		Address:  session.PayoutAddress,
		Baseline: session.ReturnBaseline,
		PolicyID: session.PolicyID,
	}

	if session.ConfirmDeadline != nil {
		watch.Deadline = *session.ConfirmDeadline
	} else if e.config.ConfirmTimeout > 0 {
		watch.Deadline = e.now().Add(e.config.ConfirmTimeout)
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "minting."+string(models.StepConfirmation),
		attribute.String(otelhelper.SessionIDKey, id),
		attribute.String(otelhelper.PolicyIDKey, session.PolicyID),
	)
	defer span.End()

	e.logger.InfoContext(ctx, "Waiting for confirmation",
		"session_id", id,
		"address", watch.Address,
		"deadline", watch.Deadline,
	)

	utxo, attempts, err := e.poller.Wait(ctx, watch)
	span.SetAttributes(attribute.Int(otelhelper.AttemptKey, attempts))

	if err != nil {
		otelhelper.SetError(span, err)

		if errors.Is(err, ErrConfirmationExpired) {
			return e.finish(ctx, id, func(s *models.Session) error {
				expireErr := s.Expire()
				if expireErr != nil {
					return expireErr
				}

				s.RecordFailure(models.StepConfirmation, err)

				return nil
			}, err)
		}

		return session, &StepError{SessionID: id, Step: models.StepConfirmation, Err: err}
	}

	span.SetAttributes(attribute.String(otelhelper.TxIDKey, utxo.TxID))

	return e.finish(ctx, id, func(s *models.Session) error {
		return s.Confirm(utxo.TxID)
	}, nil)
}

// finish applies a terminal transition under the session lock. outcome is
// returned wrapped as the step error when not nil.
func (e *Engine) finish(ctx context.Context, id string, apply func(*models.Session) error, outcome error) (*models.Session, error) {
	release, err := e.lockWithRetry(ctx, sessionLockKey(id))
	if err != nil {
		return nil, &StepError{SessionID: id, Step: models.StepConfirmation, Err: err}
	}
	defer release()

	session, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}

	err = apply(session)
	if err != nil {
		return session, &StepError{SessionID: id, Step: models.StepConfirmation, Err: err}
	}

	err = e.store.Update(ctx, session)
	if err != nil {
		return session, &StepError{SessionID: id, Step: models.StepConfirmation, Err: err}
	}

	if outcome != nil {
		e.logger.WarnContext(ctx, "Session expired without confirmation", "session_id", id)

		return session, &StepError{SessionID: id, Step: models.StepConfirmation, Err: outcome}
	}

	e.logger.InfoContext(ctx, "Mint confirmed", "session_id", id, "tx_id", session.FinalTxID)

	return session, nil
}
