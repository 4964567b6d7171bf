package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dukex/mintflow/pkg/eventbus"
	"github.com/dukex/mintflow/pkg/events"
	"github.com/dukex/mintflow/pkg/indexer"
	"github.com/dukex/mintflow/pkg/ledger"
	"github.com/dukex/mintflow/pkg/minting"
	"github.com/dukex/mintflow/pkg/models"
	"github.com/dukex/mintflow/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// TransactionLookup fetches transactions from the chain indexer.
type TransactionLookup interface {
	Transaction(ctx context.Context, hash string) (*indexer.Transaction, error)
}

// Minting exposes the minting workflow to the API, the CLI and the worker.
type Minting struct {
	engine    *minting.Engine
	store     persistence.SessionStore
	ledger    *ledger.Client
	indexer   TransactionLookup
	publisher eventbus.EventPublisher
	validate  *validator.Validate
	logger    *slog.Logger

	inflight sync.WaitGroup
}

// MintingDependencies are the collaborators of the minting service.
type MintingDependencies struct {
	Engine    *minting.Engine
	Store     persistence.SessionStore
	Ledger    *ledger.Client
	Indexer   TransactionLookup
	Publisher eventbus.EventPublisher
	Validate  *validator.Validate
	Logger    *slog.Logger
}

// NewMinting creates a new minting service.
func NewMinting(deps MintingDependencies) *Minting {
	if deps.Validate == nil {
		deps.Validate = validator.New(validator.WithRequiredStructEnabled())
	}

	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &Minting{
		engine:    deps.Engine,
		store:     deps.Store,
		ledger:    deps.Ledger,
		indexer:   deps.Indexer,
		publisher: deps.Publisher,
		validate:  deps.Validate,
		logger:    deps.Logger.With("module", "minting_service"),
	}
}

// HealthCheck checks the health of the session store.
func (m *Minting) HealthCheck(ctx context.Context) (string, bool) {
	if m.store == nil {
		return "Session store not initialized", false
	}

	err := m.store.HealthCheck(ctx)
	if err != nil {
		return "Session store is unhealthy: " + err.Error(), false
	}

	return "Session store is healthy", true
}

// CreateSessionRequest describes a new token issuance.
type CreateSessionRequest struct {
	Creator string               `json:"creator" validate:"required,max=128"`
	Token   models.TokenMetadata `json:"token"`
}

// SessionResponse is a session together with its funding instructions.
type SessionResponse struct {
	Session *models.Session               `json:"session"`
	Funding *minting.FundingInstructions `json:"funding,omitempty"`
}

// CreateSession validates the request, persists a new session and runs the
// pre-mint phase.
func (m *Minting) CreateSession(ctx context.Context, req CreateSessionRequest) (*SessionResponse, error) {
	req.Creator = strings.TrimSpace(req.Creator)
	req.Token = req.Token.Normalize()

	err := m.validate.Struct(req)
	if err != nil {
		return nil, NewValidationError("CreateSession", "invalid_token", err.Error(), ErrInvalidRequest)
	}

	err = req.Token.CheckByteLimits()
	if err != nil {
		return nil, NewValidationError("CreateSession", "invalid_token", err.Error(), ErrInvalidRequest)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}

	session, err := m.engine.PreMint(ctx, minting.PreMintRequest{
		SessionID: id.String(),
		Creator:   req.Creator,
		Token:     req.Token,
	})
	if err != nil {
		return nil, upstream(err)
	}

	return m.withFunding(session), nil
}

// PreMint re-runs the pre-mint phase of an existing session. Completed steps
// are skipped.
func (m *Minting) PreMint(ctx context.Context, id string) (*SessionResponse, error) {
	_, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	session, err := m.engine.PreMint(ctx, minting.PreMintRequest{SessionID: id})
	if err != nil {
		return nil, upstream(err)
	}

	return m.withFunding(session), nil
}

func (m *Minting) withFunding(session *models.Session) *SessionResponse {
	response := &SessionResponse{Session: session}

	instructions, err := m.engine.FundingInstructions(session)
	if err == nil {
		response.Funding = &instructions
	}

	return response
}

// Get returns a session by id.
func (m *Minting) Get(ctx context.Context, id string) (*SessionResponse, error) {
	session, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	return m.withFunding(session), nil
}

// List returns the sessions with the given status, or all sessions when
// status is empty.
func (m *Minting) List(ctx context.Context, status models.SessionStatus) ([]*models.Session, error) {
	switch status {
	case "", models.SessionStatusCreated, models.SessionStatusReady, models.SessionStatusSubmitted,
		models.SessionStatusConfirmed, models.SessionStatusExpired, models.SessionStatusStranded:
	default:
		return nil, NewValidationError("List", "invalid_status", "unknown status "+string(status), ErrInvalidStatus)
	}

	return m.store.ListByStatus(ctx, status)
}

// RequestMint checks that a session can be minted and hands it to a worker.
func (m *Minting) RequestMint(ctx context.Context, id, requestedBy string) (*events.MintRequested, error) {
	session, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if session.Steps.Submitted {
		return nil, fmt.Errorf("session %s: %w", id, minting.ErrAlreadyMinted)
	}

	if !session.PreMintComplete() {
		return nil, fmt.Errorf("session %s: %w", id, minting.ErrPreMintIncomplete)
	}

	if session.Status == models.SessionStatusStranded {
		return nil, fmt.Errorf("session %s: %w", id, minting.ErrWindowLapsed)
	}

	event := events.NewMintRequested(id, requestedBy)

	err = m.publisher.Publish(ctx, id, event)
	if err != nil {
		return nil, fmt.Errorf("failed to publish mint request: %w", err)
	}

	m.logger.InfoContext(ctx, "Mint requested", "session_id", id, "event_id", event.ID)

	return event, nil
}

// Process runs the mint phase of a session and publishes its outcome. It is
// the worker side of RequestMint.
func (m *Minting) Process(ctx context.Context, id string) (*models.Session, error) {
	session, err := m.engine.Submit(ctx, id)
	if err != nil {
		m.publishFailure(ctx, id, err)

		return session, err
	}

	m.publish(ctx, id, events.NewMintSubmitted(session))

	return m.await(ctx, id)
}

// ProcessAsync runs Process in the background. Wait blocks until it returns.
func (m *Minting) ProcessAsync(ctx context.Context, id string) {
	m.inflight.Add(1)

	go func() {
		defer m.inflight.Done()

		session, err := m.Process(ctx, id)
		if err != nil {
			m.logger.WarnContext(ctx, "Mint did not complete", "session_id", id, "error", err)

			return
		}

		m.logger.InfoContext(ctx, "Mint confirmed", "session_id", id, "tx_id", session.FinalTxID)
	}()
}

func (m *Minting) await(ctx context.Context, id string) (*models.Session, error) {
	session, err := m.engine.AwaitConfirmation(ctx, id)

	switch {
	case err == nil:
		m.publish(ctx, id, events.NewMintConfirmed(session))
	case errors.Is(err, minting.ErrConfirmationExpired) && session != nil:
		m.publish(ctx, id, events.NewMintExpired(session))
	case errors.Is(err, minting.ErrSessionBusy), errors.Is(err, context.Canceled):
	default:
		m.publishFailure(ctx, id, err)
	}

	return session, err
}

// ResumeSubmitted starts polling every submitted session that nobody is
// polling yet and returns how many were started.
func (m *Minting) ResumeSubmitted(ctx context.Context) (int, error) {
	sessions, err := m.store.ListByStatus(ctx, models.SessionStatusSubmitted)
	if err != nil {
		return 0, err
	}

	started := 0

	for _, session := range sessions {
		if !session.AwaitingConfirmation() {
			continue
		}

		started++

		m.inflight.Add(1)

		go func(id string) {
			defer m.inflight.Done()

			_, err := m.await(ctx, id)
			if errors.Is(err, minting.ErrSessionBusy) {
				m.logger.DebugContext(ctx, "Session already polled elsewhere", "session_id", id)
			}
		}(session.ID)
	}

	return started, nil
}

// Wait blocks until every background mint and poller returned.
func (m *Minting) Wait() {
	m.inflight.Wait()
}

func (m *Minting) publish(ctx context.Context, key string, event eventbus.Event) {
	if m.publisher == nil {
		return
	}

	err := m.publisher.Publish(ctx, key, event)
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to publish event", "event_type", event.GetType(), "session_id", key, "error", err)
	}
}

func (m *Minting) publishFailure(ctx context.Context, id string, err error) {
	step, _ := minting.FailedStep(err)

	m.publish(ctx, id, events.NewMintFailed(id, step, err, minting.IsRetryable(err)))
}

// UTXOs lists the unspent outputs at any address.
func (m *Minting) UTXOs(ctx context.Context, address string) ([]ledger.UTXO, error) {
	address = strings.TrimSpace(address)
	if address == "" || strings.ContainsAny(address, " \t\n") {
		return nil, NewValidationError("UTXOs", "invalid_address", "address is required", ErrInvalidAddress)
	}

	utxos, err := m.ledger.QueryUTXOs(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}

	return utxos, nil
}

// Transaction returns the inputs and outputs of a transaction.
func (m *Minting) Transaction(ctx context.Context, hash string) (*indexer.Transaction, error) {
	tx, err := m.indexer.Transaction(ctx, hash)
	if err == nil {
		return tx, nil
	}

	var statusErr *indexer.StatusError

	switch {
	case errors.Is(err, indexer.ErrInvalidTransactionID):
		return nil, NewValidationError("Transaction", "invalid_hash", err.Error(), ErrInvalidRequest)
	case errors.As(err, &statusErr) && statusErr.StatusCode == 404:
		return nil, fmt.Errorf("%s: %w", hash, ErrTransactionNotFound)
	default:
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
}

// upstream marks ledger and indexer failures so they render as gateway
// errors.
func upstream(err error) error {
	var cmdErr *ledger.CommandError
	if errors.As(err, &cmdErr) || errors.Is(err, minting.ErrIndexerUnavailable) {
		return fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}

	return err
}
