package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/mintflow/pkg/models"
	"github.com/dukex/mintflow/pkg/persistence"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

const sessionColumns = `
			id
		  , creator_identity
		  , status
		  , token
		  , steps
		  , custodial_address
		  , payout_address
		  , policy_key_hash
		  , policy_id
		  , funding_tx_id
		  , funding_output_index
		  , funding_amount
		  , observed_slot
		  , slot_margin
		  , expiry_slot
		  , fee
		  , return_amount
		  , return_baseline
		  , confirm_deadline
		  , final_tx_id
		  , failed_step
		  , last_error
		  , version
		  , created_at
		  , updated_at`

// SessionRepository handles session-related database operations.
type SessionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSessionRepository creates a new session repository.
func NewSessionRepository(db *sql.DB, logger *slog.Logger) *SessionRepository {
	return &SessionRepository{db: db, logger: logger}
}

// Create stores a new session.
func (p *Persistence) Create(ctx context.Context, session *models.Session) error {
	return p.sessions.Create(ctx, session)
}

// Get loads a session by id.
func (p *Persistence) Get(ctx context.Context, id string) (*models.Session, error) {
	return p.sessions.GetByID(ctx, id)
}

// Update persists the session when its version is current.
func (p *Persistence) Update(ctx context.Context, session *models.Session) error {
	return p.sessions.Update(ctx, session)
}

// ListByStatus returns all sessions in status, oldest first.
func (p *Persistence) ListByStatus(ctx context.Context, status models.SessionStatus) ([]*models.Session, error) {
	return p.sessions.ListByStatus(ctx, status)
}

// Create inserts a session with version 1.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	now := time.Now().UTC()

	values, err := sessionValues(session)
	if err != nil {
		return persistence.NewSessionError("Create", session.ID, err)
	}

	query := `
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, 1, $23, $23)
	`

	args := append(values, now)

	_, err = r.db.ExecContext(ctx, query, args...)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return persistence.NewSessionError("Create", session.ID, persistence.ErrSessionExists)
		}

		return persistence.NewSessionError("Create", session.ID, fmt.Errorf("failed to insert session: %w", err))
	}

	session.Version = 1
	session.CreatedAt = now
	session.UpdatedAt = now

	return nil
}

// GetByID loads one session.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

	session, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewSessionError("Get", id, persistence.ErrSessionNotFound)
		}

		return nil, persistence.NewSessionError("Get", id, fmt.Errorf("failed to scan session: %w", err))
	}

	return session, nil
}

// Update writes every mutable column if the stored version matches.
func (r *SessionRepository) Update(ctx context.Context, session *models.Session) error {
	now := time.Now().UTC()

	values, err := sessionValues(session)
	if err != nil {
		return persistence.NewSessionError("Update", session.ID, err)
	}

	query := `
		UPDATE sessions SET
			creator_identity = $2
		  , status = $3
		  , token = $4
		  , steps = $5
		  , custodial_address = $6
		  , payout_address = $7
		  , policy_key_hash = $8
		  , policy_id = $9
		  , funding_tx_id = $10
		  , funding_output_index = $11
		  , funding_amount = $12
		  , observed_slot = $13
		  , slot_margin = $14
		  , expiry_slot = $15
		  , fee = $16
		  , return_amount = $17
		  , return_baseline = $18
		  , confirm_deadline = $19
		  , final_tx_id = $20
		  , failed_step = $21
		  , last_error = $22
		  , updated_at = $23
		  , version = version + 1
		WHERE id = $1 AND version = $24
	`

	args := append(values, now, session.Version)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return persistence.NewSessionError("Update", session.ID, fmt.Errorf("failed to update session: %w", err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewSessionError("Update", session.ID, fmt.Errorf("failed to read affected rows: %w", err))
	}

	if affected == 0 {
		var exists bool

		err = r.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)", session.ID).Scan(&exists)
		if err != nil {
			return persistence.NewSessionError("Update", session.ID, fmt.Errorf("failed to check session: %w", err))
		}

		if !exists {
			return persistence.NewSessionError("Update", session.ID, persistence.ErrSessionNotFound)
		}

		return persistence.NewSessionError("Update", session.ID, persistence.ErrVersionConflict)
	}

	session.Version++
	session.UpdatedAt = now

	return nil
}

// ListByStatus returns the sessions with the given status, or all of them
// for an empty status.
func (r *SessionRepository) ListByStatus(ctx context.Context, status models.SessionStatus) ([]*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE ($1::text = '' OR status = $1::text) ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}

	defer func(ctx context.Context, r *SessionRepository) {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}(ctx, r)

	sessions := make([]*models.Session, 0)

	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}

		sessions = append(sessions, session)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}

// sessionValues returns the values of columns $1 to $22.
func sessionValues(s *models.Session) ([]any, error) {
	token, err := json.Marshal(s.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal token: %w", err)
	}

	steps, err := json.Marshal(s.Steps)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal steps: %w", err)
	}

	var (
		fundingTxID  sql.NullString
		fundingIndex sql.NullInt64
		fundingValue sql.NullInt64
		observed     sql.NullInt64
		margin       sql.NullInt64
		expiry       sql.NullInt64
		deadline     sql.NullTime
	)

	if s.Funding != nil {
		fundingTxID = sql.NullString{String: s.Funding.TxID, Valid: true}
		fundingIndex = sql.NullInt64{Int64: int64(s.Funding.OutputIndex), Valid: true}
		fundingValue = sql.NullInt64{Int64: int64(s.Funding.Amount), Valid: true}
	}

	if s.Window != nil {
		observed = sql.NullInt64{Int64: int64(s.Window.ObservedSlot), Valid: true}
		margin = sql.NullInt64{Int64: int64(s.Window.SlotMargin), Valid: true}
		expiry = sql.NullInt64{Int64: int64(s.Window.ExpirySlot), Valid: true}
	}

	if s.ConfirmDeadline != nil {
		deadline = sql.NullTime{Time: *s.ConfirmDeadline, Valid: true}
	}

	baseline := s.ReturnBaseline
	if baseline == nil {
		baseline = []string{}
	}

	return []any{
		s.ID,
		s.CreatorIdentity,
		string(s.Status),
		token,
		steps,
		nullString(s.CustodialAddress),
		nullString(s.PayoutAddress),
		nullString(s.PolicyKeyHash),
		nullString(s.PolicyID),
		fundingTxID,
		fundingIndex,
		fundingValue,
		observed,
		margin,
		expiry,
		int64(s.Fee),
		int64(s.ReturnAmount),
		pq.Array(baseline),
		deadline,
		nullString(s.FinalTxID),
		nullString(string(s.FailedStep)),
		nullString(s.LastError),
	}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*models.Session, error) {
	var (
		session      models.Session
		status       string
		token        []byte
		steps        []byte
		custodial    sql.NullString
		payout       sql.NullString
		keyHash      sql.NullString
		policyID     sql.NullString
		fundingTxID  sql.NullString
		fundingIndex sql.NullInt64
		fundingValue sql.NullInt64
		observed     sql.NullInt64
		margin       sql.NullInt64
		expiry       sql.NullInt64
		fee          int64
		returned     int64
		baseline     pq.StringArray
		deadline     sql.NullTime
		finalTxID    sql.NullString
		failedStep   sql.NullString
		lastError    sql.NullString
	)

	err := row.Scan(
		&session.ID,
		&session.CreatorIdentity,
		&status,
		&token,
		&steps,
		&custodial,
		&payout,
		&keyHash,
		&policyID,
		&fundingTxID,
		&fundingIndex,
		&fundingValue,
		&observed,
		&margin,
		&expiry,
		&fee,
		&returned,
		&baseline,
		&deadline,
		&finalTxID,
		&failedStep,
		&lastError,
		&session.Version,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(token, &session.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}

	err = json.Unmarshal(steps, &session.Steps)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal steps: %w", err)
	}

	session.Status = models.SessionStatus(status)
	session.CustodialAddress = custodial.String
	session.PayoutAddress = payout.String
	session.PolicyKeyHash = keyHash.String
	session.PolicyID = policyID.String
	session.Fee = uint64(fee)
	session.ReturnAmount = uint64(returned)
	session.FinalTxID = finalTxID.String
	session.FailedStep = models.Step(failedStep.String)
	session.LastError = lastError.String

	if len(baseline) > 0 {
		session.ReturnBaseline = []string(baseline)
	}

	if fundingTxID.Valid {
		session.Funding = &models.Funding{
			TxID:        fundingTxID.String,
			OutputIndex: uint32(fundingIndex.Int64),
			Amount:      uint64(fundingValue.Int64),
		}
	}

	if expiry.Valid {
		session.Window = &models.TimingWindow{
			ObservedSlot: uint64(observed.Int64),
			SlotMargin:   uint64(margin.Int64),
			ExpirySlot:   uint64(expiry.Int64),
		}
	}

	if deadline.Valid {
		d := deadline.Time.UTC()
		session.ConfirmDeadline = &d
	}

	session.CreatedAt = session.CreatedAt.UTC()
	session.UpdatedAt = session.UpdatedAt.UTC()

	return &session, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
