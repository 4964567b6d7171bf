// Package persistence provides the session store abstraction used by the
// minting engine.
package persistence

import (
	"context"

	"github.com/dukex/mintflow/pkg/models"
)

// SessionStore keeps one durable record per minting session. Sessions are
// never deleted.
type SessionStore interface {
	// Create stores a new session. It fails with ErrSessionExists when the id
	// is taken.
	Create(ctx context.Context, session *models.Session) error

	// Get loads a session by id.
	Get(ctx context.Context, id string) (*models.Session, error)

	// Update persists session if the stored version equals session.Version,
	// then increments the version on both. Otherwise it fails with
	// ErrVersionConflict.
	Update(ctx context.Context, session *models.Session) error

	// ListByStatus returns the sessions in the given status, oldest first. An
	// empty status lists every session.
	ListByStatus(ctx context.Context, status models.SessionStatus) ([]*models.Session, error)

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
