package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dukex/mintflow/pkg/artifacts"
	"github.com/dukex/mintflow/pkg/models"
	"github.com/dukex/mintflow/pkg/persistence"
)

// SessionRepository reads and writes session documents.
type SessionRepository struct {
	root string
}

// NewSessionRepository creates a new session repository.
func NewSessionRepository(root string) *SessionRepository {
	return &SessionRepository{root: root}
}

func (sr *SessionRepository) dir() string {
	return filepath.Join(sr.root, "sessions")
}

func (sr *SessionRepository) path(id string) (string, error) {
	if id == "" || id != filepath.Base(id) || strings.HasPrefix(id, ".") {
		return "", persistence.ErrInvalidSession
	}

	return filepath.Join(sr.dir(), id+".json"), nil
}

// Load reads a session document.
func (sr *SessionRepository) Load(id string) (*models.Session, error) {
	filePath, err := sr.path(id)
	if err != nil {
		return nil, err
	}

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.ErrSessionNotFound
		}

		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var session models.Session

	err = json.Unmarshal(body, &session)
	if err != nil {
		return nil, fmt.Errorf("failed to decode session file: %w", err)
	}

	return &session, nil
}

// Store writes a session document atomically.
func (sr *SessionRepository) Store(session *models.Session) error {
	filePath, err := sr.path(session.ID)
	if err != nil {
		return err
	}

	err = os.MkdirAll(sr.dir(), 0o750)
	if err != nil {
		return fmt.Errorf("failed to create sessions directory: %w", err)
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	return artifacts.WriteFile(filePath, data)
}

// IDs lists the ids of all stored sessions.
func (sr *SessionRepository) IDs() ([]string, error) {
	jsonFiles, err := fs.Glob(os.DirFS(sr.dir()), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list session files: %w", err)
	}

	ids := make([]string, 0, len(jsonFiles))
	for _, file := range jsonFiles {
		ids = append(ids, strings.TrimSuffix(file, ".json"))
	}

	return ids, nil
}

// Create stores a new session.
func (fp *Persistence) Create(_ context.Context, session *models.Session) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	_, err := fp.sessions.Load(session.ID)
	if err == nil {
		return persistence.NewSessionError("Create", session.ID, persistence.ErrSessionExists)
	}

	if !errors.Is(err, persistence.ErrSessionNotFound) {
		return persistence.NewSessionError("Create", session.ID, err)
	}

	now := time.Now().UTC()
	stored := session.Clone()
	stored.Version = 1
	stored.CreatedAt = now
	stored.UpdatedAt = now

	err = fp.sessions.Store(stored)
	if err != nil {
		return persistence.NewSessionError("Create", session.ID, err)
	}

	session.Version = stored.Version
	session.CreatedAt = now
	session.UpdatedAt = now

	return nil
}

// Get loads a session by id.
func (fp *Persistence) Get(_ context.Context, id string) (*models.Session, error) {
	session, err := fp.sessions.Load(id)
	if err != nil {
		return nil, persistence.NewSessionError("Get", id, err)
	}

	return session, nil
}

// Update persists the session when its version is current.
func (fp *Persistence) Update(_ context.Context, session *models.Session) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	current, err := fp.sessions.Load(session.ID)
	if err != nil {
		return persistence.NewSessionError("Update", session.ID, err)
	}

	if current.Version != session.Version {
		return persistence.NewSessionError("Update", session.ID, persistence.ErrVersionConflict)
	}

	stored := session.Clone()
	stored.Version++
	stored.CreatedAt = current.CreatedAt
	stored.UpdatedAt = time.Now().UTC()

	err = fp.sessions.Store(stored)
	if err != nil {
		return persistence.NewSessionError("Update", session.ID, err)
	}

	session.Version = stored.Version
	session.UpdatedAt = stored.UpdatedAt

	return nil
}

// ListByStatus returns all sessions in status, oldest first.
func (fp *Persistence) ListByStatus(_ context.Context, status models.SessionStatus) ([]*models.Session, error) {
	ids, err := fp.sessions.IDs()
	if err != nil {
		return nil, err
	}

	sessions := make([]*models.Session, 0, len(ids))

	for _, id := range ids {
		session, err := fp.sessions.Load(id)
		if err != nil {
			return nil, fmt.Errorf("failed to load session %s: %w", id, err)
		}

		if status == "" || session.Status == status {
			sessions = append(sessions, session)
		}
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})

	return sessions, nil
}
