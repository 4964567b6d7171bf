// Package file provides a file-based session store. Each session is kept as a
// JSON document below <root>/sessions.
package file

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/dukex/mintflow/pkg/persistence"
)

// Persistence implements persistence.SessionStore using the file system.
// Version checks are serialized through a process-wide mutex, so a directory
// must not be shared by several processes.
type Persistence struct {
	root     string
	mu       sync.Mutex
	sessions *SessionRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:     cleanRoot,
		sessions: NewSessionRepository(cleanRoot),
	}
}

var _ persistence.SessionStore = (*Persistence)(nil)

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}
