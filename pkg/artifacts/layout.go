// Package artifacts names and manages the on-disk files produced while
// minting. Every path is derived from the session id and the artifact kind so
// a rerun after a crash finds the files of the previous attempt.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// ProtocolParamsFile is the name of the process-wide protocol parameters file.
const ProtocolParamsFile = "protocol.json"

// ErrInvalidSessionID is returned for ids that would escape the work directory.
var ErrInvalidSessionID = errors.New("invalid session id for artifact path")

// KeyPair is the location of a verification and signing key.
type KeyPair struct {
	VKey string
	SKey string
}

// Exists reports whether both key files are present.
func (k KeyPair) Exists() bool {
	return Exists(k.VKey) && Exists(k.SKey)
}

// SessionPaths lists every artifact of one session.
type SessionPaths struct {
	Dir          string
	Stake        KeyPair
	Payment      KeyPair
	Policy       KeyPair
	Address      string
	PolicyScript string
	Metadata     string
	RawTx        string
	SignedTx     string
}

// Layout resolves artifact paths below a work directory.
type Layout struct {
	root   string
	logger *slog.Logger
	group  singleflight.Group
}

// NewLayout creates a layout rooted at workDir.
func NewLayout(workDir string, logger *slog.Logger) *Layout {
	return &Layout{
		root:   workDir,
		logger: logger.With("module", "artifacts"),
	}
}

// Root returns the work directory.
func (l *Layout) Root() string {
	return l.root
}

// ProtocolParams returns the path of the shared protocol parameters file.
func (l *Layout) ProtocolParams() string {
	return filepath.Join(l.root, ProtocolParamsFile)
}

// Session returns the artifact paths of a session.
func (l *Layout) Session(id string) (SessionPaths, error) {
	if id == "" || id != filepath.Base(id) || id == "." || id == ".." {
		return SessionPaths{}, fmt.Errorf("%q: %w", id, ErrInvalidSessionID)
	}

	dir := filepath.Join(l.root, "sessions", id)
	pair := func(name string) KeyPair {
		return KeyPair{
			VKey: filepath.Join(dir, name+".vkey"),
			SKey: filepath.Join(dir, name+".skey"),
		}
	}

	return SessionPaths{
		Dir:          dir,
		Stake:        pair("stake"),
		Payment:      pair("payment"),
		Policy:       pair("policy"),
		Address:      filepath.Join(dir, "payment.addr"),
		PolicyScript: filepath.Join(dir, "policy.script"),
		Metadata:     filepath.Join(dir, "metadata.json"),
		RawTx:        filepath.Join(dir, "mint.raw"),
		SignedTx:     filepath.Join(dir, "mint.signed"),
	}, nil
}

// EnsureSessionDir creates the session directory if needed.
func (l *Layout) EnsureSessionDir(id string) (SessionPaths, error) {
	paths, err := l.Session(id)
	if err != nil {
		return SessionPaths{}, err
	}

	err = os.MkdirAll(paths.Dir, 0o700)
	if err != nil {
		return SessionPaths{}, fmt.Errorf("failed to create session directory: %w", err)
	}

	return paths, nil
}

// EnsureProtocolParams makes sure the shared protocol parameters file exists,
// calling export to produce it on first use. Concurrent callers share one
// export, and the file is published with an exclusive link so it never
// appears half written.
func (l *Layout) EnsureProtocolParams(ctx context.Context, export func(ctx context.Context, outFile string) error) (string, error) {
	target := l.ProtocolParams()
	if Exists(target) {
		return target, nil
	}

	_, err, _ := l.group.Do(target, func() (any, error) {
		if Exists(target) {
			return nil, nil
		}

		err := os.MkdirAll(l.root, 0o700)
		if err != nil {
			return nil, fmt.Errorf("failed to create work directory: %w", err)
		}

		tmp := fmt.Sprintf("%s.%s.tmp", target, uuid.NewString())
		defer os.Remove(tmp)

		err = export(ctx, tmp)
		if err != nil {
			return nil, err
		}

		err = os.Link(tmp, target)
		if err != nil && !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("failed to publish protocol parameters: %w", err)
		}

		l.logger.InfoContext(ctx, "Protocol parameters exported", "path", target)

		return nil, nil
	})
	if err != nil {
		return "", err
	}

	return target, nil
}

// WriteFile writes data to path through a temporary file and a rename.
func WriteFile(path string, data []byte) error {
	tmp := fmt.Sprintf("%s.%s.tmp", path, uuid.NewString())

	err := os.WriteFile(tmp, data, 0o600)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}

	err = os.Rename(tmp, path)
	if err != nil {
		_ = os.Remove(tmp)

		return fmt.Errorf("failed to move %s into place: %w", filepath.Base(path), err)
	}

	return nil
}

// ReadString returns the content of a text artifact.
func ReadString(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}

	return string(data), nil
}

// Exists reports whether path is an existing regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)

	return err == nil && info.Mode().IsRegular()
}

// Remove deletes the given files, ignoring those that do not exist.
func Remove(paths ...string) {
	for _, path := range paths {
		_ = os.Remove(path)
	}
}
