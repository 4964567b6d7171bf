package file

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dukex/mintflow/pkg/models"
	"github.com/dukex/mintflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(id string) *models.Session {
	return models.NewSession(id, "alice", models.TokenMetadata{Ticker: "doge", Name: "DogeNFT", SeriesNumber: 1})
}

func TestNewPersistence(t *testing.T) {
	// Test with regular path
	fp := NewPersistence("/tmp/test")
	assert.Equal(t, "/tmp/test", fp.root)

	// Test with file:// prefix
	fp = NewPersistence("file:///tmp/test")
	assert.Equal(t, "/tmp/test", fp.root)
}

func TestPersistence_Close(t *testing.T) {
	persistence := NewPersistence("./test-data")
	err := persistence.Close(t.Context())
	assert.NoError(t, err)
}

func TestPersistence_HealthCheck(t *testing.T) {
	assert.NoError(t, NewPersistence(t.TempDir()).HealthCheck(t.Context()))
	assert.Error(t, NewPersistence(filepath.Join(t.TempDir(), "missing")).HealthCheck(t.Context()))
}

func TestPersistence_CreateAndGet(t *testing.T) {
	testDir := t.TempDir()
	store := NewPersistence(testDir)

	session := newSession("s1")
	require.NoError(t, store.Create(t.Context(), session))

	assert.Equal(t, int64(1), session.Version)
	assert.False(t, session.CreatedAt.IsZero())
	assert.FileExists(t, filepath.Join(testDir, "sessions", "s1.json"))

	loaded, err := store.Get(t.Context(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "DOGE", loaded.Token.Ticker)
	assert.Equal(t, int64(1), loaded.Version)
	assert.Equal(t, models.SessionStatusCreated, loaded.Status)
}

func TestPersistence_CreateDuplicate(t *testing.T) {
	store := NewPersistence(t.TempDir())

	require.NoError(t, store.Create(t.Context(), newSession("s1")))

	err := store.Create(t.Context(), newSession("s1"))
	assert.ErrorIs(t, err, persistence.ErrSessionExists)
}

func TestPersistence_GetMissing(t *testing.T) {
	store := NewPersistence(t.TempDir())

	_, err := store.Get(t.Context(), "missing")
	assert.True(t, persistence.IsSessionNotFound(err))

	_, err = store.Get(t.Context(), "../escape")
	assert.ErrorIs(t, err, persistence.ErrInvalidSession)
}

func TestPersistence_UpdateVersioning(t *testing.T) {
	store := NewPersistence(t.TempDir())

	session := newSession("s1")
	require.NoError(t, store.Create(t.Context(), session))

	stale, err := store.Get(t.Context(), "s1")
	require.NoError(t, err)

	session.MarkStakeKey()
	require.NoError(t, store.Update(t.Context(), session))
	assert.Equal(t, int64(2), session.Version)

	stale.MarkPaymentKey()
	err = store.Update(t.Context(), stale)
	require.ErrorIs(t, err, persistence.ErrVersionConflict)

	loaded, err := store.Get(t.Context(), "s1")
	require.NoError(t, err)
	assert.True(t, loaded.Steps.StakeKey)
	assert.False(t, loaded.Steps.PaymentKey)
}

func TestPersistence_ConcurrentUpdatesOnlyOneWins(t *testing.T) {
	store := NewPersistence(t.TempDir())
	require.NoError(t, store.Create(t.Context(), newSession("s1")))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)

	for range 5 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			session, err := store.Get(t.Context(), "s1")
			if !assert.NoError(t, err) {
				return
			}

			session.MarkStakeKey()

			if store.Update(t.Context(), session) == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	assert.GreaterOrEqual(t, successes, 1)

	loaded, err := store.Get(t.Context(), "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(1+successes), loaded.Version)
}

func TestPersistence_UpdateMissing(t *testing.T) {
	store := NewPersistence(t.TempDir())

	err := store.Update(t.Context(), newSession("missing"))
	assert.ErrorIs(t, err, persistence.ErrSessionNotFound)
}

func TestPersistence_ListByStatus(t *testing.T) {
	store := NewPersistence(t.TempDir())

	empty, err := store.ListByStatus(t.Context(), models.SessionStatusCreated)
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, store.Create(t.Context(), newSession("a")))
	time.Sleep(time.Millisecond)
	require.NoError(t, store.Create(t.Context(), newSession("b")))

	ready := newSession("c")
	ready.MarkStakeKey()
	ready.MarkPaymentKey()
	require.NoError(t, ready.SetCustodialAddress("addr"))
	ready.MarkProtocolParams()
	ready.MarkPolicyKey()
	require.NoError(t, store.Create(t.Context(), ready))

	created, err := store.ListByStatus(t.Context(), models.SessionStatusCreated)
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, "a", created[0].ID)
	assert.Equal(t, "b", created[1].ID)

	all, err := store.ListByStatus(t.Context(), "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
