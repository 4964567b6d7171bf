package minting

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dukex/mintflow/pkg/artifacts"
	"github.com/dukex/mintflow/pkg/ledger"
	"github.com/dukex/mintflow/pkg/locker"
	"github.com/dukex/mintflow/pkg/models"
	"github.com/dukex/mintflow/pkg/persistence/file"
	"github.com/dukex/mintflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSessionID     = "session-1"
	testPayoutAddress = "addr_test1payout"
	testFundingTx     = "4e3a6e7fdcb0d0efa17bf79c13aed2b4cb9baf37fb1aa2e39553d5bd720c5c99"
	testMintTx        = "9f1c2e7fdcb0d0efa17bf79c13aed2b4cb9baf37fb1aa2e39553d5bd720c5c11"
)

type stubResolver struct {
	address string
	err     error
	calls   int
}

func (r *stubResolver) FundingSource(_ context.Context, _ string) (string, error) {
	r.calls++

	return r.address, r.err
}

type fixture struct {
	fake     *testutil.FakeLedger
	store    *file.Persistence
	layout   *artifacts.Layout
	resolver *stubResolver
	locker   *locker.Memory
	engine   *Engine
}

func testConfig() Config {
	config := DefaultConfig()
	config.PollInterval = 5 * time.Millisecond
	config.ConfirmTimeout = time.Second

	return config
}

func newFixture(t *testing.T, config Config, opts ...Option) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	fake := testutil.NewFakeLedger()
	layout := artifacts.NewLayout(t.TempDir(), logger)
	store := file.NewPersistence(t.TempDir())
	resolver := &stubResolver{address: testPayoutAddress}
	memory := locker.NewMemory()

	engine := NewEngine(Dependencies{
		Ledger:   ledger.NewClient(fake, ledger.Network{TestnetMagic: 1097911063}, logger),
		Store:    store,
		Layout:   layout,
		Resolver: resolver,
		Locker:   memory,
		Logger:   logger,
	}, config, opts...)

	return &fixture{
		fake:     fake,
		store:    store,
		layout:   layout,
		resolver: resolver,
		locker:   memory,
		engine:   engine,
	}
}

func dogeToken() models.TokenMetadata {
	return models.TokenMetadata{
		Ticker:         "doge",
		Name:           "DogeNFT",
		Description:    "Much wow",
		SeriesNumber:   1,
		AssetReference: "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG",
	}
}

func (f *fixture) premint(t *testing.T) *models.Session {
	t.Helper()

	session, err := f.engine.PreMint(t.Context(), PreMintRequest{
		SessionID: testSessionID,
		Creator:   "alice",
		Token:     dogeToken(),
	})
	require.NoError(t, err)
	require.True(t, session.PreMintComplete())

	return session
}

func (f *fixture) fund(lovelace uint64) {
	f.fake.SetUTXOs(f.fake.Address, ledger.UTXO{TxID: testFundingTx, Index: 0, Lovelace: lovelace})
}

// confirmOnSubmit makes the minted output appear at the payout address.
func (f *fixture) confirmOnSubmit() {
	f.fake.OnSubmit = func(fl *testutil.FakeLedger) {
		fl.AddUTXO(testPayoutAddress, ledger.UTXO{
			TxID:     testMintTx,
			Index:    0,
			Lovelace: 5_319_900,
			Assets:   "1 " + fl.PolicyID + ".DogeNFT",
		})
	}
}

func (f *fixture) paths(t *testing.T) artifacts.SessionPaths {
	t.Helper()

	paths, err := f.layout.Session(testSessionID)
	require.NoError(t, err)

	return paths
}

func (f *fixture) reload(t *testing.T) *models.Session {
	t.Helper()

	session, err := f.store.Get(t.Context(), testSessionID)
	require.NoError(t, err)

	return session
}

func TestNewEngine_Defaults(t *testing.T) {
	engine := NewEngine(Dependencies{}, DefaultConfig())

	assert.NotNil(t, engine.locker)
	assert.NotNil(t, engine.tracer)
	assert.NotNil(t, engine.logger)
	assert.NotNil(t, engine.poller)
	assert.Equal(t, DefaultPollInterval, engine.poller.interval)
	assert.Equal(t, DefaultConfig(), engine.Config())
}

func TestEngine_FundingInstructions(t *testing.T) {
	f := newFixture(t, testConfig())

	_, err := f.engine.FundingInstructions(models.NewSession("x", "alice", dogeToken()))
	require.ErrorIs(t, err, ErrPreMintIncomplete)

	session := f.premint(t)

	instructions, err := f.engine.FundingInstructions(session)
	require.NoError(t, err)
	assert.Equal(t, f.fake.Address, instructions.Address)
	assert.Equal(t, DefaultMinFunding, instructions.MinimumLovelace)
}

func TestEngine_SessionBusy(t *testing.T) {
	f := newFixture(t, testConfig())
	f.premint(t)

	release, err := f.locker.Acquire(t.Context(), sessionLockKey(testSessionID))
	require.NoError(t, err)
	defer release()

	calls := len(f.fake.Calls())

	_, err = f.engine.Submit(t.Context(), testSessionID)
	require.ErrorIs(t, err, ErrSessionBusy)
	assert.True(t, IsRetryable(err))

	_, err = f.engine.PreMint(t.Context(), PreMintRequest{SessionID: testSessionID})
	require.ErrorIs(t, err, ErrSessionBusy)

	assert.Len(t, f.fake.Calls(), calls)
}

func TestEngine_Resume(t *testing.T) {
	f := newFixture(t, testConfig())
	f.premint(t)
	f.fund(5_500_000)

	// Submitted but not yet visible at the payout address.
	session, err := f.engine.Submit(t.Context(), testSessionID)
	require.NoError(t, err)
	require.True(t, session.AwaitingConfirmation())
	require.Equal(t, 1, f.fake.CallCount(ledger.CmdSubmit))

	f.confirmOnSubmit()
	f.fake.OnSubmit(f.fake)

	session, err = f.engine.Resume(t.Context(), testSessionID)
	require.NoError(t, err)
	assert.Equal(t, testMintTx, session.FinalTxID)
	assert.Equal(t, models.SessionStatusConfirmed, session.Status)
	assert.Equal(t, 1, f.fake.CallCount(ledger.CmdSubmit), "resume must never resubmit")
	assert.Equal(t, 1, f.fake.CallCount(ledger.CmdSign))

	// A confirmed session resumes to itself.
	calls := len(f.fake.Calls())

	session, err = f.engine.Resume(t.Context(), testSessionID)
	require.NoError(t, err)
	assert.Equal(t, testMintTx, session.FinalTxID)
	assert.Len(t, f.fake.Calls(), calls)
}

func TestEngine_ResumeUnsubmittedRunsMint(t *testing.T) {
	f := newFixture(t, testConfig())
	f.premint(t)
	f.fund(5_500_000)
	f.confirmOnSubmit()

	session, err := f.engine.Resume(t.Context(), testSessionID)
	require.NoError(t, err)
	assert.Equal(t, testMintTx, session.FinalTxID)
}

func TestEngine_ResumeMissingSession(t *testing.T) {
	f := newFixture(t, testConfig())

	_, err := f.engine.Resume(t.Context(), "missing")
	require.Error(t, err)
	assert.True(t, IsPrecondition(err))

	step, ok := FailedStep(err)
	require.True(t, ok)
	assert.Equal(t, models.StepSession, step)
}

func TestEngine_RecordsUnexpectedFailures(t *testing.T) {
	f := newFixture(t, testConfig())
	f.fake.RespondWith(ledger.CmdPolicyKeyGen, func(ledger.Command) (ledger.Result, error) {
		return ledger.Result{}, errors.New("exec: broken pipe")
	})

	_, err := f.engine.PreMint(t.Context(), PreMintRequest{SessionID: testSessionID, Creator: "alice", Token: dogeToken()})
	require.Error(t, err)

	step, ok := FailedStep(err)
	require.True(t, ok)
	assert.Equal(t, models.StepPolicyKey, step)

	session := f.reload(t)
	assert.Equal(t, models.StepPolicyKey, session.FailedStep)
	assert.Contains(t, session.LastError, "broken pipe")
	assert.False(t, session.Steps.PolicyKey)
	assert.NoFileExists(t, f.paths(t).Policy.VKey)

	f.fake.Reset(ledger.CmdPolicyKeyGen)

	session, err = f.engine.PreMint(t.Context(), PreMintRequest{SessionID: testSessionID})
	require.NoError(t, err)
	assert.Empty(t, session.FailedStep)
	assert.Empty(t, session.LastError)
	assert.Equal(t, 1, f.fake.CallCount(ledger.CmdStakeKeyGen))
}
