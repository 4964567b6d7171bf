package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dukex/mintflow/pkg/cmd"
	"github.com/dukex/mintflow/pkg/config"
	"github.com/dukex/mintflow/pkg/eventbus"
	"github.com/dukex/mintflow/pkg/ledger"
	"github.com/dukex/mintflow/pkg/models"
	"github.com/dukex/mintflow/pkg/services"
	"github.com/dukex/mintflow/pkg/testutil"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const payoutAddress = "addr_test1payout"

type apiFixture struct {
	app     *fiber.App
	fake    *testutil.FakeLedger
	runtime *cmd.Runtime
	minting *services.Minting
	bus     eventbus.EventBus
	logger  *slog.Logger
}

func newTestFixture(t *testing.T) *apiFixture {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)

	cfg := config.Default()
	cfg.WorkDir = filepath.Join(t.TempDir(), "work")
	cfg.DatabaseURL = "file://" + t.TempDir()
	cfg.IndexerURL = testutil.NewIndexerServer(t, payoutAddress).URL
	cfg.PollInterval = 5 * time.Millisecond
	cfg.ConfirmTimeout = 2 * time.Second

	fake := testutil.NewFakeLedger()

	rt, err := cmd.NewRuntime(t.Context(), cfg, "mintflow-api-test", logger, cmd.WithRunner(fake))
	require.NoError(t, err)

	t.Cleanup(func() { rt.Close(context.Background()) })

	bus, err := cmd.NewEventBus(config.EventBusGoChannel, nil, "mintflow-api-test", logger)
	require.NoError(t, err)

	t.Cleanup(func() { _ = bus.Close() })

	minting := rt.Minting(bus)

	return &apiFixture{
		app:     NewAPI(logger, minting).App(),
		fake:    fake,
		runtime: rt,
		minting: minting,
		bus:     bus,
		logger:  logger,
	}
}

func (f *apiFixture) serve(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())

	sw, err := serveInProcess(ctx, f.minting, f.bus, f.runtime.Config.SweepSchedule, f.logger)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = sw.Stop(context.Background())
		cancel()
		f.minting.Wait()
	})
}

func setupTestApp(t *testing.T) *apiFixture {
	t.Helper()

	f := newTestFixture(t)
	f.serve(t)

	return f
}

func (f *apiFixture) request(t *testing.T, method, path, body string) (*http.Response, string) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, string(data)
}

func TestAPI_RootEndpoint(t *testing.T) {
	f := setupTestApp(t)

	resp, body := f.request(t, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Mintflow API", body)
}

func TestAPI_HealthCheck(t *testing.T) {
	f := setupTestApp(t)

	resp, body := f.request(t, http.MethodGet, "/livez", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", body)

	resp, body = f.request(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "healthy")
}

func TestAPI_MintsInProcess(t *testing.T) {
	f := setupTestApp(t)

	resp, body := f.request(t, http.MethodPost, "/sessions", `{"creator":"alice","ticker":"doge","name":"DogeNFT","series_number":"1"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)

	var created services.SessionResponse
	require.NoError(t, json.Unmarshal([]byte(body), &created))

	f.fake.SetUTXOs(created.Funding.Address, ledger.UTXO{
		TxID:     "4e3a6e7fdcb0d0efa17bf79c13aed2b4cb9baf37fb1aa2e39553d5bd720c5c99",
		Lovelace: 5_500_000,
	})
	f.fake.OnSubmit = func(fake *testutil.FakeLedger) {
		fake.AddUTXO(payoutAddress, ledger.UTXO{TxID: "minted", Lovelace: 5_319_900, Assets: "1 " + fake.PolicyID + ".DogeNFT"})
	}

	resp, body = f.request(t, http.MethodPost, "/sessions/"+created.Session.ID+"/mint", "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode, body)

	assert.Eventually(t, func() bool {
		session, err := f.runtime.Store.Get(t.Context(), created.Session.ID)

		return err == nil && session.FinalTxID == "minted"
	}, 10*time.Second, 20*time.Millisecond)

	resp, body = f.request(t, http.MethodPost, "/sessions/"+created.Session.ID+"/mint", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode, body)
}

func TestAPI_ResumesSubmittedSessionOnStart(t *testing.T) {
	f := newTestFixture(t)

	created, err := f.minting.CreateSession(t.Context(), services.CreateSessionRequest{
		Creator: "alice",
		Token:   models.TokenMetadata{Ticker: "DOGE", Name: "DogeNFT", SeriesNumber: 1},
	})
	require.NoError(t, err)

	f.fake.SetUTXOs(created.Funding.Address, ledger.UTXO{
		TxID:     "4e3a6e7fdcb0d0efa17bf79c13aed2b4cb9baf37fb1aa2e39553d5bd720c5c99",
		Lovelace: 5_500_000,
	})

	submitted, err := f.runtime.Engine.Submit(t.Context(), created.Session.ID)
	require.NoError(t, err)
	require.True(t, submitted.Steps.Submitted)
	require.Empty(t, submitted.FinalTxID)

	f.fake.AddUTXO(payoutAddress, ledger.UTXO{TxID: "minted", Lovelace: 5_319_900, Assets: "1 " + f.fake.PolicyID + ".DogeNFT"})

	f.serve(t)

	assert.Eventually(t, func() bool {
		session, err := f.runtime.Store.Get(t.Context(), created.Session.ID)

		return err == nil && session.FinalTxID == "minted"
	}, 10*time.Second, 20*time.Millisecond)

	assert.Equal(t, 1, f.fake.CallCount(ledger.CmdSubmit))
}
