package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dukex/mintflow/pkg/artifacts"
	"github.com/dukex/mintflow/pkg/indexer"
	"github.com/dukex/mintflow/pkg/ledger"
	"github.com/dukex/mintflow/pkg/minting"
	"github.com/dukex/mintflow/pkg/mocks"
	"github.com/dukex/mintflow/pkg/models"
	"github.com/dukex/mintflow/pkg/persistence/file"
	"github.com/dukex/mintflow/pkg/services"
	"github.com/dukex/mintflow/pkg/testutil"
	"github.com/dukex/mintflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testApp struct {
	app   *fiber.App
	fake  *testutil.FakeLedger
	store *file.Persistence
	bus   *mocks.MockEventBus
}

func setupTestApp(t *testing.T) *testApp {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)

	fake := testutil.NewFakeLedger()
	store := file.NewPersistence(t.TempDir())
	client := ledger.NewClient(fake, ledger.Network{TestnetMagic: 1097911063}, logger)
	lookup := indexer.NewClient(testutil.NewIndexerServer(t, "addr_test1payout").URL, "project", time.Second, logger)
	validate := validator.New(validator.WithRequiredStructEnabled())
	bus := &mocks.MockEventBus{}

	engine := minting.NewEngine(minting.Dependencies{
		Ledger:   client,
		Store:    store,
		Layout:   artifacts.NewLayout(t.TempDir(), logger),
		Resolver: lookup,
		Logger:   logger,
	}, minting.DefaultConfig())

	service := services.NewMinting(services.MintingDependencies{
		Engine:    engine,
		Store:     store,
		Ledger:    client,
		Indexer:   lookup,
		Publisher: bus,
		Validate:  validate,
		Logger:    logger,
	})

	app := fiber.New()
	web.NewAPIHandlers(service, validate).Register(app)

	return &testApp{app: app, fake: fake, store: store, bus: bus}
}

func (ta *testApp) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader

	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)

		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := ta.app.Test(req)
	require.NoError(t, err)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	return resp, data
}

func (ta *testApp) createSession(t *testing.T) services.SessionResponse {
	t.Helper()

	resp, body := ta.do(t, http.MethodPost, "/sessions", web.CreateSessionRequest{
		Creator: "alice",
		Ticker:  "doge",
		Name:    "DogeNFT",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var created services.SessionResponse
	require.NoError(t, json.Unmarshal(body, &created))

	return created
}

func problemType(t *testing.T, body []byte) string {
	t.Helper()

	var problem map[string]any
	require.NoError(t, json.Unmarshal(body, &problem))

	kind, _ := problem["type"].(string)

	return kind
}

func TestAPIHandlers_CreateSession(t *testing.T) {
	ta := setupTestApp(t)

	created := ta.createSession(t)

	assert.NotEmpty(t, created.Session.ID)
	assert.Equal(t, "DOGE", created.Session.Token.Ticker)
	assert.Equal(t, models.SessionStatusReady, created.Session.Status)
	require.NotNil(t, created.Funding)
	assert.Equal(t, ta.fake.Address, created.Funding.Address)
	assert.Equal(t, uint64(5_000_000), created.Funding.MinimumLovelace)
}

func TestAPIHandlers_CreateSessionInvalid(t *testing.T) {
	tests := []struct {
		name string
		body any
	}{
		{name: "malformed json", body: `{"creator":`},
		{name: "missing ticker", body: map[string]any{"creator": "alice", "name": "DogeNFT"}},
		{name: "ticker too long", body: map[string]any{"creator": "alice", "ticker": "DOGECOIN", "name": "DogeNFT"}},
		{name: "missing creator", body: map[string]any{"ticker": "DOGE", "name": "DogeNFT"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ta := setupTestApp(t)

			resp, body := ta.do(t, http.MethodPost, "/sessions", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "validation_error", problemType(t, body))
			assert.Empty(t, ta.fake.Calls())
		})
	}
}

func TestAPIHandlers_CreateSessionSeriesNumber(t *testing.T) {
	ta := setupTestApp(t)

	resp, body := ta.do(t, http.MethodPost, "/sessions",
		`{"creator":"alice","ticker":"DOGE","name":"DogeNFT","series_number":"first"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var created services.SessionResponse
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, 0, created.Session.Token.SeriesNumber)
}

func TestAPIHandlers_GetSession(t *testing.T) {
	ta := setupTestApp(t)
	created := ta.createSession(t)

	resp, body := ta.do(t, http.MethodGet, "/sessions/"+created.Session.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got services.SessionResponse
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, created.Session.ID, got.Session.ID)
	assert.Equal(t, created.Session.CustodialAddress, got.Session.CustodialAddress)

	resp, body = ta.do(t, http.MethodGet, "/sessions/unknown", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", problemType(t, body))
}

func TestAPIHandlers_ListSessions(t *testing.T) {
	ta := setupTestApp(t)
	ta.createSession(t)

	resp, body := ta.do(t, http.MethodGet, "/sessions?status=ready", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list struct {
		Sessions   []*models.Session `json:"sessions"`
		TotalCount int               `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Equal(t, 1, list.TotalCount)

	resp, _ = ta.do(t, http.MethodGet, "/sessions?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIHandlers_PreMintIsIdempotent(t *testing.T) {
	ta := setupTestApp(t)
	created := ta.createSession(t)
	calls := len(ta.fake.Calls())

	resp, _ := ta.do(t, http.MethodPost, "/sessions/"+created.Session.ID+"/premint", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, ta.fake.Calls(), calls)
}

func TestAPIHandlers_RequestMint(t *testing.T) {
	ta := setupTestApp(t)
	created := ta.createSession(t)

	ta.bus.On("Publish", mock.Anything, created.Session.ID, mock.AnythingOfType("*events.MintRequested")).Return(nil).Once()

	resp, body := ta.do(t, http.MethodPost, "/sessions/"+created.Session.ID+"/mint", web.MintRequest{RequestedBy: "alice"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))

	var accepted web.MintAcceptedResponse
	require.NoError(t, json.Unmarshal(body, &accepted))
	assert.Equal(t, created.Session.ID, accepted.SessionID)
	assert.NotEmpty(t, accepted.EventID)
	assert.Equal(t, "queued", accepted.Status)

	ta.bus.AssertExpectations(t)
}

func TestAPIHandlers_RequestMintConflict(t *testing.T) {
	ta := setupTestApp(t)
	require.NoError(t, ta.store.Create(t.Context(), models.NewSession("s1", "alice", models.TokenMetadata{Ticker: "DOGE", Name: "DogeNFT"})))

	resp, body := ta.do(t, http.MethodPost, "/sessions/s1/mint", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "conflict", problemType(t, body))
	ta.bus.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestAPIHandlers_GetUTXOs(t *testing.T) {
	ta := setupTestApp(t)
	ta.fake.SetUTXOs("addr_test1any", ledger.UTXO{TxID: "abc", Index: 1, Lovelace: 2_000_000})

	resp, body := ta.do(t, http.MethodGet, "/addresses/addr_test1any/utxos", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got struct {
		Address string        `json:"address"`
		UTXOs   []ledger.UTXO `json:"utxos"`
	}
	require.NoError(t, json.Unmarshal(body, &got))
	require.Len(t, got.UTXOs, 1)
	assert.Equal(t, uint64(2_000_000), got.UTXOs[0].Lovelace)

	ta.fake.Respond(ledger.CmdQueryUTXO, ledger.Result{ExitCode: 1})

	resp, body = ta.do(t, http.MethodGet, "/addresses/addr_test1any/utxos", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "upstream_unavailable", problemType(t, body))
}

func TestAPIHandlers_GetTransaction(t *testing.T) {
	ta := setupTestApp(t)

	resp, body := ta.do(t, http.MethodGet, "/transactions/abc", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var tx indexer.Transaction
	require.NoError(t, json.Unmarshal(body, &tx))
	assert.Equal(t, "addr_test1payout", tx.Inputs[0].Address)

	resp, _ = ta.do(t, http.MethodGet, "/transactions/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	ta := setupTestApp(t)

	resp, body := ta.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"status":"healthy"`)
}

func TestSeriesNumber_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		raw  string
		want web.SeriesNumber
	}{
		{raw: `3`, want: 3},
		{raw: `"12"`, want: 12},
		{raw: `"first"`, want: 0},
		{raw: `-4`, want: 0},
		{raw: `2.5`, want: 0},
		{raw: `null`, want: 0},
	}

	for _, tt := range tests {
		var got web.SeriesNumber
		require.NoError(t, json.Unmarshal([]byte(tt.raw), &got), tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}
