// Package indexer looks up transaction details on a Blockfrost compatible
// ledger indexing service.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultBaseURL is the Blockfrost testnet endpoint the minting bot used.
const DefaultBaseURL = "https://cardano-testnet.blockfrost.io/api/v0"

var (
	// ErrUnavailable is returned when the service cannot be reached or
	// answers with a non-200 status.
	ErrUnavailable = errors.New("ledger indexing service unavailable")

	// ErrNoInputs is returned when a transaction lists no input addresses.
	ErrNoInputs = errors.New("transaction has no inputs")

	// ErrInvalidTransactionID is returned for an empty or malformed hash.
	ErrInvalidTransactionID = errors.New("invalid transaction id")
)

// StatusError reports a non-200 answer.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("indexer responded with status %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrUnavailable
}

// Amount is a quantity of a unit ("lovelace" or policy id + asset name).
type Amount struct {
	Unit     string `json:"unit"`
	Quantity string `json:"quantity"`
}

// TxInput is an input of a looked up transaction.
type TxInput struct {
	Address     string   `json:"address"`
	TxHash      string   `json:"tx_hash"`
	OutputIndex uint32   `json:"output_index"`
	Amount      []Amount `json:"amount"`
}

// TxOutput is an output of a looked up transaction.
type TxOutput struct {
	Address     string   `json:"address"`
	OutputIndex uint32   `json:"output_index"`
	Amount      []Amount `json:"amount"`
}

// Transaction holds the inputs and outputs of a transaction.
type Transaction struct {
	Hash    string     `json:"hash"`
	Inputs  []TxInput  `json:"inputs"`
	Outputs []TxOutput `json:"outputs"`
}

// Client talks to the indexing service.
type Client struct {
	baseURL   string
	projectID string
	http      *http.Client
	logger    *slog.Logger
}

// NewClient creates a client. Requests are traced and bounded by timeout.
func NewClient(baseURL, projectID string, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		projectID: projectID,
		http: &http.Client{
			Transport:     otelhttp.NewTransport(http.DefaultTransport),
			CheckRedirect: nil,
			Jar:           nil,
			Timeout:       timeout,
		},
		logger: logger.With("module", "indexer"),
	}
}

// Transaction fetches the inputs and outputs of the transaction with the
// given hash.
func (c *Client) Transaction(ctx context.Context, hash string) (*Transaction, error) {
	hash = strings.TrimSpace(hash)
	if hash == "" || strings.ContainsAny(hash, "/?#") {
		return nil, fmt.Errorf("%q: %w", hash, ErrInvalidTransactionID)
	}

	endpoint := fmt.Sprintf("%s/txs/%s/utxos", c.baseURL, url.PathEscape(hash))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build indexer request: %w", err)
	}

	req.Header.Set("project_id", c.projectID)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("indexer request failed: %w: %w", ErrUnavailable, err)
	}

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			c.logger.ErrorContext(ctx, "failed to close response body", "error", err)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read indexer response: %w: %w", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.WarnContext(ctx, "Indexer lookup failed", "tx_hash", hash, "status", resp.StatusCode)

		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var tx Transaction

	err = json.Unmarshal(body, &tx)
	if err != nil {
		return nil, fmt.Errorf("failed to decode indexer response: %w: %w", ErrUnavailable, err)
	}

	return &tx, nil
}

// FundingSource returns the address that supplied the first input of the
// transaction. Minted assets and change are paid back to it.
func (c *Client) FundingSource(ctx context.Context, hash string) (string, error) {
	tx, err := c.Transaction(ctx, hash)
	if err != nil {
		return "", err
	}

	for _, input := range tx.Inputs {
		if input.Address != "" {
			return input.Address, nil
		}
	}

	return "", fmt.Errorf("%s: %w", hash, ErrNoInputs)
}
