package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// NewIndexerServer starts a chain indexer stub. Every transaction reports a
// single input at fundingAddress, except the hashes "missing" (404) and
// "broken" (500).
func NewIndexerServer(t testing.TB, fundingAddress string) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/txs/missing/"):
			http.Error(w, `{"status_code":404}`, http.StatusNotFound)
		case strings.Contains(r.URL.Path, "/txs/broken/"):
			http.Error(w, `{"status_code":500}`, http.StatusInternalServerError)
		default:
			hash := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/txs/"), "/utxos")

			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"hash":%q,"inputs":[{"address":%q,"tx_hash":"prev","output_index":1}],"outputs":[]}`,
				hash, fundingAddress)
		}
	}))
	t.Cleanup(server.Close)

	return server
}
