// Package web provides the REST API of the minting service.
package web

import (
	"bytes"
	"encoding/json"

	"github.com/dukex/mintflow/pkg/models"
)

// SeriesNumber accepts a JSON number or a string. Anything that is not a
// non-negative integer becomes zero.
type SeriesNumber int

func (s *SeriesNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	if len(data) > 0 && data[0] == '"' {
		var raw string

		err := json.Unmarshal(data, &raw)
		if err != nil {
			return err
		}

		*s = SeriesNumber(models.ParseSeriesNumber(raw))

		return nil
	}

	*s = SeriesNumber(models.ParseSeriesNumber(string(data)))

	return nil
}

// CreateSessionRequest represents the request body for starting a token issuance.
type CreateSessionRequest struct {
	Creator        string       `json:"creator"         validate:"required"`
	Ticker         string       `json:"ticker"          validate:"required"`
	Name           string       `json:"name"            validate:"required"`
	Description    string       `json:"description"`
	SeriesNumber   SeriesNumber `json:"series_number"`
	Quantity       uint64       `json:"quantity"`
	AssetReference string       `json:"asset_reference"`
}

// Token converts the request into token metadata.
func (r CreateSessionRequest) Token() models.TokenMetadata {
	return models.TokenMetadata{
		Ticker:         r.Ticker,
		Name:           r.Name,
		Description:    r.Description,
		SeriesNumber:   int(r.SeriesNumber),
		Quantity:       r.Quantity,
		AssetReference: r.AssetReference,
	}
}

// MintRequest represents the optional body of a mint request.
type MintRequest struct {
	RequestedBy string `json:"requested_by"`
}

// MintAcceptedResponse is returned once a mint request was queued.
type MintAcceptedResponse struct {
	SessionID string `json:"session_id"`
	EventID   string `json:"event_id"`
	Status    string `json:"status"`
}
