// Package models defines the core domain models for token minting sessions.
package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// LovelacePerADA is the number of lovelace in one ADA.
const LovelacePerADA uint64 = 1_000_000

// MaxNameBytes is the ledger limit on the encoded token name.
const MaxNameBytes = 64

// ErrNameTooLong is returned when the token name exceeds MaxNameBytes once
// encoded. Field validation counts characters, not bytes.
var ErrNameTooLong = errors.New("token name too long")

// TokenMetadata is the user supplied description of the token to mint.
// It is immutable once the session is created.
type TokenMetadata struct {
	Ticker         string `json:"ticker"          validate:"required,min=1,max=5,alphanum"`
	Name           string `json:"name"            validate:"required,max=64"`
	Description    string `json:"description"     validate:"max=64"`
	SeriesNumber   int    `json:"series_number"   validate:"min=0"`
	Quantity       uint64 `json:"quantity"        validate:"min=1"`
	AssetReference string `json:"asset_reference" validate:"max=128"`
}

// Normalize applies the conventions the minting bot always used: upper-case
// tickers and a quantity of one when none was given.
func (t TokenMetadata) Normalize() TokenMetadata {
	t.Ticker = strings.ToUpper(strings.TrimSpace(t.Ticker))
	t.Name = strings.TrimSpace(t.Name)
	t.Description = strings.TrimSpace(t.Description)

	if t.Quantity == 0 {
		t.Quantity = 1
	}

	return t
}

// CheckByteLimits reports limits that only hold on the encoded form.
func (t TokenMetadata) CheckByteLimits() error {
	if len(t.Name) > MaxNameBytes {
		return fmt.Errorf("%w: %d bytes, limit is %d", ErrNameTooLong, len(t.Name), MaxNameBytes)
	}

	return nil
}

// ParseSeriesNumber converts free text into a series number. Anything that is
// not a non-negative integer maps to zero.
func ParseSeriesNumber(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0
	}

	return n
}

// Image returns the asset reference as an ipfs URI when it is a bare hash.
func (t TokenMetadata) Image() string {
	if t.AssetReference == "" {
		return ""
	}

	if strings.Contains(t.AssetReference, "://") {
		return t.AssetReference
	}

	return "ipfs://" + t.AssetReference
}

// MaxAssetNameLength is the ledger limit on asset names in bytes.
const MaxAssetNameLength = 32

// AssetName derives the on-chain asset name from the token name. Only ASCII
// letters and digits are kept since the name travels through command line
// arguments.
func (t TokenMetadata) AssetName() string {
	var b strings.Builder

	for _, r := range t.Name {
		if b.Len() == MaxAssetNameLength {
			break
		}

		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}

	if b.Len() == 0 {
		return t.Ticker
	}

	return b.String()
}
