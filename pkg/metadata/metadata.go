// Package metadata builds the minting policy script and the token metadata
// document embedded in the mint transaction.
package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/dukex/mintflow/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// NFTLabel is the transaction metadata label for NFT descriptions.
const NFTLabel = "721"

// MaxStringLength is the ledger limit for a metadata string in bytes.
const MaxStringLength = 64

// ErrInvalidDocument is returned when a document does not match the schema.
var ErrInvalidDocument = errors.New("invalid metadata document")

// Script is a native script.
type Script struct {
	Type    string   `json:"type"`
	KeyHash string   `json:"keyHash,omitempty"`
	Slot    *uint64  `json:"slot,omitempty"`
	Scripts []Script `json:"scripts,omitempty"`
}

// PolicyScript returns a script that requires a signature by keyHash and
// allows minting only before expirySlot.
func PolicyScript(keyHash string, expirySlot uint64) Script {
	return Script{
		Type: "all",
		Scripts: []Script{
			{Type: "sig", KeyHash: keyHash},
			{Type: "before", Slot: &expirySlot},
		},
	}
}

// Encode renders the script as the ledger client expects it on disk.
func (s Script) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode policy script: %w", err)
	}

	return data, nil
}

// Asset is the description of one token in the document.
type Asset struct {
	Name        string `json:"name"`
	Ticker      string `json:"ticker"`
	Description any    `json:"description,omitempty"`
	Image       any    `json:"image,omitempty"`
	Series      int    `json:"series"`
}

// Document is the label keyed transaction metadata:
//
//	{"721": {"<policy id>": {"<series>": {...}}}}
type Document map[string]map[string]map[string]Asset

// NewDocument describes token under policyID.
func NewDocument(policyID string, token models.TokenMetadata) Document {
	asset := Asset{
		Name:   token.Name,
		Ticker: token.Ticker,
		Series: token.SeriesNumber,
	}

	if token.Description != "" {
		asset.Description = chunk(token.Description)
	}

	if image := token.Image(); image != "" {
		asset.Image = chunk(image)
	}

	return Document{
		NFTLabel: {
			policyID: {
				strconv.Itoa(token.SeriesNumber): asset,
			},
		},
	}
}

// chunk splits strings longer than the ledger limit into a list of pieces.
// Pieces end on rune boundaries so multi-byte characters survive the split.
func chunk(s string) any {
	if len(s) <= MaxStringLength {
		return s
	}

	var parts []string
	for len(s) > MaxStringLength {
		cut := MaxStringLength
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}

		parts = append(parts, s[:cut])
		s = s[cut:]
	}

	if s != "" {
		parts = append(parts, s)
	}

	return parts
}

// checkByteLimits enforces the ledger limit in bytes. The schema counts
// characters, which lets multi-byte text through.
func (d Document) checkByteLimits() error {
	for _, policies := range d {
		for _, assets := range policies {
			for series, asset := range assets {
				fields := map[string]any{
					"name":        asset.Name,
					"ticker":      asset.Ticker,
					"description": asset.Description,
					"image":       asset.Image,
				}

				for field, value := range fields {
					for _, piece := range pieces(value) {
						if len(piece) > MaxStringLength {
							return fmt.Errorf("%w: %s of series %s is %d bytes, limit is %d",
								ErrInvalidDocument, field, series, len(piece), MaxStringLength)
						}
					}
				}
			}
		}
	}

	return nil
}

func pieces(value any) []string {
	switch v := value.(type) {
	case string:
		return []string{v}
	case []string:
		return v
	default:
		return nil
	}
}

const documentSchema = `{
  "type": "object",
  "required": ["721"],
  "additionalProperties": false,
  "properties": {
    "721": {
      "type": "object",
      "minProperties": 1,
      "maxProperties": 1,
      "propertyNames": {"pattern": "^[0-9a-f]{56}$"},
      "additionalProperties": {
        "type": "object",
        "minProperties": 1,
        "propertyNames": {"pattern": "^[0-9]+$"},
        "additionalProperties": {
          "type": "object",
          "required": ["name", "ticker"],
          "properties": {
            "name": {"$ref": "#/definitions/text"},
            "ticker": {"type": "string", "pattern": "^[A-Z0-9]{1,5}$"},
            "description": {"$ref": "#/definitions/longText"},
            "image": {"$ref": "#/definitions/longText"},
            "series": {"type": "integer", "minimum": 0}
          }
        }
      }
    }
  },
  "definitions": {
    "text": {"type": "string", "minLength": 1, "maxLength": 64},
    "longText": {
      "oneOf": [
        {"type": "string", "maxLength": 64},
        {"type": "array", "items": {"type": "string", "maxLength": 64}}
      ]
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(documentSchema)

// Validate checks the document against the NFT metadata schema.
func (d Document) Validate() error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(d))
	if err != nil {
		return fmt.Errorf("failed to validate metadata: %w", err)
	}

	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidDocument, strings.Join(problems, "; "))
	}

	return d.checkByteLimits()
}

// Encode validates and renders the document.
func (d Document) Encode() ([]byte, error) {
	err := d.Validate()
	if err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}

	return data, nil
}
