package ledger

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// UTXO is one unspent output as reported by the utxo query.
type UTXO struct {
	TxID     string `json:"tx_id"`
	Index    uint32 `json:"index"`
	Lovelace uint64 `json:"lovelace"`
	Assets   string `json:"assets,omitempty"`
}

// Ref returns the output reference in "txid#index" form.
func (u UTXO) Ref() string {
	return fmt.Sprintf("%s#%d", u.TxID, u.Index)
}

// Tip is the current chain tip.
type Tip struct {
	Slot  uint64 `json:"slot"`
	Epoch uint64 `json:"epoch"`
	Block uint64 `json:"block"`
	Hash  string `json:"hash"`
	Era   string `json:"era"`
}

// ParseUTXOs parses the tabular utxo query output:
//
//	   TxHash                                 TxIx        Amount
//	--------------------------------------------------------------
//	4e3a...                                  0        5500000 lovelace + TxOutDatumNone
func ParseUTXOs(output string) ([]UTXO, error) {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) < 2 || !strings.HasPrefix(strings.TrimSpace(lines[1]), "---") {
		return nil, fmt.Errorf("missing utxo table header: %w", ErrMalformedOutput)
	}

	utxos := make([]UTXO, 0, len(lines)-2)

	for _, line := range lines[2:] {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		if len(fields) < 4 || fields[3] != "lovelace" {
			return nil, fmt.Errorf("unexpected utxo row %q: %w", line, ErrMalformedOutput)
		}

		index, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid utxo index %q: %w", fields[1], ErrMalformedOutput)
		}

		amount, err := strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid utxo amount %q: %w", fields[2], ErrMalformedOutput)
		}

		utxos = append(utxos, UTXO{
			TxID:     fields[0],
			Index:    uint32(index),
			Lovelace: amount,
			Assets:   strings.TrimPrefix(strings.Join(fields[4:], " "), "+ "),
		})
	}

	return utxos, nil
}

// ParseTip parses the JSON printed by the tip query. Older clients print
// slotNo instead of slot. Slot zero is a valid tip at genesis.
func ParseTip(output string) (Tip, error) {
	var raw struct {
		Tip

		Slot     *uint64 `json:"slot"`
		SlotNo   *uint64 `json:"slotNo"`
		BlockNo  *uint64 `json:"blockNo"`
		HeadHash string  `json:"headerHash"`
	}

	err := json.Unmarshal([]byte(output), &raw)
	if err != nil {
		return Tip{}, fmt.Errorf("invalid tip json: %w", ErrMalformedOutput)
	}

	tip := raw.Tip

	switch {
	case raw.Slot != nil:
		tip.Slot = *raw.Slot
	case raw.SlotNo != nil:
		tip.Slot = *raw.SlotNo
	default:
		return Tip{}, fmt.Errorf("tip without slot: %w", ErrMalformedOutput)
	}

	if raw.BlockNo != nil {
		tip.Block = *raw.BlockNo
	}

	if tip.Hash == "" {
		tip.Hash = raw.HeadHash
	}

	return tip, nil
}

// ParseLovelace parses "180000 Lovelace" as printed by calculate-min-fee.
func ParseLovelace(output string) (uint64, error) {
	fields := strings.Fields(output)
	if len(fields) == 0 || len(fields) > 2 {
		return 0, fmt.Errorf("unexpected fee output %q: %w", output, ErrMalformedOutput)
	}

	if len(fields) == 2 && !strings.EqualFold(fields[1], "lovelace") {
		return 0, fmt.Errorf("unexpected fee unit %q: %w", fields[1], ErrMalformedOutput)
	}

	amount, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid fee %q: %w", fields[0], ErrMalformedOutput)
	}

	return amount, nil
}

// ParseHexID parses a hex identifier such as a key hash or policy id.
func ParseHexID(output string, size int) (string, error) {
	id := strings.TrimSpace(output)

	decoded, err := hex.DecodeString(id)
	if err != nil || len(decoded) != size {
		return "", fmt.Errorf("invalid %d byte identifier %q: %w", size, id, ErrMalformedOutput)
	}

	return strings.ToLower(id), nil
}
