package ledger_test

import (
	"strings"
	"testing"

	"github.com/dukex/mintflow/pkg/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const utxoTable = `                           TxHash                                 TxIx        Amount
--------------------------------------------------------------------------------------
4e3a6e7fdcb0d0efa17bf79c13aed2b4cb9baf37fb1aa2e39553d5bd720c5c99     0        5500000 lovelace + TxOutDatumNone
9f1c2e7fdcb0d0efa17bf79c13aed2b4cb9baf37fb1aa2e39553d5bd720c5c11     3        2000000 lovelace + 1 abc.DogeNFT
`

func TestParseUTXOs(t *testing.T) {
	t.Parallel()

	utxos, err := ledger.ParseUTXOs(utxoTable)
	require.NoError(t, err)
	require.Len(t, utxos, 2)

	assert.Equal(t, "4e3a6e7fdcb0d0efa17bf79c13aed2b4cb9baf37fb1aa2e39553d5bd720c5c99", utxos[0].TxID)
	assert.Equal(t, uint32(0), utxos[0].Index)
	assert.Equal(t, uint64(5_500_000), utxos[0].Lovelace)
	assert.Equal(t, "TxOutDatumNone", utxos[0].Assets)

	assert.Equal(t, uint32(3), utxos[1].Index)
	assert.Equal(t, "1 abc.DogeNFT", utxos[1].Assets)
	assert.True(t, strings.HasSuffix(utxos[1].Ref(), "#3"))
}

func TestParseUTXOs_EmptyTable(t *testing.T) {
	t.Parallel()

	header := "TxHash TxIx Amount\n----------------------\n"

	utxos, err := ledger.ParseUTXOs(header)
	require.NoError(t, err)
	assert.Empty(t, utxos)
}

func TestParseUTXOs_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		output string
	}{
		{name: "no header", output: "garbage"},
		{name: "bad index", output: "h\n---\nabc x 10 lovelace\n"},
		{name: "bad amount", output: "h\n---\nabc 0 ten lovelace\n"},
		{name: "missing unit", output: "h\n---\nabc 0 10\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := ledger.ParseUTXOs(tt.output)
			assert.ErrorIs(t, err, ledger.ErrMalformedOutput)
		})
	}
}

func TestParseTip(t *testing.T) {
	t.Parallel()

	tip, err := ledger.ParseTip(`{"block": 12, "epoch": 3, "era": "Mary", "hash": "ab", "slot": 1000}`)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), tip.Slot)
	assert.Equal(t, "Mary", tip.Era)

	legacy, err := ledger.ParseTip(`{"blockNo": 12, "headerHash": "cd", "slotNo": 2000}`)
	require.NoError(t, err)
	assert.Equal(t, uint64(2000), legacy.Slot)
	assert.Equal(t, uint64(12), legacy.Block)
	assert.Equal(t, "cd", legacy.Hash)

	genesis, err := ledger.ParseTip(`{"era": "Mary", "slot": 0}`)
	require.NoError(t, err)
	assert.Zero(t, genesis.Slot)

	_, err = ledger.ParseTip(`{"epoch": 3}`)
	assert.ErrorIs(t, err, ledger.ErrMalformedOutput)

	_, err = ledger.ParseTip(`not json`)
	assert.ErrorIs(t, err, ledger.ErrMalformedOutput)
}

func TestParseLovelace(t *testing.T) {
	t.Parallel()

	fee, err := ledger.ParseLovelace("180000 Lovelace\n")
	require.NoError(t, err)
	assert.Equal(t, uint64(180_000), fee)

	fee, err = ledger.ParseLovelace("170000")
	require.NoError(t, err)
	assert.Equal(t, uint64(170_000), fee)

	_, err = ledger.ParseLovelace("12 ADA")
	assert.ErrorIs(t, err, ledger.ErrMalformedOutput)

	_, err = ledger.ParseLovelace("")
	assert.ErrorIs(t, err, ledger.ErrMalformedOutput)
}

func TestParseHexID(t *testing.T) {
	t.Parallel()

	valid := strings.Repeat("AB", ledger.HashSize)

	id, err := ledger.ParseHexID(valid+"\n", ledger.HashSize)
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(valid), id)

	_, err = ledger.ParseHexID("abcd", ledger.HashSize)
	assert.ErrorIs(t, err, ledger.ErrMalformedOutput)

	_, err = ledger.ParseHexID("zz", 1)
	assert.ErrorIs(t, err, ledger.ErrMalformedOutput)
}
