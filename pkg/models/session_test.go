package models

import (
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readySession(t *testing.T) *Session {
	t.Helper()

	s := NewSession("session-1", "alice", TokenMetadata{Ticker: "doge", Name: "DogeNFT", Description: "test", SeriesNumber: 1})
	s.MarkStakeKey()
	s.MarkPaymentKey()
	require.NoError(t, s.SetCustodialAddress("addr_test1custodial"))
	s.MarkProtocolParams()
	s.MarkPolicyKey()

	return s
}

func builtSession(t *testing.T) *Session {
	t.Helper()

	s := readySession(t)
	require.NoError(t, s.RecordFunding(Funding{TxID: "abc", OutputIndex: 0, Amount: 5_500_000}, NewTimingWindow(1000, 3600)))
	require.NoError(t, s.SetPayoutAddress("addr_test1payout"))
	require.NoError(t, s.RecordPolicy("keyhash", "policyid"))
	require.NoError(t, s.MarkMetadata())
	require.NoError(t, s.RecordBuild(180_100, 5_319_900))

	return s
}

func TestNewSession_NormalizesToken(t *testing.T) {
	s := NewSession("id", "alice", TokenMetadata{Ticker: " doge ", Name: "DogeNFT"})

	assert.Equal(t, "DOGE", s.Token.Ticker)
	assert.Equal(t, uint64(1), s.Token.Quantity)
	assert.Equal(t, SessionStatusCreated, s.Status)
	assert.Equal(t, MintStatePending, s.State())
}

func TestTokenMetadata_Validation(t *testing.T) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	valid := TokenMetadata{Ticker: "DOGE", Name: "DogeNFT", Quantity: 1}
	assert.NoError(t, validate.Struct(valid))

	tooLong := valid
	tooLong.Ticker = "DOGECOIN"
	assert.Error(t, validate.Struct(tooLong))

	missingName := valid
	missingName.Name = ""
	assert.Error(t, validate.Struct(missingName))

	zeroQuantity := valid
	zeroQuantity.Quantity = 0
	assert.Error(t, validate.Struct(zeroQuantity))
}

func TestTokenMetadata_CheckByteLimits(t *testing.T) {
	token := TokenMetadata{Ticker: "DOGE", Name: strings.Repeat("日", 21), Quantity: 1}
	require.NoError(t, token.CheckByteLimits())

	token.Name = strings.Repeat("日", 30)
	require.NoError(t, validator.New().Struct(token))
	assert.ErrorIs(t, token.CheckByteLimits(), ErrNameTooLong)
}

func TestParseSeriesNumber(t *testing.T) {
	assert.Equal(t, 1, ParseSeriesNumber("001"))
	assert.Equal(t, 42, ParseSeriesNumber(" 42 "))
	assert.Equal(t, 0, ParseSeriesNumber("first"))
	assert.Equal(t, 0, ParseSeriesNumber("-3"))
}

func TestTokenMetadata_Image(t *testing.T) {
	assert.Equal(t, "", TokenMetadata{}.Image())
	assert.Equal(t, "ipfs://QmHash", TokenMetadata{AssetReference: "QmHash"}.Image())
	assert.Equal(t, "https://x/y.png", TokenMetadata{AssetReference: "https://x/y.png"}.Image())
}

func TestSession_CustodialAddressRequiresKeys(t *testing.T) {
	s := NewSession("id", "alice", TokenMetadata{Ticker: "A", Name: "B"})
	s.MarkStakeKey()

	err := s.SetCustodialAddress("addr")
	require.ErrorIs(t, err, ErrStepOrder)
	assert.Empty(t, s.CustodialAddress)

	s.MarkPaymentKey()
	require.NoError(t, s.SetCustodialAddress("addr"))
	require.NoError(t, s.SetCustodialAddress("addr"))
	assert.ErrorIs(t, s.SetCustodialAddress("other"), ErrImmutableField)
	assert.Equal(t, "addr", s.CustodialAddress)
}

func TestSession_ReadyAfterPreMint(t *testing.T) {
	s := readySession(t)

	assert.True(t, s.PreMintComplete())
	assert.Equal(t, SessionStatusReady, s.Status)
}

func TestSession_RecordFundingOnce(t *testing.T) {
	s := NewSession("id", "alice", TokenMetadata{Ticker: "A", Name: "B"})
	err := s.RecordFunding(Funding{TxID: "abc", Amount: 1}, NewTimingWindow(1, 1))
	require.ErrorIs(t, err, ErrStepOrder)

	s = readySession(t)
	funding := Funding{TxID: "abc", OutputIndex: 1, Amount: 5_000_000}
	window := NewTimingWindow(1000, 3600)

	require.NoError(t, s.RecordFunding(funding, window))
	assert.Equal(t, uint64(4600), s.Window.ExpirySlot)
	assert.Equal(t, "abc#1", s.Funding.Ref())
	assert.Equal(t, MintStateFundingCheck, s.State())

	require.NoError(t, s.RecordFunding(funding, window))

	err = s.RecordFunding(Funding{TxID: "def", Amount: 9_000_000}, window)
	require.ErrorIs(t, err, ErrImmutableField)
	assert.Equal(t, "abc", s.Funding.TxID)
}

func TestSession_RecordFundingRejectsInconsistentWindow(t *testing.T) {
	s := readySession(t)

	err := s.RecordFunding(Funding{TxID: "abc", Amount: 1}, TimingWindow{ObservedSlot: 10, SlotMargin: 5, ExpirySlot: 99})
	require.ErrorIs(t, err, ErrStepOrder)
	assert.Nil(t, s.Funding)
}

func TestSession_PolicyRequiresPolicyKey(t *testing.T) {
	s := NewSession("id", "alice", TokenMetadata{Ticker: "A", Name: "B"})

	err := s.RecordPolicy("hash", "policy")
	require.ErrorIs(t, err, ErrStepOrder)
	assert.False(t, s.Steps.PolicyScript)
}

func TestSession_BuildArithmetic(t *testing.T) {
	s := builtSession(t)

	assert.Equal(t, uint64(180_100), s.Fee)
	assert.Equal(t, uint64(5_319_900), s.ReturnAmount)
	assert.Equal(t, MintStateFeeComputed, s.State())

	err := s.RecordBuild(1, 1)
	require.ErrorIs(t, err, ErrStepOrder)
}

func TestSession_SubmittedIsTerminal(t *testing.T) {
	s := builtSession(t)
	require.NoError(t, s.MarkSigned())
	require.NoError(t, s.MarkSubmitted([]string{"x#0"}, time.Now().Add(time.Hour)))

	assert.Equal(t, SessionStatusSubmitted, s.Status)
	assert.True(t, s.AwaitingConfirmation())

	assert.ErrorIs(t, s.RecordFunding(*s.Funding, *s.Window), ErrSessionTerminal)
	assert.ErrorIs(t, s.RecordBuild(s.Fee, s.ReturnAmount), ErrSessionTerminal)
	assert.ErrorIs(t, s.MarkSigned(), ErrSessionTerminal)
	assert.ErrorIs(t, s.MarkSubmitted(nil, time.Now()), ErrSessionTerminal)
}

func TestSession_ConfirmAndExpire(t *testing.T) {
	s := builtSession(t)
	require.NoError(t, s.MarkSigned())
	require.NoError(t, s.MarkSubmitted(nil, time.Now()))

	expired := s.Clone()
	require.NoError(t, expired.Expire())
	assert.Equal(t, MintStateExpired, expired.State())
	assert.ErrorIs(t, expired.Confirm("tx"), ErrSessionTerminal)

	require.NoError(t, s.Confirm("final"))
	assert.Equal(t, MintStateConfirmed, s.State())
	assert.Equal(t, SessionStatusConfirmed, s.Status)
	assert.ErrorIs(t, s.Expire(), ErrSessionTerminal)
	assert.False(t, s.AwaitingConfirmation())
}

func TestSession_Strand(t *testing.T) {
	s := readySession(t)
	assert.ErrorIs(t, s.Strand(), ErrStepOrder)

	s = builtSession(t)
	require.NoError(t, s.Strand())
	assert.Equal(t, SessionStatusStranded, s.Status)
	assert.False(t, s.AwaitingConfirmation())

	submitted := builtSession(t)
	require.NoError(t, submitted.MarkSigned())
	require.NoError(t, submitted.MarkSubmitted(nil, time.Now()))
	assert.ErrorIs(t, submitted.Strand(), ErrSessionTerminal)
}

func TestSession_CloneIsDeep(t *testing.T) {
	s := builtSession(t)
	c := s.Clone()

	c.Funding.Amount = 1
	c.Window.ExpirySlot = 1

	assert.Equal(t, uint64(5_500_000), s.Funding.Amount)
	assert.Equal(t, uint64(4600), s.Window.ExpirySlot)
}

func TestMintState_String(t *testing.T) {
	assert.Equal(t, "FUNDING_CHECK", MintStateFundingCheck.String())
	assert.Equal(t, "CONFIRMED", MintStateConfirmed.String())
	assert.Equal(t, "UNKNOWN(99)", MintState(99).String())
}

func TestTokenMetadata_AssetName(t *testing.T) {
	assert.Equal(t, "DogeNFT", TokenMetadata{Name: "DogeNFT"}.AssetName())
	assert.Equal(t, "DogeNFT1", TokenMetadata{Name: "Doge NFT #1"}.AssetName())
	assert.Equal(t, "DOGE", TokenMetadata{Ticker: "DOGE", Name: "!!!"}.AssetName())
	assert.Len(t, TokenMetadata{Name: "abcdefghijklmnopqrstuvwxyz0123456789"}.AssetName(), MaxAssetNameLength)
}
