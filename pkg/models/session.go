package models

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

var (
	// ErrImmutableField is returned when a set-once field would change value.
	ErrImmutableField = errors.New("field is immutable once set")

	// ErrStepOrder is returned when a step completes before its prerequisites.
	ErrStepOrder = errors.New("step prerequisites not met")

	// ErrSessionTerminal is returned when a submitted session would have its
	// funding, fee or signing data changed.
	ErrSessionTerminal = errors.New("session already submitted")
)

// SessionStatus is the coarse lifecycle status of a session.
type SessionStatus string

const (
	SessionStatusCreated   SessionStatus = "created"   // Collected metadata, pre-mint not finished
	SessionStatusReady     SessionStatus = "ready"     // Pre-mint finished, waiting for funds
	SessionStatusSubmitted SessionStatus = "submitted" // Transaction submitted, awaiting confirmation
	SessionStatusConfirmed SessionStatus = "confirmed" // Token minted
	SessionStatusExpired   SessionStatus = "expired"   // Validity window lapsed without confirmation
	SessionStatusStranded  SessionStatus = "stranded"  // Validity window lapsed before submission, funds remain at the custodial address
)

// Funding is the single custodial output consumed by the mint transaction.
type Funding struct {
	TxID        string `json:"tx_id"`
	OutputIndex uint32 `json:"output_index"`
	Amount      uint64 `json:"amount"`
}

// Ref returns the output reference in the form the ledger client expects.
func (f Funding) Ref() string {
	return fmt.Sprintf("%s#%d", f.TxID, f.OutputIndex)
}

// TimingWindow bounds how long the mint transaction may be submitted.
type TimingWindow struct {
	ObservedSlot uint64 `json:"observed_slot"`
	SlotMargin   uint64 `json:"slot_margin"`
	ExpirySlot   uint64 `json:"expiry_slot"`
}

// NewTimingWindow computes the window starting at the observed tip.
func NewTimingWindow(observedSlot, slotMargin uint64) TimingWindow {
	return TimingWindow{
		ObservedSlot: observedSlot,
		SlotMargin:   slotMargin,
		ExpirySlot:   observedSlot + slotMargin,
	}
}

// Session is the persisted record of one token issuance.
//
// Fields are only changed through the methods below; each one enforces the
// ordering and set-once rules of its step.
type Session struct {
	ID               string        `json:"id"`
	CreatorIdentity  string        `json:"creator_identity"`
	Token            TokenMetadata `json:"token"`
	Status           SessionStatus `json:"status"`
	Steps            StepFlags     `json:"steps"`
	CustodialAddress string        `json:"custodial_address,omitempty"`
	PayoutAddress    string        `json:"payout_address,omitempty"`
	PolicyKeyHash    string        `json:"policy_key_hash,omitempty"`
	PolicyID         string        `json:"policy_id,omitempty"`
	Funding          *Funding      `json:"funding,omitempty"`
	Window           *TimingWindow `json:"window,omitempty"`
	Fee              uint64        `json:"fee,omitempty"`
	ReturnAmount     uint64        `json:"return_amount,omitempty"`
	ReturnBaseline   []string      `json:"return_baseline,omitempty"`
	ConfirmDeadline  *time.Time    `json:"confirm_deadline,omitempty"`
	FinalTxID        string        `json:"final_tx_id,omitempty"`
	FailedStep       Step          `json:"failed_step,omitempty"`
	LastError        string        `json:"last_error,omitempty"`
	Version          int64         `json:"version"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// NewSession creates a session for the given creator and token.
func NewSession(id, creator string, token TokenMetadata) *Session {
	return &Session{
		ID:              id,
		CreatorIdentity: creator,
		Token:           token.Normalize(),
		Status:          SessionStatusCreated,
	}
}

// PreMintComplete reports whether every pre-mint step has finished.
func (s *Session) PreMintComplete() bool {
	return s.Steps.StakeKey &&
		s.Steps.PaymentKey &&
		s.CustodialAddress != "" &&
		s.Steps.ProtocolParams &&
		s.Steps.PolicyKey
}

// AwaitingConfirmation reports whether the session was submitted but has not
// reached a terminal state yet.
func (s *Session) AwaitingConfirmation() bool {
	return s.Steps.Submitted && s.FinalTxID == "" && s.Status != SessionStatusExpired
}

// State returns the furthest mint state the session has reached.
func (s *Session) State() MintState {
	switch {
	case s.FinalTxID != "":
		return MintStateConfirmed
	case s.Status == SessionStatusExpired:
		return MintStateExpired
	case s.Steps.Submitted:
		return MintStateSubmitted
	case s.Steps.SignedTx:
		return MintStateSigned
	case s.Steps.RawTx:
		return MintStateFeeComputed
	case s.Steps.Metadata:
		return MintStateMetadataReady
	case s.Steps.PolicyScript:
		return MintStatePolicyReady
	case s.PayoutAddress != "":
		return MintStateReturnAddrLookup
	case s.Funding != nil:
		return MintStateFundingCheck
	default:
		return MintStatePending
	}
}

func (s *Session) refreshStatus() {
	if s.Status == SessionStatusCreated && s.PreMintComplete() {
		s.Status = SessionStatusReady
	}
}

func (s *Session) ensureNotSubmitted(step Step) error {
	if s.Steps.Submitted {
		return fmt.Errorf("%s: %w", step, ErrSessionTerminal)
	}

	return nil
}

func setOnce(field *string, value string, step Step) error {
	if *field != "" && *field != value {
		return fmt.Errorf("%s: %w", step, ErrImmutableField)
	}

	*field = value

	return nil
}

func requireStep(ok bool, step Step, missing string) error {
	if !ok {
		return fmt.Errorf("%s requires %s: %w", step, missing, ErrStepOrder)
	}

	return nil
}

// MarkStakeKey records that the stake key pair exists.
func (s *Session) MarkStakeKey() {
	s.Steps.StakeKey = true
	s.refreshStatus()
}

// MarkPaymentKey records that the payment key pair exists.
func (s *Session) MarkPaymentKey() {
	s.Steps.PaymentKey = true
	s.refreshStatus()
}

// SetCustodialAddress assigns the funding address derived from both keys.
func (s *Session) SetCustodialAddress(address string) error {
	err := requireStep(s.Steps.StakeKey && s.Steps.PaymentKey, StepCustodialAddress, "stake and payment keys")
	if err != nil {
		return err
	}

	err = setOnce(&s.CustodialAddress, address, StepCustodialAddress)
	if err != nil {
		return err
	}

	s.refreshStatus()

	return nil
}

// MarkProtocolParams records that the shared protocol parameters are available.
func (s *Session) MarkProtocolParams() {
	s.Steps.ProtocolParams = true
	s.refreshStatus()
}

// MarkPolicyKey records that the policy key pair exists.
func (s *Session) MarkPolicyKey() {
	s.Steps.PolicyKey = true
	s.refreshStatus()
}

// RecordFunding captures the funding output and the validity window. Both are
// captured exactly once.
func (s *Session) RecordFunding(funding Funding, window TimingWindow) error {
	err := s.ensureNotSubmitted(StepFunding)
	if err != nil {
		return err
	}

	err = requireStep(s.PreMintComplete(), StepFunding, "pre-mint")
	if err != nil {
		return err
	}

	if s.Funding != nil || s.Window != nil {
		if s.Funding != nil && *s.Funding == funding && s.Window != nil && *s.Window == window {
			return nil
		}

		return fmt.Errorf("%s: %w", StepFunding, ErrImmutableField)
	}

	if window.ExpirySlot != window.ObservedSlot+window.SlotMargin {
		return fmt.Errorf("%s: inconsistent timing window: %w", StepChainTip, ErrStepOrder)
	}

	s.Funding = &funding
	s.Window = &window

	return nil
}

// SetPayoutAddress stores the address that supplied the funds.
func (s *Session) SetPayoutAddress(address string) error {
	err := s.ensureNotSubmitted(StepReturnAddress)
	if err != nil {
		return err
	}

	err = requireStep(s.Funding != nil, StepReturnAddress, "funding")
	if err != nil {
		return err
	}

	return setOnce(&s.PayoutAddress, address, StepReturnAddress)
}

// RecordPolicy stores the policy key hash and id and completes the policy
// script step.
func (s *Session) RecordPolicy(keyHash, policyID string) error {
	err := s.ensureNotSubmitted(StepPolicyScript)
	if err != nil {
		return err
	}

	err = requireStep(s.Steps.PolicyKey, StepPolicyScript, "policy key")
	if err != nil {
		return err
	}

	err = requireStep(s.Window != nil, StepPolicyScript, "timing window")
	if err != nil {
		return err
	}

	if s.Steps.PolicyScript && (s.PolicyKeyHash != keyHash || s.PolicyID != policyID) {
		return fmt.Errorf("%s: %w", StepPolicyScript, ErrImmutableField)
	}

	s.PolicyKeyHash = keyHash
	s.PolicyID = policyID
	s.Steps.PolicyScript = true

	return nil
}

// MarkMetadata records that the metadata document was written.
func (s *Session) MarkMetadata() error {
	err := s.ensureNotSubmitted(StepMetadata)
	if err != nil {
		return err
	}

	err = requireStep(s.Steps.PolicyScript, StepMetadata, "policy script")
	if err != nil {
		return err
	}

	s.Steps.Metadata = true

	return nil
}

// RecordBuild stores the fee and returned value of the final transaction body.
func (s *Session) RecordBuild(fee, returnAmount uint64) error {
	err := s.ensureNotSubmitted(StepBuild)
	if err != nil {
		return err
	}

	err = requireStep(s.Steps.Metadata && s.Steps.ProtocolParams, StepBuild, "metadata and protocol parameters")
	if err != nil {
		return err
	}

	err = requireStep(s.PayoutAddress != "", StepBuild, "payout address")
	if err != nil {
		return err
	}

	if fee+returnAmount != s.Funding.Amount {
		return fmt.Errorf("%s: fee %d and return %d do not spend funding %d: %w",
			StepBuild, fee, returnAmount, s.Funding.Amount, ErrStepOrder)
	}

	if s.Steps.RawTx && (s.Fee != fee || s.ReturnAmount != returnAmount) {
		return fmt.Errorf("%s: %w", StepBuild, ErrImmutableField)
	}

	s.Fee = fee
	s.ReturnAmount = returnAmount
	s.Steps.RawTx = true

	return nil
}

// MarkSigned records that the final body was signed.
func (s *Session) MarkSigned() error {
	err := s.ensureNotSubmitted(StepSign)
	if err != nil {
		return err
	}

	err = requireStep(s.Steps.RawTx, StepSign, "raw transaction")
	if err != nil {
		return err
	}

	s.Steps.SignedTx = true

	return nil
}

// MarkSubmitted records the submission together with the set of outputs
// already present at the payout address and the confirmation deadline.
func (s *Session) MarkSubmitted(baseline []string, deadline time.Time) error {
	err := requireStep(s.Steps.SignedTx, StepSubmit, "signed transaction")
	if err != nil {
		return err
	}

	if s.Steps.Submitted {
		return fmt.Errorf("%s: %w", StepSubmit, ErrSessionTerminal)
	}

	s.ReturnBaseline = slices.Clone(baseline)
	s.ConfirmDeadline = &deadline
	s.Steps.Submitted = true
	s.Status = SessionStatusSubmitted

	return nil
}

// Confirm completes the session with the transaction that reached the payout
// address.
func (s *Session) Confirm(txID string) error {
	err := requireStep(s.Steps.Submitted, StepConfirmation, "submission")
	if err != nil {
		return err
	}

	if s.Status == SessionStatusExpired {
		return fmt.Errorf("%s: %w", StepConfirmation, ErrSessionTerminal)
	}

	err = setOnce(&s.FinalTxID, txID, StepConfirmation)
	if err != nil {
		return err
	}

	s.Status = SessionStatusConfirmed
	s.FailedStep = ""
	s.LastError = ""

	return nil
}

// Expire moves a submitted but unconfirmed session into the expired state.
func (s *Session) Expire() error {
	err := requireStep(s.Steps.Submitted, StepConfirmation, "submission")
	if err != nil {
		return err
	}

	if s.FinalTxID != "" {
		return fmt.Errorf("%s: %w", StepConfirmation, ErrSessionTerminal)
	}

	s.Status = SessionStatusExpired

	return nil
}

// Strand marks a session whose validity window lapsed before submission.
// The captured funding can no longer be spent by this session, so it is
// terminal and left for an operator.
func (s *Session) Strand() error {
	err := requireStep(s.Window != nil, StepChainTip, "validity window")
	if err != nil {
		return err
	}

	err = s.ensureNotSubmitted(StepChainTip)
	if err != nil {
		return err
	}

	s.Status = SessionStatusStranded

	return nil
}

// RecordFailure notes the step that failed most recently. Step flags are left
// untouched.
func (s *Session) RecordFailure(step Step, err error) {
	s.FailedStep = step
	s.LastError = err.Error()
}

// ClearFailure removes a previously recorded failure.
func (s *Session) ClearFailure() {
	s.FailedStep = ""
	s.LastError = ""
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	c := *s

	if s.Funding != nil {
		f := *s.Funding
		c.Funding = &f
	}

	if s.Window != nil {
		w := *s.Window
		c.Window = &w
	}

	if s.ConfirmDeadline != nil {
		d := *s.ConfirmDeadline
		c.ConfirmDeadline = &d
	}

	c.ReturnBaseline = slices.Clone(s.ReturnBaseline)

	return &c
}
