package models

import "fmt"

// Step names a unit of work in the minting workflow.
type Step string

const (
	StepSession          Step = "session"
	StepStakeKey         Step = "stake_key"
	StepPaymentKey       Step = "payment_key"
	StepCustodialAddress Step = "custodial_address"
	StepProtocolParams   Step = "protocol_params"
	StepPolicyKey        Step = "policy_key"
	StepChainTip         Step = "chain_tip"
	StepFunding          Step = "funding"
	StepReturnAddress    Step = "return_address"
	StepPolicyScript     Step = "policy_script"
	StepMetadata         Step = "metadata"
	StepBuild            Step = "build"
	StepSign             Step = "sign"
	StepSubmit           Step = "submit"
	StepConfirmation     Step = "confirmation"
)

// StepFlags holds the completion flag of every persisted step. Flags only
// ever move from false to true.
type StepFlags struct {
	StakeKey       bool `json:"stake_key"`
	PaymentKey     bool `json:"payment_key"`
	ProtocolParams bool `json:"protocol_params"`
	PolicyKey      bool `json:"policy_key"`
	PolicyScript   bool `json:"policy_script"`
	Metadata       bool `json:"metadata"`
	RawTx          bool `json:"raw_tx"`
	SignedTx       bool `json:"signed_tx"`
	Submitted      bool `json:"submitted"`
}

// MintState is the furthest point a session has reached in the mint phase.
type MintState uint8

const (
	// MintStatePending denotes that no mint step has completed yet.
	MintStatePending MintState = iota

	// MintStateFundingCheck denotes that a funding output was captured.
	MintStateFundingCheck

	// MintStateReturnAddrLookup denotes that the payout address is known.
	MintStateReturnAddrLookup

	// MintStatePolicyReady denotes that the policy script and id exist.
	MintStatePolicyReady

	// MintStateMetadataReady denotes that the metadata document was written.
	MintStateMetadataReady

	// MintStateRawBuilt denotes that the zero fee draft was built. It is
	// never persisted on its own since the real fee follows immediately.
	MintStateRawBuilt

	// MintStateFeeComputed denotes that the final body with the real fee
	// was built.
	MintStateFeeComputed

	// MintStateSigned denotes that the body was signed.
	MintStateSigned

	// MintStateSubmitted denotes that the transaction was accepted for
	// submission and is awaiting confirmation.
	MintStateSubmitted

	// MintStateConfirmed is the successful terminal state.
	MintStateConfirmed

	// MintStateExpired is the terminal state for a submission that never
	// confirmed inside its validity window.
	MintStateExpired
)

func (m MintState) String() string {
	switch m {
	case MintStatePending:
		return "PENDING"
	case MintStateFundingCheck:
		return "FUNDING_CHECK"
	case MintStateReturnAddrLookup:
		return "RETURN_ADDR_LOOKUP"
	case MintStatePolicyReady:
		return "POLICY_READY"
	case MintStateMetadataReady:
		return "METADATA_READY"
	case MintStateRawBuilt:
		return "RAW_BUILT"
	case MintStateFeeComputed:
		return "FEE_COMPUTED"
	case MintStateSigned:
		return "SIGNED"
	case MintStateSubmitted:
		return "SUBMITTED"
	case MintStateConfirmed:
		return "CONFIRMED"
	case MintStateExpired:
		return "EXPIRED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(m))
	}
}
