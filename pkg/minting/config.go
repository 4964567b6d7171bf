package minting

import "time"

// Defaults of the minting workflow.
const (
	DefaultSlotMargin   uint64 = 3600
	DefaultMinFunding   uint64 = 5_000_000
	DefaultFeePadding   uint64 = 100
	DefaultMinOutput    uint64 = 1_000_000
	DefaultPollInterval        = 5 * time.Second
	DefaultSlotDuration        = time.Second
)

// WitnessCount is the number of signatures on a mint transaction: the
// payment key and the policy key.
const WitnessCount = 2

// Config tunes the minting workflow.
type Config struct {
	// SlotMargin is the length of the validity window in slots.
	SlotMargin uint64 `validate:"min=1"`

	// MinFunding is the smallest funding output accepted, in lovelace.
	MinFunding uint64 `validate:"min=1"`

	// FeePadding is added to the computed minimum fee.
	FeePadding uint64

	// MinOutput is the smallest value the returned output may carry.
	MinOutput uint64

	// PollInterval is the pause between confirmation checks.
	PollInterval time.Duration `validate:"min=1ms"`

	// ConfirmTimeout overrides the confirmation deadline derived from the
	// expiry slot when positive.
	ConfirmTimeout time.Duration `validate:"min=0"`

	// SlotDuration converts slots into wall-clock time.
	SlotDuration time.Duration `validate:"min=1ms"`
}

// DefaultConfig returns the standard configuration.
func DefaultConfig() Config {
	return Config{
		SlotMargin:   DefaultSlotMargin,
		MinFunding:   DefaultMinFunding,
		FeePadding:   DefaultFeePadding,
		MinOutput:    DefaultMinOutput,
		PollInterval: DefaultPollInterval,
		SlotDuration: DefaultSlotDuration,
	}
}
