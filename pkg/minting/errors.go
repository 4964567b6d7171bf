package minting

import (
	"errors"
	"fmt"

	"github.com/dukex/mintflow/pkg/ledger"
	"github.com/dukex/mintflow/pkg/models"
	"github.com/dukex/mintflow/pkg/persistence"
)

var (
	// ErrPreMintIncomplete is returned when mint is attempted before every
	// pre-mint step finished.
	ErrPreMintIncomplete = errors.New("pre-mint phase incomplete")

	// ErrAlreadyMinted is returned when mint is attempted on a submitted session.
	ErrAlreadyMinted = errors.New("session already minted")

	// ErrNotSubmitted is returned when confirmation is awaited for a session
	// that was never submitted.
	ErrNotSubmitted = errors.New("session not submitted")

	// ErrNotFunded is returned while the custodial address holds no output.
	// Callers are expected to retry later.
	ErrNotFunded = errors.New("custodial address not yet funded")

	// ErrInsufficientFunds is returned when the funding output is below the
	// minimum threshold. The output is left untouched.
	ErrInsufficientFunds = errors.New("funding below minimum threshold")

	// ErrIndexerUnavailable is returned when the funding transaction could not
	// be looked up.
	ErrIndexerUnavailable = errors.New("return address lookup failed")

	// ErrFeeUnderflow is returned when the fee leaves too little to return.
	ErrFeeUnderflow = errors.New("fee leaves no valid return output")

	// ErrWindowLapsed is returned when the chain passed the expiry slot before
	// the transaction was submitted.
	ErrWindowLapsed = errors.New("validity window lapsed before submission")

	// ErrConfirmationExpired is returned when no confirmation arrived before
	// the deadline.
	ErrConfirmationExpired = errors.New("confirmation not observed before deadline")

	// ErrSessionBusy is returned when another invocation drives the session.
	ErrSessionBusy = errors.New("session is being processed")
)

// StepError names the step a workflow failed at.
type StepError struct {
	SessionID string
	Step      models.Step
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("session %s: step %s failed: %v", e.SessionID, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// FailedStep returns the step carried by err.
func FailedStep(err error) (models.Step, bool) {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr.Step, true
	}

	return "", false
}

// IsPrecondition reports whether err rejected the request before any
// external call was made.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrPreMintIncomplete) ||
		errors.Is(err, ErrAlreadyMinted) ||
		errors.Is(err, ErrNotSubmitted) ||
		errors.Is(err, ErrSessionBusy) ||
		errors.Is(err, persistence.ErrSessionNotFound) ||
		errors.Is(err, models.ErrStepOrder)
}

// IsRetryable reports whether retrying the same call later may succeed
// without operator intervention.
func IsRetryable(err error) bool {
	var cmdErr *ledger.CommandError

	return errors.Is(err, ErrNotFunded) ||
		errors.Is(err, ErrIndexerUnavailable) ||
		errors.Is(err, ErrSessionBusy) ||
		errors.Is(err, persistence.ErrVersionConflict) ||
		errors.As(err, &cmdErr)
}

// recordable reports whether a failure is worth noting on the session.
// Expected conditions leave the session untouched.
func recordable(err error) bool {
	return !IsPrecondition(err) &&
		!errors.Is(err, ErrNotFunded) &&
		!errors.Is(err, ErrIndexerUnavailable) &&
		!errors.Is(err, persistence.ErrVersionConflict)
}
