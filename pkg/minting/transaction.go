package minting

import (
	"context"
	"fmt"

	"github.com/dukex/mintflow/pkg/artifacts"
	"github.com/dukex/mintflow/pkg/ledger"
	"github.com/dukex/mintflow/pkg/models"
)

func (e *Engine) buildParams(session *models.Session, paths artifacts.SessionPaths, fee, returnAmount uint64) ledger.BuildParams {
	return ledger.BuildParams{
		TxIn:             session.Funding.Ref(),
		PayoutAddress:    session.PayoutAddress,
		ReturnAmount:     returnAmount,
		Fee:              fee,
		PolicyID:         session.PolicyID,
		AssetName:        session.Token.AssetName(),
		Quantity:         session.Token.Quantity,
		MetadataFile:     paths.Metadata,
		InvalidHereafter: session.Window.ExpirySlot,
		OutFile:          paths.RawTx,
	}
}

// ComputeFee returns the declared fee and the value returned to the payout
// address for a funding amount and a minimum fee.
func ComputeFee(funding, minFee, padding, minOutput uint64) (fee, returnAmount uint64, err error) {
	fee = minFee + padding
	if fee < minFee || fee > funding {
		return 0, 0, fmt.Errorf("fee %d exceeds funding %d: %w", fee, funding, ErrFeeUnderflow)
	}

	returnAmount = funding - fee
	if returnAmount < minOutput {
		return 0, 0, fmt.Errorf("return %d below minimum output %d: %w", returnAmount, minOutput, ErrFeeUnderflow)
	}

	return fee, returnAmount, nil
}

// buildStep builds a zero fee draft, asks the ledger client for the minimum
// fee of that shape, then rebuilds the body with the padded fee.
func (e *Engine) buildStep(ctx context.Context, session *models.Session, paths artifacts.SessionPaths) error {
	if session.Steps.RawTx {
		return nil
	}

	if !session.Steps.Metadata || session.PayoutAddress == "" {
		return fmt.Errorf("build requires metadata and payout address: %w", models.ErrStepOrder)
	}

	err := e.ledger.BuildRaw(ctx, e.buildParams(session, paths, 0, session.Funding.Amount))
	if err != nil {
		return err
	}

	minFee, err := e.ledger.CalculateMinFee(ctx, ledger.FeeParams{
		TxBodyFile:         paths.RawTx,
		ProtocolParamsFile: e.layout.ProtocolParams(),
		TxInCount:          1,
		TxOutCount:         1,
		WitnessCount:       WitnessCount,
	})
	if err != nil {
		return err
	}

	fee, returnAmount, err := ComputeFee(session.Funding.Amount, minFee, e.config.FeePadding, e.config.MinOutput)
	if err != nil {
		artifacts.Remove(paths.RawTx)

		return err
	}

	err = e.ledger.BuildRaw(ctx, e.buildParams(session, paths, fee, returnAmount))
	if err != nil {
		return err
	}

	err = session.RecordBuild(fee, returnAmount)
	if err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "Transaction body built",
		"session_id", session.ID,
		"fee", fee,
		"return_amount", returnAmount,
	)

	return e.save(ctx, session)
}

func (e *Engine) signStep(ctx context.Context, session *models.Session, paths artifacts.SessionPaths) error {
	if session.Steps.SignedTx {
		return nil
	}

	err := e.ledger.Sign(ctx, ledger.SignParams{
		TxBodyFile:      paths.RawTx,
		SigningKeyFiles: []string{paths.Payment.SKey, paths.Policy.SKey},
		ScriptFile:      paths.PolicyScript,
		OutFile:         paths.SignedTx,
	})
	if err != nil {
		artifacts.Remove(paths.SignedTx)

		return err
	}

	err = session.MarkSigned()
	if err != nil {
		return err
	}

	return e.save(ctx, session)
}

// submitStep records the outputs already at the payout address, submits the
// signed transaction and marks the session submitted. From here on the
// session is only ever polled, never resubmitted.
func (e *Engine) submitStep(ctx context.Context, session *models.Session, paths artifacts.SessionPaths, tip ledger.Tip) error {
	existing, err := e.ledger.QueryUTXOs(ctx, session.PayoutAddress)
	if err != nil {
		return err
	}

	baseline := make([]string, 0, len(existing))
	for _, utxo := range existing {
		baseline = append(baseline, utxo.Ref())
	}

	err = e.ledger.Submit(ctx, paths.SignedTx)
	if err != nil {
		return err
	}

	err = session.MarkSubmitted(baseline, e.confirmDeadline(session, tip))
	if err != nil {
		return err
	}

	err = e.save(ctx, session)
	if err != nil {
		e.logger.ErrorContext(ctx, "Transaction submitted but session could not be persisted",
			"session_id", session.ID,
			"error", err,
		)

		return err
	}

	e.logger.InfoContext(ctx, "Transaction submitted",
		"session_id", session.ID,
		"policy_id", session.PolicyID,
		"confirm_deadline", session.ConfirmDeadline,
	)

	return nil
}
