package minting

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/mintflow/pkg/artifacts"
	"github.com/dukex/mintflow/pkg/ledger"
	"github.com/dukex/mintflow/pkg/metadata"
	"github.com/dukex/mintflow/pkg/models"
)

// Mint runs the mint phase and waits for confirmation.
func (e *Engine) Mint(ctx context.Context, id string) (*models.Session, error) {
	session, err := e.Submit(ctx, id)
	if err != nil {
		return session, err
	}

	return e.AwaitConfirmation(ctx, id)
}

// Submit runs the mint phase up to and including submission. It rejects
// sessions that are not prepared or were already submitted without calling
// the ledger client.
func (e *Engine) Submit(ctx context.Context, id string) (*models.Session, error) {
	release, err := e.lock(ctx, sessionLockKey(id))
	if err != nil {
		return nil, &StepError{SessionID: id, Step: models.StepSession, Err: err}
	}
	defer release()

	session, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if session.Steps.Submitted {
		return session, &StepError{SessionID: id, Step: models.StepSession, Err: ErrAlreadyMinted}
	}

	if !session.PreMintComplete() {
		return session, &StepError{SessionID: id, Step: models.StepSession, Err: ErrPreMintIncomplete}
	}

	if session.Status == models.SessionStatusStranded {
		return session, &StepError{SessionID: id, Step: models.StepChainTip, Err: ErrWindowLapsed}
	}

	paths, err := e.layout.Session(id)
	if err != nil {
		return session, &StepError{SessionID: id, Step: models.StepSession, Err: err}
	}

	var tip ledger.Tip

	steps := []struct {
		step models.Step
		run  func(ctx context.Context) error
	}{
		{models.StepChainTip, func(ctx context.Context) error {
			tip, err = e.chainTipStep(ctx, session)

			return err
		}},
		{models.StepFunding, func(ctx context.Context) error { return e.fundingStep(ctx, session, tip) }},
		{models.StepReturnAddress, func(ctx context.Context) error { return e.returnAddressStep(ctx, session) }},
		{models.StepPolicyScript, func(ctx context.Context) error { return e.policyScriptStep(ctx, session, paths) }},
		{models.StepMetadata, func(ctx context.Context) error { return e.metadataStep(ctx, session, paths) }},
		{models.StepBuild, func(ctx context.Context) error { return e.buildStep(ctx, session, paths) }},
		{models.StepSign, func(ctx context.Context) error { return e.signStep(ctx, session, paths) }},
		{models.StepSubmit, func(ctx context.Context) error { return e.submitStep(ctx, session, paths, tip) }},
	}

	for _, s := range steps {
		err := e.runStep(ctx, session, s.step, s.run)
		if err != nil {
			return session, err
		}
	}

	return session, nil
}

// chainTipStep reads the current slot. A recorded window that the chain has
// already passed can no longer produce a valid transaction, so the session is
// stranded.
func (e *Engine) chainTipStep(ctx context.Context, session *models.Session) (ledger.Tip, error) {
	tip, err := e.ledger.QueryTip(ctx)
	if err != nil {
		return ledger.Tip{}, err
	}

	if session.Window != nil && tip.Slot >= session.Window.ExpirySlot {
		err = session.Strand()
		if err != nil {
			return ledger.Tip{}, err
		}

		return ledger.Tip{}, fmt.Errorf("tip %d reached expiry slot %d: %w", tip.Slot, session.Window.ExpirySlot, ErrWindowLapsed)
	}

	return tip, nil
}

// fundingStep captures the funding output and the validity window once.
// Only the first output at the custodial address is considered.
func (e *Engine) fundingStep(ctx context.Context, session *models.Session, tip ledger.Tip) error {
	if session.Funding != nil {
		return nil
	}

	utxos, err := e.ledger.QueryUTXOs(ctx, session.CustodialAddress)
	if err != nil {
		return err
	}

	if len(utxos) == 0 {
		return fmt.Errorf("no outputs at %s: %w", session.CustodialAddress, ErrNotFunded)
	}

	utxo := utxos[0]
	if utxo.Lovelace < e.config.MinFunding {
		return fmt.Errorf("output %s holds %d lovelace, need %d: %w",
			utxo.Ref(), utxo.Lovelace, e.config.MinFunding, ErrInsufficientFunds)
	}

	err = session.RecordFunding(
		models.Funding{TxID: utxo.TxID, OutputIndex: utxo.Index, Amount: utxo.Lovelace},
		models.NewTimingWindow(tip.Slot, e.config.SlotMargin),
	)
	if err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "Funding captured",
		"session_id", session.ID,
		"utxo", utxo.Ref(),
		"lovelace", utxo.Lovelace,
		"expiry_slot", session.Window.ExpirySlot,
	)

	return e.save(ctx, session)
}

func (e *Engine) returnAddressStep(ctx context.Context, session *models.Session) error {
	if session.PayoutAddress != "" {
		return nil
	}

	address, err := e.resolver.FundingSource(ctx, session.Funding.TxID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIndexerUnavailable, err)
	}

	err = session.SetPayoutAddress(address)
	if err != nil {
		return err
	}

	return e.save(ctx, session)
}

// policyScriptStep writes the policy script bound to the expiry slot and
// derives its id. Nothing is recorded unless both succeed.
func (e *Engine) policyScriptStep(ctx context.Context, session *models.Session, paths artifacts.SessionPaths) error {
	if session.Steps.PolicyScript {
		return nil
	}

	if !session.Steps.PolicyKey {
		return fmt.Errorf("policy script requires the policy key: %w", models.ErrStepOrder)
	}

	if session.Window == nil {
		return fmt.Errorf("policy script requires the timing window: %w", models.ErrStepOrder)
	}

	keyHash, err := e.ledger.KeyHash(ctx, paths.Policy.VKey)
	if err != nil {
		return err
	}

	script, err := metadata.PolicyScript(keyHash, session.Window.ExpirySlot).Encode()
	if err != nil {
		return err
	}

	err = artifacts.WriteFile(paths.PolicyScript, script)
	if err != nil {
		return err
	}

	policyID, err := e.ledger.PolicyID(ctx, paths.PolicyScript)
	if err != nil {
		return err
	}

	err = session.RecordPolicy(keyHash, policyID)
	if err != nil {
		return err
	}

	return e.save(ctx, session)
}

func (e *Engine) metadataStep(ctx context.Context, session *models.Session, paths artifacts.SessionPaths) error {
	if session.Steps.Metadata {
		return nil
	}

	document, err := metadata.NewDocument(session.PolicyID, session.Token).Encode()
	if err != nil {
		return err
	}

	err = artifacts.WriteFile(paths.Metadata, document)
	if err != nil {
		return err
	}

	err = session.MarkMetadata()
	if err != nil {
		return err
	}

	return e.save(ctx, session)
}

// confirmDeadline estimates when the expiry slot is reached.
func (e *Engine) confirmDeadline(session *models.Session, tip ledger.Tip) time.Time {
	now := e.now()
	if e.config.ConfirmTimeout > 0 {
		return now.Add(e.config.ConfirmTimeout)
	}

	var remaining uint64
	if session.Window.ExpirySlot > tip.Slot {
		remaining = session.Window.ExpirySlot - tip.Slot
	}

	return now.Add(time.Duration(remaining) * e.config.SlotDuration)
}
