package minting

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/mintflow/pkg/artifacts"
	"github.com/dukex/mintflow/pkg/models"
	"github.com/dukex/mintflow/pkg/persistence"
)

// PreMintRequest identifies the session to prepare. Creator and Token are
// only used when the session does not exist yet.
type PreMintRequest struct {
	SessionID string
	Creator   string
	Token     models.TokenMetadata
}

// PreMint brings a session to the point where it can be funded: keys,
// custodial address, protocol parameters and policy key. Completed steps
// are skipped, so calling it on a prepared session makes no ledger calls.
func (e *Engine) PreMint(ctx context.Context, req PreMintRequest) (*models.Session, error) {
	release, err := e.lock(ctx, sessionLockKey(req.SessionID))
	if err != nil {
		return nil, &StepError{SessionID: req.SessionID, Step: models.StepSession, Err: err}
	}
	defer release()

	session, err := e.materialize(ctx, req)
	if err != nil {
		return nil, &StepError{SessionID: req.SessionID, Step: models.StepSession, Err: err}
	}

	paths, err := e.layout.EnsureSessionDir(session.ID)
	if err != nil {
		return session, &StepError{SessionID: session.ID, Step: models.StepSession, Err: err}
	}

	steps := []struct {
		step models.Step
		run  func(ctx context.Context) error
	}{
		{models.StepStakeKey, func(ctx context.Context) error { return e.stakeKeyStep(ctx, session, paths) }},
		{models.StepPaymentKey, func(ctx context.Context) error { return e.paymentKeyStep(ctx, session, paths) }},
		{models.StepCustodialAddress, func(ctx context.Context) error { return e.custodialAddressStep(ctx, session, paths) }},
		{models.StepProtocolParams, func(ctx context.Context) error { return e.protocolParamsStep(ctx, session) }},
		{models.StepPolicyKey, func(ctx context.Context) error { return e.policyKeyStep(ctx, session, paths) }},
	}

	for _, s := range steps {
		err := e.runStep(ctx, session, s.step, s.run)
		if err != nil {
			return session, err
		}
	}

	e.logger.InfoContext(ctx, "Pre-mint complete",
		"session_id", session.ID,
		"custodial_address", session.CustodialAddress,
	)

	return session, nil
}

func (e *Engine) materialize(ctx context.Context, req PreMintRequest) (*models.Session, error) {
	session, err := e.store.Get(ctx, req.SessionID)
	if err == nil {
		return session, nil
	}

	if !errors.Is(err, persistence.ErrSessionNotFound) {
		return nil, err
	}

	session = models.NewSession(req.SessionID, req.Creator, req.Token)

	err = e.store.Create(ctx, session)
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "Session created", "session_id", session.ID, "ticker", session.Token.Ticker)

	return session, nil
}

// generateKeys runs gen unless a previous run already left both key files.
// Files of a failed run are removed so they are never mistaken for a result.
func (e *Engine) generateKeys(ctx context.Context, pair artifacts.KeyPair, gen func(ctx context.Context, vkey, skey string) error) error {
	if pair.Exists() {
		e.logger.DebugContext(ctx, "Reusing existing key pair", "vkey", pair.VKey)

		return nil
	}

	err := gen(ctx, pair.VKey, pair.SKey)
	if err != nil {
		artifacts.Remove(pair.VKey, pair.SKey)

		return err
	}

	return nil
}

func (e *Engine) stakeKeyStep(ctx context.Context, session *models.Session, paths artifacts.SessionPaths) error {
	if session.Steps.StakeKey {
		return nil
	}

	err := e.generateKeys(ctx, paths.Stake, e.ledger.GenerateStakeKeys)
	if err != nil {
		return err
	}

	session.MarkStakeKey()

	return e.save(ctx, session)
}

func (e *Engine) paymentKeyStep(ctx context.Context, session *models.Session, paths artifacts.SessionPaths) error {
	if session.Steps.PaymentKey {
		return nil
	}

	err := e.generateKeys(ctx, paths.Payment, e.ledger.GeneratePaymentKeys)
	if err != nil {
		return err
	}

	session.MarkPaymentKey()

	return e.save(ctx, session)
}

func (e *Engine) custodialAddressStep(ctx context.Context, session *models.Session, paths artifacts.SessionPaths) error {
	if session.CustodialAddress != "" {
		return nil
	}

	if !session.Steps.StakeKey || !session.Steps.PaymentKey {
		return fmt.Errorf("custodial address requires stake and payment keys: %w", models.ErrStepOrder)
	}

	if !artifacts.Exists(paths.Address) {
		err := e.ledger.BuildAddress(ctx, paths.Payment.VKey, paths.Stake.VKey, paths.Address)
		if err != nil {
			artifacts.Remove(paths.Address)

			return err
		}
	}

	content, err := artifacts.ReadString(paths.Address)
	if err != nil {
		return err
	}

	address := strings.TrimSpace(content)
	if address == "" {
		return fmt.Errorf("address file %s is empty: %w", paths.Address, models.ErrStepOrder)
	}

	err = session.SetCustodialAddress(address)
	if err != nil {
		return err
	}

	return e.save(ctx, session)
}

// protocolParamsStep is skipped only when the flag is set and the shared file
// is still on disk.
func (e *Engine) protocolParamsStep(ctx context.Context, session *models.Session) error {
	if session.Steps.ProtocolParams && artifacts.Exists(e.layout.ProtocolParams()) {
		return nil
	}

	_, err := e.layout.EnsureProtocolParams(ctx, e.ledger.ExportProtocolParams)
	if err != nil {
		return err
	}

	if session.Steps.ProtocolParams {
		return nil
	}

	session.MarkProtocolParams()

	return e.save(ctx, session)
}

func (e *Engine) policyKeyStep(ctx context.Context, session *models.Session, paths artifacts.SessionPaths) error {
	if session.Steps.PolicyKey {
		return nil
	}

	err := e.generateKeys(ctx, paths.Policy, e.ledger.GeneratePolicyKeys)
	if err != nil {
		return err
	}

	session.MarkPolicyKey()

	return e.save(ctx, session)
}
