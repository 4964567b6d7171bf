// Package events defines the mint lifecycle events exchanged between the API
// and the worker.
package events

import (
	"errors"
	"time"

	"github.com/dukex/mintflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every mint lifecycle event.
const Topic = "mintflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	MintRequestedEvent EventType = "mint.requested"
	MintSubmittedEvent EventType = "mint.submitted"
	MintConfirmedEvent EventType = "mint.confirmed"
	MintFailedEvent    EventType = "mint.failed"
	MintExpiredEvent   EventType = "mint.expired"
)

// ErrMissingSessionID is returned by Validate when an event names no session.
var ErrMissingSessionID = errors.New("session_id is required")

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"session_id"`
	WorkerID  string         `json:"worker_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Validate checks the fields every event carries.
func (b BaseEvent) Validate() error {
	if b.SessionID == "" {
		return ErrMissingSessionID
	}

	return nil
}

func NewBaseEvent(eventType EventType, sessionID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		SessionID: sessionID,
		Metadata:  make(map[string]any),
	}
}

// MintRequested asks a worker to run the mint phase of a prepared session.
type MintRequested struct {
	BaseEvent

	RequestedBy string `json:"requested_by,omitempty"`
}

func (m MintRequested) GetType() EventType {
	return MintRequestedEvent
}

func NewMintRequested(sessionID, requestedBy string) *MintRequested {
	return &MintRequested{
		BaseEvent:   NewBaseEvent(MintRequestedEvent, sessionID),
		RequestedBy: requestedBy,
	}
}

// MintSubmitted is published once the signed transaction was accepted by the
// node.
type MintSubmitted struct {
	BaseEvent

	PolicyID        string    `json:"policy_id"`
	Fee             uint64    `json:"fee"`
	ExpirySlot      uint64    `json:"expiry_slot"`
	ConfirmDeadline time.Time `json:"confirm_deadline"`
}

func (m MintSubmitted) GetType() EventType {
	return MintSubmittedEvent
}

func NewMintSubmitted(session *models.Session) *MintSubmitted {
	event := &MintSubmitted{
		BaseEvent: NewBaseEvent(MintSubmittedEvent, session.ID),
		PolicyID:  session.PolicyID,
		Fee:       session.Fee,
	}

	if session.Window != nil {
		event.ExpirySlot = session.Window.ExpirySlot
	}

	if session.ConfirmDeadline != nil {
		event.ConfirmDeadline = *session.ConfirmDeadline
	}

	return event
}

// MintConfirmed is published when the minted output reached the payout
// address.
type MintConfirmed struct {
	BaseEvent

	TxID          string `json:"tx_id"`
	PolicyID      string `json:"policy_id"`
	PayoutAddress string `json:"payout_address"`
}

func (m MintConfirmed) GetType() EventType {
	return MintConfirmedEvent
}

func NewMintConfirmed(session *models.Session) *MintConfirmed {
	return &MintConfirmed{
		BaseEvent:     NewBaseEvent(MintConfirmedEvent, session.ID),
		TxID:          session.FinalTxID,
		PolicyID:      session.PolicyID,
		PayoutAddress: session.PayoutAddress,
	}
}

// MintFailed is published when a mint attempt stopped at a step.
type MintFailed struct {
	BaseEvent

	Step      models.Step `json:"step"`
	Error     string      `json:"error"`
	Retryable bool        `json:"retryable"`
}

func (m MintFailed) GetType() EventType {
	return MintFailedEvent
}

func NewMintFailed(sessionID string, step models.Step, err error, retryable bool) *MintFailed {
	return &MintFailed{
		BaseEvent: NewBaseEvent(MintFailedEvent, sessionID),
		Step:      step,
		Error:     err.Error(),
		Retryable: retryable,
	}
}

// MintExpired is published when a submitted session was never confirmed.
type MintExpired struct {
	BaseEvent

	PolicyID   string `json:"policy_id"`
	ExpirySlot uint64 `json:"expiry_slot"`
}

func (m MintExpired) GetType() EventType {
	return MintExpiredEvent
}

func NewMintExpired(session *models.Session) *MintExpired {
	event := &MintExpired{
		BaseEvent: NewBaseEvent(MintExpiredEvent, session.ID),
		PolicyID:  session.PolicyID,
	}

	if session.Window != nil {
		event.ExpirySlot = session.Window.ExpirySlot
	}

	return event
}

// New returns an empty event of the given type, ready to be decoded into.
func New(eventType EventType) (any, bool) {
	switch eventType {
	case MintRequestedEvent:
		return &MintRequested{}, true
	case MintSubmittedEvent:
		return &MintSubmitted{}, true
	case MintConfirmedEvent:
		return &MintConfirmed{}, true
	case MintFailedEvent:
		return &MintFailed{}, true
	case MintExpiredEvent:
		return &MintExpired{}, true
	default:
		return nil, false
	}
}
