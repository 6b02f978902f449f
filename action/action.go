// Package action contains reified effects - descriptions of what to do
// without actually doing it. These are pure data structures.
package action

import (
	"github.com/google/uuid"

	"github.com/frobware/go-tracefabric"
)

// Action represents an effect to be executed.
// Actions are data - they describe what to do, not how.
type Action interface {
	isAction()
}

// Ledger actions - operations on the session ledger

// AbandonSession marks an active session whose path is no longer held
// by any process as failed.
type AbandonSession struct {
	Session uuid.UUID
	Source  tracefabric.DeviceID
	Sink    tracefabric.DeviceID
	Reason  string
}

func (AbandonSession) isAction() {}

// Hardware actions - operations on device registers

// ClearClaimTag clears the self-hosted claim tag of a device that no
// agent holds. Tags records every tag bit observed when the action was
// computed.
type ClearClaimTag struct {
	Device tracefabric.DeviceID
	Tags   uint32
}

func (ClearClaimTag) isAction() {}
