package domain

import "errors"

// ErrDuplicateDelivery reports a redelivered prompt event for an answer id
// whose run already left RECEIVED. Redelivery is expected under at-least-once
// transport and is treated as a silent no-op, never an error surfaced to a
// caller.
var ErrDuplicateDelivery = errors.New("domain: prompt event already handled")

// Orchestrator run states for one answer id. A run leaves RECEIVED exactly
// once; redelivered prompt events for an already-claimed answer id are
// no-ops. FAILED is terminal and reachable from any non-terminal state.
const (
	RunReceived           = "RECEIVED"
	RunCredentialAcquired = "CREDENTIAL_ACQUIRED"
	RunGenerating         = "GENERATING"
	RunCompleted          = "COMPLETED"
	RunFailed             = "FAILED"
)
