// Package contract implements the re-callable token's state transitions:
// ownership rules, signature authorization and output reconciliation.
//
// The package performs pure validation. Persisting the resulting Record and
// preventing double spends of an instance is the ledger's job.
package contract

import "errors"

// Transition errors. All are terminal: the instance keeps its prior state.
var (
	ErrAuthorization  = errors.New("signature does not authorize transition")
	ErrOwnershipRule  = errors.New("owner is neither issuer nor recipient")
	ErrInvalidAmount  = errors.New("invalid transfer amount")
	ErrOutputMismatch = errors.New("derived outputs do not match commitment")
	ErrSuperseded     = errors.New("instance already transitioned")
	ErrRecallDisabled = errors.New("contract does not support recall")
	ErrUnknownKind    = errors.New("unknown contract kind")
	ErrUnknownMethod  = errors.New("unknown contract method")
	ErrInvalidState   = errors.New("invalid ownership state")
	ErrInvalidContext = errors.New("invalid spending context")
)
