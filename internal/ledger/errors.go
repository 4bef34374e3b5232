package ledger

import "errors"

// Ledger admission errors.
var (
	ErrInputNotFound     = errors.New("input not found or already spent")
	ErrScriptMismatch    = errors.New("input script does not match spend type")
	ErrPubKeyMismatch    = errors.New("public key does not match coin address")
	ErrInsufficientFunds = errors.New("outputs exceed inputs")
	ErrFeeTooLow         = errors.New("fee below required minimum")
	ErrBadIssuance       = errors.New("invalid issuance output")
	ErrFaucetDisabled    = errors.New("faucet disabled")
	ErrFaucetLimit       = errors.New("faucet amount out of range")
)
