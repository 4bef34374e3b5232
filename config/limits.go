package config

// Denominations of the fee coin.
const (
	Coin      = 1_000_000_000_000 // 10^12 base units per coin
	MilliCoin = 1_000_000_000     // 10^9
	MicroCoin = 1_000_000         // 10^6

	Decimals = 12 // Digits after the decimal point in coin amounts.
)

// Transaction size limits enforced by the ledger on every submission.
const (
	MaxTxInputs   = 2500   // Max inputs per transaction
	MaxTxOutputs  = 2500   // Max outputs per transaction
	MaxScriptData = 65_536 // 64 KB max script data per output
)

// DefaultFeeRate is the minimum fee in base units per signing byte.
const DefaultFeeRate = 10 * MicroCoin

// DefaultFaucetMax caps a single faucet payout.
const DefaultFaucetMax = 1000 * Coin
