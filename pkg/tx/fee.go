package tx

// EstimateTxFee returns the minimum fee for a transaction at the given fee
// rate (base units per byte of SigningBytes).
//
//	version(4) + inputCount(4) + coins(37*n) + calls(79*n) + outputCount(4) + outputs + locktime(8)
//
// Coin outputs are 33 bytes (8 value + 1 type + 4 len + 20 address) and
// state outputs are 80 bytes (8 value + 1 type + 4 len + 67 state).
func EstimateTxFee(coinInputs, callInputs, coinOutputs, stateOutputs int, feeRate uint64) uint64 {
	const overhead = 4 + 4 + 4 + 8
	const perCoinInput = 32 + 4 + 1
	const perCallInput = 32 + 4 + 1 + 1 + 33 + 8
	const perCoinOutput = 8 + 1 + 4 + 20
	const perStateOutput = 8 + 1 + 4 + 67

	size := overhead +
		perCoinInput*coinInputs +
		perCallInput*callInputs +
		perCoinOutput*coinOutputs +
		perStateOutput*stateOutputs
	return uint64(size) * feeRate
}

// RequiredFee returns the exact minimum fee for a fully built transaction.
func RequiredFee(transaction *Transaction, feeRate uint64) uint64 {
	return uint64(len(transaction.SigningBytes())) * feeRate
}
