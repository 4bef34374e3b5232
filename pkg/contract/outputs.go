package contract

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-recall/pkg/tx"
	"github.com/Klingon-tech/klingnet-recall/pkg/types"
)

// TransferOutputs derives the outputs a transfer of amount out of total
// must create, in order: the recipient's instance, the sender's remainder
// when amount < total, and the fee change when present.
// The caller checks 0 < amount <= total.
func TransferOutputs(state State, total, amount uint64, recipient types.PubKey, change *tx.Output) []tx.Output {
	outs := make([]tx.Output, 0, 3)
	outs = append(outs, state.WithOwner(recipient).Output(amount))
	if left := total - amount; left > 0 {
		outs = append(outs, state.Output(left))
	}
	return appendChange(outs, change)
}

// RecallOutputs derives the outputs of a recall: the whole value back to
// the issuer, then the fee change when present.
func RecallOutputs(state State, total uint64, change *tx.Output) []tx.Output {
	outs := make([]tx.Output, 0, 2)
	outs = append(outs, state.WithOwner(state.Issuer).Output(total))
	return appendChange(outs, change)
}

func appendChange(outs []tx.Output, change *tx.Output) []tx.Output {
	if change != nil && change.Value > 0 {
		outs = append(outs, *change)
	}
	return outs
}

// checkAmount enforces 0 < amount <= total.
func checkAmount(amount, total uint64) error {
	if amount == 0 || amount > total {
		return fmt.Errorf("%w: %d not in (0, %d]", ErrInvalidAmount, amount, total)
	}
	return nil
}

// reconcile compares the derived outputs against the committed digest.
func reconcile(derived []tx.Output, committed types.Hash) (types.Hash, error) {
	got := tx.HashOutputs(derived)
	if got != committed {
		return types.Hash{}, fmt.Errorf("%w: derived %s, committed %s", ErrOutputMismatch, got, committed)
	}
	return got, nil
}
