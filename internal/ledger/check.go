package ledger

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-recall/internal/storage"
	"github.com/Klingon-tech/klingnet-recall/pkg/contract"
	"github.com/Klingon-tech/klingnet-recall/pkg/crypto"
	"github.com/Klingon-tech/klingnet-recall/pkg/tx"
	"github.com/Klingon-tech/klingnet-recall/pkg/types"
)

// check runs every admission rule against transaction. Callers hold l.mu.
func (l *Ledger) check(transaction *tx.Transaction) (*plan, error) {
	if err := transaction.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transaction: %w", err)
	}
	txid := transaction.Hash()

	seq, err := l.store.sequence()
	if err != nil {
		return nil, err
	}
	seq++

	p := &plan{receipt: &Receipt{TxID: txid, Sequence: seq}}

	// Resolve inputs.
	var inputTotal uint64
	for i, in := range transaction.Inputs {
		u, err := l.store.get(in.PrevOut)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		if err := checkSpend(in, u); err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		if err := addValue(&inputTotal, u.Value); err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		p.spent = append(p.spent, u)
	}
	if err := transaction.VerifySignatures(); err != nil {
		return nil, err
	}

	// Contract call or issuance.
	if idx := transaction.CallInput(); idx >= 0 {
		rec, err := runCall(transaction, idx, p.spent[idx])
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", idx, err)
		}
		p.receipt.Record = rec
	} else {
		issued, err := checkIssuance(transaction, txid)
		if err != nil {
			return nil, err
		}
		p.receipt.Issued = issued
	}

	// Fee policy.
	outputTotal, err := transaction.TotalOutputValue()
	if err != nil {
		return nil, err
	}
	if outputTotal > inputTotal {
		return nil, fmt.Errorf("%w: inputs %d, outputs %d", ErrInsufficientFunds, inputTotal, outputTotal)
	}
	fee := inputTotal - outputTotal
	if required := tx.RequiredFee(transaction, l.opts.FeeRate); fee < required {
		return nil, fmt.Errorf("%w: need %d, got %d", ErrFeeTooLow, required, fee)
	}
	p.receipt.Fee = fee

	for i, out := range transaction.Outputs {
		p.created = append(p.created, &UTXO{
			Outpoint: types.Outpoint{TxID: txid, Index: uint32(i)},
			Value:    out.Value,
			Script:   out.Script,
			Sequence: seq,
		})
	}
	return p, nil
}

// checkSpend matches the kind of input against the output it spends.
func checkSpend(in tx.Input, u *UTXO) error {
	if in.IsCall() {
		if u.Script.Type != types.ScriptTypeState {
			return fmt.Errorf("%w: call spends %s output", ErrScriptMismatch, u.Script.Type)
		}
		return nil
	}

	addr, ok := scriptAddress(u.Script)
	if !ok {
		return fmt.Errorf("%w: key spend of %s output", ErrScriptMismatch, u.Script.Type)
	}
	if crypto.AddressFromPubKey(in.PubKey) != addr {
		return fmt.Errorf("%w: %s", ErrPubKeyMismatch, addr)
	}
	return nil
}

// feeChange returns the fee change of a call transaction: its last output
// when that output pays an address.
func feeChange(transaction *tx.Transaction) *tx.Output {
	if n := len(transaction.Outputs); n > 0 {
		last := transaction.Outputs[n-1]
		if last.Script.Type == types.ScriptTypeP2PKH {
			return &last
		}
	}
	return nil
}

// runCall runs the contract attached to the spent instance.
func runCall(transaction *tx.Transaction, idx int, spent *UTXO) (*contract.Record, error) {
	inst, err := instanceFromUTXO(spent)
	if err != nil {
		return nil, err
	}
	c, err := contract.New(inst)
	if err != nil {
		return nil, err
	}

	in := transaction.Inputs[idx]
	call := contract.Call{
		Method:    in.Call.Method,
		Signature: in.Signature,
		Recipient: in.Call.Recipient,
		Amount:    in.Call.Amount,
	}
	ctx := contract.NewContext(inst, transaction, feeChange(transaction))
	return c.Apply(ctx, call)
}

// checkIssuance validates the state outputs of a transaction without a
// call. Each one creates a new instance owned by its issuer.
func checkIssuance(transaction *tx.Transaction, txid types.Hash) ([]contract.Instance, error) {
	var issued []contract.Instance
	for i, out := range transaction.Outputs {
		if out.Script.Type != types.ScriptTypeState {
			continue
		}
		state, err := contract.StateFromScript(out.Script)
		if err != nil {
			return nil, fmt.Errorf("output %d: %w: %v", i, ErrBadIssuance, err)
		}
		if state.Owner != state.Issuer {
			return nil, fmt.Errorf("output %d: %w: first owner must be the issuer", i, ErrBadIssuance)
		}
		issued = append(issued, contract.Instance{
			Outpoint: types.Outpoint{TxID: txid, Index: uint32(i)},
			State:    state,
			Amount:   out.Value,
		})
	}
	return issued, nil
}

// commit applies a checked plan in one batch. Callers hold l.mu.
func (l *Ledger) commit(p *plan) error {
	b := storage.NewBatch(l.db)
	for _, u := range p.spent {
		if err := l.store.stageDelete(b, u); err != nil {
			return err
		}
	}
	for _, u := range p.created {
		if err := l.store.stagePut(b, u); err != nil {
			return err
		}
	}
	if err := l.store.stageSequence(b, p.receipt.Sequence); err != nil {
		return err
	}
	if err := b.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", p.receipt.TxID, err)
	}
	return nil
}
