package ledger

import (
	"testing"

	"github.com/Klingon-tech/klingnet-recall/internal/storage"
	"github.com/Klingon-tech/klingnet-recall/pkg/contract"
	"github.com/Klingon-tech/klingnet-recall/pkg/crypto"
	"github.com/Klingon-tech/klingnet-recall/pkg/tx"
	"github.com/Klingon-tech/klingnet-recall/pkg/types"
)

const testFeeRate = 2

type testParty struct {
	key  *crypto.PrivateKey
	pub  types.PubKey
	addr types.Address
}

func newTestParty(t *testing.T) testParty {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return testParty{key: key, pub: key.PubKey(), addr: key.Address()}
}

func newTestLedger(t *testing.T, db storage.DB) *Ledger {
	t.Helper()
	return New(db, Options{FeeRate: testFeeRate, Faucet: true, FaucetMax: 1_000_000})
}

// coin is a spendable fee output known to the test.
type coin struct {
	op    types.Outpoint
	value uint64
}

func fund(t *testing.T, l *Ledger, p testParty, value uint64) coin {
	t.Helper()
	op, err := l.Fund(p.addr, value)
	if err != nil {
		t.Fatalf("Fund: %v", err)
	}
	return coin{op: op, value: value}
}

func mustSubmit(t *testing.T, l *Ledger, transaction *tx.Transaction) *Receipt {
	t.Helper()
	r, err := l.Submit(transaction)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return r
}

// changeOf returns the fee change coin created by an accepted transaction.
func changeOf(r *Receipt, transaction *tx.Transaction) coin {
	last := len(transaction.Outputs) - 1
	return coin{op: types.Outpoint{TxID: r.TxID, Index: uint32(last)}, value: transaction.Outputs[last].Value}
}

func issueTx(t *testing.T, issuer testParty, c coin, kind contract.Kind, value uint64) *tx.Transaction {
	t.Helper()
	fee := tx.EstimateTxFee(1, 0, 1, 1, testFeeRate)
	b := tx.NewBuilder().
		AddInput(c.op).
		AddOutput(value, contract.NewState(kind, issuer.pub).LockingScript()).
		AddOutput(c.value-value-fee, types.P2PKHScript(issuer.addr))
	if err := b.Sign(issuer.key); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return b.Build()
}

// callTx builds a call on inst signed by signer, with fees paid from c by payer.
func callTx(t *testing.T, inst contract.Instance, signer, payer testParty, c coin, call tx.Call, outs func(change *tx.Output) []tx.Output) *tx.Transaction {
	t.Helper()

	// Size the fee off a draft with a placeholder change value.
	draft := outs(&tx.Output{Value: 1, Script: types.P2PKHScript(payer.addr)})
	probe := tx.NewBuilder().AddCallInput(inst.Outpoint, call).AddInput(c.op).AddOutputs(draft...).Build()
	fee := tx.RequiredFee(probe, testFeeRate)

	change := &tx.Output{Value: c.value - fee, Script: types.P2PKHScript(payer.addr)}
	derived := outs(change)

	b := tx.NewBuilder().AddCallInput(inst.Outpoint, call).AddInput(c.op).AddOutputs(derived...)
	sig, err := contract.SignCall(signer.key, inst, call.Method, tx.HashOutputs(derived))
	if err != nil {
		t.Fatalf("SignCall: %v", err)
	}
	if err := b.SetCallSignature(sig); err != nil {
		t.Fatalf("SetCallSignature: %v", err)
	}
	if err := b.Sign(payer.key); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return b.Build()
}

func transferTx(t *testing.T, inst contract.Instance, signer, payer testParty, c coin, recipient types.PubKey, amount uint64) *tx.Transaction {
	t.Helper()
	call := tx.Call{Method: tx.MethodTransfer, Recipient: recipient, Amount: amount}
	return callTx(t, inst, signer, payer, c, call, func(change *tx.Output) []tx.Output {
		return contract.TransferOutputs(inst.State, inst.Amount, amount, recipient, change)
	})
}

func recallTx(t *testing.T, inst contract.Instance, issuer testParty, c coin) *tx.Transaction {
	t.Helper()
	return callTx(t, inst, issuer, issuer, c, tx.Call{Method: tx.MethodRecall}, func(change *tx.Output) []tx.Output {
		return contract.RecallOutputs(inst.State, inst.Amount, change)
	})
}

func instanceAt(t *testing.T, l *Ledger, txid types.Hash, index uint32) contract.Instance {
	t.Helper()
	inst, err := l.Instance(types.Outpoint{TxID: txid, Index: index})
	if err != nil {
		t.Fatalf("Instance(%x:%d): %v", txid[:4], index, err)
	}
	return *inst
}
