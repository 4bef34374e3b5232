package tx

import (
	"bytes"
	"encoding/json"
	"math"
	"testing"

	"github.com/Klingon-tech/klingnet-recall/pkg/crypto"
	"github.com/Klingon-tech/klingnet-recall/pkg/types"
)

func testP2PKHScript(addr types.Address) types.Script {
	return types.P2PKHScript(addr)
}

func TestTransaction_Hash_Deterministic(t *testing.T) {
	tx := &Transaction{
		Version: 1,
		Inputs:  []Input{{PrevOut: types.Outpoint{TxID: types.Hash{0x01}, Index: 0}}},
		Outputs: []Output{{Value: 1000, Script: types.Script{Type: types.ScriptTypeP2PKH}}},
	}

	h1 := tx.Hash()
	h2 := tx.Hash()
	if h1 != h2 {
		t.Error("Hash() should be deterministic")
	}
	if h1.IsZero() {
		t.Error("Hash() should not be zero")
	}
}

func TestTransaction_Hash_IgnoresSignature(t *testing.T) {
	tx := &Transaction{
		Version: 1,
		Inputs:  []Input{{PrevOut: types.Outpoint{TxID: types.Hash{0x01}, Index: 0}}},
		Outputs: []Output{{Value: 1000, Script: types.Script{Type: types.ScriptTypeP2PKH}}},
	}

	h1 := tx.Hash()
	tx.Inputs[0].Signature = []byte("some signature")
	tx.Inputs[0].PubKey = []byte("some key")

	if tx.Hash() != h1 {
		t.Error("Hash() should not change when signatures are added")
	}
}

func TestTransaction_Hash_CoversCallArguments(t *testing.T) {
	op := types.Outpoint{TxID: types.Hash{0x01}}
	out := []Output{{Value: 10, Script: types.Script{Type: types.ScriptTypeState}}}

	base := &Transaction{Inputs: []Input{{PrevOut: op, Call: &Call{Method: MethodTransfer, Amount: 7}}}, Outputs: out}
	amount := &Transaction{Inputs: []Input{{PrevOut: op, Call: &Call{Method: MethodTransfer, Amount: 8}}}, Outputs: out}
	method := &Transaction{Inputs: []Input{{PrevOut: op, Call: &Call{Method: MethodRecall}}}, Outputs: out}
	plain := &Transaction{Inputs: []Input{{PrevOut: op}}, Outputs: out}

	seen := map[types.Hash]string{}
	for name, tx := range map[string]*Transaction{"base": base, "amount": amount, "method": method, "plain": plain} {
		h := tx.Hash()
		if other, ok := seen[h]; ok {
			t.Fatalf("%s and %s hash identically", name, other)
		}
		seen[h] = name
	}
}

func TestEncodeOutputs_Layout(t *testing.T) {
	addr := types.Address{0xaa}
	outs := []Output{
		{Value: 7, Script: testP2PKHScript(addr)},
		{Value: 3, Script: types.Script{Type: types.ScriptTypeState, Data: []byte{1, 2, 3}}},
	}

	got := EncodeOutputs(outs)
	want := []byte{2, 0, 0, 0}
	want = append(want, 7, 0, 0, 0, 0, 0, 0, 0, byte(types.ScriptTypeP2PKH), 20, 0, 0, 0)
	want = append(want, addr[:]...)
	want = append(want, 3, 0, 0, 0, 0, 0, 0, 0, byte(types.ScriptTypeState), 3, 0, 0, 0, 1, 2, 3)

	if !bytes.Equal(got, want) {
		t.Errorf("EncodeOutputs =\n%x\nwant\n%x", got, want)
	}
}

func TestHashOutputs(t *testing.T) {
	outs := []Output{{Value: 7, Script: testP2PKHScript(types.Address{0x01})}}

	if HashOutputs(outs) != crypto.DoubleHash(EncodeOutputs(outs)) {
		t.Error("HashOutputs should be DoubleHash of the encoded outputs")
	}

	tx := &Transaction{Outputs: outs}
	if tx.HashOutputs() != HashOutputs(outs) {
		t.Error("Transaction.HashOutputs should match HashOutputs(tx.Outputs)")
	}

	// Order is part of the commitment.
	swapped := []Output{outs[0], {Value: 1, Script: testP2PKHScript(types.Address{0x02})}}
	reversed := []Output{swapped[1], swapped[0]}
	if HashOutputs(swapped) == HashOutputs(reversed) {
		t.Error("output order should change the digest")
	}
}

func TestTransaction_CallInput(t *testing.T) {
	tx := &Transaction{Inputs: []Input{
		{PrevOut: types.Outpoint{Index: 1}},
		{PrevOut: types.Outpoint{Index: 2}, Call: &Call{Method: MethodRecall}},
	}}
	if got := tx.CallInput(); got != 1 {
		t.Errorf("CallInput() = %d, want 1", got)
	}

	tx.Inputs = tx.Inputs[:1]
	if got := tx.CallInput(); got != -1 {
		t.Errorf("CallInput() = %d, want -1", got)
	}
}

func TestTransaction_TotalOutputValue(t *testing.T) {
	tx := &Transaction{Outputs: []Output{{Value: 1000}, {Value: 2000}, {Value: 3000}}}
	got, err := tx.TotalOutputValue()
	if err != nil {
		t.Fatalf("TotalOutputValue() error: %v", err)
	}
	if got != 6000 {
		t.Errorf("TotalOutputValue() = %d, want 6000", got)
	}

	tx.Outputs = []Output{{Value: math.MaxUint64}, {Value: 1}}
	if _, err := tx.TotalOutputValue(); err == nil {
		t.Error("TotalOutputValue() should detect overflow")
	}
}

func TestTransaction_JSONRoundtrip(t *testing.T) {
	tx := &Transaction{
		Version: 1,
		Inputs: []Input{
			{PrevOut: types.Outpoint{TxID: types.Hash{0x01}, Index: 0}, Signature: []byte{0xaa}, PubKey: []byte{0x02, 0x03}},
			{PrevOut: types.Outpoint{TxID: types.Hash{0x02}, Index: 1}, Signature: []byte{0xbb}, Call: &Call{Method: MethodTransfer, Recipient: types.PubKey{0x02}, Amount: 7}},
		},
		Outputs:  []Output{{Value: 7, Script: types.Script{Type: types.ScriptTypeState, Data: []byte{0x01}}}},
		LockTime: 9,
	}

	data, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got Transaction
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if got.Hash() != tx.Hash() {
		t.Error("hash changed across JSON roundtrip")
	}
	if !bytes.Equal(got.Inputs[0].PubKey, tx.Inputs[0].PubKey) || !bytes.Equal(got.Inputs[1].Signature, tx.Inputs[1].Signature) {
		t.Error("signature fields changed across JSON roundtrip")
	}
	if got.Inputs[1].Call == nil || got.Inputs[1].Call.Amount != 7 {
		t.Errorf("call = %+v, want amount 7", got.Inputs[1].Call)
	}
}

func TestMethod_String(t *testing.T) {
	if MethodTransfer.String() != "transfer" || MethodRecall.String() != "recall" {
		t.Error("unexpected method names")
	}
	if Method(9).String() != "method(9)" {
		t.Errorf("unknown method = %s", Method(9))
	}
}
