package tx

import (
	"bytes"
	"testing"

	"github.com/Klingon-tech/klingnet-recall/pkg/crypto"
	"github.com/Klingon-tech/klingnet-recall/pkg/types"
)

func TestBuilder_SignSkipsCallInputs(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	b := NewBuilder().
		AddCallInput(types.Outpoint{TxID: types.Hash{0x02}}, Call{Method: MethodRecall}).
		AddInput(types.Outpoint{TxID: types.Hash{0x01}}).
		AddOutput(10, testP2PKHScript(key.Address()))
	if err := b.Sign(key); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := b.SetCallSignature([]byte{0xca, 0x11}); err != nil {
		t.Fatalf("SetCallSignature: %v", err)
	}
	tx := b.Build()

	if tx.Version != 1 {
		t.Errorf("version = %d, want 1", tx.Version)
	}
	if !bytes.Equal(tx.Inputs[0].Signature, []byte{0xca, 0x11}) || tx.Inputs[0].PubKey != nil {
		t.Errorf("call input = %+v, want call signature and no pubkey", tx.Inputs[0])
	}
	if !bytes.Equal(tx.Inputs[1].PubKey, key.PublicKey()) {
		t.Error("coin input should carry the signer's public key")
	}
	if err := tx.VerifySignatures(); err != nil {
		t.Errorf("VerifySignatures: %v", err)
	}
}

func TestBuilder_SetCallSignature_NoCall(t *testing.T) {
	b := NewBuilder().AddInput(types.Outpoint{TxID: types.Hash{0x01}})
	if err := b.SetCallSignature([]byte{0x01}); err == nil {
		t.Error("SetCallSignature should fail without a call input")
	}
}

func TestBuilder_AddOutputs_PreservesOrder(t *testing.T) {
	outs := []Output{
		{Value: 1, Script: testP2PKHScript(types.Address{0x01})},
		{Value: 2, Script: testP2PKHScript(types.Address{0x02})},
	}
	tx := NewBuilder().AddOutputs(outs...).SetLockTime(5).Build()
	if len(tx.Outputs) != 2 || tx.Outputs[0].Value != 1 || tx.Outputs[1].Value != 2 {
		t.Errorf("outputs = %+v", tx.Outputs)
	}
	if tx.LockTime != 5 {
		t.Errorf("locktime = %d, want 5", tx.LockTime)
	}
}
