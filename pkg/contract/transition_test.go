package contract

import (
	"errors"
	"testing"

	"github.com/Klingon-tech/klingnet-recall/pkg/crypto"
	"github.com/Klingon-tech/klingnet-recall/pkg/tx"
	"github.com/Klingon-tech/klingnet-recall/pkg/types"
)

type party struct {
	key *crypto.PrivateKey
	pub types.PubKey
}

func newParty(t *testing.T) party {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return party{key: key, pub: key.PubKey()}
}

func instanceOf(kind Kind, issuer, owner party, value uint64) Instance {
	return Instance{
		Outpoint: types.Outpoint{TxID: types.Hash{0x10, byte(kind)}, Index: 0},
		State:    State{Kind: kind, Issuer: issuer.pub, Owner: owner.pub},
		Amount:   value,
	}
}

func mustNew(t *testing.T, inst Instance) Transitionable {
	t.Helper()
	c, err := New(inst)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func changeOutput(value uint64) *tx.Output {
	return &tx.Output{Value: value, Script: types.P2PKHScript(types.Address{0xfe})}
}

// commit signs a call on inst for a transaction committing to outs.
func commit(t *testing.T, inst Instance, signer party, method tx.Method, outs []tx.Output, change *tx.Output) (Context, []byte) {
	t.Helper()
	commitment := &tx.Transaction{Outputs: outs}
	sig, err := SignCall(signer.key, inst, method, commitment.HashOutputs())
	if err != nil {
		t.Fatalf("SignCall: %v", err)
	}
	return NewContext(inst, commitment, change), sig
}

func TestTransfer_Valid(t *testing.T) {
	issuer, alice, bob := newParty(t), newParty(t), newParty(t)

	tests := []struct {
		name   string
		kind   Kind
		owner  party
		amount uint64
		change *tx.Output
	}{
		{"recallable partial", KindRecallable, issuer, 7, nil},
		{"recallable whole", KindRecallable, alice, 10, nil},
		{"recallable minimum", KindRecallable, alice, 1, changeOutput(500)},
		{"transferable partial with change", KindTransferable, alice, 4, changeOutput(99)},
		{"identity from issuer", KindIdentity, issuer, 3, changeOutput(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			const total = 10
			inst := instanceOf(tt.kind, issuer, tt.owner, total)
			outs := TransferOutputs(inst.State, total, tt.amount, bob.pub, tt.change)
			ctx, sig := commit(t, inst, tt.owner, tx.MethodTransfer, outs, tt.change)

			rec, err := mustNew(t, inst).Transfer(ctx, sig, bob.pub, tt.amount)
			if err != nil {
				t.Fatalf("Transfer: %v", err)
			}

			if rec.Spent != inst.Outpoint || rec.Method != tx.MethodTransfer {
				t.Errorf("record header = %+v", rec)
			}
			first := rec.Successors[0]
			if first.Owner != bob.pub || first.Value != tt.amount || first.Index != 0 {
				t.Errorf("recipient successor = %+v", first)
			}

			var sum uint64
			for _, s := range rec.Successors {
				sum += s.Value
			}
			if sum != total {
				t.Errorf("successors sum to %d, want %d", sum, total)
			}

			if tt.amount < total {
				if len(rec.Successors) != 2 {
					t.Fatalf("want remainder successor, got %+v", rec.Successors)
				}
				rest := rec.Successors[1]
				if rest.Owner != tt.owner.pub || rest.Value != total-tt.amount || rest.Index != 1 {
					t.Errorf("remainder successor = %+v", rest)
				}
			} else if len(rec.Successors) != 1 {
				t.Errorf("whole transfer should have one successor, got %d", len(rec.Successors))
			}

			if (rec.Change != nil) != (tt.change != nil) {
				t.Errorf("record change = %v, want %v", rec.Change, tt.change)
			}
			if rec.Digest != tx.HashOutputs(outs) {
				t.Error("record digest should be the committed outputs digest")
			}
		})
	}
}

func TestRecall_IgnoresOwner(t *testing.T) {
	issuer, alice := newParty(t), newParty(t)

	for _, kind := range []Kind{KindRecallable, KindIdentity} {
		for _, owner := range []party{issuer, alice} {
			t.Run(kind.String(), func(t *testing.T) {
				inst := instanceOf(kind, issuer, owner, 7)
				change := changeOutput(12)
				outs := RecallOutputs(inst.State, 7, change)
				ctx, sig := commit(t, inst, issuer, tx.MethodRecall, outs, change)

				rec, err := mustNew(t, inst).Recall(ctx, sig)
				if err != nil {
					t.Fatalf("Recall: %v", err)
				}
				if len(rec.Successors) != 1 {
					t.Fatalf("successors = %+v", rec.Successors)
				}
				if s := rec.Successors[0]; s.Owner != issuer.pub || s.Value != 7 {
					t.Errorf("successor = %+v, want issuer/7", s)
				}
			})
		}
	}
}

func TestRecall_Disabled(t *testing.T) {
	issuer, alice := newParty(t), newParty(t)
	inst := instanceOf(KindTransferable, issuer, alice, 7)
	ctx, sig := commit(t, inst, issuer, tx.MethodRecall, RecallOutputs(inst.State, 7, nil), nil)

	if _, err := mustNew(t, inst).Recall(ctx, sig); !errors.Is(err, ErrRecallDisabled) {
		t.Errorf("Recall on transferable = %v, want ErrRecallDisabled", err)
	}
}

func TestIdentity_OwnershipRule(t *testing.T) {
	issuer, alice, bob := newParty(t), newParty(t), newParty(t)
	inst := instanceOf(KindIdentity, issuer, alice, 7)

	// Every amount, valid or not, is rejected before anything else.
	for _, amount := range []uint64{0, 1, 6, 7, 8} {
		outs := TransferOutputs(inst.State, 7, min(amount, 7), bob.pub, nil)
		ctx, sig := commit(t, inst, alice, tx.MethodTransfer, outs, nil)
		_, err := mustNew(t, inst).Transfer(ctx, sig, bob.pub, amount)
		if !errors.Is(err, ErrOwnershipRule) {
			t.Errorf("amount %d: err = %v, want ErrOwnershipRule", amount, err)
		}
	}

	// The owner may still move value to itself.
	outs := TransferOutputs(inst.State, 7, 5, alice.pub, nil)
	ctx, sig := commit(t, inst, alice, tx.MethodTransfer, outs, nil)
	if _, err := mustNew(t, inst).Transfer(ctx, sig, alice.pub, 5); err != nil {
		t.Errorf("self transfer: %v", err)
	}
}

func TestRecallable_NoOwnershipRule(t *testing.T) {
	issuer, alice, bob := newParty(t), newParty(t), newParty(t)
	inst := instanceOf(KindRecallable, issuer, alice, 7)
	outs := TransferOutputs(inst.State, 7, 7, bob.pub, nil)
	ctx, sig := commit(t, inst, alice, tx.MethodTransfer, outs, nil)

	if _, err := mustNew(t, inst).Transfer(ctx, sig, bob.pub, 7); err != nil {
		t.Errorf("recallable owner->other transfer: %v", err)
	}
}

func TestAuthorization_IndependentOfAmount(t *testing.T) {
	issuer, alice, bob, mallory := newParty(t), newParty(t), newParty(t), newParty(t)

	for _, kind := range []Kind{KindTransferable, KindRecallable, KindIdentity} {
		inst := instanceOf(kind, issuer, issuer, 10)
		for _, amount := range []uint64{0, 3, 10, 11} {
			outs := TransferOutputs(inst.State, 10, min(amount, 10), alice.pub, nil)
			ctx, sig := commit(t, inst, mallory, tx.MethodTransfer, outs, nil)
			_, err := mustNew(t, inst).Transfer(ctx, sig, alice.pub, amount)
			if !errors.Is(err, ErrAuthorization) {
				t.Errorf("%s amount %d: err = %v, want ErrAuthorization", kind, amount, err)
			}
		}
	}

	// Recall must be signed by the issuer, not the owner.
	inst := instanceOf(KindRecallable, issuer, bob, 7)
	ctx, sig := commit(t, inst, bob, tx.MethodRecall, RecallOutputs(inst.State, 7, nil), nil)
	if _, err := mustNew(t, inst).Recall(ctx, sig); !errors.Is(err, ErrAuthorization) {
		t.Errorf("owner-signed recall = %v, want ErrAuthorization", err)
	}
}

func TestAuthorization_BoundToContext(t *testing.T) {
	issuer, alice := newParty(t), newParty(t)
	inst := instanceOf(KindRecallable, issuer, issuer, 10)
	outs := TransferOutputs(inst.State, 10, 7, alice.pub, nil)
	commitment := &tx.Transaction{Outputs: outs}

	sign := func(method tx.Method, op types.Outpoint) []byte {
		other := inst
		other.Outpoint = op
		sig, err := SignCall(issuer.key, other, method, commitment.HashOutputs())
		if err != nil {
			t.Fatal(err)
		}
		return sig
	}

	tests := map[string][]byte{
		"recall digest":  sign(tx.MethodRecall, inst.Outpoint),
		"other outpoint": sign(tx.MethodTransfer, types.Outpoint{TxID: types.Hash{0x99}}),
		"garbage":        {0x01, 0x02},
		"empty":          nil,
	}
	for name, sig := range tests {
		t.Run(name, func(t *testing.T) {
			ctx := NewContext(inst, commitment, nil)
			if _, err := mustNew(t, inst).Transfer(ctx, sig, alice.pub, 7); !errors.Is(err, ErrAuthorization) {
				t.Errorf("err = %v, want ErrAuthorization", err)
			}
		})
	}
}

func TestTransfer_InvalidAmount(t *testing.T) {
	issuer, alice := newParty(t), newParty(t)
	inst := instanceOf(KindRecallable, issuer, issuer, 10)

	for _, amount := range []uint64{0, 11, ^uint64(0)} {
		outs := TransferOutputs(inst.State, 10, 10, alice.pub, nil)
		ctx, sig := commit(t, inst, issuer, tx.MethodTransfer, outs, nil)
		if _, err := mustNew(t, inst).Transfer(ctx, sig, alice.pub, amount); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("amount %d: err = %v, want ErrInvalidAmount", amount, err)
		}
	}
}

func TestTransfer_OutputMismatch(t *testing.T) {
	issuer, alice := newParty(t), newParty(t)
	inst := instanceOf(KindRecallable, issuer, issuer, 10)
	change := changeOutput(50)

	toAlice := inst.State.WithOwner(alice.pub)
	toIssuer := inst.State

	tests := []struct {
		name string
		outs []tx.Output
	}{
		{"missing change", []tx.Output{toAlice.Output(7), toIssuer.Output(3)}},
		{"missing remainder", []tx.Output{toAlice.Output(7), *change}},
		{"recipient off by one", []tx.Output{toAlice.Output(8), toIssuer.Output(3), *change}},
		{"remainder off by one", []tx.Output{toAlice.Output(7), toIssuer.Output(2), *change}},
		{"change off by one", []tx.Output{toAlice.Output(7), toIssuer.Output(3), *changeOutput(49)}},
		{"reordered", []tx.Output{toIssuer.Output(3), toAlice.Output(7), *change}},
		{"remainder to recipient", []tx.Output{toAlice.Output(7), toAlice.Output(3), *change}},
		{"extra output", []tx.Output{toAlice.Output(7), toIssuer.Output(3), *change, *changeOutput(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, sig := commit(t, inst, issuer, tx.MethodTransfer, tt.outs, change)
			if _, err := mustNew(t, inst).Transfer(ctx, sig, alice.pub, 7); !errors.Is(err, ErrOutputMismatch) {
				t.Errorf("err = %v, want ErrOutputMismatch", err)
			}
		})
	}
}

func TestRecall_OutputMismatch(t *testing.T) {
	issuer, bob := newParty(t), newParty(t)
	inst := instanceOf(KindRecallable, issuer, bob, 7)

	tests := map[string][]tx.Output{
		"kept by owner": {inst.State.Output(7)},
		"short by one":  {inst.State.WithOwner(issuer.pub).Output(6)},
		"split":         {inst.State.WithOwner(issuer.pub).Output(4), inst.State.WithOwner(issuer.pub).Output(3)},
	}
	for name, outs := range tests {
		t.Run(name, func(t *testing.T) {
			ctx, sig := commit(t, inst, issuer, tx.MethodRecall, outs, nil)
			if _, err := mustNew(t, inst).Recall(ctx, sig); !errors.Is(err, ErrOutputMismatch) {
				t.Errorf("err = %v, want ErrOutputMismatch", err)
			}
		})
	}
}

func TestZeroChangeIsOmitted(t *testing.T) {
	issuer, alice := newParty(t), newParty(t)
	inst := instanceOf(KindRecallable, issuer, issuer, 10)
	zero := changeOutput(0)

	outs := TransferOutputs(inst.State, 10, 10, alice.pub, zero)
	if len(outs) != 1 {
		t.Fatalf("zero change should not be derived, got %d outputs", len(outs))
	}
	ctx, sig := commit(t, inst, issuer, tx.MethodTransfer, outs, zero)
	rec, err := mustNew(t, inst).Transfer(ctx, sig, alice.pub, 10)
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if rec.Change != nil {
		t.Errorf("record change = %+v, want nil", rec.Change)
	}
}

func TestSuperseded(t *testing.T) {
	issuer, alice := newParty(t), newParty(t)
	inst := instanceOf(KindRecallable, issuer, issuer, 10)
	c := mustNew(t, inst)

	outs := TransferOutputs(inst.State, 10, 7, alice.pub, nil)
	ctx, sig := commit(t, inst, issuer, tx.MethodTransfer, outs, nil)
	call := Call{Method: tx.MethodTransfer, Signature: sig, Recipient: alice.pub, Amount: 7}

	// A failed Apply leaves the instance active.
	bad := call
	bad.Amount = 0
	if _, err := c.Apply(ctx, bad); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("bad Apply = %v", err)
	}

	// Validate has no effect either.
	if _, err := c.Validate(ctx, call); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if _, err := c.Validate(ctx, call); err != nil {
		t.Fatalf("second Validate: %v", err)
	}

	if _, err := c.Apply(ctx, call); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	// The same call, a recall, or a validation all see stale state.
	if _, err := c.Apply(ctx, call); !errors.Is(err, ErrSuperseded) {
		t.Errorf("replayed Apply = %v, want ErrSuperseded", err)
	}
	rctx, rsig := commit(t, inst, issuer, tx.MethodRecall, RecallOutputs(inst.State, 10, nil), nil)
	if _, err := c.Recall(rctx, rsig); !errors.Is(err, ErrSuperseded) {
		t.Errorf("Recall after transfer = %v, want ErrSuperseded", err)
	}
	if _, err := c.Validate(ctx, call); !errors.Is(err, ErrSuperseded) {
		t.Errorf("Validate after Apply = %v, want ErrSuperseded", err)
	}
}

func TestContextChecks(t *testing.T) {
	issuer, alice := newParty(t), newParty(t)
	inst := instanceOf(KindRecallable, issuer, issuer, 10)
	outs := TransferOutputs(inst.State, 10, 7, alice.pub, nil)
	good, sig := commit(t, inst, issuer, tx.MethodTransfer, outs, nil)
	call := Call{Method: tx.MethodTransfer, Signature: sig, Recipient: alice.pub, Amount: 7}

	noCommit := good
	noCommit.Commitment = nil

	wrongOutpoint := good
	wrongOutpoint.Outpoint = types.Outpoint{TxID: types.Hash{0x42}}

	wrongValue := good
	wrongValue.Locked = Instance{Amount: 11}

	tests := []struct {
		name string
		ctx  Context
		call Call
		want error
	}{
		{"no commitment", noCommit, call, ErrInvalidContext},
		{"wrong outpoint", wrongOutpoint, call, ErrInvalidContext},
		{"wrong locked value", wrongValue, call, ErrInvalidContext},
		{"unknown method", good, Call{Method: 0x09, Signature: sig}, ErrUnknownMethod},
		{"zero recipient", good, Call{Method: tx.MethodTransfer, Signature: sig, Amount: 7}, ErrInvalidState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := mustNew(t, inst).Validate(tt.ctx, tt.call); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	// A nil value source falls back to the instance's own value.
	noValue := good
	noValue.Locked = nil
	if _, err := mustNew(t, inst).Validate(noValue, call); err != nil {
		t.Errorf("nil Locked: %v", err)
	}
}

func TestNew(t *testing.T) {
	issuer := newParty(t)
	tests := []struct {
		kind Kind
		is   func(Transitionable) bool
	}{
		{KindTransferable, func(c Transitionable) bool { _, ok := c.(*Transferable); return ok }},
		{KindRecallable, func(c Transitionable) bool { _, ok := c.(*Recallable); return ok }},
		{KindIdentity, func(c Transitionable) bool { _, ok := c.(*Identity); return ok }},
	}
	for _, tt := range tests {
		inst := instanceOf(tt.kind, issuer, issuer, 1)
		c := mustNew(t, inst)
		if !tt.is(c) {
			t.Errorf("New(%s) = %T", tt.kind, c)
		}
		if c.Kind() != tt.kind || c.Instance() != inst {
			t.Errorf("New(%s): Kind() = %s, Instance() = %+v", tt.kind, c.Kind(), c.Instance())
		}
	}

	if _, err := New(Instance{State: State{Kind: 0x7f, Issuer: issuer.pub, Owner: issuer.pub}}); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("unknown kind = %v", err)
	}
}

func TestRecord_Instances(t *testing.T) {
	issuer, alice := newParty(t), newParty(t)
	inst := instanceOf(KindIdentity, issuer, issuer, 10)
	outs := TransferOutputs(inst.State, 10, 7, alice.pub, nil)
	ctx, sig := commit(t, inst, issuer, tx.MethodTransfer, outs, nil)

	rec, err := mustNew(t, inst).Transfer(ctx, sig, alice.pub, 7)
	if err != nil {
		t.Fatal(err)
	}
	txid := types.Hash{0xab}
	got := rec.Instances(txid)
	if len(got) != 2 {
		t.Fatalf("Instances = %+v", got)
	}
	for i, g := range got {
		if g.Outpoint != (types.Outpoint{TxID: txid, Index: uint32(i)}) {
			t.Errorf("instance %d outpoint = %s", i, g.Outpoint)
		}
		if g.State.Kind != KindIdentity || g.State.Issuer != issuer.pub {
			t.Errorf("instance %d state = %+v", i, g.State)
		}
		// The instance's locking script is exactly the derived output.
		if tx.HashOutputs([]tx.Output{g.State.Output(g.Amount)}) != tx.HashOutputs(outs[i:i+1]) {
			t.Errorf("instance %d does not match derived output", i)
		}
	}
}
