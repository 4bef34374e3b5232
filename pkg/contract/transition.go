package contract

import (
	"fmt"
	"sync"

	"github.com/Klingon-tech/klingnet-recall/pkg/tx"
	"github.com/Klingon-tech/klingnet-recall/pkg/types"
)

// CommitmentSource provides the outputs digest committed by the spending
// transaction. *tx.Transaction implements it.
type CommitmentSource interface {
	HashOutputs() types.Hash
}

// ValueSource provides the value locked at the instance being spent.
// Instance implements it.
type ValueSource interface {
	Value() uint64
}

// Context is what the spending transaction tells a contract about itself.
type Context struct {
	Outpoint   types.Outpoint
	Commitment CommitmentSource
	Locked     ValueSource
	Change     *tx.Output // Fee change, funded by coin inputs. May be nil.
}

// NewContext builds the context for spending inst in a transaction that
// commits to commitment and returns change to the fee payer.
func NewContext(inst Instance, commitment CommitmentSource, change *tx.Output) Context {
	return Context{
		Outpoint:   inst.Outpoint,
		Commitment: commitment,
		Locked:     inst,
		Change:     change,
	}
}

// Call is a contract method invocation.
type Call struct {
	Method    tx.Method
	Signature []byte
	Recipient types.PubKey // Transfer only.
	Amount    uint64       // Transfer only.
}

// Successor is one instance created by a transition.
type Successor struct {
	Owner types.PubKey `json:"owner"`
	Value uint64       `json:"value"`
	Index uint32       `json:"index"` // Output index in the spending transaction.
}

// Record describes a validated transition.
type Record struct {
	Spent      types.Outpoint `json:"spent"`
	Method     tx.Method      `json:"method"`
	Kind       Kind           `json:"kind"`
	Issuer     types.PubKey   `json:"issuer"`
	Successors []Successor    `json:"successors"`
	Change     *tx.Output     `json:"change,omitempty"`
	Digest     types.Hash     `json:"digest"`
}

// Instances returns the successor instances created by txid.
func (r *Record) Instances(txid types.Hash) []Instance {
	out := make([]Instance, len(r.Successors))
	for i, s := range r.Successors {
		out[i] = Instance{
			Outpoint: types.Outpoint{TxID: txid, Index: s.Index},
			State:    State{Kind: r.Kind, Issuer: r.Issuer, Owner: s.Owner},
			Amount:   s.Value,
		}
	}
	return out
}

// Transitionable is a contract instance that can be spent once.
type Transitionable interface {
	Kind() Kind
	Instance() Instance
	// Validate checks call against ctx without changing the instance.
	Validate(ctx Context, call Call) (*Record, error)
	// Apply validates call and, on success, supersedes the instance.
	Apply(ctx Context, call Call) (*Record, error)
	Transfer(ctx Context, sig []byte, recipient types.PubKey, amount uint64) (*Record, error)
	Recall(ctx Context, sig []byte) (*Record, error)
}

// New returns the contract implementation for inst's kind.
func New(inst Instance) (Transitionable, error) {
	if err := inst.State.Validate(); err != nil {
		return nil, err
	}
	switch inst.State.Kind {
	case KindTransferable:
		c := &Transferable{}
		c.init(inst)
		return c, nil
	case KindRecallable:
		c := &Recallable{}
		c.init(inst)
		return c, nil
	case KindIdentity:
		c := &Identity{}
		c.init(inst)
		return c, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownKind, inst.State.Kind)
}

// policy is what distinguishes the contract kinds.
type policy struct {
	ownershipRule bool
	recall        bool
}

var policies = map[Kind]policy{
	KindTransferable: {},
	KindRecallable:   {recall: true},
	KindIdentity:     {ownershipRule: true, recall: true},
}

// engine is the transition logic shared by every kind.
type engine struct {
	mu         sync.Mutex
	inst       Instance
	policy     policy
	superseded bool
}

func (e *engine) init(inst Instance) {
	e.inst = inst
	e.policy = policies[inst.State.Kind]
}

func (e *engine) Kind() Kind { return e.inst.State.Kind }

func (e *engine) Instance() Instance { return e.inst }

func (e *engine) Validate(ctx Context, call Call) (*Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.evaluate(ctx, call)
}

func (e *engine) Apply(ctx Context, call Call) (*Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, err := e.evaluate(ctx, call)
	if err != nil {
		return nil, err
	}
	e.superseded = true
	return rec, nil
}

func (e *engine) Transfer(ctx Context, sig []byte, recipient types.PubKey, amount uint64) (*Record, error) {
	return e.Apply(ctx, Call{Method: tx.MethodTransfer, Signature: sig, Recipient: recipient, Amount: amount})
}

func (e *engine) Recall(ctx Context, sig []byte) (*Record, error) {
	return e.Apply(ctx, Call{Method: tx.MethodRecall, Signature: sig})
}

// evaluate runs every check for call. Callers hold e.mu.
func (e *engine) evaluate(ctx Context, call Call) (*Record, error) {
	if e.superseded {
		return nil, fmt.Errorf("%w: %s", ErrSuperseded, e.inst.Outpoint)
	}
	total, committed, err := e.checkContext(ctx)
	if err != nil {
		return nil, err
	}

	switch call.Method {
	case tx.MethodTransfer:
		return e.transfer(ctx, call, total, committed)
	case tx.MethodRecall:
		return e.recall(ctx, call, total, committed)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, call.Method)
	}
}

// checkContext returns the locked value and committed digest, making sure
// ctx describes this instance.
func (e *engine) checkContext(ctx Context) (uint64, types.Hash, error) {
	if ctx.Commitment == nil {
		return 0, types.Hash{}, fmt.Errorf("%w: no commitment", ErrInvalidContext)
	}
	if ctx.Outpoint != e.inst.Outpoint {
		return 0, types.Hash{}, fmt.Errorf("%w: spends %s, instance is %s", ErrInvalidContext, ctx.Outpoint, e.inst.Outpoint)
	}
	total := e.inst.Value()
	if ctx.Locked != nil {
		total = ctx.Locked.Value()
	}
	if total == 0 || total != e.inst.Value() {
		return 0, types.Hash{}, fmt.Errorf("%w: locked value %d, instance holds %d", ErrInvalidContext, total, e.inst.Value())
	}
	return total, ctx.Commitment.HashOutputs(), nil
}

func (e *engine) transfer(ctx Context, call Call, total uint64, committed types.Hash) (*Record, error) {
	state := e.inst.State
	if call.Recipient.IsZero() {
		return nil, fmt.Errorf("%w: zero recipient", ErrInvalidState)
	}
	if e.policy.ownershipRule && state.Owner != call.Recipient && state.Owner != state.Issuer {
		return nil, fmt.Errorf("%w: owner %s, recipient %s", ErrOwnershipRule, state.Owner, call.Recipient)
	}

	digest := SigHash(e.inst.Outpoint, total, tx.MethodTransfer, committed)
	if err := Authorize(state.Owner, call.Signature, digest); err != nil {
		return nil, err
	}
	if err := checkAmount(call.Amount, total); err != nil {
		return nil, err
	}

	derived := TransferOutputs(state, total, call.Amount, call.Recipient, ctx.Change)
	hash, err := reconcile(derived, committed)
	if err != nil {
		return nil, err
	}

	succ := []Successor{{Owner: call.Recipient, Value: call.Amount, Index: 0}}
	if left := total - call.Amount; left > 0 {
		succ = append(succ, Successor{Owner: state.Owner, Value: left, Index: 1})
	}
	return e.record(tx.MethodTransfer, succ, ctx.Change, hash), nil
}

func (e *engine) recall(ctx Context, call Call, total uint64, committed types.Hash) (*Record, error) {
	if !e.policy.recall {
		return nil, fmt.Errorf("%w: %s", ErrRecallDisabled, e.inst.State.Kind)
	}
	state := e.inst.State

	digest := SigHash(e.inst.Outpoint, total, tx.MethodRecall, committed)
	if err := Authorize(state.Issuer, call.Signature, digest); err != nil {
		return nil, err
	}

	derived := RecallOutputs(state, total, ctx.Change)
	hash, err := reconcile(derived, committed)
	if err != nil {
		return nil, err
	}

	succ := []Successor{{Owner: state.Issuer, Value: total, Index: 0}}
	return e.record(tx.MethodRecall, succ, ctx.Change, hash), nil
}

func (e *engine) record(method tx.Method, succ []Successor, change *tx.Output, digest types.Hash) *Record {
	rec := &Record{
		Spent:      e.inst.Outpoint,
		Method:     method,
		Kind:       e.inst.State.Kind,
		Issuer:     e.inst.State.Issuer,
		Successors: succ,
		Digest:     digest,
	}
	if change != nil && change.Value > 0 {
		c := *change
		rec.Change = &c
	}
	return rec
}
