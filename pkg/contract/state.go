package contract

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-recall/pkg/tx"
	"github.com/Klingon-tech/klingnet-recall/pkg/types"
)

// Kind selects the transition policy of a contract.
type Kind uint8

const (
	KindTransferable Kind = 0x01 // Free transfer, no recall.
	KindRecallable   Kind = 0x02 // Free transfer, issuer recall.
	KindIdentity     Kind = 0x03 // Ownership rule, issuer recall.
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindTransferable:
		return "transferable"
	case KindRecallable:
		return "recallable"
	case KindIdentity:
		return "identity"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := policies[k]
	return ok
}

// ParseKind parses a kind name as returned by String.
func ParseKind(s string) (Kind, error) {
	for k := range policies {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// StateSize is the encoded size of a State: kind(1) | issuer(33) | owner(33).
const StateSize = 1 + 2*types.PubKeySize

// State is the ownership record carried by a contract output.
// Issuer is fixed at issuance; Owner is replaced on every transition.
type State struct {
	Kind   Kind         `json:"kind"`
	Issuer types.PubKey `json:"issuer"`
	Owner  types.PubKey `json:"owner"`
}

// NewState returns the issuance state, where the issuer is the first owner.
func NewState(kind Kind, issuer types.PubKey) State {
	return State{Kind: kind, Issuer: issuer, Owner: issuer}
}

// WithOwner returns a copy of s owned by owner.
func (s State) WithOwner(owner types.PubKey) State {
	s.Owner = owner
	return s
}

// Validate checks that the kind is known and both keys are set.
func (s State) Validate() error {
	if !s.Kind.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownKind, s.Kind)
	}
	if s.Issuer.IsZero() {
		return fmt.Errorf("%w: zero issuer", ErrInvalidState)
	}
	if s.Owner.IsZero() {
		return fmt.Errorf("%w: zero owner", ErrInvalidState)
	}
	return nil
}

// Encode serializes the state to its fixed-width form.
func (s State) Encode() []byte {
	buf := make([]byte, 0, StateSize)
	buf = append(buf, byte(s.Kind))
	buf = append(buf, s.Issuer[:]...)
	buf = append(buf, s.Owner[:]...)
	return buf
}

// DecodeState parses the fixed-width encoding produced by Encode.
func DecodeState(data []byte) (State, error) {
	if len(data) != StateSize {
		return State{}, fmt.Errorf("%w: %d bytes, want %d", ErrInvalidState, len(data), StateSize)
	}
	var s State
	s.Kind = Kind(data[0])
	copy(s.Issuer[:], data[1:1+types.PubKeySize])
	copy(s.Owner[:], data[1+types.PubKeySize:])
	if err := s.Validate(); err != nil {
		return State{}, err
	}
	return s, nil
}

// LockingScript returns the script that binds value to this state.
func (s State) LockingScript() types.Script {
	return types.Script{Type: types.ScriptTypeState, Data: s.Encode()}
}

// Output returns a state output locking value.
func (s State) Output(value uint64) tx.Output {
	return tx.Output{Value: value, Script: s.LockingScript()}
}

// StateFromScript decodes the state carried by a state script.
func StateFromScript(script types.Script) (State, error) {
	if script.Type != types.ScriptTypeState {
		return State{}, fmt.Errorf("%w: script type %s", ErrInvalidState, script.Type)
	}
	return DecodeState(script.Data)
}

// Instance is one unspent contract output.
type Instance struct {
	Outpoint types.Outpoint `json:"outpoint"`
	State    State          `json:"state"`
	Amount   uint64         `json:"amount"`
}

// Value returns the value locked at the instance.
func (i Instance) Value() uint64 {
	return i.Amount
}
