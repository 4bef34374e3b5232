// Package tx defines the transaction model, its canonical encodings and
// structural validation.
package tx

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"

	"github.com/Klingon-tech/klingnet-recall/pkg/crypto"
	"github.com/Klingon-tech/klingnet-recall/pkg/types"
)

// Transaction spends coins and at most one contract instance, and creates
// new outputs.
type Transaction struct {
	Version  uint32   `json:"version"`
	Inputs   []Input  `json:"inputs"`
	Outputs  []Output `json:"outputs"`
	LockTime uint64   `json:"locktime"`
}

// Method names a contract entry point invoked by a call input.
type Method uint8

const (
	MethodTransfer Method = 0x01
	MethodRecall   Method = 0x02
)

// String returns the method name.
func (m Method) String() string {
	switch m {
	case MethodTransfer:
		return "transfer"
	case MethodRecall:
		return "recall"
	default:
		return fmt.Sprintf("method(%d)", uint8(m))
	}
}

// Call carries the arguments of a contract method. The authorizing
// signature travels in Input.Signature.
type Call struct {
	Method    Method       `json:"method"`
	Recipient types.PubKey `json:"recipient,omitempty"`
	Amount    uint64       `json:"amount,omitempty"`
}

// Input references an output being spent. Coin inputs carry a signature
// over the transaction hash and the spending public key. Call inputs spend
// a contract instance and carry the method arguments instead of a key.
type Input struct {
	PrevOut   types.Outpoint `json:"prevout"`
	Signature []byte         `json:"signature"`
	PubKey    []byte         `json:"pubkey"`
	Call      *Call          `json:"call,omitempty"`
}

// IsCall reports whether the input invokes a contract method.
func (in Input) IsCall() bool {
	return in.Call != nil
}

// inputJSON is the JSON representation of Input with hex-encoded byte fields.
type inputJSON struct {
	PrevOut   types.Outpoint `json:"prevout"`
	Signature *string        `json:"signature"`
	PubKey    *string        `json:"pubkey"`
	Call      *Call          `json:"call,omitempty"`
}

// MarshalJSON encodes the input with hex-encoded signature and pubkey.
func (in Input) MarshalJSON() ([]byte, error) {
	j := inputJSON{PrevOut: in.PrevOut, Call: in.Call}
	if in.Signature != nil {
		s := hex.EncodeToString(in.Signature)
		j.Signature = &s
	}
	if in.PubKey != nil {
		p := hex.EncodeToString(in.PubKey)
		j.PubKey = &p
	}
	return json.Marshal(j)
}

// UnmarshalJSON decodes an input with hex-encoded signature and pubkey.
func (in *Input) UnmarshalJSON(data []byte) error {
	var j inputJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	in.PrevOut = j.PrevOut
	in.Call = j.Call
	in.Signature, in.PubKey = nil, nil
	if j.Signature != nil {
		b, err := hex.DecodeString(*j.Signature)
		if err != nil {
			return err
		}
		in.Signature = b
	}
	if j.PubKey != nil {
		b, err := hex.DecodeString(*j.PubKey)
		if err != nil {
			return err
		}
		in.PubKey = b
	}
	return nil
}

// Output defines a new UTXO.
type Output struct {
	Value  uint64       `json:"value"`
	Script types.Script `json:"script"`
}

// Hash computes the transaction ID (BLAKE3 hash of the signing bytes).
// Signatures are excluded to avoid a circular dependency.
func (tx *Transaction) Hash() types.Hash {
	return crypto.Hash(tx.SigningBytes())
}

// HashOutputs is the committed digest of the transaction's outputs.
// Contract calls reconcile their derived successor set against it.
func (tx *Transaction) HashOutputs() types.Hash {
	return HashOutputs(tx.Outputs)
}

// SigningBytes returns the canonical byte representation used for signing.
// Format: version(4) | input_count(4) | [prevout(36) | call_flag(1) | [method(1) recipient(33) amount(8)]]... | outputs | locktime(8)
// where outputs is the EncodeOutputs layout.
func (tx *Transaction) SigningBytes() []byte {
	var buf []byte

	buf = binary.LittleEndian.AppendUint32(buf, tx.Version)

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		buf = append(buf, in.PrevOut.TxID[:]...)
		buf = binary.LittleEndian.AppendUint32(buf, in.PrevOut.Index)
		if in.Call == nil {
			buf = append(buf, 0)
			continue
		}
		buf = append(buf, 1, byte(in.Call.Method))
		buf = append(buf, in.Call.Recipient[:]...)
		buf = binary.LittleEndian.AppendUint64(buf, in.Call.Amount)
	}

	buf = AppendOutputs(buf, tx.Outputs)

	buf = binary.LittleEndian.AppendUint64(buf, tx.LockTime)
	return buf
}

// AppendOutputs appends the canonical encoding of outs to buf.
// Format: output_count(4) | [value(8) + script_type(1) + script_data_len(4) + script_data]...
func AppendOutputs(buf []byte, outs []Output) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(outs)))
	for _, out := range outs {
		buf = binary.LittleEndian.AppendUint64(buf, out.Value)
		buf = append(buf, byte(out.Script.Type))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(out.Script.Data)))
		buf = append(buf, out.Script.Data...)
	}
	return buf
}

// EncodeOutputs returns the canonical encoding of an ordered output list.
func EncodeOutputs(outs []Output) []byte {
	return AppendOutputs(nil, outs)
}

// HashOutputs computes DoubleHash(EncodeOutputs(outs)).
func HashOutputs(outs []Output) types.Hash {
	return crypto.DoubleHash(EncodeOutputs(outs))
}

// CallInput returns the index of the contract call input, or -1.
func (tx *Transaction) CallInput() int {
	for i, in := range tx.Inputs {
		if in.IsCall() {
			return i
		}
	}
	return -1
}

// TotalOutputValue returns the sum of all output values.
// Returns an error if the sum overflows uint64.
func (tx *Transaction) TotalOutputValue() (uint64, error) {
	var total uint64
	for _, out := range tx.Outputs {
		if total > math.MaxUint64-out.Value {
			return 0, fmt.Errorf("output value overflow")
		}
		total += out.Value
	}
	return total, nil
}
