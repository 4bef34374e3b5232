package ledger

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-recall/internal/storage"
	"github.com/Klingon-tech/klingnet-recall/pkg/types"
)

// UTXO is an unspent output: a fee coin or a contract instance.
type UTXO struct {
	Outpoint types.Outpoint `json:"outpoint"`
	Value    uint64         `json:"value"`
	Script   types.Script   `json:"script"`
	Sequence uint64         `json:"sequence"` // Ledger sequence of the creating transaction.
}

// Key prefixes for the UTXO store.
var (
	prefixUTXO  = []byte("u/") // u/<txid><index> -> UTXO JSON
	prefixAddr  = []byte("a/") // a/<address><txid><index> -> empty (coin index)
	prefixOwner = []byte("o/") // o/<pubkey33><txid><index> -> empty (instance owner index)
	keySequence = []byte("m/sequence")
)

// store reads UTXOs from a storage.DB and stages writes into batches.
type store struct {
	db storage.DB
}

func newStore(db storage.DB) *store {
	return &store{db: db}
}

// outpointSuffix encodes txid(32) | index(4, big endian) so index scans
// return outputs of one transaction in order.
func outpointSuffix(op types.Outpoint) []byte {
	buf := make([]byte, types.HashSize+4)
	copy(buf, op.TxID[:])
	binary.BigEndian.PutUint32(buf[types.HashSize:], op.Index)
	return buf
}

func decodeOutpointSuffix(b []byte) (types.Outpoint, bool) {
	if len(b) != types.HashSize+4 {
		return types.Outpoint{}, false
	}
	var op types.Outpoint
	copy(op.TxID[:], b[:types.HashSize])
	op.Index = binary.BigEndian.Uint32(b[types.HashSize:])
	return op, true
}

func utxoKey(op types.Outpoint) []byte {
	return append(append([]byte{}, prefixUTXO...), outpointSuffix(op)...)
}

// addrKey builds a coin index key: "a/" + addr(20) + txid(32) + index(4).
func addrKey(addr types.Address, op types.Outpoint) []byte {
	key := append(append([]byte{}, prefixAddr...), addr[:]...)
	return append(key, outpointSuffix(op)...)
}

// ownerKey builds an owner index key: "o/" + pubkey(33) + txid(32) + index(4).
func ownerKey(owner types.PubKey, op types.Outpoint) []byte {
	key := append(append([]byte{}, prefixOwner...), owner[:]...)
	return append(key, outpointSuffix(op)...)
}

// scriptAddress returns the address of a P2PKH script.
func scriptAddress(s types.Script) (types.Address, bool) {
	if s.Type != types.ScriptTypeP2PKH || len(s.Data) != types.AddressSize {
		return types.Address{}, false
	}
	var addr types.Address
	copy(addr[:], s.Data)
	return addr, true
}

// scriptOwner returns the owner recorded in a state script.
func scriptOwner(s types.Script) (types.PubKey, bool) {
	// kind(1) | issuer(33) | owner(33)
	if s.Type != types.ScriptTypeState || len(s.Data) != 1+2*types.PubKeySize {
		return types.PubKey{}, false
	}
	var pk types.PubKey
	copy(pk[:], s.Data[1+types.PubKeySize:])
	return pk, true
}

// get retrieves a UTXO by its outpoint. Returns ErrInputNotFound when the
// output never existed or was already spent.
func (s *store) get(op types.Outpoint) (*UTXO, error) {
	data, err := s.db.Get(utxoKey(op))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrInputNotFound, op)
	}
	if err != nil {
		return nil, fmt.Errorf("utxo get: %w", err)
	}
	var u UTXO
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("utxo unmarshal: %w", err)
	}
	return &u, nil
}

// stagePut adds u and its index entry to b.
func (s *store) stagePut(b storage.Batch, u *UTXO) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("utxo marshal: %w", err)
	}
	if err := b.Put(utxoKey(u.Outpoint), data); err != nil {
		return fmt.Errorf("utxo put: %w", err)
	}
	if addr, ok := scriptAddress(u.Script); ok {
		if err := b.Put(addrKey(addr, u.Outpoint), []byte{}); err != nil {
			return fmt.Errorf("coin index put: %w", err)
		}
	}
	if owner, ok := scriptOwner(u.Script); ok {
		if err := b.Put(ownerKey(owner, u.Outpoint), []byte{}); err != nil {
			return fmt.Errorf("owner index put: %w", err)
		}
	}
	return nil
}

// stageDelete removes u and its index entry in b.
func (s *store) stageDelete(b storage.Batch, u *UTXO) error {
	if addr, ok := scriptAddress(u.Script); ok {
		if err := b.Delete(addrKey(addr, u.Outpoint)); err != nil {
			return fmt.Errorf("coin index delete: %w", err)
		}
	}
	if owner, ok := scriptOwner(u.Script); ok {
		if err := b.Delete(ownerKey(owner, u.Outpoint)); err != nil {
			return fmt.Errorf("owner index delete: %w", err)
		}
	}
	if err := b.Delete(utxoKey(u.Outpoint)); err != nil {
		return fmt.Errorf("utxo delete: %w", err)
	}
	return nil
}

// forEach iterates over all UTXOs in the store.
func (s *store) forEach(fn func(*UTXO) error) error {
	return s.db.ForEach(prefixUTXO, func(_, value []byte) error {
		var u UTXO
		if err := json.Unmarshal(value, &u); err != nil {
			return fmt.Errorf("utxo unmarshal: %w", err)
		}
		return fn(&u)
	})
}

// scanIndex loads every UTXO referenced under an index prefix.
func (s *store) scanIndex(prefix []byte) ([]*UTXO, error) {
	var utxos []*UTXO
	err := s.db.ForEach(prefix, func(key, _ []byte) error {
		op, ok := decodeOutpointSuffix(key[len(prefix):])
		if !ok {
			return nil // Malformed key, skip.
		}
		u, err := s.get(op)
		if err != nil {
			if errors.Is(err, ErrInputNotFound) {
				return nil
			}
			return err
		}
		utxos = append(utxos, u)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan index: %w", err)
	}
	return utxos, nil
}

// byAddress returns all coins paying addr.
func (s *store) byAddress(addr types.Address) ([]*UTXO, error) {
	return s.scanIndex(append(append([]byte{}, prefixAddr...), addr[:]...))
}

// byOwner returns all instances currently owned by owner.
func (s *store) byOwner(owner types.PubKey) ([]*UTXO, error) {
	return s.scanIndex(append(append([]byte{}, prefixOwner...), owner[:]...))
}

// sequence returns the number of transactions the ledger has accepted.
func (s *store) sequence() (uint64, error) {
	data, err := s.db.Get(keySequence)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read sequence: %w", err)
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("read sequence: corrupt value of %d bytes", len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

func (s *store) stageSequence(b storage.Batch, seq uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	return b.Put(keySequence, buf[:])
}
