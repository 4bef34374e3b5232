package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// PubKeySize is the length of a compressed secp256k1 public key.
const PubKeySize = 33

// PubKey is a fixed-width compressed public key. Ownership states store
// keys in this form so the persisted layout never varies in size.
type PubKey [PubKeySize]byte

// PubKeyFromBytes copies a 33-byte compressed key.
func PubKeyFromBytes(b []byte) (PubKey, error) {
	if len(b) != PubKeySize {
		return PubKey{}, fmt.Errorf("public key must be %d bytes, got %d", PubKeySize, len(b))
	}
	var pk PubKey
	copy(pk[:], b)
	return pk, nil
}

// HexToPubKey parses a 66-character hex compressed key.
func HexToPubKey(s string) (PubKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return PubKey{}, fmt.Errorf("invalid hex: %w", err)
	}
	return PubKeyFromBytes(b)
}

// IsZero returns true if the key is all zeros.
func (pk PubKey) IsZero() bool {
	return pk == PubKey{}
}

// Bytes returns a copy of the key as a byte slice.
func (pk PubKey) Bytes() []byte {
	b := make([]byte, PubKeySize)
	copy(b, pk[:])
	return b
}

// String returns the hex-encoded key.
func (pk PubKey) String() string {
	return hex.EncodeToString(pk[:])
}

// MarshalJSON encodes the key as a hex string.
func (pk PubKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(pk.String())
}

// UnmarshalJSON decodes a hex string into a key.
func (pk *PubKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*pk = PubKey{}
		return nil
	}
	parsed, err := HexToPubKey(s)
	if err != nil {
		return err
	}
	*pk = parsed
	return nil
}
