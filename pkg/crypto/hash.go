// Package crypto provides the hashing and signature primitives used by the
// ledger and the contract engine.
package crypto

import (
	"github.com/Klingon-tech/klingnet-recall/pkg/types"
	"github.com/zeebo/blake3"
)

// Hash computes a BLAKE3-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// DoubleHash computes Hash(Hash(data)). Committed output digests use it.
func DoubleHash(data []byte) types.Hash {
	first := Hash(data)
	return Hash(first[:])
}

// TaggedHash hashes data under a domain tag so digests computed for
// different purposes never collide. The tag is length-prefixed.
func TaggedHash(tag string, data ...[]byte) types.Hash {
	h := blake3.New()
	h.Write([]byte{byte(len(tag))})
	h.Write([]byte(tag))
	for _, d := range data {
		h.Write(d)
	}
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// AddressFromPubKey derives an address from a compressed public key.
// Address = BLAKE3(compressed_pubkey)[:20].
func AddressFromPubKey(pubKey []byte) types.Address {
	h := Hash(pubKey)
	var addr types.Address
	copy(addr[:], h[:types.AddressSize])
	return addr
}
