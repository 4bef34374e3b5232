package contract

import (
	"encoding/binary"
	"fmt"

	"github.com/Klingon-tech/klingnet-recall/pkg/crypto"
	"github.com/Klingon-tech/klingnet-recall/pkg/tx"
	"github.com/Klingon-tech/klingnet-recall/pkg/types"
)

// sigHashTag separates call digests from every other hash in the system.
const sigHashTag = "recall/sighash"

// SigHash returns the digest a call signature commits to: the spent
// outpoint, its locked value, the method and the committed outputs digest.
func SigHash(outpoint types.Outpoint, value uint64, method tx.Method, hashOutputs types.Hash) types.Hash {
	var index [4]byte
	binary.LittleEndian.PutUint32(index[:], outpoint.Index)
	var amount [8]byte
	binary.LittleEndian.PutUint64(amount[:], value)

	return crypto.TaggedHash(sigHashTag,
		outpoint.TxID[:],
		index[:],
		amount[:],
		[]byte{byte(method)},
		hashOutputs[:],
	)
}

// Authorize verifies a Schnorr signature by pub over digest.
func Authorize(pub types.PubKey, sig []byte, digest types.Hash) error {
	if !crypto.VerifySignature(digest[:], sig, pub[:]) {
		return fmt.Errorf("%w: key %s", ErrAuthorization, pub)
	}
	return nil
}

// SignCall signs a call on inst whose transaction commits to hashOutputs.
func SignCall(signer crypto.Signer, inst Instance, method tx.Method, hashOutputs types.Hash) ([]byte, error) {
	digest := SigHash(inst.Outpoint, inst.Value(), method, hashOutputs)
	sig, err := signer.Sign(digest[:])
	if err != nil {
		return nil, fmt.Errorf("sign %s call: %w", method, err)
	}
	return sig, nil
}
