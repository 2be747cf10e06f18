package ledger

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// The ProofStorage contract is already deployed and its interface is fixed:
// storeProof(bytes32) anchors a fingerprint and emits ProofStored(bytes32)
// with the anchored value in the log data.
const (
	storeProofSignature  = "storeProof(bytes32)"
	proofStoredSignature = "ProofStored(bytes32)"
)

var (
	// storeProofSelector is the 4-byte method selector, hex encoded.
	storeProofSelector = hex.EncodeToString(keccak256([]byte(storeProofSignature))[:4])
	// proofStoredTopic is the topic0 filter for the ProofStored event.
	proofStoredTopic = "0x" + hex.EncodeToString(keccak256([]byte(proofStoredSignature)))
)

func keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}
