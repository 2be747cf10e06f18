package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// FingerprintPrefix marks fingerprints as content hashes. The ledger contract
// stores 32-byte values; the prefix matches the shape it expects on the wire.
const FingerprintPrefix = "0x"

// Fingerprint hashes the canonical text with SHA-256 and renders the digest
// as lowercase hex with the content-hash prefix: 66 characters in total.
// Deterministic and total.
func Fingerprint(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return FingerprintPrefix + hex.EncodeToString(sum[:])
}
