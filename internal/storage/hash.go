package storage

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashToken returns the SHA-256 of the raw token as lowercase hex.
// This is the only form of the token ever persisted: lookups compute the hash
// of the presented token and match it against the stored key_hash column,
// which keeps validation a single indexed read instead of a per-key compare.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))

	return hex.EncodeToString(sum[:])
}
