package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// HashParts generates a stable hash over heterogeneous key components.
// Components are JSON-marshaled, so only plain values (numbers, strings,
// slices, small structs) should be passed.
func HashParts(parts ...any) string {
	data, _ := json.Marshal(parts)
	return Hash(data)
}

// Hash computes a SHA-256 hash of the input data.
// Returns the full 64-character hex string.
func Hash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
