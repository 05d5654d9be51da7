package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeConfigHash computes a deterministic fingerprint of a serialized configuration.
// Returns hex-encoded hash (64 characters).
func ComputeConfigHash(config []byte) string {
	hash := sha256.Sum256(config)
	return hex.EncodeToString(hash[:])
}

// ComputeRunID computes a deterministic run_id using SHA256.
// Formula: SHA256(tier|seed|config_hash), truncated to 16 hex characters.
// Two runs with the same tier, seed and configuration share a run_id.
func ComputeRunID(
	tier string,
	seed uint64,
	configHash string,
) string {
	data := fmt.Sprintf("%s|%d|%s",
		tier,
		seed,
		configHash,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:8])
}

// ComputeOrderID computes a deterministic 32-character order_id for synthetic orders.
// Formula: SHA256(seed|date_id|seq)
func ComputeOrderID(seed uint64, dateID int, seq int) string {
	data := fmt.Sprintf("%d|%d|%d", seed, dateID, seq)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:16])
}
