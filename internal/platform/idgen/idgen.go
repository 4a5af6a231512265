// Package idgen generates the UUIDs and random tokens the orchestrator uses
// for trade/transaction/history identifiers and idempotency keys (C1).
package idgen

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// NewUUID returns a new random UUID string.
func NewUUID() string {
	return uuid.NewString()
}

// NewToken returns a random hex token of n bytes, suitable for signing keys
// or one-off idempotency suffixes that must not collide with a UUID.
func NewToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
