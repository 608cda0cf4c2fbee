// Package idhash computes deterministic identifiers for journaled records.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"solana-token-sale/internal/domain"
)

// ComputeActionID computes a deterministic action_id using SHA256.
// Formula: SHA256(program|mint|kind|signer|amount|request_id)
// Returns hex-encoded hash (64 characters).
//
// The same request submitted twice yields the same ID, which the action
// journal rejects as a duplicate.
func ComputeActionID(
	program string,
	mint string,
	kind domain.ActionKind,
	signer string,
	amount uint64,
	requestID string,
) string {
	data := fmt.Sprintf("%s|%s|%s|%s|%d|%s",
		program,
		mint,
		string(kind),
		signer,
		amount,
		requestID,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
