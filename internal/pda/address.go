// Package pda derives the program-owned addresses the sale program expects.
package pda

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"math"

	"filippo.io/edwards25519"
	"github.com/gagliardetto/solana-go"
)

// Derivation limits enforced by the runtime. The bump counts as a seed.
const (
	MaxSeeds      = 16
	MaxSeedLength = 32
)

const pdaMarker = "ProgramDerivedAddress"

var (
	// ErrDerivationExhausted is returned when no bump in [1, 255] yields an off-curve address.
	ErrDerivationExhausted = errors.New("derivation exhausted: no valid bump seed")

	// ErrTooManySeeds is returned when more than MaxSeeds seeds are supplied.
	ErrTooManySeeds = errors.New("too many seeds")

	// ErrMaxSeedLengthExceeded is returned when a single seed is longer than MaxSeedLength.
	ErrMaxSeedLengthExceeded = errors.New("max seed length exceeded")

	// ErrOnCurve is returned by CreateProgramAddress when the hash is a valid ed25519 point,
	// i.e. an address that could have a private key.
	ErrOnCurve = errors.New("address lies on the ed25519 curve")
)

// onCurve is swapped in tests to force exhaustion.
var onCurve = isOnCurve

// CreateProgramAddress hashes seeds || program || "ProgramDerivedAddress" and
// rejects the result if it is a valid curve point.
func CreateProgramAddress(program solana.PublicKey, seeds ...[]byte) (solana.PublicKey, error) {
	if len(seeds) > MaxSeeds {
		return solana.PublicKey{}, ErrTooManySeeds
	}

	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return solana.PublicKey{}, ErrMaxSeedLengthExceeded
		}
		h.Write(seed)
	}
	h.Write(program[:])
	h.Write([]byte(pdaMarker))

	var addr solana.PublicKey
	copy(addr[:], h.Sum(nil))

	if onCurve(addr[:]) {
		return solana.PublicKey{}, ErrOnCurve
	}
	return addr, nil
}

// FindProgramAddress searches bumps from 255 down to 1 and returns the first
// off-curve address together with its bump.
func FindProgramAddress(program solana.PublicKey, seeds ...[]byte) (solana.PublicKey, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return solana.PublicKey{}, 0, ErrTooManySeeds
	}

	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)

	for bump := uint8(math.MaxUint8); bump > 0; bump-- {
		withBump[len(seeds)] = []byte{bump}

		addr, err := CreateProgramAddress(program, withBump...)
		if err == nil {
			return addr, bump, nil
		}
		if !errors.Is(err, ErrOnCurve) {
			return solana.PublicKey{}, 0, err
		}
	}

	return solana.PublicKey{}, 0, fmt.Errorf("%w (program %s)", ErrDerivationExhausted, program)
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
