// Package icoprogram encodes and decodes the sale program's wire format:
// Anchor discriminators, Borsh instruction arguments, and the sale record account.
package icoprogram

import (
	"crypto/sha256"
	"errors"
)

// Discriminator is the 8-byte Anchor prefix of instruction data and account data.
type Discriminator [8]byte

// Instruction and account discriminators.
var (
	InstructionCreateSale = newDiscriminator("global:create_ico_ata")
	InstructionDeposit    = newDiscriminator("global:deposit_ico_in_ata")
	InstructionBuyTokens  = newDiscriminator("global:buy_tokens")

	AccountSaleRecord = newDiscriminator("account:Data")
)

// Program-side defaults, mirrored so the client can pre-validate.
const (
	DefaultLamportsPerToken = 1_000_000
	DefaultMaxUserTotal     = 2000
	DefaultTokenDecimals    = 9
	DefaultFeeReserve       = 5000 // lamports kept back for the network fee
)

var (
	// ErrUnknownInstruction is returned when instruction data has an unexpected discriminator.
	ErrUnknownInstruction = errors.New("unknown instruction discriminator")

	// ErrNotSaleRecord is returned when account data is not a sale record.
	ErrNotSaleRecord = errors.New("account is not a sale record")
)

func newDiscriminator(preimage string) Discriminator {
	sum := sha256.Sum256([]byte(preimage))
	var d Discriminator
	copy(d[:], sum[:8])
	return d
}

// Name returns the program-side instruction name for a discriminator.
func (d Discriminator) Name() string {
	switch d {
	case InstructionCreateSale:
		return "create_ico_ata"
	case InstructionDeposit:
		return "deposit_ico_in_ata"
	case InstructionBuyTokens:
		return "buy_tokens"
	case AccountSaleRecord:
		return "Data"
	default:
		return "unknown"
	}
}
