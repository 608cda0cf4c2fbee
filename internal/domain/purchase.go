package domain

import "github.com/gagliardetto/solana-go"

// PurchaseIntent is built per request, validated, and discarded after submission.
type PurchaseIntent struct {
	RequestedAmount    int64 // whole tokens; non-positive values are rejected
	Signer             solana.PublicKey
	CurrentUserHolding uint64 // whole tokens the signer already holds
}

// Holding is the signer's balance in the sale token.
type Holding struct {
	Owner        solana.PublicKey
	TokenAccount solana.PublicKey
	Exists       bool   // false when the associated token account has not been created
	Raw          uint64 // smallest token units
	Whole        uint64 // Raw scaled down by the mint decimals, truncated
}

// DerivedAddresses is the full address set the external program expects for one action.
// It is a pure function of seeds, program, mint, admin and user.
type DerivedAddresses struct {
	ProgramID solana.PublicKey
	Mint      solana.PublicKey

	SaleVault     solana.PublicKey
	SaleVaultBump uint8

	SaleAdmin      solana.PublicKey
	SaleRecord     solana.PublicKey
	SaleRecordBump uint8

	User             solana.PublicKey
	UserTokenAccount solana.PublicKey
}

// Receipt describes a confirmed transaction.
type Receipt struct {
	Signature          solana.Signature
	Slot               uint64
	ConfirmationStatus string
}
