// Package composer turns validated requests into the ordered operation intents
// the sale program expects. It never submits anything.
package composer

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"

	"solana-token-sale/internal/domain"
	"solana-token-sale/internal/eligibility"
	"solana-token-sale/internal/icoprogram"
)

// IntentKind identifies what an operation intent does.
type IntentKind string

const (
	IntentCreateTokenAccount IntentKind = "CREATE_TOKEN_ACCOUNT"
	IntentPurchase           IntentKind = "PURCHASE"
	IntentInitializeSale     IntentKind = "INITIALIZE_SALE"
	IntentDeposit            IntentKind = "DEPOSIT"
)

// String returns the string representation of IntentKind.
func (k IntentKind) String() string {
	return string(k)
}

// OperationIntent is one instruction to be submitted, with the arguments it was
// built from. It implements solana.Instruction so a submitter can sign it as is.
type OperationIntent struct {
	Kind      IntentKind
	Amount    uint64 // whole tokens; zero for CREATE_TOKEN_ACCOUNT
	Bump      uint8  // vault bump; PURCHASE only
	Addresses domain.DerivedAddresses

	instruction solana.Instruction
}

var _ solana.Instruction = OperationIntent{}

// ProgramID implements solana.Instruction.
func (o OperationIntent) ProgramID() solana.PublicKey {
	return o.instruction.ProgramID()
}

// Accounts implements solana.Instruction.
func (o OperationIntent) Accounts() []*solana.AccountMeta {
	return o.instruction.Accounts()
}

// Data implements solana.Instruction.
func (o OperationIntent) Data() ([]byte, error) {
	return o.instruction.Data()
}

// Signers returns the keys that must sign the intent.
func (o OperationIntent) Signers() []solana.PublicKey {
	var out []solana.PublicKey
	for _, m := range o.Accounts() {
		if m.IsSigner {
			out = append(out, m.PublicKey)
		}
	}
	return out
}

// BuildPurchase returns [create token account, purchase] when the buyer has no
// associated token account yet, and [purchase] otherwise.
func BuildPurchase(v *eligibility.ValidatedPurchase, a domain.DerivedAddresses, userTokenAccountExists bool) ([]OperationIntent, error) {
	if v == nil {
		return nil, fmt.Errorf("build purchase: nil validated purchase")
	}
	if !v.Signer.IsZero() && !v.Signer.Equals(a.User) {
		return nil, fmt.Errorf("build purchase: signer %s does not match derived user %s", v.Signer, a.User)
	}

	intents := make([]OperationIntent, 0, 2)
	if !userTokenAccountExists {
		intents = append(intents, OperationIntent{
			Kind:        IntentCreateTokenAccount,
			Addresses:   a,
			instruction: associatedtokenaccount.NewCreateInstruction(a.User, a.User, a.Mint).Build(),
		})
	}

	ix, err := icoprogram.NewBuyTokensInstruction(v.Amount, a)
	if err != nil {
		return nil, fmt.Errorf("build purchase: %w", err)
	}
	intents = append(intents, OperationIntent{
		Kind:        IntentPurchase,
		Amount:      v.Amount,
		Bump:        a.SaleVaultBump,
		Addresses:   a,
		instruction: ix,
	})
	return intents, nil
}

// BuildSaleInitialization returns the single intent that creates the sale record
// and funds the vault with amount tokens from the administrator.
func BuildSaleInitialization(amount uint64, a domain.DerivedAddresses) ([]OperationIntent, error) {
	ix, err := icoprogram.NewCreateSaleInstruction(amount, a)
	if err != nil {
		return nil, fmt.Errorf("build sale initialization: %w", err)
	}
	return []OperationIntent{{
		Kind:        IntentInitializeSale,
		Amount:      amount,
		Addresses:   a,
		instruction: ix,
	}}, nil
}

// BuildDeposit returns the single intent that tops up the vault. Whether the
// signer is the administrator is left to the caller and the program.
func BuildDeposit(amount uint64, a domain.DerivedAddresses) ([]OperationIntent, error) {
	ix, err := icoprogram.NewDepositInstruction(amount, a)
	if err != nil {
		return nil, fmt.Errorf("build deposit: %w", err)
	}
	return []OperationIntent{{
		Kind:        IntentDeposit,
		Amount:      amount,
		Addresses:   a,
		instruction: ix,
	}}, nil
}

// Instructions converts intents for transaction assembly.
func Instructions(intents []OperationIntent) []solana.Instruction {
	out := make([]solana.Instruction, len(intents))
	for i := range intents {
		out[i] = intents[i]
	}
	return out
}
