// Package ledger reads sale state from chain and submits signed sale transactions.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"

	"solana-token-sale/internal/composer"
	"solana-token-sale/internal/domain"
	"solana-token-sale/internal/icoprogram"
)

var (
	// ErrAccountNotFound is returned when a requested account does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrNoIntents is returned when Submit is called with nothing to do.
	ErrNoIntents = errors.New("no operation intents")

	// ErrSignerMismatch is returned when the submitter cannot sign for the requested signer.
	ErrSignerMismatch = errors.New("signer does not match wallet key")

	// ErrTransactionFailed is wrapped when the transaction landed with an error.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrConfirmationTimeout is wrapped when the transaction was sent but not observed in time.
	ErrConfirmationTimeout = errors.New("confirmation timeout")
)

// TokenAccount is a decoded SPL token account.
type TokenAccount struct {
	Address solana.PublicKey
	Mint    solana.PublicKey
	Owner   solana.PublicKey
	Amount  uint64 // smallest token units
}

// Query reads sale state.
type Query interface {
	// ListSaleRecords returns every sale record owned by the program, ordered by address.
	ListSaleRecords(ctx context.Context) ([]domain.SaleRecord, error)

	// FetchSaleRecord returns ErrAccountNotFound if no record exists at address.
	FetchSaleRecord(ctx context.Context, address solana.PublicKey) (*domain.SaleRecord, error)

	// FetchTokenAccount returns ErrAccountNotFound if the token account does not exist.
	FetchTokenAccount(ctx context.Context, address solana.PublicKey) (*TokenAccount, error)

	// GetNativeBalance returns the lamport balance of identity.
	GetNativeBalance(ctx context.Context, identity solana.PublicKey) (uint64, error)
}

// Submitter signs and submits operation intents as one transaction and waits for confirmation.
// Submissions are never retried.
type Submitter interface {
	Submit(ctx context.Context, intents []composer.OperationIntent, signer solana.PublicKey) (*domain.Receipt, error)
}

// SubmissionError describes a transaction that was rejected, failed on chain, or was not confirmed.
type SubmissionError struct {
	// Signature is empty when the node never accepted the transaction.
	Signature string
	Err       error
	Logs      []string
}

func (e *SubmissionError) Error() string {
	if e.Signature == "" {
		return fmt.Sprintf("submit transaction: %v", e.Err)
	}
	return fmt.Sprintf("transaction %s: %v", e.Signature, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// ProgramError returns the sale program's custom error, if the failure carried one.
func (e *SubmissionError) ProgramError() (*icoprogram.ProgramError, bool) {
	lines := append([]string{e.Err.Error()}, e.Logs...)
	return icoprogram.FindProgramError(lines...)
}

// Detail renders the error with its program logs for display.
func (e *SubmissionError) Detail() string {
	if len(e.Logs) == 0 {
		return e.Error()
	}
	return e.Error() + "\n  " + strings.Join(e.Logs, "\n  ")
}

// AsSubmissionError unwraps err to a *SubmissionError.
func AsSubmissionError(err error) (*SubmissionError, bool) {
	var se *SubmissionError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
