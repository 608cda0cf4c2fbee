package solana

import "context"

// RPCClient defines the Solana RPC HTTP methods the sale controller uses.
type RPCClient interface {
	// GetAccountInfo returns nil, nil if the account does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)

	// GetProgramAccounts lists accounts owned by program that match opts.
	GetProgramAccounts(ctx context.Context, program string, opts *ProgramAccountsOpts) ([]ProgramAccount, error)

	// GetBalance returns the lamport balance of pubkey.
	GetBalance(ctx context.Context, pubkey string) (uint64, error)

	// GetLatestBlockhash returns a blockhash to build a transaction against.
	GetLatestBlockhash(ctx context.Context) (*Blockhash, error)

	// SendTransaction submits a signed, serialized transaction and returns its signature.
	// It is never retried.
	SendTransaction(ctx context.Context, tx []byte) (string, error)

	// GetSignatureStatuses returns one entry per signature; nil entries are unknown.
	GetSignatureStatuses(ctx context.Context, signatures ...string) ([]*SignatureStatus, error)

	// GetTransaction retrieves a confirmed transaction by signature.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)
}

// Transaction represents a Solana transaction.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds)
	Meta      *TransactionMeta
}

// TransactionMeta contains transaction metadata.
type TransactionMeta struct {
	Err         interface{}
	LogMessages []string
}
