package stub

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"solana-token-sale/internal/solana"
)

// RPCClient implements solana.RPCClient for testing.
type RPCClient struct {
	mu sync.Mutex

	Accounts     map[string]*solana.AccountInfo
	Balances     map[string]uint64
	Statuses     map[string]*solana.SignatureStatus
	Transactions map[string]*solana.Transaction
	Blockhash    solana.Blockhash

	// Sent records every transaction passed to SendTransaction.
	Sent [][]byte
	// SendErr, if set, is returned by SendTransaction.
	SendErr error
	// Err, if set, is returned by every read method.
	Err error
	// NextSignature is returned by SendTransaction.
	NextSignature string
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Accounts:     make(map[string]*solana.AccountInfo),
		Balances:     make(map[string]uint64),
		Statuses:     make(map[string]*solana.SignatureStatus),
		Transactions: make(map[string]*solana.Transaction),
		Blockhash:    solana.Blockhash{Hash: "11111111111111111111111111111111", LastValidBlockHeight: 100},
	}
}

// GetAccountInfo returns the stored account or nil.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	acc, ok := c.Accounts[pubkey]
	if !ok {
		return nil, nil
	}
	cp := *acc
	cp.Data = append([]byte(nil), acc.Data...)
	return &cp, nil
}

// GetProgramAccounts returns stored accounts owned by program that match opts, ordered by key.
func (c *RPCClient) GetProgramAccounts(_ context.Context, program string, opts *solana.ProgramAccountsOpts) ([]solana.ProgramAccount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}

	var out []solana.ProgramAccount
	for key, acc := range c.Accounts {
		if acc.Owner != program || !matches(acc.Data, opts) {
			continue
		}
		cp := *acc
		cp.Data = append([]byte(nil), acc.Data...)
		out = append(out, solana.ProgramAccount{Pubkey: key, Account: cp})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pubkey < out[j].Pubkey })
	return out, nil
}

func matches(data []byte, opts *solana.ProgramAccountsOpts) bool {
	if opts == nil {
		return true
	}
	if opts.DataSize > 0 && uint64(len(data)) != opts.DataSize {
		return false
	}
	for _, f := range opts.Memcmp {
		end := f.Offset + uint64(len(f.Bytes))
		if end > uint64(len(data)) || !bytes.Equal(data[f.Offset:end], f.Bytes) {
			return false
		}
	}
	return true
}

// GetBalance returns the stored balance.
func (c *RPCClient) GetBalance(_ context.Context, pubkey string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return 0, c.Err
	}
	return c.Balances[pubkey], nil
}

// GetLatestBlockhash returns the configured blockhash.
func (c *RPCClient) GetLatestBlockhash(_ context.Context) (*solana.Blockhash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	bh := c.Blockhash
	return &bh, nil
}

// SendTransaction records tx and returns NextSignature.
func (c *RPCClient) SendTransaction(_ context.Context, tx []byte) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Sent = append(c.Sent, append([]byte(nil), tx...))
	if c.SendErr != nil {
		return "", c.SendErr
	}
	if c.NextSignature == "" {
		return "", fmt.Errorf("stub: no signature configured")
	}
	return c.NextSignature, nil
}

// GetSignatureStatuses returns stored statuses, nil for unknown signatures.
func (c *RPCClient) GetSignatureStatuses(_ context.Context, signatures ...string) ([]*solana.SignatureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	out := make([]*solana.SignatureStatus, len(signatures))
	for i, sig := range signatures {
		if st, ok := c.Statuses[sig]; ok {
			cp := *st
			out[i] = &cp
		}
	}
	return out, nil
}

// GetTransaction retrieves a transaction by signature from the stub store.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	return c.Transactions[signature], nil
}

// SetAccount stores an account.
func (c *RPCClient) SetAccount(pubkey string, info *solana.AccountInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Accounts[pubkey] = info
}

// SetStatus stores a signature status.
func (c *RPCClient) SetStatus(signature string, status *solana.SignatureStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Statuses[signature] = status
}

// SentCount returns how many transactions were sent.
func (c *RPCClient) SentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Sent)
}

var _ solana.RPCClient = (*RPCClient)(nil)
