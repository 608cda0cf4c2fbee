package ledger

import (
	"context"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/sirupsen/logrus"

	"solana-token-sale/internal/domain"
	"solana-token-sale/internal/icoprogram"
	solrpc "solana-token-sale/internal/solana"
)

// RPCQuery implements Query over the Solana JSON-RPC API.
type RPCQuery struct {
	rpc       solrpc.RPCClient
	programID solana.PublicKey
	log       logrus.FieldLogger
}

// QueryOption configures an RPCQuery.
type QueryOption func(*RPCQuery)

// WithQueryLogger sets the logger.
func WithQueryLogger(log logrus.FieldLogger) QueryOption {
	return func(q *RPCQuery) {
		q.log = log
	}
}

// NewRPCQuery creates a query for sale records of programID.
func NewRPCQuery(rpc solrpc.RPCClient, programID solana.PublicKey, opts ...QueryOption) *RPCQuery {
	q := &RPCQuery{
		rpc:       rpc,
		programID: programID,
		log:       logrus.StandardLogger().WithField("type", "ledger/query"),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

var _ Query = (*RPCQuery)(nil)

// ListSaleRecords lists program accounts carrying the sale record discriminator.
// Accounts that fail to decode are skipped.
func (q *RPCQuery) ListSaleRecords(ctx context.Context) ([]domain.SaleRecord, error) {
	accounts, err := q.rpc.GetProgramAccounts(ctx, q.programID.String(), &solrpc.ProgramAccountsOpts{
		Memcmp: []solrpc.MemcmpFilter{{Offset: 0, Bytes: icoprogram.AccountSaleRecord[:]}},
	})
	if err != nil {
		return nil, fmt.Errorf("list sale records: %w", err)
	}

	records := make([]domain.SaleRecord, 0, len(accounts))
	for _, acc := range accounts {
		address, err := solana.PublicKeyFromBase58(acc.Pubkey)
		if err != nil {
			q.log.WithError(err).WithField("account", acc.Pubkey).Warn("skipping account with invalid address")
			continue
		}
		rec, err := icoprogram.DecodeSaleRecord(address, acc.Account.Data)
		if err != nil {
			q.log.WithError(err).WithField("account", acc.Pubkey).Warn("skipping undecodable sale record")
			continue
		}
		records = append(records, *rec)
	}

	domain.SortSaleRecords(records)
	return records, nil
}

// FetchSaleRecord reads and decodes the sale record at address.
func (q *RPCQuery) FetchSaleRecord(ctx context.Context, address solana.PublicKey) (*domain.SaleRecord, error) {
	info, err := q.rpc.GetAccountInfo(ctx, address.String())
	if err != nil {
		return nil, fmt.Errorf("fetch sale record %s: %w", address, err)
	}
	if info == nil {
		return nil, ErrAccountNotFound
	}
	if info.Owner != q.programID.String() {
		return nil, fmt.Errorf("%w: %s is owned by %s", icoprogram.ErrNotSaleRecord, address, info.Owner)
	}

	rec, err := icoprogram.DecodeSaleRecord(address, info.Data)
	if err != nil {
		return nil, fmt.Errorf("decode sale record %s: %w", address, err)
	}
	return rec, nil
}

// FetchTokenAccount reads and decodes an SPL token account.
func (q *RPCQuery) FetchTokenAccount(ctx context.Context, address solana.PublicKey) (*TokenAccount, error) {
	info, err := q.rpc.GetAccountInfo(ctx, address.String())
	if err != nil {
		return nil, fmt.Errorf("fetch token account %s: %w", address, err)
	}
	if info == nil {
		return nil, ErrAccountNotFound
	}

	acc, err := DecodeTokenAccount(address, info.Data)
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// GetNativeBalance returns the lamport balance of identity.
func (q *RPCQuery) GetNativeBalance(ctx context.Context, identity solana.PublicKey) (uint64, error) {
	balance, err := q.rpc.GetBalance(ctx, identity.String())
	if err != nil {
		return 0, fmt.Errorf("get balance %s: %w", identity, err)
	}
	return balance, nil
}

// DecodeTokenAccount decodes SPL token account data.
func DecodeTokenAccount(address solana.PublicKey, data []byte) (*TokenAccount, error) {
	var acc token.Account
	if err := bin.NewBinDecoder(data).Decode(&acc); err != nil {
		return nil, fmt.Errorf("decode token account %s: %w", address, err)
	}
	return &TokenAccount{
		Address: address,
		Mint:    acc.Mint,
		Owner:   acc.Owner,
		Amount:  acc.Amount,
	}, nil
}

// EncodeTokenAccount encodes an initialized SPL token account.
func EncodeTokenAccount(acc TokenAccount) ([]byte, error) {
	data, err := bin.MarshalBin(token.Account{
		Mint:   acc.Mint,
		Owner:  acc.Owner,
		Amount: acc.Amount,
		State:  token.Initialized,
	})
	if err != nil {
		return nil, fmt.Errorf("encode token account %s: %w", acc.Address, err)
	}
	return data, nil
}
