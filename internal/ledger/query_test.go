package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-token-sale/internal/domain"
	"solana-token-sale/internal/icoprogram"
	"solana-token-sale/internal/observability"
	solrpc "solana-token-sale/internal/solana"
	"solana-token-sale/internal/solana/stub"
)

var (
	testProgram = solana.MustPublicKeyFromBase58("6U33ovmHME1cUQ2SppitWgXajXKbprQDxkRMQLVgrwrU")
	testMint    = solana.MustPublicKeyFromBase58("7GVV4V4wZemvrpNcYCKWmMb3QMqioQat9fst5TvpZAQf")
)

func putRecord(t *testing.T, rpc *stub.RPCClient, rec domain.SaleRecord) {
	t.Helper()
	data, err := icoprogram.EncodeSaleRecord(rec, icoprogram.SaleRecordSpace)
	require.NoError(t, err)
	rpc.SetAccount(rec.Address.String(), &solrpc.AccountInfo{Owner: testProgram.String(), Data: data})
}

func newQuery(rpc *stub.RPCClient) *RPCQuery {
	return NewRPCQuery(rpc, testProgram, WithQueryLogger(observability.NopLogger()))
}

func TestRPCQuery_ListSaleRecords(t *testing.T) {
	rpc := stub.NewRPCClient()
	admin := solana.NewWallet().PublicKey()

	first := domain.SaleRecord{Address: solana.NewWallet().PublicKey(), Admin: admin, TotalSupply: 100, TokenPrice: 1_000_000}
	second := domain.SaleRecord{Address: solana.NewWallet().PublicKey(), Admin: admin, TotalSupply: 50, Sold: 5, TokenPrice: 1_000_000}
	putRecord(t, rpc, first)
	putRecord(t, rpc, second)

	// Foreign and malformed accounts are ignored.
	rpc.SetAccount(solana.NewWallet().PublicKey().String(), &solrpc.AccountInfo{Owner: solana.TokenProgramID.String(), Data: icoprogram.AccountSaleRecord[:]})
	rpc.SetAccount(solana.NewWallet().PublicKey().String(), &solrpc.AccountInfo{Owner: testProgram.String(), Data: icoprogram.AccountSaleRecord[:]})

	records, err := newQuery(rpc).ListSaleRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	want := []domain.SaleRecord{first, second}
	domain.SortSaleRecords(want)
	assert.Equal(t, want[0].Address, records[0].Address)
	assert.Equal(t, want[1].Address, records[1].Address)
}

func TestRPCQuery_FetchSaleRecord(t *testing.T) {
	rpc := stub.NewRPCClient()
	q := newQuery(rpc)
	ctx := context.Background()

	buyer := solana.NewWallet().PublicKey()
	rec := domain.SaleRecord{
		Address:     solana.NewWallet().PublicKey(),
		Admin:       solana.NewWallet().PublicKey(),
		TotalSupply: 2000,
		Sold:        30,
		TokenPrice:  1_000_000,
		Purchases:   []domain.UserPurchase{{Owner: buyer, Amount: 30}},
	}
	putRecord(t, rpc, rec)

	got, err := q.FetchSaleRecord(ctx, rec.Address)
	require.NoError(t, err)
	assert.Equal(t, rec.Admin, got.Admin)
	assert.Equal(t, uint64(30), got.PurchasedBy(buyer))

	_, err = q.FetchSaleRecord(ctx, solana.NewWallet().PublicKey())
	assert.ErrorIs(t, err, ErrAccountNotFound)

	foreign := solana.NewWallet().PublicKey()
	rpc.SetAccount(foreign.String(), &solrpc.AccountInfo{Owner: solana.SystemProgramID.String()})
	_, err = q.FetchSaleRecord(ctx, foreign)
	assert.ErrorIs(t, err, icoprogram.ErrNotSaleRecord)

	rpc.Err = errors.New("node down")
	_, err = q.FetchSaleRecord(ctx, rec.Address)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAccountNotFound)
}

func TestRPCQuery_FetchTokenAccount(t *testing.T) {
	rpc := stub.NewRPCClient()
	q := newQuery(rpc)
	ctx := context.Background()

	owner := solana.NewWallet().PublicKey()
	ata, _, err := solana.FindAssociatedTokenAddress(owner, testMint)
	require.NoError(t, err)

	data, err := EncodeTokenAccount(TokenAccount{Address: ata, Mint: testMint, Owner: owner, Amount: 1_500_000_000_000})
	require.NoError(t, err)
	assert.Len(t, data, 165)
	rpc.SetAccount(ata.String(), &solrpc.AccountInfo{Owner: solana.TokenProgramID.String(), Data: data})

	acc, err := q.FetchTokenAccount(ctx, ata)
	require.NoError(t, err)
	assert.Equal(t, owner, acc.Owner)
	assert.Equal(t, testMint, acc.Mint)
	assert.Equal(t, uint64(1_500_000_000_000), acc.Amount)

	_, err = q.FetchTokenAccount(ctx, solana.NewWallet().PublicKey())
	assert.ErrorIs(t, err, ErrAccountNotFound)

	short := solana.NewWallet().PublicKey()
	rpc.SetAccount(short.String(), &solrpc.AccountInfo{Owner: solana.TokenProgramID.String(), Data: []byte{1, 2, 3}})
	_, err = q.FetchTokenAccount(ctx, short)
	assert.Error(t, err)
}

func TestRPCQuery_GetNativeBalance(t *testing.T) {
	rpc := stub.NewRPCClient()
	identity := solana.NewWallet().PublicKey()
	rpc.Balances[identity.String()] = 42

	balance, err := newQuery(rpc).GetNativeBalance(context.Background(), identity)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), balance)
}
