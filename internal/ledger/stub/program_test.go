package stub

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-token-sale/internal/composer"
	"solana-token-sale/internal/domain"
	"solana-token-sale/internal/eligibility"
	"solana-token-sale/internal/icoprogram"
	"solana-token-sale/internal/ledger"
	"solana-token-sale/internal/pda"
)

var (
	testProgram = solana.MustPublicKeyFromBase58("6U33ovmHME1cUQ2SppitWgXajXKbprQDxkRMQLVgrwrU")
	testMint    = solana.MustPublicKeyFromBase58("7GVV4V4wZemvrpNcYCKWmMb3QMqioQat9fst5TvpZAQf")
)

const rawPerToken = 1_000_000_000

type fixture struct {
	program *Program
	deriver *pda.Deriver
	admin   solana.PublicKey
	buyer   solana.PublicKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		program: NewProgram(testProgram, testMint),
		deriver: pda.NewDeriver(testProgram, testMint),
		admin:   solana.NewWallet().PublicKey(),
		buyer:   solana.NewWallet().PublicKey(),
	}
	f.program.Fund(f.admin, 1_000_000_000)
	f.program.Fund(f.buyer, 1_000_000_000)
	f.program.MintTo(f.admin, 5000)
	return f
}

func (f *fixture) addresses(t *testing.T, user solana.PublicKey) domain.DerivedAddresses {
	t.Helper()
	a, err := f.deriver.Addresses(f.admin, user)
	require.NoError(t, err)
	return a
}

func (f *fixture) initialize(t *testing.T, amount uint64) {
	t.Helper()
	intents, err := composer.BuildSaleInitialization(amount, f.addresses(t, f.admin))
	require.NoError(t, err)
	_, err = f.program.Submit(context.Background(), intents, f.admin)
	require.NoError(t, err)
}

func (f *fixture) buy(t *testing.T, amount uint64, tokenAccountExists bool) (*domain.Receipt, error) {
	t.Helper()
	v := &eligibility.ValidatedPurchase{Signer: f.buyer, Amount: amount}
	intents, err := composer.BuildPurchase(v, f.addresses(t, f.buyer), tokenAccountExists)
	require.NoError(t, err)
	return f.program.Submit(context.Background(), intents, f.buyer)
}

func TestProgram_InitializeSale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.initialize(t, 2000)

	records, err := f.program.ListSaleRecords(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, f.admin, records[0].Admin)
	assert.Equal(t, uint64(2000), records[0].TotalSupply)
	assert.Equal(t, uint64(0), records[0].Sold)
	assert.Equal(t, uint64(icoprogram.DefaultLamportsPerToken), records[0].TokenPrice)

	a := f.addresses(t, f.admin)
	assert.Equal(t, uint64(2000*rawPerToken), f.program.TokenBalance(a.SaleVault))
	assert.Equal(t, uint64(3000*rawPerToken), f.program.TokenBalance(a.UserTokenAccount))
	assert.Equal(t, uint64(1_000_000_000-DefaultFee), f.program.Lamports(f.admin))

	// The vault and record can only be created once.
	intents, err := composer.BuildSaleInitialization(1, a)
	require.NoError(t, err)
	_, err = f.program.Submit(ctx, intents, f.admin)
	assert.ErrorIs(t, err, ledger.ErrTransactionFailed)
}

func TestProgram_BuyCreatesTokenAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.initialize(t, 2000)

	receipt, err := f.buy(t, 10, false)
	require.NoError(t, err)
	assert.NotEqual(t, solana.Signature{}, receipt.Signature)

	a := f.addresses(t, f.buyer)
	holding, err := f.program.FetchTokenAccount(ctx, a.UserTokenAccount)
	require.NoError(t, err)
	assert.Equal(t, uint64(10*rawPerToken), holding.Amount)
	assert.Equal(t, f.buyer, holding.Owner)

	rec, err := f.program.FetchSaleRecord(ctx, a.SaleRecord)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), rec.Sold)
	assert.Equal(t, uint64(10), rec.PurchasedBy(f.buyer))

	assert.Equal(t, uint64(1_000_000_000-DefaultFee-10*icoprogram.DefaultLamportsPerToken), f.program.Lamports(f.buyer))
	assert.Equal(t, uint64(1_000_000_000-DefaultFee+10*icoprogram.DefaultLamportsPerToken), f.program.Lamports(f.admin))

	// A second create of the same token account fails the whole transaction.
	_, err = f.buy(t, 1, false)
	assert.ErrorIs(t, err, ledger.ErrTransactionFailed)
}

func TestProgram_UserCapIsAtomic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.initialize(t, 4000)
	f.program.Fund(f.buyer, 10_000_000_000)

	_, err := f.buy(t, 1900, false)
	require.NoError(t, err)

	before := f.program.Lamports(f.buyer)
	_, err = f.buy(t, 150, true)
	require.Error(t, err)

	subErr, ok := ledger.AsSubmissionError(err)
	require.True(t, ok)
	perr, ok := subErr.ProgramError()
	require.True(t, ok)
	assert.Same(t, icoprogram.ErrProgramUserLimit, perr)

	// Only the fee is charged; the sale record is unchanged.
	assert.Equal(t, before-DefaultFee, f.program.Lamports(f.buyer))
	rec, err := f.program.FetchSaleRecord(ctx, f.addresses(t, f.buyer).SaleRecord)
	require.NoError(t, err)
	assert.Equal(t, uint64(1900), rec.Sold)

	_, err = f.buy(t, 100, true)
	require.NoError(t, err)
}

func TestProgram_BuyWithoutTokenAccountFails(t *testing.T) {
	f := newFixture(t)
	f.initialize(t, 100)

	_, err := f.buy(t, 1, true)
	assert.ErrorIs(t, err, ledger.ErrTransactionFailed)
}

func TestProgram_SupplyExhausted(t *testing.T) {
	f := newFixture(t)
	f.initialize(t, 5)

	_, err := f.buy(t, 6, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient funds")

	// Nothing was committed, including the token account creation.
	_, err = f.program.FetchTokenAccount(context.Background(), f.addresses(t, f.buyer).UserTokenAccount)
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestProgram_DepositRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.initialize(t, 100)

	a := f.addresses(t, f.admin)
	intents, err := composer.BuildDeposit(50, a)
	require.NoError(t, err)
	_, err = f.program.Submit(ctx, intents, f.admin)
	require.NoError(t, err)

	rec, err := f.program.FetchSaleRecord(ctx, a.SaleRecord)
	require.NoError(t, err)
	assert.Equal(t, uint64(150), rec.TotalSupply)

	// A non-admin depositing into the admin's record.
	other := solana.NewWallet().PublicKey()
	f.program.Fund(other, 1_000_000)
	f.program.MintTo(other, 10)
	b := f.addresses(t, other)
	intents, err = composer.BuildDeposit(5, b)
	require.NoError(t, err)
	_, err = f.program.Submit(ctx, intents, other)
	require.Error(t, err)
	subErr, ok := ledger.AsSubmissionError(err)
	require.True(t, ok)
	perr, ok := subErr.ProgramError()
	require.True(t, ok)
	assert.Same(t, icoprogram.ErrProgramInvalidAdmin, perr)
}

func TestProgram_FailureInjection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.program.SetQueryError(errors.New("node down"))
	_, err := f.program.ListSaleRecords(ctx)
	assert.Error(t, err)
	f.program.SetQueryError(nil)

	f.program.FailNext(errors.New("blockhash not found"))
	intents, err := composer.BuildSaleInitialization(10, f.addresses(t, f.admin))
	require.NoError(t, err)
	_, err = f.program.Submit(ctx, intents, f.admin)
	subErr, ok := ledger.AsSubmissionError(err)
	require.True(t, ok)
	assert.Empty(t, subErr.Signature)

	_, err = f.program.Submit(ctx, intents, f.admin)
	require.NoError(t, err)
	assert.Equal(t, 2, f.program.Submissions())

	_, err = f.program.Submit(ctx, intents, f.buyer)
	assert.ErrorIs(t, err, ledger.ErrSignerMismatch)
}
