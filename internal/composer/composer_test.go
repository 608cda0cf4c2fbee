package composer

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-token-sale/internal/domain"
	"solana-token-sale/internal/eligibility"
	"solana-token-sale/internal/icoprogram"
	"solana-token-sale/internal/pda"
)

var (
	testProgram = solana.MustPublicKeyFromBase58("6U33ovmHME1cUQ2SppitWgXajXKbprQDxkRMQLVgrwrU")
	testMint    = solana.MustPublicKeyFromBase58("7GVV4V4wZemvrpNcYCKWmMb3QMqioQat9fst5TvpZAQf")
)

func testAddresses(t *testing.T) domain.DerivedAddresses {
	t.Helper()
	admin := solana.NewWallet().PublicKey()
	user := solana.NewWallet().PublicKey()
	a, err := pda.NewDeriver(testProgram, testMint).Addresses(admin, user)
	require.NoError(t, err)
	return a
}

func validated(a domain.DerivedAddresses, amount uint64) *eligibility.ValidatedPurchase {
	return &eligibility.ValidatedPurchase{
		Signer: a.User,
		Amount: amount,
		Quote:  eligibility.Quote{Amount: amount, Cost: amount * 1_000_000},
	}
}

func TestBuildPurchase_CreatesTokenAccountWhenAbsent(t *testing.T) {
	a := testAddresses(t)

	intents, err := BuildPurchase(validated(a, 10), a, false)
	require.NoError(t, err)
	require.Len(t, intents, 2)

	create := intents[0]
	assert.Equal(t, IntentCreateTokenAccount, create.Kind)
	assert.Equal(t, associatedtokenaccount.ProgramID, create.ProgramID())

	var sawATA bool
	for _, m := range create.Accounts() {
		if m.PublicKey.Equals(a.UserTokenAccount) {
			sawATA = true
		}
	}
	assert.True(t, sawATA, "create intent must target the user's token account")

	buy := intents[1]
	assert.Equal(t, IntentPurchase, buy.Kind)
	assert.Equal(t, uint64(10), buy.Amount)
	assert.Equal(t, a.SaleVaultBump, buy.Bump)
	assert.Equal(t, testProgram, buy.ProgramID())
}

func TestBuildPurchase_SingleIntentWhenAccountExists(t *testing.T) {
	a := testAddresses(t)

	intents, err := BuildPurchase(validated(a, 25), a, true)
	require.NoError(t, err)
	require.Len(t, intents, 1)

	buy := intents[0]
	assert.Equal(t, IntentPurchase, buy.Kind)

	data, err := buy.Data()
	require.NoError(t, err)
	bump, amount, err := icoprogram.BuyTokensArgs(data)
	require.NoError(t, err)
	assert.Equal(t, a.SaleVaultBump, bump)
	assert.Equal(t, uint64(25), amount)

	accounts := buy.Accounts()
	require.Len(t, accounts, 8)
	assert.Equal(t, a.SaleVault, accounts[0].PublicKey)
	assert.Equal(t, a.SaleRecord, accounts[1].PublicKey)
	assert.Equal(t, a.User, accounts[4].PublicKey)
	assert.True(t, accounts[4].IsSigner)
	assert.Equal(t, a.SaleAdmin, accounts[5].PublicKey)

	assert.Equal(t, []solana.PublicKey{a.User}, buy.Signers())
}

func TestBuildPurchase_SignerMismatch(t *testing.T) {
	a := testAddresses(t)
	v := validated(a, 1)
	v.Signer = solana.NewWallet().PublicKey()

	_, err := BuildPurchase(v, a, true)
	assert.Error(t, err)

	_, err = BuildPurchase(nil, a, true)
	assert.Error(t, err)
}

func TestBuildSaleInitialization(t *testing.T) {
	a := testAddresses(t)

	intents, err := BuildSaleInitialization(1000, a)
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, IntentInitializeSale, intents[0].Kind)

	data, err := intents[0].Data()
	require.NoError(t, err)
	disc, amount, err := icoprogram.AmountArgs(data)
	require.NoError(t, err)
	assert.Equal(t, icoprogram.InstructionCreateSale, disc)
	assert.Equal(t, uint64(1000), amount)
}

func TestBuildDeposit(t *testing.T) {
	a := testAddresses(t)

	intents, err := BuildDeposit(300, a)
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, IntentDeposit, intents[0].Kind)

	data, err := intents[0].Data()
	require.NoError(t, err)
	disc, amount, err := icoprogram.AmountArgs(data)
	require.NoError(t, err)
	assert.Equal(t, icoprogram.InstructionDeposit, disc)
	assert.Equal(t, uint64(300), amount)
}

func TestInstructions(t *testing.T) {
	a := testAddresses(t)
	intents, err := BuildPurchase(validated(a, 5), a, false)
	require.NoError(t, err)

	ixs := Instructions(intents)
	require.Len(t, ixs, 2)
	assert.Equal(t, associatedtokenaccount.ProgramID, ixs[0].ProgramID())
	assert.Equal(t, testProgram, ixs[1].ProgramID())
}
