package eligibility

import (
	"errors"
	"math"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-token-sale/internal/domain"
)

func defaultEngine() *Engine {
	return NewEngine(Config{
		PricePerToken: decimal.NewFromInt(1_000_000),
		MaxUserTotal:  2000,
		FeeReserve:    5000,
	})
}

func testSnapshot() *domain.SaleSnapshot {
	return domain.NewSaleSnapshot(domain.SaleRecord{
		Admin:       solana.NewWallet().PublicKey(),
		TotalSupply: 1000,
		Sold:        200,
		TokenPrice:  1_000_000,
	}, nil)
}

func TestValidatePurchase_NonPositiveAmount(t *testing.T) {
	e := defaultEngine()

	for _, amount := range []int64{0, -1, -50, math.MinInt64} {
		intent := domain.PurchaseIntent{RequestedAmount: amount}
		// Even with no snapshot the first check wins.
		_, err := e.ValidatePurchase(intent, nil, math.MaxUint64)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNonPositiveAmount), "amount %d", amount)
	}
}

func TestValidatePurchase_SaleUninitialized(t *testing.T) {
	e := defaultEngine()

	_, err := e.ValidatePurchase(domain.PurchaseIntent{RequestedAmount: 1}, nil, math.MaxUint64)
	assert.True(t, errors.Is(err, ErrSaleUninitialized))
}

func TestValidatePurchase_UserCapExceeded(t *testing.T) {
	e := defaultEngine()

	_, err := e.ValidatePurchase(domain.PurchaseIntent{RequestedAmount: 150, CurrentUserHolding: 1900}, testSnapshot(), math.MaxUint64)
	require.Error(t, err)

	rej, ok := AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, UserCapExceeded, rej.Kind)
	assert.Equal(t, uint64(100), rej.Remaining)
	assert.True(t, errors.Is(err, ErrUserCapExceeded))
}

func TestValidatePurchase_CapBoundary(t *testing.T) {
	e := defaultEngine()

	// Reaching the cap exactly is allowed.
	v, err := e.ValidatePurchase(domain.PurchaseIntent{RequestedAmount: 100, CurrentUserHolding: 1900}, testSnapshot(), math.MaxUint64)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), v.Amount)

	v, err = e.ValidatePurchase(domain.PurchaseIntent{RequestedAmount: 50, CurrentUserHolding: 1900}, testSnapshot(), math.MaxUint64)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), v.Amount)

	_, err = e.ValidatePurchase(domain.PurchaseIntent{RequestedAmount: 50, CurrentUserHolding: 1990}, testSnapshot(), math.MaxUint64)
	rej, ok := AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, UserCapExceeded, rej.Kind)
	assert.Equal(t, uint64(10), rej.Remaining)
}

func TestValidatePurchase_RemainingNeverNegative(t *testing.T) {
	e := defaultEngine()

	for _, holding := range []uint64{2000, 2001, 5000, math.MaxUint64} {
		_, err := e.ValidatePurchase(domain.PurchaseIntent{RequestedAmount: 1, CurrentUserHolding: holding}, testSnapshot(), math.MaxUint64)
		rej, ok := AsRejection(err)
		require.True(t, ok, "holding %d", holding)
		assert.Equal(t, UserCapExceeded, rej.Kind)
		assert.Equal(t, uint64(0), rej.Remaining)
	}

	// Huge request must not wrap the sum.
	_, err := e.ValidatePurchase(domain.PurchaseIntent{RequestedAmount: math.MaxInt64, CurrentUserHolding: 10}, testSnapshot(), math.MaxUint64)
	rej, ok := AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, uint64(1990), rej.Remaining)
}

func TestValidatePurchase_InsufficientBalance(t *testing.T) {
	e := defaultEngine()
	intent := domain.PurchaseIntent{RequestedAmount: 50, CurrentUserHolding: 0}

	required := uint64(50*1_000_000 + 5000)

	_, err := e.ValidatePurchase(intent, testSnapshot(), required-1)
	rej, ok := AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, InsufficientBalance, rej.Kind)
	assert.Equal(t, uint64(1), rej.Shortfall)
	assert.Equal(t, required, rej.Required)

	validated, err := e.ValidatePurchase(intent, testSnapshot(), required)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), validated.Amount)
	assert.Equal(t, uint64(50_000_000), validated.Quote.Cost)
	assert.Equal(t, required, validated.Quote.Total)
}

func TestValidatePurchase_CapCheckedBeforeBalance(t *testing.T) {
	e := defaultEngine()

	_, err := e.ValidatePurchase(domain.PurchaseIntent{RequestedAmount: 500, CurrentUserHolding: 1900}, testSnapshot(), 0)
	assert.True(t, errors.Is(err, ErrUserCapExceeded))
	assert.False(t, errors.Is(err, ErrInsufficientBalance))
}

func TestQuote_FractionalPriceRoundsUp(t *testing.T) {
	e := NewEngine(Config{
		PricePerToken: decimal.RequireFromString("0.3"),
		MaxUserTotal:  2000,
		FeeReserve:    0,
	})

	// 0.3 * 10 = 3 exactly, no float drift.
	q, err := e.Quote(10)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), q.Cost)

	// 0.3 * 7 = 2.1 -> 3 lamports.
	q, err = e.Quote(7)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), q.Cost)
}

func TestQuote_Overflow(t *testing.T) {
	e := NewEngine(Config{PricePerToken: decimal.NewFromInt(1_000_000), MaxUserTotal: math.MaxUint64})

	_, err := e.Quote(math.MaxUint64)
	assert.Error(t, err)
}

func TestValidateAmount(t *testing.T) {
	e := defaultEngine()

	_, err := e.ValidateAmount(0)
	assert.True(t, errors.Is(err, ErrNonPositiveAmount))

	v, err := e.ValidateAmount(25)
	require.NoError(t, err)
	assert.Equal(t, uint64(25), v)
}

func TestRejection_Messages(t *testing.T) {
	rej := &Rejection{Kind: InsufficientBalance, Required: 50_005_000, Shortfall: 5000}
	assert.Equal(t, "insufficient balance: need 0.050005 SOL including fee, short by 0.000005 SOL", rej.Error())

	rej = &Rejection{Kind: UserCapExceeded, Remaining: 100}
	assert.Contains(t, rej.Error(), "100 tokens remaining")
}

func TestFormatSOL(t *testing.T) {
	assert.Equal(t, "1", FormatSOL(LamportsPerSOL))
	assert.Equal(t, "0.001", FormatSOL(1_000_000))
	assert.Equal(t, "0", FormatSOL(0))
}
