// Package eligibility pre-validates sale requests against the caps the sale
// program enforces. The program stays authoritative: a request that passes here
// may still be rejected on chain.
package eligibility

import (
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"solana-token-sale/internal/domain"
)

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// Config holds the limits the engine validates against.
type Config struct {
	// PricePerToken is lamports per whole token. Fractional prices are allowed;
	// costs are rounded up to the next lamport.
	PricePerToken decimal.Decimal
	// MaxUserTotal is the per-identity lifetime cap in whole tokens.
	MaxUserTotal uint64
	// FeeReserve is kept back for the network fee, in lamports.
	FeeReserve uint64
}

// ValidatedPurchase is a request that passed every check.
type ValidatedPurchase struct {
	Signer solana.PublicKey
	Amount uint64 // whole tokens
	Quote  Quote
}

// Quote is the cost breakdown of buying some amount.
type Quote struct {
	Amount     uint64 // whole tokens
	Cost       uint64 // lamports
	FeeReserve uint64 // lamports
	Total      uint64 // Cost + FeeReserve, lamports
}

// Engine validates purchases and action amounts.
type Engine struct {
	cfg Config
}

// NewEngine creates a validation engine.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// ValidatePurchase checks, in order: positive amount, sale initialized, per-user
// cap, and balance covering cost plus fee reserve. It stops at the first failure.
func (e *Engine) ValidatePurchase(intent domain.PurchaseIntent, snapshot *domain.SaleSnapshot, availableBalance uint64) (*ValidatedPurchase, error) {
	if intent.RequestedAmount <= 0 {
		return nil, &Rejection{Kind: NonPositiveAmount}
	}
	if snapshot == nil {
		return nil, &Rejection{Kind: SaleUninitialized}
	}

	requested := uint64(intent.RequestedAmount)
	if !e.withinCap(intent.CurrentUserHolding, requested) {
		return nil, &Rejection{
			Kind:      UserCapExceeded,
			Remaining: e.RemainingAllowance(intent.CurrentUserHolding),
		}
	}

	quote, err := e.Quote(requested)
	if err != nil {
		return nil, err
	}
	if availableBalance < quote.Total {
		return nil, &Rejection{
			Kind:      InsufficientBalance,
			Shortfall: quote.Total - availableBalance,
			Required:  quote.Total,
		}
	}

	return &ValidatedPurchase{
		Signer: intent.Signer,
		Amount: requested,
		Quote:  quote,
	}, nil
}

// ValidateAmount rejects non-positive amounts for sale initialization and deposits.
func (e *Engine) ValidateAmount(amount int64) (uint64, error) {
	if amount <= 0 {
		return 0, &Rejection{Kind: NonPositiveAmount}
	}
	return uint64(amount), nil
}

// RemainingAllowance returns how many more tokens a holder may buy, never negative.
func (e *Engine) RemainingAllowance(holding uint64) uint64 {
	if holding >= e.cfg.MaxUserTotal {
		return 0
	}
	return e.cfg.MaxUserTotal - holding
}

// Quote prices amount whole tokens. The multiply is exact; only the final
// lamport value is rounded, upwards.
func (e *Engine) Quote(amount uint64) (Quote, error) {
	cost := fromUint64(amount).Mul(e.cfg.PricePerToken).Ceil()
	if cost.IsNegative() {
		return Quote{}, fmt.Errorf("negative price per token %s", e.cfg.PricePerToken)
	}
	if !cost.BigInt().IsUint64() {
		return Quote{}, fmt.Errorf("cost of %d tokens overflows lamports", amount)
	}
	lamports := cost.BigInt().Uint64()

	total := lamports + e.cfg.FeeReserve
	if total < lamports {
		return Quote{}, fmt.Errorf("cost of %d tokens plus fee overflows lamports", amount)
	}

	return Quote{
		Amount:     amount,
		Cost:       lamports,
		FeeReserve: e.cfg.FeeReserve,
		Total:      total,
	}, nil
}

// withinCap compares without computing holding+requested, which could wrap.
func (e *Engine) withinCap(holding, requested uint64) bool {
	if holding > e.cfg.MaxUserTotal {
		return false
	}
	return requested <= e.cfg.MaxUserTotal-holding
}

// FormatSOL renders lamports as a SOL amount without floating point.
func FormatSOL(lamports uint64) string {
	return fromUint64(lamports).Shift(-9).String()
}

func fromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}
