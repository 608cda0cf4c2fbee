package eligibility

import (
	"errors"
	"fmt"
)

// RejectionKind classifies why a request failed pre-validation.
type RejectionKind string

const (
	NonPositiveAmount   RejectionKind = "NON_POSITIVE_AMOUNT"
	SaleUninitialized   RejectionKind = "SALE_UNINITIALIZED"
	UserCapExceeded     RejectionKind = "USER_CAP_EXCEEDED"
	InsufficientBalance RejectionKind = "INSUFFICIENT_BALANCE"
)

// Rejection is returned by validation. It is always surfaced before anything is submitted.
type Rejection struct {
	Kind RejectionKind

	// Remaining is the cap headroom in whole tokens (UserCapExceeded).
	Remaining uint64
	// Shortfall is the missing amount in lamports (InsufficientBalance).
	Shortfall uint64
	// Required is cost plus fee reserve in lamports (InsufficientBalance).
	Required uint64
}

func (r *Rejection) Error() string {
	switch r.Kind {
	case NonPositiveAmount:
		return "amount must be greater than zero"
	case SaleUninitialized:
		return "sale has not been initialized"
	case UserCapExceeded:
		return fmt.Sprintf("purchase exceeds per-user limit: %d tokens remaining", r.Remaining)
	case InsufficientBalance:
		return fmt.Sprintf("insufficient balance: need %s SOL including fee, short by %s SOL",
			FormatSOL(r.Required), FormatSOL(r.Shortfall))
	default:
		return string(r.Kind)
	}
}

// Is matches another *Rejection by kind, so errors.Is(err, &Rejection{Kind: UserCapExceeded}) works.
func (r *Rejection) Is(target error) bool {
	var other *Rejection
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == r.Kind
}

// ErrUserCapExceeded and friends are match targets for errors.Is.
var (
	ErrNonPositiveAmount   = &Rejection{Kind: NonPositiveAmount}
	ErrSaleUninitialized   = &Rejection{Kind: SaleUninitialized}
	ErrUserCapExceeded     = &Rejection{Kind: UserCapExceeded}
	ErrInsufficientBalance = &Rejection{Kind: InsufficientBalance}
)

// AsRejection extracts a *Rejection from err.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
