package coupon

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotApplicable is returned when a coupon code cannot be used for the
// order: unknown code, wrong branch, expired, or the verification call failed.
var ErrNotApplicable = errors.New("coupon not applicable")

var hundred = decimal.NewFromInt(100)

// Discount is an order-level percentage discount granted by a coupon.
type Discount struct {
	Code    string
	Percent decimal.Decimal
}

// NewDiscount validates that percent lies in [0, 100].
func NewDiscount(code string, percent decimal.Decimal) (*Discount, error) {
	if percent.IsNegative() || percent.GreaterThan(hundred) {
		return nil, errors.Wrapf(ErrNotApplicable, "discount percent %s out of range", percent)
	}
	return &Discount{Code: code, Percent: percent}, nil
}

// AmountFor returns the discount amount for subtotal, rounded to cents.
func (d Discount) AmountFor(subtotal decimal.Decimal) decimal.Decimal {
	amount := subtotal.Mul(d.Percent).Div(hundred).Round(2)
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount
}

// Verifier checks a coupon code against a branch.
type Verifier interface {
	VerifyCoupon(ctx context.Context, code string, branchID int64) (*Discount, error)
}
