package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when the catalog reports that a food does not exist
	// or cannot be sold.
	ErrNotFound = errors.New("food not found")
	// ErrUnavailable is returned when the catalog could not be reached or
	// answered with a server error.
	ErrUnavailable = errors.New("catalog unavailable")
)

var hundred = decimal.NewFromInt(100)

// Item is the catalog view of a single food at lookup time.
type Item struct {
	FoodID          int64
	Name            string
	Price           decimal.Decimal
	DiscountPercent decimal.Decimal
	ImageURL        string
}

// Validate rejects a negative price and a discount outside [0, 100].
func (i Item) Validate() error {
	if i.Price.IsNegative() {
		return errors.Errorf("negative price %s", i.Price)
	}
	if i.DiscountPercent.IsNegative() || i.DiscountPercent.GreaterThan(hundred) {
		return errors.Errorf("discount %s out of range", i.DiscountPercent)
	}
	return nil
}

// UnitPrice returns the price after the per-item discount, rounded to cents.
func (i Item) UnitPrice() decimal.Decimal {
	if i.DiscountPercent.IsZero() {
		return i.Price.Round(2)
	}
	factor := hundred.Sub(i.DiscountPercent).Div(hundred)
	return i.Price.Mul(factor).Round(2)
}

// Pricer looks up the current price of a food.
type Pricer interface {
	PriceItem(ctx context.Context, foodID int64) (*Item, error)
}
