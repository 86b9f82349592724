package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Order is a placed customer order together with its priced lines.
type Order struct {
	ID     int64
	UserID *int64

	CustomerName    string
	CustomerPhone   string
	DeliveryAddress string
	Note            string

	BranchID int64

	Subtotal       decimal.Decimal
	CouponCode     string
	DiscountAmount decimal.Decimal
	Total          decimal.Decimal

	Status    Status
	CreatedAt time.Time

	Lines []Line
}

// Line is a single priced food in an order. Name, price and image are
// snapshots taken at checkout time.
type Line struct {
	FoodID    int64
	FoodName  string
	UnitPrice decimal.Decimal
	Quantity  int
	ImageURL  string
}

// LineTotal returns UnitPrice * Quantity.
func (l Line) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// ListFilter narrows List results. Zero values mean "any".
type ListFilter struct {
	BranchID int64
	UserID   int64
}

// Repository defines persistence operations for the order aggregate.
type Repository interface {
	// Create stores the order and all of its lines in one transaction and
	// fills in ID and CreatedAt.
	Create(ctx context.Context, o *Order) error
	// GetByID returns ErrNotFound when the order does not exist.
	GetByID(ctx context.Context, id int64) (*Order, error)
	// List returns orders newest first.
	List(ctx context.Context, filter ListFilter) ([]Order, error)
	// UpdateStatus locks the order, passes its current status to fn and
	// stores the returned status. Errors from fn abort the update.
	UpdateStatus(ctx context.Context, id int64, fn func(current Status) (Status, error)) (*Order, error)
}
