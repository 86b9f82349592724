package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Get returns a single order with its lines.
func (s *Service) Get(ctx context.Context, id int64) (*Order, error) {
	if id <= 0 {
		return nil, errors.Wrapf(ErrNotFound, "id %d", id)
	}
	return s.orders.GetByID(ctx, id)
}

// ListAll returns every order, newest first.
func (s *Service) ListAll(ctx context.Context) ([]Order, error) {
	return s.orders.List(ctx, ListFilter{})
}

// ListByBranch returns the orders placed with one branch, newest first.
func (s *Service) ListByBranch(ctx context.Context, branchID int64) ([]Order, error) {
	if branchID <= 0 {
		return nil, &InvalidFieldError{Field: "branch_id", Reason: "must be positive"}
	}
	return s.orders.List(ctx, ListFilter{BranchID: branchID})
}

// ListByUser returns the orders placed by one account, newest first.
func (s *Service) ListByUser(ctx context.Context, userID int64) ([]Order, error) {
	if userID <= 0 {
		return nil, &InvalidFieldError{Field: "user_id", Reason: "must be positive"}
	}
	return s.orders.List(ctx, ListFilter{UserID: userID})
}

// MarkPaid moves the order to PAID. Marking a paid order again succeeds
// without changes.
func (s *Service) MarkPaid(ctx context.Context, id int64) (*Order, error) {
	return s.transition(ctx, id, StatusPaid)
}

// SetStatus parses label and moves the order to that status if the state
// machine allows it.
func (s *Service) SetStatus(ctx context.Context, id int64, label string) (*Order, error) {
	next, err := ParseStatus(label)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, id, next)
}

func (s *Service) transition(ctx context.Context, id int64, next Status) (*Order, error) {
	if id <= 0 {
		return nil, errors.Wrapf(ErrNotFound, "id %d", id)
	}
	var prev Status
	o, err := s.orders.UpdateStatus(ctx, id, func(current Status) (Status, error) {
		prev = current
		return current.Transition(next)
	})
	if err != nil {
		return nil, err
	}
	if prev != next {
		zctx.From(ctx).Info("Order status changed",
			zap.Int64("order_id", id),
			zap.String("from", string(prev)),
			zap.String("to", string(next)),
		)
	}
	return o, nil
}
