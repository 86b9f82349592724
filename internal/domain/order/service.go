package order

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/food-delivery/internal/domain/catalog"
	"github.com/xenking/food-delivery/internal/domain/coupon"
	"github.com/xenking/food-delivery/internal/domain/notify"
)

// Policy decides what happens when a single item cannot be priced.
type Policy string

const (
	// PolicyStrict aborts the whole checkout on the first pricing failure.
	PolicyStrict Policy = "strict"
	// PolicyLenient drops items that cannot be priced and reports them.
	PolicyLenient Policy = "lenient"
)

// ParsePolicy converts a configuration value into a Policy. An empty value
// selects PolicyStrict.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", PolicyStrict:
		return PolicyStrict, nil
	case PolicyLenient:
		return PolicyLenient, nil
	default:
		return "", errors.Errorf("unknown item policy %q", s)
	}
}

// CheckoutItem is one requested food and its quantity.
type CheckoutItem struct {
	FoodID   int64
	Quantity int
}

// CheckoutRequest holds the input for placing an order.
type CheckoutRequest struct {
	BranchID   int64
	Items      []CheckoutItem
	CouponCode string

	UserID          *int64
	CustomerName    string
	CustomerPhone   string
	DeliveryAddress string
	Note            string
}

// Validate checks the request shape without contacting any dependency.
func (r CheckoutRequest) Validate() error {
	if len(r.Items) == 0 {
		return ErrEmptyItems
	}
	for _, item := range r.Items {
		if item.FoodID <= 0 {
			return &InvalidFieldError{Field: "food_id", Reason: "must be positive"}
		}
		if item.Quantity <= 0 {
			return &InvalidQuantityError{FoodID: item.FoodID, Quantity: item.Quantity}
		}
	}
	if r.BranchID <= 0 {
		return &InvalidFieldError{Field: "branch_id", Reason: "must be positive"}
	}
	if r.UserID != nil && *r.UserID <= 0 {
		return &InvalidFieldError{Field: "user_id", Reason: "must be positive"}
	}
	for _, f := range []struct{ name, value string }{
		{"customer_name", r.CustomerName},
		{"customer_phone", r.CustomerPhone},
		{"delivery_address", r.DeliveryAddress},
	} {
		if strings.TrimSpace(f.value) == "" {
			return &InvalidFieldError{Field: f.name, Reason: "required"}
		}
	}
	return nil
}

// DroppedItem is a requested item left out of the order by PolicyLenient.
type DroppedItem struct {
	FoodID   int64
	Quantity int
	Reason   string
}

// CheckoutResult holds the committed order and any dropped items.
type CheckoutResult struct {
	Order   *Order
	Dropped []DroppedItem
}

// ServiceConfig holds non-dependency configuration for the Service.
type ServiceConfig struct {
	Policy Policy
	// PricingConcurrency bounds parallel catalog lookups per checkout.
	PricingConcurrency int
	// NotifyTimeout bounds each detached notification call.
	NotifyTimeout time.Duration
	MeterProvider metric.MeterProvider
}

// Service encapsulates checkout orchestration and order status management.
type Service struct {
	pricer   catalog.Pricer
	coupons  coupon.Verifier
	notifier notify.Notifier
	orders   Repository

	policy        Policy
	concurrency   int
	notifyTimeout time.Duration
	metrics       *metrics

	inflight sync.WaitGroup
}

// NewService creates an order Service with the required domain dependencies.
// notifier may be nil, in which case no notifications are sent.
func NewService(
	cfg ServiceConfig,
	pricer catalog.Pricer,
	coupons coupon.Verifier,
	notifier notify.Notifier,
	orders Repository,
) (*Service, error) {
	if cfg.Policy == "" {
		cfg.Policy = PolicyStrict
	}
	if cfg.PricingConcurrency <= 0 {
		cfg.PricingConcurrency = 8
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 5 * time.Second
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = noop.NewMeterProvider()
	}
	m, err := newMetrics(cfg.MeterProvider)
	if err != nil {
		return nil, errors.Wrap(err, "create metrics")
	}
	return &Service{
		pricer:        pricer,
		coupons:       coupons,
		notifier:      notifier,
		orders:        orders,
		policy:        cfg.Policy,
		concurrency:   cfg.PricingConcurrency,
		notifyTimeout: cfg.NotifyTimeout,
		metrics:       m,
	}, nil
}

// Policy returns the configured item failure policy.
func (s *Service) Policy() Policy { return s.policy }

// Checkout validates the request, prices every item, applies the coupon,
// commits the order with all of its lines in one write and schedules the
// branch notification.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (_ *CheckoutResult, rerr error) {
	start := time.Now()
	defer func() { s.metrics.observeCheckout(ctx, rerr, time.Since(start)) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	priced, err := s.priceItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "checkout aborted")
	}

	lg := zctx.From(ctx)
	lines := make([]Line, 0, len(req.Items))
	var (
		dropped  []DroppedItem
		firstErr error
	)
	for i, p := range priced {
		requested := req.Items[i]
		if p.err != nil {
			if firstErr == nil {
				firstErr = p.err
			}
			lg.Warn("Dropping unpriced item",
				zap.Int64("food_id", requested.FoodID),
				zap.Int("quantity", requested.Quantity),
				zap.Error(p.err),
			)
			dropped = append(dropped, DroppedItem{
				FoodID:   requested.FoodID,
				Quantity: requested.Quantity,
				Reason:   dropReason(p.err),
			})
			continue
		}
		lines = append(lines, Line{
			FoodID:    requested.FoodID,
			FoodName:  p.item.Name,
			UnitPrice: p.item.UnitPrice(),
			Quantity:  requested.Quantity,
			ImageURL:  p.item.ImageURL,
		})
	}
	if len(lines) == 0 {
		return nil, firstErr
	}

	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.LineTotal())
	}

	couponCode := strings.TrimSpace(req.CouponCode)
	discountAmount := decimal.Zero
	if couponCode != "" {
		var applied bool
		discountAmount, applied = s.couponDiscount(ctx, couponCode, req.BranchID, subtotal)
		if !applied {
			couponCode = ""
		}
	}

	// Total = subtotal - discount, floored at zero.
	total := subtotal.Sub(discountAmount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	// Commit is the only side effect; a cancelled request must not reach it.
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "checkout aborted")
	}

	o := &Order{
		UserID:          req.UserID,
		CustomerName:    strings.TrimSpace(req.CustomerName),
		CustomerPhone:   strings.TrimSpace(req.CustomerPhone),
		DeliveryAddress: strings.TrimSpace(req.DeliveryAddress),
		Note:            strings.TrimSpace(req.Note),
		BranchID:        req.BranchID,
		Subtotal:        subtotal,
		CouponCode:      couponCode,
		DiscountAmount:  discountAmount,
		Total:           total,
		Status:          StatusPendingPayment,
		Lines:           lines,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, &PersistenceError{Err: err}
	}

	lg.Info("Order placed",
		zap.Int64("order_id", o.ID),
		zap.Int64("branch_id", o.BranchID),
		zap.Int("lines", len(o.Lines)),
		zap.Int("dropped", len(dropped)),
		zap.Stringer("total", o.Total),
	)
	s.metrics.observeDropped(ctx, len(dropped))
	s.notifyAsync(ctx, o)

	return &CheckoutResult{Order: o, Dropped: dropped}, nil
}

// Wait blocks until every scheduled notification has finished.
func (s *Service) Wait() {
	s.inflight.Wait()
}

type pricedItem struct {
	item *catalog.Item
	err  error
}

// priceItems looks up all items concurrently. Results are indexed by input
// position so completion order never affects the order lines.
func (s *Service) priceItems(ctx context.Context, items []CheckoutItem) ([]pricedItem, error) {
	results := make([]pricedItem, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, it := range items {
		g.Go(func() error {
			item, err := s.pricer.PriceItem(gctx, it.FoodID)
			if err != nil {
				perr := &PricingError{FoodID: it.FoodID, Err: err}
				if s.policy == PolicyStrict {
					return perr
				}
				results[i].err = perr
				return nil
			}
			results[i].item = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// couponDiscount returns the coupon amount for subtotal. Verification
// failures never fail the checkout; they yield a zero discount.
func (s *Service) couponDiscount(ctx context.Context, code string, branchID int64, subtotal decimal.Decimal) (decimal.Decimal, bool) {
	d, err := s.coupons.VerifyCoupon(ctx, code, branchID)
	if err != nil {
		zctx.From(ctx).Info("Coupon not applied",
			zap.String("code", code),
			zap.Int64("branch_id", branchID),
			zap.Error(err),
		)
		return decimal.Zero, false
	}
	return d.AmountFor(subtotal), true
}

// notifyAsync tells the branch about the new order without blocking the
// caller. The notification outlives the request context.
func (s *Service) notifyAsync(ctx context.Context, o *Order) {
	if s.notifier == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	branchID, orderID := o.BranchID, o.ID

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		ctx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
		defer cancel()

		if err := s.notifier.Notify(ctx, branchID, notify.EventNewOrder); err != nil {
			zctx.From(ctx).Warn("Branch notification failed",
				zap.Int64("order_id", orderID),
				zap.Int64("branch_id", branchID),
				zap.Error(err),
			)
		}
	}()
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		return "not_found"
	case errors.Is(err, catalog.ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
