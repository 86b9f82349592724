package order

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/food-delivery/internal/domain/catalog"
	"github.com/xenking/food-delivery/internal/domain/coupon"
	"github.com/xenking/food-delivery/internal/domain/notify"
)

// --- Mock implementations ---

type mockPricer struct {
	items map[int64]*catalog.Item
	errs  map[int64]error
	delay map[int64]time.Duration
	calls atomic.Int32
}

func (m *mockPricer) PriceItem(ctx context.Context, foodID int64) (*catalog.Item, error) {
	m.calls.Add(1)
	if d, ok := m.delay[foodID]; ok {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, errors.Wrap(catalog.ErrUnavailable, ctx.Err().Error())
		}
	}
	if err, ok := m.errs[foodID]; ok {
		return nil, err
	}
	item, ok := m.items[foodID]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return item, nil
}

type mockVerifier struct {
	discount *coupon.Discount
	err      error
	calls    int
}

func (m *mockVerifier) VerifyCoupon(_ context.Context, _ string, _ int64) (*coupon.Discount, error) {
	m.calls++
	return m.discount, m.err
}

type mockNotifier struct {
	mu     sync.Mutex
	events []int64
	err    error
}

func (m *mockNotifier) Notify(_ context.Context, branchID int64, _ notify.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, branchID)
	return m.err
}

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

type mockOrderRepo struct {
	mu      sync.Mutex
	orders  map[int64]*Order
	nextID  int64
	created int
	err     error
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: make(map[int64]*Order)}
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.nextID++
	o.ID = m.nextID
	o.CreatedAt = time.Now()
	cp := *o
	m.orders[o.ID] = &cp
	m.created++
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id int64) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) List(_ context.Context, f ListFilter) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for id := m.nextID; id > 0; id-- {
		o, ok := m.orders[id]
		if !ok {
			continue
		}
		if f.BranchID != 0 && o.BranchID != f.BranchID {
			continue
		}
		if f.UserID != 0 && (o.UserID == nil || *o.UserID != f.UserID) {
			continue
		}
		out = append(out, *o)
	}
	return out, nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, id int64, fn func(Status) (Status, error)) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	next, err := fn(o.Status)
	if err != nil {
		return nil, err
	}
	o.Status = next
	cp := *o
	return &cp, nil
}

// --- Helpers ---

func examplePricer() *mockPricer {
	return &mockPricer{items: map[int64]*catalog.Item{
		1: {FoodID: 1, Name: "Burger", Price: decimal.RequireFromString("10.00"), ImageURL: "burger.jpg"},
		2: {FoodID: 2, Name: "Fries", Price: decimal.RequireFromString("5.00"), DiscountPercent: decimal.NewFromInt(10)},
		3: {FoodID: 3, Name: "Soda", Price: decimal.RequireFromString("2.50")},
	}}
}

func newRequest(items ...CheckoutItem) CheckoutRequest {
	return CheckoutRequest{
		BranchID:        7,
		Items:           items,
		CustomerName:    "Alice",
		CustomerPhone:   "+15550100",
		DeliveryAddress: "1 Main St",
	}
}

func newTestService(t *testing.T, policy Policy, pricer catalog.Pricer, verifier coupon.Verifier, notifier notify.Notifier, repo Repository) *Service {
	t.Helper()
	svc, err := NewService(ServiceConfig{Policy: policy, PricingConcurrency: 4}, pricer, verifier, notifier, repo)
	require.NoError(t, err)
	return svc
}

func mustDiscount(t *testing.T, percent int64) *coupon.Discount {
	t.Helper()
	d, err := coupon.NewDiscount("SAVE", decimal.NewFromInt(percent))
	require.NoError(t, err)
	return d
}

// --- Tests ---

func TestCheckout_Totals(t *testing.T) {
	tests := []struct {
		name         string
		coupon       string
		verifier     *mockVerifier
		wantSubtotal string
		wantDiscount string
		wantTotal    string
	}{
		{
			name:         "NoCoupon",
			verifier:     &mockVerifier{},
			wantSubtotal: "24.5",
			wantDiscount: "0",
			wantTotal:    "24.5",
		},
		{
			name:         "TenPercentCoupon",
			coupon:       "SAVE",
			verifier:     &mockVerifier{discount: mustDiscount(t, 10)},
			wantSubtotal: "24.5",
			wantDiscount: "2.45",
			wantTotal:    "22.05",
		},
		{
			name:         "CouponRejected",
			coupon:       "BOGUS",
			verifier:     &mockVerifier{err: coupon.ErrNotApplicable},
			wantSubtotal: "24.5",
			wantDiscount: "0",
			wantTotal:    "24.5",
		},
		{
			name:         "FullDiscount",
			coupon:       "FREE",
			verifier:     &mockVerifier{discount: mustDiscount(t, 100)},
			wantSubtotal: "24.5",
			wantDiscount: "24.5",
			wantTotal:    "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockOrderRepo()
			svc := newTestService(t, PolicyStrict, examplePricer(), tt.verifier, nil, repo)

			req := newRequest(CheckoutItem{FoodID: 1, Quantity: 2}, CheckoutItem{FoodID: 2, Quantity: 1})
			req.CouponCode = tt.coupon

			res, err := svc.Checkout(context.Background(), req)
			require.NoError(t, err)

			o := res.Order
			assert.True(t, decimal.RequireFromString(tt.wantSubtotal).Equal(o.Subtotal), "subtotal: got %s", o.Subtotal)
			assert.True(t, decimal.RequireFromString(tt.wantDiscount).Equal(o.DiscountAmount), "discount: got %s", o.DiscountAmount)
			assert.True(t, decimal.RequireFromString(tt.wantTotal).Equal(o.Total), "total: got %s", o.Total)
			assert.Equal(t, StatusPendingPayment, o.Status)
			assert.Equal(t, 1, repo.created)
			assert.Empty(t, res.Dropped)
		})
	}
}

func TestCheckout_LineSnapshots(t *testing.T) {
	repo := newMockOrderRepo()
	svc := newTestService(t, PolicyStrict, examplePricer(), &mockVerifier{}, nil, repo)

	res, err := svc.Checkout(context.Background(), newRequest(
		CheckoutItem{FoodID: 1, Quantity: 2},
		CheckoutItem{FoodID: 2, Quantity: 1},
	))
	require.NoError(t, err)

	require.Len(t, res.Order.Lines, 2)
	burger, fries := res.Order.Lines[0], res.Order.Lines[1]
	assert.Equal(t, "Burger", burger.FoodName)
	assert.Equal(t, "burger.jpg", burger.ImageURL)
	assert.True(t, decimal.RequireFromString("10").Equal(burger.UnitPrice))
	assert.Equal(t, "Fries", fries.FoodName)
	assert.True(t, decimal.RequireFromString("4.5").Equal(fries.UnitPrice))
}

func TestCheckout_PreservesInputOrder(t *testing.T) {
	pricer := examplePricer()
	// The first item resolves last.
	pricer.delay = map[int64]time.Duration{3: 30 * time.Millisecond}
	svc := newTestService(t, PolicyStrict, pricer, &mockVerifier{}, nil, newMockOrderRepo())

	res, err := svc.Checkout(context.Background(), newRequest(
		CheckoutItem{FoodID: 3, Quantity: 1},
		CheckoutItem{FoodID: 1, Quantity: 1},
		CheckoutItem{FoodID: 2, Quantity: 4},
	))
	require.NoError(t, err)

	var ids []int64
	for _, l := range res.Order.Lines {
		ids = append(ids, l.FoodID)
	}
	assert.Equal(t, []int64{3, 1, 2}, ids)
	assert.True(t, decimal.RequireFromString("30.5").Equal(res.Order.Subtotal))
}

func TestCheckout_InvalidRequest(t *testing.T) {
	uid := int64(-1)
	tests := []struct {
		name   string
		mutate func(*CheckoutRequest)
		check  func(t *testing.T, err error)
	}{
		{
			name:   "EmptyItems",
			mutate: func(r *CheckoutRequest) { r.Items = nil },
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrEmptyItems)
			},
		},
		{
			name:   "ZeroQuantity",
			mutate: func(r *CheckoutRequest) { r.Items[0].Quantity = 0 },
			check: func(t *testing.T, err error) {
				var qErr *InvalidQuantityError
				require.ErrorAs(t, err, &qErr)
				assert.Equal(t, int64(1), qErr.FoodID)
			},
		},
		{
			name:   "NegativeQuantity",
			mutate: func(r *CheckoutRequest) { r.Items[0].Quantity = -3 },
		},
		{
			name:   "MissingBranch",
			mutate: func(r *CheckoutRequest) { r.BranchID = 0 },
		},
		{
			name:   "BlankAddress",
			mutate: func(r *CheckoutRequest) { r.DeliveryAddress = "   " },
			check: func(t *testing.T, err error) {
				var fErr *InvalidFieldError
				require.ErrorAs(t, err, &fErr)
				assert.Equal(t, "delivery_address", fErr.Field)
			},
		},
		{
			name:   "NegativeUser",
			mutate: func(r *CheckoutRequest) { r.UserID = &uid },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pricer := examplePricer()
			repo := newMockOrderRepo()
			svc := newTestService(t, PolicyStrict, pricer, &mockVerifier{}, nil, repo)

			req := newRequest(CheckoutItem{FoodID: 1, Quantity: 1})
			tt.mutate(&req)

			_, err := svc.Checkout(context.Background(), req)
			require.ErrorIs(t, err, ErrInvalidRequest)
			if tt.check != nil {
				tt.check(t, err)
			}
			assert.Zero(t, pricer.calls.Load(), "no upstream call expected")
			assert.Zero(t, repo.created)
		})
	}
}

func TestCheckout_StrictMissingItem(t *testing.T) {
	repo := newMockOrderRepo()
	notifier := &mockNotifier{}
	svc := newTestService(t, PolicyStrict, examplePricer(), &mockVerifier{}, notifier, repo)

	_, err := svc.Checkout(context.Background(), newRequest(
		CheckoutItem{FoodID: 1, Quantity: 1},
		CheckoutItem{FoodID: 99, Quantity: 1},
	))
	svc.Wait()

	var pErr *PricingError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, int64(99), pErr.FoodID)
	require.ErrorIs(t, err, catalog.ErrNotFound)
	assert.Zero(t, repo.created)
	assert.Zero(t, notifier.count())
}

func TestCheckout_StrictUnavailable(t *testing.T) {
	pricer := examplePricer()
	pricer.errs = map[int64]error{2: errors.Wrap(catalog.ErrUnavailable, "status 502")}
	repo := newMockOrderRepo()
	svc := newTestService(t, PolicyStrict, pricer, &mockVerifier{}, nil, repo)

	_, err := svc.Checkout(context.Background(), newRequest(
		CheckoutItem{FoodID: 1, Quantity: 1},
		CheckoutItem{FoodID: 2, Quantity: 1},
	))
	require.ErrorIs(t, err, catalog.ErrUnavailable)
	assert.Zero(t, repo.created)
}

func TestCheckout_LenientDropsMissing(t *testing.T) {
	repo := newMockOrderRepo()
	svc := newTestService(t, PolicyLenient, examplePricer(), &mockVerifier{}, nil, repo)

	res, err := svc.Checkout(context.Background(), newRequest(
		CheckoutItem{FoodID: 1, Quantity: 1},
		CheckoutItem{FoodID: 99, Quantity: 2},
		CheckoutItem{FoodID: 3, Quantity: 2},
	))
	require.NoError(t, err)

	require.Len(t, res.Order.Lines, 2)
	assert.Equal(t, int64(1), res.Order.Lines[0].FoodID)
	assert.Equal(t, int64(3), res.Order.Lines[1].FoodID)
	assert.Equal(t, []DroppedItem{{FoodID: 99, Quantity: 2, Reason: "not_found"}}, res.Dropped)
	assert.True(t, decimal.RequireFromString("15").Equal(res.Order.Total))
	assert.Equal(t, 1, repo.created)
}

func TestCheckout_LenientAllDropped(t *testing.T) {
	repo := newMockOrderRepo()
	svc := newTestService(t, PolicyLenient, examplePricer(), &mockVerifier{}, nil, repo)

	_, err := svc.Checkout(context.Background(), newRequest(
		CheckoutItem{FoodID: 98, Quantity: 1},
		CheckoutItem{FoodID: 99, Quantity: 1},
	))
	require.ErrorIs(t, err, catalog.ErrNotFound)
	assert.Zero(t, repo.created)
}

func TestCheckout_PersistenceFailure(t *testing.T) {
	repo := newMockOrderRepo()
	repo.err = errors.New("connection reset")
	notifier := &mockNotifier{}
	svc := newTestService(t, PolicyStrict, examplePricer(), &mockVerifier{}, notifier, repo)

	_, err := svc.Checkout(context.Background(), newRequest(CheckoutItem{FoodID: 1, Quantity: 1}))
	svc.Wait()

	var pErr *PersistenceError
	require.ErrorAs(t, err, &pErr)
	assert.Zero(t, notifier.count())
}

func TestCheckout_CancelledBeforeCommit(t *testing.T) {
	pricer := examplePricer()
	pricer.delay = map[int64]time.Duration{1: time.Second}
	repo := newMockOrderRepo()
	svc := newTestService(t, PolicyLenient, pricer, &mockVerifier{}, nil, repo)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := svc.Checkout(ctx, newRequest(
		CheckoutItem{FoodID: 1, Quantity: 1},
		CheckoutItem{FoodID: 3, Quantity: 1},
	))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, repo.created)
}

func TestCheckout_CouponCalledOnce(t *testing.T) {
	verifier := &mockVerifier{discount: mustDiscount(t, 5)}
	svc := newTestService(t, PolicyStrict, examplePricer(), verifier, nil, newMockOrderRepo())

	req := newRequest(CheckoutItem{FoodID: 1, Quantity: 1}, CheckoutItem{FoodID: 3, Quantity: 1})
	req.CouponCode = "  SAVE  "
	res, err := svc.Checkout(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, verifier.calls)
	assert.Equal(t, "SAVE", res.Order.CouponCode)
}

func TestCheckout_NoCouponNoVerify(t *testing.T) {
	verifier := &mockVerifier{discount: mustDiscount(t, 5)}
	svc := newTestService(t, PolicyStrict, examplePricer(), verifier, nil, newMockOrderRepo())

	res, err := svc.Checkout(context.Background(), newRequest(CheckoutItem{FoodID: 1, Quantity: 1}))
	require.NoError(t, err)

	assert.Zero(t, verifier.calls)
	assert.Empty(t, res.Order.CouponCode)
}

func TestCheckout_NotifiesBranch(t *testing.T) {
	notifier := &mockNotifier{err: errors.New("notifier down")}
	svc := newTestService(t, PolicyStrict, examplePricer(), &mockVerifier{}, notifier, newMockOrderRepo())

	ctx, cancel := context.WithCancel(context.Background())
	res, err := svc.Checkout(ctx, newRequest(CheckoutItem{FoodID: 1, Quantity: 1}))
	// The notification must survive the request context.
	cancel()
	require.NoError(t, err)
	require.NotNil(t, res.Order)

	svc.Wait()
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Equal(t, []int64{7}, notifier.events)
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{in: "", want: PolicyStrict},
		{in: "strict", want: PolicyStrict},
		{in: "LENIENT", want: PolicyLenient},
		{in: "sometimes", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePolicy(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestService_MarkPaid(t *testing.T) {
	repo := newMockOrderRepo()
	svc := newTestService(t, PolicyStrict, examplePricer(), &mockVerifier{}, nil, repo)

	res, err := svc.Checkout(context.Background(), newRequest(CheckoutItem{FoodID: 1, Quantity: 1}))
	require.NoError(t, err)
	id := res.Order.ID

	for range 2 {
		o, err := svc.MarkPaid(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, StatusPaid, o.Status)
	}

	_, err = svc.MarkPaid(context.Background(), id+100)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestService_SetStatus(t *testing.T) {
	repo := newMockOrderRepo()
	svc := newTestService(t, PolicyStrict, examplePricer(), &mockVerifier{}, nil, repo)

	res, err := svc.Checkout(context.Background(), newRequest(CheckoutItem{FoodID: 1, Quantity: 1}))
	require.NoError(t, err)
	id := res.Order.ID

	_, err = svc.SetStatus(context.Background(), id, "delivered")
	require.ErrorIs(t, err, ErrUnknownStatus)

	_, err = svc.SetStatus(context.Background(), id, "SHIPPING")
	var tErr *TransitionError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, StatusPendingPayment, tErr.From)
	assert.Equal(t, StatusShipping, tErr.To)

	for _, label := range []string{"paid", "shipping", "completed"} {
		_, err = svc.SetStatus(context.Background(), id, label)
		require.NoError(t, err, label)
	}

	o, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, o.Status)

	_, err = svc.SetStatus(context.Background(), id, "CANCELLED")
	require.ErrorIs(t, err, ErrIllegalTransition)
}

func TestService_Lists(t *testing.T) {
	repo := newMockOrderRepo()
	svc := newTestService(t, PolicyStrict, examplePricer(), &mockVerifier{}, nil, repo)

	uid := int64(42)
	for _, branch := range []int64{1, 2, 1} {
		req := newRequest(CheckoutItem{FoodID: 1, Quantity: 1})
		req.BranchID = branch
		if branch == 2 {
			req.UserID = &uid
		}
		_, err := svc.Checkout(context.Background(), req)
		require.NoError(t, err)
	}

	all, err := svc.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, int64(3), all[0].ID)

	byBranch, err := svc.ListByBranch(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, byBranch, 2)

	byUser, err := svc.ListByUser(context.Background(), uid)
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	assert.Equal(t, int64(2), byUser[0].BranchID)

	_, err = svc.ListByBranch(context.Background(), 0)
	require.ErrorIs(t, err, ErrInvalidRequest)
}
