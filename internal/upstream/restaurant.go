package upstream

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/food-delivery/internal/domain/catalog"
	"github.com/xenking/food-delivery/internal/domain/coupon"
)

var (
	_ catalog.Pricer  = (*RestaurantClient)(nil)
	_ coupon.Verifier = (*RestaurantClient)(nil)
)

// RestaurantClient talks to the restaurant service for food prices and
// coupon verification.
type RestaurantClient struct {
	baseClient
}

// NewRestaurantClient creates a client for the restaurant service at baseURL.
func NewRestaurantClient(baseURL string, opts ...Option) (*RestaurantClient, error) {
	c, err := newBaseClient(baseURL, opts)
	if err != nil {
		return nil, errors.Wrap(err, "restaurant client")
	}
	return &RestaurantClient{baseClient: c}, nil
}

// PriceItem fetches GET /foods/{id}. A 4xx answer maps to catalog.ErrNotFound;
// server errors, transport failures and malformed bodies map to
// catalog.ErrUnavailable.
func (c *RestaurantClient) PriceItem(ctx context.Context, foodID int64) (*catalog.Item, error) {
	status, body, err := c.do(ctx, http.MethodGet, c.endpoint(nil, "foods", strconv.FormatInt(foodID, 10)), nil)
	if err != nil {
		return nil, errors.Wrapf(catalog.ErrUnavailable, "food %d: %v", foodID, err)
	}
	switch {
	case status >= 500:
		return nil, errors.Wrapf(catalog.ErrUnavailable, "food %d: status %d", foodID, status)
	case status < 200 || status > 299:
		return nil, errors.Wrapf(catalog.ErrNotFound, "food %d: status %d", foodID, status)
	}

	item, err := decodeFood(body)
	if err != nil {
		return nil, errors.Wrapf(catalog.ErrUnavailable, "food %d: decode: %v", foodID, err)
	}
	item.FoodID = foodID
	return item, nil
}

// VerifyCoupon fetches GET /coupons/verify. Every failure maps to
// coupon.ErrNotApplicable.
func (c *RestaurantClient) VerifyCoupon(ctx context.Context, code string, branchID int64) (*coupon.Discount, error) {
	q := url.Values{
		"code":      {code},
		"branch_id": {strconv.FormatInt(branchID, 10)},
	}
	status, body, err := c.do(ctx, http.MethodGet, c.endpoint(q, "coupons", "verify"), nil)
	if err != nil {
		return nil, errors.Wrapf(coupon.ErrNotApplicable, "verify %q: %v", code, err)
	}
	if status < 200 || status > 299 {
		return nil, errors.Wrapf(coupon.ErrNotApplicable, "verify %q: status %d", code, status)
	}

	percent, err := decodeCouponPercent(body)
	if err != nil {
		return nil, errors.Wrapf(coupon.ErrNotApplicable, "verify %q: decode: %v", code, err)
	}
	return coupon.NewDiscount(code, percent)
}

func decodeFood(data []byte) (*catalog.Item, error) {
	var (
		item     catalog.Item
		hasName  bool
		hasPrice bool
	)
	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "name":
			s, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "name")
			}
			item.Name, hasName = s, true
		case "price":
			v, err := decodeDecimal(d)
			if err != nil {
				return errors.Wrap(err, "price")
			}
			item.Price, hasPrice = v, true
		case "discount":
			if d.Next() == jx.Null {
				return d.Null()
			}
			v, err := decodeDecimal(d)
			if err != nil {
				return errors.Wrap(err, "discount")
			}
			item.DiscountPercent = v
		case "image_url":
			if d.Next() == jx.Null {
				return d.Null()
			}
			s, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "image_url")
			}
			item.ImageURL = s
		default:
			return d.Skip()
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if !hasName || !hasPrice {
		return nil, errors.New("name and price are required")
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}
	return &item, nil
}

func decodeCouponPercent(data []byte) (decimal.Decimal, error) {
	var (
		percent decimal.Decimal
		found   bool
	)
	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "discount_percent" {
			return d.Skip()
		}
		v, err := decodeDecimal(d)
		if err != nil {
			return errors.Wrap(err, "discount_percent")
		}
		percent, found = v, true
		return nil
	}); err != nil {
		return decimal.Zero, err
	}
	if !found {
		return decimal.Zero, errors.New("discount_percent is required")
	}
	return percent, nil
}

// decodeDecimal reads a JSON number, or a string holding one, without going
// through float64.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch tt := d.Next(); tt {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(string(n))
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	default:
		return decimal.Zero, errors.Errorf("unexpected %s", tt)
	}
}
