// Package orderjson encodes orders in their public JSON form.
package orderjson

import (
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/food-delivery/internal/domain/order"
)

// Money writes a decimal as a JSON number without going through float64.
func Money(e *jx.Encoder, v decimal.Decimal) {
	e.Raw([]byte(v.String()))
}

// Encode writes o as a JSON object.
func Encode(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(o.ID)
	e.FieldStart("user_id")
	if o.UserID != nil {
		e.Int64(*o.UserID)
	} else {
		e.Null()
	}
	e.FieldStart("user_name")
	e.Str(o.CustomerName)
	e.FieldStart("branch_id")
	e.Int64(o.BranchID)
	e.FieldStart("customer_phone")
	e.Str(o.CustomerPhone)
	e.FieldStart("delivery_address")
	e.Str(o.DeliveryAddress)
	e.FieldStart("note")
	e.Str(o.Note)
	e.FieldStart("subtotal")
	Money(e, o.Subtotal)
	e.FieldStart("coupon_code")
	if o.CouponCode != "" {
		e.Str(o.CouponCode)
	} else {
		e.Null()
	}
	e.FieldStart("discount_amount")
	Money(e, o.DiscountAmount)
	e.FieldStart("total_price")
	Money(e, o.Total)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("created_at")
	e.Str(o.CreatedAt.UTC().Format(time.RFC3339Nano))

	e.FieldStart("items")
	e.ArrStart()
	for _, l := range o.Lines {
		e.ObjStart()
		e.FieldStart("food_id")
		e.Int64(l.FoodID)
		e.FieldStart("food_name")
		e.Str(l.FoodName)
		e.FieldStart("price")
		Money(e, l.UnitPrice)
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		e.FieldStart("image_url")
		e.Str(l.ImageURL)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}

// EncodeList writes orders as a JSON array.
func EncodeList(orders []order.Order) []byte {
	var e jx.Encoder
	e.ArrStart()
	for i := range orders {
		Encode(&e, &orders[i])
	}
	e.ArrEnd()
	return e.Bytes()
}
