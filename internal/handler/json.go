package handler

import (
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/food-delivery/internal/domain/order"
	"github.com/xenking/food-delivery/internal/orderjson"
)

func decodeCheckoutRequest(data []byte) (order.CheckoutRequest, error) {
	var req order.CheckoutRequest
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "branch_id":
			v, err := d.Int64()
			if err != nil {
				return errors.Wrap(err, "branch_id")
			}
			req.BranchID = v
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				item, err := decodeCheckoutItem(d)
				if err != nil {
					return errors.Wrapf(err, "items[%d]", len(req.Items))
				}
				req.Items = append(req.Items, item)
				return nil
			})
		case "coupon_code":
			v, err := optString(d)
			if err != nil {
				return errors.Wrap(err, "coupon_code")
			}
			req.CouponCode = v
		case "user_id":
			if d.Next() == jx.Null {
				return d.Null()
			}
			v, err := d.Int64()
			if err != nil {
				return errors.Wrap(err, "user_id")
			}
			req.UserID = &v
		case "customer_name":
			return strField(d, key, &req.CustomerName)
		case "customer_phone":
			return strField(d, key, &req.CustomerPhone)
		case "delivery_address":
			return strField(d, key, &req.DeliveryAddress)
		case "note":
			v, err := optString(d)
			if err != nil {
				return errors.Wrap(err, "note")
			}
			req.Note = v
		default:
			return d.Skip()
		}
		return nil
	})
	return req, err
}

func decodeCheckoutItem(d *jx.Decoder) (order.CheckoutItem, error) {
	var item order.CheckoutItem
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "food_id":
			v, err := d.Int64()
			if err != nil {
				return errors.Wrap(err, "food_id")
			}
			item.FoodID = v
		case "quantity":
			v, err := d.Int()
			if err != nil {
				return errors.Wrap(err, "quantity")
			}
			item.Quantity = v
		default:
			return d.Skip()
		}
		return nil
	})
	return item, err
}

func strField(d *jx.Decoder, name string, dst *string) error {
	v, err := d.Str()
	if err != nil {
		return errors.Wrap(err, name)
	}
	*dst = v
	return nil
}

func optString(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func encodeCheckoutResult(res *order.CheckoutResult) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("order_id")
	e.Int64(res.Order.ID)
	e.FieldStart("total_price")
	orderjson.Money(&e, res.Order.Total)
	e.FieldStart("status")
	e.Str(string(res.Order.Status))
	e.FieldStart("discount_amount")
	orderjson.Money(&e, res.Order.DiscountAmount)
	if len(res.Dropped) > 0 {
		e.FieldStart("dropped_items")
		e.ArrStart()
		for _, item := range res.Dropped {
			e.ObjStart()
			e.FieldStart("food_id")
			e.Int64(item.FoodID)
			e.FieldStart("quantity")
			e.Int(item.Quantity)
			e.FieldStart("reason")
			e.Str(item.Reason)
			e.ObjEnd()
		}
		e.ArrEnd()
	}
	e.ObjEnd()
	return e.Bytes()
}

func encodeMessage(field, value string) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart(field)
	e.Str(value)
	e.ObjEnd()
	return e.Bytes()
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func errorBody(status int, msg string) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(msg)
	e.ObjEnd()
	return e.Bytes()
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody(status, msg))
}
