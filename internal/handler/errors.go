package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/food-delivery/internal/domain/catalog"
	"github.com/xenking/food-delivery/internal/domain/order"
	"github.com/xenking/food-delivery/internal/idempotency"
)

// mapError converts a domain error to an HTTP status and a client-safe
// message. Upstream details are never included.
func mapError(err error) (int, string) {
	var (
		fieldErr   *order.InvalidFieldError
		qtyErr     *order.InvalidQuantityError
		pricingErr *order.PricingError
		transErr   *order.TransitionError
		persistErr *order.PersistenceError
	)
	switch {
	case errors.As(err, &fieldErr):
		return http.StatusBadRequest, fieldErr.Error()
	case errors.As(err, &qtyErr):
		return http.StatusBadRequest, qtyErr.Error()
	case errors.Is(err, order.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, order.ErrUnknownStatus):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &pricingErr):
		if errors.Is(err, catalog.ErrNotFound) {
			return http.StatusNotFound, fmt.Sprintf("food %d not found", pricingErr.FoodID)
		}
		return http.StatusServiceUnavailable, "restaurant service unavailable"
	case errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound, "order not found"
	case errors.As(err, &transErr):
		return http.StatusConflict, transErr.Error()
	case errors.Is(err, idempotency.ErrInFlight):
		return http.StatusConflict, idempotency.ErrInFlight.Error()
	case errors.Is(err, idempotency.ErrKeyReused):
		return http.StatusUnprocessableEntity, idempotency.ErrKeyReused.Error()
	case errors.As(err, &persistErr):
		return http.StatusInternalServerError, "failed to save order"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "request aborted"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// fail logs server-side failures and writes the mapped error.
func fail(ctx context.Context, w http.ResponseWriter, err error) {
	status, msg := mapError(err)
	if status >= http.StatusInternalServerError {
		zctx.From(ctx).Error("Request failed", zap.Int("status", status), zap.Error(err))
	}
	writeError(w, status, msg)
}
