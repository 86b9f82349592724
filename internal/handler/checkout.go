package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/food-delivery/internal/idempotency"
)

// IdempotencyKeyHeader carries the client supplied checkout key.
const IdempotencyKeyHeader = "Idempotency-Key"

// Checkout handles POST /checkout.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lg := zctx.From(ctx)

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "cannot read request body")
		return
	}

	key := r.Header.Get(IdempotencyKeyHeader)
	if h.idempotency == nil {
		key = ""
	}
	fingerprint := idempotency.Fingerprint(data)
	if key != "" {
		rec, err := h.idempotency.Begin(ctx, key)
		switch {
		case errors.Is(err, idempotency.ErrInFlight):
			fail(ctx, w, err)
			return
		case err != nil:
			// Checkout still works without the guard.
			lg.Warn("Idempotency store unavailable", zap.Error(err))
			key = ""
		case rec != nil:
			if !rec.Matches(fingerprint) {
				fail(ctx, w, idempotency.ErrKeyReused)
				return
			}
			w.Header().Set("Idempotent-Replayed", "true")
			writeJSON(w, rec.Status, rec.Body)
			return
		}
	}

	checkoutCtx := ctx
	if key != "" && h.claimTimeout > 0 {
		// The claim must outlive the checkout or a retry could place a second order.
		var cancel context.CancelFunc
		checkoutCtx, cancel = context.WithTimeout(ctx, h.claimTimeout)
		defer cancel()
	}
	status, body := h.checkout(checkoutCtx, data)

	if key != "" {
		// Store the outcome even if the client already went away.
		sctx := context.WithoutCancel(ctx)
		var err error
		if status < http.StatusInternalServerError {
			err = h.idempotency.Complete(sctx, key, idempotency.Record{
				Status:      status,
				Body:        body,
				Fingerprint: fingerprint,
			})
		} else {
			err = h.idempotency.Release(sctx, key)
		}
		if err != nil {
			lg.Warn("Idempotency record not saved", zap.String("key", key), zap.Error(err))
		}
	}

	writeJSON(w, status, body)
}

func (h *Handler) checkout(ctx context.Context, data []byte) (int, []byte) {
	req, err := decodeCheckoutRequest(data)
	if err != nil {
		return http.StatusBadRequest, errorBody(http.StatusBadRequest, "invalid JSON: "+err.Error())
	}

	res, err := h.orders.Checkout(ctx, req)
	if err != nil {
		status, msg := mapError(err)
		if status >= http.StatusInternalServerError {
			zctx.From(ctx).Error("Checkout failed", zap.Int("status", status), zap.Error(err))
		}
		return status, errorBody(status, msg)
	}
	return http.StatusOK, encodeCheckoutResult(res)
}
