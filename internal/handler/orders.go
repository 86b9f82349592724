package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/food-delivery/internal/domain/order"
	"github.com/xenking/food-delivery/internal/orderjson"
)

// ListOrders handles GET /orders. An optional branch_id narrows the list.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		orders []order.Order
		err    error
	)
	branchID, ok, perr := queryID(r, "branch_id")
	switch {
	case perr != nil:
		writeError(w, http.StatusBadRequest, perr.Error())
		return
	case ok && branchID != 0:
		orders, err = h.orders.ListByBranch(ctx, branchID)
	default:
		orders, err = h.orders.ListAll(ctx)
	}
	if err != nil {
		fail(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderjson.EncodeList(orders))
}

// ListBranchOrders handles GET /orders/branch/{branchID}.
func (h *Handler) ListBranchOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	branchID, err := pathID(r, "branchID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid branch id")
		return
	}
	orders, err := h.orders.ListByBranch(ctx, branchID)
	if err != nil {
		fail(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderjson.EncodeList(orders))
}

// ListMyOrders handles GET /orders/my-orders?user_id=.
func (h *Handler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok, err := queryID(r, "user_id")
	if err != nil || !ok {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	orders, err := h.orders.ListByUser(ctx, userID)
	if err != nil {
		fail(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderjson.EncodeList(orders))
}

// GetOrder handles GET /orders/{orderID}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r, "orderID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	o, err := h.orders.Get(ctx, id)
	if err != nil {
		fail(ctx, w, err)
		return
	}
	var e jx.Encoder
	orderjson.Encode(&e, o)
	writeJSON(w, http.StatusOK, e.Bytes())
}

// MarkPaid handles PUT /orders/{orderID}/paid.
func (h *Handler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r, "orderID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	if _, err := h.orders.MarkPaid(ctx, id); err != nil {
		fail(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeMessage("status", "updated"))
}

// SetStatus handles PUT /orders/{orderID}/status?status=.
func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r, "orderID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	label := r.URL.Query().Get("status")
	if label == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}
	o, err := h.orders.SetStatus(ctx, id, label)
	if err != nil {
		fail(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeMessage("message", "Updated to "+string(o.Status)))
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

// queryID parses an optional integer query parameter.
func queryID(r *http.Request, name string) (int64, bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, &order.InvalidFieldError{Field: name, Reason: "must be an integer"}
	}
	return v, true, nil
}
