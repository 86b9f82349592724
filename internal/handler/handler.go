// Package handler exposes the order service over HTTP.
package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/food-delivery/internal/domain/order"
	"github.com/xenking/food-delivery/internal/idempotency"
)

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// MaxBodyBytes limits request bodies. Default is 1 MiB.
	MaxBodyBytes int64
	// ClaimTimeout bounds a checkout that holds an idempotency claim. It
	// should be shorter than the claim TTL. Zero means no bound.
	ClaimTimeout time.Duration
}

// Handler serves the checkout and order endpoints, delegating business
// logic to the order service.
type Handler struct {
	orders       *order.Service
	idempotency  idempotency.Store
	maxBody      int64
	claimTimeout time.Duration
}

// NewHandler constructs a Handler. idem may be nil to disable
// Idempotency-Key support.
func NewHandler(cfg HandlerConfig, orders *order.Service, idem idempotency.Store) *Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	return &Handler{
		orders:       orders,
		idempotency:  idem,
		maxBody:      cfg.MaxBodyBytes,
		claimTimeout: cfg.ClaimTimeout,
	}
}

// Register mounts all order routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/checkout", h.Checkout)
	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.ListOrders)
		r.Get("/branch/{branchID}", h.ListBranchOrders)
		r.Get("/my-orders", h.ListMyOrders)
		r.Get("/{orderID}", h.GetOrder)
		r.Put("/{orderID}/paid", h.MarkPaid)
		r.Put("/{orderID}/status", h.SetStatus)
	})
}

// Router returns a standalone router with all order routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	h.Register(r)
	return r
}
