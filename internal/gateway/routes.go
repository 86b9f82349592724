// Package gateway is the public reverse proxy that fronts the backend
// services.
package gateway

import (
	"slices"
	"strings"

	"github.com/go-faster/errors"
)

// Backend names.
const (
	BackendUser       = "user"
	BackendRestaurant = "restaurant"
	BackendOrder      = "order"
	BackendPayment    = "payment"
	BackendCart       = "cart"
)

// Route sends every path under Prefix to Backend.
type Route struct {
	Prefix  string
	Backend string
}

// DefaultRoutes is the platform routing table.
func DefaultRoutes() []Route {
	return []Route{
		{Prefix: "/register", Backend: BackendUser},
		{Prefix: "/login", Backend: BackendUser},
		{Prefix: "/verify", Backend: BackendUser},
		{Prefix: "/users", Backend: BackendUser},

		{Prefix: "/foods", Backend: BackendRestaurant},
		{Prefix: "/branches", Backend: BackendRestaurant},
		{Prefix: "/coupons", Backend: BackendRestaurant},
		{Prefix: "/reviews", Backend: BackendRestaurant},

		{Prefix: "/checkout", Backend: BackendOrder},
		{Prefix: "/orders", Backend: BackendOrder},

		{Prefix: "/pay", Backend: BackendPayment},

		{Prefix: "/cart", Backend: BackendCart},
	}
}

// Table resolves request paths to backends. It is immutable once built.
type Table struct {
	routes []Route
}

// NewTable validates routes and orders them longest prefix first.
func NewTable(routes []Route) (*Table, error) {
	seen := make(map[string]bool, len(routes))
	out := make([]Route, 0, len(routes))
	for _, r := range routes {
		prefix := strings.TrimRight(r.Prefix, "/")
		if prefix == "" || !strings.HasPrefix(prefix, "/") {
			return nil, errors.Errorf("invalid route prefix %q", r.Prefix)
		}
		if r.Backend == "" {
			return nil, errors.Errorf("route %q has no backend", r.Prefix)
		}
		if seen[prefix] {
			return nil, errors.Errorf("duplicate route prefix %q", prefix)
		}
		seen[prefix] = true
		out = append(out, Route{Prefix: prefix, Backend: r.Backend})
	}
	slices.SortStableFunc(out, func(a, b Route) int {
		return len(b.Prefix) - len(a.Prefix)
	})
	return &Table{routes: out}, nil
}

// Match returns the backend for path. A prefix matches only at a segment
// boundary, so /orders matches /orders and /orders/1 but not /ordersx.
func (t *Table) Match(path string) (string, bool) {
	for _, r := range t.routes {
		rest, ok := strings.CutPrefix(path, r.Prefix)
		if ok && (rest == "" || rest[0] == '/') {
			return r.Backend, true
		}
	}
	return "", false
}

// Backends lists the distinct backends referenced by the table.
func (t *Table) Backends() []string {
	var out []string
	for _, r := range t.routes {
		if !slices.Contains(out, r.Backend) {
			out = append(out, r.Backend)
		}
	}
	slices.Sort(out)
	return out
}
