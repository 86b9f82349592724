package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/food-delivery/internal/domain/catalog"
)

const meterName = "github.com/xenking/food-delivery/internal/domain/order"

type metrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
	dropped  metric.Int64Counter
}

func newMetrics(mp metric.MeterProvider) (*metrics, error) {
	meter := mp.Meter(meterName)

	requests, err := meter.Int64Counter("checkout.requests",
		metric.WithDescription("Checkout attempts by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "checkout.requests")
	}
	duration, err := meter.Float64Histogram("checkout.duration",
		metric.WithDescription("Checkout latency"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "checkout.duration")
	}
	dropped, err := meter.Int64Counter("checkout.dropped_items",
		metric.WithDescription("Items dropped by the lenient policy"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "checkout.dropped_items")
	}
	return &metrics{requests: requests, duration: duration, dropped: dropped}, nil
}

func (m *metrics) observeCheckout(ctx context.Context, err error, d time.Duration) {
	// Recording must not depend on the request still being alive.
	ctx = context.WithoutCancel(ctx)
	attrs := metric.WithAttributes(attribute.String("outcome", outcome(err)))
	m.requests.Add(ctx, 1, attrs)
	m.duration.Record(ctx, d.Seconds(), attrs)
}

func (m *metrics) observeDropped(ctx context.Context, n int) {
	if n == 0 {
		return
	}
	m.dropped.Add(ctx, int64(n))
}

func outcome(err error) string {
	var (
		pricingErr *PricingError
		persistErr *PersistenceError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid"
	case errors.As(err, &pricingErr):
		if errors.Is(err, catalog.ErrNotFound) {
			return "not_found"
		}
		return "unavailable"
	case errors.As(err, &persistErr):
		return "persistence_failed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
