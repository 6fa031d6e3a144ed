package handler

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/storefront-labs/checkout/internal/domain/order"
)

// Metrics records checkout throughput counters.
type Metrics struct {
	previews    metric.Int64Counter
	orders      metric.Int64Counter
	transitions metric.Int64Counter
}

// NewMetrics registers the checkout counters on the given meter provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter("checkout")

	previews, err := meter.Int64Counter("checkout.previews",
		metric.WithDescription("Cart previews computed"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "previews counter")
	}

	orders, err := meter.Int64Counter("checkout.orders_placed",
		metric.WithDescription("Orders committed"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "orders counter")
	}

	transitions, err := meter.Int64Counter("checkout.order_transitions",
		metric.WithDescription("Order status transitions applied"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "transitions counter")
	}

	return &Metrics{
		previews:    previews,
		orders:      orders,
		transitions: transitions,
	}, nil
}

func (m *Metrics) recordPreview(ctx context.Context, ok bool) {
	m.previews.Add(ctx, 1, metric.WithAttributes(attribute.Bool("ok", ok)))
}

func (m *Metrics) recordOrderPlaced(ctx context.Context, o *order.Order) {
	m.orders.Add(ctx, 1)
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("order.id", o.ID))
}

func (m *Metrics) recordTransition(ctx context.Context, to order.Status) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("to", string(to))))
}
