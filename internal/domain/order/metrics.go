package order

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics counts checkout outcomes.
type Metrics struct {
	placed        metric.Int64Counter
	failed        metric.Int64Counter
	compensations metric.Int64Counter
}

// NewMetrics registers checkout counters on mp. A nil mp disables metrics.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	meter := mp.Meter("github.com/xenking/storefront/internal/domain/order")

	var (
		m   Metrics
		err error
	)
	if m.placed, err = meter.Int64Counter("storefront.orders.placed",
		metric.WithDescription("Orders committed, by payment method"),
	); err != nil {
		return nil, errors.Wrap(err, "orders placed counter")
	}
	if m.failed, err = meter.Int64Counter("storefront.orders.payment_failed",
		metric.WithDescription("Orders recorded with a failed payment"),
	); err != nil {
		return nil, errors.Wrap(err, "payment failed counter")
	}
	if m.compensations, err = meter.Int64Counter("storefront.payments.compensated",
		metric.WithDescription("Captured payments credited to the wallet after a failed commit"),
	); err != nil {
		return nil, errors.Wrap(err, "compensation counter")
	}
	return &m, nil
}

func (m *Metrics) orderPlaced(ctx context.Context, method PaymentMethod) {
	if m == nil {
		return
	}
	m.placed.Add(ctx, 1, metric.WithAttributes(attribute.String("payment_method", string(method))))
}

func (m *Metrics) paymentFailed(ctx context.Context) {
	if m == nil {
		return
	}
	m.failed.Add(ctx, 1)
}

func (m *Metrics) compensated(ctx context.Context) {
	if m == nil {
		return
	}
	m.compensations.Add(ctx, 1)
}
