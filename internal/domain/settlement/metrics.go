package settlement

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/xenking/storefront/internal/domain/wallet"
)

// Metrics counts refunds issued by settlement.
type Metrics struct {
	refunds metric.Int64Counter
	amount  metric.Float64Counter
}

// NewMetrics registers settlement counters on mp. A nil mp disables metrics.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	meter := mp.Meter("github.com/xenking/storefront/internal/domain/settlement")

	refunds, err := meter.Int64Counter("storefront.refunds.issued",
		metric.WithDescription("Refunds credited to wallets"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "refunds counter")
	}
	amount, err := meter.Float64Counter("storefront.refunds.amount",
		metric.WithDescription("Money refunded to wallets"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "refund amount counter")
	}
	return &Metrics{refunds: refunds, amount: amount}, nil
}

func (m *Metrics) refunded(ctx context.Context, purpose wallet.Purpose, amount decimal.Decimal) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("purpose", string(purpose)))
	m.refunds.Add(ctx, 1, attrs)
	m.amount.Add(ctx, amount.InexactFloat64(), attrs)
}
