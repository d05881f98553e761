// Package report builds the admin sales report and ledger book from settled
// orders.
package report

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/pricing"
)

// Period selects a preset reporting range.
type Period string

const (
	Daily   Period = "daily"
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
	Custom  Period = "custom"
)

// Range is a half-open creation time window [From, To).
type Range struct {
	From time.Time
	To   time.Time
}

// ParseRange resolves a period relative to now. Custom ranges take dates in
// YYYY-MM-DD form; the end date is inclusive.
func ParseRange(period Period, from, to string, now time.Time) (Range, error) {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch period {
	case Daily, "":
		return Range{From: today, To: today.AddDate(0, 0, 1)}, nil
	case Weekly:
		return Range{From: now.AddDate(0, 0, -7), To: now}, nil
	case Monthly:
		return Range{From: now.AddDate(0, -1, 0), To: now}, nil
	case Custom:
		f, err := time.Parse(time.DateOnly, from)
		if err != nil {
			return Range{}, apperr.Invalid("from", "expected YYYY-MM-DD")
		}
		t, err := time.Parse(time.DateOnly, to)
		if err != nil {
			return Range{}, apperr.Invalid("to", "expected YYYY-MM-DD")
		}
		if t.Before(f) {
			return Range{}, apperr.Invalid("to", "must not precede from")
		}
		return Range{From: f, To: t.AddDate(0, 0, 1)}, nil
	default:
		return Range{}, apperr.Invalid("range", "unknown period")
	}
}

// Source lists orders for reporting.
type Source interface {
	// OrdersBetween returns orders created in r whose status is one of
	// statuses, newest first.
	OrdersBetween(ctx context.Context, r Range, statuses []order.Status) ([]order.Order, error)
}

// SalesLine is one order in the sales report.
type SalesLine struct {
	OrderID       string
	Code          string
	CreatedAt     time.Time
	PaymentMethod order.PaymentMethod
	// Amount is the final amount charged for the order.
	Amount decimal.Decimal
	// ItemDiscount is what product and category offers took off the
	// regular price of the delivered items.
	ItemDiscount decimal.Decimal
	// CouponDiscount is total - final + delivery.
	CouponDiscount decimal.Decimal
	Items          int
}

// Sales is the sales report.
type Sales struct {
	Range          Range
	Lines          []SalesLine
	Orders         int
	TotalSales     decimal.Decimal
	ItemDiscount   decimal.Decimal
	CouponDiscount decimal.Decimal
}

// LedgerLine is one order in the ledger book.
type LedgerLine struct {
	OrderID       string
	Code          string
	CreatedAt     time.Time
	PaymentMethod order.PaymentMethod
	Status        order.Status
	FinalAmount   decimal.Decimal
	Income        decimal.Decimal
	Refund        decimal.Decimal
	Net           decimal.Decimal
}

// Ledger is the ledger book.
type Ledger struct {
	Range  Range
	Lines  []LedgerLine
	Income decimal.Decimal
	Refund decimal.Decimal
	Net    decimal.Decimal
}

// Service produces reports.
type Service struct {
	orders Source
}

// NewService creates a report Service.
func NewService(orders Source) *Service {
	return &Service{orders: orders}
}

var salesStatuses = []order.Status{
	order.StatusDelivered, order.StatusReturnRequested, order.StatusReturning, order.StatusReturned,
}

// SalesReport summarises orders with at least one delivered item.
func (s *Service) SalesReport(ctx context.Context, r Range) (*Sales, error) {
	list, err := s.orders.OrdersBetween(ctx, r, salesStatuses)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	rep := BuildSales(list)
	rep.Range = r
	return rep, nil
}

var ledgerStatuses = []order.Status{
	order.StatusDelivered, order.StatusCancelled, order.StatusReturned,
}

// LedgerBook lists income and refunds per settled order.
func (s *Service) LedgerBook(ctx context.Context, r Range) (*Ledger, error) {
	list, err := s.orders.OrdersBetween(ctx, r, ledgerStatuses)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	rep := BuildLedger(list)
	rep.Range = r
	return rep, nil
}

// BuildSales computes the sales report. Returned items are ignored, and an
// order without a delivered item is left out.
func BuildSales(orders []order.Order) *Sales {
	rep := &Sales{
		TotalSales:     decimal.Zero,
		ItemDiscount:   decimal.Zero,
		CouponDiscount: decimal.Zero,
	}
	for i := range orders {
		o := &orders[i]
		line := SalesLine{
			OrderID:       o.ID,
			Code:          o.Code,
			CreatedAt:     o.CreatedAt,
			PaymentMethod: o.PaymentMethod,
			Amount:        o.FinalAmount,
			ItemDiscount:  decimal.Zero,
			CouponDiscount: pricing.FloorAtZero(
				o.TotalOrderPrice.Sub(o.FinalAmount).Add(o.DeliveryCharge),
			),
		}
		for _, it := range o.Items {
			if it.Status != order.StatusDelivered {
				continue
			}
			line.Items++
			off := it.RegularPrice.Sub(it.Price).Mul(decimal.NewFromInt(int64(it.Quantity)))
			line.ItemDiscount = line.ItemDiscount.Add(pricing.FloorAtZero(off))
		}
		if line.Items == 0 {
			continue
		}
		line.ItemDiscount = pricing.Round(line.ItemDiscount)

		rep.Lines = append(rep.Lines, line)
		rep.Orders++
		rep.TotalSales = rep.TotalSales.Add(line.Amount)
		rep.ItemDiscount = rep.ItemDiscount.Add(line.ItemDiscount)
		rep.CouponDiscount = rep.CouponDiscount.Add(line.CouponDiscount)
	}
	return rep
}

// BuildLedger computes the ledger book. Delivered items count as income;
// cancelled and returned items count as refunds when money was captured.
// Cash-on-delivery orders cancelled before collection never moved money
// and are left out.
func BuildLedger(orders []order.Order) *Ledger {
	rep := &Ledger{Income: decimal.Zero, Refund: decimal.Zero, Net: decimal.Zero}
	for i := range orders {
		o := &orders[i]
		if o.PaymentMethod == order.MethodCOD && o.Status == order.StatusCancelled {
			continue
		}
		line := LedgerLine{
			OrderID:       o.ID,
			Code:          o.Code,
			CreatedAt:     o.CreatedAt,
			PaymentMethod: o.PaymentMethod,
			Status:        o.Status,
			FinalAmount:   o.FinalAmount,
			Income:        decimal.Zero,
			Refund:        decimal.Zero,
		}
		for _, it := range o.Items {
			switch it.Status {
			case order.StatusDelivered:
				line.Income = line.Income.Add(it.TotalPrice)
			case order.StatusCancelled, order.StatusReturned:
				if o.Paid() {
					line.Refund = line.Refund.Add(it.TotalPrice)
				}
			}
		}
		line.Net = line.Income.Sub(line.Refund)

		rep.Lines = append(rep.Lines, line)
		rep.Income = rep.Income.Add(line.Income)
		rep.Refund = rep.Refund.Add(line.Refund)
	}
	rep.Net = rep.Income.Sub(rep.Refund)
	return rep
}
