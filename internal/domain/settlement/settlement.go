// Package settlement applies item cancellations, returns and fulfilment
// changes to placed orders, keeping order totals, stock and wallets in step.
package settlement

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/event"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/stock"
	"github.com/xenking/storefront/internal/domain/tx"
	"github.com/xenking/storefront/internal/domain/wallet"
)

// DefaultReturnWindow is how long after delivery an item may be returned.
const DefaultReturnWindow = 7 * 24 * time.Hour

var (
	ErrAlreadyCancelled  = apperr.Conflict("item_already_cancelled", "item already cancelled")
	ErrNotCancellable    = apperr.Conflict("item_not_cancellable", "item can no longer be cancelled")
	ErrNotReturnable     = apperr.Conflict("item_not_returnable", "item is not eligible for return")
	ErrNoReturnRequest   = apperr.Conflict("no_return_request", "item has no open return request")
	ErrInvalidTransition = apperr.Conflict("invalid_status_transition", "status change not allowed")
)

// Result is the outcome of a settlement operation.
type Result struct {
	Order *order.Order
	// Refund is the amount credited to the wallet, zero if none.
	Refund  decimal.Decimal
	Revoked bool

	purpose wallet.Purpose
}

// Config holds settlement settings.
type Config struct {
	ReturnWindow time.Duration
}

// Service settles order item changes. Every operation locks the order row
// for the duration of its transaction.
type Service struct {
	orders  order.Repository
	stock   *stock.Reconciler
	ledger  *wallet.Ledger
	tx      tx.Manager
	events  event.Publisher
	metrics *Metrics
	window  time.Duration
	now     func() time.Time
}

// NewService creates a settlement Service. events and metrics may be nil.
func NewService(
	orders order.Repository,
	reconciler *stock.Reconciler,
	ledger *wallet.Ledger,
	txm tx.Manager,
	events event.Publisher,
	metrics *Metrics,
	cfg Config,
) *Service {
	if events == nil {
		events = event.Nop{}
	}
	if cfg.ReturnWindow <= 0 {
		cfg.ReturnWindow = DefaultReturnWindow
	}
	return &Service{
		orders:  orders,
		stock:   reconciler,
		ledger:  ledger,
		tx:      txm,
		events:  events,
		metrics: metrics,
		window:  cfg.ReturnWindow,
		now:     time.Now,
	}
}

// mutation is applied to a locked order. It returns the events to publish
// after commit.
type mutation func(ctx context.Context, o *order.Order, res *Result) ([]event.Event, error)

// apply locks the order, checks ownership when userID is set, runs fn and
// stores the order, all in one transaction.
func (s *Service) apply(ctx context.Context, userID, orderID string, fn mutation) (*Result, error) {
	var (
		res    = &Result{Refund: decimal.Zero}
		events []event.Event
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		o, err := s.orders.Lock(ctx, orderID)
		if err != nil {
			return err
		}
		if userID != "" && o.UserID != userID {
			return order.ErrNotFound
		}
		if events, err = fn(ctx, o, res); err != nil {
			return err
		}
		o.UpdatedAt = s.now()
		o.SyncStatus()
		res.Order = o
		return s.orders.Update(ctx, o)
	})
	if err != nil {
		if apperr.KindOf(err) != apperr.KindInternal {
			return nil, err
		}
		return nil, errors.Wrap(err, "settle order")
	}

	if res.Refund.IsPositive() {
		s.metrics.refunded(ctx, res.purpose, res.Refund)
	}
	if err := s.events.Publish(ctx, events...); err != nil {
		zctx.From(ctx).Warn("Publish settlement events", zap.String("order_id", orderID), zap.Error(err))
	}
	return res, nil
}

// CancelItem cancels a pre-delivery item: the item leaves the order total,
// its stock is restored and, if the order was paid, the refund is credited
// to the wallet.
func (s *Service) CancelItem(ctx context.Context, userID, orderID, itemID, reason string) (*Result, error) {
	if reason == "" {
		return nil, apperr.Invalid("reason", "required")
	}
	return s.apply(ctx, userID, orderID, func(ctx context.Context, o *order.Order, res *Result) ([]event.Event, error) {
		it, err := o.Item(itemID)
		if err != nil {
			return nil, err
		}
		switch it.Status {
		case order.StatusCancelled:
			return nil, ErrAlreadyCancelled
		case order.StatusPending, order.StatusConfirmed, order.StatusShipped:
		default:
			return nil, errors.Wrapf(ErrNotCancellable, "item is %s", it.Status)
		}

		adj := Remove(o, it)
		now := s.now()
		it.Status = order.StatusCancelled
		it.CancelReason = reason
		it.CancelledAt = &now

		if err := s.restock(ctx, it); err != nil {
			return nil, err
		}
		events := []event.Event{{
			Type: event.ItemCancelled, UserID: o.UserID, OrderID: o.ID, ItemID: it.ID,
			Status: string(it.Status), Amount: adj.Amount, OccurredAt: now,
		}}
		credited, err := s.refund(ctx, o, adj, wallet.PurposeCancellation, res)
		if err != nil {
			return nil, err
		}
		return append(events, credited...), nil
	})
}

// ReturnRequest describes a customer's return of a delivered item.
type ReturnRequest struct {
	OrderID     string
	ItemID      string
	Reason      string
	Description string
	Images      []string
}

// RequestReturn opens a return for a delivered item inside the return window.
func (s *Service) RequestReturn(ctx context.Context, userID string, req ReturnRequest) (*Result, error) {
	if req.Reason == "" {
		return nil, apperr.Invalid("returnReason", "required")
	}
	return s.apply(ctx, userID, req.OrderID, func(_ context.Context, o *order.Order, _ *Result) ([]event.Event, error) {
		it, err := o.Item(req.ItemID)
		if err != nil {
			return nil, err
		}
		if it.Status != order.StatusDelivered {
			return nil, errors.Wrapf(ErrNotReturnable, "item is %s", it.Status)
		}
		now := s.now()
		if it.DeliveredAt == nil || now.Sub(*it.DeliveredAt) > s.window {
			return nil, errors.Wrap(ErrNotReturnable, "return window closed")
		}

		it.Status = order.StatusReturnRequested
		it.Return = &order.ReturnRequest{
			Reason:      req.Reason,
			Description: req.Description,
			Images:      req.Images,
			RequestedAt: now,
			Status:      order.ReturnPending,
		}
		return []event.Event{{
			Type: event.ReturnRequested, UserID: o.UserID, OrderID: o.ID, ItemID: it.ID,
			Status: string(it.Status), Amount: it.TotalPrice, OccurredAt: now,
		}}, nil
	})
}

// CancelReturn withdraws a pending return request. The order leaves the
// return_requested state only when no other item still has a request open.
func (s *Service) CancelReturn(ctx context.Context, userID, orderID, itemID string) (*Result, error) {
	return s.apply(ctx, userID, orderID, func(_ context.Context, o *order.Order, _ *Result) ([]event.Event, error) {
		it, err := o.Item(itemID)
		if err != nil {
			return nil, err
		}
		if it.Status != order.StatusReturnRequested {
			return nil, ErrNoReturnRequest
		}
		it.Status = order.StatusDelivered
		it.Return = nil
		return []event.Event{{
			Type: event.ItemStatusChanged, UserID: o.UserID, OrderID: o.ID, ItemID: it.ID,
			Status: string(it.Status), OccurredAt: s.now(),
		}}, nil
	})
}

// AdvanceItem moves an item forward through pending, confirmed, shipped and
// delivered. A cash-on-delivery order is marked paid once all of its active
// items are delivered.
func (s *Service) AdvanceItem(ctx context.Context, orderID, itemID string, status order.Status) (*Result, error) {
	if !status.Valid() {
		return nil, apperr.Invalid("status", "unknown status")
	}
	return s.apply(ctx, "", orderID, func(ctx context.Context, o *order.Order, _ *Result) ([]event.Event, error) {
		it, err := o.Item(itemID)
		if err != nil {
			return nil, err
		}
		if !it.Status.Before(status) {
			return nil, errors.Wrapf(ErrInvalidTransition, "%s to %s", it.Status, status)
		}
		now := s.now()
		it.Status = status
		if status == order.StatusDelivered {
			it.DeliveredAt = &now
		}
		events := []event.Event{{
			Type: event.ItemStatusChanged, UserID: o.UserID, OrderID: o.ID, ItemID: it.ID,
			Status: string(it.Status), OccurredAt: now,
		}}

		if o.PaymentMethod == order.MethodCOD && o.PaymentStatus == order.PaymentPending && allDelivered(o) {
			o.PaymentStatus = order.PaymentSuccess
			if o.FinalAmount.IsPositive() {
				if _, err := s.ledger.Record(ctx, wallet.Entry{
					UserID:        o.UserID,
					Amount:        o.FinalAmount,
					PaymentMethod: string(order.MethodCOD),
					Purpose:       wallet.PurposePurchase,
					OrderIDs:      []string{o.ID},
				}, wallet.Debit); err != nil {
					return nil, errors.Wrap(err, "record cod payment")
				}
			}
		}
		return events, nil
	})
}

// allDelivered reports whether every item that was not cancelled reached
// the customer.
func allDelivered(o *order.Order) bool {
	active := 0
	for _, it := range o.Items {
		switch it.Status {
		case order.StatusCancelled:
			continue
		case order.StatusDelivered, order.StatusReturnRequested, order.StatusReturning, order.StatusReturned:
			active++
		default:
			return false
		}
	}
	return active > 0
}

// ReviewRequest is an admin decision on a return request.
type ReviewRequest struct {
	OrderID  string
	ItemID   string
	Approve  bool
	Category string
	Reason   string
}

// ReviewReturn approves a return request, moving the item to returning, or
// rejects it, moving the item back to delivered.
func (s *Service) ReviewReturn(ctx context.Context, req ReviewRequest) (*Result, error) {
	if !req.Approve && (req.Category == "" || req.Reason == "") {
		return nil, apperr.Invalid("reason", "rejection needs a category and a reason")
	}
	return s.apply(ctx, "", req.OrderID, func(_ context.Context, o *order.Order, _ *Result) ([]event.Event, error) {
		it, err := o.Item(req.ItemID)
		if err != nil {
			return nil, err
		}
		if it.Status != order.StatusReturnRequested || it.Return == nil {
			return nil, ErrNoReturnRequest
		}
		if req.Approve {
			it.Status = order.StatusReturning
			it.Return.Status = order.ReturnApproved
		} else {
			it.Status = order.StatusDelivered
			it.Return.Status = order.ReturnRejected
			it.Return.RejectionCategory = req.Category
			it.Return.RejectionReason = req.Reason
		}
		return []event.Event{{
			Type: event.ItemStatusChanged, UserID: o.UserID, OrderID: o.ID, ItemID: it.ID,
			Status: string(it.Status), OccurredAt: s.now(),
		}}, nil
	})
}

// CompleteReturn receives a returning item: stock is restored and the
// refund, prorated like a cancellation, is credited to the wallet.
func (s *Service) CompleteReturn(ctx context.Context, orderID, itemID string) (*Result, error) {
	return s.apply(ctx, "", orderID, func(ctx context.Context, o *order.Order, res *Result) ([]event.Event, error) {
		it, err := o.Item(itemID)
		if err != nil {
			return nil, err
		}
		if it.Status != order.StatusReturning {
			return nil, errors.Wrapf(ErrInvalidTransition, "item is %s", it.Status)
		}

		adj := Remove(o, it)
		now := s.now()
		it.Status = order.StatusReturned
		it.ReturnedAt = &now

		if err := s.restock(ctx, it); err != nil {
			return nil, err
		}
		events := []event.Event{{
			Type: event.ItemReturned, UserID: o.UserID, OrderID: o.ID, ItemID: it.ID,
			Status: string(it.Status), Amount: adj.Amount, OccurredAt: now,
		}}
		credited, err := s.refund(ctx, o, adj, wallet.PurposeRefund, res)
		if err != nil {
			return nil, err
		}
		return append(events, credited...), nil
	})
}

func (s *Service) restock(ctx context.Context, it *order.Item) error {
	if it.Restocked {
		return nil
	}
	if err := s.stock.Restore(ctx, it.ProductID, it.Quantity); err != nil {
		return err
	}
	it.Restocked = true
	return nil
}

// refund credits adj.Refund when money was captured for o.
func (s *Service) refund(ctx context.Context, o *order.Order, adj Adjustment, purpose wallet.Purpose, res *Result) ([]event.Event, error) {
	res.Revoked = adj.Revoked
	if !o.Paid() || !adj.Refund.IsPositive() {
		return nil, nil
	}
	t, err := s.ledger.Credit(ctx, wallet.Entry{
		UserID:        o.UserID,
		Amount:        adj.Refund,
		PaymentMethod: string(o.PaymentMethod),
		Gateway:       wallet.GatewayWallet,
		Purpose:       purpose,
		OrderIDs:      []string{o.ID},
	})
	if err != nil {
		return nil, errors.Wrap(err, "credit refund")
	}
	res.Refund = t.Amount
	res.purpose = purpose
	return []event.Event{{
		Type: event.WalletCredited, UserID: o.UserID, OrderID: o.ID,
		Amount: t.Amount, OccurredAt: t.CreatedAt,
	}}, nil
}
