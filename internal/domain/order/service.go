package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/address"
	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/event"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/stock"
	"github.com/xenking/storefront/internal/domain/tx"
	"github.com/xenking/storefront/internal/domain/wallet"
)

// Payments is the part of the payment service checkout depends on.
type Payments interface {
	CreateIntent(ctx context.Context, req payment.IntentRequest) (*payment.Intent, error)
	Lookup(ctx context.Context, userID, intentID string, purpose payment.Purpose) (*payment.Intent, error)
	Verify(c payment.Confirmation) error
	Confirm(ctx context.Context, userID string, purpose payment.Purpose, c payment.Confirmation) (*payment.Intent, error)
	Release(ctx context.Context, intentID string)
}

// Deps are the collaborators of the checkout Service. Events, Metrics and
// Tracer are optional.
type Deps struct {
	Orders    Repository
	Carts     cart.Repository
	Addresses address.Repository
	Assembler *Assembler
	Coupons   *coupon.Validator
	Stock     *stock.Reconciler
	Ledger    *wallet.Ledger
	Payments  Payments
	Tx        tx.Manager
	Events    event.Publisher
	Metrics   *Metrics
	Tracer    trace.Tracer
}

// Service places orders and settles their payment.
type Service struct {
	deps    Deps
	now     func() time.Time
	newCode func(time.Time) string
}

// NewService creates a checkout Service.
func NewService(deps Deps) *Service {
	if deps.Events == nil {
		deps.Events = event.Nop{}
	}
	if deps.Tracer == nil {
		deps.Tracer = noop.NewTracerProvider().Tracer("")
	}
	if deps.Tx == nil {
		deps.Tx = tx.Direct{}
	}
	return &Service{deps: deps, now: time.Now, newCode: NewCode}
}

// PlaceRequest is a checkout for the cod and wallet methods.
type PlaceRequest struct {
	UserID        string
	AddressID     string
	PaymentMethod PaymentMethod
	CouponCode    string
}

func (r PlaceRequest) validate() error {
	switch {
	case r.UserID == "":
		return apperr.Invalid("userId", "required")
	case r.AddressID == "":
		return apperr.Invalid("addressId", "required")
	case !r.PaymentMethod.Valid():
		return apperr.Invalid("paymentMethod", "must be one of cod, online, wallet")
	case r.PaymentMethod == MethodOnline:
		return apperr.Invalid("paymentMethod", "online payments start with a payment intent")
	}
	return nil
}

// Quote prices the user's current cart with an optional coupon.
func (s *Service) Quote(ctx context.Context, userID, couponCode string) (*Quote, error) {
	c, err := s.deps.Carts.Get(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	return s.deps.Assembler.Quote(ctx, userID, c, couponCode)
}

// prepare loads the shipping address and prices the cart concurrently.
func (s *Service) prepare(ctx context.Context, userID, addressID, couponCode string) (*address.Address, *Quote, error) {
	var (
		addr *address.Address
		q    *Quote
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		addr, err = s.deps.Addresses.Find(gctx, userID, addressID)
		return err
	})
	g.Go(func() error {
		var err error
		q, err = s.Quote(gctx, userID, couponCode)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return addr, q, nil
}

// PlaceOrder commits a cash-on-delivery or wallet order. A wallet order is
// debited in the same transaction that reserves stock, redeems the coupon
// and stores the order.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceRequest) (_ *Order, rerr error) {
	ctx, span := s.deps.Tracer.Start(ctx, "order.PlaceOrder",
		trace.WithAttributes(attribute.String("payment_method", string(req.PaymentMethod))),
	)
	defer func() { endSpan(span, rerr) }()

	if err := req.validate(); err != nil {
		return nil, err
	}
	addr, q, err := s.prepare(ctx, req.UserID, req.AddressID, req.CouponCode)
	if err != nil {
		return nil, err
	}

	o := Build(q, req.UserID, req.PaymentMethod, addr, s.now())
	o.PaymentStatus = PaymentPending
	if req.PaymentMethod == MethodWallet {
		o.PaymentStatus = PaymentSuccess
	}

	if err := s.commit(ctx, o, q); err != nil {
		return nil, err
	}
	s.afterPlace(ctx, o)
	return o, nil
}

// CreatePaymentIntent opens a gateway payment for the priced cart. The
// amount is computed here and never taken from the client.
func (s *Service) CreatePaymentIntent(ctx context.Context, userID, addressID, couponCode string) (*payment.Intent, error) {
	if addressID == "" {
		return nil, apperr.Invalid("addressId", "required")
	}
	_, q, err := s.prepare(ctx, userID, addressID, couponCode)
	if err != nil {
		return nil, err
	}
	return s.deps.Payments.CreateIntent(ctx, payment.IntentRequest{
		UserID:     userID,
		Purpose:    payment.PurposeCheckout,
		Amount:     q.FinalAmount,
		AddressID:  addressID,
		CouponCode: couponCode,
	})
}

// VerifyPayment commits an online order after the gateway signature is
// verified. Verifying the same payment again returns the order already
// stored for it, even after its intent was released. If the money was
// captured but the order cannot be committed, the captured amount is
// credited to the user's wallet.
func (s *Service) VerifyPayment(ctx context.Context, userID string, c payment.Confirmation) (_ *Order, rerr error) {
	ctx, span := s.deps.Tracer.Start(ctx, "order.VerifyPayment")
	defer func() { endSpan(span, rerr) }()

	if err := s.deps.Payments.Verify(c); err != nil {
		return nil, err
	}
	if o, ok := s.byPayment(ctx, userID, c.PaymentID); ok {
		return o, nil
	}
	intent, err := s.deps.Payments.Confirm(ctx, userID, payment.PurposeCheckout, c)
	if err != nil {
		return nil, err
	}

	o, err := s.commitOnline(ctx, userID, intent, c)
	if err != nil {
		if errors.Is(err, ErrDuplicatePayment) {
			if o, ok := s.byPayment(ctx, userID, c.PaymentID); ok {
				return o, nil
			}
		}
		s.compensate(ctx, userID, intent, c.PaymentID, err)
		return nil, err
	}

	s.deps.Payments.Release(ctx, intent.ID)
	s.afterPlace(ctx, o)
	return o, nil
}

func (s *Service) commitOnline(ctx context.Context, userID string, intent *payment.Intent, c payment.Confirmation) (*Order, error) {
	addr, q, err := s.prepare(ctx, userID, intent.AddressID, intent.CouponCode)
	if err != nil {
		return nil, err
	}
	if !q.FinalAmount.Equal(intent.Amount) {
		return nil, errors.Wrapf(ErrAmountChanged, "paid %s, cart totals %s",
			intent.Amount.StringFixed(2), q.FinalAmount.StringFixed(2))
	}

	o := Build(q, userID, MethodOnline, addr, s.now())
	o.PaymentStatus = PaymentSuccess
	o.GatewayOrderID = intent.ID
	o.PaymentID = c.PaymentID

	if err := s.commit(ctx, o, q); err != nil {
		return nil, err
	}
	return o, nil
}

// commit runs the placement unit of work: wallet debit or purchase record,
// stock reservation, coupon redemption and order insert.
func (s *Service) commit(ctx context.Context, o *Order, q *Quote) error {
	err := s.deps.Tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.recordPurchase(ctx, o); err != nil {
			return err
		}
		if err := s.deps.Stock.Reserve(ctx, q.StockLines()); err != nil {
			return err
		}
		if q.Coupon != nil {
			if err := s.deps.Coupons.Redeem(ctx, q.Coupon, o.UserID); err != nil {
				return err
			}
		}
		return s.create(ctx, o)
	})
	if err != nil {
		return errors.Wrap(err, "commit order")
	}
	return nil
}

// recordPurchase debits the wallet for wallet orders and writes an audit
// entry for online orders. COD orders record nothing until delivery.
func (s *Service) recordPurchase(ctx context.Context, o *Order) error {
	entry := wallet.Entry{
		UserID:        o.UserID,
		Amount:        o.FinalAmount,
		PaymentMethod: string(o.PaymentMethod),
		Purpose:       wallet.PurposePurchase,
		OrderIDs:      []string{o.ID},
		PaymentID:     o.PaymentID,
	}
	switch o.PaymentMethod {
	case MethodWallet:
		entry.Gateway = wallet.GatewayWallet
		_, err := s.deps.Ledger.Debit(ctx, entry)
		return err
	case MethodOnline:
		entry.Gateway = wallet.GatewayRazorpay
		_, err := s.deps.Ledger.Record(ctx, entry, wallet.Debit)
		if errors.Is(err, wallet.ErrDuplicatePayment) {
			return ErrDuplicatePayment
		}
		return err
	}
	return nil
}

// create inserts o, regenerating its code on collisions.
func (s *Service) create(ctx context.Context, o *Order) error {
	var err error
	for range maxCodeAttempts {
		o.Code = s.newCode(o.CreatedAt)
		err = s.deps.Orders.Create(ctx, o)
		if !errors.Is(err, ErrDuplicateCode) {
			return err
		}
		zctx.From(ctx).Debug("Order code collision", zap.String("code", o.Code))
	}
	return errors.Wrapf(err, "after %d attempts", maxCodeAttempts)
}

func (s *Service) byPayment(ctx context.Context, userID, paymentID string) (*Order, bool) {
	o, err := s.deps.Orders.FindByPaymentID(ctx, paymentID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			zctx.From(ctx).Warn("Lookup order by payment", zap.String("payment_id", paymentID), zap.Error(err))
		}
		return nil, false
	}
	if o.UserID != userID {
		return nil, false
	}
	return o, true
}

// compensate credits a captured payment to the wallet after its order
// could not be committed. The credit is keyed by the payment, so running it
// twice credits once.
func (s *Service) compensate(ctx context.Context, userID string, intent *payment.Intent, paymentID string, cause error) {
	lg := zctx.From(ctx).With(
		zap.String("user_id", userID),
		zap.String("intent_id", intent.ID),
		zap.String("payment_id", paymentID),
	)
	lg.Warn("Captured payment not committed, crediting wallet", zap.Error(cause))

	_, err := s.deps.Ledger.Credit(ctx, wallet.Entry{
		UserID:        userID,
		Amount:        intent.Amount,
		PaymentMethod: string(MethodOnline),
		Gateway:       wallet.GatewayRazorpay,
		Purpose:       wallet.PurposeRefund,
		OrderIDs:      nilIfEmpty(intent.OrderID),
		PaymentID:     paymentID,
	})
	switch {
	case errors.Is(err, wallet.ErrDuplicatePayment):
		return
	case err != nil:
		lg.Error("Payment compensation failed", zap.Error(err))
		return
	}
	s.deps.Metrics.compensated(ctx)
	s.deps.Payments.Release(ctx, intent.ID)
	s.publish(ctx, event.Event{
		Type:       event.WalletCredited,
		UserID:     userID,
		OrderID:    intent.OrderID,
		Amount:     intent.Amount,
		OccurredAt: s.now(),
	})
}

// RecordFailedPayment stores the cart as a failed order so the customer can
// retry the payment later. Nothing is reserved or redeemed. The intent is
// left to expire: if the gateway captured the payment after all, its
// verification still finds the intent and credits the wallet.
func (s *Service) RecordFailedPayment(ctx context.Context, userID, intentID string) (*Order, error) {
	intent, err := s.deps.Payments.Lookup(ctx, userID, intentID, payment.PurposeCheckout)
	if err != nil {
		return nil, err
	}
	addr, err := s.deps.Addresses.Find(ctx, userID, intent.AddressID)
	if err != nil {
		return nil, err
	}
	c, err := s.deps.Carts.Get(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	q, err := s.deps.Assembler.Snapshot(ctx, c)
	if err != nil {
		return nil, err
	}

	o := Build(q, userID, MethodOnline, addr, s.now())
	o.GatewayOrderID = intent.ID
	o.Fail()

	if err := s.deps.Tx.InTx(ctx, func(ctx context.Context) error {
		return s.create(ctx, o)
	}); err != nil {
		return nil, errors.Wrap(err, "store failed order")
	}

	s.clearCart(ctx, userID)
	s.deps.Metrics.paymentFailed(ctx)
	s.publish(ctx, event.Event{
		Type:       event.OrderPaymentFailed,
		UserID:     userID,
		OrderID:    o.ID,
		Status:     string(o.Status),
		Amount:     o.FinalAmount,
		OccurredAt: o.CreatedAt,
	})
	return o, nil
}

// RetryPayment opens a new gateway payment for a failed order.
func (s *Service) RetryPayment(ctx context.Context, userID, orderID string) (*payment.Intent, error) {
	o, err := s.Order(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if o.PaymentStatus != PaymentFailed || o.Status != StatusFailed {
		return nil, ErrNotRetryable
	}
	return s.deps.Payments.CreateIntent(ctx, payment.IntentRequest{
		UserID:  userID,
		Purpose: payment.PurposeRetry,
		Amount:  o.FinalAmount,
		Receipt: "rcpt_" + o.Code,
		OrderID: o.ID,
	})
}

// VerifyRetry settles a retried payment: stock is reserved now, items and
// order move from failed to pending, and the payment is recorded. A repeat
// for a payment already settled returns the order.
func (s *Service) VerifyRetry(ctx context.Context, userID, orderID string, c payment.Confirmation) (_ *Order, rerr error) {
	ctx, span := s.deps.Tracer.Start(ctx, "order.VerifyRetry")
	defer func() { endSpan(span, rerr) }()

	if err := s.deps.Payments.Verify(c); err != nil {
		return nil, err
	}
	if o, ok := s.byPayment(ctx, userID, c.PaymentID); ok && o.ID == orderID {
		return o, nil
	}
	intent, err := s.deps.Payments.Confirm(ctx, userID, payment.PurposeRetry, c)
	if err != nil {
		return nil, err
	}
	if intent.OrderID != orderID {
		return nil, payment.ErrIntentNotFound
	}

	var o *Order
	err = s.deps.Tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if o, err = s.deps.Orders.Lock(ctx, orderID); err != nil {
			return err
		}
		if o.UserID != userID {
			return ErrNotFound
		}
		if o.PaymentID == c.PaymentID {
			return nil
		}
		if o.PaymentStatus != PaymentFailed {
			return ErrNotRetryable
		}

		lines := make([]stock.Line, 0, len(o.Items))
		for i := range o.Items {
			it := &o.Items[i]
			lines = append(lines, stock.Line{ProductID: it.ProductID, Name: it.ProductName, Quantity: it.Quantity})
			it.Status = StatusPending
		}
		if err := s.deps.Stock.Reserve(ctx, lines); err != nil {
			return err
		}

		o.PaymentStatus = PaymentSuccess
		o.PaymentID = c.PaymentID
		o.GatewayOrderID = intent.ID
		o.UpdatedAt = s.now()
		o.SyncStatus()
		if err := s.recordPurchase(ctx, o); err != nil {
			return err
		}
		return s.deps.Orders.Update(ctx, o)
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.compensate(ctx, userID, intent, c.PaymentID, err)
		}
		return nil, errors.Wrap(err, "settle retry")
	}

	s.deps.Payments.Release(ctx, intent.ID)
	s.publish(ctx, event.Event{
		Type:       event.OrderPaymentRetry,
		UserID:     userID,
		OrderID:    o.ID,
		Status:     string(o.Status),
		Amount:     o.FinalAmount,
		OccurredAt: s.now(),
	})
	return o, nil
}

// Orders lists the user's orders, newest first.
func (s *Service) Orders(ctx context.Context, userID string) ([]Order, error) {
	list, err := s.deps.Orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return list, nil
}

// Order returns one of the user's orders.
func (s *Service) Order(ctx context.Context, userID, orderID string) (*Order, error) {
	o, err := s.deps.Orders.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get order")
	}
	if o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}

func (s *Service) afterPlace(ctx context.Context, o *Order) {
	s.clearCart(ctx, o.UserID)
	s.deps.Metrics.orderPlaced(ctx, o.PaymentMethod)

	events := []event.Event{{
		Type:       event.OrderPlaced,
		UserID:     o.UserID,
		OrderID:    o.ID,
		Status:     string(o.Status),
		Amount:     o.FinalAmount,
		OccurredAt: o.CreatedAt,
	}}
	if o.PaymentMethod == MethodWallet {
		events = append(events, event.Event{
			Type:       event.WalletDebited,
			UserID:     o.UserID,
			OrderID:    o.ID,
			Amount:     o.FinalAmount,
			OccurredAt: o.CreatedAt,
		})
	}
	s.publish(ctx, events...)
}

func (s *Service) clearCart(ctx context.Context, userID string) {
	if err := s.deps.Carts.Clear(ctx, userID); err != nil {
		zctx.From(ctx).Warn("Clear cart", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *Service) publish(ctx context.Context, events ...event.Event) {
	if err := s.deps.Events.Publish(ctx, events...); err != nil {
		zctx.From(ctx).Warn("Publish order events", zap.Error(err))
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func nilIfEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}
