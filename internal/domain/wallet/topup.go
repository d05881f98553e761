package wallet

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/event"
	"github.com/xenking/storefront/internal/domain/payment"
)

// Payments is the subset of the payment service used for top-ups.
type Payments interface {
	CreateIntent(ctx context.Context, req payment.IntentRequest) (*payment.Intent, error)
	Verify(c payment.Confirmation) error
	Confirm(ctx context.Context, userID string, purpose payment.Purpose, c payment.Confirmation) (*payment.Intent, error)
	Release(ctx context.Context, intentID string)
}

var minTopUp = decimal.NewFromInt(1)

// TopUp adds money to wallets through the payment gateway.
type TopUp struct {
	ledger   *Ledger
	payments Payments
	events   event.Publisher
}

// NewTopUp creates a TopUp flow.
func NewTopUp(ledger *Ledger, payments Payments, events event.Publisher) *TopUp {
	if events == nil {
		events = event.Nop{}
	}
	return &TopUp{ledger: ledger, payments: payments, events: events}
}

// CreateIntent opens a gateway order for a top-up of at least 1.
func (t *TopUp) CreateIntent(ctx context.Context, userID string, amount decimal.Decimal) (*payment.Intent, error) {
	if amount.LessThan(minTopUp) {
		return nil, apperr.Invalid("amount", "must be at least 1")
	}
	return t.payments.CreateIntent(ctx, payment.IntentRequest{
		UserID:  userID,
		Purpose: payment.PurposeTopUp,
		Amount:  amount,
	})
}

// Verify credits the wallet once the gateway signature checks out. A
// repeated verification of the same payment returns the current wallet
// without crediting again, even after the intent was released.
func (t *TopUp) Verify(ctx context.Context, userID string, c payment.Confirmation) (*Wallet, error) {
	if err := t.payments.Verify(c); err != nil {
		return nil, err
	}
	switch tr, err := t.ledger.ByPayment(ctx, c.PaymentID, PurposeWalletAdd); {
	case err == nil && tr.UserID == userID:
		return t.ledger.Balance(ctx, userID)
	case err != nil && !errors.Is(err, ErrTransactionNotFound):
		return nil, err
	}

	intent, err := t.payments.Confirm(ctx, userID, payment.PurposeTopUp, c)
	if err != nil {
		return nil, err
	}

	_, err = t.ledger.Credit(ctx, Entry{
		UserID:        userID,
		Amount:        intent.Amount,
		PaymentMethod: "online",
		Gateway:       GatewayRazorpay,
		Purpose:       PurposeWalletAdd,
		PaymentID:     c.PaymentID,
	})
	switch {
	case errors.Is(err, ErrDuplicatePayment):
	case err != nil:
		return nil, errors.Wrap(err, "credit top-up")
	default:
		publish(ctx, t.events, event.Event{
			Type:       event.WalletCredited,
			UserID:     userID,
			Amount:     intent.Amount,
			OccurredAt: t.ledger.now(),
		})
	}

	t.payments.Release(ctx, intent.ID)
	return t.ledger.Balance(ctx, userID)
}

func publish(ctx context.Context, p event.Publisher, events ...event.Event) {
	if err := p.Publish(ctx, events...); err != nil {
		zctx.From(ctx).Warn("Publish wallet event", zap.Error(err))
	}
}
