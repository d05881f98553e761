// Package event defines the domain events emitted after state changes are
// committed, and the port used to publish them.
package event

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Type names a domain event.
type Type string

const (
	OrderPlaced        Type = "order.placed"
	OrderPaymentFailed Type = "order.payment_failed"
	OrderPaymentRetry  Type = "order.payment_retried"
	ItemCancelled      Type = "order.item_cancelled"
	ItemStatusChanged  Type = "order.item_status_changed"
	ReturnRequested    Type = "order.return_requested"
	ItemReturned       Type = "order.item_returned"
	WalletCredited     Type = "wallet.credited"
	WalletDebited      Type = "wallet.debited"
)

// Event is a fact about a committed change.
type Event struct {
	Type    Type
	UserID  string
	OrderID string
	ItemID  string
	Status  string
	// Amount is the money moved by the event, if any.
	Amount     decimal.Decimal
	OccurredAt time.Time
}

// Key returns the partition key: the order when present, else the user.
func (e Event) Key() string {
	if e.OrderID != "" {
		return e.OrderID
	}
	return e.UserID
}

// Publisher delivers events to downstream consumers. Publishing happens after
// commit; a failure never rolls back the change it describes.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

// Nop discards events.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, ...Event) error { return nil }
