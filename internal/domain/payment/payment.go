// Package payment implements the two-phase hosted checkout protocol: the
// server creates an intent with a server-computed amount, the client pays at
// the gateway, and the server verifies the gateway signature before any
// order or wallet change is committed.
package payment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/apperr"
)

// Purpose binds an intent to the flow that created it.
type Purpose string

const (
	PurposeCheckout Purpose = "checkout"
	PurposeRetry    Purpose = "retry"
	PurposeTopUp    Purpose = "topup"
)

var (
	// ErrSignatureInvalid is returned when the gateway signature does not match.
	ErrSignatureInvalid = apperr.Gateway("signature_invalid", "payment signature verification failed")
	// ErrGatewayUnavailable is returned when the gateway could not be reached
	// or did not answer in time. The outcome of the call is unknown.
	ErrGatewayUnavailable = apperr.Gateway("gateway_unavailable", "payment gateway unavailable")
	// ErrGatewayRejected is returned when the gateway refused the request.
	ErrGatewayRejected = apperr.Gateway("gateway_rejected", "payment gateway rejected the request")
	// ErrIntentNotFound is returned for unknown, expired, or foreign intents.
	ErrIntentNotFound = apperr.NotFound("intent_not_found", "payment intent not found or expired")
)

// Intent is a pending gateway order together with the server-side context
// needed to finish the flow once the payment is verified.
type Intent struct {
	// ID is the gateway order identifier.
	ID       string
	UserID   string
	Purpose  Purpose
	Amount   decimal.Decimal
	Currency string
	Receipt  string

	AddressID  string
	CouponCode string
	// OrderID is set for retry intents.
	OrderID   string
	CreatedAt time.Time
}

// Confirmation is what the client reports back after paying.
type Confirmation struct {
	IntentID  string
	PaymentID string
	Signature string
}

// CreateOrderRequest is sent to the gateway. Amount is in minor units.
type CreateOrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    map[string]string
}

// GatewayOrder is the gateway's view of an order.
type GatewayOrder struct {
	ID       string
	Amount   int64
	Currency string
	Receipt  string
	Status   string
}

// Gateway is the external payment provider.
type Gateway interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*GatewayOrder, error)
}

// IntentStore keeps intents between creation and verification.
type IntentStore interface {
	Save(ctx context.Context, intent *Intent, ttl time.Duration) error
	// Get returns ErrIntentNotFound for unknown or expired intents.
	Get(ctx context.Context, id string) (*Intent, error)
	Delete(ctx context.Context, id string) error
}

var hundred = decimal.NewFromInt(100)

// ToMinor converts an amount to the smallest currency unit.
func ToMinor(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromMinor converts minor units back to a decimal amount.
func FromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
