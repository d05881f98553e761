// Package order assembles, places and pays for customer orders.
package order

import (
	"context"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/address"
	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/pricing"
)

// Status is the lifecycle state of an order or of a single item.
type Status string

const (
	StatusPending         Status = "pending"
	StatusConfirmed       Status = "confirmed"
	StatusShipped         Status = "shipped"
	StatusDelivered       Status = "delivered"
	StatusCancelled       Status = "cancelled"
	StatusReturnRequested Status = "return_requested"
	StatusReturning       Status = "returning"
	StatusReturned        Status = "returned"
	StatusFailed          Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusShipped, StatusDelivered, StatusCancelled,
		StatusReturnRequested, StatusReturning, StatusReturned, StatusFailed:
		return true
	}
	return false
}

// PaymentMethod is how the customer pays.
type PaymentMethod string

const (
	MethodCOD    PaymentMethod = "cod"
	MethodOnline PaymentMethod = "online"
	MethodWallet PaymentMethod = "wallet"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	return m == MethodCOD || m == MethodOnline || m == MethodWallet
}

// PaymentStatus tracks whether money was captured.
type PaymentStatus string

const (
	PaymentSuccess PaymentStatus = "success"
	PaymentFailed  PaymentStatus = "failed"
	// PaymentPending marks a COD order whose cash is collected on delivery.
	PaymentPending PaymentStatus = "pending"
)

// ReturnStatus is the admin decision on a return request.
type ReturnStatus string

const (
	ReturnPending  ReturnStatus = "pending"
	ReturnApproved ReturnStatus = "approved"
	ReturnRejected ReturnStatus = "rejected"
)

var (
	// ErrNotFound is returned for unknown orders and orders of other users.
	ErrNotFound = apperr.NotFound("order_not_found", "order not found")
	// ErrItemNotFound is returned when the order has no item with the ID.
	ErrItemNotFound = apperr.NotFound("order_item_not_found", "order item not found")
	// ErrDuplicateCode is returned by Repository.Create on an order code
	// collision. Placement retries with a fresh code.
	ErrDuplicateCode = apperr.Conflict("duplicate_order_code", "order code already exists")
	// ErrDuplicatePayment is returned by Repository.Create when an order for
	// the same gateway payment exists.
	ErrDuplicatePayment = apperr.Conflict("duplicate_payment", "order already recorded for payment")
	// ErrNotRetryable is returned when retrying payment for an order that
	// did not fail.
	ErrNotRetryable = apperr.Conflict("payment_not_retryable", "order payment cannot be retried")
	// ErrAmountChanged is returned when the cart no longer prices to the
	// amount the customer paid.
	ErrAmountChanged = apperr.Conflict("amount_changed", "order amount changed since payment was started")
)

// ReturnRequest holds return metadata for an item.
type ReturnRequest struct {
	Reason            string       `json:"reason"`
	Description       string       `json:"description,omitempty"`
	Images            []string     `json:"images,omitempty"`
	RequestedAt       time.Time    `json:"requestedAt"`
	Status            ReturnStatus `json:"status"`
	RejectionCategory string       `json:"rejectionCategory,omitempty"`
	RejectionReason   string       `json:"rejectionReason,omitempty"`
}

// Item is an ordered product. Name, images and prices are frozen when the
// order is placed.
type Item struct {
	ID           string          `json:"id"`
	ProductID    string          `json:"productId"`
	ProductName  string          `json:"productName"`
	Images       []string        `json:"images,omitempty"`
	RegularPrice decimal.Decimal `json:"regularPrice"`
	// Price is the discounted unit price.
	Price decimal.Decimal `json:"price"`
	// Discount is the effective discount percentage.
	Discount   decimal.Decimal `json:"discount"`
	Quantity   int             `json:"quantity"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	Status     Status          `json:"status"`
	// Restocked is set once the quantity went back to stock.
	Restocked bool `json:"restocked,omitempty"`

	CancelReason string         `json:"cancelReason,omitempty"`
	CancelledAt  *time.Time     `json:"cancelledAt,omitempty"`
	Return       *ReturnRequest `json:"return,omitempty"`
	DeliveredAt  *time.Time     `json:"deliveredAt,omitempty"`
	ReturnedAt   *time.Time     `json:"returnedAt,omitempty"`
}

// InTotal reports whether the item still counts toward the order total.
func (it *Item) InTotal() bool {
	return it.Status != StatusCancelled && it.Status != StatusReturned
}

// Order is one checkout attempt.
type Order struct {
	ID     string
	Code   string
	UserID string
	Items  []Item

	TotalOrderPrice decimal.Decimal
	Discount        decimal.Decimal
	DeliveryCharge  decimal.Decimal
	FinalAmount     decimal.Decimal

	PaymentMethod PaymentMethod
	PaymentStatus PaymentStatus
	Status        Status

	CouponCode    string
	CouponApplied bool
	// CouponMinimum is the coupon's minimum order value at placement.
	CouponMinimum decimal.Decimal

	Address        address.Address
	GatewayOrderID string
	PaymentID      string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Recalculate restores FinalAmount = max(0, total - discount + delivery).
func (o *Order) Recalculate() {
	o.FinalAmount = pricing.FloorAtZero(pricing.Round(
		o.TotalOrderPrice.Sub(o.Discount).Add(o.DeliveryCharge),
	))
}

// Item returns the item with id.
func (o *Order) Item(id string) (*Item, error) {
	for i := range o.Items {
		if o.Items[i].ID == id {
			return &o.Items[i], nil
		}
	}
	return nil, ErrItemNotFound
}

// ActiveTotal sums the items that still count toward the order total.
func (o *Order) ActiveTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range o.Items {
		if it.InTotal() {
			sum = sum.Add(it.TotalPrice)
		}
	}
	return sum
}

// Paid reports whether money was captured for the order.
func (o *Order) Paid() bool { return o.PaymentStatus == PaymentSuccess }

// HasStatus reports whether any item other than skip is in status s.
func (o *Order) HasStatus(s Status, skip string) bool {
	for _, it := range o.Items {
		if it.ID != skip && it.Status == s {
			return true
		}
	}
	return false
}

// progression lists the forward item states in order.
var progression = []Status{StatusPending, StatusConfirmed, StatusShipped, StatusDelivered}

// Before reports whether s comes earlier than next in the forward
// progression pending, confirmed, shipped, delivered.
func (s Status) Before(next Status) bool {
	i, j := slices.Index(progression, s), slices.Index(progression, next)
	return i >= 0 && j >= 0 && i < j
}

// SyncStatus derives the order status from its items. An order is as far
// along as its least advanced active item.
func (o *Order) SyncStatus() {
	if len(o.Items) == 0 {
		return
	}
	if o.HasStatus(StatusReturnRequested, "") {
		o.Status = StatusReturnRequested
		return
	}
	if o.HasStatus(StatusReturning, "") {
		o.Status = StatusReturning
		return
	}

	var cancelled, returned, failed int
	least := len(progression)
	for _, it := range o.Items {
		switch it.Status {
		case StatusCancelled:
			cancelled++
		case StatusReturned:
			returned++
		case StatusFailed:
			failed++
		default:
			if i := slices.Index(progression, it.Status); i >= 0 && i < least {
				least = i
			}
		}
	}

	n := len(o.Items)
	switch {
	case least < len(progression):
		o.Status = progression[least]
	case failed > 0 && failed+cancelled == n:
		o.Status = StatusFailed
	case returned > 0:
		o.Status = StatusReturned
	default:
		o.Status = StatusCancelled
	}
}

// Repository persists orders.
type Repository interface {
	// Create inserts o. It returns ErrDuplicateCode when o.Code is taken and
	// ErrDuplicatePayment when o.PaymentID is already recorded.
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	// Lock returns the order and holds a row lock until the surrounding
	// transaction ends.
	Lock(ctx context.Context, id string) (*Order, error)
	FindByPaymentID(ctx context.Context, paymentID string) (*Order, error)
	Update(ctx context.Context, o *Order) error
	ListByUser(ctx context.Context, userID string) ([]Order, error)
}
