package coupon

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/pricing"
)

var (
	// ErrNotFound is returned when a coupon code is unknown, unlisted, or
	// is a referral coupon targeted at someone else.
	ErrNotFound = apperr.NotFound("coupon_not_found", "coupon not found")
	// ErrExpired is returned when the coupon's expiry date has passed.
	ErrExpired = apperr.Conflict("coupon_expired", "coupon expired")
	// ErrReferralNotEligible is returned when a referral coupon is redeemed
	// by a user other than its target.
	ErrReferralNotEligible = apperr.Conflict("referral_not_eligible", "referral coupon is not assigned to this user")
	// ErrReferralAlreadyUsed is returned when a referral coupon was consumed.
	ErrReferralAlreadyUsed = apperr.Conflict("referral_already_used", "referral coupon already used")
	// ErrAlreadyUsed is returned when the user already redeemed a general coupon.
	ErrAlreadyUsed = apperr.Conflict("coupon_already_used", "coupon already used")
	// ErrBelowMinimum is returned when the order subtotal is below the
	// coupon's minimum order value.
	ErrBelowMinimum = apperr.Conflict("below_minimum_order", "order total is below the coupon minimum")
)

// Coupon is either a general coupon (one use per user, tracked in UsedBy)
// or a referral coupon (one global use by AssignedTo).
type Coupon struct {
	ID   string
	Code string
	// Offer is a percentage of the order subtotal.
	Offer        decimal.Decimal
	MinimumPrice decimal.Decimal
	// MaxDiscount caps general coupon discounts. Zero means no cap.
	MaxDiscount decimal.Decimal
	ExpiresAt   time.Time
	Listed      bool
	Description string

	Referral   bool
	AssignedTo string
	Used       bool
	UsedBy     []string
}

// UsedByUser reports whether userID already redeemed this general coupon.
func (c *Coupon) UsedByUser(userID string) bool {
	return slices.Contains(c.UsedBy, userID)
}

// Discount is the computed coupon benefit for a subtotal.
type Discount struct {
	Coupon *Coupon
	Amount decimal.Decimal
}

// Compute returns the discount c grants on subtotal. Referral coupons are
// a flat percentage; general coupons are capped by MaxDiscount. The result
// never exceeds the subtotal.
func Compute(c *Coupon, subtotal decimal.Decimal) decimal.Decimal {
	amount := pricing.Percent(subtotal, c.Offer)
	if !c.Referral && c.MaxDiscount.IsPositive() && amount.GreaterThan(c.MaxDiscount) {
		amount = c.MaxDiscount
	}
	if amount.GreaterThan(subtotal) {
		amount = subtotal
	}
	return pricing.FloorAtZero(amount)
}

// NormalizeCode canonicalizes a user-entered coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Repository provides lookup and mutation of coupons.
type Repository interface {
	// FindByCode returns ErrNotFound when no coupon has the code.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	// Redeem marks the coupon consumed by userID with a conditional update.
	// It returns ErrReferralAlreadyUsed or ErrAlreadyUsed when the condition
	// no longer holds.
	Redeem(ctx context.Context, c *Coupon, userID string) error
	// Available lists coupons userID could still apply at now.
	Available(ctx context.Context, userID string, now time.Time) ([]Coupon, error)
	Upsert(ctx context.Context, c *Coupon) error
	Delete(ctx context.Context, code string) error
}
