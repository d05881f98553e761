// Package pricing computes effective discounts, line totals and delivery
// charges. It has no side effects.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/product"
)

var hundred = decimal.NewFromInt(100)

var (
	// ErrInvalidPrice is returned for a zero or negative catalog price.
	ErrInvalidPrice = apperr.Validation("invalid_price", "price must be greater than 0")
	// ErrInvalidDiscount is returned for a discount outside 0..100.
	ErrInvalidDiscount = apperr.Validation("invalid_discount", "discount must be between 0 and 100")
	// ErrInvalidQuantity is returned for a non-positive quantity.
	ErrInvalidQuantity = apperr.Validation("invalid_quantity", "quantity must be greater than 0")
)

// Line is a priced cart line.
type Line struct {
	ProductID string
	// RegularPrice is the catalog price per unit.
	RegularPrice decimal.Decimal
	// Discount is the effective discount percentage applied.
	Discount decimal.Decimal
	// UnitPrice is RegularPrice after Discount, rounded to 2 decimals.
	UnitPrice decimal.Decimal
	Quantity  int
	Total     decimal.Decimal
}

// EffectiveDiscount returns the larger of the product discount and the
// category offer. Unlisted or missing categories contribute nothing.
func EffectiveDiscount(p product.Product) decimal.Decimal {
	d := p.Discount
	if c := p.Category; c != nil && c.Listed && c.Offer.GreaterThan(d) {
		d = c.Offer
	}
	return d
}

// Quote prices qty units of p.
func Quote(p product.Product, qty int) (Line, error) {
	if !p.Price.IsPositive() {
		return Line{}, ErrInvalidPrice
	}
	if qty <= 0 {
		return Line{}, ErrInvalidQuantity
	}
	discount := EffectiveDiscount(p)
	if discount.IsNegative() || discount.GreaterThan(hundred) {
		return Line{}, ErrInvalidDiscount
	}

	unit := Round(p.Price.Mul(hundred.Sub(discount)).Div(hundred))
	return Line{
		ProductID:    p.ID,
		RegularPrice: p.Price,
		Discount:     discount,
		UnitPrice:    unit,
		Quantity:     qty,
		Total:        Round(unit.Mul(decimal.NewFromInt(int64(qty)))),
	}, nil
}

// Subtotal sums line totals.
func Subtotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Total)
	}
	return sum
}

// DeliveryPolicy decides the delivery charge from the post-discount,
// pre-coupon subtotal.
type DeliveryPolicy struct {
	// Threshold is the subtotal above which delivery is free.
	Threshold decimal.Decimal
	// Charge is applied when the subtotal does not exceed Threshold.
	Charge decimal.Decimal
}

// DefaultDeliveryPolicy charges 40 for orders of 500 or less.
func DefaultDeliveryPolicy() DeliveryPolicy {
	return DeliveryPolicy{
		Threshold: decimal.NewFromInt(500),
		Charge:    decimal.NewFromInt(40),
	}
}

// For returns the delivery charge for subtotal.
func (p DeliveryPolicy) For(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThan(p.Threshold) {
		return decimal.Zero
	}
	return p.Charge
}

// Round applies the canonical monetary rounding: half-up to 2 decimals.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// FloorAtZero clamps negative amounts to zero.
func FloorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Percent returns pct percent of amount, rounded.
func Percent(amount, pct decimal.Decimal) decimal.Decimal {
	return Round(amount.Mul(pct).Div(hundred))
}
