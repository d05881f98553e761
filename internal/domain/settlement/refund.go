package settlement

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/pricing"
)

// Adjustment is the financial effect of taking one item out of an order.
type Adjustment struct {
	// Amount is the item's total price.
	Amount decimal.Decimal
	// DiscountPortion is the coupon discount withheld from the refund.
	DiscountPortion decimal.Decimal
	// Revoked is set when the remaining items no longer meet the coupon
	// minimum and the whole remaining discount was clawed back.
	Revoked bool
	// Delivery is the delivery charge returned with the last active item.
	Delivery decimal.Decimal
	// Refund is what the customer gets back if the order was paid.
	Refund decimal.Decimal
}

// Remove takes it out of o's totals and returns the refund it is worth.
// It must be called while it still counts toward the order total.
//
// When a coupon was applied, the item carries its share of the discount:
// round(amount/totalBefore × discount, 2). If the remaining items fall
// below the coupon minimum, the coupon is revoked and all of the remaining
// discount is withheld instead. The refund is never negative.
func Remove(o *order.Order, it *order.Item) Adjustment {
	before := o.ActiveTotal()
	adj := Adjustment{
		Amount:          it.TotalPrice,
		DiscountPortion: decimal.Zero,
		Delivery:        decimal.Zero,
	}
	remaining := before.Sub(adj.Amount)

	o.TotalOrderPrice = pricing.FloorAtZero(o.TotalOrderPrice.Sub(adj.Amount))

	if o.CouponApplied && o.Discount.IsPositive() && before.IsPositive() {
		if o.CouponMinimum.GreaterThan(remaining) {
			adj.Revoked = true
			adj.DiscountPortion = o.Discount
			o.Discount = decimal.Zero
			o.CouponApplied = false
		} else {
			adj.DiscountPortion = pricing.Round(adj.Amount.Mul(o.Discount).Div(before))
			o.Discount = pricing.FloorAtZero(o.Discount.Sub(adj.DiscountPortion))
		}
	}

	if !remaining.IsPositive() {
		adj.Delivery = o.DeliveryCharge
		o.DeliveryCharge = decimal.Zero
	}

	adj.Refund = pricing.FloorAtZero(adj.Amount.Sub(adj.DiscountPortion).Add(adj.Delivery))
	o.Recalculate()
	return adj
}
