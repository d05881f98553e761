package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/address"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/stock"
)

// QuoteLine is a priced cart line with the product it was priced from.
type QuoteLine struct {
	pricing.Line
	Product product.Product
}

// Quote is the priced content of a cart.
type Quote struct {
	Lines []QuoteLine
	// Subtotal is the sum of discounted line totals, before the coupon.
	Subtotal       decimal.Decimal
	Discount       decimal.Decimal
	Coupon         *coupon.Coupon
	DeliveryCharge decimal.Decimal
	FinalAmount    decimal.Decimal
}

// StockLines returns the quantities to reserve for the quote.
func (q *Quote) StockLines() []stock.Line {
	lines := make([]stock.Line, len(q.Lines))
	for i, l := range q.Lines {
		lines[i] = stock.Line{ProductID: l.ProductID, Name: l.Product.Name, Quantity: l.Quantity}
	}
	return lines
}

// Assembler prices carts and builds order snapshots.
type Assembler struct {
	products product.Repository
	coupons  *coupon.Validator
	delivery pricing.DeliveryPolicy
}

// NewAssembler creates an Assembler.
func NewAssembler(products product.Repository, coupons *coupon.Validator, delivery pricing.DeliveryPolicy) *Assembler {
	return &Assembler{products: products, coupons: coupons, delivery: delivery}
}

// Quote prices c for userID. Every line is checked against the current
// catalog: a missing, blocked or understocked product fails the whole quote.
// An empty couponCode skips the coupon.
func (a *Assembler) Quote(ctx context.Context, userID string, c *cart.Cart, couponCode string) (*Quote, error) {
	return a.quote(ctx, userID, c, couponCode, true)
}

// Snapshot prices c without a coupon and without checking stock. It is used
// to record carts whose payment failed.
func (a *Assembler) Snapshot(ctx context.Context, c *cart.Cart) (*Quote, error) {
	return a.quote(ctx, "", c, "", false)
}

func (a *Assembler) quote(ctx context.Context, userID string, c *cart.Cart, couponCode string, checkStock bool) (*Quote, error) {
	if c.Empty() {
		return nil, cart.ErrEmpty
	}

	fetched, err := a.products.GetByIDs(ctx, c.ProductIDs())
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := product.Index(fetched)

	q := &Quote{Lines: make([]QuoteLine, 0, len(c.Items))}
	for _, it := range c.Items {
		p, ok := byID[it.ProductID]
		if !ok {
			return nil, errors.Wrapf(product.ErrNotFound, "product %s", it.ProductID)
		}
		if p.Blocked {
			return nil, errors.Wrapf(cart.ErrUnavailable, "product %s", p.Name)
		}
		if checkStock && p.Stock < it.Quantity {
			return nil, &stock.InsufficientError{ProductID: p.ID, Name: p.Name, Requested: it.Quantity}
		}
		line, err := pricing.Quote(p, it.Quantity)
		if err != nil {
			return nil, errors.Wrapf(err, "price %s", p.Name)
		}
		q.Lines = append(q.Lines, QuoteLine{Line: line, Product: p})
	}
	q.Subtotal = pricing.Subtotal(linesOf(q.Lines))
	q.Discount = decimal.Zero

	if couponCode != "" {
		d, err := a.coupons.Validate(ctx, couponCode, userID, q.Subtotal)
		if err != nil {
			return nil, err
		}
		q.Coupon = d.Coupon
		q.Discount = d.Amount
	}

	q.DeliveryCharge = a.delivery.For(q.Subtotal)
	q.FinalAmount = pricing.FloorAtZero(pricing.Round(q.Subtotal.Sub(q.Discount).Add(q.DeliveryCharge)))
	return q, nil
}

func linesOf(ql []QuoteLine) []pricing.Line {
	lines := make([]pricing.Line, len(ql))
	for i, l := range ql {
		lines[i] = l.Line
	}
	return lines
}

// Build turns a quote into a new order snapshot. The address is copied.
func Build(q *Quote, userID string, method PaymentMethod, addr *address.Address, now time.Time) *Order {
	o := &Order{
		ID:              uuid.New().String(),
		UserID:          userID,
		Items:           make([]Item, len(q.Lines)),
		TotalOrderPrice: q.Subtotal,
		Discount:        q.Discount,
		DeliveryCharge:  q.DeliveryCharge,
		PaymentMethod:   method,
		Status:          StatusPending,
		Address:         *addr,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for i, l := range q.Lines {
		o.Items[i] = Item{
			ID:           uuid.New().String(),
			ProductID:    l.ProductID,
			ProductName:  l.Product.Name,
			Images:       append([]string(nil), l.Product.Images...),
			RegularPrice: l.RegularPrice,
			Price:        l.UnitPrice,
			Discount:     l.Discount,
			Quantity:     l.Quantity,
			TotalPrice:   l.Total,
			Status:       StatusPending,
		}
	}
	if q.Coupon != nil {
		o.CouponCode = q.Coupon.Code
		o.CouponApplied = true
		o.CouponMinimum = q.Coupon.MinimumPrice
	}
	o.Recalculate()
	return o
}

// Fail marks a freshly built order as a failed payment: items and order
// are failed and no coupon benefit is kept.
func (o *Order) Fail() {
	for i := range o.Items {
		o.Items[i].Status = StatusFailed
	}
	o.Status = StatusFailed
	o.PaymentStatus = PaymentFailed
	o.Discount = decimal.Zero
	o.CouponApplied = false
	o.CouponCode = ""
	o.CouponMinimum = decimal.Zero
	o.Recalculate()
}
