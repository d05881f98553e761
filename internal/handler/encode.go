package handler

import (
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/address"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/report"
	"github.com/xenking/storefront/internal/domain/settlement"
	"github.com/xenking/storefront/internal/domain/wallet"
)

func encodeAddress(e *jx.Encoder, a address.Address) {
	e.ObjStart()
	strField(e, "id", a.ID)
	strField(e, "name", a.Name)
	strField(e, "phone", a.Phone)
	strField(e, "line1", a.Line1)
	optStrField(e, "line2", a.Line2)
	strField(e, "city", a.City)
	strField(e, "state", a.State)
	strField(e, "pincode", a.Pincode)
	optStrField(e, "landmark", a.Landmark)
	e.ObjEnd()
}

func encodeItem(e *jx.Encoder, it *order.Item) {
	e.ObjStart()
	strField(e, "id", it.ID)
	strField(e, "productId", it.ProductID)
	strField(e, "productName", it.ProductName)
	strsField(e, "images", it.Images)
	moneyField(e, "regularPrice", it.RegularPrice)
	moneyField(e, "price", it.Price)
	moneyField(e, "discount", it.Discount)
	e.FieldStart("quantity")
	e.Int(it.Quantity)
	moneyField(e, "totalProductPrice", it.TotalPrice)
	strField(e, "status", string(it.Status))
	optStrField(e, "cancelReason", it.CancelReason)
	optTimeField(e, "cancelledAt", it.CancelledAt)
	optTimeField(e, "deliveredAt", it.DeliveredAt)
	optTimeField(e, "returnedAt", it.ReturnedAt)
	if r := it.Return; r != nil {
		e.FieldStart("return")
		e.ObjStart()
		strField(e, "reason", r.Reason)
		optStrField(e, "description", r.Description)
		strsField(e, "images", r.Images)
		timeField(e, "requestedAt", r.RequestedAt)
		strField(e, "status", string(r.Status))
		optStrField(e, "rejectionCategory", r.RejectionCategory)
		optStrField(e, "rejectionReason", r.RejectionReason)
		e.ObjEnd()
	}
	e.ObjEnd()
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	strField(e, "id", o.ID)
	strField(e, "code", o.Code)
	e.FieldStart("items")
	e.ArrStart()
	for i := range o.Items {
		encodeItem(e, &o.Items[i])
	}
	e.ArrEnd()
	moneyField(e, "totalOrderPrice", o.TotalOrderPrice)
	moneyField(e, "discount", o.Discount)
	moneyField(e, "deliveryCharge", o.DeliveryCharge)
	moneyField(e, "finalAmount", o.FinalAmount)
	strField(e, "paymentMethod", string(o.PaymentMethod))
	strField(e, "paymentStatus", string(o.PaymentStatus))
	strField(e, "status", string(o.Status))
	optStrField(e, "couponCode", o.CouponCode)
	e.FieldStart("couponApplied")
	e.Bool(o.CouponApplied)
	e.FieldStart("address")
	encodeAddress(e, o.Address)
	optStrField(e, "paymentId", o.PaymentID)
	timeField(e, "createdAt", o.CreatedAt)
	timeField(e, "updatedAt", o.UpdatedAt)
	e.ObjEnd()
}

func encodeIntent(e *jx.Encoder, in *payment.Intent, keyID string) {
	strField(e, "intentId", in.ID)
	moneyField(e, "amount", in.Amount)
	e.FieldStart("amountMinor")
	e.Int64(payment.ToMinor(in.Amount))
	strField(e, "currency", in.Currency)
	optStrField(e, "keyId", keyID)
	optStrField(e, "orderId", in.OrderID)
}

func encodeResult(e *jx.Encoder, res *settlement.Result) {
	e.FieldStart("order")
	encodeOrder(e, res.Order)
	moneyField(e, "refund", res.Refund)
	e.FieldStart("couponRevoked")
	e.Bool(res.Revoked)
}

func encodeWallet(e *jx.Encoder, w *wallet.Wallet) {
	e.ObjStart()
	strField(e, "userId", w.UserID)
	moneyField(e, "balance", w.Balance)
	moneyField(e, "refundAmount", w.RefundAmount)
	moneyField(e, "totalDebited", w.TotalDebited)
	e.ObjEnd()
}

func encodeTransaction(e *jx.Encoder, t *wallet.Transaction) {
	e.ObjStart()
	strField(e, "id", t.ID)
	moneyField(e, "amount", t.Amount)
	strField(e, "type", string(t.Type))
	optStrField(e, "paymentMethod", t.PaymentMethod)
	optStrField(e, "gateway", t.Gateway)
	strField(e, "purpose", string(t.Purpose))
	strsField(e, "orderIds", t.OrderIDs)
	optStrField(e, "paymentId", t.PaymentID)
	e.FieldStart("affectsBalance")
	e.Bool(t.AffectsBalance)
	moneyField(e, "balanceAfter", t.BalanceAfter)
	timeField(e, "createdAt", t.CreatedAt)
	e.ObjEnd()
}

func encodeCart(e *jx.Encoder, c *cart.Cart) {
	e.ObjStart()
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range c.Items {
		e.ObjStart()
		strField(e, "productId", it.ProductID)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}

func encodeCoupon(e *jx.Encoder, c *coupon.Coupon) {
	e.ObjStart()
	strField(e, "code", c.Code)
	moneyField(e, "offer", c.Offer)
	moneyField(e, "minimumPrice", c.MinimumPrice)
	if c.MaxDiscount.IsPositive() {
		moneyField(e, "maxDiscount", c.MaxDiscount)
	}
	timeField(e, "expiresAt", c.ExpiresAt)
	optStrField(e, "description", c.Description)
	e.FieldStart("referral")
	e.Bool(c.Referral)
	optStrField(e, "assignedTo", c.AssignedTo)
	e.ObjEnd()
}

func encodeQuote(e *jx.Encoder, q *order.Quote) {
	e.ObjStart()
	e.FieldStart("items")
	e.ArrStart()
	for _, l := range q.Lines {
		e.ObjStart()
		strField(e, "productId", l.ProductID)
		strField(e, "productName", l.Product.Name)
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		moneyField(e, "price", l.UnitPrice)
		moneyField(e, "totalProductPrice", l.Total)
		e.ObjEnd()
	}
	e.ArrEnd()
	moneyField(e, "subtotal", q.Subtotal)
	moneyField(e, "discount", q.Discount)
	if q.Coupon != nil {
		strField(e, "couponCode", q.Coupon.Code)
	}
	moneyField(e, "deliveryCharge", q.DeliveryCharge)
	moneyField(e, "finalAmount", q.FinalAmount)
	e.ObjEnd()
}

func encodeRange(e *jx.Encoder, r report.Range) {
	timeField(e, "from", r.From)
	timeField(e, "to", r.To)
}

func encodeSales(e *jx.Encoder, s *report.Sales) {
	e.ObjStart()
	encodeRange(e, s.Range)
	e.FieldStart("orders")
	e.Int(s.Orders)
	moneyField(e, "totalSales", s.TotalSales)
	moneyField(e, "itemDiscount", s.ItemDiscount)
	moneyField(e, "couponDiscount", s.CouponDiscount)
	e.FieldStart("lines")
	e.ArrStart()
	for _, l := range s.Lines {
		e.ObjStart()
		strField(e, "orderId", l.OrderID)
		strField(e, "orderCode", l.Code)
		timeField(e, "createdAt", l.CreatedAt)
		strField(e, "paymentMethod", string(l.PaymentMethod))
		moneyField(e, "amount", l.Amount)
		moneyField(e, "itemDiscount", l.ItemDiscount)
		moneyField(e, "couponDiscount", l.CouponDiscount)
		e.FieldStart("items")
		e.Int(l.Items)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}

func encodeLedger(e *jx.Encoder, l *report.Ledger) {
	e.ObjStart()
	encodeRange(e, l.Range)
	moneyField(e, "income", l.Income)
	moneyField(e, "refund", l.Refund)
	moneyField(e, "net", l.Net)
	e.FieldStart("lines")
	e.ArrStart()
	for _, line := range l.Lines {
		e.ObjStart()
		strField(e, "orderId", line.OrderID)
		strField(e, "orderCode", line.Code)
		timeField(e, "createdAt", line.CreatedAt)
		strField(e, "paymentMethod", string(line.PaymentMethod))
		strField(e, "status", string(line.Status))
		moneyField(e, "finalAmount", line.FinalAmount)
		moneyField(e, "income", line.Income)
		moneyField(e, "refund", line.Refund)
		moneyField(e, "net", line.Net)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}
