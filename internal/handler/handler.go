// Package handler exposes the storefront over HTTP. Requests and responses
// are encoded with jx; domain errors map to statuses by their apperr kind.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/report"
	"github.com/xenking/storefront/internal/domain/settlement"
	"github.com/xenking/storefront/internal/domain/wallet"
)

// Checkout is implemented by *order.Service.
type Checkout interface {
	Quote(ctx context.Context, userID, couponCode string) (*order.Quote, error)
	PlaceOrder(ctx context.Context, req order.PlaceRequest) (*order.Order, error)
	CreatePaymentIntent(ctx context.Context, userID, addressID, couponCode string) (*payment.Intent, error)
	VerifyPayment(ctx context.Context, userID string, c payment.Confirmation) (*order.Order, error)
	RecordFailedPayment(ctx context.Context, userID, intentID string) (*order.Order, error)
	RetryPayment(ctx context.Context, userID, orderID string) (*payment.Intent, error)
	VerifyRetry(ctx context.Context, userID, orderID string, c payment.Confirmation) (*order.Order, error)
	Orders(ctx context.Context, userID string) ([]order.Order, error)
	Order(ctx context.Context, userID, orderID string) (*order.Order, error)
}

// Settlement is implemented by *settlement.Service.
type Settlement interface {
	CancelItem(ctx context.Context, userID, orderID, itemID, reason string) (*settlement.Result, error)
	RequestReturn(ctx context.Context, userID string, req settlement.ReturnRequest) (*settlement.Result, error)
	CancelReturn(ctx context.Context, userID, orderID, itemID string) (*settlement.Result, error)
	AdvanceItem(ctx context.Context, orderID, itemID string, status order.Status) (*settlement.Result, error)
	ReviewReturn(ctx context.Context, req settlement.ReviewRequest) (*settlement.Result, error)
	CompleteReturn(ctx context.Context, orderID, itemID string) (*settlement.Result, error)
}

// TopUps is implemented by *wallet.TopUp.
type TopUps interface {
	CreateIntent(ctx context.Context, userID string, amount decimal.Decimal) (*payment.Intent, error)
	Verify(ctx context.Context, userID string, c payment.Confirmation) (*wallet.Wallet, error)
}

// Ledger is implemented by *wallet.Ledger.
type Ledger interface {
	Balance(ctx context.Context, userID string) (*wallet.Wallet, error)
	History(ctx context.Context, userID string, limit int) ([]wallet.Transaction, error)
	Audit(ctx context.Context, userID string) (*wallet.Wallet, wallet.Totals, error)
}

// Carts is implemented by *cart.Service.
type Carts interface {
	Get(ctx context.Context, userID string) (*cart.Cart, error)
	Add(ctx context.Context, userID, productID string, qty int) (*cart.Cart, error)
	Increase(ctx context.Context, userID, productID string) (*cart.Cart, error)
	Decrease(ctx context.Context, userID, productID string) (*cart.Cart, error)
	Remove(ctx context.Context, userID, productID string) (*cart.Cart, error)
}

// Coupons is implemented by *coupon.Validator.
type Coupons interface {
	Available(ctx context.Context, userID string) ([]coupon.Coupon, error)
}

// CouponAdmin is implemented by *coupon.Admin.
type CouponAdmin interface {
	Save(ctx context.Context, c *coupon.Coupon) error
	Delete(ctx context.Context, code string) error
	IssueReferral(ctx context.Context, userID string, offer decimal.Decimal) (*coupon.Coupon, error)
}

// Reports is implemented by *report.Service.
type Reports interface {
	SalesReport(ctx context.Context, r report.Range) (*report.Sales, error)
	LedgerBook(ctx context.Context, r report.Range) (*report.Ledger, error)
}

// KeyAuthenticator is implemented by *auth.Authenticator.
type KeyAuthenticator interface {
	Authenticate(ctx context.Context, key, scope string) (*auth.APIKeyInfo, error)
}

// Deps are the services behind the routes.
type Deps struct {
	Checkout    Checkout
	Settlement  Settlement
	TopUps      TopUps
	Ledger      Ledger
	Carts       Carts
	Coupons     Coupons
	CouponAdmin CouponAdmin
	Reports     Reports
	Keys        KeyAuthenticator
	Tokens      *TokenVerifier
}

// Config holds presentation settings.
type Config struct {
	// GatewayKeyID is returned with payment intents for the client checkout.
	GatewayKeyID string
	// HistoryLimit caps wallet transactions listed by GET /api/wallet.
	HistoryLimit int
}

// Handler serves the storefront API.
type Handler struct {
	Deps
	keyID        string
	historyLimit int
	now          func() time.Time
}

// New creates a Handler.
func New(deps Deps, cfg Config) *Handler {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	return &Handler{
		Deps:         deps,
		keyID:        cfg.GatewayKeyID,
		historyLimit: cfg.HistoryLimit,
		now:          time.Now,
	}
}

// Register mounts every API route on mux under /api.
func (h *Handler) Register(mux *http.ServeMux) {
	user := func(pattern string, fn http.HandlerFunc) {
		mux.HandleFunc(pattern, h.requireUser(fn))
	}
	admin := func(pattern string, fn http.HandlerFunc) {
		mux.HandleFunc(pattern, h.requireAdmin(fn))
	}

	user("POST /api/checkout/place-order", h.placeOrder)
	user("POST /api/checkout/create-payment-intent", h.createPaymentIntent)
	user("POST /api/checkout/verify-payment", h.verifyPayment)
	user("POST /api/checkout/payment-failed", h.paymentFailed)

	user("GET /api/orders", h.listOrders)
	user("GET /api/orders/{orderId}", h.getOrder)
	user("POST /api/order/cancel", h.cancelItem)
	user("POST /api/order/return", h.requestReturn)
	user("POST /api/order/cancel-return", h.cancelReturn)
	user("POST /api/order/retry-payment/{orderId}", h.retryPayment)
	user("POST /api/order/verify-retry", h.verifyRetry)

	user("GET /api/wallet", h.getWallet)
	user("POST /api/wallet/topup-intent", h.topUpIntent)
	user("POST /api/wallet/verify-topup", h.verifyTopUp)

	user("GET /api/cart", h.getCart)
	user("POST /api/cart/items", h.addCartItem)
	user("PATCH /api/cart/items/{productId}", h.stepCartItem)
	user("DELETE /api/cart/items/{productId}", h.removeCartItem)

	user("GET /api/coupons", h.listCoupons)
	user("POST /api/coupons/apply", h.applyCoupon)

	admin("POST /api/admin/orders/{orderId}/items/{itemId}/status", h.advanceItem)
	admin("POST /api/admin/orders/{orderId}/items/{itemId}/return-review", h.reviewReturn)
	admin("POST /api/admin/orders/{orderId}/items/{itemId}/return-complete", h.completeReturn)
	admin("PUT /api/admin/coupons/{code}", h.saveCoupon)
	admin("DELETE /api/admin/coupons/{code}", h.deleteCoupon)
	admin("POST /api/admin/referrals", h.issueReferral)
	admin("GET /api/admin/reports/sales", h.salesReport)
	admin("GET /api/admin/reports/ledger", h.ledgerBook)
	admin("GET /api/admin/wallets/{userId}/audit", h.walletAudit)
}
