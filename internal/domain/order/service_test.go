package order

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/address"
	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/event"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/stock"
	"github.com/xenking/storefront/internal/domain/tx"
	"github.com/xenking/storefront/internal/domain/wallet"
)

// --- Mock implementations ---

type mockProducts struct {
	byID map[string]*product.Product
}

func (m *mockProducts) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockProducts) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

// Decrement and Increment make mockProducts the stock store as well.
func (m *mockProducts) Decrement(_ context.Context, id string, qty int) error {
	p, ok := m.byID[id]
	if !ok || p.Stock < qty {
		return stock.ErrInsufficientStock
	}
	p.Stock -= qty
	return nil
}

func (m *mockProducts) Increment(_ context.Context, id string, qty int) error {
	m.byID[id].Stock += qty
	return nil
}

type memCarts struct {
	carts   map[string]*cart.Cart
	cleared []string
}

func (m *memCarts) Get(_ context.Context, userID string) (*cart.Cart, error) {
	if c, ok := m.carts[userID]; ok {
		return &cart.Cart{UserID: userID, Items: append([]cart.Item(nil), c.Items...)}, nil
	}
	return &cart.Cart{UserID: userID}, nil
}

func (m *memCarts) SetQuantity(context.Context, string, string, int) error { return nil }
func (m *memCarts) Remove(context.Context, string, string) error           { return nil }

func (m *memCarts) Clear(_ context.Context, userID string) error {
	delete(m.carts, userID)
	m.cleared = append(m.cleared, userID)
	return nil
}

type mockAddresses struct{}

func (mockAddresses) Find(_ context.Context, userID, id string) (*address.Address, error) {
	if id != "addr1" {
		return nil, address.ErrNotFound
	}
	return &address.Address{ID: id, UserID: userID, Name: "Asha", City: "Pune", Pincode: "411001"}, nil
}

type memCoupons struct {
	byCode map[string]*coupon.Coupon
}

func (m *memCoupons) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	c, ok := m.byCode[code]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memCoupons) Redeem(_ context.Context, c *coupon.Coupon, userID string) error {
	stored := m.byCode[c.Code]
	if stored.Referral {
		if stored.Used {
			return coupon.ErrReferralAlreadyUsed
		}
		stored.Used = true
		return nil
	}
	if stored.UsedByUser(userID) {
		return coupon.ErrAlreadyUsed
	}
	stored.UsedBy = append(stored.UsedBy, userID)
	return nil
}

func (m *memCoupons) Available(context.Context, string, time.Time) ([]coupon.Coupon, error) {
	return nil, nil
}
func (m *memCoupons) Upsert(context.Context, *coupon.Coupon) error { return nil }
func (m *memCoupons) Delete(context.Context, string) error         { return nil }

type memWallets struct {
	balance map[string]decimal.Decimal
	txs     []wallet.Transaction
}

func (m *memWallets) Get(_ context.Context, userID string) (*wallet.Wallet, error) {
	return &wallet.Wallet{UserID: userID, Balance: m.balance[userID]}, nil
}

func (m *memWallets) Increment(_ context.Context, userID string, amount decimal.Decimal, _ bool) (decimal.Decimal, error) {
	m.balance[userID] = m.balance[userID].Add(amount)
	return m.balance[userID], nil
}

func (m *memWallets) Decrement(_ context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if m.balance[userID].LessThan(amount) {
		return decimal.Zero, wallet.ErrInsufficientBalance
	}
	m.balance[userID] = m.balance[userID].Sub(amount)
	return m.balance[userID], nil
}

func (m *memWallets) Append(_ context.Context, t *wallet.Transaction) error {
	for _, e := range m.txs {
		if t.PaymentID != "" && e.PaymentID == t.PaymentID && e.Purpose == t.Purpose {
			return wallet.ErrDuplicatePayment
		}
	}
	m.txs = append(m.txs, *t)
	return nil
}

func (m *memWallets) FindByPayment(_ context.Context, paymentID string, purpose wallet.Purpose) (*wallet.Transaction, error) {
	for _, t := range m.txs {
		if t.PaymentID == paymentID && t.Purpose == purpose {
			return &t, nil
		}
	}
	return nil, wallet.ErrTransactionNotFound
}

func (m *memWallets) Transactions(context.Context, string, int) ([]wallet.Transaction, error) {
	return m.txs, nil
}

func (m *memWallets) Totals(context.Context, string) (wallet.Totals, error) {
	return wallet.Totals{}, nil
}

type memOrders struct {
	byID       map[string]*Order
	collisions int
}

func (m *memOrders) Create(_ context.Context, o *Order) error {
	if m.collisions > 0 {
		m.collisions--
		return ErrDuplicateCode
	}
	for _, e := range m.byID {
		if o.PaymentID != "" && e.PaymentID == o.PaymentID {
			return ErrDuplicatePayment
		}
	}
	cp := *o
	cp.Items = append([]Item(nil), o.Items...)
	m.byID[o.ID] = &cp
	return nil
}

func (m *memOrders) Get(_ context.Context, id string) (*Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	cp.Items = append([]Item(nil), o.Items...)
	return &cp, nil
}

func (m *memOrders) Lock(ctx context.Context, id string) (*Order, error) { return m.Get(ctx, id) }

func (m *memOrders) FindByPaymentID(ctx context.Context, paymentID string) (*Order, error) {
	for id, o := range m.byID {
		if o.PaymentID == paymentID {
			return m.Get(ctx, id)
		}
	}
	return nil, ErrNotFound
}

func (m *memOrders) Update(_ context.Context, o *Order) error {
	cp := *o
	cp.Items = append([]Item(nil), o.Items...)
	m.byID[o.ID] = &cp
	return nil
}

func (m *memOrders) ListByUser(_ context.Context, userID string) ([]Order, error) {
	var out []Order
	for _, o := range m.byID {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

type memIntents struct{ m map[string]*payment.Intent }

func (s *memIntents) Save(_ context.Context, i *payment.Intent, _ time.Duration) error {
	s.m[i.ID] = i
	return nil
}

func (s *memIntents) Get(_ context.Context, id string) (*payment.Intent, error) {
	i, ok := s.m[id]
	if !ok {
		return nil, payment.ErrIntentNotFound
	}
	return i, nil
}

func (s *memIntents) Delete(_ context.Context, id string) error {
	delete(s.m, id)
	return nil
}

type mockGateway struct{ n int }

func (g *mockGateway) CreateOrder(_ context.Context, req payment.CreateOrderRequest) (*payment.GatewayOrder, error) {
	g.n++
	id := "order_" + string(rune('a'+g.n-1))
	return &payment.GatewayOrder{ID: id, Amount: req.Amount, Currency: req.Currency, Receipt: req.Receipt}, nil
}

type recordingPublisher struct{ events []event.Event }

func (r *recordingPublisher) Publish(_ context.Context, events ...event.Event) error {
	r.events = append(r.events, events...)
	return nil
}

// --- Fixture ---

type fixture struct {
	svc      *Service
	products *mockProducts
	carts    *memCarts
	coupons  *memCoupons
	wallets  *memWallets
	orders   *memOrders
	intents  *memIntents
	signer   *payment.Signer
	events   *recordingPublisher
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		products: &mockProducts{byID: map[string]*product.Product{
			"p1": {ID: "p1", Name: "Kettle", Price: dec("250"), Stock: 10},
			"p2": {ID: "p2", Name: "Toaster", Price: dec("150"), Stock: 1},
			"p3": {
				ID: "p3", Name: "Blender", Price: dec("600"), Discount: dec("10"), Stock: 5,
				Category: &product.Category{ID: "c1", Name: "Kitchen", Offer: dec("5"), Listed: true},
			},
			"p4": {ID: "p4", Name: "Grinder", Price: dec("210"), Stock: 3},
		}},
		carts: &memCarts{carts: map[string]*cart.Cart{}},
		coupons: &memCoupons{byCode: map[string]*coupon.Coupon{
			"SAVE10": {
				Code: "SAVE10", Offer: dec("10"), MinimumPrice: dec("300"), MaxDiscount: dec("100"),
				ExpiresAt: time.Now().Add(24 * time.Hour), Listed: true,
			},
		}},
		wallets: &memWallets{balance: map[string]decimal.Decimal{}},
		orders:  &memOrders{byID: map[string]*Order{}},
		intents: &memIntents{m: map[string]*payment.Intent{}},
		signer:  payment.NewSigner("secret"),
		events:  &recordingPublisher{},
	}

	validator := coupon.NewValidator(f.coupons)
	metrics, err := NewMetrics(nil)
	require.NoError(t, err)

	f.svc = NewService(Deps{
		Orders:    f.orders,
		Carts:     f.carts,
		Addresses: mockAddresses{},
		Assembler: NewAssembler(f.products, validator, pricing.DefaultDeliveryPolicy()),
		Coupons:   validator,
		Stock:     stock.NewReconciler(f.products),
		Ledger:    wallet.NewLedger(f.wallets, tx.Direct{}),
		Payments:  payment.NewService(&mockGateway{}, f.intents, f.signer, payment.Config{}),
		Tx:        tx.Direct{},
		Events:    f.events,
		Metrics:   metrics,
	})
	f.svc.now = func() time.Time { return time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC) }
	return f
}

func (f *fixture) fillCart(userID string, items ...cart.Item) {
	f.carts.carts[userID] = &cart.Cart{UserID: userID, Items: items}
}

func (f *fixture) confirm(intentID, paymentID string) payment.Confirmation {
	return payment.Confirmation{IntentID: intentID, PaymentID: paymentID, Signature: f.signer.Sign(intentID, paymentID)}
}

// --- Tests ---

func TestPlaceOrder_COD(t *testing.T) {
	f := newFixture(t)
	f.fillCart("u1", cart.Item{ProductID: "p1", Quantity: 1}, cart.Item{ProductID: "p2", Quantity: 1})

	o, err := f.svc.PlaceOrder(context.Background(), PlaceRequest{
		UserID: "u1", AddressID: "addr1", PaymentMethod: MethodCOD,
	})
	require.NoError(t, err)

	assert.Equal(t, "400.00", o.TotalOrderPrice.StringFixed(2))
	assert.Equal(t, "40.00", o.DeliveryCharge.StringFixed(2))
	assert.Equal(t, "440.00", o.FinalAmount.StringFixed(2))
	assert.Equal(t, PaymentPending, o.PaymentStatus)
	assert.Equal(t, StatusPending, o.Status)
	assert.Regexp(t, `^ORD-240309-\d{4}$`, o.Code)
	assert.Equal(t, "Pune", o.Address.City)
	require.Len(t, o.Items, 2)
	assert.Equal(t, "Kettle", o.Items[0].ProductName)

	assert.Equal(t, 9, f.products.byID["p1"].Stock)
	assert.Equal(t, 0, f.products.byID["p2"].Stock)
	assert.Equal(t, []string{"u1"}, f.carts.cleared)
	require.Len(t, f.events.events, 1)
	assert.Equal(t, event.OrderPlaced, f.events.events[0].Type)
	assert.Empty(t, f.wallets.txs)
}

func TestPlaceOrder_MaxDiscountFreeDelivery(t *testing.T) {
	f := newFixture(t)
	f.fillCart("u1", cart.Item{ProductID: "p3", Quantity: 1})

	o, err := f.svc.PlaceOrder(context.Background(), PlaceRequest{
		UserID: "u1", AddressID: "addr1", PaymentMethod: MethodCOD,
	})
	require.NoError(t, err)

	assert.True(t, dec("10").Equal(o.Items[0].Discount))
	assert.Equal(t, "540.00", o.TotalOrderPrice.StringFixed(2))
	assert.True(t, o.DeliveryCharge.IsZero())
	assert.Equal(t, "540.00", o.FinalAmount.StringFixed(2))
}

func TestPlaceOrder_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  PlaceRequest
	}{
		{name: "no address", req: PlaceRequest{UserID: "u1", PaymentMethod: MethodCOD}},
		{name: "unknown method", req: PlaceRequest{UserID: "u1", AddressID: "addr1", PaymentMethod: "card"}},
		{name: "online", req: PlaceRequest{UserID: "u1", AddressID: "addr1", PaymentMethod: MethodOnline}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.PlaceOrder(ctx, tt.req)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}

	_, err := f.svc.PlaceOrder(ctx, PlaceRequest{UserID: "u1", AddressID: "addr1", PaymentMethod: MethodCOD})
	require.ErrorIs(t, err, cart.ErrEmpty)
}

func TestPlaceOrder_InsufficientStockNamesProduct(t *testing.T) {
	f := newFixture(t)
	f.fillCart("u1", cart.Item{ProductID: "p1", Quantity: 1}, cart.Item{ProductID: "p2", Quantity: 2})

	_, err := f.svc.PlaceOrder(context.Background(), PlaceRequest{
		UserID: "u1", AddressID: "addr1", PaymentMethod: MethodCOD,
	})
	var insufficient *stock.InsufficientError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "Toaster", insufficient.Name)
	assert.Equal(t, 10, f.products.byID["p1"].Stock)
	assert.Empty(t, f.orders.byID)
}

func TestPlaceOrder_WalletInsufficientBalance(t *testing.T) {
	f := newFixture(t)
	f.wallets.balance["u1"] = dec("200")
	// 210 plus 40 delivery.
	f.fillCart("u1", cart.Item{ProductID: "p4", Quantity: 1})

	_, err := f.svc.PlaceOrder(context.Background(), PlaceRequest{
		UserID: "u1", AddressID: "addr1", PaymentMethod: MethodWallet,
	})
	require.ErrorIs(t, err, wallet.ErrInsufficientBalance)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	assert.Equal(t, 3, f.products.byID["p4"].Stock)
	assert.True(t, dec("200").Equal(f.wallets.balance["u1"]))
	assert.Empty(t, f.wallets.txs)
	assert.Empty(t, f.orders.byID)
	assert.Empty(t, f.carts.cleared)
}

func TestPlaceOrder_WalletDebitsAtomically(t *testing.T) {
	f := newFixture(t)
	f.wallets.balance["u1"] = dec("1000")
	f.fillCart("u1", cart.Item{ProductID: "p1", Quantity: 2})

	o, err := f.svc.PlaceOrder(context.Background(), PlaceRequest{
		UserID: "u1", AddressID: "addr1", PaymentMethod: MethodWallet,
	})
	require.NoError(t, err)

	assert.Equal(t, PaymentSuccess, o.PaymentStatus)
	// A 500 subtotal is not above the free delivery threshold.
	assert.Equal(t, "540.00", o.FinalAmount.StringFixed(2))
	require.Len(t, f.wallets.txs, 1)
	tr := f.wallets.txs[0]
	assert.Equal(t, wallet.Debit, tr.Type)
	assert.Equal(t, wallet.PurposePurchase, tr.Purpose)
	assert.Equal(t, []string{o.ID}, tr.OrderIDs)
	assert.True(t, dec("1000").Sub(o.FinalAmount).Equal(f.wallets.balance["u1"]))
}

func TestPlaceOrder_CouponSingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := PlaceRequest{UserID: "u1", AddressID: "addr1", PaymentMethod: MethodCOD, CouponCode: "save10"}

	f.fillCart("u1", cart.Item{ProductID: "p1", Quantity: 2})
	o, err := f.svc.PlaceOrder(ctx, req)
	require.NoError(t, err)
	assert.True(t, o.CouponApplied)
	assert.Equal(t, "SAVE10", o.CouponCode)
	assert.Equal(t, "50.00", o.Discount.StringFixed(2))
	assert.True(t, dec("300").Equal(o.CouponMinimum))
	assert.Equal(t, []string{"u1"}, f.coupons.byCode["SAVE10"].UsedBy)

	f.fillCart("u1", cart.Item{ProductID: "p1", Quantity: 2})
	_, err = f.svc.PlaceOrder(ctx, req)
	require.ErrorIs(t, err, coupon.ErrAlreadyUsed)
	assert.Equal(t, 8, f.products.byID["p1"].Stock)
}

func TestPlaceOrder_RetriesCodeCollisions(t *testing.T) {
	f := newFixture(t)
	f.orders.collisions = 2
	f.fillCart("u1", cart.Item{ProductID: "p1", Quantity: 1})

	o, err := f.svc.PlaceOrder(context.Background(), PlaceRequest{UserID: "u1", AddressID: "addr1", PaymentMethod: MethodCOD})
	require.NoError(t, err)
	assert.Contains(t, f.orders.byID, o.ID)

	f.orders.collisions = maxCodeAttempts
	f.fillCart("u1", cart.Item{ProductID: "p1", Quantity: 1})
	_, err = f.svc.PlaceOrder(context.Background(), PlaceRequest{UserID: "u1", AddressID: "addr1", PaymentMethod: MethodCOD})
	require.ErrorIs(t, err, ErrDuplicateCode)
}

func TestOnlineCheckout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fillCart("u1", cart.Item{ProductID: "p1", Quantity: 1})

	intent, err := f.svc.CreatePaymentIntent(ctx, "u1", "addr1", "")
	require.NoError(t, err)
	assert.Equal(t, "290.00", intent.Amount.StringFixed(2))

	_, err = f.svc.VerifyPayment(ctx, "u1", payment.Confirmation{IntentID: intent.ID, PaymentID: "pay_1", Signature: "00"})
	require.ErrorIs(t, err, payment.ErrSignatureInvalid)
	assert.Empty(t, f.orders.byID)

	conf := f.confirm(intent.ID, "pay_1")
	o, err := f.svc.VerifyPayment(ctx, "u1", conf)
	require.NoError(t, err)
	assert.Equal(t, MethodOnline, o.PaymentMethod)
	assert.Equal(t, PaymentSuccess, o.PaymentStatus)
	assert.Equal(t, "pay_1", o.PaymentID)
	assert.Equal(t, 9, f.products.byID["p1"].Stock)

	require.Len(t, f.wallets.txs, 1)
	assert.False(t, f.wallets.txs[0].AffectsBalance)
	assert.True(t, f.wallets.balance["u1"].IsZero())
	assert.NotContains(t, f.intents.m, intent.ID)
}

func TestVerifyPayment_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fillCart("u1", cart.Item{ProductID: "p1", Quantity: 1})

	intent, err := f.svc.CreatePaymentIntent(ctx, "u1", "addr1", "")
	require.NoError(t, err)
	conf := f.confirm(intent.ID, "pay_1")

	first, err := f.svc.VerifyPayment(ctx, "u1", conf)
	require.NoError(t, err)
	require.NotContains(t, f.intents.m, intent.ID)

	second, err := f.svc.VerifyPayment(ctx, "u1", conf)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, f.orders.byID, 1)
	assert.Len(t, f.wallets.txs, 1)
	assert.Equal(t, 9, f.products.byID["p1"].Stock)

	// A forged confirmation for the same payment is still rejected.
	forged := payment.Confirmation{IntentID: intent.ID, PaymentID: "pay_1", Signature: f.signer.Sign(intent.ID, "pay_2")}
	_, err = f.svc.VerifyPayment(ctx, "u1", forged)
	require.ErrorIs(t, err, payment.ErrSignatureInvalid)

	// Another user cannot claim the order through the payment.
	_, err = f.svc.VerifyPayment(ctx, "u2", conf)
	require.ErrorIs(t, err, payment.ErrIntentNotFound)
}

func TestVerifyPayment_CapturedAfterRecordedFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fillCart("u1", cart.Item{ProductID: "p1", Quantity: 1})

	intent, err := f.svc.CreatePaymentIntent(ctx, "u1", "addr1", "")
	require.NoError(t, err)

	failed, err := f.svc.RecordFailedPayment(ctx, "u1", intent.ID)
	require.NoError(t, err)
	require.Contains(t, f.intents.m, intent.ID)

	// The gateway captured the payment after all. The cart is gone, so the
	// captured amount goes to the wallet.
	_, err = f.svc.VerifyPayment(ctx, "u1", f.confirm(intent.ID, "pay_late"))
	require.ErrorIs(t, err, cart.ErrEmpty)

	require.Len(t, f.wallets.txs, 1)
	assert.Equal(t, wallet.PurposeRefund, f.wallets.txs[0].Purpose)
	assert.Equal(t, "pay_late", f.wallets.txs[0].PaymentID)
	assert.True(t, intent.Amount.Equal(f.wallets.balance["u1"]))
	assert.NotContains(t, f.intents.m, intent.ID)
	assert.Equal(t, PaymentFailed, f.orders.byID[failed.ID].PaymentStatus)
	assert.Equal(t, 10, f.products.byID["p1"].Stock)
}

func TestVerifyPayment_CompensatesWhenCommitFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fillCart("u1", cart.Item{ProductID: "p2", Quantity: 1})

	intent, err := f.svc.CreatePaymentIntent(ctx, "u1", "addr1", "")
	require.NoError(t, err)

	// Sold out while the customer was paying.
	f.products.byID["p2"].Stock = 0

	_, err = f.svc.VerifyPayment(ctx, "u1", f.confirm(intent.ID, "pay_9"))
	require.ErrorIs(t, err, stock.ErrInsufficientStock)
	assert.Empty(t, f.orders.byID)

	require.Len(t, f.wallets.txs, 1)
	tr := f.wallets.txs[0]
	assert.Equal(t, wallet.Credit, tr.Type)
	assert.Equal(t, wallet.PurposeRefund, tr.Purpose)
	assert.Equal(t, "pay_9", tr.PaymentID)
	assert.True(t, intent.Amount.Equal(f.wallets.balance["u1"]))
	assert.NotContains(t, f.intents.m, intent.ID)
}

func TestVerifyPayment_AmountChanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fillCart("u1", cart.Item{ProductID: "p1", Quantity: 1})

	intent, err := f.svc.CreatePaymentIntent(ctx, "u1", "addr1", "")
	require.NoError(t, err)
	f.fillCart("u1", cart.Item{ProductID: "p1", Quantity: 3})

	_, err = f.svc.VerifyPayment(ctx, "u1", f.confirm(intent.ID, "pay_2"))
	require.ErrorIs(t, err, ErrAmountChanged)
	assert.True(t, intent.Amount.Equal(f.wallets.balance["u1"]))
	assert.Equal(t, 10, f.products.byID["p1"].Stock)
}

func TestFailedPaymentRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fillCart("u1", cart.Item{ProductID: "p1", Quantity: 2})

	intent, err := f.svc.CreatePaymentIntent(ctx, "u1", "addr1", "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, "490.00", intent.Amount.StringFixed(2))

	failed, err := f.svc.RecordFailedPayment(ctx, "u1", intent.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Equal(t, PaymentFailed, failed.PaymentStatus)
	assert.True(t, failed.Discount.IsZero())
	assert.False(t, failed.CouponApplied)
	assert.Equal(t, "540.00", failed.FinalAmount.StringFixed(2))
	for _, it := range failed.Items {
		assert.Equal(t, StatusFailed, it.Status)
	}
	assert.Equal(t, 10, f.products.byID["p1"].Stock)
	assert.Empty(t, f.coupons.byCode["SAVE10"].UsedBy)

	_, err = f.svc.RetryPayment(ctx, "u2", failed.ID)
	require.ErrorIs(t, err, ErrNotFound)

	retry, err := f.svc.RetryPayment(ctx, "u1", failed.ID)
	require.NoError(t, err)
	assert.True(t, failed.FinalAmount.Equal(retry.Amount))
	assert.Equal(t, failed.ID, retry.OrderID)

	_, err = f.svc.VerifyRetry(ctx, "u1", "other", f.confirm(retry.ID, "pay_r"))
	require.ErrorIs(t, err, payment.ErrIntentNotFound)

	paid, err := f.svc.VerifyRetry(ctx, "u1", failed.ID, f.confirm(retry.ID, "pay_r"))
	require.NoError(t, err)
	assert.Equal(t, PaymentSuccess, paid.PaymentStatus)
	assert.Equal(t, StatusPending, paid.Status)
	for _, it := range paid.Items {
		assert.Equal(t, StatusPending, it.Status)
	}
	assert.Equal(t, 8, f.products.byID["p1"].Stock)
	require.NotContains(t, f.intents.m, retry.ID)

	again, err := f.svc.VerifyRetry(ctx, "u1", failed.ID, f.confirm(retry.ID, "pay_r"))
	require.NoError(t, err)
	assert.Equal(t, paid.ID, again.ID)
	assert.Equal(t, PaymentSuccess, again.PaymentStatus)
	assert.Equal(t, 8, f.products.byID["p1"].Stock)

	_, err = f.svc.RetryPayment(ctx, "u1", failed.ID)
	require.ErrorIs(t, err, ErrNotRetryable)

	types := make([]event.Type, 0, len(f.events.events))
	for _, e := range f.events.events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []event.Type{event.OrderPaymentFailed, event.OrderPaymentRetry}, types)
}

func TestOrderOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fillCart("u1", cart.Item{ProductID: "p1", Quantity: 1})

	o, err := f.svc.PlaceOrder(ctx, PlaceRequest{UserID: "u1", AddressID: "addr1", PaymentMethod: MethodCOD})
	require.NoError(t, err)

	got, err := f.svc.Order(ctx, "u1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Code, got.Code)

	_, err = f.svc.Order(ctx, "u2", o.ID)
	require.True(t, errors.Is(err, ErrNotFound))

	list, err := f.svc.Orders(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
