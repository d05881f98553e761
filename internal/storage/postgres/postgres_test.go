//go:build integration

package postgres

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/storefront/internal/domain/address"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/report"
	"github.com/xenking/storefront/internal/domain/stock"
	"github.com/xenking/storefront/internal/domain/wallet"
)

var testDB *DB

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "shop",
				"POSTGRES_PASSWORD": "shop",
				"POSTGRES_DB":       "shop",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := pg.Terminate(context.Background()); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	host, err := pg.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}
	port, err := pg.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	pool, err := NewPool(ctx, fmt.Sprintf("postgres://shop:shop@%s:%s/shop?sslmode=disable", host, port.Port()))
	if err != nil {
		log.Fatalf("pool: %v", err)
	}
	defer pool.Close()

	if err := RunMigrations(ctx, pool); err != nil {
		log.Fatalf("migrations: %v", err)
	}
	testDB = New(pool)

	return m.Run()
}

func seedProduct(t *testing.T, stockLevel int) *product.Product {
	t.Helper()
	s := NewSeeder(testDB)
	cat := &product.Category{ID: "cat-" + uuid.NewString(), Name: "Kitchen", Offer: decimal.NewFromInt(5), Listed: true}
	require.NoError(t, s.UpsertCategory(context.Background(), cat))

	p := &product.Product{
		ID:       uuid.NewString(),
		Name:     "Kettle",
		Images:   []string{"kettle.jpg"},
		Price:    decimal.NewFromInt(250),
		Discount: decimal.NewFromInt(10),
		Stock:    stockLevel,
		Category: cat,
	}
	require.NoError(t, s.UpsertProduct(context.Background(), p))
	return p
}

func TestProducts_ReadWithCategory(t *testing.T) {
	ctx := context.Background()
	p := seedProduct(t, 3)
	repo := NewProductRepository(testDB)

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Kettle", got.Name)
	assert.True(t, got.Price.Equal(decimal.NewFromInt(250)))
	require.NotNil(t, got.Category)
	assert.True(t, got.Category.Offer.Equal(decimal.NewFromInt(5)))

	_, err = repo.GetByID(ctx, "missing")
	require.ErrorIs(t, err, product.ErrNotFound)

	list, err := repo.GetByIDs(ctx, []string{p.ID, "missing"})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStock_ConcurrentDecrementNeverOversells(t *testing.T) {
	ctx := context.Background()
	p := seedProduct(t, 5)
	repo := NewProductRepository(testDB)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repo.Decrement(ctx, p.ID, 1); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, stock.ErrInsufficientStock)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, success)
	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Stock)
}

func TestCoupons_RedeemOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewCouponRepository(testDB)
	c := &coupon.Coupon{
		Code:         "SAVE" + uuid.NewString()[:6],
		Offer:        decimal.NewFromInt(10),
		MinimumPrice: decimal.NewFromInt(300),
		ExpiresAt:    time.Now().Add(time.Hour),
		Listed:       true,
	}
	require.NoError(t, repo.Upsert(ctx, c))
	require.NotEmpty(t, c.ID)

	avail, err := repo.Available(ctx, "u1", time.Now())
	require.NoError(t, err)
	assert.True(t, containsCode(avail, c.Code))

	require.NoError(t, repo.Redeem(ctx, c, "u1"))
	require.ErrorIs(t, repo.Redeem(ctx, c, "u1"), coupon.ErrAlreadyUsed)
	require.NoError(t, repo.Redeem(ctx, c, "u2"))

	avail, err = repo.Available(ctx, "u1", time.Now())
	require.NoError(t, err)
	assert.False(t, containsCode(avail, c.Code))

	require.NoError(t, repo.Delete(ctx, c.Code))
	require.ErrorIs(t, repo.Delete(ctx, c.Code), coupon.ErrNotFound)
}

func TestCoupons_ReferralConcurrentRedeem(t *testing.T) {
	ctx := context.Background()
	repo := NewCouponRepository(testDB)
	c := &coupon.Coupon{
		Code:       "REF" + uuid.NewString()[:6],
		Offer:      decimal.NewFromInt(15),
		ExpiresAt:  time.Now().Add(time.Hour),
		Listed:     true,
		Referral:   true,
		AssignedTo: "referred",
	}
	require.NoError(t, repo.Upsert(ctx, c))

	// Neither another user nor a copy claiming to be assigned to them can
	// consume it.
	require.ErrorIs(t, repo.Redeem(ctx, c, "intruder"), coupon.ErrReferralNotEligible)
	forged := *c
	forged.AssignedTo = "intruder"
	require.Error(t, repo.Redeem(ctx, &forged, "intruder"))

	got, err := repo.FindByCode(ctx, c.Code)
	require.NoError(t, err)
	require.False(t, got.Used)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repo.Redeem(ctx, got, "referred"); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, coupon.ErrReferralAlreadyUsed)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	got, err = repo.FindByCode(ctx, c.Code)
	require.NoError(t, err)
	assert.True(t, got.Used)

	avail, err := repo.Available(ctx, "referred", time.Now())
	require.NoError(t, err)
	assert.False(t, containsCode(avail, c.Code))
}

func containsCode(list []coupon.Coupon, code string) bool {
	for _, c := range list {
		if c.Code == code {
			return true
		}
	}
	return false
}

func newOrder(code string) *order.Order {
	now := time.Now().UTC().Truncate(time.Microsecond)
	o := &order.Order{
		ID:     uuid.NewString(),
		Code:   code,
		UserID: "u-" + uuid.NewString(),
		Items: []order.Item{{
			ID: uuid.NewString(), ProductID: "p1", ProductName: "Kettle",
			RegularPrice: decimal.NewFromInt(250), Price: decimal.NewFromInt(225),
			Quantity: 2, TotalPrice: decimal.NewFromInt(450), Status: order.StatusPending,
		}},
		TotalOrderPrice: decimal.NewFromInt(450),
		Discount:        decimal.Zero,
		DeliveryCharge:  decimal.NewFromInt(40),
		PaymentMethod:   order.MethodCOD,
		PaymentStatus:   order.PaymentPending,
		Status:          order.StatusPending,
		Address:         address.Address{ID: "a1", Name: "Jo", City: "Pune"},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	o.Recalculate()
	return o
}

func TestOrders_CreateInsideTransaction(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(testDB)
	code := "ORD-TEST-" + uuid.NewString()[:8]
	first := newOrder(code)
	require.NoError(t, repo.Create(ctx, first))

	// A duplicate code inside a transaction must not poison it.
	second := newOrder(code)
	err := testDB.InTx(ctx, func(ctx context.Context) error {
		err := repo.Create(ctx, second)
		require.ErrorIs(t, err, order.ErrDuplicateCode)
		second.Code = code + "-2"
		return repo.Create(ctx, second)
	})
	require.NoError(t, err)

	got, err := repo.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, code+"-2", got.Code)
	assert.Equal(t, "Pune", got.Address.City)
	require.Len(t, got.Items, 1)
	assert.True(t, got.Items[0].TotalPrice.Equal(decimal.NewFromInt(450)))
	assert.True(t, got.FinalAmount.Equal(decimal.NewFromInt(490)))
}

func TestOrders_LockUpdateAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(testDB)
	o := newOrder("ORD-LOCK-" + uuid.NewString()[:8])
	require.NoError(t, repo.Create(ctx, o))

	err := testDB.InTx(ctx, func(ctx context.Context) error {
		locked, err := repo.Lock(ctx, o.ID)
		if err != nil {
			return err
		}
		locked.Items[0].Status = order.StatusDelivered
		locked.PaymentStatus = order.PaymentSuccess
		locked.PaymentID = "pay_" + o.ID
		locked.SyncStatus()
		return repo.Update(ctx, locked)
	})
	require.NoError(t, err)

	got, err := repo.FindByPaymentID(ctx, "pay_"+o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusDelivered, got.Status)

	list, err := repo.ListByUser(ctx, o.UserID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	between, err := repo.OrdersBetween(ctx, report.Range{
		From: o.CreatedAt.Add(-time.Minute), To: o.CreatedAt.Add(time.Minute),
	}, []order.Status{order.StatusDelivered})
	require.NoError(t, err)
	assert.NotEmpty(t, between)

	_, err = repo.Get(ctx, uuid.NewString())
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestWallet_LedgerAgainstPostgres(t *testing.T) {
	ctx := context.Background()
	ledger := wallet.NewLedger(NewWalletRepository(testDB), testDB)
	user := "u-" + uuid.NewString()

	_, err := ledger.Credit(ctx, wallet.Entry{
		UserID: user, Amount: decimal.NewFromInt(300), Purpose: wallet.PurposeWalletAdd,
		Gateway: wallet.GatewayRazorpay, PaymentID: "pay_" + user,
	})
	require.NoError(t, err)

	_, err = ledger.Credit(ctx, wallet.Entry{
		UserID: user, Amount: decimal.NewFromInt(300), Purpose: wallet.PurposeWalletAdd,
		Gateway: wallet.GatewayRazorpay, PaymentID: "pay_" + user,
	})
	require.ErrorIs(t, err, wallet.ErrDuplicatePayment)

	_, err = ledger.Debit(ctx, wallet.Entry{UserID: user, Amount: decimal.NewFromInt(500), Purpose: wallet.PurposePurchase})
	require.ErrorIs(t, err, wallet.ErrInsufficientBalance)

	_, err = ledger.Debit(ctx, wallet.Entry{UserID: user, Amount: decimal.NewFromInt(120), Purpose: wallet.PurposePurchase})
	require.NoError(t, err)

	w, totals, err := ledger.Audit(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "180.00", w.Balance.StringFixed(2))
	assert.Equal(t, "120.00", w.TotalDebited.StringFixed(2))
	assert.Equal(t, "300.00", totals.Credits.StringFixed(2))

	history, err := ledger.History(ctx, user, 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}
