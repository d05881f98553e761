package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/report"
)

const (
	orderColumns = `id, code, user_id, items, total_order_price, discount, delivery_charge,
		final_amount, payment_method, payment_status, status, coupon_code, coupon_applied,
		coupon_minimum, address, gateway_order_id, payment_id, created_at, updated_at`

	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	getOrderSQL          = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	lockOrderSQL         = getOrderSQL + ` FOR UPDATE`
	getOrderByPaymentSQL = `SELECT ` + orderColumns + ` FROM orders WHERE payment_id = $1 AND payment_id <> ''`
	listOrdersByUserSQL  = `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`
	listOrdersBetweenSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE created_at >= $1 AND created_at < $2 AND status = ANY($3)
		ORDER BY created_at DESC`

	updateOrderSQL = `UPDATE orders SET
		items = $2, total_order_price = $3, discount = $4, delivery_charge = $5,
		final_amount = $6, payment_method = $7, payment_status = $8, status = $9,
		coupon_code = $10, coupon_applied = $11, coupon_minimum = $12,
		gateway_order_id = $13, payment_id = $14, updated_at = $15
		WHERE id = $1`

	ordersCodeKey    = "orders_code_key"
	ordersPaymentKey = "orders_payment_id_key"
)

var (
	_ order.Repository = (*OrderRepository)(nil)
	_ report.Source    = (*OrderRepository)(nil)
)

// OrderRepository implements order.Repository backed by PostgreSQL. Items
// and the address snapshot are stored as JSONB.
type OrderRepository struct {
	db *DB
}

// NewOrderRepository returns an OrderRepository that uses db.
func NewOrderRepository(db *DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts o inside a savepoint, so a duplicate code leaves the
// surrounding transaction usable for the next attempt.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}
	addr, err := json.Marshal(o.Address)
	if err != nil {
		return fmt.Errorf("marshaling order address: %w", err)
	}

	err = pgx.BeginFunc(ctx, r.db.conn(ctx), func(t pgx.Tx) error {
		_, err := t.Exec(ctx, createOrderSQL,
			o.ID, o.Code, o.UserID, items, o.TotalOrderPrice, o.Discount, o.DeliveryCharge,
			o.FinalAmount, o.PaymentMethod, o.PaymentStatus, o.Status, o.CouponCode, o.CouponApplied,
			o.CouponMinimum, addr, o.GatewayOrderID, o.PaymentID, o.CreatedAt, o.UpdatedAt,
		)
		return err
	})
	switch {
	case err == nil:
		return nil
	case violates(err, ordersCodeKey):
		return order.ErrDuplicateCode
	case violates(err, ordersPaymentKey):
		return order.ErrDuplicatePayment
	default:
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
}

// Get returns the order with id.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	return r.one(ctx, getOrderSQL, id)
}

// Lock returns the order and holds its row lock until the transaction in
// ctx ends.
func (r *OrderRepository) Lock(ctx context.Context, id string) (*order.Order, error) {
	return r.one(ctx, lockOrderSQL, id)
}

// FindByPaymentID returns the order paid with paymentID.
func (r *OrderRepository) FindByPaymentID(ctx context.Context, paymentID string) (*order.Order, error) {
	return r.one(ctx, getOrderByPaymentSQL, paymentID)
}

// Update stores the mutable state of o.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}

	tag, err := r.db.conn(ctx).Exec(ctx, updateOrderSQL,
		o.ID, items, o.TotalOrderPrice, o.Discount, o.DeliveryCharge,
		o.FinalAmount, o.PaymentMethod, o.PaymentStatus, o.Status,
		o.CouponCode, o.CouponApplied, o.CouponMinimum,
		o.GatewayOrderID, o.PaymentID, o.UpdatedAt,
	)
	if err != nil {
		if violates(err, ordersPaymentKey) {
			return order.ErrDuplicatePayment
		}
		return fmt.Errorf("updating order %q: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	return r.many(ctx, listOrdersByUserSQL, userID)
}

// OrdersBetween returns orders created in rng with one of statuses.
func (r *OrderRepository) OrdersBetween(ctx context.Context, rng report.Range, statuses []order.Status) ([]order.Order, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	return r.many(ctx, listOrdersBetweenSQL, rng.From, rng.To, names)
}

func (r *OrderRepository) one(ctx context.Context, query string, args ...any) (*order.Order, error) {
	rows, err := r.db.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("getting order: %w", err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order: %w", err)
	}
	return &o, nil
}

func (r *OrderRepository) many(ctx context.Context, query string, args ...any) ([]order.Order, error) {
	rows, err := r.db.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	list, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return list, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o     order.Order
		items []byte
		addr  []byte
	)
	err := row.Scan(
		&o.ID, &o.Code, &o.UserID, &items, &o.TotalOrderPrice, &o.Discount, &o.DeliveryCharge,
		&o.FinalAmount, &o.PaymentMethod, &o.PaymentStatus, &o.Status, &o.CouponCode, &o.CouponApplied,
		&o.CouponMinimum, &addr, &o.GatewayOrderID, &o.PaymentID, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return o, fmt.Errorf("unmarshaling order items: %w", err)
	}
	if err := json.Unmarshal(addr, &o.Address); err != nil {
		return o, fmt.Errorf("unmarshaling order address: %w", err)
	}
	return o, nil
}
