package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/domain/coupon"
)

const (
	couponColumns = `id, code, offer, minimum_price, max_discount, expires_at, listed,
		description, referral, assigned_to, used, used_by`

	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`

	availableCouponsSQL = `SELECT ` + couponColumns + ` FROM coupons
		WHERE listed AND expires_at > $2 AND (
			(NOT referral AND NOT ($1 = ANY(used_by)))
			OR (referral AND assigned_to = $1 AND NOT used)
		)
		ORDER BY expires_at`

	redeemGeneralSQL = `UPDATE coupons SET used_by = array_append(used_by, $2)
		WHERE id = $1 AND NOT referral AND NOT ($2 = ANY(used_by))`

	redeemReferralSQL = `UPDATE coupons SET used = TRUE
		WHERE id = $1 AND referral AND assigned_to = $2 AND NOT used`

	upsertCouponSQL = `INSERT INTO coupons (id, code, offer, minimum_price, max_discount, expires_at,
			listed, description, referral, assigned_to)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (code) DO UPDATE SET
			offer = EXCLUDED.offer,
			minimum_price = EXCLUDED.minimum_price,
			max_discount = EXCLUDED.max_discount,
			expires_at = EXCLUDED.expires_at,
			listed = EXCLUDED.listed,
			description = EXCLUDED.description
		RETURNING id`

	deleteCouponSQL = `DELETE FROM coupons WHERE code = $1`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	db *DB
}

// NewCouponRepository returns a CouponRepository that uses db.
func NewCouponRepository(db *DB) *CouponRepository {
	return &CouponRepository{db: db}
}

// FindByCode looks up a coupon by its normalized code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.db.conn(ctx).Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// Redeem consumes the coupon with a conditional update, so two concurrent
// checkouts cannot both use it. A referral coupon is only consumed by the
// user it is assigned to in the database.
func (r *CouponRepository) Redeem(ctx context.Context, c *coupon.Coupon, userID string) error {
	query, conflict := redeemGeneralSQL, coupon.ErrAlreadyUsed
	if c.Referral {
		query, conflict = redeemReferralSQL, coupon.ErrReferralAlreadyUsed
		if c.AssignedTo != userID {
			conflict = coupon.ErrReferralNotEligible
		}
	}

	tag, err := r.db.conn(ctx).Exec(ctx, query, c.ID, userID)
	if err != nil {
		return fmt.Errorf("redeeming coupon %q: %w", c.Code, err)
	}
	if tag.RowsAffected() == 0 {
		return conflict
	}
	return nil
}

// Available lists listed, unexpired coupons userID has not used yet.
func (r *CouponRepository) Available(ctx context.Context, userID string, now time.Time) ([]coupon.Coupon, error) {
	rows, err := r.db.conn(ctx).Query(ctx, availableCouponsSQL, userID, now)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	list, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	return list, nil
}

// Upsert inserts c or updates the definition of the coupon with the same
// code. Usage state is never overwritten.
func (r *CouponRepository) Upsert(ctx context.Context, c *coupon.Coupon) error {
	id := c.ID
	if id == "" {
		id = uuid.NewString()
	}
	err := r.db.conn(ctx).QueryRow(ctx, upsertCouponSQL,
		id, c.Code, c.Offer, c.MinimumPrice, c.MaxDiscount, c.ExpiresAt,
		c.Listed, c.Description, c.Referral, c.AssignedTo,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("upserting coupon %q: %w", c.Code, err)
	}
	return nil
}

// Delete removes the coupon with code.
func (r *CouponRepository) Delete(ctx context.Context, code string) error {
	tag, err := r.db.conn(ctx).Exec(ctx, deleteCouponSQL, code)
	if err != nil {
		return fmt.Errorf("deleting coupon %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var c coupon.Coupon
	err := row.Scan(
		&c.ID, &c.Code, &c.Offer, &c.MinimumPrice, &c.MaxDiscount, &c.ExpiresAt, &c.Listed,
		&c.Description, &c.Referral, &c.AssignedTo, &c.Used, &c.UsedBy,
	)
	return c, err
}
