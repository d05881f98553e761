package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/domain/address"
	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/product"
)

const (
	upsertCategorySQL = `INSERT INTO categories (id, name, offer, listed)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, offer = EXCLUDED.offer, listed = EXCLUDED.listed`

	upsertProductSQL = `INSERT INTO products (id, name, images, price, discount, stock, blocked, category_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			images = EXCLUDED.images,
			price = EXCLUDED.price,
			discount = EXCLUDED.discount,
			stock = EXCLUDED.stock,
			blocked = EXCLUDED.blocked,
			category_id = EXCLUDED.category_id`

	upsertAddressSQL = `INSERT INTO addresses (id, user_id, name, phone, line1, line2, city, state, pincode, landmark)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, phone = EXCLUDED.phone, line1 = EXCLUDED.line1, line2 = EXCLUDED.line2,
			city = EXCLUDED.city, state = EXCLUDED.state, pincode = EXCLUDED.pincode, landmark = EXCLUDED.landmark`

	upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, scopes, active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (id) DO UPDATE SET key_hash = EXCLUDED.key_hash, name = EXCLUDED.name,
			scopes = EXCLUDED.scopes, active = TRUE`
)

// Seeder loads catalog and fixture data. It backs cmd/seed-db.
type Seeder struct {
	db *DB
}

// NewSeeder returns a Seeder that uses db.
func NewSeeder(db *DB) *Seeder {
	return &Seeder{db: db}
}

// UpsertCategory inserts or updates c.
func (s *Seeder) UpsertCategory(ctx context.Context, c *product.Category) error {
	if _, err := s.db.conn(ctx).Exec(ctx, upsertCategorySQL, c.ID, c.Name, c.Offer, c.Listed); err != nil {
		return fmt.Errorf("upserting category %q: %w", c.ID, err)
	}
	return nil
}

// UpsertProduct inserts or updates p. Its category must exist.
func (s *Seeder) UpsertProduct(ctx context.Context, p *product.Product) error {
	var categoryID *string
	if p.Category != nil {
		categoryID = &p.Category.ID
	}
	images := p.Images
	if images == nil {
		images = []string{}
	}
	_, err := s.db.conn(ctx).Exec(ctx, upsertProductSQL,
		p.ID, p.Name, images, p.Price, p.Discount, p.Stock, p.Blocked, categoryID,
	)
	if err != nil {
		return fmt.Errorf("upserting product %q: %w", p.ID, err)
	}
	return nil
}

// UpsertAddress inserts or updates a.
func (s *Seeder) UpsertAddress(ctx context.Context, a *address.Address) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := s.db.conn(ctx).Exec(ctx, upsertAddressSQL,
		a.ID, a.UserID, a.Name, a.Phone, a.Line1, a.Line2, a.City, a.State, a.Pincode, a.Landmark,
	)
	if err != nil {
		return fmt.Errorf("upserting address %q: %w", a.ID, err)
	}
	return nil
}

// UpsertAPIKey stores info as an active key.
func (s *Seeder) UpsertAPIKey(ctx context.Context, info *auth.APIKeyInfo) error {
	if _, err := s.db.conn(ctx).Exec(ctx, upsertAPIKeySQL, info.ID, info.KeyHash, info.Name, info.Scopes); err != nil {
		return fmt.Errorf("upserting api key %q: %w", info.ID, err)
	}
	return nil
}

// UpsertCoupons writes coupons in one round trip. Usage state of existing
// coupons is kept.
func (s *Seeder) UpsertCoupons(ctx context.Context, coupons []coupon.Coupon) error {
	if len(coupons) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i := range coupons {
		c := &coupons[i]
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		batch.Queue(upsertCouponSQL,
			c.ID, c.Code, c.Offer, c.MinimumPrice, c.MaxDiscount, c.ExpiresAt,
			c.Listed, c.Description, c.Referral, c.AssignedTo,
		)
	}

	results := s.db.conn(ctx).SendBatch(ctx, batch)
	defer results.Close()
	for i := range coupons {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upserting coupon %q: %w", coupons[i].Code, err)
		}
	}
	return nil
}
