package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/stock"
)

const (
	productColumns = `p.id, p.name, p.images, p.price, p.discount, p.stock, p.blocked,
		c.id, c.name, c.offer, c.listed`

	getProductByIDSQL = `SELECT ` + productColumns + `
		FROM products p LEFT JOIN categories c ON c.id = p.category_id
		WHERE p.id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + `
		FROM products p LEFT JOIN categories c ON c.id = p.category_id
		WHERE p.id = ANY($1)`

	decrementStockSQL = `UPDATE products SET stock = stock - $2 WHERE id = $1 AND stock >= $2`
	incrementStockSQL = `UPDATE products SET stock = stock + $2 WHERE id = $1`
)

var (
	_ product.Repository = (*ProductRepository)(nil)
	_ stock.Store        = (*ProductRepository)(nil)
)

// ProductRepository implements product.Repository and stock.Store.
type ProductRepository struct {
	db *DB
}

// NewProductRepository returns a ProductRepository that uses db.
func NewProductRepository(db *DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// GetByID returns a single product with its category.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.db.conn(ctx).Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs. Unknown IDs are
// skipped.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.db.conn(ctx).Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	list, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return list, nil
}

// Decrement subtracts qty only while enough stock is left.
func (r *ProductRepository) Decrement(ctx context.Context, productID string, qty int) error {
	tag, err := r.db.conn(ctx).Exec(ctx, decrementStockSQL, productID, qty)
	if err != nil {
		return fmt.Errorf("decrementing stock of %q: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return stock.ErrInsufficientStock
	}
	return nil
}

// Increment adds qty back to stock.
func (r *ProductRepository) Increment(ctx context.Context, productID string, qty int) error {
	if _, err := r.db.conn(ctx).Exec(ctx, incrementStockSQL, productID, qty); err != nil {
		return fmt.Errorf("incrementing stock of %q: %w", productID, err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p         product.Product
		catID     *string
		catName   *string
		catOffer  decimal.NullDecimal
		catListed *bool
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Images, &p.Price, &p.Discount, &p.Stock, &p.Blocked,
		&catID, &catName, &catOffer, &catListed,
	)
	if err != nil {
		return p, err
	}
	if catID != nil {
		p.Category = &product.Category{ID: *catID, Name: *catName, Offer: catOffer.Decimal, Listed: *catListed}
	}
	return p, nil
}
