package product

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/apperr"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = apperr.NotFound("product_not_found", "product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID     string
	Name   string
	Images []string
	// Price is the regular catalog price before any discount.
	Price decimal.Decimal
	// Discount is the product-level discount percentage (0..100).
	Discount decimal.Decimal
	Stock    int
	Blocked  bool
	// Category is nil when the product is uncategorised.
	Category *Category
}

// Category groups products and may carry a category-wide offer percentage.
type Category struct {
	ID     string
	Name   string
	Offer  decimal.Decimal
	Listed bool
}

// Repository defines read operations for the product catalog.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}

// Index maps products by ID.
func Index(products []Product) map[string]Product {
	m := make(map[string]Product, len(products))
	for _, p := range products {
		m[p.ID] = p
	}
	return m
}
