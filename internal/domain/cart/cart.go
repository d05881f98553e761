// Package cart manages per-user shopping carts that feed checkout.
package cart

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/product"
)

// DefaultMaxQuantity is the largest quantity of a single product per cart.
const DefaultMaxQuantity = 5

var (
	// ErrEmpty is returned when checkout is attempted with an empty cart.
	ErrEmpty = apperr.Validation("cart_empty", "cart is empty")
	// ErrItemNotFound is returned when a cart line does not exist.
	ErrItemNotFound = apperr.NotFound("cart_item_not_found", "product is not in the cart")
	// ErrQuantityLimit is returned when a line would exceed the per-product limit.
	ErrQuantityLimit = apperr.Conflict("cart_quantity_limit", "maximum quantity per product reached")
	// ErrOutOfStock is returned when a line would exceed available stock.
	ErrOutOfStock = apperr.Conflict("cart_out_of_stock", "not enough stock for requested quantity")
	// ErrUnavailable is returned for blocked products.
	ErrUnavailable = apperr.Conflict("product_unavailable", "product is unavailable")
)

// Item is a product quantity in the cart.
type Item struct {
	ProductID string
	Quantity  int
}

// Cart is the current content of a user's cart.
type Cart struct {
	UserID string
	Items  []Item
}

// Empty reports whether the cart has no lines.
func (c *Cart) Empty() bool { return c == nil || len(c.Items) == 0 }

// Quantity returns the quantity of productID, or 0.
func (c *Cart) Quantity(productID string) int {
	for _, it := range c.Items {
		if it.ProductID == productID {
			return it.Quantity
		}
	}
	return 0
}

// ProductIDs returns the product IDs in cart order.
func (c *Cart) ProductIDs() []string {
	ids := make([]string, len(c.Items))
	for i, it := range c.Items {
		ids[i] = it.ProductID
	}
	return ids
}

// Repository stores carts.
type Repository interface {
	// Get returns the user's cart. A user without a cart gets an empty one.
	Get(ctx context.Context, userID string) (*Cart, error)
	SetQuantity(ctx context.Context, userID, productID string, qty int) error
	Remove(ctx context.Context, userID, productID string) error
	Clear(ctx context.Context, userID string) error
}

// Service applies cart rules on top of a Repository.
type Service struct {
	repo        Repository
	products    product.Repository
	maxQuantity int
}

// NewService creates a cart Service. maxQuantity <= 0 selects DefaultMaxQuantity.
func NewService(repo Repository, products product.Repository, maxQuantity int) *Service {
	if maxQuantity <= 0 {
		maxQuantity = DefaultMaxQuantity
	}
	return &Service{repo: repo, products: products, maxQuantity: maxQuantity}
}

// Get returns the user's cart.
func (s *Service) Get(ctx context.Context, userID string) (*Cart, error) {
	c, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	return c, nil
}

// Add increases the quantity of productID by qty.
func (s *Service) Add(ctx context.Context, userID, productID string, qty int) (*Cart, error) {
	if qty <= 0 {
		return nil, apperr.Invalid("quantity", "must be greater than 0")
	}
	c, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.set(ctx, userID, productID, c.Quantity(productID)+qty); err != nil {
		return nil, err
	}
	return s.Get(ctx, userID)
}

// Increase adds one unit of an existing line.
func (s *Service) Increase(ctx context.Context, userID, productID string) (*Cart, error) {
	return s.step(ctx, userID, productID, 1)
}

// Decrease removes one unit of an existing line. A line reaching zero is removed.
func (s *Service) Decrease(ctx context.Context, userID, productID string) (*Cart, error) {
	return s.step(ctx, userID, productID, -1)
}

// Remove deletes a line.
func (s *Service) Remove(ctx context.Context, userID, productID string) (*Cart, error) {
	if err := s.repo.Remove(ctx, userID, productID); err != nil {
		return nil, errors.Wrap(err, "remove cart item")
	}
	return s.Get(ctx, userID)
}

// Clear empties the cart.
func (s *Service) Clear(ctx context.Context, userID string) error {
	if err := s.repo.Clear(ctx, userID); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}

func (s *Service) step(ctx context.Context, userID, productID string, delta int) (*Cart, error) {
	c, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	current := c.Quantity(productID)
	if current == 0 {
		return nil, ErrItemNotFound
	}
	next := current + delta
	if next <= 0 {
		return s.Remove(ctx, userID, productID)
	}
	if delta < 0 {
		if err := s.repo.SetQuantity(ctx, userID, productID, next); err != nil {
			return nil, errors.Wrap(err, "update cart item")
		}
		return s.Get(ctx, userID)
	}
	if err := s.set(ctx, userID, productID, next); err != nil {
		return nil, err
	}
	return s.Get(ctx, userID)
}

func (s *Service) set(ctx context.Context, userID, productID string, qty int) error {
	if qty > s.maxQuantity {
		return ErrQuantityLimit
	}
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return product.ErrNotFound
		}
		return errors.Wrap(err, "get product")
	}
	if p.Blocked {
		return ErrUnavailable
	}
	if qty > p.Stock {
		return ErrOutOfStock
	}
	if err := s.repo.SetQuantity(ctx, userID, productID, qty); err != nil {
		return errors.Wrap(err, "update cart item")
	}
	return nil
}
