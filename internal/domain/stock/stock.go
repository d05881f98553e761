// Package stock keeps product stock in step with order placement and
// cancellation. Every change is a single conditional update in the store;
// the reconciler never reads stock and writes it back.
package stock

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/apperr"
)

// ErrInsufficientStock matches any *InsufficientError via errors.Is.
var ErrInsufficientStock = apperr.Conflict("insufficient_stock", "insufficient stock")

// InsufficientError names the product that could not be reserved.
type InsufficientError struct {
	ProductID string
	Name      string
	Requested int
}

func (e *InsufficientError) Error() string {
	name := e.Name
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("insufficient stock for %s (requested %d)", name, e.Requested)
}

// Kind implements apperr.Kinded.
func (e *InsufficientError) Kind() apperr.Kind { return apperr.KindConflict }

// Code returns the machine-readable error code.
func (e *InsufficientError) Code() string { return ErrInsufficientStock.Code }

// Is reports whether target is ErrInsufficientStock.
func (e *InsufficientError) Is(target error) bool { return target == ErrInsufficientStock }

// Store performs atomic stock mutations.
type Store interface {
	// Decrement subtracts qty if and only if the current stock is at least
	// qty. It returns ErrInsufficientStock when the condition fails.
	Decrement(ctx context.Context, productID string, qty int) error
	// Increment adds qty unconditionally.
	Increment(ctx context.Context, productID string, qty int) error
}

// Line is one product quantity to reserve or restore.
type Line struct {
	ProductID string
	Name      string
	Quantity  int
}

// Reconciler applies stock changes for whole orders.
type Reconciler struct {
	store Store
}

// NewReconciler creates a Reconciler over store.
func NewReconciler(store Store) *Reconciler {
	return &Reconciler{store: store}
}

// Reserve decrements stock for every line. If any line fails, lines already
// decremented are restored in reverse order before the error is returned, so
// a failed reservation leaves stock untouched even without a surrounding
// transaction.
func (r *Reconciler) Reserve(ctx context.Context, lines []Line) error {
	done := make([]Line, 0, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 {
			r.compensate(ctx, done)
			return apperr.Invalid("quantity", "must be greater than 0")
		}
		if err := r.store.Decrement(ctx, l.ProductID, l.Quantity); err != nil {
			r.compensate(ctx, done)
			if errors.Is(err, ErrInsufficientStock) {
				return &InsufficientError{ProductID: l.ProductID, Name: l.Name, Requested: l.Quantity}
			}
			return errors.Wrapf(err, "decrement stock for %s", l.ProductID)
		}
		done = append(done, l)
	}
	return nil
}

// Restore returns qty units of a product to stock.
func (r *Reconciler) Restore(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return nil
	}
	if err := r.store.Increment(ctx, productID, qty); err != nil {
		return errors.Wrapf(err, "restore stock for %s", productID)
	}
	return nil
}

func (r *Reconciler) compensate(ctx context.Context, done []Line) {
	for i := len(done) - 1; i >= 0; i-- {
		l := done[i]
		if err := r.store.Increment(ctx, l.ProductID, l.Quantity); err != nil {
			zctx.From(ctx).Error("Stock compensation failed",
				zap.String("product_id", l.ProductID),
				zap.Int("quantity", l.Quantity),
				zap.Error(err),
			)
		}
	}
}
