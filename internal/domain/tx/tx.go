// Package tx declares the unit-of-work boundary used by domain services.
package tx

import "context"

// Manager runs fn inside a single datastore transaction. Repositories called
// with the context passed to fn join that transaction. Nested calls reuse the
// outer transaction.
type Manager interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Direct is a Manager that runs fn without a transaction. Used by tests and
// by stores that have no transactional semantics.
type Direct struct{}

// InTx calls fn with ctx unchanged.
func (Direct) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
