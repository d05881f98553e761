package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/domain/address"
)

const findAddressSQL = `SELECT id, user_id, name, phone, line1, line2, city, state, pincode, landmark
	FROM addresses WHERE id = $1 AND user_id = $2`

var _ address.Repository = (*AddressRepository)(nil)

// AddressRepository implements address.Repository backed by PostgreSQL.
type AddressRepository struct {
	db *DB
}

// NewAddressRepository returns an AddressRepository that uses db.
func NewAddressRepository(db *DB) *AddressRepository {
	return &AddressRepository{db: db}
}

// Find returns the address only when it belongs to userID.
func (r *AddressRepository) Find(ctx context.Context, userID, addressID string) (*address.Address, error) {
	var a address.Address
	err := r.db.conn(ctx).QueryRow(ctx, findAddressSQL, addressID, userID).Scan(
		&a.ID, &a.UserID, &a.Name, &a.Phone, &a.Line1, &a.Line2, &a.City, &a.State, &a.Pincode, &a.Landmark,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, address.ErrNotFound
		}
		return nil, fmt.Errorf("finding address %q: %w", addressID, err)
	}
	return &a, nil
}
