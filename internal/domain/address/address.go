package address

import (
	"context"

	"github.com/xenking/storefront/internal/domain/apperr"
)

// ErrNotFound is returned when the address does not exist or belongs to
// another user.
var ErrNotFound = apperr.NotFound("address_not_found", "address not found")

// Address is a shipping address. Orders keep a copy, not a reference, so
// later edits do not rewrite order history.
type Address struct {
	ID       string `json:"id"`
	UserID   string `json:"userId"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Line1    string `json:"line1"`
	Line2    string `json:"line2,omitempty"`
	City     string `json:"city"`
	State    string `json:"state"`
	Pincode  string `json:"pincode"`
	Landmark string `json:"landmark,omitempty"`
}

// Repository looks up addresses owned by a user.
type Repository interface {
	Find(ctx context.Context, userID, addressID string) (*Address, error)
}
