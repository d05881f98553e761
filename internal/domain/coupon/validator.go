package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Validator checks coupon eligibility for a user and subtotal.
type Validator struct {
	repo Repository
	now  func() time.Time
}

// NewValidator creates a Validator backed by the given Repository.
func NewValidator(repo Repository) *Validator {
	return &Validator{repo: repo, now: time.Now}
}

// Validate applies the eligibility rules in order and returns the discount
// on success. It does not consume the coupon; see Redeem.
func (v *Validator) Validate(ctx context.Context, code, userID string, subtotal decimal.Decimal) (*Discount, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, ErrNotFound
	}

	c, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	if err := v.check(c, userID, subtotal); err != nil {
		return nil, err
	}

	return &Discount{Coupon: c, Amount: Compute(c, subtotal)}, nil
}

func (v *Validator) check(c *Coupon, userID string, subtotal decimal.Decimal) error {
	// Unlisted general coupons and unassigned referral coupons do not exist
	// for checkout. An assigned referral coupon is rejected as not eligible
	// for anyone but its target.
	if c.Referral {
		if c.AssignedTo == "" {
			return ErrNotFound
		}
	} else if !c.Listed {
		return ErrNotFound
	}

	if v.now().After(c.ExpiresAt) {
		return ErrExpired
	}

	if c.Referral {
		if c.AssignedTo != userID {
			return ErrReferralNotEligible
		}
		if c.Used {
			return ErrReferralAlreadyUsed
		}
		return nil
	}

	if c.UsedByUser(userID) {
		return ErrAlreadyUsed
	}
	if subtotal.LessThan(c.MinimumPrice) {
		return ErrBelowMinimum
	}
	return nil
}

// Redeem consumes the coupon for userID. Call it inside the transaction
// that creates the order so a failed order leaves the coupon untouched.
func (v *Validator) Redeem(ctx context.Context, c *Coupon, userID string) error {
	if err := v.repo.Redeem(ctx, c, userID); err != nil {
		if errors.Is(err, ErrAlreadyUsed) || errors.Is(err, ErrReferralAlreadyUsed) {
			return err
		}
		return errors.Wrapf(err, "redeem coupon %s", c.Code)
	}
	return nil
}

// Available lists the coupons userID can currently apply.
func (v *Validator) Available(ctx context.Context, userID string) ([]Coupon, error) {
	list, err := v.repo.Available(ctx, userID, v.now())
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}
	return list, nil
}
