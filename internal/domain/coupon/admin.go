package coupon

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/apperr"
)

const (
	referralPrefix  = "REF"
	referralCodeLen = 8
	referralTTL     = 90 * 24 * time.Hour
	referralAlpha   = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

var hundred = decimal.NewFromInt(100)

// Admin manages coupon definitions.
type Admin struct {
	repo    Repository
	now     func() time.Time
	newCode func() string
}

// NewAdmin creates an Admin backed by repo.
func NewAdmin(repo Repository) *Admin {
	return &Admin{repo: repo, now: time.Now, newCode: randomReferralCode}
}

// Save validates and upserts c by code.
func (a *Admin) Save(ctx context.Context, c *Coupon) error {
	c.Code = NormalizeCode(c.Code)
	if err := Validate(c); err != nil {
		return err
	}
	if err := a.repo.Upsert(ctx, c); err != nil {
		return errors.Wrapf(err, "save coupon %s", c.Code)
	}
	return nil
}

// Delete removes a coupon by code.
func (a *Admin) Delete(ctx context.Context, code string) error {
	if err := a.repo.Delete(ctx, NormalizeCode(code)); err != nil {
		return errors.Wrap(err, "delete coupon")
	}
	return nil
}

// IssueReferral creates a single-use referral coupon for userID.
func (a *Admin) IssueReferral(ctx context.Context, userID string, offer decimal.Decimal) (*Coupon, error) {
	if userID == "" {
		return nil, apperr.Invalid("userId", "required")
	}
	c := &Coupon{
		Code:        a.newCode(),
		Offer:       offer,
		ExpiresAt:   a.now().Add(referralTTL),
		Referral:    true,
		AssignedTo:  userID,
		Description: "Referral reward",
	}
	if err := a.Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the fields an admin or an import must supply.
func Validate(c *Coupon) error {
	switch {
	case c.Code == "":
		return apperr.Invalid("code", "required")
	case !c.Offer.IsPositive() || c.Offer.GreaterThan(hundred):
		return apperr.Invalid("offer", "must be between 0 and 100")
	case c.MinimumPrice.IsNegative():
		return apperr.Invalid("minimumPrice", "must not be negative")
	case c.MaxDiscount.IsNegative():
		return apperr.Invalid("maxDiscount", "must not be negative")
	case c.ExpiresAt.IsZero():
		return apperr.Invalid("expiresAt", "required")
	case c.Referral && c.AssignedTo == "":
		return apperr.Invalid("assignedTo", "required for referral coupons")
	}
	return nil
}

func randomReferralCode() string {
	b := make([]byte, referralCodeLen)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = referralAlpha[int(b[i])%len(referralAlpha)]
	}
	return referralPrefix + string(b)
}
