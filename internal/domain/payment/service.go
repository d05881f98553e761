package payment

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/pricing"
)

// Config holds payment flow settings.
type Config struct {
	Currency  string
	IntentTTL time.Duration
}

// IntentRequest asks for a new intent. Amount must be computed by the server.
type IntentRequest struct {
	UserID     string
	Purpose    Purpose
	Amount     decimal.Decimal
	Receipt    string
	AddressID  string
	CouponCode string
	OrderID    string
}

// Service creates and confirms payment intents.
type Service struct {
	gateway  Gateway
	intents  IntentStore
	signer   *Signer
	currency string
	ttl      time.Duration
	now      func() time.Time
}

// NewService creates a payment Service.
func NewService(gateway Gateway, intents IntentStore, signer *Signer, cfg Config) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	if cfg.IntentTTL <= 0 {
		cfg.IntentTTL = 30 * time.Minute
	}
	return &Service{
		gateway:  gateway,
		intents:  intents,
		signer:   signer,
		currency: cfg.Currency,
		ttl:      cfg.IntentTTL,
		now:      time.Now,
	}
}

// CreateIntent opens a gateway order for req.Amount and remembers the
// context needed to complete it.
func (s *Service) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	amount := pricing.Round(req.Amount)
	if !amount.IsPositive() {
		return nil, apperr.Invalid("amount", "must be greater than 0")
	}
	receipt := req.Receipt
	if receipt == "" {
		receipt = "rcpt_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
	}

	order, err := s.gateway.CreateOrder(ctx, CreateOrderRequest{
		Amount:   ToMinor(amount),
		Currency: s.currency,
		Receipt:  receipt,
		Notes: map[string]string{
			"user_id": req.UserID,
			"purpose": string(req.Purpose),
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "create gateway order")
	}

	intent := &Intent{
		ID:         order.ID,
		UserID:     req.UserID,
		Purpose:    req.Purpose,
		Amount:     amount,
		Currency:   s.currency,
		Receipt:    receipt,
		AddressID:  req.AddressID,
		CouponCode: req.CouponCode,
		OrderID:    req.OrderID,
		CreatedAt:  s.now(),
	}
	if err := s.intents.Save(ctx, intent, s.ttl); err != nil {
		return nil, errors.Wrap(err, "save intent")
	}
	return intent, nil
}

// Lookup returns the intent if it belongs to userID and was created for purpose.
func (s *Service) Lookup(ctx context.Context, userID, intentID string, purpose Purpose) (*Intent, error) {
	if intentID == "" {
		return nil, apperr.Invalid("intentId", "required")
	}
	intent, err := s.intents.Get(ctx, intentID)
	if err != nil {
		if errors.Is(err, ErrIntentNotFound) {
			return nil, ErrIntentNotFound
		}
		return nil, errors.Wrap(err, "get intent")
	}
	if intent.UserID != userID || intent.Purpose != purpose {
		return nil, ErrIntentNotFound
	}
	return intent, nil
}

// Verify checks that c is complete and carries a valid gateway signature.
// It does not need the intent, so a payment can be authenticated after its
// intent was released.
func (s *Service) Verify(c Confirmation) error {
	switch {
	case c.IntentID == "":
		return apperr.Invalid("intentId", "required")
	case c.PaymentID == "":
		return apperr.Invalid("paymentId", "required")
	case c.Signature == "":
		return apperr.Invalid("signature", "required")
	}
	return s.signer.Verify(c.IntentID, c.PaymentID, c.Signature)
}

// Confirm checks the gateway signature for c and returns the matching intent.
// Nothing may be committed for the payment unless Confirm succeeds.
func (s *Service) Confirm(ctx context.Context, userID string, purpose Purpose, c Confirmation) (*Intent, error) {
	if err := s.Verify(c); err != nil {
		return nil, err
	}
	return s.Lookup(ctx, userID, c.IntentID, purpose)
}

// Release forgets a completed intent. Failures are logged; an unreleased
// intent expires on its own.
func (s *Service) Release(ctx context.Context, intentID string) {
	if err := s.intents.Delete(ctx, intentID); err != nil {
		zctx.From(ctx).Warn("Release payment intent",
			zap.String("intent_id", intentID),
			zap.Error(err),
		)
	}
}
