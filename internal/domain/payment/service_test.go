package payment

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/apperr"
)

type mockGateway struct {
	req CreateOrderRequest
	err error
}

func (m *mockGateway) CreateOrder(_ context.Context, req CreateOrderRequest) (*GatewayOrder, error) {
	m.req = req
	if m.err != nil {
		return nil, m.err
	}
	return &GatewayOrder{ID: "order_123", Amount: req.Amount, Currency: req.Currency, Receipt: req.Receipt, Status: "created"}, nil
}

type memIntents struct {
	m   map[string]*Intent
	ttl time.Duration
}

func newMemIntents() *memIntents { return &memIntents{m: map[string]*Intent{}} }

func (s *memIntents) Save(_ context.Context, i *Intent, ttl time.Duration) error {
	s.m[i.ID] = i
	s.ttl = ttl
	return nil
}

func (s *memIntents) Get(_ context.Context, id string) (*Intent, error) {
	i, ok := s.m[id]
	if !ok {
		return nil, ErrIntentNotFound
	}
	return i, nil
}

func (s *memIntents) Delete(_ context.Context, id string) error {
	delete(s.m, id)
	return nil
}

func TestSigner(t *testing.T) {
	s := NewSigner("secret")
	sig := s.Sign("order_1", "pay_1")

	require.NoError(t, s.Verify("order_1", "pay_1", sig))
	require.ErrorIs(t, s.Verify("order_1", "pay_2", sig), ErrSignatureInvalid)
	require.ErrorIs(t, s.Verify("order_1", "pay_1", "not-hex"), ErrSignatureInvalid)
	require.ErrorIs(t, NewSigner("other").Verify("order_1", "pay_1", sig), ErrSignatureInvalid)
	assert.Equal(t, apperr.KindGateway, apperr.KindOf(ErrSignatureInvalid))
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(44000), ToMinor(decimal.RequireFromString("440")))
	assert.Equal(t, int64(10001), ToMinor(decimal.RequireFromString("100.005")))
	assert.True(t, decimal.RequireFromString("123.45").Equal(FromMinor(12345)))
}

func TestService_CreateIntent(t *testing.T) {
	gw := &mockGateway{}
	intents := newMemIntents()
	svc := NewService(gw, intents, NewSigner("secret"), Config{IntentTTL: time.Minute})

	intent, err := svc.CreateIntent(context.Background(), IntentRequest{
		UserID:     "u1",
		Purpose:    PurposeCheckout,
		Amount:     decimal.RequireFromString("540.50"),
		AddressID:  "addr1",
		CouponCode: "SAVE10",
	})
	require.NoError(t, err)

	assert.Equal(t, "order_123", intent.ID)
	assert.Equal(t, "INR", intent.Currency)
	assert.Equal(t, int64(54050), gw.req.Amount)
	assert.Equal(t, "INR", gw.req.Currency)
	assert.Contains(t, gw.req.Receipt, "rcpt_")
	assert.Equal(t, time.Minute, intents.ttl)
	assert.Same(t, intent, intents.m["order_123"])
}

func TestService_CreateIntentErrors(t *testing.T) {
	svc := NewService(&mockGateway{}, newMemIntents(), NewSigner("s"), Config{})
	_, err := svc.CreateIntent(context.Background(), IntentRequest{UserID: "u1", Amount: decimal.Zero})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	svc = NewService(&mockGateway{err: ErrGatewayUnavailable}, newMemIntents(), NewSigner("s"), Config{})
	_, err = svc.CreateIntent(context.Background(), IntentRequest{UserID: "u1", Amount: decimal.NewFromInt(10)})
	require.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestService_Confirm(t *testing.T) {
	signer := NewSigner("secret")
	intents := newMemIntents()
	intents.m["order_1"] = &Intent{ID: "order_1", UserID: "u1", Purpose: PurposeCheckout, Amount: decimal.NewFromInt(100)}
	svc := NewService(&mockGateway{}, intents, signer, Config{})
	ctx := context.Background()

	valid := Confirmation{IntentID: "order_1", PaymentID: "pay_1", Signature: signer.Sign("order_1", "pay_1")}

	tests := []struct {
		name    string
		userID  string
		purpose Purpose
		c       Confirmation
		wantErr error
	}{
		{name: "valid", userID: "u1", purpose: PurposeCheckout, c: valid},
		{name: "other user", userID: "u2", purpose: PurposeCheckout, c: valid, wantErr: ErrIntentNotFound},
		{name: "wrong purpose", userID: "u1", purpose: PurposeTopUp, c: valid, wantErr: ErrIntentNotFound},
		{name: "unknown intent", userID: "u1", purpose: PurposeCheckout, c: Confirmation{IntentID: "x", PaymentID: "p", Signature: signer.Sign("x", "p")}, wantErr: ErrIntentNotFound},
		{name: "unknown intent bad signature", userID: "u1", purpose: PurposeCheckout, c: Confirmation{IntentID: "x", PaymentID: "p", Signature: "aa"}, wantErr: ErrSignatureInvalid},
		{name: "bad signature", userID: "u1", purpose: PurposeCheckout, c: Confirmation{IntentID: "order_1", PaymentID: "pay_2", Signature: valid.Signature}, wantErr: ErrSignatureInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent, err := svc.Confirm(ctx, tt.userID, tt.purpose, tt.c)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "order_1", intent.ID)
		})
	}

	_, err := svc.Confirm(ctx, "u1", PurposeCheckout, Confirmation{IntentID: "order_1"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	svc.Release(ctx, "order_1")
	_, err = svc.Lookup(ctx, "u1", "order_1", PurposeCheckout)
	assert.True(t, errors.Is(err, ErrIntentNotFound))

	// The signature stays checkable once the intent is gone.
	require.NoError(t, svc.Verify(valid))
	require.ErrorIs(t, svc.Verify(Confirmation{IntentID: "order_1", PaymentID: "pay_2", Signature: valid.Signature}), ErrSignatureInvalid)
}
