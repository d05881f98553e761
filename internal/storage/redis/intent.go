package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/payment"
)

var _ payment.IntentStore = (*IntentStore)(nil)

// IntentStore keeps payment intents as JSON strings under intent:{id}.
type IntentStore struct {
	client redis.UniversalClient
}

// NewIntentStore creates an IntentStore.
func NewIntentStore(client redis.UniversalClient) *IntentStore {
	return &IntentStore{client: client}
}

func intentKey(id string) string { return "intent:" + id }

// Save stores intent until ttl elapses.
func (s *IntentStore) Save(ctx context.Context, intent *payment.Intent, ttl time.Duration) error {
	if err := s.client.Set(ctx, intentKey(intent.ID), encodeIntent(intent), ttl).Err(); err != nil {
		return fmt.Errorf("saving intent %q: %w", intent.ID, err)
	}
	return nil
}

// Get returns payment.ErrIntentNotFound once the intent expired or was
// deleted.
func (s *IntentStore) Get(ctx context.Context, id string) (*payment.Intent, error) {
	raw, err := s.client.Get(ctx, intentKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, payment.ErrIntentNotFound
		}
		return nil, fmt.Errorf("reading intent %q: %w", id, err)
	}
	intent, err := decodeIntent(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding intent %q: %w", id, err)
	}
	return intent, nil
}

// Delete removes the intent.
func (s *IntentStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, intentKey(id)).Err(); err != nil {
		return fmt.Errorf("deleting intent %q: %w", id, err)
	}
	return nil
}

func encodeIntent(in *payment.Intent) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("id")
	e.Str(in.ID)
	e.FieldStart("userId")
	e.Str(in.UserID)
	e.FieldStart("purpose")
	e.Str(string(in.Purpose))
	e.FieldStart("amount")
	e.Str(in.Amount.String())
	e.FieldStart("currency")
	e.Str(in.Currency)
	e.FieldStart("receipt")
	e.Str(in.Receipt)
	if in.AddressID != "" {
		e.FieldStart("addressId")
		e.Str(in.AddressID)
	}
	if in.CouponCode != "" {
		e.FieldStart("couponCode")
		e.Str(in.CouponCode)
	}
	if in.OrderID != "" {
		e.FieldStart("orderId")
		e.Str(in.OrderID)
	}
	e.FieldStart("createdAt")
	e.Str(in.CreatedAt.UTC().Format(time.RFC3339Nano))
	e.ObjEnd()
	return e.Bytes()
}

func decodeIntent(raw []byte) (*payment.Intent, error) {
	in := &payment.Intent{}
	err := jx.DecodeBytes(raw).ObjBytes(func(d *jx.Decoder, key []byte) error {
		v, err := d.Str()
		if err != nil {
			return err
		}
		switch string(key) {
		case "id":
			in.ID = v
		case "userId":
			in.UserID = v
		case "purpose":
			in.Purpose = payment.Purpose(v)
		case "amount":
			in.Amount, err = decimal.NewFromString(v)
		case "currency":
			in.Currency = v
		case "receipt":
			in.Receipt = v
		case "addressId":
			in.AddressID = v
		case "couponCode":
			in.CouponCode = v
		case "orderId":
			in.OrderID = v
		case "createdAt":
			in.CreatedAt, err = time.Parse(time.RFC3339Nano, v)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return in, nil
}
