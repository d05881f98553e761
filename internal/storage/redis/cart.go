package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xenking/storefront/internal/domain/cart"
)

var _ cart.Repository = (*CartStore)(nil)

// CartStore keeps each cart in a hash cart:{userID} mapping product ID to
// quantity. Every write refreshes the TTL.
type CartStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewCartStore creates a CartStore.
func NewCartStore(client redis.UniversalClient, ttl time.Duration) *CartStore {
	return &CartStore{client: client, ttl: ttl}
}

func cartKey(userID string) string { return "cart:" + userID }

// Get returns the cart ordered by product ID.
func (s *CartStore) Get(ctx context.Context, userID string) (*cart.Cart, error) {
	fields, err := s.client.HGetAll(ctx, cartKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading cart of %q: %w", userID, err)
	}

	c := &cart.Cart{UserID: userID, Items: make([]cart.Item, 0, len(fields))}
	for productID, raw := range fields {
		qty, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing quantity of %q: %w", productID, err)
		}
		if qty > 0 {
			c.Items = append(c.Items, cart.Item{ProductID: productID, Quantity: qty})
		}
	}
	sort.Slice(c.Items, func(i, j int) bool { return c.Items[i].ProductID < c.Items[j].ProductID })
	return c, nil
}

// SetQuantity stores qty for productID.
func (s *CartStore) SetQuantity(ctx context.Context, userID, productID string, qty int) error {
	key := cartKey(userID)
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, productID, qty)
		if s.ttl > 0 {
			p.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("setting cart quantity: %w", err)
	}
	return nil
}

// Remove deletes the product line. It returns cart.ErrItemNotFound when the
// line does not exist.
func (s *CartStore) Remove(ctx context.Context, userID, productID string) error {
	n, err := s.client.HDel(ctx, cartKey(userID), productID).Result()
	if err != nil {
		return fmt.Errorf("removing cart line: %w", err)
	}
	if n == 0 {
		return cart.ErrItemNotFound
	}
	return nil
}

// Clear deletes the whole cart.
func (s *CartStore) Clear(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, cartKey(userID)).Err(); err != nil {
		return fmt.Errorf("clearing cart of %q: %w", userID, err)
	}
	return nil
}
