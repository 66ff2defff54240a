package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Store keeps in-progress carts as JSON documents in Redis. A cart is a
// single-writer session construct, so no locking is needed here; the shared
// contention point is the stock counter, handled at commit time.
type Store struct {
	R   *redis.Client
	TTL time.Duration
}

func (s *Store) ttl() time.Duration {
	if s == nil || s.TTL <= 0 {
		return 24 * time.Hour
	}
	return s.TTL
}

func cartKey(id uuid.UUID) string {
	return "cart:" + id.String()
}

// Get loads a cart session by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Cart, error) {
	if s == nil || s.R == nil {
		return Cart{}, errors.New("cart: store not configured")
	}
	data, err := s.R.Get(ctx, cartKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Cart{}, ErrNotFound
		}
		return Cart{}, fmt.Errorf("cart: load session: %w", err)
	}
	var c Cart
	if err := json.Unmarshal(data, &c); err != nil {
		return Cart{}, fmt.Errorf("cart: decode session: %w", err)
	}
	return c, nil
}

// Save writes the cart back, refreshing the session TTL.
func (s *Store) Save(ctx context.Context, c Cart) error {
	if s == nil || s.R == nil {
		return errors.New("cart: store not configured")
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("cart: encode session: %w", err)
	}
	if err := s.R.Set(ctx, cartKey(c.ID), data, s.ttl()).Err(); err != nil {
		return fmt.Errorf("cart: save session: %w", err)
	}
	return nil
}

// Delete discards a cart session. Used both by explicit discard and by a
// successful checkout consuming the cart.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	if s == nil || s.R == nil {
		return errors.New("cart: store not configured")
	}
	if err := s.R.Del(ctx, cartKey(id)).Err(); err != nil {
		return fmt.Errorf("cart: delete session: %w", err)
	}
	return nil
}
