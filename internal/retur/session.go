package retur

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionStore keeps in-progress return requests as JSON documents in Redis,
// mirroring the cart session store: single writer, no locking, authoritative
// effects deferred to submission and approval.
type SessionStore struct {
	R   *redis.Client
	TTL time.Duration
}

func (s *SessionStore) ttl() time.Duration {
	if s == nil || s.TTL <= 0 {
		return 24 * time.Hour
	}
	return s.TTL
}

func sessionKey(id uuid.UUID) string {
	return "return:" + id.String()
}

// Get loads an in-progress return by id.
func (s *SessionStore) Get(ctx context.Context, id uuid.UUID) (Request, error) {
	if s == nil || s.R == nil {
		return Request{}, errors.New("retur: session store not configured")
	}
	data, err := s.R.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Request{}, ErrNotFound
		}
		return Request{}, fmt.Errorf("retur: load session: %w", err)
	}
	var r Request
	if err := json.Unmarshal(data, &r); err != nil {
		return Request{}, fmt.Errorf("retur: decode session: %w", err)
	}
	return r, nil
}

// Save writes the request back, refreshing the session TTL.
func (s *SessionStore) Save(ctx context.Context, r Request) error {
	if s == nil || s.R == nil {
		return errors.New("retur: session store not configured")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("retur: encode session: %w", err)
	}
	if err := s.R.Set(ctx, sessionKey(r.ID), data, s.ttl()).Err(); err != nil {
		return fmt.Errorf("retur: save session: %w", err)
	}
	return nil
}

// Delete discards an in-progress return. Used by explicit discard and by a
// successful submission consuming the session.
func (s *SessionStore) Delete(ctx context.Context, id uuid.UUID) error {
	if s == nil || s.R == nil {
		return errors.New("retur: session store not configured")
	}
	if err := s.R.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("retur: delete session: %w", err)
	}
	return nil
}
