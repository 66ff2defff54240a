package events

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore appends events to the domain_events table.
type PgStore struct {
	Pool *pgxpool.Pool
}

// InsertEvent implements Store.
func (s *PgStore) InsertEvent(ctx context.Context, ev Event) error {
	if s == nil || s.Pool == nil {
		return errors.New("events: store not configured")
	}
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO domain_events (id, topic, aggregate_id, payload, occurred_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		ev.ID, ev.Topic, ev.AggregateID, ev.Payload, ev.OccurredAt,
	)
	return err
}

// MemoryStore captures events for tests.
type MemoryStore struct {
	mu     sync.Mutex
	Events []Event
}

// NewMemoryStore constructs an empty in-memory event store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// InsertEvent implements Store.
func (s *MemoryStore) InsertEvent(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, ev)
	return nil
}

// Topics returns the topics captured so far, in order.
func (s *MemoryStore) Topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.Events))
	for _, ev := range s.Events {
		out = append(out, ev.Topic)
	}
	return out
}
