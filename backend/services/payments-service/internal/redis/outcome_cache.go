package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "payments:outcome:"

// Outcome is a terminal reconciliation result cached by gateway reference,
// so repeated client-path polls are answered without hitting Postgres or the
// gateway again.
type Outcome struct {
	Reference string `json:"reference"`
	UserID    int64  `json:"user_id"`
	CourseID  int64  `json:"course_id"`
	Status    string `json:"status"`
}

// Store wraps redis access for reconciliation outcomes.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore builds store with provided ttl.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Store{client: client, ttl: ttl}
}

func key(reference string) string {
	return keyPrefix + reference
}

// Save caches a terminal outcome.
func (s *Store) Save(ctx context.Context, outcome Outcome) error {
	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("outcome cache: marshal: %w", err)
	}
	return s.client.Set(ctx, key(outcome.Reference), data, s.ttl).Err()
}

// Get returns cached outcome or redis.Nil when absent.
func (s *Store) Get(ctx context.Context, reference string) (*Outcome, error) {
	data, err := s.client.Get(ctx, key(reference)).Bytes()
	if err != nil {
		return nil, err
	}
	var outcome Outcome
	if err := json.Unmarshal(data, &outcome); err != nil {
		return nil, fmt.Errorf("outcome cache: unmarshal: %w", err)
	}
	return &outcome, nil
}
