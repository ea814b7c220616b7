package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const eventKeyPrefix = "posledger:events:seen:"

// ProcessedEventStore remembers consumed Kafka event ids so redelivered
// messages are skipped across restarts and replicas. It satisfies
// pkg/kafka.IdempotencyStore.
type ProcessedEventStore struct {
	client goredis.UniversalClient
	ttl    time.Duration
}

// NewProcessedEventStore creates a store whose entries expire after ttl.
func NewProcessedEventStore(client goredis.UniversalClient, ttl time.Duration) *ProcessedEventStore {
	return &ProcessedEventStore{client: client, ttl: ttl}
}

// Contains reports whether eventID was recorded.
func (s *ProcessedEventStore) Contains(ctx context.Context, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, eventKeyPrefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("check processed event: %w", err)
	}
	return n > 0, nil
}

// Add records eventID.
func (s *ProcessedEventStore) Add(ctx context.Context, eventID string) error {
	if err := s.client.Set(ctx, eventKeyPrefix+eventID, 1, s.ttl).Err(); err != nil {
		return fmt.Errorf("record processed event: %w", err)
	}
	return nil
}
