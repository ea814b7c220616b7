package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	keyPrefix    = "posledger:checkout:idem:"
	pendingValue = "pending"
)

// IdempotencyStore implements repository.IdempotencyStore on Redis. A key
// holds "pending" while its checkout runs and the sale id afterwards.
type IdempotencyStore struct {
	client goredis.UniversalClient
}

// NewIdempotencyStore creates a Redis-backed idempotency store.
func NewIdempotencyStore(client goredis.UniversalClient) *IdempotencyStore {
	return &IdempotencyStore{client: client}
}

// Reserve claims key with SET NX. A lost race reads back the current value;
// a key that expired between the two calls reports pending.
func (s *IdempotencyStore) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, string, error) {
	ok, err := s.client.SetNX(ctx, keyPrefix+key, pendingValue, ttl).Result()
	if err != nil {
		return false, "", fmt.Errorf("reserve idempotency key: %w", err)
	}
	if ok {
		return true, "", nil
	}

	val, err := s.client.Get(ctx, keyPrefix+key).Result()
	switch {
	case errors.Is(err, goredis.Nil):
		return false, "", nil
	case err != nil:
		return false, "", fmt.Errorf("read idempotency key: %w", err)
	case val == pendingValue:
		return false, "", nil
	default:
		return false, val, nil
	}
}

// Complete stores the sale id under key.
func (s *IdempotencyStore) Complete(ctx context.Context, key, saleID string, ttl time.Duration) error {
	if err := s.client.Set(ctx, keyPrefix+key, saleID, ttl).Err(); err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	return nil
}

// Release deletes key.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}
