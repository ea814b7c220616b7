package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgkafka "github.com/utafrali/posledger/pkg/kafka"
)

var _ pkgkafka.IdempotencyStore = (*ProcessedEventStore)(nil)

func TestProcessedEventStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewProcessedEventStore(client, time.Minute)
	ctx := context.Background()

	seen, err := store.Contains(ctx, "ev-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, store.Add(ctx, "ev-1"))
	seen, err = store.Contains(ctx, "ev-1")
	require.NoError(t, err)
	assert.True(t, seen)

	mr.FastForward(2 * time.Minute)
	seen, err = store.Contains(ctx, "ev-1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestProcessedEventStore_Unavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	store := NewProcessedEventStore(client, time.Minute)
	_, err := store.Contains(context.Background(), "ev-1")
	assert.Error(t, err)
	assert.Error(t, store.Add(context.Background(), "ev-1"))
}
