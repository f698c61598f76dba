package revocation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedis(client)
	ctx := context.Background()

	revoked, err := store.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, store.RevokeToken(ctx, "jti-1", time.Minute))
	revoked, err = store.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.Equal(t, time.Minute, mr.TTL(revokedTokenKeyPrefix+"jti-1"))

	mr.FastForward(2 * time.Minute)
	revoked, err = store.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	assert.Error(t, store.RevokeToken(ctx, "jti-2", 0))
}

func TestRedisStore_Unavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedis(client)

	mr.SetError("LOADING")
	_, err := store.IsRevoked(context.Background(), "jti-1")
	assert.Error(t, err)
}

func TestInMemoryStore(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewInMemory(WithClock(func() time.Time { return now }))
	ctx := context.Background()

	require.NoError(t, store.RevokeToken(ctx, "jti-1", time.Hour))
	revoked, err := store.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	now = now.Add(time.Hour)
	revoked, err = store.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	assert.NoError(t, store.RevokeToken(ctx, "", time.Hour))
	assert.Error(t, store.RevokeToken(ctx, "jti-2", -time.Second))
}
