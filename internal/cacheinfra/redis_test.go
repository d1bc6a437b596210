package cacheinfra

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisBackend(t *testing.T, opts ...RedisOption) (*RedisBackend, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisBackend(client, opts...), mr
}

func TestRedisBackend_GetSet(t *testing.T) {
	ctx := context.Background()
	backend, _ := setupRedisBackend(t)

	_, ok, err := backend.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, backend.Set(ctx, "k", []byte("v")))
	got, ok, err := backend.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	ttl, err := backend.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, TTLNoExpiry, ttl)
}

func TestRedisBackend_Expiry(t *testing.T) {
	ctx := context.Background()
	backend, mr := setupRedisBackend(t)

	require.NoError(t, backend.SetWithExpiry(ctx, "k", time.Minute, []byte("v")))
	ttl, err := backend.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, ttl)

	mr.FastForward(time.Minute + time.Second)
	_, ok, err := backend.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	ttl, err = backend.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, TTLMissing, ttl)
}

func TestRedisBackend_ExpireAndPersist(t *testing.T) {
	ctx := context.Background()
	backend, _ := setupRedisBackend(t)

	require.NoError(t, backend.AddToSet(ctx, "s", "a"))
	require.NoError(t, backend.Expire(ctx, "s", 30*time.Second))
	ttl, _ := backend.TTL(ctx, "s")
	assert.Equal(t, 30*time.Second, ttl)

	require.NoError(t, backend.Expire(ctx, "s", 0))
	ttl, _ = backend.TTL(ctx, "s")
	assert.Equal(t, TTLNoExpiry, ttl)
}

func TestRedisBackend_Sets(t *testing.T) {
	ctx := context.Background()
	backend, _ := setupRedisBackend(t)

	require.NoError(t, backend.AddToSet(ctx, "s", "a", "b"))
	require.NoError(t, backend.AddToSet(ctx, "s"))
	members, err := backend.ReadSet(ctx, "s")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, members)

	require.NoError(t, backend.RemoveFromSet(ctx, "s", "a"))
	members, _ = backend.ReadSet(ctx, "s")
	assert.Equal(t, []string{"b"}, members)

	members, err = backend.ReadSet(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestRedisBackend_DeleteAndListKeys(t *testing.T) {
	ctx := context.Background()
	backend, _ := setupRedisBackend(t)

	require.NoError(t, backend.Set(ctx, "app:cache:a", []byte("1")))
	require.NoError(t, backend.Set(ctx, "app:cache:b", []byte("2")))
	require.NoError(t, backend.Set(ctx, "other:cache:a", []byte("3")))

	keys, err := backend.ListKeys(ctx, "app:*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"app:cache:a", "app:cache:b"}, keys)

	removed, err := backend.Delete(ctx, "app:cache:a", "app:cache:zzz")
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	removed, err = backend.Delete(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestRedisBackend_KeyPrefix(t *testing.T) {
	ctx := context.Background()
	backend, mr := setupRedisBackend(t, WithKeyPrefix("tenant1/"), WithScanCount(10))

	require.NoError(t, backend.Set(ctx, "app:cache:a", []byte("1")))
	assert.True(t, mr.Exists("tenant1/app:cache:a"))

	keys, err := backend.ListKeys(ctx, "app:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"app:cache:a"}, keys)
}

func TestRedisBackend_Batch(t *testing.T) {
	ctx := context.Background()
	backend, mr := setupRedisBackend(t)

	batch := backend.BeginBatch()
	batch.SetWithExpiry("app:cache:k", time.Minute, []byte("v"))
	batch.Set("app:cache:plain", []byte("p"))
	batch.AddToSet("app:entity:user:1", "app:cache:k")
	batch.Expire("app:entity:user:1", 2*time.Minute)
	batch.AddToSet("app:fn:getUser", "app:cache:k")
	batch.Expire("app:fn:getUser", 0)

	assert.False(t, mr.Exists("app:cache:k"), "batch must not apply before Execute")
	require.NoError(t, batch.Execute(ctx))

	got, ok, err := backend.Get(ctx, "app:cache:k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), got)
	assert.Equal(t, 2*time.Minute, mr.TTL("app:entity:user:1"))

	members, _ := backend.ReadSet(ctx, "app:fn:getUser")
	assert.Equal(t, []string{"app:cache:k"}, members)

	cleanup := backend.BeginBatch()
	cleanup.RemoveFromSet("app:fn:getUser", "app:cache:k")
	cleanup.Delete("app:cache:k", "app:entity:user:1")
	require.NoError(t, cleanup.Execute(ctx))
	assert.False(t, mr.Exists("app:cache:k"))
	assert.False(t, mr.Exists("app:fn:getUser"))

	// empty batch is a no-op
	require.NoError(t, backend.BeginBatch().Execute(ctx))
}

func TestRedisBackend_TTLs(t *testing.T) {
	ctx := context.Background()
	backend, _ := setupRedisBackend(t, WithKeyPrefix("app:"))

	require.NoError(t, backend.SetWithExpiry(ctx, "v", 30*time.Second, []byte("1")))
	require.NoError(t, backend.AddToSet(ctx, "s", "a"))

	ttls, err := backend.TTLs(ctx, "v", "s", "missing")
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{30 * time.Second, TTLNoExpiry, TTLMissing}, ttls)

	ttls, err = ReadTTLs(ctx, backend, "s")
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{TTLNoExpiry}, ttls)
}

func TestRedisBackend_ServerDown(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	backend := NewRedisBackend(client)
	mr.Close()

	_, _, err = backend.Get(ctx, "k")
	assert.Error(t, err)

	assert.Error(t, backend.Set(ctx, "k", []byte("v")))

	batch := backend.BeginBatch()
	batch.Set("k", []byte("v"))
	assert.Error(t, batch.Execute(ctx))

	_, err = backend.TTLs(ctx, "k")
	assert.Error(t, err)
}
