package cacheinfra

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultScanCount = 100

// RedisBackend implements Backend on top of a go-redis universal client.
// Batches run inside MULTI/EXEC.
type RedisBackend struct {
	client    redis.UniversalClient
	prefix    string
	scanCount int64
}

var (
	_ Backend    = (*RedisBackend)(nil)
	_ Batcher    = (*RedisBackend)(nil)
	_ TTLBatcher = (*RedisBackend)(nil)
)

// RedisOption customizes a RedisBackend.
type RedisOption func(*RedisBackend)

// WithKeyPrefix prepends prefix to every key sent to Redis. Keys returned
// by ListKeys have the prefix stripped.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *RedisBackend) {
		r.prefix = prefix
	}
}

// WithScanCount sets the COUNT hint used while scanning keys.
func WithScanCount(count int64) RedisOption {
	return func(r *RedisBackend) {
		if count > 0 {
			r.scanCount = count
		}
	}
}

// NewRedisBackend wraps client. The caller owns the client lifecycle.
func NewRedisBackend(client redis.UniversalClient, opts ...RedisOption) *RedisBackend {
	r := &RedisBackend{client: client, scanCount: defaultScanCount}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisBackend) key(k string) string {
	return r.prefix + k
}

func (r *RedisBackend) keys(ks []string) []string {
	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = r.key(k)
	}
	return out
}

func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (r *RedisBackend) Set(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, r.key(key), value, 0).Err()
}

func (r *RedisBackend) SetWithExpiry(ctx context.Context, key string, ttl time.Duration, value []byte) error {
	if ttl < 0 {
		ttl = 0
	}
	return r.client.Set(ctx, r.key(key), value, ttl).Err()
}

func (r *RedisBackend) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	return r.client.Del(ctx, r.keys(keys)...).Result()
}

func (r *RedisBackend) ListKeys(ctx context.Context, pattern string) ([]string, error) {
	var out []string
	iter := r.client.Scan(ctx, 0, r.key(pattern), r.scanCount).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val()[len(r.prefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *RedisBackend) AddToSet(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return r.client.SAdd(ctx, r.key(key), toInterfaces(members)...).Err()
}

func (r *RedisBackend) RemoveFromSet(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return r.client.SRem(ctx, r.key(key), toInterfaces(members)...).Err()
}

func (r *RedisBackend) ReadSet(ctx context.Context, key string) ([]string, error) {
	return r.client.SMembers(ctx, r.key(key)).Result()
}

func (r *RedisBackend) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		return r.client.Persist(ctx, r.key(key)).Err()
	}
	return r.client.Expire(ctx, r.key(key), ttl).Err()
}

func (r *RedisBackend) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := r.client.TTL(ctx, r.key(key)).Result()
	if err != nil {
		return 0, err
	}
	return redisTTL(d), nil
}

// TTLs reads every TTL in a single pipeline.
func (r *RedisBackend) TTLs(ctx context.Context, keys ...string) ([]time.Duration, error) {
	cmds := make([]*redis.DurationCmd, len(keys))
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = pipe.TTL(ctx, r.key(key))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]time.Duration, len(keys))
	for i, cmd := range cmds {
		out[i] = redisTTL(cmd.Val())
	}
	return out, nil
}

func redisTTL(d time.Duration) time.Duration {
	switch d {
	case -2:
		return TTLMissing
	case -1:
		return TTLNoExpiry
	}
	return d
}

// BeginBatch returns a batch executed as a single MULTI/EXEC transaction.
func (r *RedisBackend) BeginBatch() Batch {
	return &redisBatch{backend: r}
}

type redisOp func(ctx context.Context, pipe redis.Pipeliner)

type redisBatch struct {
	backend *RedisBackend
	ops     []redisOp
}

func (b *redisBatch) Set(key string, value []byte) {
	k := b.backend.key(key)
	b.ops = append(b.ops, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.Set(ctx, k, value, 0)
	})
}

func (b *redisBatch) SetWithExpiry(key string, ttl time.Duration, value []byte) {
	k := b.backend.key(key)
	if ttl < 0 {
		ttl = 0
	}
	b.ops = append(b.ops, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.Set(ctx, k, value, ttl)
	})
}

func (b *redisBatch) AddToSet(key string, members ...string) {
	if len(members) == 0 {
		return
	}
	k := b.backend.key(key)
	b.ops = append(b.ops, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.SAdd(ctx, k, toInterfaces(members)...)
	})
}

func (b *redisBatch) RemoveFromSet(key string, members ...string) {
	if len(members) == 0 {
		return
	}
	k := b.backend.key(key)
	b.ops = append(b.ops, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.SRem(ctx, k, toInterfaces(members)...)
	})
}

func (b *redisBatch) Expire(key string, ttl time.Duration) {
	k := b.backend.key(key)
	b.ops = append(b.ops, func(ctx context.Context, pipe redis.Pipeliner) {
		if ttl <= 0 {
			pipe.Persist(ctx, k)
			return
		}
		pipe.Expire(ctx, k, ttl)
	})
}

func (b *redisBatch) Delete(keys ...string) {
	if len(keys) == 0 {
		return
	}
	ks := b.backend.keys(keys)
	b.ops = append(b.ops, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.Del(ctx, ks...)
	})
}

func (b *redisBatch) Execute(ctx context.Context) error {
	ops := b.ops
	b.ops = nil
	if len(ops) == 0 {
		return nil
	}
	_, err := b.backend.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, op := range ops {
			op(ctx, pipe)
		}
		return nil
	})
	return err
}

func toInterfaces(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
