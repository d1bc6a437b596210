package cache

import (
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/goliatone/go-entity-cache/internal/cacheinfra"
)

// Backend is the storage command surface the cache runs on. See
// NewMemoryBackend and NewRedisBackend for the builtin implementations.
type Backend = cacheinfra.Backend

// Batch queues writes that a Batcher applies atomically.
type Batch = cacheinfra.Batch

// Batcher is implemented by backends able to execute a Batch atomically.
// Backends without it get a sequential fallback.
type Batcher = cacheinfra.Batcher

// TTLBatcher is implemented by backends able to read several TTLs in one
// round trip. Backends without it get one TTL call per key.
type TTLBatcher = cacheinfra.TTLBatcher

// TTL sentinels returned by Backend.TTL.
const (
	TTLNoExpiry = cacheinfra.TTLNoExpiry
	TTLMissing  = cacheinfra.TTLMissing
)

// MemoryConfig configures the in-process backend.
type MemoryConfig struct {
	Capacity           int
	NumShards          int
	Horizon            time.Duration
	EvictionPercentage int
	EvictionInterval   time.Duration
}

// DefaultMemoryConfig returns the in-process backend defaults.
func DefaultMemoryConfig() MemoryConfig {
	return convertMemoryFromInternal(cacheinfra.DefaultConfig())
}

// Validate checks the memory backend configuration.
func (c MemoryConfig) Validate() error {
	return c.toInternal().Validate()
}

// NewMemoryBackend returns an in-process Backend for tests and single
// process deployments. Capacity and Horizon bound cached values only; an
// evicted value reads as a miss. Index sets are kept until invalidated or
// expired.
func NewMemoryBackend(cfg MemoryConfig) (Backend, error) {
	return cacheinfra.NewMemoryBackend(cfg.toInternal())
}

// RedisOption customizes NewRedisBackend.
type RedisOption = cacheinfra.RedisOption

// WithRedisKeyPrefix prepends prefix to every key sent to Redis.
func WithRedisKeyPrefix(prefix string) RedisOption {
	return cacheinfra.WithKeyPrefix(prefix)
}

// WithRedisScanCount sets the SCAN COUNT hint used by ListKeys.
func WithRedisScanCount(count int64) RedisOption {
	return cacheinfra.WithScanCount(count)
}

// NewRedisBackend returns a Backend on top of a go-redis client. Batches run
// as MULTI/EXEC transactions.
func NewRedisBackend(client redis.UniversalClient, opts ...RedisOption) Backend {
	return cacheinfra.NewRedisBackend(client, opts...)
}

func (c MemoryConfig) toInternal() cacheinfra.Config {
	return cacheinfra.Config{
		Capacity:           c.Capacity,
		NumShards:          c.NumShards,
		TTL:                c.Horizon,
		EvictionPercentage: c.EvictionPercentage,
		EvictionInterval:   c.EvictionInterval,
	}
}

func convertMemoryFromInternal(cfg cacheinfra.Config) MemoryConfig {
	return MemoryConfig{
		Capacity:           cfg.Capacity,
		NumShards:          cfg.NumShards,
		Horizon:            cfg.TTL,
		EvictionPercentage: cfg.EvictionPercentage,
		EvictionInterval:   cfg.EvictionInterval,
	}
}
