package di

import (
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-entity-cache/cache"
)

// Backend types accepted in FileConfig.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// FileConfig is the YAML form of the cache configuration. Fields left out
// keep the values of cache.DefaultConfig.
//
//	namespace: app
//	default_ttl: 10m
//	codec: msgpack
//	backend:
//	  type: redis
//	  redis:
//	    addr: localhost:6379
//	metrics:
//	  prometheus: true
type FileConfig struct {
	Namespace       string         `yaml:"namespace"`
	Enabled         *bool          `yaml:"enabled"`
	Debug           bool           `yaml:"debug"`
	LockedTTL       time.Duration  `yaml:"locked_ttl"`
	DefaultTTL      *time.Duration `yaml:"default_ttl"`
	IndexTTLGap     *time.Duration `yaml:"index_ttl_gap"`
	FailOnMissingID *bool          `yaml:"fail_on_missing_id"`
	SingleFlight    bool           `yaml:"single_flight"`
	Codec           string         `yaml:"codec"`
	Backend         BackendConfig  `yaml:"backend"`
	Metrics         MetricsConfig  `yaml:"metrics"`
}

// BackendConfig selects and configures the storage backend.
type BackendConfig struct {
	Type   string       `yaml:"type"`
	Memory MemoryConfig `yaml:"memory"`
	Redis  RedisConfig  `yaml:"redis"`
}

// MemoryConfig overrides the in-process backend defaults.
type MemoryConfig struct {
	Capacity           int           `yaml:"capacity"`
	NumShards          int           `yaml:"num_shards"`
	Horizon            time.Duration `yaml:"horizon"`
	EvictionPercentage int           `yaml:"eviction_percentage"`
	EvictionInterval   time.Duration `yaml:"eviction_interval"`
}

// RedisConfig configures the Redis backend client.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
	ScanCount int64  `yaml:"scan_count"`
}

// MetricsConfig enables Prometheus counters on the default registerer.
type MetricsConfig struct {
	Prometheus bool   `yaml:"prometheus"`
	Namespace  string `yaml:"namespace"`
}

// LoadFileConfig reads and parses a YAML configuration file.
func LoadFileConfig(path string) (FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("di: read config %s: %w", path, err)
	}
	return ParseFileConfig(data)
}

// ParseFileConfig parses YAML configuration.
func ParseFileConfig(data []byte) (FileConfig, error) {
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return FileConfig{}, fmt.Errorf("di: parse config: %w", err)
	}
	return fc, nil
}

// CacheConfig converts the file form into a cache.Config. The returned
// close function releases the backend client, if one was created.
func (f FileConfig) CacheConfig() (cache.Config, func() error, error) {
	cfg := cache.DefaultConfig()
	noop := func() error { return nil }

	if f.Namespace != "" {
		cfg.Namespace = f.Namespace
	}
	if f.Enabled != nil {
		cfg.Enabled = *f.Enabled
	}
	cfg.Debug = f.Debug
	cfg.LockedTTL = f.LockedTTL
	if f.DefaultTTL != nil {
		cfg.DefaultTTL = *f.DefaultTTL
	}
	if f.IndexTTLGap != nil {
		cfg.IndexTTLGap = *f.IndexTTLGap
	}
	if f.FailOnMissingID != nil {
		cfg.FailOnMissingID = *f.FailOnMissingID
	}
	cfg.SingleFlight = f.SingleFlight

	codec, err := cache.CodecByName(f.Codec)
	if err != nil {
		return cfg, noop, err
	}
	cfg.Codec = codec

	f.Backend.Memory.apply(&cfg.Memory)

	if f.Metrics.Prometheus {
		metrics, err := cache.NewPrometheusMetrics(prometheus.DefaultRegisterer, f.Metrics.Namespace)
		if err != nil {
			return cfg, noop, fmt.Errorf("di: register metrics: %w", err)
		}
		cfg.Metrics = metrics
	}

	switch f.Backend.Type {
	case "", BackendMemory:
		return cfg, noop, nil
	case BackendRedis:
		if f.Backend.Redis.Addr == "" {
			return cfg, noop, fmt.Errorf("di: backend.redis.addr is required")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     f.Backend.Redis.Addr,
			Username: f.Backend.Redis.Username,
			Password: f.Backend.Redis.Password,
			DB:       f.Backend.Redis.DB,
		})
		var opts []cache.RedisOption
		if f.Backend.Redis.KeyPrefix != "" {
			opts = append(opts, cache.WithRedisKeyPrefix(f.Backend.Redis.KeyPrefix))
		}
		if f.Backend.Redis.ScanCount > 0 {
			opts = append(opts, cache.WithRedisScanCount(f.Backend.Redis.ScanCount))
		}
		cfg.Backend = cache.NewRedisBackend(client, opts...)
		return cfg, client.Close, nil
	default:
		return cfg, noop, fmt.Errorf("di: unknown backend type %q", f.Backend.Type)
	}
}

func (m MemoryConfig) apply(cfg *cache.MemoryConfig) {
	if m.Capacity > 0 {
		cfg.Capacity = m.Capacity
	}
	if m.NumShards > 0 {
		cfg.NumShards = m.NumShards
	}
	if m.Horizon > 0 {
		cfg.Horizon = m.Horizon
	}
	if m.EvictionPercentage > 0 {
		cfg.EvictionPercentage = m.EvictionPercentage
	}
	if m.EvictionInterval > 0 {
		cfg.EvictionInterval = m.EvictionInterval
	}
}
