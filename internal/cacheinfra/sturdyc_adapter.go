package cacheinfra

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tidwall/match"
	"github.com/viccon/sturdyc"
)

// Config holds the configuration for the sturdyc backed memory backend.
type Config struct {
	// Capacity defines the maximum number of values the backend holds
	// before sturdyc evicts. Sets are not counted. Must be greater than 0.
	Capacity int

	// NumShards determines the number of sturdyc shards.
	// Must be greater than 0. Default: 256
	NumShards int

	// TTL is the storage horizon applied by sturdyc to every value. Values
	// written without an expiry still disappear after this duration and are
	// then read as misses. Sets are not bound by it.
	// Must be greater than 0. Default: 1h
	TTL time.Duration

	// EvictionPercentage specifies what percentage of keys to evict
	// when the backend reaches its capacity. Must be between 1-100.
	EvictionPercentage int

	// EvictionInterval sets how often sturdyc sweeps expired keys.
	// Zero value uses the sturdyc default.
	EvictionInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults for most use cases.
func DefaultConfig() Config {
	return Config{
		Capacity:           10000,
		NumShards:          256,
		TTL:                time.Hour,
		EvictionPercentage: 10,
	}
}

// ToSturdycOptions converts the Config to sturdyc.Option slice.
// Capacity, NumShards, TTL and EvictionPercentage are passed directly
// to sturdyc.New() and are not included in the options.
func (c Config) ToSturdycOptions() []sturdyc.Option {
	var options []sturdyc.Option
	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}
	return options
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}

	if c.NumShards <= 0 {
		return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	}

	if c.TTL <= 0 {
		return &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}

	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	}

	if c.EvictionInterval < 0 {
		return &ConfigError{Field: "EvictionInterval", Message: "must be non-negative"}
	}

	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}

// memoryEntry is either a plain value or a set. A zero expiresAt means the
// key never expires on its own.
type memoryEntry struct {
	value     []byte
	members   map[string]struct{}
	expiresAt time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryBackend is an in-process Backend. Values live in a sturdyc client
// and are subject to its capacity eviction and storage horizon, which only
// ever turns a hit into a miss. Sets live in a plain map and leave only
// when deleted, emptied or expired, so an index set is never dropped while
// an entry it lists is still stored. Compound commands and batches run
// under a single mutex so a batch is observed atomically by concurrent
// readers.
type MemoryBackend struct {
	mu     sync.Mutex
	client *sturdyc.Client[*memoryEntry]
	sets   map[string]*memoryEntry
	now    func() time.Time
}

var (
	_ Backend    = (*MemoryBackend)(nil)
	_ Batcher    = (*MemoryBackend)(nil)
	_ TTLBatcher = (*MemoryBackend)(nil)
)

// NewMemoryBackend validates cfg and creates a sturdyc backed backend.
func NewMemoryBackend(cfg Config) (*MemoryBackend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[*memoryEntry](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)

	return &MemoryBackend{
		client: client,
		sets:   make(map[string]*memoryEntry),
		now:    time.Now,
	}, nil
}

// WithClock replaces the time source. Used by tests to move time forward.
func (m *MemoryBackend) WithClock(now func() time.Time) *MemoryBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	return m
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.lookupValue(key)
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, true, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(key, value, 0)
	return nil
}

func (m *MemoryBackend) SetWithExpiry(_ context.Context, key string, ttl time.Duration, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(key, value, ttl)
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, keys ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteLocked(keys...), nil
}

// ListKeys matches live keys against a glob pattern using Redis syntax.
func (m *MemoryBackend) ListKeys(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []string
	for _, key := range m.client.ScanKeys() {
		if _, ok := m.lookupValue(key); ok && match.Match(key, pattern) {
			out = append(out, key)
		}
	}
	for key := range m.sets {
		if _, ok := m.lookupSet(key); ok && match.Match(key, pattern) {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryBackend) AddToSet(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addLocked(key, members...)
	return nil
}

func (m *MemoryBackend) RemoveFromSet(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(key, members...)
	return nil
}

func (m *MemoryBackend) ReadSet(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.lookupSet(key)
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(entry.members))
	for member := range entry.members {
		out = append(out, member)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryBackend) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked(key, ttl)
	return nil
}

func (m *MemoryBackend) TTL(_ context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ttlLocked(key), nil
}

// TTLs reads the remaining lifetime of every key under one lock.
func (m *MemoryBackend) TTLs(_ context.Context, keys ...string) ([]time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]time.Duration, len(keys))
	for i, key := range keys {
		out[i] = m.ttlLocked(key)
	}
	return out, nil
}

// BeginBatch returns a batch applied under the backend lock.
func (m *MemoryBackend) BeginBatch() Batch {
	return &memoryBatch{backend: m}
}

func (m *MemoryBackend) lookupValue(key string) (*memoryEntry, bool) {
	entry, ok := m.client.Get(key)
	if !ok || entry == nil {
		return nil, false
	}
	if entry.expired(m.now()) {
		m.client.Delete(key)
		return nil, false
	}
	return entry, true
}

func (m *MemoryBackend) lookupSet(key string) (*memoryEntry, bool) {
	entry, ok := m.sets[key]
	if !ok {
		return nil, false
	}
	if entry.expired(m.now()) {
		delete(m.sets, key)
		return nil, false
	}
	return entry, true
}

func (m *MemoryBackend) lookup(key string) (*memoryEntry, bool) {
	if entry, ok := m.lookupSet(key); ok {
		return entry, true
	}
	return m.lookupValue(key)
}

func (m *MemoryBackend) ttlLocked(key string) time.Duration {
	entry, ok := m.lookup(key)
	if !ok {
		return TTLMissing
	}
	if entry.expiresAt.IsZero() {
		return TTLNoExpiry
	}
	return entry.expiresAt.Sub(m.now())
}

func (m *MemoryBackend) setLocked(key string, value []byte, ttl time.Duration) {
	stored := make([]byte, len(value))
	copy(stored, value)
	entry := &memoryEntry{value: stored}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	delete(m.sets, key)
	m.client.Set(key, entry)
}

func (m *MemoryBackend) deleteLocked(keys ...string) int64 {
	var removed int64
	for _, key := range keys {
		if _, ok := m.lookup(key); ok {
			removed++
		}
		delete(m.sets, key)
		m.client.Delete(key)
	}
	return removed
}

func (m *MemoryBackend) addLocked(key string, members ...string) {
	if len(members) == 0 {
		return
	}
	entry, ok := m.lookupSet(key)
	if !ok {
		entry = &memoryEntry{members: make(map[string]struct{}, len(members))}
		m.client.Delete(key)
		m.sets[key] = entry
	}
	for _, member := range members {
		entry.members[member] = struct{}{}
	}
}

func (m *MemoryBackend) removeLocked(key string, members ...string) {
	entry, ok := m.lookupSet(key)
	if !ok {
		return
	}
	for _, member := range members {
		delete(entry.members, member)
	}
	if len(entry.members) == 0 {
		delete(m.sets, key)
	}
}

func (m *MemoryBackend) expireLocked(key string, ttl time.Duration) {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = m.now().Add(ttl)
	}

	if entry, ok := m.lookupSet(key); ok {
		entry.expiresAt = expiresAt
		return
	}
	if entry, ok := m.lookupValue(key); ok {
		// values are shared with sturdyc readers, so replace rather than mutate
		updated := &memoryEntry{value: entry.value, expiresAt: expiresAt}
		m.client.Set(key, updated)
	}
}

type memoryBatch struct {
	backend *MemoryBackend
	ops     []func(m *MemoryBackend)
}

func (b *memoryBatch) Set(key string, value []byte) {
	b.ops = append(b.ops, func(m *MemoryBackend) { m.setLocked(key, value, 0) })
}

func (b *memoryBatch) SetWithExpiry(key string, ttl time.Duration, value []byte) {
	b.ops = append(b.ops, func(m *MemoryBackend) { m.setLocked(key, value, ttl) })
}

func (b *memoryBatch) AddToSet(key string, members ...string) {
	b.ops = append(b.ops, func(m *MemoryBackend) { m.addLocked(key, members...) })
}

func (b *memoryBatch) RemoveFromSet(key string, members ...string) {
	b.ops = append(b.ops, func(m *MemoryBackend) { m.removeLocked(key, members...) })
}

func (b *memoryBatch) Expire(key string, ttl time.Duration) {
	b.ops = append(b.ops, func(m *MemoryBackend) { m.expireLocked(key, ttl) })
}

func (b *memoryBatch) Delete(keys ...string) {
	b.ops = append(b.ops, func(m *MemoryBackend) { m.deleteLocked(keys...) })
}

func (b *memoryBatch) Execute(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ops := b.ops
	b.ops = nil

	b.backend.mu.Lock()
	defer b.backend.mu.Unlock()
	for _, op := range ops {
		op(b.backend)
	}
	return nil
}
