package cacheinfra

import (
	"context"
	"time"
)

// TTL sentinels returned by Backend.TTL, matching the Redis TTL replies.
const (
	TTLNoExpiry time.Duration = -1
	TTLMissing  time.Duration = -2
)

// Backend is the minimal command surface a storage collaborator must expose.
// Individual commands are expected to be atomic; multi-key consistency is
// provided, when available, through Batcher.
type Backend interface {
	// Get returns (value, true, nil) on hit and (nil, false, nil) on miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value without expiry.
	Set(ctx context.Context, key string, value []byte) error
	// SetWithExpiry stores value that expires after ttl. A ttl <= 0 means no expiry.
	SetWithExpiry(ctx context.Context, key string, ttl time.Duration, value []byte) error
	// Delete removes keys and reports how many existed.
	Delete(ctx context.Context, keys ...string) (int64, error)
	// ListKeys returns the keys matching a glob pattern. Administrative use only.
	ListKeys(ctx context.Context, pattern string) ([]string, error)
	// AddToSet adds members to the set stored at key.
	AddToSet(ctx context.Context, key string, members ...string) error
	// RemoveFromSet removes members from the set stored at key.
	RemoveFromSet(ctx context.Context, key string, members ...string) error
	// ReadSet returns every member of the set stored at key.
	ReadSet(ctx context.Context, key string) ([]string, error)
	// Expire sets a ttl on key. A ttl <= 0 removes any existing expiry.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// TTL reports the remaining time to live, or TTLNoExpiry / TTLMissing.
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// Batch queues write commands and runs them together on Execute.
type Batch interface {
	Set(key string, value []byte)
	SetWithExpiry(key string, ttl time.Duration, value []byte)
	AddToSet(key string, members ...string)
	RemoveFromSet(key string, members ...string)
	Expire(key string, ttl time.Duration)
	Delete(keys ...string)
	// Execute runs the queued commands. Backends that implement Batcher apply
	// them atomically.
	Execute(ctx context.Context) error
}

// Batcher is implemented by backends able to run a Batch atomically.
type Batcher interface {
	BeginBatch() Batch
}

// BeginBatch returns the backend's own batch when it supports one and a
// sequential adapter otherwise.
func BeginBatch(b Backend) Batch {
	if batcher, ok := b.(Batcher); ok {
		return batcher.BeginBatch()
	}
	return &sequentialBatch{backend: b}
}

// TTLBatcher is implemented by backends able to read several TTLs in one
// round trip.
type TTLBatcher interface {
	TTLs(ctx context.Context, keys ...string) ([]time.Duration, error)
}

// ReadTTLs returns the TTL of every key, in order, through the backend's
// TTLBatcher when it has one and one TTL call per key otherwise.
func ReadTTLs(ctx context.Context, b Backend, keys ...string) ([]time.Duration, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	if batcher, ok := b.(TTLBatcher); ok {
		return batcher.TTLs(ctx, keys...)
	}

	out := make([]time.Duration, len(keys))
	for i, key := range keys {
		ttl, err := b.TTL(ctx, key)
		if err != nil {
			return nil, err
		}
		out[i] = ttl
	}
	return out, nil
}

type batchOp func(ctx context.Context, b Backend) error

// sequentialBatch issues the queued commands one by one. The first failure
// stops execution.
type sequentialBatch struct {
	backend Backend
	ops     []batchOp
}

func (s *sequentialBatch) Set(key string, value []byte) {
	s.ops = append(s.ops, func(ctx context.Context, b Backend) error {
		return b.Set(ctx, key, value)
	})
}

func (s *sequentialBatch) SetWithExpiry(key string, ttl time.Duration, value []byte) {
	s.ops = append(s.ops, func(ctx context.Context, b Backend) error {
		return b.SetWithExpiry(ctx, key, ttl, value)
	})
}

func (s *sequentialBatch) AddToSet(key string, members ...string) {
	s.ops = append(s.ops, func(ctx context.Context, b Backend) error {
		return b.AddToSet(ctx, key, members...)
	})
}

func (s *sequentialBatch) RemoveFromSet(key string, members ...string) {
	s.ops = append(s.ops, func(ctx context.Context, b Backend) error {
		return b.RemoveFromSet(ctx, key, members...)
	})
}

func (s *sequentialBatch) Expire(key string, ttl time.Duration) {
	s.ops = append(s.ops, func(ctx context.Context, b Backend) error {
		return b.Expire(ctx, key, ttl)
	})
}

func (s *sequentialBatch) Delete(keys ...string) {
	s.ops = append(s.ops, func(ctx context.Context, b Backend) error {
		_, err := b.Delete(ctx, keys...)
		return err
	})
}

func (s *sequentialBatch) Execute(ctx context.Context) error {
	ops := s.ops
	s.ops = nil
	for _, op := range ops {
		if err := op(ctx, s.backend); err != nil {
			return err
		}
	}
	return nil
}
