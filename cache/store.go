package cache

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// resultStore reads and writes serialized results. Every failure degrades:
// reads become misses and writes are dropped.
type resultStore struct {
	backend Backend
	codec   Codec
	logger  *zap.Logger
	metrics Metrics
}

func (s *resultStore) get(ctx context.Context, key string) ([]byte, bool) {
	data, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		s.degrade("get", newBackendError("get", key, err))
		return nil, false
	}
	return data, ok
}

func (s *resultStore) decode(key string, data []byte, out any) bool {
	if err := s.codec.Unmarshal(data, out); err != nil {
		s.degrade("decode", newSerializationError("decode", out, err), zap.String("key", key))
		return false
	}
	return true
}

func (s *resultStore) encode(key string, v any) ([]byte, bool) {
	data, err := s.codec.Marshal(v)
	if err != nil {
		s.degrade("encode", newSerializationError("encode", v, err), zap.String("key", key))
		return nil, false
	}
	return data, true
}

// put queues the entry write. A ttl of zero stores without expiry.
func (s *resultStore) put(batch Batch, key string, data []byte, ttl time.Duration) {
	if ttl > 0 {
		batch.SetWithExpiry(key, ttl, data)
		return
	}
	batch.Set(key, data)
}

func (s *resultStore) degrade(op string, err error, fields ...zap.Field) {
	s.metrics.Degraded(op)
	s.logger.Warn("cache operation degraded", append(fields, zap.String("op", op), zap.Error(err))...)
}

// resolveTTL picks the effective TTL: explicit, then locked, then default.
// Zero means no expiry.
func resolveTTL(explicit, locked, def time.Duration) time.Duration {
	switch {
	case explicit > 0:
		return explicit
	case locked > 0:
		return locked
	case def > 0:
		return def
	}
	return 0
}
