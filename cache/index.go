package cache

import (
	"context"
	"time"

	"github.com/goliatone/go-entity-cache/internal/cacheinfra"
)

// reverseIndex maintains the entity and function key sets.
//
// An index set outlives every entry it points to: its expiry only ever
// moves forward to the entry TTL plus the configured gap, and an entry
// stored without expiry makes the set persistent.
type reverseIndex struct {
	backend Backend
	keys    *KeyBuilder
	gap     time.Duration
}

// register queues the index writes for key into batch. Current index TTLs
// are read in one round trip before queuing so the extend-only rule can be
// applied.
func (x *reverseIndex) register(ctx context.Context, batch Batch, refs []EntityRef, identity, key string, ttl time.Duration) {
	indexKeys := make([]string, 0, len(refs)+1)
	for _, ref := range refs {
		indexKeys = append(indexKeys, x.keys.EntityKey(ref))
	}
	indexKeys = append(indexKeys, x.keys.FunctionKey(identity))

	horizon := time.Duration(0)
	if ttl > 0 {
		horizon = ttl + x.gap
	}

	current, err := cacheinfra.ReadTTLs(ctx, x.backend, indexKeys...)
	for i, ik := range indexKeys {
		batch.AddToSet(ik, key)
		if err != nil {
			// an unknown TTL is never shortened
			continue
		}
		if expire, ok := expiry(current[i], horizon); ok {
			batch.Expire(ik, expire)
		}
	}
}

// expiry decides the TTL to apply to an index set whose current TTL is
// current. A zero horizon asks for no expiry. The second result is false
// when the set should be left alone.
func expiry(current, horizon time.Duration) (time.Duration, bool) {
	if horizon == 0 {
		return 0, current != TTLNoExpiry
	}

	switch {
	case current == TTLNoExpiry:
		return 0, false
	case current == TTLMissing, current < horizon:
		return horizon, true
	}
	return 0, false
}

func (x *reverseIndex) lookup(ctx context.Context, ref EntityRef) ([]string, error) {
	return x.backend.ReadSet(ctx, x.keys.EntityKey(ref))
}

func (x *reverseIndex) lookupFunction(ctx context.Context, identity string) ([]string, error) {
	return x.backend.ReadSet(ctx, x.keys.FunctionKey(identity))
}

// remove detaches keys from the index of ref without deleting the entries.
func (x *reverseIndex) remove(ctx context.Context, ref EntityRef, keys ...string) error {
	return x.backend.RemoveFromSet(ctx, x.keys.EntityKey(ref), keys...)
}
