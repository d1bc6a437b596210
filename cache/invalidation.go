package cache

import (
	"context"

	"go.uber.org/zap"
)

// InvalidateEntity removes every cached result that contained the entity
// and the entity's index. For composite identifiers pass every component in
// IDKey order. It returns the number of cached keys removed; an unknown
// entity is not an error.
func (c *EntityCache) InvalidateEntity(ctx context.Context, entityType string, id ...any) (int, error) {
	if entityType == "" || len(id) == 0 {
		return 0, newConfigurationError("Entity", "entity type and id are required")
	}
	return c.InvalidateEntities(ctx, NewEntityRef(entityType, id...))
}

// InvalidateEntities invalidates several entities in one batch.
func (c *EntityCache) InvalidateEntities(ctx context.Context, refs ...EntityRef) (int, error) {
	if !c.cfg.Enabled {
		return 0, nil
	}
	refs = dedupeRefs(append([]EntityRef(nil), refs...))
	if len(refs) == 0 {
		return 0, nil
	}

	var keys []string
	seen := make(map[string]struct{})
	indexKeys := make([]string, 0, len(refs))
	for _, ref := range refs {
		members, err := c.index.lookup(ctx, ref)
		if err != nil {
			return 0, newBackendError("read index", c.keys.EntityKey(ref), err)
		}
		for _, key := range members {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
		indexKeys = append(indexKeys, c.keys.EntityKey(ref))
	}

	batch := c.beginBatch()
	if len(keys) > 0 {
		batch.Delete(keys...)
	}
	batch.Delete(indexKeys...)
	if err := batch.Execute(ctx); err != nil {
		return 0, newBackendError("invalidate entities", "", err)
	}

	c.metrics.Invalidated("entity", len(keys))
	c.logger.Debug("entities invalidated", zap.Int("entities", len(refs)), zap.Int("keys", len(keys)))
	return len(keys), nil
}

// InvalidateModel invalidates an entity declared by model type.
func InvalidateModel[T any](ctx context.Context, c *EntityCache, id ...any) (int, error) {
	info, err := c.cfg.Introspector.Describe(ModelOf[T]().model)
	if err != nil {
		return 0, err
	}
	return c.InvalidateEntity(ctx, info.Name, id...)
}

// InvalidateFunction removes every cached result of the function and its
// key set. It returns the number of cached keys removed.
func (c *EntityCache) InvalidateFunction(ctx context.Context, identity string) (int, error) {
	if !c.cfg.Enabled {
		return 0, nil
	}

	fnKey := c.keys.FunctionKey(identity)
	keys, err := c.index.lookupFunction(ctx, identity)
	if err != nil {
		return 0, newBackendError("read function index", fnKey, err)
	}

	batch := c.beginBatch()
	if len(keys) > 0 {
		batch.Delete(keys...)
	}
	batch.Delete(fnKey)
	if err := batch.Execute(ctx); err != nil {
		return 0, newBackendError("invalidate function", fnKey, err)
	}

	c.metrics.Invalidated("function", len(keys))
	c.logger.Debug("function invalidated", zap.String("function", identity), zap.Int("keys", len(keys)))
	return len(keys), nil
}

// InvalidateKey removes the cached result of one call. Index sets are left
// untouched; stale members are harmless. It reports whether an entry was
// removed.
func (c *EntityCache) InvalidateKey(ctx context.Context, identity string, args ...any) (bool, error) {
	if !c.cfg.Enabled {
		return false, nil
	}

	key := c.GetCacheKey(identity, args...)
	removed, err := c.backend.Delete(ctx, key)
	if err != nil {
		return false, newBackendError("delete", key, err)
	}
	if removed > 0 {
		c.metrics.Invalidated("key", int(removed))
	}
	return removed > 0, nil
}

// InvalidateAll removes every key in the namespace and returns how many were
// removed. Other namespaces on the same backend are untouched.
func (c *EntityCache) InvalidateAll(ctx context.Context) (int, error) {
	if !c.cfg.Enabled {
		return 0, nil
	}

	pattern := c.keys.NamespacePattern()
	keys, err := c.backend.ListKeys(ctx, pattern)
	if err != nil {
		return 0, newBackendError("list keys", pattern, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	removed, err := c.backend.Delete(ctx, keys...)
	if err != nil {
		return 0, newBackendError("delete", pattern, err)
	}

	c.metrics.Invalidated("namespace", int(removed))
	c.logger.Info("namespace invalidated", zap.Int64("keys", removed))
	return int(removed), nil
}

// Unindex detaches keys from the index of ref without deleting the cached
// entries, so later invalidation of ref no longer reaches them.
func (c *EntityCache) Unindex(ctx context.Context, ref EntityRef, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.index.remove(ctx, ref, keys...); err != nil {
		return newBackendError("unindex", c.keys.EntityKey(ref), err)
	}
	return nil
}
