package cache

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/goliatone/go-entity-cache/internal/cacheinfra"
)

// EntityCache caches function results and indexes them by the entities
// they contain, so that invalidating an entity removes every cached result
// that included it.
type EntityCache struct {
	cfg      Config
	backend  Backend
	keys     *KeyBuilder
	store    *resultStore
	index    *reverseIndex
	registry *registry
	logger   *zap.Logger
	metrics  Metrics
	flight   singleflight.Group
}

// New validates cfg and builds an EntityCache.
func New(cfg Config) (*EntityCache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	logger := buildLogger(cfg).With(
		zap.String("component", "entitycache"),
		zap.String("namespace", cfg.Namespace),
	)

	backend := cfg.Backend
	if backend == nil {
		mem, err := NewMemoryBackend(cfg.Memory)
		if err != nil {
			return nil, newConfigurationError("Memory", err.Error())
		}
		backend = mem
	}

	keys := NewKeyBuilder(cfg.Namespace)
	c := &EntityCache{
		cfg:      cfg,
		backend:  backend,
		keys:     keys,
		registry: newRegistry(),
		logger:   logger,
		metrics:  cfg.Metrics,
	}
	c.store = &resultStore{backend: backend, codec: cfg.Codec, logger: logger, metrics: cfg.Metrics}
	c.index = &reverseIndex{backend: backend, keys: keys, gap: cfg.IndexTTLGap}

	if !cfg.Enabled {
		logger.Warn("entity cache is disabled, wrapped calls pass through")
	}

	return c, nil
}

// Enabled reports whether caching is active.
func (c *EntityCache) Enabled() bool { return c.cfg.Enabled }

// Namespace returns the key namespace.
func (c *EntityCache) Namespace() string { return c.cfg.Namespace }

// Backend returns the storage backend.
func (c *EntityCache) Backend() Backend { return c.backend }

// Keys returns the key builder of this instance.
func (c *EntityCache) Keys() *KeyBuilder { return c.keys }

// Logger returns the cache logger.
func (c *EntityCache) Logger() *zap.Logger { return c.logger }

// Functions lists the identities of every registered cached function.
func (c *EntityCache) Functions() []string { return c.registry.identities() }

// GetCacheKey returns the key a call of identity with args is stored under.
// Registered functions honor their key override and normalization.
func (c *EntityCache) GetCacheKey(identity string, args ...any) string {
	spec := KeySpec{Identity: identity}
	if reg, ok := c.registry.lookup(identity); ok {
		spec = reg.key
	}
	return c.keys.Build(spec, args...)
}

// EntityRefs extracts the references a result would be indexed under for
// the given entity options. Context refs are not included.
func (c *EntityCache) EntityRefs(result any, opts ...Option) ([]EntityRef, error) {
	o := collectOptions(opts)
	x, err := c.newExtractor(o)
	if err != nil {
		return nil, err
	}
	return x.extract(result)
}

func (c *EntityCache) beginBatch() Batch {
	return cacheinfra.BeginBatch(c.backend)
}

// refsFor extracts the references of result and adds the refs carried by ctx.
func (c *EntityCache) refsFor(ctx context.Context, x extractor, result any) ([]EntityRef, error) {
	refs, err := x.extract(result)
	if err != nil {
		return nil, err
	}
	return dedupeRefs(append(refs, entityRefsFromContext(ctx)...)), nil
}

type flightResult[R any] struct {
	value    R
	err      error
	panicked any
}

// readThrough serves a cached call: hit, or run load and populate.
func readThrough[R any](ctx context.Context, c *EntityCache, reg *registration, args []any, load func(context.Context) (R, error)) (R, error) {
	if !c.cfg.Enabled {
		return load(ctx)
	}

	key := c.keys.Build(reg.key, args...)
	if data, ok := c.store.get(ctx, key); ok {
		var out R
		if c.store.decode(key, data, &out) {
			c.metrics.Hit(reg.identity)
			c.logger.Debug("cache hit", zap.String("function", reg.identity), zap.String("key", key))
			return out, nil
		}
	}

	c.metrics.Miss(reg.identity)
	c.logger.Debug("cache miss", zap.String("function", reg.identity), zap.String("key", key))

	if !c.cfg.SingleFlight {
		return populate(ctx, c, reg, key, load)
	}

	// functions may share a key through an override, so the flight is
	// scoped to the identity as well
	ch := c.flight.DoChan(reg.identity+"\x00"+key, func() (out any, _ error) {
		defer func() {
			if r := recover(); r != nil {
				out = flightResult[R]{panicked: r}
			}
		}()
		value, err := populate(context.WithoutCancel(ctx), c, reg, key, load)
		return flightResult[R]{value: value, err: err}, nil
	})

	select {
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	case shared := <-ch:
		res, ok := shared.Val.(flightResult[R])
		if !ok {
			return populate(ctx, c, reg, key, load)
		}
		if res.panicked != nil {
			panic(res.panicked)
		}
		return res.value, res.err
	}
}

// populate runs load and stores its result with the index entries in one
// batch. Errors of load are returned unchanged and nothing is cached.
func populate[R any](ctx context.Context, c *EntityCache, reg *registration, key string, load func(context.Context) (R, error)) (R, error) {
	result, err := load(ctx)
	if err != nil {
		return result, err
	}

	refs, err := c.refsFor(ctx, reg.x, result)
	if err != nil {
		return result, err
	}

	data, ok := c.store.encode(key, result)
	if !ok {
		return result, nil
	}

	batch := c.beginBatch()
	c.store.put(batch, key, data, reg.ttl)
	c.index.register(ctx, batch, refs, reg.identity, key, reg.ttl)
	if err := batch.Execute(ctx); err != nil {
		c.store.degrade("populate", newBackendError("populate", key, err))
		return result, nil
	}

	c.metrics.Populated(reg.identity, len(refs))
	c.logger.Debug("cache populated",
		zap.String("function", reg.identity),
		zap.String("key", key),
		zap.Int("entities", len(refs)),
	)
	return result, nil
}
