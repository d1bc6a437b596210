package di

import (
	repository "github.com/goliatone/go-repository-bun"

	"github.com/goliatone/go-entity-cache/cache"
	"github.com/goliatone/go-entity-cache/repositorycache"
)

// Container provides dependency injection for cache related components.
// It owns one EntityCache and the backend client behind it, and provides
// factory functions for cached repositories.
type Container struct {
	entityCache *cache.EntityCache
	config      cache.Config
	closeFn     func() error
}

// NewContainer creates a new DI container with the provided cache configuration.
func NewContainer(config cache.Config) (*Container, error) {
	ec, err := cache.New(config)
	if err != nil {
		return nil, err
	}

	return &Container{
		entityCache: ec,
		config:      config,
		closeFn:     func() error { return nil },
	}, nil
}

// NewContainerWithDefaults creates a new DI container using default configuration.
// This is a convenience constructor for typical use cases where custom configuration
// is not required.
func NewContainerWithDefaults() (*Container, error) {
	return NewContainer(cache.DefaultConfig())
}

// NewContainerFromFile builds a container from a YAML configuration file.
// See FileConfig for the accepted keys.
func NewContainerFromFile(path string) (*Container, error) {
	fc, err := LoadFileConfig(path)
	if err != nil {
		return nil, err
	}
	return NewContainerFromFileConfig(fc)
}

// NewContainerFromFileConfig builds a container from parsed file configuration.
func NewContainerFromFileConfig(fc FileConfig) (*Container, error) {
	config, closeFn, err := fc.CacheConfig()
	if err != nil {
		return nil, err
	}

	container, err := NewContainer(config)
	if err != nil {
		_ = closeFn()
		return nil, err
	}
	container.closeFn = closeFn
	return container, nil
}

// EntityCache returns the singleton cache instance.
func (c *Container) EntityCache() *cache.EntityCache {
	return c.entityCache
}

// Keys returns the key builder of the cache, for callers that need to
// compute or inspect keys.
func (c *Container) Keys() *cache.KeyBuilder {
	return c.entityCache.Keys()
}

// Config returns a copy of the cache configuration used by this container.
// This is useful for debugging and monitoring purposes.
func (c *Container) Config() cache.Config {
	return c.config
}

// Close releases the backend client created by the container. Backends
// passed in through cache.Config are left to their owner.
func (c *Container) Close() error {
	return c.closeFn()
}

// NewCachedRepository creates a new cached repository that wraps the provided base repository.
//
// Since Go methods cannot have type parameters, this is provided as a package-level function.
// Example: NewCachedRepository[User](container, baseUserRepository)
func NewCachedRepository[T any](container *Container, base repository.Repository[T], opts ...repositorycache.Option) (*repositorycache.CachedRepository[T], error) {
	return repositorycache.New(base, container.entityCache, opts...)
}
