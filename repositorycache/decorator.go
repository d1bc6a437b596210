package repositorycache

import (
	"context"
	"errors"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/goliatone/go-entity-cache/cache"
)

// Interface assertion to ensure CachedRepository implements Repository[T]
var _ repository.Repository[any] = (*CachedRepository[any])(nil)

// listResult wraps the tuple result from List operations for caching
type listResult[T any] struct {
	Records []T `json:"records" msgpack:"records"`
	Total   int `json:"total" msgpack:"total"`
}

// EntityItems exposes the records for indexing; the total is not an entity.
func (r listResult[T]) EntityItems() []any {
	out := make([]any, len(r.Records))
	for i, rec := range r.Records {
		out[i] = rec
	}
	return out
}

// Option configures a CachedRepository.
type Option func(*options)

type options struct {
	prefix string
	ttl    time.Duration
	idKey  cache.IDKey
}

// WithPrefix sets the identity prefix of the cached functions. Defaults to
// "repository.<entity>".
func WithPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// WithTTL sets the entry TTL of every cached read.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

// WithIDKey overrides the identifier read from the model's primary key.
func WithIDKey(key cache.IDKey) Option {
	return func(o *options) { o.idKey = key }
}

type queryKeyContextKey struct{}

// WithQueryKey names the criteria of reads issued under ctx. Criteria are
// closures that cannot be compared by value, so reads with criteria are
// only cached when ctx carries a query key.
func WithQueryKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, queryKeyContextKey{}, key)
}

// criteriaScope returns the key argument standing for n criteria and
// whether the read may be cached.
func criteriaScope(ctx context.Context, n int) (string, bool) {
	if key, ok := ctx.Value(queryKeyContextKey{}).(string); ok && key != "" {
		return key, true
	}
	return "", n == 0
}

// CachedRepository decorates a base repository with entity indexed caching.
// Reads are cached and indexed under the repository's model; writes
// invalidate the records they return.
type CachedRepository[T any] struct {
	base   repository.Repository[T]
	cache  *cache.EntityCache
	logger *zap.Logger
	prefix string

	get             *cache.Function[T]
	getByID         *cache.Function[T]
	getByIdentifier *cache.Function[T]
	list            *cache.Function[listResult[T]]
	count           *cache.Function[int]
	invalidator     *cache.Invalidator[T]
}

// New creates a new CachedRepository that wraps the base repository with caching
func New[T any](base repository.Repository[T], ec *cache.EntityCache, opts ...Option) (*CachedRepository[T], error) {
	if base == nil {
		return nil, errors.New("repositorycache: base repository is required")
	}
	if ec == nil {
		return nil, errors.New("repositorycache: entity cache is required")
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	entityOpts := []cache.Option{cache.WithModel[T]()}
	if !o.idKey.IsZero() {
		entityOpts = append(entityOpts, cache.WithIDKey(o.idKey))
	}

	invalidator, err := cache.NewInvalidator[T](ec, entityOpts...)
	if err != nil {
		return nil, err
	}

	prefix := o.prefix
	if prefix == "" {
		prefix = "repository." + invalidator.Entity()
	}

	readOpts := entityOpts
	var countOpts []cache.Option
	if o.ttl > 0 {
		readOpts = append(readOpts, cache.WithTTL(o.ttl))
		countOpts = append(countOpts, cache.WithTTL(o.ttl))
	}

	c := &CachedRepository[T]{
		base:        base,
		cache:       ec,
		logger:      ec.Logger().With(zap.String("repository", prefix)),
		prefix:      prefix,
		invalidator: invalidator,
	}

	if c.get, err = cache.Register[T](ec, prefix+".get", readOpts...); err != nil {
		return nil, err
	}
	if c.getByID, err = cache.Register[T](ec, prefix+".get_by_id", readOpts...); err != nil {
		return nil, err
	}
	if c.getByIdentifier, err = cache.Register[T](ec, prefix+".get_by_identifier", readOpts...); err != nil {
		return nil, err
	}
	if c.list, err = cache.Register[listResult[T]](ec, prefix+".list", readOpts...); err != nil {
		return nil, err
	}
	if c.count, err = cache.Register[int](ec, prefix+".count", countOpts...); err != nil {
		return nil, err
	}

	return c, nil
}

// Entity returns the entity name records of this repository are indexed under.
func (c *CachedRepository[T]) Entity() string { return c.invalidator.Entity() }

// Prefix returns the identity prefix of the cached reads.
func (c *CachedRepository[T]) Prefix() string { return c.prefix }

// Get retrieves a single record using the provided criteria, with caching
func (c *CachedRepository[T]) Get(ctx context.Context, criteria ...repository.SelectCriteria) (T, error) {
	load := func(ctx context.Context) (T, error) {
		return c.base.Get(ctx, criteria...)
	}
	scope, ok := criteriaScope(ctx, len(criteria))
	if !ok {
		return load(ctx)
	}
	return c.get.Do(ctx, load, scope)
}

// GetByID retrieves a record by ID with optional criteria, with caching
func (c *CachedRepository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	load := func(ctx context.Context) (T, error) {
		return c.base.GetByID(ctx, id, criteria...)
	}
	scope, ok := criteriaScope(ctx, len(criteria))
	if !ok {
		return load(ctx)
	}
	return c.getByID.Do(ctx, load, id, scope)
}

// List retrieves multiple records using the provided criteria, with caching
func (c *CachedRepository[T]) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error) {
	scope, ok := criteriaScope(ctx, len(criteria))
	if !ok {
		return c.base.List(ctx, criteria...)
	}
	res, err := c.list.Do(ctx, func(ctx context.Context) (listResult[T], error) {
		records, total, err := c.base.List(ctx, criteria...)
		return listResult[T]{Records: records, Total: total}, err
	}, scope)
	if err != nil && !cache.IsMissingIDError(err) {
		return nil, 0, err
	}
	return res.Records, res.Total, err
}

// Count returns the number of records matching the criteria, with caching
func (c *CachedRepository[T]) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	load := func(ctx context.Context) (int, error) {
		return c.base.Count(ctx, criteria...)
	}
	scope, ok := criteriaScope(ctx, len(criteria))
	if !ok {
		return load(ctx)
	}
	return c.count.Do(ctx, load, scope)
}

// GetByIdentifier retrieves a record by identifier with optional criteria, with caching
func (c *CachedRepository[T]) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	load := func(ctx context.Context) (T, error) {
		return c.base.GetByIdentifier(ctx, identifier, criteria...)
	}
	scope, ok := criteriaScope(ctx, len(criteria))
	if !ok {
		return load(ctx)
	}
	return c.getByIdentifier.Do(ctx, load, identifier, scope)
}

// Create creates a new record and drops cached lists and counts.
func (c *CachedRepository[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.base.Create(ctx, record, criteria...)
	if err == nil {
		c.invalidateAfterCreate(ctx)
	}
	return result, err
}

// CreateTx creates a new record within a transaction
func (c *CachedRepository[T]) CreateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.base.CreateTx(ctx, tx, record, criteria...)
	if err == nil {
		c.invalidateAfterCreate(ctx)
	}
	return result, err
}

// CreateMany creates multiple records
func (c *CachedRepository[T]) CreateMany(ctx context.Context, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := c.base.CreateMany(ctx, records, criteria...)
	if err == nil {
		c.invalidateAfterCreate(ctx)
	}
	return result, err
}

// CreateManyTx creates multiple records within a transaction
func (c *CachedRepository[T]) CreateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := c.base.CreateManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.invalidateAfterCreate(ctx)
	}
	return result, err
}

// GetOrCreate gets a record or creates it if it doesn't exist
func (c *CachedRepository[T]) GetOrCreate(ctx context.Context, record T) (T, error) {
	result, err := c.base.GetOrCreate(ctx, record)
	if err == nil {
		c.invalidateAfterCreate(ctx)
	}
	return result, err
}

// GetOrCreateTx gets a record or creates it if it doesn't exist within a transaction
func (c *CachedRepository[T]) GetOrCreateTx(ctx context.Context, tx bun.IDB, record T) (T, error) {
	result, err := c.base.GetOrCreateTx(ctx, tx, record)
	if err == nil {
		c.invalidateAfterCreate(ctx)
	}
	return result, err
}

// Update updates a record and invalidates every cached read containing it.
func (c *CachedRepository[T]) Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.Update(ctx, record, criteria...)
	if err == nil {
		c.invalidateAfterUpdate(ctx, result)
	}
	return result, err
}

// UpdateTx updates a record within a transaction
func (c *CachedRepository[T]) UpdateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.UpdateTx(ctx, tx, record, criteria...)
	if err == nil {
		c.invalidateAfterUpdate(ctx, result)
	}
	return result, err
}

// UpdateMany updates multiple records
func (c *CachedRepository[T]) UpdateMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpdateMany(ctx, records, criteria...)
	if err == nil {
		c.invalidateAfterUpdate(ctx, result)
	}
	return result, err
}

// UpdateManyTx updates multiple records within a transaction
func (c *CachedRepository[T]) UpdateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpdateManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.invalidateAfterUpdate(ctx, result)
	}
	return result, err
}

// Upsert inserts or updates a record
func (c *CachedRepository[T]) Upsert(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.Upsert(ctx, record, criteria...)
	if err == nil {
		c.invalidateAfterUpdate(ctx, result)
	}
	return result, err
}

// UpsertTx inserts or updates a record within a transaction
func (c *CachedRepository[T]) UpsertTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.UpsertTx(ctx, tx, record, criteria...)
	if err == nil {
		c.invalidateAfterUpdate(ctx, result)
	}
	return result, err
}

// UpsertMany inserts or updates multiple records
func (c *CachedRepository[T]) UpsertMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpsertMany(ctx, records, criteria...)
	if err == nil {
		c.invalidateAfterUpdate(ctx, result)
	}
	return result, err
}

// UpsertManyTx inserts or updates multiple records within a transaction
func (c *CachedRepository[T]) UpsertManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpsertManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.invalidateAfterUpdate(ctx, result)
	}
	return result, err
}

// Delete deletes a record
func (c *CachedRepository[T]) Delete(ctx context.Context, record T) error {
	err := c.base.Delete(ctx, record)
	if err == nil {
		c.invalidateAfterDelete(ctx, record)
	}
	return err
}

// DeleteTx deletes a record within a transaction
func (c *CachedRepository[T]) DeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	err := c.base.DeleteTx(ctx, tx, record)
	if err == nil {
		c.invalidateAfterDelete(ctx, record)
	}
	return err
}

// DeleteMany deletes multiple records based on criteria
func (c *CachedRepository[T]) DeleteMany(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteMany(ctx, criteria...)
	if err == nil {
		c.invalidateAfterCriteriaOperation(ctx)
	}
	return err
}

// DeleteManyTx deletes multiple records based on criteria within a transaction
func (c *CachedRepository[T]) DeleteManyTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteManyTx(ctx, tx, criteria...)
	if err == nil {
		c.invalidateAfterCriteriaOperation(ctx)
	}
	return err
}

// DeleteWhere deletes records based on criteria
func (c *CachedRepository[T]) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteWhere(ctx, criteria...)
	if err == nil {
		c.invalidateAfterCriteriaOperation(ctx)
	}
	return err
}

// DeleteWhereTx deletes records based on criteria within a transaction
func (c *CachedRepository[T]) DeleteWhereTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteWhereTx(ctx, tx, criteria...)
	if err == nil {
		c.invalidateAfterCriteriaOperation(ctx)
	}
	return err
}

// ForceDelete force deletes a record (bypassing soft delete)
func (c *CachedRepository[T]) ForceDelete(ctx context.Context, record T) error {
	err := c.base.ForceDelete(ctx, record)
	if err == nil {
		c.invalidateAfterDelete(ctx, record)
	}
	return err
}

// ForceDeleteTx force deletes a record within a transaction (bypassing soft delete)
func (c *CachedRepository[T]) ForceDeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	err := c.base.ForceDeleteTx(ctx, tx, record)
	if err == nil {
		c.invalidateAfterDelete(ctx, record)
	}
	return err
}

// GetTx retrieves a single record using the provided criteria within a transaction
func (c *CachedRepository[T]) GetTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetTx(ctx, tx, criteria...)
}

// GetByIDTx retrieves a record by ID with optional criteria within a transaction
func (c *CachedRepository[T]) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIDTx(ctx, tx, id, criteria...)
}

// ListTx retrieves multiple records using the provided criteria within a transaction
func (c *CachedRepository[T]) ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]T, int, error) {
	return c.base.ListTx(ctx, tx, criteria...)
}

// CountTx returns the number of records matching the criteria within a transaction
func (c *CachedRepository[T]) CountTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (int, error) {
	return c.base.CountTx(ctx, tx, criteria...)
}

// GetByIdentifierTx retrieves a record by identifier with optional criteria within a transaction
func (c *CachedRepository[T]) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIdentifierTx(ctx, tx, identifier, criteria...)
}

// Raw executes a raw SQL query and returns the results
func (c *CachedRepository[T]) Raw(ctx context.Context, sql string, args ...any) ([]T, error) {
	return c.base.Raw(ctx, sql, args...)
}

// RawTx executes a raw SQL query within a transaction and returns the results
func (c *CachedRepository[T]) RawTx(ctx context.Context, tx bun.IDB, sql string, args ...any) ([]T, error) {
	return c.base.RawTx(ctx, tx, sql, args...)
}

// Handlers returns the model handlers from the base repository
func (c *CachedRepository[T]) Handlers() repository.ModelHandlers[T] {
	return c.base.Handlers()
}

type fnScope struct {
	name       string
	invalidate func(context.Context) (int, error)
}

func (c *CachedRepository[T]) listScopes() []fnScope {
	return []fnScope{
		{"list", c.list.InvalidateAll},
		{"count", c.count.InvalidateAll},
	}
}

func (c *CachedRepository[T]) allScopes() []fnScope {
	return append([]fnScope{
		{"get", c.get.InvalidateAll},
		{"get_by_id", c.getByID.InvalidateAll},
		{"get_by_identifier", c.getByIdentifier.InvalidateAll},
	}, c.listScopes()...)
}

// invalidateScopes drops whole cached functions. Failures are logged; the
// write already succeeded.
func (c *CachedRepository[T]) invalidateScopes(ctx context.Context, op string, scopes []fnScope) {
	for _, s := range scopes {
		if _, err := s.invalidate(ctx); err != nil {
			c.logger.Warn("repository cache invalidation failed",
				zap.String("op", op),
				zap.String("scope", s.name),
				zap.Error(err),
			)
		}
	}
}

// touch invalidates the entities found in records, a T or a []T.
func (c *CachedRepository[T]) touch(ctx context.Context, op string, records any) {
	if err := c.invalidator.Touch(ctx, records); err != nil {
		c.logger.Warn("repository entity invalidation failed", zap.String("op", op), zap.Error(err))
	}
}

// invalidateAfterCreate drops lists and counts; new records cannot be in
// any cached single record read.
func (c *CachedRepository[T]) invalidateAfterCreate(ctx context.Context) {
	c.invalidateScopes(ctx, "create", c.listScopes())
}

// invalidateAfterUpdate invalidates the updated entities and the lists and
// counts whose filters they may now match.
func (c *CachedRepository[T]) invalidateAfterUpdate(ctx context.Context, records any) {
	c.touch(ctx, "update", records)
	c.invalidateScopes(ctx, "update", c.listScopes())
}

// invalidateAfterDelete invalidates the deleted entity. Lists holding it are
// reached through its index; counts are not indexed.
func (c *CachedRepository[T]) invalidateAfterDelete(ctx context.Context, record T) {
	c.touch(ctx, "delete", record)
	c.invalidateScopes(ctx, "delete", []fnScope{{"count", c.count.InvalidateAll}})
}

// invalidateAfterCriteriaOperation drops every cached read of the
// repository since the affected records are unknown.
func (c *CachedRepository[T]) invalidateAfterCriteriaOperation(ctx context.Context) {
	c.invalidateScopes(ctx, "delete_where", c.allScopes())
}
