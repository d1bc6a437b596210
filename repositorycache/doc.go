// Package repositorycache provides cached repository decorators for go-repository-bun.
//
// # Overview
//
// CachedRepository wraps a go-repository-bun repository and serves its reads
// through an entity cache. Every cached read is indexed under the records it
// returned, so a write that touches a record invalidates every cached read
// that contained it, whichever query produced it.
//
// # Basic Usage
//
//	ec, err := cache.New(cache.DefaultConfig())
//	if err != nil {
//		return err
//	}
//
//	cached, err := repositorycache.New[*User](base, ec)
//	if err != nil {
//		return err
//	}
//
//	user, err := cached.GetByID(ctx, "user-123")
//	users, total, err := cached.List(ctx)
//
// The entity name and identifier come from the model's bun metadata: the
// table name and primary key columns. WithIDKey overrides the identifier.
//
// # Cached vs Pass-through Operations
//
// ## Cached Operations (Read-only)
//
//   - Get, GetByID, GetByIdentifier
//   - List, Count
//
// Criteria are closures and cannot be compared by value. Reads with criteria
// are cached only when the context carries a query key naming them:
//
//	ctx = repositorycache.WithQueryKey(ctx, "active-users")
//	users, total, err := cached.List(ctx, activeOnly)
//
// Without a query key such reads go to the base repository.
//
// ## Pass-through Operations
//
//   - All write operations (Create, Update, Upsert, Delete and variants)
//   - All transaction-based operations (*Tx read methods)
//   - Raw SQL queries
//
// # Cache Invalidation
//
// Successful writes invalidate:
//
//   - Create, CreateMany, GetOrCreate: cached lists and counts
//   - Update, Upsert and their bulk forms: the returned records, lists and counts
//   - Delete, ForceDelete: the deleted record and counts
//   - DeleteMany, DeleteWhere: every cached read of the repository
//
// Writes inside a transaction invalidate as soon as the write returns, not
// at commit. Invalidation failures are logged and never fail the write.
//
// # Integration with Dependency Injection
//
//	container, err := di.NewContainer(cacheConfig)
//	if err != nil {
//		return err
//	}
//	cachedRepo, err := di.NewCachedRepository(container, baseRepo)
//
// # Compatibility
//
// The CachedRepository[T] fully implements the repository.Repository[T] interface
// from go-repository-bun, making it a drop-in replacement for existing repository
// usage.
package repositorycache
