// Package cache provides an entity indexed read-through cache.
//
// # Overview
//
// Functions are wrapped so that their results are cached under a key built
// from the function identity and the call arguments. Each cached result is
// also indexed under the entities it contains, so a write to one entity can
// remove exactly the cached results that included it:
//
//	getUser, err := cache.Wrap1(ec, "users.get", repo.GetUser, cache.WithEntity("user"))
//	u, err := getUser(ctx, 42)           // miss: runs repo.GetUser and caches
//	u, err = getUser(ctx, 42)            // hit
//	_, err = ec.InvalidateEntity(ctx, "user", 42)
//	u, err = getUser(ctx, 42)            // miss again
//
// # Keys
//
// Every key lives under the configured namespace:
//
//	<ns>:cache:<identity>:<hash>   cached results
//	<ns>:entity:<type>:<id>        entity index sets
//	<ns>:fn:<identity>             function key sets
//
// The hash is an xxhash of the rendered arguments, or "noargs" for calls
// without arguments. Kwargs values among the arguments are keyword
// arguments. WithNormalizeArgs and WithParamNames make equivalent call forms
// share a key.
//
// Arguments are rendered before hashing with strings quoted and non-integer
// scalars tagged by kind, so 42 and "42" get different keys while integer
// widths share one. Function values in arguments render by address and are
// only stable within one process.
//
// # Entities
//
// An entity is declared by name (WithEntity) or by model type (WithModel).
// Model types resolve their name and primary key through a
// ModelIntrospector; the default reads bun model metadata. Identifiers are
// read from a field (Field), a composite of fields (Fields) or a resolver
// (Resolver). Only identifier types listed in SupportedIDTypes are accepted.
//
// Results may be a single item, a slice, an EntitySource or nil. Items
// without a usable identifier either fail the call with a *MissingIDError or
// are skipped with a warning, depending on FailOnMissingID.
//
// # Failure Handling
//
// Caching never changes what a wrapped call returns. Backend and codec
// failures during a wrapped call degrade to running the function and are
// logged. Manual invalidation methods return *BackendError so callers can
// retry. Errors returned by a wrapped function are never cached.
//
// # Consistency
//
// A result and its index entries are written in a single batch, which the
// builtin backends apply atomically. Index sets outlive their entries by
// IndexTTLGap and their expiry only moves forward. A concurrent write that
// races with a population may still leave a stale entry until it expires;
// there is no versioning or locking.
package cache
