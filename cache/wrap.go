package cache

import (
	"context"
	"reflect"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Option configures a cached or invalidating function.
type Option func(*funcOptions)

type funcOptions struct {
	entity      Entity
	idKey       IDKey
	supported   []reflect.Type
	keyOverride string
	normalize   bool
	paramNames  []string
	ttl         time.Duration
	ttlSet      bool
}

func collectOptions(opts []Option) funcOptions {
	var o funcOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WithEntity declares the entity type the result contains.
func WithEntity(name string) Option {
	return func(o *funcOptions) { o.entity = EntityName(name) }
}

// WithModel declares the entity by model type; its name and identifier come
// from the ModelIntrospector unless WithIDKey overrides the identifier.
func WithModel[T any]() Option {
	return func(o *funcOptions) { o.entity = ModelOf[T]() }
}

// WithEntityDecl declares the entity with a prebuilt Entity value.
func WithEntityDecl(e Entity) Option {
	return func(o *funcOptions) { o.entity = e }
}

// WithIDKey selects the identifier of result items. Defaults to Field("id").
func WithIDKey(key IDKey) Option {
	return func(o *funcOptions) { o.idKey = key }
}

// WithSupportedIDTypes overrides the accepted identifier types for this
// function.
func WithSupportedIDTypes(types ...reflect.Type) Option {
	return func(o *funcOptions) { o.supported = append([]reflect.Type(nil), types...) }
}

// WithCacheKey replaces the function identity in the key prefix.
func WithCacheKey(key string) Option {
	return func(o *funcOptions) { o.keyOverride = key }
}

// WithNormalizeArgs makes keys independent of keyword order, element order
// in scalar collections and, with WithParamNames, of positional versus
// keyword form.
func WithNormalizeArgs() Option {
	return func(o *funcOptions) { o.normalize = true }
}

// WithParamNames names positional parameters so normalized keys can unify
// positional and keyword forms of a call.
func WithParamNames(names ...string) Option {
	return func(o *funcOptions) { o.paramNames = append([]string(nil), names...) }
}

// WithTTL sets the entry TTL of this function. Rejected when the cache has
// a LockedTTL.
func WithTTL(ttl time.Duration) Option {
	return func(o *funcOptions) {
		o.ttl = ttl
		o.ttlSet = true
	}
}

// FuncName returns the fully qualified name of fn, used as the default
// function identity.
func FuncName(fn any) string {
	if fn == nil {
		return ""
	}
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func || rv.IsNil() {
		return ""
	}
	f := runtime.FuncForPC(rv.Pointer())
	if f == nil {
		return ""
	}
	return strings.TrimSuffix(f.Name(), "-fm")
}

// newExtractor resolves the entity declaration of o.
func (c *EntityCache) newExtractor(o funcOptions) (extractor, error) {
	x := extractor{
		failFast: c.cfg.FailOnMissingID,
		logger:   c.logger,
	}

	supported := c.cfg.SupportedIDTypes
	if o.supported != nil {
		if err := validateIDTypes(o.supported); err != nil {
			return x, err
		}
		supported = o.supported
	}
	x.supported = newIDTypeSet(supported)

	for _, name := range o.idKey.fields {
		if name == "" {
			return x, newConfigurationError("IDKey", "field names must not be empty")
		}
	}

	switch {
	case o.entity.model != nil:
		info, err := c.cfg.Introspector.Describe(o.entity.model)
		if err != nil {
			if IsConfigurationError(err) {
				return x, err
			}
			return x, newConfigurationError("Entity", err.Error())
		}
		x.entity = info.Name
		x.key = info.IDKey
	case o.entity.name != "":
		x.entity = o.entity.name
		x.key = Field(DefaultIDField)
	}

	if !o.idKey.IsZero() {
		x.key = o.idKey
	}
	if x.entity == "" {
		return x, nil
	}
	if x.key.IsZero() {
		x.key = Field(DefaultIDField)
	}
	return x, nil
}

// Function is a registered cached function returning R.
type Function[R any] struct {
	cache *EntityCache
	reg   *registration
}

// Register declares a cached function under identity. Registering the same
// identity again returns a handle to the first registration.
func Register[R any](c *EntityCache, identity string, opts ...Option) (*Function[R], error) {
	if identity == "" {
		return nil, newConfigurationError("Identity", "function identity is required")
	}

	o := collectOptions(opts)
	if o.ttlSet {
		if c.cfg.LockedTTL > 0 {
			return nil, newConfigurationError("TTL", "cannot set a function TTL while LockedTTL is configured")
		}
		if o.ttl <= 0 {
			return nil, newConfigurationError("TTL", "must be greater than 0")
		}
	}

	x, err := c.newExtractor(o)
	if err != nil {
		return nil, err
	}

	reg := &registration{
		identity: identity,
		entity:   x.entity,
		key: KeySpec{
			Identity:   identity,
			Override:   o.keyOverride,
			Normalize:  o.normalize,
			ParamNames: o.paramNames,
		},
		ttl: resolveTTL(o.ttl, c.cfg.LockedTTL, c.cfg.DefaultTTL),
		x:   x,
	}

	stored, loaded := c.registry.register(reg)
	if loaded && !sameRegistration(stored, reg) {
		c.logger.Warn("function already registered with different options, keeping the first",
			zap.String("function", identity),
		)
	}

	return &Function[R]{cache: c, reg: stored}, nil
}

// Do serves a call of the function. args must be the call's arguments; they
// build the cache key. load runs on a miss and its error is never cached.
func (f *Function[R]) Do(ctx context.Context, load func(context.Context) (R, error), args ...any) (R, error) {
	return readThrough(ctx, f.cache, f.reg, args, load)
}

// Identity returns the function identity.
func (f *Function[R]) Identity() string { return f.reg.identity }

// Entity returns the resolved entity name, empty when none is declared.
func (f *Function[R]) Entity() string { return f.reg.entity }

// TTL returns the effective entry TTL, zero meaning no expiry.
func (f *Function[R]) TTL() time.Duration { return f.reg.ttl }

// Key returns the cache key of a call with args.
func (f *Function[R]) Key(args ...any) string {
	return f.cache.keys.Build(f.reg.key, args...)
}

// Invalidate removes the entry of a call with args.
func (f *Function[R]) Invalidate(ctx context.Context, args ...any) (bool, error) {
	return f.cache.InvalidateKey(ctx, f.reg.identity, args...)
}

// InvalidateAll removes every entry of the function.
func (f *Function[R]) InvalidateAll(ctx context.Context) (int, error) {
	return f.cache.InvalidateFunction(ctx, f.reg.identity)
}

func identityOf(identity string, fn any) string {
	if identity != "" {
		return identity
	}
	return FuncName(fn)
}

// Wrap0 returns a cached version of fn. An empty identity defaults to the
// function name.
func Wrap0[R any](c *EntityCache, identity string, fn func(context.Context) (R, error), opts ...Option) (func(context.Context) (R, error), error) {
	f, err := Register[R](c, identityOf(identity, fn), opts...)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) (R, error) {
		return f.Do(ctx, fn)
	}, nil
}

// Wrap1 returns a cached version of a one argument function.
func Wrap1[A, R any](c *EntityCache, identity string, fn func(context.Context, A) (R, error), opts ...Option) (func(context.Context, A) (R, error), error) {
	f, err := Register[R](c, identityOf(identity, fn), opts...)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, a A) (R, error) {
		return f.Do(ctx, func(ctx context.Context) (R, error) { return fn(ctx, a) }, a)
	}, nil
}

// Wrap2 returns a cached version of a two argument function.
func Wrap2[A, B, R any](c *EntityCache, identity string, fn func(context.Context, A, B) (R, error), opts ...Option) (func(context.Context, A, B) (R, error), error) {
	f, err := Register[R](c, identityOf(identity, fn), opts...)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, a A, b B) (R, error) {
		return f.Do(ctx, func(ctx context.Context) (R, error) { return fn(ctx, a, b) }, a, b)
	}, nil
}

// Wrap3 returns a cached version of a three argument function.
func Wrap3[A, B, C, R any](c *EntityCache, identity string, fn func(context.Context, A, B, C) (R, error), opts ...Option) (func(context.Context, A, B, C) (R, error), error) {
	f, err := Register[R](c, identityOf(identity, fn), opts...)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, a A, b B, cc C) (R, error) {
		return f.Do(ctx, func(ctx context.Context) (R, error) { return fn(ctx, a, b, cc) }, a, b, cc)
	}, nil
}

// WrapN returns a cached version of a variadic function. Kwargs values among
// the arguments are keyword arguments.
func WrapN[R any](c *EntityCache, identity string, fn func(context.Context, ...any) (R, error), opts ...Option) (func(context.Context, ...any) (R, error), error) {
	f, err := Register[R](c, identityOf(identity, fn), opts...)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, args ...any) (R, error) {
		return f.Do(ctx, func(ctx context.Context) (R, error) { return fn(ctx, args...) }, args...)
	}, nil
}

// Invalidator invalidates the entities found in the results of mutating
// calls.
type Invalidator[R any] struct {
	cache *EntityCache
	x     extractor
}

// NewInvalidator declares an invalidating function. An entity is required.
func NewInvalidator[R any](c *EntityCache, opts ...Option) (*Invalidator[R], error) {
	o := collectOptions(opts)
	if o.entity.IsZero() {
		return nil, newConfigurationError("Entity", "an invalidating function requires an entity")
	}
	x, err := c.newExtractor(o)
	if err != nil {
		return nil, err
	}
	return &Invalidator[R]{cache: c, x: x}, nil
}

// Do runs load and, when it succeeds, invalidates every entity in its
// result together with the refs carried by ctx. Backend failures are
// logged; a *MissingIDError is returned with the value when
// FailOnMissingID is set.
func (v *Invalidator[R]) Do(ctx context.Context, load func(context.Context) (R, error)) (R, error) {
	result, err := load(ctx)
	if err != nil {
		return result, err
	}
	return result, v.Touch(ctx, result)
}

// Touch invalidates the entities found in value.
func (v *Invalidator[R]) Touch(ctx context.Context, value any) error {
	if !v.cache.cfg.Enabled {
		return nil
	}
	refs, err := v.cache.refsFor(ctx, v.x, value)
	if err != nil {
		return err
	}
	if _, err := v.cache.InvalidateEntities(ctx, refs...); err != nil {
		v.cache.store.degrade("invalidate", err)
	}
	return nil
}

// Entity returns the resolved entity name.
func (v *Invalidator[R]) Entity() string { return v.x.entity }

// Invalidating0 returns a version of fn that invalidates the entities in its
// result after every successful call.
func Invalidating0[R any](c *EntityCache, fn func(context.Context) (R, error), opts ...Option) (func(context.Context) (R, error), error) {
	v, err := NewInvalidator[R](c, opts...)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) (R, error) {
		return v.Do(ctx, fn)
	}, nil
}

// Invalidating1 is Invalidating0 for one argument functions.
func Invalidating1[A, R any](c *EntityCache, fn func(context.Context, A) (R, error), opts ...Option) (func(context.Context, A) (R, error), error) {
	v, err := NewInvalidator[R](c, opts...)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, a A) (R, error) {
		return v.Do(ctx, func(ctx context.Context) (R, error) { return fn(ctx, a) })
	}, nil
}

// Invalidating2 is Invalidating0 for two argument functions.
func Invalidating2[A, B, R any](c *EntityCache, fn func(context.Context, A, B) (R, error), opts ...Option) (func(context.Context, A, B) (R, error), error) {
	v, err := NewInvalidator[R](c, opts...)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, a A, b B) (R, error) {
		return v.Do(ctx, func(ctx context.Context) (R, error) { return fn(ctx, a, b) })
	}, nil
}

// InvalidatingN is Invalidating0 for variadic functions.
func InvalidatingN[R any](c *EntityCache, fn func(context.Context, ...any) (R, error), opts ...Option) (func(context.Context, ...any) (R, error), error) {
	v, err := NewInvalidator[R](c, opts...)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, args ...any) (R, error) {
		return v.Do(ctx, func(ctx context.Context) (R, error) { return fn(ctx, args...) })
	}, nil
}
