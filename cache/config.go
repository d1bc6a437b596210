package cache

import (
	"errors"
	"reflect"
	"regexp"
	"sort"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"
)

// namespacePattern excludes glob metacharacters so that the namespace
// pattern used by InvalidateAll only matches the namespace's own keys.
var namespacePattern = regexp.MustCompile(`^[A-Za-z0-9_.:/-]+$`)

// Config configures an EntityCache. Start from DefaultConfig: the zero
// value has caching disabled.
type Config struct {
	// Backend stores entries and index sets. When nil, an in-process
	// backend is built from Memory.
	Backend Backend

	// Memory configures the fallback in-process backend.
	Memory MemoryConfig

	// Namespace prefixes every key. Distinct namespaces on one backend do
	// not see each other's entries.
	Namespace string

	// LockedTTL forces the TTL of every cached function. Functions that
	// request their own TTL are rejected when it is set.
	LockedTTL time.Duration

	// DefaultTTL applies to functions without their own TTL. Zero stores
	// entries without expiry.
	DefaultTTL time.Duration

	// IndexTTLGap keeps index sets alive past the entries they point to.
	IndexTTLGap time.Duration

	// FailOnMissingID makes a cached call return a *MissingIDError when an
	// item of its result has no usable identifier. Otherwise the item is
	// skipped with a warning.
	FailOnMissingID bool

	// Codec serializes results. Defaults to JSONCodec.
	Codec Codec

	// SupportedIDTypes lists the identifier types accepted during
	// extraction. Defaults to DefaultSupportedIDTypes.
	SupportedIDTypes []reflect.Type

	// Enabled turns caching on. When false every call passes straight to
	// the wrapped function.
	Enabled bool

	// Debug raises the built-in logger to debug level.
	Debug bool

	// SingleFlight collapses concurrent misses of one function on the same
	// key into one call of the wrapped function. The call runs with the
	// values of the first caller's context, including refs added with
	// WithEntityRefs, but not its cancellation. Each caller stops waiting
	// when its own context is done.
	SingleFlight bool

	// Logger receives cache logs. When nil a warn-level production logger
	// is built, or a development logger when Debug is set.
	Logger *zap.Logger

	// Metrics receives cache events. Defaults to NoopMetrics.
	Metrics Metrics

	// Introspector resolves model declarations. Defaults to a bun based
	// introspector.
	Introspector ModelIntrospector
}

// DefaultConfig returns a Config with caching enabled on an in-process
// backend.
func DefaultConfig() Config {
	return Config{
		Memory:          DefaultMemoryConfig(),
		Namespace:       "entitycache",
		DefaultTTL:      5 * time.Minute,
		IndexTTLGap:     5 * time.Minute,
		FailOnMissingID: true,
		Codec:           JSONCodec{},
		Enabled:         true,
	}
}

// Validate checks the configuration and returns a *ConfigurationError
// naming the first invalid field.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Namespace, validation.Required, validation.Match(namespacePattern)),
		validation.Field(&c.LockedTTL, validation.Min(time.Duration(0))),
		validation.Field(&c.DefaultTTL, validation.Min(time.Duration(0))),
		validation.Field(&c.IndexTTLGap, validation.Min(time.Duration(0))),
	)
	if err != nil {
		return toConfigurationError(err)
	}

	if err := validateIDTypes(c.SupportedIDTypes); err != nil {
		return err
	}

	if c.Backend == nil {
		if err := c.Memory.Validate(); err != nil {
			return newConfigurationError("Memory", err.Error())
		}
	}

	return nil
}

func (c Config) withDefaults() Config {
	if c.Codec == nil {
		c.Codec = JSONCodec{}
	}
	if c.SupportedIDTypes == nil {
		c.SupportedIDTypes = DefaultSupportedIDTypes()
	}
	if c.Metrics == nil {
		c.Metrics = NoopMetrics{}
	}
	if c.Introspector == nil {
		c.Introspector = NewBunIntrospector()
	}
	return c
}

// toConfigurationError converts ozzo validation errors, reporting the
// first failing field in name order.
func toConfigurationError(err error) error {
	var fieldErrs validation.Errors
	if !errors.As(err, &fieldErrs) {
		return newConfigurationError("Config", err.Error())
	}

	fields := make([]string, 0, len(fieldErrs))
	for field := range fieldErrs {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	if len(fields) == 0 {
		return newConfigurationError("Config", err.Error())
	}

	return newConfigurationError(fields[0], fieldErrs[fields[0]].Error())
}

func buildLogger(cfg Config) *zap.Logger {
	if cfg.Logger != nil {
		return cfg.Logger
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if cfg.Debug {
		zc = zap.NewDevelopmentConfig()
	}

	logger, err := zc.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
