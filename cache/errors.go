package cache

import (
	"errors"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes attached to the rich errors produced by this package.
const (
	TextCodeConfiguration = "CACHE_CONFIGURATION"
	TextCodeMissingID     = "CACHE_MISSING_ID"
	TextCodeBackend       = "CACHE_BACKEND"
	TextCodeSerialization = "CACHE_SERIALIZATION"
)

// ConfigurationError reports an invalid cache or function configuration.
// It is returned by New and by the wrap functions, never by a wrapped call.
type ConfigurationError struct {
	Field   string
	Message string
	rich    *goerrors.Error
}

func newConfigurationError(field, message string) *ConfigurationError {
	e := &ConfigurationError{Field: field, Message: message}
	e.rich = goerrors.New(e.Error(), goerrors.CategoryValidation).
		WithTextCode(TextCodeConfiguration).
		WithMetadata(map[string]any{"field": field})
	return e
}

func (e *ConfigurationError) Error() string {
	return "cache: configuration error in field " + e.Field + ": " + e.Message
}

// Unwrap exposes the go-errors representation.
func (e *ConfigurationError) Unwrap() error { return e.rich }

// MissingIDError is returned by a wrapped call when FailOnMissingID is set
// and an item of the result has no usable identifier. The call's value is
// still returned alongside it; nothing is cached.
type MissingIDError struct {
	Entity string
	IDKey  string
	Item   string
	Reason string
	rich   *goerrors.Error
}

func newMissingIDError(entity string, key IDKey, item any, reason string, cause error) *MissingIDError {
	e := &MissingIDError{
		Entity: entity,
		IDKey:  key.String(),
		Item:   describeItem(item),
		Reason: reason,
	}
	meta := map[string]any{"entity": entity, "id_key": e.IDKey}
	if cause != nil {
		e.rich = goerrors.Wrap(cause, goerrors.CategoryBadInput, e.Error())
	} else {
		e.rich = goerrors.New(e.Error(), goerrors.CategoryBadInput)
	}
	e.rich = e.rich.WithTextCode(TextCodeMissingID).WithMetadata(meta)
	return e
}

func (e *MissingIDError) Error() string {
	return fmt.Sprintf("cache: cannot extract %s id (%s) from %s: %s", e.Entity, e.IDKey, e.Item, e.Reason)
}

func (e *MissingIDError) Unwrap() error { return e.rich }

// BackendError wraps a failure reported by the storage backend. Wrapped
// calls log and swallow it; manual invalidation returns it.
type BackendError struct {
	Op   string
	Key  string
	Err  error
	rich *goerrors.Error
}

func newBackendError(op, key string, err error) *BackendError {
	e := &BackendError{Op: op, Key: key, Err: err}
	e.rich = goerrors.Wrap(err, goerrors.CategoryExternal, e.Error()).
		WithTextCode(TextCodeBackend).
		WithMetadata(map[string]any{"op": op, "key": key})
	return e
}

func (e *BackendError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("cache: backend %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("cache: backend %s %q failed: %v", e.Op, e.Key, e.Err)
}

func (e *BackendError) Unwrap() error { return e.rich }

// SerializationError reports that a value could not be encoded or decoded.
// It only reaches callers through logs and tests of the codecs.
type SerializationError struct {
	Op   string
	Type string
	Err  error
	rich *goerrors.Error
}

func newSerializationError(op string, v any, err error) *SerializationError {
	e := &SerializationError{Op: op, Type: fmt.Sprintf("%T", v), Err: err}
	e.rich = goerrors.Wrap(err, goerrors.CategoryInternal, e.Error()).
		WithTextCode(TextCodeSerialization)
	return e
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("cache: %s %s failed: %v", e.Op, e.Type, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.rich }

// IsConfigurationError reports whether err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsMissingIDError reports whether err is or wraps a MissingIDError.
func IsMissingIDError(err error) bool {
	var target *MissingIDError
	return errors.As(err, &target)
}

// IsBackendError reports whether err is or wraps a BackendError.
func IsBackendError(err error) bool {
	var target *BackendError
	return errors.As(err, &target)
}

// IsSerializationError reports whether err is or wraps a SerializationError.
func IsSerializationError(err error) bool {
	var target *SerializationError
	return errors.As(err, &target)
}

func describeItem(item any) string {
	s := fmt.Sprintf("%T(%+v)", item, item)
	if len(s) > 120 {
		s = s[:117] + "..."
	}
	return s
}
