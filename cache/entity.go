package cache

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// DefaultIDField is the field read when no IDKey is configured.
const DefaultIDField = "id"

// EntityRef identifies one entity instance. ID is the canonical rendering of
// the entity's identifier; composite identifiers join their components with
// a comma in IDKey order.
type EntityRef struct {
	Type string
	ID   string
}

// NewEntityRef renders id into an EntityRef. Pass several values for a
// composite identifier, in the same order as the IDKey fields.
func NewEntityRef(entityType string, id ...any) EntityRef {
	parts := make([]string, len(id))
	for i, v := range id {
		parts[i] = formatID(v)
	}
	return EntityRef{Type: entityType, ID: strings.Join(parts, ",")}
}

func (r EntityRef) String() string { return r.Type + ":" + r.ID }

// IDKey selects the identifier of a result item. It is one of a single
// field, an ordered list of fields forming a composite identifier, or a
// resolver function.
type IDKey struct {
	fields   []string
	resolver func(item any) (any, error)
}

// Field reads the identifier from a single field or map key.
func Field(name string) IDKey { return IDKey{fields: []string{name}} }

// Fields reads a composite identifier. Every field must be present.
func Fields(names ...string) IDKey {
	return IDKey{fields: append([]string(nil), names...)}
}

// Resolver derives the identifier with fn. Returning a []any yields a
// composite identifier.
func Resolver(fn func(item any) (any, error)) IDKey { return IDKey{resolver: fn} }

// IsZero reports whether the key selects nothing.
func (k IDKey) IsZero() bool { return len(k.fields) == 0 && k.resolver == nil }

// FieldNames returns the configured field names, nil for resolvers.
func (k IDKey) FieldNames() []string { return append([]string(nil), k.fields...) }

func (k IDKey) String() string {
	switch len(k.fields) {
	case 0:
		if k.resolver != nil {
			return "resolver"
		}
		return ""
	case 1:
		return k.fields[0]
	}
	return "(" + strings.Join(k.fields, ",") + ")"
}

// Entity declares the entity a cached function returns, either by name or
// by model type. Use EntityName or ModelOf.
type Entity struct {
	name  string
	model reflect.Type
}

// EntityName declares an entity by name.
func EntityName(name string) Entity { return Entity{name: name} }

// ModelOf declares an entity by model type. The name and identifier are
// resolved by the configured ModelIntrospector.
func ModelOf[T any]() Entity {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	for typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	return Entity{model: typ}
}

// IsZero reports whether no entity is declared.
func (e Entity) IsZero() bool { return e.name == "" && e.model == nil }

// Model returns the declared model type, or nil.
func (e Entity) Model() reflect.Type { return e.model }

func (e Entity) String() string {
	if e.model != nil {
		return e.model.String()
	}
	return e.name
}

// DefaultSupportedIDTypes returns the identifier types accepted when none
// are configured: strings, every integer width and uuid.UUID.
func DefaultSupportedIDTypes() []reflect.Type {
	return []reflect.Type{
		reflect.TypeOf(""),
		reflect.TypeOf(int(0)),
		reflect.TypeOf(int8(0)),
		reflect.TypeOf(int16(0)),
		reflect.TypeOf(int32(0)),
		reflect.TypeOf(int64(0)),
		reflect.TypeOf(uint(0)),
		reflect.TypeOf(uint8(0)),
		reflect.TypeOf(uint16(0)),
		reflect.TypeOf(uint32(0)),
		reflect.TypeOf(uint64(0)),
		reflect.TypeOf(uuid.UUID{}),
	}
}

// IDTypes returns the types of samples, a shorthand for building a
// SupportedIDTypes list.
func IDTypes(samples ...any) []reflect.Type {
	out := make([]reflect.Type, 0, len(samples))
	for _, s := range samples {
		out = append(out, reflect.TypeOf(s))
	}
	return out
}

func validateIDTypes(types []reflect.Type) error {
	for _, t := range types {
		if t == nil {
			return newConfigurationError("SupportedIDTypes", "nil type")
		}
		switch t.Kind() {
		case reflect.Slice, reflect.Map, reflect.Chan, reflect.Func, reflect.Interface, reflect.Ptr, reflect.UnsafePointer:
			return newConfigurationError("SupportedIDTypes", fmt.Sprintf("%s cannot be an identifier type", t))
		}
	}
	return nil
}

type idTypeSet map[reflect.Type]struct{}

func newIDTypeSet(types []reflect.Type) idTypeSet {
	set := make(idTypeSet, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return set
}

func (s idTypeSet) has(t reflect.Type) bool {
	_, ok := s[t]
	return ok
}

// formatID renders an identifier so that equal values of different integer
// widths produce the same string.
func formatID(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case uuid.UUID:
		return id.String()
	case fmt.Stringer:
		return id.String()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.String:
		return rv.String()
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64)
	}
	return fmt.Sprint(v)
}
