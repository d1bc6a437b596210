package cache

import (
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// KeySeparator defines the delimiter used between serialized key segments.
const KeySeparator = "::"

// KeySerializer renders a method name and its arguments into a stable
// string. KeyBuilder hashes that string into the final cache key.
type KeySerializer interface {
	SerializeKey(method string, args ...any) string
}

// defaultKeySerializer implements KeySerializer using reflection.
// Strings are quoted and non-integer scalars carry a kind tag, so a rendered
// argument never contains an unquoted KeySeparator and "42" renders apart
// from 42. Integers of any width render as plain decimals.
// When canonical is set, sequences of scalars are sorted so that argument
// order inside a slice or array does not change the rendering.
type defaultKeySerializer struct {
	canonical bool
}

// NewDefaultKeySerializer returns a serializer that preserves argument order.
func NewDefaultKeySerializer() KeySerializer {
	return &defaultKeySerializer{}
}

// NewCanonicalKeySerializer returns a serializer that additionally sorts
// slices and arrays of scalars. Map keys are always sorted.
func NewCanonicalKeySerializer() KeySerializer {
	return &defaultKeySerializer{canonical: true}
}

// SerializeKey joins the method and every rendered argument with KeySeparator.
func (s *defaultKeySerializer) SerializeKey(method string, args ...any) string {
	if len(args) == 0 {
		return method
	}

	parts := make([]string, 0, len(args)+1)
	parts = append(parts, method)
	for _, arg := range args {
		parts = append(parts, s.serializeValue(arg))
	}

	return strings.Join(parts, KeySeparator)
}

func (s *defaultKeySerializer) serializeValue(v any) string {
	if v == nil {
		return "nil"
	}

	rv := reflect.ValueOf(v)
	rt := rv.Type()

	switch rt.Kind() {
	case reflect.Func:
		// stable only within the current process
		return fmt.Sprintf("func:%p", v)
	case reflect.Chan:
		return fmt.Sprintf("chan:%p", v)
	case reflect.Ptr:
		if rv.IsNil() {
			return "nil"
		}
		return s.serializeValue(rv.Elem().Interface())
	case reflect.Slice:
		if rv.IsNil() {
			return "slice:nil"
		}
		return s.serializeSequence("slice", rv)
	case reflect.Array:
		if stringer, ok := v.(fmt.Stringer); ok {
			// uuid.UUID and similar fixed-size identifiers
			return rt.String() + "(" + strconv.Quote(stringer.String()) + ")"
		}
		return s.serializeSequence("array", rv)
	case reflect.Map:
		if rv.IsNil() {
			return "map:nil"
		}
		return s.serializeMap(rv)
	case reflect.Struct:
		return s.serializeStruct(rv, rt)
	case reflect.Interface:
		if rv.IsNil() {
			return "interface:nil"
		}
		return s.serializeValue(rv.Elem().Interface())
	}

	if isBasicKind(rt.Kind()) {
		return serializeScalar(rv)
	}

	return s.jsonFallback(v)
}

func serializeScalar(rv reflect.Value) string {
	switch rv.Kind() {
	case reflect.String:
		return strconv.Quote(rv.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Bool:
		return "bool:" + strconv.FormatBool(rv.Bool())
	case reflect.Float32:
		return "float:" + strconv.FormatFloat(rv.Float(), 'g', -1, 32)
	case reflect.Float64:
		return "float:" + strconv.FormatFloat(rv.Float(), 'g', -1, 64)
	case reflect.Complex64:
		return "complex:" + strconv.FormatComplex(rv.Complex(), 'g', -1, 64)
	default:
		return "complex:" + strconv.FormatComplex(rv.Complex(), 'g', -1, 128)
	}
}

func (s *defaultKeySerializer) serializeSequence(label string, rv reflect.Value) string {
	length := rv.Len()
	parts := make([]string, length)
	for i := 0; i < length; i++ {
		parts[i] = s.serializeValue(rv.Index(i).Interface())
	}

	if s.canonical && isBasicKind(rv.Type().Elem().Kind()) {
		sort.Strings(parts)
	}

	return fmt.Sprintf("%s[%d]:{%s}", label, length, strings.Join(parts, ","))
}

// serializeMap renders key=value pairs ordered by their rendered key.
func (s *defaultKeySerializer) serializeMap(rv reflect.Value) string {
	pairs := make([][2]string, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		pairs = append(pairs, [2]string{
			s.serializeValue(iter.Key().Interface()),
			s.serializeValue(iter.Value().Interface()),
		})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0] == pairs[j][0] {
			return pairs[i][1] < pairs[j][1]
		}
		return pairs[i][0] < pairs[j][0]
	})

	rendered := make([]string, len(pairs))
	for i, p := range pairs {
		rendered[i] = p[0] + "=" + p[1]
	}

	return fmt.Sprintf("map[%d]:{%s}", len(rendered), strings.Join(rendered, ","))
}

// serializeStruct renders exported fields in declaration order. Opaque
// structs such as time.Time render through their text form.
func (s *defaultKeySerializer) serializeStruct(rv reflect.Value, rt reflect.Type) string {
	if !hasExportedFields(rt) {
		switch opaque := rv.Interface().(type) {
		case encoding.TextMarshaler:
			if text, err := opaque.MarshalText(); err == nil {
				return rt.String() + "(" + strconv.Quote(string(text)) + ")"
			}
		case fmt.Stringer:
			return rt.String() + "(" + strconv.Quote(opaque.String()) + ")"
		}
	}

	parts := make([]string, 0, rv.NumField())
	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		fieldValue := rv.Field(i)
		if !fieldValue.CanInterface() {
			continue
		}
		parts = append(parts, field.Name+":"+s.serializeValue(fieldValue.Interface()))
	}

	return fmt.Sprintf("struct:{%s}", strings.Join(parts, ","))
}

func hasExportedFields(rt reflect.Type) bool {
	for i := 0; i < rt.NumField(); i++ {
		if rt.Field(i).IsExported() {
			return true
		}
	}
	return false
}

func isBasicKind(kind reflect.Kind) bool {
	switch kind {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128,
		reflect.String:
		return true
	default:
		return false
	}
}

func (s *defaultKeySerializer) jsonFallback(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "fallback:" + reflect.TypeOf(v).String()
	}
	return "json:" + string(data)
}
