package cache

import (
	"reflect"
	"strings"

	"go.uber.org/zap"
)

// EntitySource is implemented by result wrappers that carry entity items,
// for example a page type holding records and a total count.
type EntitySource interface {
	EntityItems() []any
}

// ExtractOptions configures ExtractEntities.
type ExtractOptions struct {
	Entity           string
	IDKey            IDKey
	SupportedIDTypes []reflect.Type
	FailOnMissingID  bool
	Logger           *zap.Logger
}

// ExtractEntities returns the distinct entity references found in result.
//
// A nil result yields none. A slice or array yields one reference per item;
// an EntitySource yields one per EntityItems element; anything else is a
// single item. Items whose identifier is missing or of an unsupported type
// either abort extraction with a *MissingIDError or are skipped with a
// warning, depending on FailOnMissingID.
func ExtractEntities(result any, opts ExtractOptions) ([]EntityRef, error) {
	key := opts.IDKey
	if key.IsZero() {
		key = Field(DefaultIDField)
	}
	types := opts.SupportedIDTypes
	if types == nil {
		types = DefaultSupportedIDTypes()
	}
	x := extractor{
		entity:    opts.Entity,
		key:       key,
		supported: newIDTypeSet(types),
		failFast:  opts.FailOnMissingID,
		logger:    opts.Logger,
	}
	if x.logger == nil {
		x.logger = zap.NewNop()
	}
	return x.extract(result)
}

type extractor struct {
	entity    string
	key       IDKey
	supported idTypeSet
	failFast  bool
	logger    *zap.Logger
}

func (x extractor) extract(result any) ([]EntityRef, error) {
	if x.entity == "" {
		return nil, nil
	}
	items := x.items(result)
	if len(items) == 0 {
		return nil, nil
	}

	refs := make([]EntityRef, 0, len(items))
	seen := make(map[EntityRef]struct{}, len(items))
	for _, item := range items {
		id, err := x.resolve(item)
		if err != nil {
			if x.failFast {
				return nil, err
			}
			x.logger.Warn("skipping result item without usable id",
				zap.String("entity", x.entity),
				zap.String("id_key", x.key.String()),
				zap.Error(err),
			)
			continue
		}
		ref := EntityRef{Type: x.entity, ID: id}
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		refs = append(refs, ref)
	}
	return refs, nil
}

func (x extractor) items(result any) []any {
	if result == nil {
		return nil
	}
	if src, ok := result.(EntitySource); ok {
		return src.EntityItems()
	}

	rv := reflect.ValueOf(result)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if x.supported.has(rv.Type()) || rv.Type().Elem().Kind() == reflect.Uint8 {
			return []any{rv.Interface()}
		}
		out := make([]any, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			if !rv.Index(i).CanInterface() {
				continue
			}
			out = append(out, rv.Index(i).Interface())
		}
		return out
	}

	return []any{rv.Interface()}
}

func (x extractor) resolve(item any) (string, error) {
	if x.key.resolver != nil {
		id, err := x.key.resolver(item)
		if err != nil {
			return "", newMissingIDError(x.entity, x.key, item, "resolver failed", err)
		}
		if parts, ok := id.([]any); ok {
			return x.render(item, parts)
		}
		return x.render(item, []any{id})
	}

	if len(x.key.fields) == 1 && x.isSupportedValue(item) {
		return x.render(item, []any{item})
	}

	parts := make([]any, len(x.key.fields))
	for i, name := range x.key.fields {
		v, ok := lookupField(item, name)
		if !ok {
			return "", newMissingIDError(x.entity, x.key, item, "field "+name+" not found", nil)
		}
		parts[i] = v
	}
	return x.render(item, parts)
}

func (x extractor) render(item any, parts []any) (string, error) {
	if len(parts) == 0 {
		return "", newMissingIDError(x.entity, x.key, item, "empty identifier", nil)
	}
	rendered := make([]string, len(parts))
	for i, part := range parts {
		part = deref(part)
		if part == nil {
			return "", newMissingIDError(x.entity, x.key, item, "identifier is nil", nil)
		}
		if !x.isSupportedValue(part) {
			return "", newMissingIDError(x.entity, x.key, item, "unsupported identifier type "+reflect.TypeOf(part).String(), nil)
		}
		rendered[i] = formatID(part)
	}
	return strings.Join(rendered, ","), nil
}

func (x extractor) isSupportedValue(v any) bool {
	if v == nil {
		return false
	}
	return x.supported.has(reflect.TypeOf(v))
}

// deref unwraps non-nil pointers; a nil pointer becomes nil.
func deref(v any) any {
	rv := reflect.ValueOf(v)
	for rv.IsValid() && rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() || !rv.CanInterface() {
		return nil
	}
	return rv.Interface()
}

// lookupField reads name from a string keyed map or a struct. Struct fields
// match on json tag, bun column, Go name, then case-insensitive Go name.
func lookupField(item any, name string) (any, bool) {
	rv := reflect.ValueOf(item)
	for rv.IsValid() && (rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface) {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil, false
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		v := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, false
		}
		out := deref(v.Interface())
		return out, out != nil
	case reflect.Struct:
		index, ok := structFieldIndex(rv.Type(), name)
		if !ok {
			return nil, false
		}
		f, err := rv.FieldByIndexErr(index)
		if err != nil || !f.CanInterface() {
			return nil, false
		}
		out := deref(f.Interface())
		return out, out != nil
	}

	return nil, false
}

func structFieldIndex(t reflect.Type, name string) ([]int, bool) {
	fields := reflect.VisibleFields(t)

	for _, f := range fields {
		if f.IsExported() && tagName(f.Tag.Get("json")) == name {
			return f.Index, true
		}
	}
	for _, f := range fields {
		if f.IsExported() && tagName(f.Tag.Get("bun")) == name {
			return f.Index, true
		}
	}
	for _, f := range fields {
		if f.IsExported() && !f.Anonymous && f.Name == name {
			return f.Index, true
		}
	}
	for _, f := range fields {
		if f.IsExported() && !f.Anonymous && strings.EqualFold(f.Name, name) {
			return f.Index, true
		}
	}
	return nil, false
}

func tagName(tag string) string {
	if i := strings.IndexByte(tag, ','); i >= 0 {
		tag = tag[:i]
	}
	if tag == "-" {
		return ""
	}
	return tag
}
