package cache

import (
	"fmt"
	"reflect"

	"github.com/goliatone/go-entity-cache/internal/modelinfo"
)

// ModelInfo is what a ModelIntrospector reports for a model type.
type ModelInfo struct {
	Name  string
	IDKey IDKey
}

// ModelIntrospector resolves the entity name and identifier of a model type.
type ModelIntrospector interface {
	Describe(model reflect.Type) (ModelInfo, error)
}

// BunIntrospector reads table names and primary keys from bun model
// metadata. Composite primary keys keep their declaration order.
type BunIntrospector struct {
	inspector *modelinfo.Inspector
}

// NewBunIntrospector returns the default ModelIntrospector.
func NewBunIntrospector() *BunIntrospector {
	return &BunIntrospector{inspector: modelinfo.New()}
}

func (b *BunIntrospector) Describe(model reflect.Type) (ModelInfo, error) {
	info, err := b.inspector.Describe(model)
	if err != nil {
		return ModelInfo{}, newConfigurationError("Entity", err.Error())
	}

	pks := info.PKs
	columns := make([]string, len(pks))
	for i, pk := range pks {
		columns[i] = pk.Column
	}

	resolver := func(item any) (any, error) {
		rv := reflect.ValueOf(item)
		for rv.IsValid() && rv.Kind() == reflect.Ptr {
			if rv.IsNil() {
				return nil, fmt.Errorf("nil %s", info.Type)
			}
			rv = rv.Elem()
		}

		parts := make([]any, len(pks))
		for i, pk := range pks {
			if rv.IsValid() && rv.Type() == info.Type {
				f, err := rv.FieldByIndexErr(pk.Index)
				if err != nil {
					return nil, err
				}
				parts[i] = f.Interface()
				continue
			}
			// rows decoded into maps or foreign structs
			v, ok := lookupField(item, pk.Column)
			if !ok {
				v, ok = lookupField(item, pk.GoName)
			}
			if !ok {
				return nil, fmt.Errorf("primary key %s not found", pk.Column)
			}
			parts[i] = v
		}
		return parts, nil
	}

	return ModelInfo{Name: info.Name, IDKey: IDKey{fields: columns, resolver: resolver}}, nil
}
