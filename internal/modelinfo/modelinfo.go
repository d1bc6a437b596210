// Package modelinfo reads entity names and primary keys from bun model
// metadata.
package modelinfo

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

// PK describes one primary key column of a model.
type PK struct {
	GoName string
	Column string
	Index  []int
}

// Info is the entity name and ordered primary key of a model type.
type Info struct {
	Type reflect.Type
	Name string
	PKs  []PK
}

// Inspector resolves Info through a bun table registry. Only model
// metadata is read, so the dialect used to build the registry does not
// matter.
type Inspector struct {
	tables *schema.Tables
}

// New returns an Inspector backed by a sqlite dialect table registry.
func New() *Inspector {
	return &Inspector{tables: sqlitedialect.New().Tables()}
}

// Describe returns the table name and primary key of typ. Pointer types are
// dereferenced. Structs without a bun primary key fall back to a field named
// ID.
func (i *Inspector) Describe(typ reflect.Type) (Info, error) {
	if typ == nil {
		return Info{}, fmt.Errorf("modelinfo: nil model type")
	}
	for typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return Info{}, fmt.Errorf("modelinfo: model %s is not a struct", typ)
	}

	table := i.tables.Get(typ)

	info := Info{Type: typ, Name: table.Name}
	if info.Name == "" {
		info.Name = Snake(typ.Name())
	}

	for _, field := range table.PKs {
		info.PKs = append(info.PKs, PK{
			GoName: field.GoName,
			Column: field.Name,
			Index:  append([]int(nil), field.Index...),
		})
	}

	if len(info.PKs) == 0 {
		if pk, ok := fallbackPK(typ); ok {
			info.PKs = []PK{pk}
		}
	}

	if len(info.PKs) == 0 {
		return info, fmt.Errorf("modelinfo: model %s has no primary key", typ)
	}

	return info, nil
}

func fallbackPK(typ reflect.Type) (PK, bool) {
	for _, field := range reflect.VisibleFields(typ) {
		if !field.IsExported() {
			continue
		}
		if strings.EqualFold(field.Name, "id") {
			return PK{GoName: field.Name, Column: "id", Index: field.Index}, true
		}
	}
	return PK{}, false
}
