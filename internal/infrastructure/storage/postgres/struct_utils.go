package postgres

import (
	"reflect"
	"sync"
)

var columnCache sync.Map // map[reflect.Type][]string

// ExtractDBColumns returns the column names of T's "db" tags in field order,
// flattening embedded structs. Results are cached per type.
//
//	columns := ExtractDBColumns[entity.StockMovement]()
//	// ["id", "product_id", "delta", "reason", ...]
func ExtractDBColumns[T any]() []string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if cached, ok := columnCache.Load(t); ok {
		return append([]string(nil), cached.([]string)...)
	}
	cols := extractColumnsFromType(t)
	columnCache.Store(t, cols)
	return append([]string(nil), cols...)
}

// QualifiedColumns prefixes every column with alias.
func QualifiedColumns(alias string, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = alias + "." + c
	}
	return out
}

func extractColumnsFromType(t reflect.Type) []string {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}

	var cols []string
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if field.Anonymous {
			cols = append(cols, extractColumnsFromType(field.Type)...)
			continue
		}

		tag := field.Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		cols = append(cols, tag)
	}
	return cols
}
