package postgres

import (
	"reflect"
	"sync"
)

// columnSpec describes one db-tagged field as a path of field indices,
// so embedded structs (entity.Catalog, entity.Document) resolve in a
// single step at lookup time.
type columnSpec struct {
	name string
	path []int
}

// structCache holds per-type column specs. Reflection runs once per
// type; every later call is a map load plus direct field access.
var structCache sync.Map // map[reflect.Type][]columnSpec

func columnSpecs(t reflect.Type) []columnSpec {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if cached, ok := structCache.Load(t); ok {
		return cached.([]columnSpec)
	}

	var specs []columnSpec
	if t.Kind() == reflect.Struct {
		specs = collectColumns(t, nil)
	}
	structCache.Store(t, specs)
	return specs
}

func collectColumns(t reflect.Type, prefix []int) []columnSpec {
	var specs []columnSpec
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		path := append(append([]int(nil), prefix...), i)

		if field.Anonymous {
			ft := field.Type
			if ft.Kind() == reflect.Ptr {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				specs = append(specs, collectColumns(ft, path)...)
			}
			continue
		}

		tag := field.Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		specs = append(specs, columnSpec{name: tag, path: path})
	}
	return specs
}

// ExtractDBColumns returns the column names from a struct's "db" tags,
// embedded structs included, in declaration order. Called once per
// repository at initialization to build SELECT lists.
func ExtractDBColumns[T any]() []string {
	var zero T
	specs := columnSpecs(reflect.TypeOf(zero))
	cols := make([]string, len(specs))
	for i, spec := range specs {
		cols[i] = spec.name
	}
	return cols
}

// StructToMap converts a struct to a column->value map using "db" tags.
// Used to feed squirrel INSERT/UPDATE builders without hand-written
// column lists.
func StructToMap(v any) map[string]any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	specs := columnSpecs(rv.Type())
	res := make(map[string]any, len(specs))
	for _, spec := range specs {
		res[spec.name] = rv.FieldByIndex(spec.path).Interface()
	}
	return res
}
