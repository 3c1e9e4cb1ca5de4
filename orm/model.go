package orm

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Model is implemented by every statically declared entity type this
// package maps to and from SQL. TableName names the backing table; the
// primary-key struct field is found by struct-tag convention, not by a
// second interface method — see the `orm:"column,pk"` tag below.
type Model interface {
	TableName() string
}

// fieldSpec describes one mapped struct field: which column it binds to,
// whether it is the primary key, and its declared Go type for decode
// dispatch.
type fieldSpec struct {
	structIndex int
	column      string
	pk          bool
	fieldType   reflect.Type
}

// modelSpec is the parsed, cached shape of a Model type: its table name
// and ordered field list. Parsing a struct's tags via reflection on every
// call would be wasteful since the shape never changes after compile
// time, so specFor caches by reflect.Type the same way the dynamic CRUD
// layer caches table schemas by name.
type modelSpec struct {
	table  string
	fields []fieldSpec
	pkIdx  int // index into fields, -1 if the model declares no primary key
}

var specCache sync.Map // reflect.Type -> *modelSpec

// specFor returns the parsed mapping for m's underlying struct type,
// parsing and caching it on first use. m may be a pointer or a value;
// only its type and TableName() are consulted.
func specFor(m Model) (*modelSpec, error) {
	t := reflect.TypeOf(m)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if cached, ok := specCache.Load(t); ok {
		return cached.(*modelSpec), nil
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("orm: model %s is not a struct", t)
	}

	spec := &modelSpec{table: m.TableName(), pkIdx: -1}
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.PkgPath != "" {
			continue // unexported field
		}
		tag, ok := sf.Tag.Lookup("orm")
		if tag == "-" {
			continue
		}
		parts := strings.Split(tag, ",")
		column := parts[0]
		if column == "" {
			column = strings.ToLower(sf.Name)
		}
		pk := false
		for _, p := range parts[1:] {
			if p == "pk" {
				pk = true
			}
		}
		if !ok && column == "" {
			continue
		}
		fs := fieldSpec{structIndex: i, column: column, pk: pk, fieldType: sf.Type}
		if pk {
			spec.pkIdx = len(spec.fields)
		}
		spec.fields = append(spec.fields, fs)
	}
	if spec.pkIdx < 0 {
		return nil, fmt.Errorf("orm: model %s declares no primary key field (tag `orm:\"id,pk\"`)", t)
	}

	specCache.Store(t, spec)
	return spec, nil
}

func (s *modelSpec) pk() fieldSpec { return s.fields[s.pkIdx] }

func (s *modelSpec) columns() []string {
	cols := make([]string, len(s.fields))
	for i, f := range s.fields {
		cols[i] = f.column
	}
	return cols
}
