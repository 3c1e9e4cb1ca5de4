package query

import (
	"database/sql"
	"fmt"

	"github.com/zigcms/core/arena"
)

// Value is one decoded column value within a Record. It mirrors the
// dynamic CRUD layer's FieldValue shape — a small tagged union instead of
// a bare interface{} — but owns its strings through an Arena so a whole
// DynamicResultSet can release its backing storage in one call.
type Value struct {
	isNull bool
	i64    int64
	f64    float64
	b      bool
	s      arena.OwnedString
	isStr  bool
}

func (v Value) IsNull() bool { return v.isNull }

func (v Value) Int64() (int64, bool) {
	if v.isNull || v.isStr {
		return 0, false
	}
	return v.i64, true
}

func (v Value) Float64() (float64, bool) {
	if v.isNull || v.isStr {
		return 0, false
	}
	return v.f64, true
}

func (v Value) Bool() (bool, bool) {
	if v.isNull {
		return false, false
	}
	return v.b, true
}

func (v Value) String() string {
	if v.isNull {
		return ""
	}
	if v.isStr {
		return v.s.String()
	}
	return fmt.Sprintf("%v", v.i64)
}

// Record is one decoded row: column name to Value.
type Record map[string]Value

// DynamicResultSet is the typed, arena-backed result of a query. Release
// marks its arena closed once the caller is done with it.
type DynamicResultSet struct {
	records []Record
	arena   *arena.Arena
}

func (r *DynamicResultSet) Len() int { return len(r.records) }

// At returns the i-th record. It does not bounds-check; callers are
// expected to respect Len().
func (r *DynamicResultSet) At(i int) Record { return r.records[i] }

// All returns every decoded record.
func (r *DynamicResultSet) All() []Record { return r.records }

// Release marks the result set's arena closed; it frees no memory. After
// Release, OwnedString values obtained from this result set remain
// readable (Go's GC owns the memory, not the arena), but the arena itself
// will reject further interning — which only matters to mapRows, not to
// callers.
func (r *DynamicResultSet) Release() {
	r.arena.Release()
}

// mapRows decodes *sql.Rows into a DynamicResultSet, dispatching on each
// column's runtime Go type since the declared schema type is not
// necessarily known to a raw Builder query (only dynamicrud's
// schema-aware path has that available) — string-shaped values are
// interned into the result set's arena so every row can be released
// together.
func mapRows(rows *sql.Rows) (*DynamicResultSet, error) {
	colNames, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("query: reading column names: %w", err)
	}

	a := arena.NewArena()
	var records []Record
	for rows.Next() {
		raw := make([]interface{}, len(colNames))
		ptrs := make([]interface{}, len(colNames))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("query: scanning row: %w", err)
		}

		rec := make(Record, len(colNames))
		for i, name := range colNames {
			rec[name] = decodeValue(a, raw[i])
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query: iterating rows: %w", err)
	}

	return &DynamicResultSet{records: records, arena: a}, nil
}

func decodeValue(a *arena.Arena, raw interface{}) Value {
	switch v := raw.(type) {
	case nil:
		return Value{isNull: true}
	case int64:
		return Value{i64: v}
	case float64:
		return Value{f64: v}
	case bool:
		return Value{b: v}
	case []byte:
		return Value{isStr: true, s: a.Intern(string(v))}
	case string:
		return Value{isStr: true, s: a.Intern(v)}
	default:
		return Value{isStr: true, s: a.Intern(fmt.Sprintf("%v", v))}
	}
}
