package orm

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"

	"github.com/zigcms/core/dialect"
	"github.com/zigcms/core/pool"
)

type typedWhere struct {
	column string
	op     string
	value  interface{}
}

// Query accumulates a typed filter over one Model type, mirroring the
// dynamic query builder's fluent shape but decoding terminals straight
// into []PT instead of into a column-name map.
type Query[T any, PT interface {
	*T
	Model
}] struct {
	p         *pool.Pool
	d         dialect.Dialect
	spec      *modelSpec
	wheres    []typedWhere
	orderCol  string
	orderDesc bool
	limit     *int
	offset    *int
	err       error
}

// Where starts (or continues) a typed query over T filtered by p and d.
func Where[T any, PT interface {
	*T
	Model
}](p *pool.Pool, d dialect.Dialect) *Query[T, PT] {
	spec, err := specFor(newInstance[T, PT]())
	return &Query[T, PT]{p: p, d: d, spec: spec, err: err}
}

func (q *Query[T, PT]) And(column string, value interface{}) *Query[T, PT] {
	if q.err == nil {
		q.wheres = append(q.wheres, typedWhere{column: column, op: "=", value: value})
	}
	return q
}

func (q *Query[T, PT]) AndOp(column, op string, value interface{}) *Query[T, PT] {
	if q.err == nil {
		q.wheres = append(q.wheres, typedWhere{column: column, op: op, value: value})
	}
	return q
}

func (q *Query[T, PT]) OrderBy(column string, desc bool) *Query[T, PT] {
	q.orderCol, q.orderDesc = column, desc
	return q
}

func (q *Query[T, PT]) Limit(n int) *Query[T, PT] {
	q.limit = &n
	return q
}

func (q *Query[T, PT]) Offset(n int) *Query[T, PT] {
	q.offset = &n
	return q
}

func (q *Query[T, PT]) build() (string, []interface{}, error) {
	quotedTable, err := q.d.QuoteIdentifier(q.spec.table)
	if err != nil {
		return "", nil, err
	}
	quotedCols, err := quoteColumns(q.d, q.spec.columns())
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", strings.Join(quotedCols, ", "), quotedTable)

	var args []interface{}
	if len(q.wheres) > 0 {
		parts := make([]string, 0, len(q.wheres))
		for i, w := range q.wheres {
			qc, err := q.d.QuoteIdentifier(w.column)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, fmt.Sprintf("%s %s %s", qc, w.op, q.d.Placeholder(i)))
			args = append(args, w.value)
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(parts, " AND "))
	}

	if q.orderCol != "" {
		qc, err := q.d.QuoteIdentifier(q.orderCol)
		if err != nil {
			return "", nil, err
		}
		dir := "ASC"
		if q.orderDesc {
			dir = "DESC"
		}
		fmt.Fprintf(&sb, " ORDER BY %s %s", qc, dir)
	}
	if q.limit != nil {
		fmt.Fprintf(&sb, " LIMIT %d", *q.limit)
	}
	if q.offset != nil {
		fmt.Fprintf(&sb, " OFFSET %d", *q.offset)
	}
	return sb.String(), args, nil
}

// buildCount renders a SELECT COUNT(*) over the accumulated WHERE
// conditions only — no ORDER BY/LIMIT/OFFSET — so Get can report the
// total row count across every page alongside one limited/offset select.
func (q *Query[T, PT]) buildCount() (string, []interface{}, error) {
	quotedTable, err := q.d.QuoteIdentifier(q.spec.table)
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT COUNT(*) FROM %s", quotedTable)
	var args []interface{}
	if len(q.wheres) > 0 {
		parts := make([]string, 0, len(q.wheres))
		for i, w := range q.wheres {
			qc, err := q.d.QuoteIdentifier(w.column)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, fmt.Sprintf("%s %s %s", qc, w.op, q.d.Placeholder(i)))
			args = append(args, w.value)
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(parts, " AND "))
	}
	return sb.String(), args, nil
}

// scanAll decodes every remaining row of rows into a freshly allocated PT,
// shared by All and Get so both terminals decode rows the same way.
func (q *Query[T, PT]) scanAll(rows *sql.Rows) ([]PT, error) {
	var out []PT
	for rows.Next() {
		pt := newInstance[T, PT]()
		if err := scanRow(rows, q.spec, reflect.ValueOf(pt).Elem()); err != nil {
			return nil, err
		}
		out = append(out, pt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("orm: iterating %q: %w", q.spec.table, err)
	}
	return out, nil
}

// All executes the accumulated query and returns every matching row as a
// freshly allocated instance.
func (q *Query[T, PT]) All(ctx context.Context) ([]PT, error) {
	if q.err != nil {
		return nil, q.err
	}
	query, args, err := q.build()
	if err != nil {
		return nil, err
	}

	conn, err := q.p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer q.p.Release(conn)

	rows, err := conn.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("orm: querying %q: %w", q.spec.table, err)
	}
	defer rows.Close()

	return q.scanAll(rows)
}

// Page is the paginated result of Query.Get: one page of matching
// instances plus the total row count across every page — the typed
// query's `get()` terminal (spec §4.2), mirroring query.Page for the
// dynamic query builder.
type Page[T any, PT interface {
	*T
	Model
}] struct {
	Items []PT
	Total int64
}

// Get executes a paginated, ordered query over the accumulated filter and
// returns both the requested page of instances and the total matching
// row count. page is 1-indexed; values less than 1 are treated as 1.
// pageSize values less than 1 fall back to 50.
func (q *Query[T, PT]) Get(ctx context.Context, page, pageSize int) (*Page[T, PT], error) {
	if q.err != nil {
		return nil, q.err
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}

	countQuery, countArgs, err := q.buildCount()
	if err != nil {
		return nil, err
	}

	q.Limit(pageSize)
	q.Offset((page - 1) * pageSize)

	selectQuery, selectArgs, err := q.build()
	if err != nil {
		return nil, err
	}

	conn, err := q.p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer q.p.Release(conn)

	var total int64
	if err := conn.DB.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("orm: counting %q for pagination: %w", q.spec.table, err)
	}

	rows, err := conn.DB.QueryContext(ctx, selectQuery, selectArgs...)
	if err != nil {
		return nil, fmt.Errorf("orm: querying %q: %w", q.spec.table, err)
	}
	defer rows.Close()

	items, err := q.scanAll(rows)
	if err != nil {
		return nil, err
	}

	return &Page[T, PT]{Items: items, Total: total}, nil
}

// First runs the accumulated query limited to one row. A miss is
// reported through the bool, never through the error.
func (q *Query[T, PT]) First(ctx context.Context) (PT, bool, error) {
	q.Limit(1)
	rows, err := q.All(ctx)
	if err != nil {
		return nil, false, err
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return rows[0], true, nil
}

// All returns every row of T with no filter applied.
func All[T any, PT interface {
	*T
	Model
}](ctx context.Context, p *pool.Pool, d dialect.Dialect) ([]PT, error) {
	return Where[T, PT](p, d).All(ctx)
}

// CreateTable emits and runs a CREATE TABLE statement for T derived from
// its mapped fields. This is a convenience for tests and demos, not a
// migration system: it always uses INTEGER/TEXT/REAL/BOOLEAN SQL types
// inferred from the Go field type and never alters an existing table.
func CreateTable[T any, PT interface {
	*T
	Model
}](ctx context.Context, p *pool.Pool, d dialect.Dialect) error {
	pt := newInstance[T, PT]()
	spec, err := specFor(pt)
	if err != nil {
		return err
	}

	cols := make([]dialect.ColumnDef, 0, len(spec.fields))
	for _, fs := range spec.fields {
		cols = append(cols, dialect.ColumnDef{
			Name:          fs.column,
			SQLType:       sqlTypeFor(fs.fieldType),
			Nullable:      isOptionalType(fs.fieldType),
			PrimaryKey:    fs.pk,
			AutoIncrement: fs.pk,
		})
	}

	ddl, err := d.CreateTableSQL(spec.table, cols)
	if err != nil {
		return err
	}

	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(conn)

	if _, err := conn.DB.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("orm: creating table %q: %w", spec.table, err)
	}
	return nil
}

func isOptionalType(t reflect.Type) bool {
	return strings.HasPrefix(t.Name(), "Optional[")
}

func sqlTypeFor(t reflect.Type) string {
	name := t.Name()
	switch {
	case strings.Contains(name, "int64") || strings.Contains(name, "int32") || strings.Contains(name, "Time"):
		return "INTEGER"
	case strings.Contains(name, "float64"):
		return "REAL"
	case strings.Contains(name, "bool"):
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}
