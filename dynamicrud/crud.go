package dynamicrud

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/zigcms/core/errs"
)

// Filter is an equality filter applied to List/Get; keys must name real
// columns on the target table.
type Filter map[string]FieldValue

// List returns every row of table matching filter (or all rows if filter
// is empty), decoded through the table's cached schema.
func (c *CRUD) List(ctx context.Context, table string, filter Filter) ([]Row, error) {
	schema, err := c.Schema(ctx, table)
	if err != nil {
		return nil, err
	}
	if err := validateField(schema, Row(filter)); err != nil {
		return nil, err
	}

	quotedTable, err := c.dialect.QuoteIdentifier(table)
	if err != nil {
		return nil, err
	}

	query := "SELECT * FROM " + quotedTable
	args := make([]interface{}, 0, len(filter))
	if len(filter) > 0 {
		clause, clauseArgs, err := c.buildWhereClause(filter)
		if err != nil {
			return nil, err
		}
		query += " WHERE " + clause
		args = clauseArgs
	}

	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer c.pool.Release(conn)

	rows, err := conn.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("dynamicrud: listing %q: %w", table, err)
	}
	defer rows.Close()

	return decodeRows(rows, schema)
}

// ListOptions parameters a paginated, ordered scan of a dynamically
// addressed table (spec §4.4's list operation).
type ListOptions struct {
	Page      int // 1-indexed; values < 1 are treated as 1
	PageSize  int // values < 1 fall back to 50
	OrderBy   string
	OrderDesc bool
	Filters   Filter
}

// Page is the result of ListPaged: the matching rows for the requested
// page plus the total row count across every page.
type Page struct {
	Rows  []Row
	Total int64
}

// ListPaged returns one page of table's rows matching opts.Filters,
// ordered by opts.OrderBy, plus the total matching row count. OrderBy and
// every filter key are validated against the table's schema before any
// SQL is emitted, exactly like every other dynamic operation.
func (c *CRUD) ListPaged(ctx context.Context, table string, opts ListOptions) (Page, error) {
	schema, err := c.Schema(ctx, table)
	if err != nil {
		return Page{}, err
	}
	if err := validateField(schema, Row(opts.Filters)); err != nil {
		return Page{}, err
	}
	if opts.OrderBy != "" {
		if _, ok := schema.column(opts.OrderBy); !ok {
			return Page{}, fmt.Errorf("%w: order_by %q on table %q", errs.ErrFieldNotFound, opts.OrderBy, table)
		}
	}

	page := opts.Page
	if page < 1 {
		page = 1
	}
	pageSize := opts.PageSize
	if pageSize < 1 {
		pageSize = 50
	}

	quotedTable, err := c.dialect.QuoteIdentifier(table)
	if err != nil {
		return Page{}, err
	}

	var whereClause string
	var whereArgs []interface{}
	if len(opts.Filters) > 0 {
		whereClause, whereArgs, err = c.buildWhereClause(opts.Filters)
		if err != nil {
			return Page{}, err
		}
	}

	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return Page{}, err
	}
	defer c.pool.Release(conn)

	countQuery := "SELECT COUNT(*) FROM " + quotedTable
	if whereClause != "" {
		countQuery += " WHERE " + whereClause
	}
	var total int64
	if err := conn.DB.QueryRowContext(ctx, countQuery, whereArgs...).Scan(&total); err != nil {
		return Page{}, fmt.Errorf("dynamicrud: counting %q: %w", table, err)
	}

	selectQuery := "SELECT * FROM " + quotedTable
	if whereClause != "" {
		selectQuery += " WHERE " + whereClause
	}
	if opts.OrderBy != "" {
		quotedOrder, err := c.dialect.QuoteIdentifier(opts.OrderBy)
		if err != nil {
			return Page{}, err
		}
		dir := "ASC"
		if opts.OrderDesc {
			dir = "DESC"
		}
		selectQuery += fmt.Sprintf(" ORDER BY %s %s", quotedOrder, dir)
	}
	selectQuery += " LIMIT ? OFFSET ?"
	selectArgs := append(append([]interface{}{}, whereArgs...), pageSize, (page-1)*pageSize)

	rows, err := conn.DB.QueryContext(ctx, selectQuery, selectArgs...)
	if err != nil {
		return Page{}, fmt.Errorf("dynamicrud: listing %q: %w", table, err)
	}
	defer rows.Close()

	decoded, err := decodeRows(rows, schema)
	if err != nil {
		return Page{}, err
	}
	return Page{Rows: decoded, Total: total}, nil
}

// Get returns the single row of table matching filter, or (nil, false) if
// none matches — never an error for the no-rows case, matching the
// engine-wide rule that a "not found" lookup reports absence rather than
// raising an error.
func (c *CRUD) Get(ctx context.Context, table string, filter Filter) (Row, bool, error) {
	rows, err := c.List(ctx, table, filter)
	if err != nil {
		return nil, false, err
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return rows[0], true, nil
}

// Create inserts one row into table and returns the backend-assigned
// identity value (0 if the table has no auto-incrementing key).
func (c *CRUD) Create(ctx context.Context, table string, fields Row) (int64, error) {
	schema, err := c.Schema(ctx, table)
	if err != nil {
		return 0, err
	}
	if err := validateField(schema, fields); err != nil {
		return 0, err
	}
	if len(fields) == 0 {
		return 0, fmt.Errorf("dynamicrud: create on %q with no fields", table)
	}

	sem := c.tableSemaphore(table)
	if err := sem.Acquire(ctx, 1); err != nil {
		return 0, fmt.Errorf("dynamicrud: acquiring write slot for %q: %w", table, err)
	}
	defer sem.Release(1)

	quotedTable, err := c.dialect.QuoteIdentifier(table)
	if err != nil {
		return 0, err
	}

	cols := make([]string, 0, len(fields))
	placeholders := make([]string, 0, len(fields))
	args := make([]interface{}, 0, len(fields))
	i := 0
	for name, v := range fields {
		quotedCol, err := c.dialect.QuoteIdentifier(name)
		if err != nil {
			return 0, err
		}
		cols = append(cols, quotedCol)
		placeholders = append(placeholders, c.dialect.Placeholder(i))
		args = append(args, v.Raw())
		i++
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quotedTable, strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer c.pool.Release(conn)

	res, err := conn.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("dynamicrud: creating row in %q: %w", table, err)
	}
	return c.dialect.LastInsertID(res)
}

// Update applies fields to every row of table matching filter and reports
// how many rows changed.
func (c *CRUD) Update(ctx context.Context, table string, filter Filter, fields Row) (int64, error) {
	schema, err := c.Schema(ctx, table)
	if err != nil {
		return 0, err
	}
	if err := validateField(schema, fields); err != nil {
		return 0, err
	}
	if err := validateField(schema, Row(filter)); err != nil {
		return 0, err
	}
	if len(fields) == 0 {
		return 0, fmt.Errorf("dynamicrud: update on %q with no fields", table)
	}
	if len(filter) == 0 {
		return 0, fmt.Errorf("dynamicrud: update on %q refused without a filter", table)
	}

	sem := c.tableSemaphore(table)
	if err := sem.Acquire(ctx, 1); err != nil {
		return 0, fmt.Errorf("dynamicrud: acquiring write slot for %q: %w", table, err)
	}
	defer sem.Release(1)

	quotedTable, err := c.dialect.QuoteIdentifier(table)
	if err != nil {
		return 0, err
	}

	setClauses := make([]string, 0, len(fields))
	args := make([]interface{}, 0, len(fields)+len(filter))
	i := 0
	for name, v := range fields {
		quotedCol, err := c.dialect.QuoteIdentifier(name)
		if err != nil {
			return 0, err
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = %s", quotedCol, c.dialect.Placeholder(i)))
		args = append(args, v.Raw())
		i++
	}

	whereClause, whereArgs, err := c.buildWhereClauseFrom(filter, &i)
	if err != nil {
		return 0, err
	}
	args = append(args, whereArgs...)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", quotedTable, strings.Join(setClauses, ", "), whereClause)

	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer c.pool.Release(conn)

	res, err := conn.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("dynamicrud: updating %q: %w", table, err)
	}
	return res.RowsAffected()
}

// Delete removes every row of table matching filter and reports how many
// rows were removed.
func (c *CRUD) Delete(ctx context.Context, table string, filter Filter) (int64, error) {
	schema, err := c.Schema(ctx, table)
	if err != nil {
		return 0, err
	}
	if err := validateField(schema, Row(filter)); err != nil {
		return 0, err
	}
	if len(filter) == 0 {
		return 0, fmt.Errorf("dynamicrud: delete on %q refused without a filter", table)
	}

	sem := c.tableSemaphore(table)
	if err := sem.Acquire(ctx, 1); err != nil {
		return 0, fmt.Errorf("dynamicrud: acquiring write slot for %q: %w", table, err)
	}
	defer sem.Release(1)

	quotedTable, err := c.dialect.QuoteIdentifier(table)
	if err != nil {
		return 0, err
	}

	whereClause, args, err := c.buildWhereClause(filter)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s", quotedTable, whereClause)

	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer c.pool.Release(conn)

	res, err := conn.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("dynamicrud: deleting from %q: %w", table, err)
	}
	return res.RowsAffected()
}

// DeleteByIDs removes every row of table whose primary key is in ids and
// reports how many rows were removed — the literal `DELETE FROM table
// WHERE <pk> IN (...)` shape spec §4.4 names for bulk deletion by ID.
func (c *CRUD) DeleteByIDs(ctx context.Context, table string, ids []int64) (int64, error) {
	schema, err := c.Schema(ctx, table)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pkCol := ""
	for _, col := range schema.Columns {
		if col.IsPrimaryKey {
			pkCol = col.Name
			break
		}
	}
	if pkCol == "" {
		return 0, fmt.Errorf("dynamicrud: table %q declares no primary key", table)
	}

	sem := c.tableSemaphore(table)
	if err := sem.Acquire(ctx, 1); err != nil {
		return 0, fmt.Errorf("dynamicrud: acquiring write slot for %q: %w", table, err)
	}
	defer sem.Release(1)

	quotedTable, err := c.dialect.QuoteIdentifier(table)
	if err != nil {
		return 0, err
	}
	quotedPK, err := c.dialect.QuoteIdentifier(pkCol)
	if err != nil {
		return 0, err
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = c.dialect.Placeholder(i)
		args[i] = id
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)", quotedTable, quotedPK, strings.Join(placeholders, ", "))

	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer c.pool.Release(conn)

	res, err := conn.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("dynamicrud: deleting from %q: %w", table, err)
	}
	return res.RowsAffected()
}

func (c *CRUD) buildWhereClause(filter Filter) (string, []interface{}, error) {
	i := 0
	return c.buildWhereClauseFrom(filter, &i)
}

func (c *CRUD) buildWhereClauseFrom(filter Filter, placeholderIndex *int) (string, []interface{}, error) {
	clauses := make([]string, 0, len(filter))
	args := make([]interface{}, 0, len(filter))
	for name, v := range filter {
		quotedCol, err := c.dialect.QuoteIdentifier(name)
		if err != nil {
			return "", nil, err
		}
		if v.IsNull() {
			clauses = append(clauses, fmt.Sprintf("%s IS NULL", quotedCol))
			continue
		}
		clauses = append(clauses, fmt.Sprintf("%s = %s", quotedCol, c.dialect.Placeholder(*placeholderIndex)))
		args = append(args, v.Raw())
		*placeholderIndex++
	}
	return strings.Join(clauses, " AND "), args, nil
}

func decodeRows(rows *sql.Rows, schema *TableSchema) ([]Row, error) {
	colNames, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("dynamicrud: reading column names: %w", err)
	}

	var out []Row
	for rows.Next() {
		raw := make([]interface{}, len(colNames))
		ptrs := make([]interface{}, len(colNames))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("dynamicrud: scanning row: %w", err)
		}

		row := make(Row, len(colNames))
		for i, name := range colNames {
			col, _ := schema.column(name)
			row[name] = decodeValue(raw[i], col.DataType)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dynamicrud: iterating rows: %w", err)
	}
	return out, nil
}

// decodeValue converts a driver-native scan result into a FieldValue,
// dispatching on the column's declared semantic type rather than the
// dynamic Go type database/sql happened to hand back — MySQL and SQLite
// drivers disagree on whether a BOOLEAN or numeric column comes back as
// int64, float64, bool, or []byte, so the declared type (not the source
// value's Go type) is the only stable signal for which FieldValue variant
// a caller should see, per spec §4.4's type-inference table.
func decodeValue(raw interface{}, dataType string) FieldValue {
	if raw == nil {
		return NullValue()
	}

	switch kindForDataType(dataType) {
	case KindBool:
		return BoolValue(asBool(raw))
	case KindInt64:
		if v, ok := asInt64(raw); ok {
			return Int64Value(v)
		}
	case KindFloat64:
		if v, ok := asFloat64(raw); ok {
			return Float64Value(v)
		}
	}
	return StringValue(asString(raw))
}

func asBool(raw interface{}) bool {
	switch v := raw.(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case float64:
		return v != 0
	case []byte:
		return asBool(string(v))
	case string:
		return v == "1" || strings.EqualFold(v, "true")
	default:
		return false
	}
}

func asInt64(raw interface{}) (int64, bool) {
	switch v := raw.(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case []byte:
		return asInt64(string(v))
	case string:
		var n int64
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n, true
		}
	}
	return 0, false
}

func asFloat64(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case []byte:
		return asFloat64(string(v))
	case string:
		var f float64
		if _, err := fmt.Sscanf(v, "%g", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

func asString(raw interface{}) string {
	switch v := raw.(type) {
	case []byte:
		return string(v)
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

// kindForDataType maps a declared column type to the one canonical
// FieldValue variant it decodes to, per spec §4.4's type-inference table.
// Unlike kindFitsColumn (an acceptance predicate used for write
// validation, deliberately lenient about integer/bool overlap), this
// picks exactly one variant, so a BOOLEAN column decodes to KindBool
// rather than KindInt64. DATE, DATETIME and TIMESTAMP columns, like any
// other type matched by none of the cases, decode to KindString; no
// warning is logged for an unrecognised type.
func kindForDataType(dataType string) Kind {
	dt := strings.ToUpper(dataType)
	switch {
	case strings.Contains(dt, "BOOL"):
		return KindBool
	case strings.Contains(dt, "INT"):
		return KindInt64
	case strings.Contains(dt, "FLOAT"), strings.Contains(dt, "DOUBLE"), strings.Contains(dt, "DECIMAL"), strings.Contains(dt, "NUMERIC"), strings.Contains(dt, "REAL"):
		return KindFloat64
	case strings.Contains(dt, "CHAR"), strings.Contains(dt, "TEXT"), strings.Contains(dt, "CLOB"), strings.Contains(dt, "BLOB"), strings.Contains(dt, "BINARY"):
		return KindString
	default:
		return KindString
	}
}
