package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/zigcms/core/dialect"
	"github.com/zigcms/core/errs"
	"github.com/zigcms/core/pool"
)

// Builder accumulates a Plan through fluent calls and is single-shot: once
// any terminal method (All/First/Count/Update/Delete/SQL) has run, further
// calls on the same Builder fail with ErrBuilderConsumed rather than
// silently building a second query.
type Builder struct {
	plan     Plan
	pool     *pool.Pool
	dialect  dialect.Dialect
	consumed bool
	rawErr   error // set by WhereRaw if fragment fails validation; surfaces at the next terminal call
}

// From starts a new Builder against table, acquiring connections from p
// and emitting SQL in d's dialect.
func From(p *pool.Pool, d dialect.Dialect, table string) *Builder {
	return &Builder{plan: Plan{table: table}, pool: p, dialect: d}
}

func (b *Builder) fail() error {
	if b.consumed {
		return errs.ErrBuilderConsumed
	}
	if b.rawErr != nil {
		return b.rawErr
	}
	return nil
}

// Select restricts the columns returned by a terminal read.
func (b *Builder) Select(columns ...string) *Builder {
	if b.consumed {
		return b
	}
	b.plan.columns = columns
	return b
}

// Where adds an equality condition: column = value.
func (b *Builder) Where(column string, value interface{}) *Builder {
	if b.consumed {
		return b
	}
	b.plan.wheres = append(b.plan.wheres, whereCond{column: column, op: "=", value: value})
	return b
}

// WhereOp adds a comparison condition using an explicit operator.
func (b *Builder) WhereOp(column, op string, value interface{}) *Builder {
	if b.consumed {
		return b
	}
	b.plan.wheres = append(b.plan.wheres, whereCond{column: column, op: op, value: value})
	return b
}

// WhereIn adds a column IN (...) condition.
func (b *Builder) WhereIn(column string, values []interface{}) *Builder {
	if b.consumed {
		return b
	}
	b.plan.wheres = append(b.plan.wheres, whereCond{column: column, op: "IN", value: values})
	return b
}

// WhereNull adds a column IS NULL condition.
func (b *Builder) WhereNull(column string) *Builder {
	if b.consumed {
		return b
	}
	b.plan.wheres = append(b.plan.wheres, whereCond{column: column, op: "IS NULL"})
	return b
}

// WhereNotNull adds a column IS NOT NULL condition.
func (b *Builder) WhereNotNull(column string) *Builder {
	if b.consumed {
		return b
	}
	b.plan.wheres = append(b.plan.wheres, whereCond{column: column, op: "IS NOT NULL"})
	return b
}

// WhereRaw adds a caller-authored SQL fragment as a WHERE condition,
// verbatim except for the bound args it accepts in place of literal
// values. This is a fallback for legacy paths that must inline a
// condition Where/WhereOp/WhereIn cannot express; fragment is checked
// against a small set of injection-shaped patterns before it is accepted,
// but it is never identifier-validated or rewritten the way every other
// Where* method's column name is, so prefer those wherever the condition
// fits.
func (b *Builder) WhereRaw(fragment string, args ...interface{}) *Builder {
	if b.consumed {
		return b
	}
	if err := validateRawFragment(fragment); err != nil {
		b.rawErr = err
		return b
	}
	b.plan.wheres = append(b.plan.wheres, whereCond{op: "RAW", raw: fragment, value: args})
	return b
}

// OrderBy adds an ORDER BY term.
func (b *Builder) OrderBy(column string, desc bool) *Builder {
	if b.consumed {
		return b
	}
	b.plan.orders = append(b.plan.orders, orderSpec{column: column, desc: desc})
	return b
}

// Join adds a JOIN clause. on is a pre-formed condition using already
// quoted-safe column references (e.g. "posts.author_id = users.id"); it is
// not run through identifier validation because it is expected to be a
// small, code-authored literal rather than user input — callers building
// joins from user input must validate column names themselves before
// calling Join.
func (b *Builder) Join(kind, table, on string) *Builder {
	if b.consumed {
		return b
	}
	b.plan.joins = append(b.plan.joins, joinClause{kind: kind, table: table, on: on})
	return b
}

// GroupBy adds GROUP BY columns.
func (b *Builder) GroupBy(columns ...string) *Builder {
	if b.consumed {
		return b
	}
	b.plan.groupBy = append(b.plan.groupBy, columns...)
	return b
}

// Having adds a HAVING condition.
func (b *Builder) Having(column, op string, value interface{}) *Builder {
	if b.consumed {
		return b
	}
	b.plan.having = append(b.plan.having, whereCond{column: column, op: op, value: value})
	return b
}

// Limit caps the number of returned rows.
func (b *Builder) Limit(n int) *Builder {
	if b.consumed {
		return b
	}
	b.plan.limit = &n
	return b
}

// Offset skips the first n matched rows.
func (b *Builder) Offset(n int) *Builder {
	if b.consumed {
		return b
	}
	b.plan.offset = &n
	return b
}

// buildSelect renders the accumulated Plan as a SELECT statement and its
// bound arguments.
func (b *Builder) buildSelect() (string, []interface{}, error) {
	quotedTable, err := b.dialect.QuoteIdentifier(b.plan.table)
	if err != nil {
		return "", nil, err
	}

	cols := "*"
	if len(b.plan.columns) > 0 {
		quoted := make([]string, 0, len(b.plan.columns))
		for _, c := range b.plan.columns {
			qc, err := b.dialect.QuoteIdentifier(c)
			if err != nil {
				return "", nil, err
			}
			quoted = append(quoted, qc)
		}
		cols = strings.Join(quoted, ", ")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", cols, quotedTable)

	for _, j := range b.plan.joins {
		quotedJoinTable, err := b.dialect.QuoteIdentifier(j.table)
		if err != nil {
			return "", nil, err
		}
		fmt.Fprintf(&sb, " %s JOIN %s ON %s", j.kind, quotedJoinTable, j.on)
	}

	var args []interface{}
	placeholderIdx := 0
	if len(b.plan.wheres) > 0 {
		clause, whereArgs, err := b.renderConditions(b.plan.wheres, &placeholderIdx)
		if err != nil {
			return "", nil, err
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(clause)
		args = append(args, whereArgs...)
	}

	if len(b.plan.groupBy) > 0 {
		quoted := make([]string, 0, len(b.plan.groupBy))
		for _, c := range b.plan.groupBy {
			qc, err := b.dialect.QuoteIdentifier(c)
			if err != nil {
				return "", nil, err
			}
			quoted = append(quoted, qc)
		}
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(quoted, ", "))
	}

	if len(b.plan.having) > 0 {
		clause, havingArgs, err := b.renderConditions(b.plan.having, &placeholderIdx)
		if err != nil {
			return "", nil, err
		}
		sb.WriteString(" HAVING ")
		sb.WriteString(clause)
		args = append(args, havingArgs...)
	}

	if len(b.plan.orders) > 0 {
		parts := make([]string, 0, len(b.plan.orders))
		for _, o := range b.plan.orders {
			qc, err := b.dialect.QuoteIdentifier(o.column)
			if err != nil {
				return "", nil, err
			}
			dir := "ASC"
			if o.desc {
				dir = "DESC"
			}
			parts = append(parts, qc+" "+dir)
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(parts, ", "))
	}

	if b.plan.limit != nil {
		fmt.Fprintf(&sb, " LIMIT %d", *b.plan.limit)
	}
	if b.plan.offset != nil {
		fmt.Fprintf(&sb, " OFFSET %d", *b.plan.offset)
	}

	return sb.String(), args, nil
}

func (b *Builder) renderConditions(conds []whereCond, placeholderIdx *int) (string, []interface{}, error) {
	parts := make([]string, 0, len(conds))
	var args []interface{}
	for _, c := range conds {
		if c.op == "RAW" {
			parts = append(parts, c.raw)
			if rawArgs, ok := c.value.([]interface{}); ok {
				args = append(args, rawArgs...)
				*placeholderIdx += len(rawArgs)
			}
			continue
		}
		qc, err := b.dialect.QuoteIdentifier(c.column)
		if err != nil {
			return "", nil, err
		}
		switch c.op {
		case "IS NULL", "IS NOT NULL":
			parts = append(parts, qc+" "+c.op)
		case "IN":
			values, _ := c.value.([]interface{})
			if len(values) == 0 {
				parts = append(parts, "1 = 0") // an empty IN() matches nothing
				continue
			}
			placeholders := make([]string, len(values))
			for i, v := range values {
				placeholders[i] = b.dialect.Placeholder(*placeholderIdx)
				args = append(args, v)
				*placeholderIdx++
			}
			parts = append(parts, fmt.Sprintf("%s IN (%s)", qc, strings.Join(placeholders, ", ")))
		default:
			parts = append(parts, fmt.Sprintf("%s %s %s", qc, c.op, b.dialect.Placeholder(*placeholderIdx)))
			args = append(args, c.value)
			*placeholderIdx++
		}
	}
	return strings.Join(parts, " AND "), args, nil
}

// SQL renders the accumulated Plan without executing it, consuming the
// Builder. Useful for logging/testing the exact statement a terminal
// method would run.
func (b *Builder) SQL() (string, []interface{}, error) {
	if err := b.fail(); err != nil {
		return "", nil, err
	}
	b.consumed = true
	return b.buildSelect()
}

// All executes the accumulated SELECT and returns every matching row as a
// DynamicResultSet, consuming the Builder.
func (b *Builder) All(ctx context.Context) (*DynamicResultSet, error) {
	if err := b.fail(); err != nil {
		return nil, err
	}
	b.consumed = true

	query, args, err := b.buildSelect()
	if err != nil {
		return nil, err
	}

	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer b.pool.Release(conn)

	rows, err := conn.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: executing select on %q: %w", b.plan.table, err)
	}
	defer rows.Close()

	return mapRows(rows)
}

// First executes the accumulated SELECT limited to one row and reports
// whether a row was found. A miss is reported through the bool, never
// through the error — looking up nothing is not a failure.
func (b *Builder) First(ctx context.Context) (Record, bool, error) {
	b.Limit(1)
	set, err := b.All(ctx)
	if err != nil {
		return Record{}, false, err
	}
	if set.Len() == 0 {
		return Record{}, false, nil
	}
	return set.At(0), true, nil
}

// buildCountSQL renders a SELECT COUNT(*) over the accumulated
// conditions without executing it or touching b.consumed, so both Count
// and Get can share it — Get needs the total alongside a separate,
// limited/offset select, and a terminal may only run one of each.
func (b *Builder) buildCountSQL() (string, []interface{}, error) {
	quotedTable, err := b.dialect.QuoteIdentifier(b.plan.table)
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT COUNT(*) FROM %s", quotedTable)
	placeholderIdx := 0
	var args []interface{}
	if len(b.plan.wheres) > 0 {
		clause, whereArgs, err := b.renderConditions(b.plan.wheres, &placeholderIdx)
		if err != nil {
			return "", nil, err
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(clause)
		args = whereArgs
	}
	return sb.String(), args, nil
}

// Count executes a SELECT COUNT(*) over the accumulated conditions,
// consuming the Builder.
func (b *Builder) Count(ctx context.Context) (int64, error) {
	if err := b.fail(); err != nil {
		return 0, err
	}
	b.consumed = true

	query, args, err := b.buildCountSQL()
	if err != nil {
		return 0, err
	}

	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer b.pool.Release(conn)

	var count int64
	if err := conn.DB.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("query: counting %q: %w", b.plan.table, err)
	}
	return count, nil
}

// Page is the paginated result of Builder.Get: one page of matching rows
// plus the total row count across every page — the dynamic query
// builder's `get()` terminal (spec §4.2), mirroring dynamicrud.Page for
// the dynamic-CRUD module.
type Page struct {
	Rows  *DynamicResultSet
	Total int64
}

// Get executes a paginated, ordered SELECT over the accumulated
// conditions and returns both the requested page of rows and the total
// matching row count, consuming the Builder. page is 1-indexed; values
// less than 1 are treated as 1. pageSize values less than 1 fall back to
// 50, matching dynamicrud.ListPaged's defaults.
func (b *Builder) Get(ctx context.Context, page, pageSize int) (*Page, error) {
	if err := b.fail(); err != nil {
		return nil, err
	}
	b.consumed = true

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}

	countQuery, countArgs, err := b.buildCountSQL()
	if err != nil {
		return nil, err
	}

	limit := pageSize
	offset := (page - 1) * pageSize
	b.plan.limit = &limit
	b.plan.offset = &offset

	selectQuery, selectArgs, err := b.buildSelect()
	if err != nil {
		return nil, err
	}

	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer b.pool.Release(conn)

	var total int64
	if err := conn.DB.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("query: counting %q for pagination: %w", b.plan.table, err)
	}

	rows, err := conn.DB.QueryContext(ctx, selectQuery, selectArgs...)
	if err != nil {
		return nil, fmt.Errorf("query: executing paginated select on %q: %w", b.plan.table, err)
	}
	defer rows.Close()

	set, err := mapRows(rows)
	if err != nil {
		return nil, err
	}

	return &Page{Rows: set, Total: total}, nil
}

// Update applies set to every row matching the accumulated conditions and
// returns the affected row count, consuming the Builder.
func (b *Builder) Update(ctx context.Context, set map[string]interface{}) (int64, error) {
	if err := b.fail(); err != nil {
		return 0, err
	}
	b.consumed = true

	if len(set) == 0 {
		return 0, fmt.Errorf("query: update on %q with no fields", b.plan.table)
	}

	quotedTable, err := b.dialect.QuoteIdentifier(b.plan.table)
	if err != nil {
		return 0, err
	}

	setClauses := make([]string, 0, len(set))
	var args []interface{}
	idx := 0
	for col, val := range set {
		qc, err := b.dialect.QuoteIdentifier(col)
		if err != nil {
			return 0, err
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = %s", qc, b.dialect.Placeholder(idx)))
		args = append(args, val)
		idx++
	}

	query := fmt.Sprintf("UPDATE %s SET %s", quotedTable, strings.Join(setClauses, ", "))
	if len(b.plan.wheres) > 0 {
		clause, whereArgs, err := b.renderConditions(b.plan.wheres, &idx)
		if err != nil {
			return 0, err
		}
		query += " WHERE " + clause
		args = append(args, whereArgs...)
	}

	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer b.pool.Release(conn)

	res, err := conn.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("query: updating %q: %w", b.plan.table, err)
	}
	return res.RowsAffected()
}

// Delete removes every row matching the accumulated conditions and
// returns the affected row count, consuming the Builder.
func (b *Builder) Delete(ctx context.Context) (int64, error) {
	if err := b.fail(); err != nil {
		return 0, err
	}
	b.consumed = true

	quotedTable, err := b.dialect.QuoteIdentifier(b.plan.table)
	if err != nil {
		return 0, err
	}

	query := "DELETE FROM " + quotedTable
	idx := 0
	var args []interface{}
	if len(b.plan.wheres) > 0 {
		clause, whereArgs, err := b.renderConditions(b.plan.wheres, &idx)
		if err != nil {
			return 0, err
		}
		query += " WHERE " + clause
		args = whereArgs
	}

	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer b.pool.Release(conn)

	res, err := conn.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("query: deleting from %q: %w", b.plan.table, err)
	}
	return res.RowsAffected()
}
