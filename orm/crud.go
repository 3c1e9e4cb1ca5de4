// Package orm maps statically declared Go struct types ("Models") to SQL
// tables: find-by-id, a fluent typed query, and save (insert-or-update by
// primary key). It shares the connection pool and dialect layer with the
// dynamic CRUD package but decodes into concrete struct fields via
// reflection instead of into a generic FieldValue union, and distinguishes
// NULL from the zero value at the type level through Optional[T] fields.
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

func quoteColumns(d dialect.Dialect, cols []string) ([]string, error) {
	out := make([]string, len(cols))
	for i, c := range cols {
		q, err := d.QuoteIdentifier(c)
		if err != nil {
			return nil, err
		}
		out[i] = q
	}
	return out, nil
}

// newInstance allocates a zero T and returns it as PT, the pointer type
// satisfying Model — the generic idiom for "give me an addressable,
// constructible instance of a type known only through a pointer-method
// constraint".
func newInstance[T any, PT interface {
	*T
	Model
}]() PT {
	var zero T
	return PT(&zero)
}

func scanRow(rows *sql.Rows, spec *modelSpec, rv reflect.Value) error {
	raw := make([]interface{}, len(spec.fields))
	ptrs := make([]interface{}, len(spec.fields))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return fmt.Errorf("orm: scanning row for %q: %w", spec.table, err)
	}
	for i, fs := range spec.fields {
		if err := setField(rv.Field(fs.structIndex), raw[i]); err != nil {
			return fmt.Errorf("orm: decoding column %q of %q: %w", fs.column, spec.table, err)
		}
	}
	return nil
}

// Find looks up one row by primary key. A miss is reported through the
// bool, never through the error.
func Find[T any, PT interface {
	*T
	Model
}](ctx context.Context, p *pool.Pool, d dialect.Dialect, id int64) (PT, bool, error) {
	pt := newInstance[T, PT]()
	spec, err := specFor(pt)
	if err != nil {
		return nil, false, err
	}

	quotedTable, err := d.QuoteIdentifier(spec.table)
	if err != nil {
		return nil, false, err
	}
	quotedCols, err := quoteColumns(d, spec.columns())
	if err != nil {
		return nil, false, err
	}
	quotedPK, err := d.QuoteIdentifier(spec.pk().column)
	if err != nil {
		return nil, false, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s LIMIT 1",
		strings.Join(quotedCols, ", "), quotedTable, quotedPK, d.Placeholder(0))

	conn, err := p.Acquire(ctx)
	if err != nil {
		return nil, false, err
	}
	defer p.Release(conn)

	rows, err := conn.DB.QueryContext(ctx, query, id)
	if err != nil {
		return nil, false, fmt.Errorf("orm: finding %q id=%d: %w", spec.table, id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, false, rows.Err()
	}
	rv := reflect.ValueOf(pt).Elem()
	if err := scanRow(rows, spec, rv); err != nil {
		return nil, false, err
	}
	return pt, true, nil
}

// Save inserts obj if its primary key is zero or negative, or updates the
// row matching its primary key otherwise. On insert, obj's primary key
// field is set to the database-generated ID.
func Save[T any, PT interface {
	*T
	Model
}](ctx context.Context, p *pool.Pool, d dialect.Dialect, obj PT) error {
	spec, err := specFor(obj)
	if err != nil {
		return err
	}
	rv := reflect.ValueOf(obj).Elem()
	pkField := rv.Field(spec.pk().structIndex)
	pkVal := pkField.Int()

	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(conn)

	if pkVal > 0 {
		return update(ctx, conn.DB, d, spec, rv, pkVal)
	}
	return insert(ctx, conn.DB, d, spec, rv, pkField)
}

func insert(ctx context.Context, db *sql.DB, d dialect.Dialect, spec *modelSpec, rv reflect.Value, pkField reflect.Value) error {
	var cols []string
	var placeholders []string
	var args []interface{}
	idx := 0
	for _, fs := range spec.fields {
		if fs.pk {
			continue
		}
		arg, isNull, err := fieldArg(rv.Field(fs.structIndex))
		if err != nil {
			return err
		}
		qc, err := d.QuoteIdentifier(fs.column)
		if err != nil {
			return err
		}
		cols = append(cols, qc)
		placeholders = append(placeholders, d.Placeholder(idx))
		if isNull {
			args = append(args, nil)
		} else {
			args = append(args, arg)
		}
		idx++
	}

	quotedTable, err := d.QuoteIdentifier(spec.table)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quotedTable, strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("orm: inserting into %q: %w", spec.table, err)
	}
	id, err := d.LastInsertID(res)
	if err != nil {
		return fmt.Errorf("orm: reading generated id for %q: %w", spec.table, err)
	}
	pkField.SetInt(id)
	return nil
}

func update(ctx context.Context, db *sql.DB, d dialect.Dialect, spec *modelSpec, rv reflect.Value, pkVal int64) error {
	var setClauses []string
	var args []interface{}
	idx := 0
	for _, fs := range spec.fields {
		if fs.pk {
			continue
		}
		arg, isNull, err := fieldArg(rv.Field(fs.structIndex))
		if err != nil {
			return err
		}
		qc, err := d.QuoteIdentifier(fs.column)
		if err != nil {
			return err
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = %s", qc, d.Placeholder(idx)))
		if isNull {
			args = append(args, nil)
		} else {
			args = append(args, arg)
		}
		idx++
	}

	quotedTable, err := d.QuoteIdentifier(spec.table)
	if err != nil {
		return err
	}
	quotedPK, err := d.QuoteIdentifier(spec.pk().column)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		quotedTable, strings.Join(setClauses, ", "), quotedPK, d.Placeholder(idx))
	args = append(args, pkVal)

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("orm: updating %q id=%d: %w", spec.table, pkVal, err)
	}
	return nil
}

// Delete removes the row matching obj's primary key and returns whether a
// row was actually removed.
func Delete[T any, PT interface {
	*T
	Model
}](ctx context.Context, p *pool.Pool, d dialect.Dialect, obj PT) (bool, error) {
	spec, err := specFor(obj)
	if err != nil {
		return false, err
	}
	rv := reflect.ValueOf(obj).Elem()
	pkVal := rv.Field(spec.pk().structIndex).Int()

	quotedTable, err := d.QuoteIdentifier(spec.table)
	if err != nil {
		return false, err
	}
	quotedPK, err := d.QuoteIdentifier(spec.pk().column)
	if err != nil {
		return false, err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = %s", quotedTable, quotedPK, d.Placeholder(0))

	conn, err := p.Acquire(ctx)
	if err != nil {
		return false, err
	}
	defer p.Release(conn)

	res, err := conn.DB.ExecContext(ctx, query, pkVal)
	if err != nil {
		return false, fmt.Errorf("orm: deleting %q id=%d: %w", spec.table, pkVal, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
