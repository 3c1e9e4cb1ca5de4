// Package dialect abstracts the differences between the backends the core
// engine supports (MySQL and SQLite): identifier quoting, placeholder
// syntax, last-insert-id retrieval, and schema introspection. The query
// builder and the dynamic CRUD layer share one Dialect implementation per
// open Pool so neither has to special-case the backend itself.
package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"github.com/zigcms/core/errs"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ColumnInfo describes one column as reported by backend schema
// introspection (INFORMATION_SCHEMA.COLUMNS for MySQL, PRAGMA table_info
// for SQLite).
type ColumnInfo struct {
	Name     string
	DataType string // backend-native type name, e.g. "varchar", "INTEGER"
	Nullable bool
	IsPrimaryKey bool
}

// Dialect is the set of backend-specific behaviors the query builder and
// dynamic CRUD layer depend on.
type Dialect interface {
	// Name identifies the dialect, e.g. "mysql" or "sqlite".
	Name() string

	// QuoteIdentifier validates and quotes a table or column name. It
	// rejects any identifier that isn't a simple ASCII word so one can
	// never smuggle SQL through a table/column name.
	QuoteIdentifier(name string) (string, error)

	// Placeholder returns the bound-parameter placeholder for the i-th
	// argument (0-indexed) in a query.
	Placeholder(i int) string

	// LastInsertID extracts the identity value a successful INSERT
	// produced.
	LastInsertID(res sql.Result) (int64, error)

	// Columns introspects a table's schema from the live backend.
	Columns(ctx context.Context, db *sql.DB, table string) ([]ColumnInfo, error)

	// CreateTableSQL renders a CREATE TABLE statement for a model's field
	// list. This is the one schema-authoring helper the core provides;
	// it does not constitute a migration DSL.
	CreateTableSQL(table string, columns []ColumnDef) (string, error)
}

// ColumnDef describes one column to be created by CreateTableSQL.
type ColumnDef struct {
	Name         string
	SQLType      string
	Nullable     bool
	PrimaryKey   bool
	AutoIncrement bool
}

// ValidateIdentifier reports whether name is safe to use as a bare SQL
// identifier once quoted by a dialect.
func ValidateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", errs.ErrInvalidIdentifier, name)
	}
	return nil
}
