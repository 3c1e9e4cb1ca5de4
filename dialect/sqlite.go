package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SQLite implements Dialect against a modernc.org/sqlite connection:
// double-quoted identifiers, '?' placeholders, and rowid-based
// LastInsertId semantics.
type SQLite struct{}

func (SQLite) Name() string { return "sqlite" }

func (SQLite) QuoteIdentifier(name string) (string, error) {
	if err := ValidateIdentifier(name); err != nil {
		return "", err
	}
	return `"` + name + `"`, nil
}

func (SQLite) Placeholder(int) string { return "?" }

func (SQLite) LastInsertID(res sql.Result) (int64, error) {
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("sqlite: reading last insert rowid: %w", err)
	}
	return id, nil
}

func (SQLite) Columns(ctx context.Context, db *sql.DB, table string) ([]ColumnInfo, error) {
	if err := ValidateIdentifier(table); err != nil {
		return nil, err
	}
	// PRAGMA does not accept bound parameters; table was already
	// validated against the identifier pattern above, so interpolation
	// here cannot smuggle SQL.
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%q)`, table))
	if err != nil {
		return nil, fmt.Errorf("sqlite: introspecting table %q: %w", table, err)
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var cid int
		var name, dataType string
		var notNull int
		var dfltValue sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("sqlite: scanning column metadata: %w", err)
		}
		cols = append(cols, ColumnInfo{
			Name:         name,
			DataType:     strings.ToUpper(dataType),
			Nullable:     notNull == 0,
			IsPrimaryKey: pk != 0,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating column metadata: %w", err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("sqlite: table %q not found", table)
	}
	return cols, nil
}

func (s SQLite) CreateTableSQL(table string, columns []ColumnDef) (string, error) {
	quotedTable, err := s.QuoteIdentifier(table)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", quotedTable)
	for i, c := range columns {
		quotedCol, err := s.QuoteIdentifier(c.Name)
		if err != nil {
			return "", err
		}
		b.WriteString("  ")
		b.WriteString(quotedCol)
		b.WriteByte(' ')
		b.WriteString(c.SQLType)
		if c.PrimaryKey {
			b.WriteString(" PRIMARY KEY")
		}
		if c.AutoIncrement {
			b.WriteString(" AUTOINCREMENT")
		}
		if !c.Nullable && !c.PrimaryKey {
			b.WriteString(" NOT NULL")
		}
		if i < len(columns)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteString(")")
	return b.String(), nil
}
