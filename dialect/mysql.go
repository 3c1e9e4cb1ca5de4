package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// MySQL implements Dialect against a github.com/go-sql-driver/mysql
// connection: backtick-quoted identifiers, '?' placeholders, and
// LAST_INSERT_ID semantics.
type MySQL struct{}

func (MySQL) Name() string { return "mysql" }

func (MySQL) QuoteIdentifier(name string) (string, error) {
	if err := ValidateIdentifier(name); err != nil {
		return "", err
	}
	return "`" + name + "`", nil
}

func (MySQL) Placeholder(int) string { return "?" }

func (MySQL) LastInsertID(res sql.Result) (int64, error) {
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("mysql: reading last insert id: %w", err)
	}
	return id, nil
}

func (MySQL) Columns(ctx context.Context, db *sql.DB, table string) ([]ColumnInfo, error) {
	if err := ValidateIdentifier(table); err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE, COLUMN_KEY
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION`, table)
	if err != nil {
		return nil, fmt.Errorf("mysql: introspecting table %q: %w", table, err)
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var name, dataType, isNullable, columnKey string
		if err := rows.Scan(&name, &dataType, &isNullable, &columnKey); err != nil {
			return nil, fmt.Errorf("mysql: scanning column metadata: %w", err)
		}
		cols = append(cols, ColumnInfo{
			Name:         name,
			DataType:     dataType,
			Nullable:     strings.EqualFold(isNullable, "YES"),
			IsPrimaryKey: columnKey == "PRI",
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mysql: iterating column metadata: %w", err)
	}
	return cols, nil
}

func (m MySQL) CreateTableSQL(table string, columns []ColumnDef) (string, error) {
	quotedTable, err := m.QuoteIdentifier(table)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", quotedTable)
	for i, c := range columns {
		quotedCol, err := m.QuoteIdentifier(c.Name)
		if err != nil {
			return "", err
		}
		b.WriteString("  ")
		b.WriteString(quotedCol)
		b.WriteByte(' ')
		b.WriteString(c.SQLType)
		if !c.Nullable {
			b.WriteString(" NOT NULL")
		}
		if c.AutoIncrement {
			b.WriteString(" AUTO_INCREMENT")
		}
		if c.PrimaryKey {
			b.WriteString(" PRIMARY KEY")
		}
		if i < len(columns)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteString(")")
	return b.String(), nil
}
