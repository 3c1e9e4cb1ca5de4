package dialect

import (
	"strings"
	"testing"
)

func TestValidateIdentifier(t *testing.T) {
	cases := []struct {
		name string
		ok   bool
	}{
		{"users", true},
		{"_private", true},
		{"user_42", true},
		{"", false},
		{"users;DROP TABLE users", false},
		{"user-name", false},
		{"1users", false},
		{"users ", false},
	}

	for _, c := range cases {
		err := ValidateIdentifier(c.name)
		if c.ok && err != nil {
			t.Errorf("ValidateIdentifier(%q): got error %v, want nil", c.name, err)
		}
		if !c.ok && err == nil {
			t.Errorf("ValidateIdentifier(%q): got nil, want error", c.name)
		}
	}
}

func TestMySQLQuoteIdentifier(t *testing.T) {
	m := MySQL{}

	quoted, err := m.QuoteIdentifier("users")
	if err != nil {
		t.Fatalf("QuoteIdentifier failed: %v", err)
	}
	if quoted != "`users`" {
		t.Errorf("got %q, want `users`", quoted)
	}

	if _, err := m.QuoteIdentifier("users; DROP TABLE users"); err == nil {
		t.Error("expected error quoting an injection attempt, got nil")
	}
}

func TestSQLiteQuoteIdentifier(t *testing.T) {
	s := SQLite{}

	quoted, err := s.QuoteIdentifier("posts")
	if err != nil {
		t.Fatalf("QuoteIdentifier failed: %v", err)
	}
	if quoted != `"posts"` {
		t.Errorf(`got %q, want "posts"`, quoted)
	}
}

func TestMySQLCreateTableSQL(t *testing.T) {
	m := MySQL{}
	sqlStr, err := m.CreateTableSQL("posts", []ColumnDef{
		{Name: "id", SQLType: "BIGINT", PrimaryKey: true, AutoIncrement: true},
		{Name: "title", SQLType: "VARCHAR(255)"},
		{Name: "body", SQLType: "TEXT", Nullable: true},
	})
	if err != nil {
		t.Fatalf("CreateTableSQL failed: %v", err)
	}
	if sqlStr == "" {
		t.Fatal("expected non-empty SQL")
	}
	if !strings.Contains(sqlStr, "`posts`") || !strings.Contains(sqlStr, "`id`") || !strings.Contains(sqlStr, "AUTO_INCREMENT") {
		t.Errorf("CreateTableSQL output missing expected fragments: %s", sqlStr)
	}
}

func TestSQLiteCreateTableSQL(t *testing.T) {
	s := SQLite{}
	sqlStr, err := s.CreateTableSQL("posts", []ColumnDef{
		{Name: "id", SQLType: "INTEGER", PrimaryKey: true, AutoIncrement: true},
		{Name: "title", SQLType: "TEXT"},
	})
	if err != nil {
		t.Fatalf("CreateTableSQL failed: %v", err)
	}
	if !strings.Contains(sqlStr, `"posts"`) || !strings.Contains(sqlStr, "AUTOINCREMENT") {
		t.Errorf("CreateTableSQL output missing expected fragments: %s", sqlStr)
	}
}
