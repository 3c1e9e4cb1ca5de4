package query

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/zigcms/core/dialect"
	"github.com/zigcms/core/errs"
	corepool "github.com/zigcms/core/pool"
	_ "modernc.org/sqlite"
)

func newTestPool(t *testing.T) *corepool.Pool {
	t.Helper()
	// Each test gets its own on-disk database file under a throwaway
	// directory: a DSN shared across tests (even an in-memory one with
	// cache=shared) risks two tests' pools attaching to the very same
	// backing database and corrupting each other's row counts.
	dsn := filepath.Join(t.TempDir(), "test.db")
	opener := func(ctx context.Context) (*sql.DB, error) {
		return sql.Open("sqlite", dsn)
	}
	p := corepool.New(corepool.Config{MaxSize: 1, MaxIdle: 1}, opener)
	t.Cleanup(func() { p.Close() })

	conn, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquiring setup connection: %v", err)
	}
	if _, err := conn.DB.Exec(`CREATE TABLE users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		age INTEGER NOT NULL
	)`); err != nil {
		t.Fatalf("creating users table: %v", err)
	}
	for _, row := range []struct {
		name string
		age  int
	}{{"alice", 30}, {"bob", 25}, {"carol", 40}} {
		if _, err := conn.DB.Exec(`INSERT INTO users (name, age) VALUES (?, ?)`, row.name, row.age); err != nil {
			t.Fatalf("seeding users: %v", err)
		}
	}
	p.Release(conn)
	return p
}

func TestBuilderAllAndWhere(t *testing.T) {
	p := newTestPool(t)
	d := dialect.SQLite{}
	ctx := context.Background()

	set, err := From(p, d, "users").Where("name", "alice").All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	defer set.Release()

	if set.Len() != 1 {
		t.Fatalf("got %d rows, want 1", set.Len())
	}
	age, ok := set.At(0)["age"].Int64()
	if !ok || age != 30 {
		t.Errorf("got age=%v ok=%v, want 30", age, ok)
	}
}

func TestBuilderFirstOnNoRowsReportsNone(t *testing.T) {
	p := newTestPool(t)
	d := dialect.SQLite{}
	ctx := context.Background()

	_, found, err := From(p, d, "users").Where("name", "nobody").First(ctx)
	if err != nil {
		t.Fatalf("expected no error for a missing row, got %v", err)
	}
	if found {
		t.Error("expected found=false when no row matches")
	}
}

func TestBuilderConsumedAfterTerminal(t *testing.T) {
	p := newTestPool(t)
	d := dialect.SQLite{}
	ctx := context.Background()

	b := From(p, d, "users")
	if _, err := b.Count(ctx); err != nil {
		t.Fatalf("Count failed: %v", err)
	}

	if _, err := b.Count(ctx); !errors.Is(err, errs.ErrBuilderConsumed) {
		t.Errorf("expected ErrBuilderConsumed on reuse, got %v", err)
	}
}

func TestBuilderOrderByAndLimit(t *testing.T) {
	p := newTestPool(t)
	d := dialect.SQLite{}
	ctx := context.Background()

	set, err := From(p, d, "users").OrderBy("age", true).Limit(1).All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	defer set.Release()

	if set.Len() != 1 {
		t.Fatalf("got %d rows, want 1", set.Len())
	}
	name := set.At(0)["name"].String()
	if name != "carol" {
		t.Errorf("got %q, want carol (oldest)", name)
	}
}

func TestBuilderUpdateAndDelete(t *testing.T) {
	p := newTestPool(t)
	d := dialect.SQLite{}
	ctx := context.Background()

	affected, err := From(p, d, "users").Where("name", "bob").Update(ctx, map[string]interface{}{"age": 26})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if affected != 1 {
		t.Errorf("got %d affected, want 1", affected)
	}

	set, err := From(p, d, "users").Where("name", "bob").All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	age, _ := set.At(0)["age"].Int64()
	set.Release()
	if age != 26 {
		t.Errorf("got age %d after update, want 26", age)
	}

	affected, err = From(p, d, "users").Where("name", "bob").Delete(ctx)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if affected != 1 {
		t.Errorf("got %d affected, want 1", affected)
	}

	count, err := From(p, d, "users").Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 2 {
		t.Errorf("got count %d after delete, want 2", count)
	}
}

func TestTransactionRollsBackOnError(t *testing.T) {
	p := newTestPool(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := Transaction(ctx, p, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO users (name, age) VALUES (?, ?)`, "dave", 50); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the body's error to propagate, got %v", err)
	}

	count, err := From(p, dialect.SQLite{}, "users").Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected the insert to be rolled back, got count %d", count)
	}
}

func TestTransactionCommitsOnSuccess(t *testing.T) {
	p := newTestPool(t)
	ctx := context.Background()

	err := Transaction(ctx, p, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO users (name, age) VALUES (?, ?)`, "erin", 22)
		return err
	})
	if err != nil {
		t.Fatalf("Transaction failed: %v", err)
	}

	count, err := From(p, dialect.SQLite{}, "users").Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 4 {
		t.Errorf("expected the insert to be committed, got count %d", count)
	}
}

func TestBuilderWhereRawMatchesAndBindsArgs(t *testing.T) {
	p := newTestPool(t)
	d := dialect.SQLite{}
	ctx := context.Background()

	set, err := From(p, d, "users").WhereRaw("age > ?", 28).All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	defer set.Release()

	if set.Len() != 2 {
		t.Fatalf("got %d rows, want 2 (alice and carol)", set.Len())
	}
}

func TestBuilderWhereRawRejectsStackedQuery(t *testing.T) {
	p := newTestPool(t)
	d := dialect.SQLite{}
	ctx := context.Background()

	_, err := From(p, d, "users").WhereRaw("1=1; DROP TABLE users").All(ctx)
	if err == nil {
		t.Fatal("expected WhereRaw to reject a stacked-query fragment")
	}
}

func TestManagerBeginCommit(t *testing.T) {
	p := newTestPool(t)
	ctx := context.Background()
	m := NewManager()

	tx, err := m.Begin(ctx, p, "")
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if _, err := tx.SQL().ExecContext(ctx, `INSERT INTO users (name, age) VALUES (?, ?)`, "frank", 33); err != nil {
		t.Fatalf("exec inside transaction failed: %v", err)
	}
	if err := m.Commit(tx.ID); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if _, ok := m.Get(tx.ID); ok {
		t.Error("expected the transaction to be retired after Commit")
	}

	count, err := From(p, dialect.SQLite{}, "users").Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 4 {
		t.Errorf("expected the committed insert to be visible, got count %d", count)
	}
}
