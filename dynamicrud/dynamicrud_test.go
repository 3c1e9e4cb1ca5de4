package dynamicrud

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/zigcms/core/dialect"
	"github.com/zigcms/core/errs"
	corepool "github.com/zigcms/core/pool"
	_ "modernc.org/sqlite"
)

func newTestCRUD(t *testing.T, cfg Config) *CRUD {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db")
	opener := func(ctx context.Context) (*sql.DB, error) {
		return sql.Open("sqlite", dsn)
	}
	p := corepool.New(corepool.Config{MaxSize: 1, MaxIdle: 1, AcquireTimeout: 0}, opener)
	t.Cleanup(func() { p.Close() })

	conn, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquiring setup connection: %v", err)
	}
	if _, err := conn.DB.Exec(`CREATE TABLE posts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		views INTEGER NOT NULL DEFAULT 0,
		archived BOOLEAN
	)`); err != nil {
		t.Fatalf("creating posts table: %v", err)
	}
	p.Release(conn)

	return New(p, dialect.SQLite{}, cfg)
}

func TestCreateListGetUpdateDelete(t *testing.T) {
	c := newTestCRUD(t, Config{})
	ctx := context.Background()

	id, err := c.Create(ctx, "posts", Row{
		"title": StringValue("hello world"),
		"views": Int64Value(0),
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if id == 0 {
		t.Fatal("expected a non-zero identity value")
	}

	row, found, err := c.Get(ctx, "posts", Filter{"id": Int64Value(id)})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !found {
		t.Fatal("expected to find the created row")
	}
	title, _ := row["title"].String()
	if title != "hello world" {
		t.Errorf("got title %q, want %q", title, "hello world")
	}

	affected, err := c.Update(ctx, "posts", Filter{"id": Int64Value(id)}, Row{"views": Int64Value(5)})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if affected != 1 {
		t.Errorf("expected 1 row updated, got %d", affected)
	}

	row, _, _ = c.Get(ctx, "posts", Filter{"id": Int64Value(id)})
	views, _ := row["views"].Int64()
	if views != 5 {
		t.Errorf("got views %d, want 5", views)
	}

	affected, err = c.Delete(ctx, "posts", Filter{"id": Int64Value(id)})
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if affected != 1 {
		t.Errorf("expected 1 row deleted, got %d", affected)
	}

	_, found, err = c.Get(ctx, "posts", Filter{"id": Int64Value(id)})
	if err != nil {
		t.Fatalf("Get after delete failed: %v", err)
	}
	if found {
		t.Error("expected the row to be gone after Delete")
	}
}

func TestGetOnNoRowsReportsNoneNotError(t *testing.T) {
	c := newTestCRUD(t, Config{})
	ctx := context.Background()

	_, found, err := c.Get(ctx, "posts", Filter{"id": Int64Value(999)})
	if err != nil {
		t.Fatalf("expected no error looking up a missing row, got %v", err)
	}
	if found {
		t.Error("expected found=false for a missing row")
	}
}

func TestBooleanColumnDecodesAsBoolNotInt(t *testing.T) {
	c := newTestCRUD(t, Config{})
	ctx := context.Background()

	id, err := c.Create(ctx, "posts", Row{
		"title":    StringValue("archived post"),
		"archived": BoolValue(true),
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	row, found, err := c.Get(ctx, "posts", Filter{"id": Int64Value(id)})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !found {
		t.Fatal("expected to find the created row")
	}

	archived := row["archived"]
	if archived.Kind() != KindBool {
		t.Fatalf("expected archived column to decode as KindBool, got %s", archived.Kind())
	}
	v, err := archived.Bool()
	if err != nil {
		t.Fatalf("Bool() failed: %v", err)
	}
	if !v {
		t.Error("expected archived to be true")
	}
}

func TestWhitelistRejectsUnlistedTable(t *testing.T) {
	c := newTestCRUD(t, Config{AllowedTables: []string{"comments"}})
	ctx := context.Background()

	_, _, err := c.Get(ctx, "posts", Filter{"id": Int64Value(1)})
	if !errors.Is(err, errs.ErrTableForbidden) {
		t.Errorf("expected ErrTableForbidden for a table outside the whitelist, got %v", err)
	}
}

func TestFieldNotFoundRejected(t *testing.T) {
	c := newTestCRUD(t, Config{})
	ctx := context.Background()

	_, err := c.Create(ctx, "posts", Row{"nonexistent_column": StringValue("x")})
	if !errors.Is(err, errs.ErrFieldNotFound) {
		t.Errorf("expected ErrFieldNotFound for an unknown column, got %v", err)
	}
}

func TestNullRejectedForNonNullableColumn(t *testing.T) {
	c := newTestCRUD(t, Config{})
	ctx := context.Background()

	_, err := c.Create(ctx, "posts", Row{"title": NullValue()})
	if !errors.Is(err, errs.ErrInvalidFieldValue) {
		t.Errorf("expected ErrInvalidFieldValue for null on a NOT NULL column, got %v", err)
	}
}

func TestListPagedOrdersAndCountsAcrossPages(t *testing.T) {
	c := newTestCRUD(t, Config{})
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		if _, err := c.Create(ctx, "posts", Row{
			"title": StringValue(fmt.Sprintf("post %d", i)),
			"views": Int64Value(int64(i)),
		}); err != nil {
			t.Fatalf("Create post %d: %v", i, err)
		}
	}

	page, err := c.ListPaged(ctx, "posts", ListOptions{Page: 1, PageSize: 2, OrderBy: "views", OrderDesc: true})
	if err != nil {
		t.Fatalf("ListPaged failed: %v", err)
	}
	if page.Total != 5 {
		t.Errorf("got total %d, want 5", page.Total)
	}
	if len(page.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(page.Rows))
	}
	firstViews, _ := page.Rows[0]["views"].Int64()
	if firstViews != 5 {
		t.Errorf("got first row views %d, want 5 (descending order)", firstViews)
	}
}

func TestListPagedRejectsUnknownOrderBy(t *testing.T) {
	c := newTestCRUD(t, Config{})
	ctx := context.Background()

	_, err := c.ListPaged(ctx, "posts", ListOptions{OrderBy: "nonexistent_column"})
	if !errors.Is(err, errs.ErrFieldNotFound) {
		t.Errorf("expected ErrFieldNotFound for an unknown order_by column, got %v", err)
	}
}

func TestDeleteByIDsRemovesOnlyListedRows(t *testing.T) {
	c := newTestCRUD(t, Config{})
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := c.Create(ctx, "posts", Row{"title": StringValue("x"), "views": Int64Value(0)})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		ids = append(ids, id)
	}

	affected, err := c.DeleteByIDs(ctx, "posts", ids[:2])
	if err != nil {
		t.Fatalf("DeleteByIDs failed: %v", err)
	}
	if affected != 2 {
		t.Errorf("got %d rows deleted, want 2", affected)
	}

	_, found, err := c.Get(ctx, "posts", Filter{"id": Int64Value(ids[2])})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !found {
		t.Error("expected the row not listed for deletion to survive")
	}
}

func TestSchemaIsCached(t *testing.T) {
	c := newTestCRUD(t, Config{})
	ctx := context.Background()

	s1, err := c.Schema(ctx, "posts")
	if err != nil {
		t.Fatalf("Schema failed: %v", err)
	}
	s2, err := c.Schema(ctx, "posts")
	if err != nil {
		t.Fatalf("Schema failed: %v", err)
	}
	if s1 != s2 {
		t.Error("expected the second Schema call to return the cached pointer")
	}
}
