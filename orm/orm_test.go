package orm

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/zigcms/core/dialect"
	"github.com/zigcms/core/pool"
	_ "modernc.org/sqlite"
)

type Post struct {
	ID        int64             `orm:"id,pk"`
	Title     string            `orm:"title"`
	Views     int64             `orm:"views"`
	Summary   Optional[string]  `orm:"summary"`
	CreatedAt time.Time         `orm:"created_at"`
	Rating    Optional[float64] `orm:"rating"`
}

func (Post) TableName() string { return "posts" }

func newTestPool(t *testing.T) *pool.Pool {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db")
	opener := func(ctx context.Context) (*sql.DB, error) {
		return sql.Open("sqlite", dsn)
	}
	p := pool.New(pool.Config{MaxSize: 1, MaxIdle: 1}, opener)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestCreateTableAndSaveInsertsAndAssignsID(t *testing.T) {
	ctx := context.Background()
	p := newTestPool(t)
	d := dialect.SQLite{}

	if err := CreateTable[Post](ctx, p, d); err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}

	post := &Post{
		Title:     "hello world",
		Views:     0,
		CreatedAt: time.Unix(1700000000, 0).UTC(),
	}
	if err := Save(ctx, p, d, post); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if post.ID <= 0 {
		t.Fatalf("expected Save to assign a positive id, got %d", post.ID)
	}
}

func TestFindRoundTripsNullAndNonNullOptionals(t *testing.T) {
	ctx := context.Background()
	p := newTestPool(t)
	d := dialect.SQLite{}
	if err := CreateTable[Post](ctx, p, d); err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}

	withSummary := &Post{Title: "has summary", Summary: Some("a summary"), Rating: Some(4.5), CreatedAt: time.Unix(1700000000, 0).UTC()}
	withoutSummary := &Post{Title: "no summary", CreatedAt: time.Unix(1700000001, 0).UTC()}
	if err := Save(ctx, p, d, withSummary); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := Save(ctx, p, d, withoutSummary); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	found, ok, err := Find[Post](ctx, p, d, withSummary.ID)
	if err != nil || !ok {
		t.Fatalf("Find failed: ok=%v err=%v", ok, err)
	}
	if v, valid := found.Summary.Get(); !valid || v != "a summary" {
		t.Errorf("got summary %q valid=%v, want %q valid=true", v, valid, "a summary")
	}
	if v, valid := found.Rating.Get(); !valid || v != 4.5 {
		t.Errorf("got rating %v valid=%v, want 4.5", v, valid)
	}

	foundEmpty, ok, err := Find[Post](ctx, p, d, withoutSummary.ID)
	if err != nil || !ok {
		t.Fatalf("Find failed: ok=%v err=%v", ok, err)
	}
	if foundEmpty.Summary.Valid() {
		t.Errorf("expected a NULL summary column to decode to an invalid Optional, got %+v", foundEmpty.Summary)
	}
}

func TestFindOnMissingIDReportsNotFoundNotError(t *testing.T) {
	ctx := context.Background()
	p := newTestPool(t)
	d := dialect.SQLite{}
	if err := CreateTable[Post](ctx, p, d); err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}

	_, ok, err := Find[Post](ctx, p, d, 999)
	if err != nil {
		t.Fatalf("expected no error for a missing row, got %v", err)
	}
	if ok {
		t.Error("expected ok=false for a missing row")
	}
}

func TestSaveWithPositiveIDUpdatesExistingRow(t *testing.T) {
	ctx := context.Background()
	p := newTestPool(t)
	d := dialect.SQLite{}
	if err := CreateTable[Post](ctx, p, d); err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}

	post := &Post{Title: "draft", CreatedAt: time.Unix(1700000000, 0).UTC()}
	if err := Save(ctx, p, d, post); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	post.Title = "published"
	post.Views = 10
	if err := Save(ctx, p, d, post); err != nil {
		t.Fatalf("Save (update) failed: %v", err)
	}

	reloaded, ok, err := Find[Post](ctx, p, d, post.ID)
	if err != nil || !ok {
		t.Fatalf("Find failed: ok=%v err=%v", ok, err)
	}
	if reloaded.Title != "published" || reloaded.Views != 10 {
		t.Errorf("got %+v, want title=published views=10", reloaded)
	}
}

func TestWhereFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	p := newTestPool(t)
	d := dialect.SQLite{}
	if err := CreateTable[Post](ctx, p, d); err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}
	for _, title := range []string{"a", "b", "c"} {
		if err := Save(ctx, p, d, &Post{Title: title, CreatedAt: time.Unix(1700000000, 0).UTC()}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	rows, err := Where[Post](p, d).OrderBy("title", true).Limit(1).All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(rows) != 1 || rows[0].Title != "c" {
		t.Fatalf("got %+v, want one row titled c", rows)
	}

	_, found, err := Where[Post](p, d).And("title", "nonexistent").First(ctx)
	if err != nil {
		t.Fatalf("First failed: %v", err)
	}
	if found {
		t.Error("expected no match for a nonexistent title")
	}
}

func TestDeleteRemovesRow(t *testing.T) {
	ctx := context.Background()
	p := newTestPool(t)
	d := dialect.SQLite{}
	if err := CreateTable[Post](ctx, p, d); err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}

	post := &Post{Title: "to be deleted", CreatedAt: time.Unix(1700000000, 0).UTC()}
	if err := Save(ctx, p, d, post); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	removed, err := Delete[Post](ctx, p, d, post)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !removed {
		t.Error("expected Delete to report a removed row")
	}

	_, ok, err := Find[Post](ctx, p, d, post.ID)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if ok {
		t.Error("expected the row to be gone after Delete")
	}
}

func TestAllListWrapsResultsAndTracksRelease(t *testing.T) {
	ctx := context.Background()
	p := newTestPool(t)
	d := dialect.SQLite{}
	if err := CreateTable[Post](ctx, p, d); err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}

	for _, title := range []string{"first", "second"} {
		post := &Post{Title: title, CreatedAt: time.Unix(1700000000, 0).UTC()}
		if err := Save(ctx, p, d, post); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	list, err := Where[Post](p, d).OrderBy("id", false).AllList(ctx)
	if err != nil {
		t.Fatalf("AllList failed: %v", err)
	}
	if list.Count() != 2 {
		t.Fatalf("got %d items, want 2", list.Count())
	}
	if list.Released() {
		t.Error("expected a freshly built list to report unreleased")
	}

	first, ok := list.First()
	if !ok || first.Title != "first" {
		t.Errorf("got first item %+v, want title \"first\"", first)
	}
	last, ok := list.Last()
	if !ok || last.Title != "second" {
		t.Errorf("got last item %+v, want title \"second\"", last)
	}

	list.Release()
	if !list.Released() {
		t.Error("expected Release to mark the list released")
	}
}
