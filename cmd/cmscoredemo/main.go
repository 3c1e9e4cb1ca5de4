// Command cmscoredemo wires the core engine together end to end against
// an in-memory SQLite database: it builds a Container, registers a
// statically typed Post model and a dynamically addressed "comments"
// table, runs representative ORM and dynamic-CRUD operations against
// both, and tears everything down — a runnable analogue of the teacher
// codebase's examples/server and examples/client pair, replacing the
// RabbitMQ-bridged remote demo with an in-process one exercising this
// engine's own components instead of a transport.
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"github.com/zigcms/core/config"
	"github.com/zigcms/core/container"
	"github.com/zigcms/core/dynamicrud"
	"github.com/zigcms/core/orm"
	"github.com/zigcms/core/plugin"
	"github.com/zigcms/core/pool"
	"github.com/zigcms/core/query"
)

// Post is a statically declared Model backed by the orm package.
type Post struct {
	ID    int64                `orm:"id,pk"`
	Title string               `orm:"title"`
	Body  orm.Optional[string] `orm:"body"`
}

func (*Post) TableName() string { return "posts" }

func main() {
	ctx := context.Background()

	cfg := config.DefaultConfig()
	cfg.AllowedTables = []string{"comments"}
	c := container.New(cfg)
	if err := c.Init(ctx); err != nil {
		log.Fatalf("container init: %v", err)
	}
	defer c.Shutdown()

	logger := c.GetLogger()
	p, dialect := c.GetDB()

	if err := orm.CreateTable[Post, *Post](ctx, p, dialect); err != nil {
		log.Fatalf("create posts table: %v", err)
	}

	post := &Post{Title: "hello core", Body: orm.Some("first post")}
	if err := orm.Save[Post, *Post](ctx, p, dialect, post); err != nil {
		log.Fatalf("save post: %v", err)
	}
	logger.Infow("saved post", "id", post.ID, "title", post.Title)

	found, ok, err := orm.Find[Post, *Post](ctx, p, dialect, post.ID)
	if err != nil {
		log.Fatalf("find post: %v", err)
	}
	if !ok {
		log.Fatalf("expected post %d to round-trip", post.ID)
	}
	fmt.Printf("round-tripped post: %+v\n", *found)

	set, err := query.From(p, dialect, "posts").WhereRaw("id > ?", 0).All(ctx)
	if err != nil {
		log.Fatalf("query posts: %v", err)
	}
	fmt.Printf("posts matching WhereRaw: %d\n", set.Len())
	set.Release()

	if err := createCommentsTable(ctx, p); err != nil {
		log.Fatalf("create comments table: %v", err)
	}

	crud := c.GetCRUD()
	id, err := crud.Create(ctx, "comments", dynamicrud.Row{
		"post_id": dynamicrud.Int64Value(post.ID),
		"body":    dynamicrud.StringValue("nice post!"),
	})
	if err != nil {
		log.Fatalf("create comment: %v", err)
	}
	logger.Infow("created comment", "id", id)

	page, err := crud.ListPaged(ctx, "comments", dynamicrud.ListOptions{Page: 1, PageSize: 10, OrderBy: "id"})
	if err != nil {
		log.Fatalf("list comments: %v", err)
	}
	fmt.Printf("comments page: %d rows, %d total\n", len(page.Rows), page.Total)

	runGreeterPlugin(ctx, c.GetPluginRegistry())

	cache := c.GetCache()
	cache.Set("greeting", []byte("hello from the cache"), 0)
	if v, ok := cache.Get("greeting"); ok {
		fmt.Printf("cache round-trip: %s\n", v)
	}

	time.Sleep(10 * time.Millisecond) // let any async log writes flush before exit
}

// createCommentsTable stands up the table the demo drives through the
// dynamic CRUD layer. Dynamic CRUD itself never issues DDL — that is out
// of its scope per spec §4.4 — so callers provision tables directly
// through the pool before addressing them dynamically.
func createCommentsTable(ctx context.Context, p *pool.Pool) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(conn)

	_, err = conn.DB.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS comments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		post_id INTEGER NOT NULL,
		body TEXT NOT NULL
	)`)
	return err
}

func runGreeterPlugin(ctx context.Context, registry *plugin.Registry) {
	payload := []byte("greeter-plugin-v1")
	sum := sha256.Sum256(payload)
	manifest := plugin.Manifest{
		ID:                  "greeter",
		Name:                "Greeter",
		Version:             plugin.Version{Major: 1, Minor: 0, Patch: 0},
		APIVersion:          1,
		Checksum:            hex.EncodeToString(sum[:]),
		RequiredPermissions: []string{"greet"},
		Capabilities:        plugin.HTTPHandlers,
	}

	inst, err := registry.Register(manifest, payload, map[string]interface{}{
		"greet": func(name string) string { return "hello, " + name },
	})
	if err != nil {
		log.Fatalf("register plugin: %v", err)
	}
	if err := registry.Load(inst); err != nil {
		log.Fatalf("load plugin: %v", err)
	}
	if err := registry.Init(inst); err != nil {
		log.Fatalf("init plugin: %v", err)
	}
	if err := registry.Start(inst); err != nil {
		log.Fatalf("start plugin: %v", err)
	}

	out, err := registry.Dispatch(ctx, inst, plugin.HTTPHandlers, "greet", "greet", "core")
	if err != nil {
		log.Fatalf("dispatch plugin: %v", err)
	}
	fmt.Printf("plugin said: %v\n", out[0])

	if err := registry.Stop(ctx, inst, time.Second); err != nil {
		log.Fatalf("stop plugin: %v", err)
	}
}
