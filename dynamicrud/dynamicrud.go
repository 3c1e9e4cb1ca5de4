// Package dynamicrud implements runtime-discovered CRUD access to tables
// that have no compile-time model: a whitelist gate, a schema cache built
// from live backend introspection, typed field coercion against that
// schema, and a per-table write concurrency cap so one hot table's batch
// load can't starve every other table's access to the pool.
package dynamicrud

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/zigcms/core/dialect"
	"github.com/zigcms/core/errs"
	"github.com/zigcms/core/pool"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Config controls which tables the dynamic CRUD layer will touch.
type Config struct {
	AllowedTables []string
	// MaxConcurrentWritesPerTable bounds how many write operations may run
	// against one table at a time, independent of overall pool pressure.
	MaxConcurrentWritesPerTable int64
}

// TableSchema is a cached description of one table's columns.
type TableSchema struct {
	Table   string
	Columns []dialect.ColumnInfo
}

func (s *TableSchema) column(name string) (dialect.ColumnInfo, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return dialect.ColumnInfo{}, false
}

// CRUD is the dynamic CRUD engine: whitelist-gated, schema-cache-backed
// access to runtime-addressed tables.
type CRUD struct {
	pool    *pool.Pool
	dialect dialect.Dialect
	allowed map[string]struct{}

	schemaMu sync.RWMutex
	schemas  map[string]*TableSchema

	tableSemMu sync.Mutex
	tableSems  map[string]*semaphore.Weighted
	semWeight  int64

	log *zap.SugaredLogger
}

// SetLogger attaches a structured logger the engine uses to report
// security-relevant events — principally table-whitelist rejections,
// which are the core's documented injection defense boundary (spec
// §4.4) and worth a durable audit trail independent of the caller's own
// error handling.
func (c *CRUD) SetLogger(l *zap.SugaredLogger) {
	if l == nil {
		return
	}
	c.log = l.With("component", "dynamicrud")
}

// New constructs a CRUD engine bound to p and d, restricted to cfg's table
// whitelist.
func New(p *pool.Pool, d dialect.Dialect, cfg Config) *CRUD {
	allowed := make(map[string]struct{}, len(cfg.AllowedTables))
	for _, t := range cfg.AllowedTables {
		allowed[t] = struct{}{}
	}
	weight := cfg.MaxConcurrentWritesPerTable
	if weight <= 0 {
		weight = 4
	}
	return &CRUD{
		pool:      p,
		dialect:   d,
		allowed:   allowed,
		schemas:   make(map[string]*TableSchema),
		tableSems: make(map[string]*semaphore.Weighted),
		semWeight: weight,
	}
}

func (c *CRUD) checkAllowed(table string) error {
	if len(c.allowed) == 0 {
		return nil
	}
	if _, ok := c.allowed[table]; !ok {
		if c.log != nil {
			c.log.Warnw("rejected dynamic CRUD access to a non-whitelisted table", "table", table)
		}
		return fmt.Errorf("%w: %q", errs.ErrTableForbidden, table)
	}
	return nil
}

// Schema returns the cached schema for table, discovering and caching it
// from the live backend on first access. Subsequent lookups take only the
// read lock: this is a read-mostly cache, matching the engine's
// shared-resource discipline of favoring concurrent readers.
func (c *CRUD) Schema(ctx context.Context, table string) (*TableSchema, error) {
	if err := dialect.ValidateIdentifier(table); err != nil {
		return nil, err
	}
	if err := c.checkAllowed(table); err != nil {
		return nil, err
	}

	c.schemaMu.RLock()
	s, ok := c.schemas[table]
	c.schemaMu.RUnlock()
	if ok {
		return s, nil
	}

	c.schemaMu.Lock()
	defer c.schemaMu.Unlock()
	if s, ok := c.schemas[table]; ok {
		return s, nil
	}

	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer c.pool.Release(conn)

	cols, err := c.dialect.Columns(ctx, conn.DB, table)
	if err != nil {
		if len(cols) == 0 {
			return nil, fmt.Errorf("%w: %q: %v", errs.ErrTableNotFound, table, err)
		}
		return nil, err
	}
	schema := &TableSchema{Table: table, Columns: cols}
	c.schemas[table] = schema
	return schema, nil
}

// InvalidateSchema drops a cached schema, forcing rediscovery on next
// access. Useful after an out-of-band DDL change.
func (c *CRUD) InvalidateSchema(table string) {
	c.schemaMu.Lock()
	defer c.schemaMu.Unlock()
	delete(c.schemas, table)
}

func (c *CRUD) tableSemaphore(table string) *semaphore.Weighted {
	c.tableSemMu.Lock()
	defer c.tableSemMu.Unlock()
	sem, ok := c.tableSems[table]
	if !ok {
		sem = semaphore.NewWeighted(c.semWeight)
		c.tableSems[table] = sem
	}
	return sem
}

// validateField checks that every key in row names a real column on
// schema and that the bound value's Kind is compatible with the column's
// declared type and nullability.
func validateField(schema *TableSchema, row Row) error {
	for name, v := range row {
		col, ok := schema.column(name)
		if !ok {
			return fmt.Errorf("%w: %q on table %q", errs.ErrFieldNotFound, name, schema.Table)
		}
		if v.IsNull() {
			if !col.Nullable {
				return fmt.Errorf("%w: column %q is not nullable", errs.ErrInvalidFieldValue, name)
			}
			continue
		}
		if !kindFitsColumn(v.Kind(), col.DataType) {
			return fmt.Errorf("%w: column %q (%s) cannot hold a %s", errs.ErrInvalidFieldValue, name, col.DataType, v.Kind())
		}
	}
	return nil
}

// kindFitsColumn implements the declared-type-to-FieldValue-variant
// inference table: integer families accept KindInt64 or KindBool, floating/decimal
// families accept KindInt64 or KindFloat64 (an integer literal is a valid
// decimal), text/blob families accept KindString, and boolean-ish
// families (MySQL's TINYINT(1) convention, SQLite's BOOLEAN affinity)
// accept KindBool or KindInt64.
func kindFitsColumn(k Kind, dataType string) bool {
	dt := strings.ToUpper(dataType)
	switch {
	case strings.Contains(dt, "INT"):
		return k == KindInt64 || k == KindBool
	case strings.Contains(dt, "FLOAT"), strings.Contains(dt, "DOUBLE"), strings.Contains(dt, "DECIMAL"), strings.Contains(dt, "NUMERIC"), strings.Contains(dt, "REAL"):
		return k == KindFloat64 || k == KindInt64
	case strings.Contains(dt, "BOOL"):
		return k == KindBool || k == KindInt64
	case strings.Contains(dt, "CHAR"), strings.Contains(dt, "TEXT"), strings.Contains(dt, "CLOB"), strings.Contains(dt, "BLOB"), strings.Contains(dt, "BINARY"):
		return k == KindString
	default:
		return k == KindString
	}
}
