package pool

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/zigcms/core/errs"
	_ "modernc.org/sqlite"
)

func sqliteOpener(t *testing.T) Opener {
	t.Helper()
	return func(ctx context.Context) (*sql.DB, error) {
		// A private (non-shared-cache) in-memory database: combined with
		// Pool capping each *sql.DB to one open connection, this gives
		// each Conn its own isolated database, which is exactly what a
		// connection pool test needs.
		return sql.Open("sqlite", ":memory:")
	}
}

func TestAcquireReleaseRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSize = 2
	p := New(cfg, sqliteOpener(t))
	defer p.Close()

	ctx := context.Background()
	c, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	p.Release(c)

	stats := p.Stats()
	if stats.Acquires != 1 || stats.Creates != 1 || stats.Releases != 1 {
		t.Errorf("unexpected stats after one round trip: %+v", stats)
	}

	c2, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("second Acquire failed: %v", err)
	}
	p.Release(c2)

	stats = p.Stats()
	if stats.Hits != 1 {
		t.Errorf("expected the second acquire to reuse the idle connection, got stats %+v", stats)
	}
}

func TestAcquireRespectsMaxSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSize = 1
	cfg.AcquireTimeout = 100 * time.Millisecond
	p := New(cfg, sqliteOpener(t))
	defer p.Close()

	ctx := context.Background()
	c, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	_, err = p.Acquire(ctx)
	if !errors.Is(err, errs.ErrAcquireTimeout) {
		t.Errorf("expected ErrAcquireTimeout when pool exhausted, got %v", err)
	}

	p.Release(c)
}

func TestAcquireAfterClose(t *testing.T) {
	p := New(DefaultConfig(), sqliteOpener(t))
	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	_, err := p.Acquire(context.Background())
	if !errors.Is(err, errs.ErrPoolClosed) {
		t.Errorf("expected ErrPoolClosed after Close, got %v", err)
	}
}

func TestInvalidateDoesNotReturnToIdle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSize = 1
	p := New(cfg, sqliteOpener(t))
	defer p.Close()

	c, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	p.Invalidate(c)

	stats := p.Stats()
	if stats.Destroys != 1 {
		t.Errorf("expected Invalidate to destroy the connection, got stats %+v", stats)
	}

	c2, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire after Invalidate failed: %v", err)
	}
	p.Release(c2)

	stats = p.Stats()
	if stats.Creates != 2 {
		t.Errorf("expected a fresh connection to be created after invalidation, got stats %+v", stats)
	}
}
