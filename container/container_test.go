package container

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/zigcms/core/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DSN = filepath.Join(t.TempDir(), "test.db")
	cfg.PoolMaxSize = 2
	cfg.PoolIdleHealthCheckAfter = 0 // disable the sweeper; nothing to race against in a short test
	cfg.MonitoringEnabled = false    // disable the background sampler for the same reason
	return cfg
}

func TestInitBuildsEveryService(t *testing.T) {
	c := New(testConfig(t))
	ctx := context.Background()
	if err := c.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer c.Shutdown()

	if c.GetCache() == nil {
		t.Error("expected a non-nil cache")
	}
	if c.GetPluginRegistry() == nil {
		t.Error("expected a non-nil plugin registry")
	}
	p, d := c.GetDB()
	if p == nil || d == nil {
		t.Error("expected a non-nil pool and dialect")
	}
	if c.GetCRUD() == nil {
		t.Error("expected a non-nil dynamic CRUD engine")
	}
}

func TestInitIsIdempotent(t *testing.T) {
	c := New(testConfig(t))
	ctx := context.Background()
	if err := c.Init(ctx); err != nil {
		t.Fatalf("first Init: %v", err)
	}
	defer c.Shutdown()

	pBefore, _ := c.GetDB()
	if err := c.Init(ctx); err != nil {
		t.Fatalf("second Init: %v", err)
	}
	pAfter, _ := c.GetDB()
	if pBefore != pAfter {
		t.Error("expected a repeated Init to be a no-op, got a rebuilt pool")
	}
}

func TestShutdownPermitsReinitialization(t *testing.T) {
	cfg := testConfig(t)
	c := New(cfg)
	ctx := context.Background()

	if err := c.Init(ctx); err != nil {
		t.Fatalf("first Init: %v", err)
	}
	if err := c.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	if err := c.Init(ctx); err != nil {
		t.Fatalf("Init after Shutdown: %v", err)
	}
	defer c.Shutdown()

	if c.GetCache() == nil {
		t.Error("expected a usable cache after re-initialization")
	}
}

func TestAccessorsPanicBeforeInit(t *testing.T) {
	c := New(testConfig(t))
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected GetCache to panic before Init")
		}
	}()
	c.GetCache()
}
