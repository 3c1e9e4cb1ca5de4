// Package pool implements the connection pool that sits in front of the
// backend SQL database: a bounded set of live connections, blocking
// acquisition with a deadline, idle health checks, and exponential-backoff
// retry when opening a replacement connection fails transiently. It is the
// sole gateway the rest of the engine uses to reach the database — the ORM,
// the dynamic CRUD layer, and the transaction scope all acquire through it
// rather than holding their own *sql.DB.
package pool

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/zigcms/core/errs"
	"go.uber.org/zap"
)

// Opener creates one fresh backend connection. Pool calls it under its own
// retry/backoff policy; it never retries internally.
type Opener func(ctx context.Context) (*sql.DB, error)

// Config controls pool sizing, acquisition, health checking and retry.
type Config struct {
	MaxSize              int
	MaxIdle              int
	AcquireTimeout       time.Duration
	IdleHealthCheckAfter time.Duration
	MaxRetry             int
	RetryBackoff         time.Duration
	RetryBackoffMax      time.Duration
	ConnMaxLifetime      time.Duration
}

// DefaultConfig mirrors the defaults the rest of the codebase's runnable
// demo ships with.
func DefaultConfig() Config {
	return Config{
		MaxSize:              20,
		MaxIdle:              10,
		AcquireTimeout:       5 * time.Second,
		IdleHealthCheckAfter: 30 * time.Second,
		MaxRetry:             3,
		RetryBackoff:         100 * time.Millisecond,
		RetryBackoffMax:      2 * time.Second,
		ConnMaxLifetime:      10 * time.Minute,
	}
}

// Conn is one pooled connection. Its embedded *sql.DB is a single-
// connection-backed handle in the common case (SQLite file/in-memory) or a
// shared handle the pool treats as one logical slot (MySQL, where
// database/sql already multiplexes TCP connections internally — the pool
// still bounds and health-checks it as one unit so the rest of the engine
// has one acquisition model regardless of backend).
type Conn struct {
	DB        *sql.DB
	createdAt time.Time
	lastUsed  time.Time
}

// Stats mirrors the shape of the pool's worker-pool-style lifecycle
// counters: one flat struct callers can snapshot for monitoring.
type Stats struct {
	Acquires int64
	Releases int64
	Creates  int64
	Destroys int64
	Hits     int64
	Timeouts int64
}

// Pool is the sole shared gateway to the backend database. Capacity is
// tracked with a buffered channel used as a counting semaphore: acquiring
// a slot is a receive, returning one is a send. Everything else — the idle
// set, stats, and the closed flag — is guarded by mu. The engine-wide lock
// order places the pool's own mutex before a connection's internal state,
// before the cache mutex, before the container mutex; Pool never holds mu
// while calling into a Conn.
type Pool struct {
	cfg    Config
	opener Opener

	slots chan struct{} // one token per MaxSize capacity unit

	mu     sync.Mutex
	idle   []*Conn
	closed bool
	stats  Stats

	closedCh chan struct{}
	log      *zap.SugaredLogger
}

// SetLogger attaches a structured logger the pool uses to report retries
// and exhausted-retry failures. A Pool with no logger attached stays
// silent — the container wires this in during startup, per its
// logger-is-a-leaf-but-injected-downstream design (spec §9).
func (p *Pool) SetLogger(l *zap.SugaredLogger) {
	if l == nil {
		return
	}
	p.log = l.With("component", "pool")
}

func (p *Pool) logWarn(msg string, kv ...interface{}) {
	if p.log != nil {
		p.log.Warnw(msg, kv...)
	}
}

// New constructs a Pool that opens connections via opener as needed, up to
// cfg.MaxSize concurrently.
func New(cfg Config, opener Opener) *Pool {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 20
	}
	if cfg.MaxIdle <= 0 {
		cfg.MaxIdle = cfg.MaxSize
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 5 * time.Second
	}

	p := &Pool{
		cfg:      cfg,
		opener:   opener,
		slots:    make(chan struct{}, cfg.MaxSize),
		closedCh: make(chan struct{}),
	}
	for i := 0; i < cfg.MaxSize; i++ {
		p.slots <- struct{}{}
	}
	return p
}

// Acquire returns a live, health-checked connection, blocking until one is
// available or ctx — bounded by the pool's own AcquireTimeout — expires.
// Every Acquire must be matched by exactly one Release or Invalidate.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	defer cancel()

	select {
	case <-p.slots:
		// capacity reserved, proceed below
	case <-p.closedCh:
		return nil, errs.ErrPoolClosed
	case <-acquireCtx.Done():
		p.mu.Lock()
		p.stats.Timeouts++
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", errs.ErrAcquireTimeout, acquireCtx.Err())
	}

	p.mu.Lock()
	var c *Conn
	if n := len(p.idle); n > 0 {
		c = p.idle[n-1]
		p.idle = p.idle[:n-1]
	}
	closed := p.closed
	p.mu.Unlock()

	if closed {
		p.slots <- struct{}{}
		return nil, errs.ErrPoolClosed
	}

	if c != nil && p.connStale(c) {
		p.destroy(c)
		c = nil
	}

	if c == nil {
		opened, err := p.openWithRetry(acquireCtx)
		if err != nil {
			p.slots <- struct{}{}
			return nil, err
		}
		c = opened
		p.mu.Lock()
		p.stats.Acquires++
		p.stats.Creates++
		p.mu.Unlock()
		return c, nil
	}

	p.mu.Lock()
	p.stats.Acquires++
	p.stats.Hits++
	p.mu.Unlock()
	return c, nil
}

// Release returns a healthy connection to the idle set for reuse.
func (p *Pool) Release(c *Conn) {
	p.mu.Lock()
	keep := !p.closed && len(p.idle) < p.cfg.MaxIdle
	if keep {
		c.lastUsed = time.Now()
		p.idle = append(p.idle, c)
	}
	p.stats.Releases++
	p.mu.Unlock()

	if !keep {
		p.destroy(c)
	}
	p.slots <- struct{}{}
}

// Invalidate discards a connection the caller knows to be broken instead of
// returning it to the idle set.
func (p *Pool) Invalidate(c *Conn) {
	p.destroy(c)
	p.mu.Lock()
	p.stats.Releases++
	p.mu.Unlock()
	p.slots <- struct{}{}
}

// Close shuts the pool down, closing every idle connection. Connections
// still checked out are closed as they are released or invalidated.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()
	close(p.closedCh)

	var firstErr error
	for _, c := range idle {
		if err := c.DB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Stats returns a snapshot of the pool's lifetime counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Pool) connStale(c *Conn) bool {
	if p.cfg.ConnMaxLifetime > 0 && time.Since(c.createdAt) > p.cfg.ConnMaxLifetime {
		return true
	}
	if p.cfg.IdleHealthCheckAfter > 0 && time.Since(c.lastUsed) > p.cfg.IdleHealthCheckAfter {
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return c.DB.PingContext(pingCtx) != nil
	}
	return false
}

func (p *Pool) destroy(c *Conn) {
	p.mu.Lock()
	p.stats.Destroys++
	p.mu.Unlock()
	_ = c.DB.Close()
}

// openWithRetry opens one new backend connection, retrying transient
// failures up to cfg.MaxRetry times with a capped exponential backoff —
// the same base/cap/multiplier shape the rest of this codebase's
// reconnect logic uses, applied here to pool-side connection creation
// instead of transport reconnection.
func (p *Pool) openWithRetry(ctx context.Context) (*Conn, error) {
	backoff := p.cfg.RetryBackoff
	var lastErr error
	for attempt := 0; attempt <= p.cfg.MaxRetry; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("pool: open canceled after %d attempts: %w", attempt, ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
			if p.cfg.RetryBackoffMax > 0 && backoff > p.cfg.RetryBackoffMax {
				backoff = p.cfg.RetryBackoffMax
			}
		}

		db, err := p.opener(ctx)
		if err != nil {
			lastErr = err
			p.logWarn("transient connection open failure, retrying", "attempt", attempt, "error", err)
			continue
		}
		// Each Conn represents exactly one logical slot in this pool;
		// database/sql's own internal connection pooling would otherwise
		// double the effective concurrency this Pool thinks it is
		// bounding, and for drivers like SQLite's in-memory mode a
		// second internal connection is a second, empty database.
		db.SetMaxOpenConns(1)
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			lastErr = err
			continue
		}

		now := time.Now()
		return &Conn{DB: db, createdAt: now, lastUsed: now}, nil
	}
	if p.log != nil {
		p.log.Errorw("exhausted connection retries", "max_retry", p.cfg.MaxRetry, "error", lastErr)
	}
	return nil, fmt.Errorf("%w: %v", errs.ErrConnectFailed, lastErr)
}
