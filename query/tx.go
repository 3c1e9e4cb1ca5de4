package query

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zigcms/core/errs"
	"github.com/zigcms/core/pool"
)

// Tx wraps one open database transaction with the bookkeeping a registry
// of long-lived transactions needs: a generated or caller-supplied ID,
// start/last-used timestamps, and its own lock so the manager's map lock
// need not be held for the duration of a caller's work inside it.
type Tx struct {
	ID        string
	sqlTx     *sql.Tx
	conn      *pool.Conn
	p         *pool.Pool
	StartTime time.Time
	mu        sync.RWMutex
	lastUsed  time.Time
	done      bool
}

// SQL exposes the underlying *sql.Tx for running statements.
func (t *Tx) SQL() *sql.Tx {
	t.mu.Lock()
	t.lastUsed = time.Now()
	t.mu.Unlock()
	return t.sqlTx
}

func (t *Tx) idleSince() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return time.Since(t.lastUsed)
}

// Manager is a registry of transactions that outlive a single call — a
// caller can BEGIN in one request and COMMIT or ROLLBACK in a later one,
// provided it holds the returned ID. CleanupExpired force-rolls-back the
// transactions idle longer than the maxAge its caller passes in.
type Manager struct {
	mu  sync.RWMutex
	txs map[string]*Tx
}

// NewManager constructs an empty transaction registry.
func NewManager() *Manager {
	return &Manager{txs: make(map[string]*Tx)}
}

// Begin opens a new transaction against a freshly acquired pool
// connection. If id is empty, a uuid is generated.
func (m *Manager) Begin(ctx context.Context, p *pool.Pool, id string) (*Tx, error) {
	if id == "" {
		id = uuid.NewString()
	}

	m.mu.Lock()
	if _, exists := m.txs[id]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: id %q already in use", errs.ErrNestedTransaction, id)
	}
	m.mu.Unlock()

	conn, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	sqlTx, err := conn.DB.BeginTx(ctx, nil)
	if err != nil {
		p.Release(conn)
		return nil, fmt.Errorf("query: beginning transaction: %w", err)
	}

	tx := &Tx{
		ID:        id,
		sqlTx:     sqlTx,
		conn:      conn,
		p:         p,
		StartTime: time.Now(),
		lastUsed:  time.Now(),
	}

	m.mu.Lock()
	m.txs[id] = tx
	m.mu.Unlock()
	return tx, nil
}

// Get looks up an open transaction by ID.
func (m *Manager) Get(id string) (*Tx, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.txs[id]
	return tx, ok
}

// Commit commits and retires the transaction registered under id.
func (m *Manager) Commit(id string) error {
	tx, err := m.remove(id)
	if err != nil {
		return err
	}
	defer tx.p.Release(tx.conn)
	if err := tx.sqlTx.Commit(); err != nil {
		return fmt.Errorf("query: committing transaction %q: %w", id, err)
	}
	return nil
}

// Rollback rolls back and retires the transaction registered under id.
func (m *Manager) Rollback(id string) error {
	tx, err := m.remove(id)
	if err != nil {
		return err
	}
	defer tx.p.Release(tx.conn)
	if err := tx.sqlTx.Rollback(); err != nil {
		return fmt.Errorf("query: rolling back transaction %q: %w", id, err)
	}
	return nil
}

func (m *Manager) remove(id string) (*Tx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %q", errs.ErrTransactionNotOpen, id)
	}
	delete(m.txs, id)
	return tx, nil
}

// CleanupExpired force-rolls-back and retires every transaction idle
// longer than maxAge, returning how many were cleaned up.
func (m *Manager) CleanupExpired(maxAge time.Duration) int {
	m.mu.Lock()
	var expired []*Tx
	for id, tx := range m.txs {
		if tx.idleSince() > maxAge {
			expired = append(expired, tx)
			delete(m.txs, id)
		}
	}
	m.mu.Unlock()

	for _, tx := range expired {
		_ = tx.sqlTx.Rollback()
		tx.p.Release(tx.conn)
	}
	return len(expired)
}

// Transaction runs body inside a single-call transaction scope: it opens
// a connection, issues BEGIN, runs body, and on any error from body (or a
// panic, which it re-panics after rolling back) issues ROLLBACK; on a nil
// return from body it issues COMMIT. If ROLLBACK itself fails, the returned
// error still wraps body's error, with the rollback failure added as text.
// Transaction does not detect being called from inside another
// Transaction's body: such a call acquires its own pooled connection and
// runs an independent transaction, and ErrNestedTransaction is never
// returned here.
func Transaction(ctx context.Context, p *pool.Pool, body func(tx *sql.Tx) error) (err error) {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(conn)

	sqlTx, err := conn.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("query: beginning transaction: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = sqlTx.Rollback()
			panic(r)
		}
	}()

	if err := body(sqlTx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (query: rollback also failed: %v)", err, rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("query: committing transaction: %w", err)
	}
	return nil
}
