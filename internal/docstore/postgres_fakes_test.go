package docstore

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// fakeRow scans values into dest in order.
type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return fmt.Errorf("scan: expected %d destinations, got %d", len(r.values), len(dest))
	}
	for i, d := range dest {
		dv := reflect.ValueOf(d)
		if dv.Kind() != reflect.Ptr || dv.IsNil() {
			return errors.New("scan: destination must be a non-nil pointer")
		}
		v := reflect.ValueOf(r.values[i])
		if !v.Type().AssignableTo(dv.Elem().Type()) {
			return fmt.Errorf("scan: cannot assign %s to %s", v.Type(), dv.Elem().Type())
		}
		dv.Elem().Set(v)
	}
	return nil
}

// fakeTx implements the pgx.Tx methods the store calls. Calling any other
// method panics through the nil embedded interface.
type fakeTx struct {
	pgx.Tx

	ExecFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	CommitFunc   func(ctx context.Context) error

	mu         sync.Mutex
	execs      []string
	execArgs   [][]any
	queries    []string
	committed  bool
	rolledBack bool
}

func (tx *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	tx.mu.Lock()
	tx.execs = append(tx.execs, sql)
	tx.execArgs = append(tx.execArgs, args)
	tx.mu.Unlock()
	if tx.ExecFunc != nil {
		return tx.ExecFunc(ctx, sql, args...)
	}
	return pgconn.NewCommandTag("SELECT 1"), nil
}

func (tx *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	tx.mu.Lock()
	tx.queries = append(tx.queries, sql)
	tx.mu.Unlock()
	if tx.QueryRowFunc != nil {
		return tx.QueryRowFunc(ctx, sql, args...)
	}
	return fakeRow{err: pgx.ErrNoRows}
}

func (tx *fakeTx) Commit(ctx context.Context) error {
	tx.mu.Lock()
	tx.committed = true
	tx.mu.Unlock()
	if tx.CommitFunc != nil {
		return tx.CommitFunc(ctx)
	}
	return nil
}

func (tx *fakeTx) Rollback(ctx context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.rolledBack = true
	return nil
}

// fakePool hands out tx from Begin. Acquire is counted and refused.
type fakePool struct {
	PgxPool

	tx       *fakeTx
	BeginErr error
	acquires int
}

func (p *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	if p.BeginErr != nil {
		return nil, p.BeginErr
	}
	return p.tx, nil
}

func (p *fakePool) Acquire(ctx context.Context) (*pgxpool.Conn, error) {
	p.acquires++
	return nil, errors.New("acquire not expected")
}

// fakeListenConn delivers notifications pushed onto notes and fails the wait
// when an error is pushed onto fail.
type fakeListenConn struct {
	QueryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row

	notes chan *pgconn.Notification
	fail  chan error

	mu       sync.Mutex
	execs    []string
	reads    int
	released bool
}

func newFakeListenConn() *fakeListenConn {
	return &fakeListenConn{
		notes: make(chan *pgconn.Notification, 16),
		fail:  make(chan error, 1),
	}
}

func (c *fakeListenConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.execs = append(c.execs, sql)
	return pgconn.NewCommandTag(sql), nil
}

func (c *fakeListenConn) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	c.mu.Lock()
	c.reads++
	c.mu.Unlock()
	if c.QueryRowFunc != nil {
		return c.QueryRowFunc(ctx, sql, args...)
	}
	return fakeRow{err: pgx.ErrNoRows}
}

func (c *fakeListenConn) WaitForNotification(ctx context.Context) (*pgconn.Notification, error) {
	select {
	case n := <-c.notes:
		return n, nil
	case err := <-c.fail:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeListenConn) Discard(ctx context.Context) error {
	return nil
}

func (c *fakeListenConn) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released = true
}

func (c *fakeListenConn) isReleased() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}

func (c *fakeListenConn) readCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

func (c *fakeListenConn) notify(payload string) {
	c.notes <- &pgconn.Notification{Channel: NotifyChannel, Payload: payload}
}
