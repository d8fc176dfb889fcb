package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NotifyChannel is the LISTEN/NOTIFY channel the documents trigger posts to.
const NotifyChannel = "document_changes"

// PgxPool is the subset of *pgxpool.Pool the Postgres store needs.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Acquire(ctx context.Context) (*pgxpool.Conn, error)
	Ping(ctx context.Context) error
}

// rowQuerier is satisfied by the pool, transactions and single connections.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// listenConn is the connection the store keeps in LISTEN mode.
type listenConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	// Discard closes the underlying connection instead of returning it.
	Discard(ctx context.Context) error
	Release()
}

type pooledListenConn struct {
	conn *pgxpool.Conn
}

func (c pooledListenConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return c.conn.Exec(ctx, sql, args...)
}

func (c pooledListenConn) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return c.conn.QueryRow(ctx, sql, args...)
}

func (c pooledListenConn) WaitForNotification(ctx context.Context) (*pgconn.Notification, error) {
	return c.conn.Conn().WaitForNotification(ctx)
}

func (c pooledListenConn) Discard(ctx context.Context) error {
	return c.conn.Conn().Close(ctx)
}

func (c pooledListenConn) Release() {
	c.conn.Release()
}

// PostgresStore keeps documents as jsonb rows in a single documents table.
// Writes to a collection take a transaction-scoped advisory lock first, so
// created_at and NOTIFY order agree with commit order within a collection.
//
// All subscriptions share one LISTEN connection, opened by the first
// Subscribe. Notifications are resolved once on that connection and fanned
// out in process.
type PostgresStore struct {
	db     PgxPool
	broker *broker

	acquireListener func(ctx context.Context) (listenConn, error)

	listenMu     sync.Mutex
	listenCancel context.CancelFunc
	listenDone   chan struct{}
	closed       bool
}

func NewPostgresStore(db PgxPool) *PostgresStore {
	s := &PostgresStore{db: db, broker: newBroker()}
	s.acquireListener = func(ctx context.Context) (listenConn, error) {
		conn, err := db.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		return pooledListenConn{conn}, nil
	}
	return s
}

type changePayload struct {
	Op         string          `json:"op"`
	Collection string          `json:"collection"`
	ID         string          `json:"id"`
	Seq        int64           `json:"seq"`
	Data       json.RawMessage `json:"data,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func pgUnavailable(err error) error {
	if err == nil || errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// buildWhere renders predicates as SQL starting at placeholder $start.
func buildWhere(preds []Predicate, start int) (string, []any, error) {
	var clauses []string
	var args []any
	n := start
	for _, p := range preds {
		if err := p.validate(); err != nil {
			return "", nil, err
		}
		switch p.Op {
		case OpEq:
			clauses = append(clauses, fmt.Sprintf("data->>'%s' = $%d", p.Field, n))
			args = append(args, p.Values[0])
		case OpContainsAny:
			clauses = append(clauses, fmt.Sprintf("data->'%s' ?| $%d::text[]", p.Field, n))
			args = append(args, p.Values)
		default:
			return "", nil, fmt.Errorf("unsupported predicate op %d", p.Op)
		}
		n++
	}
	if len(clauses) == 0 {
		return "", nil, nil
	}
	return " AND " + strings.Join(clauses, " AND "), args, nil
}

func decodeFields(data []byte) (Fields, error) {
	fields := Fields{}
	if len(data) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decoding document data: %w", err)
	}
	return fields, nil
}

func (s *PostgresStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	return getDocument(ctx, s.db, collection, id)
}

func getDocument(ctx context.Context, q rowQuerier, collection, id string) (*Document, error) {
	var data []byte
	doc := &Document{Collection: collection, ID: id}
	err := q.QueryRow(ctx,
		`SELECT data, seq, created_at, updated_at FROM documents
		 WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&data, &doc.Seq, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, pgUnavailable(fmt.Errorf("getting document: %w", err))
	}
	if doc.Fields, err = decodeFields(data); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *PostgresStore) Query(ctx context.Context, q Query) ([]Document, error) {
	where, args, err := buildWhere(q.Where, 2)
	if err != nil {
		return nil, err
	}
	sql := `SELECT id, data, seq, created_at, updated_at FROM documents WHERE collection = $1` + where
	if q.Order == OrderCreated {
		sql += ` ORDER BY created_at, id`
	}

	rows, err := s.db.Query(ctx, sql, append([]any{q.Collection}, args...)...)
	if err != nil {
		return nil, pgUnavailable(fmt.Errorf("querying documents: %w", err))
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc := Document{Collection: q.Collection}
		var data []byte
		if err := rows.Scan(&doc.ID, &data, &doc.Seq, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, pgUnavailable(fmt.Errorf("scanning document: %w", err))
		}
		if doc.Fields, err = decodeFields(data); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, pgUnavailable(fmt.Errorf("iterating documents: %w", err))
	}
	return docs, nil
}

func (s *PostgresStore) Put(ctx context.Context, collection, id string, fields Fields) (*Document, error) {
	docs, err := s.Transact(ctx, Put(collection, id, fields))
	if err != nil {
		return nil, err
	}
	return &docs[0], nil
}

func lockedCollections(ops []WriteOp) []string {
	seen := make(map[string]struct{}, len(ops))
	var out []string
	for _, op := range ops {
		if _, ok := seen[op.Collection]; ok {
			continue
		}
		seen[op.Collection] = struct{}{}
		out = append(out, op.Collection)
	}
	sort.Strings(out)
	return out
}

func (s *PostgresStore) Transact(ctx context.Context, ops ...WriteOp) ([]Document, error) {
	if len(ops) == 0 {
		return nil, nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, pgUnavailable(fmt.Errorf("beginning transaction: %w", err))
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	for _, c := range lockedCollections(ops) {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, c); err != nil {
			return nil, pgUnavailable(fmt.Errorf("locking collection %s: %w", c, err))
		}
	}

	written := make([]Document, 0, len(ops))
	for _, op := range ops {
		doc, err := applyOp(ctx, tx, op)
		if err != nil {
			return nil, err
		}
		written = append(written, doc)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, pgUnavailable(fmt.Errorf("committing transaction: %w", err))
	}
	committed = true
	return written, nil
}

func applyOp(ctx context.Context, tx pgx.Tx, op WriteOp) (Document, error) {
	doc := Document{Collection: op.Collection, ID: op.ID, Fields: op.Fields}
	if doc.Fields == nil {
		doc.Fields = Fields{}
	}

	where, whereArgs, err := buildWhere(op.Require, 3)
	if err != nil {
		return doc, err
	}

	if op.kind == opDelete {
		var data []byte
		args := append([]any{op.Collection, op.ID}, whereArgs...)
		err := tx.QueryRow(ctx,
			`DELETE FROM documents WHERE collection = $1 AND id = $2`+where+`
			 RETURNING data, seq, created_at, updated_at`,
			args...,
		).Scan(&data, &doc.Seq, &doc.CreatedAt, &doc.UpdatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			if len(op.Require) > 0 {
				return doc, fmt.Errorf("%w: %s/%s", ErrConflict, op.Collection, op.ID)
			}
			doc.Fields = nil
			return doc, nil
		}
		if err != nil {
			return doc, pgUnavailable(fmt.Errorf("deleting document: %w", err))
		}
		doc.Fields, err = decodeFields(data)
		return doc, err
	}

	data, err := json.Marshal(doc.Fields)
	if err != nil {
		return doc, fmt.Errorf("encoding %s/%s: %w", op.Collection, op.ID, err)
	}

	var sql string
	args := []any{op.Collection, op.ID, data}
	switch {
	case op.kind == opCreate:
		sql = `INSERT INTO documents (collection, id, data, seq)
		       VALUES ($1, $2, $3, nextval('document_seq'))
		       ON CONFLICT (collection, id) DO NOTHING
		       RETURNING seq, created_at, updated_at`
	case len(op.Require) > 0:
		w, wArgs, err := buildWhere(op.Require, 4)
		if err != nil {
			return doc, err
		}
		sql = `UPDATE documents SET data = $3, seq = nextval('document_seq'), updated_at = clock_timestamp()
		       WHERE collection = $1 AND id = $2` + w + `
		       RETURNING seq, created_at, updated_at`
		args = append(args, wArgs...)
	default:
		sql = `INSERT INTO documents (collection, id, data, seq)
		       VALUES ($1, $2, $3, nextval('document_seq'))
		       ON CONFLICT (collection, id) DO UPDATE
		       SET data = EXCLUDED.data, seq = EXCLUDED.seq, updated_at = clock_timestamp()
		       RETURNING seq, created_at, updated_at`
	}

	err = tx.QueryRow(ctx, sql, args...).Scan(&doc.Seq, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return doc, fmt.Errorf("%w: %s/%s", ErrConflict, op.Collection, op.ID)
	}
	if err != nil {
		return doc, pgUnavailable(fmt.Errorf("writing document: %w", err))
	}

	// Normalise to the decoded shape a later Get returns.
	doc.Fields, err = decodeFields(data)
	return doc, err
}

// Subscribe registers with the store's broker, starting the shared listener
// if it is not running.
func (s *PostgresStore) Subscribe(ctx context.Context, collection string, where ...Predicate) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, p := range where {
		if err := p.validate(); err != nil {
			return nil, err
		}
	}

	// Registration happens under listenMu so a failing listener either sees
	// this subscription in failAll or has already been marked stopped.
	s.listenMu.Lock()
	if s.closed {
		s.listenMu.Unlock()
		return nil, ErrUnavailable
	}
	if s.listenDone == nil {
		if err := s.startListener(ctx); err != nil {
			s.listenMu.Unlock()
			return nil, err
		}
	}
	sub, err := s.broker.subscribe(collection, where)
	s.listenMu.Unlock()
	if err != nil {
		return nil, err
	}

	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-sub.exited:
		}
	}()
	return sub, nil
}

// startListener must be called with listenMu held.
func (s *PostgresStore) startListener(ctx context.Context) error {
	conn, err := s.acquireListener(ctx)
	if err != nil {
		return pgUnavailable(fmt.Errorf("acquiring listen connection: %w", err))
	}
	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		conn.Release()
		return pgUnavailable(fmt.Errorf("listening: %w", err))
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.listenCancel = cancel
	s.listenDone = done
	go s.listen(listenCtx, conn, done)
	return nil
}

func (s *PostgresStore) listen(ctx context.Context, conn listenConn, done chan struct{}) {
	defer close(done)
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.Exec(cleanupCtx, "UNLISTEN *"); err != nil {
			// A connection left listening must not go back to the pool.
			_ = conn.Discard(cleanupCtx)
		}
		conn.Release()
	}()

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			s.listenerStopped(ctx, done, pgUnavailable(fmt.Errorf("waiting for notification: %w", err)))
			return
		}
		if err := s.dispatch(ctx, conn, n.Payload); err != nil {
			s.listenerStopped(ctx, done, err)
			return
		}
	}
}

// listenerStopped fails the open subscriptions and lets the next Subscribe
// start a fresh listener. A store being closed handles its own broker.
func (s *PostgresStore) listenerStopped(ctx context.Context, done chan struct{}, err error) {
	if ctx.Err() != nil {
		return
	}
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	if s.listenDone != done {
		return
	}
	s.listenCancel()
	s.listenCancel = nil
	s.listenDone = nil
	s.broker.failAll(err)
}

// dispatch resolves one notification on the listen connection and publishes
// it. Collections nobody watches are skipped without a read.
func (s *PostgresStore) dispatch(ctx context.Context, q rowQuerier, payload string) error {
	p, ok := decodeChange(payload)
	if !ok || !s.broker.wants(p.Collection) {
		return nil
	}
	ev, ok, err := resolve(ctx, q, p)
	if err != nil || !ok {
		return err
	}
	s.broker.publish([]ChangeEvent{ev})
	return nil
}

func decodeChange(payload string) (changePayload, bool) {
	var p changePayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil || p.Collection == "" {
		return changePayload{}, false
	}
	return p, true
}

// resolve turns a notification into a change event. ok is false for rows that
// no longer exist or unknown operations. Removals carry whatever fields the
// trigger could fit in the payload.
func resolve(ctx context.Context, q rowQuerier, p changePayload) (ChangeEvent, bool, error) {
	switch p.Op {
	case "DELETE":
		fields, err := decodeFields(p.Data)
		if err != nil {
			fields = Fields{}
		}
		return ChangeEvent{Kind: ChangeRemoved, Document: Document{
			Collection: p.Collection,
			ID:         p.ID,
			Fields:     fields,
			Seq:        p.Seq,
			CreatedAt:  p.CreatedAt,
			UpdatedAt:  p.UpdatedAt,
		}}, true, nil
	case "INSERT", "UPDATE":
		doc, err := getDocument(ctx, q, p.Collection, p.ID)
		if errors.Is(err, ErrNotFound) {
			return ChangeEvent{}, false, nil
		}
		if err != nil {
			return ChangeEvent{}, false, err
		}
		kind := ChangeAdded
		if p.Op == "UPDATE" {
			kind = ChangeModified
		}
		return ChangeEvent{Kind: kind, Document: *doc}, true, nil
	}
	return ChangeEvent{}, false, nil
}

func (s *PostgresStore) Health(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return pgUnavailable(err)
	}
	return nil
}

// Close stops the listener and ends every open subscription with
// ErrUnavailable. The pool is owned by the caller.
func (s *PostgresStore) Close() error {
	s.listenMu.Lock()
	s.closed = true
	cancel, done := s.listenCancel, s.listenDone
	s.listenCancel, s.listenDone = nil, nil
	s.listenMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	s.broker.close(ErrUnavailable)
	return nil
}
