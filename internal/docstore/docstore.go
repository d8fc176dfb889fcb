// Package docstore defines the document store contract the social graph is
// written against, plus embedded (Badger) and PostgreSQL implementations.
package docstore

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound    = errors.New("document not found")
	ErrConflict    = errors.New("document precondition failed")
	ErrUnavailable = errors.New("document store unavailable")
)

// Fields is the decoded body of a document.
type Fields map[string]any

// Document is a stored record. Seq and the timestamps are assigned by the
// store on every write; CreatedAt is kept across updates.
type Document struct {
	Collection string
	ID         string
	Fields     Fields
	Seq        int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Order int

const (
	OrderNone Order = iota
	// OrderCreated sorts by CreatedAt ascending, ties broken by ID.
	OrderCreated
)

type Query struct {
	Collection string
	Where      []Predicate
	Order      Order
}

type opKind int

const (
	opPut opKind = iota
	opCreate
	opDelete
)

// WriteOp is one step of a Transact call.
type WriteOp struct {
	kind       opKind
	Collection string
	ID         string
	Fields     Fields
	Require    []Predicate
}

// Put upserts a document.
func Put(collection, id string, fields Fields) WriteOp {
	return WriteOp{kind: opPut, Collection: collection, ID: id, Fields: fields}
}

// Create inserts a document and fails with ErrConflict if it already exists.
func Create(collection, id string, fields Fields) WriteOp {
	return WriteOp{kind: opCreate, Collection: collection, ID: id, Fields: fields}
}

// Delete removes a document. Deleting a missing document is a no-op unless
// the op carries preconditions.
func Delete(collection, id string) WriteOp {
	return WriteOp{kind: opDelete, Collection: collection, ID: id}
}

// If guards the op: the current document must exist and match every
// predicate, otherwise the whole transaction fails with ErrConflict.
func (op WriteOp) If(preds ...Predicate) WriteOp {
	op.Require = append(append([]Predicate(nil), op.Require...), preds...)
	return op
}

type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
)

type ChangeEvent struct {
	Kind     ChangeKind
	Document Document
}

// Subscription is a live stream of change events. Events is closed when the
// subscription ends; Err reports why if it ended for any reason other than
// Close or context cancellation.
type Subscription interface {
	Events() <-chan ChangeEvent
	Err() error
	Close() error
}

// Store is the document store used by the social graph services.
type Store interface {
	Query(ctx context.Context, q Query) ([]Document, error)
	Get(ctx context.Context, collection, id string) (*Document, error)
	Put(ctx context.Context, collection, id string, fields Fields) (*Document, error)
	// Transact applies ops atomically and returns the written documents in op
	// order. Deleted documents are returned with their last state.
	Transact(ctx context.Context, ops ...WriteOp) ([]Document, error)
	// Subscribe streams changes committed after it returns. Events arrive in
	// commit order.
	Subscribe(ctx context.Context, collection string, where ...Predicate) (Subscription, error)
	Health(ctx context.Context) error
	Close() error
}

// Less orders documents by creation time, then ID.
func Less(a, b Document) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
