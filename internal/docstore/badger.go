package docstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	badgerDocPrefix = "doc/"
	badgerSeqKey    = "meta/seq"
)

type badgerRecord struct {
	Fields    Fields    `json:"fields"`
	Seq       int64     `json:"seq"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BadgerStore is a Store backed by an embedded Badger database. Writes are
// serialized so sequence numbers, timestamps and published events all follow
// commit order.
type BadgerStore struct {
	db     *badger.DB
	broker *broker

	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{
		db:     db,
		broker: newBroker(),
		now:    time.Now,
	}
}

// SetClock replaces the wall clock used for document timestamps.
func (s *BadgerStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func badgerKey(collection, id string) []byte {
	return []byte(badgerDocPrefix + collection + "/" + id)
}

func badgerPrefix(collection string) []byte {
	return []byte(badgerDocPrefix + collection + "/")
}

func unavailable(err error) error {
	if err == nil || errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func (r badgerRecord) document(collection, id string) Document {
	return Document{
		Collection: collection,
		ID:         id,
		Fields:     r.Fields,
		Seq:        r.Seq,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func readRecord(txn *badger.Txn, key []byte) (*badgerRecord, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec badgerRecord
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", key, err)
	}
	return &rec, nil
}

func (s *BadgerStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var doc *Document
	err := s.db.View(func(txn *badger.Txn) error {
		rec, err := readRecord(txn, badgerKey(collection, id))
		if err != nil {
			return err
		}
		if rec == nil {
			return ErrNotFound
		}
		d := rec.document(collection, id)
		doc = &d
		return nil
	})
	if err != nil {
		return nil, unavailable(err)
	}
	return doc, nil
}

func (s *BadgerStore) Query(ctx context.Context, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, p := range q.Where {
		if err := p.validate(); err != nil {
			return nil, err
		}
	}

	prefix := badgerPrefix(q.Collection)
	var docs []Document
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var rec badgerRecord
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("decoding %s: %w", item.Key(), err)
			}
			if !MatchAll(q.Where, rec.Fields) {
				continue
			}
			id := string(item.Key()[len(prefix):])
			docs = append(docs, rec.document(q.Collection, id))
		}
		return nil
	})
	if err != nil {
		return nil, unavailable(err)
	}

	if q.Order == OrderCreated {
		sort.Slice(docs, func(i, j int) bool { return Less(docs[i], docs[j]) })
	}
	return docs, nil
}

func (s *BadgerStore) Put(ctx context.Context, collection, id string, fields Fields) (*Document, error) {
	docs, err := s.Transact(ctx, Put(collection, id, fields))
	if err != nil {
		return nil, err
	}
	return &docs[0], nil
}

// tick returns a timestamp strictly after every timestamp handed out before.
// Callers hold s.mu.
func (s *BadgerStore) tick() time.Time {
	now := s.now().UTC().Truncate(time.Microsecond)
	if !now.After(s.last) {
		now = s.last.Add(time.Microsecond)
	}
	return now
}

func (s *BadgerStore) Transact(ctx context.Context, ops ...WriteOp) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(ops) == 0 {
		return nil, nil
	}
	for _, op := range ops {
		for _, p := range op.Require {
			if err := p.validate(); err != nil {
				return nil, err
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.tick()
	written := make([]Document, 0, len(ops))
	events := make([]ChangeEvent, 0, len(ops))

	err := s.db.Update(func(txn *badger.Txn) error {
		seq, err := readSeq(txn)
		if err != nil {
			return err
		}

		for _, op := range ops {
			key := badgerKey(op.Collection, op.ID)
			current, err := readRecord(txn, key)
			if err != nil {
				return err
			}
			if len(op.Require) > 0 && (current == nil || !MatchAll(op.Require, current.Fields)) {
				return fmt.Errorf("%w: %s/%s", ErrConflict, op.Collection, op.ID)
			}

			switch op.kind {
			case opDelete:
				if current == nil {
					written = append(written, Document{Collection: op.Collection, ID: op.ID})
					continue
				}
				if err := txn.Delete(key); err != nil {
					return err
				}
				doc := current.document(op.Collection, op.ID)
				written = append(written, doc)
				events = append(events, ChangeEvent{Kind: ChangeRemoved, Document: doc})
				continue
			case opCreate:
				if current != nil {
					return fmt.Errorf("%w: %s/%s already exists", ErrConflict, op.Collection, op.ID)
				}
			}

			seq++
			rec := badgerRecord{Fields: op.Fields, Seq: seq, CreatedAt: now, UpdatedAt: now}
			kind := ChangeAdded
			if current != nil {
				rec.CreatedAt = current.CreatedAt
				kind = ChangeModified
			}
			if rec.Fields == nil {
				rec.Fields = Fields{}
			}
			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("encoding %s/%s: %w", op.Collection, op.ID, err)
			}
			if err := txn.Set(key, data); err != nil {
				return err
			}

			// Round-trip so subscribers and callers see the same shape a
			// later Get would return.
			var stored badgerRecord
			if err := json.Unmarshal(data, &stored); err != nil {
				return err
			}
			doc := stored.document(op.Collection, op.ID)
			written = append(written, doc)
			events = append(events, ChangeEvent{Kind: kind, Document: doc})
		}

		return writeSeq(txn, seq)
	})
	if err != nil {
		return nil, unavailable(err)
	}

	s.last = now
	s.broker.publish(events)
	return written, nil
}

func readSeq(txn *badger.Txn) (int64, error) {
	item, err := txn.Get([]byte(badgerSeqKey))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var seq int64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("corrupt sequence value")
		}
		seq = int64(binary.BigEndian.Uint64(val))
		return nil
	})
	return seq, err
}

func writeSeq(txn *badger.Txn, seq int64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(seq))
	return txn.Set([]byte(badgerSeqKey), buf)
}

func (s *BadgerStore) Subscribe(ctx context.Context, collection string, where ...Predicate) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, p := range where {
		if err := p.validate(); err != nil {
			return nil, err
		}
	}
	sub, err := s.broker.subscribe(collection, where)
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

func (s *BadgerStore) Health(ctx context.Context) error {
	if s.db.IsClosed() {
		return ErrUnavailable
	}
	return nil
}

// Close ends every open subscription with ErrUnavailable and closes the
// underlying database.
func (s *BadgerStore) Close() error {
	s.broker.close(ErrUnavailable)
	return s.db.Close()
}
