package docstore

import "sync"

// subscriber buffers events without bound so a slow consumer never blocks
// the writer and never loses an event.
type subscriber struct {
	collection string
	where      []Predicate

	mu       sync.Mutex
	queue    []ChangeEvent
	finished bool
	err      error

	signal    chan struct{}
	out       chan ChangeEvent
	done      chan struct{}
	exited    chan struct{}
	closeOnce sync.Once
	onClose   func()
}

func newSubscriber(collection string, where []Predicate, onClose func()) *subscriber {
	s := &subscriber{
		collection: collection,
		where:      where,
		signal:     make(chan struct{}, 1),
		out:        make(chan ChangeEvent),
		done:       make(chan struct{}),
		exited:     make(chan struct{}),
		onClose:    onClose,
	}
	go s.pump()
	return s
}

func (s *subscriber) matches(ev ChangeEvent) bool {
	return ev.Document.Collection == s.collection && MatchAll(s.where, ev.Document.Fields)
}

func (s *subscriber) push(ev ChangeEvent) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	s.wake()
}

// finish ends the stream after queued events drain. A nil err means a clean
// end.
func (s *subscriber) finish(err error) {
	s.mu.Lock()
	if !s.finished {
		s.finished = true
		s.err = err
	}
	s.mu.Unlock()
	s.wake()
}

func (s *subscriber) wake() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *subscriber) pump() {
	defer close(s.exited)
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			finished := s.finished
			s.mu.Unlock()
			if finished {
				return
			}
			select {
			case <-s.signal:
				continue
			case <-s.done:
				return
			}
		}
		ev := s.queue[0]
		s.queue[0] = ChangeEvent{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- ev:
		case <-s.done:
			return
		}
	}
}

func (s *subscriber) Events() <-chan ChangeEvent {
	return s.out
}

func (s *subscriber) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *subscriber) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.finished = true
		s.queue = nil
		s.mu.Unlock()
		close(s.done)
		if s.onClose != nil {
			s.onClose()
		}
	})
	return nil
}

// broker fans committed changes out to in-process subscribers.
type broker struct {
	mu     sync.Mutex
	subs   map[uint64]*subscriber
	next   uint64
	closed bool
}

func newBroker() *broker {
	return &broker{subs: make(map[uint64]*subscriber)}
}

func (b *broker) subscribe(collection string, where []Predicate) (*subscriber, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrUnavailable
	}
	id := b.next
	b.next++
	sub := newSubscriber(collection, where, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	})
	b.subs[id] = sub
	return sub, nil
}

func (b *broker) publish(events []ChangeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ev := range events {
		for _, sub := range b.subs {
			if sub.matches(ev) {
				sub.push(ev)
			}
		}
	}
}

func (b *broker) close(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, sub := range b.subs {
		sub.finish(err)
		delete(b.subs, id)
	}
}

// wants reports whether any open subscription watches collection.
func (b *broker) wants(collection string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		if sub.collection == collection {
			return true
		}
	}
	return false
}

// failAll ends every open subscription with err but keeps accepting new
// ones.
func (b *broker) failAll(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		sub.finish(err)
		delete(b.subs, id)
	}
}
