package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/jordansalagala21/GymTribe/internal/docstore"
	"github.com/jordansalagala21/GymTribe/internal/models"
	"github.com/jordansalagala21/GymTribe/internal/testutil"
)

const eventTimeout = 2 * time.Second

type testEnv struct {
	store       docstore.Store
	profiles    *ProfileService
	friends     *FriendService
	messages    *MessageService
	suggestions *SuggestionService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithStore(testutil.NewMemoryStore(t))
}

func newTestEnvWithStore(store docstore.Store) *testEnv {
	profiles := NewProfileService(store)
	friends := NewFriendService(store, profiles)
	messages := NewMessageService(store)
	zero := func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	friends.SetBackOff(zero)
	messages.SetBackOff(zero)
	return &testEnv{
		store:       store,
		profiles:    profiles,
		friends:     friends,
		messages:    messages,
		suggestions: NewSuggestionService(profiles, friends),
	}
}

func (e *testEnv) user(t *testing.T, name string, prefs ...models.Tag) uuid.UUID {
	t.Helper()
	id := uuid.New()
	if err := e.profiles.Save(context.Background(), models.UserProfile{
		ID:          id,
		DisplayName: name,
		Preferences: prefs,
	}); err != nil {
		t.Fatalf("saving profile %s: %v", name, err)
	}
	return id
}

func (e *testEnv) request(t *testing.T, from, to uuid.UUID) *models.FriendRequest {
	t.Helper()
	req, err := e.friends.SendRequest(context.Background(), from, to)
	if err != nil {
		t.Fatalf("sending request: %v", err)
	}
	return req
}

func (e *testEnv) befriend(t *testing.T, a, b uuid.UUID) {
	t.Helper()
	req := e.request(t, a, b)
	if _, err := e.friends.Accept(context.Background(), req.ID, b); err != nil {
		t.Fatalf("accepting request: %v", err)
	}
}

func nextFeedEvent(t *testing.T, sub *Subscription) models.FeedEvent {
	t.Helper()
	return testutil.Receive(t, sub.Events(), eventTimeout)
}

func nextMessage(t *testing.T, sub *Subscription) models.FeedEvent {
	t.Helper()
	ev := nextFeedEvent(t, sub)
	if ev.Kind != models.FeedMessage || ev.Message == nil {
		t.Fatalf("expected message event, got %+v", ev)
	}
	return ev
}

// flakyStore lets tests cut every open subscription as if the store
// connection dropped.
type flakyStore struct {
	docstore.Store

	mu            sync.Mutex
	subs          []*flakySub
	failSubscribe int
}

func (f *flakyStore) Subscribe(ctx context.Context, collection string, where ...docstore.Predicate) (docstore.Subscription, error) {
	f.mu.Lock()
	if f.failSubscribe > 0 {
		f.failSubscribe--
		f.mu.Unlock()
		return nil, docstore.ErrUnavailable
	}
	f.mu.Unlock()

	inner, err := f.Store.Subscribe(ctx, collection, where...)
	if err != nil {
		return nil, err
	}
	sub := newFlakySub(inner)
	f.mu.Lock()
	f.subs = append(f.subs, sub)
	f.mu.Unlock()
	return sub, nil
}

func (f *flakyStore) cut() {
	f.mu.Lock()
	subs := f.subs
	f.subs = nil
	f.mu.Unlock()
	for _, s := range subs {
		s.fail(docstore.ErrUnavailable)
	}
}

type flakySub struct {
	inner  docstore.Subscription
	out    chan docstore.ChangeEvent
	broken chan struct{}
	once   sync.Once

	mu  sync.Mutex
	err error
}

func newFlakySub(inner docstore.Subscription) *flakySub {
	s := &flakySub{
		inner:  inner,
		out:    make(chan docstore.ChangeEvent),
		broken: make(chan struct{}),
	}
	go s.forward()
	return s
}

func (s *flakySub) forward() {
	defer close(s.out)
	for {
		select {
		case ev, ok := <-s.inner.Events():
			if !ok {
				return
			}
			select {
			case s.out <- ev:
			case <-s.broken:
				return
			}
		case <-s.broken:
			return
		}
	}
}

func (s *flakySub) fail(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.broken)
	})
	_ = s.inner.Close()
}

func (s *flakySub) Events() <-chan docstore.ChangeEvent { return s.out }

func (s *flakySub) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	return s.inner.Err()
}

func (s *flakySub) Close() error {
	s.once.Do(func() { close(s.broken) })
	return s.inner.Close()
}
