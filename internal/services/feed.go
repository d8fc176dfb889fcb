package services

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// feed is the delivery half of a live stream: one goroutine produces into
// out, the consumer reads Events and calls Close when done.
type feed[T any] struct {
	out       chan T
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

func newFeed[T any](parent context.Context) *feed[T] {
	ctx, cancel := context.WithCancel(parent)
	return &feed[T]{
		out:    make(chan T),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// emit blocks until the consumer takes v or the feed is closed.
func (f *feed[T]) emit(v T) bool {
	select {
	case f.out <- v:
		return true
	case <-f.ctx.Done():
		return false
	}
}

// finish is called once by the producer on exit.
func (f *feed[T]) finish(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
	f.cancel()
	close(f.out)
	close(f.done)
}

// Events is closed when the feed ends.
func (f *feed[T]) Events() <-chan T {
	return f.out
}

// Err reports why the feed ended on its own. It is nil after Close.
func (f *feed[T]) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Close stops the feed and waits for its producer to release store
// resources. It is safe to call more than once and from any goroutine.
func (f *feed[T]) Close() {
	f.closeOnce.Do(f.cancel)
	<-f.done
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	return b
}

// sleepBackOff waits out the next back-off interval. It returns false if the
// policy gives up or ctx ends first.
func sleepBackOff(ctx context.Context, b backoff.BackOff) bool {
	d := b.NextBackOff()
	if d == backoff.Stop {
		return false
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
