package api

import (
	"context"
	"sync"
)

// Engine routes requests to a local and a remote DataSource according to
// a StrategyFactory and republishes every resulting entity on a shared
// output stream.
//
// Results are never returned by the operation calls themselves; they are
// delivered to subscribers. The calls only report completion or failure,
// and failures never reach the output stream.
type Engine[T any] interface {
	// Fetch, Create, Update and Delete run one request to completion.
	Fetch(ctx context.Context, q Query) error
	Create(ctx context.Context, entity T) error
	Update(ctx context.Context, entity T) error
	Delete(ctx context.Context, q Query) error

	// The Async variants return immediately with a handle that completes
	// when the request does. Independent requests run concurrently.
	FetchAsync(ctx context.Context, q Query) *Completion
	CreateAsync(ctx context.Context, entity T) *Completion
	UpdateAsync(ctx context.Context, entity T) *Completion
	DeleteAsync(ctx context.Context, q Query) *Completion

	// Subscribe attaches to the output stream. The stream is hot:
	// a subscriber only sees entities published after it subscribed.
	Subscribe() Subscription[T]

	// Close ends every subscription. Operations issued afterwards fail
	// with ErrEngineClosed. Close does not close the DataSources.
	Close() error
}

// Subscription is one consumer of an engine's output stream.
//
// Each subscription has a bounded buffer. When a subscriber falls behind,
// the oldest buffered entity is dropped in favour of the newest, so the
// producer never blocks. Entities are never reordered.
type Subscription[T any] interface {
	// C delivers entities. It is closed by Unsubscribe or Engine.Close.
	C() <-chan T
	Unsubscribe()
	// Dropped counts entities discarded because the buffer was full.
	Dropped() uint64
}

// Completion tracks one asynchronous engine operation.
type Completion struct {
	done   chan struct{}
	cancel context.CancelFunc

	once sync.Once
	err  error
}

// NewCompletion returns a pending handle. cancel is invoked by Cancel and
// should stop the underlying operation; it may be nil.
func NewCompletion(cancel context.CancelFunc) *Completion {
	return &Completion{done: make(chan struct{}), cancel: cancel}
}

// Resolve completes the handle. Only the first call has an effect.
func (c *Completion) Resolve(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

// Done is closed once the operation has completed.
func (c *Completion) Done() <-chan struct{} { return c.done }

// Err returns the operation's error. It is nil until Done is closed.
func (c *Completion) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Wait blocks until the operation completes or ctx is done.
func (c *Completion) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel stops forwarding further emissions of this operation. Other
// operations and already buffered requests are unaffected.
func (c *Completion) Cancel() {
	if c.cancel != nil {
		c.cancel()
	}
}
