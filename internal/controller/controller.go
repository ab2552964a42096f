// Package controller puts a retry queue and an optional admission check in
// front of a DataSource.
//
// Every controller is itself an api.DataSource, so an engine can be built
// over controllers without knowing about them.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/netguru/repolib/internal/retryqueue"
	"github.com/netguru/repolib/pkg/api"
)

// Options are shared by every controller.
type Options struct {
	Observer api.Observer
	Logger   *slog.Logger

	// ReadThrough lets Fetch requests run directly against the DataSource
	// instead of failing with api.ErrUnsupportedOperation. Fetches are
	// never buffered either way.
	ReadThrough bool
}

func (o Options) withDefaults() Options {
	if o.Observer == nil {
		o.Observer = api.NoopObserver{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Direct executes every request immediately.
type Direct[T any] struct {
	ds api.DataSource[T]
}

var _ api.Controller[string] = (*Direct[string])(nil)

func NewDirect[T any](ds api.DataSource[T]) (*Direct[T], error) {
	if ds == nil {
		return nil, api.ErrNilDataSource
	}
	return &Direct[T]{ds: ds}, nil
}

func (c *Direct[T]) Submit(ctx context.Context, req api.Request[T]) api.Sequence[T] {
	return req.Action()(ctx, c.ds)
}

func (c *Direct[T]) Create(ctx context.Context, entity T) api.Sequence[T] {
	return c.ds.Create(ctx, entity)
}

func (c *Direct[T]) Update(ctx context.Context, entity T) api.Sequence[T] {
	return c.ds.Update(ctx, entity)
}

func (c *Direct[T]) Delete(ctx context.Context, q api.Query) api.Sequence[T] {
	return c.ds.Delete(ctx, q)
}

func (c *Direct[T]) Fetch(ctx context.Context, q api.Query) api.Sequence[T] {
	return c.ds.Fetch(ctx, q)
}

// Flush is a no-op: a Direct controller never buffers.
func (c *Direct[T]) Flush(ctx context.Context) (int, error) { return 0, nil }

func (c *Direct[T]) Pending(ctx context.Context) ([]api.Request[T], error) { return nil, nil }

// Queued buffers every write in a retry queue and drains the queue, in
// insertion order, before a new write completes.
//
// A write is first added to the queue and then the whole queue is
// replayed, so the new request runs after everything buffered before it.
// Replayed requests are removed on success and left in place on failure.
// A failure of another buffered request does not fail the triggering
// call; a failure of the caller's own request is returned and the request
// stays queued for a later attempt.
//
// Drains are serialized, so one buffered request is never in flight twice.
type Queued[T any] struct {
	ds        api.DataSource[T]
	queue     retryqueue.Queue[T]
	admission api.AdmissionCheck
	opts      Options

	replayMu sync.Mutex
}

var _ api.Controller[string] = (*Queued[string])(nil)

// NewQueued creates a Queued controller. A nil queue selects an in-memory
// queue with content-based deduplication.
func NewQueued[T any](ds api.DataSource[T], queue retryqueue.Queue[T], opts Options) (*Queued[T], error) {
	if ds == nil {
		return nil, api.ErrNilDataSource
	}
	if queue == nil {
		queue = retryqueue.NewInMemoryQueue[T](nil)
	}
	return &Queued[T]{ds: ds, queue: queue, opts: opts.withDefaults()}, nil
}

// Cached is a Queued controller gated by an admission check. While the
// check denies, writes are only buffered and complete successfully
// without emitting anything; Flush does nothing.
type Cached[T any] struct {
	*Queued[T]
}

// NewCached creates a Cached controller. A nil admission check admits
// everything.
func NewCached[T any](ds api.DataSource[T], queue retryqueue.Queue[T], admission api.AdmissionCheck, opts Options) (*Cached[T], error) {
	q, err := NewQueued(ds, queue, opts)
	if err != nil {
		return nil, err
	}
	if admission == nil {
		admission = api.AlwaysPermit
	}
	q.admission = admission
	return &Cached[T]{Queued: q}, nil
}

func (c *Queued[T]) Create(ctx context.Context, entity T) api.Sequence[T] {
	return c.Submit(ctx, api.NewCreate(entity))
}

func (c *Queued[T]) Update(ctx context.Context, entity T) api.Sequence[T] {
	return c.Submit(ctx, api.NewUpdate(entity))
}

func (c *Queued[T]) Delete(ctx context.Context, q api.Query) api.Sequence[T] {
	return c.Submit(ctx, api.NewDelete[T](q))
}

func (c *Queued[T]) Fetch(ctx context.Context, q api.Query) api.Sequence[T] {
	return c.Submit(ctx, api.NewFetch[T](q))
}

func (c *Queued[T]) permitted() bool {
	return c.admission == nil || c.admission.IsOperationPermitted()
}

// Submit buffers req and drains the queue. Nothing happens until the
// returned sequence is ranged over.
func (c *Queued[T]) Submit(ctx context.Context, req api.Request[T]) api.Sequence[T] {
	return func(yield func(T, error) bool) {
		var zero T
		if !req.Queueable() {
			if c.opts.ReadThrough && req.Kind() == api.KindFetch {
				req.Action()(ctx, c.ds)(yield)
				return
			}
			yield(zero, fmt.Errorf("%w: %s requests cannot be buffered", api.ErrUnsupportedOperation, req.Kind()))
			return
		}

		out, err := c.enqueue(ctx, req)
		for _, v := range out {
			if !yield(v, nil) {
				return
			}
		}
		if err != nil {
			yield(zero, err)
		}
	}
}

func (c *Queued[T]) enqueue(ctx context.Context, req api.Request[T]) ([]T, error) {
	c.replayMu.Lock()
	defer c.replayMu.Unlock()

	added, err := c.queue.Add(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("controller: buffer %s: %w", req, err)
	}
	if !added {
		c.opts.Logger.Debug("request_coalesced",
			slog.String("request_id", req.ID()),
			slog.String("kind", string(req.Kind())),
		)
	}

	if !c.permitted() {
		c.opts.Observer.OnRequestBuffered(ctx, req.Info())
		return nil, nil
	}

	res, err := c.drain(ctx, c.queue.Key(req))
	if err != nil {
		return res.emitted, err
	}
	if res.ownErr != nil {
		c.opts.Observer.OnRequestBuffered(ctx, req.Info())
		return res.emitted, res.ownErr
	}
	return res.emitted, nil
}

// Flush replays every buffered request in insertion order and reports how
// many succeeded. Failed requests stay queued; their errors are joined in
// the returned error. Emissions of replayed requests are discarded.
func (c *Queued[T]) Flush(ctx context.Context) (int, error) {
	c.replayMu.Lock()
	defer c.replayMu.Unlock()

	if !c.permitted() {
		return 0, nil
	}
	res, err := c.drain(ctx, "")
	if err != nil {
		return res.replayed, err
	}
	return res.replayed, errors.Join(res.failures...)
}

// Pending lists buffered requests in insertion order.
func (c *Queued[T]) Pending(ctx context.Context) ([]api.Request[T], error) {
	return c.queue.List(ctx)
}

type drainResult[T any] struct {
	emitted  []T
	replayed int
	failures []error
	ownErr   error
}

// drain runs every queued request once. ownKey marks the caller's own
// request, whose failure is reported in ownErr instead of failures.
// It must be called with replayMu held.
func (c *Queued[T]) drain(ctx context.Context, ownKey string) (drainResult[T], error) {
	var res drainResult[T]

	pending, err := c.queue.List(ctx)
	if err != nil {
		return res, fmt.Errorf("controller: list retry queue: %w", err)
	}

	for _, r := range pending {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		own := ownKey != "" && c.queue.Key(r) == ownKey

		out, runErr := api.Collect(r.Action()(ctx, c.ds))
		res.emitted = append(res.emitted, out...)
		if runErr != nil {
			if own {
				res.ownErr = runErr
				continue
			}
			res.failures = append(res.failures, fmt.Errorf("replay %s: %w", r, runErr))
			c.opts.Observer.OnRequestReplayed(ctx, r.Info(), runErr)
			continue
		}

		if err := c.queue.Remove(ctx, r); err != nil {
			return res, fmt.Errorf("controller: remove %s: %w", r, err)
		}
		if !own {
			res.replayed++
			c.opts.Observer.OnRequestReplayed(ctx, r.Info(), nil)
		}
	}
	return res, nil
}
