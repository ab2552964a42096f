// Package engine implements api.Engine: it routes each request through the
// strategy its factory selects and republishes the results on a broadcast
// hub.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/netguru/repolib/internal/broadcast"
	"github.com/netguru/repolib/pkg/api"
)

// Config describes how to construct an Engine.
type Config[T any] struct {
	Local  api.DataSource[T]
	Remote api.DataSource[T]

	// Factory selects a strategy per request. Default api.DefaultStrategyFactory.
	Factory  api.StrategyFactory[T]
	Observer api.Observer
	Logger   *slog.Logger

	// OutputBuffer is the per-subscriber buffer of the output stream.
	// Zero selects broadcast.DefaultBufferSize.
	OutputBuffer int

	// Combinators registers custom strategies (>= api.StrategyCustom).
	Combinators map[api.Strategy]api.Combinator[T]
}

// Engine is the in-process api.Engine implementation.
type Engine[T any] struct {
	local    api.DataSource[T]
	remote   api.DataSource[T]
	factory  api.StrategyFactory[T]
	observer api.Observer
	logger   *slog.Logger

	combinators *combinatorRegistry[T]
	output      *broadcast.Hub[T]

	closed   atomic.Bool
	closeMu  sync.RWMutex // orders inflight.Add before Close's Wait
	inflight sync.WaitGroup
}

var _ api.Engine[string] = (*Engine[string])(nil)

func New[T any](cfg Config[T]) (*Engine[T], error) {
	if cfg.Local == nil || cfg.Remote == nil {
		return nil, api.ErrNilDataSource
	}
	factory := cfg.Factory
	if factory == nil {
		factory = api.DefaultStrategyFactory[T]{}
	}
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine[T]{
		local:       cfg.Local,
		remote:      cfg.Remote,
		factory:     factory,
		observer:    obs,
		logger:      logger,
		combinators: newCombinatorRegistry[T](),
		output:      broadcast.New[T](cfg.OutputBuffer),
	}
	for s, fn := range cfg.Combinators {
		if err := e.combinators.Register(s, fn); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// RegisterCombinator adds a custom strategy after construction.
func (e *Engine[T]) RegisterCombinator(s api.Strategy, fn api.Combinator[T]) error {
	return e.combinators.Register(s, fn)
}

func (e *Engine[T]) Fetch(ctx context.Context, q api.Query) error {
	if q == nil {
		return api.ErrNilQuery
	}
	return e.execute(ctx, api.NewFetch[T](q))
}

func (e *Engine[T]) Create(ctx context.Context, entity T) error {
	return e.execute(ctx, api.NewCreate(entity))
}

func (e *Engine[T]) Update(ctx context.Context, entity T) error {
	return e.execute(ctx, api.NewUpdate(entity))
}

func (e *Engine[T]) Delete(ctx context.Context, q api.Query) error {
	if q == nil {
		return api.ErrNilQuery
	}
	return e.execute(ctx, api.NewDelete[T](q))
}

func (e *Engine[T]) FetchAsync(ctx context.Context, q api.Query) *api.Completion {
	if q == nil {
		return resolved(api.ErrNilQuery)
	}
	return e.async(ctx, api.NewFetch[T](q))
}

func (e *Engine[T]) CreateAsync(ctx context.Context, entity T) *api.Completion {
	return e.async(ctx, api.NewCreate(entity))
}

func (e *Engine[T]) UpdateAsync(ctx context.Context, entity T) *api.Completion {
	return e.async(ctx, api.NewUpdate(entity))
}

func (e *Engine[T]) DeleteAsync(ctx context.Context, q api.Query) *api.Completion {
	if q == nil {
		return resolved(api.ErrNilQuery)
	}
	return e.async(ctx, api.NewDelete[T](q))
}

// Submit runs an already built request.
func (e *Engine[T]) Submit(ctx context.Context, req api.Request[T]) error {
	return e.execute(ctx, req)
}

func (e *Engine[T]) Subscribe() api.Subscription[T] {
	return e.output.Subscribe()
}

// Close closes the output stream. It waits for running asynchronous
// operations so that none of them publishes after its subscribers are gone.
func (e *Engine[T]) Close() error {
	e.closeMu.Lock()
	already := e.closed.Swap(true)
	e.closeMu.Unlock()
	if already {
		return nil
	}
	e.inflight.Wait()
	e.output.Close()
	e.logger.Debug("engine_closed")
	return nil
}

func resolved(err error) *api.Completion {
	c := api.NewCompletion(nil)
	c.Resolve(err)
	return c
}

func (e *Engine[T]) async(ctx context.Context, req api.Request[T]) *api.Completion {
	e.closeMu.RLock()
	if e.closed.Load() {
		e.closeMu.RUnlock()
		return resolved(api.ErrEngineClosed)
	}
	e.inflight.Add(1)
	e.closeMu.RUnlock()

	ctx, cancel := context.WithCancel(ctx)
	c := api.NewCompletion(cancel)
	go func() {
		defer e.inflight.Done()
		defer cancel()
		c.Resolve(e.execute(ctx, req))
	}()
	return c
}

// execute runs req to completion, publishing every emission in order.
// Errors are returned to the caller only.
func (e *Engine[T]) execute(ctx context.Context, req api.Request[T]) (err error) {
	if e.closed.Load() {
		return api.ErrEngineClosed
	}

	s := e.factory.Select(req)
	info := req.Info()
	start := time.Now()
	emitted := 0

	e.observer.OnRequestStart(ctx, info, s)
	defer func() {
		e.observer.OnRequestCompleted(ctx, info, s, emitted, err, time.Since(start))
	}()

	combine, err := e.combinators.Get(s)
	if err != nil {
		e.logger.Warn("strategy_unresolved",
			slog.String("request_id", info.ID),
			slog.String("strategy", s.String()),
		)
		return err
	}

	for v, seqErr := range combine(ctx, e.local, e.remote, req.Action()) {
		if seqErr != nil {
			return seqErr
		}
		// a cancelled operation stops forwarding its results
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		e.output.Publish(v)
		emitted++
	}
	return nil
}
