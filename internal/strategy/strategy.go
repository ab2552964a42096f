// Package strategy implements the built-in ways of combining a local and a
// remote DataSource for one request.
package strategy

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/netguru/repolib/pkg/api"
)

// Builtin returns the combinator implementing s, or nil when s is not one
// of the built-in strategies.
func Builtin[T any](s api.Strategy) api.Combinator[T] {
	switch s {
	case api.OnlyLocal:
		return onlyLocal[T]
	case api.OnlyRemote:
		return onlyRemote[T]
	case api.Both:
		return both[T]
	case api.LocalOnRemoteFailure:
		return localOnRemoteFailure[T]
	case api.LocalAfterFullUpdateWithRemote:
		return localAfterFullUpdate[T]
	case api.LocalAfterFullUpdateOrFailureOfRemote:
		return localAfterFullUpdateOrFailure[T]
	}
	return nil
}

// Apply combines local and remote according to s. Nothing runs until the
// returned sequence is ranged over.
func Apply[T any](ctx context.Context, s api.Strategy, local, remote api.DataSource[T], action api.Action[T]) api.Sequence[T] {
	fn := Builtin[T](s)
	if fn == nil {
		return api.Fail[T](fmt.Errorf("%w: %s", api.ErrUnknownStrategy, s))
	}
	return fn(ctx, local, remote, action)
}

func onlyLocal[T any](ctx context.Context, local, _ api.DataSource[T], action api.Action[T]) api.Sequence[T] {
	return api.Defer(func() api.Sequence[T] { return action(ctx, local) })
}

func onlyRemote[T any](ctx context.Context, _, remote api.DataSource[T], action api.Action[T]) api.Sequence[T] {
	return api.Defer(func() api.Sequence[T] { return action(ctx, remote) })
}

// both runs action on local and remote concurrently. Emissions are yielded
// in arrival order; there is no ordering between the two sides. A failure
// on either side cancels the other and is yielded after every value that
// had already arrived.
func both[T any](ctx context.Context, local, remote api.DataSource[T], action api.Action[T]) api.Sequence[T] {
	return func(yield func(T, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g, gctx := errgroup.WithContext(ctx)
		out := make(chan T)

		forward := func(ds api.DataSource[T]) func() error {
			return func() error {
				for v, err := range action(gctx, ds) {
					if err != nil {
						return err
					}
					select {
					case out <- v:
					case <-gctx.Done():
						return gctx.Err()
					}
				}
				return nil
			}
		}
		g.Go(forward(local))
		g.Go(forward(remote))

		done := make(chan error, 1)
		go func() {
			done <- g.Wait()
			close(out)
		}()

		for v := range out {
			if !yield(v, nil) {
				cancel()
				for range out {
				}
				<-done
				return
			}
		}
		if err := <-done; err != nil {
			var zero T
			yield(zero, err)
		}
	}
}

// localOnRemoteFailure passes remote's emissions through and replaces a
// remote failure with the local result.
func localOnRemoteFailure[T any](ctx context.Context, local, remote api.DataSource[T], action api.Action[T]) api.Sequence[T] {
	return resumeOnError(
		api.Defer(func() api.Sequence[T] { return action(ctx, remote) }),
		func(error) api.Sequence[T] { return action(ctx, local) },
	)
}

// localAfterFullUpdate makes local a mirror of remote's result and then
// answers from local. Nothing is yielded before the mirror is complete.
func localAfterFullUpdate[T any](ctx context.Context, local, remote api.DataSource[T], action api.Action[T]) api.Sequence[T] {
	return func(yield func(T, error) bool) {
		if err := mirror(ctx, local, remote, action); err != nil {
			var zero T
			yield(zero, err)
			return
		}
		action(ctx, local)(yield)
	}
}

func localAfterFullUpdateOrFailure[T any](ctx context.Context, local, remote api.DataSource[T], action api.Action[T]) api.Sequence[T] {
	return resumeOnError(
		localAfterFullUpdate(ctx, local, remote, action),
		func(error) api.Sequence[T] { return action(ctx, local) },
	)
}

// mirror replaces local's content with the result of action on remote:
// delete everything, then create each remote item in remote order.
func mirror[T any](ctx context.Context, local, remote api.DataSource[T], action api.Action[T]) error {
	items, err := api.Collect(action(ctx, remote))
	if err != nil {
		return fmt.Errorf("repolib: refresh from remote: %w", err)
	}
	if _, err := api.Drain(local.Delete(ctx, api.All())); err != nil {
		return fmt.Errorf("repolib: clear local: %w", err)
	}
	for _, it := range items {
		if _, err := api.Drain(local.Create(ctx, it)); err != nil {
			return fmt.Errorf("repolib: copy remote item into local: %w", err)
		}
	}
	return nil
}

// resumeOnError yields primary's values; if primary fails, the error is
// dropped and fallback's sequence continues in its place.
func resumeOnError[T any](primary api.Sequence[T], fallback func(error) api.Sequence[T]) api.Sequence[T] {
	return func(yield func(T, error) bool) {
		var failed error
		for v, err := range primary {
			if err != nil {
				failed = err
				break
			}
			if !yield(v, nil) {
				return
			}
		}
		if failed != nil {
			fallback(failed)(yield)
		}
	}
}
