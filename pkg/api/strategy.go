package api

import (
	"context"
	"fmt"
)

// Strategy names a way of combining the local and the remote DataSource
// for one request.
type Strategy int

const (
	// OnlyLocal applies the action to local only.
	OnlyLocal Strategy = iota + 1
	// OnlyRemote applies the action to remote only.
	OnlyRemote
	// Both applies the action to local and remote concurrently and merges
	// emissions as they arrive.
	Both
	// LocalOnRemoteFailure applies the action to remote and falls back to
	// local when remote fails.
	LocalOnRemoteFailure
	// LocalAfterFullUpdateWithRemote mirrors remote's results into local
	// (delete all, create each) and then applies the action to local.
	LocalAfterFullUpdateWithRemote
	// LocalAfterFullUpdateOrFailureOfRemote is LocalAfterFullUpdateWithRemote
	// that reads local as-is when the refresh fails.
	LocalAfterFullUpdateOrFailureOfRemote
)

// StrategyCustom is the first value available for strategies registered
// on an engine with a Combinator.
const StrategyCustom Strategy = 1000

var strategyNames = map[Strategy]string{
	OnlyLocal:                             "only_local",
	OnlyRemote:                            "only_remote",
	Both:                                  "both",
	LocalOnRemoteFailure:                  "local_on_remote_failure",
	LocalAfterFullUpdateWithRemote:        "local_after_full_update_with_remote",
	LocalAfterFullUpdateOrFailureOfRemote: "local_after_full_update_or_failure_of_remote",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	if s >= StrategyCustom {
		return fmt.Sprintf("custom_%d", int(s-StrategyCustom))
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// ParseStrategy resolves the name of a built-in strategy as printed by
// String.
func ParseStrategy(name string) (Strategy, error) {
	for s, n := range strategyNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
}

// Builtin reports whether s is one of the six built-in strategies.
func (s Strategy) Builtin() bool {
	_, ok := strategyNames[s]
	return ok
}

// Combinator implements a strategy: it decides how action is applied to
// local and remote and returns the resulting sequence.
type Combinator[T any] func(ctx context.Context, local, remote DataSource[T], action Action[T]) Sequence[T]

// StrategyFactory maps a request to the strategy that serves it.
// Select must not mutate caller state and must return the same strategy
// for equivalent requests.
type StrategyFactory[T any] interface {
	Select(req Request[T]) Strategy
}

// StrategyFactoryFunc adapts a function to StrategyFactory.
type StrategyFactoryFunc[T any] func(req Request[T]) Strategy

func (f StrategyFactoryFunc[T]) Select(req Request[T]) Strategy { return f(req) }

// DefaultStrategyFactory writes straight to remote and reads from a local
// mirror refreshed from remote, degrading to the local copy when remote is
// unavailable.
type DefaultStrategyFactory[T any] struct{}

func (DefaultStrategyFactory[T]) Select(req Request[T]) Strategy {
	if req.Kind() == KindFetch {
		return LocalAfterFullUpdateOrFailureOfRemote
	}
	return OnlyRemote
}
