package engine

import (
	"fmt"
	"sync"

	"github.com/netguru/repolib/internal/strategy"
	"github.com/netguru/repolib/pkg/api"
)

// combinatorRegistry resolves strategies to combinators: built-ins from the
// strategy package, custom variants from registrations.
type combinatorRegistry[T any] struct {
	mu     sync.RWMutex
	custom map[api.Strategy]api.Combinator[T]
}

func newCombinatorRegistry[T any]() *combinatorRegistry[T] {
	return &combinatorRegistry[T]{
		custom: make(map[api.Strategy]api.Combinator[T]),
	}
}

func (r *combinatorRegistry[T]) Register(s api.Strategy, fn api.Combinator[T]) error {
	if fn == nil {
		return fmt.Errorf("strategy %s: nil combinator", s)
	}
	if s < api.StrategyCustom {
		return fmt.Errorf("strategy %s: custom strategies start at %d", s, int(api.StrategyCustom))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.custom[s]; exists {
		return fmt.Errorf("strategy %s already registered", s)
	}
	r.custom[s] = fn
	return nil
}

func (r *combinatorRegistry[T]) Get(s api.Strategy) (api.Combinator[T], error) {
	if fn := strategy.Builtin[T](s); fn != nil {
		return fn, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.custom[s]
	if !ok {
		return nil, fmt.Errorf("%w: %s", api.ErrUnknownStrategy, s)
	}
	return fn, nil
}

// Strategies lists the registered custom strategies.
func (r *combinatorRegistry[T]) Strategies() []api.Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]api.Strategy, 0, len(r.custom))
	for s := range r.custom {
		out = append(out, s)
	}
	return out
}
