package repolib

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/netguru/repolib/internal/engine"
)

// EngineBuilder provides a fluent API for assembling an Engine:
//
//	eng, err := repolib.NewEngine[Contact]().
//	    Local(localSource).
//	    Remote(remoteController).
//	    Observer(repolib.NewLoggingObserver(logger)).
//	    Build()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close()
type EngineBuilder[T any] struct {
	cfg  engine.Config[T]
	errs []error
}

// NewEngine starts building an Engine over entities of type T.
func NewEngine[T any]() *EngineBuilder[T] {
	return &EngineBuilder[T]{}
}

// Local sets the local DataSource. Required.
func (b *EngineBuilder[T]) Local(ds DataSource[T]) *EngineBuilder[T] {
	b.cfg.Local = ds
	return b
}

// Remote sets the remote DataSource, usually a controller. Required.
func (b *EngineBuilder[T]) Remote(ds DataSource[T]) *EngineBuilder[T] {
	b.cfg.Remote = ds
	return b
}

// Factory overrides the default strategy routing.
func (b *EngineBuilder[T]) Factory(f StrategyFactory[T]) *EngineBuilder[T] {
	b.cfg.Factory = f
	return b
}

// Route is Factory for a plain function.
func (b *EngineBuilder[T]) Route(fn func(Request[T]) Strategy) *EngineBuilder[T] {
	if fn == nil {
		b.errs = append(b.errs, errors.New("repolib: nil route function"))
		return b
	}
	b.cfg.Factory = StrategyFactoryFunc[T](fn)
	return b
}

// Observer sets the observer notified about every request. Calling it more
// than once combines the observers.
func (b *EngineBuilder[T]) Observer(obs Observer) *EngineBuilder[T] {
	if b.cfg.Observer == nil {
		b.cfg.Observer = obs
	} else {
		b.cfg.Observer = NewCompositeObserver(b.cfg.Observer, obs)
	}
	return b
}

func (b *EngineBuilder[T]) Logger(logger *slog.Logger) *EngineBuilder[T] {
	b.cfg.Logger = logger
	return b
}

// OutputBuffer sets how many entities each subscriber buffers before the
// oldest are dropped.
func (b *EngineBuilder[T]) OutputBuffer(n int) *EngineBuilder[T] {
	b.cfg.OutputBuffer = n
	return b
}

// Combinator registers a custom strategy. s must be at least StrategyCustom.
func (b *EngineBuilder[T]) Combinator(s Strategy, fn Combinator[T]) *EngineBuilder[T] {
	if b.cfg.Combinators == nil {
		b.cfg.Combinators = make(map[Strategy]Combinator[T])
	}
	if _, exists := b.cfg.Combinators[s]; exists {
		b.errs = append(b.errs, fmt.Errorf("repolib: strategy %s registered twice", s))
		return b
	}
	b.cfg.Combinators[s] = fn
	return b
}

// Build validates the configuration and creates the Engine.
func (b *EngineBuilder[T]) Build() (Engine[T], error) {
	if err := errors.Join(b.errs...); err != nil {
		return nil, err
	}
	e, err := engine.New(b.cfg)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// MustBuild is like Build but panics on error.
func (b *EngineBuilder[T]) MustBuild() Engine[T] {
	e, err := b.Build()
	if err != nil {
		panic(fmt.Sprintf("repolib: build engine: %v", err))
	}
	return e
}
