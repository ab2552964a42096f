// Package admission provides admission checks for cached controllers.
package admission

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/netguru/repolib/pkg/api"
)

// BreakerConfig configures a Breaker. Zero fields take the defaults noted.
type BreakerConfig struct {
	// Name identifies the breaker in logs. Default "remote".
	Name string
	// ConsecutiveFailures trips the breaker. Default 3.
	ConsecutiveFailures uint32
	// Timeout is how long the breaker stays open before letting a probe
	// through. Default 30s.
	Timeout time.Duration
	// MaxRequests is the number of probes admitted while half-open. Default 1.
	MaxRequests uint32
	// Interval clears the failure counts while closed. Zero never clears.
	Interval time.Duration
	Logger   *slog.Logger
}

// Breaker is an api.AdmissionCheck driven by a circuit breaker. Outcomes
// of remote calls are reported to it with Observe, or automatically by
// wrapping the remote DataSource with Guard.
//
// Requests are admitted while the breaker is closed or half-open.
type Breaker struct {
	cb     *gobreaker.CircuitBreaker
	logger *slog.Logger
}

var _ api.AdmissionCheck = (*Breaker)(nil)

func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Name == "" {
		cfg.Name = "remote"
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	b := &Breaker{logger: logger}
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: reachable,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("admission_state_changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
	return b
}

// reachable reports whether err still proves the backend answered.
func reachable(err error) bool {
	return err == nil ||
		errors.Is(err, api.ErrNotFound) ||
		errors.Is(err, api.ErrUnsupportedOperation) ||
		errors.Is(err, api.ErrNilQuery) ||
		errors.Is(err, context.Canceled)
}

func (b *Breaker) IsOperationPermitted() bool {
	return b.cb.State() != gobreaker.StateOpen
}

// Observe records the outcome of one remote call.
func (b *Breaker) Observe(err error) {
	_, execErr := b.cb.Execute(func() (any, error) { return nil, err })
	if errors.Is(execErr, gobreaker.ErrOpenState) || errors.Is(execErr, gobreaker.ErrTooManyRequests) {
		b.logger.Debug("admission_outcome_ignored", slog.String("breaker", b.cb.Name()), slog.Any("error", execErr))
	}
}

// State returns "closed", "half-open" or "open".
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// Guard wraps ds so that the outcome of every call it serves is reported
// to b. Emissions and errors pass through unchanged.
func Guard[T any](ds api.DataSource[T], b *Breaker) api.DataSource[T] {
	return &guarded[T]{ds: ds, b: b}
}

type guarded[T any] struct {
	ds api.DataSource[T]
	b  *Breaker
}

func (g *guarded[T]) observe(seq api.Sequence[T]) api.Sequence[T] {
	return func(yield func(T, error) bool) {
		for v, err := range seq {
			if err != nil {
				g.b.Observe(err)
				yield(v, err)
				return
			}
			if !yield(v, nil) {
				return
			}
		}
		g.b.Observe(nil)
	}
}

func (g *guarded[T]) Create(ctx context.Context, entity T) api.Sequence[T] {
	return g.observe(g.ds.Create(ctx, entity))
}

func (g *guarded[T]) Update(ctx context.Context, entity T) api.Sequence[T] {
	return g.observe(g.ds.Update(ctx, entity))
}

func (g *guarded[T]) Delete(ctx context.Context, q api.Query) api.Sequence[T] {
	return g.observe(g.ds.Delete(ctx, q))
}

func (g *guarded[T]) Fetch(ctx context.Context, q api.Query) api.Sequence[T] {
	return g.observe(g.ds.Fetch(ctx, q))
}
