package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// Flusher replays buffered requests. Queued and cached controllers
// implement it.
type Flusher interface {
	Flush(ctx context.Context) (int, error)
}

// FlusherFunc adapts a function to Flusher.
type FlusherFunc func(ctx context.Context) (int, error)

func (f FlusherFunc) Flush(ctx context.Context) (int, error) { return f(ctx) }

// DefaultInterval is the pause between drains when ReplayPolicy.Interval
// is not set.
const DefaultInterval = 5 * time.Second

// ReplayPolicy controls how often Run drains its flushers.
//
// After a drain that fails, Run waits InitialBackoff, then grows the pause
// by BackoffMultiplier on every further failure up to MaxBackoff. A
// successful drain goes back to Interval.
type ReplayPolicy struct {
	Interval          time.Duration
	InitialBackoff    time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
}

// Delay returns the pause before the next drain given how many drains in
// a row have failed.
func (p ReplayPolicy) Delay(failures int) time.Duration {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	if failures <= 0 || p.InitialBackoff <= 0 {
		return interval
	}

	mult := p.BackoffMultiplier
	if mult <= 0 {
		mult = 2.0
	}
	d := float64(p.InitialBackoff) * math.Pow(mult, float64(failures-1))
	if p.MaxBackoff > 0 && d > float64(p.MaxBackoff) {
		return p.MaxBackoff
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Config holds the worker settings.
type Config struct {
	Policy ReplayPolicy
	Logger *slog.Logger
}

// Worker drains the retry queues of one or more controllers.
type Worker struct {
	flushers []Flusher
	policy   ReplayPolicy
	logger   *slog.Logger
}

// New creates a Worker with the default policy.
func New(flushers ...Flusher) *Worker {
	return NewWithConfig(Config{}, flushers...)
}

// NewWithConfig creates a Worker with explicit settings.
func NewWithConfig(cfg Config, flushers ...Flusher) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{flushers: flushers, policy: cfg.Policy, logger: logger}
}

// ProcessOne flushes every flusher once, in order. It returns how many
// requests were replayed and the joined errors of the flushers that
// failed; a failing flusher does not stop the others.
func (w *Worker) ProcessOne(ctx context.Context) (int, error) {
	var (
		total int
		errs  []error
	)
	for i, f := range w.flushers {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := f.Flush(ctx)
		total += n
		if err != nil {
			errs = append(errs, fmt.Errorf("flusher %d: %w", i, err))
		}
	}
	return total, errors.Join(errs...)
}

// Run calls ProcessOne until ctx is done and then returns ctx.Err().
func (w *Worker) Run(ctx context.Context) error {
	failures := 0
	for {
		n, err := w.ProcessOne(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			failures++
			w.logger.Warn("replay_failed",
				slog.Int("replayed", n),
				slog.Int("consecutive_failures", failures),
				slog.Any("error", err),
			)
		} else {
			failures = 0
			if n > 0 {
				w.logger.Info("replay_completed", slog.Int("replayed", n))
			}
		}

		timer := time.NewTimer(w.policy.Delay(failures))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
