package repolib

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/netguru/repolib/pkg/worker"
)

// Runner drains retry queues in a background goroutine.
//
// Typical usage:
//
//	runner := repolib.NewRunner(repolib.Replay(time.Minute).Policy(), nil, controller)
//	if err := runner.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer runner.Stop()
type Runner struct {
	// Worker performs the drains. Call Worker.ProcessOne to drain on demand.
	Worker *worker.Worker

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewRunner creates a Runner over flushers. A nil logger selects
// slog.Default().
func NewRunner(policy ReplayPolicy, logger *slog.Logger, flushers ...Flusher) *Runner {
	return &Runner{
		Worker: worker.NewWithConfig(worker.Config{Policy: policy, Logger: logger}, flushers...),
	}
}

// Start runs the worker loop until Stop is called or ctx is cancelled.
//
// If Start is called more than once without Stop, it returns an error.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("repolib: runner already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running = true

	done := r.done
	go func() {
		defer close(done)
		// Run only returns once ctx is done
		_ = r.Worker.Run(ctx)
	}()
	return nil
}

// Stop cancels the worker loop and waits for it to exit.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel, done := r.cancel, r.done
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	cancel()
	<-done
}

// Running reports whether the loop has been started and not stopped.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// LocalRunner bundles an in-memory local source, an in-memory "remote", a
// cached controller in front of the remote, an Engine and a Runner, for
// development and tests.
//
// SetOnline toggles the controller's admission check to simulate losing
// and regaining the remote:
//
//	lr, _ := repolib.NewLocalRunner(func(c Contact) string { return c.ID })
//	_ = lr.Start(ctx)
//	defer lr.Stop()
//
//	lr.SetOnline(false)
//	_ = lr.Engine.Create(ctx, Contact{ID: "1"}) // buffered
//	lr.SetOnline(true)                           // replayed by the runner
type LocalRunner[T any] struct {
	Engine     Engine[T]
	Local      DataSource[T]
	Remote     DataSource[T]
	Controller Controller[T]
	Runner     *Runner

	online atomic.Bool
}

// LocalRunnerOption customizes a LocalRunner.
type LocalRunnerOption func(*localRunnerConfig)

type localRunnerConfig struct {
	policy   ReplayPolicy
	observer Observer
	logger   *slog.Logger
}

// WithReplayPolicy sets how often buffered writes are replayed.
func WithReplayPolicy(p ReplayPolicy) LocalRunnerOption {
	return func(c *localRunnerConfig) { c.policy = p }
}

// WithObserver attaches an observer to both the engine and the controller.
func WithObserver(obs Observer) LocalRunnerOption {
	return func(c *localRunnerConfig) { c.observer = obs }
}

func WithLogger(logger *slog.Logger) LocalRunnerOption {
	return func(c *localRunnerConfig) { c.logger = logger }
}

// NewLocalRunner wires everything in memory. The runner starts online.
func NewLocalRunner[T any](id IDFunc[T], opts ...LocalRunnerOption) (*LocalRunner[T], error) {
	var cfg localRunnerConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	lr := &LocalRunner[T]{
		Local:  NewInMemorySource(id),
		Remote: NewInMemorySource(id),
	}
	lr.online.Store(true)

	ctrl, err := NewCachedController(lr.Remote, nil, AdmissionFunc(lr.online.Load), ControllerOptions{
		Observer:    cfg.observer,
		Logger:      cfg.logger,
		ReadThrough: true,
	})
	if err != nil {
		return nil, err
	}
	lr.Controller = ctrl

	b := NewEngine[T]().Local(lr.Local).Remote(ctrl).Logger(cfg.logger)
	if cfg.observer != nil {
		b.Observer(cfg.observer)
	}
	eng, err := b.Build()
	if err != nil {
		return nil, err
	}
	lr.Engine = eng
	lr.Runner = NewRunner(cfg.policy, cfg.logger, ctrl)
	return lr, nil
}

// SetOnline opens or closes the admission check in front of Remote.
func (lr *LocalRunner[T]) SetOnline(online bool) {
	lr.online.Store(online)
}

// Online reports the current admission state.
func (lr *LocalRunner[T]) Online() bool {
	return lr.online.Load()
}

// Start starts the background replay loop.
func (lr *LocalRunner[T]) Start(ctx context.Context) error {
	return lr.Runner.Start(ctx)
}

// Stop stops the replay loop and closes the engine.
func (lr *LocalRunner[T]) Stop() {
	lr.Runner.Stop()
	_ = lr.Engine.Close()
}
