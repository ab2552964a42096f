package repolib

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// Bundle wires an Engine over a SQLite local source, a remote DataSource
// guarded by a cached controller whose retry queue lives in the same SQLite
// database, and a Runner replaying that queue.
//
// Writes buffered while the remote is unreachable survive a process restart
// as long as the same database is reopened.
type Bundle[T any] struct {
	Engine     Engine[T]
	Local      DataSource[T]
	Controller Controller[T]
	Queue      Queue[T]
	Runner     *Runner
}

// BundleConfig tunes NewSQLiteBundle. The zero value is usable.
type BundleConfig[T any] struct {
	// LocalTable and QueueTable name the SQLite tables. Empty selects the
	// package defaults.
	LocalTable string
	QueueTable string

	// Admission gates the remote. Nil admits every request.
	Admission AdmissionCheck
	// Key is the retry queue's dedup policy. Nil selects KeyByContent.
	Key KeyFunc[T]

	// Factory overrides the engine's default strategy routing.
	Factory      StrategyFactory[T]
	OutputBuffer int

	Replay   ReplayPolicy
	Observer Observer
	Logger   *slog.Logger
}

// NewSQLiteBundle constructs a durable Engine + Queue + Runner combo sharing
// one SQLite database.
//
// Typical usage:
//
//	db, _ := sql.Open("sqlite", "file:contacts.db?_journal=WAL")
//	bundle, err := repolib.NewSQLiteBundle(db, remote, contactID, repolib.BundleConfig[Contact]{
//	    Admission: breaker,
//	})
//	_ = bundle.Runner.Start(ctx)
//	defer bundle.Close()
func NewSQLiteBundle[T any](db *sql.DB, remote DataSource[T], id IDFunc[T], cfg BundleConfig[T]) (*Bundle[T], error) {
	if db == nil {
		return nil, fmt.Errorf("repolib: nil *sql.DB")
	}
	if remote == nil {
		return nil, ErrNilDataSource
	}

	local, err := NewSQLiteSource(db, cfg.LocalTable, id)
	if err != nil {
		return nil, fmt.Errorf("repolib: local source: %w", err)
	}
	queue, err := NewSQLiteQueue(db, cfg.QueueTable, cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("repolib: retry queue: %w", err)
	}

	admission := cfg.Admission
	if admission == nil {
		admission = AlwaysPermit
	}
	ctrl, err := NewCachedController(remote, queue, admission, ControllerOptions{
		Observer:    cfg.Observer,
		Logger:      cfg.Logger,
		ReadThrough: true,
	})
	if err != nil {
		return nil, err
	}

	b := NewEngine[T]().
		Local(local).
		Remote(ctrl).
		Logger(cfg.Logger).
		OutputBuffer(cfg.OutputBuffer)
	if cfg.Factory != nil {
		b.Factory(cfg.Factory)
	}
	if cfg.Observer != nil {
		b.Observer(cfg.Observer)
	}
	eng, err := b.Build()
	if err != nil {
		return nil, err
	}

	return &Bundle[T]{
		Engine:     eng,
		Local:      local,
		Controller: ctrl,
		Queue:      queue,
		Runner:     NewRunner(cfg.Replay, cfg.Logger, ctrl),
	}, nil
}

// Flush replays buffered writes once, outside the Runner's schedule.
func (b *Bundle[T]) Flush(ctx context.Context) (int, error) {
	return b.Controller.Flush(ctx)
}

// Close stops the Runner and closes the Engine. The database stays open.
func (b *Bundle[T]) Close() error {
	b.Runner.Stop()
	return b.Engine.Close()
}
