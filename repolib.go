package repolib

import (
	"database/sql"

	"github.com/netguru/repolib/internal/admission"
	"github.com/netguru/repolib/internal/controller"
	"github.com/netguru/repolib/internal/persistence"
	"github.com/netguru/repolib/internal/retryqueue"
	"github.com/netguru/repolib/pkg/api"
	"github.com/netguru/repolib/pkg/worker"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine[T any]              = api.Engine[T]
	DataSource[T any]          = api.DataSource[T]
	Controller[T any]          = api.Controller[T]
	Sequence[T any]            = api.Sequence[T]
	Action[T any]              = api.Action[T]
	IDFunc[T any]              = api.IDFunc[T]
	Request[T any]             = api.Request[T]
	Subscription[T any]        = api.Subscription[T]
	Combinator[T any]          = api.Combinator[T]
	StrategyFactory[T any]     = api.StrategyFactory[T]
	StrategyFactoryFunc[T any] = api.StrategyFactoryFunc[T]

	Query                = api.Query
	RequestKind          = api.RequestKind
	RequestInfo          = api.RequestInfo
	Strategy             = api.Strategy
	Completion           = api.Completion
	AdmissionCheck       = api.AdmissionCheck
	AdmissionFunc        = api.AdmissionFunc
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	MetricsObserver      = api.MetricsObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver

	Queue[T any]   = retryqueue.Queue[T]
	KeyFunc[T any] = retryqueue.KeyFunc[T]

	ControllerOptions = controller.Options
	Breaker           = admission.Breaker
	BreakerConfig     = admission.BreakerConfig

	ReplayPolicy = worker.ReplayPolicy
	Flusher      = worker.Flusher
)

// Re-export strategies.

const (
	OnlyLocal                             = api.OnlyLocal
	OnlyRemote                            = api.OnlyRemote
	Both                                  = api.Both
	LocalOnRemoteFailure                  = api.LocalOnRemoteFailure
	LocalAfterFullUpdateWithRemote        = api.LocalAfterFullUpdateWithRemote
	LocalAfterFullUpdateOrFailureOfRemote = api.LocalAfterFullUpdateOrFailureOfRemote
	StrategyCustom                        = api.StrategyCustom
)

// Re-export query constructors, errors and observer helpers.

var (
	All      = api.All
	ByID     = api.ByID
	ByParams = api.ByParams

	AlwaysPermit  = api.AlwaysPermit
	ParseStrategy = api.ParseStrategy

	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
	NewMetricsObserver   = api.NewMetricsObserver
	NewBreaker           = admission.NewBreaker

	ErrNotFound             = api.ErrNotFound
	ErrUnsupportedOperation = api.ErrUnsupportedOperation
	ErrUnknownStrategy      = api.ErrUnknownStrategy
	ErrEngineClosed         = api.ErrEngineClosed
	ErrNilQuery             = api.ErrNilQuery
	ErrNilDataSource        = api.ErrNilDataSource
)

// Sequences

// Collect ranges over seq and returns every entity, or the first error.
func Collect[T any](seq Sequence[T]) ([]T, error) { return api.Collect(seq) }

// Drain ranges over seq, discarding entities, and reports how many it saw.
func Drain[T any](seq Sequence[T]) (int, error) { return api.Drain(seq) }

// Data sources
// These wrap internal/persistence so external callers never need to import
// internal packages.

// NewInMemorySource returns a DataSource kept in process memory.
func NewInMemorySource[T any](id IDFunc[T]) DataSource[T] {
	return persistence.NewInMemorySource(id)
}

// NewSQLiteSource returns a DataSource stored in a SQLite table. db must
// use the "sqlite" driver from modernc.org/sqlite. An empty table selects
// "repolib_entities".
func NewSQLiteSource[T any](db *sql.DB, table string, id IDFunc[T]) (DataSource[T], error) {
	s, err := persistence.NewSQLiteSource(db, table, id)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Guard reports the outcome of every call served by ds to b, so the
// breaker trips while ds is failing.
func Guard[T any](ds DataSource[T], b *Breaker) DataSource[T] {
	return admission.Guard(ds, b)
}

// Retry queues

// KeyByContent coalesces requests carrying the same edit. It is the
// default dedup policy.
func KeyByContent[T any](r Request[T]) string { return retryqueue.KeyByContent(r) }

// KeyByInstance keeps every submitted request.
func KeyByInstance[T any](r Request[T]) string { return retryqueue.KeyByInstance(r) }

// NewInMemoryQueue returns a retry queue kept in process memory. A nil key
// selects KeyByContent.
func NewInMemoryQueue[T any](key KeyFunc[T]) Queue[T] {
	return retryqueue.NewInMemoryQueue(key)
}

// NewSQLiteQueue returns a durable retry queue in a SQLite table. An empty
// table selects "repolib_retry_queue".
func NewSQLiteQueue[T any](db *sql.DB, table string, key KeyFunc[T]) (Queue[T], error) {
	q, err := retryqueue.NewSQLiteQueue(db, table, key)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// Controllers

// NewDirectController executes every request immediately.
func NewDirectController[T any](ds DataSource[T]) (Controller[T], error) {
	c, err := controller.NewDirect(ds)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// NewQueuedController drains queue before every write. A nil queue selects
// an in-memory queue.
func NewQueuedController[T any](ds DataSource[T], queue Queue[T], opts ControllerOptions) (Controller[T], error) {
	c, err := controller.NewQueued(ds, queue, opts)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// NewCachedController is a queued controller that only buffers while check
// denies.
func NewCachedController[T any](ds DataSource[T], queue Queue[T], check AdmissionCheck, opts ControllerOptions) (Controller[T], error) {
	c, err := controller.NewCached(ds, queue, check, opts)
	if err != nil {
		return nil, err
	}
	return c, nil
}
