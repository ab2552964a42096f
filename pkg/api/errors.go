package api

import "errors"

var (
	// ErrNotFound is returned by a DataSource when an update targets an
	// identifier the backend does not hold.
	ErrNotFound = errors.New("repolib: not found")

	// ErrUnsupportedOperation is returned when a request cannot be handled
	// by its target, e.g. a Fetch submitted to a queue-based controller or
	// a query type an adapter does not understand.
	ErrUnsupportedOperation = errors.New("repolib: unsupported operation")

	// ErrUnknownStrategy is returned when a StrategyFactory selects a
	// strategy that is neither built in nor registered on the engine.
	ErrUnknownStrategy = errors.New("repolib: unknown strategy")

	// ErrEngineClosed is returned by operations issued after Close.
	ErrEngineClosed = errors.New("repolib: engine closed")

	// ErrNilQuery is returned for Fetch/Delete calls without a query.
	ErrNilQuery = errors.New("repolib: nil query")

	// ErrNilDataSource is returned when an engine or controller is built
	// without a required DataSource.
	ErrNilDataSource = errors.New("repolib: nil data source")
)
