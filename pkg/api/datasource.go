package api

import "context"

// DataSource is a backend the engine routes requests to.
//
// Every method returns a lazy Sequence; the backend is only contacted when
// the sequence is ranged over. Implementations decide what each call emits:
// the adapters in this module emit the written entity for Create/Update,
// the removed entities for Delete and the matches for Fetch.
type DataSource[T any] interface {
	Create(ctx context.Context, entity T) Sequence[T]
	Update(ctx context.Context, entity T) Sequence[T]
	Delete(ctx context.Context, q Query) Sequence[T]
	Fetch(ctx context.Context, q Query) Sequence[T]
}

// Action is one request bound to its payload, applied to a DataSource.
type Action[T any] func(ctx context.Context, ds DataSource[T]) Sequence[T]

// IDFunc extracts the caller-assigned identifier of an entity.
// Identifiers are opaque to the engine; adapters use them as primary keys.
type IDFunc[T any] func(T) string

// Controller is a DataSource that may buffer requests in a retry queue
// instead of executing them right away.
type Controller[T any] interface {
	DataSource[T]

	// Submit executes or buffers a request.
	Submit(ctx context.Context, req Request[T]) Sequence[T]

	// Flush replays buffered requests in insertion order and reports how
	// many succeeded.
	Flush(ctx context.Context) (int, error)

	// Pending lists buffered requests in insertion order.
	Pending(ctx context.Context) ([]Request[T], error)
}
