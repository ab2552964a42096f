// Package retryqueue holds requests that could not be executed yet.
//
// A queue is ordered by insertion and deduplicated by a key derived from
// each request. Which requests count as "the same" is a policy chosen at
// construction time with a KeyFunc. A request whose key is already queued
// replaces the queued one at the back, so replay order always follows the
// latest submission.
package retryqueue

import (
	"context"
	"fmt"

	"github.com/netguru/repolib/pkg/api"
)

// Queue is an ordered, deduplicating buffer of requests.
//
// Implementations must be safe for concurrent use. Callers that need a
// list-then-remove sequence to be atomic serialize it themselves.
type Queue[T any] interface {
	// Add appends r. If a request with the same key is already queued it is
	// dropped, r takes its place at the back and added is false.
	// Fetch requests are rejected with api.ErrUnsupportedOperation.
	Add(ctx context.Context, r api.Request[T]) (added bool, err error)

	// Remove drops the request sharing r's key. Removing an absent request
	// is not an error.
	Remove(ctx context.Context, r api.Request[T]) error

	// List returns the queued requests in insertion order.
	List(ctx context.Context) ([]api.Request[T], error)

	IsEmpty(ctx context.Context) (bool, error)
	Len(ctx context.Context) (int, error)

	// Key is the dedup key the queue uses for r.
	Key(r api.Request[T]) string
}

// KeyFunc derives the dedup key of a request.
type KeyFunc[T any] func(api.Request[T]) string

// KeyByContent coalesces requests carrying the same edit: same kind and
// same payload. Two different edits to one entity stay separate, and
// submitting A, B, A replays as B, A.
func KeyByContent[T any](r api.Request[T]) string {
	return r.Fingerprint()
}

// KeyByInstance never coalesces: every submitted request is its own item.
func KeyByInstance[T any](r api.Request[T]) string {
	return r.ID()
}

func checkQueueable[T any](r api.Request[T]) error {
	if !r.Queueable() {
		return fmt.Errorf("%w: cannot queue %s request", api.ErrUnsupportedOperation, r.Kind())
	}
	return nil
}

func keyFuncOrDefault[T any](fn KeyFunc[T]) KeyFunc[T] {
	if fn == nil {
		return KeyByContent[T]
	}
	return fn
}
